package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/lucabelli/amora/internal/auth"
	"github.com/lucabelli/amora/internal/config"
	"github.com/lucabelli/amora/internal/lifecycle"
	"github.com/lucabelli/amora/internal/matching"
	"github.com/lucabelli/amora/internal/observability"
	"github.com/lucabelli/amora/internal/store"
)

type Server struct {
	cfg        config.Config
	store      store.Store
	controller *lifecycle.Controller
	hub        Registry
	validator  auth.Validator
	scorer     matching.Scorer
	metrics    *observability.Metrics
	upgrader   websocket.Upgrader
}

func New(
	cfg config.Config,
	st store.Store,
	controller *lifecycle.Controller,
	registry Registry,
	validator auth.Validator,
	scorer matching.Scorer,
	metrics *observability.Metrics,
) *Server {
	return &Server{
		cfg:        cfg,
		store:      st,
		controller: controller,
		hub:        registry,
		validator:  validator,
		scorer:     scorer,
		metrics:    metrics,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				// Default: only same-origin browser connections. Spectator
				// pages are served from the same host in production.
				if cfg.AllowAnyOrigin {
					return true
				}
				origin := strings.TrimSpace(r.Header.Get("Origin"))
				if origin == "" {
					// Non-browser clients often omit Origin. Allow them.
					return true
				}
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				if u.Scheme != "http" && u.Scheme != "https" {
					return false
				}
				return strings.EqualFold(u.Host, r.Host)
			},
		},
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})

	r.Post("/v1/sessions", s.handleCreateSession)
	r.Get("/v1/sessions/{id}", s.handleGetSession)
	r.Post("/v1/sessions/{id}/start", s.handleStartSession)
	r.Post("/v1/sessions/{id}/pause", s.handlePauseSession)
	r.Post("/v1/sessions/{id}/resume", s.handleResumeSession)
	r.Post("/v1/sessions/{id}/terminate", s.handleTerminateSession)
	r.Get("/v1/sessions/{id}/messages", s.handleListMessages)
	r.Get("/v1/matches/{matchID}/sessions", s.handleSessionsForMatch)
	r.Get("/v1/sessions/ws", s.handleSessionWS)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var p store.Participants
	if err := decodeJSON(r, &p); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if strings.TrimSpace(p.MatchID) == "" || strings.TrimSpace(p.UserAID) == "" || strings.TrimSpace(p.UserBID) == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "match_id, user_a_id and user_b_id are required")
		return
	}
	if strings.TrimSpace(p.AvatarAName) == "" {
		p.AvatarAName = "Avatar A"
	}
	if strings.TrimSpace(p.AvatarBName) == "" {
		p.AvatarBName = "Avatar B"
	}
	if strings.TrimSpace(p.ModeratorName) == "" {
		p.ModeratorName = "Moderator"
	}

	sess, err := s.store.CreateSession(r.Context(), p)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "create_failed", err.Error())
		return
	}
	s.metrics.SessionEvents.WithLabelValues("created").Inc()
	respondJSON(w, http.StatusCreated, sess)
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.store.GetSession(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, sess)
}

func (s *Server) handleStartSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := s.controller.Start(r.Context(), id); err != nil {
		respondStoreError(w, err)
		return
	}
	sess, err := s.store.GetSession(r.Context(), id)
	if err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, sess)
}

func (s *Server) handlePauseSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.controller.Pause(r.Context(), id); err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusAccepted, map[string]any{"session_id": id, "pausing": true})
}

func (s *Server) handleResumeSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := s.controller.Resume(r.Context(), id); err != nil {
		respondStoreError(w, err)
		return
	}
	sess, err := s.store.GetSession(r.Context(), id)
	if err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, sess)
}

func (s *Server) handleTerminateSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	sess, _, err := s.controller.Terminate(r.Context(), id, store.ReasonManual)
	if err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, sess)
}

func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 50)
	offset := queryInt(r, "offset", 0)
	turns, err := s.store.Messages(r.Context(), chi.URLParam(r, "id"), limit, offset)
	if err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"messages": turns})
}

func (s *Server) handleSessionsForMatch(w http.ResponseWriter, r *http.Request) {
	sessions, err := s.store.SessionsForMatch(r.Context(), chi.URLParam(r, "matchID"))
	if err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"sessions": sessions})
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return errors.New("empty body")
	}
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(out)
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}

func respondStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		respondError(w, http.StatusNotFound, "session_not_found", err.Error())
	case errors.Is(err, store.ErrIllegalTransition):
		respondError(w, http.StatusConflict, "illegal_transition", err.Error())
	case errors.Is(err, store.ErrSessionNotActive):
		respondError(w, http.StatusConflict, "session_not_active", err.Error())
	default:
		respondError(w, http.StatusInternalServerError, "internal", err.Error())
	}
}

func queryInt(r *http.Request, key string, fallback int) int {
	v := strings.TrimSpace(r.URL.Query().Get(key))
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
