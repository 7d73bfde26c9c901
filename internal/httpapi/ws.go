package httpapi

import (
	"context"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/lucabelli/amora/internal/hub"
	"github.com/lucabelli/amora/internal/protocol"
)

// Registry is the slice of the hub the websocket handler uses.
type Registry interface {
	Register(sessionID string) *hub.Connection
	Unregister(registrationID string)
	Publish(sessionID string, evt protocol.Event)
}

const (
	wsWriteTimeout = 10 * time.Second
	wsReadTimeout  = 120 * time.Second
	wsReadLimit    = 1 << 20
	scoreTimeout   = 5 * time.Second
)

// handleSessionWS upgrades an observer connection. The bearer credential is
// validated before any registration occurs; an invalid or expired credential
// never reaches the hub.
func (s *Server) handleSessionWS(w http.ResponseWriter, r *http.Request) {
	sessionID := strings.TrimSpace(r.URL.Query().Get("session_id"))
	if sessionID == "" {
		respondError(w, http.StatusBadRequest, "missing_session_id", "query parameter session_id is required")
		return
	}

	credential := bearerCredential(r)
	userID, err := s.validator.Validate(credential)
	if err != nil {
		respondError(w, http.StatusUnauthorized, "invalid_credential", "credential rejected")
		return
	}

	sess, err := s.store.GetSession(r.Context(), sessionID)
	if err != nil {
		respondStoreError(w, err)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	reg := s.hub.Register(sessionID)
	defer s.hub.Unregister(reg.ID)
	s.metrics.SessionEvents.WithLabelValues("observer_joined").Inc()
	log.Printf("httpapi: observer %s joined session %s as %s", reg.ID, sessionID, userID)

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for data := range reg.Events() {
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				s.hub.Unregister(reg.ID)
				return
			}
			s.metrics.WSMessages.WithLabelValues("outbound", "event").Inc()
		}
	}()

	conn.SetReadLimit(wsReadLimit)
	_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
		return nil
	})

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		if msgType != websocket.TextMessage {
			continue
		}

		cmd, err := protocol.ParseCommand(data)
		if err != nil {
			// Unrecognized command types are ignored, not protocol errors.
			continue
		}
		s.metrics.WSMessages.WithLabelValues("inbound", string(cmd.Type)).Inc()

		switch cmd.Type {
		case protocol.CmdStartSession:
			if _, err := s.controller.Start(r.Context(), sessionID); err != nil {
				log.Printf("httpapi: start via ws for session %s failed: %v", sessionID, err)
			}
		case protocol.CmdCompatibilityUpdate:
			matchID := cmd.MatchID
			if matchID == "" {
				matchID = sess.MatchID
			}
			go s.relayCompatibility(sessionID, matchID)
		case protocol.CmdPing:
			// control passthrough, nothing to do
		}
	}

	s.hub.Unregister(reg.ID)
	<-writerDone
	s.metrics.SessionEvents.WithLabelValues("observer_left").Inc()
}

func (s *Server) relayCompatibility(sessionID, matchID string) {
	ctx, cancel := context.WithTimeout(context.Background(), scoreTimeout)
	defer cancel()

	score, err := s.scorer.Score(ctx, matchID)
	if err != nil {
		log.Printf("httpapi: compatibility fetch for match %s failed: %v", matchID, err)
		return
	}
	s.hub.Publish(sessionID, protocol.NewCompatibilityUpdate(sessionID, score))
}

func bearerCredential(r *http.Request) string {
	if h := strings.TrimSpace(r.Header.Get("Authorization")); h != "" {
		if token, ok := strings.CutPrefix(h, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
	}
	return strings.TrimSpace(r.URL.Query().Get("token"))
}
