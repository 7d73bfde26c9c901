package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// InMemoryStore keeps sessions and transcripts in process memory.
// Used for development and tests when DATABASE_URL is unset.
type InMemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	turns    map[string][]Turn
	byMatch  map[string][]string
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		sessions: make(map[string]*Session),
		turns:    make(map[string][]Turn),
		byMatch:  make(map[string][]string),
	}
}

func (s *InMemoryStore) CreateSession(_ context.Context, p Participants) (*Session, error) {
	now := time.Now().UTC()
	sess := &Session{
		ID:            uuid.NewString(),
		MatchID:       p.MatchID,
		UserAID:       p.UserAID,
		UserBID:       p.UserBID,
		AvatarAName:   p.AvatarAName,
		AvatarBName:   p.AvatarBName,
		ModeratorName: p.ModeratorName,
		Status:        StatusScheduled,
		CreatedAt:     now,
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.ID] = sess
	if p.MatchID != "" {
		s.byMatch[p.MatchID] = append(s.byMatch[p.MatchID], sess.ID)
	}
	return cloneSession(sess), nil
}

func (s *InMemoryStore) GetSession(_ context.Context, sessionID string) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneSession(sess), nil
}

func (s *InMemoryStore) AppendTurn(_ context.Context, sessionID string, turn Turn) (*Turn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		return nil, ErrNotFound
	}
	if sess.Status != StatusActive {
		return nil, ErrSessionNotActive
	}
	if turn.Seq != sess.TurnCount+1 {
		return nil, ErrInvalidSequence
	}

	turn.SessionID = sessionID
	if turn.CreatedAt.IsZero() {
		turn.CreatedAt = time.Now().UTC()
	}
	s.turns[sessionID] = append(s.turns[sessionID], turn)
	sess.TurnCount = turn.Seq

	saved := turn
	return &saved, nil
}

func (s *InMemoryStore) SetStatus(_ context.Context, sessionID string, next Status, reason EndReason) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		return nil, ErrNotFound
	}
	if !CanTransition(sess.Status, next) {
		return nil, ErrIllegalTransition
	}

	now := time.Now().UTC()
	sess.Status = next
	if next == StatusActive && sess.StartedAt == nil {
		sess.StartedAt = &now
	}
	if next.Terminal() {
		sess.EndedAt = &now
		sess.EndReason = reason
	}
	return cloneSession(sess), nil
}

func (s *InMemoryStore) Transcript(_ context.Context, sessionID string, fromSeq, limit int) ([]Turn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.sessions[sessionID]; !ok {
		return nil, ErrNotFound
	}
	if fromSeq < 1 {
		fromSeq = 1
	}

	all := s.turns[sessionID]
	out := make([]Turn, 0, len(all))
	for _, t := range all {
		if t.Seq < fromSeq {
			continue
		}
		out = append(out, t)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (s *InMemoryStore) SessionsForMatch(_ context.Context, matchID string) ([]Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.byMatch[matchID]
	out := make([]Session, 0, len(ids))
	for _, id := range ids {
		if sess, ok := s.sessions[id]; ok {
			out = append(out, *cloneSession(sess))
		}
	}
	return out, nil
}

func (s *InMemoryStore) Messages(_ context.Context, sessionID string, limit, offset int) ([]Turn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.sessions[sessionID]; !ok {
		return nil, ErrNotFound
	}
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	all := s.turns[sessionID]
	if offset >= len(all) {
		return []Turn{}, nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	out := make([]Turn, end-offset)
	copy(out, all[offset:end])
	return out, nil
}

func (s *InMemoryStore) Close() error { return nil }

func cloneSession(sess *Session) *Session {
	c := *sess
	if sess.StartedAt != nil {
		t := *sess.StartedAt
		c.StartedAt = &t
	}
	if sess.EndedAt != nil {
		t := *sess.EndedAt
		c.EndedAt = &t
	}
	return &c
}
