package store

import (
	"context"
	"errors"
	"time"
)

// Status is the lifecycle state of a conversation session.
type Status string

const (
	StatusScheduled  Status = "scheduled"
	StatusActive     Status = "active"
	StatusPaused     Status = "paused"
	StatusCompleted  Status = "completed"
	StatusTerminated Status = "terminated"
)

// EndReason records why a session reached a terminal status.
type EndReason string

const (
	ReasonNatural           EndReason = "natural"
	ReasonProviderExhausted EndReason = "provider_exhausted"
	ReasonGenerationFailed  EndReason = "generation_failed"
	ReasonManual            EndReason = "manual"
)

// Role identifies which agent produced a turn.
type Role string

const (
	RoleModerator Role = "moderator"
	RoleAvatarA   Role = "avatar_a"
	RoleAvatarB   Role = "avatar_b"
)

var (
	ErrNotFound          = errors.New("session not found")
	ErrInvalidSequence   = errors.New("turn sequence out of order")
	ErrSessionNotActive  = errors.New("session is not active")
	ErrIllegalTransition = errors.New("illegal status transition")
)

// Participants names the two avatars, the moderator, and the owning users.
type Participants struct {
	MatchID       string `json:"match_id"`
	UserAID       string `json:"user_a_id"`
	UserBID       string `json:"user_b_id"`
	AvatarAName   string `json:"avatar_a_name"`
	AvatarBName   string `json:"avatar_b_name"`
	ModeratorName string `json:"moderator_name"`
}

// Session is one bounded exchange between two avatars mediated by a moderator.
type Session struct {
	ID            string     `json:"session_id"`
	MatchID       string     `json:"match_id"`
	UserAID       string     `json:"user_a_id"`
	UserBID       string     `json:"user_b_id"`
	AvatarAName   string     `json:"avatar_a_name"`
	AvatarBName   string     `json:"avatar_b_name"`
	ModeratorName string     `json:"moderator_name"`
	Status        Status     `json:"status"`
	TurnCount     int        `json:"turn_count"`
	EndReason     EndReason  `json:"end_reason,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	StartedAt     *time.Time `json:"started_at,omitempty"`
	EndedAt       *time.Time `json:"ended_at,omitempty"`
}

// Turn is one utterance in a session's append-only transcript.
type Turn struct {
	SessionID   string    `json:"session_id"`
	Seq         int       `json:"sequence"`
	Role        Role      `json:"speaker_role"`
	SpeakerName string    `json:"speaker_name"`
	Content     string    `json:"content"`
	EmotionTags []string  `json:"emotion_tags"`
	CreatedAt   time.Time `json:"created_at"`
}

// Terminal reports whether no further transitions may leave the status.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusTerminated
}

var transitions = map[Status][]Status{
	StatusScheduled: {StatusActive, StatusTerminated},
	StatusActive:    {StatusPaused, StatusCompleted, StatusTerminated},
	StatusPaused:    {StatusActive, StatusTerminated},
}

// CanTransition reports whether the edge from -> to is in the lifecycle graph.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// SpeakerName resolves the display name for a role within this session.
func (s *Session) SpeakerName(role Role) string {
	switch role {
	case RoleAvatarA:
		return s.AvatarAName
	case RoleAvatarB:
		return s.AvatarBName
	default:
		return s.ModeratorName
	}
}

// Store persists sessions and their append-only transcripts.
//
// AppendTurn rejects out-of-order sequence numbers with ErrInvalidSequence
// and writes against non-active sessions with ErrSessionNotActive.
// SetStatus rejects edges outside the lifecycle graph with
// ErrIllegalTransition; it stamps StartedAt on the first activation and
// EndedAt exactly when a terminal status is reached.
type Store interface {
	CreateSession(ctx context.Context, p Participants) (*Session, error)
	GetSession(ctx context.Context, sessionID string) (*Session, error)
	AppendTurn(ctx context.Context, sessionID string, turn Turn) (*Turn, error)
	SetStatus(ctx context.Context, sessionID string, next Status, reason EndReason) (*Session, error)

	// Transcript pages by sequence number so repeated reads stay correct
	// under concurrent appends. fromSeq is inclusive; limit <= 0 means all.
	Transcript(ctx context.Context, sessionID string, fromSeq, limit int) ([]Turn, error)

	SessionsForMatch(ctx context.Context, matchID string) ([]Session, error)
	Messages(ctx context.Context, sessionID string, limit, offset int) ([]Turn, error)

	Close() error
}
