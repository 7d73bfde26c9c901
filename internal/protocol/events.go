package protocol

import "time"

// EventType identifies outbound broadcast event variants.
type EventType string

const (
	TypeTurnAppended          EventType = "turn_appended"
	TypeSessionStatusChanged  EventType = "session_status_changed"
	TypeProviderQuotaExceeded EventType = "provider_quota_exceeded"
	TypeCompatibilityUpdate   EventType = "compatibility_update"
)

// Event is the envelope delivered to observers, one JSON object per event.
// Timestamp marshals as RFC 3339 (ISO-8601).
type Event struct {
	Type      EventType `json:"type"`
	SessionID string    `json:"session_id"`
	Payload   any       `json:"payload"`
	Timestamp time.Time `json:"timestamp"`
}

type TurnAppended struct {
	Sequence    int      `json:"sequence"`
	SpeakerRole string   `json:"speaker_role"`
	SpeakerName string   `json:"speaker_name"`
	Content     string   `json:"content"`
	EmotionTags []string `json:"emotion_tags"`
}

type SessionStatusChanged struct {
	Status string `json:"status"`
	Reason string `json:"reason,omitempty"`
}

type ProviderQuotaExceeded struct {
	Message         string `json:"message"`
	SuggestedAction string `json:"suggested_action"`
}

type CompatibilityUpdate struct {
	Score float64 `json:"score"`
}

func newEvent(t EventType, sessionID string, payload any) Event {
	return Event{
		Type:      t,
		SessionID: sessionID,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
	}
}

func NewTurnAppended(sessionID string, p TurnAppended) Event {
	if p.EmotionTags == nil {
		p.EmotionTags = []string{}
	}
	return newEvent(TypeTurnAppended, sessionID, p)
}

func NewSessionStatusChanged(sessionID, status, reason string) Event {
	return newEvent(TypeSessionStatusChanged, sessionID, SessionStatusChanged{Status: status, Reason: reason})
}

func NewProviderQuotaExceeded(sessionID, message, suggestedAction string) Event {
	return newEvent(TypeProviderQuotaExceeded, sessionID, ProviderQuotaExceeded{Message: message, SuggestedAction: suggestedAction})
}

func NewCompatibilityUpdate(sessionID string, score float64) Event {
	return newEvent(TypeCompatibilityUpdate, sessionID, CompatibilityUpdate{Score: score})
}
