package protocol

import (
	"encoding/json"
	"testing"
	"time"
)

func TestEventEnvelopeMarshalsWithTimestamp(t *testing.T) {
	evt := NewTurnAppended("sess-1", TurnAppended{
		Sequence:    3,
		SpeakerRole: "avatar_a",
		SpeakerName: "Aria",
		Content:     "hello",
	})

	data, err := json.Marshal(evt)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	for _, field := range []string{"type", "session_id", "payload", "timestamp"} {
		if _, ok := raw[field]; !ok {
			t.Errorf("missing envelope field %q", field)
		}
	}

	var ts string
	if err := json.Unmarshal(raw["timestamp"], &ts); err != nil {
		t.Fatalf("timestamp not a string: %v", err)
	}
	if _, err := time.Parse(time.RFC3339, ts); err != nil {
		t.Errorf("timestamp %q is not RFC 3339: %v", ts, err)
	}
}

func TestTurnAppendedDefaultsEmotionTags(t *testing.T) {
	evt := NewTurnAppended("sess-1", TurnAppended{Sequence: 1, Content: "hi"})
	payload := evt.Payload.(TurnAppended)
	if payload.EmotionTags == nil {
		t.Fatal("emotion tags must marshal as [], not null")
	}
}

func TestStatusChangedOmitsEmptyReason(t *testing.T) {
	data, err := json.Marshal(NewSessionStatusChanged("sess-1", "active", ""))
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	var out struct {
		Payload map[string]any `json:"payload"`
	}
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if _, ok := out.Payload["reason"]; ok {
		t.Error("empty reason should be omitted")
	}
	if out.Payload["status"] != "active" {
		t.Errorf("status = %v, want active", out.Payload["status"])
	}
}
