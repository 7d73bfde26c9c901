package generator

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Line is one prior utterance handed to the backing model as context.
type Line struct {
	Role    string `json:"role"`
	Speaker string `json:"speaker"`
	Content string `json:"content"`
}

// Request asks the backing model for the next utterance in a session.
type Request struct {
	SessionID   string `json:"session_id"`
	Role        string `json:"speaker_role"`
	SpeakerName string `json:"speaker_name"`
	Transcript  []Line `json:"transcript"`
}

// Result is one generated utterance. Concluded signals that the content
// reads as a natural close of the conversation.
type Result struct {
	Content     string   `json:"content"`
	EmotionTags []string `json:"emotion_tags"`
	Concluded   bool     `json:"concluded"`
}

// ErrProviderExhausted marks the quota/rate-limit failure mode. It is fatal
// to the session; callers must not retry or substitute fallback content.
var ErrProviderExhausted = errors.New("generation provider exhausted")

// Generator produces one turn at a time. Implementations are opaque to the
// orchestration layer.
type Generator interface {
	GenerateTurn(ctx context.Context, req Request) (Result, error)
}

// Config controls generator construction.
type Config struct {
	Mode    string
	HTTPURL string
}

func NewGenerator(cfg Config) (Generator, error) {
	mode := strings.ToLower(strings.TrimSpace(cfg.Mode))
	if mode == "" {
		mode = "auto"
	}

	switch mode {
	case "auto":
		if strings.TrimSpace(cfg.HTTPURL) != "" {
			return NewHTTPGenerator(cfg.HTTPURL), nil
		}
		return NewMockGenerator(), nil
	case "http":
		if strings.TrimSpace(cfg.HTTPURL) == "" {
			return nil, errors.New("generator HTTP url is required for http mode")
		}
		return NewHTTPGenerator(cfg.HTTPURL), nil
	case "mock":
		return NewMockGenerator(), nil
	default:
		return nil, fmt.Errorf("unsupported generator mode %q", cfg.Mode)
	}
}
