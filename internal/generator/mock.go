package generator

import (
	"context"
	"fmt"
)

// MockGenerator produces deterministic local utterances when no generation
// service is configured.
type MockGenerator struct{}

func NewMockGenerator() *MockGenerator { return &MockGenerator{} }

var mockOpeners = map[string]string{
	"moderator": "Welcome, both of you. Why don't we start with what drew you to each other's profiles?",
	"avatar_a":  "I noticed we both spend our weekends outdoors. What's your favorite trail?",
	"avatar_b":  "That caught my eye too. I'm curious what a perfect slow Sunday looks like for you.",
}

var mockTags = map[string][]string{
	"moderator": {"curious"},
	"avatar_a":  {"warm", "playful"},
	"avatar_b":  {"warm"},
}

func (g *MockGenerator) GenerateTurn(ctx context.Context, req Request) (Result, error) {
	select {
	case <-ctx.Done():
		return Result{}, ctx.Err()
	default:
	}

	content := mockOpeners[req.Role]
	if content == "" {
		content = "Tell me more about that."
	}
	if len(req.Transcript) > 0 {
		last := req.Transcript[len(req.Transcript)-1]
		content = fmt.Sprintf("%s said something I'd love to build on. %s", last.Speaker, content)
	}

	return Result{
		Content:     content,
		EmotionTags: append([]string(nil), mockTags[req.Role]...),
	}, nil
}
