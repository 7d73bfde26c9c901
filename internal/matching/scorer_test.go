package matching

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHTTPScorerFetchesScore(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/matches/match-7/score" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Write([]byte(`{"score":0.82}`))
	}))
	defer srv.Close()

	score, err := NewHTTPScorer(srv.URL).Score(context.Background(), "match-7")
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	if score != 0.82 {
		t.Errorf("score = %v, want 0.82", score)
	}
}

func TestHTTPScorerSurfacesServiceErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "unknown match", http.StatusNotFound)
	}))
	defer srv.Close()

	if _, err := NewHTTPScorer(srv.URL).Score(context.Background(), "missing"); err == nil {
		t.Fatal("expected error")
	}
}

func TestMockScorerIsStableAndBounded(t *testing.T) {
	s := NewMockScorer()

	first, err := s.Score(context.Background(), "match-1")
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	second, _ := s.Score(context.Background(), "match-1")
	if first != second {
		t.Error("same match must yield same score")
	}
	if first < 0.5 || first >= 1.0 {
		t.Errorf("score %v outside [0.5, 1.0)", first)
	}

	other, _ := s.Score(context.Background(), "match-2")
	if other < 0.5 || other >= 1.0 {
		t.Errorf("score %v outside [0.5, 1.0)", other)
	}
}

func TestNewScorerSelection(t *testing.T) {
	if _, ok := NewScorer("").(*MockScorer); !ok {
		t.Error("empty base URL must select the mock scorer")
	}
	if _, ok := NewScorer("http://scores.internal").(*HTTPScorer); !ok {
		t.Error("base URL must select the HTTP scorer")
	}
}
