package httpapi_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lucabelli/amora/internal/auth"
	"github.com/lucabelli/amora/internal/config"
	"github.com/lucabelli/amora/internal/generator"
	"github.com/lucabelli/amora/internal/httpapi"
	"github.com/lucabelli/amora/internal/hub"
	"github.com/lucabelli/amora/internal/lifecycle"
	"github.com/lucabelli/amora/internal/matching"
	"github.com/lucabelli/amora/internal/observability"
	"github.com/lucabelli/amora/internal/orchestrator"
	"github.com/lucabelli/amora/internal/store"
)

var metricsSeq atomic.Int64

func newTestMetrics() *observability.Metrics {
	return observability.NewMetrics(fmt.Sprintf("httpapi_test_%d", metricsSeq.Add(1)))
}

type testEnv struct {
	server *httptest.Server
	store  *store.InMemoryStore
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	st := store.NewInMemoryStore()
	metrics := newTestMetrics()
	connections := hub.New(16, metrics)

	controller := lifecycle.New(st, generator.NewMockGenerator(), connections, orchestrator.Config{
		TurnBudget:       2,
		RetryBackoffBase: time.Millisecond,
		RetryBackoffCap:  2 * time.Millisecond,
	}, metrics)

	api := httpapi.New(
		config.Config{},
		st,
		controller,
		connections,
		auth.NewStaticValidator("dev:anonymous"),
		matching.NewMockScorer(),
		metrics,
	)

	ts := httptest.NewServer(api.Router())
	t.Cleanup(ts.Close)
	return &testEnv{server: ts, store: st}
}

func (e *testEnv) post(t *testing.T, path string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	res, err := http.Post(e.server.URL+path, "application/json", &buf)
	require.NoError(t, err)
	return res
}

func (e *testEnv) get(t *testing.T, path string) *http.Response {
	t.Helper()
	res, err := http.Get(e.server.URL + path)
	require.NoError(t, err)
	return res
}

func decodeBody[T any](t *testing.T, res *http.Response) T {
	t.Helper()
	defer res.Body.Close()
	var out T
	require.NoError(t, json.NewDecoder(res.Body).Decode(&out))
	return out
}

func (e *testEnv) createSession(t *testing.T) store.Session {
	t.Helper()
	res := e.post(t, "/v1/sessions", store.Participants{
		MatchID: "match-1", UserAID: "user-a", UserBID: "user-b",
		AvatarAName: "Aria", AvatarBName: "Ben", ModeratorName: "Mo",
	})
	require.Equal(t, http.StatusCreated, res.StatusCode)
	return decodeBody[store.Session](t, res)
}

func TestHealthEndpoints(t *testing.T) {
	env := newTestEnv(t)

	for _, path := range []string{"/healthz", "/readyz"} {
		res := env.get(t, path)
		assert.Equal(t, http.StatusOK, res.StatusCode, path)
		res.Body.Close()
	}
}

func TestCreateSessionValidation(t *testing.T) {
	env := newTestEnv(t)

	res := env.post(t, "/v1/sessions", map[string]string{"match_id": "match-1"})
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
	res.Body.Close()

	res, err := http.Post(env.server.URL+"/v1/sessions", "application/json", strings.NewReader("{not json"))
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
	res.Body.Close()
}

func TestCreateSessionAppliesNameDefaults(t *testing.T) {
	env := newTestEnv(t)

	res := env.post(t, "/v1/sessions", store.Participants{
		MatchID: "match-1", UserAID: "user-a", UserBID: "user-b",
	})
	require.Equal(t, http.StatusCreated, res.StatusCode)
	sess := decodeBody[store.Session](t, res)

	assert.Equal(t, "Avatar A", sess.AvatarAName)
	assert.Equal(t, "Avatar B", sess.AvatarBName)
	assert.Equal(t, "Moderator", sess.ModeratorName)
	assert.Equal(t, store.StatusScheduled, sess.Status)
}

func TestGetSessionNotFound(t *testing.T) {
	env := newTestEnv(t)

	res := env.get(t, "/v1/sessions/does-not-exist")
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
	res.Body.Close()
}

func TestSessionLifecycleOverREST(t *testing.T) {
	env := newTestEnv(t)
	sess := env.createSession(t)

	res := env.post(t, "/v1/sessions/"+sess.ID+"/start", nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	res.Body.Close()

	require.Eventually(t, func() bool {
		res, err := http.Get(env.server.URL + "/v1/sessions/" + sess.ID)
		if err != nil {
			return false
		}
		defer res.Body.Close()
		var got store.Session
		if err := json.NewDecoder(res.Body).Decode(&got); err != nil {
			return false
		}
		return got.Status == store.StatusCompleted
	}, 5*time.Second, 20*time.Millisecond, "session should run its two-turn budget to completion")

	res = env.get(t, "/v1/sessions/"+sess.ID+"/messages")
	require.Equal(t, http.StatusOK, res.StatusCode)
	page := decodeBody[struct {
		Messages []store.Turn `json:"messages"`
	}](t, res)
	require.Len(t, page.Messages, 2)
	assert.Equal(t, 1, page.Messages[0].Seq)
	assert.Equal(t, store.RoleModerator, page.Messages[0].Role)
	assert.Equal(t, 2, page.Messages[1].Seq)

	// Terminate after completion is a safe no-op.
	res = env.post(t, "/v1/sessions/"+sess.ID+"/terminate", nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	final := decodeBody[store.Session](t, res)
	assert.Equal(t, store.StatusCompleted, final.Status)
	assert.Equal(t, store.ReasonNatural, final.EndReason)
}

func TestStartConflictsOnTerminalSession(t *testing.T) {
	env := newTestEnv(t)
	sess := env.createSession(t)

	res := env.post(t, "/v1/sessions/"+sess.ID+"/terminate", nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	res.Body.Close()

	res = env.post(t, "/v1/sessions/"+sess.ID+"/start", nil)
	assert.Equal(t, http.StatusConflict, res.StatusCode)
	res.Body.Close()
}

func TestPauseUnknownSessionReturnsNotFound(t *testing.T) {
	env := newTestEnv(t)

	res := env.post(t, "/v1/sessions/nope/pause", nil)
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
	res.Body.Close()
}

func TestSessionsForMatch(t *testing.T) {
	env := newTestEnv(t)
	sess := env.createSession(t)

	res := env.get(t, "/v1/matches/match-1/sessions")
	require.Equal(t, http.StatusOK, res.StatusCode)
	out := decodeBody[struct {
		Sessions []store.Session `json:"sessions"`
	}](t, res)
	require.Len(t, out.Sessions, 1)
	assert.Equal(t, sess.ID, out.Sessions[0].ID)
}
