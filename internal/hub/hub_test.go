package hub

import (
	"encoding/json"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lucabelli/amora/internal/observability"
	"github.com/lucabelli/amora/internal/protocol"
)

var metricsSeq atomic.Int64

func newTestMetrics() *observability.Metrics {
	return observability.NewMetrics(fmt.Sprintf("hub_test_%d", metricsSeq.Add(1)))
}

func receive(t *testing.T, conn *Connection) protocol.Event {
	t.Helper()
	select {
	case data, ok := <-conn.Events():
		require.True(t, ok, "connection queue closed unexpectedly")
		var evt protocol.Event
		require.NoError(t, json.Unmarshal(data, &evt))
		return evt
	case <-time.After(time.Second):
		t.Fatal("no event delivered")
		return protocol.Event{}
	}
}

func TestRegisterTracksConnectionsPerSession(t *testing.T) {
	h := New(8, newTestMetrics())

	a := h.Register("session-1")
	b := h.Register("session-1")
	c := h.Register("session-2")

	assert.NotEqual(t, a.ID, b.ID)
	assert.Len(t, h.ConnectionsFor("session-1"), 2)
	assert.Len(t, h.ConnectionsFor("session-2"), 1)
	assert.Empty(t, h.ConnectionsFor("session-3"))
	_ = c
}

func TestUnregisterIsIdempotent(t *testing.T) {
	h := New(8, newTestMetrics())
	conn := h.Register("session-1")

	h.Unregister(conn.ID)
	h.Unregister(conn.ID)
	h.Unregister("never-registered")

	assert.Empty(t, h.ConnectionsFor("session-1"))
	_, ok := <-conn.Events()
	assert.False(t, ok, "queue closes on unregister")
}

func TestPublishDeliversInOrder(t *testing.T) {
	h := New(8, newTestMetrics())
	conn := h.Register("session-1")

	h.Publish("session-1", protocol.NewSessionStatusChanged("session-1", "active", ""))
	for seq := 1; seq <= 3; seq++ {
		h.Publish("session-1", protocol.NewTurnAppended("session-1", protocol.TurnAppended{Sequence: seq}))
	}

	evt := receive(t, conn)
	assert.Equal(t, protocol.TypeSessionStatusChanged, evt.Type)
	assert.Equal(t, "session-1", evt.SessionID)
	for seq := 1; seq <= 3; seq++ {
		evt := receive(t, conn)
		require.Equal(t, protocol.TypeTurnAppended, evt.Type)
		payload := evt.Payload.(map[string]any)
		assert.Equal(t, float64(seq), payload["sequence"])
	}
}

func TestTwoObserversSeeIdenticalOrder(t *testing.T) {
	h := New(8, newTestMetrics())
	first := h.Register("session-1")
	second := h.Register("session-1")

	h.Publish("session-1", protocol.NewTurnAppended("session-1", protocol.TurnAppended{Sequence: 1}))
	h.Publish("session-1", protocol.NewProviderQuotaExceeded("session-1", "limit reached", "try later"))
	h.Publish("session-1", protocol.NewSessionStatusChanged("session-1", "terminated", "provider_exhausted"))

	want := []protocol.EventType{
		protocol.TypeTurnAppended,
		protocol.TypeProviderQuotaExceeded,
		protocol.TypeSessionStatusChanged,
	}
	for _, conn := range []*Connection{first, second} {
		for _, wantType := range want {
			assert.Equal(t, wantType, receive(t, conn).Type)
		}
	}
}

func TestPublishSkipsOtherSessions(t *testing.T) {
	h := New(8, newTestMetrics())
	conn := h.Register("session-2")

	h.Publish("session-1", protocol.NewTurnAppended("session-1", protocol.TurnAppended{Sequence: 1}))

	select {
	case <-conn.Events():
		t.Fatal("received an event for a different session")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestStalledConnectionIsIsolated(t *testing.T) {
	h := New(1, newTestMetrics())
	stalled := h.Register("session-1")
	healthy := h.Register("session-1")

	h.Publish("session-1", protocol.NewTurnAppended("session-1", protocol.TurnAppended{Sequence: 1}))
	assert.Equal(t, protocol.TypeTurnAppended, receive(t, healthy).Type)

	// stalled never drains; its single-slot queue is now full, so the next
	// publish drops it while the healthy observer still gets the event.
	h.Publish("session-1", protocol.NewTurnAppended("session-1", protocol.TurnAppended{Sequence: 2}))

	evt := receive(t, healthy)
	assert.Equal(t, float64(2), evt.Payload.(map[string]any)["sequence"])

	remaining := h.ConnectionsFor("session-1")
	require.Len(t, remaining, 1)
	assert.Equal(t, healthy.ID, remaining[0].ID)

	// The stalled connection keeps its buffered event, then sees closure.
	first := receive(t, stalled)
	assert.Equal(t, float64(1), first.Payload.(map[string]any)["sequence"])
	_, ok := <-stalled.Events()
	assert.False(t, ok)
}

func TestLateJoinerGetsOnlySubsequentEvents(t *testing.T) {
	h := New(8, newTestMetrics())
	early := h.Register("session-1")

	h.Publish("session-1", protocol.NewTurnAppended("session-1", protocol.TurnAppended{Sequence: 1}))

	late := h.Register("session-1")
	h.Publish("session-1", protocol.NewTurnAppended("session-1", protocol.TurnAppended{Sequence: 2}))

	assert.Equal(t, float64(1), receive(t, early).Payload.(map[string]any)["sequence"])
	assert.Equal(t, float64(2), receive(t, early).Payload.(map[string]any)["sequence"])
	assert.Equal(t, float64(2), receive(t, late).Payload.(map[string]any)["sequence"])

	select {
	case <-late.Events():
		t.Fatal("late joiner received a replayed event")
	case <-time.After(50 * time.Millisecond):
	}
}
