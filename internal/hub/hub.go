// Package hub tracks observer connections per session and fans events out
// to them. Registration never blocks on delivery: each connection owns a
// buffered queue drained by its transport writer.
package hub

import (
	"encoding/json"
	"log"
	"sync"

	"github.com/google/uuid"

	"github.com/lucabelli/amora/internal/observability"
	"github.com/lucabelli/amora/internal/protocol"
)

// Connection is one registered observer of a session.
type Connection struct {
	ID        string
	SessionID string

	mu     sync.Mutex
	send   chan []byte
	closed bool
}

// Events exposes the FIFO delivery queue for the transport writer.
func (c *Connection) Events() <-chan []byte {
	return c.send
}

// enqueue reports false when the connection is closed or its queue is full.
func (c *Connection) enqueue(data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

func (c *Connection) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// Hub is the connection registry and broadcast fan-out for live sessions.
type Hub struct {
	mu       sync.RWMutex
	conns    map[string]*Connection
	sessions map[string]map[string]*Connection

	sendBuffer int
	metrics    *observability.Metrics
}

func New(sendBuffer int, metrics *observability.Metrics) *Hub {
	if sendBuffer <= 0 {
		sendBuffer = 64
	}
	return &Hub{
		conns:      make(map[string]*Connection),
		sessions:   make(map[string]map[string]*Connection),
		sendBuffer: sendBuffer,
		metrics:    metrics,
	}
}

// Register creates a connection for the session and returns it. The
// registration ID doubles as the connection ID.
func (h *Hub) Register(sessionID string) *Connection {
	conn := &Connection{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		send:      make(chan []byte, h.sendBuffer),
	}

	h.mu.Lock()
	h.conns[conn.ID] = conn
	if h.sessions[sessionID] == nil {
		h.sessions[sessionID] = make(map[string]*Connection)
	}
	h.sessions[sessionID][conn.ID] = conn
	h.mu.Unlock()

	h.metrics.ObserverConnections.Inc()
	return conn
}

// Unregister removes a connection and closes its queue. Safe to call more
// than once and after the transport already dropped.
func (h *Hub) Unregister(registrationID string) {
	h.mu.Lock()
	conn, ok := h.conns[registrationID]
	if ok {
		delete(h.conns, registrationID)
		if set := h.sessions[conn.SessionID]; set != nil {
			delete(set, registrationID)
			if len(set) == 0 {
				delete(h.sessions, conn.SessionID)
			}
		}
	}
	h.mu.Unlock()

	if ok {
		conn.close()
		h.metrics.ObserverConnections.Dec()
	}
}

// ConnectionsFor returns a snapshot of the session's live connections.
// Fan-out iterates the snapshot, so joins and leaves during delivery do not
// affect it.
func (h *Hub) ConnectionsFor(sessionID string) []*Connection {
	h.mu.RLock()
	defer h.mu.RUnlock()
	set := h.sessions[sessionID]
	out := make([]*Connection, 0, len(set))
	for _, conn := range set {
		out = append(out, conn)
	}
	return out
}

// Publish delivers the event to every connection registered for the session
// at call time. A connection that cannot accept the event is unregistered;
// the remaining connections still receive it.
func (h *Hub) Publish(sessionID string, evt protocol.Event) {
	data, err := json.Marshal(evt)
	if err != nil {
		log.Printf("hub: drop unmarshalable %s event for session %s: %v", evt.Type, sessionID, err)
		return
	}

	for _, conn := range h.ConnectionsFor(sessionID) {
		if conn.enqueue(data) {
			h.metrics.BroadcastDeliveries.WithLabelValues(string(evt.Type), "delivered").Inc()
			continue
		}
		h.metrics.BroadcastDeliveries.WithLabelValues(string(evt.Type), "dropped").Inc()
		log.Printf("hub: connection %s stalled, unregistering", conn.ID)
		h.Unregister(conn.ID)
	}
}
