// Package lifecycle owns session status transitions and guarantees at most
// one turn-taking loop runs per session.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/lucabelli/amora/internal/generator"
	"github.com/lucabelli/amora/internal/observability"
	"github.com/lucabelli/amora/internal/orchestrator"
	"github.com/lucabelli/amora/internal/protocol"
	"github.com/lucabelli/amora/internal/store"
)

// Handle identifies one running loop. Duplicate Start calls for the same
// session receive the same handle.
type Handle struct {
	SessionID string

	loop   *orchestrator.Loop
	cancel context.CancelFunc
	done   chan struct{}
}

// Done closes when the loop has fully exited.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Controller is the only writer of session status. It tracks running loops
// in a registry checked-and-set atomically on Start.
type Controller struct {
	store   store.Store
	gen     generator.Generator
	pub     orchestrator.Publisher
	cfg     orchestrator.Config
	metrics *observability.Metrics

	mu      sync.Mutex
	running map[string]*Handle
}

func New(
	st store.Store,
	gen generator.Generator,
	pub orchestrator.Publisher,
	cfg orchestrator.Config,
	metrics *observability.Metrics,
) *Controller {
	return &Controller{
		store:   st,
		gen:     gen,
		pub:     pub,
		cfg:     cfg,
		metrics: metrics,
		running: make(map[string]*Handle),
	}
}

// Start activates the session and spawns its loop. Valid from Scheduled or
// Paused. If a loop is already running for the session, Start is a no-op
// that returns the existing handle: duplicate loops would double-append
// turns, so the registry entry is the gate.
func (c *Controller) Start(ctx context.Context, sessionID string) (*Handle, error) {
	c.mu.Lock()
	if h, ok := c.running[sessionID]; ok {
		c.mu.Unlock()
		return h, nil
	}

	sess, err := c.store.SetStatus(ctx, sessionID, store.StatusActive, "")
	if err != nil {
		c.mu.Unlock()
		return nil, fmt.Errorf("start session %s: %w", sessionID, err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	h := &Handle{
		SessionID: sessionID,
		loop:      orchestrator.NewLoop(sessionID, c.store, c.gen, c.pub, c, c.cfg, c.metrics),
		cancel:    cancel,
		done:      make(chan struct{}),
	}
	c.running[sessionID] = h
	c.mu.Unlock()

	c.metrics.ActiveLoops.Inc()
	c.metrics.SessionEvents.WithLabelValues("started").Inc()
	c.pub.Publish(sessionID, protocol.NewSessionStatusChanged(sessionID, string(sess.Status), ""))

	go func() {
		defer func() {
			c.mu.Lock()
			if c.running[sessionID] == h {
				delete(c.running, sessionID)
			}
			c.mu.Unlock()
			c.metrics.ActiveLoops.Dec()
			close(h.done)
		}()
		h.loop.Run(runCtx)
	}()

	return h, nil
}

// Resume restarts a paused session. Same single-loop guarantee as Start.
func (c *Controller) Resume(ctx context.Context, sessionID string) (*Handle, error) {
	return c.Start(ctx, sessionID)
}

// Pause asks the running loop to stop after its current in-flight turn
// completes; the status transition happens when the loop confirms. With no
// loop running the transition is applied directly.
func (c *Controller) Pause(ctx context.Context, sessionID string) error {
	c.mu.Lock()
	h := c.running[sessionID]
	c.mu.Unlock()

	if h != nil {
		h.loop.RequestPause()
		return nil
	}

	sess, err := c.store.SetStatus(ctx, sessionID, store.StatusPaused, "")
	if err != nil {
		return fmt.Errorf("pause session %s: %w", sessionID, err)
	}
	c.metrics.SessionEvents.WithLabelValues("paused").Inc()
	c.pub.Publish(sessionID, protocol.NewSessionStatusChanged(sessionID, string(sess.Status), ""))
	return nil
}

// ConfirmPause is called by the loop once it reaches a safe boundary.
func (c *Controller) ConfirmPause(ctx context.Context, sessionID string) error {
	sess, err := c.store.SetStatus(ctx, sessionID, store.StatusPaused, "")
	if errors.Is(err, store.ErrIllegalTransition) {
		// A terminate won the race; nothing left to pause.
		return nil
	}
	if err != nil {
		return fmt.Errorf("confirm pause %s: %w", sessionID, err)
	}
	c.metrics.SessionEvents.WithLabelValues("paused").Inc()
	c.pub.Publish(sessionID, protocol.NewSessionStatusChanged(sessionID, string(sess.Status), ""))
	return nil
}

// Terminate moves the session to its terminal status and publishes exactly
// one status-changed event per actual transition. Reason natural completes
// the session; everything else terminates it. Calling it on an already
// terminal session is a safe no-op (changed=false).
func (c *Controller) Terminate(ctx context.Context, sessionID string, reason store.EndReason) (*store.Session, bool, error) {
	cur, err := c.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, false, err
	}
	if cur.Status.Terminal() {
		return cur, false, nil
	}

	target := store.StatusTerminated
	if reason == store.ReasonNatural {
		target = store.StatusCompleted
	}

	sess, err := c.store.SetStatus(ctx, sessionID, target, reason)
	if errors.Is(err, store.ErrIllegalTransition) {
		// Lost a race against another terminate; re-read and report no-op.
		cur, getErr := c.store.GetSession(ctx, sessionID)
		if getErr == nil && cur.Status.Terminal() {
			return cur, false, nil
		}
		return nil, false, fmt.Errorf("terminate session %s: %w", sessionID, err)
	}
	if err != nil {
		return nil, false, fmt.Errorf("terminate session %s: %w", sessionID, err)
	}

	c.metrics.SessionEvents.WithLabelValues("ended_" + string(reason)).Inc()
	c.pub.Publish(sessionID, protocol.NewSessionStatusChanged(sessionID, string(sess.Status), string(reason)))
	return sess, true, nil
}

// Running reports whether a loop currently exists for the session.
func (c *Controller) Running(sessionID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.running[sessionID]
	return ok
}

// Shutdown cancels every running loop and waits for them to exit or for the
// context to expire. Sessions stay Active and can be resumed on restart.
func (c *Controller) Shutdown(ctx context.Context) {
	c.mu.Lock()
	handles := make([]*Handle, 0, len(c.running))
	for _, h := range c.running {
		handles = append(handles, h)
	}
	c.mu.Unlock()

	for _, h := range handles {
		h.cancel()
	}
	for _, h := range handles {
		select {
		case <-h.done:
		case <-ctx.Done():
			log.Printf("lifecycle: shutdown timed out waiting for session %s", h.SessionID)
			return
		}
	}
}
