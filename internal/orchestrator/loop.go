// Package orchestrator drives the turn-taking loop for one active session:
// pick the next speaker, call the turn generator, persist, broadcast.
package orchestrator

import (
	"context"
	"errors"
	"log"
	"sync/atomic"
	"time"

	"github.com/lucabelli/amora/internal/generator"
	"github.com/lucabelli/amora/internal/observability"
	"github.com/lucabelli/amora/internal/policy"
	"github.com/lucabelli/amora/internal/protocol"
	"github.com/lucabelli/amora/internal/reliability"
	"github.com/lucabelli/amora/internal/store"
)

// Publisher fans an event out to every observer of a session.
type Publisher interface {
	Publish(sessionID string, evt protocol.Event)
}

// Controller is the slice of the lifecycle controller the loop calls back
// into. The loop never writes session status itself.
type Controller interface {
	Terminate(ctx context.Context, sessionID string, reason store.EndReason) (*store.Session, bool, error)
	ConfirmPause(ctx context.Context, sessionID string) error
}

// Config bounds one session's dialogue.
type Config struct {
	TurnBudget       int
	Rotation         RotationPolicy
	RetryLimit       int
	GenerateTimeout  time.Duration
	RetryBackoffBase time.Duration
	RetryBackoffCap  time.Duration
}

func (c Config) withDefaults() Config {
	if c.TurnBudget <= 0 {
		c.TurnBudget = 24
	}
	if c.RetryLimit <= 0 {
		c.RetryLimit = 2
	}
	if c.GenerateTimeout <= 0 {
		c.GenerateTimeout = 30 * time.Second
	}
	if c.RetryBackoffBase <= 0 {
		c.RetryBackoffBase = 250 * time.Millisecond
	}
	if c.RetryBackoffCap <= 0 {
		c.RetryBackoffCap = 4 * time.Second
	}
	return c
}

const (
	quotaNoticeMessage = "Our conversation service has reached its usage limit, so this session ended early."
	quotaNoticeAction  = "Start a new session later, or upgrade your plan for more conversation time."
	failedNoticeMessage = "We couldn't generate the next part of this conversation, so the session ended early."
	failedNoticeAction  = "Start a new session in a few minutes."
)

// Loop runs the dialogue for exactly one session. The lifecycle controller
// guarantees at most one Loop exists per session, which makes it the sole
// writer of that session's turns.
type Loop struct {
	sessionID string
	store     store.Store
	gen       generator.Generator
	pub       Publisher
	ctrl      Controller
	cfg       Config
	metrics   *observability.Metrics

	pause atomic.Bool
}

func NewLoop(
	sessionID string,
	st store.Store,
	gen generator.Generator,
	pub Publisher,
	ctrl Controller,
	cfg Config,
	metrics *observability.Metrics,
) *Loop {
	return &Loop{
		sessionID: sessionID,
		store:     st,
		gen:       gen,
		pub:       pub,
		ctrl:      ctrl,
		cfg:       cfg.withDefaults(),
		metrics:   metrics,
	}
}

// RequestPause signals the loop to stop at the next iteration boundary.
// An in-flight generator call is never interrupted; its turn still persists.
func (l *Loop) RequestPause() {
	l.pause.Store(true)
}

// Run iterates until the session leaves Active, the budget is spent, the
// generated content signals closure, or the provider fails fatally.
func (l *Loop) Run(ctx context.Context) {
	retries := 0

	for {
		if ctx.Err() != nil {
			return
		}
		if l.pause.Load() {
			l.confirmPause(ctx)
			return
		}

		sess, err := l.store.GetSession(ctx, l.sessionID)
		if err != nil {
			log.Printf("orchestrator: session %s read failed: %v", l.sessionID, err)
			return
		}
		if sess.Status != store.StatusActive {
			return
		}
		if sess.TurnCount >= l.cfg.TurnBudget {
			l.conclude(ctx)
			return
		}

		seq := sess.TurnCount + 1
		role := l.cfg.Rotation.NextSpeaker(seq)

		transcript, err := l.store.Transcript(ctx, l.sessionID, 1, 0)
		if err != nil {
			log.Printf("orchestrator: session %s transcript read failed: %v", l.sessionID, err)
			l.fail(ctx, store.ReasonGenerationFailed)
			return
		}

		genStart := time.Now()
		result, err := l.generate(ctx, sess, role, transcript)
		l.metrics.ObserveTurnLatency(time.Since(genStart))

		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if errors.Is(err, generator.ErrProviderExhausted) {
				// Fatal by design: no fallback utterance, no further
				// generator calls for this session.
				log.Printf("orchestrator: session %s provider exhausted: %v", l.sessionID, err)
				l.metrics.ProviderErrors.WithLabelValues("generator", "quota_exhausted").Inc()
				l.pub.Publish(l.sessionID, protocol.NewProviderQuotaExceeded(l.sessionID, quotaNoticeMessage, quotaNoticeAction))
				l.terminate(ctx, store.ReasonProviderExhausted)
				return
			}

			retries++
			code := "transient"
			if errors.Is(err, context.DeadlineExceeded) {
				code = "timeout"
			}
			l.metrics.ProviderErrors.WithLabelValues("generator", code).Inc()
			if retries > l.cfg.RetryLimit {
				log.Printf("orchestrator: session %s generation failed after %d attempts: %v", l.sessionID, retries, err)
				l.fail(ctx, store.ReasonGenerationFailed)
				return
			}
			if !l.sleep(ctx, reliability.ExponentialBackoff(retries-1, l.cfg.RetryBackoffBase, l.cfg.RetryBackoffCap)) {
				return
			}
			continue
		}
		retries = 0

		// A terminate may have landed while the generator call was in
		// flight; re-check before persisting and discard if so.
		cur, err := l.store.GetSession(ctx, l.sessionID)
		if err != nil {
			log.Printf("orchestrator: session %s re-check failed: %v", l.sessionID, err)
			return
		}
		if cur.Status.Terminal() {
			return
		}

		content, redacted := policy.RedactContactInfo(result.Content)
		if redacted {
			l.metrics.SessionEvents.WithLabelValues("turn_redacted").Inc()
		}

		turn := store.Turn{
			Seq:         seq,
			Role:        role,
			SpeakerName: sess.SpeakerName(role),
			Content:     content,
			EmotionTags: result.EmotionTags,
		}
		saved, err := l.store.AppendTurn(ctx, l.sessionID, turn)
		if err != nil {
			if errors.Is(err, store.ErrSessionNotActive) {
				// Externally moved out of Active between re-check and
				// append; the result is discarded.
				return
			}
			// Invalid sequence here means a second writer exists, which the
			// single-loop guarantee forbids. Surface it as a defect.
			log.Printf("orchestrator: DEFECT session %s append seq %d failed: %v", l.sessionID, seq, err)
			return
		}

		l.pub.Publish(l.sessionID, protocol.NewTurnAppended(l.sessionID, protocol.TurnAppended{
			Sequence:    saved.Seq,
			SpeakerRole: string(saved.Role),
			SpeakerName: saved.SpeakerName,
			Content:     saved.Content,
			EmotionTags: saved.EmotionTags,
		}))
		l.metrics.SessionEvents.WithLabelValues("turn_appended").Inc()

		if result.Concluded || saved.Seq >= l.cfg.TurnBudget {
			l.conclude(ctx)
			return
		}
		if l.pause.Load() {
			l.confirmPause(ctx)
			return
		}
	}
}

func (l *Loop) generate(ctx context.Context, sess *store.Session, role store.Role, transcript []store.Turn) (generator.Result, error) {
	lines := make([]generator.Line, 0, len(transcript))
	for _, t := range transcript {
		lines = append(lines, generator.Line{
			Role:    string(t.Role),
			Speaker: t.SpeakerName,
			Content: t.Content,
		})
	}

	genCtx, cancel := context.WithTimeout(ctx, l.cfg.GenerateTimeout)
	defer cancel()

	return l.gen.GenerateTurn(genCtx, generator.Request{
		SessionID:   l.sessionID,
		Role:        string(role),
		SpeakerName: sess.SpeakerName(role),
		Transcript:  lines,
	})
}

func (l *Loop) conclude(ctx context.Context) {
	l.terminate(ctx, store.ReasonNatural)
}

// fail ends the session after exhausted retries: same observer-facing shape
// as provider exhaustion, but recorded with its own reason.
func (l *Loop) fail(ctx context.Context, reason store.EndReason) {
	l.pub.Publish(l.sessionID, protocol.NewProviderQuotaExceeded(l.sessionID, failedNoticeMessage, failedNoticeAction))
	l.terminate(ctx, reason)
}

func (l *Loop) terminate(ctx context.Context, reason store.EndReason) {
	if _, _, err := l.ctrl.Terminate(ctx, l.sessionID, reason); err != nil {
		log.Printf("orchestrator: session %s terminate(%s) failed: %v", l.sessionID, reason, err)
	}
}

func (l *Loop) confirmPause(ctx context.Context) {
	if err := l.ctrl.ConfirmPause(ctx, l.sessionID); err != nil {
		log.Printf("orchestrator: session %s pause confirm failed: %v", l.sessionID, err)
	}
}

func (l *Loop) sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
