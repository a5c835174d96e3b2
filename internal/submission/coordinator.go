// Package submission guarantees an exam attempt is submitted exactly once,
// whichever of the user, the countdown, or the server asks first.
package submission

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-portal/internal/client"
	"github.com/stemsi/exstem-portal/internal/model"
)

// Trigger identifies what asked for the submission.
type Trigger string

const (
	TriggerManual Trigger = "manual"
	TriggerTimer  Trigger = "timer"
	TriggerServer Trigger = "server"
)

// Auto reports whether the trigger is automatic and therefore retried.
func (t Trigger) Auto() bool {
	return t == TriggerTimer || t == TriggerServer
}

// Phase is the coordinator's state for the current attempt.
type Phase string

const (
	PhaseActive     Phase = "active"
	PhaseSubmitting Phase = "submitting"
	PhaseSubmitted  Phase = "submitted"
)

var (
	ErrSubmitInProgress = errors.New("submission already in progress")
	ErrAlreadySubmitted = errors.New("exam already submitted")
	ErrNotLoaded        = errors.New("no exam session loaded")
	// ErrSessionReset means the session was torn down while its submission
	// was in flight; the outcome was discarded.
	ErrSessionReset = errors.New("session reset during submission")
)

// ManualSubmitMessage is shown when automatic submission gave up.
const ManualSubmitMessage = "Pengumpulan otomatis gagal. Silakan kumpulkan ujian secara manual."

// ─── Collaborators ──────────────────────────────────────────────────

type ExamSubmitter interface {
	SubmitExam(ctx context.Context, token string) (model.SubmitResult, error)
}

// SessionStore is the store surface the coordinator reads and freezes.
type SessionStore interface {
	Token() string
	SessionID() string
	Metadata() *model.ExamMetadata
	Submitted() bool
	Submit() bool
}

// AnswerPurger drops pending answer writes of a finished session.
type AnswerPurger interface {
	Purge(sessionID string)
}

type Navigator interface {
	Navigate(route model.Route)
}

type Notifier interface {
	Notify(n model.Notification)
}

// ─── Coordinator ────────────────────────────────────────────────────

// Coordinator funnels every submit trigger through one gated path.
type Coordinator struct {
	submitter ExamSubmitter
	store     SessionStore
	purger    AnswerPurger
	nav       Navigator
	notifier  Notifier
	policy    Policy
	sleep     SleepFunc
	now       func() time.Time
	log       zerolog.Logger

	mu    sync.Mutex
	phase Phase
	// gen changes on every Reset; a run from an older generation may not
	// touch the store.
	gen       uint64
	cancelRun context.CancelFunc
}

// run is one pass through the submitting gate.
type run struct {
	gen    uint64
	ctx    context.Context
	cancel context.CancelFunc
	meta   *model.ExamMetadata
	token  string
}

// exhaustAction is what happens when every attempt failed.
type exhaustAction int

const (
	exhaustFail exhaustAction = iota
	exhaustNotify
	exhaustConclude
)

// Option customizes a Coordinator.
type Option func(*Coordinator)

func WithPolicy(p Policy) Option {
	return func(c *Coordinator) {
		if p.MaxAttempts > 0 {
			c.policy = p
		}
	}
}

// WithSleep replaces the backoff sleeper; tests use it to record waits.
func WithSleep(fn SleepFunc) Option {
	return func(c *Coordinator) { c.sleep = fn }
}

func NewCoordinator(
	submitter ExamSubmitter,
	store SessionStore,
	purger AnswerPurger,
	nav Navigator,
	notifier Notifier,
	log zerolog.Logger,
	opts ...Option,
) *Coordinator {
	c := &Coordinator{
		submitter: submitter,
		store:     store,
		purger:    purger,
		nav:       nav,
		notifier:  notifier,
		policy:    DefaultPolicy(),
		sleep:     sleepContext,
		now:       time.Now,
		log:       log.With().Str("component", "submission").Logger(),
		phase:     PhaseActive,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Phase returns the current phase.
func (c *Coordinator) Phase() Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase
}

// Reset re-arms the coordinator for a newly loaded session. A submission
// still in flight is cancelled and its outcome discarded.
func (c *Coordinator) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	if c.cancelRun != nil {
		c.cancelRun()
		c.cancelRun = nil
	}
	c.phase = PhaseActive
}

// Submit submits the exam. Manual submissions make one attempt and return the
// error for the caller to retry; automatic ones retry with backoff and, when
// exhausted, publish a manual-submit notification.
func (c *Coordinator) Submit(ctx context.Context, trigger Trigger) (model.SubmitResult, error) {
	onExhaust := exhaustFail
	if trigger.Auto() {
		onExhaust = exhaustNotify
	}
	return c.submit(ctx, trigger, onExhaust)
}

// SubmitForServer handles a terminal heartbeat. When the server already
// considers the attempt submitted or expired, a failed confirmation concludes
// the session locally, without releasing the gate in between.
func (c *Coordinator) SubmitForServer(ctx context.Context, hb model.Heartbeat) (model.SubmitResult, error) {
	onExhaust := exhaustNotify
	if hb.Status == model.HeartbeatSubmitted || hb.Status == model.HeartbeatExpired {
		onExhaust = exhaustConclude
	}
	return c.submit(ctx, TriggerServer, onExhaust)
}

// Conclude freezes the session without calling the server.
func (c *Coordinator) Conclude(ctx context.Context) error {
	r, err := c.enter(ctx)
	if err != nil {
		return err
	}
	if !c.finish(r, model.SubmitResult{}) {
		return ErrSessionReset
	}
	return nil
}

func (c *Coordinator) submit(ctx context.Context, trigger Trigger, onExhaust exhaustAction) (model.SubmitResult, error) {
	r, err := c.enter(ctx)
	if err != nil {
		return model.SubmitResult{}, err
	}
	log := c.log.With().
		Str("session_id", r.meta.SessionID).
		Str("trigger", string(trigger)).
		Logger()

	attempts := 1
	if trigger.Auto() {
		attempts = c.policy.MaxAttempts
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			wait := c.policy.Backoff(attempt - 1)
			log.Info().Int("attempt", attempt).Dur("backoff", wait).Msg("Retrying submission")
			if err := c.sleep(r.ctx, wait); err != nil {
				lastErr = err
				break
			}
		}

		res, err := c.submitter.SubmitExam(r.ctx, r.token)
		if err == nil {
			log.Info().Int("attempt", attempt).Str("submission_id", res.SubmissionID).Msg("Exam submitted")
			if !c.finish(r, res) {
				return model.SubmitResult{}, ErrSessionReset
			}
			return res, nil
		}
		if errors.Is(err, client.ErrAlreadyAttempted) {
			log.Info().Msg("Server already holds a submission, finalizing locally")
			if !c.finish(r, model.SubmitResult{}) {
				return model.SubmitResult{}, ErrSessionReset
			}
			return model.SubmitResult{SubmissionID: r.meta.SubmissionID}, nil
		}

		lastErr = err
		log.Warn().Err(err).Int("attempt", attempt).Int("max_attempts", attempts).Msg("Submission failed")
		if r.ctx.Err() != nil {
			break
		}
	}

	if onExhaust == exhaustConclude {
		log.Warn().Err(lastErr).Msg("Server closed the attempt, concluding locally")
		if !c.finish(r, model.SubmitResult{}) {
			return model.SubmitResult{}, ErrSessionReset
		}
		return model.SubmitResult{}, nil
	}

	if !c.release(r, PhaseActive) {
		log.Info().Msg("Session reset during submission, discarding outcome")
		return model.SubmitResult{}, ErrSessionReset
	}

	if onExhaust == exhaustNotify && c.notifier != nil {
		c.notifier.Notify(model.Notification{
			ID:        uuid.New().String(),
			Kind:      model.NotificationManualSubmit,
			Message:   ManualSubmitMessage,
			Action:    "submit",
			CreatedAt: c.now(),
		})
	}
	return model.SubmitResult{}, fmt.Errorf("submit exam: %w", lastErr)
}

// enter moves active → submitting for the loaded session or explains why it
// cannot.
func (c *Coordinator) enter(ctx context.Context) (*run, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.phase {
	case PhaseSubmitting:
		return nil, ErrSubmitInProgress
	case PhaseSubmitted:
		return nil, ErrAlreadySubmitted
	}
	if c.store.Submitted() {
		c.phase = PhaseSubmitted
		return nil, ErrAlreadySubmitted
	}
	meta := c.store.Metadata()
	if meta == nil {
		return nil, ErrNotLoaded
	}

	runCtx, cancel := context.WithCancel(ctx)
	c.phase = PhaseSubmitting
	c.cancelRun = cancel
	return &run{gen: c.gen, ctx: runCtx, cancel: cancel, meta: meta, token: c.store.Token()}, nil
}

// release ends r with phase p. It reports false when r was superseded by a
// Reset, in which case the phase belongs to the new session and is kept.
func (c *Coordinator) release(r *run, p Phase) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	r.cancel()
	if r.gen != c.gen {
		return false
	}
	c.phase = p
	c.cancelRun = nil
	return true
}

// finish freezes the store before anything else observes the completion. It
// does nothing and reports false when the store no longer holds r's session.
func (c *Coordinator) finish(r *run, res model.SubmitResult) bool {
	c.mu.Lock()
	current := r.gen == c.gen
	if current && c.store.SessionID() == r.meta.SessionID {
		c.store.Submit()
		c.phase = PhaseSubmitted
		c.cancelRun = nil
	} else {
		if current {
			c.phase = PhaseActive
			c.cancelRun = nil
		}
		current = false
	}
	c.mu.Unlock()
	r.cancel()

	if !current {
		c.log.Info().Str("session_id", r.meta.SessionID).Msg("Session replaced during submission, discarding outcome")
		return false
	}

	if c.purger != nil {
		c.purger.Purge(r.meta.SessionID)
	}
	submissionID := res.SubmissionID
	if submissionID == "" {
		submissionID = r.meta.SubmissionID
	}
	if c.nav != nil {
		c.nav.Navigate(model.Route{Name: model.RouteCompletion, SubmissionID: submissionID})
	}
	return true
}
