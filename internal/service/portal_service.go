package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-portal/internal/bootstrap"
	"github.com/stemsi/exstem-portal/internal/engine"
	"github.com/stemsi/exstem-portal/internal/model"
	"github.com/stemsi/exstem-portal/internal/session"
	"github.com/stemsi/exstem-portal/internal/submission"
	"github.com/stemsi/exstem-portal/internal/worker"
)

var (
	ErrNotActive            = errors.New("exam is not in progress")
	ErrQuestionNotFound     = errors.New("question not found")
	ErrOptionOutOfRange     = errors.New("option index out of range")
	ErrInvalidRoute         = errors.New("action not allowed on the current view")
	ErrNotificationNotFound = errors.New("notification not found")
)

// RemoteExam is everything the portal needs from the exam server.
type RemoteExam interface {
	bootstrap.SessionInitializer
	engine.HeartbeatClient
	submission.ExamSubmitter
}

// Options tunes the engines and the submission policy.
type Options struct {
	HeartbeatInterval time.Duration
	DriftTolerance    int
	Policy            submission.Policy

	// Tickers and Sleep are replaced in tests.
	CountdownTicker engine.TickerFactory
	HeartbeatTicker engine.TickerFactory
	Sleep           submission.SleepFunc
}

// View is the portal state returned to the UI.
type View struct {
	Route           model.Route          `json:"route"`
	Phase           submission.Phase     `json:"phase"`
	Metadata        *model.ExamMetadata  `json:"metadata,omitempty"`
	Questions       []model.Question     `json:"questions"`
	CurrentQuestion int                  `json:"current_question"`
	Answers         model.AnswerMap      `json:"answers"`
	Marked          []string             `json:"marked_questions"`
	TimeRemaining   int                  `json:"time_remaining"`
	Submitted       bool                 `json:"submitted"`
	Notifications   []model.Notification `json:"notifications"`
}

// PortalService owns one tab's exam session: the store, both engines, the
// submission coordinator, the current route, and pending notifications.
type PortalService struct {
	store       *session.Store
	countdown   *engine.Countdown
	heartbeat   *engine.Heartbeat
	coordinator *submission.Coordinator
	boot        *bootstrap.Bootstrapper
	autosave    *worker.AutosaveWorker
	events      *broadcaster
	log         zerolog.Logger

	ctx context.Context

	mu            sync.Mutex
	route         model.Route
	notifications []model.Notification

	reconcileMu sync.Mutex
}

// NewPortalService wires the session components together.
func NewPortalService(
	store *session.Store,
	remote RemoteExam,
	autosave *worker.AutosaveWorker,
	opts Options,
	log zerolog.Logger,
) *PortalService {
	s := &PortalService{
		store:    store,
		autosave: autosave,
		events:   newBroadcaster(),
		log:      log.With().Str("component", "portal_service").Logger(),
		ctx:      context.Background(),
	}

	var countdownOpts []engine.CountdownOption
	if opts.CountdownTicker != nil {
		countdownOpts = append(countdownOpts, engine.WithCountdownTicker(opts.CountdownTicker))
	}
	s.countdown = engine.NewCountdown(store, s.onExpire, log, countdownOpts...)

	heartbeatOpts := []engine.HeartbeatOption{engine.WithHeartbeatInterval(opts.HeartbeatInterval)}
	if opts.DriftTolerance > 0 {
		heartbeatOpts = append(heartbeatOpts, engine.WithDriftTolerance(opts.DriftTolerance))
	}
	if opts.HeartbeatTicker != nil {
		heartbeatOpts = append(heartbeatOpts, engine.WithHeartbeatTicker(opts.HeartbeatTicker))
	}
	s.heartbeat = engine.NewHeartbeat(remote, store, s.onTerminal, log, heartbeatOpts...)

	coordOpts := []submission.Option{submission.WithPolicy(opts.Policy)}
	if opts.Sleep != nil {
		coordOpts = append(coordOpts, submission.WithSleep(opts.Sleep))
	}
	var purger submission.AnswerPurger
	if autosave != nil {
		purger = autosave
	}
	s.coordinator = submission.NewCoordinator(remote, store, purger, s, s, log, coordOpts...)

	s.boot = bootstrap.New(store, remote, s, log)
	return s
}

// Start rehydrates the store and keeps the engines reconciled with every
// store change until ctx is done. It returns once rehydration finished.
func (s *PortalService) Start(ctx context.Context) {
	s.ctx = ctx

	changes, cancel := s.store.Subscribe()
	if err := s.store.Rehydrate(ctx); err != nil {
		s.log.Warn().Err(err).Msg("Starting without a persisted session")
	}

	go func() {
		defer cancel()
		for {
			select {
			case <-ctx.Done():
				s.countdown.Stop()
				s.heartbeat.Stop()
				return
			case ch, ok := <-changes:
				if !ok {
					return
				}
				s.reconcile()
				s.events.publish(Event{Type: EventState, State: &ch})
				if ch.Op == session.OpSyncTime && ch.TimeRemaining == 0 && !ch.Submitted &&
					s.Route().Name == model.RouteExam {
					// The server moved the clock to zero; the stopped countdown
					// will never expire on its own.
					go s.onExpire()
				}
			}
		}
	}()
}

// ─── Engine reconciliation ──────────────────────────────────────────

// reconcile runs both engines iff the exam view is shown for a loaded,
// unsubmitted session with time left.
func (s *PortalService) reconcile() {
	s.reconcileMu.Lock()
	defer s.reconcileMu.Unlock()

	snap := s.store.Snapshot()
	run := s.Route().Name == model.RouteExam && snap.Active()

	s.countdown.Sync(run)
	s.heartbeat.Sync(run, snap.SessionID())
}

func (s *PortalService) onExpire() {
	if _, err := s.coordinator.Submit(s.ctx, submission.TriggerTimer); err != nil {
		s.log.Warn().Err(err).Msg("Auto-submit on timeout did not complete")
	}
}

func (s *PortalService) onTerminal(hb model.Heartbeat) {
	if _, err := s.coordinator.SubmitForServer(s.ctx, hb); err != nil {
		s.log.Warn().Err(err).Str("status", string(hb.Status)).Msg("Server-directed submit did not complete")
	}
}

// ─── Navigation & notifications ─────────────────────────────────────

// Navigate switches the current view.
func (s *PortalService) Navigate(route model.Route) {
	s.mu.Lock()
	s.route = route
	s.mu.Unlock()

	s.log.Info().Str("route", string(route.Name)).Msg("Navigate")
	s.reconcile()
	if route.Name == model.RouteCompletion {
		s.dismissKind(model.NotificationManualSubmit)
	}
	s.events.publish(Event{Type: EventRoute, Route: &route})
}

func (s *PortalService) Route() model.Route {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.route
}

// Notify records a persistent notification.
func (s *PortalService) Notify(n model.Notification) {
	s.mu.Lock()
	s.notifications = append(s.notifications, n)
	s.mu.Unlock()

	s.events.publish(Event{Type: EventNotification, Notification: &n})
}

func (s *PortalService) Notifications() []model.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Notification, len(s.notifications))
	copy(out, s.notifications)
	return out
}

// Dismiss removes a notification by id.
func (s *PortalService) Dismiss(id string) error {
	s.mu.Lock()
	idx := -1
	for i, n := range s.notifications {
		if n.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		s.mu.Unlock()
		return ErrNotificationNotFound
	}
	s.notifications = append(s.notifications[:idx], s.notifications[idx+1:]...)
	s.mu.Unlock()

	s.events.publish(Event{Type: EventNotificationDismissed, NotificationID: id})
	return nil
}

func (s *PortalService) dismissKind(kind model.NotificationKind) {
	for _, n := range s.Notifications() {
		if n.Kind == kind {
			_ = s.Dismiss(n.ID)
		}
	}
}

// Subscribe streams portal events until cancel is called.
func (s *PortalService) Subscribe() (<-chan Event, func()) {
	return s.events.subscribe()
}

// ─── Operations ─────────────────────────────────────────────────────

// Enter runs the entry decision for an optional URL token.
func (s *PortalService) Enter(ctx context.Context, token string) (model.Route, error) {
	if s.coordinator.Phase() == submission.PhaseSubmitting {
		return model.Route{}, submission.ErrSubmitInProgress
	}
	s.coordinator.Reset()

	s.mu.Lock()
	s.notifications = nil
	s.mu.Unlock()

	route, err := s.boot.Run(ctx, token)
	if err != nil {
		return model.Route{}, fmt.Errorf("enter portal: %w", err)
	}
	return route, nil
}

// Begin leaves the instructions view and starts the exam.
func (s *PortalService) Begin() (model.Route, error) {
	if s.Route().Name != model.RouteInstructions {
		return model.Route{}, ErrInvalidRoute
	}
	if !s.store.Snapshot().Active() {
		return model.Route{}, ErrNotActive
	}
	route := model.Route{Name: model.RouteExam}
	s.Navigate(route)
	return route, nil
}

// State returns the current view of the session. The token is never exposed.
func (s *PortalService) State() View {
	snap := s.store.Snapshot()
	return View{
		Route:           s.Route(),
		Phase:           s.coordinator.Phase(),
		Metadata:        snap.Metadata,
		Questions:       snap.Questions,
		CurrentQuestion: snap.CurrentQuestion,
		Answers:         snap.Answers,
		Marked:          snap.Marked.IDs(),
		TimeRemaining:   snap.TimeRemaining,
		Submitted:       snap.Submitted,
		Notifications:   s.Notifications(),
	}
}

// SelectAnswer records an answer locally and queues the durable write.
func (s *PortalService) SelectAnswer(questionID string, optionIndex int) error {
	snap, err := s.activeSnapshot()
	if err != nil {
		return err
	}
	q, ok := snap.Question(questionID)
	if !ok {
		return ErrQuestionNotFound
	}
	if n := q.OptionCount(); optionIndex < 0 || (n >= 0 && optionIndex >= n) {
		return ErrOptionOutOfRange
	}

	if !s.store.SetAnswer(questionID, optionIndex) {
		return nil
	}
	if s.autosave != nil {
		s.autosave.Enqueue(worker.AnswerJob{
			SessionID:   snap.SessionID(),
			Token:       snap.Token,
			QuestionID:  questionID,
			OptionIndex: optionIndex,
		})
	}
	return nil
}

// ToggleMark flags or unflags a question for review.
func (s *PortalService) ToggleMark(questionID string) error {
	snap, err := s.activeSnapshot()
	if err != nil {
		return err
	}
	if _, ok := snap.Question(questionID); !ok {
		return ErrQuestionNotFound
	}
	s.store.ToggleMark(questionID)
	return nil
}

func (s *PortalService) Next() (int, error) {
	if _, err := s.activeSnapshot(); err != nil {
		return 0, err
	}
	s.store.Next()
	return s.store.CurrentQuestion(), nil
}

func (s *PortalService) Previous() (int, error) {
	if _, err := s.activeSnapshot(); err != nil {
		return 0, err
	}
	s.store.Previous()
	return s.store.CurrentQuestion(), nil
}

// Goto jumps to question n (1-based).
func (s *PortalService) Goto(n int) (int, error) {
	snap, err := s.activeSnapshot()
	if err != nil {
		return 0, err
	}
	if n < 1 || n > len(snap.Questions) {
		return 0, ErrQuestionNotFound
	}
	s.store.SetCurrentQuestion(n)
	return n, nil
}

// Submit is the user-confirmed submission.
func (s *PortalService) Submit(ctx context.Context) (model.SubmitResult, error) {
	if s.Route().Name != model.RouteExam {
		return model.SubmitResult{}, ErrInvalidRoute
	}
	return s.coordinator.Submit(ctx, submission.TriggerManual)
}

// Finish ends the attempt's flow: state is wiped and the UI leaves. It is
// refused while a submission is in flight; a submit that starts after the
// check is cancelled by the coordinator reset and never touches the store.
func (s *PortalService) Finish() (model.Route, error) {
	if s.coordinator.Phase() == submission.PhaseSubmitting {
		return model.Route{}, submission.ErrSubmitInProgress
	}
	s.store.Reset()
	s.coordinator.Reset()

	s.mu.Lock()
	s.notifications = nil
	s.mu.Unlock()

	route := model.Route{Name: model.RouteExit}
	s.Navigate(route)
	return route, nil
}

func (s *PortalService) activeSnapshot() (model.SessionState, error) {
	if s.Route().Name != model.RouteExam {
		return model.SessionState{}, ErrInvalidRoute
	}
	snap := s.store.Snapshot()
	if !snap.Active() {
		return model.SessionState{}, ErrNotActive
	}
	return snap, nil
}
