package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-portal/internal/model"
)

// Slot is a durable per-tab location holding one serialized session.
type Slot interface {
	// Read returns nil data and a nil error when the slot is empty.
	Read(ctx context.Context) ([]byte, error)
	Write(ctx context.Context, data []byte) error
	Remove(ctx context.Context) error
}

// Op names the store operation that produced a Change.
type Op string

const (
	OpRehydrate Op = "rehydrate"
	OpSetToken  Op = "set_token"
	OpLoad      Op = "load"
	OpNavigate  Op = "navigate"
	OpAnswer    Op = "answer"
	OpMark      Op = "mark"
	OpTick      Op = "tick"
	OpSyncTime  Op = "sync_time"
	OpSubmit    Op = "submit"
	OpReset     Op = "reset"
)

// Change is published to subscribers after every applied mutation.
type Change struct {
	Op              Op     `json:"op"`
	SessionID       string `json:"session_id,omitempty"`
	CurrentQuestion int    `json:"current_question"`
	TimeRemaining   int    `json:"time_remaining"`
	Submitted       bool   `json:"submitted"`
	Active          bool   `json:"active"`
}

// LoadInput carries everything a session load applies in one step.
type LoadInput struct {
	Metadata  model.ExamMetadata
	Questions []model.Question
	// SavedAnswers restores answers of a resumed attempt.
	SavedAnswers model.AnswerMap
	// TimeRemaining takes precedence over Metadata.DurationSeconds().
	TimeRemaining *int
	// CurrentQuestion is 1-based; out-of-range values fall back to 1.
	CurrentQuestion int
	Marked          []string
}

const defaultWriteTimeout = 2 * time.Second

// Store is the sole owner of the exam SessionState. Every mutation is
// persisted to the slot and published to subscribers in the order applied.
type Store struct {
	mu           sync.Mutex
	state        model.SessionState
	slot         Slot
	log          zerolog.Logger
	writeTimeout time.Duration

	ready     chan struct{}
	readyOnce sync.Once

	subsMu      sync.Mutex
	subscribers map[chan Change]struct{}
}

// NewStore creates an empty, not-yet-ready store backed by slot.
func NewStore(slot Slot, log zerolog.Logger) *Store {
	return &Store{
		state:        emptyState(),
		slot:         slot,
		log:          log.With().Str("component", "session_store").Logger(),
		writeTimeout: defaultWriteTimeout,
		ready:        make(chan struct{}),
		subscribers:  make(map[chan Change]struct{}),
	}
}

func emptyState() model.SessionState {
	return model.SessionState{
		Answers: model.AnswerMap{},
		Marked:  model.MarkedSet{},
	}
}

// ─── Rehydration ────────────────────────────────────────────────────

// Rehydrate reads the slot once and marks the store ready. Unreadable or
// unparsable data leaves the store empty; only slot I/O errors are returned.
func (s *Store) Rehydrate(ctx context.Context) error {
	defer s.readyOnce.Do(func() { close(s.ready) })

	data, err := s.slot.Read(ctx)
	if err != nil {
		s.log.Warn().Err(err).Msg("Session slot unreadable, starting empty")
		return fmt.Errorf("read session slot: %w", err)
	}
	if len(data) == 0 {
		s.log.Debug().Msg("No persisted session")
		return nil
	}

	state, err := Decode(data)
	if err != nil {
		s.log.Warn().Err(err).Msg("Discarding unparsable persisted session")
		return nil
	}

	s.mu.Lock()
	s.state = state
	s.publishLocked(OpRehydrate)
	s.mu.Unlock()

	s.log.Info().
		Str("session_id", state.SessionID()).
		Int("time_remaining", state.TimeRemaining).
		Bool("submitted", state.Submitted).
		Msg("Session rehydrated")
	return nil
}

// Ready reports whether rehydration has completed.
func (s *Store) Ready() bool {
	select {
	case <-s.ready:
		return true
	default:
		return false
	}
}

// WaitReady blocks until rehydration has completed or ctx is done.
func (s *Store) WaitReady(ctx context.Context) error {
	select {
	case <-s.ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ─── Accessors ──────────────────────────────────────────────────────

// Snapshot returns a deep copy of the whole state.
func (s *Store) Snapshot() model.SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Clone()
}

func (s *Store) Token() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Token
}

func (s *Store) Metadata() *model.ExamMetadata {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.Metadata == nil {
		return nil
	}
	meta := *s.state.Metadata
	return &meta
}

func (s *Store) SessionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.SessionID()
}

func (s *Store) Questions() []model.Question {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Question, len(s.state.Questions))
	copy(out, s.state.Questions)
	return out
}

func (s *Store) CurrentQuestion() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.CurrentQuestion
}

func (s *Store) Answers() model.AnswerMap {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Answers.Clone()
}

func (s *Store) Marked() model.MarkedSet {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Marked.Clone()
}

func (s *Store) TimeRemaining() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.TimeRemaining
}

func (s *Store) Submitted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Submitted
}

// ─── Mutations ──────────────────────────────────────────────────────

// SetToken records the session token of the attempt.
func (s *Store) SetToken(token string) {
	s.mutate(OpSetToken, func(st *model.SessionState) bool {
		if st.Token == token {
			return false
		}
		st.Token = token
		return true
	})
}

// Load replaces metadata, questions, timer, answers and marks in one step and
// clears the submitted flag. The token is kept.
func (s *Store) Load(in LoadInput) {
	s.mutate(OpLoad, func(st *model.SessionState) bool {
		meta := in.Metadata
		questions := make([]model.Question, len(in.Questions))
		copy(questions, in.Questions)

		answers := model.AnswerMap{}
		if in.SavedAnswers != nil {
			answers = in.SavedAnswers.Clone()
		}

		remaining := meta.DurationSeconds()
		if in.TimeRemaining != nil {
			remaining = *in.TimeRemaining
		}
		if remaining < 0 {
			remaining = 0
		}
		if remaining > meta.DurationSeconds() {
			remaining = meta.DurationSeconds()
		}

		current := in.CurrentQuestion
		if current < 1 || current > len(questions) {
			current = 1
		}
		if len(questions) == 0 {
			current = 0
		}

		*st = model.SessionState{
			Token:           st.Token,
			CurrentQuestion: current,
			Answers:         answers,
			Marked:          model.NewMarkedSet(in.Marked...),
			TimeRemaining:   remaining,
			Submitted:       false,
			Metadata:        &meta,
			Questions:       questions,
		}
		return true
	})
}

// SetCurrentQuestion moves the pointer to n. Out-of-range values are ignored.
func (s *Store) SetCurrentQuestion(n int) bool {
	return s.mutate(OpNavigate, func(st *model.SessionState) bool {
		if n < 1 || n > len(st.Questions) || n == st.CurrentQuestion {
			return false
		}
		st.CurrentQuestion = n
		return true
	})
}

// Next advances the pointer; no-op on the last question.
func (s *Store) Next() bool {
	return s.mutate(OpNavigate, func(st *model.SessionState) bool {
		if st.CurrentQuestion >= len(st.Questions) {
			return false
		}
		st.CurrentQuestion++
		return true
	})
}

// Previous moves the pointer back; no-op on the first question.
func (s *Store) Previous() bool {
	return s.mutate(OpNavigate, func(st *model.SessionState) bool {
		if st.CurrentQuestion <= 1 {
			return false
		}
		st.CurrentQuestion--
		return true
	})
}

// SetAnswer records (or overwrites) the selected option for a question.
// Ignored once the session is submitted.
func (s *Store) SetAnswer(questionID string, index int) bool {
	return s.mutate(OpAnswer, func(st *model.SessionState) bool {
		if !st.Loaded() || st.Submitted {
			return false
		}
		if cur, ok := st.Answers[questionID]; ok && cur == index {
			return false
		}
		st.Answers[questionID] = index
		return true
	})
}

// ToggleMark adds the question to the review set, or removes it if present.
func (s *Store) ToggleMark(questionID string) bool {
	return s.mutate(OpMark, func(st *model.SessionState) bool {
		if !st.Loaded() || st.Submitted {
			return false
		}
		if st.Marked.Has(questionID) {
			delete(st.Marked, questionID)
		} else {
			st.Marked[questionID] = struct{}{}
		}
		return true
	})
}

// DecrementTime removes one second and returns the new remaining time. It
// never goes below zero.
func (s *Store) DecrementTime() int {
	var remaining int
	s.mutate(OpTick, func(st *model.SessionState) bool {
		if st.Submitted || st.TimeRemaining <= 0 {
			remaining = max(st.TimeRemaining, 0)
			return false
		}
		st.TimeRemaining--
		remaining = st.TimeRemaining
		return true
	})
	return remaining
}

// SetTimeRemaining overwrites the timer with a server-provided value, clamped
// to [0, duration]. Returns the resulting value.
func (s *Store) SetTimeRemaining(seconds int) int {
	var remaining int
	s.mutate(OpSyncTime, func(st *model.SessionState) bool {
		remaining = st.TimeRemaining
		if st.Metadata == nil || st.Submitted {
			return false
		}
		seconds = min(max(seconds, 0), st.Metadata.DurationSeconds())
		if seconds == st.TimeRemaining {
			return false
		}
		st.TimeRemaining = seconds
		remaining = seconds
		return true
	})
	return remaining
}

// Submit freezes the session. Returns false if it was not loaded or already
// submitted.
func (s *Store) Submit() bool {
	return s.mutate(OpSubmit, func(st *model.SessionState) bool {
		if st.Metadata == nil || st.Submitted {
			return false
		}
		st.Submitted = true
		return true
	})
}

// Reset wipes every field, discards the token and removes the durable copy so
// the attempt can never be resumed.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state = emptyState()

	ctx, cancel := context.WithTimeout(context.Background(), s.writeTimeout)
	defer cancel()
	if err := s.slot.Remove(ctx); err != nil {
		s.log.Error().Err(err).Msg("Failed to remove persisted session")
	}

	s.publishLocked(OpReset)
}

// mutate applies fn under the lock; when fn reports a change the state is
// persisted and published before the lock is released.
func (s *Store) mutate(op Op, fn func(st *model.SessionState) bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !fn(&s.state) {
		return false
	}

	s.persistLocked(op)
	s.publishLocked(op)
	return true
}

func (s *Store) persistLocked(op Op) {
	data, err := Encode(s.state)
	if err != nil {
		s.log.Error().Err(err).Str("op", string(op)).Msg("Failed to encode session")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.writeTimeout)
	defer cancel()

	if err := s.slot.Write(ctx, data); err != nil {
		s.log.Error().Err(err).Str("op", string(op)).Msg("Failed to persist session")
	}
}
