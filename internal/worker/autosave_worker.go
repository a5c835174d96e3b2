package worker

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// AnswerSubmitter is the remote durability write for a single answer.
type AnswerSubmitter interface {
	SubmitAnswer(ctx context.Context, token, questionID string, optionIndex int) error
}

// AnswerJob is one queued answer write.
type AnswerJob struct {
	SessionID   string
	Token       string
	QuestionID  string
	OptionIndex int
}

const (
	defaultQueueSize = 256
	requestTimeout   = 10 * time.Second
	drainTimeout     = 3 * time.Second
)

// AutosaveWorker sends answer selections to the exam server in the
// background. Writes are best-effort: a failed write is logged and dropped,
// since the local answer stays authoritative until final submission.
type AutosaveWorker struct {
	client AnswerSubmitter
	queue  chan AnswerJob
	log    zerolog.Logger

	mu     sync.Mutex
	purged map[string]struct{}
}

// NewAutosaveWorker creates a worker with a queue of size buffer.
func NewAutosaveWorker(client AnswerSubmitter, buffer int, log zerolog.Logger) *AutosaveWorker {
	if buffer <= 0 {
		buffer = defaultQueueSize
	}
	return &AutosaveWorker{
		client: client,
		queue:  make(chan AnswerJob, buffer),
		log:    log.With().Str("component", "autosave_worker").Logger(),
		purged: make(map[string]struct{}),
	}
}

// Enqueue schedules a write without blocking. Returns false if the session
// was purged or the queue is full.
func (w *AutosaveWorker) Enqueue(job AnswerJob) bool {
	if w.isPurged(job.SessionID) {
		return false
	}
	select {
	case w.queue <- job:
		return true
	default:
		w.log.Warn().
			Str("session_id", job.SessionID).
			Str("question_id", job.QuestionID).
			Msg("Autosave queue full, dropping answer write")
		return false
	}
}

// Purge discards queued and future writes of a finished session so no late
// request can touch it after submission.
func (w *AutosaveWorker) Purge(sessionID string) {
	if sessionID == "" {
		return
	}
	w.mu.Lock()
	w.purged[sessionID] = struct{}{}
	w.mu.Unlock()
	w.log.Debug().Str("session_id", sessionID).Msg("Purged pending answer writes")
}

// Pending returns the number of queued jobs.
func (w *AutosaveWorker) Pending() int {
	return len(w.queue)
}

// Start begins the worker loop. Call in a goroutine; it returns after ctx is
// done and the queue has been drained.
func (w *AutosaveWorker) Start(ctx context.Context) {
	w.log.Info().Msg("Worker started")

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Worker stopping...")
			drainCtx, cancel := context.WithTimeout(context.Background(), drainTimeout)
			w.drain(drainCtx)
			cancel()
			w.log.Info().Msg("Worker stopped")
			return
		case job := <-w.queue:
			w.process(ctx, job)
		}
	}
}

func (w *AutosaveWorker) process(ctx context.Context, job AnswerJob) bool {
	if w.isPurged(job.SessionID) {
		return false
	}

	reqCtx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	if err := w.client.SubmitAnswer(reqCtx, job.Token, job.QuestionID, job.OptionIndex); err != nil {
		w.log.Warn().Err(err).
			Str("session_id", job.SessionID).
			Str("question_id", job.QuestionID).
			Msg("Answer save failed")
		return false
	}
	return true
}

// drain processes all remaining items in the queue before shutdown.
func (w *AutosaveWorker) drain(ctx context.Context) {
	drained := 0
	for {
		select {
		case job := <-w.queue:
			if ctx.Err() != nil {
				continue
			}
			if w.process(ctx, job) {
				drained++
			}
		default:
			if drained > 0 {
				w.log.Info().Int("count", drained).Msg("Drained remaining items")
			}
			return
		}
	}
}

func (w *AutosaveWorker) isPurged(sessionID string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, ok := w.purged[sessionID]
	return ok
}
