package engine

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-portal/internal/model"
)

const (
	DefaultHeartbeatInterval = 15 * time.Second
	DefaultDriftTolerance    = 5
)

// HeartbeatClient fetches the server's view of an attempt.
type HeartbeatClient interface {
	Heartbeat(ctx context.Context, token string) (model.Heartbeat, error)
}

// SyncedTimer is the store surface the heartbeat reads and corrects.
type SyncedTimer interface {
	Token() string
	TimeRemaining() int
	SetTimeRemaining(seconds int) int
}

// Correct returns the value local time should take after a heartbeat. The
// server value is adopted only when it differs by more than tolerance.
func Correct(local, server, tolerance int) (int, bool) {
	diff := local - server
	if diff < 0 {
		diff = -diff
	}
	if diff > tolerance {
		return server, true
	}
	return local, false
}

// Heartbeat periodically reconciles the local timer with the server and
// reports terminal server states at most once per session.
type Heartbeat struct {
	client     HeartbeatClient
	timer      SyncedTimer
	onTerminal func(model.Heartbeat)
	newTicker  TickerFactory
	interval   time.Duration
	tolerance  int
	log        zerolog.Logger

	mu        sync.Mutex
	cancel    context.CancelFunc
	ticker    Ticker
	sessionID string
	firedFor  string
}

// HeartbeatOption customizes a Heartbeat.
type HeartbeatOption func(*Heartbeat)

func WithHeartbeatTicker(f TickerFactory) HeartbeatOption {
	return func(h *Heartbeat) { h.newTicker = f }
}

func WithHeartbeatInterval(d time.Duration) HeartbeatOption {
	return func(h *Heartbeat) {
		if d > 0 {
			h.interval = d
		}
	}
}

func WithDriftTolerance(seconds int) HeartbeatOption {
	return func(h *Heartbeat) {
		if seconds >= 0 {
			h.tolerance = seconds
		}
	}
}

func NewHeartbeat(client HeartbeatClient, timer SyncedTimer, onTerminal func(model.Heartbeat), log zerolog.Logger, opts ...HeartbeatOption) *Heartbeat {
	h := &Heartbeat{
		client:     client,
		timer:      timer,
		onTerminal: onTerminal,
		newTicker:  RealTicker,
		interval:   DefaultHeartbeatInterval,
		tolerance:  DefaultDriftTolerance,
		log:        log.With().Str("component", "heartbeat").Logger(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Sync starts polling for sessionID when shouldRun is true and stops it
// otherwise. A running poll for the same session is left untouched; a
// different session restarts it.
func (h *Heartbeat) Sync(shouldRun bool, sessionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	running := h.cancel != nil
	if !shouldRun {
		if running {
			h.stopLocked()
		}
		return
	}
	if running && h.sessionID == sessionID {
		return
	}
	if running {
		h.stopLocked()
	}
	h.startLocked(sessionID)
}

// Stop cancels polling if it is running.
func (h *Heartbeat) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.cancel != nil {
		h.stopLocked()
	}
}

func (h *Heartbeat) Running() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.cancel != nil
}

func (h *Heartbeat) startLocked(sessionID string) {
	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	h.ticker = h.newTicker(h.interval)
	h.sessionID = sessionID

	go h.loop(ctx, h.ticker, sessionID)
	h.log.Debug().Str("session_id", sessionID).Msg("Heartbeat started")
}

func (h *Heartbeat) stopLocked() {
	h.cancel()
	h.ticker.Stop()
	h.cancel = nil
	h.ticker = nil
	h.log.Debug().Str("session_id", h.sessionID).Msg("Heartbeat stopped")
}

func (h *Heartbeat) loop(ctx context.Context, ticker Ticker, sessionID string) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			if ctx.Err() != nil {
				return
			}
			h.beat(ctx, sessionID)
		}
	}
}

// beat runs one poll. Failures are logged and left for the next tick.
func (h *Heartbeat) beat(ctx context.Context, sessionID string) {
	reqCtx, cancel := context.WithTimeout(ctx, h.interval)
	defer cancel()

	hb, err := h.client.Heartbeat(reqCtx, h.timer.Token())
	if err != nil {
		if ctx.Err() == nil {
			h.log.Warn().Err(err).Str("session_id", sessionID).Msg("Heartbeat failed")
		}
		return
	}
	if ctx.Err() != nil {
		return
	}

	// A terminal reply is handed to onTerminal as is. Correcting the clock
	// first would let a zero reading start a second, timer-driven submit.
	if hb.Terminal() && h.armTerminal(sessionID) {
		h.fireTerminal(sessionID, hb)
		return
	}

	local := h.timer.TimeRemaining()
	if corrected, ok := Correct(local, hb.TimeRemaining, h.tolerance); ok {
		applied := h.timer.SetTimeRemaining(corrected)
		h.log.Info().
			Int("local", local).
			Int("server", hb.TimeRemaining).
			Int("applied", applied).
			Msg("Corrected timer drift")
	}
}

// armTerminal reports whether sessionID has not seen a terminal reply yet,
// and records that it now has.
func (h *Heartbeat) armTerminal(sessionID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.firedFor == sessionID {
		return false
	}
	h.firedFor = sessionID
	return true
}

func (h *Heartbeat) fireTerminal(sessionID string, hb model.Heartbeat) {
	h.log.Info().
		Str("session_id", sessionID).
		Str("status", string(hb.Status)).
		Bool("should_auto_submit", hb.ShouldAutoSubmit).
		Msg("Server reports terminal state")
	if h.onTerminal != nil {
		h.onTerminal(hb)
	}
}
