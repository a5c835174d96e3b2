package engine

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// DefaultTickInterval is one countdown unit.
const DefaultTickInterval = time.Second

// TimeDecrementer is the store operation the countdown drives.
type TimeDecrementer interface {
	DecrementTime() int
}

// Countdown decrements the session timer once per tick while it runs. When
// the timer reaches zero it stops itself and calls onExpire once for that run,
// even if a concurrent Sync(false) already cancelled the interval.
type Countdown struct {
	timer     TimeDecrementer
	onExpire  func()
	newTicker TickerFactory
	interval  time.Duration
	log       zerolog.Logger

	mu     sync.Mutex
	run    uint64
	cancel context.CancelFunc
	ticker Ticker
}

// CountdownOption customizes a Countdown.
type CountdownOption func(*Countdown)

// WithCountdownTicker replaces the ticker source.
func WithCountdownTicker(f TickerFactory) CountdownOption {
	return func(c *Countdown) { c.newTicker = f }
}

// WithTickInterval overrides DefaultTickInterval.
func WithTickInterval(d time.Duration) CountdownOption {
	return func(c *Countdown) { c.interval = d }
}

func NewCountdown(timer TimeDecrementer, onExpire func(), log zerolog.Logger, opts ...CountdownOption) *Countdown {
	c := &Countdown{
		timer:     timer,
		onExpire:  onExpire,
		newTicker: RealTicker,
		interval:  DefaultTickInterval,
		log:       log.With().Str("component", "countdown").Logger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Sync starts or stops the interval to match shouldRun. Calling it again with
// the same value does nothing, so a running interval is never restarted.
func (c *Countdown) Sync(shouldRun bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	running := c.cancel != nil
	switch {
	case shouldRun && !running:
		c.startLocked()
	case !shouldRun && running:
		c.stopLocked()
	}
}

// Stop cancels the interval if one is running.
func (c *Countdown) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		c.stopLocked()
	}
}

// Running reports whether the interval is active.
func (c *Countdown) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cancel != nil
}

func (c *Countdown) startLocked() {
	ctx, cancel := context.WithCancel(context.Background())
	c.run++
	c.cancel = cancel
	c.ticker = c.newTicker(c.interval)

	go c.loop(ctx, c.ticker, c.run)
	c.log.Debug().Uint64("run", c.run).Msg("Countdown started")
}

func (c *Countdown) stopLocked() {
	c.cancel()
	c.ticker.Stop()
	c.cancel = nil
	c.ticker = nil
	c.log.Debug().Uint64("run", c.run).Msg("Countdown stopped")
}

func (c *Countdown) loop(ctx context.Context, ticker Ticker, run uint64) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			if ctx.Err() != nil {
				return
			}
			if c.step() {
				c.expire(run)
				return
			}
		}
	}
}

// step applies one tick and reports whether time ran out.
func (c *Countdown) step() bool {
	return c.timer.DecrementTime() <= 0
}

func (c *Countdown) expire(run uint64) {
	c.mu.Lock()
	if c.run == run && c.cancel != nil {
		c.stopLocked()
	}
	c.mu.Unlock()

	c.log.Info().Uint64("run", run).Msg("Time is up")
	if c.onExpire != nil {
		c.onExpire()
	}
}
