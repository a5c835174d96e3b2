// Package engine runs the two periodic loops of an exam session: the local
// countdown and the server heartbeat.
package engine

import (
	"sync"
	"time"
)

// Ticker is the subset of time.Ticker the engines depend on.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// TickerFactory creates a ticker firing every d.
type TickerFactory func(d time.Duration) Ticker

type realTicker struct {
	t *time.Ticker
}

func (r realTicker) C() <-chan time.Time { return r.t.C }
func (r realTicker) Stop()               { r.t.Stop() }

// RealTicker is the production TickerFactory.
func RealTicker(d time.Duration) Ticker {
	return realTicker{t: time.NewTicker(d)}
}

// ─── Manual ticker ──────────────────────────────────────────────────

// ManualTicker fires only when Tick is called. Used by tests to drive the
// engines one step at a time.
type ManualTicker struct {
	ch       chan time.Time
	done     chan struct{}
	stopOnce sync.Once
	Interval time.Duration
}

func NewManualTicker(d time.Duration) *ManualTicker {
	return &ManualTicker{
		ch:       make(chan time.Time),
		done:     make(chan struct{}),
		Interval: d,
	}
}

func (m *ManualTicker) C() <-chan time.Time { return m.ch }

func (m *ManualTicker) Stop() {
	m.stopOnce.Do(func() { close(m.done) })
}

// Stopped reports whether Stop has been called.
func (m *ManualTicker) Stopped() bool {
	select {
	case <-m.done:
		return true
	default:
		return false
	}
}

// Tick delivers one tick and blocks until the consumer received it. Returns
// false if the ticker was stopped first. Because the channel is unbuffered, a
// successful Tick also means the consumer finished handling the previous one.
func (m *ManualTicker) Tick() bool {
	select {
	case m.ch <- time.Now():
		return true
	case <-m.done:
		return false
	}
}

// ManualTickers is a TickerFactory that records every ticker it creates.
type ManualTickers struct {
	mu      sync.Mutex
	created []*ManualTicker
}

func (f *ManualTickers) New(d time.Duration) Ticker {
	t := NewManualTicker(d)
	f.mu.Lock()
	f.created = append(f.created, t)
	f.mu.Unlock()
	return t
}

// Created returns how many tickers were created so far.
func (f *ManualTickers) Created() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.created)
}

// Last returns the most recently created ticker, or nil.
func (f *ManualTickers) Last() *ManualTicker {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.created) == 0 {
		return nil
	}
	return f.created[len(f.created)-1]
}
