package engine

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

type fakeTimer struct {
	mu        sync.Mutex
	remaining int
	token     string
	sets      []int
}

func (f *fakeTimer) DecrementTime() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.remaining > 0 {
		f.remaining--
	}
	return f.remaining
}

func (f *fakeTimer) Token() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.token
}

func (f *fakeTimer) TimeRemaining() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.remaining
}

func (f *fakeTimer) SetTimeRemaining(n int) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.remaining = n
	f.sets = append(f.sets, n)
	return n
}

func (f *fakeTimer) get() int {
	return f.TimeRemaining()
}

func TestCountdownSyncIsIdempotent(t *testing.T) {
	tickers := &ManualTickers{}
	c := NewCountdown(&fakeTimer{remaining: 10}, nil, zerolog.Nop(), WithCountdownTicker(tickers.New))

	c.Sync(true)
	c.Sync(true)
	c.Sync(true)
	if tickers.Created() != 1 {
		t.Fatalf("expected a single interval, got %d", tickers.Created())
	}

	first := tickers.Last()
	c.Sync(false)
	c.Sync(false)
	if !first.Stopped() {
		t.Fatalf("expected interval cancelled")
	}
	if c.Running() {
		t.Fatalf("expected countdown stopped")
	}

	c.Sync(true)
	if tickers.Created() != 2 {
		t.Fatalf("expected restart after stop, got %d tickers", tickers.Created())
	}
	c.Stop()
	if !tickers.Last().Stopped() {
		t.Fatalf("expected Stop to cancel the interval")
	}
}

func TestCountdownDecrementsPerTick(t *testing.T) {
	tickers := &ManualTickers{}
	timer := &fakeTimer{remaining: 10}
	c := NewCountdown(timer, nil, zerolog.Nop(), WithCountdownTicker(tickers.New))
	c.Sync(true)
	defer c.Stop()

	tk := tickers.Last()
	for i := 0; i < 5; i++ {
		if !tk.Tick() {
			t.Fatalf("tick %d refused", i)
		}
	}
	waitFor(t, func() bool { return timer.get() == 5 })
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("condition not met within 1s")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestCountdownExpiresOnce(t *testing.T) {
	tickers := &ManualTickers{}
	timer := &fakeTimer{remaining: 2}
	var fired atomic.Int32
	expired := make(chan struct{}, 4)

	c := NewCountdown(timer, func() {
		fired.Add(1)
		expired <- struct{}{}
	}, zerolog.Nop(), WithCountdownTicker(tickers.New))
	c.Sync(true)

	tk := tickers.Last()
	tk.Tick()
	tk.Tick()

	select {
	case <-expired:
	case <-time.After(time.Second):
		t.Fatalf("expected expiry callback")
	}
	if tk.Tick() {
		t.Fatalf("expected expired interval to stop accepting ticks")
	}
	if c.Running() {
		t.Fatalf("expected countdown to stop itself at zero")
	}
	if fired.Load() != 1 {
		t.Fatalf("expected exactly one expiry, got %d", fired.Load())
	}
	if timer.get() != 0 {
		t.Fatalf("expected timer at zero, got %d", timer.get())
	}
}
