package game

import (
	"context"
	"sync"
	"time"
)

// Ticker runs the server-owned broadcast cadence. Each active match
// registers a callback; all callbacks fire once per interval, regardless
// of how fast clients send. Unregistering stops a match's ticks without
// touching the others.
//
// Invariant: each callback runs at most once per interval.
type Ticker struct {
	interval time.Duration
	mu       sync.Mutex
	ticks    map[string]func(now time.Time)
	cancel   context.CancelFunc
	done     chan struct{}
}

// NewTicker returns a stopped Ticker firing every interval.
//
// Precondition: interval must be > 0.
func NewTicker(interval time.Duration) *Ticker {
	if interval <= 0 {
		panic("game.NewTicker: interval must be > 0")
	}
	return &Ticker{
		interval: interval,
		ticks:    make(map[string]func(now time.Time)),
	}
}

// Register installs the tick callback for roomID, replacing any existing
// one.
func (t *Ticker) Register(roomID string, fn func(now time.Time)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ticks[roomID] = fn
}

// Unregister removes the tick callback for roomID.
func (t *Ticker) Unregister(roomID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.ticks, roomID)
}

// Start launches the tick loop. It runs until Stop is called or ctx is
// cancelled.
func (t *Ticker) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	t.mu.Lock()
	t.cancel = cancel
	t.done = make(chan struct{})
	done := t.done
	t.mu.Unlock()

	go func() {
		defer close(done)
		ticker := time.NewTicker(t.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				t.fire(now)
			}
		}
	}()
}

// Stop halts the tick loop and waits for the in-flight tick to finish.
// Stopping a never-started Ticker is a no-op.
func (t *Ticker) Stop() {
	t.mu.Lock()
	cancel := t.cancel
	done := t.done
	t.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (t *Ticker) fire(now time.Time) {
	t.mu.Lock()
	callbacks := make([]func(time.Time), 0, len(t.ticks))
	for _, fn := range t.ticks {
		callbacks = append(callbacks, fn)
	}
	t.mu.Unlock()
	for _, fn := range callbacks {
		fn(now)
	}
}
