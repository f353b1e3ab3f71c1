// Package guard counts authentication failures per client and blocks clients
// that exceed a limit within a window.
//
// A Tracker is plain explicit state: the HTTP layer creates it with New,
// drives expiry with Run, and tears it down with Stop. It shares no locks or
// transactions with money movement.
package guard

import (
	"context"
	"sync"
	"time"
)

type entry struct {
	failures     int
	windowStart  time.Time
	blockedUntil time.Time
}

// Tracker is safe for concurrent use.
type Tracker struct {
	mu      sync.Mutex
	limit   int
	window  time.Duration
	entries map[string]*entry
	now     func() time.Time

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// New builds a tracker that blocks a key for window once it fails limit
// times within window.
func New(limit int, window time.Duration) *Tracker {
	if limit <= 0 {
		limit = 5
	}
	if window <= 0 {
		window = time.Minute
	}
	return &Tracker{
		limit:   limit,
		window:  window,
		entries: make(map[string]*entry),
		now:     time.Now,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Fail records a failure for key and reports whether key is now blocked.
func (t *Tracker) Fail(key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	e, ok := t.entries[key]
	if !ok || now.Sub(e.windowStart) >= t.window {
		e = &entry{windowStart: now}
		t.entries[key] = e
	}
	e.failures++
	if e.failures >= t.limit {
		e.blockedUntil = now.Add(t.window)
	}
	return now.Before(e.blockedUntil)
}

// Blocked reports whether key is currently blocked.
func (t *Tracker) Blocked(key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[key]
	return ok && t.now().Before(e.blockedUntil)
}

// Reset forgets key.
func (t *Tracker) Reset(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.entries, key)
}

// Sweep drops entries whose window and block have both expired and returns
// how many were removed.
func (t *Tracker) Sweep() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	removed := 0
	for key, e := range t.entries {
		if now.Sub(e.windowStart) >= t.window && !now.Before(e.blockedUntil) {
			delete(t.entries, key)
			removed++
		}
	}
	return removed
}

// Len returns the number of tracked keys.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// Run sweeps every interval until ctx is done or Stop is called. It must be
// called at most once.
func (t *Tracker) Run(ctx context.Context, interval time.Duration) {
	defer close(t.done)
	if interval <= 0 {
		interval = t.window
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.stop:
			return
		case <-ticker.C:
			t.Sweep()
		}
	}
}

// Stop signals Run to return; wait on Done to observe it. Safe to call more
// than once.
func (t *Tracker) Stop() {
	t.stopOnce.Do(func() { close(t.stop) })
}

// Done is closed once Run returns.
func (t *Tracker) Done() <-chan struct{} { return t.done }
