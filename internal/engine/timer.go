package engine

import (
	"sync"
	"time"
)

// TimerState is the learner-facing view of the countdown. TotalSeconds is
// the source of truth; minutes and seconds are derived from it.
type TimerState struct {
	Minutes      int `json:"minutes"`
	Seconds      int `json:"seconds"`
	TotalSeconds int `json:"total_seconds"`
}

// Timer is a single countdown clock with suspend/resume/cancel semantics.
//
// At most one tick source is authoritative at any time. Every
// (re)configuration bumps the token, so a goroutine spawned for an earlier
// configuration fails its token check on the next tick and exits instead of
// mutating shared state. This is the guard against stale ticks arriving
// after suspension or teardown.
type Timer struct {
	mu        sync.Mutex
	interval  time.Duration
	remaining int
	token     uint64
	running   bool
	onTick    func(TimerState)
	onExpire  func()
}

// NewTimer creates a timer ticking once per interval. An interval of zero
// disables the internal ticker; the countdown is then driven externally.
func NewTimer(interval time.Duration, onTick func(TimerState), onExpire func()) *Timer {
	return &Timer{
		interval: interval,
		onTick:   onTick,
		onExpire: onExpire,
	}
}

// Configure cancels any existing tick source and starts a fresh countdown
// from totalSeconds.
func (t *Timer) Configure(totalSeconds int) {
	t.mu.Lock()
	t.token++
	if totalSeconds < 0 {
		totalSeconds = 0
	}
	t.remaining = totalSeconds
	if totalSeconds == 0 {
		t.running = false
		t.mu.Unlock()
		return
	}
	t.running = true
	tok := t.token
	iv := t.interval
	t.mu.Unlock()

	if iv > 0 {
		go t.loop(tok, iv)
	}
}

// Suspend freezes the countdown, e.g. while answer feedback is displayed.
func (t *Timer) Suspend() {
	t.mu.Lock()
	t.token++
	t.running = false
	t.mu.Unlock()
}

// Resume restarts the countdown from the frozen remainder. No-op while
// running or after the clock has reached zero.
func (t *Timer) Resume() {
	t.mu.Lock()
	if t.running || t.remaining <= 0 {
		t.mu.Unlock()
		return
	}
	t.token++
	t.running = true
	tok := t.token
	iv := t.interval
	t.mu.Unlock()

	if iv > 0 {
		go t.loop(tok, iv)
	}
}

// Cancel stops the countdown permanently. Late ticks from an already
// scheduled callback are discarded by the token check.
func (t *Timer) Cancel() {
	t.mu.Lock()
	t.token++
	t.running = false
	t.mu.Unlock()
}

// State returns the current countdown snapshot.
func (t *Timer) State() TimerState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stateLocked()
}

// Remaining returns the seconds left on the clock.
func (t *Timer) Remaining() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.remaining
}

func (t *Timer) loop(token uint64, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for range ticker.C {
		if !t.tick(token) {
			return
		}
	}
}

// tick applies one second of countdown. Returns false once this tick source
// is no longer authoritative. Callbacks run without the lock held so an
// expiry callback may safely call back into the timer.
func (t *Timer) tick(token uint64) bool {
	t.mu.Lock()
	if token != t.token || !t.running {
		t.mu.Unlock()
		return false
	}
	t.remaining--
	if t.remaining < 0 {
		t.remaining = 0
	}
	state := t.stateLocked()
	expired := t.remaining == 0
	if expired {
		// Expiry fires exactly once; invalidate the token so no further
		// tick can observe a running timer.
		t.running = false
		t.token++
	}
	onTick, onExpire := t.onTick, t.onExpire
	t.mu.Unlock()

	if onTick != nil {
		onTick(state)
	}
	if expired {
		if onExpire != nil {
			onExpire()
		}
		return false
	}
	return true
}

func (t *Timer) stateLocked() TimerState {
	return TimerState{
		Minutes:      t.remaining / 60,
		Seconds:      t.remaining % 60,
		TotalSeconds: t.remaining,
	}
}
