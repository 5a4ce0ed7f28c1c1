package voice

import (
	"sync"
	"time"
)

// DefaultIdleTimeout closes a session that has received nothing for two
// minutes.
const DefaultIdleTimeout = 120 * time.Second

// Timer is the part of *time.Timer the idle guard needs.
type Timer interface {
	Stop() bool
}

// Clock abstracts wall time and timer scheduling so tests can drive the idle
// window without sleeping.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }
func (systemClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// SystemClock is the real-time Clock.
var SystemClock Clock = systemClock{}

// IdleGuard fires onExpire once no Touch has happened for the configured
// window. A stale timer that races with a newer Touch is ignored through a
// generation counter, so onExpire runs at most once per quiet window.
type IdleGuard struct {
	clock    Clock
	window   time.Duration
	onExpire func()

	mu      sync.Mutex
	timer   Timer
	gen     uint64
	stopped bool
}

func NewIdleGuard(clock Clock, window time.Duration, onExpire func()) *IdleGuard {
	if clock == nil {
		clock = SystemClock
	}
	if window <= 0 {
		window = DefaultIdleTimeout
	}
	return &IdleGuard{clock: clock, window: window, onExpire: onExpire}
}

// Touch cancels the pending expiry and schedules a new one a full window
// from now.
func (g *IdleGuard) Touch() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.stopped {
		return
	}
	if g.timer != nil {
		g.timer.Stop()
	}
	g.gen++
	gen := g.gen
	g.timer = g.clock.AfterFunc(g.window, func() { g.fire(gen) })
}

func (g *IdleGuard) fire(gen uint64) {
	g.mu.Lock()
	if g.stopped || gen != g.gen {
		g.mu.Unlock()
		return
	}
	g.stopped = true
	g.timer = nil
	g.mu.Unlock()
	g.onExpire()
}

// Stop cancels the guard permanently.
func (g *IdleGuard) Stop() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.stopped = true
	if g.timer != nil {
		g.timer.Stop()
		g.timer = nil
	}
}
