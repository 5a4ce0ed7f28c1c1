package voice

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"
)

// fakeClock runs timers synchronously from Advance.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

type fakeTimer struct {
	c       *fakeClock
	at      time.Time
	f       func()
	stopped bool
	fired   bool
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{c: c, at: c.now.Add(d), f: f}
	c.timers = append(c.timers, t)
	return t
}

func (t *fakeTimer) Stop() bool {
	t.c.mu.Lock()
	defer t.c.mu.Unlock()
	active := !t.stopped && !t.fired
	t.stopped = true
	return active
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	var due []*fakeTimer
	for _, t := range c.timers {
		if !t.stopped && !t.fired && !t.at.After(c.now) {
			t.fired = true
			due = append(due, t)
		}
	}
	c.mu.Unlock()
	for _, t := range due {
		t.f()
	}
}

// fakeConn records outbound messages.
type fakeConn struct {
	mu       sync.Mutex
	msgs     [][]byte
	closed   bool
	writeErr error
}

func (c *fakeConn) WriteMessage(messageType int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.writeErr != nil {
		return c.writeErr
	}
	c.msgs = append(c.msgs, append([]byte(nil), data...))
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *fakeConn) events(t *testing.T) []map[string]any {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]map[string]any, 0, len(c.msgs))
	for _, m := range c.msgs {
		var ev map[string]any
		if err := json.Unmarshal(m, &ev); err != nil {
			t.Fatalf("outbound message is not JSON: %v: %s", err, m)
		}
		out = append(out, ev)
	}
	return out
}

func (c *fakeConn) types(t *testing.T) []string {
	t.Helper()
	evs := c.events(t)
	out := make([]string, len(evs))
	for i, ev := range evs {
		out[i], _ = ev["type"].(string)
	}
	return out
}

func (c *fakeConn) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgs = nil
}

// recognizerFunc adapts a function to Recognizer.
type recognizerFunc func(ctx context.Context, req STTRequest) (map[string]any, error)

func (f recognizerFunc) Recognize(ctx context.Context, req STTRequest) (map[string]any, error) {
	return f(ctx, req)
}

type transcriberFunc func(ctx context.Context, pcm []byte) (string, error)

func (f transcriberFunc) Transcribe(ctx context.Context, pcm []byte) (string, error) {
	return f(ctx, pcm)
}

type synthFunc func(ctx context.Context, text string) ([]int16, error)

func (f synthFunc) Synthesize(ctx context.Context, text string) ([]int16, error) {
	return f(ctx, text)
}

var errRejected = errors.New("rejected shape")

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
