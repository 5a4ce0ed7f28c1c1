package voice

import (
	"context"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func TestIdleGuardFiresOnce(t *testing.T) {
	clk := newFakeClock()
	fired := 0
	g := NewIdleGuard(clk, 10*time.Second, func() { fired++ })
	g.Touch()
	clk.Advance(9 * time.Second)
	g.Touch()
	clk.Advance(9 * time.Second)
	if fired != 0 {
		t.Fatalf("fired before a full quiet window")
	}
	clk.Advance(time.Second)
	if fired != 1 {
		t.Fatalf("fired: want=1 got=%d", fired)
	}
	g.Touch()
	clk.Advance(time.Minute)
	if fired != 1 {
		t.Fatalf("guard fired again after expiry: %d", fired)
	}
}

func TestIdleGuardStop(t *testing.T) {
	clk := newFakeClock()
	fired := false
	g := NewIdleGuard(clk, time.Second, func() { fired = true })
	g.Touch()
	g.Stop()
	clk.Advance(time.Hour)
	if fired {
		t.Fatalf("stopped guard fired")
	}
}

func TestSessionIdleTimeout(t *testing.T) {
	clk := newFakeClock()
	conn := &fakeConn{}
	s := NewSession(context.Background(), conn, SessionOptions{Clock: clk, IdleTimeout: DefaultIdleTimeout})

	clk.Advance(119 * time.Second)
	s.HandleMessage(websocket.TextMessage, []byte(`{"type":"ping"}`))
	clk.Advance(time.Second)
	if conn.isClosed() || s.Closed() {
		t.Fatalf("session closed at 120s despite activity at 119s")
	}

	clk.Advance(118 * time.Second)
	if conn.isClosed() {
		t.Fatalf("session closed before a full idle window")
	}
	clk.Advance(time.Second)
	if !conn.isClosed() || s.State() != StateClosed {
		t.Fatalf("session still open after idle window")
	}

	clk.Advance(10 * time.Minute)
	closedEvents := 0
	for _, ev := range conn.events(t) {
		if ev["type"] == "session_closed" {
			closedEvents++
			if ev["reason"] != ReasonIdleTimeout {
				t.Fatalf("reason: %v", ev["reason"])
			}
		}
	}
	if closedEvents != 1 {
		t.Fatalf("session_closed events: want=1 got=%d", closedEvents)
	}
}

func TestSessionIdleTimeoutSendFailureSwallowed(t *testing.T) {
	clk := newFakeClock()
	conn := &fakeConn{writeErr: websocket.ErrCloseSent}
	s := NewSession(context.Background(), conn, SessionOptions{Clock: clk})
	clk.Advance(DefaultIdleTimeout)
	if !conn.isClosed() || !s.Closed() {
		t.Fatalf("connection must be closed even when the close notice cannot be sent")
	}
}
