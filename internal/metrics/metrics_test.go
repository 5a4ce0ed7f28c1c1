package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.SessionOpened()
	m.SessionClosed("idle_timeout")
	m.FrameReceived("audio")
	m.FramingError()
	m.PassCompleted("ok")
	m.STTAttempt("raw-wav", "timeout", time.Second)
	m.TTSRequest("error")
	if m.Registry() != nil {
		t.Fatalf("nil metrics has no registry")
	}
	if m.Handler() == nil {
		t.Fatalf("nil metrics should still serve a handler")
	}
}

func TestSessionGauge(t *testing.T) {
	m := New()
	m.SessionOpened()
	m.SessionOpened()
	m.SessionClosed("peer_closed")
	if got := testutil.ToFloat64(m.SessionsActive); got != 1 {
		t.Fatalf("active sessions: want=1 got=%v", got)
	}
	if got := testutil.ToFloat64(m.SessionsClosed.WithLabelValues("peer_closed")); got != 1 {
		t.Fatalf("closed sessions: want=1 got=%v", got)
	}
}

func TestSTTAttemptCounters(t *testing.T) {
	m := New()
	m.STTAttempt("raw-wav", "rejected", 5*time.Millisecond)
	m.STTAttempt("audio-base64", "ok", 5*time.Millisecond)
	if got := testutil.ToFloat64(m.STTAttempts.WithLabelValues("raw-wav", "rejected")); got != 1 {
		t.Fatalf("rejected attempts: %v", got)
	}
	if n := testutil.CollectAndCount(m.STTDuration); n != 2 {
		t.Fatalf("duration series: want=2 got=%d", n)
	}
}
