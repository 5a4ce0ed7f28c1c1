package voice

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/voice-session-lab/internal/logging"
	"github.com/voice-session-lab/internal/metrics"
)

// DefaultMaxBufferSamples is five minutes of audio at SampleRate.
const DefaultMaxBufferSamples = 5 * 60 * SampleRate

// Close reasons besides ReasonIdleTimeout. Only idle_timeout is announced to
// the client; the others are used for logs and metrics.
const (
	ReasonPeerClosed     = "peer_closed"
	ReasonTransportError = "transport_error"
	ReasonShutdown       = "shutdown"
)

var errMissingAudio = errors.New("audio_chunk message has no audio field")

// Conn is the outbound half of a session's connection. Implementations must
// allow WriteMessage from several goroutines.
type Conn interface {
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Transcriber turns one utterance (PCM16LE mono at SampleRate) into text.
type Transcriber interface {
	Transcribe(ctx context.Context, pcm []byte) (string, error)
}

// Responder reacts to a non-empty transcript by emitting events.
type Responder interface {
	Respond(ctx context.Context, transcript string, emit func(Event)) error
}

type SessionOptions struct {
	Transcriber Transcriber
	// Responder may be nil, in which case a pass ends after transcription.
	Responder        Responder
	IdleTimeout      time.Duration
	MaxBufferSamples int
	// Debug logs a preview of every inbound message and emits a
	// processing_debug event before each transcription pass.
	Debug   bool
	Metrics *metrics.Metrics
	Clock   Clock
}

// State is the derived lifecycle state of a session.
type State int

const (
	StateIdle State = iota
	StateAccumulating
	StateProcessing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAccumulating:
		return "accumulating"
	case StateProcessing:
		return "processing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Session is the state machine of one client connection. HandleMessage must
// be called from a single goroutine (the connection's reader); processing
// passes run on their own goroutine and report back through the same
// connection.
type Session struct {
	ID string

	conn   Conn
	opts   SessionOptions
	clock  Clock
	ctx    context.Context
	cancel context.CancelFunc
	idle   *IdleGuard

	mu           sync.Mutex
	buf          *Accumulator
	lastActivity time.Time

	processing atomic.Bool
	closed     atomic.Bool
	closeOnce  sync.Once
	wg         sync.WaitGroup
}

// NewSession creates a session bound to conn and arms its idle guard. The
// session is closed when ctx is cancelled.
func NewSession(ctx context.Context, conn Conn, opts SessionOptions) *Session {
	if opts.Clock == nil {
		opts.Clock = SystemClock
	}
	if opts.MaxBufferSamples == 0 {
		opts.MaxBufferSamples = DefaultMaxBufferSamples
	}
	id := uuid.NewString()
	sctx, cancel := context.WithCancel(logging.WithFields(ctx, logging.SessionFields(id)...))
	s := &Session{
		ID:           id,
		conn:         conn,
		opts:         opts,
		clock:        opts.Clock,
		ctx:          sctx,
		cancel:       cancel,
		buf:          NewAccumulator(opts.MaxBufferSamples),
		lastActivity: opts.Clock.Now(),
	}
	s.idle = NewIdleGuard(opts.Clock, opts.IdleTimeout, s.expire)
	s.idle.Touch()
	opts.Metrics.SessionOpened()
	logging.InfowCtx(sctx, "session: opened", "debug", opts.Debug)

	go func() {
		<-sctx.Done()
		s.Close(ReasonShutdown)
	}()
	return s
}

// Context is cancelled when the session closes.
func (s *Session) Context() context.Context { return s.ctx }

// HandleMessage routes one inbound message. It never blocks on external
// services; end_stream starts the processing pass in the background.
func (s *Session) HandleMessage(messageType int, data []byte) {
	if s.closed.Load() {
		return
	}
	s.idle.Touch()
	s.mu.Lock()
	s.lastActivity = s.clock.Now()
	s.mu.Unlock()
	if s.opts.Debug {
		logging.InfowCtx(s.ctx, "session: inbound message", previewFields(messageType, data)...)
	}

	in, err := DecodeInbound(messageType, data)
	if err != nil {
		s.opts.Metrics.FramingError()
		logging.DebugwCtx(s.ctx, "session: undecodable message", "bytes", len(data), "err", err)
		var fe *FramingError // DecodeInbound only fails with *FramingError
		errors.As(err, &fe)
		s.emit(NewErrorEvent(fe.Message, fe.Err))
		return
	}
	s.opts.Metrics.FrameReceived(in.Kind.String())

	switch in.Kind {
	case KindAudio:
		s.appendAudio(in.Samples)
	case KindControl:
		switch in.Control.Type {
		case TypeAudioChunk:
			if in.Control.Audio == nil {
				s.emit(NewErrorEvent("Chunk handling failed", errMissingAudio))
				return
			}
			s.appendAudio(in.Control.Audio)
		case TypeEndStream:
			s.endStream()
		case TypePing:
			s.emit(Pong{Timestamp: s.clock.Now().UnixMilli()})
		case TypeDumpWAV, TypeEchoWAV:
			s.dumpWAV()
		default:
			logging.DebugwCtx(s.ctx, "session: ignoring unknown message type", "type", in.Control.Type)
		}
	}
}

func (s *Session) appendAudio(samples []int16) {
	s.mu.Lock()
	err := s.buf.Append(samples)
	size := s.buf.Len()
	s.mu.Unlock()
	if err != nil {
		logging.WarnwCtx(s.ctx, "session: dropping chunk", "chunk_size", len(samples), "buffer_size", size, "err", err)
		s.emit(ErrorEvent{Message: "Audio buffer full"})
		return
	}
	s.emit(ChunkReceived{ChunkSize: len(samples), BufferSize: size})
}

// endStream starts a processing pass unless one is in flight or there is
// nothing buffered. Neither case is queued.
func (s *Session) endStream() {
	s.mu.Lock()
	n := s.buf.Len()
	if n == 0 {
		s.mu.Unlock()
		logging.DebugwCtx(s.ctx, "session: end_stream with empty buffer")
		return
	}
	if !s.processing.CompareAndSwap(false, true) {
		s.mu.Unlock()
		logging.DebugwCtx(s.ctx, "session: end_stream while processing")
		return
	}
	pcm := s.buf.Snapshot()
	s.mu.Unlock()

	s.wg.Add(1)
	go s.process(pcm, n)
}

func (s *Session) process(pcm []byte, samples int) {
	defer s.wg.Done()
	defer func() {
		s.mu.Lock()
		s.buf.Clear()
		s.mu.Unlock()
		s.processing.Store(false)
	}()

	ctx := WithCorrelationID(s.ctx, uuid.NewString())
	logging.InfowCtx(ctx, "session: processing", append(logging.AccumFields(samples, SampleRate), "correlation_id", CorrelationID(ctx))...)
	if s.opts.Debug {
		s.emit(s.processingDebug(pcm, samples))
	}

	if s.opts.Transcriber == nil {
		s.opts.Metrics.PassCompleted("stt_failed")
		s.emit(NewErrorEvent("Failed to process audio", errors.New("no transcriber configured")))
		return
	}
	text, err := s.opts.Transcriber.Transcribe(ctx, pcm)
	if err != nil {
		if s.closed.Load() {
			s.opts.Metrics.PassCompleted("abandoned")
			logging.DebugwCtx(ctx, "session: pass abandoned after close", "err", err)
			return
		}
		s.opts.Metrics.PassCompleted("stt_failed")
		logging.WarnwCtx(ctx, "session: transcription failed", "err", err)
		s.emit(NewErrorEvent("Failed to process audio", err))
		return
	}
	s.emit(Transcription{Text: text, Timestamp: s.clock.Now().UnixMilli()})
	if strings.TrimSpace(text) == "" || s.opts.Responder == nil {
		s.opts.Metrics.PassCompleted("transcribed")
		return
	}
	if err := s.opts.Responder.Respond(ctx, text, s.emit); err != nil {
		s.opts.Metrics.PassCompleted("respond_failed")
		return
	}
	s.opts.Metrics.PassCompleted("ok")
}

func (s *Session) processingDebug(pcm []byte, samples int) ProcessingDebug {
	wav := EncodeWAV(pcm, SampleRate)
	head := wav[:min(64, len(wav))]
	tail := wav[max(0, len(wav)-64):]
	return ProcessingDebug{
		BytesLength: len(wav),
		Samples:     samples,
		SampleRate:  SampleRate,
		HeadBase64:  base64.StdEncoding.EncodeToString(head),
		TailBase64:  base64.StdEncoding.EncodeToString(tail),
		Timestamp:   s.clock.Now().UnixMilli(),
	}
}

func (s *Session) dumpWAV() {
	s.mu.Lock()
	n := s.buf.Len()
	pcm := s.buf.Snapshot()
	s.mu.Unlock()
	if n == 0 {
		s.emit(ErrorEvent{Message: "No audio buffered"})
		return
	}
	wav := EncodeWAV(pcm, SampleRate)
	if len(wav) > MaxDumpBytes {
		s.emit(ErrorEvent{Message: "WAV too large to dump", Size: len(wav)})
		return
	}
	s.emit(EchoWAV{
		WAVBase64:  base64.StdEncoding.EncodeToString(wav),
		SampleRate: SampleRate,
		Samples:    n,
	})
}

// emit sends ev best-effort. Send failures are logged and swallowed, and
// nothing is sent once the session is closed.
func (s *Session) emit(ev Event) {
	if s.closed.Load() {
		return
	}
	data, err := EncodeEvent(ev)
	if err != nil {
		logging.WarnwCtx(s.ctx, "session: encode event failed", "type", ev.EventType(), "err", err)
		return
	}
	if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		logging.DebugwCtx(s.ctx, "session: send failed", "type", ev.EventType(), "err", err)
	}
}

func (s *Session) expire() {
	logging.InfowCtx(s.ctx, "session: idle timeout")
	s.emit(SessionClosed{Reason: ReasonIdleTimeout})
	s.Close(ReasonIdleTimeout)
}

// Close ends the session once: it stops the idle guard, cancels in-flight
// work and closes the connection. Later calls are no-ops.
func (s *Session) Close(reason string) {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		s.idle.Stop()
		s.cancel()
		if err := s.conn.Close(); err != nil {
			logging.DebugwCtx(s.ctx, "session: close connection", "err", err)
		}
		s.opts.Metrics.SessionClosed(reason)
		logging.InfowCtx(s.ctx, "session: closed", "reason", reason)
	})
}

// Wait blocks until background processing passes have finished.
func (s *Session) Wait() { s.wg.Wait() }

// Closed reports whether the session has been closed.
func (s *Session) Closed() bool { return s.closed.Load() }

func (s *Session) BufferLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.Len()
}

func (s *Session) LastActivity() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActivity
}

func (s *Session) State() State {
	if s.closed.Load() {
		return StateClosed
	}
	if s.processing.Load() {
		return StateProcessing
	}
	if s.BufferLen() > 0 {
		return StateAccumulating
	}
	return StateIdle
}

func previewFields(messageType int, data []byte) []interface{} {
	if messageType == websocket.TextMessage {
		p := string(data)
		if len(p) > 256 {
			p = p[:256]
		}
		return []interface{}{"message_type", "text", "bytes", len(data), "preview", p}
	}
	head := data[:min(16, len(data))]
	return []interface{}{"message_type", "binary", "bytes", len(data), "preview_hex", hex.EncodeToString(head)}
}
