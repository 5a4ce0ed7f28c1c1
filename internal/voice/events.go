package voice

import (
	"encoding/json"
	"errors"
	"strings"
)

// Event is an outbound message. Every event is sent as one JSON text message.
type Event interface {
	EventType() string
}

type ChunkReceived struct {
	ChunkSize  int `json:"chunk_size"`
	BufferSize int `json:"buffer_size"`
}

type Transcription struct {
	Text      string `json:"text"`
	Timestamp int64  `json:"timestamp"`
}

type ResponseText struct {
	Text      string `json:"text"`
	Timestamp int64  `json:"timestamp"`
}

type ResponseAudio struct {
	Audio     []int16 `json:"audio"`
	Timestamp int64   `json:"timestamp"`
}

type EchoWAV struct {
	WAVBase64  string `json:"wavBase64"`
	SampleRate int    `json:"sampleRate"`
	Samples    int    `json:"samples"`
}

type Pong struct {
	Timestamp int64 `json:"timestamp"`
}

// ErrorDetail carries the underlying cause of an ErrorEvent. Trace is a
// short, newline separated failure trace (at most five lines).
type ErrorDetail struct {
	Message string `json:"message"`
	Trace   string `json:"trace,omitempty"`
}

type ErrorEvent struct {
	Message string       `json:"message"`
	Error   *ErrorDetail `json:"error,omitempty"`
	Size    int          `json:"size,omitempty"`
}

type SessionClosed struct {
	Reason string `json:"reason"`
}

// ProcessingDebug is emitted before a transcription pass on sessions opened
// with debugging enabled.
type ProcessingDebug struct {
	BytesLength int    `json:"bytesLength"`
	Samples     int    `json:"samples"`
	SampleRate  int    `json:"sampleRate"`
	HeadBase64  string `json:"headBase64"`
	TailBase64  string `json:"tailBase64"`
	Timestamp   int64  `json:"timestamp"`
}

func (ChunkReceived) EventType() string   { return "chunk_received" }
func (Transcription) EventType() string   { return "transcription" }
func (ResponseText) EventType() string    { return "response_text" }
func (ResponseAudio) EventType() string   { return "response_audio" }
func (EchoWAV) EventType() string         { return "echo_wav" }
func (Pong) EventType() string            { return "pong" }
func (ErrorEvent) EventType() string      { return "error" }
func (SessionClosed) EventType() string   { return "session_closed" }
func (ProcessingDebug) EventType() string { return "processing_debug" }

// Reasons carried by session_closed.
const ReasonIdleTimeout = "idle_timeout"

// EncodeEvent renders ev as a JSON object whose "type" field is the event
// type, followed by the event's own fields.
func EncodeEvent(ev Event) ([]byte, error) {
	body, err := json.Marshal(ev)
	if err != nil {
		return nil, err
	}
	head, err := json.Marshal(ev.EventType())
	if err != nil {
		return nil, err
	}
	var b strings.Builder
	b.Grow(len(body) + len(head) + 9)
	b.WriteString(`{"type":`)
	b.Write(head)
	if len(body) > 2 {
		b.WriteByte(',')
		b.Write(body[1:])
	} else {
		b.WriteByte('}')
	}
	return []byte(b.String()), nil
}

// NewErrorEvent builds an error event for a failure with the given
// client-facing summary.
func NewErrorEvent(message string, err error) ErrorEvent {
	ev := ErrorEvent{Message: message}
	if err != nil {
		ev.Error = &ErrorDetail{Message: err.Error(), Trace: traceOf(err)}
	}
	return ev
}

type tracer interface {
	Trace() []string
}

// traceOf returns up to five lines describing err's individual causes.
func traceOf(err error) string {
	var t tracer
	if !errors.As(err, &t) {
		return ""
	}
	lines := t.Trace()
	if len(lines) > 5 {
		lines = lines[:5]
	}
	return strings.Join(lines, "\n")
}
