package voice

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"

	"github.com/gorilla/websocket"
)

// AudioFrameTag marks a binary message as a PCM audio frame.
const AudioFrameTag = 0x01

// audioFrameHeaderLen is the tag byte plus the u16 sample count.
const audioFrameHeaderLen = 3

// Control message types accepted from clients.
const (
	TypeAudioChunk = "audio_chunk"
	TypeEndStream  = "end_stream"
	TypePing       = "ping"
	TypeDumpWAV    = "dump_wav"
	TypeEchoWAV    = "echo_wav"
)

// InboundKind classifies a decoded inbound message.
type InboundKind int

const (
	KindAudio InboundKind = iota + 1
	KindControl
)

func (k InboundKind) String() string {
	switch k {
	case KindAudio:
		return "audio"
	case KindControl:
		return "control"
	default:
		return "unknown"
	}
}

// ControlMessage is a JSON control message. Audio is only populated for the
// legacy audio_chunk path; it is nil when the field is absent or null.
type ControlMessage struct {
	Type  string     `json:"type"`
	Audio PCMSamples `json:"audio,omitempty"`
}

// PCMSamples decodes a JSON number array into 16-bit samples. Values are
// truncated and wrapped modulo 2^16, so 40000 becomes -25536.
type PCMSamples []int16

func (p *PCMSamples) UnmarshalJSON(b []byte) error {
	if bytes.Equal(bytes.TrimSpace(b), []byte("null")) {
		return nil
	}
	var raw []float64
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	out := make(PCMSamples, len(raw))
	for i, f := range raw {
		out[i] = wrapInt16(f)
	}
	*p = out
	return nil
}

func wrapInt16(f float64) int16 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return int16(int64(math.Mod(math.Trunc(f), 65536)))
}

// Inbound is one decoded client message.
type Inbound struct {
	Kind    InboundKind
	Samples []int16
	Control ControlMessage
}

// FramingError reports a message that could not be decoded. It never ends a
// session; the router turns it into an outbound error event.
type FramingError struct {
	// Message is the client-facing summary.
	Message string
	Err     error
}

func (e *FramingError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return e.Message + ": " + e.Err.Error()
}

func (e *FramingError) Unwrap() error { return e.Err }

// DecodeInbound classifies and decodes one message payload. Binary messages
// that start with AudioFrameTag and carry at least a full header are audio
// frames; text messages and all other binary payloads are parsed as JSON
// control messages.
func DecodeInbound(messageType int, data []byte) (Inbound, error) {
	if messageType != websocket.TextMessage && len(data) >= audioFrameHeaderLen && data[0] == AudioFrameTag {
		samples, err := decodeAudioFrame(data)
		if err != nil {
			return Inbound{}, &FramingError{Message: "Invalid binary frame", Err: err}
		}
		return Inbound{Kind: KindAudio, Samples: samples}, nil
	}
	var msg ControlMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return Inbound{}, &FramingError{Message: "Invalid message format", Err: err}
	}
	return Inbound{Kind: KindControl, Control: msg}, nil
}

func decodeAudioFrame(data []byte) ([]int16, error) {
	n := int(binary.LittleEndian.Uint16(data[1:3]))
	need := audioFrameHeaderLen + 2*n
	if len(data) < need {
		return nil, fmt.Errorf("binary frame too short: declared %d samples (%d bytes), got %d bytes", n, need, len(data))
	}
	return BytesToSamples(data[audioFrameHeaderLen:need]), nil
}

// EncodeAudioFrame builds a binary audio frame. It is the client-side
// counterpart of DecodeInbound and is used by tests and tooling.
func EncodeAudioFrame(samples []int16) ([]byte, error) {
	if len(samples) > 0xFFFF {
		return nil, fmt.Errorf("audio frame holds at most %d samples, got %d", 0xFFFF, len(samples))
	}
	out := make([]byte, audioFrameHeaderLen, audioFrameHeaderLen+2*len(samples))
	out[0] = AudioFrameTag
	binary.LittleEndian.PutUint16(out[1:3], uint16(len(samples)))
	return append(out, SamplesToBytes(samples)...), nil
}
