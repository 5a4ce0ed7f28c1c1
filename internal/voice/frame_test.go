package voice

import (
	"errors"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
)

func TestDecodeInbound(t *testing.T) {
	cases := []struct {
		name    string
		text    bool
		data    []byte
		kind    InboundKind
		samples []int16
		ctrl    string
		errMsg  string
	}{
		{name: "audio frame", data: []byte{0x01, 0x02, 0x00, 0x01, 0x00, 0xFF, 0xFF}, kind: KindAudio, samples: []int16{1, -1}},
		{name: "empty audio frame", data: []byte{0x01, 0x00, 0x00}, kind: KindAudio, samples: []int16{}},
		{name: "trailing bytes ignored", data: []byte{0x01, 0x01, 0x00, 0x05, 0x00, 0xAA}, kind: KindAudio, samples: []int16{5}},
		{name: "short audio frame", data: []byte{0x01, 0x03, 0x00, 0x01, 0x00}, errMsg: "Invalid binary frame"},
		{name: "end_stream", data: []byte(`{"type":"end_stream"}`), kind: KindControl, ctrl: TypeEndStream},
		{name: "legacy audio chunk", data: []byte(`{"type":"audio_chunk","audio":[3,-3]}`), kind: KindControl, ctrl: TypeAudioChunk, samples: []int16{3, -3}},
		{name: "unknown type", data: []byte(`{"type":"hello"}`), kind: KindControl, ctrl: "hello"},
		{name: "bad json", data: []byte(`{"type":`), errMsg: "Invalid message format"},
		{name: "tag without header falls to json", data: []byte{0x01, 0x00}, errMsg: "Invalid message format"},
		{name: "other tag falls to json", data: []byte{0x02, 0x00, 0x00}, errMsg: "Invalid message format"},
		{name: "text message is never audio", text: true, data: []byte("\x01\x01\x00AB"), errMsg: "Invalid message format"},
		{name: "text json", text: true, data: []byte(`{"type":"ping"}`), kind: KindControl, ctrl: TypePing},
		{name: "chunk samples wrap", data: []byte(`{"type":"audio_chunk","audio":[40000,-40000,1.9,65536]}`), kind: KindControl, ctrl: TypeAudioChunk, samples: []int16{-25536, 25536, 1, 0}},
		{name: "empty chunk", data: []byte(`{"type":"audio_chunk","audio":[]}`), kind: KindControl, ctrl: TypeAudioChunk, samples: []int16{}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			mt := websocket.BinaryMessage
			if tc.text {
				mt = websocket.TextMessage
			}
			in, err := DecodeInbound(mt, tc.data)
			if tc.errMsg != "" {
				var fe *FramingError
				if !errors.As(err, &fe) {
					t.Fatalf("want FramingError, got %v", err)
				}
				if fe.Message != tc.errMsg {
					t.Fatalf("message: want=%q got=%q", tc.errMsg, fe.Message)
				}
				return
			}
			if err != nil {
				t.Fatalf("DecodeInbound: %v", err)
			}
			if in.Kind != tc.kind {
				t.Fatalf("kind: want=%v got=%v", tc.kind, in.Kind)
			}
			got := in.Samples
			if tc.kind == KindControl {
				if in.Control.Type != tc.ctrl {
					t.Fatalf("control type: want=%q got=%q", tc.ctrl, in.Control.Type)
				}
				got = in.Control.Audio
			}
			if len(got) != len(tc.samples) {
				t.Fatalf("samples: want=%v got=%v", tc.samples, got)
			}
			for i := range got {
				if got[i] != tc.samples[i] {
					t.Fatalf("samples: want=%v got=%v", tc.samples, got)
				}
			}
		})
	}
}

func TestAudioChunkMissingAudioIsNil(t *testing.T) {
	for _, msg := range []string{`{"type":"audio_chunk"}`, `{"type":"audio_chunk","audio":null}`} {
		in, err := DecodeInbound(websocket.TextMessage, []byte(msg))
		if err != nil {
			t.Fatalf("DecodeInbound(%s): %v", msg, err)
		}
		if in.Control.Audio != nil {
			t.Fatalf("%s: audio should be nil, got %v", msg, in.Control.Audio)
		}
	}
}

func TestEncodeAudioFrameRoundTrip(t *testing.T) {
	samples := []int16{0, 1, -1, 32767, -32768}
	frame, err := EncodeAudioFrame(samples)
	if err != nil {
		t.Fatalf("EncodeAudioFrame: %v", err)
	}
	if len(frame) != 3+2*len(samples) {
		t.Fatalf("frame length: %d", len(frame))
	}
	in, err := DecodeInbound(websocket.BinaryMessage, frame)
	if err != nil {
		t.Fatalf("DecodeInbound: %v", err)
	}
	for i := range samples {
		if in.Samples[i] != samples[i] {
			t.Fatalf("sample %d: want=%d got=%d", i, samples[i], in.Samples[i])
		}
	}
	if _, err := EncodeAudioFrame(make([]int16, 0x10000)); err == nil {
		t.Fatalf("expected error for oversized frame")
	}
}

func TestEncodeEvent(t *testing.T) {
	b, err := EncodeEvent(ChunkReceived{ChunkSize: 3, BufferSize: 9})
	if err != nil {
		t.Fatalf("EncodeEvent: %v", err)
	}
	if got := string(b); got != `{"type":"chunk_received","chunk_size":3,"buffer_size":9}` {
		t.Fatalf("unexpected encoding: %s", got)
	}
	b, _ = EncodeEvent(ErrorEvent{Message: "Invalid message format"})
	if got := string(b); got != `{"type":"error","message":"Invalid message format"}` {
		t.Fatalf("unexpected encoding: %s", got)
	}
}

func TestNewErrorEventTraceCapped(t *testing.T) {
	agg := &CandidatesError{}
	for _, n := range CandidateNames() {
		agg.Failures = append(agg.Failures, CandidateFailure{Candidate: n, Err: errRejected})
	}
	ev := NewErrorEvent("Failed to process audio", agg)
	if ev.Error == nil {
		t.Fatalf("expected error detail")
	}
	if lines := strings.Split(ev.Error.Trace, "\n"); len(lines) != 5 {
		t.Fatalf("trace lines: want=5 got=%d", len(lines))
	}
}
