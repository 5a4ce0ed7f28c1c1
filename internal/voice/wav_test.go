package voice

import (
	"encoding/binary"
	"errors"
	"testing"
)

func TestEncodeWAVHeader(t *testing.T) {
	pcm := SamplesToBytes([]int16{1, 2, 3, 4})
	wav := EncodeWAV(pcm, SampleRate)
	if len(wav) != 44+len(pcm) {
		t.Fatalf("length: want=%d got=%d", 44+len(pcm), len(wav))
	}
	checks := []struct {
		name string
		got  uint32
		want uint32
	}{
		{"riff size", binary.LittleEndian.Uint32(wav[4:8]), uint32(36 + len(pcm))},
		{"fmt size", binary.LittleEndian.Uint32(wav[16:20]), 16},
		{"format", uint32(binary.LittleEndian.Uint16(wav[20:22])), 1},
		{"channels", uint32(binary.LittleEndian.Uint16(wav[22:24])), 1},
		{"sample rate", binary.LittleEndian.Uint32(wav[24:28]), 16000},
		{"byte rate", binary.LittleEndian.Uint32(wav[28:32]), 32000},
		{"block align", uint32(binary.LittleEndian.Uint16(wav[32:34])), 2},
		{"bits", uint32(binary.LittleEndian.Uint16(wav[34:36])), 16},
		{"data size", binary.LittleEndian.Uint32(wav[40:44]), uint32(len(pcm))},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Fatalf("%s: want=%d got=%d", c.name, c.want, c.got)
		}
	}
	for off, tag := range map[int]string{0: "RIFF", 8: "WAVE", 12: "fmt ", 36: "data"} {
		if string(wav[off:off+4]) != tag {
			t.Fatalf("tag at %d: want=%q got=%q", off, tag, wav[off:off+4])
		}
	}
}

func TestDecodeWAVRoundTrip(t *testing.T) {
	in := []int16{-32768, -1, 0, 1, 32767}
	out, info, err := DecodeWAV(EncodeWAV(SamplesToBytes(in), SampleRate))
	if err != nil {
		t.Fatalf("DecodeWAV: %v", err)
	}
	if info.SampleRate != SampleRate || info.Channels != 1 || info.BitsPerSample != 16 {
		t.Fatalf("unexpected info: %+v", info)
	}
	if len(out) != len(in) {
		t.Fatalf("samples: want=%v got=%v", in, out)
	}
	for i := range in {
		if in[i] != out[i] {
			t.Fatalf("sample %d: want=%d got=%d", i, in[i], out[i])
		}
	}
}

func TestDecodeWAVRejectsNonWAV(t *testing.T) {
	if _, _, err := DecodeWAV([]byte("not audio at all")); !errors.Is(err, ErrNotWAV) {
		t.Fatalf("want ErrNotWAV, got %v", err)
	}
}

func TestDecodeWAVOversizedChunkLength(t *testing.T) {
	wav := EncodeWAV([]byte{1, 0, 2, 0}, SampleRate)
	binary.LittleEndian.PutUint32(wav[40:44], 0xFFFFFFFF)
	samples, _, err := DecodeWAV(wav)
	if err != nil {
		t.Fatalf("DecodeWAV: %v", err)
	}
	if len(samples) != 2 || samples[0] != 1 || samples[1] != 2 {
		t.Fatalf("samples: %v", samples)
	}

	junk := append([]byte("RIFF\x00\x00\x00\x00WAVELIST"), 0xFF, 0xFF, 0xFF, 0xFF, 0, 0)
	if _, _, err := DecodeWAV(junk); err == nil {
		t.Fatalf("want missing fmt error")
	}
}

func TestAccumulator(t *testing.T) {
	a := NewAccumulator(5)
	if err := a.Append([]int16{1, 2, 3}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	snap := a.Snapshot()
	if len(snap) != 6 || a.Len() != 3 {
		t.Fatalf("snapshot: len=%d buffered=%d", len(snap), a.Len())
	}
	if err := a.Append([]int16{4, 5, 6}); !errors.Is(err, ErrBufferFull) {
		t.Fatalf("want ErrBufferFull, got %v", err)
	}
	if a.Len() != 3 {
		t.Fatalf("rejected append must not change the buffer, len=%d", a.Len())
	}
	if err := a.Append([]int16{4, 5}); err != nil {
		t.Fatalf("Append up to cap: %v", err)
	}
	// Snapshot taken earlier is unaffected by later appends.
	if len(snap) != 6 {
		t.Fatalf("snapshot mutated")
	}
	a.Clear()
	if a.Len() != 0 || len(a.Snapshot()) != 0 {
		t.Fatalf("Clear left %d samples", a.Len())
	}
}
