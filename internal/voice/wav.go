package voice

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	// SampleRate is the fixed rate of every PCM buffer handled by a session.
	SampleRate = 16000
	// wavHeaderLen is the size of the canonical RIFF/WAVE header.
	wavHeaderLen = 44
	// MaxDumpBytes caps the encoded size of a debug WAV dump.
	MaxDumpBytes = 2 * 1024 * 1024
)

var ErrNotWAV = errors.New("not a RIFF/WAVE payload")

// EncodeWAV prefixes PCM16LE mono bytes with the canonical 44-byte RIFF/WAVE
// header for the given sample rate.
func EncodeWAV(pcm []byte, sampleRate int) []byte {
	const channels, bitsPerSample = 1, 16
	byteRate := uint32(sampleRate * channels * bitsPerSample / 8)
	blockAlign := uint16(channels * bitsPerSample / 8)
	dataLen := uint32(len(pcm))

	buf := bytes.NewBuffer(make([]byte, 0, wavHeaderLen+len(pcm)))
	buf.WriteString("RIFF")
	_ = binary.Write(buf, binary.LittleEndian, 36+dataLen)
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	_ = binary.Write(buf, binary.LittleEndian, uint32(16))
	_ = binary.Write(buf, binary.LittleEndian, uint16(1))
	_ = binary.Write(buf, binary.LittleEndian, uint16(channels))
	_ = binary.Write(buf, binary.LittleEndian, uint32(sampleRate))
	_ = binary.Write(buf, binary.LittleEndian, byteRate)
	_ = binary.Write(buf, binary.LittleEndian, blockAlign)
	_ = binary.Write(buf, binary.LittleEndian, uint16(bitsPerSample))
	buf.WriteString("data")
	_ = binary.Write(buf, binary.LittleEndian, dataLen)
	buf.Write(pcm)
	return buf.Bytes()
}

// WAVInfo is the subset of the fmt chunk callers care about.
type WAVInfo struct {
	SampleRate    int
	Channels      int
	BitsPerSample int
}

// DecodeWAV returns the samples of a 16-bit PCM WAV payload. Chunks other
// than fmt and data are skipped so headers written by other encoders (LIST,
// fact) are accepted too.
func DecodeWAV(data []byte) ([]int16, WAVInfo, error) {
	var info WAVInfo
	if len(data) < 12 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return nil, info, ErrNotWAV
	}
	var pcm []byte
	haveFmt := false
	for off := 12; off+8 <= len(data); {
		id := string(data[off : off+4])
		size := binary.LittleEndian.Uint32(data[off+4 : off+8])
		body := off + 8
		end := len(data)
		// Streaming encoders sometimes write a placeholder length.
		if uint64(size) <= uint64(len(data)-body) {
			end = body + int(size)
		}
		switch id {
		case "fmt ":
			if end-body < 16 {
				return nil, info, fmt.Errorf("wav: fmt chunk too short (%d bytes)", end-body)
			}
			if format := binary.LittleEndian.Uint16(data[body : body+2]); format != 1 {
				return nil, info, fmt.Errorf("wav: unsupported audio format %d (only PCM)", format)
			}
			info.Channels = int(binary.LittleEndian.Uint16(data[body+2 : body+4]))
			info.SampleRate = int(binary.LittleEndian.Uint32(data[body+4 : body+8]))
			info.BitsPerSample = int(binary.LittleEndian.Uint16(data[body+14 : body+16]))
			haveFmt = true
		case "data":
			pcm = data[body:end]
		}
		off = end + int(size%2)
		if pcm != nil {
			break
		}
	}
	if !haveFmt {
		return nil, info, fmt.Errorf("wav: missing fmt chunk")
	}
	if pcm == nil {
		return nil, info, fmt.Errorf("wav: missing data chunk")
	}
	if info.BitsPerSample != 16 {
		return nil, info, fmt.Errorf("wav: unsupported bit depth %d (only 16-bit)", info.BitsPerSample)
	}
	return BytesToSamples(pcm), info, nil
}

// SamplesToBytes renders samples as little-endian 16-bit PCM.
func SamplesToBytes(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}

// BytesToSamples reads little-endian 16-bit PCM. A trailing odd byte is
// ignored.
func BytesToSamples(pcm []byte) []int16 {
	out := make([]int16, len(pcm)/2)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(pcm[i*2:]))
	}
	return out
}
