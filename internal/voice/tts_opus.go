//go:build opus
// +build opus

package voice

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/hraban/opus"
)

// opusRate is the rate libopus decodes at.
const opusRate = 48000

// decodeOpus decodes an Ogg/Opus stream to mono samples at SampleRate.
func decodeOpus(body []byte) ([]int16, error) {
	s, err := opus.NewStream(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("opus stream: %w", err)
	}
	defer s.Close()

	var decoded []int16
	pcm := make([]int16, opusRate/50)
	for {
		n, err := s.Read(pcm)
		if n > 0 {
			decoded = append(decoded, pcm[:n]...)
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("opus decode: %w", err)
		}
	}
	return decimate48k(decoded), nil
}

// decimate48k averages each run of three samples, 48 kHz to 16 kHz.
func decimate48k(in []int16) []int16 {
	const factor = opusRate / SampleRate
	out := make([]int16, len(in)/factor)
	for i := range out {
		sum := 0
		for j := 0; j < factor; j++ {
			sum += int(in[i*factor+j])
		}
		out[i] = int16(sum / factor)
	}
	return out
}
