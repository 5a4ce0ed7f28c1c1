package voice

import "errors"

// ErrBufferFull is returned when an append would take the accumulator past
// its configured cap.
var ErrBufferFull = errors.New("audio buffer full")

// Accumulator holds the PCM samples of one utterance window. It is not safe
// for concurrent use; Session guards it with its own mutex.
type Accumulator struct {
	samples []int16
	max     int
}

// NewAccumulator returns an empty accumulator. max <= 0 disables the cap.
func NewAccumulator(max int) *Accumulator {
	return &Accumulator{max: max}
}

// Append extends the buffer. When the cap would be exceeded nothing is
// appended and ErrBufferFull is returned.
func (a *Accumulator) Append(samples []int16) error {
	if a.max > 0 && len(a.samples)+len(samples) > a.max {
		return ErrBufferFull
	}
	a.samples = append(a.samples, samples...)
	return nil
}

// Snapshot returns the buffered samples as PCM16LE bytes without touching the
// buffer.
func (a *Accumulator) Snapshot() []byte {
	return SamplesToBytes(a.samples)
}

// Clear empties the buffer and releases its backing array.
func (a *Accumulator) Clear() {
	a.samples = nil
}

// Len is the number of buffered samples.
func (a *Accumulator) Len() int { return len(a.samples) }
