package voice

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/multierr"

	"github.com/voice-session-lab/internal/logging"
	"github.com/voice-session-lab/internal/metrics"
)

// DefaultSTTTimeout bounds a single transcription attempt.
const DefaultSTTTimeout = 20 * time.Second

var (
	// ErrAllCandidatesFailed matches the aggregate error returned when every
	// candidate request encoding was rejected or timed out.
	ErrAllCandidatesFailed = errors.New("all transcription candidates failed")
	// ErrTimeout marks an external call abandoned after its time budget.
	ErrTimeout = errors.New("external call timed out")
)

// STTRequest is one encoding of the utterance WAV. Exactly one of Raw and
// JSON is set: Raw is sent as the request body verbatim, JSON is marshalled.
type STTRequest struct {
	Candidate string
	Raw       []byte
	JSON      any
}

// Recognizer is the external speech-to-text service. A returned error means
// the request shape was rejected or the call failed.
type Recognizer interface {
	Recognize(ctx context.Context, req STTRequest) (map[string]any, error)
}

// wavForms holds the encodings of one WAV payload shared by all candidates.
type wavForms struct {
	wav     []byte
	base64  string
	dataURL string
}

// Candidate is one request shape for the external recognizer.
type Candidate struct {
	Name  string
	Build func(w wavForms) STTRequest
}

func jsonCandidate(name string, build func(w wavForms) any) Candidate {
	return Candidate{Name: name, Build: func(w wavForms) STTRequest {
		return STTRequest{Candidate: name, JSON: build(w)}
	}}
}

// candidateTable lists the request shapes in priority order. The recognizer's
// accepted schema is not known in advance, so the first shape it accepts wins.
var candidateTable = []Candidate{
	{Name: "raw-wav", Build: func(w wavForms) STTRequest {
		return STTRequest{Candidate: "raw-wav", Raw: w.wav}
	}},
	jsonCandidate("audio-base64", func(w wavForms) any { return map[string]any{"audio": w.base64} }),
	jsonCandidate("audio-data-url", func(w wavForms) any { return map[string]any{"audio": w.dataURL} }),
	jsonCandidate("string-data-url", func(w wavForms) any { return w.dataURL }),
	jsonCandidate("audio-byte-array", func(w wavForms) any { return map[string]any{"audio": byteArray(w.wav)} }),
	jsonCandidate("input-data-url", func(w wavForms) any { return map[string]any{"input": w.dataURL} }),
	jsonCandidate("audio-content", func(w wavForms) any {
		return map[string]any{"audio": map[string]any{"content": w.base64}}
	}),
	jsonCandidate("audio-data", func(w wavForms) any {
		return map[string]any{"audio": map[string]any{"data": w.base64}}
	}),
	jsonCandidate("file-data-url", func(w wavForms) any { return map[string]any{"file": w.dataURL} }),
	jsonCandidate("content-data-url", func(w wavForms) any { return map[string]any{"content": w.dataURL} }),
	jsonCandidate("input-audio", func(w wavForms) any {
		return map[string]any{"input": map[string]any{"audio": w.dataURL}}
	}),
	jsonCandidate("audio-url", func(w wavForms) any { return map[string]any{"audio_url": w.dataURL} }),
	jsonCandidate("url", func(w wavForms) any { return map[string]any{"url": w.dataURL} }),
	jsonCandidate("media", func(w wavForms) any { return map[string]any{"media": w.dataURL} }),
}

// byteArray widens bytes to ints so they marshal as a JSON number array
// instead of a base64 string.
func byteArray(b []byte) []int {
	out := make([]int, len(b))
	for i, v := range b {
		out[i] = int(v)
	}
	return out
}

// DefaultCandidates returns a copy of the full candidate table.
func DefaultCandidates() []Candidate {
	return append([]Candidate(nil), candidateTable...)
}

// CandidateNames lists the known candidate names in default order.
func CandidateNames() []string {
	names := make([]string, len(candidateTable))
	for i, c := range candidateTable {
		names[i] = c.Name
	}
	return names
}

// SelectCandidates returns the named candidates in the given order. An empty
// list selects the whole table.
func SelectCandidates(names []string) ([]Candidate, error) {
	if len(names) == 0 {
		return DefaultCandidates(), nil
	}
	byName := make(map[string]Candidate, len(candidateTable))
	for _, c := range candidateTable {
		byName[c.Name] = c
	}
	out := make([]Candidate, 0, len(names))
	seen := make(map[string]bool, len(names))
	for _, n := range names {
		n = strings.TrimSpace(n)
		c, ok := byName[n]
		if !ok {
			return nil, fmt.Errorf("unknown transcription candidate %q", n)
		}
		if seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, c)
	}
	return out, nil
}

// CandidateFailure records why one candidate did not produce a transcript.
type CandidateFailure struct {
	Candidate string
	Err       error
}

// CandidatesError is returned when every candidate failed. It matches
// ErrAllCandidatesFailed with errors.Is and unwraps to the individual causes.
type CandidatesError struct {
	Failures []CandidateFailure
	causes   error
}

func (e *CandidatesError) Error() string {
	return fmt.Sprintf("%s (%d attempts)", ErrAllCandidatesFailed.Error(), len(e.Failures))
}

func (e *CandidatesError) Is(target error) bool { return target == ErrAllCandidatesFailed }

func (e *CandidatesError) Unwrap() []error { return multierr.Errors(e.causes) }

// Trace lists one line per failed candidate.
func (e *CandidatesError) Trace() []string {
	lines := make([]string, len(e.Failures))
	for i, f := range e.Failures {
		lines[i] = f.Candidate + ": " + f.Err.Error()
	}
	return lines
}

// TranscriptionInvoker drives the external recognizer through the candidate
// table, one attempt at a time.
type TranscriptionInvoker struct {
	Recognizer Recognizer
	Candidates []Candidate
	// Timeout bounds each attempt; zero means DefaultSTTTimeout.
	Timeout time.Duration
	Metrics *metrics.Metrics
}

func NewTranscriptionInvoker(r Recognizer, candidates []Candidate, timeout time.Duration, m *metrics.Metrics) *TranscriptionInvoker {
	if len(candidates) == 0 {
		candidates = DefaultCandidates()
	}
	return &TranscriptionInvoker{Recognizer: r, Candidates: candidates, Timeout: timeout, Metrics: m}
}

// Transcribe wraps pcm (PCM16LE mono at SampleRate) in a WAV container and
// returns the transcript from the first candidate the recognizer accepts.
// Attempts are sequential and never retried; when all fail the error is a
// *CandidatesError.
func (t *TranscriptionInvoker) Transcribe(ctx context.Context, pcm []byte) (string, error) {
	if t.Recognizer == nil {
		return "", errors.New("no speech-to-text service configured")
	}
	if len(t.Candidates) == 0 {
		return "", errors.New("no transcription candidates configured")
	}
	timeout := t.Timeout
	if timeout <= 0 {
		timeout = DefaultSTTTimeout
	}

	wav := EncodeWAV(pcm, SampleRate)
	b64 := base64.StdEncoding.EncodeToString(wav)
	forms := wavForms{wav: wav, base64: b64, dataURL: "data:audio/wav;base64," + b64}

	agg := &CandidatesError{}
	for i, c := range t.Candidates {
		if err := ctx.Err(); err != nil {
			return "", fmt.Errorf("transcription abandoned: %w", err)
		}
		req := c.Build(forms)
		logging.DebugwCtx(ctx, "stt: attempt", logging.AttemptFields(c.Name, i+1)...)
		start := time.Now()
		resp, err := callWithTimeout(ctx, timeout, func(actx context.Context) (map[string]any, error) {
			return t.Recognizer.Recognize(actx, req)
		})
		elapsed := time.Since(start)
		if err != nil {
			outcome := "rejected"
			if errors.Is(err, ErrTimeout) {
				outcome = "timeout"
			}
			t.Metrics.STTAttempt(c.Name, outcome, elapsed)
			logging.WarnwCtx(ctx, "stt: attempt failed", "candidate", c.Name, "attempt", i+1, "outcome", outcome, "err", err)
			agg.Failures = append(agg.Failures, CandidateFailure{Candidate: c.Name, Err: err})
			agg.causes = multierr.Append(agg.causes, fmt.Errorf("%s: %w", c.Name, err))
			continue
		}
		t.Metrics.STTAttempt(c.Name, "ok", elapsed)
		text := transcriptText(resp)
		logging.InfowCtx(ctx, "stt: attempt succeeded", "candidate", c.Name, "attempt", i+1, "elapsed_ms", elapsed.Milliseconds(), "text_len", len(text))
		return text, nil
	}
	return "", agg
}

// transcriptText accepts either a "text" or a "transcript" field; a missing
// field is an empty transcript, not an error.
func transcriptText(resp map[string]any) string {
	for _, key := range []string{"text", "transcript"} {
		if s, ok := resp[key].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

// callWithTimeout races fn against a timer. fn receives a context carrying
// the deadline; if fn ignores it, its result is simply discarded.
func callWithTimeout[T any](ctx context.Context, d time.Duration, fn func(context.Context) (T, error)) (T, error) {
	actx, cancel := context.WithTimeout(ctx, d)
	defer cancel()

	type result struct {
		v   T
		err error
	}
	done := make(chan result, 1)
	go func() {
		v, err := fn(actx)
		done <- result{v, err}
	}()

	select {
	case r := <-done:
		if r.err != nil && ctx.Err() == nil && errors.Is(actx.Err(), context.DeadlineExceeded) {
			return r.v, fmt.Errorf("%w after %s: %v", ErrTimeout, d, r.err)
		}
		return r.v, r.err
	case <-actx.Done():
		var zero T
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}
		return zero, fmt.Errorf("%w after %s", ErrTimeout, d)
	}
}
