package voice

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/voice-session-lab/internal/logging"
	"github.com/voice-session-lab/internal/metrics"
)

// DefaultTTSTimeout bounds the single speech synthesis call of a reply.
const DefaultTTSTimeout = 15 * time.Second

// ReplyGenerator produces the reply text for a transcript.
type ReplyGenerator interface {
	Reply(ctx context.Context, transcript string) (string, error)
}

// ReplyFunc adapts a function to ReplyGenerator.
type ReplyFunc func(ctx context.Context, transcript string) (string, error)

func (f ReplyFunc) Reply(ctx context.Context, transcript string) (string, error) {
	return f(ctx, transcript)
}

// ResponseOrchestrator turns a transcript into a response_text event and,
// when a synthesizer is configured, a response_audio event.
type ResponseOrchestrator struct {
	Replies ReplyGenerator
	Synth   Synthesizer
	// Timeout bounds the synthesis call; zero means DefaultTTSTimeout.
	Timeout time.Duration
	Metrics *metrics.Metrics
	Clock   Clock
}

// Respond emits response_text before synthesis starts, so a synthesis
// failure or timeout is reported as an error event without retracting the
// text already sent.
func (r *ResponseOrchestrator) Respond(ctx context.Context, transcript string, emit func(Event)) error {
	clock := r.Clock
	if clock == nil {
		clock = SystemClock
	}
	if r.Replies == nil {
		err := errors.New("no reply generator configured")
		emit(NewErrorEvent("Failed to generate response", err))
		return err
	}
	text, err := r.Replies.Reply(ctx, transcript)
	if err == nil && strings.TrimSpace(text) == "" {
		err = errors.New("reply generator returned empty text")
	}
	if err != nil {
		logging.WarnwCtx(ctx, "respond: reply generation failed", "err", err)
		emit(NewErrorEvent("Failed to generate response", err))
		return fmt.Errorf("reply: %w", err)
	}
	emit(ResponseText{Text: text, Timestamp: clock.Now().UnixMilli()})

	if r.Synth == nil {
		logging.DebugwCtx(ctx, "respond: no synthesizer configured, text only")
		return nil
	}
	timeout := r.Timeout
	if timeout <= 0 {
		timeout = DefaultTTSTimeout
	}
	samples, err := callWithTimeout(ctx, timeout, func(actx context.Context) ([]int16, error) {
		return r.Synth.Synthesize(actx, text)
	})
	if err != nil {
		outcome := "error"
		if errors.Is(err, ErrTimeout) {
			outcome = "timeout"
		}
		r.Metrics.TTSRequest(outcome)
		logging.WarnwCtx(ctx, "respond: synthesis failed", "outcome", outcome, "err", err)
		emit(NewErrorEvent("Failed to generate response", err))
		return fmt.Errorf("synthesize: %w", err)
	}
	if len(samples) == 0 {
		r.Metrics.TTSRequest("empty")
		logging.DebugwCtx(ctx, "respond: synthesizer returned no audio")
		return nil
	}
	r.Metrics.TTSRequest("ok")
	emit(ResponseAudio{Audio: samples, Timestamp: clock.Now().UnixMilli()})
	return nil
}
