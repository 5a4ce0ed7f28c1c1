package voice

import (
	"context"
	"errors"
	"testing"
	"time"
)

type eventLog struct{ events []Event }

func (l *eventLog) emit(ev Event) { l.events = append(l.events, ev) }

func (l *eventLog) types() []string {
	out := make([]string, len(l.events))
	for i, ev := range l.events {
		out[i] = ev.EventType()
	}
	return out
}

func staticReply(text string) ReplyGenerator {
	return ReplyFunc(func(ctx context.Context, transcript string) (string, error) { return text, nil })
}

func TestRespondTextThenAudio(t *testing.T) {
	r := &ResponseOrchestrator{
		Replies: staticReply("I see."),
		Synth: synthFunc(func(ctx context.Context, text string) ([]int16, error) {
			return []int16{7, 8, 9}, nil
		}),
	}
	var log eventLog
	if err := r.Respond(context.Background(), "hello", log.emit); err != nil {
		t.Fatalf("Respond: %v", err)
	}
	if got := log.types(); !equalStrings(got, []string{"response_text", "response_audio"}) {
		t.Fatalf("events: %v", got)
	}
	if txt := log.events[0].(ResponseText); txt.Text != "I see." {
		t.Fatalf("text: %q", txt.Text)
	}
	if audio := log.events[1].(ResponseAudio); len(audio.Audio) != 3 {
		t.Fatalf("audio: %v", audio.Audio)
	}
}

func TestRespondSynthesisFailureKeepsText(t *testing.T) {
	boom := errors.New("tts down")
	r := &ResponseOrchestrator{
		Replies: staticReply("I see."),
		Synth: synthFunc(func(ctx context.Context, text string) ([]int16, error) {
			return nil, boom
		}),
	}
	var log eventLog
	err := r.Respond(context.Background(), "hello", log.emit)
	if !errors.Is(err, boom) {
		t.Fatalf("want synthesis error, got %v", err)
	}
	if got := log.types(); !equalStrings(got, []string{"response_text", "error"}) {
		t.Fatalf("events: %v", got)
	}
	if ev := log.events[1].(ErrorEvent); ev.Message != "Failed to generate response" || ev.Error == nil {
		t.Fatalf("error event: %+v", ev)
	}
}

func TestRespondSynthesisTimeout(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	r := &ResponseOrchestrator{
		Replies: staticReply("I see."),
		Synth: synthFunc(func(ctx context.Context, text string) ([]int16, error) {
			<-release
			return []int16{1}, nil
		}),
		Timeout: 20 * time.Millisecond,
	}
	var log eventLog
	err := r.Respond(context.Background(), "hello", log.emit)
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("want ErrTimeout, got %v", err)
	}
	if got := log.types(); !equalStrings(got, []string{"response_text", "error"}) {
		t.Fatalf("events: %v", got)
	}
}

func TestRespondReplyFailure(t *testing.T) {
	synthCalled := false
	r := &ResponseOrchestrator{
		Replies: ReplyFunc(func(ctx context.Context, transcript string) (string, error) {
			return "", errors.New("llm unavailable")
		}),
		Synth: synthFunc(func(ctx context.Context, text string) ([]int16, error) {
			synthCalled = true
			return nil, nil
		}),
	}
	var log eventLog
	if err := r.Respond(context.Background(), "hello", log.emit); err == nil {
		t.Fatalf("expected error")
	}
	if got := log.types(); !equalStrings(got, []string{"error"}) {
		t.Fatalf("events: %v", got)
	}
	if synthCalled {
		t.Fatalf("synthesizer must not run without reply text")
	}
}

func TestRespondNoAudio(t *testing.T) {
	r := &ResponseOrchestrator{
		Replies: staticReply("ok"),
		Synth: synthFunc(func(ctx context.Context, text string) ([]int16, error) {
			return nil, nil
		}),
	}
	var log eventLog
	if err := r.Respond(context.Background(), "hello", log.emit); err != nil {
		t.Fatalf("Respond: %v", err)
	}
	if got := log.types(); !equalStrings(got, []string{"response_text"}) {
		t.Fatalf("events: %v", got)
	}
}
