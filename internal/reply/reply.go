// Package reply holds the reply-text generators a voice session can use:
// canned phrases, an OpenAI-compatible LLM, an MCP tool, and a chain that
// falls through them in order.
package reply

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"go.uber.org/multierr"

	"github.com/voice-session-lab/internal/logging"
	"github.com/voice-session-lab/llm"
)

// DefaultPhrases are the stock replies of the canned generator.
var DefaultPhrases = []string{
	"I understand. Can you tell me more?",
	"That's interesting. How can I help you?",
	"Thank you for that information. What else would you like to know?",
	"I see. Let me help you with that.",
}

// Canned replies with a random stock phrase regardless of the transcript.
type Canned struct {
	Phrases []string

	mu  sync.Mutex
	rnd *rand.Rand
}

// NewCanned returns a generator over phrases (DefaultPhrases when empty)
// seeded with seed.
func NewCanned(phrases []string, seed int64) *Canned {
	if len(phrases) == 0 {
		phrases = DefaultPhrases
	}
	return &Canned{Phrases: phrases, rnd: rand.New(rand.NewSource(seed))}
}

func (c *Canned) Reply(ctx context.Context, transcript string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.rnd == nil {
		c.rnd = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	phrases := c.Phrases
	if len(phrases) == 0 {
		phrases = DefaultPhrases
	}
	return phrases[c.rnd.Intn(len(phrases))], nil
}

// ChatCompleter is the part of *llm.Client the LLM generator needs.
type ChatCompleter interface {
	CreateChatCompletion(ctx context.Context, req llm.ChatRequest) (llm.ChatResponse, error)
}

// LLM asks a chat model for the reply.
type LLM struct {
	Client       ChatCompleter
	SystemPrompt string
	MaxTokens    int
	Timeout      time.Duration
}

func (l *LLM) Reply(ctx context.Context, transcript string) (string, error) {
	if l.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.Timeout)
		defer cancel()
	}
	var msgs []llm.Message
	if l.SystemPrompt != "" {
		msgs = append(msgs, llm.Message{Role: "system", Content: l.SystemPrompt})
	}
	msgs = append(msgs, llm.Message{Role: "user", Content: transcript})
	resp, err := l.Client.CreateChatCompletion(ctx, llm.ChatRequest{Messages: msgs, MaxTokens: l.MaxTokens, Temperature: 0.7})
	if err != nil {
		return "", fmt.Errorf("llm reply: %w", err)
	}
	text := strings.TrimSpace(resp.Content)
	if text == "" {
		return "", errors.New("llm reply: empty completion")
	}
	logging.DebugwCtx(ctx, "reply: llm completion", "model", resp.Model, "chars", len(text))
	return text, nil
}

// ToolCaller is the part of the MCP client wrapper the MCP generator needs.
type ToolCaller interface {
	CallText(ctx context.Context, tool string, args map[string]any) (string, error)
}

// MCP calls a tool on an MCP server with {"text": transcript}.
type MCP struct {
	Client ToolCaller
	Tool   string
}

func (m *MCP) Reply(ctx context.Context, transcript string) (string, error) {
	text, err := m.Client.CallText(ctx, m.Tool, map[string]any{"text": transcript})
	if err != nil {
		return "", fmt.Errorf("mcp reply: %w", err)
	}
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("mcp reply: tool %s returned no text", m.Tool)
	}
	return text, nil
}

// Generator is the interface every generator in this package implements.
type Generator interface {
	Reply(ctx context.Context, transcript string) (string, error)
}

// Chain tries each generator in order and returns the first reply. When all
// fail, the combined error is returned.
type Chain []Generator

func (c Chain) Reply(ctx context.Context, transcript string) (string, error) {
	var errs error
	for i, g := range c {
		text, err := g.Reply(ctx, transcript)
		if err == nil {
			return text, nil
		}
		logging.WarnwCtx(ctx, "reply: generator failed", "index", i, "err", err)
		errs = multierr.Append(errs, err)
		if ctx.Err() != nil {
			break
		}
	}
	if errs == nil {
		return "", errors.New("reply: no generators configured")
	}
	return "", errs
}
