package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Options configures a Client. Zero values fall back to the defaults noted
// on each field.
type Options struct {
	// BaseURL of an OpenAI-compatible API, e.g. http://127.0.0.1:8000/v1.
	BaseURL string
	APIKey  string
	// Model used when a request does not name one; default "local".
	Model string
	// FallbackModel is tried once when the primary model fails transiently.
	FallbackModel string
	// MaxTokens caps every request; default 4000.
	MaxTokens int
	// Timeout for each HTTP request; default 20s.
	Timeout time.Duration
}

type Client struct {
	BaseURL       string
	APIKey        string
	Model         string
	FallbackModel string
	MaxTokens     int
	HTTP          *http.Client
}

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ChatRequest struct {
	Model       string    `json:"model,omitempty"`
	Messages    []Message `json:"messages,omitempty"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Temperature float64   `json:"temperature,omitempty"`
}

type ChatResponse struct {
	ID      string `json:"id,omitempty"`
	Model   string `json:"model,omitempty"`
	Content string `json:"content,omitempty"`
}

var (
	ErrPermanent = errors.New("permanent error")
	ErrTransient = errors.New("transient error")
)

func NewClient(opts Options) *Client {
	base := opts.BaseURL
	if base == "" {
		base = "http://127.0.0.1:8000/v1"
	}
	model := opts.Model
	if model == "" {
		model = "local"
	}
	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4000
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &Client{
		BaseURL:       strings.TrimRight(base, "/"),
		APIKey:        opts.APIKey,
		Model:         model,
		FallbackModel: opts.FallbackModel,
		MaxTokens:     maxTokens,
		HTTP:          &http.Client{Timeout: timeout},
	}
}

// CreateChatCompletion sends req to the configured model. Network errors,
// 5xx and 429 are ErrTransient and trigger one attempt with the fallback
// model; other 4xx are ErrPermanent.
func (c *Client) CreateChatCompletion(ctx context.Context, req ChatRequest) (ChatResponse, error) {
	model := req.Model
	if model == "" {
		model = c.Model
	}

	// enforce limits
	if req.MaxTokens <= 0 {
		req.MaxTokens = 512
	}
	if c.MaxTokens > 0 && req.MaxTokens > c.MaxTokens {
		req.MaxTokens = c.MaxTokens
	}

	resp, err := c.send(ctx, model, req)
	if err == nil {
		return resp, nil
	}
	if errors.Is(err, ErrTransient) && c.FallbackModel != "" && c.FallbackModel != model {
		return c.callFallback(ctx, req, err)
	}
	return ChatResponse{}, err
}

func (c *Client) callFallback(ctx context.Context, req ChatRequest, primaryErr error) (ChatResponse, error) {
	// small backoff
	select {
	case <-time.After(250 * time.Millisecond):
	case <-ctx.Done():
		return ChatResponse{}, fmt.Errorf("%w: %v", ErrTransient, ctx.Err())
	}
	resp, err := c.send(ctx, c.FallbackModel, req)
	if err != nil {
		return ChatResponse{}, fmt.Errorf("fallback %s after %v: %w", c.FallbackModel, primaryErr, err)
	}
	return resp, nil
}

func (c *Client) send(ctx context.Context, model string, req ChatRequest) (ChatResponse, error) {
	req.Model = model
	bodyBytes, err := json.Marshal(req)
	if err != nil {
		return ChatResponse{}, fmt.Errorf("%w: encode request: %v", ErrPermanent, err)
	}

	url := fmt.Sprintf("%s/chat/completions", c.BaseURL)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(bodyBytes))
	if err != nil {
		return ChatResponse{}, fmt.Errorf("%w: %v", ErrPermanent, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.APIKey)
	}

	resp, err := c.HTTP.Do(httpReq)
	if err != nil {
		return ChatResponse{}, fmt.Errorf("%w: %v", ErrTransient, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		var out struct {
			ID      string `json:"id"`
			Choices []struct {
				Message struct {
					Content string `json:"content"`
				} `json:"message"`
			} `json:"choices"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return ChatResponse{}, fmt.Errorf("%w: decode error: %v", ErrTransient, err)
		}
		content := ""
		if len(out.Choices) > 0 {
			content = out.Choices[0].Message.Content
		}
		return ChatResponse{ID: out.ID, Model: model, Content: content}, nil
	}
	_, _ = io.Copy(io.Discard, resp.Body)

	// classify errors
	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		return ChatResponse{}, fmt.Errorf("%w: model %s status %d", ErrTransient, model, resp.StatusCode)
	}
	// 4xx are treated as permanent
	return ChatResponse{}, fmt.Errorf("%w: model %s status %d", ErrPermanent, model, resp.StatusCode)
}
