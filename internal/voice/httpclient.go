package voice

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/voice-session-lab/internal/logging"
)

// maxResponseBytes caps how much of an external service response is read.
const maxResponseBytes = 32 << 20

type correlationKey struct{}

// WithCorrelationID attaches the id sent as X-Correlation-ID on external
// service requests made with ctx.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationKey{}, id)
}

// CorrelationID returns the id attached by WithCorrelationID, if any.
func CorrelationID(ctx context.Context) string {
	if v, ok := ctx.Value(correlationKey{}).(string); ok {
		return v
	}
	return ""
}

// StatusError is a non-2xx reply from an external service.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("service returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("service returned status %d: %s", e.StatusCode, e.Body)
}

// serviceResponse is a fully read external service reply.
type serviceResponse struct {
	ContentType string
	Body        []byte
}

// post sends one POST and reads the whole reply within ctx. There are no
// retries: callers decide what a failure means.
func post(ctx context.Context, client *http.Client, url, contentType string, body []byte, authToken string) (serviceResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return serviceResponse{}, err
	}
	req.Header.Set("Content-Type", contentType)
	if authToken != "" {
		req.Header.Set("Authorization", "Bearer "+authToken)
	}
	cid := CorrelationID(ctx)
	if cid != "" {
		req.Header.Set("X-Correlation-ID", cid)
	}
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		logging.Debugw("http: POST failed", "url", url, "err", err, "correlation_id", cid)
		return serviceResponse{}, err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return serviceResponse{}, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		logging.Debugw("http: non-2xx", "url", url, "status", resp.StatusCode, "correlation_id", cid)
		return serviceResponse{}, &StatusError{StatusCode: resp.StatusCode, Body: truncate(string(data), 200)}
	}
	return serviceResponse{ContentType: resp.Header.Get("Content-Type"), Body: data}, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
