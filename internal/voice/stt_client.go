package voice

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// HTTPRecognizer posts candidate requests to a Workers-AI style speech to
// text endpoint. Raw candidates are sent as audio/wav, all others as JSON.
type HTTPRecognizer struct {
	URL       string
	AuthToken string
	Client    *http.Client
}

func (r *HTTPRecognizer) Recognize(ctx context.Context, req STTRequest) (map[string]any, error) {
	if r == nil || r.URL == "" {
		return nil, errors.New("stt client not configured")
	}
	contentType := "application/json"
	var body []byte
	if req.Raw != nil {
		contentType = "audio/wav"
		body = req.Raw
	} else {
		b, err := json.Marshal(req.JSON)
		if err != nil {
			return nil, fmt.Errorf("encode %s request: %w", req.Candidate, err)
		}
		body = b
	}
	resp, err := post(ctx, r.Client, r.URL, contentType, body, r.AuthToken)
	if err != nil {
		return nil, err
	}
	return unwrapResult(resp.Body)
}

// unwrapResult decodes a JSON reply, unwrapping the {"success", "result",
// "errors"} envelope when present.
func unwrapResult(body []byte) (map[string]any, error) {
	var out map[string]any
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if ok, present := out["success"].(bool); present && !ok {
		return nil, fmt.Errorf("service rejected request: %s", envelopeErrors(out["errors"]))
	}
	if inner, ok := out["result"].(map[string]any); ok {
		return inner, nil
	}
	return out, nil
}

func envelopeErrors(v any) string {
	list, ok := v.([]any)
	if !ok || len(list) == 0 {
		return "no details"
	}
	msgs := make([]string, 0, len(list))
	for _, e := range list {
		switch t := e.(type) {
		case map[string]any:
			if m, ok := t["message"].(string); ok {
				msgs = append(msgs, m)
				continue
			}
			b, _ := json.Marshal(t)
			msgs = append(msgs, string(b))
		default:
			msgs = append(msgs, fmt.Sprint(t))
		}
	}
	return strings.Join(msgs, "; ")
}
