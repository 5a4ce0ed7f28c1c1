package voice

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strings"

	"github.com/voice-session-lab/internal/logging"
)

// Synthesizer turns reply text into 16 kHz mono samples. A nil slice with a
// nil error means the service answered without audio.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) ([]int16, error)
}

// HTTPSynthesizer posts {"text", "language"} to an external TTS endpoint and
// decodes whatever audio container comes back.
type HTTPSynthesizer struct {
	URL       string
	AuthToken string
	Language  string
	Client    *http.Client
}

func (t *HTTPSynthesizer) Synthesize(ctx context.Context, text string) ([]int16, error) {
	if t == nil || t.URL == "" {
		return nil, errors.New("tts client not configured")
	}
	lang := t.Language
	if lang == "" {
		lang = "en"
	}
	body, _ := json.Marshal(map[string]string{"text": text, "language": lang})
	resp, err := post(ctx, t.Client, t.URL, "application/json", body, t.AuthToken)
	if err != nil {
		return nil, err
	}
	samples, err := decodeSynthAudio(resp.ContentType, resp.Body)
	if err != nil {
		logging.Debugw("tts: undecodable response", "content_type", resp.ContentType, "bytes", len(resp.Body), "err", err, "correlation_id", CorrelationID(ctx))
		return nil, err
	}
	return samples, nil
}

// decodeSynthAudio sniffs the reply: WAV, JSON carrying an "audio" field,
// Ogg/Opus, or otherwise bare PCM16LE at SampleRate.
func decodeSynthAudio(contentType string, body []byte) ([]int16, error) {
	ct := strings.ToLower(contentType)
	switch {
	case len(body) == 0:
		return nil, nil
	case strings.Contains(ct, "json") || body[0] == '{':
		return decodeSynthJSON(body)
	case bytes.HasPrefix(body, []byte("RIFF")) || strings.Contains(ct, "wav"):
		samples, info, err := DecodeWAV(body)
		if err != nil {
			return nil, err
		}
		return toSessionRate(samples, info.Channels, info.SampleRate), nil
	case bytes.HasPrefix(body, []byte("OggS")) || strings.Contains(ct, "ogg") || strings.Contains(ct, "opus"):
		return decodeOpus(body)
	default:
		return BytesToSamples(body), nil
	}
}

func decodeSynthJSON(body []byte) ([]int16, error) {
	out, err := unwrapResult(body)
	if err != nil {
		return nil, err
	}
	switch a := out["audio"].(type) {
	case nil:
		return nil, nil
	case string:
		if i := strings.Index(a, ";base64,"); strings.HasPrefix(a, "data:") && i > 0 {
			a = a[i+len(";base64,"):]
		}
		raw, err := base64.StdEncoding.DecodeString(a)
		if err != nil {
			return nil, fmt.Errorf("decode audio field: %w", err)
		}
		if len(raw) > 0 && raw[0] == '{' {
			return nil, errors.New("audio field holds nested JSON")
		}
		return decodeSynthAudio("", raw)
	case []any:
		samples := make([]int16, len(a))
		for i, v := range a {
			f, ok := v.(float64)
			if !ok {
				return nil, fmt.Errorf("audio field: element %d is %T, want number", i, v)
			}
			samples[i] = clampSample(f)
		}
		return samples, nil
	default:
		return nil, fmt.Errorf("audio field has unsupported type %T", a)
	}
}

func clampSample(f float64) int16 {
	switch {
	case f > math.MaxInt16:
		return math.MaxInt16
	case f < math.MinInt16:
		return math.MinInt16
	default:
		return int16(f)
	}
}

// toSessionRate downmixes interleaved channels to mono and resamples to
// SampleRate by nearest neighbour.
func toSessionRate(samples []int16, channels, rate int) []int16 {
	if channels > 1 {
		mono := make([]int16, len(samples)/channels)
		for i := range mono {
			sum := 0
			for c := 0; c < channels; c++ {
				sum += int(samples[i*channels+c])
			}
			mono[i] = int16(sum / channels)
		}
		samples = mono
	}
	if rate <= 0 || rate == SampleRate || len(samples) == 0 {
		return samples
	}
	n := int(int64(len(samples)) * SampleRate / int64(rate))
	out := make([]int16, n)
	for i := range out {
		out[i] = samples[int(int64(i)*int64(rate)/SampleRate)]
	}
	return out
}
