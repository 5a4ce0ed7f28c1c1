package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultsAreValid(t *testing.T) {
	cfg := Defaults()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
	if cfg.IdleTimeout() != 120*time.Second || cfg.STTTimeout() != 20*time.Second || cfg.TTSTimeout() != 15*time.Second {
		t.Fatalf("unexpected default timeouts: idle=%s stt=%s tts=%s", cfg.IdleTimeout(), cfg.STTTimeout(), cfg.TTSTimeout())
	}
	if cfg.Session.MaxBufferSamples != 4800000 {
		t.Fatalf("max buffer samples: %d", cfg.Session.MaxBufferSamples)
	}
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"HTTP_ADDRESS":       "127.0.0.1:9000",
		"IDLE_TIMEOUT_MS":    "5000",
		"MAX_BUFFER_SAMPLES": "not-a-number",
		"STT_URL":            "http://stt.local/run",
		"STT_CANDIDATES":     "raw-wav, audio-base64 ,",
		"REPLY_MODE":         "LLM",
		"OPENAI_MODEL":       "small",
	}
	cfg := Defaults()
	cfg.applyEnv(func(k string) string { return env[k] })

	if cfg.Server.Address != "127.0.0.1:9000" || cfg.Session.IdleTimeoutMs != 5000 {
		t.Fatalf("overrides not applied: %+v", cfg)
	}
	if cfg.Session.MaxBufferSamples != Defaults().Session.MaxBufferSamples {
		t.Fatalf("invalid number must be ignored, got %d", cfg.Session.MaxBufferSamples)
	}
	if len(cfg.STT.Candidates) != 2 || cfg.STT.Candidates[1] != "audio-base64" {
		t.Fatalf("candidates: %v", cfg.STT.Candidates)
	}
	if cfg.Reply.Mode != ReplyLLM || cfg.Reply.LLM.Model != "small" {
		t.Fatalf("reply: %+v", cfg.Reply)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestLoadYAMLThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "gateway.yaml")
	yml := `
server:
  address: ":7000"
session:
  idle_timeout_ms: 30000
stt:
  url: http://from-yaml
  candidates: [media, url]
tts:
  language: de
`
	if err := os.WriteFile(path, []byte(yml), 0o644); err != nil {
		t.Fatalf("write yaml: %v", err)
	}
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("STT_URL", "http://from-env")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Address != ":7000" || cfg.Session.IdleTimeoutMs != 30000 || cfg.TTS.Language != "de" {
		t.Fatalf("yaml values not applied: %+v", cfg)
	}
	if cfg.STT.URL != "http://from-env" {
		t.Fatalf("env must override yaml, got %q", cfg.STT.URL)
	}
	if len(cfg.STT.Candidates) != 2 || cfg.STT.Candidates[0] != "media" {
		t.Fatalf("candidates: %v", cfg.STT.Candidates)
	}
	if cfg.TTS.TimeoutMs != 15000 {
		t.Fatalf("fields absent from yaml keep defaults, got %d", cfg.TTS.TimeoutMs)
	}
}

func TestLoadMissingFile(t *testing.T) {
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "missing.yaml"))
	if _, err := Load(); err == nil {
		t.Fatalf("expected error for missing config file")
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"idle timeout", func(c *Config) { c.Session.IdleTimeoutMs = 0 }, "idle_timeout_ms"},
		{"buffer cap", func(c *Config) { c.Session.MaxBufferSamples = -1 }, "max_buffer_samples"},
		{"stt timeout", func(c *Config) { c.STT.TimeoutMs = 0 }, "stt: timeout_ms"},
		{"candidate", func(c *Config) { c.STT.Candidates = []string{"carrier-pigeon"} }, "unknown transcription candidate"},
		{"tts timeout", func(c *Config) { c.TTS.TimeoutMs = -5 }, "tts: timeout_ms"},
		{"reply mode", func(c *Config) { c.Reply.Mode = "psychic" }, "unknown mode"},
		{"mcp url", func(c *Config) { c.Reply.Mode = ReplyMCP }, "MCP_URL"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Defaults()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("want error containing %q, got %v", tc.want, err)
			}
		})
	}
}
