// Package config loads the gateway configuration from built-in defaults, an
// optional YAML file, an optional .env file and the process environment, in
// that order of increasing precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/voice-session-lab/internal/logging"
	"github.com/voice-session-lab/internal/voice"
)

// Reply modes.
const (
	ReplyCanned = "canned"
	ReplyLLM    = "llm"
	ReplyMCP    = "mcp"
)

// Config is the complete gateway configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Session SessionConfig `yaml:"session"`
	STT     STTConfig     `yaml:"stt"`
	TTS     TTSConfig     `yaml:"tts"`
	Reply   ReplyConfig   `yaml:"reply"`
	Logging LoggingConfig `yaml:"logging"`
}

type ServerConfig struct {
	Address         string `yaml:"address"`
	MaxMessageBytes int64  `yaml:"max_message_bytes"`
}

type SessionConfig struct {
	IdleTimeoutMs    int `yaml:"idle_timeout_ms"`
	MaxBufferSamples int `yaml:"max_buffer_samples"`
}

// STTConfig describes the external speech-to-text service. Candidates
// restricts and orders the request encodings tried; empty means all.
type STTConfig struct {
	URL        string   `yaml:"url"`
	AuthToken  string   `yaml:"auth_token"`
	TimeoutMs  int      `yaml:"timeout_ms"`
	Candidates []string `yaml:"candidates"`
}

type TTSConfig struct {
	URL       string `yaml:"url"`
	AuthToken string `yaml:"auth_token"`
	Language  string `yaml:"language"`
	TimeoutMs int    `yaml:"timeout_ms"`
}

type ReplyConfig struct {
	Mode string    `yaml:"mode"`
	LLM  LLMConfig `yaml:"llm"`
	MCP  MCPConfig `yaml:"mcp"`
}

type LLMConfig struct {
	BaseURL       string `yaml:"base_url"`
	APIKey        string `yaml:"api_key"`
	Model         string `yaml:"model"`
	FallbackModel string `yaml:"fallback_model"`
	MaxTokens     int    `yaml:"max_tokens"`
	TimeoutMs     int    `yaml:"timeout_ms"`
	SystemPrompt  string `yaml:"system_prompt"`
}

type MCPConfig struct {
	URL  string `yaml:"url"`
	Tool string `yaml:"tool"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

// Defaults returns the configuration used when nothing is overridden.
func Defaults() Config {
	return Config{
		Server: ServerConfig{
			Address:         ":8787",
			MaxMessageBytes: 4 << 20,
		},
		Session: SessionConfig{
			IdleTimeoutMs:    120000,
			MaxBufferSamples: 5 * 60 * 16000,
		},
		STT: STTConfig{TimeoutMs: 20000},
		TTS: TTSConfig{Language: "en", TimeoutMs: 15000},
		Reply: ReplyConfig{
			Mode: ReplyCanned,
			LLM: LLMConfig{
				BaseURL:   "http://127.0.0.1:8000/v1",
				Model:     "local",
				MaxTokens: 256,
				TimeoutMs: 20000,
				SystemPrompt: "You are a concise voice assistant. Answer in one or two short " +
					"spoken sentences without markdown.",
			},
			MCP: MCPConfig{Tool: "reply"},
		},
		Logging: LoggingConfig{Level: "info"},
	}
}

// Load builds the configuration: defaults, then the YAML file named by
// CONFIG_FILE, then environment variables (a .env file in the working
// directory is loaded first and never overrides variables already set).
// The result is validated.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		logging.Warnw("config: failed to load .env", "err", err)
	}
	cfg := Defaults()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return Config{}, err
		}
	}
	cfg.applyEnv(os.Getenv)
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

func (c *Config) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// applyEnv overrides fields from environment variables. Malformed numbers
// are logged and ignored.
func (c *Config) applyEnv(getenv func(string) string) {
	str := func(key string, dst *string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) {
		v := strings.TrimSpace(getenv(key))
		if v == "" {
			return
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			logging.Warnw("config: ignoring invalid integer", "key", key, "value", v, "err", err)
			return
		}
		*dst = n
	}

	str("HTTP_ADDRESS", &c.Server.Address)
	if v := strings.TrimSpace(getenv("MAX_MESSAGE_BYTES")); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			c.Server.MaxMessageBytes = n
		} else {
			logging.Warnw("config: ignoring invalid integer", "key", "MAX_MESSAGE_BYTES", "value", v, "err", err)
		}
	}
	num("IDLE_TIMEOUT_MS", &c.Session.IdleTimeoutMs)
	num("MAX_BUFFER_SAMPLES", &c.Session.MaxBufferSamples)

	str("STT_URL", &c.STT.URL)
	str("STT_AUTH_TOKEN", &c.STT.AuthToken)
	num("STT_TIMEOUT_MS", &c.STT.TimeoutMs)
	if v := strings.TrimSpace(getenv("STT_CANDIDATES")); v != "" {
		c.STT.Candidates = splitList(v)
	}

	str("TTS_URL", &c.TTS.URL)
	str("TTS_AUTH_TOKEN", &c.TTS.AuthToken)
	str("TTS_LANGUAGE", &c.TTS.Language)
	num("TTS_TIMEOUT_MS", &c.TTS.TimeoutMs)

	str("REPLY_MODE", &c.Reply.Mode)
	c.Reply.Mode = strings.ToLower(c.Reply.Mode)
	str("OPENAI_BASE_URL", &c.Reply.LLM.BaseURL)
	str("OPENAI_API_KEY", &c.Reply.LLM.APIKey)
	str("OPENAI_MODEL", &c.Reply.LLM.Model)
	str("OPENAI_FALLBACK_MODEL", &c.Reply.LLM.FallbackModel)
	num("LLM_MAX_TOKENS", &c.Reply.LLM.MaxTokens)
	num("LLM_TIMEOUT_MS", &c.Reply.LLM.TimeoutMs)
	str("LLM_SYSTEM_PROMPT", &c.Reply.LLM.SystemPrompt)
	str("MCP_URL", &c.Reply.MCP.URL)
	str("MCP_REPLY_TOOL", &c.Reply.MCP.Tool)

	str("LOG_LEVEL", &c.Logging.Level)
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate rejects configurations the gateway cannot run with.
func (c *Config) Validate() error {
	if c.Server.Address == "" {
		return errors.New("server: address is required")
	}
	if c.Server.MaxMessageBytes <= 0 {
		return fmt.Errorf("server: max_message_bytes must be positive, got %d", c.Server.MaxMessageBytes)
	}
	if c.Session.IdleTimeoutMs <= 0 {
		return fmt.Errorf("session: idle_timeout_ms must be positive, got %d", c.Session.IdleTimeoutMs)
	}
	if c.Session.MaxBufferSamples <= 0 {
		return fmt.Errorf("session: max_buffer_samples must be positive, got %d", c.Session.MaxBufferSamples)
	}
	if c.STT.TimeoutMs <= 0 {
		return fmt.Errorf("stt: timeout_ms must be positive, got %d", c.STT.TimeoutMs)
	}
	if _, err := voice.SelectCandidates(c.STT.Candidates); err != nil {
		return fmt.Errorf("stt: %w", err)
	}
	if c.TTS.TimeoutMs <= 0 {
		return fmt.Errorf("tts: timeout_ms must be positive, got %d", c.TTS.TimeoutMs)
	}
	switch c.Reply.Mode {
	case ReplyCanned:
	case ReplyLLM:
		if c.Reply.LLM.BaseURL == "" {
			return errors.New("reply: llm mode requires OPENAI_BASE_URL")
		}
		if c.Reply.LLM.TimeoutMs <= 0 {
			return fmt.Errorf("reply: llm timeout_ms must be positive, got %d", c.Reply.LLM.TimeoutMs)
		}
	case ReplyMCP:
		if c.Reply.MCP.URL == "" {
			return errors.New("reply: mcp mode requires MCP_URL")
		}
		if c.Reply.MCP.Tool == "" {
			return errors.New("reply: mcp mode requires a tool name")
		}
	default:
		return fmt.Errorf("reply: unknown mode %q (want canned, llm or mcp)", c.Reply.Mode)
	}
	return nil
}

func (c *Config) IdleTimeout() time.Duration {
	return time.Duration(c.Session.IdleTimeoutMs) * time.Millisecond
}

func (c *Config) STTTimeout() time.Duration {
	return time.Duration(c.STT.TimeoutMs) * time.Millisecond
}

func (c *Config) TTSTimeout() time.Duration {
	return time.Duration(c.TTS.TimeoutMs) * time.Millisecond
}

func (c *Config) LLMTimeout() time.Duration {
	return time.Duration(c.Reply.LLM.TimeoutMs) * time.Millisecond
}
