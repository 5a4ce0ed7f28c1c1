package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/voice-session-lab/internal/config"
	"github.com/voice-session-lab/internal/httpserver"
	"github.com/voice-session-lab/internal/logging"
	"github.com/voice-session-lab/internal/mcp"
	"github.com/voice-session-lab/internal/metrics"
	"github.com/voice-session-lab/internal/reply"
	"github.com/voice-session-lab/internal/voice"
	"github.com/voice-session-lab/llm"
)

const shutdownTimeout = 10 * time.Second

func main() {
	logging.Init()
	defer func() { _ = logging.Sync() }()

	cfg, err := config.Load()
	if err != nil {
		logging.FatalExitf("config load failed", "err", err)
	}
	logging.SetLevel(cfg.Logging.Level)

	m := metrics.New()
	candidates, err := voice.SelectCandidates(cfg.STT.Candidates)
	if err != nil {
		logging.FatalExitf("invalid stt candidates", "err", err)
	}
	if cfg.STT.URL == "" {
		logging.Warnw("STT_URL not set; every processing pass will fail")
	}
	transcriber := voice.NewTranscriptionInvoker(
		&voice.HTTPRecognizer{URL: cfg.STT.URL, AuthToken: cfg.STT.AuthToken},
		candidates, cfg.STTTimeout(), m)

	replies, closeReplies, err := buildReplies(cfg)
	if err != nil {
		logging.FatalExitf("reply generator setup failed", "mode", cfg.Reply.Mode, "err", err)
	}
	defer closeReplies()

	responder := &voice.ResponseOrchestrator{
		Replies: replies,
		Timeout: cfg.TTSTimeout(),
		Metrics: m,
	}
	if cfg.TTS.URL != "" {
		responder.Synth = &voice.HTTPSynthesizer{URL: cfg.TTS.URL, AuthToken: cfg.TTS.AuthToken, Language: cfg.TTS.Language}
	} else {
		logging.Infow("TTS_URL not set; replies are sent as text only")
	}

	baseCtx, cancelSessions := context.WithCancel(context.Background())
	defer cancelSessions()
	handler := voice.NewHandler(baseCtx, voice.SessionOptions{
		Transcriber:      transcriber,
		Responder:        responder,
		IdleTimeout:      cfg.IdleTimeout(),
		MaxBufferSamples: cfg.Session.MaxBufferSamples,
		Metrics:          m,
	}, cfg.Server.MaxMessageBytes)

	e := httpserver.New(httpserver.Options{Voice: handler, Metrics: m})
	go func() {
		logging.Infow("voice gateway listening", "addr", cfg.Server.Address, "reply_mode", cfg.Reply.Mode, "candidates", len(candidates))
		if err := e.Start(cfg.Server.Address); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.FatalExitf("http server failed", "err", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	logging.Infow("shutdown signal received, closing sessions")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := e.Shutdown(ctx); err != nil {
		logging.Warnw("http server shutdown error", "err", err)
	}
	// hijacked websocket connections are not tracked by Shutdown
	cancelSessions()
	handler.Wait()
	logging.Infow("shutdown complete")
}

// buildReplies wires the configured reply generator. Non-canned modes fall
// back to canned phrases when the primary generator fails.
func buildReplies(cfg config.Config) (voice.ReplyGenerator, func(), error) {
	canned := reply.NewCanned(nil, time.Now().UnixNano())
	noop := func() {}
	switch cfg.Reply.Mode {
	case config.ReplyLLM:
		client := llm.NewClient(llm.Options{
			BaseURL:       cfg.Reply.LLM.BaseURL,
			APIKey:        cfg.Reply.LLM.APIKey,
			Model:         cfg.Reply.LLM.Model,
			FallbackModel: cfg.Reply.LLM.FallbackModel,
			MaxTokens:     cfg.Reply.LLM.MaxTokens,
			Timeout:       cfg.LLMTimeout(),
		})
		return reply.Chain{
			&reply.LLM{Client: client, SystemPrompt: cfg.Reply.LLM.SystemPrompt, MaxTokens: cfg.Reply.LLM.MaxTokens, Timeout: cfg.LLMTimeout()},
			canned,
		}, noop, nil
	case config.ReplyMCP:
		client := mcp.NewClientWrapper("voice-gateway", httpserver.Version)
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := client.ConnectWebSocket(ctx, cfg.Reply.MCP.URL); err != nil {
			return nil, noop, err
		}
		logging.Infow("connected to mcp reply server", "url", cfg.Reply.MCP.URL, "tool", cfg.Reply.MCP.Tool)
		return reply.Chain{&reply.MCP{Client: client, Tool: cfg.Reply.MCP.Tool}, canned},
			func() { _ = client.Close() }, nil
	default:
		return canned, noop, nil
	}
}
