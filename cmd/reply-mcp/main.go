package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/voice-session-lab/internal/logging"
	"github.com/voice-session-lab/internal/mcp"
	"github.com/voice-session-lab/internal/reply"
)

func main() {
	logging.Init()
	defer func() { _ = logging.Sync() }()

	tool := os.Getenv("MCP_REPLY_TOOL")
	if tool == "" {
		tool = "reply"
	}
	canned := reply.NewCanned(nil, time.Now().UnixNano())
	server := sdk.NewServer(&sdk.Implementation{Name: "reply-mcp", Version: "v1.0.0"}, nil)
	mcp.AddReplyTool(server, tool, canned.Reply)

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.GET("/health", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	e.GET("/mcp/ws", echo.WrapHandler(mcp.WebSocketHandler(server)))

	port := os.Getenv("PORT")
	if port == "" {
		port = "9001"
	}
	go func() {
		logging.Infow("mcp reply server listening", "port", port, "tool", tool)
		if err := e.Start(":" + port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.FatalExitf("mcp reply server failed", "err", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := e.Shutdown(ctx); err != nil {
		logging.Warnw("mcp reply server shutdown error", "err", err)
	}
}
