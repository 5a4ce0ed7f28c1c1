package httpserver

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/voice-session-lab/internal/logging"
	"github.com/voice-session-lab/internal/metrics"
)

// Version is reported by the health endpoint.
const Version = "1.0.0"

// Options holds the handlers mounted by New.
type Options struct {
	// Voice serves WebSocket voice sessions on every path except /health
	// and /metrics.
	Voice   http.Handler
	Metrics *metrics.Metrics
	Now     func() time.Time
}

type healthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Version   string `json:"version"`
}

// New creates a configured Echo server instance.
func New(opts Options) *echo.Echo {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(requestLogger())

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, healthResponse{
			Status:    "healthy",
			Timestamp: now().UTC().Format(time.RFC3339),
			Version:   Version,
		})
	})
	e.GET("/metrics", echo.WrapHandler(opts.Metrics.Handler()))
	if opts.Voice != nil {
		// Every other path belongs to the voice handler, which upgrades or
		// answers 426.
		e.Any("/*", echo.WrapHandler(opts.Voice))
	}
	return e
}

// requestLogger logs one line per request through the package logger.
func requestLogger() echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:   true,
		LogURI:      true,
		LogStatus:   true,
		LogLatency:  true,
		LogRemoteIP: true,
		LogError:    true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			kv := []interface{}{
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"latency_ms", v.Latency.Milliseconds(),
				"remote_ip", v.RemoteIP,
			}
			if v.Error != nil {
				logging.Warnw("http: request failed", append(kv, "err", v.Error)...)
				return nil
			}
			logging.Debugw("http: request", kv...)
			return nil
		},
	})
}
