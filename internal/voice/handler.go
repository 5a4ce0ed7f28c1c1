package voice

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/voice-session-lab/internal/logging"
)

const defaultWriteTimeout = 10 * time.Second

// Handler upgrades HTTP requests to WebSocket voice sessions. Each
// connection gets its own Session; nothing is shared between them.
type Handler struct {
	// Options is the template for every session; Debug is set per request
	// from the ?debug=1 query parameter.
	Options         SessionOptions
	MaxMessageBytes int64
	WriteTimeout    time.Duration

	ctx      context.Context
	upgrader websocket.Upgrader
	wg       sync.WaitGroup
}

// NewHandler returns a handler whose sessions are all closed when ctx is
// cancelled.
func NewHandler(ctx context.Context, opts SessionOptions, maxMessageBytes int64) *Handler {
	return &Handler{
		Options:         opts,
		MaxMessageBytes: maxMessageBytes,
		WriteTimeout:    defaultWriteTimeout,
		ctx:             ctx,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !websocket.IsWebSocketUpgrade(r) {
		http.Error(w, "WebSocket connection required", http.StatusUpgradeRequired)
		return
	}
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Warnw("ws: upgrade failed", "remote", r.RemoteAddr, "err", err)
		return
	}
	h.wg.Add(1)
	defer h.wg.Done()
	if h.MaxMessageBytes > 0 {
		ws.SetReadLimit(h.MaxMessageBytes)
	}

	opts := h.Options
	opts.Debug = r.URL.Query().Get("debug") == "1"
	s := NewSession(h.ctx, newWSConn(ws, h.WriteTimeout), opts)
	logging.InfowCtx(s.Context(), "ws: connection accepted", "remote", r.RemoteAddr)

	for {
		mt, data, err := ws.ReadMessage()
		if err != nil {
			s.Close(closeReason(err))
			break
		}
		s.HandleMessage(mt, data)
	}
	s.Wait()
}

// Wait blocks until every connection served so far has ended. Hijacked
// connections are not tracked by http.Server.Shutdown.
func (h *Handler) Wait() { h.wg.Wait() }

func closeReason(err error) string {
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
		return ReasonPeerClosed
	}
	if errors.Is(err, net.ErrClosed) {
		return ReasonPeerClosed
	}
	return ReasonTransportError
}
