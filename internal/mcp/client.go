package mcp

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/voice-session-lab/internal/logging"
)

// ErrNotConnected is returned by calls made before ConnectWebSocket
// succeeded or after Close.
var ErrNotConnected = errors.New("mcp client not connected")

// ClientWrapper provides a small helper to connect to an MCP server over
// websocket and manage the client session lifecycle.
type ClientWrapper struct {
	client *sdk.Client

	mu              sync.Mutex
	session         *sdk.ClientSession
	keepaliveCancel context.CancelFunc
}

// NewClientWrapper creates a new wrapper with the given name/version.
func NewClientWrapper(name, version string) *ClientWrapper {
	impl := &sdk.Implementation{Name: name, Version: version}
	c := sdk.NewClient(impl, nil)
	return &ClientWrapper{client: c}
}

// ConnectWebSocket connects to the MCP server websocket endpoint and creates
// a session. http and https URLs are mapped to ws and wss.
func (w *ClientWrapper) ConnectWebSocket(ctx context.Context, rawurl string) error {
	u, err := url.Parse(rawurl)
	if err != nil {
		return err
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", u.Redacted(), err)
	}
	sess, err := w.client.Connect(ctx, NewWebSocketTransport(conn), nil)
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("mcp initialize: %w", err)
	}

	kctx, cancel := context.WithCancel(context.Background())
	w.mu.Lock()
	w.session = sess
	w.keepaliveCancel = cancel
	w.mu.Unlock()

	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-kctx.Done():
				return
			case <-ticker.C:
				pctx, pcancel := context.WithTimeout(kctx, 5*time.Second)
				if err := sess.Ping(pctx, nil); err != nil {
					logging.Debugw("mcp: keepalive ping failed", "err", err)
				}
				pcancel()
			}
		}
	}()
	logging.Infow("mcp: client connected", "url", u.Redacted())
	return nil
}

// CallText calls a tool and joins the text content of its result. A result
// flagged as a tool error is returned as an error.
func (w *ClientWrapper) CallText(ctx context.Context, tool string, args map[string]any) (string, error) {
	w.mu.Lock()
	sess := w.session
	w.mu.Unlock()
	if sess == nil {
		return "", ErrNotConnected
	}
	res, err := sess.CallTool(ctx, &sdk.CallToolParams{Name: tool, Arguments: args})
	if err != nil {
		return "", fmt.Errorf("call %s: %w", tool, err)
	}
	var parts []string
	for _, c := range res.Content {
		if tc, ok := c.(*sdk.TextContent); ok {
			parts = append(parts, tc.Text)
		}
	}
	text := strings.Join(parts, "\n")
	if res.IsError {
		return "", fmt.Errorf("tool %s failed: %s", tool, text)
	}
	return text, nil
}

func (w *ClientWrapper) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.keepaliveCancel != nil {
		w.keepaliveCancel()
		w.keepaliveCancel = nil
	}
	if w.session != nil {
		err := w.session.Close()
		w.session = nil
		return err
	}
	return nil
}
