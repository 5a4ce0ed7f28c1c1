package mcp

import (
	"context"
	"errors"
	"net/http"

	"github.com/gorilla/websocket"
	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/voice-session-lab/internal/logging"
)

// ReplyArgs is the input of the reply tool.
type ReplyArgs struct {
	Text string `json:"text" jsonschema:"the transcribed user utterance"`
}

// ReplyFunc produces reply text for a transcript.
type ReplyFunc func(ctx context.Context, transcript string) (string, error)

// AddReplyTool registers a tool named name that answers ReplyArgs with the
// text produced by fn.
func AddReplyTool(server *sdk.Server, name string, fn ReplyFunc) {
	sdk.AddTool(server, &sdk.Tool{Name: name, Description: "Produce a short spoken reply to a user utterance"},
		func(ctx context.Context, req *sdk.CallToolRequest, args ReplyArgs) (*sdk.CallToolResult, any, error) {
			if args.Text == "" {
				return nil, nil, errors.New("text is required")
			}
			reply, err := fn(ctx, args.Text)
			if err != nil {
				return nil, nil, err
			}
			return &sdk.CallToolResult{
				Content: []sdk.Content{&sdk.TextContent{Text: reply}},
			}, nil, nil
		})
}

// WebSocketHandler accepts MCP clients over WebSocket and binds each
// connection to server until the client disconnects.
func WebSocketHandler(server *sdk.Server) http.Handler {
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logging.Warnw("mcp: ws upgrade failed", "err", err)
			return
		}
		go func() {
			session, err := server.Connect(context.Background(), NewWebSocketTransport(conn), nil)
			if err != nil {
				logging.Warnw("mcp: server connect error", "err", err)
				_ = conn.Close()
				return
			}
			defer session.Close()
			if err := session.Wait(); err != nil {
				logging.Debugw("mcp: server session ended", "err", err)
			}
		}()
	})
}
