package ws

import (
	"context"
	"net/http"

	"github.com/coder/websocket"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/letsplay-server/internal/core"
)

// maxMessageBytes bounds a single incoming frame, independent of the
// chat-length policy the dispatcher enforces on decoded content; this
// is a transport-level guard against unbounded memory growth from a
// misbehaving client.
const maxMessageBytes = 1 << 16

// Handler upgrades HTTP requests to WebSocket connections and bridges
// them into core.Server's ingress entry points.
type Handler struct {
	Server *core.Server
	Log    *zerolog.Logger

	// AcceptOptions lets callers relax origin checks for local
	// development; nil uses coder/websocket's defaults.
	AcceptOptions *websocket.AcceptOptions
}

// NewHandler builds a Handler over server.
func NewHandler(server *core.Server, log *zerolog.Logger) *Handler {
	return &Handler{Server: server, Log: log}
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.Server.ShuttingDown() {
		http.Error(w, "server shutting down", http.StatusServiceUnavailable)
		return
	}

	conn, err := websocket.Accept(w, r, h.AcceptOptions)
	if err != nil {
		if h.Log != nil {
			h.Log.Warn().Err(err).Msg("websocket upgrade failed")
		}
		return
	}
	conn.SetReadLimit(maxMessageBytes)

	ctx := r.Context()
	handle := NewHandle(conn, context.Background())

	h.Server.OnConnect(handle, r.RemoteAddr)
	defer h.Server.OnDisconnect(handle)

	for {
		msgType, data, err := conn.Read(ctx)
		if err != nil {
			if h.Log != nil {
				h.Log.Debug().Err(err).Msg("read loop ended")
			}
			_ = handle.Close("Connection closed")
			return
		}
		if msgType != websocket.MessageText {
			continue
		}
		h.Server.OnMessage(handle, data)
	}
}
