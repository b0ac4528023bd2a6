// Package ws is the WebSocket transport: it turns a *websocket.Conn
// into a core.ConnectionHandle and drives the read loop that feeds
// core.Server.OnMessage. Each connection has a single read loop; writes
// are synchronous and mutex-guarded rather than queued through a second
// goroutine, since the wire protocol here is line-oriented text/binary
// frames rather than JSON envelopes.
package ws

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/coder/websocket"
)

// errClosed is returned by Send/SendBinary once Close has run, so
// callers never race a write against a connection this handle already
// tore down.
var errClosed = errors.New("ws: connection closed")

// Handle adapts a *websocket.Conn to core.ConnectionHandle.
type Handle struct {
	conn *websocket.Conn
	ctx  context.Context

	writeMu sync.Mutex
	closed  atomic.Bool
}

// NewHandle wraps conn. ctx is used for the lifetime of every write;
// Handler.ServeHTTP passes context.Background(), so writes are not
// canceled when the HTTP request's context ends.
func NewHandle(conn *websocket.Conn, ctx context.Context) *Handle {
	return &Handle{conn: conn, ctx: ctx}
}

// Send implements core.ConnectionHandle: a text frame carrying one
// protocol-encoded command.
func (h *Handle) Send(payload []byte) error {
	if h.closed.Load() {
		return errClosed
	}
	h.writeMu.Lock()
	defer h.writeMu.Unlock()
	return h.conn.Write(h.ctx, websocket.MessageText, payload)
}

// SendBinary implements core.ConnectionHandle: a binary frame carrying
// a compressed video frame.
func (h *Handle) SendBinary(payload []byte) error {
	if h.closed.Load() {
		return errClosed
	}
	h.writeMu.Lock()
	defer h.writeMu.Unlock()
	return h.conn.Write(h.ctx, websocket.MessageBinary, payload)
}

// Close implements core.ConnectionHandle.
func (h *Handle) Close(reason string) error {
	if !h.closed.CompareAndSwap(false, true) {
		return nil
	}
	return h.conn.Close(websocket.StatusNormalClosure, reason)
}

// Expired implements core.ConnectionHandle.
func (h *Handle) Expired() bool {
	return h.closed.Load()
}
