// ABOUTME: WebSocket endpoint wiring agent sessions into the connection registry
// ABOUTME: Server pushes JSON events; the client sends only keep-alive traffic

package api

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/OSama2626/chequegate/internal/auth"
	"github.com/OSama2626/chequegate/internal/registry"
)

const (
	wsReadLimit    = 512
	wsReadDeadline = 60 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// wsConn adapts a gorilla connection to the registry.Conn interface.
// gorilla allows at most one concurrent writer per connection, so a mutex
// serializes pushes from the dispatcher's fan-out goroutines.
type wsConn struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

// SendJSON writes one event, honoring the context deadline as the write
// deadline. Without a deadline a one-second fallback applies so a dead
// peer cannot wedge the writer.
func (c *wsConn) SendJSON(ctx context.Context, v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(time.Second)
	}
	if err := c.conn.SetWriteDeadline(deadline); err != nil {
		return err
	}
	return c.conn.WriteJSON(v)
}

// Close closes the underlying WebSocket.
func (c *wsConn) Close() error {
	return c.conn.Close()
}

// ServeWS handles GET /ws: upgrades the request, registers the connection
// under the authenticated agent, and blocks in a keep-alive read loop
// until the peer goes away. Commands never arrive on this channel; they
// go through the request-response API.
func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	identity := auth.FromContext(r.Context())

	raw, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the error response
		h.logger.Warn("websocket upgrade failed", "agent_id", identity.UserID, "error", err)
		return
	}

	conn := &wsConn{conn: raw}
	h.registry.Register(identity.UserID, conn)
	defer func() {
		h.registry.Unregister(identity.UserID, conn)
		_ = conn.Close()
	}()

	raw.SetReadLimit(wsReadLimit)
	_ = raw.SetReadDeadline(time.Now().Add(wsReadDeadline))
	raw.SetPongHandler(func(string) error {
		return raw.SetReadDeadline(time.Now().Add(wsReadDeadline))
	})

	pingStop := make(chan struct{})
	defer close(pingStop)
	go h.pingLoop(raw, pingStop)

	// Keep-alive read loop; any client payload is drained and ignored.
	for {
		if _, _, err := raw.ReadMessage(); err != nil {
			return
		}
		_ = raw.SetReadDeadline(time.Now().Add(wsReadDeadline))
	}
}

// pingLoop keeps the connection's read deadline fed on quiet links.
func (h *Handler) pingLoop(conn *websocket.Conn, stop <-chan struct{}) {
	ticker := time.NewTicker(wsReadDeadline / 3)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(time.Second)); err != nil {
				return
			}
		}
	}
}

// compile-time check that wsConn satisfies the registry contract
var _ registry.Conn = (*wsConn)(nil)
