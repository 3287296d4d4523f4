// Package ws serves the WebSocket push channel at /ws. Clients receive the
// hub's messages and may send inbound commands.
package ws

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gorilla/websocket"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/openfm/internal/api/wire"
	"github.com/osa030/openfm/internal/app/notification"
	"github.com/osa030/openfm/internal/app/playback"
	"github.com/osa030/openfm/internal/domain/peer"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 30 * time.Second
	maxMessageSize = 4096

	// TokenParam carries the control token; browsers cannot set headers
	// on a WebSocket handshake.
	TokenParam = "token"
)

// ErrUnauthorized is sent back for commands from a read-only connection.
var ErrUnauthorized = errors.New("control token required")

// Handler upgrades requests and runs one read and one write pump per
// connection.
type Handler struct {
	ctl      *playback.Controller
	hub      *notification.Hub
	token    string
	upgrader websocket.Upgrader
}

// Option configures a Handler.
type Option func(*Handler)

// WithControlToken makes connections without the token read-only.
func WithControlToken(token string) Option {
	return func(h *Handler) { h.token = token }
}

// WithCheckOrigin sets the handshake origin check.
func WithCheckOrigin(check func(r *http.Request) bool) Option {
	return func(h *Handler) { h.upgrader.CheckOrigin = check }
}

// New creates a handler.
func New(ctl *playback.Controller, hub *notification.Hub, opts ...Option) *Handler {
	h := &Handler{
		ctl: ctl,
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
		},
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the error response.
		zlog.Warn().Msgf("ws: upgrade failed: remote=%s err=%v", r.RemoteAddr, err)
		return
	}

	authorized := h.token == "" ||
		subtle.ConstantTimeCompare([]byte(r.URL.Query().Get(TokenParam)), []byte(h.token)) == 1

	client := h.hub.Register(peer.TransportWebSocket, r.RemoteAddr)
	go h.writePump(conn, client)
	h.readPump(conn, client, authorized)
}

// readPump runs on the handler goroutine. Commands are dispatched in the
// order they arrive.
func (h *Handler) readPump(conn *websocket.Conn, client *notification.Client, authorized bool) {
	defer func() {
		h.hub.Unregister(client.ID())
		_ = conn.Close()
	}()

	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				zlog.Warn().Msgf("ws: read failed: id=%s err=%v", client.ID(), err)
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		h.hub.Touch(client.ID())

		var in wire.Inbound
		if err := json.Unmarshal(data, &in); err != nil {
			zlog.Debug().Msgf("ws: invalid message: id=%s err=%v", client.ID(), err)
			h.hub.Send(client.ID(), notification.ErrorMessage(errors.Wrap(err, "invalid message")))
			continue
		}
		h.handle(client, in, authorized)
	}
}

func (h *Handler) handle(client *notification.Client, in wire.Inbound, authorized bool) {
	if in.Type == wire.TypePing {
		h.hub.Send(client.ID(), notification.Message{Type: notification.TypePong})
		return
	}
	if !authorized {
		h.hub.Send(client.ID(), notification.ErrorMessage(ErrUnauthorized))
		return
	}

	cmd, err := in.Command()
	if err == nil {
		err = h.ctl.Dispatch(context.Background(), cmd)
	}
	if err != nil {
		zlog.Debug().Msgf("ws: command rejected: id=%s type=%s err=%v", client.ID(), in.Type, err)
		h.hub.Send(client.ID(), notification.ErrorMessage(err))
	}
}

// writePump owns every write to conn. It exits when the hub drops the
// client or a write fails.
func (h *Handler) writePump(conn *websocket.Conn, client *notification.Client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = conn.Close()
	}()

	for {
		select {
		case msg := <-client.C():
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(msg); err != nil {
				zlog.Debug().Msgf("ws: write failed: id=%s err=%v", client.ID(), err)
				h.hub.Unregister(client.ID())
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.hub.Unregister(client.ID())
				return
			}
		case <-client.Done():
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}
