// Package realtime is the websocket transport: authenticated connections,
// the broadcast hub, frame codec and event dispatch.
package realtime

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/jonhson0816/nelly-api/internal/auth"
	"github.com/jonhson0816/nelly-api/internal/calls"
	"github.com/jonhson0816/nelly-api/internal/presence"
	"github.com/jonhson0816/nelly-api/pkg/logger"
)

type HandlerConfig struct {
	SendBuffer     int
	AllowedOrigins []string
}

// Handler upgrades authenticated HTTP requests to websocket connections and
// runs them until they close.
type Handler struct {
	auth       *auth.Manager
	hub        *Hub
	presence   *presence.Registry
	calls      *calls.Controller
	dispatcher *Dispatcher
	upgrader   websocket.Upgrader
	sendBuffer int
	log        *slog.Logger
}

func NewHandler(cfg HandlerConfig, m *auth.Manager, hub *Hub, p *presence.Registry, c *calls.Controller, d *Dispatcher, l *slog.Logger) *Handler {
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = 64
	}
	return &Handler{
		auth:       m,
		hub:        hub,
		presence:   p,
		calls:      c,
		dispatcher: d,
		upgrader: websocket.Upgrader{
			ReadBufferSize:   4096,
			WriteBufferSize:  4096,
			HandshakeTimeout: 10 * time.Second,
			CheckOrigin:      checkOrigin(cfg.AllowedOrigins),
		},
		sendBuffer: cfg.SendBuffer,
		log:        logger.OrDefault(l).With("component", "realtime"),
	}
}

// ServeWS is the GET /ws endpoint.
func (h *Handler) ServeWS(c *gin.Context) {
	claims, err := auth.AuthenticateRequest(h.auth, c.Request, time.Now())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	ws, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		logger.FromGin(c).Debug("websocket upgrade failed", "err", err)
		return
	}

	conn := newConn(ws, claims.UserID, h.sendBuffer, h.log)
	ctx := logger.With(c.Request.Context(), conn.log)
	h.hub.Add(conn)
	conn.log.Info("websocket connected")

	go conn.writePump()
	conn.readPump(func(msg []byte) {
		h.dispatcher.HandleMessage(ctx, conn, conn.UserID(), msg)
	})

	h.hub.Remove(conn)
	conn.Close()
	h.presence.Clear(conn.UserID(), conn)
	h.calls.Disconnect(ctx, conn)
	conn.log.Info("websocket disconnected")
}

// checkOrigin allows requests without an Origin header (non-browser clients)
// and, when origins are configured, only those origins.
func checkOrigin(allowed []string) func(*http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || len(allowed) == 0 {
			return true
		}
		for _, a := range allowed {
			if a == "*" || a == origin {
				return true
			}
		}
		return false
	}
}
