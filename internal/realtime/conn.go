package realtime

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/jonhson0816/nelly-api/internal/metrics"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
)

var (
	ErrConnClosed     = errors.New("realtime: connection closed")
	ErrSendBufferFull = errors.New("realtime: send buffer full")
)

// Conn is one authenticated websocket connection. Send never blocks: frames
// are queued for the write pump and dropped when the queue is full.
type Conn struct {
	id     string
	userID string
	ws     *websocket.Conn
	send   chan []byte
	log    *slog.Logger

	mu     sync.Mutex
	closed bool
}

func newConn(ws *websocket.Conn, userID string, buffer int, log *slog.Logger) *Conn {
	id := uuid.NewString()
	return &Conn{
		id:     id,
		userID: userID,
		ws:     ws,
		send:   make(chan []byte, buffer),
		log:    log.With("conn_id", id, "user_id", userID),
	}
}

func (c *Conn) ID() string { return c.id }

// UserID is the identity the connection authenticated as.
func (c *Conn) UserID() string { return c.userID }

func (c *Conn) Send(event string, payload any) error {
	b, err := Encode(event, payload)
	if err != nil {
		return err
	}
	return c.enqueue(b)
}

func (c *Conn) enqueue(b []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrConnClosed
	}
	select {
	case c.send <- b:
		return nil
	default:
		metrics.WSDroppedFrames.Inc()
		return ErrSendBufferFull
	}
}

// Close stops accepting frames and lets the write pump flush and exit.
func (c *Conn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// readPump delivers inbound messages to handle until the socket fails.
func (c *Conn) readPump(handle func([]byte)) {
	c.ws.SetReadLimit(maxMessageSize)
	if err := c.ws.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.log.Error("set read deadline", "err", err)
		return
	}
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, msg, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Warn("unexpected websocket close", "err", err)
			}
			return
		}
		handle(msg)
	}
}

// writePump drains the send queue and keeps the peer alive with pings.
func (c *Conn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.ws.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			if err := c.ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if !ok {
				_ = c.ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.log.Debug("websocket write failed", "err", err)
				return
			}
		case <-ticker.C:
			if err := c.ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
