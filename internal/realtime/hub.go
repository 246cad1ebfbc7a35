package realtime

import (
	"log/slog"
	"sync"

	"github.com/jonhson0816/nelly-api/internal/metrics"
	"github.com/jonhson0816/nelly-api/pkg/logger"
)

// Hub tracks every open connection for broadcasts.
type Hub struct {
	mu    sync.RWMutex
	conns map[string]*Conn
	log   *slog.Logger
}

func NewHub(l *slog.Logger) *Hub {
	return &Hub{
		conns: make(map[string]*Conn),
		log:   logger.OrDefault(l).With("component", "hub"),
	}
}

func (h *Hub) Add(c *Conn) {
	h.mu.Lock()
	h.conns[c.ID()] = c
	n := len(h.conns)
	h.mu.Unlock()
	metrics.WSConnections.Set(float64(n))
	h.log.Debug("client connected", "conn_id", c.ID(), "total", n)
}

func (h *Hub) Remove(c *Conn) {
	h.mu.Lock()
	delete(h.conns, c.ID())
	n := len(h.conns)
	h.mu.Unlock()
	metrics.WSConnections.Set(float64(n))
	h.log.Debug("client disconnected", "conn_id", c.ID(), "total", n)
}

func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// Broadcast encodes the frame once and queues it on every connection.
func (h *Hub) Broadcast(event string, payload any) {
	b, err := Encode(event, payload)
	if err != nil {
		h.log.Error("broadcast encode failed", "event", event, "err", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.conns {
		if err := c.enqueue(b); err != nil {
			h.log.Debug("broadcast send failed", "conn_id", c.ID(), "event", event, "err", err)
		}
	}
}

// CloseAll closes every connection, used on shutdown.
func (h *Hub) CloseAll() {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.conns {
		c.Close()
	}
}
