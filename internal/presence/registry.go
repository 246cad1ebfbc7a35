// Package presence tracks which live connection currently represents each
// online user. One entry per user identity; the latest connection wins.
package presence

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jonhson0816/nelly-api/internal/metrics"
	"github.com/jonhson0816/nelly-api/pkg/logger"
)

// EventStatus is broadcast to every connected client on presence changes.
const EventStatus = "presence.status"

// StatusPayload is the body of EventStatus.
type StatusPayload struct {
	UserID   string `json:"userId"`
	IsOnline bool   `json:"isOnline"`
}

// Conn is an opaque handle to one live client connection.
// Send must not block; transports are expected to buffer or drop.
type Conn interface {
	ID() string
	Send(event string, payload any) error
}

// Broadcaster delivers an event to every connected client. Broadcast must not
// block; the registry calls it while holding its ordering lock.
type Broadcaster interface {
	Broadcast(event string, payload any)
}

// Mirror publishes presence outside this process. Failures are logged only.
type Mirror interface {
	SetOnline(ctx context.Context, userID, connID string) error
	Clear(ctx context.Context, userID, connID string) error
}

type Option func(*Registry)

// WithMirror attaches an external presence mirror.
func WithMirror(m Mirror) Option { return func(r *Registry) { r.mirror = m } }

// WithLogger sets the registry logger.
func WithLogger(l *slog.Logger) Option { return func(r *Registry) { r.log = l } }

// Registry is the process-wide presence map.
type Registry struct {
	// bcMu spans mutate-then-broadcast so status frames leave in the same
	// order the map changed. Always taken before mu.
	bcMu    sync.Mutex
	mu      sync.RWMutex
	entries map[string]Conn

	bc            Broadcaster
	mirror        Mirror
	mirrorTimeout time.Duration
	log           *slog.Logger
}

func NewRegistry(bc Broadcaster, opts ...Option) *Registry {
	r := &Registry{
		entries:       make(map[string]Conn),
		bc:            bc,
		mirrorTimeout: 2 * time.Second,
	}
	for _, o := range opts {
		o(r)
	}
	r.log = logger.OrDefault(r.log).With("component", "presence")
	return r
}

// SetOnline registers conn as the live connection for userID, replacing any
// previous one, and broadcasts the online status.
func (r *Registry) SetOnline(userID string, conn Conn) {
	r.bcMu.Lock()
	r.mu.Lock()
	prev, had := r.entries[userID]
	r.entries[userID] = conn
	n := len(r.entries)
	r.mu.Unlock()
	r.broadcast(userID, true)
	r.bcMu.Unlock()

	metrics.OnlineUsers.Set(float64(n))
	if had && prev.ID() != conn.ID() {
		r.log.Debug("presence superseded", "user_id", userID, "old_conn", prev.ID(), "new_conn", conn.ID())
	}
	r.mirrorSet(userID, conn.ID())
}

// Get returns the live connection for userID. Absent means offline.
func (r *Registry) Get(userID string) (Conn, bool) {
	r.mu.RLock()
	c, ok := r.entries[userID]
	r.mu.RUnlock()
	return c, ok
}

func (r *Registry) IsOnline(userID string) bool {
	_, ok := r.Get(userID)
	return ok
}

// Clear removes userID only if conn is still the registered connection.
// A disconnect from a superseded connection leaves the newer entry alone and
// broadcasts nothing. Reports whether the entry was removed.
func (r *Registry) Clear(userID string, conn Conn) bool {
	r.bcMu.Lock()
	r.mu.Lock()
	cur, ok := r.entries[userID]
	if !ok || cur.ID() != conn.ID() {
		r.mu.Unlock()
		r.bcMu.Unlock()
		return false
	}
	delete(r.entries, userID)
	n := len(r.entries)
	r.mu.Unlock()
	r.broadcast(userID, false)
	r.bcMu.Unlock()

	metrics.OnlineUsers.Set(float64(n))
	r.mirrorClear(userID, conn.ID())
	return true
}

// broadcast must be called with bcMu held. Broadcasters must not block.
func (r *Registry) broadcast(userID string, online bool) {
	if r.bc != nil {
		r.bc.Broadcast(EventStatus, StatusPayload{UserID: userID, IsOnline: online})
	}
}

// Len returns the number of online identities.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

func (r *Registry) mirrorSet(userID, connID string) {
	if r.mirror == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), r.mirrorTimeout)
	defer cancel()
	if err := r.mirror.SetOnline(ctx, userID, connID); err != nil {
		r.log.Warn("presence mirror set failed", "user_id", userID, "err", err)
	}
}

func (r *Registry) mirrorClear(userID, connID string) {
	if r.mirror == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), r.mirrorTimeout)
	defer cancel()
	if err := r.mirror.Clear(ctx, userID, connID); err != nil {
		r.log.Warn("presence mirror clear failed", "user_id", userID, "err", err)
	}
}
