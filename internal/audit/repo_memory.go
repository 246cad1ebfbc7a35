package audit

import (
	"context"
	"sync"
)

// MemoryRepo keeps events in process. Tests use it unbounded; local runs use
// a bounded one so the API works without the audit_events table.
type MemoryRepo struct {
	mu      sync.Mutex
	events  []Event
	max     int
	dropped int
}

func NewMemoryRepo() *MemoryRepo { return &MemoryRepo{} }

// NewBoundedMemoryRepo keeps at most limit events, evicting the oldest first.
func NewBoundedMemoryRepo(limit int) *MemoryRepo { return &MemoryRepo{max: limit} }

func (r *MemoryRepo) Append(ctx context.Context, e Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	if r.max > 0 && len(r.events) > r.max {
		over := len(r.events) - r.max
		r.events = append(r.events[:0:0], r.events[over:]...)
		r.dropped += over
	}
	return nil
}

// Events returns a copy of the retained events, oldest first.
func (r *MemoryRepo) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Dropped counts events evicted by the bound.
func (r *MemoryRepo) Dropped() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dropped
}
