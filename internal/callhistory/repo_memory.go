package callhistory

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryRepo is an in-memory append-only repository for tests and local runs.
type MemoryRepo struct {
	mu      sync.Mutex
	records []Record
	seen    map[string]struct{}

	// failures makes the next N writes fail with failErr.
	failures int
	failErr  error
}

func NewMemoryRepo() *MemoryRepo { return &MemoryRepo{seen: map[string]struct{}{}} }

// FailNext makes the next n write calls return err.
func (r *MemoryRepo) FailNext(n int, err error) {
	r.mu.Lock()
	r.failures, r.failErr = n, err
	r.mu.Unlock()
}

func (r *MemoryRepo) Append(ctx context.Context, rec Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.consumeFailure(); err != nil {
		return err
	}
	r.insert(rec)
	return nil
}

func (r *MemoryRepo) AppendPair(ctx context.Context, a, b Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.consumeFailure(); err != nil {
		return err
	}
	r.insert(a)
	r.insert(b)
	return nil
}

func (r *MemoryRepo) ListForUser(ctx context.Context, userID string, before time.Time, limit int) ([]Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Record, 0)
	for i := len(r.records) - 1; i >= 0; i-- {
		rec := r.records[i]
		if rec.SenderID != userID {
			continue
		}
		if !before.IsZero() && !rec.CreatedAt.Before(before) {
			continue
		}
		out = append(out, rec)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *MemoryRepo) ListRange(ctx context.Context, userID string, from, to time.Time) ([]Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Record, 0)
	for _, rec := range r.records {
		if rec.SenderID != userID {
			continue
		}
		if rec.CreatedAt.Before(from) || !rec.CreatedAt.Before(to) {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

// Records returns a copy of everything written, in write order.
func (r *MemoryRepo) Records() []Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Record, len(r.records))
	copy(out, r.records)
	return out
}

// ForCall returns the records written for callID.
func (r *MemoryRepo) ForCall(callID string) []Record {
	var out []Record
	for _, rec := range r.Records() {
		if rec.CallID == callID {
			out = append(out, rec)
		}
	}
	return out
}

func (r *MemoryRepo) insert(rec Record) {
	if _, dup := r.seen[rec.ID]; dup {
		return
	}
	r.seen[rec.ID] = struct{}{}
	r.records = append(r.records, rec)
}

func (r *MemoryRepo) consumeFailure() error {
	if r.failures <= 0 {
		return nil
	}
	r.failures--
	return r.failErr
}
