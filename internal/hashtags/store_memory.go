package hashtags

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps hourly buckets in process, dropping buckets older than
// its retention on write.
type MemoryStore struct {
	mu        sync.Mutex
	buckets   map[time.Time]map[string]int64
	retention time.Duration
}

func NewMemoryStore(retention time.Duration) *MemoryStore {
	if retention <= 0 {
		retention = 2 * DefaultWindow
	}
	return &MemoryStore{buckets: make(map[time.Time]map[string]int64), retention: retention}
}

func (s *MemoryStore) Add(ctx context.Context, hour time.Time, tags []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.buckets[hour]
	if !ok {
		b = make(map[string]int64)
		s.buckets[hour] = b
	}
	for _, tag := range tags {
		b[tag]++
	}

	cutoff := hour.Add(-s.retention)
	for h := range s.buckets {
		if h.Before(cutoff) {
			delete(s.buckets, h)
		}
	}
	return nil
}

func (s *MemoryStore) Top(ctx context.Context, weights []BucketWeight, limit int) ([]Trend, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	scores := make(map[string]float64)
	for _, w := range weights {
		for tag, n := range s.buckets[w.Hour] {
			scores[tag] += float64(n) * w.Weight
		}
	}
	return rank(scores, limit), nil
}
