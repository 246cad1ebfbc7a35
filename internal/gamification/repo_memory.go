package gamification

import (
	"context"
	"sort"
	"sync"
)

type MemoryRepo struct {
	mu     sync.Mutex
	stats  map[string]*Stats
	badges map[string]map[Badge]struct{}
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{stats: map[string]*Stats{}, badges: map[string]map[Badge]struct{}{}}
}

func (r *MemoryRepo) Add(ctx context.Context, userID string, action Action, points int64) (Stats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.stats[userID]
	if !ok {
		st = &Stats{Actions: map[Action]int64{}}
		r.stats[userID] = st
	}
	st.Points += points
	st.Actions[action]++
	return copyStats(*st), nil
}

func (r *MemoryRepo) Stats(ctx context.Context, userID string) (Stats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.stats[userID]
	if !ok {
		return Stats{Actions: map[Action]int64{}}, nil
	}
	return copyStats(*st), nil
}

func (r *MemoryRepo) GrantBadges(ctx context.Context, userID string, badges []Badge) ([]Badge, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	held, ok := r.badges[userID]
	if !ok {
		held = map[Badge]struct{}{}
		r.badges[userID] = held
	}
	var fresh []Badge
	for _, b := range badges {
		if _, has := held[b]; !has {
			held[b] = struct{}{}
			fresh = append(fresh, b)
		}
	}
	return fresh, nil
}

func (r *MemoryRepo) Badges(ctx context.Context, userID string) ([]Badge, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Badge, 0, len(r.badges[userID]))
	for b := range r.badges[userID] {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

func copyStats(s Stats) Stats {
	out := Stats{Points: s.Points, Actions: make(map[Action]int64, len(s.Actions))}
	for k, v := range s.Actions {
		out.Actions[k] = v
	}
	return out
}
