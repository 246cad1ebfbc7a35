package hashtags

import (
	"context"
	"errors"
	"math"
	"sort"
	"time"
)

const (
	DefaultWindow   = 24 * time.Hour
	DefaultHalfLife = 6 * time.Hour

	defaultLimit = 10
	maxLimit     = 100
)

var ErrNoTags = errors.New("hashtags: no tags")

// Trend is one ranked tag.
type Trend struct {
	Tag   string  `json:"tag"`
	Score float64 `json:"score"`
}

// BucketWeight scales the counts of the hourly bucket starting at Hour.
type BucketWeight struct {
	Hour   time.Time
	Weight float64
}

// Store keeps per-hour tag counts.
type Store interface {
	Add(ctx context.Context, hour time.Time, tags []string) error
	// Top ranks tags by the weighted sum of their bucket counts.
	Top(ctx context.Context, weights []BucketWeight, limit int) ([]Trend, error)
}

type Tracker struct {
	store    Store
	window   time.Duration
	halfLife time.Duration
}

func NewTracker(store Store, window time.Duration) *Tracker {
	if window < time.Hour {
		window = DefaultWindow
	}
	return &Tracker{store: store, window: window, halfLife: DefaultHalfLife}
}

// Record counts tags once each in the hour containing at.
func (t *Tracker) Record(ctx context.Context, tags []string, at time.Time) error {
	if len(tags) == 0 {
		return ErrNoTags
	}
	return t.store.Add(ctx, hourOf(at), tags)
}

// RecordText extracts and records the hashtags of text.
func (t *Tracker) RecordText(ctx context.Context, text string, at time.Time) ([]string, error) {
	tags := Extract(text)
	if err := t.Record(ctx, tags, at); err != nil {
		return nil, err
	}
	return tags, nil
}

// Trending returns the top tags as of now, highest score first, ties by tag.
func (t *Tracker) Trending(ctx context.Context, now time.Time, limit int) ([]Trend, error) {
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	return t.store.Top(ctx, t.weights(now), limit)
}

// weights covers every hourly bucket in the window; a bucket age hours old
// counts 0.5^(age/halfLife).
func (t *Tracker) weights(now time.Time) []BucketWeight {
	cur := hourOf(now)
	n := int(t.window / time.Hour)
	out := make([]BucketWeight, 0, n)
	for age := 0; age < n; age++ {
		out = append(out, BucketWeight{
			Hour:   cur.Add(-time.Duration(age) * time.Hour),
			Weight: math.Pow(0.5, float64(age)/t.halfLife.Hours()),
		})
	}
	return out
}

func hourOf(t time.Time) time.Time { return t.UTC().Truncate(time.Hour) }

func rank(scores map[string]float64, limit int) []Trend {
	out := make([]Trend, 0, len(scores))
	for tag, s := range scores {
		if s > 0 {
			out = append(out, Trend{Tag: tag, Score: s})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Tag < out[j].Tag
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
