package hashtags

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "hashtags:"

// tieSlack widens the fetched range so equal scores at the cut can be
// re-ordered by tag before trimming.
const tieSlack = 32

// RedisStore keeps one sorted set per hour: member = tag, score = count.
type RedisStore struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedisStore keeps hourly buckets for window plus one hour.
func NewRedisStore(rdb *redis.Client, window time.Duration) *RedisStore {
	if window < time.Hour {
		window = DefaultWindow
	}
	return &RedisStore{rdb: rdb, ttl: window + time.Hour}
}

// BucketKey is the sorted-set key of the hour starting at hour.
func BucketKey(hour time.Time) string {
	return fmt.Sprintf("%sh:%d", keyPrefix, hour.UTC().Unix()/3600)
}

func (s *RedisStore) Add(ctx context.Context, hour time.Time, tags []string) error {
	key := BucketKey(hour)
	_, err := s.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		for _, tag := range tags {
			p.ZIncrBy(ctx, key, 1, tag)
		}
		p.Expire(ctx, key, s.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("hashtags: record: %w", err)
	}
	return nil
}

// Top merges the weighted buckets into a scratch key with ZUNIONSTORE and
// reads the head of the result.
func (s *RedisStore) Top(ctx context.Context, weights []BucketWeight, limit int) ([]Trend, error) {
	if len(weights) == 0 {
		return []Trend{}, nil
	}
	keys := make([]string, len(weights))
	ws := make([]float64, len(weights))
	for i, w := range weights {
		keys[i] = BucketKey(w.Hour)
		ws[i] = w.Weight
	}

	dest := keyPrefix + "tmp:" + uuid.NewString()
	var rng *redis.ZSliceCmd
	_, err := s.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.ZUnionStore(ctx, dest, &redis.ZStore{Keys: keys, Weights: ws, Aggregate: "SUM"})
		rng = p.ZRevRangeWithScores(ctx, dest, 0, int64(limit+tieSlack-1))
		p.Del(ctx, dest)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("hashtags: trending: %w", err)
	}

	scores := make(map[string]float64, len(rng.Val()))
	for _, z := range rng.Val() {
		if tag, ok := z.Member.(string); ok {
			scores[tag] = z.Score
		}
	}
	return rank(scores, limit), nil
}
