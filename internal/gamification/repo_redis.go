package gamification

import (
	"context"
	"fmt"
	"sort"
	"strconv"

	"github.com/redis/go-redis/v9"
)

// RedisRepo keeps one hash per user (field "points" plus one counter per
// action) and one set of badges.
type RedisRepo struct {
	rdb *redis.Client
}

func NewRedisRepo(rdb *redis.Client) *RedisRepo { return &RedisRepo{rdb: rdb} }

const pointsField = "points"

func StatsKey(userID string) string  { return "gamification:stats:" + userID }
func BadgesKey(userID string) string { return "gamification:badges:" + userID }

func (r *RedisRepo) Add(ctx context.Context, userID string, action Action, points int64) (Stats, error) {
	key := StatsKey(userID)
	_, err := r.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HIncrBy(ctx, key, pointsField, points)
		p.HIncrBy(ctx, key, string(action), 1)
		return nil
	})
	if err != nil {
		return Stats{}, err
	}
	return r.Stats(ctx, userID)
}

func (r *RedisRepo) Stats(ctx context.Context, userID string) (Stats, error) {
	fields, err := r.rdb.HGetAll(ctx, StatsKey(userID)).Result()
	if err != nil {
		return Stats{}, err
	}
	return parseStats(fields)
}

func (r *RedisRepo) GrantBadges(ctx context.Context, userID string, badges []Badge) ([]Badge, error) {
	if len(badges) == 0 {
		return nil, nil
	}
	key := BadgesKey(userID)
	cmds := make([]*redis.IntCmd, len(badges))
	_, err := r.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		for i, b := range badges {
			cmds[i] = p.SAdd(ctx, key, string(b))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	var fresh []Badge
	for i, c := range cmds {
		if c.Val() > 0 {
			fresh = append(fresh, badges[i])
		}
	}
	return fresh, nil
}

func (r *RedisRepo) Badges(ctx context.Context, userID string) ([]Badge, error) {
	members, err := r.rdb.SMembers(ctx, BadgesKey(userID)).Result()
	if err != nil {
		return nil, err
	}
	sort.Strings(members)
	out := make([]Badge, len(members))
	for i, m := range members {
		out[i] = Badge(m)
	}
	return out, nil
}

func parseStats(fields map[string]string) (Stats, error) {
	st := Stats{Actions: make(map[Action]int64, len(fields))}
	for k, v := range fields {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return Stats{}, fmt.Errorf("gamification: field %s: %w", k, err)
		}
		if k == pointsField {
			st.Points = n
			continue
		}
		st.Actions[Action(k)] = n
	}
	return st, nil
}
