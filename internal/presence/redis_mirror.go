package presence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "presence:"

var clearIfOwnerScript = redis.NewScript(`
-- KEYS[1] = presence key
-- ARGV[1] = connection id expected to own the key
--
-- Returns 1 if deleted, 0 if the key belongs to a newer connection.
if redis.call('GET', KEYS[1]) == ARGV[1] then
  redis.call('DEL', KEYS[1])
  return 1
end
return 0
`)

// RedisMirror stores presence:<userId> = <connId> so other processes can
// answer "is this user online". The TTL only bounds leaks from crashed
// processes; it is not a heartbeat.
type RedisMirror struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisMirror(rdb *redis.Client, ttl time.Duration) *RedisMirror {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisMirror{rdb: rdb, ttl: ttl}
}

func Key(userID string) string { return keyPrefix + userID }

func (m *RedisMirror) SetOnline(ctx context.Context, userID, connID string) error {
	if m.rdb == nil {
		return errors.New("presence: redis client is nil")
	}
	if err := m.rdb.Set(ctx, Key(userID), connID, m.ttl).Err(); err != nil {
		return fmt.Errorf("presence: set %s: %w", userID, err)
	}
	return nil
}

// Clear deletes the key only while it still names connID.
func (m *RedisMirror) Clear(ctx context.Context, userID, connID string) error {
	if m.rdb == nil {
		return errors.New("presence: redis client is nil")
	}
	if _, err := clearIfOwnerScript.Run(ctx, m.rdb, []string{Key(userID)}, connID).Int(); err != nil {
		return fmt.Errorf("presence: clear %s: %w", userID, err)
	}
	return nil
}

func (m *RedisMirror) IsOnline(ctx context.Context, userID string) (bool, error) {
	if m.rdb == nil {
		return false, errors.New("presence: redis client is nil")
	}
	n, err := m.rdb.Exists(ctx, Key(userID)).Result()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}
