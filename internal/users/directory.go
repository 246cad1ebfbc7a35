// Package users is the read side of the user directory consumed by the
// realtime and HTTP layers.
package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"
)

// User is the directory view of an account.
type User struct {
	ID          string `json:"id" db:"id"`
	Username    string `json:"username" db:"username"`
	DisplayName string `json:"display_name" db:"display_name"`
	AvatarURL   string `json:"avatar_url,omitempty" db:"avatar_url"`
	Role        string `json:"role" db:"role"`
}

// Name is what clients show for the user.
func (u User) Name() string {
	if u.DisplayName != "" {
		return u.DisplayName
	}
	return u.Username
}

// Directory looks users up by ID. Absent users are (User{}, false, nil).
type Directory interface {
	FindByID(ctx context.Context, id string) (User, bool, error)
}

type PostgresDirectory struct {
	db *sql.DB
}

func NewPostgresDirectory(db *sql.DB) *PostgresDirectory { return &PostgresDirectory{db: db} }

const selectUserByID = `
SELECT id, username, COALESCE(display_name, ''), COALESCE(avatar_url, ''), role
FROM users
WHERE id = $1
`

func (d *PostgresDirectory) FindByID(ctx context.Context, id string) (User, bool, error) {
	if d.db == nil {
		return User{}, false, errors.New("users: db not configured")
	}
	var u User
	err := d.db.QueryRowContext(ctx, selectUserByID, id).Scan(&u.ID, &u.Username, &u.DisplayName, &u.AvatarURL, &u.Role)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, false, nil
	}
	if err != nil {
		return User{}, false, fmt.Errorf("users: find %s: %w", id, err)
	}
	return u, true, nil
}

// CachedDirectory memoizes hits of another Directory for a fixed TTL.
// Misses and errors are not cached.
type CachedDirectory struct {
	next  Directory
	ttl   time.Duration
	cache *ttlcache.Cache[string, User]
}

func NewCachedDirectory(next Directory, ttl time.Duration) *CachedDirectory {
	cache := ttlcache.New[string, User](
		ttlcache.WithTTL[string, User](ttl),
	)
	go cache.Start()
	return &CachedDirectory{next: next, ttl: ttl, cache: cache}
}

func (d *CachedDirectory) FindByID(ctx context.Context, id string) (User, bool, error) {
	if item := d.cache.Get(id, ttlcache.WithDisableTouchOnHit[string, User]()); item != nil {
		return item.Value(), true, nil
	}
	u, ok, err := d.next.FindByID(ctx, id)
	if err != nil || !ok {
		return u, ok, err
	}
	d.cache.Set(id, u, d.ttl)
	return u, true, nil
}

// Invalidate drops id from the cache.
func (d *CachedDirectory) Invalidate(id string) { d.cache.Delete(id) }

// Stop ends the cache's expiry loop.
func (d *CachedDirectory) Stop() { d.cache.Stop() }

// MemoryDirectory is a fixed in-memory directory for tests and local runs.
type MemoryDirectory struct {
	mu    sync.RWMutex
	users map[string]User
	calls int
}

func NewMemoryDirectory(us ...User) *MemoryDirectory {
	d := &MemoryDirectory{users: make(map[string]User)}
	for _, u := range us {
		d.users[u.ID] = u
	}
	return d
}

func (d *MemoryDirectory) Put(u User) {
	d.mu.Lock()
	d.users[u.ID] = u
	d.mu.Unlock()
}

func (d *MemoryDirectory) FindByID(ctx context.Context, id string) (User, bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	u, ok := d.users[id]
	return u, ok, nil
}

// Lookups reports how many FindByID calls reached this directory.
func (d *MemoryDirectory) Lookups() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.calls
}
