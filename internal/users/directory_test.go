package users

import (
	"context"
	"testing"
	"time"
)

func TestCachedDirectory_CachesHits(t *testing.T) {
	mem := NewMemoryDirectory(User{ID: "u1", Username: "ada", DisplayName: "Ada"})
	d := NewCachedDirectory(mem, time.Minute)
	defer d.Stop()

	for i := 0; i < 3; i++ {
		u, ok, err := d.FindByID(context.Background(), "u1")
		if err != nil || !ok || u.Name() != "Ada" {
			t.Fatalf("unexpected lookup: %+v %v %v", u, ok, err)
		}
	}
	if n := mem.Lookups(); n != 1 {
		t.Fatalf("expected 1 backend lookup, got %d", n)
	}

	mem.Put(User{ID: "u1", Username: "ada", DisplayName: "Ada L."})
	d.Invalidate("u1")
	u, _, _ := d.FindByID(context.Background(), "u1")
	if u.DisplayName != "Ada L." {
		t.Fatalf("expected refreshed user after invalidate, got %+v", u)
	}
}

func TestCachedDirectory_DoesNotCacheMisses(t *testing.T) {
	mem := NewMemoryDirectory()
	d := NewCachedDirectory(mem, time.Minute)
	defer d.Stop()

	if _, ok, _ := d.FindByID(context.Background(), "ghost"); ok {
		t.Fatalf("expected miss")
	}
	mem.Put(User{ID: "ghost", Username: "casper"})
	if _, ok, _ := d.FindByID(context.Background(), "ghost"); !ok {
		t.Fatalf("expected hit once the user exists")
	}
}

func TestUserName_FallsBackToUsername(t *testing.T) {
	if got := (User{Username: "bob"}).Name(); got != "bob" {
		t.Fatalf("unexpected name %q", got)
	}
}
