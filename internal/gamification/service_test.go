package gamification

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/redis/go-redis/v9"

	"github.com/jonhson0816/nelly-api/pkg/logger"
)

func TestLevelFor(t *testing.T) {
	cases := map[int64]int{0: 1, 99: 1, 100: 2, 249: 2, 250: 3, 500: 4, 1000: 5, 1999: 5, 2000: 6, 5000: 7, 9999: 7, 10000: 8, 1 << 40: 8}
	for pts, want := range cases {
		if got := LevelFor(pts); got != want {
			t.Fatalf("LevelFor(%d) = %d, want %d", pts, got, want)
		}
	}
	if NextLevelAt(120) != 250 || NextLevelAt(10000) != 0 {
		t.Fatalf("unexpected next level thresholds")
	}
}

func TestEarnedBadges(t *testing.T) {
	got := EarnedBadges(Stats{Points: 2000, Actions: map[Action]int64{ActionPostCreated: 1, ActionCommentCreated: 49, ActionCallCompleted: 10}})
	want := []Badge{BadgeFirstPost, BadgeRisingStar, BadgeSuperfan, BadgeCaller}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestAward_GrantsBadgesOnce(t *testing.T) {
	svc := NewService(NewMemoryRepo(), logger.Discard())
	ctx := context.Background()

	p, err := svc.Award(ctx, "u1", ActionPostCreated)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if p.Points != 10 || p.Level != 1 || p.NextLevelAt != 100 {
		t.Fatalf("unexpected progress: %+v", p)
	}
	if len(p.NewBadges) != 1 || p.NewBadges[0] != BadgeFirstPost {
		t.Fatalf("expected first_post badge, got %+v", p.NewBadges)
	}

	p, _ = svc.Award(ctx, "u1", ActionPostCreated)
	if len(p.NewBadges) != 0 || len(p.Badges) != 1 {
		t.Fatalf("badge granted twice: %+v", p)
	}
}

func TestAward_LevelsUp(t *testing.T) {
	svc := NewService(NewMemoryRepo(), logger.Discard())
	ctx := context.Background()
	var p Progress
	for i := 0; i < 10; i++ {
		p, _ = svc.Award(ctx, "u1", ActionPostCreated)
	}
	if p.Points != 100 || p.Level != 2 {
		t.Fatalf("expected level 2 at 100 points, got %+v", p)
	}
}

func TestAward_Rejects(t *testing.T) {
	svc := NewService(NewMemoryRepo(), logger.Discard())
	if _, err := svc.Award(context.Background(), "u1", "teleport"); !errors.Is(err, ErrUnknownAction) {
		t.Fatalf("expected ErrUnknownAction, got %v", err)
	}
	if _, err := svc.Award(context.Background(), "", ActionDailyLogin); !errors.Is(err, ErrInvalidUser) {
		t.Fatalf("expected ErrInvalidUser, got %v", err)
	}
}

func TestProgress_EmptyUser(t *testing.T) {
	svc := NewService(NewMemoryRepo(), logger.Discard())
	p, err := svc.Progress(context.Background(), "nobody")
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if p.Points != 0 || p.Level != 1 || p.Badges == nil {
		t.Fatalf("unexpected progress: %+v", p)
	}
}

func TestParseStats(t *testing.T) {
	st, err := parseStats(map[string]string{"points": "15", "post_created": "1", "daily_login": "2"})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if st.Points != 15 || st.Actions[ActionPostCreated] != 1 || st.Actions[ActionDailyLogin] != 2 {
		t.Fatalf("unexpected stats: %+v", st)
	}
	if _, err := parseStats(map[string]string{"points": "x"}); err == nil {
		t.Fatalf("expected parse error")
	}
}

// Runs against a real Redis when REDIS_TEST_ADDR is set.
func TestRedisRepo_Integration(t *testing.T) {
	addr := os.Getenv("REDIS_TEST_ADDR")
	if addr == "" {
		t.Skip("REDIS_TEST_ADDR not set")
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	defer rdb.Close()
	ctx := context.Background()
	t.Cleanup(func() { rdb.Del(ctx, StatsKey("it-user"), BadgesKey("it-user")) })

	svc := NewService(NewRedisRepo(rdb), logger.Discard())
	p, err := svc.Award(ctx, "it-user", ActionPostCreated)
	if err != nil {
		t.Fatalf("award: %v", err)
	}
	if p.Points != 10 || len(p.NewBadges) != 1 {
		t.Fatalf("unexpected progress: %+v", p)
	}
	p, _ = svc.Award(ctx, "it-user", ActionPostCreated)
	if len(p.NewBadges) != 0 || p.Points != 20 {
		t.Fatalf("unexpected progress: %+v", p)
	}
}
