package gamification

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jonhson0816/nelly-api/pkg/logger"
)

var (
	ErrUnknownAction = errors.New("gamification: unknown action")
	ErrInvalidUser   = errors.New("gamification: user id required")
)

// Repository stores points, action counters and granted badges.
type Repository interface {
	// Add increments points and the action counter and returns the new stats.
	Add(ctx context.Context, userID string, action Action, points int64) (Stats, error)
	Stats(ctx context.Context, userID string) (Stats, error)
	// GrantBadges adds badges and returns the ones not previously held.
	GrantBadges(ctx context.Context, userID string, badges []Badge) ([]Badge, error)
	Badges(ctx context.Context, userID string) ([]Badge, error)
}

// Progress is a user's standing after an award or on read.
type Progress struct {
	UserID      string  `json:"user_id"`
	Points      int64   `json:"points"`
	Level       int     `json:"level"`
	NextLevelAt int64   `json:"next_level_at,omitempty"`
	Badges      []Badge `json:"badges"`
	NewBadges   []Badge `json:"new_badges,omitempty"`
}

type Service struct {
	repo Repository
	log  *slog.Logger
}

func NewService(repo Repository, l *slog.Logger) *Service {
	return &Service{repo: repo, log: logger.OrDefault(l).With("component", "gamification")}
}

// Award credits action to userID and grants any badge newly earned.
func (s *Service) Award(ctx context.Context, userID string, action Action) (Progress, error) {
	if userID == "" {
		return Progress{}, ErrInvalidUser
	}
	pts, ok := Points(action)
	if !ok {
		return Progress{}, fmt.Errorf("%w: %q", ErrUnknownAction, action)
	}

	st, err := s.repo.Add(ctx, userID, action, pts)
	if err != nil {
		return Progress{}, fmt.Errorf("gamification: award %s: %w", action, err)
	}
	fresh, err := s.repo.GrantBadges(ctx, userID, EarnedBadges(st))
	if err != nil {
		return Progress{}, fmt.Errorf("gamification: grant badges: %w", err)
	}
	all, err := s.repo.Badges(ctx, userID)
	if err != nil {
		return Progress{}, err
	}
	if len(fresh) > 0 {
		s.log.Info("badges earned", "user_id", userID, "badges", fresh)
	}

	p := progress(userID, st, all)
	p.NewBadges = fresh
	return p, nil
}

// Progress reads userID's current standing.
func (s *Service) Progress(ctx context.Context, userID string) (Progress, error) {
	if userID == "" {
		return Progress{}, ErrInvalidUser
	}
	st, err := s.repo.Stats(ctx, userID)
	if err != nil {
		return Progress{}, err
	}
	all, err := s.repo.Badges(ctx, userID)
	if err != nil {
		return Progress{}, err
	}
	return progress(userID, st, all), nil
}

func progress(userID string, st Stats, badges []Badge) Progress {
	if badges == nil {
		badges = []Badge{}
	}
	return Progress{
		UserID:      userID,
		Points:      st.Points,
		Level:       LevelFor(st.Points),
		NextLevelAt: NextLevelAt(st.Points),
		Badges:      badges,
	}
}
