// Package gamification awards points for user actions and derives levels
// and badges from the running totals.
package gamification

import "sort"

type Action string

const (
	ActionPostCreated    Action = "post_created"
	ActionStoryCreated   Action = "story_created"
	ActionCommentCreated Action = "comment_created"
	ActionLikeReceived   Action = "like_received"
	ActionCallCompleted  Action = "call_completed"
	ActionDailyLogin     Action = "daily_login"
)

var pointsFor = map[Action]int64{
	ActionPostCreated:    10,
	ActionStoryCreated:   5,
	ActionCommentCreated: 3,
	ActionLikeReceived:   1,
	ActionCallCompleted:  5,
	ActionDailyLogin:     2,
}

// Points returns the award for action and whether the action is known.
func Points(a Action) (int64, bool) {
	p, ok := pointsFor[a]
	return p, ok
}

// levelThresholds[i] is the minimum points for level i+1.
var levelThresholds = []int64{0, 100, 250, 500, 1000, 2000, 5000, 10000}

// LevelFor maps a point total to its level (1-based).
func LevelFor(points int64) int {
	return sort.Search(len(levelThresholds), func(i int) bool { return levelThresholds[i] > points })
}

// NextLevelAt is the point total of the next level, or 0 at the top level.
func NextLevelAt(points int64) int64 {
	l := LevelFor(points)
	if l >= len(levelThresholds) {
		return 0
	}
	return levelThresholds[l]
}

type Badge string

const (
	BadgeFirstPost         Badge = "first_post"
	BadgeConversationalist Badge = "conversationalist"
	BadgeRisingStar        Badge = "rising_star"
	BadgeSuperfan          Badge = "superfan"
	BadgeCaller            Badge = "caller"
)

// Stats is the per-user state badges are judged on.
type Stats struct {
	Points  int64
	Actions map[Action]int64
}

type badgeRule struct {
	badge Badge
	met   func(Stats) bool
}

var badgeRules = []badgeRule{
	{BadgeFirstPost, func(s Stats) bool { return s.Actions[ActionPostCreated] >= 1 }},
	{BadgeConversationalist, func(s Stats) bool { return s.Actions[ActionCommentCreated] >= 50 }},
	{BadgeRisingStar, func(s Stats) bool { return s.Points >= 500 }},
	{BadgeSuperfan, func(s Stats) bool { return s.Points >= 2000 }},
	{BadgeCaller, func(s Stats) bool { return s.Actions[ActionCallCompleted] >= 10 }},
}

// EarnedBadges lists every badge s qualifies for, in rule order.
func EarnedBadges(s Stats) []Badge {
	var out []Badge
	for _, r := range badgeRules {
		if r.met(s) {
			out = append(out, r.badge)
		}
	}
	return out
}
