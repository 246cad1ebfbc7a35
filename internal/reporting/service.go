package reporting

import (
	"context"
	"errors"
	"time"

	"github.com/jonhson0816/nelly-api/internal/callhistory"
)

var ErrInvalidRequest = errors.New("reporting: invalid request")

// maxRange bounds a single summary query.
const maxRange = 366 * 24 * time.Hour

// Repository reads immutable call-history records.
// Implementations must only return rows owned by userID.
type Repository interface {
	ListRange(ctx context.Context, userID string, from, to time.Time) ([]callhistory.Record, error)
}

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service { return &Service{repo: repo} }

func (s *Service) CallsSummary(ctx context.Context, req CallsSummaryRequest) (CallsSummary, error) {
	if req.UserID == "" {
		return CallsSummary{}, ErrInvalidRequest
	}
	if req.Range.From.IsZero() || req.Range.To.IsZero() || !req.Range.To.After(req.Range.From) {
		return CallsSummary{}, ErrInvalidRequest
	}
	if req.Range.To.Sub(req.Range.From) > maxRange {
		return CallsSummary{}, ErrInvalidRequest
	}
	if s.repo == nil {
		return CallsSummary{}, errors.New("reporting: repository not configured")
	}

	rows, err := s.repo.ListRange(ctx, req.UserID, req.Range.From, req.Range.To)
	if err != nil {
		return CallsSummary{}, err
	}

	out := CallsSummary{UserID: req.UserID, Range: req.Range}
	peers := map[string]struct{}{}
	for _, r := range rows {
		if r.SenderID != req.UserID {
			continue
		}
		out.TotalCalls++
		out.TotalDurationSeconds += r.DurationSeconds
		peers[r.ReceiverID] = struct{}{}

		switch r.Status {
		case callhistory.StatusCompleted:
			out.CompletedCalls++
		case callhistory.StatusMissed:
			out.MissedCalls++
		case callhistory.StatusDeclined:
			out.DeclinedCalls++
		}
		switch r.Direction {
		case callhistory.DirectionOutgoing:
			out.OutgoingCalls++
		case callhistory.DirectionIncoming:
			out.IncomingCalls++
		}
	}
	out.DistinctPeers = len(peers)
	if out.CompletedCalls > 0 {
		out.AverageDurationSeconds = out.TotalDurationSeconds / out.CompletedCalls
	}
	if out.TotalCalls > 0 {
		out.AnswerRate = float64(out.CompletedCalls) / float64(out.TotalCalls)
	}
	return out, nil
}
