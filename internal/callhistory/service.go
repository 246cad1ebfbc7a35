package callhistory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/jonhson0816/nelly-api/pkg/logger"
)

// Repository is the persistence contract for call history.
//
// It MUST be append-only, and writes MUST be idempotent on Record.ID.
type Repository interface {
	Append(ctx context.Context, rec Record) error
	AppendPair(ctx context.Context, a, b Record) error
	ListForUser(ctx context.Context, userID string, before time.Time, limit int) ([]Record, error)
	ListRange(ctx context.Context, userID string, from, to time.Time) ([]Record, error)
}

var (
	ErrInvalidOutcome = errors.New("callhistory: invalid outcome")
	ErrNotConfigured  = errors.New("callhistory: repository not configured")
)

// recordNamespace seeds the name-based record IDs.
var recordNamespace = uuid.MustParse("6f1f2c1e-3b7a-4c55-9d8e-2a4f0c7b9e11")

const (
	defaultAttempts = 3
	defaultBackoff  = 100 * time.Millisecond
	maxListLimit    = 100
)

type Option func(*Service)

func WithClock(now func() time.Time) Option { return func(s *Service) { s.clock = now } }

func WithLogger(l *slog.Logger) Option { return func(s *Service) { s.log = l } }

// WithRetry sets how many times a failed write is attempted and the initial
// backoff between attempts (doubled each time).
func WithRetry(attempts int, backoff time.Duration) Option {
	return func(s *Service) {
		s.attempts = attempts
		s.backoff = backoff
	}
}

// WithBreakerSettings overrides the circuit breaker configuration.
func WithBreakerSettings(st gobreaker.Settings) Option {
	return func(s *Service) { s.breakerSettings = &st }
}

// Service writes and reads call history.
//
// Callers on the realtime path treat RecordCall as best-effort: a failure is
// logged and counted, never surfaced to clients. Writes go through a circuit
// breaker so a dead database fails fast instead of stalling every hangup.
type Service struct {
	repo            Repository
	clock           func() time.Time
	log             *slog.Logger
	attempts        int
	backoff         time.Duration
	breakerSettings *gobreaker.Settings
	breaker         *gobreaker.CircuitBreaker[struct{}]
}

func NewService(repo Repository, opts ...Option) *Service {
	s := &Service{
		repo:     repo,
		clock:    time.Now,
		attempts: defaultAttempts,
		backoff:  defaultBackoff,
	}
	for _, o := range opts {
		o(s)
	}
	s.log = logger.OrDefault(s.log).With("component", "callhistory")
	if s.attempts <= 0 {
		s.attempts = 1
	}

	st := gobreaker.Settings{
		Name:        "call-history",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     15 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	}
	if s.breakerSettings != nil {
		st = *s.breakerSettings
	}
	onChange := st.OnStateChange
	st.OnStateChange = func(name string, from, to gobreaker.State) {
		s.log.Warn("circuit breaker state change", "breaker", name, "from", from.String(), "to", to.String())
		if onChange != nil {
			onChange(name, from, to)
		}
	}
	s.breaker = gobreaker.NewCircuitBreaker[struct{}](st)
	return s
}

// RecordID returns the deterministic ID of senderID's record for callID.
func RecordID(callID, senderID string) string {
	return uuid.NewSHA1(recordNamespace, []byte(callID+"|"+senderID)).String()
}

// BuildPair fans an outcome out into the caller's and the receiver's records.
func (s *Service) BuildPair(o Outcome) (caller, receiver Record, err error) {
	if o.CallID == "" || o.CallerID == "" || o.ReceiverID == "" || !o.Status.Valid() || o.DurationSeconds < 0 {
		return Record{}, Record{}, ErrInvalidOutcome
	}
	if o.CallType == "" {
		o.CallType = CallTypeAudio
	}
	at := o.EndedAt
	if at.IsZero() {
		at = s.clock()
	}
	at = at.UTC()

	callerNote, receiverNote := notes(o.Status)
	caller = Record{
		ID:              RecordID(o.CallID, o.CallerID),
		CallID:          o.CallID,
		SenderID:        o.CallerID,
		ReceiverID:      o.ReceiverID,
		CallType:        o.CallType,
		Direction:       DirectionOutgoing,
		Status:          o.Status,
		DurationSeconds: o.DurationSeconds,
		Note:            callerNote,
		CreatedAt:       at,
	}
	receiver = caller
	receiver.ID = RecordID(o.CallID, o.ReceiverID)
	receiver.SenderID = o.ReceiverID
	receiver.ReceiverID = o.CallerID
	receiver.Direction = DirectionIncoming
	receiver.Note = receiverNote
	return caller, receiver, nil
}

// RecordCall persists both records of a resolved call, retrying transient
// failures while ctx allows.
func (s *Service) RecordCall(ctx context.Context, o Outcome) error {
	if s.repo == nil {
		return ErrNotConfigured
	}
	a, b, err := s.BuildPair(o)
	if err != nil {
		return err
	}

	backoff := s.backoff
	var lastErr error
	for attempt := 1; attempt <= s.attempts; attempt++ {
		_, lastErr = s.breaker.Execute(func() (struct{}, error) {
			return struct{}{}, s.repo.AppendPair(ctx, a, b)
		})
		if lastErr == nil {
			return nil
		}
		if errors.Is(lastErr, gobreaker.ErrOpenState) || errors.Is(lastErr, gobreaker.ErrTooManyRequests) {
			break
		}
		if attempt == s.attempts {
			break
		}
		s.log.Debug("call history write retry", "call_id", o.CallID, "attempt", attempt, "err", lastErr)
		select {
		case <-ctx.Done():
			return fmt.Errorf("callhistory: record %s: %w", o.CallID, ctx.Err())
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	return fmt.Errorf("callhistory: record %s: %w", o.CallID, lastErr)
}

// List returns userID's own records, newest first.
func (s *Service) List(ctx context.Context, userID string, before time.Time, limit int) ([]Record, error) {
	if s.repo == nil {
		return nil, ErrNotConfigured
	}
	if userID == "" {
		return nil, ErrInvalidOutcome
	}
	if limit <= 0 || limit > maxListLimit {
		limit = maxListLimit
	}
	return s.repo.ListForUser(ctx, userID, before, limit)
}

func notes(st Status) (caller, receiver string) {
	switch st {
	case StatusMissed:
		return "No answer", "Missed call"
	case StatusDeclined:
		return "Call declined", "Declined"
	default:
		return "", ""
	}
}
