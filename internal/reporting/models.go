package reporting

import "time"

type TimeRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// CallsSummaryRequest asks for one user's call activity in a range.
// Users only ever see their own side of the history.
type CallsSummaryRequest struct {
	UserID string    `json:"user_id"`
	Range  TimeRange `json:"range"`
}

type CallsSummary struct {
	UserID string    `json:"user_id"`
	Range  TimeRange `json:"range"`

	TotalCalls     int `json:"total_calls"`
	CompletedCalls int `json:"completed_calls"`
	MissedCalls    int `json:"missed_calls"`
	DeclinedCalls  int `json:"declined_calls"`

	OutgoingCalls int `json:"outgoing_calls"`
	IncomingCalls int `json:"incoming_calls"`

	TotalDurationSeconds int `json:"total_duration_seconds"`
	// AverageDurationSeconds is over completed calls only.
	AverageDurationSeconds int `json:"average_duration_seconds"`

	// AnswerRate is completed / total.
	AnswerRate float64 `json:"answer_rate"`

	DistinctPeers int `json:"distinct_peers"`
}
