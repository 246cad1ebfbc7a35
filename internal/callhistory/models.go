package callhistory

import "time"

// Record is one participant's immutable view of a resolved call.
//
// Invariants:
// - Records are never updated or deleted by the realtime layer.
// - Every resolved call produces exactly two records with SenderID and
//   ReceiverID swapped, so each participant's history is queryable on its own
//   without joining a shared call row.
// - ID is derived from (CallID, SenderID), making a retried write a no-op.
type Record struct {
	ID     string `json:"id" db:"id"`
	CallID string `json:"call_id" db:"call_id"`

	// SenderID owns this view of the call.
	SenderID   string `json:"sender_id" db:"sender_id"`
	ReceiverID string `json:"receiver_id" db:"receiver_id"`

	CallType  CallType  `json:"call_type" db:"call_type"`
	Direction Direction `json:"direction" db:"direction"`
	Status    Status    `json:"status" db:"status"`

	DurationSeconds int `json:"duration" db:"duration"`

	// Note is the human-readable outcome shown in the history list.
	Note string `json:"note,omitempty" db:"note"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type Status string

const (
	StatusCompleted Status = "completed"
	StatusMissed    Status = "missed"
	StatusDeclined  Status = "declined"
)

func (s Status) Valid() bool {
	switch s {
	case StatusCompleted, StatusMissed, StatusDeclined:
		return true
	default:
		return false
	}
}

type Direction string

const (
	DirectionOutgoing Direction = "outgoing"
	DirectionIncoming Direction = "incoming"
)

type CallType string

const CallTypeAudio CallType = "audio"

// Outcome describes one call resolution; RecordCall fans it out into the
// caller's and the receiver's records.
type Outcome struct {
	CallID          string
	CallerID        string
	ReceiverID      string
	Status          Status
	DurationSeconds int
	CallType        CallType
	EndedAt         time.Time
}
