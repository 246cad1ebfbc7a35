package calls

import (
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"github.com/jonhson0816/nelly-api/internal/presence"
)

// Session is one call between initiation and termination.
//
// Invariants:
// - A session exists only while ringing or active; termination removes it.
// - At most one ring timeout is armed per session, and only while ringing.
// - CallerConn and ReceiverConn are snapshots taken at initiate and accept.
type Session struct {
	CallID     string `json:"call_id"`
	CallerID   string `json:"caller_id"`
	ReceiverID string `json:"receiver_id"`

	CallerConn   presence.Conn `json:"-"`
	ReceiverConn presence.Conn `json:"-"`

	Status Status `json:"status"`

	StartedAt  time.Time  `json:"started_at"`
	AcceptedAt *time.Time `json:"accepted_at,omitempty"`

	// CallerInfo is display metadata supplied by the caller. Not interpreted here.
	CallerInfo map[string]any `json:"-"`
}

func (s Session) WasAccepted() bool { return s.AcceptedAt != nil }

// Involves reports whether userID is one of the two participants.
func (s Session) Involves(userID string) bool {
	return userID == s.CallerID || userID == s.ReceiverID
}

type Status string

const (
	StatusRinging Status = "ringing"
	StatusActive  Status = "active"
)

// NewCallID derives a call identifier from its participants and creation time.
func NewCallID(callerID, receiverID string, at time.Time) string {
	return fmt.Sprintf("%s_%s_%d", callerID, receiverID, at.UnixMilli())
}

// Client → server events.
const (
	EventInitiate = "call.initiate"
	EventAccept   = "call.accept"
	EventDecline  = "call.decline"
	EventEnd      = "call.end"

	EventOffer  = "webrtc.offer"
	EventAnswer = "webrtc.answer"
	EventICE    = "webrtc.ice"
)

// Server → client events. Relayed webrtc.* frames keep their inbound names.
const (
	EventInitiated = "call.initiated"
	EventIncoming  = "call.incoming"
	EventAccepted  = "call.accepted"
	EventDeclined  = "call.declined"
	EventMissed    = "call.missed"
	EventEnded     = "call.ended"
	EventError     = "call.error"
)

const (
	MsgUserOffline       = "User is offline"
	MsgCallInProgress    = "Call already in progress"
	ReasonNoAnswer       = "No answer"
	ReasonMissedCall     = "Missed call"
	ReasonUserDisconnect = "User disconnected"
	ReasonDeclined       = "Call declined"
)

type InitiateRequest struct {
	ReceiverID string         `json:"receiverId" validate:"required,max=128"`
	CallerID   string         `json:"callerId" validate:"required,max=128"`
	CallerInfo map[string]any `json:"callerInfo"`
}

type AcceptRequest struct {
	CallID string `json:"callId" validate:"required,max=300"`
}

type DeclineRequest struct {
	CallID string `json:"callId" validate:"required,max=300"`
	Reason string `json:"reason" validate:"max=200"`
}

type EndRequest struct {
	CallID string `json:"callId" validate:"required,max=300"`
	// Duration is the client-measured call length in seconds.
	Duration *int `json:"duration" validate:"omitempty,min=0"`
}

type OfferRequest struct {
	CallID     string          `json:"callId" validate:"required,max=300"`
	ReceiverID string          `json:"receiverId" validate:"required,max=128"`
	Offer      json.RawMessage `json:"offer" validate:"required"`
}

type AnswerRequest struct {
	CallID   string          `json:"callId" validate:"required,max=300"`
	CallerID string          `json:"callerId" validate:"required,max=128"`
	Answer   json.RawMessage `json:"answer" validate:"required"`
}

type ICERequest struct {
	CallID       string          `json:"callId" validate:"required,max=300"`
	TargetUserID string          `json:"targetUserId" validate:"required,max=128"`
	Candidate    json.RawMessage `json:"candidate" validate:"required"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}

type InitiatedPayload struct {
	CallID     string `json:"callId"`
	ReceiverID string `json:"receiverId"`
}

type IncomingPayload struct {
	CallID string         `json:"callId"`
	Caller map[string]any `json:"caller"`
}

type AcceptedPayload struct {
	CallID     string    `json:"callId"`
	AcceptedAt time.Time `json:"acceptedAt"`
}

type DeclinedPayload struct {
	CallID string `json:"callId"`
	Reason string `json:"reason"`
}

type MissedPayload struct {
	CallID   string `json:"callId"`
	Reason   string `json:"reason"`
	CallType string `json:"callType"` // "outgoing" for the caller, "incoming" for the receiver
}

type EndedPayload struct {
	CallID      string `json:"callId"`
	Duration    int    `json:"duration"`
	WasAccepted bool   `json:"wasAccepted"`
	EndedBy     string `json:"endedBy,omitempty"`
	Reason      string `json:"reason,omitempty"`
}

type OfferPayload struct {
	CallID   string          `json:"callId"`
	Offer    json.RawMessage `json:"offer"`
	CallerID string          `json:"callerId"`
}

type AnswerPayload struct {
	CallID     string          `json:"callId"`
	Answer     json.RawMessage `json:"answer"`
	ReceiverID string          `json:"receiverId"`
}

type ICEPayload struct {
	CallID     string          `json:"callId"`
	Candidate  json.RawMessage `json:"candidate"`
	FromUserID string          `json:"fromUserId"`
}
