package calls

import (
	"context"
	"log/slog"

	"github.com/jonhson0816/nelly-api/internal/metrics"
	"github.com/jonhson0816/nelly-api/pkg/logger"
)

// Relay forwards WebRTC negotiation payloads between live connections.
// It keeps no state and does not check that callId names a live session.
type Relay struct {
	presence Presence
	log      *slog.Logger
}

func NewRelay(p Presence, l *slog.Logger) *Relay {
	return &Relay{presence: p, log: logger.OrDefault(l).With("component", "relay")}
}

// Offer forwards an SDP offer from senderID to the receiver.
func (r *Relay) Offer(ctx context.Context, senderID string, req OfferRequest) bool {
	return r.forward(ctx, "offer", req.CallID, req.ReceiverID, EventOffer, OfferPayload{
		CallID:   req.CallID,
		Offer:    req.Offer,
		CallerID: senderID,
	})
}

// Answer forwards an SDP answer from senderID back to the caller.
func (r *Relay) Answer(ctx context.Context, senderID string, req AnswerRequest) bool {
	return r.forward(ctx, "answer", req.CallID, req.CallerID, EventAnswer, AnswerPayload{
		CallID:     req.CallID,
		Answer:     req.Answer,
		ReceiverID: senderID,
	})
}

// ICE forwards a trickled ICE candidate to the target user.
func (r *Relay) ICE(ctx context.Context, senderID string, req ICERequest) bool {
	return r.forward(ctx, "ice", req.CallID, req.TargetUserID, EventICE, ICEPayload{
		CallID:     req.CallID,
		Candidate:  req.Candidate,
		FromUserID: senderID,
	})
}

func (r *Relay) forward(ctx context.Context, kind, callID, targetID, event string, payload any) bool {
	conn, ok := r.presence.Get(targetID)
	if !ok {
		metrics.SignalingRelayed.WithLabelValues(kind, "dropped").Inc()
		logger.FromOr(ctx, r.log).Debug("signaling target offline, dropped", "kind", kind, "call_id", callID, "target_id", targetID)
		return false
	}
	if err := conn.Send(event, payload); err != nil {
		metrics.SignalingRelayed.WithLabelValues(kind, "dropped").Inc()
		logger.FromOr(ctx, r.log).Warn("signaling send failed", "kind", kind, "call_id", callID, "target_id", targetID, "err", err)
		return false
	}
	metrics.SignalingRelayed.WithLabelValues(kind, "forwarded").Inc()
	return true
}
