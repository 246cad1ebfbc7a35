// Package calls implements the call lifecycle: session store, ring timeouts,
// the ringing → active → resolved state machine and WebRTC signaling relay.
package calls

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jonhson0816/nelly-api/internal/callhistory"
	"github.com/jonhson0816/nelly-api/internal/metrics"
	"github.com/jonhson0816/nelly-api/internal/presence"
	"github.com/jonhson0816/nelly-api/pkg/logger"
)

// Presence resolves a user to their live connection.
type Presence interface {
	Get(userID string) (presence.Conn, bool)
}

// HistoryRecorder persists the two history records of a resolved call.
type HistoryRecorder interface {
	RecordCall(ctx context.Context, o callhistory.Outcome) error
}

// Trigger names what terminated a call.
type Trigger string

const (
	TriggerEnd        Trigger = "end"
	TriggerTimeout    Trigger = "timeout"
	TriggerDecline    Trigger = "decline"
	TriggerDisconnect Trigger = "disconnect"
)

// Resolution is handed to OnResolved listeners after every termination.
type Resolution struct {
	CallID     string
	CallerID   string
	ReceiverID string
	Status     callhistory.Status
	Duration   int
	Trigger    Trigger
}

// Settings tunes ring timeout and history persistence.
type Settings struct {
	RingTimeout         time.Duration
	HistoryWriteTimeout time.Duration
	PersistDeclines     bool
	PersistOnDisconnect bool
}

// DefaultSettings rings for 30s and persists every termination path.
func DefaultSettings() Settings {
	return Settings{
		RingTimeout:         30 * time.Second,
		HistoryWriteTimeout: 5 * time.Second,
		PersistDeclines:     true,
		PersistOnDisconnect: true,
	}
}

// Option configures a Controller.
type Option func(*Controller)

// WithSettings replaces the defaults; zero durations fall back to them.
func WithSettings(s Settings) Option { return func(c *Controller) { c.settings = s } }

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option { return func(c *Controller) { c.clock = now } }

// WithScheduler swaps the timer backend, mainly for tests.
func WithScheduler(s Scheduler) Option { return func(c *Controller) { c.timeouts = NewTimeouts(s) } }

// WithLogger sets the controller logger.
func WithLogger(l *slog.Logger) Option { return func(c *Controller) { c.log = l } }

// Controller drives call sessions through their lifecycle.
//
// Every handler, including ring-timeout fires, runs as one turn under mu.
// Session and timer state is settled inside the turn; history writes and the
// notifications that follow them run after the turn, so a concurrent event for
// the same call already sees it resolved and takes the no-op path.
type Controller struct {
	mu sync.Mutex

	presence Presence
	history  HistoryRecorder
	store    *Store
	timeouts *Timeouts

	settings  Settings
	clock     func() time.Time
	log       *slog.Logger
	listeners []func(Resolution)
}

func NewController(p Presence, history HistoryRecorder, opts ...Option) *Controller {
	c := &Controller{
		presence: p,
		history:  history,
		store:    NewStore(),
		settings: DefaultSettings(),
		clock:    time.Now,
	}
	for _, o := range opts {
		o(c)
	}
	if c.timeouts == nil {
		c.timeouts = NewTimeouts(AfterFunc)
	}
	if c.settings.RingTimeout <= 0 {
		c.settings.RingTimeout = DefaultSettings().RingTimeout
	}
	if c.settings.HistoryWriteTimeout <= 0 {
		c.settings.HistoryWriteTimeout = DefaultSettings().HistoryWriteTimeout
	}
	c.log = logger.OrDefault(c.log).With("component", "calls")
	return c
}

// OnResolved registers fn to run after each call termination.
// Listeners run outside the controller turn and must not block.
func (c *Controller) OnResolved(fn func(Resolution)) {
	c.mu.Lock()
	c.listeners = append(c.listeners, fn)
	c.mu.Unlock()
}

// Sessions returns a snapshot of live sessions.
func (c *Controller) Sessions() []Session { return c.store.List() }

// Session returns the live session for callID.
func (c *Controller) Session(callID string) (Session, bool) { return c.store.Get(callID) }

// Initiate starts ringing req.ReceiverID on behalf of the caller on conn.
func (c *Controller) Initiate(ctx context.Context, conn presence.Conn, req InitiateRequest) {
	log := logger.FromOr(ctx, c.log)

	c.mu.Lock()
	defer c.mu.Unlock()

	recvConn, ok := c.presence.Get(req.ReceiverID)
	if !ok {
		metrics.CallsInitiated.WithLabelValues("offline").Inc()
		log.Debug("call target offline", "caller_id", req.CallerID, "receiver_id", req.ReceiverID)
		c.send(conn, EventError, ErrorPayload{Message: MsgUserOffline})
		return
	}

	now := c.clock()
	sess, err := c.store.Create(Session{
		CallID:       NewCallID(req.CallerID, req.ReceiverID, now),
		CallerID:     req.CallerID,
		ReceiverID:   req.ReceiverID,
		CallerConn:   conn,
		ReceiverConn: recvConn,
		Status:       StatusRinging,
		StartedAt:    now,
		CallerInfo:   req.CallerInfo,
	})
	if err != nil {
		metrics.CallsInitiated.WithLabelValues("duplicate").Inc()
		log.Warn("call create rejected", "caller_id", req.CallerID, "receiver_id", req.ReceiverID, "err", err)
		c.send(conn, EventError, ErrorPayload{Message: MsgCallInProgress})
		return
	}

	callID := sess.CallID
	c.timeouts.Arm(callID, c.settings.RingTimeout, func() { c.expire(callID) })
	metrics.CallsInitiated.WithLabelValues("ringing").Inc()
	metrics.ActiveCallSessions.Set(float64(c.store.Len()))
	log.Info("call ringing", "call_id", callID, "caller_id", sess.CallerID, "receiver_id", sess.ReceiverID)

	c.send(conn, EventInitiated, InitiatedPayload{CallID: callID, ReceiverID: sess.ReceiverID})
	c.send(recvConn, EventIncoming, IncomingPayload{CallID: callID, Caller: callerCard(sess)})
}

// Accept moves a ringing call to active. Only the receiver may accept.
func (c *Controller) Accept(ctx context.Context, conn presence.Conn, userID string, req AcceptRequest) {
	log := logger.FromOr(ctx, c.log)

	c.mu.Lock()
	defer c.mu.Unlock()

	sess, ok := c.store.Get(req.CallID)
	if !ok || sess.Status != StatusRinging {
		log.Debug("accept ignored", "call_id", req.CallID, "found", ok)
		return
	}
	if userID != sess.ReceiverID {
		log.Warn("accept from non-receiver ignored", "call_id", req.CallID, "user_id", userID)
		return
	}

	c.timeouts.Disarm(req.CallID)
	now := c.clock()
	sess, _ = c.store.Update(req.CallID, func(s *Session) {
		s.Status = StatusActive
		s.AcceptedAt = &now
		s.ReceiverConn = conn
	})
	log.Info("call accepted", "call_id", req.CallID)

	payload := AcceptedPayload{CallID: req.CallID, AcceptedAt: now}
	c.send(c.live(sess.CallerID, sess.CallerConn), EventAccepted, payload)
	c.send(conn, EventAccepted, payload)
}

// Decline rejects a ringing call. Only the receiver may decline.
func (c *Controller) Decline(ctx context.Context, userID string, req DeclineRequest) {
	log := logger.FromOr(ctx, c.log)

	c.mu.Lock()
	sess, ok := c.store.Get(req.CallID)
	if !ok || sess.Status != StatusRinging {
		c.mu.Unlock()
		log.Debug("decline ignored", "call_id", req.CallID, "found", ok)
		return
	}
	if userID != sess.ReceiverID {
		c.mu.Unlock()
		log.Warn("decline from non-receiver ignored", "call_id", req.CallID, "user_id", userID)
		return
	}
	c.teardown(sess.CallID)
	callerConn := c.live(sess.CallerID, sess.CallerConn)
	c.mu.Unlock()

	log.Info("call declined", "call_id", req.CallID)
	if c.settings.PersistDeclines {
		c.persist(ctx, outcome(sess, callhistory.StatusDeclined, 0, c.clock()))
	}

	reason := req.Reason
	if reason == "" {
		reason = ReasonDeclined
	}
	c.send(callerConn, EventDeclined, DeclinedPayload{CallID: req.CallID, Reason: reason})
	c.resolved(sess, callhistory.StatusDeclined, 0, TriggerDecline)
}

// End hangs up a ringing or active call on behalf of either participant.
func (c *Controller) End(ctx context.Context, userID string, req EndRequest) {
	log := logger.FromOr(ctx, c.log)

	c.mu.Lock()
	sess, ok := c.store.Get(req.CallID)
	if !ok {
		c.mu.Unlock()
		log.Debug("end ignored", "call_id", req.CallID)
		return
	}
	if !sess.Involves(userID) {
		c.mu.Unlock()
		log.Warn("end from non-participant ignored", "call_id", req.CallID, "user_id", userID)
		return
	}
	c.teardown(sess.CallID)
	now := c.clock()
	duration := finalDuration(sess, req.Duration, now)
	status := resolvedStatus(sess, duration)
	callerConn := c.live(sess.CallerID, sess.CallerConn)
	receiverConn := c.live(sess.ReceiverID, sess.ReceiverConn)
	c.mu.Unlock()

	log.Info("call ended", "call_id", sess.CallID, "ended_by", userID, "status", string(status), "duration", duration)
	c.persist(ctx, outcome(sess, status, duration, now))

	payload := EndedPayload{
		CallID:      sess.CallID,
		Duration:    duration,
		WasAccepted: sess.WasAccepted(),
		EndedBy:     userID,
	}
	c.send(callerConn, EventEnded, payload)
	c.send(receiverConn, EventEnded, payload)
	c.resolved(sess, status, duration, TriggerEnd)
}

// Disconnect tears down every session that holds conn, notifying only the
// surviving party.
func (c *Controller) Disconnect(ctx context.Context, conn presence.Conn) {
	log := logger.FromOr(ctx, c.log)

	type survivor struct {
		sess     Session
		conn     presence.Conn
		duration int
		status   callhistory.Status
	}

	c.mu.Lock()
	now := c.clock()
	var out []survivor
	for _, sess := range c.store.FindByConn(conn.ID()) {
		c.teardown(sess.CallID)
		duration := finalDuration(sess, nil, now)
		s := survivor{sess: sess, duration: duration, status: resolvedStatus(sess, duration)}
		if connMatches(sess.CallerConn, conn.ID()) {
			s.conn = c.live(sess.ReceiverID, sess.ReceiverConn)
		} else {
			s.conn = c.live(sess.CallerID, sess.CallerConn)
		}
		out = append(out, s)
	}
	c.mu.Unlock()

	for _, s := range out {
		log.Info("call torn down by disconnect", "call_id", s.sess.CallID, "conn_id", conn.ID(), "status", string(s.status))
		if c.settings.PersistOnDisconnect {
			c.persist(ctx, outcome(s.sess, s.status, s.duration, now))
		}
		if s.conn != nil && s.conn.ID() != conn.ID() {
			c.send(s.conn, EventEnded, EndedPayload{
				CallID:      s.sess.CallID,
				Duration:    s.duration,
				WasAccepted: s.sess.WasAccepted(),
				Reason:      ReasonUserDisconnect,
			})
		}
		c.resolved(s.sess, s.status, s.duration, TriggerDisconnect)
	}
}

// expire is the ring-timeout fire for callID.
func (c *Controller) expire(callID string) {
	c.mu.Lock()
	sess, ok := c.store.Get(callID)
	if !ok || sess.Status != StatusRinging {
		c.mu.Unlock()
		return
	}
	c.teardown(callID)
	callerConn := c.live(sess.CallerID, sess.CallerConn)
	receiverConn := c.live(sess.ReceiverID, sess.ReceiverConn)
	c.mu.Unlock()

	c.log.Info("call missed", "call_id", callID)
	c.persist(context.Background(), outcome(sess, callhistory.StatusMissed, 0, c.clock()))

	c.send(callerConn, EventMissed, MissedPayload{CallID: callID, Reason: ReasonNoAnswer, CallType: string(callhistory.DirectionOutgoing)})
	c.send(receiverConn, EventMissed, MissedPayload{CallID: callID, Reason: ReasonMissedCall, CallType: string(callhistory.DirectionIncoming)})
	c.resolved(sess, callhistory.StatusMissed, 0, TriggerTimeout)
}

// teardown disarms and removes callID. Caller holds mu.
func (c *Controller) teardown(callID string) {
	c.timeouts.Disarm(callID)
	c.store.Remove(callID)
	metrics.ActiveCallSessions.Set(float64(c.store.Len()))
}

// live prefers the user's current presence connection over the stored
// snapshot, so a participant who reconnected still gets notified.
func (c *Controller) live(userID string, stored presence.Conn) presence.Conn {
	if conn, ok := c.presence.Get(userID); ok {
		return conn
	}
	return stored
}

func (c *Controller) persist(ctx context.Context, o callhistory.Outcome) {
	if c.history == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.settings.HistoryWriteTimeout)
	defer cancel()
	if err := c.history.RecordCall(ctx, o); err != nil {
		metrics.CallHistoryWriteFailures.Inc()
		c.log.Error("call history write failed", "call_id", o.CallID, "status", string(o.Status), "err", err)
	}
}

func (c *Controller) resolved(sess Session, status callhistory.Status, duration int, trigger Trigger) {
	metrics.CallResolutions.WithLabelValues(string(status), string(trigger)).Inc()

	c.mu.Lock()
	listeners := append([]func(Resolution){}, c.listeners...)
	c.mu.Unlock()

	r := Resolution{
		CallID:     sess.CallID,
		CallerID:   sess.CallerID,
		ReceiverID: sess.ReceiverID,
		Status:     status,
		Duration:   duration,
		Trigger:    trigger,
	}
	for _, fn := range listeners {
		fn(r)
	}
}

func (c *Controller) send(conn presence.Conn, event string, payload any) {
	if conn == nil {
		return
	}
	if err := conn.Send(event, payload); err != nil {
		c.log.Debug("send failed", "conn_id", conn.ID(), "event", event, "err", err)
	}
}

// finalDuration prefers the client-reported length, else time since accept.
func finalDuration(s Session, reported *int, now time.Time) int {
	if reported != nil && *reported >= 0 {
		return *reported
	}
	if s.AcceptedAt == nil {
		return 0
	}
	d := int(now.Sub(*s.AcceptedAt) / time.Second)
	if d < 0 {
		return 0
	}
	return d
}

func resolvedStatus(s Session, duration int) callhistory.Status {
	if s.WasAccepted() && duration > 0 {
		return callhistory.StatusCompleted
	}
	return callhistory.StatusMissed
}

func outcome(s Session, status callhistory.Status, duration int, at time.Time) callhistory.Outcome {
	return callhistory.Outcome{
		CallID:          s.CallID,
		CallerID:        s.CallerID,
		ReceiverID:      s.ReceiverID,
		Status:          status,
		DurationSeconds: duration,
		CallType:        callhistory.CallTypeAudio,
		EndedAt:         at,
	}
}

func callerCard(s Session) map[string]any {
	card := make(map[string]any, len(s.CallerInfo)+1)
	for k, v := range s.CallerInfo {
		card[k] = v
	}
	card["id"] = s.CallerID
	return card
}
