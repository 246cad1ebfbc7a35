package realtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"

	"github.com/jonhson0816/nelly-api/internal/calls"
	"github.com/jonhson0816/nelly-api/internal/metrics"
	"github.com/jonhson0816/nelly-api/internal/presence"
	"github.com/jonhson0816/nelly-api/pkg/logger"
)

// Inbound presence announcement.
const EventOnline = "presence.online"

// EventError reports a frame the server could not act on back to its sender.
const EventError = "error"

var (
	ErrUnknownEvent     = errors.New("realtime: unknown event")
	ErrIdentityMismatch = errors.New("realtime: payload identity does not match connection")
)

type OnlineRequest struct {
	UserID string `json:"userId" validate:"required,max=128"`
}

type ErrorPayload struct {
	Event   string `json:"event,omitempty"`
	Message string `json:"message"`
}

// Dispatcher routes decoded frames to presence, the call controller and the
// signaling relay on behalf of one authenticated user.
type Dispatcher struct {
	presence *presence.Registry
	calls    *calls.Controller
	relay    *calls.Relay
	validate *validator.Validate
	log      *slog.Logger
}

func NewDispatcher(p *presence.Registry, c *calls.Controller, r *calls.Relay, l *slog.Logger) *Dispatcher {
	return &Dispatcher{
		presence: p,
		calls:    c,
		relay:    r,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		log:      logger.OrDefault(l).With("component", "dispatch"),
	}
}

// HandleMessage decodes and dispatches one raw frame. It never panics.
func (d *Dispatcher) HandleMessage(ctx context.Context, conn presence.Conn, userID string, raw []byte) {
	f, err := Decode(raw)
	if err != nil {
		metrics.WSInvalidFrames.WithLabelValues("undecodable").Inc()
		d.reject(conn, "", err)
		return
	}
	d.Dispatch(ctx, conn, userID, f)
}

// Dispatch runs the handler for f. A failing or panicking handler is logged
// and reported to the sender; it never takes down the connection.
func (d *Dispatcher) Dispatch(ctx context.Context, conn presence.Conn, userID string, f Frame) {
	log := logger.FromOr(ctx, d.log)
	defer func() {
		if r := recover(); r != nil {
			log.Error("event handler panic", "event", f.Event, "panic", fmt.Sprint(r), "stack", string(debug.Stack()))
			d.reject(conn, f.Event, errors.New("internal error"))
		}
	}()

	if err := d.route(ctx, conn, userID, f); err != nil {
		label := f.Event
		if errors.Is(err, ErrUnknownEvent) {
			label = "unknown"
		}
		metrics.WSInvalidFrames.WithLabelValues(label).Inc()
		log.Debug("frame rejected", "event", f.Event, "err", err)
		d.reject(conn, f.Event, err)
	}
}

func (d *Dispatcher) route(ctx context.Context, conn presence.Conn, userID string, f Frame) error {
	switch f.Event {
	case EventOnline:
		var req OnlineRequest
		if err := d.bind(f, &req); err != nil {
			return err
		}
		if req.UserID != userID {
			return ErrIdentityMismatch
		}
		d.presence.SetOnline(userID, conn)

	case calls.EventInitiate:
		var req calls.InitiateRequest
		if err := d.bind(f, &req); err != nil {
			return err
		}
		if req.CallerID != userID {
			return ErrIdentityMismatch
		}
		d.calls.Initiate(ctx, conn, req)

	case calls.EventAccept:
		var req calls.AcceptRequest
		if err := d.bind(f, &req); err != nil {
			return err
		}
		d.calls.Accept(ctx, conn, userID, req)

	case calls.EventDecline:
		var req calls.DeclineRequest
		if err := d.bind(f, &req); err != nil {
			return err
		}
		d.calls.Decline(ctx, userID, req)

	case calls.EventEnd:
		var req calls.EndRequest
		if err := d.bind(f, &req); err != nil {
			return err
		}
		d.calls.End(ctx, userID, req)

	case calls.EventOffer:
		var req calls.OfferRequest
		if err := d.bind(f, &req); err != nil {
			return err
		}
		d.relay.Offer(ctx, userID, req)

	case calls.EventAnswer:
		var req calls.AnswerRequest
		if err := d.bind(f, &req); err != nil {
			return err
		}
		d.relay.Answer(ctx, userID, req)

	case calls.EventICE:
		var req calls.ICERequest
		if err := d.bind(f, &req); err != nil {
			return err
		}
		d.relay.ICE(ctx, userID, req)

	default:
		return fmt.Errorf("%w: %q", ErrUnknownEvent, f.Event)
	}
	return nil
}

func (d *Dispatcher) bind(f Frame, dst any) error {
	if len(f.Data) == 0 {
		return fmt.Errorf("%s: missing data", f.Event)
	}
	if err := json.Unmarshal(f.Data, dst); err != nil {
		return fmt.Errorf("%s: invalid payload: %w", f.Event, err)
	}
	if err := d.validate.Struct(dst); err != nil {
		return fmt.Errorf("%s: %w", f.Event, err)
	}
	return nil
}

func (d *Dispatcher) reject(conn presence.Conn, event string, err error) {
	if sendErr := conn.Send(EventError, ErrorPayload{Event: event, Message: err.Error()}); sendErr != nil {
		d.log.Debug("error frame not delivered", "conn_id", conn.ID(), "err", sendErr)
	}
}
