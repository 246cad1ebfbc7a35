package realtime

import (
	"context"
	"testing"
	"time"

	"github.com/jonhson0816/nelly-api/internal/calls"
	"github.com/jonhson0816/nelly-api/internal/presence"
	"github.com/jonhson0816/nelly-api/internal/presence/presencetest"
	"github.com/jonhson0816/nelly-api/pkg/logger"
)

type dispatchFixture struct {
	reg  *presence.Registry
	ctrl *calls.Controller
	d    *Dispatcher
}

func newDispatchFixture() dispatchFixture {
	reg := presence.NewRegistry(&presencetest.Broadcaster{}, presence.WithLogger(logger.Discard()))
	st := calls.DefaultSettings()
	st.RingTimeout = time.Hour
	ctrl := calls.NewController(reg, nil, calls.WithSettings(st), calls.WithLogger(logger.Discard()))
	relay := calls.NewRelay(reg, logger.Discard())
	return dispatchFixture{reg: reg, ctrl: ctrl, d: NewDispatcher(reg, ctrl, relay, logger.Discard())}
}

func lastError(t *testing.T, c *presencetest.Conn) ErrorPayload {
	t.Helper()
	f, ok := c.Last(EventError)
	if !ok {
		t.Fatalf("expected error frame, got %+v", c.Frames())
	}
	return f.Payload.(ErrorPayload)
}

func TestDispatch_OnlineRegistersPresence(t *testing.T) {
	fx := newDispatchFixture()
	c := presencetest.NewConn("c1")

	fx.d.HandleMessage(context.Background(), c, "u1", []byte(`{"event":"presence.online","data":{"userId":"u1"}}`))

	if got, ok := fx.reg.Get("u1"); !ok || got.ID() != "c1" {
		t.Fatalf("expected u1 online on c1")
	}
}

func TestDispatch_RejectsForeignIdentity(t *testing.T) {
	fx := newDispatchFixture()
	c := presencetest.NewConn("c1")

	fx.d.HandleMessage(context.Background(), c, "u1", []byte(`{"event":"presence.online","data":{"userId":"u2"}}`))
	if fx.reg.IsOnline("u2") {
		t.Fatalf("connection must not claim another identity")
	}
	if p := lastError(t, c); p.Event != EventOnline {
		t.Fatalf("unexpected error payload: %+v", p)
	}

	fx.d.HandleMessage(context.Background(), c, "u1", []byte(`{"event":"call.initiate","data":{"callerId":"u2","receiverId":"u3"}}`))
	if p := lastError(t, c); p.Event != calls.EventInitiate {
		t.Fatalf("unexpected error payload: %+v", p)
	}
	if len(fx.ctrl.Sessions()) != 0 {
		t.Fatalf("expected no session")
	}
}

func TestDispatch_ValidationAndUnknownEvents(t *testing.T) {
	fx := newDispatchFixture()
	c := presencetest.NewConn("c1")

	cases := []string{
		`{"event":"call.accept","data":{}}`,
		`{"event":"call.end","data":{"callId":"x","duration":-3}}`,
		`{"event":"webrtc.offer","data":{"callId":"x","receiverId":"u2"}}`,
		`{"event":"call.accept"}`,
		`{"event":"nope","data":{}}`,
		`garbage`,
	}
	for _, raw := range cases {
		before := len(c.Events(EventError))
		fx.d.HandleMessage(context.Background(), c, "u1", []byte(raw))
		if len(c.Events(EventError)) != before+1 {
			t.Fatalf("expected error frame for %s", raw)
		}
	}
}

func TestDispatch_CallFlow(t *testing.T) {
	fx := newDispatchFixture()
	c1, c2 := presencetest.NewConn("c1"), presencetest.NewConn("c2")
	ctx := context.Background()

	fx.d.HandleMessage(ctx, c1, "u1", []byte(`{"event":"presence.online","data":{"userId":"u1"}}`))
	fx.d.HandleMessage(ctx, c2, "u2", []byte(`{"event":"presence.online","data":{"userId":"u2"}}`))
	fx.d.HandleMessage(ctx, c1, "u1", []byte(`{"event":"call.initiate","data":{"callerId":"u1","receiverId":"u2","callerInfo":{"name":"One"}}}`))

	f, ok := c1.Last(calls.EventInitiated)
	if !ok {
		t.Fatalf("expected call.initiated, got %+v", c1.Frames())
	}
	callID := f.Payload.(calls.InitiatedPayload).CallID

	fx.d.HandleMessage(ctx, c2, "u2", []byte(`{"event":"call.accept","data":{"callId":"`+callID+`"}}`))
	if _, ok := c1.Last(calls.EventAccepted); !ok {
		t.Fatalf("expected call.accepted for caller")
	}

	fx.d.HandleMessage(ctx, c2, "u2", []byte(`{"event":"webrtc.answer","data":{"callId":"`+callID+`","callerId":"u1","answer":{"sdp":"x"}}}`))
	af, ok := c1.Last(calls.EventAnswer)
	if !ok || af.Payload.(calls.AnswerPayload).ReceiverID != "u2" {
		t.Fatalf("expected relayed answer tagged with u2")
	}

	fx.d.HandleMessage(ctx, c1, "u1", []byte(`{"event":"call.end","data":{"callId":"`+callID+`","duration":12}}`))
	ef, ok := c2.Last(calls.EventEnded)
	if !ok || ef.Payload.(calls.EndedPayload).Duration != 12 {
		t.Fatalf("expected ended with duration 12, got %+v", c2.Frames())
	}
}

func TestDispatch_RecoversHandlerPanic(t *testing.T) {
	reg := presence.NewRegistry(nil, presence.WithLogger(logger.Discard()))
	d := NewDispatcher(reg, nil, nil, logger.Discard())
	c := presencetest.NewConn("c1")

	d.HandleMessage(context.Background(), c, "u1", []byte(`{"event":"webrtc.ice","data":{"callId":"x","targetUserId":"u2","candidate":{}}}`))

	if p := lastError(t, c); p.Message != "internal error" {
		t.Fatalf("expected internal error, got %+v", p)
	}
}
