package calls

import (
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/jonhson0816/nelly-api/internal/callhistory"
	"github.com/jonhson0816/nelly-api/internal/presence"
	"github.com/jonhson0816/nelly-api/internal/presence/presencetest"
	"github.com/jonhson0816/nelly-api/pkg/logger"
)

// fakeClock is a manual clock and Scheduler. Timers only fire from Advance.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

type fakeTimer struct {
	clock   *fakeClock
	at      time.Time
	f       func()
	stopped bool
	fired   bool
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Schedule(d time.Duration, f func()) Stopper {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{clock: c, at: c.now.Add(d), f: f}
	c.timers = append(c.timers, t)
	return t
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	active := !t.stopped && !t.fired
	t.stopped = true
	return active
}

// Advance moves time forward and runs every due, unstopped timer.
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	var due []*fakeTimer
	for _, t := range c.timers {
		if !t.stopped && !t.fired && !t.at.After(c.now) {
			t.fired = true
			due = append(due, t)
		}
	}
	c.mu.Unlock()

	sort.SliceStable(due, func(i, j int) bool { return due[i].at.Before(due[j].at) })
	for _, t := range due {
		t.f()
	}
}

type harness struct {
	t     *testing.T
	clock *fakeClock
	reg   *presence.Registry
	repo  *callhistory.MemoryRepo
	ctrl  *Controller
	relay *Relay

	mu          sync.Mutex
	resolutions []Resolution
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()
	h := &harness{t: t, clock: newFakeClock(), repo: callhistory.NewMemoryRepo()}
	h.reg = presence.NewRegistry(&presencetest.Broadcaster{}, presence.WithLogger(logger.Discard()))
	svc := callhistory.NewService(h.repo,
		callhistory.WithClock(h.clock.Now),
		callhistory.WithRetry(1, 0),
		callhistory.WithLogger(logger.Discard()),
	)
	base := []Option{
		WithClock(h.clock.Now),
		WithScheduler(h.clock.Schedule),
		WithLogger(logger.Discard()),
	}
	h.ctrl = NewController(h.reg, svc, append(base, opts...)...)
	h.ctrl.OnResolved(func(r Resolution) {
		h.mu.Lock()
		h.resolutions = append(h.resolutions, r)
		h.mu.Unlock()
	})
	h.relay = NewRelay(h.reg, logger.Discard())
	return h
}

func (h *harness) online(userID, connID string) *presencetest.Conn {
	c := presencetest.NewConn(connID)
	h.reg.SetOnline(userID, c)
	return c
}

func (h *harness) Resolutions() []Resolution {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]Resolution(nil), h.resolutions...)
}

// startCall has u1 ring u2 and returns the generated call ID.
func (h *harness) startCall(caller *presencetest.Conn, callerID, receiverID string) string {
	h.t.Helper()
	h.ctrl.Initiate(ctx, caller, InitiateRequest{CallerID: callerID, ReceiverID: receiverID, CallerInfo: map[string]any{"name": "Caller"}})
	f, ok := caller.Last(EventInitiated)
	if !ok {
		h.t.Fatalf("expected %s to caller, got %+v", EventInitiated, caller.Frames())
	}
	return f.Payload.(InitiatedPayload).CallID
}

func intPtr(n int) *int { return &n }
