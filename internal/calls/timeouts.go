package calls

import (
	"sync"
	"time"
)

// Stopper cancels a scheduled function. *time.Timer satisfies it.
type Stopper interface {
	Stop() bool
}

// Scheduler runs f once after d.
type Scheduler func(d time.Duration, f func()) Stopper

// AfterFunc is the production Scheduler.
func AfterFunc(d time.Duration, f func()) Stopper { return time.AfterFunc(d, f) }

type armedTimer struct {
	gen  uint64
	stop Stopper
}

// Timeouts keeps at most one pending deferred action per call ID.
//
// Each Arm gets a generation number. A fire only runs if its generation is
// still the armed one, so a timer whose Stop lost the race with delivery is
// discarded instead of firing after a Disarm or a re-Arm.
type Timeouts struct {
	mu       sync.Mutex
	schedule Scheduler
	timers   map[string]armedTimer
	gen      uint64
}

func NewTimeouts(s Scheduler) *Timeouts {
	if s == nil {
		s = AfterFunc
	}
	return &Timeouts{schedule: s, timers: make(map[string]armedTimer)}
}

// Arm schedules onFire for callID after d, replacing any pending timer.
func (t *Timeouts) Arm(callID string, d time.Duration, onFire func()) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if prev, ok := t.timers[callID]; ok {
		prev.stop.Stop()
	}
	t.gen++
	gen := t.gen
	stop := t.schedule(d, func() {
		if t.claim(callID, gen) {
			onFire()
		}
	})
	t.timers[callID] = armedTimer{gen: gen, stop: stop}
}

// Disarm cancels the pending timer for callID. Reports whether one was pending.
func (t *Timeouts) Disarm(callID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	a, ok := t.timers[callID]
	if !ok {
		return false
	}
	delete(t.timers, callID)
	a.stop.Stop()
	return true
}

func (t *Timeouts) Pending(callID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.timers[callID]
	return ok
}

func (t *Timeouts) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.timers)
}

func (t *Timeouts) claim(callID string, gen uint64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	a, ok := t.timers[callID]
	if !ok || a.gen != gen {
		return false
	}
	delete(t.timers, callID)
	return true
}
