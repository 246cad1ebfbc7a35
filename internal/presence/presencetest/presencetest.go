// Package presencetest provides recording connection handles for tests.
package presencetest

import (
	"errors"
	"sync"
)

// Frame is one event captured by a Conn or Broadcaster.
type Frame struct {
	Event   string
	Payload any
}

var ErrClosed = errors.New("presencetest: connection closed")

// Conn records every event sent to it.
type Conn struct {
	id string

	mu     sync.Mutex
	frames []Frame
	closed bool
}

func NewConn(id string) *Conn { return &Conn{id: id} }

func (c *Conn) ID() string { return c.id }

func (c *Conn) Send(event string, payload any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	c.frames = append(c.frames, Frame{Event: event, Payload: payload})
	return nil
}

// Close makes further sends fail, as a dropped transport would.
func (c *Conn) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}

func (c *Conn) Frames() []Frame {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Frame, len(c.frames))
	copy(out, c.frames)
	return out
}

// Events returns the frames named event, in order.
func (c *Conn) Events(event string) []Frame {
	var out []Frame
	for _, f := range c.Frames() {
		if f.Event == event {
			out = append(out, f)
		}
	}
	return out
}

// Last returns the most recent frame named event.
func (c *Conn) Last(event string) (Frame, bool) {
	evs := c.Events(event)
	if len(evs) == 0 {
		return Frame{}, false
	}
	return evs[len(evs)-1], true
}

// Broadcaster records broadcast events.
type Broadcaster struct {
	mu     sync.Mutex
	frames []Frame
}

func (b *Broadcaster) Broadcast(event string, payload any) {
	b.mu.Lock()
	b.frames = append(b.frames, Frame{Event: event, Payload: payload})
	b.mu.Unlock()
}

func (b *Broadcaster) Frames() []Frame {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Frame, len(b.frames))
	copy(out, b.frames)
	return out
}
