package realtime

import (
	"errors"
	"fmt"

	"github.com/goccy/go-json"
)

var ErrMissingEvent = errors.New("realtime: frame has no event")

// Frame is one inbound message: {"event": "...", "data": {...}}.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type outbound struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// Encode renders an outbound frame.
func Encode(event string, payload any) ([]byte, error) {
	b, err := json.Marshal(outbound{Event: event, Data: payload})
	if err != nil {
		return nil, fmt.Errorf("realtime: encode %s: %w", event, err)
	}
	return b, nil
}

// Decode parses an inbound frame.
func Decode(b []byte) (Frame, error) {
	var f Frame
	if err := json.Unmarshal(b, &f); err != nil {
		return Frame{}, fmt.Errorf("realtime: decode frame: %w", err)
	}
	if f.Event == "" {
		return Frame{}, ErrMissingEvent
	}
	return f, nil
}
