// Package realtimetest provides an in-memory connection for tests.
package realtimetest

import (
	"encoding/json"
	"sync"

	"github.com/ZUXXSU/chathubserver/internal/identity"
	"github.com/google/uuid"
)

// Frame is a decoded outbound frame.
type Frame struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

// Conn records every frame it is sent.
type Conn struct {
	id       string
	identity identity.ID

	mu     sync.Mutex
	frames []Frame
	full   bool
	closed bool
}

func NewConn(id identity.ID) *Conn {
	return &Conn{id: uuid.NewString(), identity: id}
}

func (c *Conn) ID() string            { return c.id }
func (c *Conn) Identity() identity.ID { return c.identity }

func (c *Conn) Send(frame []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.full || c.closed {
		return false
	}
	var f Frame
	if err := json.Unmarshal(frame, &f); err != nil {
		return false
	}
	c.frames = append(c.frames, f)
	return true
}

func (c *Conn) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}

// SetFull makes every later Send report a dropped frame.
func (c *Conn) SetFull(full bool) {
	c.mu.Lock()
	c.full = full
	c.mu.Unlock()
}

func (c *Conn) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Conn) Frames() []Frame {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Frame(nil), c.frames...)
}

// Events lists received event names in order.
func (c *Conn) Events() []string {
	frames := c.Frames()
	out := make([]string, len(frames))
	for i, f := range frames {
		out[i] = f.Event
	}
	return out
}

// Last returns the most recent frame with the given event.
func (c *Conn) Last(event string) (Frame, bool) {
	frames := c.Frames()
	for i := len(frames) - 1; i >= 0; i-- {
		if frames[i].Event == event {
			return frames[i], true
		}
	}
	return Frame{}, false
}
