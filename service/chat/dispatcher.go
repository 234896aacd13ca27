package chat

import (
	"fmt"
)

// HandlerFunc processes one inbound frame. Handlers run on the session actor
// goroutine; they must not block.
type HandlerFunc func(f *Frame) error

// Dispatcher routes inbound frames to their handler by event name.
type Dispatcher struct {
	handlers map[string]HandlerFunc
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{handlers: make(map[string]HandlerFunc)}
}

func (d *Dispatcher) Register(event string, h HandlerFunc) {
	d.handlers[event] = h
}

func (d *Dispatcher) Dispatch(f *Frame) error {
	h, ok := d.handlers[f.Event]
	if !ok {
		return fmt.Errorf("no handler for event=%q", f.Event)
	}
	return h(f)
}
