package identity

import (
	"context"
	"sync"
)

// Outbox queues domain events captured during a unit-of-work commit and
// delivers them to registered handlers after the commit succeeds.
//
// Delivery is at-most-once and best-effort: events lost between commit and
// dispatch (process crash) or dropped on handler failure are not replayed.
// Callers that need stronger guarantees must persist their own outbox rows
// with the triggering write and relay them separately.
type Outbox struct {
	mu       sync.Mutex
	queue    []DomainEvent
	handlers []EventHandler
	logger   Logger
}

// NewOutbox creates an empty outbox delivering to the given handlers.
func NewOutbox(handlers ...EventHandler) *Outbox {
	return &Outbox{
		handlers: handlers,
		logger:   defLogger{},
	}
}

// WithLogger overrides the logger used for dropped handler failures.
func (o *Outbox) WithLogger(logger Logger) *Outbox {
	if logger != nil {
		o.logger = logger
	}
	return o
}

// RegisterHandler appends a handler invoked for every dispatched event.
func (o *Outbox) RegisterHandler(h EventHandler) {
	if h == nil {
		return
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.handlers = append(o.handlers, h)
}

// QueueNotification appends an event, preserving insertion order.
func (o *Outbox) QueueNotification(event DomainEvent) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.queue = append(o.queue, event)
}

// ClearQueue drops all queued events. Called when the owning transaction
// fails so that writes that never happened produce no events.
func (o *Outbox) ClearQueue() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.queue = nil
}

// Len returns the number of queued events.
func (o *Outbox) Len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.queue)
}

// Dispatch drains the queue strictly FIFO, one event at a time. Every
// handler sees the event before the next event is popped. A handler error
// is logged and the event discarded; it is never redelivered. Dispatch
// stops early only when ctx is cancelled.
func (o *Outbox) Dispatch(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		event, ok := o.pop()
		if !ok {
			return nil
		}

		for _, handler := range o.snapshotHandlers() {
			if err := handler.Handle(ctx, event); err != nil {
				o.logger.Warn("event handler failed, dropping event", "kind", event.Kind, "error", err)
			}
		}
	}
}

func (o *Outbox) pop() (DomainEvent, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.queue) == 0 {
		return DomainEvent{}, false
	}
	event := o.queue[0]
	o.queue = o.queue[1:]
	return event, true
}

func (o *Outbox) snapshotHandlers() []EventHandler {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]EventHandler, len(o.handlers))
	copy(out, o.handlers)
	return out
}
