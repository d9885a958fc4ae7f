package identity

import (
	"context"
	"time"
)

// EventKind tags a domain event as a creation or an update.
type EventKind string

const (
	EventCreated EventKind = "created"
	EventUpdated EventKind = "updated"
)

// DomainEvent wraps an entity snapshot observed during a unit-of-work
// commit. Events live only in the owning outbox for one dispatch cycle;
// they are never persisted.
type DomainEvent struct {
	Kind       EventKind
	Entity     any
	OccurredAt time.Time
}

// Account returns the entity as an *Account when the event describes one.
func (e DomainEvent) Account() (*Account, bool) {
	acc, ok := e.Entity.(*Account)
	return acc, ok
}

// CreatesDomainEvent is implemented by entities whose creation is
// announced after the owning transaction commits.
type CreatesDomainEvent interface {
	CreationEvent() DomainEvent
}

// UpdatesDomainEvent is implemented by entities whose updates are
// announced after the owning transaction commits.
type UpdatesDomainEvent interface {
	UpdateEvent() DomainEvent
}

// EventHandler consumes dispatched domain events. Handler errors are
// logged and dropped; they never stop the dispatch of later events.
type EventHandler interface {
	Handle(ctx context.Context, event DomainEvent) error
}

// EventHandlerFunc adapts a function to the EventHandler interface.
type EventHandlerFunc func(ctx context.Context, event DomainEvent) error

// Handle implements EventHandler.
func (f EventHandlerFunc) Handle(ctx context.Context, event DomainEvent) error {
	if f == nil {
		return nil
	}
	return f(ctx, event)
}
