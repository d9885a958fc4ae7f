package identity

import (
	"context"
	"sync"

	goerrors "github.com/goliatone/go-errors"
	"github.com/uptrace/bun"
)

// UnitOfWork runs one atomic batch of entity mutations and owns the
// outbox for the events those mutations produce. Each instance is private
// to one operation; nothing is shared across concurrent units.
//
// Entities registered during the transaction are scanned immediately
// before the commit is attempted, in registration order, and queued as
// domain events. A failed commit clears the queue before the error
// propagates; a successful commit triggers dispatch.
type UnitOfWork struct {
	repo   RepositoryManager
	outbox *Outbox

	mu      sync.Mutex
	tracked []trackedEntity
}

type trackedEntity struct {
	created CreatesDomainEvent
	updated UpdatesDomainEvent
}

// NewUnitOfWork builds a unit of work around the repository manager. The
// outbox may be shared with the caller for handler registration but must
// not be shared with another concurrent unit.
func NewUnitOfWork(repo RepositoryManager, outbox *Outbox) *UnitOfWork {
	if outbox == nil {
		outbox = NewOutbox()
	}
	return &UnitOfWork{
		repo:   repo,
		outbox: outbox,
	}
}

// Outbox exposes the owned outbox, mainly for inspection in tests.
func (u *UnitOfWork) Outbox() *Outbox {
	return u.outbox
}

// RegisterCreated tracks an entity in the "added" state.
func (u *UnitOfWork) RegisterCreated(entity CreatesDomainEvent) {
	if entity == nil {
		return
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	u.tracked = append(u.tracked, trackedEntity{created: entity})
}

// RegisterUpdated tracks an entity in the "modified" state.
func (u *UnitOfWork) RegisterUpdated(entity UpdatesDomainEvent) {
	if entity == nil {
		return
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	u.tracked = append(u.tracked, trackedEntity{updated: entity})
}

// Commit runs fn inside a database transaction. When fn succeeds the
// tracked entities are queued onto the outbox before the commit is
// attempted; after the commit lands the queue is dispatched. Any failure
// (fn, commit, or cancellation) rolls the transaction back and clears the
// queue so no event describes a write that did not happen.
func (u *UnitOfWork) Commit(ctx context.Context, fn func(ctx context.Context, tx bun.Tx) error) error {
	err := u.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if err := fn(ctx, tx); err != nil {
			return err
		}
		u.queueTracked()
		return nil
	})

	u.reset()

	if err != nil {
		u.outbox.ClearQueue()
		var rich *goerrors.Error
		if goerrors.As(err, &rich) {
			return rich
		}
		return err
	}

	return u.outbox.Dispatch(ctx)
}

func (u *UnitOfWork) queueTracked() {
	u.mu.Lock()
	defer u.mu.Unlock()
	for _, t := range u.tracked {
		switch {
		case t.created != nil:
			u.outbox.QueueNotification(t.created.CreationEvent())
		case t.updated != nil:
			u.outbox.QueueNotification(t.updated.UpdateEvent())
		}
	}
}

func (u *UnitOfWork) reset() {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.tracked = nil
}
