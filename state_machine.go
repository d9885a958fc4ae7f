package identity

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/uptrace/bun"
)

const (
	textCodeInvalidTransition = "INVALID_ACCOUNT_STATE_TRANSITION"
	textCodeTerminalState     = "TERMINAL_ACCOUNT_STATE"
)

// ErrInvalidTransition is returned when a requested status change is not allowed.
var ErrInvalidTransition = goerrors.New("invalid account state transition", goerrors.CategoryValidation).
	WithTextCode(textCodeInvalidTransition).
	WithCode(goerrors.CodeBadRequest)

// ErrTerminalState is returned when attempting to move away from a terminal status.
var ErrTerminalState = goerrors.New("account state is terminal", goerrors.CategoryConflict).
	WithTextCode(textCodeTerminalState).
	WithCode(goerrors.CodeConflict)

// AccountStateMachine validates and applies account lifecycle transitions.
type AccountStateMachine interface {
	Transition(ctx context.Context, tx bun.IDB, actor ActorRef, account *Account, target AccountStatus, opts ...TransitionOption) (*Account, error)
	CurrentStatus(account *Account) AccountStatus
}

// TransitionOption customizes a single transition.
type TransitionOption func(*transitionOptions)

// WithTransitionReason sets the human-readable reason for the transition.
func WithTransitionReason(reason string) TransitionOption {
	return func(opts *transitionOptions) {
		opts.reason = reason
	}
}

// WithForceTransition bypasses validation rules (use sparingly).
func WithForceTransition() TransitionOption {
	return func(opts *transitionOptions) {
		opts.force = true
	}
}

// StateMachineOption customizes state machine construction.
type StateMachineOption func(*accountStateMachine)

// WithStateMachineClock injects a custom clock (useful for tests).
func WithStateMachineClock(clock func() time.Time) StateMachineOption {
	return func(sm *accountStateMachine) {
		if clock != nil {
			sm.now = clock
		}
	}
}

// WithStateMachineAuditSink sets the AuditSink used to publish transitions.
func WithStateMachineAuditSink(sink AuditSink) StateMachineOption {
	return func(sm *accountStateMachine) {
		sm.auditSink = normalizeAuditSink(sink)
	}
}

// WithStateMachineLogger overrides the logger used for sink failures.
func WithStateMachineLogger(logger Logger) StateMachineOption {
	return func(sm *accountStateMachine) {
		if logger != nil {
			sm.logger = logger
		}
	}
}

// NewAccountStateMachine returns the default implementation backed by the
// accounts repository. Allowed transitions: pending activates or is
// retired; active accounts lock or are retired; locked accounts reactivate
// or are retired; disabled is terminal.
func NewAccountStateMachine(accounts Accounts, opts ...StateMachineOption) AccountStateMachine {
	sm := &accountStateMachine{
		accounts: accounts,
		transitions: map[AccountStatus]map[AccountStatus]struct{}{
			AccountStatusPending: {
				AccountStatusActive:   {},
				AccountStatusDisabled: {},
			},
			AccountStatusActive: {
				AccountStatusLocked:   {},
				AccountStatusDisabled: {},
			},
			AccountStatusLocked: {
				AccountStatusActive:   {},
				AccountStatusDisabled: {},
			},
		},
		now:       time.Now,
		auditSink: noopAuditSink{},
		logger:    defLogger{},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(sm)
		}
	}

	return sm
}

type accountStateMachine struct {
	accounts    Accounts
	transitions map[AccountStatus]map[AccountStatus]struct{}
	now         func() time.Time
	auditSink   AuditSink
	logger      Logger
}

type transitionOptions struct {
	reason string
	force  bool
}

func (sm *accountStateMachine) CurrentStatus(account *Account) AccountStatus {
	if account == nil {
		return ""
	}
	account.EnsureStatus()
	return account.Status
}

func (sm *accountStateMachine) Transition(ctx context.Context, tx bun.IDB, actor ActorRef, account *Account, target AccountStatus, opts ...TransitionOption) (*Account, error) {
	if account == nil {
		return nil, ErrInvalidTransition.WithMetadata(map[string]any{
			"target": target,
			"reason": "account is nil",
		})
	}

	account.EnsureStatus()
	from := account.Status

	if target == "" {
		return nil, ErrInvalidTransition.WithMetadata(map[string]any{
			"reason": "target status is empty",
		})
	}

	if from == target {
		return account, nil
	}

	options := &transitionOptions{}
	for _, opt := range opts {
		if opt != nil {
			opt(options)
		}
	}

	if from == AccountStatusDisabled && !options.force {
		return nil, ErrTerminalState.WithMetadata(map[string]any{
			"from": from,
			"to":   target,
		})
	}

	if !options.force && !sm.canTransition(from, target) {
		return nil, ErrInvalidTransition.WithMetadata(map[string]any{
			"from": from,
			"to":   target,
		})
	}

	updated, err := sm.accounts.UpdateStatusTx(ctx, tx, account.ID, target)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to persist status transition")
	}

	account.Status = target
	sm.recordTransition(ctx, actor, account, from, target, options.reason)

	if updated != nil {
		return updated, nil
	}
	return account, nil
}

func (sm *accountStateMachine) canTransition(from, to AccountStatus) bool {
	targets, ok := sm.transitions[from]
	if !ok {
		return false
	}
	_, ok = targets[to]
	return ok
}

func (sm *accountStateMachine) recordTransition(ctx context.Context, actor ActorRef, account *Account, from, to AccountStatus, reason string) {
	event := AuditEvent{
		EventType: AuditEventStatusTransition,
		Actor:     actor,
		AccountID: account.ID.String(),
		Metadata: map[string]any{
			"from": string(from),
			"to":   string(to),
		},
		OccurredAt: sm.now(),
	}
	if reason != "" {
		event.Metadata["reason"] = reason
	}

	if err := sm.auditSink.Record(ctx, event); err != nil {
		sm.logger.Warn("audit sink record error", "error", err)
	}
}

// statusAuthError maps a lifecycle state onto the sign-in failure it causes.
func statusAuthError(status AccountStatus) error {
	switch status {
	case AccountStatusPending:
		return ErrAccountNotConfirmed
	case AccountStatusLocked:
		return ErrAccountLocked
	case AccountStatusDisabled:
		return ErrAccountDisabled
	default:
		return nil
	}
}
