package identity

import (
	"context"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	goerrors "github.com/goliatone/go-errors"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
)

type FinalizePasswordResetMessage struct {
	Email    string `json:"email"`
	Token    string `json:"token"`
	Password string `json:"password"`
}

func (e FinalizePasswordResetMessage) Type() string { return "account.password_reset_finalize" }

// Validate runs validation rules on the message.
func (e FinalizePasswordResetMessage) Validate() error {
	return validation.ValidateStruct(&e,
		validation.Field(&e.Email, validation.Required, is.Email),
		validation.Field(&e.Token, validation.Required),
		validation.Field(&e.Password, validation.Required, validation.Length(10, 100)),
	)
}

// FinalizePasswordResetHandler consumes the reset artifact and replaces
// the password. Resetting also clears the lockout counters so a locked
// account recovers through this flow.
type FinalizePasswordResetHandler struct {
	repo     RepositoryManager
	codes    *CodeIssuer
	machine  AccountStateMachine
	handlers []EventHandler
	logger   Logger
}

// NewFinalizePasswordResetHandler wires the handler.
func NewFinalizePasswordResetHandler(repo RepositoryManager, cfg Config, handlers ...EventHandler) *FinalizePasswordResetHandler {
	return &FinalizePasswordResetHandler{
		repo:     repo,
		codes:    NewCodeIssuer(cfg),
		machine:  NewAccountStateMachine(repo.Accounts()),
		handlers: handlers,
		logger:   defLogger{},
	}
}

// WithLogger overrides the fallback logger.
func (h *FinalizePasswordResetHandler) WithLogger(logger Logger) *FinalizePasswordResetHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

// WithStateMachine overrides the lifecycle machine (useful for tests).
func (h *FinalizePasswordResetHandler) WithStateMachine(machine AccountStateMachine) *FinalizePasswordResetHandler {
	if machine != nil {
		h.machine = machine
	}
	return h
}

func (h *FinalizePasswordResetHandler) Execute(ctx context.Context, event FinalizePasswordResetMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during password reset finalization",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *FinalizePasswordResetHandler) execute(ctx context.Context, event FinalizePasswordResetMessage) error {
	if err := event.Validate(); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryBadInput, "invalid password reset payload")
	}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	account, err := h.repo.Accounts().GetByEmail(ctx, event.Email)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return ErrInvalidToken
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to retrieve account for password reset")
	}

	if account.PendingCodePurpose != PurposePasswordReset {
		return ErrInvalidToken
	}

	if err := h.codes.Verify(event.Token, account.PendingCodeDigest, account.PendingCodeIssuedAt); err != nil {
		return err
	}

	hash, err := HashPassword(event.Password)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to hash password")
	}

	outbox := NewOutbox(h.handlers...).WithLogger(h.logger)
	uow := NewUnitOfWork(h.repo, outbox)

	err = uow.Commit(ctx, func(ctx context.Context, tx bun.Tx) error {
		account.Activity = ActivityPasswordReset
		account.Touch(account.Email)

		if err := h.repo.Accounts().ResetPasswordTx(ctx, tx, account, hash); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to store new password")
		}
		if err := h.repo.Accounts().ClearPendingCodeTx(ctx, tx, account); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to consume reset token")
		}

		if account.Status == AccountStatusLocked {
			actor := ActorRef{ID: account.ID.String(), Type: "account"}
			if _, err := h.machine.Transition(ctx, tx, actor, account, AccountStatusActive,
				WithTransitionReason("password reset")); err != nil {
				return err
			}
		}

		uow.RegisterUpdated(account)
		return nil
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "password reset transaction failed")
	}

	return nil
}
