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

type ActivateAccountMessage struct {
	Email    string `json:"email"`
	Token    string `json:"token"`
	Password string `json:"password"`
}

func (e ActivateAccountMessage) Type() string { return "account.activate" }

// Validate runs validation rules on the message.
func (e ActivateAccountMessage) Validate() error {
	return validation.ValidateStruct(&e,
		validation.Field(&e.Email, validation.Required, is.Email),
		validation.Field(&e.Token, validation.Required),
		validation.Field(&e.Password, validation.Required, validation.Length(10, 100)),
	)
}

// ActivateAccountHandler finishes the invitation flow: it consumes the
// activation artifact, records the chosen password, confirms the email
// address, and moves the account from pending to active.
type ActivateAccountHandler struct {
	repo     RepositoryManager
	codes    *CodeIssuer
	machine  AccountStateMachine
	handlers []EventHandler
	logger   Logger
}

// NewActivateAccountHandler wires the handler.
func NewActivateAccountHandler(repo RepositoryManager, cfg Config, handlers ...EventHandler) *ActivateAccountHandler {
	return &ActivateAccountHandler{
		repo:     repo,
		codes:    NewCodeIssuer(cfg),
		machine:  NewAccountStateMachine(repo.Accounts()),
		handlers: handlers,
		logger:   defLogger{},
	}
}

// WithLogger overrides the fallback logger.
func (h *ActivateAccountHandler) WithLogger(logger Logger) *ActivateAccountHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

// WithStateMachine overrides the lifecycle machine (useful for tests).
func (h *ActivateAccountHandler) WithStateMachine(machine AccountStateMachine) *ActivateAccountHandler {
	if machine != nil {
		h.machine = machine
	}
	return h
}

func (h *ActivateAccountHandler) Execute(ctx context.Context, event ActivateAccountMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during account activation",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *ActivateAccountHandler) execute(ctx context.Context, event ActivateAccountMessage) error {
	if err := event.Validate(); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryBadInput, "invalid activation payload")
	}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	account, err := h.repo.Accounts().GetByEmail(ctx, event.Email)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return ErrInvalidToken
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to retrieve account for activation")
	}

	if account.PendingCodePurpose != PurposeActivation {
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
		account.PasswordHash = hash
		account.EmailConfirmed = true
		account.Activity = ActivityActivated
		account.Touch(account.Email)

		if _, err := h.repo.Accounts().UpdateAccountTx(ctx, tx, account); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to store activation changes")
		}
		if err := h.repo.Accounts().ClearPendingCodeTx(ctx, tx, account); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to consume activation token")
		}

		actor := ActorRef{ID: account.ID.String(), Type: "account"}
		if _, err := h.machine.Transition(ctx, tx, actor, account, AccountStatusActive,
			WithTransitionReason("activation completed")); err != nil {
			return err
		}

		uow.RegisterUpdated(account)
		return nil
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "account activation transaction failed")
	}

	return nil
}
