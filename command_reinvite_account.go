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

type ReinviteAccountMessage struct {
	Email string `json:"email"`
}

func (e ReinviteAccountMessage) Type() string { return "account.reinvite" }

// Validate runs validation rules on the message.
func (e ReinviteAccountMessage) Validate() error {
	return validation.ValidateStruct(&e,
		validation.Field(&e.Email, validation.Required, is.Email),
	)
}

// ReinviteAccountHandler replaces the activation artifact of an account
// that never completed the flow and triggers a fresh invitation
// notification. Active accounts are left alone.
type ReinviteAccountHandler struct {
	repo     RepositoryManager
	codes    *CodeIssuer
	handlers []EventHandler
	logger   Logger
}

// NewReinviteAccountHandler wires the handler.
func NewReinviteAccountHandler(repo RepositoryManager, cfg Config, handlers ...EventHandler) *ReinviteAccountHandler {
	return &ReinviteAccountHandler{
		repo:     repo,
		codes:    NewCodeIssuer(cfg),
		handlers: handlers,
		logger:   defLogger{},
	}
}

// WithLogger overrides the fallback logger.
func (h *ReinviteAccountHandler) WithLogger(logger Logger) *ReinviteAccountHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *ReinviteAccountHandler) Execute(ctx context.Context, event ReinviteAccountMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during account reinvite",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *ReinviteAccountHandler) execute(ctx context.Context, event ReinviteAccountMessage) error {
	if err := event.Validate(); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryBadInput, "invalid reinvite payload")
	}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	account, err := h.repo.Accounts().GetByEmail(ctx, event.Email)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return ErrAccountNotFound
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to retrieve account for reinvite")
	}

	if account.Status != AccountStatusPending {
		return goerrors.New("account already activated", goerrors.CategoryConflict).
			WithCode(goerrors.CodeConflict)
	}

	token, digest, err := h.codes.GenerateLinkToken()
	if err != nil {
		return err
	}

	outbox := NewOutbox(h.handlers...).WithLogger(h.logger)
	uow := NewUnitOfWork(h.repo, outbox)

	err = uow.Commit(ctx, func(ctx context.Context, tx bun.Tx) error {
		account.SetPendingCode(digest, PurposeActivation, MFAChannelEmail, time.Now())
		account.IssuedCode = token
		account.Activity = ActivityReinviteRequested
		account.Touch(account.Email)

		if err := h.repo.Accounts().SavePendingCodeTx(ctx, tx, account); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to store activation artifact")
		}

		uow.RegisterUpdated(account)
		return nil
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "account reinvite transaction failed")
	}

	return nil
}
