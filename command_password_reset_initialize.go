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

type InitializePasswordResetMessage struct {
	Email      string `json:"email"`
	OnResponse func(resp *InitializePasswordResetResponse)
}

func (e InitializePasswordResetMessage) Type() string { return "account.password_reset" }

// Validate runs validation rules on the message.
func (e InitializePasswordResetMessage) Validate() error {
	return validation.ValidateStruct(&e,
		validation.Field(&e.Email, validation.Required, is.Email),
	)
}

// InitializePasswordResetResponse reports the initialization outcome. The
// response is identical whether or not the email matched an account so
// callers cannot probe for registered addresses.
type InitializePasswordResetResponse struct {
	Success bool
}

// InitializePasswordResetHandler stores a reset artifact on the matching
// account; the notification with the reset link goes out post-commit.
// Unknown emails succeed silently.
type InitializePasswordResetHandler struct {
	repo     RepositoryManager
	codes    *CodeIssuer
	handlers []EventHandler
	logger   Logger
}

// NewInitializePasswordResetHandler wires the handler.
func NewInitializePasswordResetHandler(repo RepositoryManager, cfg Config, handlers ...EventHandler) *InitializePasswordResetHandler {
	return &InitializePasswordResetHandler{
		repo:     repo,
		codes:    NewCodeIssuer(cfg),
		handlers: handlers,
		logger:   defLogger{},
	}
}

// WithLogger overrides the fallback logger.
func (h *InitializePasswordResetHandler) WithLogger(logger Logger) *InitializePasswordResetHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *InitializePasswordResetHandler) Execute(ctx context.Context, event InitializePasswordResetMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during password reset initialization",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *InitializePasswordResetHandler) execute(ctx context.Context, event InitializePasswordResetMessage) error {
	if err := event.Validate(); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryBadInput, "invalid password reset payload")
	}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	resp := &InitializePasswordResetResponse{Success: true}

	account, err := h.repo.Accounts().GetByEmail(ctx, event.Email)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			// No account, no work. Respond as if there were one.
			if event.OnResponse != nil {
				event.OnResponse(resp)
			}
			return nil
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to retrieve account for password reset")
	}

	token, digest, err := h.codes.GenerateLinkToken()
	if err != nil {
		return err
	}

	outbox := NewOutbox(h.handlers...).WithLogger(h.logger)
	uow := NewUnitOfWork(h.repo, outbox)

	err = uow.Commit(ctx, func(ctx context.Context, tx bun.Tx) error {
		account.SetPendingCode(digest, PurposePasswordReset, MFAChannelEmail, time.Now())
		account.IssuedCode = token
		account.Activity = ActivityPasswordResetRequested
		account.Touch(account.Email)

		if err := h.repo.Accounts().SavePendingCodeTx(ctx, tx, account); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to store password reset artifact")
		}

		uow.RegisterUpdated(account)
		return nil
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to initialize password reset")
	}

	if event.OnResponse != nil {
		event.OnResponse(resp)
	}

	return nil
}
