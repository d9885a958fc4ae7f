package identity

import (
	"context"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	goerrors "github.com/goliatone/go-errors"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
)

type RegisterAccountMessage struct {
	FirstName  string `json:"first_name"`
	LastName   string `json:"last_name"`
	Username   string `json:"username"`
	Email      string `json:"email"`
	Phone      string `json:"phone"`
	Role       string `json:"role"`
	Password   string `json:"password"`
	OnResponse func(account *Account)
}

func (e RegisterAccountMessage) Type() string { return "account.register" }

// Validate runs validation rules on the message.
func (e RegisterAccountMessage) Validate() error {
	return validation.ValidateStruct(&e,
		validation.Field(&e.Email, validation.Required, validation.Length(6, 100), is.Email),
		validation.Field(&e.FirstName, validation.Length(0, 200)),
		validation.Field(&e.LastName, validation.Length(0, 200)),
		validation.Field(&e.Password, validation.Required, validation.Length(10, 100)),
	)
}

// RegisterAccountHandler creates a pending account with its role and an
// activation artifact; registered handlers deliver the activation
// notification once the transaction commits.
type RegisterAccountHandler struct {
	repo     RepositoryManager
	codes    *CodeIssuer
	handlers []EventHandler
	logger   Logger
}

// NewRegisterAccountHandler wires the handler.
func NewRegisterAccountHandler(repo RepositoryManager, cfg Config, handlers ...EventHandler) *RegisterAccountHandler {
	return &RegisterAccountHandler{
		repo:     repo,
		codes:    NewCodeIssuer(cfg),
		handlers: handlers,
		logger:   defLogger{},
	}
}

// WithLogger overrides the fallback logger.
func (h *RegisterAccountHandler) WithLogger(logger Logger) *RegisterAccountHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *RegisterAccountHandler) Execute(ctx context.Context, event RegisterAccountMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during account registration",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *RegisterAccountHandler) execute(ctx context.Context, event RegisterAccountMessage) error {
	if err := event.Validate(); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryBadInput, "invalid registration payload")
	}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	hash, err := HashPassword(event.Password)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to hash password")
	}

	phone := ""
	if event.Phone != "" {
		if phone, err = NormalizePhoneNumber(event.Phone); err != nil {
			return err
		}
	}

	token, digest, err := h.codes.GenerateLinkToken()
	if err != nil {
		return err
	}

	account := &Account{
		FirstName:    event.FirstName,
		LastName:     event.LastName,
		Username:     accountUsername(event.Username, event.Email),
		Email:        event.Email,
		Phone:        phone,
		PasswordHash: hash,
		Status:       AccountStatusPending,
	}
	account.SetPendingCode(digest, PurposeActivation, MFAChannelEmail, time.Now())
	account.IssuedCode = token
	account.Activity = ActivityCreated

	roleName := event.Role
	if roleName == "" {
		roleName = RoleNameUser
	}

	outbox := NewOutbox(h.handlers...).WithLogger(h.logger)
	uow := NewUnitOfWork(h.repo, outbox)

	err = uow.Commit(ctx, func(ctx context.Context, tx bun.Tx) error {
		role, err := h.repo.Roles().GetByNameTx(ctx, tx, roleName)
		if err != nil {
			if repository.IsRecordNotFound(err) {
				return goerrors.New("unknown role", goerrors.CategoryBadInput).
					WithMetadata(map[string]any{"role": roleName})
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to resolve role")
		}

		if account, err = h.repo.Accounts().CreateTx(ctx, tx, account); err != nil {
			var richErr *goerrors.Error
			if goerrors.As(err, &richErr) {
				return richErr
			}
			return goerrors.Wrap(err, goerrors.CategoryConflict, "could not create account")
		}

		if err := h.repo.Accounts().AssignRoleTx(ctx, tx, account.ID, role.ID); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to assign role")
		}
		account.Roles = append(account.Roles, role)

		uow.RegisterCreated(account)
		return nil
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "account registration transaction failed")
	}

	if event.OnResponse != nil {
		event.OnResponse(account)
	}

	return nil
}

func accountUsername(username, email string) string {
	if username != "" {
		return username
	}

	if strings.Contains(email, "@") {
		username = strings.Split(email, "@")[0]
	}

	return username
}
