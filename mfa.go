package identity

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// MFAManager owns channel enrollment: enabling and disabling the second
// factor, phone number verification, and listing the channels an account
// can receive codes on. Every mutation runs in its own unit of work so
// the matching notification goes out only after the write commits.
type MFAManager struct {
	repo     RepositoryManager
	codes    *CodeIssuer
	handlers []EventHandler
	logger   Logger
}

// NewMFAManager wires the manager from its collaborators.
func NewMFAManager(repo RepositoryManager, cfg Config) *MFAManager {
	return &MFAManager{
		repo:   repo,
		codes:  NewCodeIssuer(cfg),
		logger: defLogger{},
	}
}

// WithLogger overrides the fallback logger.
func (m *MFAManager) WithLogger(logger Logger) *MFAManager {
	if logger != nil {
		m.logger = logger
	}
	return m
}

// WithEventHandlers registers handlers for the domain events each
// operation produces.
func (m *MFAManager) WithEventHandlers(handlers ...EventHandler) *MFAManager {
	m.handlers = append(m.handlers, handlers...)
	return m
}

// WithCodeIssuer overrides the code issuer (useful for tests).
func (m *MFAManager) WithCodeIssuer(codes *CodeIssuer) *MFAManager {
	if codes != nil {
		m.codes = codes
	}
	return m
}

// EnableMFA turns on the second factor with the given default channel.
// The channel's contact method must be confirmed first.
func (m *MFAManager) EnableMFA(ctx context.Context, accountID uuid.UUID, defaultChannel MFAChannel) error {
	account, err := m.getAccount(ctx, accountID)
	if err != nil {
		return err
	}

	if err := channelEligible(account, defaultChannel); err != nil {
		return err
	}

	uow := m.newUnitOfWork()
	return uow.Commit(ctx, func(ctx context.Context, tx bun.Tx) error {
		account.TwoFactorEnabled = true
		account.DefaultMFAChannel = defaultChannel
		account.Activity = ActivityMFAEnabled
		account.Touch(account.Email)

		if err := m.repo.Accounts().SetMFATx(ctx, tx, account); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to enable mfa")
		}

		uow.RegisterUpdated(account)
		return nil
	})
}

// DisableMFA turns the second factor off.
func (m *MFAManager) DisableMFA(ctx context.Context, accountID uuid.UUID) error {
	account, err := m.getAccount(ctx, accountID)
	if err != nil {
		return err
	}

	uow := m.newUnitOfWork()
	return uow.Commit(ctx, func(ctx context.Context, tx bun.Tx) error {
		account.TwoFactorEnabled = false
		account.Activity = ActivityMFADisabled
		account.Touch(account.Email)

		if err := m.repo.Accounts().SetMFATx(ctx, tx, account); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to disable mfa")
		}

		uow.RegisterUpdated(account)
		return nil
	})
}

// ListChannels returns the channels whose contact method is confirmed.
func (m *MFAManager) ListChannels(ctx context.Context, accountID uuid.UUID) ([]MFAChannel, error) {
	account, err := m.getAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}

	channels := make([]MFAChannel, 0, 2)
	if account.EmailConfirmed {
		channels = append(channels, MFAChannelEmail)
	}
	if account.PhoneConfirmed {
		channels = append(channels, MFAChannelPhone)
	}
	return channels, nil
}

// RequestPhoneVerification stores the normalized phone number unconfirmed
// and issues a one-time code to prove possession. The number must not be
// in use by another account.
func (m *MFAManager) RequestPhoneVerification(ctx context.Context, accountID uuid.UUID, phone string) error {
	account, err := m.getAccount(ctx, accountID)
	if err != nil {
		return err
	}

	normalized, err := NormalizePhoneNumber(phone)
	if err != nil {
		return err
	}

	code, digest, err := m.codes.Generate()
	if err != nil {
		return err
	}

	uow := m.newUnitOfWork()
	return uow.Commit(ctx, func(ctx context.Context, tx bun.Tx) error {
		taken, err := m.repo.Accounts().PhoneInUseTx(ctx, tx, normalized, account.ID)
		if err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "phone uniqueness check failed")
		}
		if taken {
			return NewDuplicateError("phone_number", normalized)
		}

		account.Phone = normalized
		account.PhoneConfirmed = false
		account.SetPendingCode(digest, PurposePhoneChange, MFAChannelPhone, time.Now())
		account.IssuedCode = code
		account.Activity = ActivityPhoneChangeRequested
		account.Touch(account.Email)

		if err := m.repo.Accounts().SavePhoneChangeTx(ctx, tx, account); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to store phone number")
		}

		uow.RegisterUpdated(account)
		return nil
	})
}

// VerifyPhoneNumber consumes the phone-change code and marks the number
// confirmed. Mismatched numbers and codes fail identically.
func (m *MFAManager) VerifyPhoneNumber(ctx context.Context, accountID uuid.UUID, phone, code string) error {
	account, err := m.getAccount(ctx, accountID)
	if err != nil {
		return err
	}

	normalized, err := NormalizePhoneNumber(phone)
	if err != nil {
		return err
	}

	if account.Phone != normalized || account.PendingCodePurpose != PurposePhoneChange {
		return ErrInvalidToken
	}

	if err := m.codes.Verify(code, account.PendingCodeDigest, account.PendingCodeIssuedAt); err != nil {
		return err
	}

	uow := m.newUnitOfWork()
	return uow.Commit(ctx, func(ctx context.Context, tx bun.Tx) error {
		account.PhoneConfirmed = true
		account.Activity = ActivityPhoneVerified
		account.Touch(account.Email)

		if err := m.repo.Accounts().ConfirmPhoneTx(ctx, tx, account); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to confirm phone number")
		}
		if err := m.repo.Accounts().ClearPendingCodeTx(ctx, tx, account); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to consume one-time code")
		}

		uow.RegisterUpdated(account)
		return nil
	})
}

// RemovePhoneNumber detaches the given number from the account. When the
// phone was the default MFA channel the second factor falls back to email.
func (m *MFAManager) RemovePhoneNumber(ctx context.Context, accountID uuid.UUID, phone string) error {
	account, err := m.getAccount(ctx, accountID)
	if err != nil {
		return err
	}

	normalized, err := NormalizePhoneNumber(phone)
	if err != nil {
		return err
	}

	if account.Phone != normalized {
		return ErrAccountNotFound
	}

	uow := m.newUnitOfWork()
	return uow.Commit(ctx, func(ctx context.Context, tx bun.Tx) error {
		account.Phone = ""
		account.PhoneConfirmed = false
		if account.DefaultMFAChannel == MFAChannelPhone {
			account.DefaultMFAChannel = MFAChannelEmail
		}
		account.Activity = ActivityPhoneRemoved
		account.Touch(account.Email)

		if err := m.repo.Accounts().RemovePhoneTx(ctx, tx, account); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to remove phone number")
		}

		uow.RegisterUpdated(account)
		return nil
	})
}

func (m *MFAManager) getAccount(ctx context.Context, accountID uuid.UUID) (*Account, error) {
	account, err := m.repo.Accounts().GetByIDWithRoles(ctx, accountID)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, ErrAccountNotFound
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "account lookup failed")
	}
	return account, nil
}

func (m *MFAManager) newUnitOfWork() *UnitOfWork {
	outbox := NewOutbox(m.handlers...).WithLogger(m.logger)
	return NewUnitOfWork(m.repo, outbox)
}
