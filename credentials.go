package identity

import (
	"context"
	"errors"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"golang.org/x/crypto/bcrypt"
)

// bcryptCost trades hash time for resistance; 14 keeps a single compare
// in the low hundreds of milliseconds on current hardware.
const bcryptCost = 14

// HashPassword generates a bcrypt hash for storage.
func HashPassword(password string) (string, error) {
	if password == "" {
		return "", goerrors.New("password must not be empty", goerrors.CategoryValidation).
			WithCode(goerrors.CodeBadRequest)
	}

	h, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	return string(h), err
}

// ComparePasswordAndHash validates the cleartext password against the
// stored hash.
func ComparePasswordAndHash(password, hash string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return ErrInvalidCredentials
		}
		return err
	}
	return nil
}

// PasswordVerifier is the default CredentialVerifier: bcrypt comparison
// plus attempt-window lockout bookkeeping persisted through the accounts
// repository.
type PasswordVerifier struct {
	accounts    Accounts
	maxAttempts int
	cooldown    time.Duration
	logger      Logger
	now         func() time.Time
}

var _ CredentialVerifier = (*PasswordVerifier)(nil)

// NewPasswordVerifier builds the verifier from configuration.
func NewPasswordVerifier(accounts Accounts, cfg Config) *PasswordVerifier {
	return &PasswordVerifier{
		accounts:    accounts,
		maxAttempts: cfg.GetMaxLoginAttempts(),
		cooldown:    cfg.GetCooldownPeriod(),
		logger:      defLogger{},
		now:         time.Now,
	}
}

// WithLogger overrides the fallback logger.
func (v *PasswordVerifier) WithLogger(logger Logger) *PasswordVerifier {
	if logger != nil {
		v.logger = logger
	}
	return v
}

// WithClock injects a clock for tests.
func (v *PasswordVerifier) WithClock(now func() time.Time) *PasswordVerifier {
	if now != nil {
		v.now = now
	}
	return v
}

// CheckPassword compares without touching the lockout counters.
func (v *PasswordVerifier) CheckPassword(_ context.Context, account *Account, password string) error {
	if account == nil {
		return ErrInvalidCredentials
	}
	return ComparePasswordAndHash(password, account.PasswordHash)
}

// SignIn runs the full credential check. The result encodes the outcome;
// the returned error is reserved for infrastructure failures.
func (v *PasswordVerifier) SignIn(ctx context.Context, account *Account, password string) (SignInResult, error) {
	if account == nil {
		return SignInResult{}, nil
	}

	account.EnsureStatus()
	switch account.Status {
	case AccountStatusPending, AccountStatusDisabled:
		return SignInResult{IsNotAllowed: true}, nil
	case AccountStatusLocked:
		return SignInResult{IsLockedOut: true}, nil
	}

	if account.LoginAttemptAt != nil && v.now().Sub(*account.LoginAttemptAt) > v.cooldown {
		// stale failures forgive; the next track starts a fresh window
		account.LoginAttempts = 0
	}

	if account.LoginAttempts >= v.maxAttempts {
		return SignInResult{IsLockedOut: true}, nil
	}

	if err := ComparePasswordAndHash(password, account.PasswordHash); err != nil {
		if !IsInvalidCredentials(err) {
			return SignInResult{}, goerrors.Wrap(err, goerrors.CategoryInternal, "password comparison failed")
		}
		if err := v.accounts.TrackAttemptedLogin(ctx, account); err != nil {
			return SignInResult{}, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to track login attempt")
		}
		return SignInResult{}, nil
	}

	if err := v.accounts.TrackSuccessfulLogin(ctx, account); err != nil {
		// Counter reset is bookkeeping; the sign-in itself stands.
		v.logger.Error("failed to track successful login", "account_id", account.ID, "error", err)
	}

	return SignInResult{
		Succeeded:         true,
		RequiresTwoFactor: account.TwoFactorEnabled,
	}, nil
}
