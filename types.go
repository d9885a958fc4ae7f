package identity

import (
	"context"
	"fmt"
	"time"
)

// Logger is the minimal logging surface components accept. Callers plug in
// their own structured logger; defLogger is the printf fallback.
type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

// Config holds the immutable process configuration the core reads once at
// construction time.
type Config interface {
	GetSigningKey() string
	GetIssuer() string
	GetAudience() []string
	// GetTokenExpiration is the session token lifetime in minutes.
	GetTokenExpiration() int
	// GetMFATokenExpiration is the intermediate token lifetime in minutes.
	GetMFATokenExpiration() int
	GetOneTimeCodeLength() int
	GetOneTimeCodeTTL() time.Duration
	GetMaxLoginAttempts() int
	GetCooldownPeriod() time.Duration
}

// SignInResult reports the outcome of a credential check without collapsing
// it into a single error; the authenticator maps it onto the public taxonomy.
type SignInResult struct {
	Succeeded         bool
	RequiresTwoFactor bool
	IsLockedOut       bool
	IsNotAllowed      bool
}

// CredentialVerifier wraps password verification and lockout bookkeeping.
type CredentialVerifier interface {
	// CheckPassword compares password against the account hash without
	// touching lockout counters.
	CheckPassword(ctx context.Context, account *Account, password string) error
	// SignIn runs the full credential check: lifecycle gate, lockout
	// window, password compare, attempt tracking.
	SignIn(ctx context.Context, account *Account, password string) (SignInResult, error)
}

// Notifier delivers a rendered message for a domain event. Content and
// transport are the caller's concern.
type Notifier interface {
	Notify(ctx context.Context, account *Account, activity Activity, code string) error
}

// NotifierFunc adapts a function to the Notifier interface.
type NotifierFunc func(ctx context.Context, account *Account, activity Activity, code string) error

// Notify implements Notifier.
func (f NotifierFunc) Notify(ctx context.Context, account *Account, activity Activity, code string) error {
	if f == nil {
		return nil
	}
	return f(ctx, account, activity, code)
}

type defLogger struct{}

func (d defLogger) Error(format string, args ...any) {
	fmt.Printf("[ERR] IDENTITY "+newline(format), args...)
}

func (d defLogger) Warn(format string, args ...any) {
	fmt.Printf("[WRN] IDENTITY "+newline(format), args...)
}

func (d defLogger) Info(format string, args ...any) {
	fmt.Printf("[INF] IDENTITY "+newline(format), args...)
}

func (d defLogger) Debug(format string, args ...any) {
	fmt.Printf("[DBG] IDENTITY "+newline(format), args...)
}

func newline(s string) string {
	if len(s) > 0 && s[len(s)-1] != '\n' {
		s += "\n"
	}
	return s
}
