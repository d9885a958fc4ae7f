package identity

import (
	goerrors "github.com/goliatone/go-errors"
)

const (
	textCodeInvalidCredentials  = "INVALID_CREDENTIALS"
	textCodeAccountNotConfirmed = "ACCOUNT_NOT_CONFIRMED"
	textCodeAccountLocked       = "ACCOUNT_LOCKED"
	textCodeAccountDisabled     = "ACCOUNT_DISABLED"
	textCodeAccountNotFound     = "ACCOUNT_NOT_FOUND"
	textCodeInvalidToken        = "INVALID_TOKEN"
	textCodeInvalidChannel      = "INVALID_MFA_CHANNEL"
	textCodeDuplicateIdentifier = "DUPLICATE_IDENTIFIER"
	textCodeSigningKeyMissing   = "SIGNING_KEY_MISSING"
	textCodeSigningKeyTooShort  = "SIGNING_KEY_TOO_SHORT"
)

// ErrInvalidCredentials is returned for unknown accounts and wrong
// passwords alike; the caller must not be able to tell them apart.
var ErrInvalidCredentials = goerrors.New("invalid email or password", goerrors.CategoryAuth).
	WithTextCode(textCodeInvalidCredentials).
	WithCode(goerrors.CodeUnauthorized)

// ErrAccountNotConfirmed is returned when the activation flow has not completed.
var ErrAccountNotConfirmed = goerrors.New("account confirmation process not completed", goerrors.CategoryAuth).
	WithTextCode(textCodeAccountNotConfirmed).
	WithCode(goerrors.CodeUnauthorized)

// ErrAccountLocked is returned when the lockout policy has tripped.
var ErrAccountLocked = goerrors.New("account is locked", goerrors.CategoryAuth).
	WithTextCode(textCodeAccountLocked).
	WithCode(goerrors.CodeUnauthorized)

// ErrAccountDisabled is returned for retired accounts.
var ErrAccountDisabled = goerrors.New("account is disabled", goerrors.CategoryAuth).
	WithTextCode(textCodeAccountDisabled).
	WithCode(goerrors.CodeUnauthorized)

// ErrAccountNotFound is returned by management operations that take an
// account id. Login never surfaces it; see ErrInvalidCredentials.
var ErrAccountNotFound = goerrors.New("account not found", goerrors.CategoryNotFound).
	WithTextCode(textCodeAccountNotFound)

// ErrInvalidToken covers wrong, expired, consumed, and wrong-channel
// one-time codes. A single outcome keeps code verification from leaking
// which check failed.
var ErrInvalidToken = goerrors.New("invalid token", goerrors.CategoryAuth).
	WithTextCode(textCodeInvalidToken).
	WithCode(goerrors.CodeUnauthorized)

// ErrInvalidChannel is returned when a challenge is requested on a channel
// that is not confirmed or not enabled for the account.
var ErrInvalidChannel = goerrors.New("invalid mfa channel", goerrors.CategoryValidation).
	WithTextCode(textCodeInvalidChannel).
	WithCode(goerrors.CodeBadRequest)

// ErrSigningKeyMissing is a fatal configuration error surfaced at
// construction time, never per request.
var ErrSigningKeyMissing = goerrors.New("token signing key is not configured", goerrors.CategoryInternal).
	WithTextCode(textCodeSigningKeyMissing)

// ErrSigningKeyTooShort is a fatal configuration error: HS512 needs real
// key material, not a placeholder.
var ErrSigningKeyTooShort = goerrors.New("token signing key is too short", goerrors.CategoryInternal).
	WithTextCode(textCodeSigningKeyTooShort)

// NewDuplicateError builds the conflict error for a taken email, username,
// or phone number.
func NewDuplicateError(field, value string) *goerrors.Error {
	return goerrors.New(field+" is already in use", goerrors.CategoryConflict).
		WithTextCode(textCodeDuplicateIdentifier).
		WithCode(goerrors.CodeConflict).
		WithMetadata(map[string]any{
			"field": field,
			"value": value,
		})
}

func hasTextCode(err error, code string) bool {
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		return false
	}
	return rich.TextCode == code
}

// IsInvalidCredentials reports whether err is the generic login failure.
func IsInvalidCredentials(err error) bool {
	return hasTextCode(err, textCodeInvalidCredentials)
}

// IsAccountLocked reports whether err is the lockout failure.
func IsAccountLocked(err error) bool {
	return hasTextCode(err, textCodeAccountLocked)
}

// IsAccountNotConfirmed reports whether err is the pending-activation failure.
func IsAccountNotConfirmed(err error) bool {
	return hasTextCode(err, textCodeAccountNotConfirmed)
}

// IsInvalidToken reports whether err is the generic one-time code failure.
func IsInvalidToken(err error) bool {
	return hasTextCode(err, textCodeInvalidToken)
}

// IsInvalidChannel reports whether err is the ineligible-channel failure.
func IsInvalidChannel(err error) bool {
	return hasTextCode(err, textCodeInvalidChannel)
}

// IsDuplicateIdentifier reports whether err is a uniqueness conflict.
func IsDuplicateIdentifier(err error) bool {
	return hasTextCode(err, textCodeDuplicateIdentifier)
}
