package identity

import (
	"time"

	goerrors "github.com/goliatone/go-errors"
)

// minSigningKeyBytes is the floor for HS512 key material.
const minSigningKeyBytes = 32

// SimpleConfig is a plain-struct Config implementation for callers that
// load configuration themselves. Zero values fall back to the defaults
// below when read through the getters.
type SimpleConfig struct {
	SigningKey         string
	Issuer             string
	Audience           []string
	TokenExpiration    int // minutes
	MFATokenExpiration int // minutes
	OneTimeCodeLength  int
	OneTimeCodeTTL     time.Duration
	MaxLoginAttempts   int
	CooldownPeriod     time.Duration
}

var _ Config = (*SimpleConfig)(nil)

func (c *SimpleConfig) GetSigningKey() string { return c.SigningKey }
func (c *SimpleConfig) GetIssuer() string     { return c.Issuer }

func (c *SimpleConfig) GetAudience() []string { return c.Audience }

func (c *SimpleConfig) GetTokenExpiration() int {
	if c.TokenExpiration <= 0 {
		return 60
	}
	return c.TokenExpiration
}

func (c *SimpleConfig) GetMFATokenExpiration() int {
	if c.MFATokenExpiration <= 0 {
		return 10
	}
	return c.MFATokenExpiration
}

func (c *SimpleConfig) GetOneTimeCodeLength() int {
	if c.OneTimeCodeLength <= 0 {
		return 6
	}
	return c.OneTimeCodeLength
}

func (c *SimpleConfig) GetOneTimeCodeTTL() time.Duration {
	if c.OneTimeCodeTTL <= 0 {
		return 10 * time.Minute
	}
	return c.OneTimeCodeTTL
}

func (c *SimpleConfig) GetMaxLoginAttempts() int {
	if c.MaxLoginAttempts <= 0 {
		return 5
	}
	return c.MaxLoginAttempts
}

func (c *SimpleConfig) GetCooldownPeriod() time.Duration {
	if c.CooldownPeriod <= 0 {
		return 24 * time.Hour
	}
	return c.CooldownPeriod
}

// Validate fails fast on configuration the process must not start with.
func (c *SimpleConfig) Validate() error {
	if c.SigningKey == "" {
		return ErrSigningKeyMissing
	}
	if len(c.SigningKey) < minSigningKeyBytes {
		return ErrSigningKeyTooShort.WithMetadata(map[string]any{
			"min_bytes": minSigningKeyBytes,
			"got_bytes": len(c.SigningKey),
		})
	}
	if c.Issuer == "" {
		return goerrors.New("token issuer is not configured", goerrors.CategoryInternal)
	}
	return nil
}
