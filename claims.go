package identity

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// MFAMethodClaim is the amr value carried only by intermediate tokens.
// Downstream authorization uses it to restrict intermediate tokens to the
// verification endpoints.
const MFAMethodClaim = "mfa"

// AuthClaims is the read surface for decoded token claims.
type AuthClaims interface {
	Subject() string
	DisplayName() string
	Email() string
	Roles() []string
	HasRole(name string) bool
	// IsMFAIntermediate reports whether this token only proves the first
	// factor; such tokens must never be accepted as full sessions.
	IsMFAIntermediate() bool
	Channel() MFAChannel
	TokenID() string
	Expires() time.Time
	IssuedAt() time.Time
}

// JWTClaims is the concrete claim set signed by the TokenService.
type JWTClaims struct {
	jwt.RegisteredClaims
	Name         string     `json:"name,omitempty"`
	EmailAddress string     `json:"email,omitempty"`
	RoleNames    []string   `json:"roles,omitempty"`
	AuthMethod   string     `json:"amr,omitempty"`
	MFAChannel   MFAChannel `json:"mfa_channel,omitempty"`
}

var _ AuthClaims = (*JWTClaims)(nil)

// Subject returns the account id the token was issued for.
func (c *JWTClaims) Subject() string {
	return c.RegisteredClaims.Subject
}

// DisplayName returns the name claim.
func (c *JWTClaims) DisplayName() string {
	return c.Name
}

// Email returns the email claim.
func (c *JWTClaims) Email() string {
	return c.EmailAddress
}

// Roles returns one entry per assigned role.
func (c *JWTClaims) Roles() []string {
	return c.RoleNames
}

// HasRole checks membership in the role claims.
func (c *JWTClaims) HasRole(name string) bool {
	for _, r := range c.RoleNames {
		if r == name {
			return true
		}
	}
	return false
}

// IsMFAIntermediate reports whether the token carries the MFA marker claim.
func (c *JWTClaims) IsMFAIntermediate() bool {
	return c.AuthMethod == MFAMethodClaim
}

// Channel returns the channel claim on intermediate tokens, empty otherwise.
func (c *JWTClaims) Channel() MFAChannel {
	return c.MFAChannel
}

// TokenID returns the jti used for replay tracking.
func (c *JWTClaims) TokenID() string {
	return c.RegisteredClaims.ID
}

// Expires returns the expiration time, zero when absent.
func (c *JWTClaims) Expires() time.Time {
	if c.RegisteredClaims.ExpiresAt != nil {
		return c.RegisteredClaims.ExpiresAt.Time
	}
	return time.Time{}
}

// IssuedAt returns the issuance time, zero when absent.
func (c *JWTClaims) IssuedAt() time.Time {
	if c.RegisteredClaims.IssuedAt != nil {
		return c.RegisteredClaims.IssuedAt.Time
	}
	return time.Time{}
}
