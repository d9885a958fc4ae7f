package identity

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

// TokenKind discriminates the two token classes the issuer signs.
type TokenKind string

const (
	// TokenKindSession is a full-scope bearer token.
	TokenKindSession TokenKind = "session"
	// TokenKindMFA is a restricted intermediate token proving only the
	// first factor; it carries the MFA marker claims.
	TokenKindMFA TokenKind = "mfa"
)

// TokenClass is the tagged union {Session, MFA(channel)} passed to Issue.
type TokenClass struct {
	Kind    TokenKind
	Channel MFAChannel
}

// SessionToken is the class of full session tokens.
func SessionToken() TokenClass {
	return TokenClass{Kind: TokenKindSession}
}

// MFAToken is the class of intermediate tokens bound to a channel.
func MFAToken(channel MFAChannel) TokenClass {
	return TokenClass{Kind: TokenKindMFA, Channel: channel}
}

// TokenService builds, signs, and validates the bearer tokens the
// authentication protocol hands out.
type TokenService interface {
	Issue(account *Account, class TokenClass) (string, error)
	SignClaims(claims *JWTClaims) (string, error)
	Validate(raw string) (AuthClaims, error)
}

// TokenServiceImpl signs HS512 compact JWTs with a symmetric key.
type TokenServiceImpl struct {
	signingKey        []byte
	sessionExpiration time.Duration
	mfaExpiration     time.Duration
	issuer            string
	audience          jwt.ClaimStrings
	logger            Logger
}

var _ TokenService = (*TokenServiceImpl)(nil)

// NewTokenService builds a TokenService from configuration. Missing or
// undersized key material is a fatal configuration error: the constructor
// fails and the process should not start.
func NewTokenService(cfg Config, logger Logger) (*TokenServiceImpl, error) {
	if logger == nil {
		logger = defLogger{}
	}

	key := cfg.GetSigningKey()
	if key == "" {
		return nil, ErrSigningKeyMissing
	}
	if len(key) < minSigningKeyBytes {
		return nil, ErrSigningKeyTooShort.WithMetadata(map[string]any{
			"min_bytes": minSigningKeyBytes,
			"got_bytes": len(key),
		})
	}

	var aud jwt.ClaimStrings
	if audience := cfg.GetAudience(); len(audience) > 0 {
		aud = make(jwt.ClaimStrings, len(audience))
		copy(aud, audience)
	}

	return &TokenServiceImpl{
		signingKey:        []byte(key),
		sessionExpiration: time.Duration(cfg.GetTokenExpiration()) * time.Minute,
		mfaExpiration:     time.Duration(cfg.GetMFATokenExpiration()) * time.Minute,
		issuer:            cfg.GetIssuer(),
		audience:          aud,
		logger:            logger,
	}, nil
}

// Issue builds the claim set for the account and signs it. Session tokens
// carry the role claims and never the MFA markers; MFA tokens add the
// marker and channel claims and use the shorter expiry.
func (ts *TokenServiceImpl) Issue(account *Account, class TokenClass) (string, error) {
	if account == nil {
		return "", goerrors.New("account must not be nil", goerrors.CategoryBadInput)
	}

	now := time.Now()
	ttl := ts.sessionExpiration

	claims := &JWTClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:       uuid.NewString(),
			Issuer:   ts.issuer,
			Subject:  account.ID.String(),
			Audience: ts.audience,
			IssuedAt: jwt.NewNumericDate(now),
		},
		Name:         account.DisplayName(),
		EmailAddress: account.Email,
		RoleNames:    account.RoleNames(),
	}

	if class.Kind == TokenKindMFA {
		ttl = ts.mfaExpiration
		claims.AuthMethod = MFAMethodClaim
		claims.MFAChannel = class.Channel
	}

	claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))

	return ts.SignClaims(claims)
}

// SignClaims signs an arbitrary claim set with the configured key.
func (ts *TokenServiceImpl) SignClaims(claims *JWTClaims) (string, error) {
	if claims == nil {
		return "", goerrors.New("claims must not be nil", goerrors.CategoryInternal)
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS512, claims)

	signed, err := token.SignedString(ts.signingKey)
	if err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to sign JWT")
	}

	return signed, nil
}

// Validate parses and verifies a compact token, checking signature,
// expiry, issuer, and audience.
func (ts *TokenServiceImpl) Validate(raw string) (AuthClaims, error) {
	parserOptions := make([]jwt.ParserOption, 0, 2)
	if ts.issuer != "" {
		parserOptions = append(parserOptions, jwt.WithIssuer(ts.issuer))
	}
	if len(ts.audience) > 0 {
		parserOptions = append(parserOptions, jwt.WithAudience(ts.audience...))
	}

	token, err := jwt.ParseWithClaims(raw, &JWTClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			ts.logger.Error("token validate encountered unexpected signing method", "alg", t.Header["alg"])
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return ts.signingKey, nil
	}, parserOptions...)

	if err != nil {
		return nil, goerrors.Wrap(err, ErrInvalidToken.Category, ErrInvalidToken.Message).
			WithTextCode(ErrInvalidToken.TextCode)
	}

	if claims, ok := token.Claims.(*JWTClaims); ok && token.Valid {
		return claims, nil
	}

	ts.logger.Error("token validate could not decode claims")
	return nil, ErrInvalidToken
}
