package identity

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"math/big"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

// CodeIssuer generates and verifies the one-time codes delivered out of
// band. Codes are unpredictable (crypto/rand), stored only as a salted
// digest, verified in constant time, and single-use.
type CodeIssuer struct {
	length int
	ttl    time.Duration
	now    func() time.Time
}

// NewCodeIssuer builds an issuer from configuration.
func NewCodeIssuer(cfg Config) *CodeIssuer {
	return &CodeIssuer{
		length: cfg.GetOneTimeCodeLength(),
		ttl:    cfg.GetOneTimeCodeTTL(),
		now:    time.Now,
	}
}

// WithClock injects a clock for tests.
func (g *CodeIssuer) WithClock(now func() time.Time) *CodeIssuer {
	if now != nil {
		g.now = now
	}
	return g
}

// TTL exposes the configured validity window.
func (g *CodeIssuer) TTL() time.Duration {
	return g.ttl
}

// Generate returns a fresh decimal code and the digest to persist.
func (g *CodeIssuer) Generate() (code string, digest string, err error) {
	digits := make([]byte, g.length)
	for i := range digits {
		n, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			return "", "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to generate one-time code")
		}
		digits[i] = byte('0' + n.Int64())
	}
	code = string(digits)

	digest, err = digestCode(code)
	if err != nil {
		return "", "", err
	}

	return code, digest, nil
}

// GenerateLinkToken returns a long urlsafe token for activation and
// password-reset links, plus the digest to persist.
func (g *CodeIssuer) GenerateLinkToken() (token string, digest string, err error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to generate link token")
	}
	token = hex.EncodeToString(raw)

	digest, err = digestCode(token)
	if err != nil {
		return "", "", err
	}

	return token, digest, nil
}

// Verify checks a presented code against the stored digest and issue time.
// Expired, mismatched, and absent codes all fail identically.
func (g *CodeIssuer) Verify(code, storedDigest string, issuedAt *time.Time) error {
	if code == "" || storedDigest == "" || issuedAt == nil {
		return ErrInvalidToken
	}

	if g.now().Sub(*issuedAt) > g.ttl {
		return ErrInvalidToken
	}

	salt, want, ok := splitDigest(storedDigest)
	if !ok {
		return ErrInvalidToken
	}

	got := saltedSum(salt, code)
	if subtle.ConstantTimeCompare(want, got) != 1 {
		return ErrInvalidToken
	}

	return nil
}

// digestCode produces "hex(salt)$hex(sha256(salt||code))".
func digestCode(code string) (string, error) {
	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to generate code salt")
	}
	sum := saltedSum(salt, code)
	return hex.EncodeToString(salt) + "$" + hex.EncodeToString(sum), nil
}

func saltedSum(salt []byte, code string) []byte {
	h := sha256.New()
	h.Write(salt)
	h.Write([]byte(code))
	return h.Sum(nil)
}

func splitDigest(digest string) (salt []byte, sum []byte, ok bool) {
	for i := 0; i < len(digest); i++ {
		if digest[i] != '$' {
			continue
		}
		salt, err := hex.DecodeString(digest[:i])
		if err != nil {
			return nil, nil, false
		}
		sum, err := hex.DecodeString(digest[i+1:])
		if err != nil {
			return nil, nil, false
		}
		return salt, sum, true
	}
	return nil, nil, false
}
