package identity_test

import (
	"testing"
	"time"

	identity "github.com/barrettc/go-identity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodeIssuerGenerate(t *testing.T) {
	issuer := identity.NewCodeIssuer(newTestConfig())

	code, digest, err := issuer.Generate()
	require.NoError(t, err)

	assert.Len(t, code, 6)
	for _, r := range code {
		assert.True(t, r >= '0' && r <= '9', "code must be decimal digits, got %q", code)
	}

	assert.NotEmpty(t, digest)
	assert.NotContains(t, digest, code, "digest must not embed the cleartext code")

	code2, digest2, err := issuer.Generate()
	require.NoError(t, err)
	assert.NotEqual(t, digest, digest2)
	_ = code2
}

func TestCodeIssuerGenerateHonorsConfiguredLength(t *testing.T) {
	cfg := newTestConfig()
	cfg.OneTimeCodeLength = 8

	code, _, err := identity.NewCodeIssuer(cfg).Generate()
	require.NoError(t, err)
	assert.Len(t, code, 8)
}

func TestCodeIssuerVerify(t *testing.T) {
	issuer := identity.NewCodeIssuer(newTestConfig())
	issuedAt := time.Now()

	code, digest, err := issuer.Generate()
	require.NoError(t, err)

	t.Run("accepts the right code within the window", func(t *testing.T) {
		assert.NoError(t, issuer.Verify(code, digest, &issuedAt))
	})

	t.Run("rejects a wrong code", func(t *testing.T) {
		err := issuer.Verify("000000", digest, &issuedAt)
		assert.True(t, identity.IsInvalidToken(err))
	})

	t.Run("rejects an empty code", func(t *testing.T) {
		err := issuer.Verify("", digest, &issuedAt)
		assert.True(t, identity.IsInvalidToken(err))
	})

	t.Run("rejects when no code is outstanding", func(t *testing.T) {
		err := issuer.Verify(code, "", nil)
		assert.True(t, identity.IsInvalidToken(err))
	})

	t.Run("rejects a mangled digest", func(t *testing.T) {
		err := issuer.Verify(code, "not-a-digest", &issuedAt)
		assert.True(t, identity.IsInvalidToken(err))
	})

	t.Run("rejects an expired code", func(t *testing.T) {
		expired := identity.NewCodeIssuer(newTestConfig()).
			WithClock(func() time.Time { return issuedAt.Add(11 * time.Minute) })
		err := expired.Verify(code, digest, &issuedAt)
		assert.True(t, identity.IsInvalidToken(err))
	})
}

func TestCodeIssuerLinkToken(t *testing.T) {
	issuer := identity.NewCodeIssuer(newTestConfig())

	token, digest, err := issuer.GenerateLinkToken()
	require.NoError(t, err)

	assert.Len(t, token, 64)

	issuedAt := time.Now()
	assert.NoError(t, issuer.Verify(token, digest, &issuedAt))

	token2, _, err := issuer.GenerateLinkToken()
	require.NoError(t, err)
	assert.NotEqual(t, token, token2)
}
