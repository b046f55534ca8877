package pkce

import (
	"crypto/sha256"
	"encoding/base64"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var verifierCharset = regexp.MustCompile(`^[A-Za-z0-9\-._~]{43,128}$`)

func TestChallenge(t *testing.T) {
	t.Run("RFC 7636 Appendix B test vector", func(t *testing.T) {
		verifier := "dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk"
		assert.Equal(t, "E9Melhoa2OwvFrEMTJguCHaoeK1t8URWbuGJSstw-cM", Challenge(verifier))
	})

	t.Run("matches sha256 and unpadded base64url", func(t *testing.T) {
		verifier := GenerateVerifier()
		h := sha256.Sum256([]byte(verifier))
		assert.Equal(t, base64.RawURLEncoding.EncodeToString(h[:]), Challenge(verifier))
		assert.NotContains(t, Challenge(verifier), "=")
	})
}

func TestGenerateVerifier(t *testing.T) {
	verifier := GenerateVerifier()
	assert.Regexp(t, verifierCharset, verifier)
	assert.Len(t, verifier, 43)
}

func TestGenerateVerifier_NoCollisions(t *testing.T) {
	const trials = 10000
	seen := make(map[string]struct{}, trials)
	prev := ""
	for range trials {
		v := GenerateVerifier()
		require.NotEqual(t, prev, v)
		_, dup := seen[v]
		require.False(t, dup, "verifier repeated: %s", v)
		seen[v] = struct{}{}
		prev = v
	}
}

func TestVerify(t *testing.T) {
	verifier := "dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk"
	challenge := Challenge(verifier)

	assert.True(t, Verify(verifier, challenge))
	assert.False(t, Verify("wrong-verifier", challenge))
	assert.False(t, Verify(verifier, ""))
}
