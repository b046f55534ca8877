// Package pkce implements the client side of Proof Key for Code Exchange (RFC 7636).
package pkce

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"

	"golang.org/x/oauth2"
)

// MethodS256 is the only challenge method this client sends.
const MethodS256 = "S256"

// GenerateVerifier returns a fresh code verifier: 32 random bytes as
// unpadded base64url, 43 characters from the RFC 7636 unreserved set.
// It panics if crypto/rand fails.
func GenerateVerifier() string {
	return oauth2.GenerateVerifier()
}

// Challenge derives the S256 code challenge, BASE64URL-NOPAD(SHA256(verifier)).
func Challenge(verifier string) string {
	return oauth2.S256ChallengeFromVerifier(verifier)
}

// Verify reports whether challenge was derived from verifier.
func Verify(verifier, challenge string) bool {
	h := sha256.Sum256([]byte(verifier))
	computed := base64.RawURLEncoding.EncodeToString(h[:])
	return subtle.ConstantTimeCompare([]byte(computed), []byte(challenge)) == 1
}
