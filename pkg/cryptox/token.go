package cryptox

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
)

// TokenIDBytes is the entropy of a credential-pair token ID. Hex encoding
// yields 64 characters, which is the revocation key format throughout.
const TokenIDBytes = 32

// NewTokenID creates the random identifier shared by an access/refresh pair.
// Returns an error if the random number generator fails.
func NewTokenID() (string, error) {
	buf := make([]byte, TokenIDBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("cryptox: failed to generate token id: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// FingerprintToken returns a deterministic SHA-256 fingerprint of a token,
// base64url encoded. Store fingerprints, never the token itself.
func FingerprintToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}
