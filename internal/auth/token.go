// Package auth implements static bearer credentials: tokens are generated
// out of band, only their SHA-256 hashes live in configuration. The core
// treats credentials as opaque; identity issuance is out of scope.
package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
)

// ErrInvalidToken is returned for unknown, empty or malformed tokens.
var ErrInvalidToken = errors.New("invalid token")

// Token is one configured credential.
type Token struct {
	Name string
	Hash string // hex-encoded SHA-256 of the raw token
}

// GenerateToken creates a new raw token and its hash. The raw value is shown
// once and never stored.
func GenerateToken() (raw, hash string, err error) {
	b := make([]byte, 24)
	if _, err := rand.Read(b); err != nil {
		return "", "", fmt.Errorf("generating token: %w", err)
	}
	raw = "bcn_" + hex.EncodeToString(b)
	return raw, HashToken(raw), nil
}

// HashToken returns the hex-encoded SHA-256 of a raw token.
func HashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// Verifier validates presented bearer tokens against configured hashes.
type Verifier struct {
	tokens []Token
}

// NewVerifier creates a Verifier over the configured tokens.
func NewVerifier(tokens []Token) *Verifier {
	return &Verifier{tokens: tokens}
}

// Verify returns the token's configured name, or ErrInvalidToken.
func (v *Verifier) Verify(raw string) (string, error) {
	if raw == "" {
		return "", ErrInvalidToken
	}

	hash := []byte(HashToken(raw))
	for _, t := range v.tokens {
		if subtle.ConstantTimeCompare(hash, []byte(t.Hash)) == 1 {
			return t.Name, nil
		}
	}
	return "", ErrInvalidToken
}
