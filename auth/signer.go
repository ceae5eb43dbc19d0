package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/awnumar/memguard"
)

// SignatureLen is the length of a hex encoded HMAC-SHA256 signature.
const SignatureLen = sha256.Size * 2

// ErrSigningKeyUnavailable means the secret is unset or its enclave can no
// longer be opened. No signature is produced in that state.
var ErrSigningKeyUnavailable = errors.New("signing key unavailable")

// TokenSigner computes HMAC-SHA256 signatures keyed by the configured secret.
type TokenSigner struct {
	key *memguard.Enclave
}

// NewTokenSigner returns a signer keyed by the store's secret.
func NewTokenSigner(store *CredentialStore) *TokenSigner {
	return &TokenSigner{key: store.secret}
}

// Sign returns the lowercase hex HMAC-SHA256 of payload. The same payload and
// secret always give the same signature. It fails with
// ErrSigningKeyUnavailable rather than sign with an empty key.
func (s *TokenSigner) Sign(payload string) (string, error) {
	if s.key == nil {
		return "", ErrSigningKeyUnavailable
	}
	buf, err := s.key.Open()
	if err != nil {
		return "", fmt.Errorf("opening secret enclave: %w: %w", ErrSigningKeyUnavailable, err)
	}
	defer buf.Destroy()
	if buf.Size() == 0 {
		return "", ErrSigningKeyUnavailable
	}

	// hmac.New copies the key into its pads before buf is destroyed.
	mac := hmac.New(sha256.New, buf.Bytes())
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil)), nil
}
