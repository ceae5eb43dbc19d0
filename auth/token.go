package auth

import (
	"crypto/subtle"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// SessionMaxAge is how long a token is accepted after it was issued.
const SessionMaxAge = 8 * time.Hour

const tokenSeparator = ":"

var issuedAtPattern = regexp.MustCompile(`^[0-9]+$`)

// SessionCodec builds and verifies session tokens.
type SessionCodec struct {
	store  *CredentialStore
	signer *TokenSigner
	now    func() time.Time
	maxAge time.Duration
}

// CodecOption configures a SessionCodec.
type CodecOption func(*SessionCodec)

// WithClock replaces time.Now as the codec's time source.
func WithClock(now func() time.Time) CodecOption {
	return func(c *SessionCodec) {
		c.now = now
	}
}

// NewSessionCodec returns a codec that signs with signer and only accepts
// tokens whose subject is the store's username.
func NewSessionCodec(store *CredentialStore, signer *TokenSigner, opts ...CodecOption) *SessionCodec {
	c := &SessionCodec{
		store:  store,
		signer: signer,
		now:    time.Now,
		maxAge: SessionMaxAge,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Encode issues a token for subject stamped with the current time. It does
// not check credentials; callers must only pass an authenticated subject.
// No token is issued when the signer cannot reach its key.
func (c *SessionCodec) Encode(subject string) (string, error) {
	payload := subject + tokenSeparator + strconv.FormatInt(c.now().UnixMilli(), 10)
	sig, err := c.signer.Sign(payload)
	if err != nil {
		return "", err
	}
	return payload + tokenSeparator + sig, nil
}

// Verify checks token and returns its subject. Every failure returns
// ("", false) with no indication of which check failed.
//
// A token issued in the future is accepted: only age > SessionMaxAge is
// rejected.
func (c *SessionCodec) Verify(token string) (string, bool) {
	if !c.store.IsConfigured() {
		return "", false
	}

	parts := strings.Split(token, tokenSeparator)
	if len(parts) != 3 {
		return "", false
	}
	subject, issuedAt, signature := parts[0], parts[1], parts[2]

	if !c.store.matchUsername(subject) {
		return "", false
	}
	if !issuedAtPattern.MatchString(issuedAt) {
		return "", false
	}
	issuedAtMs, err := strconv.ParseInt(issuedAt, 10, 64)
	if err != nil {
		return "", false
	}
	if c.now().UnixMilli()-issuedAtMs > c.maxAge.Milliseconds() {
		return "", false
	}

	// Sign the fields as received so leading zeros stay covered by the MAC.
	expected, err := c.signer.Sign(subject + tokenSeparator + issuedAt)
	if err != nil {
		return "", false
	}
	if subtle.ConstantTimeCompare([]byte(signature), []byte(expected)) != 1 {
		return "", false
	}
	return subject, true
}
