package auth

import (
	"crypto/subtle"

	"github.com/awnumar/memguard"
)

// Credentials is the identity allowed to sign in. The Secret keys the session
// signature; resolving its fallback to Password is left to configuration
// loading.
type Credentials struct {
	Username string
	Password string
	Secret   string
}

// CredentialStore holds the configured Credentials for the lifetime of the
// process. It is immutable after construction and safe for concurrent use.
type CredentialStore struct {
	username   string
	password   *memguard.Enclave
	secret     *memguard.Enclave
	configured bool
}

// NewCredentialStore seals the password and secret into memguard enclaves.
// Empty values are allowed; the store then reports itself as not configured.
func NewCredentialStore(creds Credentials) *CredentialStore {
	s := &CredentialStore{
		username:   creds.Username,
		configured: creds.Username != "" && creds.Password != "" && creds.Secret != "",
	}
	// NewEnclave wipes its argument, so hand it a copy.
	if creds.Password != "" {
		s.password = memguard.NewEnclave([]byte(creds.Password))
	}
	if creds.Secret != "" {
		s.secret = memguard.NewEnclave([]byte(creds.Secret))
	}
	return s
}

// IsConfigured reports whether username, password, and secret are all set.
func (s *CredentialStore) IsConfigured() bool {
	return s.configured
}

// Username returns the configured login name.
func (s *CredentialStore) Username() string {
	return s.username
}

// Validate reports whether username and password match the configured pair.
// Both comparisons run in constant time and both always run, so the caller
// cannot learn which field was wrong.
func (s *CredentialStore) Validate(username, password string) bool {
	if !s.configured {
		return false
	}
	userOK := s.matchUsername(username)
	passOK := matchEnclave(s.password, password)
	return userOK && passOK
}

func (s *CredentialStore) matchUsername(candidate string) bool {
	return constantTimeEqual(candidate, s.username)
}

// matchEnclave compares candidate against the sealed value. A nil enclave or
// one that can no longer be opened never matches.
func matchEnclave(e *memguard.Enclave, candidate string) bool {
	if e == nil {
		return false
	}
	buf, err := e.Open()
	if err != nil {
		return false
	}
	defer buf.Destroy()
	return subtle.ConstantTimeCompare([]byte(candidate), buf.Bytes()) == 1
}

// constantTimeEqual returns false straight away on a length mismatch and
// otherwise compares every byte.
func constantTimeEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
