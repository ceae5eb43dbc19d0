package auth_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/aibiliti/kbdash/auth"
)

func testCredentials() auth.Credentials {
	return auth.Credentials{Username: "admin", Password: "secret", Secret: "s3cr3t"}
}

func TestCredentialStoreValidate(t *testing.T) {
	store := auth.NewCredentialStore(testCredentials())
	assert.True(t, store.IsConfigured())
	assert.True(t, store.Validate("admin", "secret"))

	tests := []struct {
		name     string
		username string
		password string
	}{
		{"wrong password", "admin", "wrong"},
		{"wrong username", "root", "secret"},
		{"case variant username", "Admin", "secret"},
		{"case variant password", "admin", "Secret"},
		{"prefix password", "admin", "secre"},
		{"longer password", "admin", "secret1"},
		{"prefix username", "adm", "secret"},
		{"empty username", "", "secret"},
		{"empty password", "admin", ""},
		{"both empty", "", ""},
		{"swapped", "secret", "admin"},
		{"secret as password", "admin", "s3cr3t"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.False(t, store.Validate(tt.username, tt.password))
		})
	}
}

func TestCredentialStoreNotConfigured(t *testing.T) {
	tests := []struct {
		name  string
		creds auth.Credentials
	}{
		{"missing username", auth.Credentials{Password: "secret", Secret: "s3cr3t"}},
		{"missing password", auth.Credentials{Username: "admin", Secret: "s3cr3t"}},
		{"missing secret", auth.Credentials{Username: "admin", Password: "secret"}},
		{"all empty", auth.Credentials{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := auth.NewCredentialStore(tt.creds)
			assert.False(t, store.IsConfigured())
			assert.False(t, store.Validate(tt.creds.Username, tt.creds.Password))
			assert.False(t, store.Validate("", ""))
		})
	}
}

func TestCredentialStoreKeepsCallerValues(t *testing.T) {
	creds := testCredentials()
	store := auth.NewCredentialStore(creds)

	// Sealing must not wipe the caller's strings.
	assert.Equal(t, "secret", creds.Password)
	assert.Equal(t, "s3cr3t", creds.Secret)
	assert.True(t, store.Validate(creds.Username, creds.Password))
	assert.Equal(t, "admin", store.Username())
}
