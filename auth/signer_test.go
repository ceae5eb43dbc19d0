package auth_test

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/awnumar/memguard"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aibiliti/kbdash/auth"
)

func referenceHMAC(key, payload string) string {
	mac := hmac.New(sha256.New, []byte(key))
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}

func TestTokenSignerSign(t *testing.T) {
	signer := auth.NewTokenSigner(auth.NewCredentialStore(testCredentials()))

	sig, err := signer.Sign("admin:1000000")
	require.NoError(t, err)
	assert.Len(t, sig, auth.SignatureLen)
	assert.Equal(t, referenceHMAC("s3cr3t", "admin:1000000"), sig)

	again, err := signer.Sign("admin:1000000")
	require.NoError(t, err)
	assert.Equal(t, sig, again, "signing must be deterministic")

	next, err := signer.Sign("admin:1000001")
	require.NoError(t, err)
	assert.NotEqual(t, sig, next)
}

func TestTokenSignerKeyedBySecret(t *testing.T) {
	a := auth.NewTokenSigner(auth.NewCredentialStore(testCredentials()))
	other := testCredentials()
	other.Secret = "different"
	b := auth.NewTokenSigner(auth.NewCredentialStore(other))

	sigA, err := a.Sign("admin:1")
	require.NoError(t, err)
	sigB, err := b.Sign("admin:1")
	require.NoError(t, err)
	assert.NotEqual(t, sigA, sigB)
}

func TestTokenSignerWithoutSecret(t *testing.T) {
	signer := auth.NewTokenSigner(auth.NewCredentialStore(auth.Credentials{Username: "admin"}))
	sig, err := signer.Sign("admin:1")
	assert.ErrorIs(t, err, auth.ErrSigningKeyUnavailable)
	assert.Empty(t, sig)
}

func TestSessionCodecRejectsEmptyKeyAfterPurge(t *testing.T) {
	clock := &testClock{ms: 1_000_000}
	codec := newTestCodec(t, testCredentials(), clock)
	_, ok := codec.Verify(mustEncode(t, codec, "admin"))
	require.True(t, ok)

	// Purge wipes the session key, so the sealed secret can no longer be opened.
	memguard.Purge()

	forged := "admin:1000000:" + referenceHMAC("", "admin:1000000")
	subject, ok := codec.Verify(forged)
	assert.False(t, ok)
	assert.Empty(t, subject)

	token, err := codec.Encode("admin")
	assert.ErrorIs(t, err, auth.ErrSigningKeyUnavailable)
	assert.Empty(t, token)
}
