package auth_test

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aibiliti/kbdash/auth"
)

// testClock is a settable time source in milliseconds.
type testClock struct {
	ms int64
}

func (c *testClock) now() time.Time {
	return time.UnixMilli(c.ms)
}

func newTestCodec(t *testing.T, creds auth.Credentials, clock *testClock) *auth.SessionCodec {
	t.Helper()
	store := auth.NewCredentialStore(creds)
	return auth.NewSessionCodec(store, auth.NewTokenSigner(store), auth.WithClock(clock.now))
}

func mustEncode(t *testing.T, codec *auth.SessionCodec, subject string) string {
	t.Helper()
	token, err := codec.Encode(subject)
	require.NoError(t, err)
	return token
}

func TestSessionCodecRoundTrip(t *testing.T) {
	clock := &testClock{ms: 1_000_000}
	codec := newTestCodec(t, testCredentials(), clock)

	token := mustEncode(t, codec, "admin")
	assert.Equal(t, "admin:1000000:"+referenceHMAC("s3cr3t", "admin:1000000"), token)

	parts := strings.Split(token, ":")
	require.Len(t, parts, 3)
	assert.Len(t, parts[2], 64)

	subject, ok := codec.Verify(token)
	assert.True(t, ok)
	assert.Equal(t, "admin", subject)
}

func TestSessionCodecExpiryBoundary(t *testing.T) {
	const t0 = int64(1_000_000)
	clock := &testClock{ms: t0}
	codec := newTestCodec(t, testCredentials(), clock)
	token := mustEncode(t, codec, "admin")

	maxAge := auth.SessionMaxAge.Milliseconds()
	require.Equal(t, int64(28_800_000), maxAge)

	clock.ms = t0 + maxAge - 1
	_, ok := codec.Verify(token)
	assert.True(t, ok, "one millisecond before the limit")

	clock.ms = t0 + maxAge
	_, ok = codec.Verify(token)
	assert.True(t, ok, "exactly at the limit")

	clock.ms = t0 + maxAge + 1
	_, ok = codec.Verify(token)
	assert.False(t, ok, "one millisecond past the limit")
}

func TestSessionCodecFutureIssuedAt(t *testing.T) {
	clock := &testClock{ms: 5_000_000}
	codec := newTestCodec(t, testCredentials(), clock)
	token := mustEncode(t, codec, "admin")

	// Clock moves backwards: negative age is accepted.
	clock.ms = 1_000
	subject, ok := codec.Verify(token)
	assert.True(t, ok)
	assert.Equal(t, "admin", subject)
}

func TestSessionCodecTamperedSignature(t *testing.T) {
	clock := &testClock{ms: 1_000_000}
	codec := newTestCodec(t, testCredentials(), clock)
	token := mustEncode(t, codec, "admin")
	sigStart := strings.LastIndex(token, ":") + 1

	for i := sigStart; i < len(token); i++ {
		b := []byte(token)
		if b[i] == '0' {
			b[i] = '1'
		} else {
			b[i] = '0'
		}
		_, ok := codec.Verify(string(b))
		assert.False(t, ok, "flipped signature char at %d", i)
	}
}

func TestSessionCodecTamperedIssuedAt(t *testing.T) {
	clock := &testClock{ms: 1_000_000}
	codec := newTestCodec(t, testCredentials(), clock)
	token := mustEncode(t, codec, "admin")

	forged := strings.Replace(token, ":1000000:", ":1000001:", 1)
	_, ok := codec.Verify(forged)
	assert.False(t, ok)

	// Same number, different encoding: still not covered by the signature.
	forged = strings.Replace(token, ":1000000:", ":01000000:", 1)
	_, ok = codec.Verify(forged)
	assert.False(t, ok)
}

func TestSessionCodecRejectsOtherSubject(t *testing.T) {
	clock := &testClock{ms: 1_000_000}
	codec := newTestCodec(t, testCredentials(), clock)

	// A token for "bob" correctly signed with the right secret.
	bob := mustEncode(t, codec, "bob")
	assert.Equal(t, "bob:1000000:"+referenceHMAC("s3cr3t", "bob:1000000"), bob)
	_, ok := codec.Verify(bob)
	assert.False(t, ok)

	_, ok = codec.Verify("bob:1000000:deadbeef")
	assert.False(t, ok)
}

func TestSessionCodecMalformed(t *testing.T) {
	clock := &testClock{ms: 1_000_000}
	codec := newTestCodec(t, testCredentials(), clock)
	valid := mustEncode(t, codec, "admin")

	inputs := []string{
		"",
		"a:b",
		"a:b:c:d",
		"admin:notanumber:sig",
		"admin:-1000:" + referenceHMAC("s3cr3t", "admin:-1000"),
		"admin:+1000:" + referenceHMAC("s3cr3t", "admin:+1000"),
		"admin:1e6:" + referenceHMAC("s3cr3t", "admin:1e6"),
		"admin::" + referenceHMAC("s3cr3t", "admin:"),
		"admin:99999999999999999999:" + referenceHMAC("s3cr3t", "admin:99999999999999999999"),
		"admin:1000000:deadbeef",
		"admin:1000000:",
		valid + ":",
		":" + valid,
		strings.ToUpper(valid),
	}
	for _, in := range inputs {
		subject, ok := codec.Verify(in)
		assert.False(t, ok, "input %q", in)
		assert.Empty(t, subject, "input %q", in)
	}
}

func TestSessionCodecWrongSecret(t *testing.T) {
	clock := &testClock{ms: 1_000_000}
	issuer := newTestCodec(t, testCredentials(), clock)

	other := testCredentials()
	other.Secret = "rotated"
	verifier := newTestCodec(t, other, clock)

	_, ok := verifier.Verify(mustEncode(t, issuer, "admin"))
	assert.False(t, ok)
}

func TestSessionCodecNotConfigured(t *testing.T) {
	clock := &testClock{ms: 1_000_000}
	configured := newTestCodec(t, testCredentials(), clock)
	token := mustEncode(t, configured, "admin")

	for _, creds := range []auth.Credentials{
		{Password: "secret", Secret: "s3cr3t"},
		{Username: "admin", Secret: "s3cr3t"},
		{Username: "admin", Password: "secret"},
	} {
		codec := newTestCodec(t, creds, clock)
		_, ok := codec.Verify(token)
		assert.False(t, ok, "creds %+v", creds)
		if self, err := codec.Encode(creds.Username); err == nil {
			_, ok = codec.Verify(self)
			assert.False(t, ok, "self-issued with creds %+v", creds)
		} else {
			assert.ErrorIs(t, err, auth.ErrSigningKeyUnavailable)
		}
	}
}
