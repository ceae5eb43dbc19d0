// Package auth implements the stateless signed-session scheme that guards the
// dashboard.
//
// A single credential pair is configured at startup. A successful login
// produces a session token of the form
//
//	<username>:<issuedAt-epoch-ms>:<hex hmac-sha256>
//
// which the transport stores in the kb_session cookie. Nothing is kept on the
// server: every request recomputes the signature from the configured secret
// and checks the token age against SessionMaxAge.
//
// The components, leaves first:
//
//   - CredentialStore holds the configured identity. The password and signing
//     secret live in memguard enclaves and are only unsealed for the duration
//     of a comparison or signature.
//   - TokenSigner computes the HMAC over a payload.
//   - SessionCodec encodes and verifies tokens.
//   - Gate is the boundary used by HTTP handlers: it turns a raw cookie value
//     into a Directive and runs the login flow against a CookieJar.
//
// Verification never reports why a token was rejected.
package auth
