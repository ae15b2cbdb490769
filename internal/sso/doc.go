// Package sso implements EVE SSO authentication using the OAuth 2.0
// Authorization Code flow with PKCE.
//
// The interactive flow starts a loopback-only callback listener, opens
// the system browser, and exchanges the returned authorization code for
// tokens. PKCE (RFC 7636) replaces the client secret, so the client ID
// is the only credential the application holds.
//
// Tokens for multiple characters are persisted in a single JSON file,
// written atomically with mode 0600. Access tokens are refreshed
// automatically when they expire within a safety margin; refreshes for
// the same character are serialized so concurrent callers cannot race a
// rotating refresh token.
//
// Security properties enforced here:
//   - The callback listener binds only to loopback hosts. Any other
//     host in the configured callback URL fails before a socket opens.
//   - The CSRF state and PKCE verifier are single-use. A second
//     callback while one is pending is answered with an error page and
//     dropped.
//   - Raw token material never reaches log output.
package sso
