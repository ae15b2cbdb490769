package sso

import "errors"

// Sentinel errors returned by the authenticator and callback listener.
// Callers match them with errors.Is; wrapped variants carry detail.
var (
	// ErrAuthRequired indicates no stored token exists for the character.
	// Run an interactive login first.
	ErrAuthRequired = errors.New("authentication required")

	// ErrAuthenticationFailed indicates an interactive login or code
	// exchange did not complete: provider error, CSRF state mismatch,
	// missing authorization code, or a failed token verification.
	ErrAuthenticationFailed = errors.New("authentication failed")

	// ErrTokenRefreshFailed indicates the refresh grant was rejected.
	// The stored refresh token is likely revoked or expired.
	ErrTokenRefreshFailed = errors.New("token refresh failed")

	// ErrCallbackTimeout indicates no OAuth callback arrived within the
	// login timeout.
	ErrCallbackTimeout = errors.New("callback timeout")

	// ErrInsecureCallbackHost indicates the configured callback URL does
	// not point at a loopback address. The callback listener never binds
	// to non-loopback interfaces.
	ErrInsecureCallbackHost = errors.New("callback host is not loopback")

	// ErrLoginInProgress indicates another interactive login is already
	// running on this authenticator.
	ErrLoginInProgress = errors.New("interactive login already in progress")
)
