// Package config loads evegate configuration from EVEGATE_* environment
// variables and resolves the on-disk layout of the data directory.
//
// The data directory holds everything evegate persists between runs:
//
//	tokens.json        SSO tokens, one entry per character
//	rate_limits.json   rate limit tracker state
//	cache.db           sqlite-backed HTTP response cache
//	openapi_spec.json  cached ESI OpenAPI document
//	images/            rendered images (portraits, logos, icons)
//
// It defaults to the platform user config directory (e.g.
// ~/.config/evegate on Linux) and can be overridden with EVEGATE_DATA_DIR.
package config
