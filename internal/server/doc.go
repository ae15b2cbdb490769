// Package server provides the MCP tool surface over the upstream API
// client, plus the health and metrics endpoints the serve command
// binds.
//
// # Key Components
//
// ServerContext carries the shared dependencies into tool handlers: the
// esi.Client (and through it the authenticator, cache and rate-limit
// tracker) and the instrumentation sinks. Tools never construct
// clients; character selection happens per call via the character
// argument.
//
// RegisterTools installs the read-only tool set:
//   - esi_get: one request against any API path, optionally paginated
//   - esi_accounts: the locally authenticated characters
//   - esi_status: rate-limit budgets and response-cache statistics
//   - esi_character: the public sheet of a character
//
// HealthChecker serves /healthz, /readyz and /healthz/detailed.
// MetricsServer serves Prometheus metrics on a dedicated port so
// operational data never mixes with tool traffic.
package server
