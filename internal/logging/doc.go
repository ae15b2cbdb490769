// Package logging provides structured logging utilities for the evegate application.
//
// This package centralizes logging patterns to ensure consistent, structured logging
// throughout the codebase using the standard library's slog package.
//
// # Key Features
//
//   - Structured logging with slog
//   - Token sanitization (length-only masking, short fingerprints for correlation)
//   - Consistent attribute naming across the codebase
//   - Handler setup shared by the CLI and the MCP server
//
// # Usage Patterns
//
// Create a logger with standard attributes:
//
//	logger := logging.WithEndpoint(slog.Default(), "/characters/{character_id}/assets/")
//	logger.Info("request completed",
//	    logging.Status(logging.StatusSuccess))
//
// Sanitize sensitive data before logging:
//
//	logger.Debug("token refreshed",
//	    "token", logging.SanitizeToken(token.AccessToken))
//
// # Security Considerations
//
// Access and refresh tokens must never reach log output. SanitizeToken
// reduces a token to a length indicator; TokenFingerprint produces a short
// hash usable for correlating refresh cycles across log lines.
package logging
