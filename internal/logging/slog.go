package logging

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
)

// Common log attribute keys for consistent naming across the codebase.
const (
	KeyOperation = "operation"
	KeyEndpoint  = "endpoint"
	KeyCharacter = "character_id"
	KeyGroup     = "rate_group"
	KeyDuration  = "duration"
	KeyStatus    = "status"
	KeyError     = "error"
	KeyTool      = "tool"
	KeyRequestID = "request_id"
)

// Status values for consistent logging.
// Note: These are intentionally duplicated from instrumentation package
// to avoid circular dependencies (instrumentation imports logging).
const (
	StatusSuccess = "success"
	StatusError   = "error"
	StatusCached  = "cached"
)

// WithOperation returns a logger with the operation attribute set.
func WithOperation(logger *slog.Logger, operation string) *slog.Logger {
	return logger.With(slog.String(KeyOperation, operation))
}

// WithTool returns a logger with the tool attribute set.
func WithTool(logger *slog.Logger, tool string) *slog.Logger {
	return logger.With(slog.String(KeyTool, tool))
}

// WithEndpoint returns a logger with the endpoint path attribute set.
// Pass the path template (e.g. "/characters/{character_id}/assets/")
// rather than the resolved path to keep attribute cardinality low.
func WithEndpoint(logger *slog.Logger, endpoint string) *slog.Logger {
	return logger.With(slog.String(KeyEndpoint, endpoint))
}

// WithCharacter returns a logger with the character attribute set.
func WithCharacter(logger *slog.Logger, characterID int64) *slog.Logger {
	return logger.With(slog.Int64(KeyCharacter, characterID))
}

// Operation returns a slog attribute for the operation name.
func Operation(op string) slog.Attr {
	return slog.String(KeyOperation, op)
}

// Endpoint returns a slog attribute for the request path or path template.
func Endpoint(path string) slog.Attr {
	return slog.String(KeyEndpoint, path)
}

// Character returns a slog attribute for an EVE character ID.
func Character(id int64) slog.Attr {
	return slog.Int64(KeyCharacter, id)
}

// RateGroup returns a slog attribute for the rate limit group.
func RateGroup(group string) slog.Attr {
	return slog.String(KeyGroup, group)
}

// Tool returns a slog attribute for the tool name.
func Tool(tool string) slog.Attr {
	return slog.String(KeyTool, tool)
}

// Status returns a slog attribute for the status.
func Status(status string) slog.Attr {
	return slog.String(KeyStatus, status)
}

// RequestID returns a slog attribute for a request correlation ID.
func RequestID(id string) slog.Attr {
	return slog.String(KeyRequestID, id)
}

// Err returns a slog attribute for an error.
// If err is nil, returns an empty Group attribute that will be omitted from output.
// This allows safely passing Err(maybeNilErr) without adding empty attributes.
//
// Usage:
//
//	logger.Info("operation", logging.Err(err))  // Safe even if err is nil
func Err(err error) slog.Attr {
	if err == nil {
		// Return an empty Group that slog will omit from output
		return slog.Group("")
	}
	return slog.String(KeyError, err.Error())
}

// TokenFingerprint returns a short hashed identifier for a token.
// This allows correlation of log entries (refresh cycles, revocations)
// without exposing any part of the token value.
func TokenFingerprint(token string) string {
	if token == "" {
		return ""
	}
	hash := sha256.Sum256([]byte(token))
	return "tok:" + hex.EncodeToString(hash[:8])
}

// SanitizeToken returns a masked version of a token for logging.
// It returns a length indicator without exposing any token content,
// as even partial token prefixes (like JWT headers) can aid attacks.
func SanitizeToken(token string) string {
	if token == "" {
		return "<empty>"
	}
	return fmt.Sprintf("[token:%d chars]", len(token))
}
