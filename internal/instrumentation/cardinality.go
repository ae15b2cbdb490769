package instrumentation

import "strconv"

// Cardinality management helpers for metrics and general logs.
// These functions reduce high-cardinality label values to prevent metrics explosion.
//
// # Warning
//
// High cardinality in metrics can cause:
// - Increased memory usage in Prometheus/metrics backends
// - Slower query performance
// - Higher storage costs
//
// Concrete character IDs belong only in audit logs; endpoint paths must be
// normalized to their templates before use as labels.

// MaskCharacterID reduces a character ID to its last four digits for
// general logging, keeping entries correlatable without naming the pilot.
//
// Example:
//
//	MaskCharacterID(2119654977) // "***4977"
//	MaskCharacterID(42)         // "42"
//	MaskCharacterID(0)          // "unknown"
func MaskCharacterID(id int64) string {
	if id <= 0 {
		return "unknown"
	}

	s := strconv.FormatInt(id, 10)
	if len(s) <= 4 {
		return s
	}
	return "***" + s[len(s)-4:]
}

// Common operation types for upstream API metrics.
// Status, OAuth, cache, and wait constants are defined in config.go.
const (
	OperationList    = "list"
	OperationGet     = "get"
	OperationSearch  = "search"
	OperationHistory = "history"
)
