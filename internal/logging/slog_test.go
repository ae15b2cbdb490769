package logging

import (
	"errors"
	"log/slog"
	"testing"
)

func TestWithOperation(t *testing.T) {
	logger := slog.Default()
	result := WithOperation(logger, "test_operation")
	if result == nil {
		t.Error("WithOperation returned nil")
	}
}

func TestWithTool(t *testing.T) {
	logger := slog.Default()
	result := WithTool(logger, "test_tool")
	if result == nil {
		t.Error("WithTool returned nil")
	}
}

func TestWithEndpoint(t *testing.T) {
	logger := slog.Default()
	result := WithEndpoint(logger, "/characters/{character_id}/assets/")
	if result == nil {
		t.Error("WithEndpoint returned nil")
	}
}

func TestWithCharacter(t *testing.T) {
	logger := slog.Default()
	result := WithCharacter(logger, 2119654977)
	if result == nil {
		t.Error("WithCharacter returned nil")
	}
}

func TestOperationAttr(t *testing.T) {
	attr := Operation("test_op")
	if attr.Key != KeyOperation {
		t.Errorf("Operation key = %q, want %q", attr.Key, KeyOperation)
	}
	if attr.Value.String() != "test_op" {
		t.Errorf("Operation value = %q, want %q", attr.Value.String(), "test_op")
	}
}

func TestEndpointAttr(t *testing.T) {
	attr := Endpoint("/markets/prices/")
	if attr.Key != KeyEndpoint {
		t.Errorf("Endpoint key = %q, want %q", attr.Key, KeyEndpoint)
	}
	if attr.Value.String() != "/markets/prices/" {
		t.Errorf("Endpoint value = %q, want %q", attr.Value.String(), "/markets/prices/")
	}
}

func TestCharacterAttr(t *testing.T) {
	attr := Character(2119654977)
	if attr.Key != KeyCharacter {
		t.Errorf("Character key = %q, want %q", attr.Key, KeyCharacter)
	}
	if attr.Value.Int64() != 2119654977 {
		t.Errorf("Character value = %d, want %d", attr.Value.Int64(), int64(2119654977))
	}
}

func TestRateGroupAttr(t *testing.T) {
	attr := RateGroup("market")
	if attr.Key != KeyGroup {
		t.Errorf("RateGroup key = %q, want %q", attr.Key, KeyGroup)
	}
	if attr.Value.String() != "market" {
		t.Errorf("RateGroup value = %q, want %q", attr.Value.String(), "market")
	}
}

func TestToolAttr(t *testing.T) {
	attr := Tool("esi_get")
	if attr.Key != KeyTool {
		t.Errorf("Tool key = %q, want %q", attr.Key, KeyTool)
	}
	if attr.Value.String() != "esi_get" {
		t.Errorf("Tool value = %q, want %q", attr.Value.String(), "esi_get")
	}
}

func TestStatusAttr(t *testing.T) {
	attr := Status(StatusSuccess)
	if attr.Key != KeyStatus {
		t.Errorf("Status key = %q, want %q", attr.Key, KeyStatus)
	}
	if attr.Value.String() != StatusSuccess {
		t.Errorf("Status value = %q, want %q", attr.Value.String(), StatusSuccess)
	}
}

func TestErr(t *testing.T) {
	// Test with error
	err := errors.New("test error")
	attr := Err(err)
	if attr.Key != KeyError {
		t.Errorf("Err key = %q, want %q", attr.Key, KeyError)
	}
	if attr.Value.String() != "test error" {
		t.Errorf("Err value = %q, want %q", attr.Value.String(), "test error")
	}

	// Test with nil - should return an empty group that slog will omit
	attr = Err(nil)
	// Empty Group has empty key
	if attr.Key != "" {
		t.Errorf("Err(nil) key = %q, want empty string (empty group)", attr.Key)
	}
}

func TestTokenFingerprint(t *testing.T) {
	tests := []struct {
		token    string
		wantLen  int  // Expected length of result (0 for empty)
		hasValue bool // Whether result should have a value
	}{
		{"eyJhbGciOiJSUzI1NiJ9.payload.sig", 20, true}, // "tok:" + 16 hex chars
		{"refresh-token-value", 20, true},
		{"", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.token, func(t *testing.T) {
			result := TokenFingerprint(tt.token)
			if tt.hasValue {
				if len(result) != tt.wantLen {
					t.Errorf("TokenFingerprint(%q) length = %d, want %d", tt.token, len(result), tt.wantLen)
				}
				if result[:4] != "tok:" {
					t.Errorf("TokenFingerprint(%q) should start with 'tok:', got %q", tt.token, result)
				}
			} else {
				if result != "" {
					t.Errorf("TokenFingerprint(%q) = %q, want empty string", tt.token, result)
				}
			}
		})
	}

	// Test deterministic hashing
	hash1 := TokenFingerprint("some-token")
	hash2 := TokenFingerprint("some-token")
	if hash1 != hash2 {
		t.Error("TokenFingerprint should return deterministic results")
	}

	// Test different tokens produce different fingerprints
	hash3 := TokenFingerprint("other-token")
	if hash1 == hash3 {
		t.Error("Different tokens should produce different fingerprints")
	}
}

func TestSanitizeToken(t *testing.T) {
	tests := []struct {
		token    string
		expected string
	}{
		{"", "<empty>"},
		{"abc123", "[token:6 chars]"},
		{"a_very_long_token_string", "[token:24 chars]"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			result := SanitizeToken(tt.token)
			if result != tt.expected {
				t.Errorf("SanitizeToken(%q) = %q, want %q", tt.token, result, tt.expected)
			}
		})
	}
}

func TestStatusConstants(t *testing.T) {
	if StatusSuccess != "success" {
		t.Errorf("StatusSuccess = %q, want %q", StatusSuccess, "success")
	}
	if StatusError != "error" {
		t.Errorf("StatusError = %q, want %q", StatusError, "error")
	}
	if StatusCached != "cached" {
		t.Errorf("StatusCached = %q, want %q", StatusCached, "cached")
	}
}
