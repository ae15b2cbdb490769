package instrumentation

import "testing"

func TestMaskCharacterID(t *testing.T) {
	tests := []struct {
		name     string
		id       int64
		expected string
	}{
		{"full id", 2119654977, "***4977"},
		{"eight digits", 90000001, "***0001"},
		{"five digits", 12345, "***2345"},
		{"four digits", 4977, "4977"},
		{"short id", 42, "42"},
		{"zero", 0, "unknown"},
		{"negative", -1, "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := MaskCharacterID(tt.id)
			if result != tt.expected {
				t.Errorf("MaskCharacterID(%d) = %q, want %q", tt.id, result, tt.expected)
			}
		})
	}
}

func TestOperationConstants(t *testing.T) {
	operations := map[string]string{
		OperationList:    "list",
		OperationGet:     "get",
		OperationSearch:  "search",
		OperationHistory: "history",
	}

	for constant, expected := range operations {
		if constant != expected {
			t.Errorf("Operation constant = %q, want %q", constant, expected)
		}
	}
}
