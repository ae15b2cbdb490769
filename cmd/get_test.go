package cmd

import (
	"strings"
	"testing"
)

func TestParseParams(t *testing.T) {
	tests := []struct {
		name     string
		input    []string
		expected map[string][]string
		wantErr  bool
	}{
		{
			name:     "no params",
			input:    nil,
			expected: nil,
		},
		{
			name:     "single pair",
			input:    []string{"order_type=sell"},
			expected: map[string][]string{"order_type": {"sell"}},
		},
		{
			name:  "multiple pairs",
			input: []string{"order_type=sell", "page=2"},
			expected: map[string][]string{
				"order_type": {"sell"},
				"page":       {"2"},
			},
		},
		{
			name:     "repeated key accumulates",
			input:    []string{"type_id=34", "type_id=35"},
			expected: map[string][]string{"type_id": {"34", "35"}},
		},
		{
			name:     "empty value allowed",
			input:    []string{"filter="},
			expected: map[string][]string{"filter": {""}},
		},
		{
			name:     "value containing equals sign",
			input:    []string{"q=a=b"},
			expected: map[string][]string{"q": {"a=b"}},
		},
		{
			name:    "missing equals sign",
			input:   []string{"order_type"},
			wantErr: true,
		},
		{
			name:    "empty key",
			input:   []string{"=sell"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			values, err := parseParams(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("parseParams(%v) expected error, got none", tt.input)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseParams(%v) unexpected error: %v", tt.input, err)
			}

			if tt.expected == nil {
				if values != nil {
					t.Fatalf("parseParams(%v) = %v, want nil", tt.input, values)
				}
				return
			}

			if len(values) != len(tt.expected) {
				t.Fatalf("parseParams(%v) has %d keys, want %d", tt.input, len(values), len(tt.expected))
			}
			for key, want := range tt.expected {
				got := values[key]
				if len(got) != len(want) {
					t.Fatalf("parseParams(%v)[%q] = %v, want %v", tt.input, key, got, want)
				}
				for i := range want {
					if got[i] != want[i] {
						t.Errorf("parseParams(%v)[%q][%d] = %q, want %q", tt.input, key, i, got[i], want[i])
					}
				}
			}
		})
	}
}

func TestPrintRawJSON(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "empty payload prints null",
			input:    "",
			expected: "null\n",
		},
		{
			name:     "object is indented",
			input:    `{"name":"Zifrian","corporation_id":98000001}`,
			expected: "{\n  \"name\": \"Zifrian\",\n  \"corporation_id\": 98000001\n}\n",
		},
		{
			name:     "array is indented",
			input:    `[1,2]`,
			expected: "[\n  1,\n  2\n]\n",
		},
		{
			name:     "invalid JSON prints verbatim",
			input:    "not json",
			expected: "not json\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var sb strings.Builder
			if err := printRawJSON(&sb, []byte(tt.input)); err != nil {
				t.Fatalf("printRawJSON(%q) unexpected error: %v", tt.input, err)
			}
			if sb.String() != tt.expected {
				t.Errorf("printRawJSON(%q) = %q, want %q", tt.input, sb.String(), tt.expected)
			}
		})
	}
}
