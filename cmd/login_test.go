package cmd

import (
	"testing"
)

func TestParseCommaSeparatedList(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []string
	}{
		{
			name:     "empty string",
			input:    "",
			expected: nil,
		},
		{
			name:     "single value",
			input:    "esi-assets.read_assets.v1",
			expected: []string{"esi-assets.read_assets.v1"},
		},
		{
			name:     "multiple values",
			input:    "esi-assets.read_assets.v1,esi-wallet.read_character_wallet.v1",
			expected: []string{"esi-assets.read_assets.v1", "esi-wallet.read_character_wallet.v1"},
		},
		{
			name:     "values with spaces around comma",
			input:    "esi-assets.read_assets.v1, esi-skills.read_skills.v1",
			expected: []string{"esi-assets.read_assets.v1", "esi-skills.read_skills.v1"},
		},
		{
			name:     "values with leading/trailing spaces",
			input:    "  esi-assets.read_assets.v1  ,  esi-skills.read_skills.v1  ",
			expected: []string{"esi-assets.read_assets.v1", "esi-skills.read_skills.v1"},
		},
		{
			name:     "trailing comma",
			input:    "esi-assets.read_assets.v1,esi-skills.read_skills.v1,",
			expected: []string{"esi-assets.read_assets.v1", "esi-skills.read_skills.v1"},
		},
		{
			name:     "leading comma",
			input:    ",esi-assets.read_assets.v1,esi-skills.read_skills.v1",
			expected: []string{"esi-assets.read_assets.v1", "esi-skills.read_skills.v1"},
		},
		{
			name:     "multiple consecutive commas",
			input:    "esi-assets.read_assets.v1,,esi-skills.read_skills.v1",
			expected: []string{"esi-assets.read_assets.v1", "esi-skills.read_skills.v1"},
		},
		{
			name:     "only commas and spaces",
			input:    ",  , , ",
			expected: nil,
		},
		{
			name:     "single value with surrounding whitespace",
			input:    "  esi-assets.read_assets.v1  ",
			expected: []string{"esi-assets.read_assets.v1"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := parseCommaSeparatedList(tt.input)

			// Handle nil vs empty slice comparison
			if tt.expected == nil {
				if result != nil {
					t.Errorf("parseCommaSeparatedList(%q) = %v, want nil", tt.input, result)
				}
				return
			}

			if len(result) != len(tt.expected) {
				t.Errorf("parseCommaSeparatedList(%q) = %v (len %d), want %v (len %d)",
					tt.input, result, len(result), tt.expected, len(tt.expected))
				return
			}

			for i, v := range result {
				if v != tt.expected[i] {
					t.Errorf("parseCommaSeparatedList(%q)[%d] = %q, want %q",
						tt.input, i, v, tt.expected[i])
				}
			}
		})
	}
}
