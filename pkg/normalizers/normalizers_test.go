package normalizers

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeName(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "already normalized",
			input:    "john smith",
			expected: "john smith",
		},
		{
			name:     "mixed case",
			input:    "John SMITH",
			expected: "john smith",
		},
		{
			name:     "punctuation removed",
			input:    "O'Brien, J.",
			expected: "obrien j",
		},
		{
			name:     "whitespace collapsed",
			input:    "  John   Smith ",
			expected: "john smith",
		},
		{
			name:     "junior suffix stripped",
			input:    "John Smith Jr.",
			expected: "john smith",
		},
		{
			name:     "roman numeral suffix stripped",
			input:    "John Smith III",
			expected: "john smith",
		},
		{
			name:     "empty",
			input:    "",
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, NormalizeName(tt.input))
		})
	}
}

func TestNormalizeTeam(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "punctuated club name",
			input:    "Town F.C.",
			expected: "town fc",
		},
		{
			name:     "uppercase",
			input:    "TOWN FC",
			expected: "town fc",
		},
		{
			name:     "structure tokens preserved",
			input:    "Town United",
			expected: "town united",
		},
		{
			name:     "empty",
			input:    "",
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, NormalizeTeam(tt.input))
		})
	}
}

func TestApplyChain(t *testing.T) {
	result := ApplyChain("  Town F.C. ", "lowercase", "remove_punctuation", "collapse_whitespace")
	assert.Equal(t, "town fc", result)

	// unknown normalizers are skipped
	result = ApplyChain("Town", "does_not_exist")
	assert.Equal(t, "Town", result)
}

func TestGet(t *testing.T) {
	fn, ok := Get("nteam")
	assert.True(t, ok)
	assert.Equal(t, "town fc", fn("Town F.C."))

	_, ok = Get("missing")
	assert.False(t, ok)
}
