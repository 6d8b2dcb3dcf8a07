package validation

import (
	"strings"
	"testing"
)

func TestNormalizeBody(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		max      int
		expected string
		ok       bool
	}{
		{"Plain body", "hello", 10, "hello", true},
		{"Body with spaces", "  hello  ", 10, "hello", true},
		{"Empty body", "", 10, "", false},
		{"Whitespace only", " \n\t ", 10, "", false},
		{"Body at limit", "hello", 5, "hello", true},
		{"Body over limit", "hello!", 5, "hello!", false},
		{"Multibyte at limit", "héllo", 5, "héllo", true},
		{"Default limit", strings.Repeat("a", DefaultMaxBodyLength), 0, strings.Repeat("a", DefaultMaxBodyLength), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := NormalizeBody(tt.body, tt.max)
			if got != tt.expected || ok != tt.ok {
				t.Errorf("NormalizeBody(%q, %d) = %q, %v, want %q, %v", tt.body, tt.max, got, ok, tt.expected, tt.ok)
			}
		})
	}
}

func TestValidateClientID(t *testing.T) {
	tests := []struct {
		name     string
		id       string
		expected bool
	}{
		{"UUID", "3f1c1c9e-8b44-4c1a-9d1a-1f2e3d4c5b6a", true},
		{"Short token", "msg-1", true},
		{"Empty", "", false},
		{"With spaces", "msg 1", false},
		{"Too long", strings.Repeat("a", 65), false},
		{"At limit", strings.Repeat("a", 64), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ValidateClientID(tt.id); got != tt.expected {
				t.Errorf("ValidateClientID(%q) = %v, want %v", tt.id, got, tt.expected)
			}
		})
	}
}

func TestValidateGroupName(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected bool
	}{
		{"Simple", "book club", true},
		{"Collapses spaces", "  book    club ", true},
		{"Empty", "   ", false},
		{"Too long", strings.Repeat("x", MaxGroupNameLength+1), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ValidateGroupName(tt.input); got != tt.expected {
				t.Errorf("ValidateGroupName(%q) = %v, want %v", tt.input, got, tt.expected)
			}
		})
	}
}

func TestTrimAndLimit(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		limit    int
		expected string
	}{
		{"Normal string", "hello world", 20, "hello world"},
		{"String with spaces", "  hello world  ", 20, "hello world"},
		{"String exceeding limit", "hello world this is too long", 10, "hello worl"},
		{"Empty string", "", 20, ""},
		{"String at limit", "hello", 5, "hello"},
		{"Multibyte cut on rune boundary", "žluťoučký", 4, "žluť"},
		{"No limit", "abc", 0, "abc"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := TrimAndLimit(tt.input, tt.limit)
			if result != tt.expected {
				t.Errorf("TrimAndLimit(%q, %d) = %q, want %q", tt.input, tt.limit, result, tt.expected)
			}
		})
	}
}
