package utils

import (
	"strings"
	"unicode/utf8"
)

// StringHelper provides string utility functions.
type StringHelper struct{}

// NewStringHelper creates a new string helper.
func NewStringHelper() *StringHelper {
	return &StringHelper{}
}

// NormalizeWhitespace replaces line breaks and runs of whitespace with a single space.
func (s *StringHelper) NormalizeWhitespace(str string) string {
	return strings.Join(strings.Fields(str), " ")
}

// StripWhitespace removes every whitespace rune.
func (s *StringHelper) StripWhitespace(str string) string {
	return strings.Join(strings.Fields(str), "")
}

// TruncateRunes caps str at maxRunes characters and appends marker when it had to cut.
// The boolean reports whether truncation happened.
func (s *StringHelper) TruncateRunes(str string, maxRunes int, marker string) (string, bool) {
	if maxRunes <= 0 || utf8.RuneCountInString(str) <= maxRunes {
		return str, false
	}

	count := 0
	for i := range str {
		if count == maxRunes {
			return str[:i] + marker, true
		}
		count++
	}

	return str, false
}

// Preview returns the first n runes of str for log lines.
func (s *StringHelper) Preview(str string, n int) string {
	out, cut := s.TruncateRunes(str, n, "...")
	if !cut {
		return str
	}

	return out
}
