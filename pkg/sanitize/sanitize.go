// Package sanitize bounds and cleans free-text fields taken from untrusted
// datagrams.
package sanitize

import (
	"strings"
	"unicode/utf8"
)

// String removes ASCII control characters, replaces invalid UTF-8 sequences
// and truncates the result to maxLength runes. A non-positive maxLength
// yields "".
func String(value string, maxLength int) string {
	if maxLength <= 0 || value == "" {
		return ""
	}

	if !utf8.ValidString(value) {
		value = strings.ToValidUTF8(value, string(utf8.RuneError))
	}

	var b strings.Builder
	b.Grow(len(value))

	n := 0
	for _, r := range value {
		if isControl(r) {
			continue
		}
		if n == maxLength {
			break
		}
		b.WriteRune(r)
		n++
	}
	return b.String()
}

// Any sanitizes v when it is a string or []byte. Everything else, including
// nil, yields "".
func Any(v any, maxLength int) string {
	switch s := v.(type) {
	case string:
		return String(s, maxLength)
	case []byte:
		return String(string(s), maxLength)
	default:
		return ""
	}
}

// Field sanitizes parts[i], or returns "" when the index is out of range.
func Field(parts []string, i, maxLength int) string {
	if i < 0 || i >= len(parts) {
		return ""
	}
	return String(parts[i], maxLength)
}

func isControl(r rune) bool {
	return r < 0x20 || r == 0x7f
}
