package validators

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// SanitizeString trims input, drops control characters other than newline
// and tab, and caps the result at maxLen runes. maxLen <= 0 disables the cap.
func SanitizeString(input string, maxLen int) string {
	cleaned := strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return r
		}
		if unicode.IsControl(r) || r == utf8.RuneError {
			return -1
		}
		return r
	}, input)
	return truncateRunes(strings.TrimSpace(cleaned), maxLen)
}

// SanitizeLine is SanitizeString for single-line fields: whitespace runs,
// newlines included, collapse to one space.
func SanitizeLine(input string, maxLen int) string {
	return truncateRunes(strings.Join(strings.Fields(SanitizeString(input, 0)), " "), maxLen)
}

func truncateRunes(s string, maxLen int) string {
	if maxLen <= 0 || utf8.RuneCountInString(s) <= maxLen {
		return s
	}
	return strings.TrimSpace(string([]rune(s)[:maxLen]))
}
