package util

import (
	"regexp"
	"strings"
)

var controlCharsPattern = regexp.MustCompile(`[\x00-\x1F\x7F]`)

var whitespacePattern = regexp.MustCompile(`\s+`)

// WordCount counts whitespace-separated words.
func WordCount(s string) int {
	return len(strings.Fields(s))
}

// TitleCaseWord uppercases the first rune and lowercases the rest.
func TitleCaseWord(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	runes := []rune(strings.ToLower(s))
	runes[0] = []rune(strings.ToUpper(string(runes[0])))[0]
	return string(runes)
}

// SanitizeInput strips control characters, collapses whitespace and caps length.
func SanitizeInput(input string, maxLen int) string {
	withoutControl := controlCharsPattern.ReplaceAllString(input, " ")
	normalized := whitespacePattern.ReplaceAllString(withoutControl, " ")
	trimmed := strings.TrimSpace(normalized)

	if trimmed == "" {
		return ""
	}

	// Cap on runes, not bytes, so the cut never splits a multi-byte char.
	if maxLen > 0 {
		if runes := []rune(trimmed); len(runes) > maxLen {
			return strings.TrimSpace(string(runes[:maxLen]))
		}
	}

	return trimmed
}

// TruncateString truncates a string to maxRunes characters (rune-based, not byte-based)
// If truncated, appends "..." to the result
func TruncateString(s string, maxRunes int) string {
	runes := []rune(s)
	if len(runes) <= maxRunes {
		return s
	}
	return string(runes[:maxRunes]) + "..."
}

// Contains checks if a string slice contains a specific item
func Contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}

func Max(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func Min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
