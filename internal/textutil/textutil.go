// Package textutil provides text helpers for filesystem-safe naming.
package textutil

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var titleCaser = cases.Title(language.English)

// SanitizeSlug converts input to a lowercase alphanumeric slug with hyphens.
// Spaces, underscores, periods, and hyphens become hyphens. Other characters
// are dropped. maxLen of 0 means unlimited length.
func SanitizeSlug(input string, maxLen int) string {
	input = strings.ToLower(strings.TrimSpace(input))
	var slug strings.Builder
	lastHyphen := false
	for _, r := range input {
		if maxLen > 0 && slug.Len() >= maxLen {
			break
		}
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			slug.WriteRune(r)
			lastHyphen = false
		case r == ' ' || r == '-' || r == '_' || r == '.':
			if !lastHyphen {
				slug.WriteRune('-')
				lastHyphen = true
			}
		}
	}
	return strings.Trim(slug.String(), "-")
}

// TitleSegment converts a free-form title into a directory-safe segment:
// title case, words joined with underscores, everything outside
// [A-Za-z0-9] dropped. "the lost city" becomes "The_Lost_City".
func TitleSegment(input string) string {
	input = strings.NewReplacer("_", " ", "-", " ").Replace(strings.TrimSpace(input))
	input = titleCaser.String(input)
	var out strings.Builder
	lastSep := true
	for _, r := range input {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			out.WriteRune(r)
			lastSep = false
		default:
			if !lastSep {
				out.WriteRune('_')
				lastSep = true
			}
		}
	}
	return strings.Trim(out.String(), "_")
}

// Ternary returns a when cond is true, otherwise b.
func Ternary[T any](cond bool, a, b T) T {
	if cond {
		return a
	}
	return b
}
