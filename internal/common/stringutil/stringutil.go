// Package stringutil provides common string utility functions.
package stringutil

import "strings"

// TruncateStringWithEllipsis shortens s to at most maxLen bytes, replacing the
// tail with "..." when it had to cut. For maxLen < 4 it cuts without a suffix.
func TruncateStringWithEllipsis(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen < 4 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}

// SnakeKey lower-cases a human label and joins its words with underscores:
// "Last Activity" becomes "last_activity".
func SnakeKey(label string) string {
	fields := strings.FieldsFunc(strings.ToLower(strings.TrimSpace(label)), func(r rune) bool {
		return r == ' ' || r == '\t' || r == '-' || r == '_'
	})
	return strings.Join(fields, "_")
}

// FirstNonEmpty returns the first argument that is not blank.
func FirstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
