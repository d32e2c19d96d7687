package tgui

import "unicode/utf8"

// MaxMessageLen is the Bot API limit for one text message, in runes.
const MaxMessageLen = 4096

// TruncRunes returns s truncated to at most n runes, ellipsis included.
func TruncRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	count := 0
	for i := range s {
		if count == n-1 {
			return s[:i] + "…"
		}
		count++
	}
	return s
}
