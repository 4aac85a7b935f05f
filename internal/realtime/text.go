package realtime

import "unicode/utf16"

// DefaultMaxMessageLen is the chat body limit in UTF-16 code units.
const DefaultMaxMessageLen = 500

// TruncateUTF16 clips s to at most max UTF-16 code units without splitting
// a surrogate pair, and reports whether anything was cut. max <= 0 disables
// the limit.
func TruncateUTF16(s string, max int) (string, bool) {
	if max <= 0 {
		return s, false
	}
	n := 0
	for i, r := range s {
		w := utf16.RuneLen(r)
		if w < 0 {
			w = 1
		}
		if n+w > max {
			return s[:i], true
		}
		n += w
	}
	return s, false
}

// LenUTF16 returns the length of s in UTF-16 code units.
func LenUTF16(s string) int {
	n := 0
	for _, r := range s {
		if w := utf16.RuneLen(r); w > 0 {
			n += w
		} else {
			n++
		}
	}
	return n
}
