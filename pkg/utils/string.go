package utils

// Truncate cuts s to at most maxLen characters and appends "..." when
// anything was cut. It counts runes, so multi-byte characters are never split.
func Truncate(s string, maxLen int) string {
	if maxLen < 0 {
		maxLen = 0
	}

	n := 0
	for i := range s {
		if n == maxLen {
			return s[:i] + "..."
		}
		n++
	}
	return s
}
