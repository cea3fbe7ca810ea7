package util

// SafeTruncate returns at most n leading characters of s.
// Token and code values must never be logged whole; log sites pass
// them through this helper so only a short prefix ever reaches the
// log stream.
func SafeTruncate(s string, n int) string {
	if n < 0 {
		return ""
	}
	if len(s) <= n {
		return s
	}
	return s[:n]
}
