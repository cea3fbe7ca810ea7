package util

import "testing"

func TestSafeTruncate(t *testing.T) {
	tests := []struct {
		name string
		in   string
		n    int
		want string
	}{
		{"shorter than limit", "abc", 8, "abc"},
		{"exactly limit", "abcdefgh", 8, "abcdefgh"},
		{"longer than limit", "abcdefghij", 8, "abcdefgh"},
		{"empty", "", 8, ""},
		{"zero limit", "abc", 0, ""},
		{"negative limit", "abc", -1, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SafeTruncate(tt.in, tt.n); got != tt.want {
				t.Errorf("SafeTruncate(%q, %d) = %q, want %q", tt.in, tt.n, got, tt.want)
			}
		})
	}
}
