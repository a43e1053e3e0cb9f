package utils

import (
	"testing"
)

func TestTruncate(t *testing.T) {
	cases := []struct {
		in     string
		maxLen int
		want   string
	}{
		{"channels in Go", 160, "channels in Go"},
		{"goroutines and channels", 10, "goroutines..."},
		{"x", 0, "x"},
		{"", 5, ""},
	}
	for _, c := range cases {
		if got := Truncate(c.in, c.maxLen); got != c.want {
			t.Errorf("Truncate(%q, %d) = %q, want %q", c.in, c.maxLen, got, c.want)
		}
	}
}
