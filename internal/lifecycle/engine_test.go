package lifecycle

import "testing"

func TestTrimNewline(t *testing.T) {
	cases := map[string]string{
		"abc123\n":   "abc123",
		"abc123\r\n": "abc123",
		"abc123":     "abc123",
		"abc123   ":  "abc123",
		"":           "",
	}
	for in, want := range cases {
		if got := trimNewline(in); got != want {
			t.Errorf("trimNewline(%q) = %q, want %q", in, got, want)
		}
	}
}
