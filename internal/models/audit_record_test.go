package models

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestClamp(t *testing.T) {
	tests := []struct {
		name  string
		in    string
		width int
		want  string
	}{
		{"short", "crm-web/2.1", 500, "crm-web/2.1"},
		{"exact", "abc", 3, "abc"},
		{"ascii_cut", "abcdef", 4, "abcd"},
		{"multibyte_kept_whole", "Müller-Lüdenscheid", 5, "Mülle"},
		{"multibyte_under_width", "Grüße", 5, "Grüße"},
		{"zero_width", "abc", 0, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Clamp(tt.in, tt.width)
			if got != tt.want {
				t.Errorf("Clamp(%q, %d) = %q, want %q", tt.in, tt.width, got, tt.want)
			}
			if !utf8.ValidString(got) {
				t.Errorf("Clamp produced invalid UTF-8 %q", got)
			}
		})
	}

	t.Run("long_header", func(t *testing.T) {
		got := Clamp(strings.Repeat("ä", 600), UserAgentWidth)
		if n := utf8.RuneCountInString(got); n != UserAgentWidth {
			t.Errorf("got %d characters, want %d", n, UserAgentWidth)
		}
	})
}
