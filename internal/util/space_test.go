package util

import (
	"strings"
	"testing"

	"github.com/mattn/go-runewidth"
)

func TestPadRight(t *testing.T) {
	tests := []struct {
		name  string
		s     string
		width int
		want  string
	}{
		{"empty", "", 4, "    "},
		{"pads short", "abc", 6, "abc   "},
		{"exact width", "hello", 5, "hello"},
		{"truncates long", "this is a very long string", 10, "this is..."},
		{"tiny width", "hello", 3, "..."},
		{"wide runes", "你好", 8, "你好    "},
		{"mixed width runes", "a你b", 6, "a你b  "},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := PadRight(tt.s, tt.width); got != tt.want {
				t.Errorf("PadRight(%q, %d) = %q, want %q", tt.s, tt.width, got, tt.want)
			}
		})
	}
}

func TestPadRightTruncatedFitsWidth(t *testing.T) {
	long := strings.Repeat("spin 盘 ", 40)
	for _, width := range []int{6, 11, 36} {
		got := PadRight(long, width)
		if !strings.HasSuffix(got, "...") {
			t.Errorf("width %d: expected ellipsis, got %q", width, got)
		}
		if w := runewidth.StringWidth(got); w > width {
			t.Errorf("width %d: result occupies %d cells", width, w)
		}
	}
}
