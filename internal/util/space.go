package util

import (
	"strings"

	"github.com/mattn/go-runewidth"
)

// PadRight fits s into exactly width display cells, padding with spaces
// or truncating with an ellipsis. Widths follow go-runewidth, so East
// Asian characters count as two cells.
func PadRight(s string, width int) string {
	if w := runewidth.StringWidth(s); w <= width {
		return s + strings.Repeat(" ", width-w)
	}
	return runewidth.Truncate(s, width, "...")
}
