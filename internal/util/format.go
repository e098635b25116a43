package util

import "fmt"

var sizeUnits = []string{"B", "KB", "MB", "GB", "TB", "PB"}

// FormatSize renders a byte count with a binary-scaled unit, trimming
// trailing zeros from at most three decimal places.
func FormatSize(size int64) string {
	const unit = 1024
	if size < unit {
		return fmt.Sprintf("%d B", size)
	}

	exp := 0
	div := int64(1)
	for n := size; n >= unit && exp < len(sizeUnits)-1; n /= unit {
		exp++
		div *= unit
	}

	value := size / div
	remainder := size % div
	if remainder == 0 {
		return fmt.Sprintf("%d %s", value, sizeUnits[exp])
	}

	// Three decimal places computed in integer arithmetic, then shortened.
	decimal := remainder * 1000 / div
	switch {
	case decimal%10 != 0:
		return fmt.Sprintf("%d.%03d %s", value, decimal, sizeUnits[exp])
	case decimal%100 != 0:
		return fmt.Sprintf("%d.%02d %s", value, decimal/10, sizeUnits[exp])
	default:
		return fmt.Sprintf("%d.%d %s", value, decimal/100, sizeUnits[exp])
	}
}
