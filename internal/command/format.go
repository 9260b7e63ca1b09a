package command

import (
	"fmt"
	"math"
	"strconv"
)

func sprintf(format string, a ...any) string {
	return fmt.Sprintf(format, a...)
}

// formatFloat matches Redis's float formatting: as few digits as needed,
// no trailing zeros, "inf"/"-inf" for infinities.
func formatFloat(f float64) string {
	switch {
	case math.IsInf(f, 1):
		return "inf"
	case math.IsInf(f, -1):
		return "-inf"
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}
