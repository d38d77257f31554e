package util

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

var nonNumericRegex = regexp.MustCompile(`[^\d]`)

func CleanNumericString(s string) string {
	return nonNumericRegex.ReplaceAllString(s, "")
}

// MaxCount bounds engagement counts. Larger values are treated as garbage.
const MaxCount = math.MaxInt32

// CountFromFloat rounds f to a count. ok is false for negative, non-finite
// or out-of-range values.
func CountFromFloat(f float64) (n int, ok bool) {
	if math.IsNaN(f) || f < 0 || f > MaxCount {
		return 0, false
	}
	return int(math.Round(f)), true
}

var compactCountRegex = regexp.MustCompile(`(?i)^\s*(\d+(?:[.,]\d+)?)\s*([km])\b`)

// ParseCount reads engagement counts as rendered by social sites:
// "1,234", "87 reactions", "1.2K". ok is false when no digits are present
// or the value exceeds MaxCount.
func ParseCount(s string) (n int, ok bool) {
	if m := compactCountRegex.FindStringSubmatch(s); m != nil {
		f, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", "."), 64)
		if err == nil {
			mult := 1000.0
			if strings.EqualFold(m[2], "m") {
				mult = 1000000
			}
			return CountFromFloat(f * mult)
		}
	}
	digits := CleanNumericString(s)
	if digits == "" {
		return 0, false
	}
	n, err := strconv.Atoi(digits)
	if err != nil || n > MaxCount {
		return 0, false
	}
	return n, true
}
