package convert

import (
	"math"
	"strconv"
	"strings"
	"time"
)

// ToNumber coerces any value to a float64. It is the defensive boundary
// against vendor payloads containing strings, nulls, or missing keys: inputs
// that cannot be represented as a number yield 0, never an error.
func ToNumber(v any) float64 {
	switch n := v.(type) {
	case nil:
		return 0
	case float64:
		return n
	case float32:
		return float64(n)
	case int:
		return float64(n)
	case int32:
		return float64(n)
	case int64:
		return float64(n)
	case uint:
		return float64(n)
	case uint64:
		return float64(n)
	case bool:
		if n {
			return 1
		}
		return 0
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return 0
		}
		return f
	default:
		return 0
	}
}

// DayOfWeekIndex returns the 1-based day of week for t, Sunday=1.
func DayOfWeekIndex(t time.Time) int {
	return int(t.Weekday()) + 1
}

// DayOfMonthIndex returns the 1-based day of month for t.
func DayOfMonthIndex(t time.Time) int {
	return t.Day()
}

// MonthIndex returns the 1-based month of year for t.
func MonthIndex(t time.Time) int {
	return int(t.Month())
}

// Floor2 rounds v down to 2 decimal places.
func Floor2(v float64) float64 {
	return math.Floor(v*100) / 100
}

// Floor0 rounds v down to a whole unit.
func Floor0(v float64) float64 {
	return math.Floor(v)
}

// FormatNumber renders a float the way it is stored: no exponent, no
// trailing zeros.
func FormatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
