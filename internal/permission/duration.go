package permission

import (
	"strconv"
	"strings"
	"time"
)

// ParseDuration parses CLI duration strings composed of `[0-9.]+[smhd]`
// segments. Pure numbers, empty strings, unknown units, and
// non-positive results are rejected.
func ParseDuration(s string) (time.Duration, bool) {
	if s == "" {
		return 0, false
	}

	var total time.Duration
	i := 0
	for i < len(s) {
		start := i
		for i < len(s) && (s[i] == '.' || (s[i] >= '0' && s[i] <= '9')) {
			i++
		}
		if i == start {
			return 0, false
		}
		numPart := s[start:i]

		if i >= len(s) {
			return 0, false // trailing number without a unit
		}
		unit := s[i]
		i++

		n, err := strconv.ParseFloat(numPart, 64)
		if err != nil {
			return 0, false
		}

		var unitDur time.Duration
		switch unit {
		case 's':
			unitDur = time.Second
		case 'm':
			unitDur = time.Minute
		case 'h':
			unitDur = time.Hour
		case 'd':
			unitDur = 24 * time.Hour
		default:
			return 0, false
		}

		total += time.Duration(n * float64(unitDur))
	}

	if total <= 0 {
		return 0, false
	}
	return total, true
}

// trimmed returns s without leading and trailing white space. Nothing in
// the package calls it; ParseDuration does not trim its input.
func trimmed(s string) string { return strings.TrimSpace(s) }
