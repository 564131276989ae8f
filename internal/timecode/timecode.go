// Package timecode converts between seconds and HH:MM:SS[.mmm] strings for
// clip bounds, chat sidecar timestamps, and segment metadata.
package timecode

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Epsilon is the tolerance used when comparing a timecode-derived duration
// against a probed media duration; per spec §9 the two are treated as equal
// within 1ms.
const Epsilon = time1ms

const time1ms = 0.001

// Format renders seconds as "HH:MM:SS" when there is no sub-second
// remainder, or "HH:MM:SS.mmm" otherwise.
func Format(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	totalMillis := int64(math.Round(seconds * 1000))
	hh := totalMillis / 3_600_000
	rem := totalMillis % 3_600_000
	mm := rem / 60_000
	rem %= 60_000
	ss := rem / 1000
	ms := rem % 1000

	if ms == 0 {
		return fmt.Sprintf("%02d:%02d:%02d", hh, mm, ss)
	}
	return fmt.Sprintf("%02d:%02d:%02d.%03d", hh, mm, ss, ms)
}

// Parse converts "HH:MM:SS" or "HH:MM:SS.mmm" into seconds. It is the
// inverse of Format.
func Parse(value string) (float64, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, fmt.Errorf("timecode: empty value")
	}

	var fraction float64
	main := value
	if idx := strings.IndexByte(value, '.'); idx >= 0 {
		main = value[:idx]
		fracStr := value[idx+1:]
		if len(fracStr) == 0 {
			return 0, fmt.Errorf("timecode: malformed fraction in %q", value)
		}
		ms, err := strconv.Atoi(padRight(fracStr, 3))
		if err != nil {
			return 0, fmt.Errorf("timecode: malformed fraction in %q: %w", value, err)
		}
		fraction = float64(ms) / 1000
	}

	parts := strings.Split(main, ":")
	if len(parts) != 3 {
		return 0, fmt.Errorf("timecode: expected HH:MM:SS, got %q", value)
	}
	hh, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, fmt.Errorf("timecode: invalid hours in %q: %w", value, err)
	}
	mm, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, fmt.Errorf("timecode: invalid minutes in %q: %w", value, err)
	}
	ss, err := strconv.Atoi(parts[2])
	if err != nil {
		return 0, fmt.Errorf("timecode: invalid seconds in %q: %w", value, err)
	}

	return float64(hh*3600+mm*60+ss) + fraction, nil
}

// EqualWithinEpsilon reports whether two second counts are within the 1ms
// tolerance spec §9 mandates for duration comparisons.
func EqualWithinEpsilon(a, b float64) bool {
	diff := a - b
	if diff < 0 {
		diff = -diff
	}
	return diff <= Epsilon
}

func padRight(s string, n int) string {
	for len(s) < n {
		s += "0"
	}
	if len(s) > n {
		s = s[:n]
	}
	return s
}
