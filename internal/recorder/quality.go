package recorder

import "strings"

// DefaultQualityHint is returned when no comma-separated part of the
// configured quality string yields a positive digit run (spec
// "SUPPLEMENTED FEATURES": parse_quality, carried from
// original_source/src-tauri/src/live_recorder.rs).
const DefaultQualityHint = 10000

// ParseQualityHint extracts the quality number ("qn") from a configured
// recording-quality string. The string is split on commas; within each
// part, every ASCII digit is kept (non-digit characters are dropped) and
// the result parsed as an integer. The first part producing a positive
// value wins; if none do, DefaultQualityHint is returned.
func ParseQualityHint(value string) int {
	for _, part := range strings.Split(value, ",") {
		var digits strings.Builder
		for _, r := range part {
			if r >= '0' && r <= '9' {
				digits.WriteRune(r)
			}
		}
		if digits.Len() == 0 {
			continue
		}
		n := 0
		for _, r := range digits.String() {
			n = n*10 + int(r-'0')
		}
		if n > 0 {
			return n
		}
	}
	return DefaultQualityHint
}
