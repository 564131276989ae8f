package models

import "strconv"

// BuildPartTitle returns the per-segment part title for a given configured
// prefix and 1-based index: "<prefix><index>" when a prefix is set, else
// "P<index>".
func BuildPartTitle(prefix string, index int) string {
	if prefix != "" {
		return prefix + strconv.Itoa(index)
	}
	return "P" + strconv.Itoa(index)
}
