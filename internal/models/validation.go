package models

import (
	"fmt"
	"unicode/utf8"
)

const (
	// MaxTitleLength is the maximum rune length of a submission title.
	MaxTitleLength = 80
	// MaxDescriptionLength is the maximum rune length of a submission description.
	MaxDescriptionLength = 2000
)

// ValidateTitle enforces the title length invariant named in spec §7.
func ValidateTitle(title string) error {
	if utf8.RuneCountInString(title) > MaxTitleLength {
		return fmt.Errorf("title exceeds %d characters", MaxTitleLength)
	}
	return nil
}

// ValidateDescription enforces the description length invariant named in spec §7.
func ValidateDescription(description string) error {
	if utf8.RuneCountInString(description) > MaxDescriptionLength {
		return fmt.Errorf("description exceeds %d characters", MaxDescriptionLength)
	}
	return nil
}
