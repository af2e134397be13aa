// Package validation provides input validation utilities
package validation

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	MaxNameLength        = 255
	MinPasswordLength    = 8
	MaxPasswordLength    = 128
	MinPostBodyLength    = 10
	MinCommentBodyLength = 3
)

var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

// ValidatePassword checks length and that the confirmation matches.
func ValidatePassword(password, confirmation string) error {
	if len(password) < MinPasswordLength {
		return fmt.Errorf("password must be at least %d characters long", MinPasswordLength)
	}
	if len(password) > MaxPasswordLength {
		return fmt.Errorf("password must not exceed %d characters", MaxPasswordLength)
	}
	if password != confirmation {
		return fmt.Errorf("password confirmation does not match")
	}
	return nil
}

// ValidateEmail checks basic email format
func ValidateEmail(email string) error {
	if len(email) > 254 {
		return fmt.Errorf("email must not exceed 254 characters")
	}
	if !emailRegex.MatchString(email) {
		return fmt.Errorf("invalid email format")
	}
	return nil
}

// ValidateName checks a required display name or label.
func ValidateName(field, value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("%s is required", field)
	}
	if utf8.RuneCountInString(value) > MaxNameLength {
		return fmt.Errorf("%s must not exceed %d characters", field, MaxNameLength)
	}
	return nil
}

// ValidateText checks a required body of at least minLen characters.
func ValidateText(field, value string, minLen int) error {
	n := utf8.RuneCountInString(strings.TrimSpace(value))
	if n == 0 {
		return fmt.Errorf("%s is required", field)
	}
	if n < minLen {
		return fmt.Errorf("%s must be at least %d characters", field, minLen)
	}
	return nil
}

// ValidateSlug checks an explicit slug; derived slugs never need it.
func ValidateSlug(slug string) error {
	if utf8.RuneCountInString(slug) > MaxNameLength {
		return fmt.Errorf("slug must not exceed %d characters", MaxNameLength)
	}
	if !slugRegex.MatchString(slug) {
		return fmt.Errorf("slug may only contain lowercase letters, numbers and single hyphens")
	}
	return nil
}

var slugRegex = regexp.MustCompile(`^[a-z0-9]+(-[a-z0-9]+)*$`)
