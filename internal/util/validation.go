package util

import (
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
)

var (
	// ErrInvalidID is returned when a value is not a well-formed UUID.
	ErrInvalidID = errors.New("invalid identifier")
	// ErrInvalidEmail is returned when an email address cannot be parsed.
	ErrInvalidEmail = errors.New("invalid email address")
	// ErrEmptyField indicates a required field was blank.
	ErrEmptyField = errors.New("field is empty")
	// ErrTooLong indicates a field exceeded its configured maximum length.
	ErrTooLong = errors.New("field exceeds maximum length")
)

// ParseID parses and validates an entity identifier. Identifiers are UUIDs
// in their canonical textual form.
func ParseID(value string) (string, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return "", fmt.Errorf("%w: value is empty", ErrInvalidID)
	}

	u, err := uuid.Parse(trimmed)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidID, err)
	}

	return u.String(), nil
}

// NormalizeEmail validates and normalizes an email address. The returned
// value is lowercased and stripped of surrounding whitespace.
func NormalizeEmail(value string) (string, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return "", fmt.Errorf("%w: value is empty", ErrInvalidEmail)
	}

	addr, err := mail.ParseAddress(trimmed)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidEmail, err)
	}

	// Disallow display names to keep stored addresses deterministic.
	if addr.Name != "" || addr.Address != trimmed {
		return "", fmt.Errorf("%w: must be a bare address", ErrInvalidEmail)
	}

	return strings.ToLower(addr.Address), nil
}

// RequireNonEmpty verifies the value contains at least one non-space rune.
func RequireNonEmpty(value string) error {
	if strings.TrimSpace(value) == "" {
		return ErrEmptyField
	}
	return nil
}

// RequireMaxLen verifies the value does not exceed max runes. A max of zero
// disables the check.
func RequireMaxLen(value string, max int) error {
	if max <= 0 {
		return nil
	}
	if n := utf8.RuneCountInString(value); n > max {
		return fmt.Errorf("%w: got %d runes, limit %d", ErrTooLong, n, max)
	}
	return nil
}
