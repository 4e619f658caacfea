// Package validation checks FEM record fields before they reach the store.
// Errors are sentinel values so handlers can map them to field-level 400
// responses.
package validation

import (
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"unicode"
)

// ErrNameEmpty is returned when name is empty or whitespace-only after trim.
var ErrNameEmpty = errors.New("name is required")

// ErrNameTooLong is returned when name length exceeds the maximum.
var ErrNameTooLong = errors.New("name too long")

// ErrNameInvalidChars is returned when name contains disallowed characters.
var ErrNameInvalidChars = errors.New("name contains invalid characters")

// ErrEmailInvalid is returned when email does not parse as an address.
var ErrEmailInvalid = errors.New("email is invalid")

// ErrEmailTooLong is returned when email exceeds the maximum length.
var ErrEmailTooLong = errors.New("email too long")

// ErrMessageTooLong is returned when message length exceeds the maximum.
var ErrMessageTooLong = errors.New("message too long")

// ErrMessageInvalidChars is returned when message contains control characters.
var ErrMessageInvalidChars = errors.New("message contains invalid characters")

const (
	maxNameRunes    = 120
	maxEmailChars   = 254
	maxMessageRunes = 2000
)

// FieldError pairs a validation failure with the record field it applies to,
// for 400 INVALID_RECORD responses.
type FieldError struct {
	Field string
	Err   error
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s: %v", e.Field, e.Err)
}

func (e *FieldError) Unwrap() error {
	return e.Err
}

// ValidateName trims the input and enforces 1..120 runes restricted to
// letters (Unicode), digits, space, comma, period, hyphen, apostrophe.
// Returns the trimmed string.
func ValidateName(input string) (string, error) {
	s := strings.TrimSpace(input)
	r := []rune(s)
	n := len(r)
	if n == 0 {
		return "", &FieldError{Field: "name", Err: ErrNameEmpty}
	}
	if n > maxNameRunes {
		return "", &FieldError{Field: "name", Err: ErrNameTooLong}
	}
	for _, c := range r {
		if !isAllowedNameRune(c) {
			return "", &FieldError{Field: "name", Err: ErrNameInvalidChars}
		}
	}
	return s, nil
}

// ValidateEmail trims the input and parses it as a single RFC 5322 address.
// Display names are rejected. Returns the trimmed address.
func ValidateEmail(input string) (string, error) {
	s := strings.TrimSpace(input)
	if len(s) > maxEmailChars {
		return "", &FieldError{Field: "email", Err: ErrEmailTooLong}
	}
	addr, err := mail.ParseAddress(s)
	if err != nil || addr.Name != "" || addr.Address != s {
		return "", &FieldError{Field: "email", Err: ErrEmailInvalid}
	}
	return s, nil
}

// ValidateMessage enforces at most 2000 runes with no control characters
// except newline and tab. Empty messages are allowed. Returns the input
// unchanged; messages keep their leading and trailing whitespace.
func ValidateMessage(input string) (string, error) {
	r := []rune(input)
	if len(r) > maxMessageRunes {
		return "", &FieldError{Field: "message", Err: ErrMessageTooLong}
	}
	for _, c := range r {
		if unicode.IsControl(c) && c != '\n' && c != '\t' {
			return "", &FieldError{Field: "message", Err: ErrMessageInvalidChars}
		}
	}
	return input, nil
}

// isAllowedNameRune returns true for letters (Unicode), digits, space, comma,
// period, hyphen, apostrophe.
func isAllowedNameRune(r rune) bool {
	if unicode.IsLetter(r) || unicode.IsNumber(r) {
		return true
	}
	switch r {
	case ' ', ',', '.', '-', '\'':
		return true
	}
	return false
}
