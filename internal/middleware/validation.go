package middleware

import (
	"errors"
	"unicode/utf8"
)

// maxEventIDLength bounds event ids accepted from callers.
const maxEventIDLength = 128

// ValidateEventID validates an event id supplied by a caller.
func ValidateEventID(id string) error {
	if id == "" {
		return errors.New("event_id is required")
	}
	if len(id) > maxEventIDLength {
		return errors.New("event_id exceeds maximum length")
	}
	if !utf8.ValidString(id) {
		return errors.New("event_id must be valid UTF-8")
	}
	return nil
}
