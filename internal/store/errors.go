package store

import (
	"errors"
	"strings"

	"gorm.io/gorm"
)

// Sentinel errors for the messaging store. Callers match with errors.Is;
// wrapped variants carry the offending detail.
var (
	// ErrValidation rejects malformed input, e.g. empty message content.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound reports a missing conversation, message or user.
	ErrNotFound = errors.New("not found")

	// ErrInvalidTransition rejects a delivery-status change that does not
	// move forward in the sent -> delivered -> read order.
	ErrInvalidTransition = errors.New("invalid status transition")
)

// isDuplicateKey reports whether err is a unique-constraint violation.
// GORM translates these to ErrDuplicatedKey on recent driver versions, but
// MySQL and SQLite can still surface raw driver errors, so the message is
// sniffed as a fallback.
func isDuplicateKey(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "Duplicate entry") ||
		strings.Contains(msg, "UNIQUE constraint failed")
}
