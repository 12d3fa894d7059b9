package record

import (
	"errors"
	"fmt"
	"unicode/utf8"
)

// ValidationError reports malformed input. It is returned synchronously and
// guarantees that nothing was written.
type ValidationError struct {
	// Field names the offending field ("amount", "type", ...).
	Field string

	// Message is the caller-facing description, e.g. "Invalid amount".
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return e.Message
}

// NewValidationError creates a ValidationError for field.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// IsValidation returns true if err is or wraps a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// Validate checks required fields and enumerations. It does not apply
// defaults: a record reaching the store must already be complete.
func Validate(r Record) error {
	if r.ID == "" {
		return NewValidationError("id", "Missing id")
	}
	if utf8.RuneCountInString(r.ID) > MaxIDLength {
		return NewValidationError("id", fmt.Sprintf("Invalid id: longer than %d characters", MaxIDLength))
	}
	return ValidateContent(r)
}

// ValidateContent runs every check of Validate except those on the id.
func ValidateContent(r Record) error {
	if r.Amount.IsNegative() {
		return NewValidationError("amount", "Invalid amount")
	}
	if !r.Type.Valid() {
		return NewValidationError("type", fmt.Sprintf("Invalid type %q: must be income or expense", r.Type))
	}
	if r.Merchant == "" {
		return NewValidationError("merchant", "Missing merchant")
	}
	if r.Category == "" {
		return NewValidationError("category", "Missing category")
	}
	if r.Date.IsZero() {
		return NewValidationError("date", "Missing date")
	}
	if r.UpdatedAt.IsZero() {
		return NewValidationError("updated_at", "Missing updated_at")
	}
	return nil
}
