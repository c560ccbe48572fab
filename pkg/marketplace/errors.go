package marketplace

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
)

// Error types
var (
	// ErrNotFound indicates a record was not found
	ErrNotFound = errors.New("record not found")

	// ErrInvalidTransition indicates a moderation transition that is not allowed
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrNotModerated indicates a moderation call on an unmoderated entity
	ErrNotModerated = errors.New("entity is not moderated")

	// ErrForbidden indicates the actor may not perform the operation
	ErrForbidden = errors.New("forbidden")

	// ErrUploadFailed indicates an attachment could not be stored
	ErrUploadFailed = errors.New("upload failed")

	// ErrObjectTooLarge indicates an object exceeds the backend size ceiling
	ErrObjectTooLarge = errors.New("object too large")

	// ErrInvalidCSV indicates a CSV payload that cannot be parsed at all
	ErrInvalidCSV = errors.New("invalid csv")

	// ErrDuplicate indicates a unique constraint violation
	ErrDuplicate = errors.New("duplicate record")

	// ErrDeliveryFailed indicates a notification or code could not be delivered
	ErrDeliveryFailed = errors.New("delivery failed")
)

// FieldErrors maps a field name to the reason its value was rejected.
type FieldErrors map[string]string

// ValidationError reports every invalid field of one input.
type ValidationError struct {
	Fields FieldErrors
}

func (e *ValidationError) Error() string {
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, name+": "+e.Fields[name])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// clientMessage returns the text of err when the caller caused it. Other
// failures may carry backend detail and report false.
func clientMessage(err error) (string, bool) {
	var verr *ValidationError
	switch {
	case errors.As(err, &verr):
		return verr.Error(), true
	case errors.Is(err, ErrDuplicate):
		return ErrDuplicate.Error(), true
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrForbidden),
		errors.Is(err, ErrInvalidTransition), errors.Is(err, ErrNotModerated):
		return err.Error(), true
	}
	return "", false
}

// NewValidationError returns a ValidationError for a single field.
func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Fields: FieldErrors{field: reason}}
}

// RecordError represents an error related to an operation on one record
type RecordError struct {
	Entity string
	ID     uuid.UUID
	Op     string
	Err    error
}

func (e *RecordError) Error() string {
	return fmt.Sprintf("%s operation %s failed for %s: %v", e.Entity, e.Op, e.ID, e.Err)
}

func (e *RecordError) Unwrap() error {
	return e.Err
}

// StorageError represents an error related to storage operations
type StorageError struct {
	Backend string
	Key     string
	Op      string
	Err     error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage operation %s failed for key %s on backend %s: %v", e.Op, e.Key, e.Backend, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}
