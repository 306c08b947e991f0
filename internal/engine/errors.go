package engine

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/roach88/archetype/internal/ir"
	"github.com/roach88/archetype/internal/validate"
)

// Storage contract errors, re-exported for callers that only import engine.
var (
	ErrNotFound        = ir.ErrNotFound
	ErrVersionConflict = ir.ErrVersionConflict
)

// ErrorKind categorizes engine errors for the boundary layer.
type ErrorKind string

const (
	// KindNotFound indicates a missing scheme, entry, field or upload.
	KindNotFound ErrorKind = "NOT_FOUND"

	// KindValidation indicates data or a definition that breaks the rules.
	KindValidation ErrorKind = "VALIDATION"

	// KindConflict indicates a field key collision.
	KindConflict ErrorKind = "CONFLICT"

	// KindInternal indicates a storage or infrastructure failure.
	KindInternal ErrorKind = "INTERNAL"
)

// Error is the typed error returned by every engine operation.
//
// Field names the offending field key when there is one. Err keeps the
// underlying cause for errors.Is/errors.As; for KindInternal it is never
// part of the message.
type Error struct {
	Kind    ErrorKind
	Field   string
	Message string
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s (field=%s)", e.Kind, e.Message, e.Field)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap returns the cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// NewNotFoundError creates a KindNotFound error for a missing record.
func NewNotFoundError(what string, id any) *Error {
	return &Error{
		Kind:    KindNotFound,
		Message: fmt.Sprintf("%s %v not found", what, id),
		Err:     ir.ErrNotFound,
	}
}

// NewValidationError creates a KindValidation error naming field.
func NewValidationError(field, message string) *Error {
	return &Error{Kind: KindValidation, Field: field, Message: message}
}

// NewConflictError creates a KindConflict error naming field.
func NewConflictError(field, message string) *Error {
	return &Error{Kind: KindConflict, Field: field, Message: message}
}

// KindOf returns the kind of err, or KindInternal for foreign errors.
// Uses errors.As to handle wrapped errors.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// IsNotFound returns true if err is a KindNotFound error.
func IsNotFound(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == KindNotFound
}

// IsValidation returns true if err is a KindValidation error.
func IsValidation(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == KindValidation
}

// IsConflict returns true if err is a KindConflict error.
func IsConflict(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == KindConflict
}

// HTTPStatus maps an error to the status a transport layer should send:
// NotFound→404, Validation and Conflict→400, anything else→500.
func HTTPStatus(err error) int {
	if err == nil {
		return http.StatusOK
	}
	switch KindOf(err) {
	case KindNotFound:
		return http.StatusNotFound
	case KindValidation, KindConflict:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// fromValidation converts validator and definition failures to *Error.
// Other errors are returned unchanged.
func fromValidation(err error) error {
	var ve *validate.ValidationError
	if errors.As(err, &ve) {
		return &Error{Kind: KindValidation, Field: ve.Field, Message: ve.Message, Err: ve}
	}
	var de *ir.DefinitionError
	if errors.As(err, &de) {
		return &Error{Kind: KindValidation, Field: de.Field, Message: de.Message, Err: de}
	}
	return err
}
