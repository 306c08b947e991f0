package validate

import "fmt"

// Validation error codes.
const (
	CodeUnknownKey       = "unknown_key"       // key not defined by the scheme
	CodeRequired         = "required"          // missing, null or empty string
	CodeInvalidType      = "invalid_type"      // wrong JSON type for the field
	CodeTooShort         = "too_short"         // below min-char or min-length
	CodeTooLong          = "too_long"          // above max-char or max-length
	CodeTooSmall         = "too_small"         // below min-value or min-size
	CodeTooBig           = "too_big"           // above max-value or max-size
	CodePattern          = "pattern"           // pattern did not match
	CodeInvalidFormat    = "invalid_format"    // format check failed
	CodeStep             = "step"              // value off the step grid
	CodeInvalidEnum      = "invalid_enum"      // value not in enum
	CodeInvalidReference = "invalid_reference" // referenced entry or upload unusable
)

// ValidationError describes the first rule a document broke.
type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("[%s] %s", e.Code, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

func fieldErr(field, code, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Code: code, Message: fmt.Sprintf(format, args...)}
}
