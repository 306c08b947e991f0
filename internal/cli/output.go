package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/goccy/go-json"

	"github.com/roach88/archetype/internal/engine"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // Successful execution
	ExitFailure      = 1 // Operation or test failure (validation, not found, scenarios failed)
	ExitCommandError = 2 // Command error (bad input, invalid config, database unavailable)
)

// Error codes reported in CLIError.Code.
const (
	errorCodeNotFound   = "E_NOT_FOUND"
	errorCodeValidation = "E_VALIDATION"
	errorCodeConflict   = "E_CONFLICT"
	errorCodeInternal   = "E_INTERNAL"
	errorCodeInput      = "E_INPUT"
	errorCodeConfig     = "E_CONFIG"
)

var (
	keyColor = color.New(color.FgCyan).SprintFunc()
	dimColor = color.New(color.Faint).SprintFunc()
)

func okMark() string   { return color.New(color.FgGreen).Sprint("✓") }
func failMark() string { return color.New(color.FgRed).Sprint("✗") }

// ExitError represents an error with a specific exit code.
// Use this to return errors with meaningful exit codes from CLI commands.
type ExitError struct {
	Code    int    // Exit code (use ExitFailure or ExitCommandError)
	Message string // Error message
	Err     error  // Underlying error (optional)
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// NewExitError creates a new ExitError with the given code and message.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError wraps an existing error with an exit code.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode extracts the exit code from an error.
// Returns ExitFailure (1) if the error is not an ExitError.
func GetExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// classify maps an engine error to its CLI error code and exit code.
func classify(err error) (string, int) {
	switch engine.KindOf(err) {
	case engine.KindNotFound:
		return errorCodeNotFound, ExitFailure
	case engine.KindValidation:
		return errorCodeValidation, ExitFailure
	case engine.KindConflict:
		return errorCodeConflict, ExitFailure
	default:
		return errorCodeInternal, ExitCommandError
	}
}

// OutputFormatter handles JSON vs text output for CLI commands.
type OutputFormatter struct {
	Format    string
	Writer    io.Writer
	ErrWriter io.Writer // Separate writer for verbose/diagnostic output (defaults to Writer)
	Verbose   bool
}

// CLIResponse is the standard JSON response format for CLI output.
type CLIResponse struct {
	Status string    `json:"status"`          // "ok" or "error"
	Data   any       `json:"data,omitempty"`  // success payload
	Error  *CLIError `json:"error,omitempty"` // error details
}

// CLIError is the error structure for CLI responses.
type CLIError struct {
	Code    string `json:"code"`              // "E_NOT_FOUND", "E_VALIDATION", etc.
	Message string `json:"message"`           // human-readable message
	Details any    `json:"details,omitempty"` // additional context
}

// Success outputs a successful result in the configured format.
func (f *OutputFormatter) Success(data any) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "ok",
			Data:   data,
		})
	}

	// Human-readable text output
	fmt.Fprintln(f.Writer, data)
	return nil
}

// Render outputs data as JSON, or calls text in text mode.
func (f *OutputFormatter) Render(data any, text func(w io.Writer)) error {
	if f.Format == "json" {
		return f.Success(data)
	}
	text(f.Writer)
	return nil
}

// Error outputs an error in the configured format.
func (f *OutputFormatter) Error(code, message string, details any) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "error",
			Error: &CLIError{
				Code:    code,
				Message: message,
				Details: details,
			},
		})
	}

	// Human-readable error
	fmt.Fprintf(f.Writer, "%s Error [%s]: %s\n", failMark(), code, message)
	if f.Verbose && details != nil {
		fmt.Fprintf(f.Writer, "Details: %v\n", details)
	}
	return nil
}

// Fail reports an engine error and returns the matching ExitError.
// A field named by the error is passed along as details.
func (f *OutputFormatter) Fail(err error) error {
	code, exit := classify(err)

	var details any
	var engErr *engine.Error
	if errors.As(err, &engErr) && engErr.Field != "" {
		details = map[string]string{"field": engErr.Field}
	}
	_ = f.Error(code, err.Error(), details)
	return WrapExitError(exit, code, err)
}

// BadInput reports a malformed argument and returns a command error.
func (f *OutputFormatter) BadInput(format string, args ...any) error {
	msg := fmt.Sprintf(format, args...)
	_ = f.Error(errorCodeInput, msg, nil)
	return NewExitError(ExitCommandError, msg)
}

// Done prints a check-marked line in text mode.
func (f *OutputFormatter) Done(format string, args ...any) {
	fmt.Fprintf(f.Writer, "%s %s\n", okMark(), fmt.Sprintf(format, args...))
}

// VerboseLog outputs a message only if verbose mode is enabled.
// Uses ErrWriter if set, otherwise falls back to Writer.
// When format is JSON, verbose logs go to ErrWriter to avoid corrupting JSON output.
func (f *OutputFormatter) VerboseLog(format string, args ...any) {
	if !f.Verbose {
		return
	}
	fmt.Fprintf(f.GetErrWriter(), format+"\n", args...)
}

// GetErrWriter returns the appropriate writer for diagnostic output.
// Returns ErrWriter if set, otherwise Writer.
func (f *OutputFormatter) GetErrWriter() io.Writer {
	if f.ErrWriter != nil {
		return f.ErrWriter
	}
	return f.Writer
}
