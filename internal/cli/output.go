package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/roach88/formforge/internal/builder"
	"github.com/roach88/formforge/internal/reconcile"
	"github.com/roach88/formforge/internal/schema"
	"github.com/roach88/formforge/internal/session"
	"github.com/roach88/formforge/internal/store"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // Successful execution
	ExitFailure      = 1 // The operation ran and failed (unresolved reference, table collision, ...)
	ExitCommandError = 2 // Command error (bad arguments, unreadable config, database unavailable)
)

// Error codes reported in CLIError.Code.
const (
	ErrCodeGeneric   = "E000"
	ErrCodeUsage     = "E001"
	ErrCodeNotFound  = "E002"
	ErrCodeReference = "E003"
	ErrCodeAttribute = "E004"
	ErrCodeCollision = "E005"
	ErrCodeConflict  = "E006"
)

// ExitError carries the exit code a failed command should terminate with.
type ExitError struct {
	Code    int // ExitFailure or ExitCommandError
	Message string
	Err     error // optional
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

// ExitCode extracts the exit code from an error. Errors that are not
// ExitErrors come from cobra's argument and flag handling, so they are
// command errors.
func ExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitCommandError
}

// errorCode maps an error to the code reported in CLIError.
func errorCode(err error, exitCode int) string {
	var rerr *reconcile.Error
	switch {
	case errors.Is(err, store.ErrNotFound), errors.Is(err, builder.ErrSessionNotFound):
		return ErrCodeNotFound
	case errors.As(err, &rerr):
		if rerr.Code == reconcile.ErrCodeUnresolvedReference {
			return ErrCodeReference
		}
		return ErrCodeAttribute
	case errors.Is(err, schema.ErrTableCollision):
		return ErrCodeCollision
	case errors.Is(err, session.ErrConflict):
		return ErrCodeConflict
	case exitCode == ExitCommandError:
		return ErrCodeUsage
	}
	return ErrCodeGeneric
}

// ReconcileDetails locates a reconciliation failure in the session.
type ReconcileDetails struct {
	Entity    string `json:"entity"`
	Key       string `json:"key"`
	Attribute string `json:"attribute,omitempty"`
}

func (d ReconcileDetails) String() string {
	if d.Attribute == "" {
		return d.Entity + " " + d.Key
	}
	return d.Entity + " " + d.Key + " " + d.Attribute
}

func errorDetails(err error) any {
	var rerr *reconcile.Error
	if errors.As(err, &rerr) {
		return ReconcileDetails{Entity: rerr.Entity, Key: rerr.Key, Attribute: rerr.Detail}
	}
	return nil
}

// OutputFormatter writes command results as JSON or text.
type OutputFormatter struct {
	Format    string
	Writer    io.Writer
	ErrWriter io.Writer // diagnostics; defaults to Writer
	Verbose   bool
}

// CLIResponse is the JSON envelope of every command result.
type CLIResponse struct {
	Status string    `json:"status"`          // "ok" or "error"
	Data   any       `json:"data,omitempty"`  // success payload
	Error  *CLIError `json:"error,omitempty"` // error details
}

// CLIError is the error structure for CLI responses.
type CLIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// Success outputs a successful result. In text mode data is printed with
// fmt, so result types implement fmt.Stringer for their human form.
func (f *OutputFormatter) Success(data any) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "ok",
			Data:   data,
		})
	}

	fmt.Fprintln(f.Writer, data)
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

	fmt.Fprintf(f.Writer, "Error [%s]: %s\n", code, message)
	if f.Verbose && details != nil {
		fmt.Fprintf(f.Writer, "Details: %v\n", details)
	}
	return nil
}

// Fail reports err in the configured format and returns the exit code the
// process should end with.
func (f *OutputFormatter) Fail(err error) int {
	code := ExitCode(err)
	_ = f.Error(errorCode(err, code), err.Error(), errorDetails(err))
	return code
}

// VerboseLog writes to ErrWriter in verbose mode only, so JSON output on
// Writer stays parseable.
func (f *OutputFormatter) VerboseLog(format string, args ...any) {
	if !f.Verbose {
		return
	}
	fmt.Fprintf(f.GetErrWriter(), format+"\n", args...)
}

// GetErrWriter returns ErrWriter if set, otherwise Writer.
func (f *OutputFormatter) GetErrWriter() io.Writer {
	if f.ErrWriter != nil {
		return f.ErrWriter
	}
	return f.Writer
}
