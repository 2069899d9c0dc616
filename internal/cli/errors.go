package cli

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/roach88/sirad/internal/ir"
	"github.com/roach88/sirad/internal/layout"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // Successful execution
	ExitFailure      = 1 // Build or scenario failure
	ExitCommandError = 2 // Bad config, missing layout, table or store
)

// ExitError represents an error with a specific exit code.
// Use this to return errors with meaningful exit codes from CLI commands.
type ExitError struct {
	Code    int    // Exit code (use ExitFailure or ExitCommandError)
	Message string // Error message
	Err     error  // Underlying error (optional)

	// Reported is set when the command already wrote the error to its output.
	Reported bool
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

// stageError wraps a failed stage with the exit code its cause calls for:
// configuration problems are command errors, anything else is a failure.
func stageError(message string, err error) *ExitError {
	if ir.IsConfigError(err) {
		return WrapExitError(ExitCommandError, message, err)
	}
	var lerr *layout.CompileError
	if errors.As(err, &lerr) || errors.Is(err, fs.ErrNotExist) {
		return WrapExitError(ExitCommandError, message, err)
	}
	return WrapExitError(ExitFailure, message, err)
}

// errorCode names err for CLIError.Code.
func errorCode(err error) string {
	var cerr *ir.ConfigError
	var lerr *layout.CompileError
	switch {
	case errors.As(err, &cerr):
		return string(cerr.Code)
	case errors.As(err, &lerr):
		return "LAYOUT"
	case GetExitCode(err) == ExitCommandError:
		return "CONFIG"
	default:
		return "FAILED"
	}
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
