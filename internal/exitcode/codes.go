// Package exitcode defines structured exit codes for taskmux commands so
// scripts can react to specific failures without parsing messages.
//
// # Exit Code Ranges
//
//   - 0: Success
//   - 1-9: General errors (usage, config)
//   - 10-19: Resource not found (task, session)
//   - 40-49: Timeout errors
//   - 50-59: Conflict/state errors
//
// Extract codes from errors (works with wrapped errors):
//
//	code := exitcode.Code(err)  // ErrGeneral for non-coded errors
package exitcode

import (
	"errors"
	"fmt"

	"github.com/nc9/taskmux/internal/orchestrator"
	"github.com/nc9/taskmux/internal/taskgraph"
)

const (
	// Success indicates the command completed successfully.
	Success = 0

	// General errors (1-9)
	ErrGeneral = 1 // General/unknown error
	ErrUsage   = 2 // Invalid arguments or usage
	ErrConfig  = 3 // Invalid project file or task graph

	// Resource not found (10-19)
	ErrTaskNotFound    = 10 // Task not defined in the project file
	ErrSessionNotFound = 11 // Terminal session does not exist
	ErrNotRunning      = 12 // Task has no pane

	// Timeout errors (40-49)
	ErrTimeout = 40 // Operation timed out

	// Conflict/state errors (50-59)
	ErrAlreadyRunning = 50 // Task or session already running
	ErrHookFailed     = 51 // A before hook aborted the operation
	ErrDaemonRunning  = 52 // Another daemon holds the session lock
)

// Error wraps an error with a specific exit code.
type Error struct {
	Code    int
	Message string
	Cause   error
}

// Error returns the error message.
func (e *Error) Error() string {
	if e.Cause != nil {
		if e.Message == "" {
			return e.Cause.Error()
		}
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// New creates a new coded error.
func New(code int, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf creates a new coded error with printf-style formatting.
func Newf(code int, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap wraps an existing error with a code and message.
func Wrap(code int, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

// Code extracts the exit code from an error. Coded errors win; orchestrator
// and task graph errors map to their category; anything else is ErrGeneral.
func Code(err error) int {
	if err == nil {
		return Success
	}
	var coded *Error
	if errors.As(err, &coded) {
		return coded.Code
	}
	var invalid *taskgraph.ValidationError
	if errors.As(err, &invalid) {
		return ErrConfig
	}
	switch {
	case errors.Is(err, orchestrator.ErrTaskNotFound):
		return ErrTaskNotFound
	case errors.Is(err, orchestrator.ErrNoSession):
		return ErrSessionNotFound
	case errors.Is(err, orchestrator.ErrNotRunning):
		return ErrNotRunning
	case errors.Is(err, orchestrator.ErrAlreadyRunning), errors.Is(err, orchestrator.ErrSessionExists):
		return ErrAlreadyRunning
	case errors.Is(err, orchestrator.ErrHookFailed):
		return ErrHookFailed
	case errors.Is(err, orchestrator.ErrNoAutoStartTasks), errors.Is(err, taskgraph.ErrCycle):
		return ErrConfig
	}
	return ErrGeneral
}

// Is checks if an error has a specific exit code.
func Is(err error, code int) bool {
	return Code(err) == code
}

// TaskNotFound returns an error for a task missing from the project file.
func TaskNotFound(name string) *Error {
	return Newf(ErrTaskNotFound, "task '%s' not found in config", name)
}

// Config wraps a project file error.
func Config(cause error) *Error {
	return Wrap(ErrConfig, "", cause)
}

// Timeout returns a timeout error.
func Timeout(operation string) *Error {
	return Newf(ErrTimeout, "operation timed out: %s", operation)
}
