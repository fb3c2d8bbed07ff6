package orchestrator

import (
	"errors"
	"fmt"
)

// Sentinel kinds returned (wrapped in *OpError) by Manager operations.
var (
	ErrTaskNotFound     = errors.New("task not found in config")
	ErrAlreadyRunning   = errors.New("task already running")
	ErrNotRunning       = errors.New("task not running")
	ErrNoSession        = errors.New("session doesn't exist")
	ErrSessionExists    = errors.New("session already exists")
	ErrNoAutoStartTasks = errors.New("no auto-start tasks defined")
	ErrHookFailed       = errors.New("before_start hook failed")
)

// OpError is returned by every Manager operation that fails.
type OpError struct {
	Op   string // start, stop, restart, kill, start-all, ...
	Task string // empty for group operations
	Err  error

	msg string
}

func (e *OpError) Error() string {
	if e.msg != "" {
		return e.msg
	}
	if e.Task != "" {
		return fmt.Sprintf("%s %s: %v", e.Op, e.Task, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *OpError) Unwrap() error {
	return e.Err
}

func opErr(op, task string, err error) *OpError {
	return &OpError{Op: op, Task: task, Err: err}
}

func notFound(op, task string) *OpError {
	return &OpError{Op: op, Task: task, Err: ErrTaskNotFound,
		msg: fmt.Sprintf("task '%s' not found in config", task)}
}

func alreadyRunning(op, task string) *OpError {
	return &OpError{Op: op, Task: task, Err: ErrAlreadyRunning,
		msg: fmt.Sprintf("task '%s' already running", task)}
}

func notRunning(op, task string) *OpError {
	return &OpError{Op: op, Task: task, Err: ErrNotRunning,
		msg: fmt.Sprintf("task '%s' not running", task)}
}

func noSession(op, task, session string) *OpError {
	return &OpError{Op: op, Task: task, Err: ErrNoSession,
		msg: fmt.Sprintf("session '%s' doesn't exist", session)}
}

func sessionExists(op, session string) *OpError {
	return &OpError{Op: op, Err: ErrSessionExists,
		msg: fmt.Sprintf("session '%s' already exists", session)}
}

func hookFailed(op, task string) *OpError {
	msg := "before_start hook failed, aborting start"
	if task != "" {
		msg = fmt.Sprintf("before_start hook failed for '%s', aborting", task)
	}
	return &OpError{Op: op, Task: task, Err: ErrHookFailed, msg: msg}
}

// IsNoop reports whether err means the operation had nothing to do. Callers
// print the message and carry on instead of treating it as a failure.
func IsNoop(err error) bool {
	for _, kind := range []error{
		ErrTaskNotFound, ErrAlreadyRunning, ErrNotRunning,
		ErrNoSession, ErrSessionExists, ErrNoAutoStartTasks,
	} {
		if errors.Is(err, kind) {
			return true
		}
	}
	return false
}
