package taskgraph

import (
	"errors"
	"fmt"
)

// Sentinel kinds for graph validation failures. Use errors.Is to match.
var (
	ErrUnknownDependency = errors.New("unknown dependency")
	ErrSelfDependency    = errors.New("self dependency")
	ErrCycle             = errors.New("dependency cycle")
	ErrDuplicateTask     = errors.New("duplicate task")
	ErrInvalidTask       = errors.New("invalid task")
)

// ValidationError describes why a set of tasks does not form a valid graph.
type ValidationError struct {
	Kind error
	Task string
	Msg  string
}

func (e *ValidationError) Error() string {
	return e.Msg
}

func (e *ValidationError) Unwrap() error {
	return e.Kind
}

func invalid(kind error, task, format string, args ...any) *ValidationError {
	return &ValidationError{Kind: kind, Task: task, Msg: fmt.Sprintf(format, args...)}
}

// CycleError is returned by the scheduler when a subset cannot be fully ordered.
type CycleError struct {
	Ordered   []string // prefix that could be ordered
	Remaining []string // names left with unresolved in-degree, in subset order
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("dependency cycle detected among %v", e.Remaining)
}

func (e *CycleError) Unwrap() error {
	return ErrCycle
}
