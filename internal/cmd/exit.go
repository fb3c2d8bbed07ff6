package cmd

import (
	"errors"
	"fmt"
)

// SilentExitError signals an exit code without printing anything more.
// Used by commands that already reported the problem themselves.
type SilentExitError struct {
	Code int
}

func (e *SilentExitError) Error() string {
	return fmt.Sprintf("exit %d", e.Code)
}

// NewSilentExit creates a SilentExitError with the given code.
func NewSilentExit(code int) *SilentExitError {
	return &SilentExitError{Code: code}
}

// IsSilentExit reports whether err asks for a silent exit, and with which code.
func IsSilentExit(err error) (int, bool) {
	var se *SilentExitError
	if errors.As(err, &se) {
		return se.Code, true
	}
	return 0, false
}
