// Package ui decides how CLI output is decorated for the current terminal.
package ui

import (
	"os"

	"golang.org/x/term"
)

// EnvNoEmoji disables emoji prefixes when set.
const EnvNoEmoji = "TASKMUX_NO_EMOJI"

// IsTerminal returns true if stdout is connected to a terminal (TTY).
func IsTerminal() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

// ShouldUseColor determines if ANSI color codes should be used.
// Respects NO_COLOR (https://no-color.org/), CLICOLOR, and CLICOLOR_FORCE conventions.
func ShouldUseColor() bool {
	if _, exists := os.LookupEnv("NO_COLOR"); exists {
		return false
	}
	if os.Getenv("CLICOLOR") == "0" {
		return false
	}
	if _, exists := os.LookupEnv("CLICOLOR_FORCE"); exists {
		return true
	}
	return IsTerminal()
}

// ShouldUseEmoji determines if emoji prefixes should be used.
// Disabled in non-TTY mode to keep output machine-readable.
func ShouldUseEmoji() bool {
	if _, exists := os.LookupEnv(EnvNoEmoji); exists {
		return false
	}
	return IsTerminal()
}

// Width returns the terminal width, or fallback when stdout is not a terminal.
func Width(fallback int) int {
	w, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || w <= 0 {
		return fallback
	}
	return w
}
