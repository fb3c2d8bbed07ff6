// Package session defines the terminal host that task processes run in.
// The primary implementation is tmux; Double is an in-memory fake for tests.
//
// A project maps to one session. Each task runs in its own window, named
// after the task, with a single pane.
package session

import "errors"

// PaneID identifies a pane at the interface level (tmux pane ids look like "%3").
type PaneID string

// Pane describes the pane that hosts a task.
type Pane struct {
	ID          PaneID
	Window      string // window name, equal to the task name
	WindowID    string
	WindowIndex int
	Command     string // current foreground command
	PID         int
	Path        string // current working directory
	Dead        bool
}

// Errors shared by Host implementations.
var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionExists   = errors.New("session already exists")
	ErrPaneNotFound    = errors.New("pane not found")
)

// Host is the terminal host interface the orchestrator drives.
//
// CreatePane reuses the session's placeholder window exactly once: when the
// session still has a single window named after an idle shell, that window is
// renamed to the task and the command is run there instead of opening a new one.
type Host interface {
	// Sessions
	SessionExists(session string) (bool, error)
	CreateSession(session, dir string) error
	DestroySession(session string) error

	// Panes
	ListPanes(session string) ([]Pane, error)
	FindPane(session, task string) (Pane, bool, error)
	CreatePane(session, task, command, dir string) (Pane, error)
	DestroyPane(pane PaneID) error

	// Communication
	SendKeys(pane PaneID, text string, submit bool) error
	SendInterrupt(pane PaneID) error

	// Observation
	Capture(pane PaneID, lines int) ([]string, error)
	ForegroundCommand(pane PaneID) (string, error)
}

// placeholderShells are window names tmux assigns to a fresh session's
// first window via automatic-rename.
var placeholderShells = map[string]bool{
	"bash": true, "zsh": true, "sh": true, "fish": true,
}

// IsPlaceholderWindow reports whether a window name marks an unused
// first window that CreatePane may take over.
func IsPlaceholderWindow(name string) bool {
	return placeholderShells[name]
}
