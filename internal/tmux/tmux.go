// Package tmux drives the tmux CLI as the terminal host for taskmux sessions.
package tmux

import (
	"bytes"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/nc9/taskmux/internal/session"
	"github.com/nc9/taskmux/internal/shell"
)

// Common errors.
var (
	ErrNoServer        = errors.New("no tmux server running")
	ErrSessionExists   = session.ErrSessionExists
	ErrSessionNotFound = session.ErrSessionNotFound
	ErrPaneNotFound    = session.ErrPaneNotFound
)

// Tmux wraps tmux operations.
type Tmux struct {
	socket string // -L socket name, empty for the default server
	theme  string
}

// NewTmux creates a new Tmux wrapper on the default server.
func NewTmux() *Tmux {
	return &Tmux{}
}

// NewTmuxWithSocket creates a wrapper bound to a named server socket.
func NewTmuxWithSocket(socket string) *Tmux {
	return &Tmux{socket: socket}
}

// WithTheme sets the palette theme applied to sessions this wrapper creates.
// An unknown or empty name falls back to a theme hashed from the session name.
func (t *Tmux) WithTheme(name string) *Tmux {
	t.theme = name
	return t
}

var _ session.Host = (*Tmux)(nil)

// run executes a tmux command and returns stdout without trailing whitespace.
func (t *Tmux) run(args ...string) (string, error) {
	if t.socket != "" {
		args = append([]string{"-L", t.socket}, args...)
	}
	cmd := exec.Command("tmux", args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", t.wrapError(err, stderr.String(), args)
	}
	return strings.TrimRight(stdout.String(), " \t\r\n"), nil
}

// wrapError maps tmux stderr to sentinel errors.
func (t *Tmux) wrapError(err error, stderr string, args []string) error {
	stderr = strings.TrimSpace(stderr)

	switch {
	case strings.Contains(stderr, "no server running"),
		strings.Contains(stderr, "error connecting to"):
		return ErrNoServer
	case strings.Contains(stderr, "duplicate session"):
		return ErrSessionExists
	case strings.Contains(stderr, "can't find session"),
		strings.Contains(stderr, "session not found"):
		return ErrSessionNotFound
	case strings.Contains(stderr, "can't find pane"),
		strings.Contains(stderr, "can't find window"):
		return ErrPaneNotFound
	}

	if stderr != "" {
		return fmt.Errorf("tmux %s: %s", args[0], stderr)
	}
	return fmt.Errorf("tmux %s: %w", args[0], err)
}

// exact builds an exact-match session target; tmux otherwise prefix-matches.
func exact(session string) string {
	return "=" + session
}

// --- Sessions ---

// SessionExists checks for a session by exact name. A missing server is not an error.
func (t *Tmux) SessionExists(name string) (bool, error) {
	_, err := t.run("has-session", "-t", exact(name))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, ErrNoServer) || errors.Is(err, ErrSessionNotFound) {
		return false, nil
	}
	return false, err
}

// CreateSession creates a detached session and applies its status theme.
func (t *Tmux) CreateSession(name, dir string) error {
	args := []string{"new-session", "-d", "-s", name}
	if dir != "" {
		args = append(args, "-c", dir)
	}
	if _, err := t.run(args...); err != nil {
		return err
	}
	theme := ResolveTheme(name, t.theme)
	// Cosmetic; a failure here leaves a working session.
	_, _ = t.run("set-option", "-t", exact(name), "status-style", theme.Style())
	return nil
}

// DestroySession kills a session.
func (t *Tmux) DestroySession(name string) error {
	_, err := t.run("kill-session", "-t", exact(name))
	if errors.Is(err, ErrNoServer) {
		return ErrSessionNotFound
	}
	return err
}

// ListSessions returns all session names. No server means no sessions.
func (t *Tmux) ListSessions() ([]string, error) {
	out, err := t.run("list-sessions", "-F", "#{session_name}")
	if err != nil {
		if errors.Is(err, ErrNoServer) {
			return nil, nil
		}
		return nil, err
	}
	if out == "" {
		return nil, nil
	}
	return strings.Split(out, "\n"), nil
}

// --- Panes ---

const paneFormat = "#{pane_id}\t#{window_name}\t#{window_id}\t#{window_index}\t#{pane_current_command}\t#{pane_pid}\t#{pane_current_path}\t#{pane_dead}"

func parsePane(line string) (session.Pane, bool) {
	f := strings.Split(line, "\t")
	if len(f) != 8 {
		return session.Pane{}, false
	}
	idx, _ := strconv.Atoi(f[3])
	pid, _ := strconv.Atoi(f[5])
	return session.Pane{
		ID:          session.PaneID(f[0]),
		Window:      f[1],
		WindowID:    f[2],
		WindowIndex: idx,
		Command:     f[4],
		PID:         pid,
		Path:        f[6],
		Dead:        f[7] == "1",
	}, true
}

// ListPanes lists every pane in the session, in window order.
func (t *Tmux) ListPanes(name string) ([]session.Pane, error) {
	out, err := t.run("list-panes", "-s", "-t", exact(name), "-F", paneFormat)
	if err != nil {
		if errors.Is(err, ErrNoServer) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	var panes []session.Pane
	for _, line := range strings.Split(out, "\n") {
		if p, ok := parsePane(line); ok {
			panes = append(panes, p)
		}
	}
	return panes, nil
}

// FindPane returns the pane of the window named after task.
func (t *Tmux) FindPane(name, task string) (session.Pane, bool, error) {
	panes, err := t.ListPanes(name)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return session.Pane{}, false, nil
		}
		return session.Pane{}, false, err
	}
	for _, p := range panes {
		if p.Window == task {
			return p, true, nil
		}
	}
	return session.Pane{}, false, nil
}

// CreatePane opens a window for task and types command into its shell, so
// the pane survives the command exiting. The session's placeholder window is
// taken over instead when it is the only window.
func (t *Tmux) CreatePane(name, task, command, dir string) (session.Pane, error) {
	panes, err := t.ListPanes(name)
	if err != nil {
		return session.Pane{}, err
	}

	if len(panes) == 1 && session.IsPlaceholderWindow(panes[0].Window) {
		p := panes[0]
		if _, err := t.run("rename-window", "-t", string(p.ID), task); err != nil {
			return session.Pane{}, err
		}
		if dir != "" {
			if err := t.SendKeys(p.ID, "cd "+shell.Quote(dir), true); err != nil {
				return session.Pane{}, err
			}
		}
		if err := t.SendKeys(p.ID, command, true); err != nil {
			return session.Pane{}, err
		}
		p.Window = task
		return p, nil
	}

	args := []string{"new-window", "-d", "-t", exact(name) + ":", "-n", task, "-P", "-F", paneFormat}
	if dir != "" {
		args = append(args, "-c", dir)
	}
	out, err := t.run(args...)
	if err != nil {
		return session.Pane{}, err
	}
	p, ok := parsePane(out)
	if !ok {
		return session.Pane{}, fmt.Errorf("tmux new-window: unexpected output %q", out)
	}
	if err := t.SendKeys(p.ID, command, true); err != nil {
		return session.Pane{}, err
	}
	return p, nil
}

// DestroyPane kills a pane; its window goes with it.
func (t *Tmux) DestroyPane(id session.PaneID) error {
	_, err := t.run("kill-pane", "-t", string(id))
	return err
}

// --- Communication ---

// SendKeys types text literally, then presses Enter when submit is set.
func (t *Tmux) SendKeys(id session.PaneID, text string, submit bool) error {
	if text != "" {
		if _, err := t.run("send-keys", "-t", string(id), "-l", text); err != nil {
			return err
		}
	}
	if submit {
		_, err := t.run("send-keys", "-t", string(id), "Enter")
		return err
	}
	return nil
}

// SendInterrupt sends Ctrl-C to the pane.
func (t *Tmux) SendInterrupt(id session.PaneID) error {
	_, err := t.run("send-keys", "-t", string(id), "C-c")
	return err
}

// --- Observation ---

// Capture returns the last lines of a pane's scrollback, wrapped lines joined.
// lines <= 0 captures the whole history.
func (t *Tmux) Capture(id session.PaneID, lines int) ([]string, error) {
	start := "-"
	if lines > 0 {
		start = "-" + strconv.Itoa(lines)
	}
	out, err := t.run("capture-pane", "-p", "-J", "-t", string(id), "-S", start)
	if err != nil {
		return nil, err
	}
	result := strings.Split(out, "\n")
	if lines > 0 && len(result) > lines {
		result = result[len(result)-lines:]
	}
	return result, nil
}

// ForegroundCommand returns the pane's current foreground command.
func (t *Tmux) ForegroundCommand(id session.PaneID) (string, error) {
	return t.run("display-message", "-p", "-t", string(id), "#{pane_current_command}")
}
