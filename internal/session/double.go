package session

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/nc9/taskmux/internal/shell"
)

// Double is a FAKE with SPY capabilities for the Host interface.
//
//   - FAKE: working in-memory sessions, windows and panes (no tmux subprocess)
//   - SPY: records keys and interrupts sent to each pane
//
// Submitted commands become the pane's foreground command; an interrupt drops
// the pane back to its shell. Use the conformance suite to keep it honest.
type Double struct {
	mu       sync.RWMutex
	shell    string
	sessions map[string]*doubleSession
	panes    map[PaneID]*doublePane
	nextPane int
	nextWin  int
}

type doubleSession struct {
	name    string
	dir     string
	windows []*doublePane // one pane per window, in window-index order
}

type doublePane struct {
	session    string
	id         PaneID
	window     string
	windowID   string
	index      int
	path       string
	foreground string
	pid        int
	buffer     []string
	keys       []string
	interrupts int
}

// NewDouble creates an in-memory Host whose panes idle in bash.
func NewDouble() *Double {
	return NewDoubleWithShell("bash")
}

// NewDoubleWithShell creates an in-memory Host whose panes idle in shell.
func NewDoubleWithShell(shell string) *Double {
	return &Double{
		shell:    shell,
		sessions: make(map[string]*doubleSession),
		panes:    make(map[PaneID]*doublePane),
	}
}

var _ Host = (*Double)(nil)

// --- Sessions ---

func (d *Double) SessionExists(session string) (bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.sessions[session]
	return ok, nil
}

// CreateSession creates a session with one placeholder window named after the shell.
func (d *Double) CreateSession(session, dir string) error {
	if session == "" {
		return fmt.Errorf("session name cannot be empty")
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.sessions[session]; ok {
		return fmt.Errorf("%w: %s", ErrSessionExists, session)
	}
	s := &doubleSession{name: session, dir: dir}
	d.sessions[session] = s
	d.addWindowLocked(s, d.shell, dir)
	return nil
}

// DestroySession removes a session and all of its panes.
func (d *Double) DestroySession(session string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	s, ok := d.sessions[session]
	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, session)
	}
	for _, p := range s.windows {
		delete(d.panes, p.id)
	}
	delete(d.sessions, session)
	return nil
}

// --- Panes ---

func (d *Double) ListPanes(session string) ([]Pane, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	s, ok := d.sessions[session]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, session)
	}
	out := make([]Pane, 0, len(s.windows))
	for _, p := range s.windows {
		out = append(out, p.snapshot())
	}
	return out, nil
}

func (d *Double) FindPane(session, task string) (Pane, bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	s, ok := d.sessions[session]
	if !ok {
		return Pane{}, false, nil
	}
	for _, p := range s.windows {
		if p.window == task {
			return p.snapshot(), true, nil
		}
	}
	return Pane{}, false, nil
}

func (d *Double) CreatePane(session, task, command, dir string) (Pane, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	s, ok := d.sessions[session]
	if !ok {
		return Pane{}, fmt.Errorf("%w: %s", ErrSessionNotFound, session)
	}

	if len(s.windows) == 1 && IsPlaceholderWindow(s.windows[0].window) {
		p := s.windows[0]
		p.window = task
		if dir != "" {
			d.submitLocked(p, "cd "+shell.Quote(dir))
		}
		d.submitLocked(p, command)
		return p.snapshot(), nil
	}

	p := d.addWindowLocked(s, task, dir)
	d.submitLocked(p, command)
	return p.snapshot(), nil
}

func (d *Double) DestroyPane(id PaneID) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	p, ok := d.panes[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrPaneNotFound, id)
	}
	delete(d.panes, id)
	s := d.sessions[p.session]
	for i, w := range s.windows {
		if w.id == id {
			s.windows = append(s.windows[:i], s.windows[i+1:]...)
			break
		}
	}
	// tmux destroys a session when its last window goes away.
	if len(s.windows) == 0 {
		delete(d.sessions, s.name)
	}
	return nil
}

// --- Communication ---

func (d *Double) SendKeys(id PaneID, text string, submit bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	p, ok := d.panes[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrPaneNotFound, id)
	}
	if submit {
		d.submitLocked(p, text)
		return nil
	}
	p.keys = append(p.keys, text)
	return nil
}

func (d *Double) SendInterrupt(id PaneID) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	p, ok := d.panes[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrPaneNotFound, id)
	}
	p.interrupts++
	p.keys = append(p.keys, "C-c")
	p.foreground = d.shell
	return nil
}

// --- Observation ---

func (d *Double) Capture(id PaneID, lines int) ([]string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	p, ok := d.panes[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrPaneNotFound, id)
	}
	buf := p.buffer
	if lines > 0 && len(buf) > lines {
		buf = buf[len(buf)-lines:]
	}
	return append([]string(nil), buf...), nil
}

func (d *Double) ForegroundCommand(id PaneID) (string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	p, ok := d.panes[id]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrPaneNotFound, id)
	}
	return p.foreground, nil
}

// --- Test helpers ---

// AppendOutput appends lines to a pane's scrollback.
func (d *Double) AppendOutput(id PaneID, lines ...string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	p, ok := d.panes[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrPaneNotFound, id)
	}
	p.buffer = append(p.buffer, lines...)
	return nil
}

// SetForeground overrides a pane's foreground command, e.g. to simulate a crash.
func (d *Double) SetForeground(id PaneID, command string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	p, ok := d.panes[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrPaneNotFound, id)
	}
	p.foreground = command
	return nil
}

// Keys returns every key sequence sent to a pane, submitted or not.
func (d *Double) Keys(id PaneID) []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if p, ok := d.panes[id]; ok {
		return append([]string(nil), p.keys...)
	}
	return nil
}

// Interrupts returns how many interrupts a pane received.
func (d *Double) Interrupts(id PaneID) int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if p, ok := d.panes[id]; ok {
		return p.interrupts
	}
	return 0
}

// Pane looks up the pane for a task, failing the lookup silently.
func (d *Double) Pane(session, task string) (Pane, bool) {
	p, ok, _ := d.FindPane(session, task)
	return p, ok
}

func (d *Double) addWindowLocked(s *doubleSession, name, dir string) *doublePane {
	d.nextPane++
	d.nextWin++
	if dir == "" {
		dir = s.dir
	}
	p := &doublePane{
		session:    s.name,
		id:         PaneID(fmt.Sprintf("%%%d", d.nextPane)),
		window:     name,
		windowID:   fmt.Sprintf("@%d", d.nextWin),
		index:      len(s.windows),
		path:       dir,
		foreground: d.shell,
		pid:        1000 + d.nextPane,
	}
	s.windows = append(s.windows, p)
	d.panes[p.id] = p
	return p
}

// submitLocked simulates typing text followed by Enter at the pane's prompt.
func (d *Double) submitLocked(p *doublePane, text string) {
	p.keys = append(p.keys, text)
	p.buffer = append(p.buffer, "$ "+text)
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return
	}
	if fields[0] == "cd" {
		if len(fields) > 1 {
			p.path = strings.Trim(fields[1], `'"`)
		}
		return
	}
	p.foreground = filepath.Base(fields[0])
}

func (p *doublePane) snapshot() Pane {
	return Pane{
		ID:          p.id,
		Window:      p.window,
		WindowID:    p.windowID,
		WindowIndex: p.index,
		Command:     p.foreground,
		PID:         p.pid,
		Path:        p.path,
	}
}
