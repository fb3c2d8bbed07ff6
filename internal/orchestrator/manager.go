// Package orchestrator drives task lifecycles on a terminal host: starting,
// stopping and restarting tasks in dependency order with hooks and health
// checks around each transition.
package orchestrator

import (
	"context"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nc9/taskmux/internal/health"
	"github.com/nc9/taskmux/internal/hooks"
	"github.com/nc9/taskmux/internal/session"
	"github.com/nc9/taskmux/internal/shell"
	"github.com/nc9/taskmux/internal/taskgraph"
)

// DefaultSettleDelay is the pause between interrupting a task and re-running
// it in the same pane.
const DefaultSettleDelay = 500 * time.Millisecond

// Snapshot is one immutable view of the project configuration.
type Snapshot struct {
	Session   string
	Dir       string // project root, the session's default directory
	AutoStart bool   // false: start-all only creates the session
	Hooks     taskgraph.Hooks
	Graph     *taskgraph.Graph
}

// DirFor resolves a task's working directory. Relative directories are
// taken from the project root; an empty one means the project root.
func (s Snapshot) DirFor(t taskgraph.Task) string {
	if t.Dir == "" {
		return s.Dir
	}
	dir := shell.ExpandHome(t.Dir)
	if !filepath.IsAbs(dir) && s.Dir != "" {
		dir = filepath.Join(s.Dir, dir)
	}
	return dir
}

// resolvedTask returns a copy of t whose directory is resolved against the
// project root, so health checks run where the task's pane does.
func (s Snapshot) resolvedTask(t taskgraph.Task) *taskgraph.Task {
	t.Dir = s.DirFor(t)
	return &t
}

// HookRunner runs one lifecycle hook and reports success.
type HookRunner interface {
	Run(ctx context.Context, point hooks.Point, command, task string) bool
}

// HealthChecker evaluates task health.
type HealthChecker interface {
	Check(ctx context.Context, t *taskgraph.Task) bool
	WaitUntilHealthy(ctx context.Context, t *taskgraph.Task, timeout time.Duration) bool
}

// Options configure a Manager. Host is required; the rest have defaults.
type Options struct {
	Host        session.Host
	Hooks       HookRunner    // default: hooks.NewRunner in the project root
	Health      HealthChecker // default: health.NewEvaluator backed by the host
	Logf        func(format string, args ...interface{})
	SettleDelay time.Duration
}

// TaskState is the lifecycle position of a task.
type TaskState string

const (
	StateAbsent   TaskState = "absent"
	StateStarting TaskState = "starting"
	StateRunning  TaskState = "running"
	StateStopping TaskState = "stopping"
)

// HealthRecord is the last observed health of a task together with the
// status seen at that check.
type HealthRecord struct {
	Healthy   bool
	LastCheck time.Time
	Status    TaskStatus
}

// Manager owns task lifecycles for one project session.
type Manager struct {
	snap   atomic.Pointer[Snapshot]
	host   session.Host
	hooks  HookRunner
	health HealthChecker
	logf   func(format string, args ...interface{})
	settle time.Duration
	sleep  func(time.Duration)
	now    func() time.Time

	// opMu serializes lifecycle operations.
	opMu sync.Mutex

	mu       sync.Mutex
	records  map[string]HealthRecord
	inflight map[string]TaskState
}

// New creates a Manager for snap.
func New(snap Snapshot, opts Options) *Manager {
	logf := opts.Logf
	if logf == nil {
		logf = func(string, ...interface{}) {}
	}
	settle := opts.SettleDelay
	if settle <= 0 {
		settle = DefaultSettleDelay
	}
	m := &Manager{
		host:     opts.Host,
		hooks:    opts.Hooks,
		health:   opts.Health,
		logf:     logf,
		settle:   settle,
		sleep:    time.Sleep,
		now:      time.Now,
		records:  make(map[string]HealthRecord),
		inflight: make(map[string]TaskState),
	}
	if m.hooks == nil {
		m.hooks = hooks.NewRunner(snap.Dir, logf)
	}
	if m.health == nil {
		m.health = health.NewEvaluator(m)
	}
	m.snap.Store(&snap)
	return m
}

// Snapshot returns the configuration currently in effect.
func (m *Manager) Snapshot() Snapshot {
	return *m.snap.Load()
}

// Host returns the terminal host the Manager drives.
func (m *Manager) Host() session.Host {
	return m.host
}

// ForegroundCommand reports what a task's pane is running. It makes the
// Manager usable as the pane inspector for liveness health checks.
func (m *Manager) ForegroundCommand(_ context.Context, task string) (string, bool) {
	pane, ok := m.pane(m.Snapshot().Session, task)
	if !ok {
		return "", false
	}
	cmd, err := m.host.ForegroundCommand(pane.ID)
	if err != nil {
		return "", false
	}
	return cmd, true
}

func (m *Manager) sessionExists(name string) (bool, error) {
	return m.host.SessionExists(name)
}

// pane looks up a task's pane, treating host errors as "no pane".
func (m *Manager) pane(sessionName, task string) (session.Pane, bool) {
	p, ok, err := m.host.FindPane(sessionName, task)
	if err != nil {
		return session.Pane{}, false
	}
	return p, ok
}

func (m *Manager) setInflight(task string, state TaskState) {
	m.mu.Lock()
	m.inflight[task] = state
	m.mu.Unlock()
}

func (m *Manager) clearInflight(task string) {
	m.mu.Lock()
	delete(m.inflight, task)
	m.mu.Unlock()
}

func (m *Manager) inflightState(task string) (TaskState, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.inflight[task]
	return s, ok
}

// record stores a health observation and returns the previous one.
// A task never seen before counts as previously healthy.
func (m *Manager) record(t taskgraph.Task, healthy, running bool) (prevHealthy bool) {
	now := m.now()
	st := TaskStatus{
		Name:      t.Name,
		Command:   t.Command,
		State:     StateAbsent,
		Running:   running,
		Healthy:   healthy,
		LastCheck: now,
		AutoStart: t.AutoStart,
		Dir:       t.Dir,
		DependsOn: t.DependsOn,
	}
	if running {
		st.State = StateRunning
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	prev, seen := m.records[t.Name]
	m.records[t.Name] = HealthRecord{Healthy: healthy, LastCheck: now, Status: st}
	return !seen || prev.Healthy
}

// Record returns the last health observation for a task.
func (m *Manager) Record(task string) (HealthRecord, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.records[task]
	return r, ok
}
