package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nc9/taskmux/internal/hooks"
	"github.com/nc9/taskmux/internal/session"
	"github.com/nc9/taskmux/internal/taskgraph"
)

type hookCall struct {
	point   hooks.Point
	command string
	task    string
}

// stubHooks records every non-empty hook and fails the commands in fail.
type stubHooks struct {
	mu    sync.Mutex
	calls []hookCall
	fail  map[string]bool
}

func (s *stubHooks) Run(_ context.Context, point hooks.Point, command, task string) bool {
	if command == "" {
		return true
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, hookCall{point, command, task})
	return !s.fail[command]
}

func (s *stubHooks) commands() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, c := range s.calls {
		out = append(out, c.command)
	}
	return out
}

// stubHealth answers from a fixed table.
type stubHealth struct {
	mu      sync.Mutex
	healthy map[string]bool
	waits   []string
	timeout map[string]time.Duration
	dirs    map[string]string
}

func (s *stubHealth) set(name string, healthy bool) {
	s.mu.Lock()
	s.healthy[name] = healthy
	s.mu.Unlock()
}

func (s *stubHealth) Check(_ context.Context, t *taskgraph.Task) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dirs[t.Name] = t.Dir
	return s.healthy[t.Name]
}

func (s *stubHealth) dir(name string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dirs[name]
}

func (s *stubHealth) WaitUntilHealthy(_ context.Context, t *taskgraph.Task, timeout time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.waits = append(s.waits, t.Name)
	s.timeout[t.Name] = timeout
	return s.healthy[t.Name]
}

type logSink struct {
	mu    sync.Mutex
	lines []string
}

func (l *logSink) logf(format string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lines = append(l.lines, fmt.Sprintf(format, args...))
}

func (l *logSink) contains(substr string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, line := range l.lines {
		if strings.Contains(line, substr) {
			return true
		}
	}
	return false
}

type fixture struct {
	m      *Manager
	host   *session.Double
	hooks  *stubHooks
	health *stubHealth
	log    *logSink
	sleeps []time.Duration
}

func tk(name, command string, deps ...string) taskgraph.Task {
	t := taskgraph.NewTask(name, command)
	t.DependsOn = deps
	return t
}

func snapshotOf(t *testing.T, tasks ...taskgraph.Task) Snapshot {
	t.Helper()
	g, err := taskgraph.New(tasks)
	require.NoError(t, err)
	return Snapshot{Session: "proj", Dir: "/srv", AutoStart: true, Graph: g}
}

func newFixture(t *testing.T, snap Snapshot) *fixture {
	t.Helper()
	f := &fixture{
		host:   session.NewDouble(),
		hooks:  &stubHooks{fail: map[string]bool{}},
		health: &stubHealth{healthy: map[string]bool{}, timeout: map[string]time.Duration{}, dirs: map[string]string{}},
		log:    &logSink{},
	}
	f.m = New(snap, Options{Host: f.host, Hooks: f.hooks, Health: f.health, Logf: f.log.logf})
	f.m.sleep = func(d time.Duration) { f.sleeps = append(f.sleeps, d) }
	return f
}

func (f *fixture) windows(t *testing.T) []string {
	t.Helper()
	panes, err := f.host.ListPanes("proj")
	require.NoError(t, err)
	var names []string
	for _, p := range panes {
		names = append(names, p.Window)
	}
	return names
}

func (f *fixture) pane(t *testing.T, task string) session.Pane {
	t.Helper()
	p, ok := f.host.Pane("proj", task)
	require.True(t, ok, "task %s has no pane", task)
	return p
}

func TestStart_CreatesSessionAndReusesPlaceholder(t *testing.T) {
	api := tk("api", "go run .")
	api.Dir = "services/api"
	f := newFixture(t, snapshotOf(t, api))

	require.NoError(t, f.m.Start(context.Background(), "api"))

	assert.Equal(t, []string{"api"}, f.windows(t))
	p := f.pane(t, "api")
	assert.Equal(t, []string{"cd '/srv/services/api'", "go run ."}, f.host.Keys(p.ID))
	assert.True(t, f.log.contains("Started task 'api'"))
}

func TestStart_HookOrder(t *testing.T) {
	api := tk("api", "serve")
	api.Hooks = taskgraph.Hooks{BeforeStart: "t-bs", AfterStart: "t-as"}
	snap := snapshotOf(t, api)
	snap.Hooks = taskgraph.Hooks{BeforeStart: "g-bs", AfterStart: "g-as"}
	f := newFixture(t, snap)

	require.NoError(t, f.m.Start(context.Background(), "api"))
	assert.Equal(t, []string{"g-bs", "t-bs", "t-as", "g-as"}, f.hooks.commands())
}

func TestStart_BeforeHookFailureAborts(t *testing.T) {
	api := tk("api", "serve")
	api.Hooks.BeforeStart = "false"
	f := newFixture(t, snapshotOf(t, api))
	f.hooks.fail["false"] = true

	err := f.m.Start(context.Background(), "api")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrHookFailed))
	assert.False(t, IsNoop(err))
	ok, _ := f.host.SessionExists("proj")
	assert.False(t, ok, "no session is created when the hook fails")
}

func TestStart_NotFoundAndAlreadyRunning(t *testing.T) {
	f := newFixture(t, snapshotOf(t, tk("api", "serve")))
	ctx := context.Background()

	err := f.m.Start(ctx, "nope")
	assert.True(t, errors.Is(err, ErrTaskNotFound))
	assert.Equal(t, "task 'nope' not found in config", err.Error())

	require.NoError(t, f.m.Start(ctx, "api"))
	err = f.m.Start(ctx, "api")
	assert.True(t, errors.Is(err, ErrAlreadyRunning))
	assert.True(t, IsNoop(err))
	assert.Equal(t, "task 'api' already running", err.Error())
}

func TestStart_WarnsAboutStoppedDependencies(t *testing.T) {
	f := newFixture(t, snapshotOf(t, tk("db", "postgres"), tk("api", "serve", "db")))
	require.NoError(t, f.m.Start(context.Background(), "api"))
	assert.True(t, f.log.contains("Warning: dependency 'db' is not running"))
	assert.Empty(t, f.health.waits, "single start does not wait on dependencies")
}

func TestStop(t *testing.T) {
	api := tk("api", "serve")
	api.Hooks = taskgraph.Hooks{BeforeStop: "t-bst", AfterStop: "t-ast"}
	snap := snapshotOf(t, api, tk("web", "npm run dev"))
	snap.Hooks = taskgraph.Hooks{BeforeStop: "g-bst", AfterStop: "g-ast"}
	f := newFixture(t, snap)
	ctx := context.Background()

	assert.True(t, errors.Is(f.m.Stop(ctx, "api"), ErrNoSession))

	require.NoError(t, f.m.Start(ctx, "api"))
	assert.True(t, errors.Is(f.m.Stop(ctx, "nope"), ErrTaskNotFound))
	err := f.m.Stop(ctx, "web")
	assert.True(t, errors.Is(err, ErrNotRunning))
	assert.Equal(t, "task 'web' not running", err.Error())

	require.NoError(t, f.m.Stop(ctx, "api"))
	p := f.pane(t, "api")
	assert.Equal(t, 1, f.host.Interrupts(p.ID))
	assert.Equal(t, []string{"g-bst", "t-bst", "t-ast", "g-ast"}, f.hooks.commands())
	cmd, _ := f.host.ForegroundCommand(p.ID)
	assert.Equal(t, "bash", cmd, "the pane stays open at its shell")
}

func TestRestart_RunningTaskReusesPane(t *testing.T) {
	api := tk("api", "go run .")
	api.Dir = "/srv/api"
	api.Hooks = taskgraph.Hooks{BeforeStop: "t-bst", AfterStop: "t-ast", BeforeStart: "t-bs", AfterStart: "t-as"}
	f := newFixture(t, snapshotOf(t, api))
	ctx := context.Background()
	require.NoError(t, f.m.Start(ctx, "api"))
	before := f.pane(t, "api")
	f.hooks.calls = nil

	require.NoError(t, f.m.Restart(ctx, "api"))

	after := f.pane(t, "api")
	assert.Equal(t, before.ID, after.ID)
	assert.Equal(t, []string{"cd '/srv/api'", "go run .", "C-c", "cd '/srv/api'", "go run ."}, f.host.Keys(after.ID))
	assert.Equal(t, []string{"t-bst", "t-ast", "t-bs", "t-as"}, f.hooks.commands())
	assert.Equal(t, []time.Duration{DefaultSettleDelay}, f.sleeps)
	assert.Equal(t, "go", after.Command)
}

func TestRestart_StoppedTaskGetsNewPane(t *testing.T) {
	f := newFixture(t, snapshotOf(t, tk("api", "serve"), tk("web", "vite")))
	ctx := context.Background()

	assert.True(t, errors.Is(f.m.Restart(ctx, "web"), ErrNoSession))

	require.NoError(t, f.m.Start(ctx, "api"))
	require.NoError(t, f.m.Restart(ctx, "web"))
	assert.Equal(t, []string{"api", "web"}, f.windows(t))
	assert.Empty(t, f.sleeps)
	assert.True(t, errors.Is(f.m.Restart(ctx, "nope"), ErrTaskNotFound))
}

func TestKill(t *testing.T) {
	api := tk("api", "serve")
	api.Hooks = taskgraph.Hooks{BeforeStop: "t-bst", AfterStop: "t-ast"}
	f := newFixture(t, snapshotOf(t, api, tk("web", "vite")))
	ctx := context.Background()

	assert.True(t, errors.Is(f.m.Kill(ctx, "api"), ErrNoSession))

	require.NoError(t, f.m.Start(ctx, "api"))
	require.NoError(t, f.m.Start(ctx, "web"))
	require.NoError(t, f.m.Kill(ctx, "api"))
	assert.Equal(t, []string{"web"}, f.windows(t))
	assert.Empty(t, f.hooks.commands(), "kill runs no hooks")

	err := f.m.Kill(ctx, "api")
	assert.True(t, errors.Is(err, ErrTaskNotFound))
	assert.Equal(t, "task 'api' not found", err.Error())
}

func TestSnapshotDirFor(t *testing.T) {
	s := Snapshot{Dir: "/srv"}
	assert.Equal(t, "/srv", s.DirFor(taskgraph.Task{}))
	assert.Equal(t, "/srv/web", s.DirFor(taskgraph.Task{Dir: "web"}))
	assert.Equal(t, "/opt/x", s.DirFor(taskgraph.Task{Dir: "/opt/x"}))
}

func TestOpError(t *testing.T) {
	err := opErr("start", "api", errors.New("boom"))
	assert.Equal(t, "start api: boom", err.Error())
	assert.Equal(t, "start-all: boom", opErr("start-all", "", errors.New("boom")).Error())

	var op *OpError
	require.True(t, errors.As(fmt.Errorf("wrapped: %w", notFound("stop", "x")), &op))
	assert.Equal(t, "stop", op.Op)
	assert.False(t, IsNoop(errors.New("other")))
}
