package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nc9/taskmux/internal/taskgraph"
)

func TestStatus(t *testing.T) {
	f := newFixture(t, snapshotOf(t, tk("api", "serve"), tk("web", "vite", "api")))
	ctx := context.Background()
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	f.m.now = func() time.Time { return fixed }

	report := f.m.Status(ctx)
	assert.False(t, report.SessionExists)
	require.Len(t, report.Tasks, 2)
	assert.Equal(t, StateAbsent, report.Tasks[0].State)

	f.health.set("api", true)
	require.NoError(t, f.m.Start(ctx, "api"))
	report = f.m.Status(ctx)
	assert.True(t, report.SessionExists)
	assert.Equal(t, "proj", report.SessionName)

	api := report.TaskMap["api"]
	assert.True(t, api.Running)
	assert.True(t, api.Healthy)
	assert.Equal(t, StateRunning, api.State)
	web := report.TaskMap["web"]
	assert.False(t, web.Running)
	assert.False(t, web.Healthy)
	assert.Equal(t, []string{"api"}, web.DependsOn)

	raw, err := json.Marshal(report)
	require.NoError(t, err)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, "proj", decoded["session_name"])
	tasks, ok := decoded["tasks"].(map[string]any)
	require.True(t, ok, "tasks is keyed by name")
	assert.Contains(t, tasks, "api")
	assert.Contains(t, tasks["api"], "last_check")
}

func TestStatus_ShowsInflightState(t *testing.T) {
	f := newFixture(t, snapshotOf(t, tk("api", "serve")))
	f.m.setInflight("api", StateStarting)
	st, err := f.m.TaskStatus(context.Background(), "api")
	require.NoError(t, err)
	assert.Equal(t, StateStarting, st.State)

	_, err = f.m.TaskStatus(context.Background(), "nope")
	assert.True(t, errors.Is(err, ErrTaskNotFound))
}

func TestInspect(t *testing.T) {
	api := tk("api", "go run .")
	api.Dir = "/srv/api"
	api.HealthCheck = "curl -sf localhost:8080/health"
	f := newFixture(t, snapshotOf(t, api))
	ctx := context.Background()

	info, err := f.m.Inspect(ctx, "api")
	require.NoError(t, err)
	assert.False(t, info.Running)
	assert.Nil(t, info.PID)
	assert.Equal(t, []string{}, info.DependsOn)

	f.health.set("api", true)
	require.NoError(t, f.m.Start(ctx, "api"))
	info, err = f.m.Inspect(ctx, "api")
	require.NoError(t, err)
	assert.True(t, info.Running)
	assert.True(t, info.Healthy)
	require.NotNil(t, info.PaneCurrentCommand)
	assert.Equal(t, "go", *info.PaneCurrentCommand)
	require.NotNil(t, info.PaneCurrentPath)
	assert.Equal(t, "/srv/api", *info.PaneCurrentPath)
	require.NotNil(t, info.PaneID)
	p := f.pane(t, "api")
	assert.Equal(t, string(p.ID), *info.PaneID)
	assert.Equal(t, p.PID, *info.PID)

	_, err = f.m.Inspect(ctx, "nope")
	assert.True(t, errors.Is(err, ErrTaskNotFound))
}

func TestLogs(t *testing.T) {
	f := newFixture(t, snapshotOf(t, tk("api", "serve"), tk("web", "vite")))
	ctx := context.Background()

	_, err := f.m.Logs("api", 10)
	assert.True(t, errors.Is(err, ErrNoSession))

	require.NoError(t, f.m.Start(ctx, "api"))
	p := f.pane(t, "api")
	require.NoError(t, f.host.AppendOutput(p.ID, "listening on :8080", "GET /"))

	lines, err := f.m.Logs("api", 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"listening on :8080", "GET /"}, lines)

	_, err = f.m.Logs("web", 10)
	assert.True(t, errors.Is(err, ErrNotRunning))
	_, err = f.m.Logs("nope", 10)
	assert.True(t, errors.Is(err, ErrTaskNotFound))
}

func TestStreams(t *testing.T) {
	f := newFixture(t, snapshotOf(t, tk("api", "serve"), tk("web", "vite"), tk("db", "postgres")))
	ctx := context.Background()
	require.NoError(t, f.m.Start(ctx, "api"))
	require.NoError(t, f.m.Start(ctx, "db"))

	streams := f.m.Streams([]string{"api", "web", "db"})
	require.Len(t, streams, 2)
	assert.Equal(t, "api", streams[0].Name)
	assert.Equal(t, 0, streams[0].Index)
	assert.Equal(t, "db", streams[1].Name)
	assert.Equal(t, 2, streams[1].Index, "color follows position in the request")

	lines, err := streams[1].Capture(10)
	require.NoError(t, err)
	assert.Equal(t, []string{"$ postgres"}, lines)
}

func TestReload(t *testing.T) {
	f := newFixture(t, snapshotOf(t, tk("api", "serve"), tk("web", "vite"), tk("old", "legacy")))
	ctx := context.Background()
	f.m.CheckHealth(ctx)
	_, ok := f.m.Record("old")
	require.True(t, ok)

	next := snapshotOf(t, tk("api", "serve --port 9000"), tk("web", "vite"), tk("worker", "celery"))
	res := f.m.Reload(next)

	assert.Equal(t, []string{"worker"}, res.Added)
	assert.Equal(t, []string{"old"}, res.Removed)
	assert.Equal(t, []string{"api"}, res.Changed)
	assert.False(t, res.Empty())
	assert.True(t, f.m.Snapshot().Graph.Has("worker"))
	_, ok = f.m.Record("old")
	assert.False(t, ok, "records of removed tasks are pruned")
	_, ok = f.m.Record("web")
	assert.True(t, ok)
}

func TestApplyReload(t *testing.T) {
	f := newFixture(t, snapshotOf(t, tk("api", "serve"), tk("web", "vite")))
	ctx := context.Background()

	assert.NoError(t, f.m.ApplyReload(ctx, ReloadResult{}), "no session, nothing to do")

	require.NoError(t, f.m.Start(ctx, "api"))
	apiPane := f.pane(t, "api")

	manual := tk("tools", "htop")
	manual.AutoStart = false
	next := snapshotOf(t, tk("api", "serve --port 9000"), tk("web", "vite"), tk("worker", "celery"), manual)
	res := f.m.Reload(next)
	require.NoError(t, f.m.ApplyReload(ctx, res))

	assert.Equal(t, []string{"api", "worker"}, f.windows(t))
	keys := f.host.Keys(apiPane.ID)
	assert.Equal(t, "serve --port 9000", keys[len(keys)-1], "running task picks up its new command")
	assert.True(t, f.log.contains("Reloading task 'api' due to config change"))
	assert.True(t, f.log.contains("Adding new task 'worker'"))
}

func TestCheckHealth(t *testing.T) {
	f := newFixture(t, snapshotOf(t, tk("api", "serve"), tk("web", "vite")))
	ctx := context.Background()
	f.health.set("api", true)
	require.NoError(t, f.m.Start(ctx, "api"))

	results := f.m.CheckHealth(ctx)
	assert.Equal(t, []HealthResult{
		{Name: "api", Running: true, Healthy: true},
		{Name: "web", Running: false, Healthy: false},
	}, results)
	rec, ok := f.m.Record("api")
	require.True(t, ok)
	assert.True(t, rec.Healthy)
}

func TestNew_DefaultsHealthToLiveness(t *testing.T) {
	g, err := taskgraph.New([]taskgraph.Task{tk("api", "serve")})
	require.NoError(t, err)
	m := New(Snapshot{Session: "proj", Graph: g}, Options{Host: nil})
	assert.NotNil(t, m.health)
	assert.NotNil(t, m.hooks)
}
