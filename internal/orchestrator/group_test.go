package orchestrator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nc9/taskmux/internal/taskgraph"
)

func TestStartAll_DependencyOrder(t *testing.T) {
	// web depends on api depends on db; declared out of order on purpose
	f := newFixture(t, snapshotOf(t,
		tk("web", "vite", "api"),
		tk("api", "serve", "db"),
		tk("db", "postgres"),
	))
	f.health.set("db", true)
	f.health.set("api", true)

	res, err := f.m.StartAll(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"db", "api", "web"}, res.Started)
	assert.Empty(t, res.Skipped)
	assert.Equal(t, []string{"db", "api", "web"}, f.windows(t), "db takes over the placeholder window")
	assert.Equal(t, []string{"db", "api"}, f.health.waits)
	assert.Equal(t, 30*time.Second, f.health.timeout["db"], "retries x interval")
	assert.True(t, f.log.contains("Started session 'proj' with 3 tasks"))
}

func TestStartAll_UnhealthyDependencySkipsDependents(t *testing.T) {
	f := newFixture(t, snapshotOf(t,
		tk("db", "postgres"),
		tk("api", "serve", "db"),
		tk("web", "vite", "api"),
		tk("docs", "mkdocs serve"),
	))

	res, err := f.m.StartAll(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"db", "docs"}, res.Started)
	assert.Equal(t, []string{"api", "web"}, res.Skipped)
	assert.True(t, f.log.contains("Warning: dependency 'db' not healthy, skipping 'api'"))
	assert.True(t, f.log.contains("Warning: dependency 'api' not healthy, skipping 'web'"))
	assert.Equal(t, []string{"db", "docs"}, f.windows(t))
}

func TestStartAll_ManualDependencyIsNotAwaited(t *testing.T) {
	db := tk("db", "postgres")
	db.AutoStart = false
	f := newFixture(t, snapshotOf(t, db, tk("api", "serve", "db")))

	res, err := f.m.StartAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"api"}, res.Started)
	assert.Empty(t, f.health.waits)
}

func TestStartAll_SessionExists(t *testing.T) {
	f := newFixture(t, snapshotOf(t, tk("api", "serve")))
	require.NoError(t, f.host.CreateSession("proj", ""))

	_, err := f.m.StartAll(context.Background())
	assert.True(t, errors.Is(err, ErrSessionExists))
	assert.True(t, IsNoop(err))
	assert.Equal(t, "session 'proj' already exists", err.Error())
}

func TestStartAll_AutoStartDisabledCreatesEmptySession(t *testing.T) {
	snap := snapshotOf(t, tk("api", "serve"))
	snap.AutoStart = false
	f := newFixture(t, snap)

	res, err := f.m.StartAll(context.Background())
	require.NoError(t, err)
	assert.Empty(t, res.Started)
	assert.Equal(t, []string{"bash"}, f.windows(t))
}

func TestStartAll_NoAutoStartTasks(t *testing.T) {
	api := tk("api", "serve")
	api.AutoStart = false
	f := newFixture(t, snapshotOf(t, api))

	_, err := f.m.StartAll(context.Background())
	assert.True(t, errors.Is(err, ErrNoAutoStartTasks))
	ok, _ := f.host.SessionExists("proj")
	assert.False(t, ok)
}

func TestStartAll_GlobalBeforeHookAborts(t *testing.T) {
	snap := snapshotOf(t, tk("api", "serve"))
	snap.Hooks.BeforeStart = "check-env"
	f := newFixture(t, snap)
	f.hooks.fail["check-env"] = true

	_, err := f.m.StartAll(context.Background())
	assert.True(t, errors.Is(err, ErrHookFailed))
	ok, _ := f.host.SessionExists("proj")
	assert.False(t, ok)
}

func TestStartAll_TaskBeforeHookSkipsTask(t *testing.T) {
	api := tk("api", "serve")
	api.Hooks.BeforeStart = "migrate"
	snap := snapshotOf(t, api, tk("web", "vite"))
	snap.Hooks = taskgraph.Hooks{BeforeStart: "g-bs", AfterStart: "g-as"}
	f := newFixture(t, snap)
	f.hooks.fail["migrate"] = true

	res, err := f.m.StartAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"web"}, res.Started)
	assert.Equal(t, []string{"api"}, res.Skipped)
	assert.Equal(t, []string{"g-bs", "migrate", "g-as"}, f.hooks.commands(), "global hooks run once per group")
}

func TestStopAll(t *testing.T) {
	api := tk("api", "serve")
	api.Hooks = taskgraph.Hooks{BeforeStop: "api-bst", AfterStop: "api-ast"}
	web := tk("web", "vite")
	web.Hooks = taskgraph.Hooks{BeforeStop: "web-bst"}
	idle := tk("idle", "sleep 1")
	idle.AutoStart = false
	idle.Hooks.BeforeStop = "idle-bst"
	snap := snapshotOf(t, api, web, idle)
	snap.Hooks = taskgraph.Hooks{BeforeStop: "g-bst", AfterStop: "g-ast"}
	f := newFixture(t, snap)
	ctx := context.Background()

	assert.True(t, errors.Is(f.m.StopAll(ctx), ErrNoSession))

	_, err := f.m.StartAll(ctx)
	require.NoError(t, err)
	apiPane := f.pane(t, "api")
	f.hooks.calls = nil

	require.NoError(t, f.m.StopAll(ctx))
	ok, _ := f.host.SessionExists("proj")
	assert.False(t, ok)
	assert.Equal(t, []string{"g-bst", "api-bst", "api-ast", "web-bst", "g-ast"}, f.hooks.commands())
	assert.Zero(t, f.host.Interrupts(apiPane.ID), "pane is gone with the session")
}

func TestRestartAll(t *testing.T) {
	f := newFixture(t, snapshotOf(t, tk("api", "serve"), tk("web", "vite")))
	ctx := context.Background()

	res, err := f.m.RestartAll(ctx)
	require.NoError(t, err, "a missing session is tolerated")
	assert.Equal(t, []string{"api", "web"}, res.Started)

	first := f.pane(t, "api")
	res, err = f.m.RestartAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"api", "web"}, res.Started)
	assert.NotEqual(t, first.ID, f.pane(t, "api").ID)
}
