package daemon

import (
	"bytes"
	"context"
	"log"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nc9/taskmux/internal/config"
	"github.com/nc9/taskmux/internal/orchestrator"
	"github.com/nc9/taskmux/internal/session"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

type harness struct {
	d       *Daemon
	mgr     *orchestrator.Manager
	host    *session.Double
	cfgPath string
	out     *syncBuffer
}

func writeConfig(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
}

func newHarness(t *testing.T, body string) *harness {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, config.Filename)
	writeConfig(t, path, body)

	cfg, err := config.Load(path)
	require.NoError(t, err)
	snap, err := cfg.Snapshot(dir)
	require.NoError(t, err)

	h := &harness{host: session.NewDouble(), cfgPath: path, out: &syncBuffer{}}
	logger := log.New(h.out, "", 0)
	h.mgr = orchestrator.New(snap, orchestrator.Options{
		Host:        h.host,
		Logf:        logger.Printf,
		SettleDelay: time.Millisecond,
	})
	dcfg := DefaultConfig(path)
	dcfg.StateDir = filepath.Join(dir, "state")
	dcfg.Host = "127.0.0.1"
	dcfg.Port = 0
	h.d = New(dcfg, h.mgr, Options{Logger: logger})
	return h
}

const oneTask = `name = "proj"

[tasks.api]
command = "serve --port 8080"
`

func TestHealthCycle_NoSessionIsIdle(t *testing.T) {
	h := newHarness(t, oneTask)
	state := &State{Session: "proj"}
	require.NoError(t, h.d.healthCycle(context.Background(), state))
	assert.Zero(t, state.HealthChecks)
}

func TestHealthCycle_RestartsCrashedTaskAndBroadcasts(t *testing.T) {
	h := newHarness(t, oneTask)
	ctx := context.Background()
	_, err := h.mgr.StartAll(ctx)
	require.NoError(t, err)

	srv := httptest.NewServer(h.d.Gateway().Handler())
	defer srv.Close()
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return h.d.Gateway().Clients() == 1 }, 2*time.Second, 10*time.Millisecond)

	state := &State{Session: "proj"}
	require.NoError(t, h.d.healthCycle(ctx, state))

	var ev struct {
		Type string `json:"type"`
		Data struct {
			SessionName string `json:"session_name"`
			Tasks       map[string]struct {
				Healthy bool `json:"healthy"`
			} `json:"tasks"`
		} `json:"data"`
	}
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, "health_check", ev.Type)
	assert.Equal(t, "proj", ev.Data.SessionName)
	assert.True(t, ev.Data.Tasks["api"].Healthy)

	pane, ok := h.host.Pane("proj", "api")
	require.True(t, ok)
	require.NoError(t, h.host.SetForeground(pane.ID, "bash"))

	require.NoError(t, h.d.healthCycle(ctx, state))
	assert.Equal(t, int64(2), state.HealthChecks)
	assert.Equal(t, int64(1), state.AutoRestarts)
	assert.Contains(t, h.out.String(), "Auto-restarting unhealthy task: api")

	pane, ok = h.host.Pane("proj", "api")
	require.True(t, ok)
	assert.Equal(t, "serve", pane.Command, "restarted in place")

	saved, err := LoadState(h.d.cfg.StateDir, "proj")
	require.NoError(t, err)
	assert.Equal(t, int64(1), saved.AutoRestarts)
}

func TestReloadConfig_AppliesChanges(t *testing.T) {
	h := newHarness(t, oneTask)
	ctx := context.Background()
	_, err := h.mgr.StartAll(ctx)
	require.NoError(t, err)

	writeConfig(t, h.cfgPath, `name = "proj"

[tasks.api]
command = "serve --port 9090"

[tasks.worker]
command = "worker run"
`)
	h.d.reloadConfig(ctx)

	snap := h.mgr.Snapshot()
	assert.True(t, snap.Graph.Has("worker"))
	_, ok := h.host.Pane("proj", "worker")
	assert.True(t, ok, "added auto-start task is launched")

	pane, ok := h.host.Pane("proj", "api")
	require.True(t, ok)
	assert.Contains(t, h.host.Keys(pane.ID), "serve --port 9090")
	assert.Contains(t, h.out.String(), "Reloading task 'api' due to config change")
}

func TestReloadConfig_BrokenFileKeepsCurrentConfig(t *testing.T) {
	h := newHarness(t, oneTask)
	writeConfig(t, h.cfgPath, `name = "proj"
[tasks.api]
depends_on = ["ghost"]
command = "serve"
`)
	h.d.reloadConfig(context.Background())

	api, ok := h.mgr.Snapshot().Graph.Task("api")
	require.True(t, ok)
	assert.Equal(t, "serve --port 8080", api.Command)
	assert.Contains(t, h.out.String(), "Error reloading config")
}

func TestRun_SingleInstance(t *testing.T) {
	h := newHarness(t, oneTask)
	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- h.d.Run(ctx) }()

	stateDir := h.d.cfg.StateDir
	require.Eventually(t, func() bool {
		running, _, err := IsRunning(stateDir, "proj")
		return err == nil && running
	}, 3*time.Second, 20*time.Millisecond)

	second := New(&Config{StateDir: stateDir, Host: "127.0.0.1"}, h.mgr, Options{})
	err := second.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAlreadyRunning)

	cancel()
	select {
	case err := <-errc:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("daemon did not stop")
	}

	running, state, err := IsRunning(stateDir, "proj")
	require.NoError(t, err)
	assert.False(t, running)
	assert.False(t, state.Running)
	assert.Equal(t, os.Getpid(), state.PID)
}

func TestStateRoundTripAndStopWhenIdle(t *testing.T) {
	dir := t.TempDir()
	s, err := LoadState(dir, "proj")
	require.NoError(t, err)
	assert.False(t, s.Running)

	s.Running = true
	s.Port = 8765
	require.NoError(t, SaveState(dir, s))
	loaded, err := LoadState(dir, "proj")
	require.NoError(t, err)
	assert.Equal(t, 8765, loaded.Port)

	err = StopDaemon(dir, "proj")
	assert.ErrorContains(t, err, "not running")
}
