package orchestrator

import (
	"context"

	"github.com/nc9/taskmux/internal/hooks"
	"github.com/nc9/taskmux/internal/telemetry"
)

// GroupResult reports what a start-all did.
type GroupResult struct {
	Started []string
	Skipped []string
}

// StartAll creates the session and launches every auto-start task in
// dependency order. Before launching a task it waits for each of its
// auto-start dependencies to become healthy; a task whose dependency never
// does is skipped and the rest carry on.
func (m *Manager) StartAll(ctx context.Context) (GroupResult, error) {
	m.opMu.Lock()
	defer m.opMu.Unlock()
	res, err := m.startAll(ctx, m.snap.Load())
	telemetry.RecordTransition(ctx, "start-all", "", err)
	return res, err
}

func (m *Manager) startAll(ctx context.Context, snap *Snapshot) (GroupResult, error) {
	var res GroupResult
	exists, err := m.sessionExists(snap.Session)
	if err != nil {
		return res, opErr("start-all", "", err)
	}
	if exists {
		return res, sessionExists("start-all", snap.Session)
	}

	if !snap.AutoStart {
		if err := m.host.CreateSession(snap.Session, snap.Dir); err != nil {
			return res, opErr("start-all", "", err)
		}
		m.logf("Created session '%s' (auto_start disabled, no tasks launched)", snap.Session)
		return res, nil
	}

	var names []string
	auto := make(map[string]bool)
	for _, t := range snap.Graph.Tasks() {
		if t.AutoStart {
			names = append(names, t.Name)
			auto[t.Name] = true
		}
	}
	if len(names) == 0 {
		return res, &OpError{Op: "start-all", Err: ErrNoAutoStartTasks,
			msg: "no auto-start tasks defined in config"}
	}

	order, err := snap.Graph.TopologicalOrder(names)
	if err != nil {
		m.logf("ERROR: %v", err)
		return res, opErr("start-all", "", err)
	}

	if !m.globalHook(ctx, snap, hooks.BeforeStart) {
		return res, hookFailed("start-all", "")
	}
	if err := m.host.CreateSession(snap.Session, snap.Dir); err != nil {
		return res, opErr("start-all", "", err)
	}

	for _, name := range order {
		t, _ := snap.Graph.Task(name)
		if dep, ok := m.waitForDependencies(ctx, snap, t.DependsOn, auto); !ok {
			m.logf("Warning: dependency '%s' not healthy, skipping '%s'", dep, name)
			res.Skipped = append(res.Skipped, name)
			continue
		}

		m.setInflight(name, StateStarting)
		if !m.taskHook(ctx, t, hooks.BeforeStart) {
			m.clearInflight(name)
			m.logf("[%s] before_start hook failed, skipping", name)
			res.Skipped = append(res.Skipped, name)
			continue
		}
		if _, err := m.host.CreatePane(snap.Session, name, t.Command, snap.DirFor(t)); err != nil {
			m.clearInflight(name)
			m.logf("[%s] failed to start: %v", name, err)
			res.Skipped = append(res.Skipped, name)
			continue
		}
		m.taskHook(ctx, t, hooks.AfterStart)
		m.clearInflight(name)
		res.Started = append(res.Started, name)
	}

	m.globalHook(ctx, snap, hooks.AfterStart)
	m.logf("Started session '%s' with %d tasks", snap.Session, len(res.Started))
	return res, nil
}

// waitForDependencies blocks until every dependency in scope is healthy,
// returning the first one that timed out.
func (m *Manager) waitForDependencies(ctx context.Context, snap *Snapshot, deps []string, scope map[string]bool) (string, bool) {
	for _, name := range deps {
		if !scope[name] {
			continue
		}
		dep, ok := snap.Graph.Task(name)
		if !ok {
			continue
		}
		if !m.health.WaitUntilHealthy(ctx, snap.resolvedTask(dep), dep.DependencyWait()) {
			return name, false
		}
	}
	return "", true
}

// StopAll interrupts every running task inside its stop hooks, then
// destroys the session.
func (m *Manager) StopAll(ctx context.Context) error {
	m.opMu.Lock()
	defer m.opMu.Unlock()
	err := m.stopAll(ctx, m.snap.Load())
	telemetry.RecordTransition(ctx, "stop-all", "", err)
	return err
}

func (m *Manager) stopAll(ctx context.Context, snap *Snapshot) error {
	exists, err := m.sessionExists(snap.Session)
	if err != nil {
		return opErr("stop-all", "", err)
	}
	if !exists {
		return noSession("stop-all", "", snap.Session)
	}

	m.globalHook(ctx, snap, hooks.BeforeStop)
	for _, t := range snap.Graph.Tasks() {
		pane, running := m.pane(snap.Session, t.Name)
		if !running {
			continue
		}
		m.setInflight(t.Name, StateStopping)
		if err := m.interrupt(ctx, snap, t, pane, false); err != nil {
			m.logf("[%s] interrupt failed: %v", t.Name, err)
		}
		m.clearInflight(t.Name)
	}
	if err := m.host.DestroySession(snap.Session); err != nil {
		return opErr("stop-all", "", err)
	}
	m.globalHook(ctx, snap, hooks.AfterStop)
	m.logf("Stopped session '%s'", snap.Session)
	return nil
}

// RestartAll stops the whole session, if any, and starts it again.
func (m *Manager) RestartAll(ctx context.Context) (GroupResult, error) {
	m.opMu.Lock()
	defer m.opMu.Unlock()
	snap := m.snap.Load()
	if err := m.stopAll(ctx, snap); err != nil && !IsNoop(err) {
		telemetry.RecordTransition(ctx, "restart-all", "", err)
		return GroupResult{}, err
	}
	res, err := m.startAll(ctx, snap)
	telemetry.RecordTransition(ctx, "restart-all", "", err)
	return res, err
}
