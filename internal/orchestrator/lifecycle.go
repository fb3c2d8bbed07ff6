package orchestrator

import (
	"context"
	"fmt"

	"github.com/nc9/taskmux/internal/hooks"
	"github.com/nc9/taskmux/internal/session"
	"github.com/nc9/taskmux/internal/shell"
	"github.com/nc9/taskmux/internal/taskgraph"
	"github.com/nc9/taskmux/internal/telemetry"
)

func (m *Manager) globalHook(ctx context.Context, snap *Snapshot, point hooks.Point) bool {
	return m.hooks.Run(ctx, point, hookCommand(snap.Hooks, point), "")
}

func (m *Manager) taskHook(ctx context.Context, t taskgraph.Task, point hooks.Point) bool {
	return m.hooks.Run(ctx, point, hookCommand(t.Hooks, point), t.Name)
}

func hookCommand(h taskgraph.Hooks, point hooks.Point) string {
	switch point {
	case hooks.BeforeStart:
		return h.BeforeStart
	case hooks.AfterStart:
		return h.AfterStart
	case hooks.BeforeStop:
		return h.BeforeStop
	case hooks.AfterStop:
		return h.AfterStop
	}
	return ""
}

// Start launches one task in its own window, creating the session when it
// does not exist yet.
func (m *Manager) Start(ctx context.Context, name string) error {
	m.opMu.Lock()
	defer m.opMu.Unlock()
	err := m.start(ctx, m.snap.Load(), name)
	telemetry.RecordTransition(ctx, "start", name, err)
	return err
}

func (m *Manager) start(ctx context.Context, snap *Snapshot, name string) error {
	t, ok := snap.Graph.Task(name)
	if !ok {
		return notFound("start", name)
	}
	exists, err := m.sessionExists(snap.Session)
	if err != nil {
		return opErr("start", name, err)
	}
	if exists {
		if _, running := m.pane(snap.Session, name); running {
			return alreadyRunning("start", name)
		}
	}
	for _, dep := range t.DependsOn {
		if _, running := m.pane(snap.Session, dep); !running {
			m.logf("Warning: dependency '%s' is not running", dep)
		}
	}

	m.setInflight(name, StateStarting)
	defer m.clearInflight(name)

	if !m.globalHook(ctx, snap, hooks.BeforeStart) || !m.taskHook(ctx, t, hooks.BeforeStart) {
		return hookFailed("start", name)
	}
	if !exists {
		if err := m.host.CreateSession(snap.Session, snap.Dir); err != nil {
			return opErr("start", name, err)
		}
	}
	if _, err := m.host.CreatePane(snap.Session, name, t.Command, snap.DirFor(t)); err != nil {
		return opErr("start", name, err)
	}
	m.taskHook(ctx, t, hooks.AfterStart)
	m.globalHook(ctx, snap, hooks.AfterStart)
	m.logf("Started task '%s'", name)
	return nil
}

// Stop interrupts a task's process. The window stays open at its shell
// prompt so its output remains readable.
func (m *Manager) Stop(ctx context.Context, name string) error {
	m.opMu.Lock()
	defer m.opMu.Unlock()
	err := m.stop(ctx, m.snap.Load(), name)
	telemetry.RecordTransition(ctx, "stop", name, err)
	return err
}

func (m *Manager) stop(ctx context.Context, snap *Snapshot, name string) error {
	exists, err := m.sessionExists(snap.Session)
	if err != nil {
		return opErr("stop", name, err)
	}
	if !exists {
		return noSession("stop", name, snap.Session)
	}
	t, ok := snap.Graph.Task(name)
	if !ok {
		return notFound("stop", name)
	}
	pane, running := m.pane(snap.Session, name)
	if !running {
		return notRunning("stop", name)
	}

	m.setInflight(name, StateStopping)
	defer m.clearInflight(name)

	if err := m.interrupt(ctx, snap, t, pane, true); err != nil {
		return opErr("stop", name, err)
	}
	m.logf("Stopped task '%s'", name)
	return nil
}

// interrupt sends Ctrl-C to a pane wrapped in the task's stop hooks, and in
// the global stop hooks when global is set.
func (m *Manager) interrupt(ctx context.Context, snap *Snapshot, t taskgraph.Task, pane session.Pane, global bool) error {
	if global {
		m.globalHook(ctx, snap, hooks.BeforeStop)
	}
	m.taskHook(ctx, t, hooks.BeforeStop)
	err := m.host.SendInterrupt(pane.ID)
	m.taskHook(ctx, t, hooks.AfterStop)
	if global {
		m.globalHook(ctx, snap, hooks.AfterStop)
	}
	return err
}

// Restart interrupts a running task and re-runs its command in the same
// pane, or starts it in a new pane when it has none.
func (m *Manager) Restart(ctx context.Context, name string) error {
	m.opMu.Lock()
	defer m.opMu.Unlock()
	err := m.restart(ctx, m.snap.Load(), name)
	telemetry.RecordTransition(ctx, "restart", name, err)
	return err
}

func (m *Manager) restart(ctx context.Context, snap *Snapshot, name string) error {
	exists, err := m.sessionExists(snap.Session)
	if err != nil {
		return opErr("restart", name, err)
	}
	if !exists {
		return noSession("restart", name, snap.Session)
	}
	t, ok := snap.Graph.Task(name)
	if !ok {
		return notFound("restart", name)
	}

	pane, running := m.pane(snap.Session, name)
	if running {
		m.setInflight(name, StateStopping)
		if err := m.interrupt(ctx, snap, t, pane, true); err != nil {
			m.clearInflight(name)
			return opErr("restart", name, err)
		}
		m.sleep(m.settle)
	}

	m.setInflight(name, StateStarting)
	defer m.clearInflight(name)

	if !m.globalHook(ctx, snap, hooks.BeforeStart) || !m.taskHook(ctx, t, hooks.BeforeStart) {
		return hookFailed("restart", name)
	}
	if running {
		if t.Dir != "" {
			if err := m.host.SendKeys(pane.ID, "cd "+shell.Quote(snap.DirFor(t)), true); err != nil {
				return opErr("restart", name, err)
			}
		}
		if err := m.host.SendKeys(pane.ID, t.Command, true); err != nil {
			return opErr("restart", name, err)
		}
	} else if _, err := m.host.CreatePane(snap.Session, name, t.Command, snap.DirFor(t)); err != nil {
		return opErr("restart", name, err)
	}
	m.taskHook(ctx, t, hooks.AfterStart)
	m.globalHook(ctx, snap, hooks.AfterStart)
	m.logf("Restarted task '%s'", name)
	return nil
}

// Kill destroys a task's window without running hooks.
func (m *Manager) Kill(ctx context.Context, name string) error {
	m.opMu.Lock()
	defer m.opMu.Unlock()
	err := m.kill(m.snap.Load(), name)
	telemetry.RecordTransition(ctx, "kill", name, err)
	return err
}

func (m *Manager) kill(snap *Snapshot, name string) error {
	exists, err := m.sessionExists(snap.Session)
	if err != nil {
		return opErr("kill", name, err)
	}
	if !exists {
		return noSession("kill", name, snap.Session)
	}
	pane, ok := m.pane(snap.Session, name)
	if !ok {
		return &OpError{Op: "kill", Task: name, Err: ErrTaskNotFound,
			msg: fmt.Sprintf("task '%s' not found", name)}
	}
	if err := m.host.DestroyPane(pane.ID); err != nil {
		return opErr("kill", name, err)
	}
	m.logf("Killed task '%s'", name)
	return nil
}
