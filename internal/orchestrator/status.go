package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/nc9/taskmux/internal/logtail"
	"github.com/nc9/taskmux/internal/taskgraph"
)

// TaskStatus is the observable state of one task.
type TaskStatus struct {
	Name      string    `json:"name" yaml:"name"`
	Command   string    `json:"command" yaml:"command"`
	State     TaskState `json:"state" yaml:"state"`
	Running   bool      `json:"running" yaml:"running"`
	Healthy   bool      `json:"healthy" yaml:"healthy"`
	LastCheck time.Time `json:"last_check" yaml:"last_check"`
	AutoStart bool      `json:"auto_start" yaml:"auto_start"`
	Dir       string    `json:"cwd,omitempty" yaml:"cwd,omitempty"`
	DependsOn []string  `json:"depends_on,omitempty" yaml:"depends_on,omitempty"`
}

// StatusReport is the state of the whole project.
type StatusReport struct {
	SessionName   string                `json:"session_name" yaml:"session_name"`
	SessionExists bool                  `json:"session_exists" yaml:"session_exists"`
	Tasks         []TaskStatus          `json:"-" yaml:"-"` // config order
	TaskMap       map[string]TaskStatus `json:"tasks" yaml:"tasks"`
	Timestamp     time.Time             `json:"timestamp" yaml:"timestamp"`
}

// Status reports every task's state. Health is only evaluated for tasks
// that have a pane. It does not wait for lifecycle operations in flight.
func (m *Manager) Status(ctx context.Context) StatusReport {
	snap := m.snap.Load()
	exists, _ := m.sessionExists(snap.Session)
	report := StatusReport{
		SessionName:   snap.Session,
		SessionExists: exists,
		TaskMap:       make(map[string]TaskStatus),
		Timestamp:     m.now(),
	}
	for _, t := range snap.Graph.Tasks() {
		st := m.taskStatus(ctx, snap, t, exists)
		report.Tasks = append(report.Tasks, st)
		report.TaskMap[t.Name] = st
	}
	return report
}

// TaskStatus reports one task's state.
func (m *Manager) TaskStatus(ctx context.Context, name string) (TaskStatus, error) {
	snap := m.snap.Load()
	t, ok := snap.Graph.Task(name)
	if !ok {
		return TaskStatus{}, notFound("status", name)
	}
	exists, _ := m.sessionExists(snap.Session)
	return m.taskStatus(ctx, snap, t, exists), nil
}

func (m *Manager) taskStatus(ctx context.Context, snap *Snapshot, t taskgraph.Task, sessionUp bool) TaskStatus {
	st := TaskStatus{
		Name:      t.Name,
		Command:   t.Command,
		State:     StateAbsent,
		AutoStart: t.AutoStart,
		Dir:       t.Dir,
		DependsOn: t.DependsOn,
		LastCheck: m.now(),
	}
	if sessionUp {
		if _, ok := m.pane(snap.Session, t.Name); ok {
			st.Running = true
			st.State = StateRunning
			st.Healthy = m.health.Check(ctx, snap.resolvedTask(t))
		}
	}
	if s, ok := m.inflightState(t.Name); ok {
		st.State = s
	}
	if rec, ok := m.Record(t.Name); ok && !st.Running {
		st.LastCheck = rec.LastCheck
	}
	return st
}

// Inspection is the detailed state of one task and its pane.
type Inspection struct {
	Name               string   `json:"name" yaml:"name"`
	Command            string   `json:"command" yaml:"command"`
	AutoStart          bool     `json:"auto_start" yaml:"auto_start"`
	Dir                string   `json:"cwd" yaml:"cwd"`
	HealthCheck        string   `json:"health_check" yaml:"health_check"`
	DependsOn          []string `json:"depends_on" yaml:"depends_on"`
	Running            bool     `json:"running" yaml:"running"`
	Healthy            bool     `json:"healthy" yaml:"healthy"`
	PID                *int     `json:"pid" yaml:"pid"`
	PaneCurrentCommand *string  `json:"pane_current_command" yaml:"pane_current_command"`
	PaneCurrentPath    *string  `json:"pane_current_path" yaml:"pane_current_path"`
	WindowID           *string  `json:"window_id" yaml:"window_id"`
	PaneID             *string  `json:"pane_id" yaml:"pane_id"`
}

// Inspect reports a task's definition together with its live pane details.
func (m *Manager) Inspect(ctx context.Context, name string) (Inspection, error) {
	snap := m.snap.Load()
	t, ok := snap.Graph.Task(name)
	if !ok {
		return Inspection{}, notFound("inspect", name)
	}
	info := Inspection{
		Name:        t.Name,
		Command:     t.Command,
		AutoStart:   t.AutoStart,
		Dir:         t.Dir,
		HealthCheck: t.HealthCheck,
		DependsOn:   t.DependsOn,
	}
	if info.DependsOn == nil {
		info.DependsOn = []string{}
	}
	pane, running := m.pane(snap.Session, name)
	if !running {
		return info, nil
	}
	pid, cmd, path := pane.PID, pane.Command, pane.Path
	windowID, paneID := pane.WindowID, string(pane.ID)
	info.Running = true
	info.PID = &pid
	info.PaneCurrentCommand = &cmd
	info.PaneCurrentPath = &path
	info.WindowID = &windowID
	info.PaneID = &paneID
	info.Healthy = m.health.Check(ctx, snap.resolvedTask(t))
	return info, nil
}

// Logs captures the last lines of a task's pane.
func (m *Manager) Logs(name string, lines int) ([]string, error) {
	snap := m.snap.Load()
	exists, err := m.sessionExists(snap.Session)
	if err != nil {
		return nil, opErr("logs", name, err)
	}
	if !exists {
		return nil, noSession("logs", name, snap.Session)
	}
	if !snap.Graph.Has(name) {
		return nil, notFound("logs", name)
	}
	pane, ok := m.pane(snap.Session, name)
	if !ok {
		return nil, &OpError{Op: "logs", Task: name, Err: ErrNotRunning,
			msg: fmt.Sprintf("task '%s' not found", name)}
	}
	out, err := m.host.Capture(pane.ID, lines)
	if err != nil {
		return nil, opErr("logs", name, err)
	}
	return out, nil
}

// Streams returns a log stream for each named task that has a pane. Tasks
// are colored by their position in names.
func (m *Manager) Streams(names []string) []logtail.Stream {
	snap := m.snap.Load()
	var out []logtail.Stream
	for i, name := range names {
		pane, ok := m.pane(snap.Session, name)
		if !ok {
			continue
		}
		id := pane.ID
		out = append(out, logtail.Stream{
			Name:  name,
			Index: i,
			Capture: func(n int) ([]string, error) {
				return m.host.Capture(id, n)
			},
		})
	}
	return out
}
