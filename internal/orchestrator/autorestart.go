package orchestrator

import (
	"context"

	"github.com/nc9/taskmux/internal/telemetry"
)

// HealthResult is one task's health as seen by CheckHealth.
type HealthResult struct {
	Name    string `json:"name"`
	Running bool   `json:"running"`
	Healthy bool   `json:"healthy"`
}

// CheckHealth evaluates and records the health of every task.
func (m *Manager) CheckHealth(ctx context.Context) []HealthResult {
	snap := m.snap.Load()
	tasks := snap.Graph.Tasks()
	out := make([]HealthResult, 0, len(tasks))
	for _, t := range tasks {
		healthy := m.health.Check(ctx, snap.resolvedTask(t))
		_, running := m.pane(snap.Session, t.Name)
		m.record(t, healthy, running)
		out = append(out, HealthResult{Name: t.Name, Running: running, Healthy: healthy})
	}
	return out
}

// AutoRestartUnhealthy is one step of the supervision loop. It checks every
// task and restarts those that were healthy at the previous step and are
// unhealthy now. A task that stays unhealthy is not restarted again until it
// has been seen healthy. Tasks without a pane are recorded but never
// restarted. It returns the names of restarted tasks.
func (m *Manager) AutoRestartUnhealthy(ctx context.Context) []string {
	snap := m.snap.Load()
	exists, err := m.sessionExists(snap.Session)
	if err != nil || !exists {
		return nil
	}

	var restarted []string
	for _, t := range snap.Graph.Tasks() {
		healthy := m.health.Check(ctx, snap.resolvedTask(t))
		_, running := m.pane(snap.Session, t.Name)
		wasHealthy := m.record(t, healthy, running)
		if healthy || !wasHealthy || !running {
			continue
		}

		m.logf("Auto-restarting unhealthy task: %s", t.Name)
		err := m.Restart(ctx, t.Name)
		telemetry.RecordAutoRestart(ctx, t.Name, err)
		if err != nil {
			m.logf("Auto-restart of '%s' failed: %v", t.Name, err)
			continue
		}
		restarted = append(restarted, t.Name)
	}
	return restarted
}
