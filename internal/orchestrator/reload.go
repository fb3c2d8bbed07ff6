package orchestrator

import (
	"context"
	"reflect"
	"slices"

	"github.com/nc9/taskmux/internal/telemetry"
)

// ReloadResult describes how a new snapshot differs from the old one.
type ReloadResult struct {
	Added   []string
	Removed []string
	Changed []string
}

// Empty reports whether the task set is unchanged.
func (r ReloadResult) Empty() bool {
	return len(r.Added) == 0 && len(r.Removed) == 0 && len(r.Changed) == 0
}

// Reload swaps in a new snapshot. Operations already running finish with
// the snapshot they started with. Health records of removed tasks are dropped.
func (m *Manager) Reload(next Snapshot) ReloadResult {
	prev := m.snap.Load()
	var res ReloadResult
	for _, t := range next.Graph.Tasks() {
		old, ok := prev.Graph.Task(t.Name)
		switch {
		case !ok:
			res.Added = append(res.Added, t.Name)
		case !reflect.DeepEqual(old, t):
			res.Changed = append(res.Changed, t.Name)
		}
	}
	for _, name := range prev.Graph.Names() {
		if !next.Graph.Has(name) {
			res.Removed = append(res.Removed, name)
		}
	}

	m.snap.Store(&next)

	m.mu.Lock()
	for _, name := range res.Removed {
		delete(m.records, name)
	}
	m.mu.Unlock()
	return res
}

// ApplyReload brings a running session in line with the current snapshot:
// every running task is restarted so it picks up its new definition, and
// added auto-start tasks are launched. Nothing happens without a session.
func (m *Manager) ApplyReload(ctx context.Context, res ReloadResult) error {
	snap := m.snap.Load()
	exists, err := m.sessionExists(snap.Session)
	if err != nil {
		telemetry.RecordReload(ctx, err)
		return opErr("reload", "", err)
	}
	if !exists {
		telemetry.RecordReload(ctx, nil)
		return nil
	}

	var firstErr error
	for _, t := range snap.Graph.Tasks() {
		_, running := m.pane(snap.Session, t.Name)
		switch {
		case running:
			m.logf("Reloading task '%s' due to config change", t.Name)
		case slices.Contains(res.Added, t.Name) && t.AutoStart:
			m.logf("Adding new task '%s'", t.Name)
		default:
			continue
		}
		if err := m.Restart(ctx, t.Name); err != nil {
			m.logf("Reload of '%s' failed: %v", t.Name, err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	telemetry.RecordReload(ctx, firstErr)
	return firstErr
}
