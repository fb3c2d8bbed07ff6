// Package health decides whether a task is healthy, either by running its
// probe command or by checking what its pane is running.
package health

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/nc9/taskmux/internal/shell"
	"github.com/nc9/taskmux/internal/taskgraph"
	"github.com/nc9/taskmux/internal/telemetry"
)

// Strategy is how a task's health is determined. It is either a
// CommandProbe or a LivenessProbe.
type Strategy interface {
	Kind() string
	isStrategy()
}

// CommandProbe runs a shell command; exit status zero means healthy.
type CommandProbe struct {
	Command string
	Dir     string
	Timeout time.Duration
}

func (CommandProbe) Kind() string { return "command" }
func (CommandProbe) isStrategy()  {}

// LivenessProbe treats a task as healthy while its pane runs something
// other than an idle shell.
type LivenessProbe struct{}

func (LivenessProbe) Kind() string { return "liveness" }
func (LivenessProbe) isStrategy()  {}

// StrategyFor resolves the strategy for a task.
func StrategyFor(t taskgraph.Task) Strategy {
	if strings.TrimSpace(t.HealthCheck) == "" {
		return LivenessProbe{}
	}
	return CommandProbe{
		Command: t.HealthCheck,
		Dir:     t.Dir,
		Timeout: t.ProbeTimeout(),
	}
}

// idleShells are foreground commands that mean the task's process has exited
// and the pane is back at a prompt.
var idleShells = map[string]bool{
	"bash": true, "zsh": true, "sh": true, "fish": true, "dash": true,
	"ksh": true, "mksh": true, "tcsh": true, "csh": true, "ash": true,
	"nu": true, "pwsh": true,
}

// IsIdleShell reports whether command is an interactive shell with nothing running.
// Login shell variants such as "-zsh" and full paths are recognized.
func IsIdleShell(command string) bool {
	c := strings.TrimSpace(command)
	c = strings.TrimPrefix(c, "-")
	c = filepath.Base(c)
	return idleShells[c]
}

// PaneInspector reports the foreground command of the pane running a task.
// ok is false when the task has no pane.
type PaneInspector interface {
	ForegroundCommand(ctx context.Context, task string) (command string, ok bool)
}

// Evaluator checks task health.
type Evaluator struct {
	panes PaneInspector
	probe func(ctx context.Context, dir, command string, timeout time.Duration) shell.Result
	timer func() backoff.Timer
}

// NewEvaluator creates an Evaluator that uses panes for liveness checks.
func NewEvaluator(panes PaneInspector) *Evaluator {
	return &Evaluator{
		panes: panes,
		probe: shell.Run,
	}
}

// Check evaluates a task once. A nil task is never healthy.
func (e *Evaluator) Check(ctx context.Context, t *taskgraph.Task) bool {
	if t == nil {
		return false
	}
	strategy := StrategyFor(*t)
	var healthy bool
	switch s := strategy.(type) {
	case CommandProbe:
		healthy = e.probe(ctx, s.Dir, s.Command, s.Timeout).OK()
	case LivenessProbe:
		healthy = e.alive(ctx, t.Name)
	}
	telemetry.RecordHealthCheck(ctx, t.Name, strategy.Kind(), healthy)
	return healthy
}

func (e *Evaluator) alive(ctx context.Context, task string) bool {
	if e.panes == nil {
		return false
	}
	cmd, ok := e.panes.ForegroundCommand(ctx, task)
	if !ok {
		return false
	}
	cmd = strings.TrimSpace(cmd)
	return cmd != "" && !IsIdleShell(cmd)
}

var errNotHealthy = errors.New("not healthy")

// WaitUntilHealthy polls Check every health interval until the task is
// healthy or timeout has been spent. Elapsed time is counted one interval per
// poll; the poll that reaches the deadline is the final answer.
// Cancelling ctx stops polling early and returns the result of one last check.
func (e *Evaluator) WaitUntilHealthy(ctx context.Context, t *taskgraph.Task, timeout time.Duration) bool {
	if t == nil {
		return false
	}
	interval := t.PollInterval()

	var elapsed time.Duration
	var healthy bool
	op := func() error {
		healthy = e.Check(ctx, t)
		if healthy {
			return nil
		}
		if elapsed >= timeout {
			return backoff.Permanent(errNotHealthy)
		}
		elapsed += interval
		return errNotHealthy
	}

	b := backoff.WithContext(backoff.NewConstantBackOff(interval), ctx)
	var timer backoff.Timer
	if e.timer != nil {
		timer = e.timer()
	}
	err := backoff.RetryNotifyWithTimer(op, b, nil, timer)
	if err == nil {
		return true
	}
	if ctx.Err() != nil && !healthy {
		return e.Check(context.WithoutCancel(ctx), t)
	}
	return healthy
}
