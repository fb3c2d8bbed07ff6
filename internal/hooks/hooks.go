// Package hooks runs lifecycle hook commands around task transitions.
package hooks

import (
	"context"
	"strings"
	"time"

	"github.com/nc9/taskmux/internal/shell"
	"github.com/nc9/taskmux/internal/telemetry"
)

// DefaultTimeout bounds every hook execution.
const DefaultTimeout = 30 * time.Second

// Point names the lifecycle transition a hook is attached to.
type Point string

const (
	BeforeStart Point = "before_start"
	AfterStart  Point = "after_start"
	BeforeStop  Point = "before_stop"
	AfterStop   Point = "after_stop"
)

// Runner executes hook commands synchronously.
type Runner struct {
	// Dir is the working directory for hooks, usually the project root.
	Dir     string
	Timeout time.Duration

	logf func(format string, args ...interface{})
	exec func(ctx context.Context, dir, command string, timeout time.Duration) shell.Result
}

// NewRunner creates a Runner that reports through logf.
func NewRunner(dir string, logf func(format string, args ...interface{})) *Runner {
	if logf == nil {
		logf = func(string, ...interface{}) {}
	}
	return &Runner{
		Dir:     dir,
		Timeout: DefaultTimeout,
		logf:    logf,
		exec:    shell.Run,
	}
}

// Run executes command and reports whether it succeeded. An empty command
// succeeds without running anything. task is empty for global hooks and is
// used only to label output.
func (r *Runner) Run(ctx context.Context, point Point, command, task string) bool {
	if strings.TrimSpace(command) == "" {
		return true
	}
	label := ""
	if task != "" {
		label = "[" + task + "] "
	}
	r.logf("%sRunning %s hook: %s", label, point, command)

	timeout := r.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	res := r.exec(ctx, r.Dir, command, timeout)
	ok := res.OK()
	telemetry.RecordHook(ctx, string(point), task, float64(res.Duration.Milliseconds()), ok)

	if out := strings.TrimSpace(res.Stdout); out != "" {
		r.logf("%s", out)
	}
	switch {
	case res.TimedOut:
		r.logf("%sHook timed out (%s): %s", label, timeout, command)
	case res.Err != nil:
		r.logf("%sHook error: %v", label, res.Err)
	case res.ExitCode != 0:
		r.logf("%sHook failed (exit %d): %s", label, res.ExitCode, command)
		if stderr := strings.TrimSpace(res.Stderr); stderr != "" {
			r.logf("%s", stderr)
		}
	}
	return ok
}
