package health

import (
	"context"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nc9/taskmux/internal/shell"
	"github.com/nc9/taskmux/internal/taskgraph"
)

type fakePanes map[string]string

func (f fakePanes) ForegroundCommand(_ context.Context, task string) (string, bool) {
	cmd, ok := f[task]
	return cmd, ok
}

// instantTimer fires immediately and records every requested delay.
type instantTimer struct {
	c      chan time.Time
	delays *[]time.Duration
}

func (t *instantTimer) Start(d time.Duration) {
	*t.delays = append(*t.delays, d)
	t.c <- time.Time{}
}
func (t *instantTimer) Stop()               {}
func (t *instantTimer) C() <-chan time.Time { return t.c }

func newTestEvaluator(panes PaneInspector, results ...bool) (*Evaluator, *int, *[]time.Duration) {
	e := NewEvaluator(panes)
	calls := 0
	e.probe = func(ctx context.Context, dir, command string, timeout time.Duration) shell.Result {
		i := calls
		calls++
		if i < len(results) && results[i] {
			return shell.Result{}
		}
		return shell.Result{ExitCode: 1}
	}
	delays := &[]time.Duration{}
	e.timer = func() backoff.Timer {
		return &instantTimer{c: make(chan time.Time, 1), delays: delays}
	}
	return e, &calls, delays
}

func probed(name string) *taskgraph.Task {
	t := taskgraph.NewTask(name, "serve")
	t.HealthCheck = "curl -sf localhost"
	return &t
}

func TestStrategyFor(t *testing.T) {
	tk := taskgraph.NewTask("api", "serve")
	assert.Equal(t, LivenessProbe{}, StrategyFor(tk))

	tk.HealthCheck = "pg_isready"
	tk.Dir = "/srv"
	tk.HealthTimeout = 2 * time.Second
	assert.Equal(t, CommandProbe{Command: "pg_isready", Dir: "/srv", Timeout: 2 * time.Second}, StrategyFor(tk))
}

func TestIsIdleShell(t *testing.T) {
	for _, c := range []string{"bash", "zsh", "-zsh", "/bin/sh", "fish", " dash "} {
		assert.True(t, IsIdleShell(c), c)
	}
	for _, c := range []string{"node", "python3", "postgres", ""} {
		assert.False(t, IsIdleShell(c), c)
	}
}

func TestCheck_NilTask(t *testing.T) {
	e, _, _ := newTestEvaluator(nil)
	assert.False(t, e.Check(context.Background(), nil))
}

func TestCheck_CommandProbe(t *testing.T) {
	e, calls, _ := newTestEvaluator(nil, true, false)
	assert.True(t, e.Check(context.Background(), probed("api")))
	assert.False(t, e.Check(context.Background(), probed("api")))
	assert.Equal(t, 2, *calls)
}

func TestCheck_Liveness(t *testing.T) {
	panes := fakePanes{"node-task": "node", "shell-task": "bash", "blank": ""}
	e, calls, _ := newTestEvaluator(panes)

	tk := taskgraph.NewTask("node-task", "node server.js")
	assert.True(t, e.Check(context.Background(), &tk))

	tk.Name = "shell-task"
	assert.False(t, e.Check(context.Background(), &tk))

	tk.Name = "blank"
	assert.False(t, e.Check(context.Background(), &tk))

	tk.Name = "no-pane"
	assert.False(t, e.Check(context.Background(), &tk))

	assert.Equal(t, 0, *calls, "liveness must not run probe commands")
}

func TestWaitUntilHealthy_ImmediatelyHealthy(t *testing.T) {
	e, calls, delays := newTestEvaluator(nil, true)
	assert.True(t, e.WaitUntilHealthy(context.Background(), probed("db"), 30*time.Second))
	assert.Equal(t, 1, *calls)
	assert.Empty(t, *delays)
}

func TestWaitUntilHealthy_BecomesHealthy(t *testing.T) {
	e, calls, delays := newTestEvaluator(nil, false, false, true)
	tk := probed("db")
	tk.HealthInterval = time.Second
	assert.True(t, e.WaitUntilHealthy(context.Background(), tk, 10*time.Second))
	assert.Equal(t, 3, *calls)
	assert.Equal(t, []time.Duration{time.Second, time.Second}, *delays)
}

func TestWaitUntilHealthy_BoundedByTimeout(t *testing.T) {
	e, calls, delays := newTestEvaluator(nil)
	tk := probed("db")
	tk.HealthInterval = time.Second
	assert.False(t, e.WaitUntilHealthy(context.Background(), tk, 3*time.Second))

	// Polls at 0s, 1s, 2s, then the final check at 3s.
	assert.Equal(t, 4, *calls)
	var slept time.Duration
	for _, d := range *delays {
		slept += d
	}
	assert.Equal(t, 3*time.Second, slept)
}

func TestWaitUntilHealthy_HealthyOnFinalCheck(t *testing.T) {
	e, calls, _ := newTestEvaluator(nil, false, false, true)
	tk := probed("db")
	tk.HealthInterval = time.Second
	assert.True(t, e.WaitUntilHealthy(context.Background(), tk, 2*time.Second))
	assert.Equal(t, 3, *calls)
}

func TestWaitUntilHealthy_ZeroTimeoutChecksOnce(t *testing.T) {
	e, calls, _ := newTestEvaluator(nil)
	assert.False(t, e.WaitUntilHealthy(context.Background(), probed("db"), 0))
	assert.Equal(t, 1, *calls)
}

func TestWaitUntilHealthy_CancelledContext(t *testing.T) {
	e := NewEvaluator(nil)
	calls := 0
	e.probe = func(ctx context.Context, dir, command string, timeout time.Duration) shell.Result {
		calls++
		return shell.Result{ExitCode: 1}
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	assert.False(t, e.WaitUntilHealthy(ctx, probed("db"), time.Hour))
	assert.Less(t, time.Since(start), 5*time.Second)
	require.Equal(t, 2, calls, "one poll then one last check after cancellation")
}
