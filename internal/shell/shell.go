// Package shell runs short-lived shell commands with a hard deadline.
// Hooks and health probes both go through Run.
package shell

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"strings"
	"time"
)

// Result captures the outcome of one command run.
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
	TimedOut bool
	Duration time.Duration
	Err      error // launch or wait error other than a non-zero exit
}

// OK reports whether the command exited zero within its deadline.
func (r Result) OK() bool {
	return r.Err == nil && !r.TimedOut && r.ExitCode == 0
}

// Run executes command through "sh -c" in dir with the given timeout.
//
// The caller's cancellation does not abort the command: the subprocess is
// bounded only by timeout. On timeout the whole process group is killed.
func Run(ctx context.Context, dir, command string, timeout time.Duration) Result {
	runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, "sh", "-c", command)
	if dir != "" {
		cmd.Dir = expandHome(dir)
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	setProcessGroup(cmd)
	cmd.Cancel = func() error {
		killProcessGroup(cmd)
		return nil
	}
	cmd.WaitDelay = time.Second

	start := time.Now()
	err := cmd.Run()
	res := Result{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
	}

	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		res.TimedOut = true
		res.ExitCode = -1
		return res
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
			return res
		}
		res.ExitCode = -1
		res.Err = err
	}
	return res
}

// Lines splits captured output into trimmed, non-empty lines.
func Lines(out string) []string {
	var lines []string
	for _, l := range strings.Split(out, "\n") {
		if l = strings.TrimRight(l, "\r \t"); l != "" {
			lines = append(lines, l)
		}
	}
	return lines
}
