// Package taskgraph holds the validated dependency graph of supervised tasks
// and the ordering algorithms that run over it.
package taskgraph

import "time"

// Default health settings applied when a task leaves them unset.
const (
	DefaultHealthInterval = 10 * time.Second
	DefaultHealthTimeout  = 5 * time.Second
	DefaultHealthRetries  = 3
)

// Hooks are optional shell commands run around a lifecycle transition.
// An empty string means no hook.
type Hooks struct {
	BeforeStart string
	AfterStart  string
	BeforeStop  string
	AfterStop   string
}

// IsZero reports whether no hook is set.
func (h Hooks) IsZero() bool {
	return h == Hooks{}
}

// Task is one supervised long-running command.
type Task struct {
	Name      string
	Command   string
	AutoStart bool
	Dir       string // working directory, empty for the session default

	// HealthCheck is a shell command whose zero exit means healthy.
	// Empty means liveness of the pane's foreground process is used instead.
	HealthCheck    string
	HealthInterval time.Duration
	HealthTimeout  time.Duration
	HealthRetries  int

	DependsOn []string
	Hooks     Hooks
}

// NewTask returns a task with default settings.
func NewTask(name, command string) Task {
	return Task{
		Name:           name,
		Command:        command,
		AutoStart:      true,
		HealthInterval: DefaultHealthInterval,
		HealthTimeout:  DefaultHealthTimeout,
		HealthRetries:  DefaultHealthRetries,
	}
}

// DependencyWait is how long dependents wait for this task to become healthy.
func (t Task) DependencyWait() time.Duration {
	return time.Duration(t.retries()) * t.interval()
}

func (t Task) interval() time.Duration {
	if t.HealthInterval <= 0 {
		return DefaultHealthInterval
	}
	return t.HealthInterval
}

func (t Task) retries() int {
	if t.HealthRetries <= 0 {
		return DefaultHealthRetries
	}
	return t.HealthRetries
}

// PollInterval returns the health polling interval, falling back to the default.
func (t Task) PollInterval() time.Duration {
	return t.interval()
}

// ProbeTimeout returns the health probe timeout, falling back to the default.
func (t Task) ProbeTimeout() time.Duration {
	if t.HealthTimeout <= 0 {
		return DefaultHealthTimeout
	}
	return t.HealthTimeout
}

func (t Task) clone() Task {
	c := t
	if t.DependsOn != nil {
		c.DependsOn = append([]string(nil), t.DependsOn...)
	}
	return c
}
