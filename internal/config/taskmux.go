// Package config reads and writes the taskmux.toml project file.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/nc9/taskmux/internal/orchestrator"
	"github.com/nc9/taskmux/internal/taskgraph"
)

const (
	// Filename is the project file looked up in the working directory.
	Filename = "taskmux.toml"
	// DefaultName is the session name used when the file does not set one.
	DefaultName = "taskmux"
	// EnvPath overrides the project file location.
	EnvPath = "TASKMUX_CONFIG"
)

// HooksConfig holds optional lifecycle hook commands.
type HooksConfig struct {
	BeforeStart string `toml:"before_start,omitempty"`
	AfterStart  string `toml:"after_start,omitempty"`
	BeforeStop  string `toml:"before_stop,omitempty"`
	AfterStop   string `toml:"after_stop,omitempty"`
}

func (h HooksConfig) isZero() bool {
	return h == HooksConfig{}
}

func (h HooksConfig) graphHooks() taskgraph.Hooks {
	return taskgraph.Hooks{
		BeforeStart: h.BeforeStart,
		AfterStart:  h.AfterStart,
		BeforeStop:  h.BeforeStop,
		AfterStop:   h.AfterStop,
	}
}

// TaskConfig is one [tasks.<name>] table. Health durations are in seconds;
// zero means the default.
type TaskConfig struct {
	Name           string       `toml:"-"`
	Command        string       `toml:"command"`
	AutoStart      *bool        `toml:"auto_start,omitempty"`
	Cwd            string       `toml:"cwd,omitempty"`
	HealthCheck    string       `toml:"health_check,omitempty"`
	HealthInterval int          `toml:"health_interval,omitempty"`
	HealthTimeout  int          `toml:"health_timeout,omitempty"`
	HealthRetries  int          `toml:"health_retries,omitempty"`
	DependsOn      []string     `toml:"depends_on,omitempty"`
	Hooks          *HooksConfig `toml:"hooks,omitempty"`
}

// IsAutoStart reports whether the task starts with the session.
func (t TaskConfig) IsAutoStart() bool {
	return t.AutoStart == nil || *t.AutoStart
}

// Task converts the table into a graph task, applying defaults.
func (t TaskConfig) Task() taskgraph.Task {
	task := taskgraph.NewTask(t.Name, t.Command)
	task.AutoStart = t.IsAutoStart()
	task.Dir = t.Cwd
	task.HealthCheck = t.HealthCheck
	if t.HealthInterval > 0 {
		task.HealthInterval = time.Duration(t.HealthInterval) * time.Second
	}
	if t.HealthTimeout > 0 {
		task.HealthTimeout = time.Duration(t.HealthTimeout) * time.Second
	}
	if t.HealthRetries > 0 {
		task.HealthRetries = t.HealthRetries
	}
	task.DependsOn = append([]string(nil), t.DependsOn...)
	if t.Hooks != nil {
		task.Hooks = t.Hooks.graphHooks()
	}
	return task
}

// normalized drops values equal to their defaults so they are not written.
func (t TaskConfig) normalized() TaskConfig {
	if t.AutoStart != nil && *t.AutoStart {
		t.AutoStart = nil
	}
	if t.HealthInterval == int(taskgraph.DefaultHealthInterval/time.Second) {
		t.HealthInterval = 0
	}
	if t.HealthTimeout == int(taskgraph.DefaultHealthTimeout/time.Second) {
		t.HealthTimeout = 0
	}
	if t.HealthRetries == taskgraph.DefaultHealthRetries {
		t.HealthRetries = 0
	}
	if t.Hooks != nil && t.Hooks.isZero() {
		t.Hooks = nil
	}
	if len(t.DependsOn) == 0 {
		t.DependsOn = nil
	}
	return t
}

// Config is the parsed project file. Tasks keep document order.
type Config struct {
	Name      string
	AutoStart bool
	Theme     string // tmux status bar theme; empty picks one from the name
	Hooks     HooksConfig
	Tasks     []TaskConfig

	// Warnings lists unknown keys found while parsing.
	Warnings []string
}

// Default returns the configuration used when no project file exists.
func Default() *Config {
	return &Config{Name: DefaultName, AutoStart: true}
}

// ResolvePath picks the project file: an explicit path wins, then
// $TASKMUX_CONFIG, then taskmux.toml in the working directory.
func ResolvePath(explicit string) string {
	if explicit != "" {
		return explicit
	}
	if env := os.Getenv(EnvPath); env != "" {
		return env
	}
	return Filename
}

// Exists reports whether a project file is present at path.
func Exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// Load reads and validates the project file. A missing file yields Default.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Default(), nil
		}
		return nil, fmt.Errorf("reading config: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

type rawConfig struct {
	Name      *string                   `toml:"name"`
	AutoStart *bool                     `toml:"auto_start"`
	Theme     string                    `toml:"theme"`
	Hooks     HooksConfig               `toml:"hooks"`
	Tasks     map[string]toml.Primitive `toml:"tasks"`
}

// Parse decodes and validates a project file. A task may be a table or a
// bare command string.
func Parse(data []byte) (*Config, error) {
	var raw rawConfig
	md, err := toml.Decode(string(data), &raw)
	if err != nil {
		return nil, fmt.Errorf("invalid TOML: %w", err)
	}

	cfg := Default()
	if raw.Name != nil {
		cfg.Name = *raw.Name
	}
	if raw.AutoStart != nil {
		cfg.AutoStart = *raw.AutoStart
	}
	cfg.Theme = raw.Theme
	cfg.Hooks = raw.Hooks

	for _, key := range md.Keys() {
		if len(key) != 2 || key[0] != "tasks" {
			continue
		}
		name := key[1]
		prim := raw.Tasks[name]
		tc := TaskConfig{Name: name}
		if md.Type("tasks", name) == "String" {
			if err := md.PrimitiveDecode(prim, &tc.Command); err != nil {
				return nil, fmt.Errorf("task '%s': %w", name, err)
			}
		} else if err := md.PrimitiveDecode(prim, &tc); err != nil {
			return nil, fmt.Errorf("invalid task definition for '%s': %w", name, err)
		}
		tc.Name = name
		cfg.Tasks = append(cfg.Tasks, tc)
	}

	for _, key := range md.Undecoded() {
		cfg.Warnings = append(cfg.Warnings, fmt.Sprintf("Unknown config key: '%s'", key.String()))
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Task looks up a task by name.
func (c *Config) Task(name string) (TaskConfig, bool) {
	for _, t := range c.Tasks {
		if t.Name == name {
			return t, true
		}
	}
	return TaskConfig{}, false
}

// TaskNames returns task names in document order.
func (c *Config) TaskNames() []string {
	names := make([]string, 0, len(c.Tasks))
	for _, t := range c.Tasks {
		names = append(names, t.Name)
	}
	return names
}

// Validate checks every task has a command and that dependencies form a
// valid graph.
func (c *Config) Validate() error {
	for _, t := range c.Tasks {
		if strings.TrimSpace(t.Command) == "" {
			return fmt.Errorf("task '%s' has no command", t.Name)
		}
	}
	_, err := c.Graph()
	return err
}

// Graph builds the validated task graph.
func (c *Config) Graph() (*taskgraph.Graph, error) {
	tasks := make([]taskgraph.Task, 0, len(c.Tasks))
	for _, t := range c.Tasks {
		tasks = append(tasks, t.Task())
	}
	return taskgraph.New(tasks)
}

// Snapshot builds the orchestrator's view of the project rooted at dir.
func (c *Config) Snapshot(dir string) (orchestrator.Snapshot, error) {
	g, err := c.Graph()
	if err != nil {
		return orchestrator.Snapshot{}, err
	}
	return orchestrator.Snapshot{
		Session:   c.Name,
		Dir:       dir,
		AutoStart: c.AutoStart,
		Hooks:     c.Hooks.graphHooks(),
		Graph:     g,
	}, nil
}

// ProjectDir returns the directory holding the project file at path.
func ProjectDir(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return filepath.Dir(path)
	}
	return filepath.Dir(abs)
}

type header struct {
	Name      string       `toml:"name"`
	AutoStart *bool        `toml:"auto_start,omitempty"`
	Theme     string       `toml:"theme,omitempty"`
	Hooks     *HooksConfig `toml:"hooks,omitempty"`
}

// Encode renders cfg as TOML, omitting defaults and keeping task order.
func Encode(cfg *Config) ([]byte, error) {
	var buf bytes.Buffer
	h := header{Name: cfg.Name, Theme: cfg.Theme}
	if !cfg.AutoStart {
		f := false
		h.AutoStart = &f
	}
	if !cfg.Hooks.isZero() {
		hooks := cfg.Hooks
		h.Hooks = &hooks
	}
	if err := encodeTOML(&buf, h); err != nil {
		return nil, err
	}

	for _, t := range cfg.Tasks {
		var chunk bytes.Buffer
		wrapped := map[string]map[string]TaskConfig{"tasks": {t.Name: t.normalized()}}
		if err := encodeTOML(&chunk, wrapped); err != nil {
			return nil, fmt.Errorf("encoding task '%s': %w", t.Name, err)
		}
		// [tasks.<name>] defines the parent table implicitly; a repeated
		// bare [tasks] header would be a duplicate table.
		for _, line := range strings.SplitAfter(chunk.String(), "\n") {
			if strings.TrimSpace(line) == "[tasks]" {
				continue
			}
			buf.WriteString(line)
		}
	}
	return buf.Bytes(), nil
}

func encodeTOML(buf *bytes.Buffer, v interface{}) error {
	enc := toml.NewEncoder(buf)
	enc.Indent = ""
	return enc.Encode(v)
}

// Write validates cfg and writes it to path.
func Write(path string, cfg *Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	data, err := Encode(cfg)
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("creating config dir: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}

// AddTask adds or replaces a task and persists the file.
func AddTask(path string, task TaskConfig) (*Config, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	replaced := false
	for i, t := range cfg.Tasks {
		if t.Name == task.Name {
			cfg.Tasks[i] = task
			replaced = true
			break
		}
	}
	if !replaced {
		cfg.Tasks = append(cfg.Tasks, task)
	}
	if err := Write(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// RemoveTask deletes a task and persists the file. removed is false when the
// task did not exist, in which case nothing is written.
func RemoveTask(path, name string) (cfg *Config, removed bool, err error) {
	cfg, err = Load(path)
	if err != nil {
		return nil, false, err
	}
	var kept []TaskConfig
	for _, t := range cfg.Tasks {
		if t.Name == name {
			removed = true
			continue
		}
		kept = append(kept, t)
	}
	if !removed {
		return cfg, false, nil
	}
	cfg.Tasks = kept
	if err := Write(path, cfg); err != nil {
		return nil, false, err
	}
	return cfg, true, nil
}
