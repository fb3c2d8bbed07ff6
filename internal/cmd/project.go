package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nc9/taskmux/internal/config"
	"github.com/nc9/taskmux/internal/exitcode"
	"github.com/nc9/taskmux/internal/orchestrator"
	"github.com/nc9/taskmux/internal/session"
	"github.com/nc9/taskmux/internal/style"
	"github.com/nc9/taskmux/internal/tmux"
)

// newHost builds the terminal host for a project. Tests swap in a session.Double.
var newHost = func(cfg *config.Config) session.Host {
	return tmux.NewTmux().WithTheme(cfg.Theme)
}

// project bundles what a command needs to act on the current project.
type project struct {
	path string
	cfg  *config.Config
	mgr  *orchestrator.Manager
}

// loadProject reads the project file and builds a Manager whose progress
// messages go to the command's stdout.
func loadProject(cmd *cobra.Command) (*project, error) {
	out := cmd.OutOrStdout()
	return loadProjectWithLogf(cmd, func(format string, args ...interface{}) {
		fmt.Fprintf(out, format+"\n", args...)
	})
}

func loadProjectWithLogf(cmd *cobra.Command, logf func(format string, args ...interface{})) (*project, error) {
	path := config.ResolvePath(configPath)
	cfg, err := config.Load(path)
	if err != nil {
		return nil, exitcode.Config(err)
	}
	for _, w := range cfg.Warnings {
		fmt.Fprintf(cmd.ErrOrStderr(), "%s %s\n", style.WarningPrefix, w)
	}
	snap, err := cfg.Snapshot(config.ProjectDir(path))
	if err != nil {
		return nil, exitcode.Config(err)
	}
	mgr := orchestrator.New(snap, orchestrator.Options{
		Host: newHost(cfg),
		Logf: logf,
	})
	return &project{path: path, cfg: cfg, mgr: mgr}, nil
}

// report turns an orchestrator error into the command result. Errors that
// only mean "nothing to do" are printed as warnings and exit non-zero
// without a second message.
func report(cmd *cobra.Command, err error) error {
	if err == nil {
		return nil
	}
	if orchestrator.IsNoop(err) {
		fmt.Fprintf(cmd.ErrOrStderr(), "%s %v\n", style.WarningPrefix, err)
		return NewSilentExit(exitcode.Code(err))
	}
	return err
}
