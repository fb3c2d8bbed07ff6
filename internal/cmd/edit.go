package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nc9/taskmux/internal/config"
	"github.com/nc9/taskmux/internal/exitcode"
	"github.com/nc9/taskmux/internal/orchestrator"
	"github.com/nc9/taskmux/internal/style"
)

var (
	addCwd         string
	addDependsOn   []string
	addHealthCheck string
	addNoAutoStart bool
)

var addCmd = &cobra.Command{
	Use:     "add <task> <command>",
	GroupID: GroupConfig,
	Short:   "Add a task to taskmux.toml",
	Long: `Add a task to the project file, replacing any task with the same name.
The file is written only if the resulting task graph is valid.`,
	Example: `  taskmux add api "go run ./cmd/api" --depends-on db
  taskmux add db "docker compose up postgres" --health-check "pg_isready -h localhost"`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		name, command := args[0], args[1]
		tc := config.TaskConfig{
			Name:        name,
			Command:     command,
			Cwd:         addCwd,
			HealthCheck: addHealthCheck,
			DependsOn:   addDependsOn,
		}
		if addNoAutoStart {
			f := false
			tc.AutoStart = &f
		}
		if _, err := config.AddTask(config.ResolvePath(configPath), tc); err != nil {
			return exitcode.Config(err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s Added task '%s': %s\n", style.SuccessPrefix, name, command)
		return nil
	},
}

var removeCmd = &cobra.Command{
	Use:     "remove <task>",
	Aliases: []string{"rm"},
	GroupID: GroupConfig,
	Short:   "Remove a task from taskmux.toml",
	Long:    `Remove a task from the project file, killing its window first if the session is running.`,
	Args:    requireTask,
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]
		p, err := loadProject(cmd)
		if err != nil {
			return err
		}
		if exists, _ := p.mgr.Host().SessionExists(p.mgr.Snapshot().Session); exists {
			if err := p.mgr.Kill(cmd.Context(), name); err != nil && !orchestrator.IsNoop(err) {
				return err
			}
		}

		_, removed, err := config.RemoveTask(p.path, name)
		if err != nil {
			return exitcode.Config(err)
		}
		if !removed {
			fmt.Fprintf(cmd.ErrOrStderr(), "%s Task '%s' not found in config\n", style.ErrorPrefix, name)
			return NewSilentExit(exitcode.ErrTaskNotFound)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s Removed task '%s'\n", style.SuccessPrefix, name)
		return nil
	},
}

func init() {
	addCmd.Flags().StringVar(&addCwd, "cwd", "", "Working directory (relative to the project file)")
	addCmd.Flags().StringSliceVar(&addDependsOn, "depends-on", nil, "Tasks that must be healthy first (repeatable or comma-separated)")
	addCmd.Flags().StringVar(&addHealthCheck, "health-check", "", "Shell command that exits 0 when the task is healthy")
	addCmd.Flags().BoolVar(&addNoAutoStart, "no-auto-start", false, "Do not start the task with the session")

	rootCmd.AddCommand(addCmd, removeCmd)
}
