// Package cmd provides CLI commands for the taskmux tool.
package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nc9/taskmux/internal/exitcode"
	"github.com/nc9/taskmux/internal/style"
)

var rootCmd = &cobra.Command{
	Use:     "taskmux",
	Short:   "tmux development environment manager",
	Version: Version,
	Long: `taskmux runs the long-lived processes of a project (servers, watchers,
databases) as tasks in one tmux session, one window per task.

Tasks are declared in taskmux.toml. Dependencies start in order, health is
checked with a probe command or by watching the pane's foreground process,
and the daemon restarts tasks that become unhealthy.`,
	SilenceErrors: true,
	SilenceUsage:  true,
}

// configPath is the --config flag; empty means TASKMUX_CONFIG or ./taskmux.toml.
var configPath string

// Execute runs the root command and returns an exit code.
// The caller (main) should call os.Exit with this code.
func Execute() int {
	err := rootCmd.Execute()
	if err != nil {
		// Commands that already printed their message only carry a code.
		if _, silent := IsSilentExit(err); !silent {
			style.PrintError("%v", err)
		}
	}
	return exitCode(err)
}

func exitCode(err error) int {
	if code, ok := IsSilentExit(err); ok {
		return code
	}
	return exitcode.Code(err)
}

// Command group IDs - used by subcommands to organize help output
const (
	GroupTasks   = "tasks"
	GroupSession = "session"
	GroupConfig  = "config"
	GroupDiag    = "diag"
)

func init() {
	rootCmd.AddGroup(
		&cobra.Group{ID: GroupTasks, Title: "Task Lifecycle:"},
		&cobra.Group{ID: GroupSession, Title: "Session & Monitoring:"},
		&cobra.Group{ID: GroupConfig, Title: "Configuration:"},
		&cobra.Group{ID: GroupDiag, Title: "Diagnostics:"},
	)
	rootCmd.SetHelpCommandGroupID(GroupDiag)
	rootCmd.SetCompletionCommandGroupID(GroupConfig)

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to taskmux.toml (default $TASKMUX_CONFIG or ./taskmux.toml)")
}

// buildCommandPath walks the command hierarchy to build the full command path,
// e.g. "taskmux daemon stop".
func buildCommandPath(cmd *cobra.Command) string {
	var parts []string
	for c := cmd; c != nil; c = c.Parent() {
		parts = append([]string{c.Name()}, parts...)
	}
	return strings.Join(parts, " ")
}

// optionalTask accepts zero or one task name.
func optionalTask(cmd *cobra.Command, args []string) error {
	if len(args) > 1 {
		return exitcode.Newf(exitcode.ErrUsage, "accepts at most one task, received %d\n\nRun '%s --help' for usage",
			len(args), buildCommandPath(cmd))
	}
	return nil
}

// requireTask accepts exactly one task name.
func requireTask(cmd *cobra.Command, args []string) error {
	if len(args) != 1 {
		return exitcode.New(exitcode.ErrUsage, fmt.Sprintf("requires a task name\n\nRun '%s --help' for usage",
			buildCommandPath(cmd)))
	}
	return nil
}
