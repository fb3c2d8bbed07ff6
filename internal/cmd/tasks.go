package cmd

import (
	"github.com/spf13/cobra"
)

var startCmd = &cobra.Command{
	Use:     "start [task]",
	GroupID: GroupTasks,
	Short:   "Start a task, or the whole session",
	Long: `Start one task in its own window, or with no argument create the session
and start every auto-start task in dependency order.

A task waits for each of its auto-start dependencies to become healthy
before it is launched; if one never does the task is skipped.`,
	Args: optionalTask,
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := loadProject(cmd)
		if err != nil {
			return err
		}
		if len(args) == 0 {
			_, err = p.mgr.StartAll(cmd.Context())
			return report(cmd, err)
		}
		return report(cmd, p.mgr.Start(cmd.Context(), args[0]))
	},
}

var stopCmd = &cobra.Command{
	Use:     "stop [task]",
	GroupID: GroupTasks,
	Short:   "Stop a task gracefully, or the whole session",
	Long: `Send Ctrl-C to a task's window, leaving the window open. With no argument
every task is interrupted and the session is destroyed.`,
	Args: optionalTask,
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := loadProject(cmd)
		if err != nil {
			return err
		}
		if len(args) == 0 {
			return report(cmd, p.mgr.StopAll(cmd.Context()))
		}
		return report(cmd, p.mgr.Stop(cmd.Context(), args[0]))
	},
}

var restartCmd = &cobra.Command{
	Use:     "restart [task]",
	GroupID: GroupTasks,
	Short:   "Restart a task, or the whole session",
	Args:    optionalTask,
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := loadProject(cmd)
		if err != nil {
			return err
		}
		if len(args) == 0 {
			_, err = p.mgr.RestartAll(cmd.Context())
			return report(cmd, err)
		}
		return report(cmd, p.mgr.Restart(cmd.Context(), args[0]))
	},
}

var killCmd = &cobra.Command{
	Use:     "kill <task>",
	GroupID: GroupTasks,
	Short:   "Kill a task's window immediately",
	Args:    requireTask,
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := loadProject(cmd)
		if err != nil {
			return err
		}
		return report(cmd, p.mgr.Kill(cmd.Context(), args[0]))
	},
}

func init() {
	rootCmd.AddCommand(startCmd, stopCmd, restartCmd, killCmd)
}
