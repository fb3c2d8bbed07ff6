package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nc9/taskmux/internal/exitcode"
	"github.com/nc9/taskmux/internal/logtail"
	"github.com/nc9/taskmux/internal/style"
	"github.com/nc9/taskmux/internal/ui"
)

var (
	logsFollow  bool
	logsLines   int
	logsGrep    string
	logsContext int
)

var logsCmd = &cobra.Command{
	Use:     "logs [task]",
	GroupID: GroupSession,
	Short:   "Show task output",
	Long: `Show the recent output of one task, or of every running task with a
colored [task] prefix on each line.

With --follow the panes are polled and only new lines are printed until
Ctrl-C. --grep keeps matching lines (case-insensitive); for a single task
the matches are shown with --context lines around them.`,
	Example: `  taskmux logs api
  taskmux logs -f
  taskmux logs api -g error -C 5`,
	Args: optionalTask,
	RunE: runLogs,
}

func runLogs(cmd *cobra.Command, args []string) error {
	p, err := loadProject(cmd)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	snap := p.mgr.Snapshot()

	exists, err := p.mgr.Host().SessionExists(snap.Session)
	if err != nil {
		return err
	}
	if !exists {
		fmt.Fprintf(cmd.ErrOrStderr(), "%s session '%s' doesn't exist\n", style.WarningPrefix, snap.Session)
		return NewSilentExit(exitcode.ErrSessionNotFound)
	}

	printer := logtail.NewPrinter(out, ui.ShouldUseColor())
	streams := p.mgr.Streams(snap.Graph.Names())

	if len(args) == 0 {
		if logsFollow {
			return follow(cmd, printer, streams)
		}
		logtail.PrintSnapshot(printer, streams, logsLines, logsGrep)
		return nil
	}

	name := args[0]
	if logsFollow {
		// Validates the task and its pane before polling starts.
		if _, err := p.mgr.Logs(name, 1); err != nil {
			return report(cmd, err)
		}
		var mine []logtail.Stream
		for _, s := range streams {
			if s.Name == name {
				mine = append(mine, s)
			}
		}
		return follow(cmd, printer, mine)
	}

	lines, err := p.mgr.Logs(name, logsLines)
	if err != nil {
		return report(cmd, err)
	}
	if logsGrep != "" {
		logtail.PrintGrep(out, lines, logsGrep, logsContext)
		return nil
	}
	for _, line := range lines {
		fmt.Fprintln(out, line)
	}
	return nil
}

func follow(cmd *cobra.Command, printer *logtail.Printer, streams []logtail.Stream) error {
	if len(streams) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No running tasks to follow")
		return nil
	}
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	printer.Dim("Following logs (Ctrl-C to stop)")
	logtail.Follow(ctx, printer, streams, logtail.FollowOptions{
		Lines: logsLines,
		Grep:  logsGrep,
	})
	return nil
}

func init() {
	logsCmd.Flags().BoolVarP(&logsFollow, "follow", "f", false, "Follow new output")
	logsCmd.Flags().IntVarP(&logsLines, "lines", "n", logtail.DefaultCaptureLines, "Number of lines to show")
	logsCmd.Flags().StringVarP(&logsGrep, "grep", "g", "", "Only show lines containing this text (case-insensitive)")
	logsCmd.Flags().IntVarP(&logsContext, "context", "C", 3, "Context lines around grep matches")

	rootCmd.AddCommand(logsCmd)
}
