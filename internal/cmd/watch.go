package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nc9/taskmux/internal/daemon"
	"github.com/nc9/taskmux/internal/watch"
)

var watchCmd = &cobra.Command{
	Use:     "watch",
	GroupID: GroupConfig,
	Short:   "Reload taskmux.toml when it changes",
	Long: `Watch the project file and apply every saved change to the running
session: running tasks restart with their new definition and newly added
auto-start tasks are launched. A file that fails to parse or validate is
reported and the previous config stays in effect.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := loadProject(cmd)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		logf := func(format string, args ...interface{}) {
			fmt.Fprintf(out, format+"\n", args...)
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		w, err := watch.New(p.path, func() {
			_ = daemon.ReloadConfig(ctx, p.mgr, p.path, logf)
		}, watch.Options{Logf: logf})
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Watching %s for changes (Ctrl-C to stop)\n", w.Path())
		if err := w.Run(ctx); err != nil {
			return err
		}
		fmt.Fprintln(out, "Stopped watching")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(watchCmd)
}
