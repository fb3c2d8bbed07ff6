package cmd

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/nc9/taskmux/internal/daemon"
	"github.com/nc9/taskmux/internal/exitcode"
	"github.com/nc9/taskmux/internal/gateway"
	"github.com/nc9/taskmux/internal/style"
	"github.com/nc9/taskmux/internal/telemetry"
)

var (
	daemonPort           int
	daemonHealthInterval time.Duration
)

var daemonCmd = &cobra.Command{
	Use:     "daemon",
	GroupID: GroupSession,
	Short:   "Run the supervisor with health checks and the WebSocket API",
	Long: `Run in the foreground as the project's supervisor:

  - every health interval each task is checked, and a task that turns
    unhealthy is restarted once
  - edits to taskmux.toml are applied to the running session
  - a WebSocket API on localhost:<port> serves status, restart, kill and
    logs requests and broadcasts every health cycle
  - Prometheus metrics are served at /metrics on the same port

Only one daemon can supervise a session. Output is also appended to
~/.taskmux/daemon.log.`,
	Args: cobra.NoArgs,
	RunE: runDaemon,
}

var daemonStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show whether a daemon supervises this project",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := loadProject(cmd)
		if err != nil {
			return err
		}
		sess := p.mgr.Snapshot().Session
		running, state, err := daemon.IsRunning(daemon.DefaultStateDir(), sess)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if !running {
			fmt.Fprintf(out, "Daemon for session '%s': %s\n", sess, style.Dim.Render("not running"))
			return nil
		}
		fmt.Fprintf(out, "Daemon for session '%s': %s\n", sess, style.Success.Render("running"))
		fmt.Fprintf(out, "  PID:           %d\n", state.PID)
		fmt.Fprintf(out, "  Port:          %d\n", state.Port)
		fmt.Fprintf(out, "  Started:       %s\n", state.StartedAt.Format(time.RFC3339))
		if !state.LastHealthCheck.IsZero() {
			fmt.Fprintf(out, "  Last check:    %s\n", state.LastHealthCheck.Format(time.RFC3339))
		}
		fmt.Fprintf(out, "  Health checks: %d\n", state.HealthChecks)
		fmt.Fprintf(out, "  Auto-restarts: %d\n", state.AutoRestarts)
		return nil
	},
}

var daemonStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the daemon supervising this project",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := loadProject(cmd)
		if err != nil {
			return err
		}
		sess := p.mgr.Snapshot().Session
		if err := daemon.StopDaemon(daemon.DefaultStateDir(), sess); err != nil {
			return exitcode.Wrap(exitcode.ErrNotRunning, "", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s Stopping daemon for session '%s'\n", style.SuccessPrefix, sess)
		return nil
	},
}

func runDaemon(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	stateDir := daemon.DefaultStateDir()
	logger, closer, err := daemon.OpenLog(filepath.Join(stateDir, "daemon.log"), cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer closer.Close()

	provider, err := telemetry.Init(ctx, "taskmux", Version)
	if err != nil {
		logger.Printf("Warning: telemetry disabled: %v", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = provider.Shutdown(shutdownCtx)
	}()

	p, err := loadProjectWithLogf(cmd, logger.Printf)
	if err != nil {
		return err
	}
	cfg := daemon.DefaultConfig(absPath(p.path))
	cfg.Port = daemonPort
	cfg.StateDir = stateDir
	if daemonHealthInterval > 0 {
		cfg.HealthInterval = daemonHealthInterval
	}

	d := daemon.New(cfg, p.mgr, daemon.Options{
		Logger:  logger,
		Metrics: provider.Handler(),
	})
	if err := d.Run(ctx); err != nil {
		if errors.Is(err, daemon.ErrAlreadyRunning) {
			return exitcode.Wrap(exitcode.ErrDaemonRunning, "", err)
		}
		return err
	}
	return nil
}

func absPath(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return path
}

func init() {
	daemonCmd.Flags().IntVar(&daemonPort, "port", gateway.DefaultPort, "WebSocket API port")
	daemonCmd.Flags().DurationVar(&daemonHealthInterval, "health-interval", daemon.DefaultHealthInterval, "Pause between health checks")

	daemonCmd.AddCommand(daemonStatusCmd, daemonStopCmd)
	rootCmd.AddCommand(daemonCmd)
}
