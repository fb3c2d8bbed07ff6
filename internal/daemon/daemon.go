// Package daemon runs the background service for one project: periodic
// health checks with auto-restart, config hot reload, and the WebSocket API.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/gofrs/flock"
	"golang.org/x/sync/errgroup"

	"github.com/nc9/taskmux/internal/config"
	"github.com/nc9/taskmux/internal/gateway"
	"github.com/nc9/taskmux/internal/orchestrator"
	"github.com/nc9/taskmux/internal/telemetry"
	"github.com/nc9/taskmux/internal/watch"
)

const (
	// DefaultHealthInterval is the pause between health cycles.
	DefaultHealthInterval = 30 * time.Second
	// DefaultErrorBackoff is the pause after a failed health cycle.
	DefaultErrorBackoff = 5 * time.Second
	// DefaultHost is the interface the API listens on.
	DefaultHost = "localhost"
)

// ErrAlreadyRunning means another daemon holds the session lock.
var ErrAlreadyRunning = errors.New("daemon already running")

// Config configures a Daemon.
type Config struct {
	ConfigPath     string // project file to watch; empty disables reload
	Host           string
	Port           int
	StateDir       string
	HealthInterval time.Duration
	ErrorBackoff   time.Duration
}

// DefaultConfig returns the defaults for watching configPath.
func DefaultConfig(configPath string) *Config {
	return &Config{
		ConfigPath:     configPath,
		Host:           DefaultHost,
		Port:           gateway.DefaultPort,
		StateDir:       DefaultStateDir(),
		HealthInterval: DefaultHealthInterval,
		ErrorBackoff:   DefaultErrorBackoff,
	}
}

// Addr is the API listen address.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// OpenLog opens the daemon log at path and returns a logger that also
// writes to extra, when given.
func OpenLog(path string, extra io.Writer) (*log.Logger, io.Closer, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, nil, fmt.Errorf("creating log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
	if err != nil {
		return nil, nil, fmt.Errorf("opening log file: %w", err)
	}
	var w io.Writer = f
	if extra != nil {
		w = io.MultiWriter(f, extra)
	}
	return log.New(w, "", log.LstdFlags), f, nil
}

// Options carry optional collaborators.
type Options struct {
	Logger  *log.Logger  // default: discard
	Metrics http.Handler // served at /metrics
}

// Daemon supervises one project session.
type Daemon struct {
	cfg     *Config
	mgr     *orchestrator.Manager
	logger  *log.Logger
	gateway *gateway.Server
	metrics *daemonMetrics
	now     func() time.Time
}

// New creates a daemon driving mgr.
func New(cfg *Config, mgr *orchestrator.Manager, opts Options) *Daemon {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	if cfg.HealthInterval <= 0 {
		cfg.HealthInterval = DefaultHealthInterval
	}
	if cfg.ErrorBackoff <= 0 {
		cfg.ErrorBackoff = DefaultErrorBackoff
	}
	if cfg.StateDir == "" {
		cfg.StateDir = DefaultStateDir()
	}
	if cfg.Host == "" {
		cfg.Host = DefaultHost
	}
	d := &Daemon{
		cfg:    cfg,
		mgr:    mgr,
		logger: logger,
		gateway: gateway.New(mgr, gateway.Options{
			Logf:    logger.Printf,
			Metrics: opts.Metrics,
		}),
		now: time.Now,
	}
	dm, err := newDaemonMetrics()
	if err != nil {
		logger.Printf("Warning: failed to register daemon metrics: %v", err)
	} else {
		d.metrics = dm
	}
	return d
}

// Gateway exposes the API server.
func (d *Daemon) Gateway() *gateway.Server {
	return d.gateway
}

// Run serves until ctx is cancelled or the process receives SIGINT/SIGTERM.
func (d *Daemon) Run(ctx context.Context) error {
	session := d.mgr.Snapshot().Session
	if err := os.MkdirAll(d.cfg.StateDir, 0755); err != nil {
		return fmt.Errorf("creating state directory: %w", err)
	}

	fileLock := flock.New(LockFile(d.cfg.StateDir, session))
	locked, err := fileLock.TryLock()
	if err != nil {
		return fmt.Errorf("acquiring lock: %w", err)
	}
	if !locked {
		return fmt.Errorf("%w (lock held by another process)", ErrAlreadyRunning)
	}
	defer func() { _ = fileLock.Unlock() }()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	state := &State{
		Running:    true,
		PID:        os.Getpid(),
		Session:    session,
		ConfigPath: d.cfg.ConfigPath,
		Port:       d.cfg.Port,
		StartedAt:  d.now(),
	}
	if err := SaveState(d.cfg.StateDir, state); err != nil {
		d.logger.Printf("Warning: failed to save state: %v", err)
	}

	d.logger.Printf("Starting taskmux daemon on port %d (PID %d)", d.cfg.Port, os.Getpid())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return d.gateway.ListenAndServe(gctx, d.cfg.Addr())
	})
	g.Go(func() error {
		d.healthLoop(gctx, state)
		return nil
	})
	if d.cfg.ConfigPath != "" {
		w, err := watch.New(d.cfg.ConfigPath, func() { d.reloadConfig(gctx) }, watch.Options{Logf: d.logger.Printf})
		if err != nil {
			d.logger.Printf("Warning: config watching disabled: %v", err)
		} else {
			d.logger.Printf("Watching %s for changes", w.Path())
			g.Go(func() error { return w.Run(gctx) })
		}
	}

	runErr := g.Wait()

	state.Running = false
	if err := SaveState(d.cfg.StateDir, state); err != nil {
		d.logger.Printf("Warning: failed to save state: %v", err)
	}
	if runErr != nil {
		d.logger.Printf("Daemon stopped: %v", runErr)
		return runErr
	}
	d.logger.Printf("Daemon stopped")
	return nil
}

func (d *Daemon) healthLoop(ctx context.Context, state *State) {
	d.logger.Printf("Health monitoring every %v", d.cfg.HealthInterval)
	for {
		wait := d.cfg.HealthInterval
		if err := d.healthCycle(ctx, state); err != nil {
			d.logger.Printf("Health check error: %v", err)
			wait = d.cfg.ErrorBackoff
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// healthCycle auto-restarts tasks that turned unhealthy and pushes the
// resulting status to every client. It does nothing while the session is down.
func (d *Daemon) healthCycle(ctx context.Context, state *State) error {
	session := d.mgr.Snapshot().Session
	exists, err := d.mgr.Host().SessionExists(session)
	if err != nil {
		d.metrics.recordCycle(ctx, "error")
		return fmt.Errorf("checking session '%s': %w", session, err)
	}
	if !exists {
		d.metrics.recordCycle(ctx, "idle")
		d.metrics.updateGauges(d.gateway.Clients(), 0, 0)
		return nil
	}

	restarted := d.mgr.AutoRestartUnhealthy(ctx)
	status := d.mgr.Status(ctx)
	delivered := d.gateway.Broadcast(gateway.Event{Type: "health_check", Data: status})

	var running, unhealthy int
	for _, t := range status.Tasks {
		if t.Running {
			running++
			if !t.Healthy {
				unhealthy++
			}
		}
	}
	d.metrics.recordCycle(ctx, "ok")
	d.metrics.recordBroadcast(ctx, delivered)
	d.metrics.updateGauges(d.gateway.Clients(), running, unhealthy)

	state.LastHealthCheck = d.now()
	state.HealthChecks++
	state.AutoRestarts += int64(len(restarted))
	if err := SaveState(d.cfg.StateDir, state); err != nil {
		d.logger.Printf("Warning: failed to save state: %v", err)
	}
	return nil
}

// reloadConfig swaps in the edited project file and applies task changes
// to the live session. A broken file leaves the running config in place.
func (d *Daemon) reloadConfig(ctx context.Context) {
	_ = ReloadConfig(ctx, d.mgr, d.cfg.ConfigPath, d.logger.Printf)
}

// ReloadConfig reads the project file at path into mgr and brings the live
// session in line with it. The session name is pinned to the one mgr was
// started with. On a load or validation error mgr keeps its current config.
func ReloadConfig(ctx context.Context, mgr *orchestrator.Manager, path string, logf func(format string, args ...interface{})) error {
	logf("Config file changed, reloading...")
	cfg, err := config.Load(path)
	if err != nil {
		logf("Error reloading config: %v", err)
		telemetry.RecordReload(ctx, err)
		return err
	}
	for _, w := range cfg.Warnings {
		logf("Warning: %s", w)
	}
	snap, err := cfg.Snapshot(config.ProjectDir(path))
	if err != nil {
		logf("Error reloading config: %v", err)
		telemetry.RecordReload(ctx, err)
		return err
	}
	if current := mgr.Snapshot().Session; snap.Session != current {
		logf("Warning: session name changed to '%s'; restart to follow it", snap.Session)
		snap.Session = current
	}

	res := mgr.Reload(snap)
	if res.Empty() {
		logf("Config reloaded, no task changes")
		telemetry.RecordReload(ctx, nil)
		return nil
	}
	logf("Config reloaded: added=%v removed=%v changed=%v", res.Added, res.Removed, res.Changed)
	if err := mgr.ApplyReload(ctx, res); err != nil {
		logf("Error applying config changes: %v", err)
		return err
	}
	return nil
}
