package daemon

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gofrs/flock"
)

// State is the daemon's persisted runtime state, one file per session.
type State struct {
	Running         bool      `json:"running"`
	PID             int       `json:"pid"`
	Session         string    `json:"session"`
	ConfigPath      string    `json:"config_path"`
	Port            int       `json:"port"`
	StartedAt       time.Time `json:"started_at"`
	LastHealthCheck time.Time `json:"last_health_check,omitempty"`
	HealthChecks    int64     `json:"health_checks"`
	AutoRestarts    int64     `json:"auto_restarts"`
}

// DefaultStateDir returns ~/.taskmux.
func DefaultStateDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".taskmux"
	}
	return filepath.Join(home, ".taskmux")
}

// StateFile is where the state for session is kept.
func StateFile(stateDir, session string) string {
	return filepath.Join(stateDir, session+".json")
}

// LockFile is the single-instance lock for session.
func LockFile(stateDir, session string) string {
	return filepath.Join(stateDir, session+".lock")
}

// LoadState reads the state for session. A missing file yields a zero State.
func LoadState(stateDir, session string) (*State, error) {
	data, err := os.ReadFile(StateFile(stateDir, session))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &State{Session: session}, nil
		}
		return nil, fmt.Errorf("reading state: %w", err)
	}
	var s State
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parsing state: %w", err)
	}
	return &s, nil
}

// SaveState writes the state atomically.
func SaveState(stateDir string, s *State) error {
	if err := os.MkdirAll(stateDir, 0755); err != nil {
		return fmt.Errorf("creating state dir: %w", err)
	}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	path := StateFile(stateDir, s.Session)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("writing state: %w", err)
	}
	return os.Rename(tmp, path)
}

// IsRunning reports whether a daemon holds the lock for session, along with
// its last saved state.
func IsRunning(stateDir, session string) (bool, *State, error) {
	state, err := LoadState(stateDir, session)
	if err != nil {
		return false, nil, err
	}
	if _, err := os.Stat(LockFile(stateDir, session)); errors.Is(err, os.ErrNotExist) {
		return false, state, nil
	}
	fileLock := flock.New(LockFile(stateDir, session))
	locked, err := fileLock.TryLock()
	if err != nil {
		return false, state, fmt.Errorf("probing lock: %w", err)
	}
	if locked {
		_ = fileLock.Unlock()
		return false, state, nil
	}
	return true, state, nil
}

// StopDaemon asks the daemon for session to shut down.
func StopDaemon(stateDir, session string) error {
	running, state, err := IsRunning(stateDir, session)
	if err != nil {
		return err
	}
	if !running || state.PID == 0 {
		return fmt.Errorf("daemon for session '%s' is not running", session)
	}
	proc, err := os.FindProcess(state.PID)
	if err != nil {
		return fmt.Errorf("finding process %d: %w", state.PID, err)
	}
	if err := proc.Signal(syscall.SIGTERM); err != nil {
		return fmt.Errorf("signalling process %d: %w", state.PID, err)
	}
	return nil
}
