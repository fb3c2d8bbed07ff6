// Package watch reports changes to the project file.
package watch

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce coalesces the burst of events an editor save produces.
const DefaultDebounce = 300 * time.Millisecond

// Options configure a Watcher.
type Options struct {
	Debounce time.Duration
	Logf     func(format string, args ...interface{})
}

// Watcher calls a handler after the watched file is written, created or
// replaced. It watches the parent directory so that editors which save by
// renaming a temp file over the original are seen too.
type Watcher struct {
	path     string
	onChange func()
	debounce time.Duration
	logf     func(format string, args ...interface{})
	fsw      *fsnotify.Watcher
}

// New starts watching path. The handler runs on the Watcher's goroutine,
// once per debounced burst of changes.
func New(path string, onChange func(), opts Options) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolving %s: %w", path, err)
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating watcher: %w", err)
	}
	if err := fsw.Add(filepath.Dir(abs)); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("watching %s: %w", filepath.Dir(abs), err)
	}
	w := &Watcher{
		path:     abs,
		onChange: onChange,
		debounce: opts.Debounce,
		logf:     opts.Logf,
		fsw:      fsw,
	}
	if w.debounce <= 0 {
		w.debounce = DefaultDebounce
	}
	if w.logf == nil {
		w.logf = func(string, ...interface{}) {}
	}
	return w, nil
}

// Path returns the absolute path being watched.
func (w *Watcher) Path() string {
	return w.path
}

// Run delivers change notifications until ctx is cancelled, then releases
// the underlying watcher.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.fsw.Close()

	var (
		timer  *time.Timer
		timerC <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			if !w.relevant(event) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			timerC = timer.C

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.logf("watch error: %v", err)

		case <-timerC:
			timerC = nil
			w.onChange()
		}
	}
}

func (w *Watcher) relevant(event fsnotify.Event) bool {
	if filepath.Clean(event.Name) != w.path {
		return false
	}
	return event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename)
}
