package session

import (
	"errors"
	"strings"
	"testing"
	"time"
)

// ConformanceConfig configures the conformance test suite.
type ConformanceConfig struct {
	// Settle is how long to wait for the host to react to input.
	// Use 0 for the double, a few hundred milliseconds for real tmux.
	Settle time.Duration

	// IdleShell is the foreground command of a pane sitting at a prompt.
	IdleShell string
}

// RunConformanceTests runs the Host conformance suite. Both the tmux
// implementation and Double must pass it.
func RunConformanceTests(t *testing.T, factory func() Host, cleanup func(), cfg ConformanceConfig) {
	if cleanup != nil {
		t.Cleanup(cleanup)
	}
	t.Run("Sessions", func(t *testing.T) { runSessionTests(t, factory, cfg) })
	t.Run("Panes", func(t *testing.T) { runPaneTests(t, factory, cfg) })
	t.Run("Keys", func(t *testing.T) { runKeyTests(t, factory, cfg) })
}

func conformanceUniqueName(t *testing.T) string {
	// tmux treats "." and ":" as target separators.
	name := strings.NewReplacer("/", "-", ".", "_", ":", "_").Replace(t.Name())
	return "taskmux-test-" + name + "-" + time.Now().Format("150405_000")
}

func settle(cfg ConformanceConfig) {
	if cfg.Settle > 0 {
		time.Sleep(cfg.Settle)
	}
}

func newSession(t *testing.T, h Host) string {
	t.Helper()
	name := conformanceUniqueName(t)
	if err := h.CreateSession(name, ""); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	t.Cleanup(func() { _ = h.DestroySession(name) })
	return name
}

func runSessionTests(t *testing.T, factory func() Host, cfg ConformanceConfig) {
	t.Run("create then exists", func(t *testing.T) {
		h := factory()
		name := newSession(t, h)
		ok, err := h.SessionExists(name)
		if err != nil || !ok {
			t.Fatalf("SessionExists = %v, %v; want true", ok, err)
		}
	})

	t.Run("duplicate create fails", func(t *testing.T) {
		h := factory()
		name := newSession(t, h)
		if err := h.CreateSession(name, ""); err == nil {
			t.Error("second CreateSession should fail")
		}
	})

	t.Run("missing session does not exist", func(t *testing.T) {
		h := factory()
		ok, err := h.SessionExists("taskmux-test-nonexistent-12345")
		if err != nil {
			t.Fatalf("SessionExists: %v", err)
		}
		if ok {
			t.Error("nonexistent session reported as existing")
		}
	})

	t.Run("destroy removes session", func(t *testing.T) {
		h := factory()
		name := conformanceUniqueName(t)
		if err := h.CreateSession(name, ""); err != nil {
			t.Fatalf("CreateSession: %v", err)
		}
		if err := h.DestroySession(name); err != nil {
			t.Fatalf("DestroySession: %v", err)
		}
		if ok, _ := h.SessionExists(name); ok {
			t.Error("session still exists after DestroySession")
		}
	})

	t.Run("destroy missing session reports not found", func(t *testing.T) {
		h := factory()
		keep := newSession(t, h) // keeps a tmux server alive
		_ = keep
		err := h.DestroySession("taskmux-test-nonexistent-12345")
		if !errors.Is(err, ErrSessionNotFound) {
			t.Errorf("DestroySession error = %v, want ErrSessionNotFound", err)
		}
	})
}

func runPaneTests(t *testing.T, factory func() Host, cfg ConformanceConfig) {
	t.Run("first pane reuses placeholder window", func(t *testing.T) {
		h := factory()
		name := newSession(t, h)
		settle(cfg)

		p, err := h.CreatePane(name, "api", "sleep 60", "")
		if err != nil {
			t.Fatalf("CreatePane: %v", err)
		}
		if p.Window != "api" {
			t.Errorf("window = %q, want api", p.Window)
		}
		panes, err := h.ListPanes(name)
		if err != nil {
			t.Fatalf("ListPanes: %v", err)
		}
		if len(panes) != 1 {
			t.Errorf("pane count = %d, want 1 (placeholder reused)", len(panes))
		}
	})

	t.Run("second pane opens a new window", func(t *testing.T) {
		h := factory()
		name := newSession(t, h)
		settle(cfg)

		if _, err := h.CreatePane(name, "api", "sleep 60", ""); err != nil {
			t.Fatalf("CreatePane api: %v", err)
		}
		if _, err := h.CreatePane(name, "web", "sleep 60", ""); err != nil {
			t.Fatalf("CreatePane web: %v", err)
		}
		panes, _ := h.ListPanes(name)
		if len(panes) != 2 {
			t.Fatalf("pane count = %d, want 2", len(panes))
		}
		if panes[0].Window != "api" || panes[1].Window != "web" {
			t.Errorf("windows = %q, %q; want api, web", panes[0].Window, panes[1].Window)
		}
	})

	t.Run("find pane by task", func(t *testing.T) {
		h := factory()
		name := newSession(t, h)
		created, err := h.CreatePane(name, "api", "sleep 60", "")
		if err != nil {
			t.Fatalf("CreatePane: %v", err)
		}
		found, ok, err := h.FindPane(name, "api")
		if err != nil || !ok {
			t.Fatalf("FindPane = %v, %v", ok, err)
		}
		if found.ID != created.ID {
			t.Errorf("FindPane id = %q, want %q", found.ID, created.ID)
		}
		if _, ok, _ := h.FindPane(name, "missing"); ok {
			t.Error("FindPane found a task that has no window")
		}
	})

	t.Run("destroy pane", func(t *testing.T) {
		h := factory()
		name := newSession(t, h)
		_, _ = h.CreatePane(name, "api", "sleep 60", "")
		web, _ := h.CreatePane(name, "web", "sleep 60", "")
		if err := h.DestroyPane(web.ID); err != nil {
			t.Fatalf("DestroyPane: %v", err)
		}
		if _, ok, _ := h.FindPane(name, "web"); ok {
			t.Error("pane still present after DestroyPane")
		}
		if _, ok, _ := h.FindPane(name, "api"); !ok {
			t.Error("DestroyPane removed the wrong pane")
		}
	})
}

func runKeyTests(t *testing.T, factory func() Host, cfg ConformanceConfig) {
	t.Run("submitted command becomes foreground", func(t *testing.T) {
		h := factory()
		name := newSession(t, h)
		settle(cfg)
		p, err := h.CreatePane(name, "sleeper", "sleep 60", "")
		if err != nil {
			t.Fatalf("CreatePane: %v", err)
		}
		settle(cfg)
		cmd, err := h.ForegroundCommand(p.ID)
		if err != nil {
			t.Fatalf("ForegroundCommand: %v", err)
		}
		if cmd != "sleep" {
			t.Errorf("foreground = %q, want sleep", cmd)
		}
	})

	t.Run("interrupt returns to the shell", func(t *testing.T) {
		h := factory()
		name := newSession(t, h)
		settle(cfg)
		p, _ := h.CreatePane(name, "sleeper", "sleep 60", "")
		settle(cfg)
		if err := h.SendInterrupt(p.ID); err != nil {
			t.Fatalf("SendInterrupt: %v", err)
		}
		settle(cfg)
		cmd, _ := h.ForegroundCommand(p.ID)
		if cfg.IdleShell != "" && cmd != cfg.IdleShell {
			t.Errorf("foreground after interrupt = %q, want %q", cmd, cfg.IdleShell)
		}
		if cmd == "sleep" {
			t.Error("interrupt did not stop the foreground command")
		}
	})

	t.Run("capture sees submitted text", func(t *testing.T) {
		h := factory()
		name := newSession(t, h)
		settle(cfg)
		p, _ := h.CreatePane(name, "echoer", "echo conformance-marker", "")
		settle(cfg)
		lines, err := h.Capture(p.ID, 50)
		if err != nil {
			t.Fatalf("Capture: %v", err)
		}
		found := false
		for _, l := range lines {
			if strings.Contains(l, "conformance-marker") {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("capture %q does not contain marker", lines)
		}
	})

	t.Run("operations on missing pane fail", func(t *testing.T) {
		h := factory()
		_ = newSession(t, h)
		if err := h.SendKeys("%999999", "x", true); err == nil {
			t.Error("SendKeys to a missing pane should fail")
		}
		if _, err := h.Capture("%999999", 10); err == nil {
			t.Error("Capture of a missing pane should fail")
		}
	})
}
