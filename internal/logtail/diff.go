// Package logtail turns repeated captures of a scrolling pane into a stream
// of new lines, and renders pane output for the logs command.
package logtail

import "strings"

// TailWindow caps how many lines of the previous capture are remembered.
const TailWindow = 50

// NewLines returns the lines of current that were not present in the capture
// prevTail was taken from. prevTail is located by searching backward for its
// last line and confirming the lines before it. When prevTail has scrolled out
// of current entirely, all of current is returned.
func NewLines(current, prevTail []string) []string {
	if len(prevTail) == 0 {
		return current
	}
	target := prevTail[len(prevTail)-1]
	for i := len(current) - 1; i >= 0; i-- {
		if current[i] != target {
			continue
		}
		n := min(len(prevTail), i+1)
		if equal(current[i-n+1:i+1], prevTail[len(prevTail)-n:]) {
			return current[i+1:]
		}
	}
	return current
}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// TrimTrailingBlank drops blank lines from the end of a capture.
func TrimTrailingBlank(lines []string) []string {
	end := len(lines)
	for end > 0 && strings.TrimSpace(lines[end-1]) == "" {
		end--
	}
	return lines[:end]
}

// Tail returns a copy of at most the last TailWindow lines.
func Tail(lines []string) []string {
	if len(lines) > TailWindow {
		lines = lines[len(lines)-TailWindow:]
	}
	return append([]string(nil), lines...)
}

// Tailer remembers the last window seen per task. Each task's state is
// independent; a Tailer is not safe for concurrent use.
type Tailer struct {
	state map[string][]string
}

// NewTailer returns a Tailer with no remembered state.
func NewTailer() *Tailer {
	return &Tailer{state: make(map[string][]string)}
}

// Observe diffs a fresh capture against the task's remembered window and
// then remembers the capture's tail. Empty captures leave the state alone.
func (t *Tailer) Observe(task string, capture []string) []string {
	capture = TrimTrailingBlank(capture)
	fresh := NewLines(capture, t.state[task])
	if len(capture) > 0 {
		t.state[task] = Tail(capture)
	}
	return fresh
}

// Reset forgets a task's remembered window.
func (t *Tailer) Reset(task string) {
	delete(t.state, task)
}

// Matches reports whether line contains pattern, ignoring case.
func Matches(line, pattern string) bool {
	return strings.Contains(strings.ToLower(line), strings.ToLower(pattern))
}

// Filter keeps lines matching pattern. An empty pattern keeps everything.
func Filter(lines []string, pattern string) []string {
	if pattern == "" {
		return lines
	}
	var out []string
	for _, l := range lines {
		if Matches(l, pattern) {
			out = append(out, l)
		}
	}
	return out
}
