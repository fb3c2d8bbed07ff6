package logtail

import (
	"context"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

// DefaultFollowInterval is the polling period in follow mode.
const DefaultFollowInterval = 500 * time.Millisecond

// DefaultCaptureLines is how much scrollback each poll captures.
const DefaultCaptureLines = 100

// taskColors are the ANSI colors assigned to tasks by position.
var taskColors = []lipgloss.Color{"6", "2", "3", "5", "4", "1"}

// Stream is one task's pane output source.
type Stream struct {
	Name  string
	Index int // position of the task in the project, picks its color
	// Capture returns the last n lines of the pane.
	Capture func(n int) ([]string, error)
}

// Printer writes task output with colored "[task]" prefixes.
type Printer struct {
	w        io.Writer
	renderer *lipgloss.Renderer
}

// NewPrinter creates a Printer for w. When color is false all styling is dropped.
func NewPrinter(w io.Writer, color bool) *Printer {
	r := lipgloss.NewRenderer(w)
	if !color {
		r.SetColorProfile(termenv.Ascii)
	}
	return &Printer{w: w, renderer: r}
}

// Prefix renders the "[task]" label in the task's color.
func (p *Printer) Prefix(name string, index int) string {
	c := taskColors[index%len(taskColors)]
	return p.renderer.NewStyle().Foreground(c).Render("[" + name + "]")
}

// Line prints one prefixed line.
func (p *Printer) Line(name string, index int, line string) {
	fmt.Fprintf(p.w, "%s %s\n", p.Prefix(name, index), line)
}

// Dim prints a de-emphasized status line.
func (p *Printer) Dim(msg string) {
	fmt.Fprintln(p.w, p.renderer.NewStyle().Faint(true).Render(msg))
}

// FollowOptions control follow mode.
type FollowOptions struct {
	Lines    int           // lines captured per poll
	Grep     string        // case-insensitive substring filter
	Interval time.Duration // polling period
}

// Follow polls every stream each cycle and prints only new lines until ctx
// is cancelled. A stream whose capture fails is skipped for that cycle.
func Follow(ctx context.Context, p *Printer, streams []Stream, opts FollowOptions) {
	if opts.Lines <= 0 {
		opts.Lines = DefaultCaptureLines
	}
	if opts.Interval <= 0 {
		opts.Interval = DefaultFollowInterval
	}
	tailer := NewTailer()
	ticker := time.NewTicker(opts.Interval)
	defer ticker.Stop()

	for {
		for _, s := range streams {
			capture, err := s.Capture(opts.Lines)
			if err != nil {
				continue
			}
			for _, line := range Filter(tailer.Observe(s.Name, capture), opts.Grep) {
				p.Line(s.Name, s.Index, line)
			}
		}
		select {
		case <-ctx.Done():
			fmt.Fprintln(p.w)
			p.Dim("Stopped following logs")
			return
		case <-ticker.C:
		}
	}
}

// PrintGrep prints lines matching pattern with context lines on each side.
// Matches are marked "> ", context "  ". Overlapping windows merge, and "--"
// separates groups that are not adjacent.
func PrintGrep(w io.Writer, lines []string, pattern string, context int) {
	if context < 0 {
		context = 0
	}
	if context > len(lines) {
		context = len(lines)
	}
	matched := make(map[int]bool)
	for i, l := range lines {
		if Matches(l, pattern) {
			matched[i] = true
		}
	}
	if len(matched) == 0 {
		fmt.Fprintf(w, "No matches for '%s'\n", pattern)
		return
	}

	show := make(map[int]bool)
	for i := range matched {
		lo, hi := max(0, i-context), min(len(lines)-1, i+context)
		for pos := lo; pos <= hi; pos++ {
			show[pos] = true
		}
	}
	idx := make([]int, 0, len(show))
	for i := range show {
		idx = append(idx, i)
	}
	sort.Ints(idx)

	last := -1
	for _, i := range idx {
		if last >= 0 && i > last+1 {
			fmt.Fprintln(w, "--")
		}
		marker := " "
		if matched[i] {
			marker = ">"
		}
		fmt.Fprintf(w, "%s %s\n", marker, lines[i])
		last = i
	}
}

// PrintSnapshot prints one capture per stream with task prefixes, keeping
// only lines that match grep when it is set.
func PrintSnapshot(p *Printer, streams []Stream, lines int, grep string) {
	if lines <= 0 {
		lines = DefaultCaptureLines
	}
	for _, s := range streams {
		capture, err := s.Capture(lines)
		if err != nil {
			continue
		}
		for _, line := range Filter(TrimTrailingBlank(capture), grep) {
			p.Line(s.Name, s.Index, line)
		}
	}
}
