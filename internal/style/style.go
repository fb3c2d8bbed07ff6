// Package style holds the lipgloss styles and prefixes used by CLI output.
package style

import (
	"fmt"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/nc9/taskmux/internal/ui"
)

var (
	Bold    = lipgloss.NewStyle().Bold(true)
	Dim     = lipgloss.NewStyle().Faint(true)
	Success = lipgloss.NewStyle().Foreground(lipgloss.Color("2")).Bold(true)
	Warning = lipgloss.NewStyle().Foreground(lipgloss.Color("3")).Bold(true)
	Error   = lipgloss.NewStyle().Foreground(lipgloss.Color("1")).Bold(true)
	Info    = lipgloss.NewStyle().Foreground(lipgloss.Color("4"))

	Green  = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	Yellow = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
	Red    = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	Cyan   = lipgloss.NewStyle().Foreground(lipgloss.Color("6"))

	SuccessPrefix string
	WarningPrefix string
	ErrorPrefix   string
	ArrowPrefix   string
)

func init() {
	if !ui.ShouldUseColor() {
		lipgloss.SetColorProfile(termenv.Ascii)
	}
	setPrefixes(ui.ShouldUseEmoji())
}

func setPrefixes(emoji bool) {
	if emoji {
		SuccessPrefix = Success.Render("✓")
		WarningPrefix = Warning.Render("⚠")
		ErrorPrefix = Error.Render("✗")
		ArrowPrefix = Info.Render("→")
		return
	}
	SuccessPrefix = Success.Render("OK")
	WarningPrefix = Warning.Render("!")
	ErrorPrefix = Error.Render("x")
	ArrowPrefix = Info.Render("->")
}

// PrintWarning writes a warning line to stderr.
func PrintWarning(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "%s %s\n", WarningPrefix, fmt.Sprintf(format, args...))
}

// PrintError writes an error line to stderr.
func PrintError(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "%s %s\n", ErrorPrefix, fmt.Sprintf(format, args...))
}

// Health renders a health flag the way status tables show it.
func Health(running, healthy bool) string {
	switch {
	case !running:
		return Dim.Render("stopped")
	case healthy:
		return Green.Render("healthy")
	default:
		return Red.Render("unhealthy")
	}
}

// StateLabel title-cases a lowercase state word for display ("running" -> "Running").
func StateLabel(state string) string {
	// Casers are stateful, so each call gets its own.
	return cases.Title(language.English).String(state)
}
