package style

import (
	"regexp"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Align is a column's text alignment.
type Align int

const (
	AlignLeft Align = iota
	AlignRight
	AlignCenter
)

// Column describes one table column. Cells wider than Width are truncated.
type Column struct {
	Name  string
	Width int
	Align Align
	Style *lipgloss.Style // applied to cells; nil keeps the cell as given
}

// Table renders fixed-width rows for terminal output.
type Table struct {
	columns   []Column
	rows      [][]string
	headerSep bool
	indent    string
}

// NewTable creates a table with a header separator and a two-space indent.
func NewTable(columns ...Column) *Table {
	return &Table{
		columns:   columns,
		headerSep: true,
		indent:    "  ",
	}
}

// SetIndent sets the prefix written before every line.
func (t *Table) SetIndent(indent string) *Table {
	t.indent = indent
	return t
}

// SetHeaderSeparator toggles the rule under the header.
func (t *Table) SetHeaderSeparator(on bool) *Table {
	t.headerSep = on
	return t
}

// AddRow appends a row, padding missing cells with empty strings.
func (t *Table) AddRow(values ...string) *Table {
	row := make([]string, len(t.columns))
	copy(row, values)
	t.rows = append(t.rows, row)
	return t
}

// Render returns the table text. A table without columns renders nothing.
func (t *Table) Render() string {
	if len(t.columns) == 0 {
		return ""
	}
	var b strings.Builder

	b.WriteString(t.indent)
	for i, col := range t.columns {
		if i > 0 {
			b.WriteString(" ")
		}
		name := truncate(col.Name, col.Width)
		b.WriteString(t.pad(Bold.Render(name), name, col.Width, col.Align))
	}
	b.WriteString("\n")

	if t.headerSep {
		b.WriteString(t.indent)
		total := 0
		for i, col := range t.columns {
			if i > 0 {
				total++
			}
			total += col.Width
		}
		b.WriteString(Dim.Render(strings.Repeat("─", total)))
		b.WriteString("\n")
	}

	for _, row := range t.rows {
		b.WriteString(t.indent)
		for i, col := range t.columns {
			if i > 0 {
				b.WriteString(" ")
			}
			plain := stripAnsi(row[i])
			styled := row[i]
			if len([]rune(plain)) > col.Width {
				plain = truncate(plain, col.Width)
				styled = plain
			}
			if col.Style != nil {
				styled = col.Style.Render(plain)
			}
			b.WriteString(t.pad(styled, plain, col.Width, col.Align))
		}
		b.WriteString("\n")
	}
	return b.String()
}

// pad aligns styled within width, measuring by its plain text.
func (t *Table) pad(styled, plain string, width int, align Align) string {
	n := len([]rune(plain))
	if n >= width {
		return styled
	}
	gap := width - n
	switch align {
	case AlignRight:
		return strings.Repeat(" ", gap) + styled
	case AlignCenter:
		left := gap / 2
		return strings.Repeat(" ", left) + styled + strings.Repeat(" ", gap-left)
	default:
		return styled + strings.Repeat(" ", gap)
	}
}

func truncate(s string, width int) string {
	r := []rune(s)
	if len(r) <= width {
		return s
	}
	if width <= 3 {
		return string(r[:width])
	}
	return string(r[:width-3]) + "..."
}

var ansiRE = regexp.MustCompile(`\x1b\[[0-9;]*[A-Za-z]`)

func stripAnsi(s string) string {
	return ansiRE.ReplaceAllString(s, "")
}
