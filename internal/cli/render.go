package cli

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Flexoki dark tones.
var (
	frameColor  = lipgloss.Color("#575653")
	mutedColor  = lipgloss.Color("#6F6E69")
	textColor   = lipgloss.Color("#FFFCF0")
	accentColor = lipgloss.Color("#3AA99F")
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(textColor).Align(lipgloss.Center)
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(accentColor)
	valueStyle  = lipgloss.NewStyle().Foreground(textColor)
	mutedStyle  = lipgloss.NewStyle().Foreground(mutedColor)
	dimStyle    = lipgloss.NewStyle().Foreground(frameColor)
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#879A39"))
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#DA702C"))
	errStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#D14D41"))
)

// separatorRow in Table.Rows draws a horizontal rule, e.g. above totals.
const separatorRow = "---"

// Table is a bordered text table. Columns after the first LeftColumns are
// right-aligned as amounts.
type Table struct {
	Title       string
	Headers     []string
	Rows        [][]string
	Widths      []int // fixed widths; measured from content when nil
	LeftColumns int
}

// RenderTitle renders title centered in a rounded box.
func RenderTitle(title string) string {
	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(frameColor).
		Width(55).
		Align(lipgloss.Center).
		Padding(0, 1).
		Render(titleStyle.Render(title))
}

func (t Table) columnWidths() []int {
	n := len(t.Headers)
	if n == 0 && len(t.Rows) > 0 {
		n = len(t.Rows[0])
	}
	widths := make([]int, n)
	if t.Widths != nil {
		copy(widths, t.Widths)
		return widths
	}
	measure := func(cells []string) {
		for i, c := range cells {
			if i < n {
				widths[i] = max(widths[i], len(c))
			}
		}
	}
	measure(t.Headers)
	for _, row := range t.Rows {
		measure(row)
	}
	return widths
}

// rule draws a horizontal border line using the given corner and joint runes.
func rule(b *strings.Builder, widths []int, left, joint, right string) {
	segs := make([]string, len(widths))
	for i, w := range widths {
		segs[i] = strings.Repeat("─", w+2)
	}
	b.WriteString(dimStyle.Render(left + strings.Join(segs, joint) + right))
	b.WriteByte('\n')
}

// cells draws one content line, styling each padded cell with style.
func cells(b *strings.Builder, widths []int, row []string, left int, style lipgloss.Style) {
	bar := dimStyle.Render("│")
	b.WriteString(bar)
	for i, w := range widths {
		var cell string
		if i < len(row) {
			cell = row[i]
		}
		format := " %*s "
		if i < left {
			format = " %-*s "
		}
		b.WriteString(style.Render(fmt.Sprintf(format, w, cell)))
		b.WriteString(bar)
	}
	b.WriteByte('\n')
}

// RenderTable renders t, or "" when it has neither headers nor rows.
func RenderTable(t Table) string {
	if len(t.Rows) == 0 && len(t.Headers) == 0 {
		return ""
	}
	widths := t.columnWidths()
	left := max(t.LeftColumns, 1)

	var b strings.Builder
	if t.Title != "" {
		b.WriteString("  " + headerStyle.Render(t.Title) + "\n")
	}
	rule(&b, widths, "╭", "┬", "╮")
	if len(t.Headers) > 0 {
		cells(&b, widths, t.Headers, len(widths), headerStyle)
		rule(&b, widths, "├", "┼", "┤")
	}
	for _, row := range t.Rows {
		if len(row) == 1 && row[0] == separatorRow {
			rule(&b, widths, "├", "┼", "┤")
			continue
		}
		cells(&b, widths, row, left, valueStyle)
	}
	rule(&b, widths, "╰", "┴", "╯")
	return b.String()
}
