package locate

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	targetStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#EF4444"))
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7C3AED"))
	labelStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#6B7280"))
)

// Printer writes rendered rows to a terminal.
type Printer struct {
	w io.Writer
	// Headers prints the artifact name above each group; set for wildcard lookups.
	Headers bool
}

// NewPrinter returns a Printer writing to w.
func NewPrinter(w io.Writer) *Printer {
	return &Printer{w: w}
}

// Label prints a trace line above its context window.
func (p *Printer) Label(text string) error {
	_, err := fmt.Fprintf(p.w, "\n%s\n", labelStyle.Render(": "+strings.TrimSpace(text)))
	return err
}

// Groups prints every group.
func (p *Printer) Groups(groups []Group) error {
	for _, g := range groups {
		if p.Headers {
			if _, err := fmt.Fprintln(p.w, headerStyle.Render(g.Name)); err != nil {
				return err
			}
		}
		if err := p.Rows(g.Rows); err != nil {
			return err
		}
	}
	return nil
}

// Rows prints rows as a right-aligned line number, two spaces, and the text. The
// target row is highlighted.
func (p *Printer) Rows(rows []Row) error {
	for _, row := range rows {
		line := fmt.Sprintf("%7d  %s", row.Number, row.Text)
		if row.Target {
			line = targetStyle.Render(line)
		}
		if _, err := fmt.Fprintln(p.w, line); err != nil {
			return err
		}
	}
	return nil
}
