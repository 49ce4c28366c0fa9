package main

import (
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

var (
	accentColor = lipgloss.AdaptiveColor{Light: "#5A56E0", Dark: "#7C79FF"}
	mutedColor  = lipgloss.AdaptiveColor{Light: "#9B9B9B", Dark: "#5C5C5C"}
	warnColor   = lipgloss.AdaptiveColor{Light: "#FF5F56", Dark: "#FF6B6B"}

	cellStyle   = lipgloss.NewStyle().PaddingRight(2)
	headerStyle = cellStyle.Foreground(accentColor)
	labelStyle  = cellStyle.Foreground(mutedColor)
	warnStyle   = cellStyle.Foreground(warnColor)
)

// newTable returns a borderless table; columns are separated by padding only
// so the output stays easy to grep.
func newTable() *table.Table {
	return table.New().
		BorderTop(false).
		BorderBottom(false).
		BorderLeft(false).
		BorderRight(false).
		BorderHeader(false).
		BorderColumn(false).
		BorderRow(false)
}

func renderTable(out io.Writer, t *table.Table) error {
	_, err := fmt.Fprintln(out, t.String())
	return err
}
