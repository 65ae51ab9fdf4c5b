// Package report renders aggregated pipeline statistics.
package report

import (
	"fmt"
	"io"
	"strings"
	"unicode/utf8"
)

// Column describes one table column.
type Column struct {
	Header string
	// FitContent sizes the column to its longest cell. Otherwise the column
	// is as wide as its header and longer cells overflow it.
	FitContent bool
}

// Table is a fixed-width, left-justified table rendered in markdown pipe syntax.
type Table struct {
	Columns []Column
	Rows    [][]string
}

// NewTable returns an empty table with the given columns.
func NewTable(columns ...Column) *Table {
	return &Table{Columns: columns}
}

// AddRow appends a row. Missing cells render empty, extra cells are dropped.
func (t *Table) AddRow(cells ...string) {
	row := make([]string, len(t.Columns))
	copy(row, cells)
	t.Rows = append(t.Rows, row)
}

// Widths returns the padded width of every column.
func (t *Table) Widths() []int {
	widths := make([]int, len(t.Columns))
	for i, col := range t.Columns {
		widths[i] = utf8.RuneCountInString(col.Header)
		if !col.FitContent {
			continue
		}
		for _, row := range t.Rows {
			if n := utf8.RuneCountInString(row[i]); n > widths[i] {
				widths[i] = n
			}
		}
	}
	return widths
}

// Render writes the header, a separator and every row to w.
func (t *Table) Render(w io.Writer) error {
	widths := t.Widths()

	headers := make([]string, len(t.Columns))
	for i, col := range t.Columns {
		headers[i] = col.Header
	}
	if err := writeRow(w, headers, widths); err != nil {
		return err
	}

	var sep strings.Builder
	sep.WriteString("|")
	for _, width := range widths {
		sep.WriteString(strings.Repeat("-", width+2))
		sep.WriteString("|")
	}
	if _, err := fmt.Fprintln(w, sep.String()); err != nil {
		return err
	}

	for _, row := range t.Rows {
		if err := writeRow(w, row, widths); err != nil {
			return err
		}
	}
	return nil
}

func writeRow(w io.Writer, cells []string, widths []int) error {
	padded := make([]string, len(cells))
	for i, cell := range cells {
		padded[i] = pad(cell, widths[i])
	}
	_, err := fmt.Fprintf(w, "| %s |\n", strings.Join(padded, " | "))
	return err
}

func pad(s string, width int) string {
	n := utf8.RuneCountInString(s)
	if n >= width {
		return s
	}
	return s + strings.Repeat(" ", width-n)
}
