package cli

import (
	"fmt"
	"io"
	"strings"
)

// Table renders rows under a header with columns padded to their widest cell.
type Table struct {
	headers []string
	rows    [][]string
	padding int
}

// NewTable creates a table with the given headers.
func NewTable(headers []string) *Table {
	return &Table{headers: headers, padding: 2}
}

// AddRow adds a row, padding or truncating it to the header count.
func (t *Table) AddRow(row []string) {
	cells := make([]string, len(t.headers))
	copy(cells, row)
	t.rows = append(t.rows, cells)
}

// Render writes the table to w. Trailing spaces are trimmed from each line.
func (t *Table) Render(w io.Writer) {
	if len(t.headers) == 0 {
		return
	}

	widths := make([]int, len(t.headers))
	for i, h := range t.headers {
		widths[i] = len(h)
	}
	for _, row := range t.rows {
		for i, cell := range row {
			widths[i] = max(widths[i], len(cell))
		}
	}

	sep := make([]string, len(widths))
	for i, width := range widths {
		sep[i] = strings.Repeat("-", width)
	}

	t.line(w, widths, t.headers)
	t.line(w, widths, sep)
	for _, row := range t.rows {
		t.line(w, widths, row)
	}
}

func (t *Table) line(w io.Writer, widths []int, cells []string) {
	var b strings.Builder
	for i, cell := range cells {
		if i > 0 {
			b.WriteString(strings.Repeat(" ", t.padding))
		}
		fmt.Fprintf(&b, "%-*s", widths[i], cell)
	}
	fmt.Fprintln(w, strings.TrimRight(b.String(), " "))
}
