// Package tablewriter renders aligned, borderless text tables for terminal
// output. Cell widths are measured in display columns, ignoring ANSI color
// sequences, so colored and wide characters line up.
package tablewriter

import (
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/mattn/go-runewidth"
)

var ansiRegex = regexp.MustCompile(`\x1b\[[0-9;]*[a-zA-Z]`)

const defaultGap = 3

// Writer buffers rows and writes them as a table on Render.
type Writer struct {
	out      io.Writer
	headers  []string
	rows     [][]string
	maxWidth map[int]int
	gap      int
}

// NewWriter creates a table writer that renders to w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{out: w, maxWidth: map[int]int{}, gap: defaultGap}
}

// Header sets the column headers. The header row also fixes the column count.
func (t *Writer) Header(headers ...string) {
	t.headers = headers
}

// Append adds a row. Cells beyond the header count are dropped.
func (t *Writer) Append(cells ...string) {
	t.rows = append(t.rows, cells)
}

// Limit truncates cells in column col to width display columns.
func (t *Writer) Limit(col, width int) {
	if width > 0 {
		t.maxWidth[col] = width
	}
}

// Len returns the number of buffered rows.
func (t *Writer) Len() int {
	return len(t.rows)
}

// Render writes the table. Nothing is written when there are no rows.
func (t *Writer) Render() error {
	if len(t.rows) == 0 {
		return nil
	}
	columns := len(t.headers)
	if columns == 0 {
		for _, row := range t.rows {
			columns = max(columns, len(row))
		}
	}
	lines := make([][]string, 0, len(t.rows)+1)
	if len(t.headers) > 0 {
		lines = append(lines, t.headers)
	}
	lines = append(lines, t.rows...)

	cells := make([][]string, len(lines))
	widths := make([]int, columns)
	for i, line := range lines {
		cells[i] = make([]string, columns)
		for col := 0; col < columns && col < len(line); col++ {
			cell := t.fit(col, line[col])
			cells[i][col] = cell
			widths[col] = max(widths[col], displayWidth(cell))
		}
	}

	var sb strings.Builder
	for _, row := range cells {
		for col, cell := range row {
			sb.WriteString(cell)
			if col == columns-1 {
				break
			}
			sb.WriteString(strings.Repeat(" ", widths[col]-displayWidth(cell)+t.gap))
		}
		sb.WriteByte('\n')
	}
	_, err := fmt.Fprint(t.out, sb.String())
	return err
}

func (t *Writer) fit(col int, cell string) string {
	limit, ok := t.maxWidth[col]
	if !ok || displayWidth(cell) <= limit {
		return cell
	}
	return runewidth.Truncate(stripANSI(cell), limit, "…")
}

func stripANSI(s string) string {
	return ansiRegex.ReplaceAllString(s, "")
}

func displayWidth(s string) int {
	return runewidth.StringWidth(stripANSI(s))
}
