package output

import (
	"fmt"
	"io"
	"strings"
	"unicode/utf8"
)

// Table buffers rows and writes them as left-aligned columns separated by
// two spaces. The last column is never padded, so long keys do not leave
// trailing whitespace.
type Table struct {
	out    io.Writer
	quiet  bool
	rows   [][]string
	widths []int
}

// NewTable starts a table whose first row is headers.
func NewTable(out io.Writer, headers []string, quiet bool) *Table {
	t := &Table{out: out, quiet: quiet, widths: make([]int, len(headers))}
	t.add(headers)
	return t
}

func (t *Table) add(cells []string) {
	for i, cell := range cells {
		if i >= len(t.widths) {
			break
		}
		t.widths[i] = max(t.widths[i], utf8.RuneCountInString(cell))
	}
	t.rows = append(t.rows, cells)
}

func (t *Table) Append(row ...string) {
	t.add(row)
}

// Len is the number of data rows, excluding the header.
func (t *Table) Len() int {
	return len(t.rows) - 1
}

func (t *Table) Render() {
	if t.quiet {
		return
	}
	var b strings.Builder
	for _, row := range t.rows {
		b.Reset()
		for i, cell := range row {
			if i > 0 {
				b.WriteString("  ")
			}
			b.WriteString(cell)
			if i < len(row)-1 && i < len(t.widths) {
				b.WriteString(strings.Repeat(" ", t.widths[i]-utf8.RuneCountInString(cell)))
			}
		}
		fmt.Fprintln(t.out, b.String())
	}
}
