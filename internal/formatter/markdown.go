// Package formatter renders and aligns markdown tables for publication reports.
package formatter

import (
	"strings"

	"github.com/mattn/go-runewidth"

	"djeworker/pkg/metadata"
)

// minColumnWidth keeps separator rows valid markdown ("---").
const minColumnWidth = 3

// FormatMarkdown aligns every table in content by display width. A signed
// document is re-signed after formatting with its original metadata, since
// alignment changes the hash.
func FormatMarkdown(content string) (string, error) {
	meta, body := metadata.Extract(content)

	var (
		out   []string
		table []string
	)

	for line := range strings.SplitSeq(body, "\n") {
		if isTableRow(line) {
			table = append(table, line)

			continue
		}

		if len(table) > 0 {
			out = append(out, alignTable(parseRows(table))...)
			table = nil
		}

		out = append(out, line)
	}

	if len(table) > 0 {
		out = append(out, alignTable(parseRows(table))...)
	}

	formatted := strings.Join(out, "\n")

	if meta == nil {
		return formatted, nil
	}

	return metadata.Sign(formatted, *meta), nil
}

// Table builds an aligned markdown table. Cells longer than maxCell display
// columns are truncated with an ellipsis; maxCell <= 0 disables truncation.
func Table(headers []string, rows [][]string, maxCell int) string {
	table := make([][]string, 0, len(rows)+2)
	table = append(table, cleanCells(headers, maxCell), nil)

	for _, row := range rows {
		table = append(table, cleanCells(row, maxCell))
	}

	return strings.Join(alignTableWithSeparator(table, 1), "\n")
}

func cleanCells(cells []string, maxCell int) []string {
	out := make([]string, len(cells))

	for i, c := range cells {
		c = strings.Join(strings.Fields(c), " ")
		if maxCell > 0 && runewidth.StringWidth(c) > maxCell {
			c = runewidth.Truncate(c, maxCell, "…")
		}

		out[i] = strings.ReplaceAll(c, "|", `\|`)
	}

	return out
}

func isTableRow(line string) bool {
	trimmed := strings.TrimSpace(line)

	return len(trimmed) > 1 && strings.HasPrefix(trimmed, "|") && strings.HasSuffix(trimmed, "|")
}

// parseRows splits table lines into trimmed cells, honouring escaped pipes.
func parseRows(lines []string) [][]string {
	table := make([][]string, 0, len(lines))

	for _, line := range lines {
		inner := strings.TrimSpace(line)
		inner = strings.TrimSuffix(strings.TrimPrefix(inner, "|"), "|")

		var (
			cells []string
			cell  strings.Builder
		)

		for i := 0; i < len(inner); i++ {
			switch {
			case inner[i] == '\\' && i+1 < len(inner) && inner[i+1] == '|':
				cell.WriteString(`\|`)
				i++
			case inner[i] == '|':
				cells = append(cells, strings.TrimSpace(cell.String()))
				cell.Reset()
			default:
				cell.WriteByte(inner[i])
			}
		}

		table = append(table, append(cells, strings.TrimSpace(cell.String())))
	}

	return table
}

func alignTable(table [][]string) []string {
	if len(table) < 2 {
		out := make([]string, len(table))
		for i, row := range table {
			out[i] = "| " + strings.Join(row, " | ") + " |"
		}

		return out
	}

	sep := -1
	if isSeparator(table[1]) {
		sep = 1
	}

	return alignTableWithSeparator(table, sep)
}

func isSeparator(row []string) bool {
	for _, cell := range row {
		if strings.Trim(cell, "-: ") != "" {
			return false
		}
	}

	return true
}

// alignTableWithSeparator pads every cell to its column's display width and
// rewrites the row at index sep as dashes.
func alignTableWithSeparator(table [][]string, sep int) []string {
	cols := 0
	for _, row := range table {
		cols = max(cols, len(row))
	}

	widths := make([]int, cols)
	for i := range widths {
		widths[i] = minColumnWidth
	}

	for r, row := range table {
		if r == sep {
			continue
		}

		for i, cell := range row {
			widths[i] = max(widths[i], runewidth.StringWidth(cell))
		}
	}

	out := make([]string, 0, len(table))

	for r, row := range table {
		var sb strings.Builder

		sb.WriteString("|")

		for i := range cols {
			sb.WriteString(" ")

			if r == sep {
				sb.WriteString(strings.Repeat("-", widths[i]))
			} else {
				cell := ""
				if i < len(row) {
					cell = row[i]
				}

				sb.WriteString(runewidth.FillRight(cell, widths[i]))
			}

			sb.WriteString(" |")
		}

		out = append(out, sb.String())
	}

	return out
}
