package emulator

import "strings"

// Text renders a Grid as newline-joined rows: each row's cell chars are
// concatenated (blank cells render as a space), right-trimmed, and
// trailing empty lines are dropped.
func Text(g Grid) string {
	lines := make([]string, 0, g.Rows)
	for r := 0; r < g.Rows; r++ {
		var b strings.Builder
		for c := 0; c < g.Cols; c++ {
			ch := g.Cells[r][c].Char
			if ch == "" {
				b.WriteByte(' ')
			} else {
				b.WriteString(ch)
			}
		}
		lines = append(lines, strings.TrimRight(b.String(), " "))
	}

	for len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}

	return strings.Join(lines, "\n")
}
