package emulator

import (
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/mattn/go-runewidth"
)

// pen is the current SGR attribute state applied to the next written cell.
type pen struct {
	fg, bg                              Color
	bold, italic, underline, inverse bool
}

func defaultPen() pen {
	return pen{fg: DefaultFg, bg: DefaultBg}
}

func (p pen) apply(c *Cell) {
	c.Fg = p.fg
	c.Bg = p.bg
	c.Bold = p.bold
	c.Italic = p.italic
	c.Underline = p.underline
	c.Inverse = p.inverse
}

type gridState struct {
	cells                   [][]Cell
	row, col                int
	scrollTop, scrollBottom int
	savedRow, savedCol      int
	pen                     pen
}

func newGridState(cols, rows int) gridState {
	g := gridState{
		cells:        make([][]Cell, rows),
		scrollBottom: rows - 1,
		pen:          defaultPen(),
	}
	for i := range g.cells {
		g.cells[i] = makeBlankRow(cols)
	}
	return g
}

func makeBlankRow(cols int) []Cell {
	row := make([]Cell, cols)
	for j := range row {
		row[j] = blankCell()
	}
	return row
}

type parserState byte

const (
	psNorm parserState = iota
	psEsc
	psCSI
	psOSC
	psOSCEsc
	psEscSkip
)

// Emulator parses a byte stream into a rows x cols Cell grid, the way a
// terminal would. Feed is not safe for concurrent use; callers that need
// concurrent readers and writers (the session daemon) wrap an Emulator in
// their own lock.
type Emulator struct {
	cols, rows int

	main  gridState
	alt   gridState
	inAlt bool

	pState parserState
	pBuf   []byte
	uBuf   []byte
}

// New creates an Emulator with the given viewport size.
func New(cols, rows int) *Emulator {
	e := &Emulator{cols: cols, rows: rows}
	e.main = newGridState(cols, rows)
	e.alt = newGridState(cols, rows)
	return e
}

func (e *Emulator) st() *gridState {
	if e.inAlt {
		return &e.alt
	}
	return &e.main
}

// Feed advances emulator state with newly read PTY output. Malformed
// escape sequences are discarded rather than surfaced as errors.
func (e *Emulator) Feed(data []byte) {
	if len(e.uBuf) > 0 {
		data = append(e.uBuf, data...)
		e.uBuf = e.uBuf[:0]
	}

	i := 0
	for i < len(data) {
		b := data[i]

		if e.pState != psNorm {
			e.feedEsc(b)
			i++
			continue
		}

		if b < 0x20 || b == 0x7f {
			e.feedCtrl(b)
			i++
			continue
		}

		if b < 0x80 {
			e.putRune(rune(b))
			i++
			continue
		}

		r, size := utf8.DecodeRune(data[i:])
		if r == utf8.RuneError && size <= 1 {
			if len(data)-i < 4 {
				e.uBuf = append(e.uBuf[:0], data[i:]...)
				return
			}
			i++
			continue
		}
		e.putRune(r)
		i += size
	}
}

// Resize reshapes the grid. Content is preserved where both coordinates
// remain valid; newly exposed cells are blank with default attributes.
func (e *Emulator) Resize(cols, rows int) {
	if cols <= 0 || rows <= 0 {
		return
	}
	e.main = resizeGrid(e.main, e.cols, e.rows, cols, rows)
	e.alt = resizeGrid(e.alt, e.cols, e.rows, cols, rows)
	e.cols, e.rows = cols, rows
}

func resizeGrid(old gridState, oldCols, oldRows, cols, rows int) gridState {
	g := newGridState(cols, rows)
	g.pen = old.pen
	n := minInt(oldRows, rows)
	m := minInt(oldCols, cols)
	for r := 0; r < n; r++ {
		copy(g.cells[r][:m], old.cells[r][:m])
	}
	g.row = clamp(old.row, 0, rows-1)
	g.col = clamp(old.col, 0, cols-1)
	g.scrollBottom = rows - 1
	return g
}

// Snapshot produces a value-copy Grid so callers may hold it without
// blocking further Feed calls.
func (e *Emulator) Snapshot() Grid {
	g := e.st()
	cells := make([][]Cell, e.rows)
	for r := 0; r < e.rows; r++ {
		row := make([]Cell, e.cols)
		copy(row, g.cells[r])
		cells[r] = row
	}
	return Grid{
		Rows:      e.rows,
		Cols:      e.cols,
		CursorRow: clamp(g.row, 0, e.rows-1),
		CursorCol: clamp(g.col, 0, e.cols-1),
		Cells:     cells,
	}
}

// Cursor returns the current (row, col) position.
func (e *Emulator) Cursor() (int, int) {
	g := e.st()
	return clamp(g.row, 0, e.rows-1), clamp(g.col, 0, e.cols-1)
}

// --- Character output ---

func (e *Emulator) putRune(r rune) {
	g := e.st()
	width := runewidth.RuneWidth(r)
	if width <= 0 {
		width = 1
	}
	if width == 2 && g.col+1 >= e.cols {
		// Not enough room for a wide char on this line — wrap first.
		g.col = 0
		e.linefeed()
	} else if g.col >= e.cols {
		g.col = 0
		e.linefeed()
	}

	cell := Cell{Char: string(r)}
	g.pen.apply(&cell)
	g.cells[g.row][g.col] = cell
	g.col++

	if width == 2 && g.col < e.cols {
		trail := blankCell()
		g.pen.apply(&trail)
		trail.Char = ""
		g.cells[g.row][g.col] = trail
		g.col++
	}
}

// --- Control characters ---

func (e *Emulator) feedCtrl(b byte) {
	g := e.st()
	switch b {
	case 0x1b:
		e.pState = psEsc
		e.pBuf = e.pBuf[:0]
	case '\r':
		g.col = 0
	case '\n':
		e.linefeed()
	case '\x08':
		if g.col > 0 {
			g.col--
		}
	case '\t':
		g.col = (g.col/8 + 1) * 8
		if g.col >= e.cols {
			g.col = e.cols - 1
		}
	case '\x07':
		// BEL — ignored
	}
}

// --- Escape sequence parser ---

func (e *Emulator) feedEsc(b byte) {
	switch e.pState {
	case psEsc:
		switch b {
		case '[':
			e.pState = psCSI
			e.pBuf = e.pBuf[:0]
		case ']':
			e.pState = psOSC
			e.pBuf = e.pBuf[:0]
		case 'M':
			e.reverseIndex()
			e.pState = psNorm
		case '7':
			g := e.st()
			g.savedRow, g.savedCol = g.row, g.col
			e.pState = psNorm
		case '8':
			g := e.st()
			g.row, g.col = g.savedRow, g.savedCol
			e.pState = psNorm
		case '(', ')':
			e.pState = psEscSkip
		default:
			e.pState = psNorm
		}

	case psCSI:
		if b >= 0x20 && b <= 0x3f {
			e.pBuf = append(e.pBuf, b)
			return
		}
		params := string(e.pBuf)
		e.pState = psNorm
		e.pBuf = e.pBuf[:0]
		if strings.ContainsAny(params, " !\"#$%&'()*+,-./<=>") {
			// Intermediate bytes (DECSCUSR's space) or a private prefix
			// other than '?' (DA2's '>'): the whole sequence is discarded.
			return
		}
		e.execCSI(b, params)

	case psOSC:
		if b == 0x07 {
			e.pState = psNorm
			e.pBuf = e.pBuf[:0]
		} else if b == 0x1b {
			e.pState = psOSCEsc
		}

	case psOSCEsc:
		e.pState = psNorm
		e.pBuf = e.pBuf[:0]

	case psEscSkip:
		e.pState = psNorm
	}
}

// --- CSI command execution ---

func (e *Emulator) execCSI(final byte, params string) {
	g := e.st()

	switch final {
	case 'H', 'f':
		row, col := parseTwo(params, 1, 1)
		g.row = clamp(row-1, 0, e.rows-1)
		g.col = clamp(col-1, 0, e.cols-1)

	case 'A':
		g.row = maxInt(g.row-parseOne(params, 1), g.scrollTop)

	case 'B':
		g.row = minInt(g.row+parseOne(params, 1), g.scrollBottom)

	case 'C':
		g.col = minInt(g.col+parseOne(params, 1), e.cols-1)

	case 'D':
		g.col = maxInt(g.col-parseOne(params, 1), 0)

	case 'E':
		g.row = minInt(g.row+parseOne(params, 1), g.scrollBottom)
		g.col = 0

	case 'F':
		g.row = maxInt(g.row-parseOne(params, 1), g.scrollTop)
		g.col = 0

	case 'G':
		g.col = clamp(parseOne(params, 1)-1, 0, e.cols-1)

	case 'd':
		g.row = clamp(parseOne(params, 1)-1, 0, e.rows-1)

	case 'J':
		e.eraseDisplay(parseOne(params, 0))

	case 'K':
		e.eraseLine(parseOne(params, 0))

	case 'X':
		n := parseOne(params, 1)
		for i := 0; i < n && g.col+i < e.cols; i++ {
			g.cells[g.row][g.col+i] = blankCell()
		}

	case 'L':
		e.insertLines(parseOne(params, 1))

	case 'M':
		e.deleteLines(parseOne(params, 1))

	case '@':
		e.insertChars(parseOne(params, 1))

	case 'P':
		e.deleteChars(parseOne(params, 1))

	case 'S':
		e.scrollUp(parseOne(params, 1))

	case 'T':
		e.scrollDown(parseOne(params, 1))

	case 'r':
		top, bottom := parseTwo(params, 1, e.rows)
		g.scrollTop = clamp(top-1, 0, e.rows-1)
		g.scrollBottom = clamp(bottom-1, 0, e.rows-1)
		g.row, g.col = g.scrollTop, 0

	case 'h':
		if len(params) > 0 && params[0] == '?' {
			e.setPrivateMode(params[1:], true)
		}

	case 'l':
		if len(params) > 0 && params[0] == '?' {
			e.setPrivateMode(params[1:], false)
		}

	case 's':
		g.savedRow, g.savedCol = g.row, g.col

	case 'u':
		g.row, g.col = g.savedRow, g.savedCol

	case 'm':
		e.applySGR(params)

	case 'n', 'c', 'q':
		// DSR / DA / DECSCUSR — ignored, no controller to respond to.
	}
}

// --- SGR (Select Graphic Rendition) ---

func (e *Emulator) applySGR(params string) {
	g := e.st()
	if params == "" {
		g.pen = defaultPen()
		return
	}
	parts := strings.Split(params, ";")
	for i := 0; i < len(parts); i++ {
		n, err := strconv.Atoi(parts[i])
		if err != nil {
			continue
		}
		switch {
		case n == 0:
			g.pen = defaultPen()
		case n == 1:
			g.pen.bold = true
		case n == 3:
			g.pen.italic = true
		case n == 4:
			g.pen.underline = true
		case n == 7:
			g.pen.inverse = true
		case n == 22:
			g.pen.bold = false
		case n == 23:
			g.pen.italic = false
		case n == 24:
			g.pen.underline = false
		case n == 27:
			g.pen.inverse = false
		case n == 39:
			g.pen.fg = DefaultFg
		case n == 49:
			g.pen.bg = DefaultBg
		case n >= 30 && n <= 37:
			g.pen.fg = basic16[n-30]
		case n >= 90 && n <= 97:
			g.pen.fg = basic16[8+n-90]
		case n >= 40 && n <= 47:
			g.pen.bg = basic16[n-40]
		case n >= 100 && n <= 107:
			g.pen.bg = basic16[8+n-100]
		case n == 38 || n == 48:
			consumed := e.applyExtendedColor(g, n, parts[i+1:])
			i += consumed
		}
	}
}

// applyExtendedColor handles `38;5;N` / `48;5;N` (256-color) and
// `38;2;R;G;B` / `48;2;R;G;B` (truecolor) sequences. Returns the number of
// extra parameter tokens consumed beyond the initial 38/48.
func (e *Emulator) applyExtendedColor(g *gridState, base int, rest []string) int {
	if len(rest) == 0 {
		return 0
	}
	mode, err := strconv.Atoi(rest[0])
	if err != nil {
		return 0
	}
	switch mode {
	case 5:
		if len(rest) < 2 {
			return 1
		}
		idx, err := strconv.Atoi(rest[1])
		if err != nil {
			return 2
		}
		c := idxToRGB(uint8(idx))
		if base == 38 {
			g.pen.fg = c
		} else {
			g.pen.bg = c
		}
		return 2
	case 2:
		if len(rest) < 4 {
			return len(rest)
		}
		r, _ := strconv.Atoi(rest[1])
		gr, _ := strconv.Atoi(rest[2])
		b, _ := strconv.Atoi(rest[3])
		c := Color{uint8(r), uint8(gr), uint8(b)}
		if base == 38 {
			g.pen.fg = c
		} else {
			g.pen.bg = c
		}
		return 4
	}
	return 0
}

// --- Private modes ---

func (e *Emulator) setPrivateMode(params string, set bool) {
	for _, p := range strings.Split(params, ";") {
		n, _ := strconv.Atoi(p)
		switch n {
		case 47, 1047, 1049:
			if set && !e.inAlt {
				e.inAlt = true
				e.alt = newGridState(e.cols, e.rows)
			} else if !set && e.inAlt {
				e.inAlt = false
			}
		}
	}
}

// --- Scrolling & line operations ---

func (e *Emulator) linefeed() {
	g := e.st()
	if g.row == g.scrollBottom {
		e.scrollUp(1)
	} else if g.row < e.rows-1 {
		g.row++
	}
}

func (e *Emulator) reverseIndex() {
	g := e.st()
	if g.row == g.scrollTop {
		e.scrollDown(1)
	} else if g.row > 0 {
		g.row--
	}
}

func (e *Emulator) scrollUp(n int) {
	g := e.st()
	top, bottom := g.scrollTop, g.scrollBottom
	span := bottom - top + 1
	if n > span {
		n = span
	}
	for r := top; r <= bottom-n; r++ {
		g.cells[r] = g.cells[r+n]
	}
	for r := bottom - n + 1; r <= bottom; r++ {
		g.cells[r] = makeBlankRow(e.cols)
	}
}

func (e *Emulator) scrollDown(n int) {
	g := e.st()
	top, bottom := g.scrollTop, g.scrollBottom
	span := bottom - top + 1
	if n > span {
		n = span
	}
	for r := bottom; r >= top+n; r-- {
		g.cells[r] = g.cells[r-n]
	}
	for r := top; r < top+n; r++ {
		g.cells[r] = makeBlankRow(e.cols)
	}
}

func (e *Emulator) insertLines(n int) {
	g := e.st()
	if g.row < g.scrollTop || g.row > g.scrollBottom {
		return
	}
	saved := g.scrollTop
	g.scrollTop = g.row
	e.scrollDown(n)
	g.scrollTop = saved
	g.col = 0
}

func (e *Emulator) deleteLines(n int) {
	g := e.st()
	if g.row < g.scrollTop || g.row > g.scrollBottom {
		return
	}
	saved := g.scrollTop
	g.scrollTop = g.row
	e.scrollUp(n)
	g.scrollTop = saved
	g.col = 0
}

func (e *Emulator) insertChars(n int) {
	g := e.st()
	row := g.cells[g.row]
	for i := e.cols - 1; i >= g.col+n && i >= 0; i-- {
		row[i] = row[i-n]
	}
	for i := g.col; i < g.col+n && i < e.cols; i++ {
		row[i] = blankCell()
	}
}

func (e *Emulator) deleteChars(n int) {
	g := e.st()
	if n > e.cols-g.col {
		n = e.cols - g.col
	}
	if n <= 0 {
		return
	}
	row := g.cells[g.row]
	for i := g.col; i < e.cols-n; i++ {
		row[i] = row[i+n]
	}
	for i := e.cols - n; i < e.cols; i++ {
		row[i] = blankCell()
	}
}

// --- Erase operations ---

func (e *Emulator) eraseDisplay(mode int) {
	g := e.st()
	switch mode {
	case 0:
		for i := g.col; i < e.cols; i++ {
			g.cells[g.row][i] = blankCell()
		}
		for r := g.row + 1; r < e.rows; r++ {
			g.cells[r] = makeBlankRow(e.cols)
		}
	case 1:
		for r := 0; r < g.row; r++ {
			g.cells[r] = makeBlankRow(e.cols)
		}
		for i := 0; i <= g.col && i < e.cols; i++ {
			g.cells[g.row][i] = blankCell()
		}
	case 2, 3:
		for r := 0; r < e.rows; r++ {
			g.cells[r] = makeBlankRow(e.cols)
		}
	}
}

func (e *Emulator) eraseLine(mode int) {
	g := e.st()
	switch mode {
	case 0:
		for i := g.col; i < e.cols; i++ {
			g.cells[g.row][i] = blankCell()
		}
	case 1:
		for i := 0; i <= g.col && i < e.cols; i++ {
			g.cells[g.row][i] = blankCell()
		}
	case 2:
		g.cells[g.row] = makeBlankRow(e.cols)
	}
}

// --- Parameter parsing helpers ---

func parseOne(params string, def int) int {
	params = strings.TrimPrefix(params, "?")
	if params == "" {
		return def
	}
	n, err := strconv.Atoi(params)
	if err != nil || n == 0 {
		return def
	}
	return n
}

func parseTwo(params string, def1, def2 int) (int, int) {
	parts := strings.SplitN(params, ";", 2)
	a, b := def1, def2
	if len(parts) >= 1 && parts[0] != "" {
		if n, err := strconv.Atoi(parts[0]); err == nil && n > 0 {
			a = n
		}
	}
	if len(parts) >= 2 && parts[1] != "" {
		if n, err := strconv.Atoi(parts[1]); err == nil && n > 0 {
			b = n
		}
	}
	return a, b
}

func clamp(v, lo, hi int) int {
	if hi < lo {
		return lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
