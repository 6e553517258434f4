package console

import (
	"github.com/gdamore/tcell/v2"
	"github.com/mattn/go-runewidth"
)

var (
	titleStyle  = tcell.StyleDefault.Reverse(true)
	outputStyle = tcell.StyleDefault
	promptStyle = tcell.StyleDefault.Bold(true)
)

// draw renders the whole window.
func (h *handle) draw() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}

	s := h.screen
	width, height := s.Size()
	if width <= 0 || height <= 0 {
		return
	}
	s.Clear()

	// Title bar
	for x := 0; x < width; x++ {
		s.SetContent(x, 0, ' ', nil, titleStyle)
	}
	title := h.title
	if h.busy {
		title += " (running)"
	}
	drawText(s, 1, 0, width-1, title, titleStyle)

	// Output pane, bottom-aligned above the input line
	paneHeight := height - 2
	if paneHeight > 0 {
		rows := wrapLines(h.visibleLines(), width)
		end := len(rows) - h.scroll
		if end < 0 {
			end = 0
		}
		start := end - paneHeight
		if start < 0 {
			start = 0
		}
		y := 1 + paneHeight - (end - start)
		for _, row := range rows[start:end] {
			drawText(s, 0, y, width, row, outputStyle)
			y++
		}
	}

	// Input line
	prompt := h.prompt()
	px := drawText(s, 0, height-1, width, prompt, promptStyle)
	cx := drawText(s, px, height-1, width, string(h.input), outputStyle)
	s.ShowCursor(min(cx, width-1), height-1)

	s.Show()
}

func (h *handle) visibleLines() []string {
	if h.partial == "" {
		return h.lines
	}
	return append(h.lines[:len(h.lines):len(h.lines)], h.partial)
}

// drawText draws text starting at x and returns the column after it.
func drawText(s tcell.Screen, x, y, maxX int, text string, style tcell.Style) int {
	for _, r := range text {
		w := runewidth.RuneWidth(r)
		if w == 0 {
			continue
		}
		if x+w > maxX {
			break
		}
		s.SetContent(x, y, r, nil, style)
		x += w
	}
	return x
}

// wrapLines splits lines into rows no wider than width.
func wrapLines(lines []string, width int) []string {
	var rows []string
	for _, line := range lines {
		if runewidth.StringWidth(line) <= width {
			rows = append(rows, line)
			continue
		}
		var (
			row []rune
			w   int
		)
		for _, r := range line {
			rw := runewidth.RuneWidth(r)
			if w+rw > width && len(row) > 0 {
				rows = append(rows, string(row))
				row, w = nil, 0
			}
			row = append(row, r)
			w += rw
		}
		rows = append(rows, string(row))
	}
	return rows
}
