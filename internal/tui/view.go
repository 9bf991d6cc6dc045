package tui

import (
	"fmt"
	"strings"

	"github.com/gdamore/tcell/v2"
	"github.com/mattn/go-runewidth"

	"github.com/dshills/cmdpalette/internal/palette"
)

const (
	prompt     = "> "
	headerRows = 2
)

var (
	styleDefault   = tcell.StyleDefault
	styleHeading   = tcell.StyleDefault.Bold(true).Foreground(tcell.ColorTeal)
	styleCaption   = tcell.StyleDefault.Dim(true)
	styleShortcut  = tcell.StyleDefault.Foreground(tcell.ColorGray)
	styleHighlight = tcell.StyleDefault.Bold(true).Foreground(tcell.ColorYellow)
	styleStatus    = tcell.StyleDefault.Dim(true)
	styleError     = tcell.StyleDefault.Foreground(tcell.ColorRed)
)

// line is one row of the result list: either a section heading or a result.
type line struct {
	heading string
	result  int
}

// layout builds the result rows. Headings are shown only while the query is
// empty, since only then are results in section order.
func layout(st palette.State) []line {
	lines := make([]line, 0, len(st.Results)+len(st.Sections))
	if strings.TrimSpace(st.Query) == "" && len(st.Results) == countItems(st.Sections) {
		i := 0
		for _, sec := range st.Sections {
			if len(sec.Items) == 0 {
				continue
			}
			if sec.Heading != "" {
				lines = append(lines, line{heading: sec.Heading, result: -1})
			}
			for range sec.Items {
				lines = append(lines, line{result: i})
				i++
			}
		}
		return lines
	}
	for i := range st.Results {
		lines = append(lines, line{result: i})
	}
	return lines
}

func countItems(sections []palette.Section) int {
	n := 0
	for _, sec := range sections {
		n += len(sec.Items)
	}
	return n
}

// scroll returns the first visible row so that the selected result, and the
// heading directly above it, fit in height rows.
func scroll(lines []line, selected, offset, height int) int {
	if height <= 0 {
		return 0
	}
	sel := -1
	for i, l := range lines {
		if l.heading == "" && l.result == selected {
			sel = i
			break
		}
	}
	if sel < 0 {
		return 0
	}
	top := sel
	if sel > 0 && lines[sel-1].heading != "" {
		top = sel - 1
	}
	if top < offset {
		offset = top
	}
	if sel >= offset+height {
		offset = sel - height + 1
	}
	if last := len(lines) - height; offset > last {
		offset = last
	}
	if offset < 0 {
		offset = 0
	}
	return offset
}

// draw renders the whole palette.
func (p *Palette) draw() {
	st := p.engine.State()
	s := p.screen
	s.Clear()
	w, h := s.Size()

	x := drawString(s, 0, 0, w, prompt, styleDefault)
	cursorX := x + runewidth.StringWidth(string(p.query[:p.cursor]))
	drawString(s, x, 0, w, string(p.query), styleDefault)
	s.ShowCursor(cursorX, 0)

	count := fmt.Sprintf("%d/%d", len(st.Results), countItems(st.Sections))
	x = drawString(s, 0, 1, w, count, styleStatus)
	if msg, isErr := p.statusLine(); msg != "" {
		style := styleStatus
		if isErr {
			style = styleError
		}
		drawString(s, x+2, 1, w, msg, style)
	}

	lines := layout(st)
	height := h - headerRows
	p.offset = scroll(lines, st.Selected, p.offset, height)
	p.rows = p.rows[:0]
	for row := 0; row < height && p.offset+row < len(lines); row++ {
		y := headerRows + row
		l := lines[p.offset+row]
		if l.heading != "" {
			drawString(s, 0, y, w, l.heading, styleHeading)
			p.rows = append(p.rows, "")
			continue
		}
		r := st.Results[l.result]
		drawResult(s, y, w, r, l.result == st.Selected)
		p.rows = append(p.rows, r.Item.ID)
	}
	s.Show()
}

// drawResult renders "  Title  caption        shortcut" with matched runes
// highlighted and the selected row reversed.
func drawResult(s tcell.Screen, y, w int, r palette.MatchResult, selected bool) {
	base := styleDefault
	marker := "  "
	if selected {
		base = base.Reverse(true)
		marker = "▸ "
	}
	for x := 0; x < w; x++ {
		s.SetContent(x, y, ' ', nil, base)
	}

	limit := w
	if r.Item.Shortcut != "" {
		sw := runewidth.StringWidth(r.Item.Shortcut)
		if sw+1 < w {
			drawString(s, w-sw, y, w, r.Item.Shortcut, patch(styleShortcut, selected))
			limit = w - sw - 1
		}
	}

	x := drawString(s, 0, y, limit, marker, base)
	x = drawSpans(s, x, y, limit, r.Item.Title, spansFor(r.Spans, palette.FieldTitle), base, patch(styleHighlight, selected))
	if r.Item.Caption != "" {
		x = drawString(s, x, y, limit, "  ", base)
		drawSpans(s, x, y, limit, r.Item.Caption, spansFor(r.Spans, palette.FieldCaption), patch(styleCaption, selected), patch(styleHighlight, selected))
	}
}

func patch(style tcell.Style, selected bool) tcell.Style {
	if selected {
		return style.Reverse(true)
	}
	return style
}

func spansFor(spans []palette.Span, f palette.Field) []palette.Span {
	var out []palette.Span
	for _, sp := range spans {
		if sp.Field == f {
			out = append(out, sp)
		}
	}
	return out
}

func inSpans(spans []palette.Span, i int) bool {
	for _, sp := range spans {
		if i >= sp.Start && i < sp.End {
			return true
		}
	}
	return false
}

func drawString(s tcell.Screen, x, y, limit int, text string, style tcell.Style) int {
	return drawSpans(s, x, y, limit, text, nil, style, style)
}

// drawSpans draws text from column x, stopping before column limit. Runes
// whose offset falls in spans use hl. Zero-width runes are combined with the
// preceding cell. Returns the column after the last drawn cell.
func drawSpans(s tcell.Screen, x, y, limit int, text string, spans []palette.Span, style, hl tcell.Style) int {
	var (
		prevX    = -1
		prevMain rune
		prevComb []rune
		prevSty  tcell.Style
	)
	i := 0
	for _, r := range text {
		st := style
		if inSpans(spans, i) {
			st = hl
		}
		i++

		rw := runewidth.RuneWidth(r)
		if rw == 0 {
			if prevX >= 0 {
				prevComb = append(prevComb, r)
				s.SetContent(prevX, y, prevMain, prevComb, prevSty)
			}
			continue
		}
		if x+rw > limit {
			break
		}
		s.SetContent(x, y, r, nil, st)
		prevX, prevMain, prevComb, prevSty = x, r, nil, st
		x += rw
	}
	return x
}
