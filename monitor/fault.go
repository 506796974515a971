package monitor

import (
	"fmt"
	"image/color"
	"strings"
	"unicode/utf8"

	"spool/kernel"

	"tinygo.org/x/tinyfont"
)

// RenderFault replaces the screen with a description of info.
func (m *Monitor) RenderFault(info kernel.FaultInfo) error {
	m.fb.ClearRGB(255, 255, 255)

	_, outboxWidth := tinyfont.LineWidth(m.font, "0")
	fontWidth := int16(outboxWidth)
	if fontWidth <= 0 {
		return m.fb.Present()
	}

	fg := color.RGBA{R: 0, G: 0, B: 0, A: 255}
	y := int16(0)
	maxH := int16(m.fb.Height())
	cols := int16(m.cols)

	for _, line := range FaultLines(m.title, info) {
		for len(line) > 0 {
			if y+fontHeight > maxH {
				return m.fb.Present()
			}
			chunk, rest := takeRunes(line, cols)
			drawTextLine(m.d, m.font, fontWidth, 0, y, chunk, fg)
			y += fontHeight
			line = strings.TrimLeft(rest, " ")
		}
	}
	return m.fb.Present()
}

// FaultLines describes info as text, stack included.
func FaultLines(title string, info kernel.FaultInfo) []string {
	lines := []string{
		title + " fault:",
		fmt.Sprintf("thread: %d", info.Thread),
	}
	if info.Err != nil {
		lines = append(lines, fmt.Sprintf("error: %v", info.Err))
	} else {
		lines = append(lines, fmt.Sprintf("panic: %v", info.Value))
	}
	if len(info.Stack) == 0 {
		return append(lines, "stack: unavailable")
	}
	lines = append(lines, "stack:")
	for _, line := range strings.Split(string(info.Stack), "\n") {
		if line == "" {
			continue
		}
		lines = append(lines, strings.ReplaceAll(line, "\t", "  "))
	}
	return lines
}

func drawTextLine(d *fbDisplay, font tinyfont.Fonter, fontWidth, x0, y0 int16, s string, fg color.RGBA) {
	x := x0
	for _, r := range s {
		tinyfont.DrawChar(d, font, x, y0+fontOffset, r, fg)
		x += fontWidth
	}
}

func takeRunes(s string, n int16) (prefix, rest string) {
	if n <= 0 || s == "" {
		return "", s
	}
	var i int
	var count int16
	for i < len(s) && count < n {
		_, size := utf8.DecodeRuneInString(s[i:])
		i += size
		count++
	}
	return s[:i], s[i:]
}
