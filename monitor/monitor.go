// Package monitor draws scheduler snapshots onto a framebuffer.
package monitor

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"spool/hal"
	"spool/kernel"

	"tinygo.org/x/tinyfont"
	"tinygo.org/x/tinyfont/proggy"
	"tinygo.org/x/tinyterm"
)

var ErrNoFramebuffer = errors.New("monitor: no RGB565 framebuffer")

const (
	fontHeight = 10
	fontOffset = 6
)

// Monitor renders a live view of one scheduler.
type Monitor struct {
	title string
	fb    hal.Framebuffer
	d     *fbDisplay
	font  *tinyfont.Font

	rows int
	cols int
}

func New(disp hal.Display, title string) (*Monitor, error) {
	if disp == nil {
		return nil, ErrNoFramebuffer
	}
	fb := disp.Framebuffer()
	if fb == nil || fb.Format() != hal.PixelFormatRGB565 {
		return nil, ErrNoFramebuffer
	}

	m := &Monitor{
		title: title,
		fb:    fb,
		d:     &fbDisplay{fb: fb},
		font:  &proggy.TinySZ8pt7b,
	}
	_, charWidth := tinyfont.LineWidth(m.font, "0")
	if charWidth == 0 {
		charWidth = 6
	}
	m.rows = fb.Height() / fontHeight
	m.cols = fb.Width() / int(charWidth)
	if m.rows <= 0 || m.cols <= 0 {
		return nil, fmt.Errorf("monitor: framebuffer %dx%d too small", fb.Width(), fb.Height())
	}
	return m, nil
}

// Rows returns the number of text lines that fit.
func (m *Monitor) Rows() int { return m.rows }

// Render draws snap followed by the tail of log and presents the framebuffer.
func (m *Monitor) Render(snap kernel.Snapshot, log []string) error {
	m.fb.ClearRGB(0, 0, 0)

	t := tinyterm.NewTerminal(m.d)
	t.Configure(&tinyterm.Config{
		Font:       m.font,
		FontHeight: fontHeight,
		FontOffset: fontOffset,
	})

	lines := Lines(m.title, snap, log, m.rows)
	for i, line := range lines {
		if i > 0 {
			_, _ = t.Write([]byte("\r\n"))
		}
		_, _ = t.Write([]byte(clip(line, m.cols)))
	}
	t.Display()
	return nil
}

// Lines lays out a snapshot as at most rows text lines. Thread rows come
// first; log lines fill whatever is left, newest last.
func Lines(title string, snap kernel.Snapshot, log []string, rows int) []string {
	inst := snap.Instance
	if len(inst) > 8 {
		inst = inst[:8]
	}
	lines := []string{
		fmt.Sprintf("%s %s cur=%d ready=%d live=%d blocked=%d",
			title, inst, snap.Current, len(snap.Ready), len(snap.Threads), snap.Blocked()),
		fmt.Sprintf("sw=%d ho=%d msg=%d new=%d rel=%d flt=%d stv=%d",
			snap.Stats.Switches, snap.Stats.Handoffs, snap.Stats.Messages,
			snap.Stats.Created, snap.Stats.Released, snap.Stats.Faults, snap.Stats.Starved),
		fmt.Sprintf("%4s %3s %3s %-9s %3s %6s", "ID", "PRI", "CR", "STATE", "IN", "STACK"),
	}
	for _, th := range snap.Threads {
		lines = append(lines, fmt.Sprintf("%4d %3d %3d %-9s %3d %6d",
			th.ID, th.Priority, th.Creator, th.State, th.Inbox, th.StackSize))
	}
	if rows > 0 && len(lines) > rows {
		return lines[:rows]
	}

	free := len(log)
	if rows > 0 {
		free = rows - len(lines) - 1
	}
	if free > 0 && len(log) > 0 {
		if free > len(log) {
			free = len(log)
		}
		lines = append(lines, strings.Repeat("-", 8))
		lines = append(lines, log[len(log)-free:]...)
	}
	return lines
}

func clip(s string, cols int) string {
	if utf8.RuneCountInString(s) <= cols {
		return s
	}
	prefix, _ := takeRunes(s, int16(cols))
	return prefix
}
