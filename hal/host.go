package hal

import (
	"fmt"
	"io"
	"os"
	"sync"
)

type hostHAL struct {
	logger *hostLogger
	fb     *hostFramebuffer
	kbd    *hostKeyboard
	t      *hostTime
}

// New returns a host HAL implementation logging to stdout.
func New(cfg Config) HAL {
	return newHost(cfg, os.Stdout)
}

func newHost(cfg Config, w io.Writer) *hostHAL {
	cfg = cfg.withDefaults()
	return &hostHAL{
		logger: &hostLogger{w: w},
		fb:     newHostFramebuffer(cfg.Width, cfg.Height),
		kbd:    newHostKeyboard(),
		t:      newHostTime(),
	}
}

func (h *hostHAL) Logger() Logger   { return h.logger }
func (h *hostHAL) Display() Display { return hostDisplay{fb: h.fb} }
func (h *hostHAL) Input() Input     { return hostInput{kbd: h.kbd} }
func (h *hostHAL) Time() Time       { return h.t }

type hostDisplay struct {
	fb *hostFramebuffer
}

func (d hostDisplay) Framebuffer() Framebuffer { return d.fb }

type hostInput struct {
	kbd *hostKeyboard
}

func (in hostInput) Keyboard() Keyboard { return in.kbd }

type hostLogger struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *hostLogger) WriteLineString(s string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintln(l.w, s)
}

func (l *hostLogger) WriteLineBytes(b []byte) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.w.Write(b)
	l.w.Write([]byte{'\n'})
}
