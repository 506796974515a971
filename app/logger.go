package app

import (
	"fmt"

	"spool/hal"
	"spool/kernel"
)

const maxLogLine = 160

// logService owns the log mailbox. Threads deposit lines and signal; the
// service thread drains them into the host logger and keeps a tail for the
// monitor.
type logService struct {
	log   hal.Logger
	box   *kernel.Mailbox
	lines *kernel.Semaphore

	tail []string
	keep int
}

func newLogService(s *kernel.Scheduler, log hal.Logger, keep int) (*logService, error) {
	lines, err := s.NewSemaphore(0)
	if err != nil {
		return nil, err
	}
	if keep <= 0 {
		keep = 1
	}
	return &logService{log: log, box: kernel.NewMailbox(), lines: lines, keep: keep}, nil
}

func (l *logService) Run(ctx *kernel.Context) {
	buf := make([]byte, maxLogLine)
	for {
		if err := ctx.Wait(l.lines); err != nil {
			return
		}
		n, err := l.box.Withdraw(buf)
		if err != nil || n == 0 {
			continue
		}
		if l.log != nil {
			l.log.WriteLineBytes(buf[:n])
		}
		l.remember(string(buf[:n]))
	}
}

func (l *logService) printf(format string, args ...any) {
	line := fmt.Sprintf(format, args...)
	if len(line) > maxLogLine {
		line = line[:maxLogLine]
	}
	if err := l.box.Deposit([]byte(line)); err != nil {
		return
	}
	_ = l.lines.Signal()
}

func (l *logService) remember(line string) {
	l.tail = append(l.tail, line)
	if len(l.tail) > l.keep {
		l.tail = append(l.tail[:0], l.tail[len(l.tail)-l.keep:]...)
	}
}

func (l *logService) pending() int { return l.box.Len() }
