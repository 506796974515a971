// Package app assembles the runtime demo: it boots a scheduler, starts the
// configured scenarios and drives them from the host thread once per tick.
package app

import (
	"errors"
	"fmt"

	"spool/hal"
	"spool/kernel"
	"spool/monitor"
)

// ErrFault is returned by Step in headless mode once a thread has faulted.
var ErrFault = errors.New("app: thread fault")

const (
	logThread  kernel.ThreadID = 1
	firstJobID kernel.ThreadID = 10
)

// App owns one scheduler and the threads started for its scenarios.
type App struct {
	cfg   Config
	h     hal.HAL
	s     *kernel.Scheduler
	alloc *kernel.CountingAllocator
	logs  *logService
	mon   *monitor.Monitor

	nextID kernel.ThreadID
	live   int

	fault    *kernel.FaultInfo
	drawn    bool
	paused   bool
	stepOnce bool
	finished bool
	ticks    uint64
}

// New boots the scheduler and starts every scenario. metrics may be nil.
func New(h hal.HAL, cfg Config, metrics kernel.Metrics) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	a := &App{
		cfg:    cfg,
		h:      h,
		alloc:  &kernel.CountingAllocator{Limit: cfg.Runtime.StackLimit},
		nextID: firstJobID,
	}
	kcfg := kernel.Config{
		StackSize:    cfg.Runtime.StackSize,
		MaxThreads:   cfg.Runtime.MaxThreads,
		Instance:     cfg.Runtime.Instance,
		Allocator:    a.alloc,
		Metrics:      metrics,
		FaultHandler: a.onFault,
	}
	if cfg.Runtime.Trace && h != nil {
		kcfg.Logger = h.Logger()
	}
	s, err := kernel.Init(kcfg)
	if err != nil {
		return nil, err
	}
	a.s = s

	var hostLog hal.Logger
	if h != nil {
		hostLog = h.Logger()
		if mon, err := monitor.New(h.Display(), cfg.Runtime.Name); err == nil {
			a.mon = mon
		}
	}
	keep := cfg.Host.LogLines
	if a.mon != nil && keep < a.mon.Rows() {
		keep = a.mon.Rows()
	}
	if a.logs, err = newLogService(s, hostLog, keep); err != nil {
		return nil, err
	}
	if err := s.Create(a.logs.Run, logThread, 0); err != nil {
		return nil, fmt.Errorf("start log service: %w", err)
	}

	for _, line := range cfg.scenarios() {
		sc, err := ParseScenario(line)
		if err != nil {
			return nil, err
		}
		if err := workloads[sc.Name](a, sc); err != nil {
			_ = s.Shutdown()
			return nil, fmt.Errorf("start %s: %w", sc, err)
		}
		a.logs.printf("app: started %s", sc)
	}
	return a, nil
}

// NewStep adapts New to the host runner. Setup errors end the run on the
// first step.
func NewStep(cfg Config, metrics kernel.Metrics) func(hal.HAL) hal.StepFunc {
	return func(h hal.HAL) hal.StepFunc {
		a, err := New(h, cfg, metrics)
		if err != nil {
			return func() error { return err }
		}
		return a.Step
	}
}

// Scheduler returns the scheduler driven by the app.
func (a *App) Scheduler() *kernel.Scheduler { return a.s }

// Done reports whether every scenario thread has finished.
func (a *App) Done() bool { return a.finished }

// Logs returns the most recent log lines, oldest first.
func (a *App) Logs() []string { return a.logs.tail }

// Step runs one host tick: input, one scheduling round and a redraw.
func (a *App) Step() error {
	a.tick()
	if err := a.input(); err != nil {
		return err
	}

	if a.fault != nil {
		return a.showFault()
	}
	if a.finished {
		if a.cfg.Host.Headless {
			return hal.ErrStop
		}
		return nil
	}

	if !a.paused || a.stepOnce {
		a.stepOnce = false
		if err := a.s.Yield(); err != nil {
			return fmt.Errorf("host yield: %w", err)
		}
	}
	if a.fault != nil {
		return a.showFault()
	}

	a.render()
	if a.live == 0 && a.logs.pending() == 0 {
		return a.finish()
	}
	return nil
}

// tick advances to the newest host tick, counting steps when the host has no
// tick source.
func (a *App) tick() {
	if a.h == nil || a.h.Time() == nil {
		a.ticks++
		return
	}
	ch := a.h.Time().Ticks()
	for {
		select {
		case seq := <-ch:
			a.ticks = seq
		default:
			return
		}
	}
}

func (a *App) input() error {
	if a.h == nil || a.h.Input() == nil || a.h.Input().Keyboard() == nil {
		return nil
	}
	events := a.h.Input().Keyboard().Events()
	for {
		select {
		case ev := <-events:
			if !ev.Press {
				continue
			}
			switch ev.Code {
			case hal.KeySpace:
				a.paused = !a.paused
			case hal.KeyEnter:
				a.stepOnce = true
			case hal.KeyEscape:
				return hal.ErrStop
			}
		default:
			return nil
		}
	}
}

func (a *App) render() {
	if a.mon == nil {
		return
	}
	_ = a.mon.Render(a.s.Snapshot(), a.logs.tail)
}

func (a *App) finish() error {
	a.finished = true
	st := a.s.Stats()
	line := fmt.Sprintf("app: done after %d ticks: created=%d switches=%d handoffs=%d messages=%d stacks=%d",
		a.ticks, st.Created, st.Switches, st.Handoffs, st.Messages, a.alloc.Allocs())
	if a.h != nil {
		a.h.Logger().WriteLineString(line)
	}
	a.logs.remember(line)
	a.render()
	if err := a.s.Shutdown(); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if a.cfg.Host.Headless {
		return hal.ErrStop
	}
	return nil
}

// onFault runs on the faulting thread while the host is parked.
func (a *App) onFault(info kernel.FaultInfo) {
	if a.h != nil {
		for _, line := range monitor.FaultLines(a.cfg.Runtime.Name, info) {
			a.h.Logger().WriteLineString(line)
		}
	}
	if a.fault == nil {
		a.fault = &info
	}
}

func (a *App) showFault() error {
	if !a.drawn && a.mon != nil {
		_ = a.mon.RenderFault(*a.fault)
	}
	a.drawn = true
	if a.cfg.Host.Headless {
		return fmt.Errorf("%w: %s", ErrFault, a.fault)
	}
	return nil
}

// reserve hands out the next free job thread id.
func (a *App) reserve() kernel.ThreadID {
	id := a.nextID
	a.nextID++
	return id
}

// start creates a job thread from ctx under a fresh id.
func (a *App) start(ctx *kernel.Context, entry kernel.Entry) (kernel.ThreadID, error) {
	id := a.reserve()
	return id, a.startID(ctx, id, entry)
}

func (a *App) startID(ctx *kernel.Context, id kernel.ThreadID, entry kernel.Entry) error {
	if err := ctx.Create(func(c *kernel.Context) {
		entry(c)
		a.live--
	}, id, 0); err != nil {
		return err
	}
	a.live++
	return nil
}
