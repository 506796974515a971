package hal

import (
	"context"
	"fmt"
	"time"
)

// HeadlessConfig controls the no-window host runner.
type HeadlessConfig struct {
	Enabled bool
	Hz      int
	// Ticks stops the runner after N steps (0 = run until the step finishes).
	Ticks uint64
}

// StepFunc advances the application by one host tick. Returning ErrStop ends
// the run cleanly.
type StepFunc func() error

// RunHeadless runs the application without opening a window.
func RunHeadless(ctx context.Context, cfg Config, newApp func(HAL) StepFunc, hcfg HeadlessConfig) error {
	return runHeadless(ctx, New(cfg).(*hostHAL), newApp, hcfg)
}

func runHeadless(ctx context.Context, h *hostHAL, newApp func(HAL) StepFunc, cfg HeadlessConfig) error {
	if cfg.Hz <= 0 {
		cfg.Hz = 60
	}
	step := newApp(h)

	d := time.Second / time.Duration(cfg.Hz)
	if d <= 0 {
		return fmt.Errorf("invalid headless hz: %d", cfg.Hz)
	}
	t := time.NewTicker(d)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			tick := h.t.step()
			if step != nil {
				if err := step(); err != nil {
					return stopErr(err)
				}
			}
			if cfg.Ticks > 0 && tick >= cfg.Ticks {
				return nil
			}
		}
	}
}
