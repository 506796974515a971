package kernel

import (
	"errors"
	"fmt"
	"runtime/debug"
)

// Fault kinds passed to Metrics.RecordFault. FaultStarvation and FaultPanic
// are reported to the fault handler and counted in Stats.Faults;
// FaultStarvationReturned is an ErrStarvation returned to the caller and
// counted in Stats.Starved.
const (
	FaultStarvation         = "starvation"
	FaultPanic              = "panic"
	FaultStarvationReturned = "starvation_returned"
)

// FaultInfo describes a failure with no caller to report it to: a thread entry
// that panicked, or a thread that returned with nothing left to run.
type FaultInfo struct {
	Thread ThreadID
	// Value is the recovered panic value, if any.
	Value any
	// Err is set for scheduler faults such as starvation.
	Err   error
	Stack []byte
}

// Starvation reports whether the fault left no runnable thread.
func (f FaultInfo) Starvation() bool {
	return errors.Is(f.Err, ErrStarvation)
}

func (f FaultInfo) String() string {
	if f.Err != nil {
		return fmt.Sprintf("thread=%d err=%v", f.Thread, f.Err)
	}
	return fmt.Sprintf("thread=%d panic=%v", f.Thread, f.Value)
}

func (s *Scheduler) fault(info FaultInfo) {
	s.stats.Faults++
	s.logf("fault %s", info)
	if info.Starvation() {
		s.cfg.Metrics.RecordFault(FaultStarvation)
	} else {
		s.cfg.Metrics.RecordFault(FaultPanic)
	}

	if h := s.cfg.FaultHandler; h != nil {
		h(info)
		return
	}
	if info.Err != nil {
		panic(info.Err)
	}
	panic(fmt.Sprintf("kernel: thread %d panicked: %v", info.Thread, info.Value))
}

func captureStack() []byte {
	return debug.Stack()
}
