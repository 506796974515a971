package kernel

// Metrics receives scheduler observations. Implementations must be fast and
// must not call back into the scheduler.
type Metrics interface {
	RecordSwitch(kind SwitchKind)
	RecordReadyDepth(depth int)
	RecordThreads(live int)
	RecordMessage(rendezvous bool)
	RecordFault(kind string)
}

// NilMetrics discards every observation. It is the default.
type NilMetrics struct{}

func (NilMetrics) RecordSwitch(SwitchKind) {}
func (NilMetrics) RecordReadyDepth(int)    {}
func (NilMetrics) RecordThreads(int)       {}
func (NilMetrics) RecordMessage(bool)      {}
func (NilMetrics) RecordFault(string)      {}
