package hal

type hostTime struct {
	ch  chan uint64
	seq uint64
}

func newHostTime() *hostTime {
	return &hostTime{ch: make(chan uint64, 1024)}
}

func (t *hostTime) Ticks() <-chan uint64 { return t.ch }

// step advances the tick counter once per host step.
func (t *hostTime) step() uint64 {
	t.seq++
	select {
	case t.ch <- t.seq:
	default:
	}
	return t.seq
}
