package kernel

type wakeCmd uint8

const (
	wakeResume wakeCmd = iota
	wakeRelease
)

// tcb is a thread control block.
//
// Every field is owned by whichever thread is current; the wake and done
// channels are the only things touched across goroutines.
type tcb struct {
	id       ThreadID
	priority int
	creator  ThreadID
	state    ThreadState

	entry Entry
	stack []byte
	wake  chan wakeCmd
	// done is closed once the goroutine has returned.
	done chan struct{}
	// then is the thread resumed after a terminated thread finishes unwinding.
	then *tcb

	// inbox holds direct messages addressed to this thread, in arrival order.
	inbox queue[*message]
	// filter is the sender this thread waits for while StateBlockedReceive.
	filter ThreadID
	// awaiting is the rendezvous message this thread waits on while StateBlockedAck.
	awaiting *message
	ackErr   error

	sem *Semaphore
}

func newTCB(id ThreadID, priority int, creator ThreadID) *tcb {
	return &tcb{
		id:       id,
		priority: priority,
		creator:  creator,
		state:    StateReady,
		wake:     make(chan wakeCmd, 1),
		done:     make(chan struct{}),
	}
}

// run is the goroutine backing a created thread. It stays parked until the
// scheduler first selects the thread.
func (t *tcb) run(s *Scheduler) {
	defer s.wg.Done()
	defer close(t.done)
	if <-t.wake == wakeRelease {
		return
	}
	defer s.exit(t)
	t.entry(&Context{s: s, t: t})
}

// wants reports whether a message from sender ends a pending receive.
func (t *tcb) wants(sender ThreadID) bool {
	return t.state == StateBlockedReceive && matches(t.filter, sender)
}

func matches(filter, sender ThreadID) bool {
	return filter == AnySender || filter == sender
}
