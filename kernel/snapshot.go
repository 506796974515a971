package kernel

// ThreadInfo is a point-in-time view of one thread.
type ThreadInfo struct {
	ID        ThreadID
	Priority  int
	Creator   ThreadID
	State     ThreadState
	Inbox     int
	StackSize int
}

// Snapshot is a point-in-time view of the scheduler.
type Snapshot struct {
	Instance string
	Current  ThreadID
	// Ready lists the ready queue from head to tail.
	Ready []ThreadID
	// Threads lists live threads ordered by id.
	Threads []ThreadInfo
	Stats   Stats
}

// Snapshot captures the scheduler state. Like every other operation it must
// be called from the current thread.
func (s *Scheduler) Snapshot() Snapshot {
	if s == nil {
		return Snapshot{Current: NoThread}
	}
	snap := Snapshot{
		Instance: s.instance,
		Current:  s.Current(),
		Stats:    s.stats,
	}
	s.ready.each(func(t *tcb) {
		snap.Ready = append(snap.Ready, t.id)
	})
	for _, id := range s.ids() {
		t := s.threads[id]
		snap.Threads = append(snap.Threads, ThreadInfo{
			ID:        t.id,
			Priority:  t.priority,
			Creator:   t.creator,
			State:     t.state,
			Inbox:     t.inbox.len(),
			StackSize: len(t.stack),
		})
	}
	return snap
}

// Blocked returns the number of threads parked off the ready queue.
func (s Snapshot) Blocked() int {
	n := 0
	for _, t := range s.Threads {
		if t.State.Blocked() {
			n++
		}
	}
	return n
}
