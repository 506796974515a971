package kernel

import (
	"fmt"
	"runtime"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// MinStackSize is the smallest stack region Create accepts.
const MinStackSize = 4 << 10

// Scheduler multiplexes cooperative threads onto a single execution stream.
//
// Exactly one thread is current at any moment. Only the current thread may call
// into the scheduler, its semaphores or its messaging operations; every shared
// structure is mutated before control is transferred.
type Scheduler struct {
	cfg      Config
	instance string

	current *tcb
	host    *tcb
	ready   queue[*tcb]
	threads map[ThreadID]*tcb

	// evicting is the released thread whose goroutine is unwinding.
	evicting *tcb

	stats Stats
	down  bool
	wg    sync.WaitGroup
}

// Stats counts scheduler activity since Init.
type Stats struct {
	Created  uint64
	Released uint64
	Switches uint64
	Handoffs uint64
	Messages uint64
	// Faults counts faults reported to the fault handler.
	Faults uint64
	// Starved counts blocking calls refused with ErrStarvation.
	Starved uint64
}

// Init creates a scheduler whose thread 0 is the calling goroutine.
func Init(cfg Config) (*Scheduler, error) {
	cfg = cfg.withDefaults()
	if cfg.Instance == "" {
		cfg.Instance = uuid.NewString()
	}
	if cfg.StackSize < MinStackSize {
		return nil, fmt.Errorf("init: stack size %d below %d: %w", cfg.StackSize, MinStackSize, ErrInvalidUsage)
	}

	host := newTCB(HostThread, 0, HostThread)
	host.state = StateRunning

	s := &Scheduler{
		cfg:      cfg,
		instance: cfg.Instance,
		current:  host,
		host:     host,
		threads:  map[ThreadID]*tcb{HostThread: host},
	}
	s.logf("init instance=%s stack=%d max-threads=%d", s.instance, cfg.StackSize, cfg.MaxThreads)
	s.cfg.Metrics.RecordThreads(len(s.threads))
	return s, nil
}

// Create allocates a thread with the default stack size and appends it to the
// ready queue. It does not switch.
func (s *Scheduler) Create(entry Entry, id ThreadID, priority int) error {
	if err := s.check(); err != nil {
		return err
	}
	return s.CreateStack(entry, id, priority, s.cfg.StackSize)
}

// CreateStack is Create with an explicit stack size.
func (s *Scheduler) CreateStack(entry Entry, id ThreadID, priority, stackSize int) error {
	if err := s.check(); err != nil {
		return err
	}
	switch {
	case entry == nil:
		return fmt.Errorf("create %d: nil entry: %w", id, ErrInvalidUsage)
	case id <= HostThread:
		return fmt.Errorf("create %d: id reserved: %w", id, ErrInvalidUsage)
	case stackSize < MinStackSize:
		return fmt.Errorf("create %d: stack size %d below %d: %w", id, stackSize, MinStackSize, ErrInvalidUsage)
	}
	if _, ok := s.threads[id]; ok {
		return fmt.Errorf("create %d: duplicate id: %w", id, ErrInvalidUsage)
	}
	if len(s.threads) >= s.cfg.MaxThreads {
		return fmt.Errorf("create %d: %d threads live: %w", id, len(s.threads), ErrAllocation)
	}

	stack, err := s.cfg.Allocator.Alloc(stackSize)
	if err != nil {
		return fmt.Errorf("create %d: %w: %v", id, ErrAllocation, err)
	}

	t := newTCB(id, priority, s.current.id)
	t.entry = entry
	t.stack = stack
	s.threads[id] = t
	s.ready.push(t)
	s.stats.Created++

	s.wg.Add(1)
	go t.run(s)

	s.logf("create thread=%d priority=%d stack=%d creator=%d", id, priority, stackSize, t.creator)
	s.cfg.Metrics.RecordThreads(len(s.threads))
	s.cfg.Metrics.RecordReadyDepth(s.ready.len())
	return nil
}

// Yield rotates the ready queue: the head becomes current and the caller moves
// to the tail. With an empty ready queue it returns immediately.
func (s *Scheduler) Yield() error {
	if err := s.check(); err != nil {
		return err
	}
	next, ok := s.ready.pop()
	if !ok {
		return nil
	}
	prev := s.current
	prev.state = StateReady
	s.ready.push(prev)
	s.park(prev, next)
	return nil
}

// Terminate releases the current thread and transfers control to the ready
// queue head without saving the caller. It does not return on success.
func (s *Scheduler) Terminate() error {
	if err := s.check(); err != nil {
		return err
	}
	t := s.current
	if t == s.host {
		return fmt.Errorf("terminate: host thread: %w", ErrInvalidUsage)
	}
	next, err := s.next("terminate")
	if err != nil {
		return err
	}
	s.logf("terminate thread=%d next=%d", t.id, next.id)
	s.release(t)
	t.then = next
	runtime.Goexit()
	return nil
}

// Shutdown releases every thread, parked or ready, and the ready queue. It must
// be called from the host thread; the scheduler is unusable afterwards.
func (s *Scheduler) Shutdown() error {
	if err := s.check(); err != nil {
		return err
	}
	if s.current != s.host {
		return fmt.Errorf("shutdown from thread %d: %w", s.current.id, ErrInvalidUsage)
	}

	s.down = true
	n := 0
	for _, id := range s.ids() {
		t := s.threads[id]
		if t == s.host {
			continue
		}
		s.evict(t)
		n++
	}
	s.ready.clear()
	s.release(s.host)
	s.current = nil

	s.wg.Wait()
	s.logf("shutdown instance=%s released=%d", s.instance, n)
	return nil
}

// Current returns the id of the running thread.
func (s *Scheduler) Current() ThreadID {
	if s == nil || s.current == nil {
		return NoThread
	}
	return s.current.id
}

// Host returns the context of thread 0, or nil for a nil scheduler.
func (s *Scheduler) Host() *Context {
	if s == nil {
		return nil
	}
	return &Context{s: s, t: s.host}
}

// Len returns the number of live threads, host included.
func (s *Scheduler) Len() int {
	if s == nil {
		return 0
	}
	return len(s.threads)
}

// ReadyLen returns the ready queue length.
func (s *Scheduler) ReadyLen() int {
	if s == nil {
		return 0
	}
	return s.ready.len()
}

// Instance returns the unique id assigned at Init.
func (s *Scheduler) Instance() string {
	if s == nil {
		return ""
	}
	return s.instance
}

// Stats returns activity counters.
func (s *Scheduler) Stats() Stats {
	if s == nil {
		return Stats{}
	}
	return s.stats
}

func (s *Scheduler) check() error {
	if s == nil || s.current == nil || s.down {
		return fmt.Errorf("scheduler not running: %w", ErrInvalidUsage)
	}
	if s.evicting != nil {
		return fmt.Errorf("thread %d unwinding: %w", s.evicting.id, ErrInvalidUsage)
	}
	return nil
}

// next pops the thread that runs after a blocking operation.
func (s *Scheduler) next(op string) (*tcb, error) {
	t, ok := s.ready.pop()
	if !ok {
		return nil, s.starved(op)
	}
	return t, nil
}

func (s *Scheduler) starved(op string) error {
	s.logf("%s: thread %d starved, ready queue empty", op, s.current.id)
	s.stats.Starved++
	s.cfg.Metrics.RecordFault(FaultStarvationReturned)
	return fmt.Errorf("%s in thread %d: %w", op, s.current.id, ErrStarvation)
}

// park is the save-and-switch transfer. The caller has already placed prev in
// the ready queue or a wait queue. It returns when prev is resumed.
func (s *Scheduler) park(prev, next *tcb) {
	s.current = next
	next.state = StateRunning
	s.stats.Switches++
	s.cfg.Metrics.RecordSwitch(SwitchSave)
	s.cfg.Metrics.RecordReadyDepth(s.ready.len())

	next.wake <- wakeResume
	if <-prev.wake == wakeRelease {
		runtime.Goexit()
	}
}

// handoff is the one-way transfer: the caller's goroutine must exit afterwards
// and touch no scheduler state.
func (s *Scheduler) handoff(next *tcb) {
	s.current = next
	next.state = StateRunning
	s.stats.Handoffs++
	s.cfg.Metrics.RecordSwitch(SwitchHandoff)
	s.cfg.Metrics.RecordReadyDepth(s.ready.len())

	next.wake <- wakeResume
}

// release frees everything t owns and forgets it.
func (s *Scheduler) release(t *tcb) {
	if t.state == StateReleased {
		return
	}
	if t.stack != nil {
		s.cfg.Allocator.Free(t.stack)
		t.stack = nil
	}
	delete(s.threads, t.id)
	t.state = StateReleased
	t.sem = nil
	s.failRendezvous(t)
	t.inbox.clear()
	s.stats.Released++
	s.cfg.Metrics.RecordThreads(len(s.threads))
}

// evict releases a parked thread and waits until its goroutine has unwound,
// deferred calls included. Scheduler calls made while unwinding fail with
// ErrInvalidUsage.
func (s *Scheduler) evict(t *tcb) {
	s.release(t)
	s.evicting = t
	t.wake <- wakeRelease
	<-t.done
	s.evicting = nil
}

// exit runs when a thread's entry returns, panics or unwinds after release.
func (s *Scheduler) exit(t *tcb) {
	r := recover()
	if t.state == StateReleased {
		if r != nil {
			s.fault(FaultInfo{Thread: t.id, Value: r, Stack: captureStack()})
		}
		// Terminate defers the transfer until the deferred calls have run.
		if next := t.then; next != nil {
			t.then = nil
			s.handoff(next)
		}
		return
	}
	if r != nil {
		s.fault(FaultInfo{Thread: t.id, Value: r, Stack: captureStack()})
	}

	next := s.continuation(t)
	s.logf("exit thread=%d", t.id)
	s.release(t)
	if next == nil {
		s.fault(FaultInfo{Thread: t.id, Err: fmt.Errorf("thread %d returned: %w", t.id, ErrStarvation)})
		select {}
	}
	s.handoff(next)
}

// continuation picks the thread resumed after t returns from its entry: its
// creator when the creator is ready, the ready queue head otherwise.
func (s *Scheduler) continuation(t *tcb) *tcb {
	if c, ok := s.threads[t.creator]; ok && c != t && c.state == StateReady {
		if i := s.ready.index(func(r *tcb) bool { return r == c }); i >= 0 {
			return s.ready.remove(i)
		}
	}
	next, _ := s.ready.pop()
	return next
}

func (s *Scheduler) ids() []ThreadID {
	ids := make([]ThreadID, 0, len(s.threads))
	for id := range s.threads {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (s *Scheduler) logf(format string, args ...any) {
	if s.cfg.Logger == nil {
		return
	}
	s.cfg.Logger.WriteLineString("kernel: " + fmt.Sprintf(format, args...))
}
