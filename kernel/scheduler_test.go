package kernel

import (
	"errors"
	"reflect"
	"testing"
)

func newTestScheduler(t *testing.T, cfg Config) (*Scheduler, *CountingAllocator) {
	t.Helper()
	alloc := &CountingAllocator{}
	if cfg.Allocator == nil {
		cfg.Allocator = alloc
	}
	s, err := Init(cfg)
	if err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	return s, alloc
}

func drain(t *testing.T, s *Scheduler) {
	t.Helper()
	for s.Len() > 1 {
		if err := s.Yield(); err != nil {
			t.Fatalf("Yield() error = %v", err)
		}
	}
}

func TestInitHostThread(t *testing.T) {
	s, _ := newTestScheduler(t, Config{})
	if got := s.Current(); got != HostThread {
		t.Fatalf("expected current %d, got %d", HostThread, got)
	}
	if s.Len() != 1 || s.ReadyLen() != 0 {
		t.Fatalf("expected 1 live thread and empty ready queue, got %d/%d", s.Len(), s.ReadyLen())
	}
	if s.Instance() == "" {
		t.Fatal("expected instance id")
	}
	if s.Host().Stack() != nil {
		t.Fatal("expected host thread to own no stack")
	}
}

func TestInitRejectsTinyStack(t *testing.T) {
	if _, err := Init(Config{StackSize: 16}); !errors.Is(err, ErrInvalidUsage) {
		t.Fatalf("expected ErrInvalidUsage, got %v", err)
	}
}

func TestYieldEmptyReadyQueue(t *testing.T) {
	s, _ := newTestScheduler(t, Config{})
	if err := s.Yield(); err != nil {
		t.Fatalf("Yield() error = %v", err)
	}
	if s.Stats().Switches != 0 {
		t.Fatalf("expected no switch, got %d", s.Stats().Switches)
	}
}

func TestYieldRoundRobin(t *testing.T) {
	s, alloc := newTestScheduler(t, Config{})

	var trace []ThreadID
	body := func(ctx *Context) {
		for i := 0; i < 3; i++ {
			trace = append(trace, ctx.ID())
			if err := ctx.Yield(); err != nil {
				t.Errorf("thread %d Yield() error = %v", ctx.ID(), err)
				return
			}
		}
	}
	for id := ThreadID(1); id <= 3; id++ {
		if err := s.Create(body, id, 0); err != nil {
			t.Fatalf("Create(%d) error = %v", id, err)
		}
	}
	drain(t, s)

	want := []ThreadID{1, 2, 3, 1, 2, 3, 1, 2, 3}
	if !reflect.DeepEqual(trace, want) {
		t.Fatalf("expected trace %v, got %v", want, trace)
	}
	if alloc.Live() != 0 {
		t.Fatalf("expected all stacks freed, %d live", alloc.Live())
	}
}

func TestEndToEndTerminateAndShutdown(t *testing.T) {
	s, alloc := newTestScheduler(t, Config{})

	var trace []ThreadID
	f := func(ctx *Context) {
		trace = append(trace, ctx.ID())
		_ = ctx.Yield()
		trace = append(trace, ctx.ID())
	}
	g := func(ctx *Context) {
		trace = append(trace, ctx.ID())
		if err := ctx.Terminate(); err != nil {
			t.Errorf("Terminate() error = %v", err)
		}
		t.Error("Terminate() returned")
	}
	if err := s.Create(f, 1, 0); err != nil {
		t.Fatalf("Create(1) error = %v", err)
	}
	if err := s.Create(g, 2, 0); err != nil {
		t.Fatalf("Create(2) error = %v", err)
	}
	if alloc.Live() != 2 {
		t.Fatalf("expected 2 stacks, got %d", alloc.Live())
	}

	if err := s.Yield(); err != nil {
		t.Fatalf("Yield() error = %v", err)
	}
	if want := []ThreadID{1, 2}; !reflect.DeepEqual(trace, want) {
		t.Fatalf("expected trace %v, got %v", want, trace)
	}
	if s.Current() != HostThread {
		t.Fatalf("expected host to run after terminate, got %d", s.Current())
	}
	if s.ReadyLen() != 1 || s.Len() != 2 {
		t.Fatalf("expected thread 1 ready, got ready=%d live=%d", s.ReadyLen(), s.Len())
	}

	if err := s.Shutdown(); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
	if alloc.Live() != 0 || alloc.LiveBytes() != 0 {
		t.Fatalf("expected every stack freed, got %d regions", alloc.Live())
	}
	if s.Len() != 0 || s.ReadyLen() != 0 {
		t.Fatalf("expected nothing reachable, got live=%d ready=%d", s.Len(), s.ReadyLen())
	}
	if err := s.Yield(); !errors.Is(err, ErrInvalidUsage) {
		t.Fatalf("expected ErrInvalidUsage after shutdown, got %v", err)
	}
}

func TestTerminateStarvation(t *testing.T) {
	s, _ := newTestScheduler(t, Config{})
	sem, err := s.NewSemaphore(0)
	if err != nil {
		t.Fatalf("NewSemaphore() error = %v", err)
	}

	var termErr error
	if err := s.Create(func(ctx *Context) {
		termErr = ctx.Terminate()
		_ = ctx.Signal(sem)
	}, 1, 0); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if err := sem.Wait(); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if !errors.Is(termErr, ErrStarvation) {
		t.Fatalf("expected ErrStarvation, got %v", termErr)
	}
	if s.Len() != 1 {
		t.Fatalf("expected thread 1 to be released on return, got %d live", s.Len())
	}
}

func TestTerminateHostThread(t *testing.T) {
	s, _ := newTestScheduler(t, Config{})
	if err := s.Terminate(); !errors.Is(err, ErrInvalidUsage) {
		t.Fatalf("expected ErrInvalidUsage, got %v", err)
	}
}

func TestCreateErrors(t *testing.T) {
	s, alloc := newTestScheduler(t, Config{MaxThreads: 2})
	noop := func(*Context) {}

	if err := s.Create(nil, 1, 0); !errors.Is(err, ErrInvalidUsage) {
		t.Fatalf("nil entry: expected ErrInvalidUsage, got %v", err)
	}
	if err := s.Create(noop, HostThread, 0); !errors.Is(err, ErrInvalidUsage) {
		t.Fatalf("id 0: expected ErrInvalidUsage, got %v", err)
	}
	if err := s.CreateStack(noop, 1, 0, 64); !errors.Is(err, ErrInvalidUsage) {
		t.Fatalf("tiny stack: expected ErrInvalidUsage, got %v", err)
	}
	if err := s.Create(noop, 1, 0); err != nil {
		t.Fatalf("Create(1) error = %v", err)
	}
	if err := s.Create(noop, 1, 0); !errors.Is(err, ErrInvalidUsage) {
		t.Fatalf("duplicate: expected ErrInvalidUsage, got %v", err)
	}
	if err := s.Create(noop, 2, 0); !errors.Is(err, ErrAllocation) {
		t.Fatalf("max threads: expected ErrAllocation, got %v", err)
	}
	if alloc.Live() != 1 {
		t.Fatalf("expected failed creates to allocate nothing, got %d live", alloc.Live())
	}

	var nilSched *Scheduler
	if err := nilSched.Create(noop, 1, 0); !errors.Is(err, ErrInvalidUsage) {
		t.Fatalf("before init: expected ErrInvalidUsage, got %v", err)
	}
	if err := nilSched.CreateStack(noop, 1, 0, MinStackSize); !errors.Is(err, ErrInvalidUsage) {
		t.Fatalf("before init: expected ErrInvalidUsage, got %v", err)
	}
	if nilSched.Host() != nil || nilSched.Len() != 0 || nilSched.ReadyLen() != 0 || nilSched.Instance() != "" {
		t.Fatal("expected zero values from a nil scheduler")
	}
	if nilSched.Current() != NoThread || nilSched.Snapshot().Current != NoThread {
		t.Fatalf("expected current %d, got %d", NoThread, nilSched.Current())
	}
	if _, err := nilSched.NewSemaphore(0); !errors.Is(err, ErrInvalidUsage) {
		t.Fatalf("before init: expected ErrInvalidUsage, got %v", err)
	}
	if err := s.Shutdown(); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
	if err := s.Create(noop, 3, 0); !errors.Is(err, ErrInvalidUsage) {
		t.Fatalf("after shutdown: expected ErrInvalidUsage, got %v", err)
	}
}

func TestCreateStackAllocationFailure(t *testing.T) {
	alloc := &CountingAllocator{Limit: 1}
	s, _ := newTestScheduler(t, Config{Allocator: alloc})
	noop := func(*Context) {}

	if err := s.Create(noop, 1, 0); err != nil {
		t.Fatalf("Create(1) error = %v", err)
	}
	if err := s.Create(noop, 2, 0); !errors.Is(err, ErrAllocation) {
		t.Fatalf("expected ErrAllocation, got %v", err)
	}
	if s.Len() != 2 {
		t.Fatalf("expected failed create to leave no thread, got %d live", s.Len())
	}
	drain(t, s)
	if err := s.Create(noop, 2, 0); err != nil {
		t.Fatalf("retry after free: Create(2) error = %v", err)
	}
	drain(t, s)
}

func TestCreateStackSizeOverride(t *testing.T) {
	s, alloc := newTestScheduler(t, Config{})
	var got int
	if err := s.CreateStack(func(ctx *Context) { got = len(ctx.Stack()) }, 1, 0, 8<<10); err != nil {
		t.Fatalf("CreateStack() error = %v", err)
	}
	if alloc.LiveBytes() != 8<<10 {
		t.Fatalf("expected 8 KiB allocated, got %d", alloc.LiveBytes())
	}
	drain(t, s)
	if got != 8<<10 {
		t.Fatalf("expected thread to see 8 KiB stack, got %d", got)
	}
}

func TestReturnResumesCreator(t *testing.T) {
	s, _ := newTestScheduler(t, Config{})

	var trace []ThreadID
	record := func(ctx *Context) { trace = append(trace, ctx.ID()) }
	for _, id := range []ThreadID{3, 1, 2} {
		if err := s.Create(record, id, 0); err != nil {
			t.Fatalf("Create(%d) error = %v", id, err)
		}
	}

	if err := s.Yield(); err != nil {
		t.Fatalf("Yield() error = %v", err)
	}
	if want := []ThreadID{3}; !reflect.DeepEqual(trace, want) {
		t.Fatalf("expected only thread 3 to run before the host resumed, got %v", trace)
	}
	snap := s.Snapshot()
	if want := []ThreadID{1, 2}; !reflect.DeepEqual(snap.Ready, want) {
		t.Fatalf("expected ready %v, got %v", want, snap.Ready)
	}
	drain(t, s)
}

func TestPanicReportsFault(t *testing.T) {
	var faults []FaultInfo
	s, alloc := newTestScheduler(t, Config{FaultHandler: func(info FaultInfo) {
		faults = append(faults, info)
	}})

	if err := s.Create(func(*Context) { panic("boom") }, 1, 0); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if err := s.Yield(); err != nil {
		t.Fatalf("Yield() error = %v", err)
	}

	if len(faults) != 1 {
		t.Fatalf("expected 1 fault, got %d", len(faults))
	}
	if faults[0].Thread != 1 || faults[0].Value != "boom" || len(faults[0].Stack) == 0 {
		t.Fatalf("unexpected fault %+v", faults[0])
	}
	if faults[0].Starvation() {
		t.Fatal("expected panic fault, got starvation")
	}
	if s.Len() != 1 || alloc.Live() != 0 {
		t.Fatalf("expected panicking thread released, got live=%d stacks=%d", s.Len(), alloc.Live())
	}
	if s.Stats().Faults != 1 {
		t.Fatalf("expected 1 fault counted, got %d", s.Stats().Faults)
	}
}

func TestContextRequiresCurrentThread(t *testing.T) {
	s, _ := newTestScheduler(t, Config{})

	var hostErr error
	if err := s.Create(func(*Context) {
		hostErr = s.Host().Yield()
	}, 1, 0); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	drain(t, s)

	if !errors.Is(hostErr, ErrInvalidUsage) {
		t.Fatalf("expected ErrInvalidUsage, got %v", hostErr)
	}
}

func TestShutdownFromThreadRejected(t *testing.T) {
	s, _ := newTestScheduler(t, Config{})

	var shutdownErr error
	if err := s.Create(func(*Context) { shutdownErr = s.Shutdown() }, 1, 0); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	drain(t, s)
	if !errors.Is(shutdownErr, ErrInvalidUsage) {
		t.Fatalf("expected ErrInvalidUsage, got %v", shutdownErr)
	}
}

func TestShutdownReleasesBlockedThreads(t *testing.T) {
	s, alloc := newTestScheduler(t, Config{})
	sem, err := s.NewSemaphore(0)
	if err != nil {
		t.Fatalf("NewSemaphore() error = %v", err)
	}

	if err := s.Create(func(ctx *Context) { _ = ctx.Wait(sem) }, 1, 0); err != nil {
		t.Fatalf("Create(1) error = %v", err)
	}
	if err := s.Create(func(ctx *Context) { _, _, _ = ctx.Receive(AnySender, make([]byte, 8)) }, 2, 0); err != nil {
		t.Fatalf("Create(2) error = %v", err)
	}
	if err := s.Create(func(*Context) {}, 3, 0); err != nil {
		t.Fatalf("Create(3) error = %v", err)
	}
	if err := s.Yield(); err != nil {
		t.Fatalf("Yield() error = %v", err)
	}

	snap := s.Snapshot()
	if snap.Blocked() != 2 {
		t.Fatalf("expected 2 blocked threads, got %d", snap.Blocked())
	}

	if err := s.Shutdown(); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
	if alloc.Live() != 0 {
		t.Fatalf("expected every stack freed, got %d", alloc.Live())
	}
	if err := sem.Destroy(); err != nil {
		t.Fatalf("Destroy() after shutdown error = %v", err)
	}
}

func TestShutdownUnwindsDeferredCalls(t *testing.T) {
	s, _ := newTestScheduler(t, Config{})
	sem, err := s.NewSemaphore(0)
	if err != nil {
		t.Fatalf("NewSemaphore() error = %v", err)
	}

	shared := 0
	var yieldErr error
	if err := s.Create(func(ctx *Context) {
		defer func() {
			shared++
			yieldErr = ctx.Yield()
		}()
		_ = ctx.Wait(sem)
	}, 1, 0); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if err := s.Yield(); err != nil {
		t.Fatalf("Yield() error = %v", err)
	}

	if err := s.Shutdown(); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
	shared++
	if shared != 2 {
		t.Fatalf("expected deferred call to finish before Shutdown returned, got %d", shared)
	}
	if !errors.Is(yieldErr, ErrInvalidUsage) {
		t.Fatalf("expected ErrInvalidUsage from unwinding thread, got %v", yieldErr)
	}
}

func TestTerminateRunsDeferredCallsFirst(t *testing.T) {
	s, alloc := newTestScheduler(t, Config{})

	var order []string
	var yieldErr error
	if err := s.Create(func(ctx *Context) {
		defer func() {
			order = append(order, "deferred")
			yieldErr = ctx.Yield()
		}()
		_ = ctx.Terminate()
		order = append(order, "after terminate")
	}, 1, 0); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if err := s.Yield(); err != nil {
		t.Fatalf("Yield() error = %v", err)
	}
	order = append(order, "host")

	if want := []string{"deferred", "host"}; !reflect.DeepEqual(order, want) {
		t.Fatalf("expected %v, got %v", want, order)
	}
	if !errors.Is(yieldErr, ErrInvalidUsage) {
		t.Fatalf("expected ErrInvalidUsage after terminate, got %v", yieldErr)
	}
	if s.Len() != 1 || alloc.Live() != 0 {
		t.Fatalf("expected thread released, got live=%d stacks=%d", s.Len(), alloc.Live())
	}
}

func TestStarvationCountedApartFromFaults(t *testing.T) {
	m := &recordingMetrics{}
	s, _ := newTestScheduler(t, Config{Metrics: m})
	sem, err := s.NewSemaphore(0)
	if err != nil {
		t.Fatalf("NewSemaphore() error = %v", err)
	}

	if err := sem.Wait(); !errors.Is(err, ErrStarvation) {
		t.Fatalf("expected ErrStarvation, got %v", err)
	}
	st := s.Stats()
	if st.Starved != 1 || st.Faults != 0 {
		t.Fatalf("expected starved=1 faults=0, got starved=%d faults=%d", st.Starved, st.Faults)
	}
	if m.faults[FaultStarvationReturned] != 1 || m.faults[FaultStarvation] != 0 {
		t.Fatalf("unexpected fault kinds %v", m.faults)
	}
}

func TestInitKeepsConfiguredInstance(t *testing.T) {
	s, _ := newTestScheduler(t, Config{Instance: "bench-1"})
	if s.Instance() != "bench-1" {
		t.Fatalf("expected instance bench-1, got %q", s.Instance())
	}
	other, _ := newTestScheduler(t, Config{})
	if other.Instance() == "" || other.Instance() == s.Instance() {
		t.Fatalf("expected generated instance, got %q", other.Instance())
	}
}

func TestSnapshot(t *testing.T) {
	s, _ := newTestScheduler(t, Config{})
	if err := s.Create(func(*Context) {}, 1, 5); err != nil {
		t.Fatalf("Create(1) error = %v", err)
	}
	if err := s.Create(func(*Context) {}, 2, 0); err != nil {
		t.Fatalf("Create(2) error = %v", err)
	}

	snap := s.Snapshot()
	if snap.Current != HostThread {
		t.Fatalf("expected current 0, got %d", snap.Current)
	}
	if want := []ThreadID{1, 2}; !reflect.DeepEqual(snap.Ready, want) {
		t.Fatalf("expected ready %v, got %v", want, snap.Ready)
	}
	if len(snap.Threads) != 3 {
		t.Fatalf("expected 3 threads, got %d", len(snap.Threads))
	}
	th := snap.Threads[1]
	if th.ID != 1 || th.Priority != 5 || th.State != StateReady || th.StackSize != DefaultStackSize {
		t.Fatalf("unexpected thread info %+v", th)
	}
	if snap.Stats.Created != 2 {
		t.Fatalf("expected 2 created, got %d", snap.Stats.Created)
	}
	drain(t, s)
}

type recordingMetrics struct {
	NilMetrics
	saves, handoffs int
	messages        int
	faults          map[string]int
}

func (m *recordingMetrics) RecordFault(kind string) {
	if m.faults == nil {
		m.faults = map[string]int{}
	}
	m.faults[kind]++
}

func (m *recordingMetrics) RecordSwitch(kind SwitchKind) {
	switch kind {
	case SwitchSave:
		m.saves++
	case SwitchHandoff:
		m.handoffs++
	}
}

func (m *recordingMetrics) RecordMessage(bool) { m.messages++ }

func TestSwitchKinds(t *testing.T) {
	m := &recordingMetrics{}
	s, _ := newTestScheduler(t, Config{Metrics: m})

	if err := s.Create(func(ctx *Context) { _ = ctx.Terminate() }, 1, 0); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if err := s.Yield(); err != nil {
		t.Fatalf("Yield() error = %v", err)
	}
	if m.saves != 1 || m.handoffs != 1 {
		t.Fatalf("expected 1 save and 1 handoff, got %d/%d", m.saves, m.handoffs)
	}
}

type lineLogger struct{ lines []string }

func (l *lineLogger) WriteLineString(s string) { l.lines = append(l.lines, s) }

func TestLoggerReceivesLifecycle(t *testing.T) {
	log := &lineLogger{}
	s, _ := newTestScheduler(t, Config{Logger: log})
	if err := s.Create(func(*Context) {}, 1, 0); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	drain(t, s)
	if err := s.Shutdown(); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
	if len(log.lines) < 4 {
		t.Fatalf("expected init/create/exit/shutdown lines, got %q", log.lines)
	}
}
