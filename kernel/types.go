package kernel

// ThreadID identifies a thread. It is unique among live threads.
type ThreadID int

const (
	// HostThread is the id reserved for the thread that called Init.
	HostThread ThreadID = 0

	// AnySender is the receive filter that matches messages from every sender,
	// the host thread included.
	AnySender ThreadID = 0

	// NoThread is returned where no thread applies: the sender of a failed
	// receive, or Current on a stopped scheduler.
	NoThread ThreadID = -1
)

const (
	// DefaultStackSize is the stack region allocated per created thread.
	DefaultStackSize = 64 << 10

	// DefaultMaxThreads bounds the number of live threads, host included.
	DefaultMaxThreads = 64
)

// Logger writes newline-delimited log lines.
type Logger interface {
	WriteLineString(s string)
}

// Entry is the body of a thread. It runs the first time the thread is scheduled.
// Returning from Entry releases the thread as if it had called Terminate.
type Entry func(ctx *Context)

// Config controls a Scheduler. The zero value is usable.
type Config struct {
	// StackSize is the default stack region size for Create.
	StackSize int
	// MaxThreads bounds live threads (host included).
	MaxThreads int
	// Instance names the scheduler in logs and metrics. Init assigns a random
	// UUID when empty.
	Instance string

	Allocator Allocator
	Logger    Logger
	Metrics   Metrics

	// FaultHandler receives faults that have no caller to return to.
	// When nil, a fault panics.
	FaultHandler func(FaultInfo)
}

func (c Config) withDefaults() Config {
	if c.StackSize <= 0 {
		c.StackSize = DefaultStackSize
	}
	if c.MaxThreads <= 0 {
		c.MaxThreads = DefaultMaxThreads
	}
	if c.Allocator == nil {
		c.Allocator = HeapAllocator{}
	}
	if c.Metrics == nil {
		c.Metrics = NilMetrics{}
	}
	return c
}

// ThreadState describes where a thread currently sits.
type ThreadState uint8

const (
	StateRunning ThreadState = iota
	StateReady
	StateBlockedSemaphore
	StateBlockedReceive
	StateBlockedAck
	StateReleased
)

func (s ThreadState) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateReady:
		return "ready"
	case StateBlockedSemaphore:
		return "sem-wait"
	case StateBlockedReceive:
		return "recv-wait"
	case StateBlockedAck:
		return "ack-wait"
	case StateReleased:
		return "released"
	default:
		return "unknown"
	}
}

// Blocked reports whether the state parks the thread off the ready queue.
func (s ThreadState) Blocked() bool {
	return s == StateBlockedSemaphore || s == StateBlockedReceive || s == StateBlockedAck
}

// SwitchKind tags a context transfer.
type SwitchKind uint8

const (
	// SwitchSave parks the running thread so it can be resumed later.
	SwitchSave SwitchKind = iota + 1
	// SwitchHandoff transfers control without saving the running thread.
	SwitchHandoff
)

func (k SwitchKind) String() string {
	switch k {
	case SwitchSave:
		return "save"
	case SwitchHandoff:
		return "handoff"
	default:
		return "unknown"
	}
}
