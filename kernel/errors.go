package kernel

import "errors"

var (
	// ErrAllocation reports that a stack or control block could not be allocated.
	ErrAllocation = errors.New("allocation failed")

	// ErrStarvation reports a blocking operation with no other runnable thread.
	ErrStarvation = errors.New("scheduler starvation")

	// ErrInvalidUsage reports an operation invoked out of order or on a dead object.
	ErrInvalidUsage = errors.New("invalid usage")

	// ErrShortBuffer reports a receive buffer smaller than the pending message.
	// The message stays queued.
	ErrShortBuffer = errors.New("short buffer")

	// ErrNoMessage is returned by TryReceive when nothing matches.
	ErrNoMessage = errors.New("no message")
)
