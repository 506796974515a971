package app

import (
	"fmt"

	"spool/kernel"
)

type workloadFunc func(a *App, sc Scenario) error

var workloads = map[string]workloadFunc{
	"roundrobin": startRoundRobin,
	"prodcon":    startProdCon,
	"pingpong":   startPingPong,
	"spawn":      startSpawn,
	"panic":      startPanic,
}

// startRoundRobin runs threads that log and yield for a number of rounds.
func startRoundRobin(a *App, sc Scenario) error {
	threads := sc.Int("threads", 3)
	rounds := sc.Int("rounds", 4)
	for i := 0; i < threads; i++ {
		if _, err := a.start(a.s.Host(), func(ctx *kernel.Context) {
			for r := 0; r < rounds; r++ {
				a.logs.printf("rr: thread %d round %d", ctx.ID(), r)
				if err := ctx.Yield(); err != nil {
					a.logs.printf("rr: thread %d yield: %v", ctx.ID(), err)
					return
				}
			}
		}); err != nil {
			return err
		}
	}
	return nil
}

// boundedBuffer is a mailbox guarded by empty/full counting semaphores and a
// binary mutex.
type boundedBuffer struct {
	empty, full, mu *kernel.Semaphore
	box             *kernel.Mailbox
}

func newBoundedBuffer(s *kernel.Scheduler, slots int) (*boundedBuffer, error) {
	empty, err := s.NewSemaphore(slots)
	if err != nil {
		return nil, err
	}
	full, err := s.NewSemaphore(0)
	if err != nil {
		return nil, err
	}
	mu, err := s.NewSemaphore(1)
	if err != nil {
		return nil, err
	}
	return &boundedBuffer{empty: empty, full: full, mu: mu, box: kernel.NewMailbox()}, nil
}

// put deposits item once a slot is free. A failed deposit releases the mutex.
func (b *boundedBuffer) put(ctx *kernel.Context, item []byte) error {
	if err := ctx.Wait(b.empty); err != nil {
		return fmt.Errorf("wait empty: %w", err)
	}
	if err := ctx.Wait(b.mu); err != nil {
		return fmt.Errorf("lock: %w", err)
	}
	if err := b.box.Deposit(item); err != nil {
		if uerr := ctx.Signal(b.mu); uerr != nil {
			return fmt.Errorf("unlock: %w", uerr)
		}
		return fmt.Errorf("deposit: %w", err)
	}
	if err := ctx.Signal(b.mu); err != nil {
		return fmt.Errorf("unlock: %w", err)
	}
	if err := ctx.Signal(b.full); err != nil {
		return fmt.Errorf("signal full: %w", err)
	}
	return nil
}

// get withdraws the oldest item into buf. A failed withdraw releases the mutex.
func (b *boundedBuffer) get(ctx *kernel.Context, buf []byte) (int, error) {
	if err := ctx.Wait(b.full); err != nil {
		return 0, fmt.Errorf("wait full: %w", err)
	}
	if err := ctx.Wait(b.mu); err != nil {
		return 0, fmt.Errorf("lock: %w", err)
	}
	n, err := b.box.Withdraw(buf)
	if err != nil {
		if uerr := ctx.Signal(b.mu); uerr != nil {
			return 0, fmt.Errorf("unlock: %w", uerr)
		}
		return 0, fmt.Errorf("withdraw: %w", err)
	}
	if err := ctx.Signal(b.mu); err != nil {
		return 0, fmt.Errorf("unlock: %w", err)
	}
	if err := ctx.Signal(b.empty); err != nil {
		return 0, fmt.Errorf("signal empty: %w", err)
	}
	return n, nil
}

func (b *boundedBuffer) close() {
	_ = b.empty.Destroy()
	_ = b.full.Destroy()
	_ = b.mu.Destroy()
	_ = b.box.Destroy()
}

// startProdCon runs producers and consumers over a bounded buffer.
func startProdCon(a *App, sc Scenario) error {
	producers := sc.Int("producers", 2)
	consumers := sc.Int("consumers", 2)
	items := sc.Int("items", 4)
	slots := sc.Int("slots", 2)
	if slots == 0 || consumers == 0 {
		return fmt.Errorf("prodcon: slots and consumers must be positive")
	}

	buf, err := newBoundedBuffer(a.s, slots)
	if err != nil {
		return err
	}
	total := producers * items
	remaining := consumers

	for p := 0; p < producers; p++ {
		if _, err := a.start(a.s.Host(), func(ctx *kernel.Context) {
			for k := 0; k < items; k++ {
				item := fmt.Sprintf("t%d#%d", ctx.ID(), k)
				if err := buf.put(ctx, []byte(item)); err != nil {
					a.logs.printf("prodcon: producer %d: %v", ctx.ID(), err)
					return
				}
				a.logs.printf("prodcon: put %s", item)
				if err := ctx.Yield(); err != nil {
					a.logs.printf("prodcon: producer %d: %v", ctx.ID(), err)
					return
				}
			}
		}); err != nil {
			return err
		}
	}

	for c := 0; c < consumers; c++ {
		share := total / consumers
		if c < total%consumers {
			share++
		}
		if _, err := a.start(a.s.Host(), func(ctx *kernel.Context) {
			defer func() {
				remaining--
				if remaining == 0 {
					buf.close()
				}
			}()
			item := make([]byte, 32)
			for k := 0; k < share; k++ {
				n, err := buf.get(ctx, item)
				if err != nil {
					a.logs.printf("prodcon: consumer %d: %v", ctx.ID(), err)
					return
				}
				a.logs.printf("prodcon: thread %d got %s", ctx.ID(), item[:n])
				if err := ctx.Yield(); err != nil {
					a.logs.printf("prodcon: consumer %d: %v", ctx.ID(), err)
					return
				}
			}
		}); err != nil {
			return err
		}
	}
	return nil
}

// startPingPong bounces rendezvous messages between two threads.
func startPingPong(a *App, sc Scenario) error {
	rounds := sc.Int("rounds", 3)
	pingID, pongID := a.reserve(), a.reserve()

	ping := func(ctx *kernel.Context) {
		reply := make([]byte, 32)
		for r := 0; r < rounds; r++ {
			if err := ctx.BlockSend(pongID, []byte(fmt.Sprintf("ping %d", r))); err != nil {
				a.logs.printf("pingpong: send: %v", err)
				return
			}
			_, n, err := ctx.Receive(pongID, reply)
			if err != nil {
				a.logs.printf("pingpong: receive: %v", err)
				return
			}
			a.logs.printf("pingpong: thread %d got %s", ctx.ID(), reply[:n])
		}
	}
	pong := func(ctx *kernel.Context) {
		msg := make([]byte, 32)
		for r := 0; r < rounds; r++ {
			_, n, err := ctx.BlockReceive(pingID, msg)
			if err != nil {
				a.logs.printf("pingpong: receive: %v", err)
				return
			}
			a.logs.printf("pingpong: thread %d got %s", ctx.ID(), msg[:n])
			if err := ctx.Send(pingID, []byte(fmt.Sprintf("pong %d", r))); err != nil {
				a.logs.printf("pingpong: send: %v", err)
				return
			}
		}
	}

	if err := a.startID(a.s.Host(), pingID, ping); err != nil {
		return err
	}
	return a.startID(a.s.Host(), pongID, pong)
}

// startSpawn builds a tree of threads created by threads. Each returning child
// hands control back to its creator.
func startSpawn(a *App, sc Scenario) error {
	depth := sc.Int("depth", 2)
	fanout := sc.Int("fanout", 2)

	var node func(level int) kernel.Entry
	node = func(level int) kernel.Entry {
		return func(ctx *kernel.Context) {
			a.logs.printf("spawn: thread %d level %d", ctx.ID(), level)
			if level >= depth {
				return
			}
			for i := 0; i < fanout; i++ {
				if _, err := a.start(ctx, node(level+1)); err != nil {
					a.logs.printf("spawn: thread %d: %v", ctx.ID(), err)
					return
				}
			}
			_ = ctx.Yield()
			a.logs.printf("spawn: thread %d back", ctx.ID())
		}
	}
	_, err := a.start(a.s.Host(), node(0))
	return err
}

// startPanic runs a thread that panics after its first turn.
func startPanic(a *App, sc Scenario) error {
	after := sc.Int("after", 1)
	_, err := a.start(a.s.Host(), func(ctx *kernel.Context) {
		for i := 0; i < after; i++ {
			_ = ctx.Yield()
		}
		panic(fmt.Sprintf("thread %d gave up", ctx.ID()))
	})
	return err
}
