package kernel

import "fmt"

// Semaphore is a counting semaphore with a FIFO wait queue and Mesa semantics:
// Signal makes the earliest waiter ready but the signaler keeps running.
//
// While count < 0 exactly -count threads are parked on the semaphore.
type Semaphore struct {
	s         *Scheduler
	count     int
	waiters   queue[*tcb]
	destroyed bool
}

// NewSemaphore creates a semaphore with the given non-negative count.
func (s *Scheduler) NewSemaphore(count int) (*Semaphore, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	if count < 0 {
		return nil, fmt.Errorf("semaphore count %d: %w", count, ErrInvalidUsage)
	}
	return &Semaphore{s: s, count: count}, nil
}

// Wait decrements the count. If it goes negative the calling thread parks on the
// semaphore and the ready queue head runs. With an empty ready queue Wait fails
// with ErrStarvation and leaves the count untouched.
func (m *Semaphore) Wait() error {
	if err := m.check(); err != nil {
		return err
	}
	s := m.s
	if m.count > 0 {
		m.count--
		return nil
	}

	next, err := s.next("semaphore wait")
	if err != nil {
		return err
	}
	t := s.current
	m.count--
	t.state = StateBlockedSemaphore
	t.sem = m
	m.waiters.push(t)
	s.park(t, next)
	return nil
}

// Signal increments the count and, if a thread was parked, moves the earliest
// one to the ready queue tail.
func (m *Semaphore) Signal() error {
	if err := m.check(); err != nil {
		return err
	}
	m.count++
	if m.count > 0 {
		return nil
	}
	t, ok := m.waiters.pop()
	if !ok {
		return nil
	}
	t.state = StateReady
	t.sem = nil
	m.s.ready.push(t)
	return nil
}

// Count returns the current count.
func (m *Semaphore) Count() int { return m.count }

// Waiters returns the number of parked threads.
func (m *Semaphore) Waiters() int { return m.waiters.len() }

// Destroy releases the semaphore and every thread still parked on it; those
// threads never resume. The host thread cannot be orphaned this way.
func (m *Semaphore) Destroy() error {
	if m == nil || m.destroyed {
		return fmt.Errorf("semaphore destroyed: %w", ErrInvalidUsage)
	}
	s := m.s
	if s.evicting != nil {
		return fmt.Errorf("semaphore destroy: thread %d unwinding: %w", s.evicting.id, ErrInvalidUsage)
	}
	if m.waiters.index(func(t *tcb) bool { return t == s.host }) >= 0 {
		return fmt.Errorf("semaphore destroy: host thread is waiting: %w", ErrInvalidUsage)
	}

	m.destroyed = true
	orphans := 0
	for {
		t, ok := m.waiters.pop()
		if !ok {
			break
		}
		if t.state == StateReleased {
			continue
		}
		s.evict(t)
		orphans++
	}
	if orphans > 0 {
		s.logf("semaphore destroyed with %d waiters", orphans)
	}
	return nil
}

func (m *Semaphore) check() error {
	if m == nil || m.destroyed {
		return fmt.Errorf("semaphore destroyed: %w", ErrInvalidUsage)
	}
	return m.s.check()
}
