package kernel

import "fmt"

// Context provides thread-local access to scheduler operations. Every blocking
// call checks that the owning thread is the current one.
type Context struct {
	s *Scheduler
	t *tcb
}

// ID returns the thread id.
func (c *Context) ID() ThreadID { return c.t.id }

// Priority returns the advisory priority given at Create.
func (c *Context) Priority() int { return c.t.priority }

// Stack returns the stack region owned by the thread. It is nil for the host
// thread and after the thread is released.
func (c *Context) Stack() []byte { return c.t.stack }

// Scheduler returns the scheduler the thread belongs to.
func (c *Context) Scheduler() *Scheduler { return c.s }

// Yield moves the thread to the ready queue tail and runs the head.
func (c *Context) Yield() error {
	if err := c.own(); err != nil {
		return err
	}
	return c.s.Yield()
}

// Terminate releases the thread. It does not return on success.
func (c *Context) Terminate() error {
	if err := c.own(); err != nil {
		return err
	}
	return c.s.Terminate()
}

// Create starts a thread whose creator is this one.
func (c *Context) Create(entry Entry, id ThreadID, priority int) error {
	if err := c.own(); err != nil {
		return err
	}
	return c.s.Create(entry, id, priority)
}

func (c *Context) Wait(m *Semaphore) error {
	if err := c.own(); err != nil {
		return err
	}
	return m.Wait()
}

func (c *Context) Signal(m *Semaphore) error {
	if err := c.own(); err != nil {
		return err
	}
	return m.Signal()
}

func (c *Context) Send(to ThreadID, data []byte) error {
	if err := c.own(); err != nil {
		return err
	}
	return c.s.Send(to, data)
}

func (c *Context) BlockSend(to ThreadID, data []byte) error {
	if err := c.own(); err != nil {
		return err
	}
	return c.s.BlockSend(to, data)
}

func (c *Context) Receive(from ThreadID, buf []byte) (ThreadID, int, error) {
	if err := c.own(); err != nil {
		return NoThread, 0, err
	}
	return c.s.Receive(from, buf)
}

func (c *Context) BlockReceive(from ThreadID, buf []byte) (ThreadID, int, error) {
	if err := c.own(); err != nil {
		return NoThread, 0, err
	}
	return c.s.BlockReceive(from, buf)
}

func (c *Context) TryReceive(from ThreadID, buf []byte) (ThreadID, int, error) {
	if err := c.own(); err != nil {
		return NoThread, 0, err
	}
	return c.s.TryReceive(from, buf)
}

func (c *Context) own() error {
	if err := c.s.check(); err != nil {
		return err
	}
	if c.t.state == StateReleased {
		return fmt.Errorf("thread %d released: %w", c.t.id, ErrInvalidUsage)
	}
	if c.s.current != c.t {
		return fmt.Errorf("thread %d is not running (current %d): %w", c.t.id, c.s.current.id, ErrInvalidUsage)
	}
	return nil
}
