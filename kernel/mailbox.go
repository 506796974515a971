package kernel

import "fmt"

// Mailbox is an unbounded FIFO of byte messages, independent of any thread.
//
// Deposit and Withdraw never block. Like the rest of the runtime it is meant to
// be used from the current thread only.
type Mailbox struct {
	msgs      queue[[]byte]
	destroyed bool
}

// NewMailbox creates an empty mailbox.
func NewMailbox() *Mailbox {
	return &Mailbox{}
}

// Deposit appends a copy of msg to the mailbox.
func (mb *Mailbox) Deposit(msg []byte) error {
	if err := mb.check(); err != nil {
		return err
	}
	mb.msgs.push(append([]byte(nil), msg...))
	return nil
}

// Withdraw moves the oldest message into buf and returns its length. An empty
// mailbox returns 0 and leaves buf untouched. If buf is too small the message
// stays queued and ErrShortBuffer is returned with the required length.
func (mb *Mailbox) Withdraw(buf []byte) (int, error) {
	if err := mb.check(); err != nil {
		return 0, err
	}
	if mb.msgs.len() == 0 {
		return 0, nil
	}
	msg := mb.msgs.at(0)
	if len(buf) < len(msg) {
		return len(msg), fmt.Errorf("withdraw %d bytes into %d: %w", len(msg), len(buf), ErrShortBuffer)
	}
	mb.msgs.pop()
	return copy(buf, msg), nil
}

// Len returns the number of pending messages.
func (mb *Mailbox) Len() int {
	if mb == nil {
		return 0
	}
	return mb.msgs.len()
}

// Destroy drops every pending message. The mailbox is unusable afterwards.
func (mb *Mailbox) Destroy() error {
	if err := mb.check(); err != nil {
		return err
	}
	mb.msgs.clear()
	mb.destroyed = true
	return nil
}

func (mb *Mailbox) check() error {
	if mb == nil || mb.destroyed {
		return fmt.Errorf("mailbox destroyed: %w", ErrInvalidUsage)
	}
	return nil
}
