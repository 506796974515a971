package kernel

import "fmt"

// message is a direct message queued in the receiver's inbox.
type message struct {
	from ThreadID
	to   ThreadID
	data []byte
	// sender is set for rendezvous messages; it waits for the receiver to take
	// delivery.
	sender *tcb
}

// Send queues a copy of data for thread to and makes it ready if it was blocked
// receiving a matching message. Send never blocks.
func (s *Scheduler) Send(to ThreadID, data []byte) error {
	if err := s.check(); err != nil {
		return err
	}
	dst, err := s.lookup("send", to)
	if err != nil {
		return err
	}
	s.post(dst, data, nil)
	return nil
}

// BlockSend is a rendezvous send: it returns once the receiver has taken the
// message. It fails with ErrInvalidUsage if the receiver is released first.
func (s *Scheduler) BlockSend(to ThreadID, data []byte) error {
	if err := s.check(); err != nil {
		return err
	}
	t := s.current
	if to == t.id {
		return fmt.Errorf("block send to self: %w", ErrInvalidUsage)
	}
	dst, err := s.lookup("block send", to)
	if err != nil {
		return err
	}
	if s.ready.len() == 0 && !dst.wants(t.id) {
		return s.starved("block send")
	}

	msg := s.post(dst, data, t)
	next, err := s.next("block send")
	if err != nil {
		return err
	}
	t.state = StateBlockedAck
	t.awaiting = msg
	s.park(t, next)

	if err := t.ackErr; err != nil {
		t.ackErr = nil
		return err
	}
	return nil
}

// Receive blocks until a message from the given sender (AnySender matches all) is queued
// for the calling thread, copies it into buf and returns the sender and length.
// Messages from one sender are received in the order they were sent.
func (s *Scheduler) Receive(from ThreadID, buf []byte) (ThreadID, int, error) {
	return s.receive(from, buf, true)
}

// BlockReceive is the receiving half of a rendezvous: it receives as Receive
// does and acknowledges the sender before returning.
//
// Receive acknowledges rendezvous messages too, so a BlockSend is never left
// waiting on a plain receive.
func (s *Scheduler) BlockReceive(from ThreadID, buf []byte) (ThreadID, int, error) {
	return s.receive(from, buf, true)
}

// TryReceive is the non-blocking Receive. It returns ErrNoMessage when nothing
// matches.
func (s *Scheduler) TryReceive(from ThreadID, buf []byte) (ThreadID, int, error) {
	return s.receive(from, buf, false)
}

// Pending returns how many messages are queued for the calling thread.
func (s *Scheduler) Pending() int {
	if s.check() != nil {
		return 0
	}
	return s.current.inbox.len()
}

func (s *Scheduler) receive(from ThreadID, buf []byte, block bool) (ThreadID, int, error) {
	if err := s.check(); err != nil {
		return NoThread, 0, err
	}
	if from < AnySender {
		return NoThread, 0, fmt.Errorf("receive from %d: %w", from, ErrInvalidUsage)
	}

	t := s.current
	for {
		i := t.inbox.index(func(m *message) bool { return matches(from, m.from) })
		if i >= 0 {
			msg := t.inbox.at(i)
			if len(buf) < len(msg.data) {
				return msg.from, len(msg.data), fmt.Errorf("receive %d bytes into %d: %w", len(msg.data), len(buf), ErrShortBuffer)
			}
			t.inbox.remove(i)
			n := copy(buf, msg.data)
			s.ack(msg)
			return msg.from, n, nil
		}
		if !block {
			return NoThread, 0, ErrNoMessage
		}

		next, err := s.next("receive")
		if err != nil {
			return NoThread, 0, err
		}
		t.state = StateBlockedReceive
		t.filter = from
		s.park(t, next)
	}
}

func (s *Scheduler) lookup(op string, id ThreadID) (*tcb, error) {
	t, ok := s.threads[id]
	if !ok {
		return nil, fmt.Errorf("%s to %d: no such thread: %w", op, id, ErrInvalidUsage)
	}
	return t, nil
}

func (s *Scheduler) post(dst *tcb, data []byte, sender *tcb) *message {
	msg := &message{
		from:   s.current.id,
		to:     dst.id,
		data:   append([]byte(nil), data...),
		sender: sender,
	}
	dst.inbox.push(msg)
	if dst.wants(msg.from) {
		dst.state = StateReady
		s.ready.push(dst)
	}
	s.stats.Messages++
	s.cfg.Metrics.RecordMessage(sender != nil)
	return msg
}

// ack wakes the sender of a rendezvous message once it has been taken.
func (s *Scheduler) ack(msg *message) {
	snd := msg.sender
	if snd == nil || snd.state != StateBlockedAck || snd.awaiting != msg {
		return
	}
	snd.awaiting = nil
	snd.state = StateReady
	s.ready.push(snd)
}

// failRendezvous wakes senders still waiting on messages queued for t.
func (s *Scheduler) failRendezvous(t *tcb) {
	if s.down {
		return
	}
	t.inbox.each(func(msg *message) {
		snd := msg.sender
		if snd == nil || snd.state != StateBlockedAck || snd.awaiting != msg {
			return
		}
		snd.ackErr = fmt.Errorf("block send to %d: receiver released: %w", t.id, ErrInvalidUsage)
		s.ack(msg)
	})
}
