package kernel

import "github.com/gammazero/deque"

// queue is a FIFO used for the ready queue, semaphore waiters, thread inboxes
// and mailboxes. The zero value is an empty queue.
type queue[T any] struct {
	d deque.Deque[T]
}

func (q *queue[T]) push(v T) {
	q.d.PushBack(v)
}

func (q *queue[T]) pop() (T, bool) {
	if q.d.Len() == 0 {
		var zero T
		return zero, false
	}
	return q.d.PopFront(), true
}

func (q *queue[T]) len() int { return q.d.Len() }

func (q *queue[T]) at(i int) T { return q.d.At(i) }

// remove takes the i-th element out, keeping the order of the rest.
func (q *queue[T]) remove(i int) T { return q.d.Remove(i) }

// index returns the position of the first element matching fn, or -1.
func (q *queue[T]) index(fn func(T) bool) int {
	for i := 0; i < q.d.Len(); i++ {
		if fn(q.d.At(i)) {
			return i
		}
	}
	return -1
}

func (q *queue[T]) each(fn func(T)) {
	for i := 0; i < q.d.Len(); i++ {
		fn(q.d.At(i))
	}
}

func (q *queue[T]) clear() { q.d.Clear() }
