// Package queue implements the bounded MPMC task queue the reactor uses to
// hand connection-advancing work to the worker pool.
package queue

import (
	"sync"

	"github.com/pkg/errors"
)

// ErrFull is returned by TryEnqueue when the queue has no free slot. The
// reactor treats it as admission-control backpressure, not a fault.
var ErrFull = errors.New("queue full")

// ErrClosed is returned by EnqueueBlocking and TryEnqueue once Shutdown has
// been called.
var ErrClosed = errors.New("queue closed")

// Task is the opaque unit of work the workers execute: always "advance this
// connection record by one state-machine step."
type Task struct {
	Fn  func()
	Arg any
}

// Queue is a fixed-capacity circular buffer guarded by a mutex with two
// condition variables, the shape load_config's sibling task_queue.c
// describes ("a mailbox between the reactor and the worker threads").
type Queue struct {
	mu       sync.Mutex
	notEmpty sync.Cond
	notFull  sync.Cond

	buf   []Task
	head  int
	count int

	closed bool
}

// New creates a queue of the given capacity. Capacity must be positive.
func New(capacity int) *Queue {
	if capacity <= 0 {
		capacity = 1
	}
	q := &Queue{buf: make([]Task, capacity)}
	q.notEmpty = *sync.NewCond(&q.mu)
	q.notFull = *sync.NewCond(&q.mu)
	return q
}

// EnqueueBlocking waits while the queue is full, then stores task. It
// returns ErrClosed without blocking further if shutdown happens while
// waiting, or immediately if already closed.
func (q *Queue) EnqueueBlocking(t Task) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	for q.count == len(q.buf) && !q.closed {
		q.notFull.Wait()
	}
	if q.closed {
		return ErrClosed
	}
	q.push(t)
	q.notEmpty.Signal()
	return nil
}

// TryEnqueue stores task without blocking, returning ErrFull if the buffer
// is at capacity and ErrClosed if the queue has been shut down. Neither
// case is treated as an internal error by callers — see ErrFull's doc.
func (q *Queue) TryEnqueue(t Task) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrClosed
	}
	if q.count == len(q.buf) {
		return ErrFull
	}
	q.push(t)
	q.notEmpty.Signal()
	return nil
}

// DequeueBlocking waits while the queue is empty and open, then returns the
// oldest enqueued task. When the queue is shut down and drained it returns
// ok=false (the "poison" signal workers exit on).
func (q *Queue) DequeueBlocking() (t Task, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for q.count == 0 && !q.closed {
		q.notEmpty.Wait()
	}
	if q.count == 0 {
		return Task{}, false
	}
	t = q.pop()
	q.notFull.Signal()
	return t, true
}

// Shutdown marks the queue closed and wakes every waiter. Producers see
// ErrClosed; consumers drain remaining tasks and then see ok=false.
func (q *Queue) Shutdown() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.notEmpty.Broadcast()
	q.notFull.Broadcast()
}

// Len reports the number of tasks currently queued, for diagnostics.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.count
}

func (q *Queue) push(t Task) {
	tail := (q.head + q.count) % len(q.buf)
	q.buf[tail] = t
	q.count++
}

func (q *Queue) pop() Task {
	t := q.buf[q.head]
	q.buf[q.head] = Task{}
	q.head = (q.head + 1) % len(q.buf)
	q.count--
	return t
}
