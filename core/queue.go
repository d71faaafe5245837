package core

import (
	"context"
	"sync"

	"github.com/gammazero/deque"
)

// AdmissionPolicy selects what happens when a task is submitted while the
// queue is at capacity.
type AdmissionPolicy int

const (
	// AdmissionBlock applies backpressure: Submit blocks until space frees
	// up or the submitter's context is done.
	AdmissionBlock AdmissionPolicy = iota

	// AdmissionReject fails the submission immediately with ErrQueueFull.
	AdmissionReject

	// AdmissionCallerRuns executes the task synchronously on the
	// submitter's goroutine instead of queueing it.
	AdmissionCallerRuns
)

func (p AdmissionPolicy) String() string {
	switch p {
	case AdmissionBlock:
		return "block"
	case AdmissionReject:
		return "reject"
	case AdmissionCallerRuns:
		return "caller-runs"
	default:
		return "unknown"
	}
}

// =============================================================================
// BoundedTaskQueue: bounded FIFO holding area between submitters and workers
// =============================================================================

// BoundedTaskQueue decouples submission from execution and provides
// backpressure. Handles dequeue in submission order. One mutex guards the
// deque and the intake flag; workers park on the signal channel, blocked
// producers park on the space channel.
//
// Cancelled pending handles are not removed eagerly: the worker skips any
// handle that is already terminal when dequeued, so a cancelled task's
// operation never runs.
type BoundedTaskQueue struct {
	mu       sync.Mutex
	items    deque.Deque[*Future]
	capacity int // <= 0 means unbounded

	intakeClosed bool
	closed       chan struct{} // closed by CloseIntake, wakes idle workers

	signal chan struct{} // hints workers that an item was pushed
	space  chan struct{} // hints blocked producers that a slot freed up
}

// NewBoundedTaskQueue creates a queue with the given capacity. A capacity of
// zero or less means unbounded. signalBuf sizes the worker wakeup channel
// and should be at least the worker count.
func NewBoundedTaskQueue(capacity int, signalBuf int) *BoundedTaskQueue {
	if signalBuf < 1 {
		signalBuf = 1
	}
	return &BoundedTaskQueue{
		capacity: capacity,
		closed:   make(chan struct{}),
		signal:   make(chan struct{}, signalBuf),
		space:    make(chan struct{}, 1),
	}
}

// TryPush enqueues f without blocking. It returns ErrPoolShutdown once
// intake is closed and ErrQueueFull when the queue is at capacity.
func (q *BoundedTaskQueue) TryPush(f *Future) error {
	q.mu.Lock()
	if q.intakeClosed {
		q.mu.Unlock()
		return ErrPoolShutdown
	}
	if q.capacity > 0 && q.items.Len() >= q.capacity {
		q.mu.Unlock()
		return ErrQueueFull
	}
	q.items.PushBack(f)
	q.mu.Unlock()

	select {
	case q.signal <- struct{}{}:
	default:
		// Signal channel full; a worker will find the item anyway.
	}
	return nil
}

// Push enqueues f, blocking while the queue is full. It returns
// ErrPoolShutdown once intake is closed and ctx.Err() if the submitter's
// context is done while waiting for space.
func (q *BoundedTaskQueue) Push(ctx context.Context, f *Future) error {
	for {
		err := q.TryPush(f)
		if err != ErrQueueFull {
			return err
		}
		select {
		case <-q.space:
		case <-q.closed:
			return ErrPoolShutdown
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Pop removes and returns the oldest handle, if any.
func (q *BoundedTaskQueue) Pop() (*Future, bool) {
	q.mu.Lock()
	if q.items.Len() == 0 {
		q.mu.Unlock()
		return nil, false
	}
	f := q.items.PopFront()
	q.mu.Unlock()

	q.notifySpace()
	return f, true
}

// GetWork blocks until a handle is available, intake is closed and the
// queue is drained, or stopCh fires. The second return is false only for
// the two drained/stopped cases.
func (q *BoundedTaskQueue) GetWork(stopCh <-chan struct{}) (*Future, bool) {
	for {
		if f, ok := q.Pop(); ok {
			return f, true
		}

		q.mu.Lock()
		drained := q.intakeClosed && q.items.Len() == 0
		q.mu.Unlock()
		if drained {
			return nil, false
		}

		select {
		case <-q.signal:
		case <-q.closed:
			// Re-check: remaining items still drain after intake closes.
		case <-stopCh:
			return nil, false
		}
	}
}

// CloseIntake stops admissions. Enqueues fail from this point on; dequeues
// keep draining whatever is already queued. Idempotent.
func (q *BoundedTaskQueue) CloseIntake() {
	q.mu.Lock()
	if !q.intakeClosed {
		q.intakeClosed = true
		close(q.closed)
	}
	q.mu.Unlock()
}

// IntakeClosed reports whether admissions have been stopped.
func (q *BoundedTaskQueue) IntakeClosed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.intakeClosed
}

// Drain removes and returns every queued handle. Immediate shutdown uses
// this to cancel queued-but-not-started tasks.
func (q *BoundedTaskQueue) Drain() []*Future {
	q.mu.Lock()
	n := q.items.Len()
	if n == 0 {
		q.mu.Unlock()
		return nil
	}
	out := make([]*Future, 0, n)
	for q.items.Len() > 0 {
		out = append(out, q.items.PopFront())
	}
	q.mu.Unlock()

	q.notifySpace()
	return out
}

// Len returns the number of queued handles.
func (q *BoundedTaskQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.items.Len()
}

// Capacity returns the configured bound (<= 0 means unbounded).
func (q *BoundedTaskQueue) Capacity() int {
	return q.capacity
}

func (q *BoundedTaskQueue) notifySpace() {
	select {
	case q.space <- struct{}{}:
	default:
	}
}
