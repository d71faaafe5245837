package execengine

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/gammazero/deque"

	"github.com/taskforge/go-exec-engine/core"
)

// =============================================================================
// SerialExecutor: FIFO, one-at-a-time execution on a shared pool
// =============================================================================

// SerialExecutor runs operations in submission order with at most one in
// flight at a time, using the workers of a shared Pool. It holds its own
// FIFO; a drain step is posted to the pool whenever work is pending, runs a
// single operation, and re-posts itself if more remain, so a long serial
// stream yields the worker between operations instead of monopolizing it.
//
// Handles behave exactly like pool handles: cancellation of a pending serial
// operation prevents it from running, deadlines are enforced from submission,
// and panics surface as task failures. When the pool shuts down, serialized
// work that has not started yet is cancelled.
type SerialExecutor struct {
	pool *Pool

	mu       sync.Mutex
	items    deque.Deque[*core.Future]
	draining bool
	closed   bool

	activeDrains int32 // concurrency assertion
}

// NewSerialExecutor creates a serial executor on top of pool.
func NewSerialExecutor(pool *Pool) *SerialExecutor {
	return &SerialExecutor{pool: pool}
}

// Submit enqueues op behind every previously submitted operation of this
// executor. The returned handle supports the full Future surface.
func (s *SerialExecutor) Submit(op core.Operation, opts ...SubmitOption) (*core.Future, error) {
	if op == nil {
		return nil, core.ErrNilOperation
	}
	if !s.pool.IsRunning() {
		return nil, core.ErrPoolNotRunning
	}

	so := defaultSubmitOptions()
	for _, opt := range opts {
		opt(so)
	}

	task := core.NewTask(op, so.name, so.deadline)
	f := core.NewFuture(s.pool.context(), task)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		// The caller never sees this handle; finish it so its task context
		// is released right away.
		f.FinishCancelled()
		return nil, core.ErrPoolShutdown
	}
	s.items.PushBack(f)
	start := !s.draining
	if start {
		s.draining = true
	}
	s.mu.Unlock()

	s.pool.dispatcher.TrackDeadline(f)

	if start {
		if err := s.schedule(); err != nil {
			s.abort()
			return nil, err
		}
	}
	return f, nil
}

// Close stops intake of new serial operations and cancels those not yet
// started. In-flight work is unaffected. Idempotent.
func (s *SerialExecutor) Close() {
	s.abort()
}

// PendingCount returns the number of operations waiting in the serial FIFO.
func (s *SerialExecutor) PendingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.items.Len()
}

// schedule posts one drain step to the pool. If the pool cancels the step
// before it runs (immediate shutdown), the serial FIFO is aborted so no
// handle is left pending forever.
func (s *SerialExecutor) schedule() error {
	f, err := s.pool.Submit(s.drainOne, WithName("serial-drain"))
	if err != nil {
		return err
	}
	f.OnComplete(func(df *core.Future) {
		// A drain step that did not complete normally (cancelled before
		// running, or broken) can no longer advance the stream.
		if df.State() != core.StateCompleted {
			s.abort()
		}
	})
	return nil
}

// drainOne runs a single serialized operation, then yields by re-posting
// itself when more work is queued.
func (s *SerialExecutor) drainOne(ctx context.Context) (any, error) {
	s.mu.Lock()
	if s.items.Len() == 0 {
		s.draining = false
		s.mu.Unlock()
		return nil, nil
	}
	f := s.items.PopFront()
	s.mu.Unlock()

	// The assertion covers only the user operation: a successor drain may
	// already be scheduled while this step unwinds.
	if n := atomic.AddInt32(&s.activeDrains, 1); n > 1 {
		panic(fmt.Sprintf("execengine: concurrent serial drain detected (count=%d)", n))
	}
	s.runOne(f)
	atomic.AddInt32(&s.activeDrains, -1)

	s.mu.Lock()
	more := s.items.Len() > 0
	if !more {
		s.draining = false
	}
	s.mu.Unlock()

	if more {
		if err := s.schedule(); err != nil {
			// Pool went away under us; pending serial work cannot run.
			s.abort()
		}
	}
	return nil, nil
}

// runOne drives one handle through its lifecycle on the current worker.
func (s *SerialExecutor) runOne(f *core.Future) {
	// Cancelled while waiting in the serial FIFO: never runs.
	if !f.TransitionToRunning() {
		return
	}

	var result any
	var err error
	func() {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("panic: %v", r)
			}
		}()
		result, err = f.Task().Operation(f.Context())
	}()

	f.Finish(result, err)
}

// abort closes intake and cancels everything still queued.
func (s *SerialExecutor) abort() {
	s.mu.Lock()
	s.closed = true
	var orphaned []*core.Future
	for s.items.Len() > 0 {
		orphaned = append(orphaned, s.items.PopFront())
	}
	s.draining = false
	s.mu.Unlock()

	for _, f := range orphaned {
		f.FinishCancelled()
	}
}
