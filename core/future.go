package core

import (
	"context"
	"errors"
	"sync"
	"time"
)

// =============================================================================
// FutureState: handle lifecycle
// =============================================================================

// FutureState identifies where a handle is in its lifecycle.
//
// Transitions form a DAG with a single terminal state per handle:
//
//	StatePending → StateRunning → {StateCompleted | StateFailed}
//	StatePending → StateCancelled
//	StateRunning → StateCancelled (only when the operation honors cancellation)
//
// Once a terminal state is reached no field of the handle changes.
type FutureState int32

const (
	StatePending FutureState = iota
	StateRunning
	StateCompleted
	StateFailed
	StateCancelled
)

// Terminal reports whether no further transition is possible from s.
func (s FutureState) Terminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateCancelled
}

func (s FutureState) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	case StateCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// =============================================================================
// Future: the externally visible proxy for a submitted task's outcome
// =============================================================================

// Future is owned jointly by the submitter and the pool. The pool writes
// state transitions under the handle's mutex; submitters read through Get,
// State, and Done. One mutex guards state, result, err, cancelRequested, and
// the callback list as a single invariant group; waiters block on the done
// channel, which is closed exactly once at the terminal transition.
type Future struct {
	task *Task

	mu              sync.Mutex
	state           FutureState
	result          any
	err             error
	cancelRequested bool
	callbacks       []func(*Future)

	done chan struct{}

	// taskCtx carries the cooperative cancellation signal into the
	// operation. taskCancel unblocks an interruptible wait when Cancel is
	// called with mayInterruptIfRunning, and is always called at the
	// terminal transition to release timer/context resources.
	taskCtx    context.Context
	taskCancel context.CancelFunc
}

// NewFuture creates a pending handle for task. The task's cancellation
// context is derived from parent.
func NewFuture(parent context.Context, task *Task) *Future {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)
	return &Future{
		task:       task,
		state:      StatePending,
		done:       make(chan struct{}),
		taskCtx:    ctx,
		taskCancel: cancel,
	}
}

// Task returns the immutable task description behind this handle.
func (f *Future) Task() *Task {
	return f.task
}

// State returns the current lifecycle state.
func (f *Future) State() FutureState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// IsTerminal reports whether the handle has reached its terminal state.
func (f *Future) IsTerminal() bool {
	return f.State().Terminal()
}

// CancelRequested reports whether cancellation has been requested. Running
// operations may poll this in addition to their context.
func (f *Future) CancelRequested() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cancelRequested
}

// Done returns a channel closed when the handle reaches a terminal state.
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Context returns the context passed to the operation. Exposed for tests and
// for operations that spawn helpers which must observe cancellation.
func (f *Future) Context() context.Context {
	return f.taskCtx
}

// Cancel requests cancellation of the task behind this handle.
//
// Pending handles transition to StateCancelled immediately and the operation
// never executes (the worker skips handles that are already terminal when
// dequeued). Running handles have their cancellation flag set; if
// mayInterruptIfRunning is true the task context is cancelled so a blocked
// operation unblocks. While running, cancellation is advisory, never
// forcible: the terminal state becomes StateCancelled only if the operation
// cooperates. A true return from Cancel on a running handle therefore means
// the request was accepted, not that the task will end as StateCancelled: an
// operation that runs to normal completion anyway finishes as StateCompleted
// with its result intact. Cancel of an already-terminal handle is a no-op and
// returns false; a terminal result always stands.
func (f *Future) Cancel(mayInterruptIfRunning bool) bool {
	f.mu.Lock()

	if f.state.Terminal() {
		f.mu.Unlock()
		return false
	}

	f.cancelRequested = true

	if f.state == StatePending {
		f.finishLocked(StateCancelled, nil, nil)
		return true
	}

	// Running: advisory. Unblock the worker if asked to.
	f.mu.Unlock()
	if mayInterruptIfRunning {
		f.taskCancel()
	}
	return true
}

// Get blocks until the handle reaches a terminal state or ctx is done.
// Outcomes: the task result on StateCompleted, a *TaskFailedError on
// StateFailed, ErrCancelled on StateCancelled, or ctx.Err() if the caller's
// context expired first. A Get that gives up never affects task state.
func (f *Future) Get(ctx context.Context) (any, error) {
	select {
	case <-f.done:
		return f.outcome()
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// GetWithTimeout blocks until the handle reaches a terminal state or the
// timeout elapses, in which case it returns ErrTimedOut. A timeout only
// stops this caller's wait; the task keeps running.
func (f *Future) GetWithTimeout(timeout time.Duration) (any, error) {
	select {
	case <-f.done:
		return f.outcome()
	default:
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-f.done:
		return f.outcome()
	case <-timer.C:
		return nil, ErrTimedOut
	}
}

// OnComplete registers fn to run after the handle reaches its terminal
// state. Callbacks run outside the handle lock, in registration order, on
// the goroutine that performed the terminal transition. A callback
// registered after the terminal transition runs immediately on the caller's
// goroutine.
func (f *Future) OnComplete(fn func(*Future)) {
	f.mu.Lock()
	if f.state.Terminal() {
		f.mu.Unlock()
		fn(f)
		return
	}
	f.callbacks = append(f.callbacks, fn)
	f.mu.Unlock()
}

// outcome maps the terminal state to Get's typed result. Only called after
// the done channel is closed, so the fields are frozen.
func (f *Future) outcome() (any, error) {
	switch f.state {
	case StateCompleted:
		return f.result, nil
	case StateFailed:
		return nil, f.err
	case StateCancelled:
		return nil, ErrCancelled
	default:
		// Unreachable: done is closed only by a terminal transition.
		return nil, ErrCancelled
	}
}

// =============================================================================
// Pool-side transitions
// =============================================================================

// TransitionToRunning moves a pending handle to StateRunning. It returns
// false if the handle is already terminal (cancelled before execution), in
// which case the worker must skip the task.
func (f *Future) TransitionToRunning() bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.state != StatePending {
		return false
	}
	f.state = StateRunning
	return true
}

// Finish records the outcome of an executed operation and performs the
// terminal transition.
//
// A nil error always yields StateCompleted: an operation that ran to normal
// completion keeps its result even if cancellation was requested meanwhile.
// A non-nil error yields StateCancelled when the operation honored a
// requested cancellation (it returned its context's error), and StateFailed
// wrapping the cause otherwise.
func (f *Future) Finish(result any, err error) {
	f.mu.Lock()
	if f.state.Terminal() {
		// Already cancelled by a racing transition; the first terminal
		// state stands.
		f.mu.Unlock()
		return
	}

	switch {
	case err == nil:
		f.finishLocked(StateCompleted, result, nil)
	case f.cancelRequested && errors.Is(err, context.Canceled):
		f.finishLocked(StateCancelled, nil, nil)
	default:
		f.finishLocked(StateFailed, nil, &TaskFailedError{
			TaskID:   f.task.ID,
			TaskName: f.task.Name,
			Cause:    err,
		})
	}
}

// FinishCancelled forces the terminal transition to StateCancelled. Used by
// immediate shutdown for queued tasks and by worker-loss handling.
func (f *Future) FinishCancelled() {
	f.mu.Lock()
	if f.state.Terminal() {
		f.mu.Unlock()
		return
	}
	f.cancelRequested = true
	f.finishLocked(StateCancelled, nil, nil)
}

// FinishFailed forces the terminal transition to StateFailed with the given
// cause. Used when a worker is lost while the task is in flight.
func (f *Future) FinishFailed(cause error) {
	f.mu.Lock()
	if f.state.Terminal() {
		f.mu.Unlock()
		return
	}
	f.finishLocked(StateFailed, nil, &TaskFailedError{
		TaskID:   f.task.ID,
		TaskName: f.task.Name,
		Cause:    cause,
	})
}

// finishLocked performs the terminal transition. Caller holds f.mu; the lock
// is released before callbacks run.
func (f *Future) finishLocked(state FutureState, result any, err error) {
	f.state = state
	f.result = result
	f.err = err
	callbacks := f.callbacks
	f.callbacks = nil
	close(f.done)
	f.mu.Unlock()

	// Release the task context on every exit path, including cancellation
	// and failure.
	f.taskCancel()

	for _, fn := range callbacks {
		fn(f)
	}
}
