package core

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by Future.Get, Submit, and queue admission.
var (
	// ErrTimedOut is returned when a wait exceeded its budget. It only stops
	// the caller's wait; the underlying task state is untouched.
	ErrTimedOut = errors.New("execengine: wait timed out")

	// ErrCancelled is returned by Get when the handle reached the cancelled
	// state before or during execution.
	ErrCancelled = errors.New("execengine: task cancelled")

	// ErrQueueFull is returned by Submit under the Reject admission policy
	// when the queue is at capacity.
	ErrQueueFull = errors.New("execengine: task queue full")

	// ErrPoolShutdown is returned by Submit once shutdown has begun.
	ErrPoolShutdown = errors.New("execengine: pool is shut down")

	// ErrPoolNotRunning is returned by Submit before Start has been called.
	ErrPoolNotRunning = errors.New("execengine: pool is not running")

	// ErrNilOperation is returned by Submit when the operation is nil.
	ErrNilOperation = errors.New("execengine: nil operation submitted")
)

// TaskFailedError wraps the failure raised by an operation during execution.
// It is captured by the worker loop and surfaced only through the Future;
// it never terminates the worker.
type TaskFailedError struct {
	TaskID   string
	TaskName string
	Cause    error
}

func (e *TaskFailedError) Error() string {
	return fmt.Sprintf("execengine: task %s (%s) failed: %v", e.TaskName, e.TaskID, e.Cause)
}

func (e *TaskFailedError) Unwrap() error {
	return e.Cause
}

// WorkerFatalError indicates that a worker's local state is corrupted and the
// worker is unsafe to continue. Operations raise it via AbortWorker; the
// worker reports it to the pool's failure channel and exits, and the pool
// spawns a replacement.
type WorkerFatalError struct {
	WorkerID int
	Reason   string
	Cause    error
}

func (e *WorkerFatalError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("execengine: worker %d lost (%s): %v", e.WorkerID, e.Reason, e.Cause)
	}
	return fmt.Sprintf("execengine: worker %d lost (%s)", e.WorkerID, e.Reason)
}

func (e *WorkerFatalError) Unwrap() error {
	return e.Cause
}

// AbortWorker panics with a WorkerFatalError. An operation calls this when it
// has corrupted worker-local invariants and normal failure capture is not
// safe. The worker ID is filled in by the worker loop that recovers it.
func AbortWorker(reason string, cause error) {
	panic(&WorkerFatalError{WorkerID: -1, Reason: reason, Cause: cause})
}
