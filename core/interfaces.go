package core

import (
	"context"
	"fmt"
	"time"
)

// =============================================================================
// PanicHandler: Interface for handling task panics
// =============================================================================

// PanicHandler is called when an operation panics during execution. The
// panic is captured by the worker loop and surfaced through the Future as a
// task failure; the handler exists for logging and recovery strategies.
//
// Implementations must be thread-safe as they may be called concurrently.
type PanicHandler interface {
	// HandlePanic is called when an operation panics.
	//
	// Parameters:
	// - ctx: The context of the panicked task
	// - poolName: The name of the pool where the panic occurred
	// - workerID: The ID of the worker running the task
	// - panicInfo: The panic value recovered from the operation
	// - stackTrace: The stack trace at the time of panic
	HandlePanic(ctx context.Context, poolName string, workerID int, panicInfo any, stackTrace []byte)
}

// DefaultPanicHandler provides a basic panic handler that logs to stdout.
type DefaultPanicHandler struct{}

// HandlePanic prints panic information to stdout.
func (h *DefaultPanicHandler) HandlePanic(ctx context.Context, poolName string, workerID int, panicInfo any, stackTrace []byte) {
	fmt.Printf("[Worker %d @ %s] Panic: %v\nStack trace:\n%s",
		workerID, poolName, panicInfo, stackTrace)
}

// =============================================================================
// Metrics: Interface for observability and monitoring
// =============================================================================

// Metrics defines the interface for collecting engine metrics.
// Implementations can send metrics to monitoring systems (Prometheus,
// StatsD, etc.).
//
// Methods should be non-blocking and fast to avoid impacting task execution.
type Metrics interface {
	// RecordTaskDuration records how long a task took to execute and the
	// terminal state it reached.
	RecordTaskDuration(poolName string, outcome FutureState, duration time.Duration)

	// RecordTaskPanic records that an operation panicked during execution.
	RecordTaskPanic(poolName string, panicInfo any)

	// RecordTaskRejected records that a submission was declined (queue
	// full or shutdown in progress).
	RecordTaskRejected(poolName string, reason string)

	// RecordTaskCancelled records that a handle reached the cancelled
	// state.
	RecordTaskCancelled(poolName string)

	// RecordWorkerLost records that a worker exited due to an
	// unrecoverable condition.
	RecordWorkerLost(poolName string)

	// RecordQueueDepth records the current queue depth. Called
	// periodically to track queue growth/shrinkage.
	RecordQueueDepth(poolName string, depth int)
}

// NilMetrics provides a no-op metrics implementation. This is the default
// when no metrics interface is provided.
type NilMetrics struct{}

func (m *NilMetrics) RecordTaskDuration(poolName string, outcome FutureState, duration time.Duration) {
}
func (m *NilMetrics) RecordTaskPanic(poolName string, panicInfo any)    {}
func (m *NilMetrics) RecordTaskRejected(poolName string, reason string) {}
func (m *NilMetrics) RecordTaskCancelled(poolName string)               {}
func (m *NilMetrics) RecordWorkerLost(poolName string)                  {}
func (m *NilMetrics) RecordQueueDepth(poolName string, depth int)       {}

// =============================================================================
// RejectedTaskHandler: Interface for handling rejected submissions
// =============================================================================

// RejectedTaskHandler is called when a submission is rejected:
// - The pool is shutting down
// - The queue is full under the Reject admission policy
//
// Implementations must be thread-safe as they may be called concurrently.
type RejectedTaskHandler interface {
	// HandleRejectedTask is called when a submission is rejected.
	//
	// Parameters:
	// - poolName: The name of the pool
	// - taskName: The name of the rejected task
	// - reason: Why the submission was rejected (e.g. "shutdown", "queue full")
	HandleRejectedTask(poolName string, taskName string, reason string)
}

// DefaultRejectedTaskHandler provides a basic handler that logs rejections.
type DefaultRejectedTaskHandler struct{}

// HandleRejectedTask logs the rejected submission.
func (h *DefaultRejectedTaskHandler) HandleRejectedTask(poolName string, taskName string, reason string) {
	fmt.Printf("[Pool %s] Task %s rejected: %s\n", poolName, taskName, reason)
}

// =============================================================================
// WorkerFailureHandler: hook for unrecoverable worker exits
// =============================================================================

// WorkerFailureHandler is invoked when a worker exits because an operation
// reported an unrecoverable condition (see AbortWorker). The pool has
// already decided to spawn a replacement when the handler runs.
type WorkerFailureHandler func(poolName string, err *WorkerFatalError)

// =============================================================================
// DispatcherConfig: Configuration for the Dispatcher
// =============================================================================

// DispatcherConfig holds configuration options for a Dispatcher. All
// handlers are optional; defaults are used when not provided.
type DispatcherConfig struct {
	// QueueCapacity bounds the task queue. Zero or negative means
	// unbounded.
	QueueCapacity int

	// Admission selects the behavior when the queue is full. Defaults to
	// AdmissionBlock.
	Admission AdmissionPolicy

	// PanicHandler is called when an operation panics. Defaults to
	// DefaultPanicHandler.
	PanicHandler PanicHandler

	// Metrics records engine metrics. Defaults to NilMetrics.
	Metrics Metrics

	// RejectedTaskHandler is called when a submission is rejected.
	// Defaults to DefaultRejectedTaskHandler.
	RejectedTaskHandler RejectedTaskHandler

	// Logger receives engine lifecycle events. Defaults to DefaultLogger.
	Logger Logger
}

// DefaultDispatcherConfig returns a config with default handlers, an
// unbounded queue, and blocking admission.
func DefaultDispatcherConfig() *DispatcherConfig {
	return &DispatcherConfig{
		QueueCapacity:       0,
		Admission:           AdmissionBlock,
		PanicHandler:        &DefaultPanicHandler{},
		Metrics:             &NilMetrics{},
		RejectedTaskHandler: &DefaultRejectedTaskHandler{},
		Logger:              NewDefaultLogger(),
	}
}

func (c *DispatcherConfig) applyDefaults() {
	if c.PanicHandler == nil {
		c.PanicHandler = &DefaultPanicHandler{}
	}
	if c.Metrics == nil {
		c.Metrics = &NilMetrics{}
	}
	if c.RejectedTaskHandler == nil {
		c.RejectedTaskHandler = &DefaultRejectedTaskHandler{}
	}
	if c.Logger == nil {
		c.Logger = NewDefaultLogger()
	}
}
