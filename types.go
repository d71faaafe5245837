package execengine

import "github.com/taskforge/go-exec-engine/core"

// Re-export commonly used types from the core package for convenience.
// This allows users to import only the execengine package for most use cases.

// Operation is the unit of work (Closure)
type Operation = core.Operation

// Task is the immutable description of submitted work
type Task = core.Task

// Future is the handle for a submitted task's eventual outcome
type Future = core.Future

// FutureState identifies where a handle is in its lifecycle
type FutureState = core.FutureState

// AdmissionPolicy selects full-queue behavior
type AdmissionPolicy = core.AdmissionPolicy

// ShutdownMode selects graceful or immediate shutdown
type ShutdownMode = core.ShutdownMode

// ShutdownAction is an external cleanup callback
type ShutdownAction = core.ShutdownAction

// ResultCache is the keyed memoization layer
type ResultCache = core.ResultCache

// TaskFailedError wraps an operation failure
type TaskFailedError = core.TaskFailedError

// WorkerFatalError reports an unrecoverable worker condition
type WorkerFatalError = core.WorkerFatalError

// State constants
const (
	StatePending   FutureState = core.StatePending
	StateRunning   FutureState = core.StateRunning
	StateCompleted FutureState = core.StateCompleted
	StateFailed    FutureState = core.StateFailed
	StateCancelled FutureState = core.StateCancelled
)

// Admission policy constants
const (
	AdmissionBlock      AdmissionPolicy = core.AdmissionBlock
	AdmissionReject     AdmissionPolicy = core.AdmissionReject
	AdmissionCallerRuns AdmissionPolicy = core.AdmissionCallerRuns
)

// Shutdown mode constants
const (
	ModeGraceful  ShutdownMode = core.ModeGraceful
	ModeImmediate ShutdownMode = core.ModeImmediate
)

// Sentinel errors
var (
	ErrTimedOut       = core.ErrTimedOut
	ErrCancelled      = core.ErrCancelled
	ErrQueueFull      = core.ErrQueueFull
	ErrPoolShutdown   = core.ErrPoolShutdown
	ErrPoolNotRunning = core.ErrPoolNotRunning
	ErrNilOperation   = core.ErrNilOperation
)

// NewResultCache creates an empty result cache.
var NewResultCache = core.NewResultCache

// AbortWorker is called by an operation to declare its worker unsafe to
// continue.
var AbortWorker = core.AbortWorker
