package execengine

import (
	"context"
	"time"

	"github.com/taskforge/go-exec-engine/core"
)

const (
	defaultRestartInitial = 100 * time.Millisecond
	defaultRestartMax     = 5 * time.Second
)

type options struct {
	dispatcherConfig *core.DispatcherConfig
	historyCapacity  int
	onWorkerFailure  core.WorkerFailureHandler
	restartInitial   time.Duration
	restartMax       time.Duration
}

func defaultOptions() *options {
	return &options{
		dispatcherConfig: core.DefaultDispatcherConfig(),
		historyCapacity:  0, // core default
		restartInitial:   defaultRestartInitial,
		restartMax:       defaultRestartMax,
	}
}

// Option configures a Pool at construction time.
type Option func(*options)

// WithQueueCapacity bounds the task queue. Zero or negative means
// unbounded.
func WithQueueCapacity(capacity int) Option {
	return func(o *options) { o.dispatcherConfig.QueueCapacity = capacity }
}

// WithAdmissionPolicy selects the behavior when the queue is full.
func WithAdmissionPolicy(policy core.AdmissionPolicy) Option {
	return func(o *options) { o.dispatcherConfig.Admission = policy }
}

// WithPanicHandler installs a custom panic handler.
func WithPanicHandler(h core.PanicHandler) Option {
	return func(o *options) { o.dispatcherConfig.PanicHandler = h }
}

// WithMetrics installs a metrics collector.
func WithMetrics(m core.Metrics) Option {
	return func(o *options) { o.dispatcherConfig.Metrics = m }
}

// WithRejectedTaskHandler installs a custom rejection handler.
func WithRejectedTaskHandler(h core.RejectedTaskHandler) Option {
	return func(o *options) { o.dispatcherConfig.RejectedTaskHandler = h }
}

// WithLogger installs a custom logger.
func WithLogger(l core.Logger) Option {
	return func(o *options) { o.dispatcherConfig.Logger = l }
}

// WithHistoryCapacity sizes the execution history ring.
func WithHistoryCapacity(capacity int) Option {
	return func(o *options) { o.historyCapacity = capacity }
}

// WithWorkerFailureHandler installs the hook invoked when a worker exits
// due to an unrecoverable condition.
func WithWorkerFailureHandler(h core.WorkerFailureHandler) Option {
	return func(o *options) { o.onWorkerFailure = h }
}

// WithWorkerRestartBackoff tunes the exponential backoff applied before a
// lost worker is replaced.
func WithWorkerRestartBackoff(initial, max time.Duration) Option {
	return func(o *options) {
		if initial > 0 {
			o.restartInitial = initial
		}
		if max > 0 {
			o.restartMax = max
		}
	}
}

// =============================================================================
// Submit options
// =============================================================================

type submitOptions struct {
	name      string
	deadline  time.Duration
	submitCtx context.Context
}

func defaultSubmitOptions() *submitOptions {
	return &submitOptions{submitCtx: context.Background()}
}

// SubmitOption configures a single submission.
type SubmitOption func(*submitOptions)

// WithName attaches a diagnostic name to the task, used in logs, metrics,
// and the execution history.
func WithName(name string) SubmitOption {
	return func(o *submitOptions) { o.name = name }
}

// WithDeadline bounds the task's total time from admission. When the budget
// expires before the handle is terminal, the engine requests cooperative
// cancellation with interrupt.
func WithDeadline(d time.Duration) SubmitOption {
	return func(o *submitOptions) { o.deadline = d }
}

// WithSubmitContext bounds the submitter's wait under the blocking
// admission policy. It does not affect the task's own cancellation.
func WithSubmitContext(ctx context.Context) SubmitOption {
	return func(o *submitOptions) {
		if ctx != nil {
			o.submitCtx = ctx
		}
	}
}
