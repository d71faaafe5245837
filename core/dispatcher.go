package core

import (
	"context"
	"sync/atomic"
)

// Dispatcher sits between submitters and workers. It owns the bounded queue
// and the deadline manager, applies the admission policy, tracks queued and
// active counts, and routes rejections to the configured handler.
//
// Side effects of execution are observable only through Future transitions
// and the pool's worker-failure channel; the dispatcher exposes no other
// mutable state.
type Dispatcher struct {
	poolName  string
	queue     *BoundedTaskQueue
	deadlines *DeadlineManager
	admission AdmissionPolicy

	metricActive int32 // executing in a worker

	panicHandler        PanicHandler
	metrics             Metrics
	rejectedTaskHandler RejectedTaskHandler
	logger              Logger

	// Lifecycle
	shuttingDown int32 // atomic flag
}

// NewDispatcher creates a dispatcher for a pool with workerCount workers.
func NewDispatcher(poolName string, workerCount int, config *DispatcherConfig) *Dispatcher {
	if config == nil {
		config = DefaultDispatcherConfig()
	}
	config.applyDefaults()

	return &Dispatcher{
		poolName:            poolName,
		queue:               NewBoundedTaskQueue(config.QueueCapacity, workerCount*2),
		deadlines:           NewDeadlineManager(),
		admission:           config.Admission,
		panicHandler:        config.PanicHandler,
		metrics:             config.Metrics,
		rejectedTaskHandler: config.RejectedTaskHandler,
		logger:              config.Logger,
	}
}

// Admit routes a new handle into the queue according to the admission
// policy. The returned inline flag is true when the caller-runs policy
// decided that the submitter's goroutine must execute the task itself.
func (d *Dispatcher) Admit(ctx context.Context, f *Future) (inline bool, err error) {
	if atomic.LoadInt32(&d.shuttingDown) == 1 {
		d.reject(f, "shutdown")
		d.release(f)
		return false, ErrPoolShutdown
	}

	switch d.admission {
	case AdmissionBlock:
		err = d.queue.Push(ctx, f)
	case AdmissionReject:
		err = d.queue.TryPush(f)
	case AdmissionCallerRuns:
		err = d.queue.TryPush(f)
		if err == ErrQueueFull {
			// The submitter's goroutine runs it; the budget applies there
			// too.
			d.TrackDeadline(f)
			return true, nil
		}
	default:
		err = d.queue.Push(ctx, f)
	}

	switch err {
	case nil:
		// Deadline tracking starts once the queue holds the handle, so
		// queue time counts against the budget. A handle the engine never
		// accepted is never tracked.
		d.TrackDeadline(f)
		d.metrics.RecordQueueDepth(d.poolName, d.queue.Len())
		return false, nil
	case ErrQueueFull:
		d.reject(f, "queue full")
		d.release(f)
		return false, err
	case ErrPoolShutdown:
		d.reject(f, "shutdown")
		d.release(f)
		return false, err
	default:
		// Submitter's context expired while blocked on a full queue.
		d.release(f)
		return false, err
	}
}

// TryAdmit is Admit under the Reject policy regardless of configuration.
func (d *Dispatcher) TryAdmit(f *Future) error {
	if atomic.LoadInt32(&d.shuttingDown) == 1 {
		d.reject(f, "shutdown")
		d.release(f)
		return ErrPoolShutdown
	}
	err := d.queue.TryPush(f)
	switch err {
	case ErrQueueFull:
		d.reject(f, "queue full")
		d.release(f)
	case ErrPoolShutdown:
		d.reject(f, "shutdown")
		d.release(f)
	case nil:
		d.TrackDeadline(f)
		d.metrics.RecordQueueDepth(d.poolName, d.queue.Len())
	}
	return err
}

// release finalizes a handle the engine did not accept. The caller only sees
// the admission error; finishing the handle frees its task context now
// instead of at the pool's end of life.
func (d *Dispatcher) release(f *Future) {
	f.FinishCancelled()
}

// TrackDeadline registers f with the deadline manager when its task carries
// a budget. Used by executors that route work around the queue.
func (d *Dispatcher) TrackDeadline(f *Future) {
	if f.task.Deadline > 0 {
		d.deadlines.Track(f)
	}
}

// GetWork is called by workers. It blocks until a handle is available or
// returns false once the queue is drained after shutdown or stopCh fires.
func (d *Dispatcher) GetWork(stopCh <-chan struct{}) (*Future, bool) {
	return d.queue.GetWork(stopCh)
}

// CloseIntake stops admissions while letting the queue drain. Used by
// graceful shutdown.
func (d *Dispatcher) CloseIntake() {
	atomic.StoreInt32(&d.shuttingDown, 1)
	d.deadlines.Stop()
	d.queue.CloseIntake()
}

// Abort stops admissions and cancels every queued handle. Used by immediate
// shutdown. It returns the number of handles cancelled.
func (d *Dispatcher) Abort() int {
	d.CloseIntake()

	drained := d.queue.Drain()
	for _, f := range drained {
		f.FinishCancelled()
		d.metrics.RecordTaskCancelled(d.poolName)
	}
	return len(drained)
}

func (d *Dispatcher) reject(f *Future, reason string) {
	d.rejectedTaskHandler.HandleRejectedTask(d.poolName, f.task.Name, reason)
	d.metrics.RecordTaskRejected(d.poolName, reason)
}

// Metrics
func (d *Dispatcher) QueuedTaskCount() int { return d.queue.Len() }
func (d *Dispatcher) QueueCapacity() int   { return d.queue.Capacity() }
func (d *Dispatcher) ActiveTaskCount() int { return int(atomic.LoadInt32(&d.metricActive)) }
func (d *Dispatcher) DeadlineTaskCount() int {
	return d.deadlines.TaskCount()
}

func (d *Dispatcher) OnTaskStart() {
	atomic.AddInt32(&d.metricActive, 1)
}

func (d *Dispatcher) OnTaskEnd() {
	atomic.AddInt32(&d.metricActive, -1)
}

// GetPanicHandler returns the panic handler for this dispatcher.
func (d *Dispatcher) GetPanicHandler() PanicHandler {
	return d.panicHandler
}

// GetMetrics returns the metrics collector for this dispatcher.
func (d *Dispatcher) GetMetrics() Metrics {
	return d.metrics
}

// GetLogger returns the logger for this dispatcher.
func (d *Dispatcher) GetLogger() Logger {
	return d.logger
}

// PoolName returns the name of the owning pool.
func (d *Dispatcher) PoolName() string {
	return d.poolName
}
