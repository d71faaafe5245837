package execengine

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/taskforge/go-exec-engine/core"
)

// Pool manages a fixed set of worker goroutines pulling from one shared
// bounded queue. Submitters are never blocked by worker execution except
// when the queue is full under the blocking admission policy.
type Pool struct {
	id         string
	workers    int
	dispatcher *core.Dispatcher
	shutdown   *core.ShutdownCoordinator
	history    *core.ExecutionHistory
	logger     core.Logger

	wg        sync.WaitGroup
	ctx       context.Context
	cancel    context.CancelFunc
	running   bool
	joining   bool // set once shutdown starts waiting on wg
	runningMu sync.RWMutex

	// inFlight maps worker ID to the handle it is currently executing.
	// Workers own their slot; the map guard only covers the map itself.
	inFlightMu sync.Mutex
	inFlight   map[int]*core.Future

	failureCh       chan *core.WorkerFatalError
	onWorkerFailure core.WorkerFailureHandler
	workersLost     atomic.Int64
	nextWorkerID    atomic.Int64

	restartInitial time.Duration
	restartMax     time.Duration
}

// New creates a pool with the given ID and worker count. Options configure
// queue capacity, admission policy, handlers, and observability; defaults
// come from core.DefaultDispatcherConfig.
func New(id string, workers int, opts ...Option) *Pool {
	if workers < 1 {
		workers = 1
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}

	p := &Pool{
		id:             id,
		workers:        workers,
		dispatcher:     core.NewDispatcher(id, workers, o.dispatcherConfig),
		history:        core.NewExecutionHistory(o.historyCapacity),
		inFlight:       make(map[int]*core.Future),
		failureCh:      make(chan *core.WorkerFatalError, workers),
		restartInitial: o.restartInitial,
		restartMax:     o.restartMax,
	}
	p.logger = p.dispatcher.GetLogger()
	p.onWorkerFailure = o.onWorkerFailure
	p.nextWorkerID.Store(int64(workers) - 1)

	p.shutdown = core.NewShutdownCoordinator(p.dispatcher, core.PoolControl{
		StopWorkers:     p.stopWorkers,
		JoinWorkers:     p.joinWorkers,
		InFlightFutures: p.inFlightFutures,
	}, p.logger)

	return p
}

// Start launches the worker goroutines and the worker supervisor. Calling
// Start on a running pool is a no-op.
func (p *Pool) Start(ctx context.Context) {
	p.runningMu.Lock()
	defer p.runningMu.Unlock()

	if p.running {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}

	p.ctx, p.cancel = context.WithCancel(ctx)
	p.running = true

	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.workerLoop(i, p.ctx)
	}
	go p.superviseWorkers(p.ctx)

	p.logger.Info("pool started", core.F("pool", p.id), core.F("workers", p.workers))
}

// Submit creates a Future for op and routes it through the admission
// policy. The handle is returned immediately; the outcome is observed via
// Future.Get or Future.Done.
func (p *Pool) Submit(op core.Operation, opts ...SubmitOption) (*core.Future, error) {
	return p.submit(op, false, opts...)
}

// TrySubmit is Submit with the Reject admission policy regardless of how
// the pool was configured: it never blocks and never runs the task on the
// caller.
func (p *Pool) TrySubmit(op core.Operation, opts ...SubmitOption) (*core.Future, error) {
	return p.submit(op, true, opts...)
}

func (p *Pool) submit(op core.Operation, tryOnly bool, opts ...SubmitOption) (*core.Future, error) {
	if op == nil {
		return nil, core.ErrNilOperation
	}

	p.runningMu.RLock()
	running := p.running
	ctx := p.ctx
	p.runningMu.RUnlock()
	if !running {
		return nil, core.ErrPoolNotRunning
	}

	so := defaultSubmitOptions()
	for _, opt := range opts {
		opt(so)
	}

	task := core.NewTask(op, so.name, so.deadline)
	f := core.NewFuture(ctx, task)

	if tryOnly {
		if err := p.dispatcher.TryAdmit(f); err != nil {
			return nil, err
		}
		return f, nil
	}

	inline, err := p.dispatcher.Admit(so.submitCtx, f)
	if err != nil {
		return nil, err
	}
	if inline {
		// Caller-runs backpressure: the submitter's goroutine executes
		// the task. A fatal report here does not kill any worker.
		p.runTask(-1, f)
	}
	return f, nil
}

// Shutdown begins the stop sequence in the given mode. It returns
// immediately; use AwaitTermination to wait for the fully-stopped state.
func (p *Pool) Shutdown(mode core.ShutdownMode) {
	p.shutdown.Shutdown(mode)
}

// AwaitTermination blocks until the pool reports zero active workers, an
// empty queue, and completed shutdown actions, or the timeout elapses.
func (p *Pool) AwaitTermination(timeout time.Duration) bool {
	return p.shutdown.AwaitTermination(timeout)
}

// RegisterShutdownAction registers an external cleanup callback. Actions run
// sequentially, in registration order, after all workers have stopped.
func (p *Pool) RegisterShutdownAction(action core.ShutdownAction) {
	p.shutdown.RegisterAction(action)
}

// OnWorkerFailure installs the hook invoked when a worker exits due to an
// unrecoverable condition. Set it before Start.
func (p *Pool) OnWorkerFailure(handler core.WorkerFailureHandler) {
	p.onWorkerFailure = handler
}

// ID returns the pool's identifier.
func (p *Pool) ID() string {
	return p.id
}

// IsRunning reports whether Start has been called and shutdown has not yet
// completed.
func (p *Pool) IsRunning() bool {
	p.runningMu.RLock()
	defer p.runningMu.RUnlock()
	return p.running
}

func (p *Pool) WorkerCount() int       { return p.workers }
func (p *Pool) QueuedTaskCount() int   { return p.dispatcher.QueuedTaskCount() }
func (p *Pool) ActiveTaskCount() int   { return p.dispatcher.ActiveTaskCount() }
func (p *Pool) DeadlineTaskCount() int { return p.dispatcher.DeadlineTaskCount() }
func (p *Pool) WorkersLost() int64     { return p.workersLost.Load() }

// Stats returns a snapshot of the pool's observable state.
func (p *Pool) Stats() core.PoolStats {
	return core.PoolStats{
		ID:            p.id,
		Workers:       p.workers,
		Queued:        p.dispatcher.QueuedTaskCount(),
		Active:        p.dispatcher.ActiveTaskCount(),
		Deadlines:     p.dispatcher.DeadlineTaskCount(),
		WorkersLost:   p.workersLost.Load(),
		QueueCapacity: p.dispatcher.QueueCapacity(),
		Running:       p.IsRunning(),
	}
}

// RecentExecutions returns up to limit recently finished executions, newest
// first.
func (p *Pool) RecentExecutions(limit int) []core.TaskExecutionRecord {
	return p.history.Recent(limit)
}

// =============================================================================
// Worker loop
// =============================================================================

// workerLoop is the main loop for each worker. Workers pull handles from the
// dispatcher, execute them, and publish outcomes through the handle. The
// loop exits when the queue reports drained (graceful shutdown), when the
// worker context is cancelled (immediate shutdown), or when an operation
// reports an unrecoverable worker condition.
func (p *Pool) workerLoop(id int, ctx context.Context) {
	defer p.wg.Done()
	stopCh := ctx.Done()

	for {
		f, ok := p.dispatcher.GetWork(stopCh)
		if !ok {
			return
		}

		if fatal := p.runTask(id, f); fatal != nil {
			fatal.WorkerID = id
			p.reportWorkerFailure(fatal)
			return
		}
	}
}

// runTask executes one handle on the calling goroutine. It returns a
// non-nil WorkerFatalError only when the operation declared the worker
// unsafe to continue; every other failure is captured and surfaced through
// the handle.
func (p *Pool) runTask(workerID int, f *core.Future) (fatal *core.WorkerFatalError) {
	metrics := p.dispatcher.GetMetrics()

	// Cancelled while queued: the operation never runs.
	if !f.TransitionToRunning() {
		metrics.RecordTaskCancelled(p.id)
		return nil
	}

	p.dispatcher.OnTaskStart()
	p.setInFlight(workerID, f)
	defer func() {
		p.clearInFlight(workerID)
		p.dispatcher.OnTaskEnd()
	}()

	task := f.Task()
	start := time.Now()

	var result any
	var err error
	panicked := false

	func() {
		defer func() {
			if r := recover(); r != nil {
				if wf, ok := r.(*core.WorkerFatalError); ok {
					fatal = wf
					return
				}
				panicked = true
				stack := debug.Stack()
				p.dispatcher.GetPanicHandler().HandlePanic(f.Context(), p.id, workerID, r, stack)
				metrics.RecordTaskPanic(p.id, r)
				err = fmt.Errorf("panic: %v", r)
			}
		}()
		result, err = task.Operation(f.Context())
	}()

	if fatal != nil {
		// The worker is going down; the in-flight task fails rather than
		// being re-run, keeping execution at-most-once.
		f.FinishFailed(fatal)
	} else {
		f.Finish(result, err)
	}

	outcome := f.State()
	finished := time.Now()
	metrics.RecordTaskDuration(p.id, outcome, finished.Sub(start))
	if outcome == core.StateCancelled {
		metrics.RecordTaskCancelled(p.id)
	}

	p.history.Add(core.TaskExecutionRecord{
		TaskID:     task.ID,
		Name:       task.Name,
		PoolName:   p.id,
		WorkerID:   workerID,
		Outcome:    outcome,
		StartedAt:  start,
		FinishedAt: finished,
		Duration:   finished.Sub(start),
		Panicked:   panicked,
	})

	return fatal
}

// =============================================================================
// Worker supervision
// =============================================================================

// reportWorkerFailure records a lost worker and notifies the supervisor,
// which decides on a replacement. Never called for recoverable task
// failures.
func (p *Pool) reportWorkerFailure(fatal *core.WorkerFatalError) {
	p.workersLost.Add(1)
	p.dispatcher.GetMetrics().RecordWorkerLost(p.id)
	p.logger.Error("worker lost",
		core.F("pool", p.id),
		core.F("worker", fatal.WorkerID),
		core.F("reason", fatal.Reason))

	select {
	case p.failureCh <- fatal:
	case <-p.ctx.Done():
	}
}

// superviseWorkers replaces lost workers. Replacements are spawned after an
// exponential backoff so a persistently failing workload cannot hot-loop
// worker creation; the backoff resets after a quiet period.
func (p *Pool) superviseWorkers(ctx context.Context) {
	bo := p.newRestartBackOff()
	lastFailure := time.Time{}

	for {
		select {
		case <-ctx.Done():
			return
		case fatal := <-p.failureCh:
			if handler := p.onWorkerFailure; handler != nil {
				handler(p.id, fatal)
			}

			if !lastFailure.IsZero() && time.Since(lastFailure) > time.Minute {
				bo = p.newRestartBackOff()
			}
			lastFailure = time.Now()

			wait := bo.NextBackOff()
			select {
			case <-ctx.Done():
				return
			case <-time.After(wait):
			}

			// Once shutdown has started waiting on the worker group, no
			// replacement may be added: wg.Add would race the Wait, and a
			// late worker could run work after the pool reported stopped.
			p.runningMu.RLock()
			spawn := !p.joining && ctx.Err() == nil
			if spawn {
				p.wg.Add(1)
			}
			p.runningMu.RUnlock()
			if !spawn {
				continue
			}

			id := int(p.nextWorkerID.Add(1))
			go p.workerLoop(id, ctx)
			p.logger.Info("worker replaced",
				core.F("pool", p.id), core.F("worker", id))
		}
	}
}

func (p *Pool) newRestartBackOff() *backoff.ExponentialBackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = p.restartInitial
	bo.MaxInterval = p.restartMax
	return bo
}

// =============================================================================
// In-flight tracking and shutdown control surface
// =============================================================================

// setInFlight records the handle a worker is executing. Caller-runs inline
// executions use a negative worker ID and are not tracked: the submitter's
// goroutine is not the pool's to stop.
func (p *Pool) setInFlight(workerID int, f *core.Future) {
	if workerID < 0 {
		return
	}
	p.inFlightMu.Lock()
	p.inFlight[workerID] = f
	p.inFlightMu.Unlock()
}

func (p *Pool) clearInFlight(workerID int) {
	if workerID < 0 {
		return
	}
	p.inFlightMu.Lock()
	delete(p.inFlight, workerID)
	p.inFlightMu.Unlock()
}

func (p *Pool) inFlightFutures() []*core.Future {
	p.inFlightMu.Lock()
	defer p.inFlightMu.Unlock()
	out := make([]*core.Future, 0, len(p.inFlight))
	for _, f := range p.inFlight {
		out = append(out, f)
	}
	return out
}

// context returns the pool's lifetime context, the parent for task contexts.
func (p *Pool) context() context.Context {
	p.runningMu.RLock()
	defer p.runningMu.RUnlock()
	return p.ctx
}

func (p *Pool) stopWorkers() {
	p.runningMu.RLock()
	cancel := p.cancel
	p.runningMu.RUnlock()
	if cancel != nil {
		cancel()
	}
}

// joinWorkers waits for every worker to exit, then tears down the supervisor
// and marks the pool stopped.
func (p *Pool) joinWorkers() {
	p.runningMu.Lock()
	p.joining = true
	p.runningMu.Unlock()

	p.wg.Wait()
	p.stopWorkers()

	// With every worker gone, anything still queued can no longer run.
	// After a normal drain the queue is empty and this is a no-op; if the
	// last worker was lost mid-shutdown the leftovers are cancelled here so
	// no handle stays pending forever.
	p.dispatcher.Abort()

	p.runningMu.Lock()
	p.running = false
	p.runningMu.Unlock()

	p.logger.Info("pool stopped", core.F("pool", p.id))
}

// =============================================================================
// Global Pool Helper (Singleton)
// =============================================================================

var (
	globalPool *Pool
	globalMu   sync.Mutex
)

// InitGlobalPool initializes and starts the process-wide pool with the
// specified number of workers.
func InitGlobalPool(workers int, opts ...Option) {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalPool != nil {
		return
	}

	globalPool = New("global-pool", workers, opts...)
	globalPool.Start(context.Background())
}

// GetGlobalPool returns the global pool instance. It panics if
// InitGlobalPool has not been called.
func GetGlobalPool() *Pool {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalPool == nil {
		panic("global pool not initialized. Call InitGlobalPool() first.")
	}
	return globalPool
}

// ShutdownGlobalPool gracefully stops the global pool and waits for
// termination.
func ShutdownGlobalPool(timeout time.Duration) bool {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalPool == nil {
		return true
	}
	globalPool.Shutdown(core.ModeGraceful)
	ok := globalPool.AwaitTermination(timeout)
	globalPool = nil
	return ok
}
