// Package execengine provides an in-process concurrent task-execution
// engine: a bounded worker pool that accepts units of work, tracks their
// outcome through a future handle, supports cooperative cancellation, and
// shuts down deterministically without losing or duplicating work.
//
// # Quick Start
//
// Create and start a pool, submit work, observe the outcome through the
// returned handle:
//
//	pool := execengine.New("api-pool", 4)
//	pool.Start(context.Background())
//	defer func() {
//		pool.Shutdown(execengine.ModeGraceful)
//		pool.AwaitTermination(5 * time.Second)
//	}()
//
//	f, err := pool.Submit(func(ctx context.Context) (any, error) {
//		return compute(ctx), nil
//	})
//	if err != nil {
//		// queue full, pool shut down, ...
//	}
//	result, err := f.GetWithTimeout(time.Second)
//
// # Key Concepts
//
// Future: the externally visible proxy for a submitted task's eventual
// outcome. Its state transitions are monotonic with a single terminal state
// (completed, failed, or cancelled); once terminal, the outcome never
// changes.
//
// Admission policy: the pool's queue is bounded; when it is full a
// submission blocks (backpressure), is rejected, or runs on the caller,
// depending on configuration.
//
// Cancellation: cooperative. Cancelling a pending handle prevents its
// operation from ever running. Cancelling a running handle sets a flag and
// optionally cancels the operation's context; the engine never preempts a
// running operation.
//
// Shutdown: graceful mode drains the queue and runs everything to
// completion; immediate mode cancels queued tasks and offers cancellation
// to in-flight ones. Registered shutdown actions run sequentially after the
// workers stop.
//
// # Failure Model
//
// Operation errors and panics are captured by the worker loop and surfaced
// only through the handle; they never terminate a worker. An operation that
// detects corrupted worker-local state calls AbortWorker; the pool is
// notified, the worker exits, and a replacement is spawned after a backoff.
//
// # Observability
//
// The pool exposes queued/active counters, an execution history ring, and a
// Metrics interface; observability/prometheus adapts it to Prometheus
// collectors.
package execengine
