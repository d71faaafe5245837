package core

import (
	"runtime/debug"
	"sync"
	"time"
)

// ShutdownMode selects how the pool transitions from accepting work to
// fully stopped.
type ShutdownMode int

const (
	// ModeGraceful stops admissions, lets queued tasks drain and run to
	// completion, and signals termination once the queue is empty and all
	// workers are idle.
	ModeGraceful ShutdownMode = iota

	// ModeImmediate stops admissions, cancels all queued tasks without
	// executing them, and requests cooperative cancellation of in-flight
	// tasks. Workers are never forcibly killed; callers bound their wait
	// through AwaitTermination.
	ModeImmediate
)

func (m ShutdownMode) String() string {
	if m == ModeImmediate {
		return "immediate"
	}
	return "graceful"
}

// ShutdownAction is an external cleanup callback registered by collaborators.
// Actions run sequentially, in registration order, in a single coordinating
// goroutine after all workers have stopped. They never run concurrently with
// each other.
type ShutdownAction func()

// PoolControl is the surface the coordinator needs from the owning pool.
type PoolControl struct {
	// StopWorkers cancels the worker context; idle workers unblock and
	// running operations observe cancellation through their task context.
	StopWorkers func()

	// JoinWorkers blocks until every worker goroutine has exited.
	JoinWorkers func()

	// InFlightFutures snapshots the handles currently held by workers.
	InFlightFutures func() []*Future
}

// ShutdownCoordinator sequences the transition from "accepting work" to
// "fully stopped". It decides the fate of queued and in-flight tasks
// according to the shutdown mode.
//
// Workers still executing when the process itself is terminated are
// abandoned with no cleanup guarantee; that boundary sits outside the
// coordinator's control.
type ShutdownCoordinator struct {
	dispatcher *Dispatcher
	pool       PoolControl
	logger     Logger

	mu      sync.Mutex
	actions []ShutdownAction

	once       sync.Once
	terminated chan struct{}
}

func NewShutdownCoordinator(dispatcher *Dispatcher, pool PoolControl, logger Logger) *ShutdownCoordinator {
	if logger == nil {
		logger = NewDefaultLogger()
	}
	return &ShutdownCoordinator{
		dispatcher: dispatcher,
		pool:       pool,
		logger:     logger,
		terminated: make(chan struct{}),
	}
}

// RegisterAction adds an external cleanup callback. Actions registered after
// shutdown has begun are not run.
func (c *ShutdownCoordinator) RegisterAction(action ShutdownAction) {
	if action == nil {
		return
	}
	c.mu.Lock()
	c.actions = append(c.actions, action)
	c.mu.Unlock()
}

// Shutdown begins the stop sequence. Only the first call has any effect.
// It returns immediately; use AwaitTermination to bound a wait for the
// fully-stopped state.
func (c *ShutdownCoordinator) Shutdown(mode ShutdownMode) {
	c.once.Do(func() {
		c.logger.Info("shutdown initiated", F("mode", mode.String()))

		switch mode {
		case ModeImmediate:
			cancelled := c.dispatcher.Abort()
			if cancelled > 0 {
				c.logger.Info("queued tasks cancelled", F("count", cancelled))
			}
			// Offer cancellation to whatever is in flight, then stop the
			// workers. Idle workers unblock; busy workers finish their
			// current operation on their own schedule.
			for _, f := range c.pool.InFlightFutures() {
				f.Cancel(true)
			}
			c.pool.StopWorkers()
		default:
			// Graceful: workers drain the queue and exit on their own
			// once GetWork reports it drained.
			c.dispatcher.CloseIntake()
		}

		go c.finish()
	})
}

// finish waits for the workers and then runs the registered actions
// sequentially. Termination is signaled only after the last action returns.
func (c *ShutdownCoordinator) finish() {
	c.pool.JoinWorkers()

	c.mu.Lock()
	actions := c.actions
	c.actions = nil
	c.mu.Unlock()

	for i, action := range actions {
		c.runAction(i, action)
	}

	close(c.terminated)
}

// runAction invokes one cleanup action, containing any panic so the
// remaining actions still run.
func (c *ShutdownCoordinator) runAction(index int, action ShutdownAction) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("shutdown action panicked",
				F("index", index), F("panic", r), F("stack", string(debug.Stack())))
		}
	}()
	action()
}

// AwaitTermination blocks until the pool is fully stopped (zero active
// workers, empty queue, all shutdown actions done) or the timeout elapses.
// It returns true when fully stopped.
func (c *ShutdownCoordinator) AwaitTermination(timeout time.Duration) bool {
	select {
	case <-c.terminated:
		return true
	default:
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-c.terminated:
		return true
	case <-timer.C:
		return false
	}
}

// Terminated returns a channel closed once the pool is fully stopped.
func (c *ShutdownCoordinator) Terminated() <-chan struct{} {
	return c.terminated
}
