package core

import "time"

// TaskExecutionRecord captures a finished task execution event.
type TaskExecutionRecord struct {
	TaskID     string
	Name       string
	PoolName   string
	WorkerID   int
	Outcome    FutureState
	StartedAt  time.Time
	FinishedAt time.Time
	Duration   time.Duration
	Panicked   bool
}

// PoolStats represents runtime observability state for a worker pool.
type PoolStats struct {
	ID            string
	Workers       int
	Queued        int
	Active        int
	Deadlines     int
	WorkersLost   int64
	QueueCapacity int
	Running       bool
}
