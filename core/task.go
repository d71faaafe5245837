package core

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Operation is the unit of work. It receives a context that carries the
// task's cancellation signal and returns either a result or an error.
//
// Operations that may block or loop should consult ctx.Done() at safe points
// (after a blocking call returns, at loop boundaries). The engine never
// preempts a running operation; cancellation is cooperative.
type Operation func(ctx context.Context) (any, error)

// Task is an immutable description of submitted work. It is created by
// Submit, never mutated afterwards, and released once its Future reaches a
// terminal state.
type Task struct {
	ID          string
	Name        string
	Operation   Operation
	SubmittedAt time.Time

	// Deadline is the maximum time the task may spend before the engine
	// requests cancellation of its handle. Zero means no deadline.
	Deadline time.Duration
}

// NewTask builds a Task with a fresh ID and the current submission time.
func NewTask(op Operation, name string, deadline time.Duration) *Task {
	id := uuid.NewString()
	if name == "" {
		name = "task-" + id[:8]
	}
	return &Task{
		ID:          id,
		Name:        name,
		Operation:   op,
		SubmittedAt: time.Now(),
		Deadline:    deadline,
	}
}
