package core

import (
	"context"
	"sync"
	"time"

	"github.com/addrummond/heap"
)

// deadlineEntry pairs a handle with the instant its budget expires.
type deadlineEntry struct {
	dueAt  time.Time
	future *Future
}

func (a *deadlineEntry) Cmp(b *deadlineEntry) int {
	switch {
	case a.dueAt.Before(b.dueAt):
		return -1
	case a.dueAt.After(b.dueAt):
		return 1
	default:
		return 0
	}
}

// DeadlineManager enforces per-task deadlines. A single timer goroutine
// sleeps until the earliest tracked deadline; when it expires, the handle is
// offered cooperative cancellation (with interrupt). Handles that reached a
// terminal state before their deadline are skipped.
type DeadlineManager struct {
	mu     sync.Mutex
	pq     heap.Heap[deadlineEntry, heap.Min]
	count  int
	wakeup chan struct{}
	ctx    context.Context
	cancel context.CancelFunc
}

func NewDeadlineManager() *DeadlineManager {
	ctx, cancel := context.WithCancel(context.Background())
	dm := &DeadlineManager{
		wakeup: make(chan struct{}, 1),
		ctx:    ctx,
		cancel: cancel,
	}
	go dm.loop()
	return dm
}

// Track registers f for deadline enforcement. The budget runs from now, so
// time spent queued counts against it.
func (dm *DeadlineManager) Track(f *Future) {
	if f.task.Deadline <= 0 {
		return
	}

	dm.mu.Lock()
	heap.PushOrderable(&dm.pq, deadlineEntry{
		dueAt:  time.Now().Add(f.task.Deadline),
		future: f,
	})
	dm.count++
	dm.mu.Unlock()

	// Always nudge the loop; recomputing the next wait is cheap.
	select {
	case dm.wakeup <- struct{}{}:
	default:
	}
}

func (dm *DeadlineManager) loop() {
	timer := time.NewTimer(time.Hour)
	timer.Stop()

	for {
		nextRun := dm.calculateNextRun()
		if nextRun == 0 {
			// No tracked deadlines, wait for a wakeup.
			nextRun = 1000 * time.Hour
		}

		timer.Reset(nextRun)

		select {
		case <-dm.ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			dm.expireDue()
		case <-dm.wakeup:
			// New deadline added, recalculate.
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
		}
	}
}

// calculateNextRun determines how long to wait until the earliest deadline.
// Returns 0 when nothing is tracked; a sub-millisecond floor avoids a hot
// loop when a deadline is already due.
func (dm *DeadlineManager) calculateNextRun() time.Duration {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	entry, ok := heap.Peek(&dm.pq)
	if !ok {
		return 0
	}

	wait := time.Until(entry.dueAt)
	if wait < time.Millisecond {
		return time.Millisecond
	}
	return wait
}

// expireDue cancels every handle whose deadline has passed. Cancellation
// runs outside the manager lock.
func (dm *DeadlineManager) expireDue() {
	dm.mu.Lock()

	now := time.Now()
	var due []*Future
	for {
		entry, ok := heap.Peek(&dm.pq)
		if !ok || entry.dueAt.After(now) {
			break
		}
		popped, _ := heap.PopOrderable(&dm.pq)
		dm.count--
		due = append(due, popped.future)
	}

	dm.mu.Unlock()

	for _, f := range due {
		if f.IsTerminal() {
			continue
		}
		// Deadline expiry unblocks a waiting operation.
		f.Cancel(true)
	}
}

// Stop halts enforcement and drops all tracked handles. Their futures are
// left to the shutdown path.
func (dm *DeadlineManager) Stop() {
	dm.cancel()

	dm.mu.Lock()
	dm.pq = heap.Heap[deadlineEntry, heap.Min]{}
	dm.count = 0
	dm.mu.Unlock()
}

// TaskCount returns the number of handles currently tracked.
func (dm *DeadlineManager) TaskCount() int {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	return dm.count
}
