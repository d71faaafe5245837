package execengine

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/taskforge/go-exec-engine/core"
)

func TestSerialExecutor_RunsInSubmissionOrder(t *testing.T) {
	// Given a serial executor on a pool with plenty of workers
	p := newTestPool(t, 4)
	defer shutdownTestPool(t, p)
	s := NewSerialExecutor(p)

	// When many operations are submitted
	var mu sync.Mutex
	var order []int
	futures := make([]*core.Future, 20)
	for i := range futures {
		i := i
		f, err := s.Submit(func(ctx context.Context) (any, error) {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			return i, nil
		})
		if err != nil {
			t.Fatalf("Submit %d failed: %v", i, err)
		}
		futures[i] = f
	}

	// Then they all complete in exact submission order
	for i, f := range futures {
		v, err := f.GetWithTimeout(5 * time.Second)
		if err != nil {
			t.Fatalf("Get %d failed: %v", i, err)
		}
		if v != i {
			t.Fatalf("Get %d returned %v", i, v)
		}
	}

	mu.Lock()
	defer mu.Unlock()
	for i, got := range order {
		if got != i {
			t.Fatalf("execution order %v is not submission order", order)
		}
	}
}

func TestSerialExecutor_NeverRunsConcurrently(t *testing.T) {
	p := newTestPool(t, 4)
	defer shutdownTestPool(t, p)
	s := NewSerialExecutor(p)

	var active, maxActive atomic.Int32
	futures := make([]*core.Future, 30)
	for i := range futures {
		f, err := s.Submit(func(ctx context.Context) (any, error) {
			n := active.Add(1)
			if prev := maxActive.Load(); n > prev {
				maxActive.Store(n)
			}
			time.Sleep(time.Millisecond)
			active.Add(-1)
			return nil, nil
		})
		if err != nil {
			t.Fatalf("Submit %d failed: %v", i, err)
		}
		futures[i] = f
	}

	for i, f := range futures {
		if _, err := f.GetWithTimeout(10 * time.Second); err != nil {
			t.Fatalf("Get %d failed: %v", i, err)
		}
	}
	if got := maxActive.Load(); got != 1 {
		t.Fatalf("observed %d concurrent serialized operations, want 1", got)
	}
}

func TestSerialExecutor_CancelPendingSkips(t *testing.T) {
	p := newTestPool(t, 2)
	defer shutdownTestPool(t, p)
	s := NewSerialExecutor(p)

	release := make(chan struct{})
	first, err := s.Submit(blockingOp(release))
	if err != nil {
		t.Fatalf("Submit first failed: %v", err)
	}

	ran := atomic.Bool{}
	second, err := s.Submit(func(ctx context.Context) (any, error) {
		ran.Store(true)
		return nil, nil
	})
	if err != nil {
		t.Fatalf("Submit second failed: %v", err)
	}

	if !second.Cancel(false) {
		t.Fatal("Cancel of a pending serial handle returned false")
	}

	close(release)
	if _, err := first.GetWithTimeout(5 * time.Second); err != nil {
		t.Fatalf("first failed: %v", err)
	}
	if _, err := second.GetWithTimeout(5 * time.Second); err != core.ErrCancelled {
		t.Fatalf("Get on cancelled handle returned %v, want ErrCancelled", err)
	}
	if ran.Load() {
		t.Fatal("cancelled serialized operation executed")
	}
}

func TestSerialExecutor_PanicSurfacesAsFailure(t *testing.T) {
	p := newTestPool(t, 1)
	defer shutdownTestPool(t, p)
	s := NewSerialExecutor(p)

	f, err := s.Submit(func(ctx context.Context) (any, error) {
		panic("serial boom")
	})
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if _, err := f.GetWithTimeout(5 * time.Second); err == nil {
		t.Fatal("Get returned no error for a panicked operation")
	}
	if f.State() != core.StateFailed {
		t.Fatalf("state = %s, want failed", f.State())
	}

	// The stream keeps flowing past the panic.
	after, err := s.Submit(noopOp)
	if err != nil {
		t.Fatalf("Submit after panic failed: %v", err)
	}
	if _, err := after.GetWithTimeout(5 * time.Second); err != nil {
		t.Fatalf("operation after panic failed: %v", err)
	}
}

func TestSerialExecutor_CloseCancelsPending(t *testing.T) {
	p := newTestPool(t, 1)
	defer shutdownTestPool(t, p)
	s := NewSerialExecutor(p)

	release := make(chan struct{})
	defer close(release)
	if _, err := s.Submit(blockingOp(release)); err != nil {
		t.Fatalf("Submit blocker failed: %v", err)
	}

	pending, err := s.Submit(noopOp)
	if err != nil {
		t.Fatalf("Submit pending failed: %v", err)
	}

	s.Close()

	if _, err := pending.GetWithTimeout(5 * time.Second); err != core.ErrCancelled {
		t.Fatalf("Get on orphaned handle returned %v, want ErrCancelled", err)
	}
	if _, err := s.Submit(noopOp); err != core.ErrPoolShutdown {
		t.Fatalf("Submit after Close returned %v, want ErrPoolShutdown", err)
	}
}

func TestSerialExecutor_SubmitAfterCloseLeavesNoTrace(t *testing.T) {
	p := newTestPool(t, 1)
	defer shutdownTestPool(t, p)
	s := NewSerialExecutor(p)
	s.Close()

	// A deadline-carrying submission refused by a closed executor must not
	// leave anything behind: no pending serial item, no tracked budget.
	if _, err := s.Submit(noopOp, WithDeadline(time.Minute)); err != core.ErrPoolShutdown {
		t.Fatalf("Submit after Close returned %v, want ErrPoolShutdown", err)
	}
	if got := s.PendingCount(); got != 0 {
		t.Fatalf("PendingCount() = %d after refused submission, want 0", got)
	}
	if got := p.DeadlineTaskCount(); got != 0 {
		t.Fatalf("DeadlineTaskCount() = %d after refused submission, want 0", got)
	}
}

func TestSerialExecutor_SubmitOnStoppedPool(t *testing.T) {
	p := New("stopped", 1, WithLogger(core.NewNoOpLogger()))
	s := NewSerialExecutor(p)

	if _, err := s.Submit(noopOp); err != core.ErrPoolNotRunning {
		t.Fatalf("Submit returned %v, want ErrPoolNotRunning", err)
	}
}
