package worker

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"reliefgrid.io/reliefgrid/internal/pkg/logger"
)

func TestMain(m *testing.M) {
	_ = logger.Init("error", "json")
	m.Run()
}

func TestSubmitRunsTask(t *testing.T) {
	pools, err := NewPools(context.Background(), DefaultPoolConfig())
	if err != nil {
		t.Fatalf("NewPools() error = %v", err)
	}
	defer pools.Shutdown()

	var ran atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		if err := pools.Calc.Submit(context.Background(), func(ctx context.Context) {
			defer wg.Done()
			ran.Add(1)
		}); err != nil {
			t.Fatalf("Submit() error = %v", err)
		}
	}
	wg.Wait()

	if got := ran.Load(); got != 10 {
		t.Errorf("tasks ran = %d, want 10", got)
	}
}

func TestSubmitCancelledContext(t *testing.T) {
	pools, err := NewPools(context.Background(), DefaultPoolConfig())
	if err != nil {
		t.Fatalf("NewPools() error = %v", err)
	}
	defer pools.Shutdown()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err = pools.General.Submit(ctx, func(ctx context.Context) {
		t.Error("task should not run with cancelled context")
	})
	if err == nil {
		t.Error("Submit with cancelled context should return ctx error")
	}
}

// A task accepted into a full pool must still run when its context is
// cancelled while it waits for a worker; otherwise a caller waiting on the
// task's completion signal would block forever. The caller contract below
// mirrors real callers: inline fallback when Submit refuses, completion
// owned by the task either way.
func TestQueuedTaskCompletesAfterCancellation(t *testing.T) {
	pools, err := NewPools(context.Background(), PoolConfig{GeneralPoolSize: 1, CalcPoolSize: 1})
	if err != nil {
		t.Fatalf("NewPools() error = %v", err)
	}
	defer pools.Shutdown()

	block := make(chan struct{})
	if err := pools.Calc.Submit(context.Background(), func(context.Context) {
		<-block
	}); err != nil {
		t.Fatalf("Submit blocker: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	completed := make(chan struct{})
	run := func(context.Context) { close(completed) }
	go func() {
		if err := pools.Calc.Submit(ctx, run); err != nil {
			run(ctx)
		}
	}()

	cancel()
	close(block)

	select {
	case <-completed:
	case <-time.After(5 * time.Second):
		t.Fatal("task never completed after context cancellation while queued")
	}
}

func TestMetrics(t *testing.T) {
	pools, err := NewPools(context.Background(), PoolConfig{GeneralPoolSize: 4, CalcPoolSize: 2})
	if err != nil {
		t.Fatalf("NewPools() error = %v", err)
	}
	defer pools.Shutdown()

	m := pools.Metrics()
	calc, ok := m["calc"].(map[string]int)
	if !ok {
		t.Fatalf("metrics missing calc pool: %v", m)
	}
	if calc["cap"] != 2 {
		t.Errorf("calc cap = %d, want 2", calc["cap"])
	}
}
