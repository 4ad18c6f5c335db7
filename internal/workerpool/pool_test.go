package workerpool

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestPoolRunsJobs(t *testing.T) {
	p := New(4, nil)
	defer p.Close()

	var count atomic.Int64
	for i := 0; i < 10; i++ {
		err := p.Submit(context.Background(), func(ctx context.Context) {
			count.Add(1)
		})
		if err != nil {
			t.Fatalf("Submit: %v", err)
		}
	}
	p.Close()
	if got := count.Load(); got != 10 {
		t.Errorf("ran %d jobs, want 10", got)
	}
}

func TestPoolBoundsConcurrency(t *testing.T) {
	const size = 2
	p := New(size, nil)
	defer p.Close()

	var inflight, peak atomic.Int64
	var wg sync.WaitGroup
	wg.Add(8)
	for i := 0; i < 8; i++ {
		err := p.Submit(context.Background(), func(ctx context.Context) {
			defer wg.Done()
			n := inflight.Add(1)
			for {
				old := peak.Load()
				if n <= old || peak.CompareAndSwap(old, n) {
					break
				}
			}
			time.Sleep(10 * time.Millisecond)
			inflight.Add(-1)
		})
		if err != nil {
			t.Fatalf("Submit: %v", err)
		}
	}
	wg.Wait()
	if got := peak.Load(); got > size {
		t.Errorf("peak concurrency %d exceeds pool size %d", got, size)
	}
}

func TestPoolSubmitHonoursContext(t *testing.T) {
	p := New(1, nil)
	defer p.Close()

	release := make(chan struct{})
	err := p.Submit(context.Background(), func(ctx context.Context) {
		<-release
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err = p.Submit(ctx, func(ctx context.Context) {})
	if err == nil {
		t.Error("expected error submitting to a full pool with expired context")
	}
	close(release)
}

func TestPoolRejectsAfterClose(t *testing.T) {
	p := New(2, nil)
	p.Close()
	if err := p.Submit(context.Background(), func(ctx context.Context) {}); err == nil {
		t.Error("expected error submitting to a closed pool")
	}
}

func TestPoolRecoversFromPanic(t *testing.T) {
	p := New(1, nil)
	defer p.Close()

	err := p.Submit(context.Background(), func(ctx context.Context) {
		panic("boom")
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	// A second submit succeeds only if the panicked job released its slot.
	done := make(chan struct{})
	err = p.Submit(context.Background(), func(ctx context.Context) {
		close(done)
	})
	if err != nil {
		t.Fatalf("Submit after panic: %v", err)
	}
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Error("job after panic never ran")
	}
}
