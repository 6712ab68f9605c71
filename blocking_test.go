package strand

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestRunBlockingResult(t *testing.T) {
	rt := newTestRuntime(t, 1)

	v, err := rt.BlockOn(RunBlocking(func() (any, error) {
		time.Sleep(10 * time.Millisecond)
		return "blocking done", nil
	}))
	if err != nil || v != "blocking done" {
		t.Fatalf("RunBlocking = (%v, %v), want (blocking done, nil)", v, err)
	}
	if rt.Stats().BlockingRuns != 1 {
		t.Fatalf("BlockingRuns = %d, want 1", rt.Stats().BlockingRuns)
	}
}

// A blocking job must not occupy the scheduler worker: with one worker, a
// cooperative task must run while the blocking job sleeps.
func TestRunBlockingFreesWorker(t *testing.T) {
	if testing.Short() {
		t.Skip("timing-sensitive")
	}
	rt := newTestRuntime(t, 1)

	release := make(chan struct{})
	blocked := rt.Spawn(RunBlocking(func() (any, error) {
		<-release
		return nil, nil
	}))

	// This runs on the sole worker while the job above holds a pool thread.
	if v, err := rt.BlockOn(Run(func() (any, error) { return "free", nil })); err != nil || v != "free" {
		t.Fatalf("cooperative task = (%v, %v), want (free, nil)", v, err)
	}

	close(release)
	if _, err := blocked.Wait(); err != nil {
		t.Fatalf("blocked task: %v", err)
	}
}

func TestBlockingPoolBoundsWorkers(t *testing.T) {
	p := newBlockingPool(2)
	defer p.shutdown()

	var peak atomic.Int32
	var live atomic.Int32
	done := make(chan struct{}, 8)
	for i := 0; i < 8; i++ {
		err := p.submit(func() {
			n := live.Add(1)
			for {
				old := peak.Load()
				if n <= old || peak.CompareAndSwap(old, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			live.Add(-1)
			done <- struct{}{}
		})
		if err != nil {
			t.Fatalf("submit: %v", err)
		}
	}
	for i := 0; i < 8; i++ {
		<-done
	}
	if got := peak.Load(); got > 2 {
		t.Fatalf("peak concurrent jobs = %d, want <= 2", got)
	}
}

func TestBlockingPoolRejectsAfterShutdown(t *testing.T) {
	p := newBlockingPool(1)
	p.shutdown()
	if err := p.submit(func() {}); err != ErrRuntimeClosed {
		t.Fatalf("submit after shutdown = %v, want ErrRuntimeClosed", err)
	}
}
