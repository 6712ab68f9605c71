package strand

import "sync"

// blockingPool runs thread-blocking work on dedicated goroutines so the
// scheduler workers stay available for cooperative tasks. Workers are
// started lazily up to the configured cap and exit when the queue drains.
type blockingPool struct {
	mu      sync.Mutex
	queue   []func()
	workers int
	max     int
	closed  bool
	wg      sync.WaitGroup
}

func newBlockingPool(maxWorkers int) *blockingPool {
	return &blockingPool{max: maxWorkers}
}

func (p *blockingPool) submit(fn func()) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrRuntimeClosed
	}
	p.queue = append(p.queue, fn)
	if p.workers < p.max {
		p.workers++
		p.wg.Add(1)
		go p.work()
	}
	p.mu.Unlock()
	return nil
}

func (p *blockingPool) work() {
	defer p.wg.Done()
	for {
		p.mu.Lock()
		if len(p.queue) == 0 {
			p.workers--
			p.mu.Unlock()
			return
		}
		fn := p.queue[0]
		p.queue = p.queue[1:]
		p.mu.Unlock()
		fn()
	}
}

// shutdown stops accepting work and waits for in-flight jobs.
func (p *blockingPool) shutdown() {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	p.wg.Wait()
}

type blockingFuture struct {
	fn func() (any, error)

	mu        sync.Mutex
	submitted bool
	done      bool
	value     any
	err       error
}

// RunBlocking returns a future that runs fn on the blocking pool, keeping
// the calling worker free. The future completes with fn's result; fn is not
// interrupted by cancellation once it has started.
func RunBlocking(fn func() (any, error)) Future {
	return &blockingFuture{fn: fn}
}

func (f *blockingFuture) Poll(cx *Context) Outcome {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.done {
		if f.err != nil {
			return Fail(f.err)
		}
		return Ready(f.value)
	}
	if f.submitted {
		return Pending()
	}
	if cx.Cancelled() {
		return Fail(ErrCancelled)
	}

	f.submitted = true
	waker := cx.Waker()
	rt := cx.rt
	err := rt.blocking.submit(func() {
		v, err := f.fn()
		rt.stats.blockingRuns.Add(1)
		f.mu.Lock()
		f.done = true
		f.value = v
		f.err = err
		f.mu.Unlock()
		waker.Wake()
	})
	if err != nil {
		return Fail(err)
	}
	return Pending()
}
