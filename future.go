package strand

// Outcome reports how a single poll of a future ended: ready with a value,
// ready with an error, or pending. A pending future must have arranged a
// wakeup (waker registration) before returning, or it will never run again.
type Outcome struct {
	done  bool
	value any
	err   error
}

// Ready returns a completed outcome carrying a value.
func Ready(value any) Outcome {
	return Outcome{done: true, value: value}
}

// Fail returns a completed outcome carrying an error.
func Fail(err error) Outcome {
	return Outcome{done: true, err: err}
}

// Pending returns an outcome indicating the future is not ready yet.
func Pending() Outcome {
	return Outcome{}
}

// IsReady reports whether the outcome completed the future.
func (o Outcome) IsReady() bool { return o.done }

// Value returns the carried value.
func (o Outcome) Value() any { return o.value }

// Err returns the carried error.
func (o Outcome) Err() error { return o.err }

// Future is the minimal capability a task body provides: advance until the
// next suspension point. Poll runs on a worker with the task's context and
// must not block the OS thread; blocking work goes through RunBlocking.
type Future interface {
	Poll(cx *Context) Outcome
}

// FutureFunc adapts a plain function to the Future interface.
type FutureFunc func(cx *Context) Outcome

// Poll implements Future.
func (f FutureFunc) Poll(cx *Context) Outcome { return f(cx) }

// Run wraps a one-shot computation as a future that completes on its first
// poll. The function runs cooperatively on a worker; long computations
// should yield or use RunBlocking instead.
func Run(fn func() (any, error)) Future {
	return FutureFunc(func(cx *Context) Outcome {
		v, err := fn()
		if err != nil {
			return Fail(err)
		}
		return Ready(v)
	})
}

// canceller is implemented by futures that hold external resources (timer
// entries) which should be released when a race discards them.
type canceller interface {
	cancel(rt *Runtime)
}

// Context is passed to every poll. It identifies the running task and gives
// access to its waker, cooperative cancellation state, and in-task spawning.
type Context struct {
	rt     *Runtime
	worker *worker
	taskID TaskID
	task   *task
}

// Runtime returns the runtime polling the task.
func (cx *Context) Runtime() *Runtime { return cx.rt }

// Waker returns a resumption token for the running task. It is cheap to
// copy and safe to invoke from any goroutine, any number of times; a task
// is enqueued at most once per wake cycle.
func (cx *Context) Waker() Waker {
	return Waker{rt: cx.rt, task: cx.taskID, worker: int32(cx.worker.idx)}
}

// Cancelled reports whether cancellation was requested for the running
// task. Tasks observe this only at their own suspension points.
func (cx *Context) Cancelled() bool {
	return cx.task.cancelRequested.Load()
}

// Spawn starts a child task from inside a running task. The child lands on
// the current worker's local queue and is cancelled when this task's handle
// is cancelled.
func (cx *Context) Spawn(fut Future) *Handle {
	return cx.rt.spawn(fut, cx)
}

// Yield returns a future that suspends once and immediately re-enqueues the
// task, letting other ready tasks run first.
func Yield() Future {
	yielded := false
	return FutureFunc(func(cx *Context) Outcome {
		if yielded {
			return Ready(nil)
		}
		yielded = true
		cx.Waker().Wake()
		return Pending()
	})
}
