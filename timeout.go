package strand

import "time"

type timeoutFuture struct {
	inner Future
	timer Future
}

// Timeout returns a future that runs inner with a deadline. It completes
// with inner's outcome if inner finishes first, and fails with ErrElapsed
// when the deadline passes first. The inner arm is polled before the timer
// each tick, so a result that arrives together with the deadline wins.
func Timeout(d time.Duration, inner Future) Future {
	return &timeoutFuture{inner: inner, timer: Sleep(d)}
}

func (f *timeoutFuture) Poll(cx *Context) Outcome {
	if cx.Cancelled() {
		f.cancel(cx.rt)
		return Fail(ErrCancelled)
	}
	out := f.inner.Poll(cx)
	if out.done {
		if c, ok := f.timer.(canceller); ok {
			c.cancel(cx.rt)
		}
		return out
	}
	tout := f.timer.Poll(cx)
	if tout.done {
		if c, ok := f.inner.(canceller); ok {
			c.cancel(cx.rt)
		}
		return Fail(ErrElapsed)
	}
	return Pending()
}

// cancel releases both arms; implements canceller so nested races can
// discard a timeout cleanly.
func (f *timeoutFuture) cancel(rt *Runtime) {
	if c, ok := f.timer.(canceller); ok {
		c.cancel(rt)
	}
	if c, ok := f.inner.(canceller); ok {
		c.cancel(rt)
	}
}
