package strand

// Waker is a resumption token bound to one task. It is a small value type:
// copying it is cheap, and invoking it from any goroutine is safe. Waking an
// already-ready or completed task is a no-op, so spurious wakes are
// harmless.
type Waker struct {
	rt     *Runtime
	task   TaskID
	worker int32
}

// Wake re-enqueues the bound task if it is suspended. A task woken while
// running is re-enqueued once at its poll boundary; duplicate wakes within
// one cycle collapse into a single enqueue.
func (w Waker) Wake() {
	if w.rt == nil || w.task == 0 {
		return
	}
	w.rt.wake(w.task, w.worker)
}

// TaskID returns the bound task's identifier.
func (w Waker) TaskID() TaskID { return w.task }

// alive reports whether the bound task can still make progress. A task with
// a pending cancel request counts as dead: it will be completed at its next
// poll boundary, so handing it a wake would swallow the notification.
// Waiter queues use this to skip such entries.
func (w Waker) alive() bool {
	if w.rt == nil || w.task == 0 {
		return false
	}
	t := w.rt.lookupTask(w.task)
	return t != nil && t.state.Load() != taskDone && !t.cancelRequested.Load()
}

// addWakerOnce appends w to a waiter queue unless the same task already
// holds a slot; a future polled repeatedly without a wake in between must
// not accumulate entries.
func addWakerOnce(q []Waker, w Waker) []Waker {
	for _, existing := range q {
		if existing.TaskID() == w.TaskID() {
			return q
		}
	}
	return append(q, w)
}
