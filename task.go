package strand

import (
	"sync"
	"sync/atomic"
)

// TaskID identifies a spawned task. Wakers and waiter queues store only the
// ID and resolve it through the runtime's task table, so no reference cycle
// ever forms between a task and its wakers.
type TaskID uint64

// Task scheduling states. Transitions are driven by poll outcomes and
// wakeups through atomic compare-and-swap, which is what makes wakers
// idempotent: exactly one enqueue per wake cycle.
const (
	// taskSuspended: parked, waiting for a waker.
	taskSuspended uint32 = iota
	// taskReady: sitting in a ready queue.
	taskReady
	// taskRunning: being polled by a worker.
	taskRunning
	// taskRunningWoken: woken while running; re-enqueued at the poll
	// boundary instead of suspending.
	taskRunningWoken
	// taskDone: completed or cancelled; terminal.
	taskDone
)

type task struct {
	id    TaskID
	fut   Future
	state atomic.Uint32
	// preferred is the worker whose local queue this task favors.
	preferred atomic.Int32
	// cancelRequested is the cooperative cancellation flag, observed at
	// suspension points only.
	cancelRequested atomic.Bool

	mu        sync.Mutex
	completed bool
	result    any
	err       error
	joined    bool
	waiters   []Waker
	children  []TaskID
	doneCh    chan struct{}
}

func newTask(id TaskID, fut Future) *task {
	t := &task{
		id:     id,
		fut:    fut,
		doneCh: make(chan struct{}),
	}
	t.state.Store(taskReady)
	t.preferred.Store(-1)
	return t
}

// Handle refers to a spawned task. It outlives the runtime's task-table
// entry, so joining a long-finished task still yields its result.
type Handle struct {
	rt *Runtime
	t  *task
}

// ID returns the task's identifier.
func (h *Handle) ID() TaskID {
	if h == nil || h.t == nil {
		return 0
	}
	return h.t.id
}

// Done reports whether the task reached a terminal state.
func (h *Handle) Done() bool {
	if h == nil || h.t == nil {
		return true
	}
	return h.t.state.Load() == taskDone
}

// Cancel requests cooperative cancellation of the task and every task it
// spawned. A running task keeps control until its next suspension point; a
// parked task is woken so it can observe the request.
func (h *Handle) Cancel() {
	if h == nil || h.t == nil {
		return
	}
	h.rt.cancelTask(h.t)
}

// Wait blocks the calling OS thread until the task finishes and returns its
// result. Use Join instead when waiting from inside another task.
func (h *Handle) Wait() (any, error) {
	if h == nil || h.t == nil {
		return nil, ErrRuntimeClosed
	}
	h.t.mu.Lock()
	h.t.joined = true
	h.t.mu.Unlock()
	<-h.t.doneCh
	h.t.mu.Lock()
	defer h.t.mu.Unlock()
	return h.t.result, h.t.err
}

// Join returns a future that suspends the calling task until this task
// finishes, resolving to its result or fault.
func (h *Handle) Join() Future {
	return FutureFunc(func(cx *Context) Outcome {
		if h == nil || h.t == nil {
			return Fail(ErrRuntimeClosed)
		}
		if cx.Cancelled() {
			return Fail(ErrCancelled)
		}
		t := h.t
		t.mu.Lock()
		t.joined = true
		if t.completed {
			result, err := t.result, t.err
			t.mu.Unlock()
			if err != nil {
				return Fail(err)
			}
			return Ready(result)
		}
		t.waiters = addWakerOnce(t.waiters, cx.Waker())
		t.mu.Unlock()
		return Pending()
	})
}

// JoinHandle is a typed wrapper over Handle for callers that know the
// task's result type.
type JoinHandle[T any] struct {
	Handle
}

// SpawnTyped spawns a task whose result is asserted to T at join time.
func SpawnTyped[T any](rt *Runtime, fut Future) *JoinHandle[T] {
	h := rt.Spawn(fut)
	return &JoinHandle[T]{Handle: *h}
}

// Wait blocks until the task finishes and returns its typed result.
func (h *JoinHandle[T]) Wait() (T, error) {
	var zero T
	v, err := h.Handle.Wait()
	if err != nil {
		return zero, err
	}
	if v == nil {
		return zero, nil
	}
	typed, ok := v.(T)
	if !ok {
		return zero, &TaskFault{Task: h.ID(), Value: "join result type mismatch"}
	}
	return typed, nil
}
