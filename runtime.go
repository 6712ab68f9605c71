// Package strand is a cooperative task runtime: many logical tasks
// multiplexed onto a small pool of worker threads, with an I/O readiness
// reactor, timers, bounded channels for backpressure, and hierarchical
// cancellation. Tasks yield control only at suspension points (I/O, timer,
// channel, join, yield); parallelism comes from multiple workers running
// distinct tasks, never from preemption within one.
package strand

import (
	"runtime"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"strand/internal/netpoll"
	"strand/internal/queue"
	"strand/internal/trace"
)

// Config sizes and wires a runtime. The zero value selects sane defaults.
type Config struct {
	// Workers is the number of scheduler worker threads. Zero selects the
	// core count; 1 gives a deterministic single-worker scheduler.
	Workers int
	// BlockingWorkers caps the dedicated pool for thread-blocking work.
	// Zero selects 64.
	BlockingWorkers int
	// LocalQueueSize is the per-worker ready ring capacity. Zero selects
	// queue.DefaultLocalCapacity.
	LocalQueueSize int
	// DefaultChannelCapacity is used by NewChannelDefault. Zero selects 64.
	DefaultChannelCapacity int
	// Seed seeds per-worker randomness (steal victim choice, race
	// tie-breaks). Zero derives a seed from the clock.
	Seed uint64
	// Tracer receives runtime events; nil disables tracing.
	Tracer trace.Tracer
	// Heartbeat enables periodic heartbeat events through the tracer.
	Heartbeat time.Duration
	// UnhandledFault is invoked for a faulted task nobody joined. Nil
	// falls back to a trace event only.
	UnhandledFault func(*TaskFault)
}

// Runtime is the explicit scheduler context object. Construct one with New,
// spawn work onto it, and tear it down with Shutdown. There is no implicit
// global runtime.
type Runtime struct {
	cfg    Config
	tracer trace.Tracer

	tasksMu  sync.Mutex
	tasks    map[TaskID]*task
	nextTask atomic.Uint64

	injector queue.Injector
	workers  []*worker
	poller   *netpoll.Poller
	timers   *timerQueue
	blocking *blockingPool

	ioMu  sync.Mutex
	ioFDs map[int]*ioWaiters

	closed     atomic.Bool
	shutdownCh chan struct{}
	wg         sync.WaitGroup
	heartbeat  *trace.Heartbeat

	stats statCounters
}

// New constructs a runtime: it spawns the workers, starts the reactor
// driver, and sizes the blocking pool. The caller owns the returned runtime
// and must call Shutdown to release its threads.
func New(cfg Config) (*Runtime, error) {
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.NumCPU()
	}
	if cfg.BlockingWorkers <= 0 {
		cfg.BlockingWorkers = 64
	}
	if cfg.DefaultChannelCapacity <= 0 {
		cfg.DefaultChannelCapacity = 64
	}
	if cfg.Seed == 0 {
		cfg.Seed = uint64(time.Now().UnixNano())
	}
	tracer := cfg.Tracer
	if tracer == nil {
		tracer = trace.Nop
	}

	poller, err := netpoll.New()
	if err != nil {
		return nil, err
	}

	rt := &Runtime{
		cfg:        cfg,
		tracer:     tracer,
		tasks:      make(map[TaskID]*task),
		ioFDs:      make(map[int]*ioWaiters),
		poller:     poller,
		shutdownCh: make(chan struct{}),
	}
	rt.timers = newTimerQueue(poller.Wake)
	rt.blocking = newBlockingPool(cfg.BlockingWorkers)

	rt.workers = make([]*worker, cfg.Workers)
	for i := range rt.workers {
		rt.workers[i] = newWorker(rt, i, cfg.LocalQueueSize, cfg.Seed+uint64(i))
	}
	for _, w := range rt.workers {
		rt.wg.Add(1)
		go w.run()
	}
	rt.wg.Add(1)
	go rt.driver()

	rt.heartbeat = trace.StartHeartbeat(tracer, cfg.Heartbeat, func() string {
		return rt.Stats().Summary()
	})
	trace.Point(tracer, trace.KindSpawn, trace.ScopeRuntime, -1, 0, "runtime:start", "")
	return rt, nil
}

// Spawn submits a task from outside the runtime. The task lands on the
// shared injector queue. Spawning on a closed runtime yields a handle
// already failed with ErrRuntimeClosed.
func (rt *Runtime) Spawn(fut Future) *Handle {
	return rt.spawn(fut, nil)
}

func (rt *Runtime) spawn(fut Future, cx *Context) *Handle {
	id := TaskID(rt.nextTask.Add(1))
	t := newTask(id, fut)
	h := &Handle{rt: rt, t: t}

	if rt.closed.Load() {
		rt.completeDetached(t, ErrRuntimeClosed)
		return h
	}

	rt.tasksMu.Lock()
	rt.tasks[id] = t
	rt.tasksMu.Unlock()
	// Shutdown may have drained the task table between the closed check
	// above and the insert; a task slipping in behind the drain would be
	// enqueued onto dead workers and its Wait would block forever.
	if rt.closed.Load() {
		rt.tasksMu.Lock()
		delete(rt.tasks, id)
		rt.tasksMu.Unlock()
		rt.completeDetached(t, ErrRuntimeClosed)
		return h
	}
	rt.stats.spawned.Add(1)

	worker := int32(-1)
	if cx != nil {
		worker = int32(cx.worker.idx)
		t.preferred.Store(worker)
		cx.task.mu.Lock()
		cx.task.children = append(cx.task.children, id)
		cx.task.mu.Unlock()
		// A child inherits an already-pending cancellation.
		if cx.task.cancelRequested.Load() {
			t.cancelRequested.Store(true)
		}
	}

	trace.Point(rt.tracer, trace.KindSpawn, trace.ScopeTask, int(worker), uint64(id), "spawn", "")
	rt.enqueue(t, worker)
	return h
}

// NewChannelDefault builds a channel with the runtime's configured default
// capacity.
func NewChannelDefault[T any](rt *Runtime) (*Sender[T], *Receiver[T]) {
	return NewChannel[T](rt.cfg.DefaultChannelCapacity)
}

// BlockOn spawns the future and blocks the calling OS thread until it
// finishes. Intended for non-task callers (main, tests).
func (rt *Runtime) BlockOn(fut Future) (any, error) {
	return rt.Spawn(fut).Wait()
}

// Shutdown signals the runtime to stop, joins all worker threads, stops the
// reactor and blocking pool, and completes every remaining task as
// cancelled so pending Wait calls return. Safe to call once; later calls
// are no-ops.
func (rt *Runtime) Shutdown() {
	if !rt.closed.CompareAndSwap(false, true) {
		return
	}
	close(rt.shutdownCh)
	rt.poller.Wake()
	for _, w := range rt.workers {
		w.unpark()
	}
	rt.wg.Wait()
	rt.blocking.shutdown()
	rt.heartbeat.Stop()

	rt.tasksMu.Lock()
	remaining := make([]*task, 0, len(rt.tasks))
	for _, t := range rt.tasks {
		remaining = append(remaining, t)
	}
	rt.tasksMu.Unlock()
	for _, t := range remaining {
		rt.complete(t, nil, ErrCancelled)
	}

	_ = rt.poller.Close() //nolint:errcheck
	trace.Point(rt.tracer, trace.KindDone, trace.ScopeRuntime, -1, 0, "runtime:shutdown", "")
	_ = rt.tracer.Flush() //nolint:errcheck
}

func (rt *Runtime) lookupTask(id TaskID) *task {
	rt.tasksMu.Lock()
	t := rt.tasks[id]
	rt.tasksMu.Unlock()
	return t
}

// wake transitions a task toward Ready. Exactly one enqueue happens per
// wake cycle regardless of how many wakers fire.
func (rt *Runtime) wake(id TaskID, preferred int32) {
	t := rt.lookupTask(id)
	if t == nil {
		return
	}
	for {
		switch t.state.Load() {
		case taskSuspended:
			if t.state.CompareAndSwap(taskSuspended, taskReady) {
				rt.stats.wakes.Add(1)
				trace.Point(rt.tracer, trace.KindWake, trace.ScopeTask, int(preferred), uint64(id), "wake", "")
				rt.enqueue(t, preferred)
				return
			}
		case taskRunning:
			if t.state.CompareAndSwap(taskRunning, taskRunningWoken) {
				rt.stats.wakes.Add(1)
				return
			}
		default:
			// Ready, already woken, or done: nothing to do.
			return
		}
	}
}

// enqueue places a ready task on the preferred worker's local ring, spilling
// into the injector when full, and unparks whoever should notice.
func (rt *Runtime) enqueue(t *task, preferred int32) {
	id := uint64(t.id)
	if preferred >= 0 && int(preferred) < len(rt.workers) {
		w := rt.workers[preferred]
		spilled := w.local.PushOrSpill(id, &rt.injector)
		w.unpark()
		if spilled {
			rt.unparkAny()
		}
		return
	}
	rt.injector.Push(id)
	rt.unparkAny()
}

func (rt *Runtime) unparkAny() {
	for _, w := range rt.workers {
		if w.unpark() {
			return
		}
	}
}

// pollTask runs one task to its next suspension point. Faults are caught
// here and never take the worker down.
func (rt *Runtime) pollTask(w *worker, id TaskID) {
	t := rt.lookupTask(id)
	if t == nil {
		return
	}
	if !t.state.CompareAndSwap(taskReady, taskRunning) {
		return
	}
	// The poll boundary is a suspension point: a cancel requested while
	// the task was parked or queued is observed here. The future's cancel
	// hook releases held resources (timer entries, waiter-queue slots)
	// and passes on any wake this task absorbed.
	if t.cancelRequested.Load() {
		if c, ok := t.fut.(canceller); ok {
			c.cancel(rt)
		}
		rt.complete(t, nil, ErrCancelled)
		return
	}

	rt.stats.polls.Add(1)
	trace.Point(rt.tracer, trace.KindPoll, trace.ScopePoll, w.idx, uint64(id), "poll", "")

	cx := &Context{rt: rt, worker: w, taskID: id, task: t}
	out := rt.pollOnce(cx, t)
	if out.done {
		rt.complete(t, out.value, out.err)
		return
	}
	if t.state.CompareAndSwap(taskRunning, taskSuspended) {
		return
	}
	// Woken during the poll: re-enqueue instead of suspending.
	if t.state.CompareAndSwap(taskRunningWoken, taskReady) {
		rt.enqueue(t, int32(w.idx))
	}
}

func (rt *Runtime) pollOnce(cx *Context, t *task) (out Outcome) {
	defer func() {
		if r := recover(); r != nil {
			out = Fail(&TaskFault{Task: t.id, Value: r, Stack: debug.Stack()})
		}
	}()
	return t.fut.Poll(cx)
}

// complete moves a task to its terminal state, removes it from the table,
// wakes joiners, and reports unjoined faults.
func (rt *Runtime) complete(t *task, value any, err error) {
	t.mu.Lock()
	if t.completed {
		t.mu.Unlock()
		return
	}
	t.completed = true
	t.result = value
	t.err = err
	waiters := t.waiters
	t.waiters = nil
	joined := t.joined
	t.state.Store(taskDone)
	close(t.doneCh)
	t.mu.Unlock()

	rt.tasksMu.Lock()
	delete(rt.tasks, t.id)
	rt.tasksMu.Unlock()

	fault, isFault := AsTaskFault(err)
	switch {
	case isFault:
		rt.stats.faulted.Add(1)
		trace.Point(rt.tracer, trace.KindFault, trace.ScopeRuntime, -1, uint64(t.id), "fault", fault.Error())
	case err == ErrCancelled:
		rt.stats.cancelled.Add(1)
		trace.Point(rt.tracer, trace.KindDone, trace.ScopeTask, -1, uint64(t.id), "done", "cancelled")
	default:
		rt.stats.completed.Add(1)
		trace.Point(rt.tracer, trace.KindDone, trace.ScopeTask, -1, uint64(t.id), "done", "")
	}

	for _, w := range waiters {
		w.Wake()
	}
	if isFault && !joined && len(waiters) == 0 {
		if rt.cfg.UnhandledFault != nil {
			rt.cfg.UnhandledFault(fault)
		}
		trace.Point(rt.tracer, trace.KindFault, trace.ScopeRuntime, -1, uint64(t.id), "fault:unhandled", fault.Error())
	}
}

// completeDetached finishes a task outside the normal poll path. It can
// race Shutdown's drain completing the same task, so it is idempotent.
func (rt *Runtime) completeDetached(t *task, err error) {
	t.mu.Lock()
	if t.completed {
		t.mu.Unlock()
		return
	}
	t.completed = true
	t.err = err
	t.state.Store(taskDone)
	close(t.doneCh)
	t.mu.Unlock()
}

// cancelTask marks a task and its spawned children cancelled and wakes the
// task so the request is observed at its next suspension point.
func (rt *Runtime) cancelTask(t *task) {
	if t == nil || t.state.Load() == taskDone {
		return
	}
	if t.cancelRequested.Swap(true) {
		return
	}
	rt.wake(t.id, t.preferred.Load())

	t.mu.Lock()
	children := append([]TaskID(nil), t.children...)
	t.mu.Unlock()
	for _, child := range children {
		rt.cancelTask(rt.lookupTask(child))
	}
}

// driver owns the reactor poll loop. Its poll timeout is the timer queue's
// next deadline; timer entries due after the poll returns fire here.
func (rt *Runtime) driver() {
	defer rt.wg.Done()
	for {
		if rt.closed.Load() {
			return
		}
		timeout := time.Duration(-1)
		if deadline, ok := rt.timers.nextDeadline(); ok {
			timeout = time.Until(deadline)
			if timeout < 0 {
				timeout = 0
			}
		}
		if _, err := rt.poller.Poll(timeout); err != nil {
			if rt.closed.Load() {
				return
			}
			// Transient poll errors leave timers functional; back off
			// briefly rather than spinning on a broken descriptor.
			time.Sleep(time.Millisecond)
		}
		if fired := rt.timers.fire(time.Now()); fired > 0 {
			rt.stats.timersFired.Add(uint64(fired))
			trace.Point(rt.tracer, trace.KindTimer, trace.ScopePoll, -1, 0, "timer:fire", "")
		}
	}
}
