package strand

import (
	"fmt"
	"sync/atomic"
)

type statCounters struct {
	spawned         atomic.Uint64
	completed       atomic.Uint64
	cancelled       atomic.Uint64
	faulted         atomic.Uint64
	polls           atomic.Uint64
	wakes           atomic.Uint64
	steals          atomic.Uint64
	parks           atomic.Uint64
	timersScheduled atomic.Uint64
	timersFired     atomic.Uint64
	blockingRuns    atomic.Uint64
}

// Stats is a point-in-time snapshot of runtime activity counters.
type Stats struct {
	Spawned         uint64 // tasks entered the runtime
	Completed       uint64 // tasks finished successfully
	Cancelled       uint64 // tasks finished cancelled
	Faulted         uint64 // tasks finished with a fault
	Live            uint64 // tasks currently in the task table
	Polls           uint64 // individual task polls
	Wakes           uint64 // waker invocations that enqueued a task
	Steals          uint64 // successful steal operations
	Parks           uint64 // times a worker went idle
	TimersScheduled uint64 // timer entries inserted
	TimersFired     uint64 // timer entries fired
	TimersPending   uint64 // live timer entries
	BlockingRuns    uint64 // jobs executed on the blocking pool
	InjectorDepth   uint64 // tasks waiting in the shared injector queue
	Workers         int    // scheduler worker count
}

// Stats returns a snapshot of the runtime's activity counters.
func (rt *Runtime) Stats() Stats {
	if rt == nil {
		return Stats{}
	}
	rt.tasksMu.Lock()
	live := uint64(len(rt.tasks))
	rt.tasksMu.Unlock()
	return Stats{
		Spawned:         rt.stats.spawned.Load(),
		Completed:       rt.stats.completed.Load(),
		Cancelled:       rt.stats.cancelled.Load(),
		Faulted:         rt.stats.faulted.Load(),
		Live:            live,
		Polls:           rt.stats.polls.Load(),
		Wakes:           rt.stats.wakes.Load(),
		Steals:          rt.stats.steals.Load(),
		Parks:           rt.stats.parks.Load(),
		TimersScheduled: rt.stats.timersScheduled.Load(),
		TimersFired:     rt.stats.timersFired.Load(),
		TimersPending:   uint64(rt.timers.len()),
		BlockingRuns:    rt.stats.blockingRuns.Load(),
		InjectorDepth:   uint64(rt.injector.Len()),
		Workers:         len(rt.workers),
	}
}

// Summary renders a compact single-line form used by the trace heartbeat.
func (s Stats) Summary() string {
	return fmt.Sprintf("live=%d spawned=%d done=%d cancelled=%d faulted=%d polls=%d timers=%d",
		s.Live, s.Spawned, s.Completed, s.Cancelled, s.Faulted, s.Polls, s.TimersPending)
}
