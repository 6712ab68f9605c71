package trace

import "time"

// Kind represents the type of trace event.
type Kind uint8

const (
	// KindSpawn marks a task entering the runtime.
	KindSpawn Kind = iota + 1
	// KindPoll marks a single poll of a task.
	KindPoll
	// KindWake marks a waker firing for a task.
	KindWake
	// KindPark marks a worker going idle.
	KindPark
	// KindUnpark marks a worker resuming.
	KindUnpark
	// KindSteal marks a worker stealing from a victim's queue.
	KindSteal
	// KindTimer marks a timer entry firing.
	KindTimer
	// KindDone marks a task completing or being cancelled.
	KindDone
	// KindFault marks a task fault caught at the poll boundary.
	KindFault
	// KindHeartbeat is a periodic liveness signal carrying a stats snapshot.
	KindHeartbeat
)

// String returns the string representation of Kind.
func (k Kind) String() string {
	switch k {
	case KindSpawn:
		return "spawn"
	case KindPoll:
		return "poll"
	case KindWake:
		return "wake"
	case KindPark:
		return "park"
	case KindUnpark:
		return "unpark"
	case KindSteal:
		return "steal"
	case KindTimer:
		return "timer"
	case KindDone:
		return "done"
	case KindFault:
		return "fault"
	case KindHeartbeat:
		return "heartbeat"
	default:
		return "unknown"
	}
}

// Scope indicates the granularity level of the event.
// Lower numeric values represent higher-level/coarser events.
type Scope uint8

const (
	// ScopeRuntime covers lifecycle events: startup, shutdown, faults.
	ScopeRuntime Scope = iota + 1
	// ScopeTask covers per-task events: spawn, wake, done.
	ScopeTask
	// ScopePoll covers per-poll and per-worker events (most detailed).
	ScopePoll
)

// String returns the string representation of Scope.
func (s Scope) String() string {
	switch s {
	case ScopeRuntime:
		return "runtime"
	case ScopeTask:
		return "task"
	case ScopePoll:
		return "poll"
	default:
		return "unknown"
	}
}

// Event represents a single trace event.
type Event struct {
	Time   time.Time // wall-clock timestamp
	Seq    uint64    // global sequence number (monotonic)
	Kind   Kind      // event kind
	Scope  Scope     // granularity level
	Worker int32     // worker index (-1 when emitted off-worker)
	Task   uint64    // task ID (0 when not task-bound)
	Name   string    // e.g. "spawn", "timer:fire", "worker:park"
	Detail string    // optional detail message
}
