package strand

import (
	"errors"
	"fmt"
)

// Runtime errors. Timeouts and cancellations are ordinary control-flow
// outcomes, not faults; only TaskFault represents an unrecoverable failure.
var (
	// ErrChannelClosed is returned by operations on a closed channel.
	ErrChannelClosed = errors.New("strand: channel closed")
	// ErrChannelFull is returned by TrySend when no slot is free.
	ErrChannelFull = errors.New("strand: channel full")
	// ErrChannelEmpty is returned by TryRecv when nothing is buffered.
	ErrChannelEmpty = errors.New("strand: channel empty")
	// ErrElapsed is returned when a timeout fires before its inner
	// operation completes.
	ErrElapsed = errors.New("strand: timeout elapsed")
	// ErrCancelled is delivered through a join handle when a task was
	// cancelled before completing.
	ErrCancelled = errors.New("strand: task cancelled")
	// ErrRuntimeClosed is delivered for work submitted after Shutdown.
	ErrRuntimeClosed = errors.New("strand: runtime closed")
)

// TaskFault describes an unrecoverable error raised inside a task body and
// caught at the poll boundary. It is delivered through the task's join
// handle; a fault nobody joins is still reported through the runtime's
// unhandled-fault hook.
type TaskFault struct {
	// Task identifies the faulted task.
	Task TaskID
	// Value is the recovered panic value.
	Value any
	// Stack is the goroutine stack captured at recovery.
	Stack []byte
}

// Error implements the error interface.
func (f *TaskFault) Error() string {
	if f == nil {
		return "strand: task fault"
	}
	return fmt.Sprintf("strand: task %d fault: %v", f.Task, f.Value)
}

// AsTaskFault unwraps a join error into a *TaskFault, if it is one.
func AsTaskFault(err error) (*TaskFault, bool) {
	var fault *TaskFault
	if errors.As(err, &fault) {
		return fault, true
	}
	return nil, false
}
