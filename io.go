package strand

import (
	"sync"

	"strand/internal/netpoll"
)

// IOInterest selects which readiness directions to watch on a descriptor.
type IOInterest uint8

const (
	// IOReadable waits for readable data or peer close.
	IOReadable IOInterest = 1 << iota
	// IOWritable waits for writability.
	IOWritable
)

// IOReadiness reports the observed state of a registered descriptor.
// Error and Hangup conditions are delivered as ready-with-error: the
// waiting future completes normally and the caller's subsequent syscall
// surfaces the OS error.
type IOReadiness struct {
	Readable bool
	Writable bool
	Error    bool
	Hangup   bool
}

func fromNetpoll(r netpoll.Readiness) IOReadiness {
	return IOReadiness{
		Readable: r&netpoll.Readable != 0,
		Writable: r&netpoll.Writable != 0,
		Error:    r&netpoll.ReadinessError != 0,
		Hangup:   r&netpoll.Hangup != 0,
	}
}

// ioWaiters fans one descriptor's readiness out to the tasks waiting on it.
// Readiness is level-triggered, so every waiter is woken and re-checks its
// own condition.
type ioWaiters struct {
	mu    sync.Mutex
	read  []Waker
	write []Waker
}

func (d *ioWaiters) add(interest IOInterest, w Waker) {
	d.mu.Lock()
	if interest&IOReadable != 0 {
		d.read = addWakerOnce(d.read, w)
	}
	if interest&IOWritable != 0 {
		d.write = addWakerOnce(d.write, w)
	}
	d.mu.Unlock()
}

func (d *ioWaiters) drain(write bool) []Waker {
	d.mu.Lock()
	var q []Waker
	if write {
		q, d.write = d.write, nil
	} else {
		q, d.read = d.read, nil
	}
	d.mu.Unlock()
	return q
}

// ioDirWaker adapts one direction of an ioWaiters to the reactor's waker
// interface.
type ioDirWaker struct {
	d     *ioWaiters
	write bool
}

func (w ioDirWaker) Wake() {
	for _, waiter := range w.d.drain(w.write) {
		waiter.Wake()
	}
}

// RegisterIO registers a descriptor with the reactor. Intended for I/O
// wrapper libraries; the descriptor must be in non-blocking mode and is
// registered with the OS exactly once regardless of how many tasks wait on
// it. Re-registering updates the watched directions.
func (rt *Runtime) RegisterIO(fd int, interest IOInterest) error {
	if rt.closed.Load() {
		return ErrRuntimeClosed
	}
	rt.ioMu.Lock()
	d := rt.ioFDs[fd]
	if d == nil {
		d = &ioWaiters{}
		rt.ioFDs[fd] = d
	}
	rt.ioMu.Unlock()

	var np netpoll.Interest
	if interest&IOReadable != 0 {
		np |= netpoll.InterestRead
	}
	if interest&IOWritable != 0 {
		np |= netpoll.InterestWrite
	}
	err := rt.poller.Register(fd, np, ioDirWaker{d: d}, ioDirWaker{d: d, write: true})
	if err != nil {
		rt.ioMu.Lock()
		delete(rt.ioFDs, fd)
		rt.ioMu.Unlock()
	}
	return err
}

// DeregisterIO removes a descriptor from the reactor. Tasks still waiting
// on it are not woken; deregister only once no task holds a WaitIO future
// for the descriptor.
func (rt *Runtime) DeregisterIO(fd int) error {
	rt.ioMu.Lock()
	delete(rt.ioFDs, fd)
	rt.ioMu.Unlock()
	return rt.poller.Deregister(fd)
}

type ioFuture struct {
	rt       *Runtime
	fd       int
	interest IOInterest
}

// WaitIO returns a future that suspends until the registered descriptor is
// ready for the requested directions, or has an error or hangup condition.
// The descriptor must have been registered with a superset of interest.
func (rt *Runtime) WaitIO(fd int, interest IOInterest) Future {
	return &ioFuture{rt: rt, fd: fd, interest: interest}
}

func (f *ioFuture) Poll(cx *Context) Outcome {
	if cx.Cancelled() {
		return Fail(ErrCancelled)
	}

	f.rt.ioMu.Lock()
	d := f.rt.ioFDs[f.fd]
	f.rt.ioMu.Unlock()
	if d == nil {
		return Fail(netpoll.ErrNotRegistered)
	}
	// Queue the waker before checking so a readiness event between the
	// check and the suspend still finds a waiter to wake.
	d.add(f.interest, cx.Waker())

	r, err := f.rt.poller.Readiness(f.fd)
	if err != nil {
		return Fail(err)
	}
	ready := fromNetpoll(r)
	switch {
	case ready.Error || ready.Hangup:
		return Ready(ready)
	case f.interest&IOReadable != 0 && ready.Readable:
		return Ready(ready)
	case f.interest&IOWritable != 0 && ready.Writable:
		return Ready(ready)
	}
	return Pending()
}
