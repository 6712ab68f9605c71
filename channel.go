package strand

import "sync"

// chanCore is the untyped bounded channel shared by a Sender/Receiver pair.
// Invariants: buffered count never exceeds capacity; a sender waits only
// when full; a receiver waits only when empty and open. Waiters are woken
// in arrival order.
type chanCore struct {
	mu       sync.Mutex
	buf      []any
	head     int
	capacity int
	closed   bool
	sendq    []Waker
	recvq    []Waker
}

func newChanCore(capacity int) *chanCore {
	if capacity < 1 {
		capacity = 1
	}
	return &chanCore{capacity: capacity}
}

func (c *chanCore) lenLocked() int { return len(c.buf) - c.head }

func (c *chanCore) pushLocked(v any) {
	c.buf = append(c.buf, v)
}

func (c *chanCore) popLocked() any {
	v := c.buf[c.head]
	c.buf[c.head] = nil
	c.head++
	if c.head > 128 && c.head*2 >= len(c.buf) {
		c.buf = append(c.buf[:0], c.buf[c.head:]...)
		c.head = 0
	}
	return v
}

// popWaiter removes and returns the first waker whose task is still alive.
func popWaiter(q []Waker) (Waker, []Waker, bool) {
	for len(q) > 0 {
		w := q[0]
		copy(q, q[1:])
		q = q[:len(q)-1]
		if w.alive() {
			return w, q, true
		}
	}
	return Waker{}, q, false
}

// removeWaiter drops the given task's queued waker, if any.
func removeWaiter(q []Waker, id TaskID) []Waker {
	for i, w := range q {
		if w.TaskID() == id {
			return append(q[:i], q[i+1:]...)
		}
	}
	return q
}

func (c *chanCore) wakeSenderLocked() {
	if w, rest, ok := popWaiter(c.sendq); ok {
		c.sendq = rest
		w.Wake()
	}
}

func (c *chanCore) wakeReceiverLocked() {
	if w, rest, ok := popWaiter(c.recvq); ok {
		c.recvq = rest
		w.Wake()
	}
}

// trySend attempts a non-suspending send. waiter registers for a wakeup on
// failure; pass nil for the Try* API.
func (c *chanCore) trySend(v any, waiter *Waker) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrChannelClosed
	}
	if c.lenLocked() >= c.capacity {
		if waiter != nil {
			c.sendq = addWakerOnce(c.sendq, *waiter)
		}
		return ErrChannelFull
	}
	c.pushLocked(v)
	c.wakeReceiverLocked()
	return nil
}

// tryRecv attempts a non-suspending receive. A closed channel still drains
// its buffer before reporting ErrChannelClosed.
func (c *chanCore) tryRecv(waiter *Waker) (any, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.lenLocked() > 0 {
		v := c.popLocked()
		c.wakeSenderLocked()
		return v, nil
	}
	if c.closed {
		return nil, ErrChannelClosed
	}
	if waiter != nil {
		c.recvq = addWakerOnce(c.recvq, *waiter)
	}
	return nil, ErrChannelEmpty
}

// abandonSend withdraws a cancelled sender from the queue. A wake this
// sender may have absorbed is passed on: if a slot is free the next live
// sender is notified, so cancellation never strands the FIFO.
func (c *chanCore) abandonSend(id TaskID) {
	if id == 0 {
		return
	}
	c.mu.Lock()
	c.sendq = removeWaiter(c.sendq, id)
	if !c.closed && c.lenLocked() < c.capacity {
		c.wakeSenderLocked()
	}
	c.mu.Unlock()
}

// abandonRecv is the receiving-side counterpart of abandonSend.
func (c *chanCore) abandonRecv(id TaskID) {
	if id == 0 {
		return
	}
	c.mu.Lock()
	c.recvq = removeWaiter(c.recvq, id)
	if c.lenLocked() > 0 || c.closed {
		c.wakeReceiverLocked()
	}
	c.mu.Unlock()
}

// close marks the channel closed and wakes every waiter so pending sends
// fail and pending receives drain or fail. Idempotent.
func (c *chanCore) close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	senders := c.sendq
	receivers := c.recvq
	c.sendq = nil
	c.recvq = nil
	c.mu.Unlock()

	for _, w := range senders {
		w.Wake()
	}
	for _, w := range receivers {
		w.Wake()
	}
}

// NewChannel builds a bounded channel of the given capacity and returns its
// two halves. Capacity below 1 is treated as 1. Both halves may be shared
// across tasks; every method is safe for concurrent use.
func NewChannel[T any](capacity int) (*Sender[T], *Receiver[T]) {
	core := newChanCore(capacity)
	return &Sender[T]{core: core}, &Receiver[T]{core: core}
}

// Sender is the producing half of a bounded channel.
type Sender[T any] struct {
	core *chanCore
}

// Send returns a future that places v into the channel, suspending while
// the buffer is full. It fails with ErrChannelClosed if the channel closes
// first and ErrCancelled if the sending task is cancelled while waiting.
func (s *Sender[T]) Send(v T) Future {
	return &sendFuture[T]{core: s.core, v: v}
}

type sendFuture[T any] struct {
	core *chanCore
	v    T
	task TaskID
}

func (f *sendFuture[T]) Poll(cx *Context) Outcome {
	if cx.Cancelled() {
		f.cancel(cx.rt)
		return Fail(ErrCancelled)
	}
	f.task = cx.taskID
	w := cx.Waker()
	switch err := f.core.trySend(f.v, &w); err {
	case nil:
		return Ready(nil)
	case ErrChannelFull:
		return Pending()
	default:
		return Fail(err)
	}
}

// cancel withdraws the queued waker and hands any absorbed wake to the next
// live sender.
func (f *sendFuture[T]) cancel(rt *Runtime) {
	f.core.abandonSend(f.task)
}

// TrySend places v without suspending. It returns ErrChannelFull when the
// buffer is full and ErrChannelClosed when the channel is closed.
func (s *Sender[T]) TrySend(v T) error {
	return s.core.trySend(v, nil)
}

// Close closes the channel. Waiting and future sends fail with
// ErrChannelClosed; receivers drain the remaining buffer first.
func (s *Sender[T]) Close() {
	s.core.close()
}

// Receiver is the consuming half of a bounded channel.
type Receiver[T any] struct {
	core *chanCore
}

// Recv returns a future that takes the oldest value from the channel,
// suspending while it is empty. After close it keeps yielding buffered
// values and then fails with ErrChannelClosed.
func (r *Receiver[T]) Recv() Future {
	return &recvFuture[T]{core: r.core}
}

type recvFuture[T any] struct {
	core *chanCore
	task TaskID
}

func (f *recvFuture[T]) Poll(cx *Context) Outcome {
	if cx.Cancelled() {
		f.cancel(cx.rt)
		return Fail(ErrCancelled)
	}
	f.task = cx.taskID
	w := cx.Waker()
	v, err := f.core.tryRecv(&w)
	switch err {
	case nil:
		return Ready(v)
	case ErrChannelEmpty:
		return Pending()
	default:
		return Fail(err)
	}
}

// cancel withdraws the queued waker and hands any absorbed wake to the next
// live receiver.
func (f *recvFuture[T]) cancel(rt *Runtime) {
	f.core.abandonRecv(f.task)
}

// TryRecv takes a value without suspending. It returns ErrChannelEmpty when
// nothing is buffered and ErrChannelClosed once closed and drained.
func (r *Receiver[T]) TryRecv() (T, error) {
	var zero T
	v, err := r.core.tryRecv(nil)
	if err != nil {
		return zero, err
	}
	return v.(T), nil
}

// Len reports the number of buffered values.
func (r *Receiver[T]) Len() int {
	r.core.mu.Lock()
	defer r.core.mu.Unlock()
	return r.core.lenLocked()
}
