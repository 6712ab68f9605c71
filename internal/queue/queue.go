// Package queue provides the ready queues used by the scheduler: a bounded
// per-worker local ring and a shared unbounded injector. Both hold task IDs
// only; resolving an ID back to a task is the scheduler's job.
package queue

import "sync"

// DefaultLocalCapacity is the ring size used for per-worker queues.
const DefaultLocalCapacity = 256

// Local is a bounded FIFO ring owned by one worker. The owning worker is the
// only consumer; any thread may push (wakers carry a preferred worker), so
// pushes take a short critical section.
type Local struct {
	mu   sync.Mutex
	buf  []uint64
	head uint32
	tail uint32
	mask uint32
}

// NewLocal constructs a local ring. Capacity is rounded up to a power of two;
// zero or negative selects DefaultLocalCapacity.
func NewLocal(capacity int) *Local {
	if capacity <= 0 {
		capacity = DefaultLocalCapacity
	}
	size := uint32(1)
	for int(size) < capacity {
		size <<= 1
	}
	return &Local{
		buf:  make([]uint64, size),
		mask: size - 1,
	}
}

// Len reports the number of queued IDs.
func (q *Local) Len() int {
	if q == nil {
		return 0
	}
	q.mu.Lock()
	n := int(q.tail - q.head)
	q.mu.Unlock()
	return n
}

// Push appends an ID. It reports false when the ring is full; the caller is
// expected to spill into the injector.
func (q *Local) Push(id uint64) bool {
	if q == nil {
		return false
	}
	q.mu.Lock()
	if q.tail-q.head > q.mask {
		q.mu.Unlock()
		return false
	}
	q.buf[q.tail&q.mask] = id
	q.tail++
	q.mu.Unlock()
	return true
}

// PushOrSpill appends an ID, moving half of the ring plus the new ID into the
// injector when the ring is full. Spilling half at once keeps a hot worker
// from bouncing every push to the shared queue. It reports whether anything
// was spilled.
func (q *Local) PushOrSpill(id uint64, inj *Injector) bool {
	if q == nil {
		inj.Push(id)
		return true
	}
	q.mu.Lock()
	if q.tail-q.head <= q.mask {
		q.buf[q.tail&q.mask] = id
		q.tail++
		q.mu.Unlock()
		return false
	}
	n := (q.tail - q.head) / 2
	spill := make([]uint64, 0, n+1)
	for i := uint32(0); i < n; i++ {
		spill = append(spill, q.buf[q.head&q.mask])
		q.head++
	}
	q.buf[q.tail&q.mask] = id
	q.tail++
	q.mu.Unlock()
	inj.PushBatch(spill)
	return true
}

// Pop removes the oldest ID. Only the owning worker calls Pop.
func (q *Local) Pop() (uint64, bool) {
	if q == nil {
		return 0, false
	}
	q.mu.Lock()
	if q.head == q.tail {
		q.mu.Unlock()
		return 0, false
	}
	id := q.buf[q.head&q.mask]
	q.head++
	q.mu.Unlock()
	return id, true
}

// StealInto moves roughly half of q into dst and returns one stolen ID for
// the thief to run immediately. The thief steals with an empty ring, but
// any thread may push to it concurrently via preferred-worker wakes, so IDs
// that no longer fit overflow into inj rather than being dropped. Reports
// false when q had nothing to take.
func (q *Local) StealInto(dst *Local, inj *Injector) (uint64, bool) {
	if q == nil || dst == nil || q == dst {
		return 0, false
	}
	q.mu.Lock()
	avail := q.tail - q.head
	if avail == 0 {
		q.mu.Unlock()
		return 0, false
	}
	n := avail - avail/2
	taken := make([]uint64, 0, n)
	for i := uint32(0); i < n; i++ {
		taken = append(taken, q.buf[q.head&q.mask])
		q.head++
	}
	q.mu.Unlock()

	first := taken[0]
	for i, id := range taken[1:] {
		if !dst.Push(id) {
			inj.PushBatch(taken[1+i:])
			break
		}
	}
	return first, true
}

// Injector is the shared multi-producer multi-consumer overflow queue.
// Externally spawned tasks and spilled local work land here.
type Injector struct {
	mu   sync.Mutex
	buf  []uint64
	head int
}

// Len reports the number of queued IDs.
func (q *Injector) Len() int {
	if q == nil {
		return 0
	}
	q.mu.Lock()
	n := len(q.buf) - q.head
	q.mu.Unlock()
	return n
}

// Push appends one ID.
func (q *Injector) Push(id uint64) {
	if q == nil {
		return
	}
	q.mu.Lock()
	q.buf = append(q.buf, id)
	q.mu.Unlock()
}

// PushBatch appends IDs preserving order.
func (q *Injector) PushBatch(ids []uint64) {
	if q == nil || len(ids) == 0 {
		return
	}
	q.mu.Lock()
	q.buf = append(q.buf, ids...)
	q.mu.Unlock()
}

// Pop removes the oldest ID.
func (q *Injector) Pop() (uint64, bool) {
	if q == nil {
		return 0, false
	}
	q.mu.Lock()
	id, ok := q.popLocked()
	q.mu.Unlock()
	return id, ok
}

// PopBatch removes up to max IDs in FIFO order, appending them to dst, and
// returns the extended slice. Workers use it to refill a local ring in one
// critical section.
func (q *Injector) PopBatch(dst []uint64, max int) []uint64 {
	if q == nil || max <= 0 {
		return dst
	}
	q.mu.Lock()
	for len(dst) < max {
		id, ok := q.popLocked()
		if !ok {
			break
		}
		dst = append(dst, id)
	}
	q.mu.Unlock()
	return dst
}

func (q *Injector) popLocked() (uint64, bool) {
	if q.head >= len(q.buf) {
		return 0, false
	}
	id := q.buf[q.head]
	q.head++
	if q.head >= len(q.buf) {
		q.buf = q.buf[:0]
		q.head = 0
	} else if q.head > 128 && q.head*2 >= len(q.buf) {
		remaining := append([]uint64(nil), q.buf[q.head:]...)
		q.buf = remaining
		q.head = 0
	}
	return id, true
}
