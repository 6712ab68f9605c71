package strand

import (
	"container/heap"
	"sync"
	"time"
)

// timerID identifies a scheduled timer entry.
type timerID uint64

// maxSleep caps duration-to-deadline conversion so pathological durations
// saturate instead of overflowing the monotonic clock arithmetic.
const maxSleep = 100 * 365 * 24 * time.Hour

// timerWaker is the minimal wake capability a timer entry carries.
type timerWaker interface {
	Wake()
}

type timerEntry struct {
	id       timerID
	seq      uint64
	deadline time.Time
	waker    timerWaker
	// cancelled entries stay in the heap and are skipped at pop time.
	cancelled bool
}

type timerHeap []*timerEntry

func (h timerHeap) Len() int { return len(h) }

func (h timerHeap) Less(i, j int) bool {
	if h[i].deadline.Equal(h[j].deadline) {
		// Equal deadlines fire in insertion order.
		return h[i].seq < h[j].seq
	}
	return h[i].deadline.Before(h[j].deadline)
}

func (h timerHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *timerHeap) Push(x any) {
	entry, ok := x.(*timerEntry)
	if !ok || entry == nil {
		return
	}
	*h = append(*h, entry)
}

func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	if n == 0 {
		return (*timerEntry)(nil)
	}
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}

// timerQueue is the runtime's deadline-ordered pending-waker structure. Its
// next deadline feeds the reactor's poll timeout; wakePoller interrupts a
// blocked poll when a new earliest deadline arrives.
type timerQueue struct {
	mu         sync.Mutex
	entries    timerHeap
	byID       map[timerID]*timerEntry
	nextID     timerID
	nextSeq    uint64
	wakePoller func()
}

func newTimerQueue(wakePoller func()) *timerQueue {
	return &timerQueue{
		byID:       make(map[timerID]*timerEntry),
		wakePoller: wakePoller,
	}
}

// scheduleAt inserts an entry. Registering an earlier deadline than the
// current minimum interrupts the poller so the new timeout takes effect.
func (q *timerQueue) scheduleAt(deadline time.Time, w timerWaker) timerID {
	q.mu.Lock()
	q.nextID++
	q.nextSeq++
	entry := &timerEntry{
		id:       q.nextID,
		seq:      q.nextSeq,
		deadline: deadline,
		waker:    w,
	}
	q.byID[entry.id] = entry
	heap.Push(&q.entries, entry)
	isMin := q.entries[0] == entry
	q.mu.Unlock()

	if isMin && q.wakePoller != nil {
		q.wakePoller()
	}
	return entry.id
}

// scheduleAfter converts a duration to a saturated deadline and inserts it.
func (q *timerQueue) scheduleAfter(d time.Duration, w timerWaker) timerID {
	return q.scheduleAt(deadlineFor(d), w)
}

func deadlineFor(d time.Duration) time.Time {
	if d < 0 {
		d = 0
	}
	if d > maxSleep {
		d = maxSleep
	}
	return time.Now().Add(d)
}

// cancel marks an entry invalid in O(1); the heap drops it lazily at pop.
func (q *timerQueue) cancel(id timerID) {
	if id == 0 {
		return
	}
	q.mu.Lock()
	if entry := q.byID[id]; entry != nil {
		entry.cancelled = true
		delete(q.byID, id)
	}
	q.mu.Unlock()
}

// active reports whether an entry is still pending.
func (q *timerQueue) active(id timerID) bool {
	if id == 0 {
		return false
	}
	q.mu.Lock()
	entry := q.byID[id]
	q.mu.Unlock()
	return entry != nil && !entry.cancelled
}

// nextDeadline returns the earliest live deadline, if any.
func (q *timerQueue) nextDeadline() (time.Time, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.entries) > 0 {
		head := q.entries[0]
		if head == nil || head.cancelled {
			heap.Pop(&q.entries)
			continue
		}
		return head.deadline, true
	}
	return time.Time{}, false
}

// fire pops every entry due at now, in deadline order with insertion-order
// ties, and invokes its waker. Cancelled entries are skipped. Returns the
// number of wakers fired.
func (q *timerQueue) fire(now time.Time) int {
	fired := 0
	for {
		q.mu.Lock()
		if len(q.entries) == 0 {
			q.mu.Unlock()
			return fired
		}
		head := q.entries[0]
		if head == nil || head.cancelled {
			heap.Pop(&q.entries)
			q.mu.Unlock()
			continue
		}
		if head.deadline.After(now) {
			q.mu.Unlock()
			return fired
		}
		heap.Pop(&q.entries)
		delete(q.byID, head.id)
		waker := head.waker
		q.mu.Unlock()

		// Invoke outside the lock: waking may enqueue and unpark.
		if waker != nil {
			waker.Wake()
		}
		fired++
	}
}

// len reports the number of live entries.
func (q *timerQueue) len() int {
	q.mu.Lock()
	n := len(q.byID)
	q.mu.Unlock()
	return n
}

// sleepFuture resolves once its deadline passes. The entry registers on
// first poll; later polls tolerate spurious wakeups by re-checking.
type sleepFuture struct {
	duration   time.Duration
	deadline   time.Time
	useAt      bool
	id         timerID
	registered bool
	rt         *Runtime
}

// Sleep returns a future that suspends the task for at least d.
func Sleep(d time.Duration) Future {
	return &sleepFuture{duration: d}
}

// At returns a future that suspends the task until the given deadline.
func At(deadline time.Time) Future {
	return &sleepFuture{deadline: deadline, useAt: true}
}

// Poll implements Future.
func (f *sleepFuture) Poll(cx *Context) Outcome {
	if cx.Cancelled() {
		f.cancel(cx.rt)
		return Fail(ErrCancelled)
	}
	if !f.registered {
		f.rt = cx.rt
		f.registered = true
		if !f.useAt {
			f.deadline = deadlineFor(f.duration)
		}
		if !f.deadline.After(time.Now()) {
			return Ready(nil)
		}
		f.id = cx.rt.timers.scheduleAt(f.deadline, cx.Waker())
		cx.rt.stats.timersScheduled.Add(1)
		return Pending()
	}
	if cx.rt.timers.active(f.id) {
		// Spurious wakeup; the deadline has not fired yet.
		return Pending()
	}
	return Ready(nil)
}

// cancel releases the timer entry when the future is discarded by a race.
func (f *sleepFuture) cancel(rt *Runtime) {
	if f.registered && f.id != 0 {
		rt.timers.cancel(f.id)
	}
}
