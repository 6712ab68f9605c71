package strand

import (
	"math/rand"
	"sync/atomic"

	"strand/internal/queue"
	"strand/internal/trace"
)

const (
	// fairnessInterval is the poll count between forced injector checks so
	// injected tasks cannot starve behind a busy local ring.
	fairnessInterval = 61
	// injectorBatch caps how many tasks one worker drains from the
	// injector at a time.
	injectorBatch = 32
)

type worker struct {
	rt    *Runtime
	idx   int
	local *queue.Local
	rng   *rand.Rand

	parker chan struct{}
	parked atomic.Bool

	tick  uint32
	batch []uint64
}

func newWorker(rt *Runtime, idx, localSize int, seed uint64) *worker {
	return &worker{
		rt:     rt,
		idx:    idx,
		local:  queue.NewLocal(localSize),
		rng:    rand.New(rand.NewSource(int64(seed))), //nolint:gosec
		parker: make(chan struct{}, 1),
		batch:  make([]uint64, 0, injectorBatch),
	}
}

func (w *worker) run() {
	defer w.rt.wg.Done()
	for {
		select {
		case <-w.rt.shutdownCh:
			return
		default:
		}
		id, ok := w.next()
		if !ok {
			if !w.park() {
				return
			}
			continue
		}
		w.rt.pollTask(w, TaskID(id))
	}
}

// next picks the worker's next ready task: local ring first, then an
// injector batch, then stealing. The fairness tick forces an injector look
// ahead of the local ring every fairnessInterval polls.
func (w *worker) next() (uint64, bool) {
	w.tick++
	if w.tick%fairnessInterval == 0 {
		if id, ok := w.popInjector(); ok {
			return id, true
		}
	}
	if id, ok := w.local.Pop(); ok {
		return id, true
	}
	if id, ok := w.popInjector(); ok {
		return id, true
	}
	return w.steal()
}

func (w *worker) popInjector() (uint64, bool) {
	w.batch = w.rt.injector.PopBatch(w.batch[:0], injectorBatch)
	if len(w.batch) == 0 {
		return 0, false
	}
	id := w.batch[0]
	for _, rest := range w.batch[1:] {
		if !w.local.Push(rest) {
			w.rt.injector.Push(rest)
		}
	}
	return id, true
}

// steal takes half of a victim's local ring, starting from a random victim
// so contention spreads.
func (w *worker) steal() (uint64, bool) {
	n := len(w.rt.workers)
	if n <= 1 {
		return 0, false
	}
	start := w.rng.Intn(n)
	for i := 0; i < n; i++ {
		victim := w.rt.workers[(start+i)%n]
		if victim == w {
			continue
		}
		if id, ok := victim.local.StealInto(w.local, &w.rt.injector); ok {
			w.rt.stats.steals.Add(1)
			trace.Point(w.rt.tracer, trace.KindSteal, trace.ScopeRuntime, w.idx, id, "steal", "")
			return id, true
		}
	}
	return 0, false
}

// park blocks until unparked or shutdown. The flag is set before the final
// re-check so an enqueue racing with parking cannot be missed: either the
// re-check sees the task, or the producer sees the flag and sends a token.
func (w *worker) park() bool {
	w.parked.Store(true)
	if w.local.Len() > 0 || w.rt.injector.Len() > 0 {
		w.parked.Store(false)
		return true
	}
	w.rt.stats.parks.Add(1)
	trace.Point(w.rt.tracer, trace.KindPark, trace.ScopeRuntime, w.idx, 0, "park", "")
	select {
	case <-w.parker:
		trace.Point(w.rt.tracer, trace.KindUnpark, trace.ScopeRuntime, w.idx, 0, "unpark", "")
		return true
	case <-w.rt.shutdownCh:
		return false
	}
}

// unpark wakes the worker if it is parked. Reports whether a token was
// delivered.
func (w *worker) unpark() bool {
	if !w.parked.CompareAndSwap(true, false) {
		return false
	}
	select {
	case w.parker <- struct{}{}:
	default:
	}
	return true
}
