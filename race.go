package strand

// RaceResult identifies which arm of a race completed first and carries
// its value.
type RaceResult struct {
	// Index is the winning arm's position in the Race call.
	Index int
	// Value is the winning arm's result.
	Value any
}

type raceFuture struct {
	arms   []Future
	order  []int
	biased bool
}

// Race returns a future that completes with the first arm to finish;
// remaining arms are cancelled and their resources released. When several
// arms become ready in the same scheduling tick the winner is chosen at
// random so no arm position is systematically favored. A winning arm's
// error completes the race with that error.
func Race(arms ...Future) Future {
	if len(arms) == 0 {
		panic("strand: Race requires at least one arm")
	}
	return &raceFuture{arms: arms, order: make([]int, len(arms))}
}

// RaceBiased is Race with deterministic arm order: arms are polled in
// argument order every tick, so earlier arms win ties.
func RaceBiased(arms ...Future) Future {
	if len(arms) == 0 {
		panic("strand: RaceBiased requires at least one arm")
	}
	return &raceFuture{arms: arms, order: make([]int, len(arms)), biased: true}
}

func (r *raceFuture) Poll(cx *Context) Outcome {
	if cx.Cancelled() {
		r.cancelArms(cx.rt, -1)
		return Fail(ErrCancelled)
	}

	for i := range r.order {
		r.order[i] = i
	}
	if !r.biased {
		cx.worker.rng.Shuffle(len(r.order), func(i, j int) {
			r.order[i], r.order[j] = r.order[j], r.order[i]
		})
	}

	for _, idx := range r.order {
		out := r.arms[idx].Poll(cx)
		if !out.done {
			continue
		}
		r.cancelArms(cx.rt, idx)
		if out.err != nil {
			return Fail(out.err)
		}
		return Ready(RaceResult{Index: idx, Value: out.value})
	}
	return Pending()
}

// cancel releases every arm; invoked when the racing task itself is
// cancelled before its next poll.
func (r *raceFuture) cancel(rt *Runtime) {
	r.cancelArms(rt, -1)
}

// cancelArms releases resources held by every arm except the winner.
func (r *raceFuture) cancelArms(rt *Runtime, winner int) {
	for i, arm := range r.arms {
		if i == winner {
			continue
		}
		if c, ok := arm.(canceller); ok {
			c.cancel(rt)
		}
	}
}
