package queue

import (
	"sync"
	"testing"
)

func TestLocalFIFO(t *testing.T) {
	q := NewLocal(8)
	for i := uint64(1); i <= 5; i++ {
		if !q.Push(i) {
			t.Fatalf("push %d failed", i)
		}
	}
	for i := uint64(1); i <= 5; i++ {
		id, ok := q.Pop()
		if !ok || id != i {
			t.Fatalf("pop: want (%d, true), got (%d, %v)", i, id, ok)
		}
	}
	if _, ok := q.Pop(); ok {
		t.Fatalf("pop on empty ring succeeded")
	}
}

func TestLocalPushFull(t *testing.T) {
	q := NewLocal(4)
	for i := uint64(0); i < 4; i++ {
		if !q.Push(i) {
			t.Fatalf("push %d failed below capacity", i)
		}
	}
	if q.Push(99) {
		t.Fatalf("push succeeded on full ring")
	}
	if q.Len() != 4 {
		t.Fatalf("len: want 4, got %d", q.Len())
	}
}

func TestPushOrSpillMovesHalfToInjector(t *testing.T) {
	q := NewLocal(4)
	inj := &Injector{}
	for i := uint64(1); i <= 4; i++ {
		q.PushOrSpill(i, inj)
	}
	if inj.Len() != 0 {
		t.Fatalf("spilled before ring was full")
	}
	q.PushOrSpill(5, inj)
	if inj.Len() != 2 {
		t.Fatalf("injector len: want 2, got %d", inj.Len())
	}
	// Oldest entries spill first.
	for want := uint64(1); want <= 2; want++ {
		id, ok := inj.Pop()
		if !ok || id != want {
			t.Fatalf("injector pop: want (%d, true), got (%d, %v)", want, id, ok)
		}
	}
	// Ring keeps the remainder in order.
	for want := uint64(3); want <= 5; want++ {
		id, ok := q.Pop()
		if !ok || id != want {
			t.Fatalf("ring pop: want (%d, true), got (%d, %v)", want, id, ok)
		}
	}
}

func TestStealIntoTakesHalf(t *testing.T) {
	victim := NewLocal(8)
	thief := NewLocal(8)
	for i := uint64(1); i <= 6; i++ {
		victim.Push(i)
	}
	var inj Injector
	id, ok := victim.StealInto(thief, &inj)
	if !ok {
		t.Fatalf("steal from non-empty victim failed")
	}
	if id != 1 {
		t.Fatalf("stolen head: want 1, got %d", id)
	}
	if thief.Len() != 2 {
		t.Fatalf("thief len: want 2, got %d", thief.Len())
	}
	if victim.Len() != 3 {
		t.Fatalf("victim len: want 3, got %d", victim.Len())
	}
}

func TestStealFromEmpty(t *testing.T) {
	victim := NewLocal(8)
	thief := NewLocal(8)
	var inj Injector
	if _, ok := victim.StealInto(thief, &inj); ok {
		t.Fatalf("steal from empty victim succeeded")
	}
	if _, ok := victim.StealInto(victim, &inj); ok {
		t.Fatalf("self-steal succeeded")
	}
}

func TestInjectorBatch(t *testing.T) {
	inj := &Injector{}
	inj.PushBatch([]uint64{1, 2, 3, 4, 5})
	got := inj.PopBatch(nil, 3)
	if len(got) != 3 || got[0] != 1 || got[1] != 2 || got[2] != 3 {
		t.Fatalf("pop batch: want [1 2 3], got %v", got)
	}
	if inj.Len() != 2 {
		t.Fatalf("len after batch pop: want 2, got %d", inj.Len())
	}
}

func TestInjectorConcurrent(t *testing.T) {
	inj := &Injector{}
	const producers = 8
	const perProducer = 1000

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(base uint64) {
			defer wg.Done()
			for i := uint64(0); i < perProducer; i++ {
				inj.Push(base + i)
			}
		}(uint64(p) * perProducer)
	}
	wg.Wait()

	seen := make(map[uint64]struct{}, producers*perProducer)
	for {
		id, ok := inj.Pop()
		if !ok {
			break
		}
		if _, dup := seen[id]; dup {
			t.Fatalf("duplicate id %d", id)
		}
		seen[id] = struct{}{}
	}
	if len(seen) != producers*perProducer {
		t.Fatalf("drained %d ids, want %d", len(seen), producers*perProducer)
	}
}

// A thief's ring can refill between its emptiness check and the steal, so
// stolen IDs that no longer fit must land in the injector, not vanish.
func TestStealIntoFullThiefSpillsToInjector(t *testing.T) {
	victim := NewLocal(4)
	thief := NewLocal(4)
	var inj Injector

	for i := uint64(1); i <= 4; i++ {
		victim.Push(i)
	}
	for i := uint64(10); i <= 13; i++ {
		thief.Push(i)
	}

	id, ok := victim.StealInto(thief, &inj)
	if !ok {
		t.Fatalf("steal from non-empty victim failed")
	}

	seen := map[uint64]bool{id: true}
	for {
		v, ok := thief.Pop()
		if !ok {
			break
		}
		seen[v] = true
	}
	for {
		v, ok := victim.Pop()
		if !ok {
			break
		}
		seen[v] = true
	}
	for {
		v, ok := inj.Pop()
		if !ok {
			break
		}
		seen[v] = true
	}
	for i := uint64(1); i <= 4; i++ {
		if !seen[i] {
			t.Fatalf("victim ID %d lost in steal", i)
		}
	}
	for i := uint64(10); i <= 13; i++ {
		if !seen[i] {
			t.Fatalf("thief ID %d lost in steal", i)
		}
	}
}
