package strand

import (
	"errors"
	"testing"
	"time"
)

func TestChannelSendRecv(t *testing.T) {
	rt := newTestRuntime(t, 2)
	tx, rx := NewChannel[int](4)

	producer := rt.Spawn(sendAll(tx, []int{1, 2, 3}))
	if _, err := producer.Wait(); err != nil {
		t.Fatalf("producer: %v", err)
	}

	for want := 1; want <= 3; want++ {
		v, err := rt.BlockOn(rx.Recv())
		if err != nil {
			t.Fatalf("Recv: %v", err)
		}
		if v != want {
			t.Fatalf("Recv = %v, want %d (FIFO order)", v, want)
		}
	}
}

// sendAll sends values one at a time, suspending on backpressure.
func sendAll[T any](tx *Sender[T], values []T) Future {
	i := 0
	var pending Future
	return FutureFunc(func(cx *Context) Outcome {
		for i < len(values) {
			if pending == nil {
				pending = tx.Send(values[i])
			}
			out := pending.Poll(cx)
			if !out.IsReady() {
				return Pending()
			}
			if out.Err() != nil {
				return Fail(out.Err())
			}
			pending = nil
			i++
		}
		return Ready(nil)
	})
}

func TestChannelBackpressure(t *testing.T) {
	rt := newTestRuntime(t, 2)
	tx, rx := NewChannel[int](2)

	// Fill the buffer without suspending.
	if err := tx.TrySend(1); err != nil {
		t.Fatalf("TrySend 1: %v", err)
	}
	if err := tx.TrySend(2); err != nil {
		t.Fatalf("TrySend 2: %v", err)
	}
	if err := tx.TrySend(3); !errors.Is(err, ErrChannelFull) {
		t.Fatalf("TrySend on full = %v, want ErrChannelFull", err)
	}

	// A suspending send must park until a receive frees a slot.
	sender := rt.Spawn(tx.Send(3))
	time.Sleep(20 * time.Millisecond)
	if sender.Done() {
		t.Fatal("send on full channel completed without a recv")
	}

	if v, err := rt.BlockOn(rx.Recv()); err != nil || v != 1 {
		t.Fatalf("Recv = (%v, %v), want (1, nil)", v, err)
	}
	if _, err := sender.Wait(); err != nil {
		t.Fatalf("parked sender: %v", err)
	}
}

func TestChannelRecvSuspendsUntilSend(t *testing.T) {
	rt := newTestRuntime(t, 2)
	tx, rx := NewChannel[string](1)

	receiver := rt.Spawn(rx.Recv())
	time.Sleep(20 * time.Millisecond)
	if receiver.Done() {
		t.Fatal("recv on empty channel completed without a send")
	}

	if err := tx.TrySend("hello"); err != nil {
		t.Fatalf("TrySend: %v", err)
	}
	v, err := receiver.Wait()
	if err != nil || v != "hello" {
		t.Fatalf("Recv = (%v, %v), want (hello, nil)", v, err)
	}
}

func TestChannelClose(t *testing.T) {
	rt := newTestRuntime(t, 2)
	tx, rx := NewChannel[int](4)

	if err := tx.TrySend(1); err != nil {
		t.Fatalf("TrySend: %v", err)
	}
	tx.Close()

	// The buffer drains before close is observed.
	if v, err := rt.BlockOn(rx.Recv()); err != nil || v != 1 {
		t.Fatalf("drain Recv = (%v, %v), want (1, nil)", v, err)
	}
	if _, err := rt.BlockOn(rx.Recv()); !errors.Is(err, ErrChannelClosed) {
		t.Fatalf("Recv after drain = %v, want ErrChannelClosed", err)
	}
	if _, err := rt.BlockOn(tx.Send(2)); !errors.Is(err, ErrChannelClosed) {
		t.Fatalf("Send after close = %v, want ErrChannelClosed", err)
	}
	if err := tx.TrySend(3); !errors.Is(err, ErrChannelClosed) {
		t.Fatalf("TrySend after close = %v, want ErrChannelClosed", err)
	}
}

func TestChannelCloseWakesParkedSender(t *testing.T) {
	rt := newTestRuntime(t, 2)
	tx, _ := NewChannel[int](1)

	if err := tx.TrySend(1); err != nil {
		t.Fatalf("TrySend: %v", err)
	}
	sender := rt.Spawn(tx.Send(2))
	time.Sleep(20 * time.Millisecond)
	tx.Close()

	if _, err := sender.Wait(); !errors.Is(err, ErrChannelClosed) {
		t.Fatalf("parked sender after close = %v, want ErrChannelClosed", err)
	}
}

func TestChannelCloseWakesParkedReceiver(t *testing.T) {
	rt := newTestRuntime(t, 2)
	tx, rx := NewChannel[int](1)

	receiver := rt.Spawn(rx.Recv())
	time.Sleep(20 * time.Millisecond)
	tx.Close()

	if _, err := receiver.Wait(); !errors.Is(err, ErrChannelClosed) {
		t.Fatalf("parked receiver after close = %v, want ErrChannelClosed", err)
	}
}

// A cancelled sender sitting at the head of the wait queue must not absorb
// the single wake a recv hands out; the next live sender gets the slot.
func TestChannelCancelledSenderPassesWake(t *testing.T) {
	rt := newTestRuntime(t, 1)
	tx, rx := NewChannel[int](1)

	if err := tx.TrySend(0); err != nil {
		t.Fatalf("TrySend: %v", err)
	}
	a := rt.Spawn(tx.Send(1))
	time.Sleep(20 * time.Millisecond)
	b := rt.Spawn(tx.Send(2))
	time.Sleep(20 * time.Millisecond)

	a.Cancel()
	if _, err := a.Wait(); !errors.Is(err, ErrCancelled) {
		t.Fatalf("cancelled sender Wait = %v, want ErrCancelled", err)
	}

	if v, err := rx.TryRecv(); err != nil || v != 0 {
		t.Fatalf("TryRecv = (%v, %v), want (0, nil)", v, err)
	}
	if _, err := b.Wait(); err != nil {
		t.Fatalf("queued sender after cancel = %v, want nil (missed wakeup)", err)
	}
	if v, err := rt.BlockOn(rx.Recv()); err != nil || v != 2 {
		t.Fatalf("Recv = (%v, %v), want (2, nil)", v, err)
	}
}

// Symmetric to the sender case: a cancelled receiver must not swallow the
// wake a send hands out.
func TestChannelCancelledReceiverPassesWake(t *testing.T) {
	rt := newTestRuntime(t, 1)
	tx, rx := NewChannel[int](1)

	a := rt.Spawn(rx.Recv())
	time.Sleep(20 * time.Millisecond)
	b := rt.Spawn(rx.Recv())
	time.Sleep(20 * time.Millisecond)

	a.Cancel()
	if _, err := a.Wait(); !errors.Is(err, ErrCancelled) {
		t.Fatalf("cancelled receiver Wait = %v, want ErrCancelled", err)
	}

	if err := tx.TrySend(7); err != nil {
		t.Fatalf("TrySend: %v", err)
	}
	v, err := b.Wait()
	if err != nil || v != 7 {
		t.Fatalf("queued receiver after cancel = (%v, %v), want (7, nil)", v, err)
	}
}

func TestChannelTryRecvEmpty(t *testing.T) {
	_, rx := NewChannel[int](1)
	if _, err := rx.TryRecv(); !errors.Is(err, ErrChannelEmpty) {
		t.Fatalf("TryRecv on empty = %v, want ErrChannelEmpty", err)
	}
}

// Capacity 1, five sends, each recv delayed 50ms: total send time must show
// the producer was blocked by backpressure, not buffering ahead.
func TestChannelProducerBlocksScenario(t *testing.T) {
	if testing.Short() {
		t.Skip("timing-sensitive")
	}
	rt := newTestRuntime(t, 2)
	tx, rx := NewChannel[int](1)

	start := time.Now()
	producer := rt.Spawn(sendAll(tx, []int{1, 2, 3, 4, 5}))

	const delay = 50 * time.Millisecond
	for want := 1; want <= 5; want++ {
		time.Sleep(delay)
		v, err := rt.BlockOn(rx.Recv())
		if err != nil {
			t.Fatalf("Recv: %v", err)
		}
		if v != want {
			t.Fatalf("Recv = %v, want %d", v, want)
		}
	}
	if _, err := producer.Wait(); err != nil {
		t.Fatalf("producer: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 4*delay {
		t.Fatalf("all sends completed in %v; want >= %v (producer must block)", elapsed, 4*delay)
	}
}
