//go:build linux

package netpoll

import (
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/sys/unix"
)

type countWaker struct {
	n atomic.Int32
}

func (w *countWaker) Wake() { w.n.Add(1) }

func newTestPipe(t *testing.T) (int, int) {
	t.Helper()
	var fds [2]int
	if err := unix.Pipe2(fds[:], unix.O_CLOEXEC|unix.O_NONBLOCK); err != nil {
		t.Fatalf("pipe2: %v", err)
	}
	t.Cleanup(func() {
		unix.Close(fds[0])
		unix.Close(fds[1])
	})
	return fds[0], fds[1]
}

func TestPollWakesOnReadable(t *testing.T) {
	p, err := New()
	if err != nil {
		t.Fatalf("new poller: %v", err)
	}
	defer p.Close()

	rd, wr := newTestPipe(t)
	waker := &countWaker{}
	if err := p.Register(rd, InterestRead, waker, nil); err != nil {
		t.Fatalf("register: %v", err)
	}

	// Nothing to read yet: poll with a short timeout fires nothing.
	fired, err := p.Poll(10 * time.Millisecond)
	if err != nil {
		t.Fatalf("poll: %v", err)
	}
	if fired != 0 {
		t.Fatalf("fired %d wakers before data was written", fired)
	}

	if _, err := unix.Write(wr, []byte("x")); err != nil {
		t.Fatalf("write: %v", err)
	}
	fired, err = p.Poll(time.Second)
	if err != nil {
		t.Fatalf("poll: %v", err)
	}
	if fired != 1 || waker.n.Load() != 1 {
		t.Fatalf("want one waker fired, got fired=%d count=%d", fired, waker.n.Load())
	}

	r, err := p.Readiness(rd)
	if err != nil {
		t.Fatalf("readiness: %v", err)
	}
	if r&Readable == 0 {
		t.Fatalf("readiness missing Readable: %v", r)
	}
}

func TestPollSurfacesPeerClose(t *testing.T) {
	p, err := New()
	if err != nil {
		t.Fatalf("new poller: %v", err)
	}
	defer p.Close()

	rd, wr := newTestPipe(t)
	waker := &countWaker{}
	if err := p.Register(rd, InterestRead, waker, nil); err != nil {
		t.Fatalf("register: %v", err)
	}

	unix.Close(wr)
	if _, err := p.Poll(time.Second); err != nil {
		t.Fatalf("poll: %v", err)
	}
	if waker.n.Load() == 0 {
		t.Fatalf("waker not fired on peer close")
	}
	r, err := p.Readiness(rd)
	if err != nil {
		t.Fatalf("readiness: %v", err)
	}
	if !r.IsError() {
		t.Fatalf("peer close not surfaced as error readiness: %v", r)
	}
}

func TestWakeInterruptsPoll(t *testing.T) {
	p, err := New()
	if err != nil {
		t.Fatalf("new poller: %v", err)
	}
	defer p.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		// Indefinite poll; only Wake can release it.
		if _, err := p.Poll(-1); err != nil {
			t.Errorf("poll: %v", err)
		}
	}()

	time.Sleep(20 * time.Millisecond)
	p.Wake()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("Wake did not interrupt a blocked Poll")
	}
}

func TestDeregisterStopsWakeups(t *testing.T) {
	p, err := New()
	if err != nil {
		t.Fatalf("new poller: %v", err)
	}
	defer p.Close()

	rd, wr := newTestPipe(t)
	waker := &countWaker{}
	if err := p.Register(rd, InterestRead, waker, nil); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := p.Deregister(rd); err != nil {
		t.Fatalf("deregister: %v", err)
	}
	if err := p.Deregister(rd); err != ErrNotRegistered {
		t.Fatalf("double deregister: want ErrNotRegistered, got %v", err)
	}

	if _, err := unix.Write(wr, []byte("x")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := p.Poll(20 * time.Millisecond); err != nil {
		t.Fatalf("poll: %v", err)
	}
	if waker.n.Load() != 0 {
		t.Fatalf("deregistered fd still fired its waker")
	}
}
