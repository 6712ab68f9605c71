//go:build linux

package strand

import (
	"errors"
	"testing"
	"time"

	"golang.org/x/sys/unix"

	"strand/internal/netpoll"
)

func testPipe(t *testing.T) (r, w int) {
	t.Helper()
	var fds [2]int
	if err := unix.Pipe2(fds[:], unix.O_NONBLOCK|unix.O_CLOEXEC); err != nil {
		t.Fatalf("pipe2: %v", err)
	}
	t.Cleanup(func() {
		unix.Close(fds[0])
		unix.Close(fds[1])
	})
	return fds[0], fds[1]
}

func TestWaitIOReadable(t *testing.T) {
	rt := newTestRuntime(t, 2)
	r, w := testPipe(t)

	if err := rt.RegisterIO(r, IOReadable); err != nil {
		t.Fatalf("RegisterIO: %v", err)
	}
	defer rt.DeregisterIO(r)

	h := rt.Spawn(rt.WaitIO(r, IOReadable))
	time.Sleep(20 * time.Millisecond)
	if h.Done() {
		t.Fatal("WaitIO resolved before any data")
	}

	if _, err := unix.Write(w, []byte("x")); err != nil {
		t.Fatalf("write: %v", err)
	}
	v, err := h.Wait()
	if err != nil {
		t.Fatalf("WaitIO: %v", err)
	}
	ready := v.(IOReadiness)
	if !ready.Readable {
		t.Fatalf("readiness = %+v, want Readable", ready)
	}
}

func TestWaitIOWritable(t *testing.T) {
	rt := newTestRuntime(t, 2)
	_, w := testPipe(t)

	if err := rt.RegisterIO(w, IOWritable); err != nil {
		t.Fatalf("RegisterIO: %v", err)
	}
	defer rt.DeregisterIO(w)

	// An empty pipe is immediately writable.
	v, err := rt.BlockOn(rt.WaitIO(w, IOWritable))
	if err != nil {
		t.Fatalf("WaitIO: %v", err)
	}
	if ready := v.(IOReadiness); !ready.Writable {
		t.Fatalf("readiness = %+v, want Writable", ready)
	}
}

func TestWaitIOPeerCloseIsReadyWithError(t *testing.T) {
	rt := newTestRuntime(t, 2)
	r, w := testPipe(t)

	if err := rt.RegisterIO(r, IOReadable); err != nil {
		t.Fatalf("RegisterIO: %v", err)
	}
	defer rt.DeregisterIO(r)

	h := rt.Spawn(rt.WaitIO(r, IOReadable))
	time.Sleep(20 * time.Millisecond)
	unix.Close(w)

	v, err := h.Wait()
	if err != nil {
		t.Fatalf("WaitIO after peer close: %v", err)
	}
	ready := v.(IOReadiness)
	if !ready.Hangup && !ready.Readable {
		t.Fatalf("readiness = %+v, want hangup or readable after peer close", ready)
	}
}

func TestWaitIOUnregistered(t *testing.T) {
	rt := newTestRuntime(t, 1)
	r, _ := testPipe(t)

	_, err := rt.BlockOn(rt.WaitIO(r, IOReadable))
	if !errors.Is(err, netpoll.ErrNotRegistered) {
		t.Fatalf("WaitIO on unregistered fd = %v, want ErrNotRegistered", err)
	}
}
