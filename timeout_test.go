package strand

import (
	"errors"
	"testing"
	"time"
)

// timeout(50ms, sleep(200ms)) must resolve to Elapsed, never to the value.
func TestTimeoutElapsedScenario(t *testing.T) {
	if testing.Short() {
		t.Skip("timing-sensitive")
	}
	rt := newTestRuntime(t, 2)

	start := time.Now()
	_, err := rt.BlockOn(Timeout(50*time.Millisecond, Sleep(200*time.Millisecond)))
	if !errors.Is(err, ErrElapsed) {
		t.Fatalf("Timeout = %v, want ErrElapsed", err)
	}
	if elapsed := time.Since(start); elapsed >= 200*time.Millisecond {
		t.Fatalf("timeout resolved after %v; inner sleep was awaited", elapsed)
	}
}

func TestTimeoutInnerWins(t *testing.T) {
	rt := newTestRuntime(t, 2)

	v, err := rt.BlockOn(Timeout(time.Hour, Run(func() (any, error) {
		return "fast", nil
	})))
	if err != nil || v != "fast" {
		t.Fatalf("Timeout = (%v, %v), want (fast, nil)", v, err)
	}
}

func TestTimeoutInnerError(t *testing.T) {
	rt := newTestRuntime(t, 2)

	sentinel := errors.New("inner failed")
	_, err := rt.BlockOn(Timeout(time.Hour, Run(func() (any, error) {
		return nil, sentinel
	})))
	if !errors.Is(err, sentinel) {
		t.Fatalf("Timeout = %v, want inner error", err)
	}
}

// A won timeout must release its timer entry rather than leaving it to
// fire later.
func TestTimeoutReleasesTimer(t *testing.T) {
	rt := newTestRuntime(t, 2)

	// Yield forces one pending poll so the timer arm actually registers.
	if _, err := rt.BlockOn(Timeout(time.Hour, Yield())); err != nil {
		t.Fatalf("Timeout: %v", err)
	}
	if n := rt.Stats().TimersPending; n != 0 {
		t.Fatalf("TimersPending = %d after inner win, want 0", n)
	}
}
