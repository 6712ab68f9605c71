package strand

import "sync"

// CancellationToken is a tree-structured stop flag. Cancelling a token
// cancels every descendant; the flag is monotonic and never reverses.
// Cancelling a child leaves the parent untouched. Tokens are independent of
// task parentage: they broadcast intent, and tasks observe it wherever they
// hold a token.
type CancellationToken struct {
	mu        sync.Mutex
	cancelled bool
	children  []*CancellationToken
	waiters   []Waker
}

// NewCancellationToken returns a root token in the not-cancelled state.
func NewCancellationToken() *CancellationToken {
	return &CancellationToken{}
}

// ChildToken derives a token that is cancelled when this token is. A child
// created after the parent was cancelled starts out cancelled.
func (t *CancellationToken) ChildToken() *CancellationToken {
	child := &CancellationToken{}
	t.mu.Lock()
	if t.cancelled {
		child.cancelled = true
	} else {
		t.children = append(t.children, child)
	}
	t.mu.Unlock()
	return child
}

// Cancel sets the flag on this token and all descendants and wakes every
// task suspended on Cancelled. Idempotent.
func (t *CancellationToken) Cancel() {
	t.mu.Lock()
	if t.cancelled {
		t.mu.Unlock()
		return
	}
	t.cancelled = true
	children := t.children
	waiters := t.waiters
	t.children = nil
	t.waiters = nil
	t.mu.Unlock()

	for _, w := range waiters {
		w.Wake()
	}
	for _, child := range children {
		child.Cancel()
	}
}

// IsCancelled reports the flag without suspending.
func (t *CancellationToken) IsCancelled() bool {
	t.mu.Lock()
	c := t.cancelled
	t.mu.Unlock()
	return c
}

// Cancelled returns a future that completes when the token is cancelled.
// If the token is already cancelled the future completes on its first poll.
func (t *CancellationToken) Cancelled() Future {
	return FutureFunc(func(cx *Context) Outcome {
		if cx.Cancelled() {
			return Fail(ErrCancelled)
		}
		t.mu.Lock()
		if t.cancelled {
			t.mu.Unlock()
			return Ready(nil)
		}
		w := cx.Waker()
		t.waiters = addWakerOnce(t.waiters, w)
		t.mu.Unlock()
		return Pending()
	})
}
