package trace

import (
	"sync"
	"time"
)

// Heartbeat periodically emits heartbeat events so a stalled runtime can be
// told apart from an idle one. The snapshot callback supplies a short stats
// summary carried in the event detail.
type Heartbeat struct {
	tracer   Tracer
	interval time.Duration
	snapshot func() string
	stopCh   chan struct{}
	wg       sync.WaitGroup
	started  bool
	mu       sync.Mutex
}

// StartHeartbeat creates and starts a heartbeat goroutine. A nil snapshot is
// allowed; the detail field is then empty.
func StartHeartbeat(tracer Tracer, interval time.Duration, snapshot func() string) *Heartbeat {
	if tracer == nil || !tracer.Enabled() || interval <= 0 {
		return nil
	}

	h := &Heartbeat{
		tracer:   tracer,
		interval: interval,
		snapshot: snapshot,
		stopCh:   make(chan struct{}),
	}

	h.mu.Lock()
	h.started = true
	h.mu.Unlock()

	h.wg.Add(1)
	go h.run()
	return h
}

func (h *Heartbeat) run() {
	defer h.wg.Done()

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			detail := ""
			if h.snapshot != nil {
				detail = h.snapshot()
			}
			h.tracer.Emit(&Event{
				Time:   time.Now(),
				Kind:   KindHeartbeat,
				Scope:  ScopeRuntime,
				Worker: -1,
				Name:   "heartbeat",
				Detail: detail,
			})
		case <-h.stopCh:
			return
		}
	}
}

// Stop gracefully stops the heartbeat goroutine and waits for it to finish.
func (h *Heartbeat) Stop() {
	if h == nil {
		return
	}
	h.mu.Lock()
	if !h.started {
		h.mu.Unlock()
		return
	}
	h.started = false
	h.mu.Unlock()

	close(h.stopCh)
	h.wg.Wait()
}
