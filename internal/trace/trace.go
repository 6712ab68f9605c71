// Package trace records scheduler activity as a stream of events: task
// spawns, polls, wakes, parks, steals, timer fires, and faults. Sinks are
// pluggable: a ring buffer for post-mortem inspection, a stream writer for
// live capture, or both. The runtime emits through a Tracer; everything here
// must be safe for concurrent use.
package trace

import (
	"fmt"
	"io"
	"os"
	"sync/atomic"
	"time"

	"fortio.org/safecast"
)

// Tracer is the sink interface for runtime events.
type Tracer interface {
	// Emit records an event. Must be goroutine-safe.
	Emit(ev *Event)

	// Flush ensures all buffered events are written.
	Flush() error

	// Close flushes and releases resources.
	Close() error

	// Level returns the current tracing level.
	Level() Level

	// Enabled reports whether tracing is active (Level > LevelOff).
	Enabled() bool
}

// StorageMode determines how events are stored.
type StorageMode uint8

const (
	ModeStream StorageMode = iota + 1 // immediate write
	ModeRing                          // circular buffer
	ModeBoth                          // stream + ring
)

// String returns the string representation of StorageMode.
func (m StorageMode) String() string {
	switch m {
	case ModeStream:
		return "stream"
	case ModeRing:
		return "ring"
	case ModeBoth:
		return "both"
	default:
		return "unknown"
	}
}

// ParseStorageMode converts a string to a StorageMode.
func ParseStorageMode(s string) (StorageMode, error) {
	switch s {
	case "", "ring":
		return ModeRing, nil
	case "stream":
		return ModeStream, nil
	case "both":
		return ModeBoth, nil
	default:
		return 0, fmt.Errorf("unknown trace mode %q", s)
	}
}

// Config holds tracer configuration.
type Config struct {
	Level      Level       // tracing level
	Mode       StorageMode // storage mode
	Format     Format      // output format for stream mode
	Output     io.Writer   // for stream mode (if nil, use OutputPath)
	OutputPath string      // alternative: file path ("-" for stderr)
	RingSize   int         // for ring mode (default 4096)
}

// New creates a Tracer based on Config.
func New(cfg Config) (Tracer, error) {
	if cfg.Level == LevelOff {
		return Nop, nil
	}

	mode := cfg.Mode
	if mode == 0 {
		mode = ModeRing
	}

	var stream Tracer
	if mode == ModeStream || mode == ModeBoth {
		w := cfg.Output
		if w == nil {
			switch cfg.OutputPath {
			case "", "-":
				w = os.Stderr
			default:
				f, err := os.Create(cfg.OutputPath)
				if err != nil {
					return nil, fmt.Errorf("trace output: %w", err)
				}
				w = f
			}
		}
		stream = NewStreamTracer(w, cfg.Level, cfg.Format)
	}

	var ring Tracer
	if mode == ModeRing || mode == ModeBoth {
		ring = NewRingTracer(cfg.RingSize, cfg.Level)
	}

	switch {
	case stream != nil && ring != nil:
		return NewMultiTracer(cfg.Level, stream, ring), nil
	case stream != nil:
		return stream, nil
	default:
		return ring, nil
	}
}

// nopTracer is a no-op implementation for zero overhead when tracing is off.
type nopTracer struct{}

func (nopTracer) Emit(*Event)   {}
func (nopTracer) Flush() error  { return nil }
func (nopTracer) Close() error  { return nil }
func (nopTracer) Level() Level  { return LevelOff }
func (nopTracer) Enabled() bool { return false }

// Nop is the package-level no-op tracer.
var Nop Tracer = nopTracer{}

var globalSeq atomic.Uint64

// NextSeq returns the next global event sequence number.
func NextSeq() uint64 {
	return globalSeq.Add(1)
}

// Point emits an instant event through the tracer, filling in time and
// sequence. A nil or disabled tracer drops the event.
func Point(t Tracer, kind Kind, scope Scope, worker int, task uint64, name, detail string) {
	if t == nil || !t.Enabled() {
		return
	}
	w, err := safecast.Conv[int32](worker)
	if err != nil {
		w = -1
	}
	t.Emit(&Event{
		Time:   time.Now(),
		Kind:   kind,
		Scope:  scope,
		Worker: w,
		Task:   task,
		Name:   name,
		Detail: detail,
	})
}
