package trace

import (
	"bytes"
	"io"
	"testing"
	"time"
)

func TestRingTracerWraps(t *testing.T) {
	ring := NewRingTracer(4, LevelDebug)
	for i := 1; i <= 6; i++ {
		ring.Emit(&Event{
			Time:  time.Now(),
			Kind:  KindSpawn,
			Scope: ScopeTask,
			Task:  uint64(i),
			Name:  "spawn",
		})
	}
	events := ring.Snapshot()
	if len(events) != 4 {
		t.Fatalf("snapshot len: want 4, got %d", len(events))
	}
	for i, ev := range events {
		want := uint64(i + 3)
		if ev.Task != want {
			t.Fatalf("event %d: want task %d, got %d", i, want, ev.Task)
		}
	}
}

func TestLevelFiltering(t *testing.T) {
	tests := []struct {
		level Level
		scope Scope
		want  bool
	}{
		{LevelOff, ScopeRuntime, false},
		{LevelError, ScopeRuntime, true},
		{LevelError, ScopeTask, false},
		{LevelTask, ScopeTask, true},
		{LevelTask, ScopePoll, false},
		{LevelDebug, ScopePoll, true},
	}
	for _, tt := range tests {
		if got := tt.level.ShouldEmit(tt.scope); got != tt.want {
			t.Fatalf("level %v scope %v: want %v, got %v", tt.level, tt.scope, tt.want, got)
		}
	}
}

func TestParseLevel(t *testing.T) {
	if lvl, err := ParseLevel("task"); err != nil || lvl != LevelTask {
		t.Fatalf("parse task: got (%v, %v)", lvl, err)
	}
	if _, err := ParseLevel("bogus"); err == nil {
		t.Fatalf("parse bogus succeeded")
	}
}

func TestBinaryRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	st := NewStreamTracer(&buf, LevelDebug, FormatBinary)

	want := []Event{
		{Time: time.Now().Truncate(time.Microsecond), Kind: KindSpawn, Scope: ScopeTask, Worker: 0, Task: 7, Name: "spawn"},
		{Time: time.Now().Truncate(time.Microsecond), Kind: KindFault, Scope: ScopeRuntime, Worker: 2, Task: 7, Name: "fault", Detail: "boom"},
	}
	for i := range want {
		ev := want[i]
		st.Emit(&ev)
	}

	dec := NewDecoder(&buf)
	for i := range want {
		got, err := dec.Next()
		if err != nil {
			t.Fatalf("decode %d: %v", i, err)
		}
		if got.Kind != want[i].Kind || got.Task != want[i].Task ||
			got.Worker != want[i].Worker || got.Name != want[i].Name ||
			got.Detail != want[i].Detail {
			t.Fatalf("event %d mismatch: want %+v, got %+v", i, want[i], got)
		}
	}
	if _, err := dec.Next(); err != io.EOF {
		t.Fatalf("want EOF at end of stream, got %v", err)
	}
}

func TestNewModeBoth(t *testing.T) {
	var buf bytes.Buffer
	tr, err := New(Config{
		Level:  LevelTask,
		Mode:   ModeBoth,
		Output: &buf,
		Format: FormatText,
	})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	tr.Emit(&Event{Time: time.Now(), Kind: KindDone, Scope: ScopeTask, Worker: 1, Task: 3, Name: "done"})
	if buf.Len() == 0 {
		t.Fatalf("stream sink saw no data")
	}

	multi, ok := tr.(*MultiTracer)
	if !ok {
		t.Fatalf("ModeBoth: want *MultiTracer, got %T", tr)
	}
	var ring *RingTracer
	for _, sub := range multi.tracers {
		if r, ok := sub.(*RingTracer); ok {
			ring = r
		}
	}
	if ring == nil || len(ring.Snapshot()) != 1 {
		t.Fatalf("ring sink did not record the event")
	}
}

func TestHeartbeatEmits(t *testing.T) {
	ring := NewRingTracer(16, LevelError)
	hb := StartHeartbeat(ring, 5*time.Millisecond, func() string { return "tasks=0" })
	if hb == nil {
		t.Fatalf("heartbeat did not start")
	}
	time.Sleep(30 * time.Millisecond)
	hb.Stop()

	events := ring.Snapshot()
	if len(events) == 0 {
		t.Fatalf("no heartbeat events recorded")
	}
	for _, ev := range events {
		if ev.Kind != KindHeartbeat {
			t.Fatalf("unexpected event kind %v", ev.Kind)
		}
		if ev.Detail != "tasks=0" {
			t.Fatalf("heartbeat detail: want %q, got %q", "tasks=0", ev.Detail)
		}
	}
}

func TestNopTracer(t *testing.T) {
	if Nop.Enabled() {
		t.Fatalf("nop tracer reports enabled")
	}
	Nop.Emit(&Event{Kind: KindSpawn})
	if err := Nop.Close(); err != nil {
		t.Fatalf("nop close: %v", err)
	}
}
