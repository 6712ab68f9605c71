package trace

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

// Format represents the output format for trace events.
type Format uint8

const (
	FormatText   Format = iota // human-readable text
	FormatBinary               // msgpack, one object per event
)

// ParseFormat converts a string to a Format.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "", "text":
		return FormatText, nil
	case "binary", "msgpack":
		return FormatBinary, nil
	default:
		return FormatText, fmt.Errorf("invalid trace format: %q (expected: text|binary)", s)
	}
}

// wireEvent is the msgpack schema for Event. Field names stay short since a
// busy runtime can emit millions of events per capture.
type wireEvent struct {
	T time.Time `msgpack:"t"`
	S uint64    `msgpack:"s"`
	K uint8     `msgpack:"k"`
	C uint8     `msgpack:"c"`
	W int32     `msgpack:"w"`
	I uint64    `msgpack:"i"`
	N string    `msgpack:"n"`
	D string    `msgpack:"d,omitempty"`
}

// FormatEvent encodes an event according to the specified format.
func FormatEvent(ev *Event, format Format) []byte {
	switch format {
	case FormatBinary:
		return formatBinary(ev)
	default:
		return formatText(ev)
	}
}

func formatBinary(ev *Event) []byte {
	data, err := msgpack.Marshal(wireEvent{
		T: ev.Time,
		S: ev.Seq,
		K: uint8(ev.Kind),
		C: uint8(ev.Scope),
		W: ev.Worker,
		I: ev.Task,
		N: ev.Name,
		D: ev.Detail,
	})
	if err != nil {
		// Encoding a flat struct cannot fail in practice; fall back to text
		// rather than losing the event.
		return formatText(ev)
	}
	return data
}

func formatText(ev *Event) []byte {
	var sb strings.Builder
	sb.WriteString(ev.Time.Format("15:04:05.000000"))
	fmt.Fprintf(&sb, " #%-8d %-9s", ev.Seq, ev.Kind.String())
	if ev.Worker >= 0 {
		fmt.Fprintf(&sb, " w%d", ev.Worker)
	}
	if ev.Task != 0 {
		fmt.Fprintf(&sb, " t%d", ev.Task)
	}
	sb.WriteString(" ")
	sb.WriteString(ev.Name)
	if ev.Detail != "" {
		sb.WriteString(" (")
		sb.WriteString(ev.Detail)
		sb.WriteString(")")
	}
	sb.WriteString("\n")
	return []byte(sb.String())
}

// Decoder reads binary-format events back from a capture.
type Decoder struct {
	dec *msgpack.Decoder
}

// NewDecoder wraps a reader producing events written in FormatBinary.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{dec: msgpack.NewDecoder(r)}
}

// Next returns the next event, or io.EOF at end of stream.
func (d *Decoder) Next() (Event, error) {
	if d == nil || d.dec == nil {
		return Event{}, errors.New("trace: nil decoder")
	}
	var w wireEvent
	if err := d.dec.Decode(&w); err != nil {
		return Event{}, err
	}
	return Event{
		Time:   w.T,
		Seq:    w.S,
		Kind:   Kind(w.K),
		Scope:  Scope(w.C),
		Worker: w.W,
		Task:   w.I,
		Name:   w.N,
		Detail: w.D,
	}, nil
}
