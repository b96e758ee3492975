// Package recorder captures a per-step trace of cache activity for offline
// analysis. Events are CBOR-encoded to the supplied writer as they happen;
// nothing about the cache itself is ever persisted.
package recorder

import (
	"io"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"
)

const (
	EventAppend  = "append"
	EventEvict   = "evict"
	EventState   = "state"
	EventRelease = "release"
)

type Event struct {
	Seq       string    `cbor:"seq"`
	Kind      string    `cbor:"kind"`
	Time      time.Time `cbor:"time"`
	Step      int       `cbor:"step,omitempty"`
	Slot      int       `cbor:"slot,omitempty"`
	State     string    `cbor:"state,omitempty"`
	Positions []int32   `cbor:"positions,omitempty"`
}

type Recorder struct {
	mu  sync.Mutex
	enc *cbor.Encoder
}

func New(w io.Writer) *Recorder {
	return &Recorder{enc: cbor.NewEncoder(w)}
}

// Record appends one event to the trace. Safe on a nil receiver so callers
// can trace unconditionally.
func (r *Recorder) Record(ev Event) error {
	if r == nil {
		return nil
	}

	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	return r.enc.Encode(ev)
}

// Decode reads back all events from a trace.
func Decode(r io.Reader) ([]Event, error) {
	dec := cbor.NewDecoder(r)

	var events []Event
	for {
		var ev Event
		if err := dec.Decode(&ev); err != nil {
			if err == io.EOF {
				return events, nil
			}

			return nil, err
		}

		events = append(events, ev)
	}
}
