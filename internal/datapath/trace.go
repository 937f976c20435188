package datapath

import (
	"sync"
	"time"

	"grimm.is/linkpath/internal/clock"
	"grimm.is/linkpath/internal/linkreg"
)

// TraceEntry is one per-packet trace record. The datapath never logs on the
// hot path (spec.md §7: "the datapath never reports errors out-of-band
// beyond optional trace emission"); Trace is that optional emission,
// structured the same way as logging's RingBuffer.
type TraceEntry struct {
	RXInterfaceID uint32
	NextNode      string
	AdjID         linkreg.AdjID
	Reason        string // "local-bypass" | "policy" | "fib"
	Protocol      uint8
	When          time.Time
}

// Trace is a fixed-capacity ring buffer of TraceEntry, sampled rather than
// recording every packet — enabling it unconditionally at line rate would
// defeat the point of a lock-free datapath.
type Trace struct {
	mu      sync.Mutex
	entries []TraceEntry
	head    int
	count   int
	sample  uint32
	seen    uint32
}

// NewTrace builds a Trace with the given ring capacity, recording roughly
// 1-in-sampleRate packets. sampleRate <= 1 records every packet.
func NewTrace(capacity int, sampleRate uint32) *Trace {
	if sampleRate == 0 {
		sampleRate = 1
	}
	return &Trace{entries: make([]TraceEntry, capacity), sample: sampleRate}
}

// Record appends an entry, subject to the configured sample rate.
func (t *Trace) Record(e TraceEntry) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.seen++
	if t.seen%t.sample != 0 {
		return
	}
	e.When = clock.Now()
	t.entries[t.head] = e
	t.head = (t.head + 1) % len(t.entries)
	if t.count < len(t.entries) {
		t.count++
	}
}

// Last returns the most recent n trace entries, chronologically ordered.
func (t *Trace) Last(n int) []TraceEntry {
	t.mu.Lock()
	defer t.mu.Unlock()
	if n > t.count {
		n = t.count
	}
	if n == 0 {
		return nil
	}
	size := len(t.entries)
	start := (t.head - n + size) % size
	out := make([]TraceEntry, n)
	for i := 0; i < n; i++ {
		out[i] = t.entries[(start+i)%size]
	}
	return out
}
