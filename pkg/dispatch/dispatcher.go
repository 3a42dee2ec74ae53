// Package dispatch decouples capture backends from aggregation with a
// bounded, non-blocking queue that preserves submission order.
package dispatch

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/offlinefirst/workflow-recorder/pkg/events"
)

// ErrOverflow reports that an event was lost because the queue was full.
var ErrOverflow = errors.New("dispatch queue overflow")

// ErrClosed reports a submission after Close.
var ErrClosed = errors.New("dispatcher closed")

// Policy selects what happens when the queue is full.
type Policy string

const (
	// DropNewest rejects the incoming event.
	DropNewest Policy = "drop_newest"
	// DropOldest evicts the oldest queued event to make room.
	DropOldest Policy = "drop_oldest"
	// Grow doubles the queue up to MaxCapacity, then drops the newest.
	Grow Policy = "grow"
)

// ParsePolicy validates a policy name. Empty selects DropNewest.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(strings.ToLower(strings.TrimSpace(s))) {
	case "", DropNewest:
		return DropNewest, nil
	case DropOldest:
		return DropOldest, nil
	case Grow:
		return Grow, nil
	default:
		return "", fmt.Errorf("unsupported overflow policy %q", s)
	}
}

// Options configures a Dispatcher.
type Options struct {
	Capacity    int
	MaxCapacity int
	Policy      Policy
	// Enabled lists the raw kinds accepted; nil accepts every kind.
	Enabled map[events.Kind]bool
	Logger  *slog.Logger
}

// Stats is a snapshot of dispatcher counters.
type Stats struct {
	Accepted  uint64 `json:"accepted"`
	Dropped   uint64 `json:"dropped"`
	Filtered  uint64 `json:"filtered"`
	Paused    uint64 `json:"discarded_while_paused"`
	Depth     int    `json:"depth"`
	HighWater int    `json:"high_water"`
	Capacity  int    `json:"capacity"`
}

// Dispatcher is a mutex-guarded ring buffer. Submit never blocks beyond the
// critical section; the consumer waits on Ready and empties the queue with
// Drain.
type Dispatcher struct {
	mu      sync.Mutex
	buf     []events.RawEvent
	head    int
	size    int
	max     int
	policy  Policy
	enabled map[events.Kind]bool
	seq     uint64
	paused  bool
	closed  bool
	stats   Stats

	ready  chan struct{}
	logger *slog.Logger
}

// New constructs a dispatcher. Capacity defaults to 4096.
func New(opts Options) *Dispatcher {
	capacity := opts.Capacity
	if capacity <= 0 {
		capacity = 4096
	}
	maxCap := opts.MaxCapacity
	if maxCap < capacity {
		maxCap = capacity
	}
	policy := opts.Policy
	if policy == "" {
		policy = DropNewest
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Dispatcher{
		buf:     make([]events.RawEvent, capacity),
		max:     maxCap,
		policy:  policy,
		enabled: opts.Enabled,
		ready:   make(chan struct{}, 1),
		logger:  logger.With("component", "dispatch"),
	}
}

// Submit enqueues ev and stamps its sequence number. Events of disabled
// kinds and events submitted while paused are discarded silently (and
// counted). A full queue applies the overflow policy and returns ErrOverflow
// whenever an event was lost.
func (d *Dispatcher) Submit(ev events.RawEvent) error {
	if ev.Payload == nil {
		return errors.New("raw event has no payload")
	}

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return ErrClosed
	}
	if d.enabled != nil && !d.enabled[ev.Payload.Kind()] {
		d.stats.Filtered++
		d.mu.Unlock()
		return nil
	}
	if d.paused {
		d.stats.Paused++
		d.mu.Unlock()
		return nil
	}
	lost := false
	if d.size == len(d.buf) {
		switch {
		case d.policy == Grow && len(d.buf) < d.max:
			d.grow()
		case d.policy == DropOldest:
			d.buf[d.head] = events.RawEvent{}
			d.head = (d.head + 1) % len(d.buf)
			d.size--
			lost = true
		default:
			d.stats.Dropped++
			dropped := d.stats.Dropped
			d.mu.Unlock()
			d.reportDrop(dropped)
			return ErrOverflow
		}
	}
	if lost {
		d.stats.Dropped++
	}

	d.seq++
	ev.Sequence = d.seq
	d.buf[(d.head+d.size)%len(d.buf)] = ev
	d.size++
	d.stats.Accepted++
	if d.size > d.stats.HighWater {
		d.stats.HighWater = d.size
	}
	dropped := d.stats.Dropped
	d.mu.Unlock()

	d.notify()
	if lost {
		d.reportDrop(dropped)
		return ErrOverflow
	}
	return nil
}

func (d *Dispatcher) grow() {
	next := len(d.buf) * 2
	if next > d.max {
		next = d.max
	}
	buf := make([]events.RawEvent, next)
	for i := 0; i < d.size; i++ {
		buf[i] = d.buf[(d.head+i)%len(d.buf)]
	}
	d.buf = buf
	d.head = 0
	d.logger.Debug("dispatch queue grown", "capacity", next)
}

func (d *Dispatcher) reportDrop(dropped uint64) {
	if dropped == 1 || dropped%1000 == 0 {
		d.logger.Warn("dispatch queue overflow", "policy", string(d.policy), "dropped_total", dropped)
	}
}

func (d *Dispatcher) notify() {
	select {
	case d.ready <- struct{}{}:
	default:
	}
}

// Ready is signalled after submissions; a single signal may cover many.
func (d *Dispatcher) Ready() <-chan struct{} {
	return d.ready
}

// Drain appends every queued event to dst in submission order and empties
// the queue.
func (d *Dispatcher) Drain(dst []events.RawEvent) []events.RawEvent {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i := 0; i < d.size; i++ {
		idx := (d.head + i) % len(d.buf)
		dst = append(dst, d.buf[idx])
		d.buf[idx] = events.RawEvent{}
	}
	d.head = 0
	d.size = 0
	return dst
}

// Pause discards submissions until Resume.
func (d *Dispatcher) Pause() {
	d.mu.Lock()
	d.paused = true
	d.mu.Unlock()
}

// Resume re-enables submissions.
func (d *Dispatcher) Resume() {
	d.mu.Lock()
	d.paused = false
	d.mu.Unlock()
}

// Close rejects further submissions. Queued events remain drainable.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	d.notify()
}

// Stats returns a snapshot of the counters.
func (d *Dispatcher) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	s := d.stats
	s.Depth = d.size
	s.Capacity = len(d.buf)
	return s
}
