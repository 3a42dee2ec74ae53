package recorder

import (
	"sync"
	"sync/atomic"

	"github.com/offlinefirst/workflow-recorder/pkg/events"
)

// Subscription is the live feed of merged workflow events. The channel is
// closed when the recording ends; Err then reports why.
type Subscription struct {
	ch      chan events.WorkflowEvent
	dropped atomic.Uint64

	mu     sync.Mutex
	closed bool
	err    error
}

func newSubscription(buffer int) *Subscription {
	if buffer <= 0 {
		buffer = 1024
	}
	return &Subscription{ch: make(chan events.WorkflowEvent, buffer)}
}

// Events returns the receive side of the feed.
func (s *Subscription) Events() <-chan events.WorkflowEvent { return s.ch }

// Err returns the cause the feed ended with, or nil for a clean stop.
func (s *Subscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Dropped counts events skipped because the consumer fell behind. The
// recorded workflow still contains them.
func (s *Subscription) Dropped() uint64 { return s.dropped.Load() }

func (s *Subscription) deliver(ev events.WorkflowEvent) {
	select {
	case s.ch <- ev:
	default:
		s.dropped.Add(1)
	}
}

func (s *Subscription) close(cause error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.err = cause
	close(s.ch)
}
