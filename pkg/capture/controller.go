package capture

import (
	"context"
	"sync"
	"time"
)

// Controller state names, also used in the manifest controller timeline.
const (
	StateRunning  = "running"
	StatePaused   = "paused"
	StateStopping = "stopping"
)

// Transition is one controller state change.
type Transition struct {
	State  string
	Reason string
	At     time.Time
}

// Controller carries pause/resume/kill requests from the operator (signals,
// a terminal, tests) to a running recording.
type Controller struct {
	mu          sync.Mutex
	paused      bool
	stopping    bool
	stopErr     error
	clock       func() time.Time
	transitions []Transition
	signal      chan struct{}
}

// NewController constructs a controller in the running state.
func NewController() *Controller {
	return &Controller{clock: time.Now, signal: make(chan struct{}, 1)}
}

// Pause transitions the controller into a paused state.
func (c *Controller) Pause(reason string) {
	c.mu.Lock()
	changed := !c.paused && !c.stopping
	if changed {
		c.paused = true
		c.record(StatePaused, reason)
	}
	c.mu.Unlock()
	if changed {
		c.notify()
	}
}

// Resume clears a paused state and notifies waiters.
func (c *Controller) Resume(reason string) {
	c.mu.Lock()
	changed := c.paused && !c.stopping
	if changed {
		c.paused = false
		c.record(StateRunning, reason)
	}
	c.mu.Unlock()
	if changed {
		c.notify()
	}
}

// Kill requests the recording to stop and propagates an optional error.
func (c *Controller) Kill(err error) {
	c.mu.Lock()
	if !c.stopping {
		c.stopping = true
		reason := "stop requested"
		if err != nil {
			reason = err.Error()
		}
		c.record(StateStopping, reason)
	}
	if err != nil && c.stopErr == nil {
		c.stopErr = err
	}
	c.mu.Unlock()
	c.notify()
}

// Changed is signalled after every state change. A single signal may cover
// several changes; read State afterwards.
func (c *Controller) Changed() <-chan struct{} {
	return c.signal
}

// Err returns the error passed to Kill, if any.
func (c *Controller) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stopErr
}

// Wait blocks until the controller is running or stopping.
func (c *Controller) Wait(ctx context.Context) error {
	for {
		c.mu.Lock()
		paused := c.paused
		stopping := c.stopping
		stopErr := c.stopErr
		c.mu.Unlock()

		if stopping {
			if stopErr != nil {
				return stopErr
			}
			if ctx != nil && ctx.Err() != nil {
				return ctx.Err()
			}
			return context.Canceled
		}
		if !paused {
			return nil
		}

		if ctx == nil {
			<-c.signal
			continue
		}

		select {
		case <-ctx.Done():
			c.Kill(ctx.Err())
			return ctx.Err()
		case <-c.signal:
			continue
		}
	}
}

// State reports the textual state for diagnostics.
func (c *Controller) State() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch {
	case c.stopping:
		return StateStopping
	case c.paused:
		return StatePaused
	default:
		return StateRunning
	}
}

// Timeline returns the recorded transitions in order.
func (c *Controller) Timeline() []Transition {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Transition(nil), c.transitions...)
}

func (c *Controller) record(state, reason string) {
	c.transitions = append(c.transitions, Transition{State: state, Reason: reason, At: c.clock().UTC()})
}

func (c *Controller) notify() {
	select {
	case c.signal <- struct{}{}:
	default:
	}
}
