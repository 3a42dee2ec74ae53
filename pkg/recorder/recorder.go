// Package recorder runs a capture source through the dispatcher and the
// aggregation pipeline and merges the result into one ordered workflow.
//
// Three goroutines cooperate during a recording: the capture stream, which
// only submits to the dispatcher; the aggregation loop, which owns the
// pipeline and is the single writer of the workflow; and any number of
// readers taking snapshots through Workflow, Save and Stats.
package recorder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/offlinefirst/workflow-recorder/pkg/aggregate"
	"github.com/offlinefirst/workflow-recorder/pkg/config"
	"github.com/offlinefirst/workflow-recorder/pkg/dispatch"
	"github.com/offlinefirst/workflow-recorder/pkg/events"
	"github.com/offlinefirst/workflow-recorder/pkg/source"
	"github.com/offlinefirst/workflow-recorder/pkg/uia"
	"github.com/offlinefirst/workflow-recorder/pkg/workflow"
)

// State is the lifecycle state of a recorder.
type State string

const (
	StateStopped   State = "stopped"
	StateRecording State = "recording"
	StatePaused    State = "paused"
)

// Journal receives every merged event for durable storage.
type Journal interface {
	Begin(w *workflow.Workflow) error
	Append(workflowID string, ev events.WorkflowEvent)
	Finish(workflowID string, end time.Time) error
}

// Options configures a Recorder.
type Options struct {
	Name     string
	Config   config.Config
	Source   source.Source
	Registry uia.Registry
	Resolver aggregate.NameResolver
	// Journal is optional.
	Journal Journal
	// Highlight flashes the element of every highlighted kind as it is recorded.
	Highlight bool
	Clock     func() time.Time
	Logger    *slog.Logger
}

// Stats is a snapshot of recorder counters.
type Stats struct {
	State             State           `json:"state"`
	Events            int             `json:"events"`
	Dispatch          dispatch.Stats  `json:"dispatch"`
	Pipeline          aggregate.Stats `json:"pipeline"`
	SubscriberDropped uint64          `json:"subscriber_dropped"`
	MetadataFailures  uint64          `json:"metadata_failures"`
	HighlightFailures uint64          `json:"highlight_failures"`
}

// Recorder owns one recording. It cannot be restarted once stopped.
type Recorder struct {
	cfg      config.RecorderConfig
	src      source.Source
	registry uia.Registry
	journal  Journal
	bright   bool
	clock    func() time.Time
	logger   *slog.Logger

	dispatcher *dispatch.Dispatcher
	pipeline   *aggregate.Pipeline

	lifecycle sync.Mutex

	mu      sync.RWMutex
	state   State
	started bool
	wf      *workflow.Workflow
	sub     *Subscription
	pstats  aggregate.Stats
	err     error

	// Owned by the aggregation loop.
	seq      uint64
	lastAt   time.Time
	lastWall time.Time

	metadataFailures  atomic.Uint64
	highlightFailures atomic.Uint64

	cancel     context.CancelFunc
	stream     source.Stream
	failures   chan error
	streamDone chan struct{}
	stopCh     chan struct{}
	stopOnce   sync.Once
	done       chan struct{}
}

// New validates opts and prepares a recorder in the stopped state.
func New(opts Options) (*Recorder, error) {
	if opts.Source == nil {
		return nil, errors.New("recorder requires a capture source")
	}
	if err := opts.Config.Validate(); err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}
	cfg := opts.Config.Recorder

	redactor, err := events.NewRedactor(opts.Config.Privacy.RedactEmails, opts.Config.Privacy.RedactPatterns)
	if err != nil {
		return nil, fmt.Errorf("privacy redaction: %w", err)
	}
	policy, err := dispatch.ParsePolicy(cfg.OverflowPolicy)
	if err != nil {
		return nil, err
	}

	registry := opts.Registry
	if !cfg.CaptureUIElements {
		registry = nil
	}

	popts := PipelineOptions(cfg)
	popts.Registry = registry
	popts.Resolver = opts.Resolver
	popts.Privacy = events.NewPrivacyPolicy(opts.Config.Privacy.AllowApps, opts.Config.Privacy.AllowURLs, opts.Config.Privacy.DropUnknown)
	popts.Redactor = redactor
	popts.Logger = logger

	name := opts.Name
	if name == "" {
		name = "workflow"
	}
	wf, err := workflow.New(name, time.Time{})
	if err != nil {
		return nil, err
	}

	return &Recorder{
		cfg:      cfg,
		src:      opts.Source,
		registry: registry,
		journal:  opts.Journal,
		bright:   opts.Highlight && registry != nil,
		clock:    clock,
		logger:   logger.With("component", "recorder", "workflow_id", wf.ID),
		dispatcher: dispatch.New(dispatch.Options{
			Capacity:    cfg.QueueCapacity,
			MaxCapacity: cfg.MaxQueueCapacity,
			Policy:      policy,
			Enabled:     popts.RequiredKinds(),
			Logger:      logger,
		}),
		pipeline:   aggregate.New(popts),
		state:      StateStopped,
		wf:         wf,
		failures:   make(chan error, 1),
		streamDone: make(chan struct{}),
		stopCh:     make(chan struct{}),
		done:       make(chan struct{}),
	}, nil
}

// Start opens the capture source and begins recording. ctx bounds opening
// the source only; the recording runs until Stop or a capture failure.
func (r *Recorder) Start(ctx context.Context) error {
	r.lifecycle.Lock()
	defer r.lifecycle.Unlock()

	r.mu.RLock()
	state, started := r.state, r.started
	r.mu.RUnlock()
	switch {
	case state != StateStopped:
		return ErrAlreadyRecording
	case started:
		return ErrFinished
	}

	stream, err := r.src.Open(ctx)
	if err != nil {
		err = fmt.Errorf("%w: %v", ErrCaptureUnavailable, err)
		r.mu.Lock()
		if r.sub != nil {
			r.sub.close(err)
			r.sub = nil
		}
		r.mu.Unlock()
		return err
	}

	now := r.clock()
	r.mu.Lock()
	r.wf.StartTime = now.UTC()
	r.state = StateRecording
	r.started = true
	r.mu.Unlock()

	if r.journal != nil {
		if err := r.journal.Begin(r.wf.Clone()); err != nil {
			r.logger.Warn("journal disabled", "error", err)
			r.journal = nil
		}
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	r.cancel = cancel
	r.stream = stream

	go func() {
		defer close(r.streamDone)
		err := stream.Run(runCtx, r.submit)
		if err != nil && runCtx.Err() == nil {
			r.failures <- err
			return
		}
		r.logger.Debug("capture stream ended")
	}()
	go r.loop(r.cfg.FlushTick())

	r.logger.Info("recording started", "name", r.wf.Name)
	return nil
}

// Stop ends the recording: the source is cancelled, queued events are
// drained, open sessions are flushed, and the subscription is closed. Stop
// returns once the workflow is final. Repeated calls return nil.
func (r *Recorder) Stop() error {
	r.lifecycle.Lock()
	defer r.lifecycle.Unlock()

	r.mu.RLock()
	started := r.started
	r.mu.RUnlock()
	if !started {
		return ErrNotRecording
	}
	r.stopOnce.Do(func() { close(r.stopCh) })
	<-r.done
	return nil
}

// Pause discards captured events until Resume. Open sessions stay open.
func (r *Recorder) Pause() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch r.state {
	case StateRecording:
		r.dispatcher.Pause()
		r.state = StatePaused
		r.logger.Info("recording paused")
	case StatePaused:
	default:
		return ErrNotRecording
	}
	return nil
}

// Resume re-enables capture after Pause.
func (r *Recorder) Resume() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch r.state {
	case StatePaused:
		r.dispatcher.Resume()
		r.state = StateRecording
		r.logger.Info("recording resumed")
	case StateRecording:
	default:
		return ErrNotRecording
	}
	return nil
}

// Subscribe registers the single live consumer. Only events merged after
// the call are delivered. A Start that cannot open the source closes the
// subscription with that error; subscribe again before retrying Start.
func (r *Recorder) Subscribe() (*Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch {
	case r.sub != nil:
		return nil, ErrAlreadySubscribed
	case r.started && r.state == StateStopped:
		return nil, ErrFinished
	}
	r.sub = newSubscription(r.cfg.SubscriberBuffer)
	return r.sub, nil
}

// Workflow returns a snapshot of the recording so far.
func (r *Recorder) Workflow() *workflow.Workflow {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.wf.Clone()
}

// Save writes a snapshot of the workflow to path. It may be called while
// recording; the file then has no end time.
func (r *Recorder) Save(path string) error {
	return workflow.Save(r.Workflow(), path)
}

// State reports the lifecycle state.
func (r *Recorder) State() State {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state
}

// Done is closed once the recording has fully stopped.
func (r *Recorder) Done() <-chan struct{} { return r.done }

// Exhausted is closed when the capture stream returns, for example at the
// end of a replay. The recording stays open until Stop.
func (r *Recorder) Exhausted() <-chan struct{} { return r.streamDone }

// Err returns the failure that ended the recording, if any.
func (r *Recorder) Err() error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.err
}

// Stats returns a snapshot of the recorder counters.
func (r *Recorder) Stats() Stats {
	r.mu.RLock()
	s := Stats{
		State:    r.state,
		Events:   len(r.wf.Events),
		Pipeline: r.pstats,
	}
	sub := r.sub
	r.mu.RUnlock()

	s.Dispatch = r.dispatcher.Stats()
	s.MetadataFailures = r.metadataFailures.Load()
	s.HighlightFailures = r.highlightFailures.Load()
	if sub != nil {
		s.SubscriberDropped = sub.Dropped()
	}
	return s
}

func (r *Recorder) submit(ev events.RawEvent) {
	// Overflow is counted and logged by the dispatcher.
	_ = r.dispatcher.Submit(ev)
}

func (r *Recorder) loop(tick time.Duration) {
	if tick <= 0 {
		tick = 100 * time.Millisecond
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	var buf []events.RawEvent
	for {
		select {
		case <-r.dispatcher.Ready():
			buf = r.drain(buf[:0])
		case <-ticker.C:
			r.merge(r.pipeline.Advance(r.logicalNow()))
			r.publishStats()
		case err := <-r.failures:
			r.logger.Error("capture failed", "error", err)
			r.shutdown(fmt.Errorf("%w: %v", ErrCaptureFailed, err))
			return
		case <-r.stopCh:
			r.shutdown(nil)
			return
		}
	}
}

func (r *Recorder) drain(buf []events.RawEvent) []events.RawEvent {
	buf = r.dispatcher.Drain(buf)
	for _, raw := range buf {
		if raw.Timestamp.After(r.lastAt) {
			r.lastAt = raw.Timestamp
		}
		r.lastWall = r.clock()
		r.merge(r.pipeline.Process(raw))
	}
	r.publishStats()
	return buf
}

// logicalNow extrapolates event time from the last event seen, so deadlines
// follow the source's clock even when it differs from the wall clock.
func (r *Recorder) logicalNow() time.Time {
	if r.lastAt.IsZero() {
		return r.clock()
	}
	elapsed := r.clock().Sub(r.lastWall)
	if elapsed < 0 {
		elapsed = 0
	}
	return r.lastAt.Add(elapsed)
}

func (r *Recorder) shutdown(cause error) {
	r.cancel()
	<-r.streamDone
	if err := r.stream.Close(); err != nil {
		r.logger.Warn("close capture stream", "error", err)
	}
	r.dispatcher.Close()
	r.drain(nil)

	end := r.logicalNow()
	r.merge(r.pipeline.Flush(end))
	end = end.UTC()

	r.mu.Lock()
	r.wf.EndTime = &end
	r.state = StateStopped
	r.err = cause
	r.pstats = r.pipeline.Stats()
	sub := r.sub
	count := len(r.wf.Events)
	r.mu.Unlock()

	if r.journal != nil {
		if err := r.journal.Finish(r.wf.ID, end); err != nil {
			r.logger.Warn("journal finish failed", "error", err)
		}
	}
	if sub != nil {
		sub.close(cause)
	}
	close(r.done)
	r.logger.Info("recording stopped", "events", count, "duration", end.Sub(r.wf.StartTime).String())
}

func (r *Recorder) publishStats() {
	stats := r.pipeline.Stats()
	r.mu.Lock()
	r.pstats = stats
	r.mu.Unlock()
}

// merge appends emissions to the workflow in order and fans them out.
func (r *Recorder) merge(ems []aggregate.Emission) {
	for _, em := range ems {
		r.seq++
		ev := events.WorkflowEvent{
			Metadata: events.Metadata{
				Sequence:   r.seq,
				Timestamp:  em.Timestamp,
				ElementRef: em.Element,
			},
			Payload: em.Payload,
		}
		if r.registry != nil && !em.Element.IsZero() {
			info, err := uia.Describe(r.registry, em.Element)
			if err != nil {
				r.metadataFailures.Add(1)
			} else {
				ev.Metadata.Element = info
			}
		}

		r.mu.Lock()
		r.wf.Events = append(r.wf.Events, ev)
		sub := r.sub
		r.mu.Unlock()

		if sub != nil {
			sub.deliver(ev)
		}
		if r.journal != nil {
			r.journal.Append(r.wf.ID, ev)
		}
		if r.bright {
			r.highlight(ev)
		}
	}
}

func (r *Recorder) highlight(ev events.WorkflowEvent) {
	color, ok := HighlightColor(ev.Kind())
	if !ok || ev.Metadata.ElementRef.IsZero() {
		return
	}
	ref := ev.Metadata.ElementRef
	go func() {
		el, err := r.registry.Lookup(ref)
		if err == nil {
			err = el.Highlight(color, highlightDuration)
		}
		if err != nil {
			r.highlightFailures.Add(1)
			r.logger.Debug("highlight failed", "element", string(ref), "error", err)
		}
	}()
}
