package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/offlinefirst/workflow-recorder/pkg/aggregate"
	"github.com/offlinefirst/workflow-recorder/pkg/config"
	"github.com/offlinefirst/workflow-recorder/pkg/events"
	"github.com/offlinefirst/workflow-recorder/pkg/recorder"
	"github.com/offlinefirst/workflow-recorder/pkg/runmanifest"
	"github.com/offlinefirst/workflow-recorder/pkg/source"
	"github.com/offlinefirst/workflow-recorder/pkg/store"
	"github.com/offlinefirst/workflow-recorder/pkg/uia"
	"github.com/offlinefirst/workflow-recorder/pkg/workflow"
)

// Termination causes reported in the summary and the manifest.
const (
	TerminationCompleted   = "completed"
	TerminationInterrupted = "interrupted"
	TerminationKilled      = "killed"
	TerminationExhausted   = "source_exhausted"
	TerminationFailed      = "failed"
)

// Options controls one recording session.
type Options struct {
	Name       string
	Config     config.Config
	Layout     runmanifest.Layout
	Source     source.Source
	SourceName string
	Registry   uia.Registry
	Resolver   aggregate.NameResolver
	// Duration bounds the session; zero records until cancelled or killed.
	Duration time.Duration
	// StopWhenExhausted ends the session when the source has no more events.
	StopWhenExhausted bool
	Highlight         bool
	// OnEvent is called from Run's goroutine for every recorded event.
	OnEvent func(events.WorkflowEvent)
	Logger  *slog.Logger
	Clock   func() time.Time
	Control *Controller
}

// Lifecycle captures when the session ran and why it ended.
type Lifecycle struct {
	StartedAt          time.Time
	FinishedAt         time.Time
	TerminationCause   string
	ControllerTimeline []runmanifest.ControllerTimelineEntry
}

// Summary reports the outcome of a session.
type Summary struct {
	WorkflowID   string
	WorkflowPath string
	JournalPath  string
	Counts       []workflow.KindCount
	Stats        recorder.Stats
	Journal      *store.Stats
	Lifecycle    *Lifecycle
	Components   []runmanifest.ComponentStatus
}

// Counters flattens the session statistics for the run manifest.
func (s Summary) Counters() *runmanifest.Counters {
	c := &runmanifest.Counters{
		Events:            s.Stats.Events,
		RawAccepted:       s.Stats.Dispatch.Accepted,
		RawDropped:        s.Stats.Dispatch.Dropped,
		RawFiltered:       s.Stats.Dispatch.Filtered,
		DiscardedPaused:   s.Stats.Dispatch.Paused,
		QueueHighWater:    s.Stats.Dispatch.HighWater,
		PrivateDropped:    s.Stats.Pipeline.PrivateDropped,
		Throttled:         s.Stats.Pipeline.Throttled,
		ElementFailures:   s.Stats.Pipeline.ElementFailures + s.Stats.MetadataFailures,
		SubscriberDropped: s.Stats.SubscriberDropped,
	}
	if s.Journal != nil {
		c.JournalWritten = s.Journal.Written
		c.JournalDropped = s.Journal.Dropped
	}
	return c
}

// Run records one workflow into opts.Layout. It returns once the session has
// ended and the workflow file is written.
func Run(ctx context.Context, opts Options) (summary Summary, err error) {
	if opts.Logger == nil {
		return Summary{}, errors.New("logger must be provided")
	}
	if opts.Source == nil {
		return Summary{}, errors.New("capture source must be provided")
	}
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}

	logFile, err := os.OpenFile(opts.Layout.CaptureLogPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return Summary{}, fmt.Errorf("open capture log: %w", err)
	}
	defer logFile.Close()

	controller := opts.Control
	if controller == nil {
		controller = NewController()
	}

	sourceStatus := runmanifest.ComponentStatus{Name: "source", Enabled: true, Provider: opts.SourceName, State: runmanifest.ComponentStatePending}
	journalStatus := runmanifest.ComponentStatus{Name: "journal", Enabled: opts.Config.Storage.JournalEnabled, State: runmanifest.ComponentStateSkipped}
	defer func() {
		summary.Components = []runmanifest.ComponentStatus{sourceStatus, journalStatus}
	}()

	var journal recorder.Journal
	var jnl *store.Journal
	if opts.Config.Storage.JournalEnabled {
		jnl, err = store.Open(opts.Layout.JournalPath, opts.Logger)
		if err != nil {
			journalStatus.State = runmanifest.ComponentStateErrored
			journalStatus.Message = err.Error()
			writeCaptureLog(logFile, clock(), "journal", "unavailable: %v", err)
			opts.Logger.Warn("journal unavailable, continuing without it", "error", err)
		} else {
			defer jnl.Close()
			journal = jnl
			journalStatus.Available = true
			journalStatus.State = runmanifest.ComponentStatePending
			summary.JournalPath = opts.Layout.JournalPath
		}
	} else {
		writeCaptureLog(logFile, clock(), "journal", "skipped (disabled in config)")
	}

	rec, err := recorder.New(recorder.Options{
		Name:      opts.Name,
		Config:    opts.Config,
		Source:    opts.Source,
		Registry:  opts.Registry,
		Resolver:  opts.Resolver,
		Journal:   journal,
		Highlight: opts.Highlight,
		Clock:     clock,
		Logger:    opts.Logger,
	})
	if err != nil {
		return summary, fmt.Errorf("initialise recorder: %w", err)
	}
	summary.WorkflowID = rec.Workflow().ID

	var sub *recorder.Subscription
	if opts.OnEvent != nil {
		if sub, err = rec.Subscribe(); err != nil {
			return summary, fmt.Errorf("subscribe to recorder: %w", err)
		}
	}

	if err := controller.Wait(ctx); err != nil {
		controller.Kill(err)
		return summary, err
	}

	if err := rec.Start(ctx); err != nil {
		sourceStatus.State = runmanifest.ComponentStateUnavailable
		sourceStatus.Message = err.Error()
		if errors.Is(err, source.ErrAccessibilityPermission) {
			sourceStatus.Permission = "accessibility"
		}
		writeCaptureLog(logFile, clock(), "source", "unavailable: %v", err)
		return summary, err
	}
	sourceStatus.Available = true
	started := clock()
	writeCaptureLog(logFile, started, "recorder", "started workflow %s (source=%s)", summary.WorkflowID, opts.SourceName)
	opts.Logger.Info("recording session started", "workflow_id", summary.WorkflowID, "source", opts.SourceName, "duration", opts.Duration.String())

	var timeout <-chan time.Time
	if opts.Duration > 0 {
		timer := time.NewTimer(opts.Duration)
		defer timer.Stop()
		timeout = timer.C
	}
	var exhausted <-chan struct{}
	if opts.StopWhenExhausted {
		exhausted = rec.Exhausted()
	}
	var feed <-chan events.WorkflowEvent
	if sub != nil {
		feed = sub.Events()
	}

	termination := ""
loop:
	for {
		select {
		case <-ctx.Done():
			termination = TerminationInterrupted
			break loop
		case <-timeout:
			termination = TerminationCompleted
			break loop
		case <-exhausted:
			termination = TerminationExhausted
			break loop
		case <-rec.Done():
			termination = TerminationFailed
			break loop
		case <-controller.Changed():
			switch controller.State() {
			case StatePaused:
				if err := rec.Pause(); err != nil {
					opts.Logger.Warn("pause recorder", "error", err)
				}
				writeCaptureLog(logFile, clock(), "controller", "paused")
			case StateRunning:
				if err := rec.Resume(); err != nil {
					opts.Logger.Warn("resume recorder", "error", err)
				}
				writeCaptureLog(logFile, clock(), "controller", "resumed")
			case StateStopping:
				termination = TerminationKilled
				break loop
			}
		case ev, ok := <-feed:
			if !ok {
				feed = nil
				continue
			}
			opts.OnEvent(ev)
		}
	}

	if err := rec.Stop(); err != nil {
		opts.Logger.Warn("stop recorder", "error", err)
	}
	if sub != nil {
		for ev := range sub.Events() {
			opts.OnEvent(ev)
		}
	}
	finished := clock()

	summary.Stats = rec.Stats()
	summary.Counts = rec.Workflow().Counts()
	summary.Lifecycle = &Lifecycle{
		StartedAt:          started,
		FinishedAt:         finished,
		TerminationCause:   termination,
		ControllerTimeline: timelineEntries(controller.Timeline()),
	}
	if jnl != nil {
		stats := jnl.Stats()
		summary.Journal = &stats
		journalStatus.State = runmanifest.ComponentStateCompleted
		if stats.Failed > 0 {
			journalStatus.State = runmanifest.ComponentStateErrored
			journalStatus.Message = fmt.Sprintf("%d events failed to persist", stats.Failed)
		}
	}

	recErr := rec.Err()
	if recErr != nil {
		sourceStatus.State = runmanifest.ComponentStateErrored
		sourceStatus.Message = recErr.Error()
	} else {
		sourceStatus.State = runmanifest.ComponentStateCompleted
	}
	writeCaptureLog(logFile, finished, "recorder", "stopped (%s): %d events", termination, summary.Stats.Events)

	if err := rec.Save(opts.Layout.WorkflowPath); err != nil {
		writeCaptureLog(logFile, clock(), "workflow", "save failed: %v", err)
		return summary, err
	}
	summary.WorkflowPath = opts.Layout.WorkflowPath
	writeCaptureLog(logFile, clock(), "workflow", "saved %s", opts.Layout.WorkflowPath)
	opts.Logger.Info("recording session complete", "events", summary.Stats.Events, "termination", termination, "workflow", opts.Layout.WorkflowPath)

	switch {
	case recErr != nil:
		return summary, recErr
	case termination == TerminationKilled && controller.Err() != nil:
		return summary, controller.Err()
	}
	return summary, nil
}

func timelineEntries(ts []Transition) []runmanifest.ControllerTimelineEntry {
	if len(ts) == 0 {
		return nil
	}
	out := make([]runmanifest.ControllerTimelineEntry, 0, len(ts))
	for _, t := range ts {
		out = append(out, runmanifest.ControllerTimelineEntry{State: t.State, Reason: t.Reason, Timestamp: t.At})
	}
	return out
}

func writeCaptureLog(file *os.File, timestamp time.Time, component, message string, args ...any) {
	if file == nil {
		return
	}
	formatted := message
	if len(args) > 0 {
		formatted = fmt.Sprintf(message, args...)
	}
	line := fmt.Sprintf("[%s] component=%s %s\n", timestamp.UTC().Format(time.RFC3339), component, formatted)
	_, _ = file.WriteString(line)
}
