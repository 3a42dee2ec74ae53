package cmd

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/offlinefirst/workflow-recorder/internal/buildinfo"
	"github.com/offlinefirst/workflow-recorder/pkg/capture"
	"github.com/offlinefirst/workflow-recorder/pkg/events"
	"github.com/offlinefirst/workflow-recorder/pkg/procinfo"
	"github.com/offlinefirst/workflow-recorder/pkg/runmanifest"
	"github.com/offlinefirst/workflow-recorder/pkg/source"
	"github.com/offlinefirst/workflow-recorder/pkg/uia"
)

const (
	sourceSynthetic = "synthetic"
	sourceNative    = "native"
	sourceReplay    = "replay"
)

func newRecordCommand() command {
	return command{
		name:        "record",
		description: "Record a desktop workflow into a new run directory",
		configure: func(fs *flag.FlagSet) {
			fs.String("name", "", "Workflow name (default: run id)")
			fs.String("source", sourceSynthetic, "Event source (synthetic, native, replay)")
			fs.String("replay", "", "JSONL file of raw events for --source replay")
			fs.Duration("duration", 0, "Stop after this long (0 records until interrupted or the source ends)")
			fs.Bool("pace", false, "Replay scripted sources in real time")
			fs.Bool("hold", false, "Keep recording after a scripted source ends")
			fs.Bool("highlight", false, "Flash the UI element behind each recorded event")
			fs.Bool("quiet", false, "Do not print events as they are recorded")
			fs.Bool("plan-only", false, "Print the resolved configuration without recording")
		},
		run: runRecord,
	}
}

var (
	timeNow       = time.Now
	hostname      = os.Hostname
	manifestSave  = runmanifest.Save
	notifyContext = signal.NotifyContext
)

func runRecord(fs *flag.FlagSet, args []string, ctx *AppContext, stdout io.Writer, stderr io.Writer) error {
	if ctx == nil {
		return fmt.Errorf("application context unavailable")
	}

	planOnly := boolFlag(fs, "plan-only")
	sourceName := stringFlag(fs, "source")
	duration := durationFlag(fs, "duration")
	ctx.Logger.Info("record command invoked", "plan_only", planOnly, "source", sourceName, "runs_dir", ctx.Config.Paths.RunsDir, "config_source", ctx.Config.Source)

	if planOnly {
		printRecordPlan(ctx, sourceName, duration, stdout)
		return nil
	}

	registry := uia.NewMemoryRegistry()
	src, err := buildSource(sourceName, stringFlag(fs, "replay"), boolFlag(fs, "pace"), boolFlag(fs, "hold"), registry)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(ctx.Config.Paths.RunsDir, 0o755); err != nil {
		return fmt.Errorf("ensure runs directory: %w", err)
	}

	runID, err := runmanifest.ResolveRunID(ctx.Config.Paths.RunsDir, timeNow())
	if err != nil {
		return fmt.Errorf("resolve run id: %w", err)
	}

	layout := runmanifest.BuildLayout(ctx.Config.Paths.RunsDir, runID)
	if err := runmanifest.EnsureFilesystem(layout); err != nil {
		return fmt.Errorf("prepare run filesystem: %w", err)
	}

	host, err := hostname()
	if err != nil {
		host = "unknown"
	}

	name := stringFlag(fs, "name")
	if name == "" {
		name = runID
	}

	manifest := runmanifest.New(runmanifest.Options{
		RunID:      runID,
		CreatedAt:  timeNow(),
		Hostname:   host,
		AppVersion: buildinfo.Version(),
		Name:       name,
		Source:     sourceName,
		Duration:   duration,
		Config:     ctx.Config,
		Layout:     layout,
	})

	if err := manifestSave(manifest, layout.ManifestPath); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}

	manifest.Status.State = "running"
	manifest.Status.Summary = "recording in progress"
	if err := manifestSave(manifest, layout.ManifestPath); err != nil {
		return fmt.Errorf("update manifest status: %w", err)
	}

	printer := newEventPrinter(stdout)
	var onEvent func(events.WorkflowEvent)
	if !boolFlag(fs, "quiet") {
		printer.Title(fmt.Sprintf("Recording %q (source: %s; %s)", name, sourceName, controlSignalHint))
		onEvent = printer.Print
	}

	runCtx, stop := notifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	controller := capture.NewController()
	stopSignals := watchControlSignals(controller)
	defer stopSignals()

	summary, err := capture.Run(runCtx, capture.Options{
		Name:              name,
		Config:            ctx.Config,
		Layout:            layout,
		Source:            src,
		SourceName:        sourceName,
		Registry:          registry,
		Resolver:          procinfo.New(),
		Duration:          duration,
		StopWhenExhausted: sourceName != sourceNative && !boolFlag(fs, "hold"),
		Highlight:         boolFlag(fs, "highlight"),
		OnEvent:           onEvent,
		Logger:            ctx.Logger,
		Clock:             timeNow,
		Control:           controller,
	})

	manifest.WorkflowID = summary.WorkflowID
	if summary.Lifecycle != nil {
		started := summary.Lifecycle.StartedAt.UTC()
		finished := summary.Lifecycle.FinishedAt.UTC()
		manifest.Status.StartedAt = &started
		manifest.Status.EndedAt = &finished
		manifest.Status.Termination = summary.Lifecycle.TerminationCause
		if len(summary.Lifecycle.ControllerTimeline) > 0 {
			manifest.Status.Controller = append([]runmanifest.ControllerTimelineEntry(nil), summary.Lifecycle.ControllerTimeline...)
		}
		manifest.Status.Counters = summary.Counters()
	}
	if len(summary.Components) > 0 {
		manifest.Status.Components = append([]runmanifest.ComponentStatus(nil), summary.Components...)
	}

	if err != nil {
		manifest.Status.State = "failed"
		manifest.Status.Summary = err.Error()
		if manifest.Status.Termination == "" {
			manifest.Status.Termination = "error"
		}
		ctx.Logger.Error("recording failed", "error", err)
		if errors.Is(err, source.ErrAccessibilityPermission) {
			fmt.Fprintln(stderr, "Accessibility permission is required for native capture; run 'flowrec doctor' for details.")
		}
		if saveErr := manifestSave(manifest, layout.ManifestPath); saveErr != nil {
			return fmt.Errorf("record workflow: %v (additionally failed to persist manifest: %w)", err, saveErr)
		}
		return fmt.Errorf("record workflow: %w", err)
	}

	if manifest.Status.Termination == "" {
		manifest.Status.Termination = capture.TerminationCompleted
	}
	manifest.Status.State = "completed"
	manifest.Status.Summary = fmt.Sprintf("recording finished (%s): %d events", manifest.Status.Termination, summary.Stats.Events)
	if err := manifestSave(manifest, layout.ManifestPath); err != nil {
		return fmt.Errorf("finalise manifest: %w", err)
	}

	printRecordSummary(stdout, printer, layout, summary)
	return nil
}

// buildSource resolves the --source flag. Elements announced by synthetic and
// native backends are registered in reg.
func buildSource(name, replayPath string, pace, hold bool, reg *uia.MemoryRegistry) (source.Source, error) {
	switch name {
	case sourceSynthetic:
		return source.Synthetic(source.SyntheticOptions{Clock: timeNow, Registry: reg, Pace: pace, Hold: hold}), nil
	case sourceNative:
		return source.Native(timeNow, reg), nil
	case sourceReplay:
		if replayPath == "" {
			return nil, fmt.Errorf("--replay is required with --source replay")
		}
		return source.Replay(replayPath, source.ReplayOptions{Pace: pace, Hold: hold, Clock: timeNow}), nil
	}
	return nil, fmt.Errorf("unknown source %q (expected synthetic, native or replay)", name)
}

func printRecordSummary(stdout io.Writer, printer *eventPrinter, layout runmanifest.Layout, summary capture.Summary) {
	fmt.Fprintln(stdout)
	printer.Title(fmt.Sprintf("Recorded %d events", summary.Stats.Events))
	fmt.Fprintf(stdout, "Run directory: %s\n", layout.Root)
	fmt.Fprintf(stdout, "Manifest: %s\n", layout.ManifestPath)
	fmt.Fprintf(stdout, "Workflow: %s (id %s)\n", summary.WorkflowPath, summary.WorkflowID)
	if summary.JournalPath != "" {
		fmt.Fprintf(stdout, "Journal: %s\n", summary.JournalPath)
	} else {
		fmt.Fprintln(stdout, "Journal: disabled")
	}
	fmt.Fprintf(stdout, "Capture log: %s\n", layout.CaptureLogPath)

	if len(summary.Counts) > 0 {
		fmt.Fprintln(stdout, "Events by kind:")
		printer.Counts(summary.Counts)
	}

	d := summary.Stats.Dispatch
	fmt.Fprintf(stdout, "Dispatcher: %d accepted, %d dropped, %d filtered, %d discarded while paused (high water %d)\n", d.Accepted, d.Dropped, d.Filtered, d.Paused, d.HighWater)
	if summary.Journal != nil {
		fmt.Fprintf(stdout, "Journal writes: %d written, %d dropped, %d failed\n", summary.Journal.Written, summary.Journal.Dropped, summary.Journal.Failed)
	}

	if len(summary.Components) > 0 {
		fmt.Fprintf(stdout, "Component status summary:\n")
		for _, component := range summary.Components {
			fmt.Fprintf(stdout, "  - %s: state=%s enabled=%t available=%t", component.Name, component.State, component.Enabled, component.Available)
			if component.Provider != "" {
				fmt.Fprintf(stdout, " provider=%s", component.Provider)
			}
			if component.Permission != "" {
				fmt.Fprintf(stdout, " permission=%s", component.Permission)
			}
			if component.Message != "" {
				fmt.Fprintf(stdout, " (%s)", component.Message)
			}
			fmt.Fprintln(stdout)
		}
	}

	if summary.Lifecycle != nil {
		fmt.Fprintf(stdout, "Lifecycle: started %s, ended %s (termination: %s)\n", summary.Lifecycle.StartedAt.Format(time.RFC3339), summary.Lifecycle.FinishedAt.Format(time.RFC3339), summary.Lifecycle.TerminationCause)
		if len(summary.Lifecycle.ControllerTimeline) > 0 {
			fmt.Fprintf(stdout, "  Controller timeline:\n")
			for _, entry := range summary.Lifecycle.ControllerTimeline {
				fmt.Fprintf(stdout, "    - %s -> %s", entry.Timestamp.Format(time.RFC3339), entry.State)
				if entry.Reason != "" {
					fmt.Fprintf(stdout, " (%s)", entry.Reason)
				}
				fmt.Fprintln(stdout)
			}
		}
	}
}

func printRecordPlan(ctx *AppContext, sourceName string, duration time.Duration, stdout io.Writer) {
	rec := ctx.Config.Recorder
	fmt.Fprintf(stdout, "Resolved configuration (source: %s)\n", ctx.Config.Source)
	fmt.Fprintf(stdout, "  runs_dir: %s\n", ctx.Config.Paths.RunsDir)
	fmt.Fprintf(stdout, "  event source: %s\n", sourceName)
	if duration > 0 {
		fmt.Fprintf(stdout, "  duration: %s\n", duration)
	} else {
		fmt.Fprintln(stdout, "  duration: until interrupted")
	}
	fmt.Fprintf(stdout, "  recorded kinds: %v\n", runmanifest.RecordedKinds(rec))
	fmt.Fprintf(stdout, "  recorder.capture_ui_elements: %t\n", rec.CaptureUIElements)
	fmt.Fprintf(stdout, "  recorder.text_input_completion_timeout: %s\n", rec.TextInputTimeout())
	fmt.Fprintf(stdout, "  recorder.mouse_move_throttle: %s\n", rec.MouseMoveThrottle())
	fmt.Fprintf(stdout, "  recorder.browser_navigation_settle: %s\n", rec.BrowserSettle())
	fmt.Fprintf(stdout, "  recorder.queue: capacity=%d max=%d policy=%s\n", rec.QueueCapacity, rec.MaxQueueCapacity, rec.OverflowPolicy)
	fmt.Fprintf(stdout, "  privacy.allow_apps: %v\n", ctx.Config.Privacy.AllowApps)
	fmt.Fprintf(stdout, "  privacy.allow_urls: %v\n", ctx.Config.Privacy.AllowURLs)
	fmt.Fprintf(stdout, "  storage.journal_enabled: %t\n", ctx.Config.Storage.JournalEnabled)
	fmt.Fprintf(stdout, "  logging.level: %s\n", ctx.Config.Logging.Level)
	fmt.Fprintf(stdout, "  logging.format: %s\n", ctx.Config.Logging.Format)
}

func boolFlag(fs *flag.FlagSet, name string) bool {
	f := fs.Lookup(name)
	if f == nil {
		return false
	}
	value, err := strconv.ParseBool(f.Value.String())
	if err != nil {
		return false
	}
	return value
}

func stringFlag(fs *flag.FlagSet, name string) string {
	if f := fs.Lookup(name); f != nil {
		return f.Value.String()
	}
	return ""
}

func durationFlag(fs *flag.FlagSet, name string) time.Duration {
	f := fs.Lookup(name)
	if f == nil {
		return 0
	}
	value, err := time.ParseDuration(f.Value.String())
	if err != nil {
		return 0
	}
	return value
}
