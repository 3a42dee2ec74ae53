package cmd

import (
	"bytes"
	"flag"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/offlinefirst/workflow-recorder/pkg/config"
	"github.com/offlinefirst/workflow-recorder/pkg/runmanifest"
	"github.com/offlinefirst/workflow-recorder/pkg/source"
	"github.com/offlinefirst/workflow-recorder/pkg/store"
	"github.com/offlinefirst/workflow-recorder/pkg/workflow"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func recordFlags(t *testing.T, args ...string) *flag.FlagSet {
	t.Helper()
	fs := flag.NewFlagSet("record", flag.ContinueOnError)
	newRecordCommand().configure(fs)
	if err := fs.Parse(args); err != nil {
		t.Fatalf("parse flags: %v", err)
	}
	return fs
}

func fixTime(t *testing.T, now time.Time) {
	t.Helper()
	origTime := timeNow
	timeNow = func() time.Time { return now }
	t.Cleanup(func() { timeNow = origTime })

	origHost := hostname
	hostname = func() (string, error) { return "test-host", nil }
	t.Cleanup(func() { hostname = origHost })
}

func TestRecordCommandPlanOnly(t *testing.T) {
	ctx := &AppContext{Config: config.Default(), Logger: newTestLogger()}
	fs := recordFlags(t, "-plan-only", "-duration", "90s")

	var stdout bytes.Buffer
	if err := runRecord(fs, nil, ctx, &stdout, io.Discard); err != nil {
		t.Fatalf("runRecord returned error: %v", err)
	}

	out := stdout.String()
	if !strings.Contains(out, "Resolved configuration") {
		t.Fatalf("expected plan output, got %q", out)
	}
	if !strings.Contains(out, "duration: 1m30s") {
		t.Fatalf("expected duration in plan, got %q", out)
	}
	if !strings.Contains(out, "text_input_completed") {
		t.Fatalf("expected recorded kinds in plan, got %q", out)
	}
}

func TestRecordCommandSyntheticSession(t *testing.T) {
	cfg := config.Default()
	runsDir := t.TempDir()
	cfg.Paths.RunsDir = runsDir
	ctx := &AppContext{Config: cfg, Logger: newTestLogger()}

	now := time.Date(2024, 5, 12, 9, 30, 0, 0, time.UTC)
	fixTime(t, now)

	fs := recordFlags(t, "-name", "demo")
	var stdout bytes.Buffer
	if err := runRecord(fs, nil, ctx, &stdout, io.Discard); err != nil {
		t.Fatalf("runRecord returned error: %v", err)
	}

	expectedID := now.Format("20060102_150405")
	layout := runmanifest.BuildLayout(runsDir, expectedID)

	man, err := runmanifest.Load(layout.ManifestPath)
	if err != nil {
		t.Fatalf("manifest not written: %v", err)
	}
	if man.Status.State != "completed" {
		t.Fatalf("expected completed state, got %q (%s)", man.Status.State, man.Status.Summary)
	}
	if man.Status.Termination != "source_exhausted" {
		t.Fatalf("expected source_exhausted termination, got %q", man.Status.Termination)
	}
	if man.Hostname != "test-host" {
		t.Fatalf("unexpected hostname %q", man.Hostname)
	}
	if man.Recording.Name != "demo" || man.Recording.Source != "synthetic" {
		t.Fatalf("unexpected recording settings: %+v", man.Recording)
	}
	if man.Status.Counters == nil || man.Status.Counters.Events == 0 {
		t.Fatalf("expected event counters, got %+v", man.Status.Counters)
	}
	if len(man.Status.Components) != 2 {
		t.Fatalf("expected source and journal components, got %+v", man.Status.Components)
	}

	wf, err := workflow.Load(layout.WorkflowPath)
	if err != nil {
		t.Fatalf("workflow not written: %v", err)
	}
	if wf.ID != man.WorkflowID {
		t.Fatalf("manifest workflow id %q does not match %q", man.WorkflowID, wf.ID)
	}
	if wf.Name != "demo" {
		t.Fatalf("unexpected workflow name %q", wf.Name)
	}
	if len(wf.Events) != man.Status.Counters.Events {
		t.Fatalf("workflow has %d events, manifest counted %d", len(wf.Events), man.Status.Counters.Events)
	}

	if _, err := os.Stat(layout.JournalPath); err != nil {
		t.Fatalf("journal not written: %v", err)
	}

	out := stdout.String()
	for _, want := range []string{"Recording \"demo\"", "text_input_completed", "application_switch", "Run directory: " + layout.Root, "Events by kind:"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output, got %q", want, out)
		}
	}
}

func TestRecordCommandQuietWithoutJournal(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.RunsDir = t.TempDir()
	cfg.Storage.JournalEnabled = false
	ctx := &AppContext{Config: cfg, Logger: newTestLogger()}
	fixTime(t, time.Date(2024, 5, 12, 10, 0, 0, 0, time.UTC))

	var stdout bytes.Buffer
	if err := runRecord(recordFlags(t, "-quiet"), nil, ctx, &stdout, io.Discard); err != nil {
		t.Fatalf("runRecord returned error: %v", err)
	}
	out := stdout.String()
	if strings.Contains(out, "Recording \"") {
		t.Fatalf("quiet run should not stream events, got %q", out)
	}
	if !strings.Contains(out, "Journal: disabled") {
		t.Fatalf("expected disabled journal, got %q", out)
	}
}

func TestRecordCommandReplay(t *testing.T) {
	start := time.Date(2024, 5, 12, 11, 0, 0, 0, time.UTC)
	replayPath := filepath.Join(t.TempDir(), "session.jsonl")
	file, err := os.Create(replayPath)
	if err != nil {
		t.Fatalf("create replay: %v", err)
	}
	if err := source.WriteJSONL(file, source.SyntheticScript(start, nil).Events()); err != nil {
		t.Fatalf("write replay: %v", err)
	}
	file.Close()

	cfg := config.Default()
	cfg.Paths.RunsDir = t.TempDir()
	ctx := &AppContext{Config: cfg, Logger: newTestLogger()}
	fixTime(t, start)

	if err := runRecord(recordFlags(t, "-quiet", "-source", "replay", "-replay", replayPath), nil, ctx, io.Discard, io.Discard); err != nil {
		t.Fatalf("runRecord returned error: %v", err)
	}

	layout := runmanifest.BuildLayout(cfg.Paths.RunsDir, start.Format("20060102_150405"))
	jnl, err := store.Open(layout.JournalPath, newTestLogger())
	if err != nil {
		t.Fatalf("open journal: %v", err)
	}
	defer jnl.Close()
	wf, err := workflow.Load(layout.WorkflowPath)
	if err != nil {
		t.Fatalf("load workflow: %v", err)
	}
	if len(wf.Events) == 0 {
		t.Fatalf("expected replayed events")
	}
}

func TestRecordCommandRejectsBadSource(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.RunsDir = t.TempDir()
	ctx := &AppContext{Config: cfg, Logger: newTestLogger()}

	if err := runRecord(recordFlags(t, "-source", "webcam"), nil, ctx, io.Discard, io.Discard); err == nil {
		t.Fatalf("expected unknown source error")
	}
	if err := runRecord(recordFlags(t, "-source", "replay"), nil, ctx, io.Discard, io.Discard); err == nil {
		t.Fatalf("expected missing replay path error")
	}

	entries, err := os.ReadDir(cfg.Paths.RunsDir)
	if err != nil {
		t.Fatalf("read runs dir: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("rejected source should not create a run, found %d entries", len(entries))
	}
}

func TestRecordCommandMissingReplayMarksManifestFailed(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.RunsDir = t.TempDir()
	ctx := &AppContext{Config: cfg, Logger: newTestLogger()}
	now := time.Date(2024, 5, 12, 12, 0, 0, 0, time.UTC)
	fixTime(t, now)

	missing := filepath.Join(t.TempDir(), "missing.jsonl")
	if err := runRecord(recordFlags(t, "-quiet", "-source", "replay", "-replay", missing), nil, ctx, io.Discard, io.Discard); err == nil {
		t.Fatalf("expected replay open failure")
	}

	man, err := runmanifest.Load(runmanifest.BuildLayout(cfg.Paths.RunsDir, now.Format("20060102_150405")).ManifestPath)
	if err != nil {
		t.Fatalf("load manifest: %v", err)
	}
	if man.Status.State != "failed" {
		t.Fatalf("expected failed state, got %q", man.Status.State)
	}
	var sourceState string
	for _, c := range man.Status.Components {
		if c.Name == "source" {
			sourceState = c.State
		}
	}
	if sourceState != runmanifest.ComponentStateUnavailable {
		t.Fatalf("expected unavailable source component, got %q", sourceState)
	}
}
