package cmd

import (
	"bytes"
	"flag"
	"io"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/offlinefirst/workflow-recorder/pkg/config"
	"github.com/offlinefirst/workflow-recorder/pkg/events"
	"github.com/offlinefirst/workflow-recorder/pkg/permissions"
	"github.com/offlinefirst/workflow-recorder/pkg/runmanifest"
	"github.com/offlinefirst/workflow-recorder/pkg/source"
	"github.com/offlinefirst/workflow-recorder/pkg/store"
	"github.com/offlinefirst/workflow-recorder/pkg/uia"
	"github.com/offlinefirst/workflow-recorder/pkg/workflow"
)

func inspectFlags(t *testing.T, args ...string) *flag.FlagSet {
	t.Helper()
	fs := flag.NewFlagSet("inspect", flag.ContinueOnError)
	newInspectCommand().configure(fs)
	if err := fs.Parse(args); err != nil {
		t.Fatalf("parse flags: %v", err)
	}
	return fs
}

func sampleWorkflow(t *testing.T) *workflow.Workflow {
	t.Helper()
	start := time.Date(2024, 6, 3, 14, 0, 0, 0, time.UTC)
	wf, err := workflow.New("expense report", start)
	if err != nil {
		t.Fatalf("new workflow: %v", err)
	}
	end := start.Add(4 * time.Second)
	wf.EndTime = &end
	wf.Events = []events.WorkflowEvent{
		{
			Metadata: events.Metadata{Sequence: 1, Timestamp: start.Add(time.Second), ElementRef: "form:amount", Element: &uia.Info{Role: "edit", Name: "Amount"}},
			Payload:  &events.TextInputCompletedEvent{TextValue: "42.50", FieldName: "Amount", FieldType: "edit", InputMethod: events.InputTyped, KeystrokeCount: 5, FlushReason: events.FlushCommitKey},
		},
		{
			Metadata: events.Metadata{Sequence: 2, Timestamp: start.Add(2 * time.Second)},
			Payload:  &events.HotkeyEvent{Combination: "Ctrl+S", Action: "save"},
		},
		{
			Metadata: events.Metadata{Sequence: 3, Timestamp: start.Add(3 * time.Second)},
			Payload:  &events.MouseEvent{Type: events.MouseClick, Button: events.ButtonLeft, Position: events.Position{X: 10, Y: 20}},
		},
	}
	return wf
}

func TestInspectWorkflowFile(t *testing.T) {
	wf := sampleWorkflow(t)
	path := filepath.Join(t.TempDir(), "workflow.json")
	if err := workflow.Save(wf, path); err != nil {
		t.Fatalf("save workflow: %v", err)
	}
	ctx := &AppContext{Config: config.Default(), Logger: newTestLogger()}

	var stdout bytes.Buffer
	if err := runInspect(inspectFlags(t, "-kind", "text_input_completed"), []string{path}, ctx, &stdout, io.Discard); err != nil {
		t.Fatalf("runInspect returned error: %v", err)
	}
	out := stdout.String()
	for _, want := range []string{`Workflow "expense report"`, "Events: 3", `"42.50" into "Amount" (typed, 5 keys, commit_key)`} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output, got %q", want, out)
		}
	}
	if strings.Contains(out, "Ctrl+S (save)") {
		t.Fatalf("kind filter should hide hotkeys, got %q", out)
	}
}

func TestInspectJournal(t *testing.T) {
	wf := sampleWorkflow(t)
	path := filepath.Join(t.TempDir(), "journal.db")
	jnl, err := store.Open(path, newTestLogger())
	if err != nil {
		t.Fatalf("open journal: %v", err)
	}
	if err := jnl.Begin(wf); err != nil {
		t.Fatalf("begin: %v", err)
	}
	for _, ev := range wf.Events {
		jnl.Append(wf.ID, ev)
	}
	if err := jnl.Finish(wf.ID, *wf.EndTime); err != nil {
		t.Fatalf("finish: %v", err)
	}
	if err := jnl.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	ctx := &AppContext{Config: config.Default(), Logger: newTestLogger()}

	var listing bytes.Buffer
	if err := runInspect(inspectFlags(t), []string{path}, ctx, &listing, io.Discard); err != nil {
		t.Fatalf("list journal: %v", err)
	}
	if !strings.Contains(listing.String(), "1 workflows") || !strings.Contains(listing.String(), wf.ID) {
		t.Fatalf("unexpected listing %q", listing.String())
	}

	var detail bytes.Buffer
	if err := runInspect(inspectFlags(t, "-events", "-id", wf.ID), []string{path}, ctx, &detail, io.Discard); err != nil {
		t.Fatalf("load from journal: %v", err)
	}
	if !strings.Contains(detail.String(), "Ctrl+S (save)") {
		t.Fatalf("expected hotkey in event listing, got %q", detail.String())
	}
}

func TestInspectRunDirectory(t *testing.T) {
	runsDir := t.TempDir()
	layout := runmanifest.BuildLayout(runsDir, "20240603_140000")
	if err := runmanifest.EnsureFilesystem(layout); err != nil {
		t.Fatalf("ensure filesystem: %v", err)
	}
	cfg := config.Default()
	man := runmanifest.New(runmanifest.Options{RunID: "20240603_140000", CreatedAt: time.Now(), Hostname: "h", AppVersion: "dev", Source: "synthetic", Config: cfg, Layout: layout})
	man.Status.State = "completed"
	if err := runmanifest.Save(man, layout.ManifestPath); err != nil {
		t.Fatalf("save manifest: %v", err)
	}
	ctx := &AppContext{Config: cfg, Logger: newTestLogger()}

	var stdout bytes.Buffer
	if err := runInspect(inspectFlags(t), []string{layout.Root}, ctx, &stdout, io.Discard); err != nil {
		t.Fatalf("runInspect returned error: %v", err)
	}
	if !strings.Contains(stdout.String(), "Workflow file not written") {
		t.Fatalf("expected missing workflow notice, got %q", stdout.String())
	}

	if err := workflow.Save(sampleWorkflow(t), layout.WorkflowPath); err != nil {
		t.Fatalf("save workflow: %v", err)
	}
	stdout.Reset()
	if err := runInspect(inspectFlags(t), []string{layout.Root}, ctx, &stdout, io.Discard); err != nil {
		t.Fatalf("runInspect returned error: %v", err)
	}
	if !strings.Contains(stdout.String(), "Run 20240603_140000") || !strings.Contains(stdout.String(), "Events: 3") {
		t.Fatalf("unexpected run output %q", stdout.String())
	}
}

func TestInspectRejectsBadInput(t *testing.T) {
	ctx := &AppContext{Config: config.Default(), Logger: newTestLogger()}
	if err := runInspect(inspectFlags(t), nil, ctx, io.Discard, io.Discard); err == nil {
		t.Fatalf("expected error without a path")
	}
	if err := runInspect(inspectFlags(t, "-kind", "telepathy"), []string{t.TempDir()}, ctx, io.Discard, io.Discard); err == nil {
		t.Fatalf("expected error for unknown kind")
	}
	if err := runInspect(inspectFlags(t), []string{filepath.Join(t.TempDir(), "nope.json")}, ctx, io.Discard, io.Discard); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestDoctorReportsChecks(t *testing.T) {
	origEnv := detectEnvironment
	detectEnvironment = func() source.Environment {
		return source.Environment{Provider: "synthetic", Permission: "not_applicable", Message: "no native capture backend"}
	}
	t.Cleanup(func() { detectEnvironment = origEnv })
	origProbe := probePermissions
	probePermissions = func() []permissions.ProbeResult {
		return []permissions.ProbeResult{
			{Surface: "accessibility", Status: permissions.StatusGranted},
			{Surface: "input monitoring", Status: permissions.StatusDenied, Guidance: "grant input monitoring"},
		}
	}
	t.Cleanup(func() { probePermissions = origProbe })

	cfg := config.Default()
	cfg.Paths.RunsDir = t.TempDir()
	ctx := &AppContext{Config: cfg, Logger: newTestLogger()}

	var stdout bytes.Buffer
	if err := runDoctor(nil, nil, ctx, &stdout, io.Discard); err != nil {
		t.Fatalf("runDoctor returned error: %v", err)
	}
	out := stdout.String()
	for _, want := range []string{"FAIL native backend", "ok   runs directory", "ok   sqlite journal", "ok   accessibility permission", "FAIL input monitoring permission", "grant input monitoring", "--source synthetic"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output, got %q", want, out)
		}
	}
}
