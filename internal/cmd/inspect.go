package cmd

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/offlinefirst/workflow-recorder/pkg/events"
	"github.com/offlinefirst/workflow-recorder/pkg/runmanifest"
	"github.com/offlinefirst/workflow-recorder/pkg/store"
	"github.com/offlinefirst/workflow-recorder/pkg/workflow"
)

func newInspectCommand() command {
	return command{
		name:        "inspect",
		description: "Summarise a recorded workflow, run directory or journal",
		usage:       "[flags] <workflow.json|run dir|journal.db>",
		configure: func(fs *flag.FlagSet) {
			fs.Bool("events", false, "List every event, not just the per-kind counts")
			fs.String("kind", "", "Only list events of this kind")
			fs.String("id", "", "Workflow id to load from a journal (default: list journaled workflows)")
		},
		run: runInspect,
	}
}

func runInspect(fs *flag.FlagSet, args []string, ctx *AppContext, stdout io.Writer, stderr io.Writer) error {
	if ctx == nil {
		return fmt.Errorf("application context unavailable")
	}
	if len(args) != 1 {
		return fmt.Errorf("inspect expects exactly one path (workflow.json, run directory or journal.db)")
	}
	kind := events.Kind(stringFlag(fs, "kind"))
	if kind != "" && !kind.Valid() {
		return fmt.Errorf("unknown event kind %q", kind)
	}
	opts := inspectOptions{listEvents: boolFlag(fs, "events") || kind != "", kind: kind}
	printer := newEventPrinter(stdout)

	target := args[0]
	info, err := os.Stat(target)
	if err != nil {
		return fmt.Errorf("inspect %s: %w", target, err)
	}

	if info.IsDir() {
		return inspectRunDir(target, printer, opts)
	}
	if strings.EqualFold(filepath.Ext(target), ".db") {
		return inspectJournal(target, stringFlag(fs, "id"), ctx, printer, opts)
	}
	wf, err := workflow.Load(target)
	if err != nil {
		return err
	}
	printWorkflow(printer, wf, opts)
	return nil
}

type inspectOptions struct {
	listEvents bool
	kind       events.Kind
}

func inspectRunDir(dir string, printer *eventPrinter, opts inspectOptions) error {
	layout := runmanifest.BuildLayout(filepath.Dir(dir), filepath.Base(dir))
	manifest, err := runmanifest.Load(layout.ManifestPath)
	if err != nil {
		return err
	}
	out := printer.out
	printer.Title("Run " + manifest.RunID)
	fmt.Fprintf(out, "Created: %s on %s (flowrec %s)\n", manifest.CreatedAt.Format(time.RFC3339), manifest.Hostname, manifest.AppVersion)
	fmt.Fprintf(out, "Source: %s\n", manifest.Recording.Source)
	fmt.Fprintf(out, "State: %s", manifest.Status.State)
	if manifest.Status.Termination != "" {
		fmt.Fprintf(out, " (termination: %s)", manifest.Status.Termination)
	}
	fmt.Fprintln(out)
	if manifest.Status.Summary != "" {
		fmt.Fprintf(out, "Summary: %s\n", manifest.Status.Summary)
	}
	if c := manifest.Status.Counters; c != nil {
		fmt.Fprintf(out, "Counters: %d events, %d raw accepted, %d dropped, %d private, %d throttled\n", c.Events, c.RawAccepted, c.RawDropped, c.PrivateDropped, c.Throttled)
	}
	fmt.Fprintln(out)

	wf, err := workflow.Load(layout.WorkflowPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintln(out, "Workflow file not written (run did not finish).")
			return nil
		}
		return err
	}
	printWorkflow(printer, wf, opts)
	return nil
}

func inspectJournal(path, id string, ctx *AppContext, printer *eventPrinter, opts inspectOptions) error {
	jnl, err := store.Open(path, ctx.Logger)
	if err != nil {
		return err
	}
	defer jnl.Close()

	background := context.Background()
	if id != "" {
		wf, err := jnl.Load(background, id)
		if err != nil {
			return fmt.Errorf("load workflow %s: %w", id, err)
		}
		printWorkflow(printer, wf, opts)
		return nil
	}

	summaries, err := jnl.Workflows(background)
	if err != nil {
		return fmt.Errorf("list journaled workflows: %w", err)
	}
	out := printer.out
	printer.Title(fmt.Sprintf("Journal %s: %d workflows", path, len(summaries)))
	for _, s := range summaries {
		end := "unfinished"
		if s.EndTime != nil {
			end = s.EndTime.Sub(s.StartTime).Round(time.Millisecond).String()
		}
		fmt.Fprintf(out, "  %s  %s  %-24s %5d events  %s\n", s.ID, s.StartTime.Format(time.RFC3339), s.Name, s.EventCount, end)
	}
	return nil
}

func printWorkflow(printer *eventPrinter, wf *workflow.Workflow, opts inspectOptions) {
	out := printer.out
	printer.Title(fmt.Sprintf("Workflow %q", wf.Name))
	fmt.Fprintf(out, "ID: %s\n", wf.ID)
	fmt.Fprintf(out, "Started: %s\n", wf.StartTime.Format(time.RFC3339))
	if wf.EndTime != nil {
		fmt.Fprintf(out, "Ended: %s (%s)\n", wf.EndTime.Format(time.RFC3339), wf.Duration().Round(time.Millisecond))
	} else {
		fmt.Fprintln(out, "Ended: still recording")
	}
	fmt.Fprintf(out, "Events: %d\n", len(wf.Events))
	printer.Counts(wf.Counts())

	if !opts.listEvents {
		return
	}
	fmt.Fprintln(out)
	for _, ev := range wf.Events {
		if opts.kind != "" && ev.Kind() != opts.kind {
			continue
		}
		printer.Print(ev)
	}
}
