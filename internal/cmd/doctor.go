package cmd

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/offlinefirst/workflow-recorder/pkg/permissions"
	"github.com/offlinefirst/workflow-recorder/pkg/procinfo"
	"github.com/offlinefirst/workflow-recorder/pkg/source"
	"github.com/offlinefirst/workflow-recorder/pkg/store"
	"github.com/offlinefirst/workflow-recorder/pkg/workflow"
)

type checkResult struct {
	name   string
	ok     bool
	detail string
}

func newDoctorCommand() command {
	return command{
		name:        "doctor",
		description: "Check capture permissions, backends and storage",
		run:         runDoctor,
	}
}

// detectEnvironment and probePermissions are swapped in tests.
var (
	detectEnvironment = source.DetectEnvironment
	probePermissions  = func() []permissions.ProbeResult { return permissions.ProbeAll(nil) }
)

func runDoctor(fs *flag.FlagSet, args []string, ctx *AppContext, stdout io.Writer, stderr io.Writer) error {
	if ctx == nil {
		return fmt.Errorf("application context unavailable")
	}

	r := lipgloss.NewRenderer(stdout)
	pass := r.NewStyle().Foreground(lipgloss.Color("#22C55E")).Bold(true)
	fail := r.NewStyle().Foreground(lipgloss.Color("#EF4444")).Bold(true)
	dim := r.NewStyle().Foreground(lipgloss.Color("#6B7280"))

	env := detectEnvironment()
	checks := []checkResult{
		{name: "platform", ok: true, detail: runtime.GOOS + "/" + runtime.GOARCH},
		{name: "native backend", ok: env.Available, detail: fmt.Sprintf("%s (%s)", env.Provider, env.Message)},
	}
	var guidance []string
	if env.Guidance != "" {
		guidance = append(guidance, env.Guidance)
	}
	for _, probe := range probePermissions() {
		detail := probe.StatusString()
		if probe.Message != "" {
			detail += ": " + probe.Message
		}
		checks = append(checks, checkResult{name: probe.Surface + " permission", ok: !probe.Blocking(), detail: detail})
		if probe.Guidance != "" && probe.Guidance != env.Guidance {
			guidance = append(guidance, probe.Guidance)
		}
	}
	checks = append(checks, checkRunsDir(ctx.Config.Paths.RunsDir))
	if ctx.Config.Storage.JournalEnabled {
		checks = append(checks, checkJournal(ctx))
	}
	checks = append(checks, checkProcessNames())

	failures := 0
	for _, c := range checks {
		mark := pass.Render("ok  ")
		if !c.ok {
			mark = fail.Render("FAIL")
			failures++
		}
		fmt.Fprintf(stdout, "%s %-26s %s\n", mark, c.name, dim.Render(c.detail))
	}
	if len(guidance) > 0 {
		fmt.Fprintln(stdout)
		for _, g := range guidance {
			fmt.Fprintln(stdout, g)
		}
	}
	if !env.Available {
		fmt.Fprintln(stdout, "\nNative capture unavailable; 'flowrec record --source synthetic' or '--source replay' still work.")
	}

	ctx.Logger.Info("doctor completed", "checks", len(checks), "failures", failures)
	return nil
}

func checkRunsDir(dir string) checkResult {
	res := checkResult{name: "runs directory", detail: dir}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		res.detail = err.Error()
		return res
	}
	probe, err := os.CreateTemp(dir, ".doctor-*")
	if err != nil {
		res.detail = err.Error()
		return res
	}
	probe.Close()
	os.Remove(probe.Name())
	res.ok = true
	return res
}

// checkJournal opens a scratch journal and round-trips one workflow.
func checkJournal(ctx *AppContext) checkResult {
	res := checkResult{name: "sqlite journal"}
	dir, err := os.MkdirTemp("", "flowrec-doctor-*")
	if err != nil {
		res.detail = err.Error()
		return res
	}
	defer os.RemoveAll(dir)

	jnl, err := store.Open(filepath.Join(dir, "journal.db"), ctx.Logger)
	if err != nil {
		res.detail = err.Error()
		return res
	}
	defer jnl.Close()

	wf, err := workflow.New("doctor", timeNow())
	if err != nil {
		res.detail = err.Error()
		return res
	}
	if err := jnl.Begin(wf); err != nil {
		res.detail = err.Error()
		return res
	}
	if err := jnl.Finish(wf.ID, timeNow()); err != nil {
		res.detail = err.Error()
		return res
	}
	if _, err := jnl.Load(context.Background(), wf.ID); err != nil {
		res.detail = err.Error()
		return res
	}
	res.ok = true
	res.detail = "read/write ok"
	return res
}

func checkProcessNames() checkResult {
	res := checkResult{name: "process names"}
	start := time.Now()
	name, err := procinfo.New().Name(int32(os.Getpid()))
	if err != nil {
		res.detail = err.Error()
		return res
	}
	res.ok = true
	res.detail = fmt.Sprintf("%s resolved in %s", name, time.Since(start).Round(time.Microsecond))
	return res
}
