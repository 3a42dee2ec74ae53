package cmd

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/offlinefirst/workflow-recorder/internal/buildinfo"
	"github.com/offlinefirst/workflow-recorder/pkg/config"
	"github.com/offlinefirst/workflow-recorder/pkg/logging"
)

type runFunc func(fs *flag.FlagSet, args []string, ctx *AppContext, stdout io.Writer, stderr io.Writer) error

// command is one subcommand. usage follows the command name in its usage
// line, e.g. "[flags] <path>".
type command struct {
	name        string
	description string
	usage       string
	configure   func(fs *flag.FlagSet)
	run         runFunc
	skipInit    bool
}

// AppContext carries the loaded configuration and logger into subcommands.
type AppContext struct {
	Config config.Config
	Logger *slog.Logger
}

// globalFlags precede the subcommand. Unset values fall back to FLOWREC_*
// environment variables.
type globalFlags struct {
	configPath string
	logLevel   string
	logFormat  string
}

func (g *globalFlags) bind(fs *flag.FlagSet) {
	fs.StringVar(&g.configPath, "config", "", "Path to config file, YAML or TOML (env FLOWREC_CONFIG, default ./flowrec.yaml)")
	fs.StringVar(&g.logLevel, "log-level", "", "Log level: debug, info, warn, error (env FLOWREC_LOG_LEVEL)")
	fs.StringVar(&g.logFormat, "log-format", "", "Log format: json, console, auto (env FLOWREC_LOG_FORMAT)")
}

func (g *globalFlags) applyEnv(lookup func(string) (string, bool)) {
	fill := func(dst *string, key string) {
		if *dst != "" {
			return
		}
		if v, ok := lookup(key); ok {
			*dst = strings.TrimSpace(v)
		}
	}
	fill(&g.configPath, "FLOWREC_CONFIG")
	fill(&g.logLevel, "FLOWREC_LOG_LEVEL")
	fill(&g.logFormat, "FLOWREC_LOG_FORMAT")
}

// RootCommand parses global flags and dispatches to a subcommand.
type RootCommand struct {
	commands  []command
	stdout    io.Writer
	stderr    io.Writer
	lookupEnv func(string) (string, bool)
	globals   globalFlags
	appCtx    *AppContext
}

// NewRootCommand wires the flowrec subcommands in help order.
func NewRootCommand() *RootCommand {
	return &RootCommand{
		commands: []command{
			newRecordCommand(),
			newInspectCommand(),
			newDoctorCommand(),
			newVersionCommand(),
		},
		stdout:    os.Stdout,
		stderr:    os.Stderr,
		lookupEnv: os.LookupEnv,
	}
}

func (rc *RootCommand) find(name string) (command, bool) {
	for _, c := range rc.commands {
		if c.name == name {
			return c, true
		}
	}
	return command{}, false
}

// Execute runs the command line in args (without the program name).
func (rc *RootCommand) Execute(args []string) error {
	rootFlags := flag.NewFlagSet("flowrec", flag.ContinueOnError)
	rootFlags.SetOutput(rc.stderr)
	rootFlags.Usage = rc.printHelp
	rc.globals.bind(rootFlags)

	if err := rootFlags.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return err
	}
	rc.globals.applyEnv(rc.lookupEnv)

	remaining := rootFlags.Args()
	if len(remaining) == 0 || remaining[0] == "help" {
		rc.printHelp()
		return nil
	}

	sub, ok := rc.find(remaining[0])
	if !ok {
		fmt.Fprintf(rc.stderr, "Unknown command %q\n\n", remaining[0])
		rc.printHelp()
		return fmt.Errorf("unknown command %q", remaining[0])
	}

	fs := flag.NewFlagSet(sub.name, flag.ContinueOnError)
	fs.SetOutput(rc.stderr)
	fs.Usage = func() {
		usage := sub.usage
		if usage == "" {
			usage = "[flags]"
		}
		fmt.Fprintf(rc.stdout, "Usage: flowrec %s %s\n%s\n\n", sub.name, usage, sub.description)
		fs.SetOutput(rc.stdout)
		fs.PrintDefaults()
	}
	if sub.configure != nil {
		sub.configure(fs)
	}
	if err := fs.Parse(remaining[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return err
	}

	var ctx *AppContext
	if !sub.skipInit {
		var err error
		if ctx, err = rc.ensureAppContext(); err != nil {
			return err
		}
	}
	return sub.run(fs, fs.Args(), ctx, rc.stdout, rc.stderr)
}

func (rc *RootCommand) ensureAppContext() (*AppContext, error) {
	if rc.appCtx != nil {
		return rc.appCtx, nil
	}

	cfg, err := config.Load(rc.globals.configPath)
	if err != nil {
		return nil, err
	}
	if rc.globals.logLevel != "" {
		if cfg.Logging.Level, err = config.NormalizeLogLevel(rc.globals.logLevel); err != nil {
			return nil, err
		}
	}
	if rc.globals.logFormat != "" {
		if cfg.Logging.Format, err = config.NormalizeFormat(rc.globals.logFormat); err != nil {
			return nil, err
		}
	}

	logger, err := logging.New(logging.Options{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: rc.stderr,
	})
	if err != nil {
		return nil, err
	}
	logger.Info("configuration loaded", "source", cfg.Source, "runs_dir", cfg.Paths.RunsDir, "journal", cfg.Storage.JournalEnabled)

	rc.appCtx = &AppContext{Config: cfg, Logger: logger}
	return rc.appCtx, nil
}

func (rc *RootCommand) printHelp() {
	r := lipgloss.NewRenderer(rc.stdout)
	title := r.NewStyle().Bold(true).Foreground(lipgloss.Color("#7C3AED"))
	name := r.NewStyle().Bold(true).Width(10)

	fmt.Fprintf(rc.stdout, "%s %s\n\n", title.Render("flowrec"), "desktop workflow recorder "+versionString())
	fmt.Fprintln(rc.stdout, "Usage: flowrec [global flags] <command> [command flags]")
	fmt.Fprintln(rc.stdout)
	fmt.Fprintln(rc.stdout, "Global flags:")
	fs := flag.NewFlagSet("flowrec", flag.ContinueOnError)
	new(globalFlags).bind(fs)
	fs.SetOutput(rc.stdout)
	fs.PrintDefaults()
	fmt.Fprintln(rc.stdout)
	fmt.Fprintln(rc.stdout, "Commands:")
	for _, c := range rc.commands {
		fmt.Fprintf(rc.stdout, "  %s %s\n", name.Render(c.name), c.description)
	}
	fmt.Fprintln(rc.stdout, "\nRun 'flowrec <command> -h' for command flags.")
}

func versionString() string {
	return fmt.Sprintf("%s (go%s/%s)", buildinfo.Version(), strings.TrimPrefix(runtimeVersion(), "go"), runtimeGOOS())
}

// Swapped in tests.
var (
	runtimeVersion = runtime.Version
	runtimeGOOS    = func() string { return runtime.GOOS }
)
