// Package logging builds the slog loggers used across flowrec.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/mattn/go-isatty"

	"github.com/offlinefirst/workflow-recorder/pkg/config"
)

// Options select level, format and destination. Output defaults to stderr.
type Options struct {
	Level  string
	Format string
	Output io.Writer
}

var levels = map[string]slog.Level{
	"debug": slog.LevelDebug,
	"info":  slog.LevelInfo,
	"warn":  slog.LevelWarn,
	"error": slog.LevelError,
}

// New returns a logger writing JSON lines or key=value console lines. The
// "auto" format picks console for terminals and JSON otherwise.
func New(opts Options) (*slog.Logger, error) {
	name, err := config.NormalizeLogLevel(opts.Level)
	if err != nil {
		return nil, err
	}
	level, ok := levels[name]
	if !ok {
		return nil, fmt.Errorf("unhandled log level %q", name)
	}
	format, err := config.NormalizeFormat(opts.Format)
	if err != nil {
		return nil, err
	}

	out := opts.Output
	if out == nil {
		out = os.Stderr
	}
	if format == "auto" {
		format = "json"
		if IsTerminal(out) {
			format = "console"
		}
	}

	leveler := new(slog.LevelVar)
	leveler.Set(level)

	switch format {
	case "json":
		return slog.New(slog.NewJSONHandler(out, &slog.HandlerOptions{Level: leveler, ReplaceAttr: utcTime(time.RFC3339)})), nil
	case "console":
		return slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: leveler, ReplaceAttr: utcTime("15:04:05.000")})), nil
	}
	return nil, fmt.Errorf("unsupported log format %q", opts.Format)
}

// IsTerminal reports whether w is a file attached to a terminal.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(interface{ Fd() uintptr })
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// utcTime renders the record time in UTC with layout.
func utcTime(layout string) func([]string, slog.Attr) slog.Attr {
	return func(groups []string, attr slog.Attr) slog.Attr {
		if len(groups) == 0 && attr.Key == slog.TimeKey && attr.Value.Kind() == slog.KindTime {
			attr.Value = slog.StringValue(attr.Value.Time().UTC().Format(layout))
		}
		return attr
	}
}
