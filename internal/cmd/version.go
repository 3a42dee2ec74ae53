package cmd

import (
	"flag"
	"fmt"
	"io"

	"github.com/offlinefirst/workflow-recorder/internal/buildinfo"
)

func newVersionCommand() command {
	return command{
		name:        "version",
		description: "Print the flowrec version",
		skipInit:    true,
		configure: func(fs *flag.FlagSet) {
			fs.Bool("short", false, "Print only the version number")
		},
		run: func(fs *flag.FlagSet, args []string, ctx *AppContext, stdout io.Writer, stderr io.Writer) error {
			if boolFlag(fs, "short") {
				_, err := fmt.Fprintln(stdout, buildinfo.Version())
				return err
			}
			_, err := fmt.Fprintln(stdout, "flowrec "+versionString())
			return err
		},
	}
}
