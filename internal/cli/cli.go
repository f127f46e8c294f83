// Package cli implements the replaypack subcommands. Each Run* function
// parses its own flags and returns the process exit code; typed failure
// kinds become numeric codes only here, at the outermost boundary.
package cli

import (
	"flag"
	"fmt"
	"io"

	"github.com/rauterfrank-ui/Peak-Trade-sub008/internal/exitcode"
)

func newFlagSet(name string, stderr io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	return fs
}

// fail reports an error and converts it to the exit code its kind demands.
func fail(stderr io.Writer, name string, err error) int {
	fmt.Fprintf(stderr, "replaypack %s: %v\n", name, err)
	return exitcode.FromError(err)
}

func usage(stderr io.Writer, name, msg string) int {
	fmt.Fprintf(stderr, "replaypack %s: %s\n", name, msg)
	return int(exitcode.Usage)
}
