package cli

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/rauterfrank-ui/Peak-Trade-sub008/internal/bundle"
	"github.com/rauterfrank-ui/Peak-Trade-sub008/internal/exitcode"
	"github.com/rauterfrank-ui/Peak-Trade-sub008/internal/replay"
)

// RunBuild handles: replaypack build --run-id-or-dir <path> --out <dir>
// [--include-outputs]
func RunBuild(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("build", stderr)
	source := fs.String("run-id-or-dir", "", "source run directory")
	out := fs.String("out", "", "bundle output directory")
	includeOutputs := fs.Bool("include-outputs", false, "embed expected fills/positions snapshots")
	if err := fs.Parse(args); err != nil {
		return int(exitcode.Usage)
	}
	if *source == "" || *out == "" {
		return usage(stderr, "build", "--run-id-or-dir and --out are required")
	}

	path, err := bundle.Build(*source, *out, bundle.BuildOptions{
		IncludeOutputs: *includeOutputs,
		Derive:         replay.Derive,
	})
	if err != nil {
		return fail(stderr, "build", err)
	}
	slog.Debug("bundle built", "source", *source, "bundle", path, "include_outputs", *includeOutputs)
	fmt.Fprintf(stdout, "built bundle %s\n", path)
	return 0
}
