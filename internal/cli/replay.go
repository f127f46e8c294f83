package cli

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/rauterfrank-ui/Peak-Trade-sub008/internal/config"
	"github.com/rauterfrank-ui/Peak-Trade-sub008/internal/dataref"
	"github.com/rauterfrank-ui/Peak-Trade-sub008/internal/exitcode"
	"github.com/rauterfrank-ui/Peak-Trade-sub008/internal/replay"
)

// RunReplay handles: replaypack replay --bundle <dir> [--check-outputs]
// [--resolve-datarefs best_effort|strict --cache-root <dir>]
// [--invariants <file.star>]
// Exit codes: 0|2|3|4|5|6.
func RunReplay(cfg *config.Config, args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("replay", stderr)
	bundlePath := fs.String("bundle", "", "bundle directory")
	checkOutputs := fs.Bool("check-outputs", false, "compare derived outputs against embedded snapshots")
	resolveMode := fs.String("resolve-datarefs", "", "resolve datarefs first: best_effort or strict")
	cacheRoot := fs.String("cache-root", cfg.CacheRoot, "local dataref cache root")
	invariants := fs.String("invariants", cfg.Invariants, "starlark invariants script")
	if err := fs.Parse(args); err != nil {
		return int(exitcode.Usage)
	}
	if *bundlePath == "" {
		return usage(stderr, "replay", "--bundle is required")
	}

	opts := replay.Options{
		CheckOutputs:     *checkOutputs,
		CacheRoot:        *cacheRoot,
		InvariantsScript: *invariants,
	}
	if *resolveMode != "" {
		mode, err := dataref.ParseMode(*resolveMode)
		if err != nil {
			return fail(stderr, "replay", err)
		}
		opts.Resolve = &mode
	}

	result, err := replay.Replay(*bundlePath, opts)
	if result != nil {
		printReplayResult(stdout, result)
	}
	if err != nil {
		return fail(stderr, "replay", err)
	}
	slog.Debug("replay complete", "bundle", *bundlePath, "check_outputs", *checkOutputs)
	return 0
}

func printReplayResult(w io.Writer, result *replay.Result) {
	if result.Resolution != nil {
		for _, line := range result.Resolution.Statuses() {
			fmt.Fprintf(w, "dataref %s\n", line)
		}
	}
	if result.Outputs != nil {
		fmt.Fprintf(w, "replayed %d fills, %d positions\n",
			len(result.Outputs.Fills), len(result.Outputs.Positions))
	}
	for _, inv := range result.Invariants {
		if inv.OK {
			fmt.Fprintf(w, "invariant %s OK\n", inv.Name)
		} else {
			fmt.Fprintf(w, "invariant %s FAILED: %s\n", inv.Name, inv.Detail)
		}
	}
	for _, diff := range result.OutputDiffs {
		fmt.Fprintf(w, "output mismatch %s\n", diff)
	}
}
