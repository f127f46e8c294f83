package cli

import (
	"fmt"
	"io"
	"log/slog"
	"path/filepath"

	"github.com/rauterfrank-ui/Peak-Trade-sub008/internal/bundle"
	"github.com/rauterfrank-ui/Peak-Trade-sub008/internal/compare"
	"github.com/rauterfrank-ui/Peak-Trade-sub008/internal/config"
	"github.com/rauterfrank-ui/Peak-Trade-sub008/internal/dataref"
	"github.com/rauterfrank-ui/Peak-Trade-sub008/internal/exitcode"
)

// RunCompare handles: replaypack compare --bundle <dir> [--check-outputs]
// [--resolve-datarefs ...] --generated-at-utc <ISO8601>
// Writes meta/compare_report.json; same exit-code space as replay.
func RunCompare(cfg *config.Config, args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("compare", stderr)
	bundlePath := fs.String("bundle", "", "bundle directory")
	checkOutputs := fs.Bool("check-outputs", false, "compare derived outputs against embedded snapshots")
	resolveMode := fs.String("resolve-datarefs", "", "resolve datarefs first: best_effort or strict")
	cacheRoot := fs.String("cache-root", cfg.CacheRoot, "local dataref cache root")
	invariants := fs.String("invariants", cfg.Invariants, "starlark invariants script")
	generatedAt := fs.String("generated-at-utc", "", "report timestamp (caller-supplied, never wall clock)")
	if err := fs.Parse(args); err != nil {
		return int(exitcode.Usage)
	}
	if *bundlePath == "" {
		return usage(stderr, "compare", "--bundle is required")
	}

	opts := compare.Options{
		CheckOutputs:     *checkOutputs,
		CacheRoot:        *cacheRoot,
		InvariantsScript: *invariants,
		GeneratedAtUTC:   *generatedAt,
	}
	if *resolveMode != "" {
		mode, err := dataref.ParseMode(*resolveMode)
		if err != nil {
			return fail(stderr, "compare", err)
		}
		opts.Resolve = &mode
	}

	report, err := compare.Compare(*bundlePath, opts)
	if report != nil {
		fmt.Fprintf(stdout, "compare %s exit=%d report=%s\n",
			report.Status, report.ExitCode, filepath.Join(*bundlePath, bundle.CompareReportFile))
		for _, reason := range report.Reasons {
			fmt.Fprintf(stdout, "reason: %s\n", reason)
		}
	}
	if err != nil {
		return fail(stderr, "compare", err)
	}
	slog.Debug("compare complete", "bundle", *bundlePath)
	return 0
}
