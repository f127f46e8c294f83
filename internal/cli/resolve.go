package cli

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/rauterfrank-ui/Peak-Trade-sub008/internal/config"
	"github.com/rauterfrank-ui/Peak-Trade-sub008/internal/dataref"
	"github.com/rauterfrank-ui/Peak-Trade-sub008/internal/exitcode"
)

// RunResolve handles: replaypack resolve-datarefs --bundle <dir>
// --cache-root <dir> --mode best_effort|strict
// Exit codes: 0 ok, 2 contract, 3 hash mismatch, 6 missing required ref.
func RunResolve(cfg *config.Config, args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("resolve-datarefs", stderr)
	bundlePath := fs.String("bundle", "", "bundle directory")
	cacheRoot := fs.String("cache-root", cfg.CacheRoot, "local dataref cache root")
	modeArg := fs.String("mode", "best_effort", "resolution mode: best_effort or strict")
	if err := fs.Parse(args); err != nil {
		return int(exitcode.Usage)
	}
	if *bundlePath == "" {
		return usage(stderr, "resolve-datarefs", "--bundle is required")
	}
	mode, err := dataref.ParseMode(*modeArg)
	if err != nil {
		return fail(stderr, "resolve-datarefs", err)
	}

	report, err := dataref.Resolve(*bundlePath, *cacheRoot, mode)
	if report != nil {
		for _, line := range report.Statuses() {
			fmt.Fprintf(stdout, "dataref %s\n", line)
		}
	}
	if err != nil {
		return fail(stderr, "resolve-datarefs", err)
	}
	slog.Debug("datarefs resolved", "bundle", *bundlePath, "mode", mode.String())
	return 0
}
