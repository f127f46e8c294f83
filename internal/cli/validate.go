package cli

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/rauterfrank-ui/Peak-Trade-sub008/internal/bundle"
	"github.com/rauterfrank-ui/Peak-Trade-sub008/internal/exitcode"
)

// RunValidate handles: replaypack validate --bundle <dir>
// Exit codes: 0 ok, 2 contract/schema, 3 hash mismatch, 5 internal.
func RunValidate(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("validate", stderr)
	bundlePath := fs.String("bundle", "", "bundle directory")
	if err := fs.Parse(args); err != nil {
		return int(exitcode.Usage)
	}
	if *bundlePath == "" {
		return usage(stderr, "validate", "--bundle is required")
	}

	if err := bundle.Validate(*bundlePath); err != nil {
		return fail(stderr, "validate", err)
	}
	slog.Debug("bundle validated", "bundle", *bundlePath)
	fmt.Fprintf(stdout, "bundle OK %s\n", *bundlePath)
	return 0
}
