// Package replay deterministically re-derives fills and positions from a
// bundle's ordered event log. Validation is always re-run first: a
// corrupted bundle is rejected before any replay computation starts.
package replay

import (
	"fmt"
	"strings"

	"github.com/google/go-cmp/cmp"

	"github.com/rauterfrank-ui/Peak-Trade-sub008/internal/bundle"
	"github.com/rauterfrank-ui/Peak-Trade-sub008/internal/canonical"
	"github.com/rauterfrank-ui/Peak-Trade-sub008/internal/dataref"
	"github.com/rauterfrank-ui/Peak-Trade-sub008/internal/exitcode"
)

// Options controls a replay run.
type Options struct {
	// CheckOutputs compares freshly derived fills/positions against the
	// snapshots embedded at build time.
	CheckOutputs bool
	// Resolve, when non-nil, runs dataref resolution before event folding.
	// In strict mode a missing required ref or hash-hint mismatch aborts
	// the replay before the fold starts.
	Resolve   *dataref.Mode
	CacheRoot string
	// InvariantsScript is an optional starlark file defining
	// check(fills, positions); violations fail the replay.
	InvariantsScript string
}

// Result carries everything a replay produced, including on failure: a
// mismatch is reported, never silently dropped.
type Result struct {
	Outputs     *Outputs
	Resolution  *dataref.Report
	Invariants  []InvariantResult
	OutputDiffs []string
}

// Replay validates the bundle, optionally resolves datarefs, folds the
// event stream, and runs output and invariant checks in that fixed order.
func Replay(bundlePath string, opts Options) (*Result, error) {
	if err := bundle.Validate(bundlePath); err != nil {
		return nil, err
	}

	result := &Result{}

	if opts.Resolve != nil {
		report, err := dataref.Resolve(bundlePath, opts.CacheRoot, *opts.Resolve)
		result.Resolution = report
		if err != nil {
			return result, err
		}
	}

	events, err := bundle.ReadEvents(bundlePath)
	if err != nil {
		return result, err
	}
	out, err := Fold(events)
	if err != nil {
		return result, err
	}
	result.Outputs = out

	if opts.CheckOutputs {
		diffs, err := diffSnapshots(bundlePath, out)
		if err != nil {
			return result, err
		}
		result.OutputDiffs = diffs
	}

	invariants, err := runInvariants(events, out, opts.InvariantsScript)
	result.Invariants = invariants
	if err != nil {
		return result, err
	}

	if len(result.OutputDiffs) > 0 {
		return result, exitcode.Errorf(exitcode.OutputMismatch,
			"derived outputs differ from embedded snapshots in %d place(s)", len(result.OutputDiffs))
	}
	if failed := failedInvariants(invariants); len(failed) > 0 {
		return result, exitcode.Errorf(exitcode.OutputMismatch,
			"invariant violations: %s", strings.Join(failed, "; "))
	}
	return result, nil
}

func failedInvariants(results []InvariantResult) []string {
	var failed []string
	for _, r := range results {
		if !r.OK {
			failed = append(failed, fmt.Sprintf("%s: %s", r.Name, r.Detail))
		}
	}
	return failed
}

// diffSnapshots compares the derived outputs field-by-field against the
// embedded expected-output snapshots.
func diffSnapshots(bundlePath string, out *Outputs) ([]string, error) {
	manifest, err := bundle.ReadManifest(bundlePath)
	if err != nil {
		return nil, err
	}
	if !manifest.IncludesOutputs {
		return nil, exitcode.Errorf(exitcode.ContractViolation,
			"bundle was built without --include-outputs; nothing to check against")
	}

	fills, positions := outputsValue(out)
	var diffs []string
	for _, cmpCase := range []struct {
		name string
		rel  string
		got  any
	}{
		{"fills", bundle.FillsSnapshot, fills},
		{"positions", bundle.PositionsSnapshot, positions},
	} {
		want, err := bundle.ReadSnapshot(bundlePath, cmpCase.rel)
		if err != nil {
			return nil, err
		}
		got, err := reencode(cmpCase.got)
		if err != nil {
			return nil, err
		}
		if diff := cmp.Diff(want, got); diff != "" {
			diffs = append(diffs, fmt.Sprintf("%s: %s", cmpCase.name, diff))
		}
	}
	return diffs, nil
}

// reencode passes a derived value through the canonical codec so both diff
// operands use the same representation (json.Number and friends).
func reencode(v any) (any, error) {
	data, err := canonical.Encode(v)
	if err != nil {
		return nil, err
	}
	return canonical.Decode(data)
}
