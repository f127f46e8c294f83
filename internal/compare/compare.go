// Package compare orchestrates validate → resolve → replay over a bundle
// and assembles one structured report. The reported exit code is taken
// verbatim from the first failing stage in pipeline order, never from a
// separately computed severity.
package compare

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rauterfrank-ui/Peak-Trade-sub008/internal/bundle"
	"github.com/rauterfrank-ui/Peak-Trade-sub008/internal/canonical"
	"github.com/rauterfrank-ui/Peak-Trade-sub008/internal/dataref"
	"github.com/rauterfrank-ui/Peak-Trade-sub008/internal/exitcode"
	"github.com/rauterfrank-ui/Peak-Trade-sub008/internal/replay"
)

// Stage status strings as persisted in the report.
const (
	StagePass    = "PASS"
	StageFail    = "FAIL"
	StageSkipped = "SKIPPED"
)

// Options controls a compare run.
type Options struct {
	CheckOutputs     bool
	Resolve          *dataref.Mode
	CacheRoot        string
	InvariantsScript string
	// GeneratedAtUTC is caller-supplied and is the only timestamp in the
	// report, keeping report bytes reproducible across repeated runs.
	GeneratedAtUTC string
}

// Report is the baseline-vs-replay comparison result.
type Report struct {
	Status         string
	ExitCode       int
	Reasons        []string
	GeneratedAtUTC string

	ValidateBundle  string
	ResolveDataRefs string
	ReplayExitCode  int
	CheckOutputs    string
	Invariants      []replay.InvariantResult
	Diffs           []string
}

// Compare runs the fixed pipeline and writes the canonical report to
// meta/compare_report.json. The returned error carries the same failure
// kind the report records.
func Compare(bundlePath string, opts Options) (*Report, error) {
	if err := checkGeneratedAt(opts.GeneratedAtUTC); err != nil {
		return nil, err
	}

	report := &Report{
		Status:          StagePass,
		GeneratedAtUTC:  opts.GeneratedAtUTC,
		ValidateBundle:  StagePass,
		ResolveDataRefs: StageSkipped,
		CheckOutputs:    StageSkipped,
	}
	var firstErr error

	// Stage 1: validate.
	if err := bundle.Validate(bundlePath); err != nil {
		report.ValidateBundle = StageFail
		report.fail("validate_bundle", err)
		firstErr = err
	}

	// Stage 2: resolve (optional, only when validate passed).
	if firstErr == nil && opts.Resolve != nil {
		report.ResolveDataRefs = StagePass
		if _, err := dataref.Resolve(bundlePath, opts.CacheRoot, *opts.Resolve); err != nil {
			report.ResolveDataRefs = StageFail
			report.fail("resolve_datarefs", err)
			firstErr = err
		}
	}

	// Stage 3: replay. Datarefs were already resolved above, so the replay
	// itself runs without a resolve pass.
	if firstErr == nil {
		result, err := replay.Replay(bundlePath, replay.Options{
			CheckOutputs:     opts.CheckOutputs,
			InvariantsScript: opts.InvariantsScript,
		})
		if result != nil {
			report.Invariants = result.Invariants
			report.Diffs = result.OutputDiffs
		}
		if opts.CheckOutputs {
			report.CheckOutputs = StagePass
			if err != nil && exitcode.KindOf(err) == exitcode.OutputMismatch {
				report.CheckOutputs = StageFail
			}
		}
		if err != nil {
			report.ReplayExitCode = exitcode.FromError(err)
			report.fail("replay", err)
			firstErr = err
		}
	}

	report.ExitCode = exitcode.FromError(firstErr)
	if err := writeReport(bundlePath, report); err != nil {
		return report, err
	}
	return report, firstErr
}

func (r *Report) fail(stage string, err error) {
	r.Status = StageFail
	r.Reasons = append(r.Reasons, fmt.Sprintf("%s: %v", stage, err))
}

func checkGeneratedAt(s string) error {
	if s == "" {
		return exitcode.Errorf(exitcode.Usage, "generated-at-utc is required")
	}
	if !strings.HasSuffix(s, "Z") {
		return exitcode.Errorf(exitcode.Usage, "generated-at-utc %q must be UTC (Z suffix)", s)
	}
	if _, err := time.Parse(time.RFC3339Nano, s); err != nil {
		return exitcode.Errorf(exitcode.Usage, "generated-at-utc %q: %v", s, err)
	}
	return nil
}

// Value converts the report to a canonical value tree.
func (r *Report) Value() any {
	reasons := make([]any, 0, len(r.Reasons))
	for _, reason := range r.Reasons {
		reasons = append(reasons, reason)
	}
	invariants := make([]any, 0, len(r.Invariants))
	for _, inv := range r.Invariants {
		iv := map[string]any{
			"name": inv.Name,
			"ok":   inv.OK,
		}
		if inv.Detail != "" {
			iv["detail"] = inv.Detail
		}
		invariants = append(invariants, iv)
	}
	diffs := make([]any, 0, len(r.Diffs))
	for _, d := range r.Diffs {
		diffs = append(diffs, d)
	}
	return map[string]any{
		"summary": map[string]any{
			"status":           r.Status,
			"exit_code":        int64(r.ExitCode),
			"reasons":          reasons,
			"generated_at_utc": r.GeneratedAtUTC,
		},
		"replay": map[string]any{
			"validate_bundle":  r.ValidateBundle,
			"resolve_datarefs": r.ResolveDataRefs,
			"replay_exit_code": int64(r.ReplayExitCode),
			"check_outputs":    r.CheckOutputs,
			"invariants":       invariants,
			"diffs":            diffs,
		},
	}
}

func writeReport(bundlePath string, report *Report) error {
	data, err := canonical.Encode(report.Value())
	if err != nil {
		return err
	}
	dir := filepath.Join(bundlePath, bundle.MetaDir)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return exitcode.Wrap(exitcode.Internal, err)
	}
	path := filepath.Join(bundlePath, filepath.FromSlash(bundle.CompareReportFile))
	if err := os.WriteFile(path, data, 0644); err != nil {
		return exitcode.Wrap(exitcode.Internal, err)
	}
	return nil
}
