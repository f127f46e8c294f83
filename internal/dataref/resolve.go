// Package dataref resolves a bundle's declared external data references
// against a local, read-only cache. No network I/O: a ref either exists in
// the cache or it does not.
package dataref

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/rauterfrank-ui/Peak-Trade-sub008/internal/bundle"
	"github.com/rauterfrank-ui/Peak-Trade-sub008/internal/canonical"
	"github.com/rauterfrank-ui/Peak-Trade-sub008/internal/exitcode"
)

// Mode selects the failure policy for resolution.
type Mode int

const (
	// ModeBestEffort records unresolved or mismatched refs without
	// aborting; downstream decides.
	ModeBestEffort Mode = iota
	// ModeStrict aborts on the first unresolved required ref or hash-hint
	// mismatch.
	ModeStrict
)

// ParseMode parses the CLI spelling of a mode.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "best_effort":
		return ModeBestEffort, nil
	case "strict":
		return ModeStrict, nil
	default:
		return 0, exitcode.Errorf(exitcode.Usage, "unknown resolve mode %q (want best_effort or strict)", s)
	}
}

func (m Mode) String() string {
	if m == ModeStrict {
		return "strict"
	}
	return "best_effort"
}

// Status is the resolution outcome for one ref.
type Status string

const (
	StatusResolved     Status = "RESOLVED"
	StatusMissing      Status = "MISSING"
	StatusHashMismatch Status = "HASH_MISMATCH"
)

// Report maps every examined ref to its status.
type Report struct {
	Mode Mode
	Refs map[string]Status
}

// Resolve checks every DataRef declared in the bundle manifest against
// cache_root/<ref_id>. The report is written canonically to
// meta/resolution_report.json in the bundle before any error is returned,
// so repeated runs over an unchanged cache produce byte-identical report
// files. The cache is only ever read.
func Resolve(bundlePath, cacheRoot string, mode Mode) (*Report, error) {
	manifest, err := bundle.ReadManifest(bundlePath)
	if err != nil {
		return nil, err
	}
	if cacheRoot == "" {
		return nil, exitcode.Errorf(exitcode.Usage, "cache root required for dataref resolution")
	}

	report := &Report{Mode: mode, Refs: make(map[string]Status, len(manifest.DataRefs))}
	var firstErr error

	for _, ref := range manifest.DataRefs {
		status, err := resolveOne(cacheRoot, ref)
		report.Refs[ref.RefID] = status
		if err != nil && mode == ModeStrict {
			firstErr = err
			break
		}
	}

	if err := writeReport(bundlePath, report); err != nil {
		return report, err
	}
	return report, firstErr
}

func resolveOne(cacheRoot string, ref bundle.DataRef) (Status, error) {
	path := filepath.Join(cacheRoot, ref.RefID)
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		var missErr error
		if ref.Required {
			missErr = exitcode.Errorf(exitcode.MissingDataRef, "required dataref %q missing from cache", ref.RefID)
		}
		return StatusMissing, missErr
	}
	if ref.SHA256Hint == "" {
		return StatusResolved, nil
	}
	sum, err := bundle.FileSHA256(path)
	if err != nil {
		return StatusMissing, exitcode.Wrap(exitcode.Internal, err)
	}
	if sum != ref.SHA256Hint {
		return StatusHashMismatch, exitcode.Errorf(exitcode.HashMismatch,
			"dataref %q hash %s does not match hint %s", ref.RefID, sum, ref.SHA256Hint)
	}
	return StatusResolved, nil
}

// Value converts the report to a canonical value tree.
func (r *Report) Value() any {
	refs := make(map[string]any, len(r.Refs))
	for id, status := range r.Refs {
		refs[id] = string(status)
	}
	return map[string]any{
		"mode": r.Mode.String(),
		"refs": refs,
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
	path := filepath.Join(bundlePath, filepath.FromSlash(bundle.ResolutionReportFile))
	if err := os.WriteFile(path, data, 0644); err != nil {
		return exitcode.Wrap(exitcode.Internal, err)
	}
	return nil
}

// Statuses returns the report's entries sorted by ref id, for display.
func (r *Report) Statuses() []string {
	ids := make([]string, 0, len(r.Refs))
	for id := range r.Refs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	lines := make([]string, 0, len(ids))
	for _, id := range ids {
		lines = append(lines, fmt.Sprintf("%s %s", id, r.Refs[id]))
	}
	return lines
}
