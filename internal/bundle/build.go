package bundle

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/rauterfrank-ui/Peak-Trade-sub008/internal/canonical"
	"github.com/rauterfrank-ui/Peak-Trade-sub008/internal/exitcode"
)

// DeriveFunc produces the expected-output snapshot values (fills and
// positions) from an ordered event stream. The builder takes it as a
// parameter so this package stays independent of the replay engine that
// implements the derivation.
type DeriveFunc func(events []Event) (fills, positions any, err error)

// BuildOptions controls Build.
type BuildOptions struct {
	// IncludeOutputs embeds expected fills/positions snapshots for later
	// --check-outputs comparison. Requires Derive.
	IncludeOutputs bool
	Derive         DeriveFunc
}

// Build assembles a bundle from a source run directory. The source holds
// events.jsonl (one event object per line, any order) and optionally
// datarefs.json. The output directory must not exist or must be empty; the
// source is never mutated. Building twice from the same source yields
// byte-identical manifest.json and sha256sums.txt.
func Build(sourceDir, outDir string, opts BuildOptions) (string, error) {
	info, err := os.Stat(sourceDir)
	if err != nil {
		return "", exitcode.Errorf(exitcode.Usage, "source run not found: %s", sourceDir)
	}
	if !info.IsDir() {
		return "", exitcode.Errorf(exitcode.Usage, "source run is not a directory: %s", sourceDir)
	}

	events, err := readSourceEvents(filepath.Join(sourceDir, SourceEventsFile))
	if err != nil {
		return "", err
	}
	refs, err := readSourceDataRefs(filepath.Join(sourceDir, SourceDataRefsFile))
	if err != nil {
		return "", err
	}

	sort.Slice(events, func(i, j int) bool { return events[i].Less(events[j]) })
	if err := checkEventOrder(events); err != nil {
		return "", err
	}

	if err := prepareOutDir(outDir); err != nil {
		return "", err
	}

	var eventBytes bytes.Buffer
	for i := range events {
		line, err := EncodeEvent(&events[i])
		if err != nil {
			return "", err
		}
		eventBytes.Write(line)
	}
	if err := writeBundleFile(outDir, EventsFile, eventBytes.Bytes()); err != nil {
		return "", err
	}

	manifest := &Manifest{
		RunID:           filepath.Base(filepath.Clean(sourceDir)),
		EventCount:      int64(len(events)),
		IncludesOutputs: opts.IncludeOutputs,
		DataRefs:        refs,
	}
	manifestBytes, err := EncodeManifest(manifest)
	if err != nil {
		return "", err
	}
	if err := writeBundleFile(outDir, ManifestFile, manifestBytes); err != nil {
		return "", err
	}

	if opts.IncludeOutputs {
		if opts.Derive == nil {
			return "", exitcode.Errorf(exitcode.Internal, "include-outputs requested without a derivation")
		}
		fills, positions, err := opts.Derive(events)
		if err != nil {
			return "", err
		}
		fillBytes, err := canonical.Encode(fills)
		if err != nil {
			return "", err
		}
		posBytes, err := canonical.Encode(positions)
		if err != nil {
			return "", err
		}
		if err := writeBundleFile(outDir, FillsSnapshot, fillBytes); err != nil {
			return "", err
		}
		if err := writeBundleFile(outDir, PositionsSnapshot, posBytes); err != nil {
			return "", err
		}
	}

	entries, err := hashTree(outDir)
	if err != nil {
		return "", exitcode.Wrap(exitcode.Internal, err)
	}
	if err := writeBundleFile(outDir, HashFile, formatHashEntries(entries)); err != nil {
		return "", err
	}

	return outDir, nil
}

func readSourceEvents(path string) ([]Event, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, exitcode.Errorf(exitcode.Usage, "source events not found: %s", path)
		}
		return nil, exitcode.Wrap(exitcode.Internal, err)
	}

	var events []Event
	for lineNo, line := range splitLines(data) {
		v, err := canonical.Decode(line)
		if err != nil {
			return nil, exitcode.Wrap(exitcode.ContractViolation,
				fmt.Errorf("source event line %d: %w", lineNo+1, err))
		}
		e, err := eventFromValue(v)
		if err != nil {
			return nil, exitcode.Wrap(exitcode.ContractViolation,
				fmt.Errorf("source event line %d: %w", lineNo+1, err))
		}
		events = append(events, e)
	}
	return events, nil
}

func readSourceDataRefs(path string) ([]DataRef, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, exitcode.Wrap(exitcode.Internal, err)
	}
	v, err := canonical.Decode(data)
	if err != nil {
		return nil, exitcode.Wrap(exitcode.ContractViolation, fmt.Errorf("datarefs.json: %w", err))
	}
	list, ok := v.([]any)
	if !ok {
		return nil, exitcode.Errorf(exitcode.ContractViolation, "datarefs.json must be a list")
	}
	var refs []DataRef
	for i, rv := range list {
		ref, err := dataRefFromValue(rv)
		if err != nil {
			return nil, exitcode.Wrap(exitcode.ContractViolation, fmt.Errorf("datarefs.json[%d]: %w", i, err))
		}
		refs = append(refs, ref)
	}
	sort.Slice(refs, func(i, j int) bool { return refs[i].RefID < refs[j].RefID })
	for i := 1; i < len(refs); i++ {
		if refs[i].RefID == refs[i-1].RefID {
			return nil, exitcode.Errorf(exitcode.ContractViolation, "duplicate ref_id %q", refs[i].RefID)
		}
	}
	return refs, nil
}

// checkEventOrder enforces strict (event_time_utc, seq) ordering and seq
// contiguity from 0 over an already-sorted stream.
func checkEventOrder(events []Event) error {
	for i := range events {
		if events[i].Seq != int64(i) {
			return exitcode.Errorf(exitcode.ContractViolation,
				"event seq not contiguous: position %d has seq %d", i, events[i].Seq)
		}
		if i > 0 && !events[i-1].Less(events[i]) {
			return exitcode.Errorf(exitcode.ContractViolation,
				"events not strictly ordered at seq %d", events[i].Seq)
		}
	}
	return nil
}

func prepareOutDir(outDir string) error {
	info, err := os.Stat(outDir)
	switch {
	case os.IsNotExist(err):
		if err := os.MkdirAll(outDir, 0755); err != nil {
			return exitcode.Wrap(exitcode.Internal, err)
		}
		return nil
	case err != nil:
		return exitcode.Wrap(exitcode.Internal, err)
	}
	if !info.IsDir() {
		return exitcode.Errorf(exitcode.Usage, "output path is not a directory: %s", outDir)
	}
	names, err := os.ReadDir(outDir)
	if err != nil {
		return exitcode.Wrap(exitcode.Internal, err)
	}
	if len(names) > 0 {
		return exitcode.Errorf(exitcode.Usage, "output directory not empty: %s", outDir)
	}
	return nil
}

func writeBundleFile(root, rel string, data []byte) error {
	path := filepath.Join(root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return exitcode.Wrap(exitcode.Internal, err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return exitcode.Wrap(exitcode.Internal, err)
	}
	return nil
}

func splitLines(data []byte) [][]byte {
	var lines [][]byte
	start := 0
	for i, b := range data {
		if b == '\n' {
			if i > start {
				lines = append(lines, data[start:i])
			}
			start = i + 1
		}
	}
	if start < len(data) {
		lines = append(lines, data[start:])
	}
	return lines
}
