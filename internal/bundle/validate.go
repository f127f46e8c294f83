package bundle

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rauterfrank-ui/Peak-Trade-sub008/internal/canonical"
	"github.com/rauterfrank-ui/Peak-Trade-sub008/internal/exitcode"
)

// Validate independently re-verifies the bundle contract. Checks run in a
// fixed order and the first failure wins:
//
//  1. required layout present
//  2. manifest.json round-trips byte-identically through the canonical
//     serializer and carries the expected schema tag
//  3. hash file sorted and covering exactly every non-meta file other than
//     itself, every hash recomputed and equal
//  4. events file LF-only with a trailing LF
//  5. events canonical, strictly ordered by (event_time_utc, seq), seq
//     contiguous from 0, count matching the manifest
func Validate(bundlePath string) error {
	if err := checkLayout(bundlePath); err != nil {
		return err
	}
	manifest, err := checkManifest(bundlePath)
	if err != nil {
		return err
	}
	if err := checkHashes(bundlePath); err != nil {
		return err
	}
	data, err := checkEventBytes(bundlePath)
	if err != nil {
		return err
	}
	return checkEvents(data, manifest)
}

func checkLayout(bundlePath string) error {
	info, err := os.Stat(bundlePath)
	if err != nil || !info.IsDir() {
		return exitcode.Errorf(exitcode.ContractViolation, "bundle directory not found: %s", bundlePath)
	}
	for _, rel := range []string{ManifestFile, EventsFile, HashFile} {
		if _, err := os.Stat(filepath.Join(bundlePath, filepath.FromSlash(rel))); err != nil {
			return exitcode.Errorf(exitcode.ContractViolation, "missing bundle file: %s", rel)
		}
	}
	return nil
}

func checkManifest(bundlePath string) (*Manifest, error) {
	data, err := os.ReadFile(filepath.Join(bundlePath, ManifestFile))
	if err != nil {
		return nil, exitcode.Wrap(exitcode.Internal, err)
	}
	v, err := canonical.Decode(data)
	if err != nil {
		return nil, exitcode.Wrap(exitcode.ContractViolation, fmt.Errorf("manifest.json: %w", err))
	}
	reencoded, err := canonical.Encode(v)
	if err != nil {
		return nil, exitcode.Wrap(exitcode.ContractViolation, fmt.Errorf("manifest.json: %w", err))
	}
	if !bytes.Equal(data, reencoded) {
		return nil, exitcode.Errorf(exitcode.ContractViolation, "manifest.json is not in canonical form")
	}
	return manifestFromValue(v)
}

func checkHashes(bundlePath string) error {
	data, err := os.ReadFile(filepath.Join(bundlePath, filepath.FromSlash(HashFile)))
	if err != nil {
		return exitcode.Wrap(exitcode.Internal, err)
	}
	entries, err := parseHashEntries(data)
	if err != nil {
		return err
	}
	declared := make(map[string]string, len(entries))
	for i, e := range entries {
		if i > 0 && entries[i-1].Path >= e.Path {
			return exitcode.Errorf(exitcode.HashMismatch, "hash file not sorted by path at %q", e.Path)
		}
		declared[e.Path] = e.SHA256
	}

	actual, err := hashTree(bundlePath)
	if err != nil {
		return exitcode.Wrap(exitcode.Internal, err)
	}
	for _, a := range actual {
		want, ok := declared[a.Path]
		if !ok {
			return exitcode.Errorf(exitcode.HashMismatch, "file not covered by hash manifest: %s", a.Path)
		}
		if want != a.SHA256 {
			return exitcode.Errorf(exitcode.HashMismatch, "hash mismatch for %s: manifest %s, recomputed %s", a.Path, want, a.SHA256)
		}
		delete(declared, a.Path)
	}
	for path := range declared {
		return exitcode.Errorf(exitcode.HashMismatch, "hash manifest lists missing file: %s", path)
	}
	return nil
}

func checkEventBytes(bundlePath string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(bundlePath, filepath.FromSlash(EventsFile)))
	if err != nil {
		return nil, exitcode.Wrap(exitcode.Internal, err)
	}
	if bytes.IndexByte(data, '\r') >= 0 {
		return nil, exitcode.Errorf(exitcode.ContractViolation, "events file contains CR; LF-only line endings required")
	}
	if len(data) > 0 && data[len(data)-1] != '\n' {
		return nil, exitcode.Errorf(exitcode.ContractViolation, "events file missing trailing newline")
	}
	return data, nil
}

func checkEvents(data []byte, manifest *Manifest) error {
	lines := splitLines(data)
	if int64(len(lines)) != manifest.EventCount {
		return exitcode.Errorf(exitcode.ContractViolation,
			"event count %d does not match manifest event_count %d", len(lines), manifest.EventCount)
	}
	var prev Event
	for i, line := range lines {
		v, err := canonical.Decode(line)
		if err != nil {
			return exitcode.Wrap(exitcode.ContractViolation, fmt.Errorf("event line %d: %w", i+1, err))
		}
		reencoded, err := canonical.Encode(v)
		if err != nil {
			return exitcode.Wrap(exitcode.ContractViolation, fmt.Errorf("event line %d: %w", i+1, err))
		}
		if !bytes.Equal(append(append([]byte{}, line...), '\n'), reencoded) {
			return exitcode.Errorf(exitcode.ContractViolation, "event line %d is not in canonical form", i+1)
		}
		e, err := eventFromValue(v)
		if err != nil {
			return exitcode.Wrap(exitcode.ContractViolation, fmt.Errorf("event line %d: %w", i+1, err))
		}
		if e.Seq != int64(i) {
			return exitcode.Errorf(exitcode.ContractViolation,
				"event seq not contiguous: line %d has seq %d", i+1, e.Seq)
		}
		if i > 0 && !prev.Less(e) {
			return exitcode.Errorf(exitcode.ContractViolation,
				"events not strictly ordered by (event_time_utc, seq) at line %d", i+1)
		}
		prev = e
	}
	return nil
}

// ReadManifest loads and parses the bundle manifest.
func ReadManifest(bundlePath string) (*Manifest, error) {
	data, err := os.ReadFile(filepath.Join(bundlePath, ManifestFile))
	if err != nil {
		return nil, exitcode.Errorf(exitcode.ContractViolation, "missing bundle file: %s", ManifestFile)
	}
	v, err := canonical.Decode(data)
	if err != nil {
		return nil, exitcode.Wrap(exitcode.ContractViolation, fmt.Errorf("manifest.json: %w", err))
	}
	return manifestFromValue(v)
}

// ReadEvents loads the ordered event stream. Callers are expected to run
// Validate first; this still fails closed on malformed lines.
func ReadEvents(bundlePath string) ([]Event, error) {
	data, err := os.ReadFile(filepath.Join(bundlePath, filepath.FromSlash(EventsFile)))
	if err != nil {
		return nil, exitcode.Wrap(exitcode.Internal, err)
	}
	var events []Event
	for i, line := range splitLines(data) {
		v, err := canonical.Decode(line)
		if err != nil {
			return nil, exitcode.Wrap(exitcode.ContractViolation, fmt.Errorf("event line %d: %w", i+1, err))
		}
		e, err := eventFromValue(v)
		if err != nil {
			return nil, exitcode.Wrap(exitcode.ContractViolation, fmt.Errorf("event line %d: %w", i+1, err))
		}
		events = append(events, e)
	}
	return events, nil
}

// ReadSnapshot loads an embedded expected-output snapshot as a decoded
// canonical value.
func ReadSnapshot(bundlePath, rel string) (any, error) {
	data, err := os.ReadFile(filepath.Join(bundlePath, filepath.FromSlash(rel)))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, exitcode.Errorf(exitcode.ContractViolation, "missing expected-output snapshot: %s", rel)
		}
		return nil, exitcode.Wrap(exitcode.Internal, err)
	}
	v, err := canonical.Decode(data)
	if err != nil {
		return nil, exitcode.Wrap(exitcode.ContractViolation, fmt.Errorf("%s: %w", rel, err))
	}
	return v, nil
}
