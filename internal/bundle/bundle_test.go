package bundle

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rauterfrank-ui/Peak-Trade-sub008/internal/exitcode"
)

// Source lines are deliberately unsorted so Build has to order them.
var sourceEventLines = []string{
	`{"event_time_utc":"2026-01-01T00:00:01Z","seq":1,"event_type":"order_fill","payload":{"order_id":"o-1","symbol":"BTC-USD","side":"BUY","qty":"1.5","price":"100.25"}}`,
	`{"event_time_utc":"2026-01-01T00:00:00Z","seq":0,"event_type":"order_accepted","payload":{"order_id":"o-1","symbol":"BTC-USD"}}`,
	`{"event_time_utc":"2026-01-01T00:00:02Z","seq":2,"event_type":"order_fill","payload":{"order_id":"o-1","symbol":"BTC-USD","side":"SELL","qty":"0.5","price":"101"}}`,
	`{"event_time_utc":"2026-01-01T00:00:03Z","seq":3,"event_type":"order_canceled","payload":{"order_id":"o-1"}}`,
}

func writeSourceRun(t *testing.T, lines []string) string {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "run-test")
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatal(err)
	}
	content := strings.Join(lines, "\n") + "\n"
	if err := os.WriteFile(filepath.Join(dir, SourceEventsFile), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return dir
}

func stubDerive(events []Event) (fills, positions any, err error) {
	return []any{map[string]any{"seq": int64(1)}}, []any{map[string]any{"symbol": "BTC-USD"}}, nil
}

func buildTestBundle(t *testing.T, includeOutputs bool) string {
	t.Helper()
	src := writeSourceRun(t, sourceEventLines)
	out := filepath.Join(t.TempDir(), "bundle")
	opts := BuildOptions{}
	if includeOutputs {
		opts = BuildOptions{IncludeOutputs: true, Derive: stubDerive}
	}
	path, err := Build(src, out, opts)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	return path
}

func rehash(t *testing.T, bundleDir string) {
	t.Helper()
	entries, err := hashTree(bundleDir)
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(bundleDir, filepath.FromSlash(HashFile))
	if err := os.WriteFile(path, formatHashEntries(entries), 0644); err != nil {
		t.Fatal(err)
	}
}

func readBundleFile(t *testing.T, bundleDir, rel string) []byte {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(bundleDir, filepath.FromSlash(rel)))
	if err != nil {
		t.Fatal(err)
	}
	return data
}

func writeBundleFileRaw(t *testing.T, bundleDir, rel string, data []byte) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(bundleDir, filepath.FromSlash(rel)), data, 0644); err != nil {
		t.Fatal(err)
	}
}

func TestBuildThenValidate(t *testing.T) {
	dir := buildTestBundle(t, true)
	if err := Validate(dir); err != nil {
		t.Fatalf("validate freshly built bundle: %v", err)
	}
	for _, rel := range []string{ManifestFile, EventsFile, HashFile, FillsSnapshot, PositionsSnapshot} {
		if _, err := os.Stat(filepath.Join(dir, filepath.FromSlash(rel))); err != nil {
			t.Errorf("missing %s: %v", rel, err)
		}
	}
}

func TestBuildSortsEvents(t *testing.T) {
	dir := buildTestBundle(t, false)
	data := readBundleFile(t, dir, EventsFile)
	lines := splitLines(data)
	if len(lines) != 4 {
		t.Fatalf("got %d event lines, want 4", len(lines))
	}
	for i, line := range lines {
		if !strings.Contains(string(line), `"seq":`+string(rune('0'+i))) {
			t.Errorf("line %d out of order: %s", i, line)
		}
	}
}

func TestBuildDeterministic(t *testing.T) {
	src := writeSourceRun(t, sourceEventLines)
	opts := BuildOptions{IncludeOutputs: true, Derive: stubDerive}
	first, err := Build(src, filepath.Join(t.TempDir(), "a"), opts)
	if err != nil {
		t.Fatal(err)
	}
	second, err := Build(src, filepath.Join(t.TempDir(), "b"), opts)
	if err != nil {
		t.Fatal(err)
	}
	for _, rel := range []string{ManifestFile, HashFile} {
		a := readBundleFile(t, first, rel)
		b := readBundleFile(t, second, rel)
		if !bytes.Equal(a, b) {
			t.Errorf("%s differs between identical builds", rel)
		}
	}
}

func TestBuildRejectsSeqGap(t *testing.T) {
	lines := append([]string{}, sourceEventLines[:3]...)
	lines = append(lines, strings.Replace(sourceEventLines[3], `"seq":3`, `"seq":4`, 1))
	src := writeSourceRun(t, lines)
	_, err := Build(src, filepath.Join(t.TempDir(), "bundle"), BuildOptions{})
	if exitcode.KindOf(err) != exitcode.ContractViolation {
		t.Fatalf("want contract violation, got %v", err)
	}
}

func TestBuildRejectsFloatPayload(t *testing.T) {
	lines := append([]string{}, sourceEventLines...)
	lines[0] = strings.Replace(lines[0], `"price":"100.25"`, `"price":100.25`, 1)
	src := writeSourceRun(t, lines)
	_, err := Build(src, filepath.Join(t.TempDir(), "bundle"), BuildOptions{})
	if exitcode.KindOf(err) != exitcode.ContractViolation {
		t.Fatalf("want contract violation, got %v", err)
	}
}

func TestBuildMissingSource(t *testing.T) {
	_, err := Build(filepath.Join(t.TempDir(), "nope"), filepath.Join(t.TempDir(), "bundle"), BuildOptions{})
	if exitcode.KindOf(err) != exitcode.Usage {
		t.Fatalf("want usage error, got %v", err)
	}
}

func TestBuildRefusesNonEmptyOutput(t *testing.T) {
	src := writeSourceRun(t, sourceEventLines)
	out := t.TempDir()
	if err := os.WriteFile(filepath.Join(out, "junk"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Build(src, out, BuildOptions{}); exitcode.KindOf(err) != exitcode.Usage {
		t.Fatalf("want usage error, got %v", err)
	}
}

func TestValidateDetectsTamperedEvents(t *testing.T) {
	dir := buildTestBundle(t, false)
	data := readBundleFile(t, dir, EventsFile)
	mid := len(data) / 2
	if data[mid] == 'a' {
		data[mid] = 'b'
	} else {
		data[mid] = 'a'
	}
	writeBundleFileRaw(t, dir, EventsFile, data)

	err := Validate(dir)
	if exitcode.KindOf(err) != exitcode.HashMismatch {
		t.Fatalf("want hash mismatch, got %v", err)
	}
}

func TestValidateRejectsCRLF(t *testing.T) {
	dir := buildTestBundle(t, false)
	data := readBundleFile(t, dir, EventsFile)
	data = bytes.Replace(data, []byte("\n"), []byte("\r\n"), 1)
	writeBundleFileRaw(t, dir, EventsFile, data)
	rehash(t, dir)

	err := Validate(dir)
	if exitcode.KindOf(err) != exitcode.ContractViolation {
		t.Fatalf("want contract violation, got %v", err)
	}
	if !strings.Contains(err.Error(), "CR") {
		t.Fatalf("unexpected message: %v", err)
	}
}

func TestValidateRejectsFloatLiteral(t *testing.T) {
	dir := buildTestBundle(t, false)
	data := readBundleFile(t, dir, EventsFile)
	data = bytes.Replace(data, []byte(`"price":"100.25"`), []byte(`"price":100.25`), 1)
	writeBundleFileRaw(t, dir, EventsFile, data)
	rehash(t, dir)

	err := Validate(dir)
	if exitcode.KindOf(err) != exitcode.ContractViolation {
		t.Fatalf("want contract violation, got %v", err)
	}
}

func TestValidateRejectsSeqGap(t *testing.T) {
	dir := buildTestBundle(t, false)
	data := readBundleFile(t, dir, EventsFile)
	data = bytes.Replace(data, []byte(`"seq":2}`), []byte(`"seq":3}`), 1)
	writeBundleFileRaw(t, dir, EventsFile, data)
	rehash(t, dir)

	err := Validate(dir)
	if exitcode.KindOf(err) != exitcode.ContractViolation {
		t.Fatalf("want contract violation, got %v", err)
	}
	if !strings.Contains(err.Error(), "contiguous") {
		t.Fatalf("unexpected message: %v", err)
	}
}

func TestValidateRejectsOutOfOrderTimestamps(t *testing.T) {
	dir := buildTestBundle(t, false)
	data := readBundleFile(t, dir, EventsFile)
	// Push the first event's timestamp past the second's.
	data = bytes.Replace(data, []byte("2026-01-01T00:00:00Z"), []byte("2026-01-01T00:00:01.5Z"), 1)
	writeBundleFileRaw(t, dir, EventsFile, data)
	rehash(t, dir)

	err := Validate(dir)
	if exitcode.KindOf(err) != exitcode.ContractViolation {
		t.Fatalf("want contract violation, got %v", err)
	}
	if !strings.Contains(err.Error(), "ordered") {
		t.Fatalf("unexpected message: %v", err)
	}
}

func TestValidateRejectsNonCanonicalManifest(t *testing.T) {
	dir := buildTestBundle(t, false)
	data := readBundleFile(t, dir, ManifestFile)
	// Still valid JSON, no longer canonical bytes. The manifest check runs
	// before hashing, so this must surface as a contract violation even
	// though the hashes are now stale too.
	data = append([]byte(" "), data...)
	writeBundleFileRaw(t, dir, ManifestFile, data)

	err := Validate(dir)
	if exitcode.KindOf(err) != exitcode.ContractViolation {
		t.Fatalf("want contract violation, got %v", err)
	}
}

func TestValidateRejectsUnsortedHashFile(t *testing.T) {
	dir := buildTestBundle(t, true)
	data := readBundleFile(t, dir, HashFile)
	lines := splitLines(data)
	if len(lines) < 2 {
		t.Fatal("need at least two hash entries")
	}
	swapped := append([][]byte{}, lines...)
	swapped[0], swapped[1] = swapped[1], swapped[0]
	var buf bytes.Buffer
	for _, line := range swapped {
		buf.Write(line)
		buf.WriteByte('\n')
	}
	writeBundleFileRaw(t, dir, HashFile, buf.Bytes())

	err := Validate(dir)
	if exitcode.KindOf(err) != exitcode.HashMismatch {
		t.Fatalf("want hash mismatch, got %v", err)
	}
}

func TestValidateRejectsUncoveredFile(t *testing.T) {
	dir := buildTestBundle(t, false)
	writeBundleFileRaw(t, dir, "stray.txt", []byte("oops\n"))

	err := Validate(dir)
	if exitcode.KindOf(err) != exitcode.HashMismatch {
		t.Fatalf("want hash mismatch, got %v", err)
	}
}

func TestValidateRejectsMissingCoveredFile(t *testing.T) {
	dir := buildTestBundle(t, true)
	if err := os.Remove(filepath.Join(dir, filepath.FromSlash(FillsSnapshot))); err != nil {
		t.Fatal(err)
	}

	err := Validate(dir)
	if exitcode.KindOf(err) != exitcode.HashMismatch {
		t.Fatalf("want hash mismatch, got %v", err)
	}
}

func TestValidateMissingLayout(t *testing.T) {
	dir := buildTestBundle(t, false)
	if err := os.Remove(filepath.Join(dir, ManifestFile)); err != nil {
		t.Fatal(err)
	}
	if err := Validate(dir); exitcode.KindOf(err) != exitcode.ContractViolation {
		t.Fatalf("want contract violation, got %v", err)
	}
}

func TestValidateIgnoresMetaFiles(t *testing.T) {
	dir := buildTestBundle(t, false)
	if err := os.MkdirAll(filepath.Join(dir, MetaDir), 0755); err != nil {
		t.Fatal(err)
	}
	writeBundleFileRaw(t, dir, ResolutionReportFile, []byte(`{"mode":"best_effort","refs":{}}`+"\n"))

	if err := Validate(dir); err != nil {
		t.Fatalf("meta files must stay outside hash coverage: %v", err)
	}
}

func TestManifestRoundTrip(t *testing.T) {
	dir := buildTestBundle(t, false)
	m, err := ReadManifest(dir)
	if err != nil {
		t.Fatal(err)
	}
	if m.RunID != "run-test" {
		t.Errorf("run_id = %q, want run-test", m.RunID)
	}
	if m.EventCount != 4 {
		t.Errorf("event_count = %d, want 4", m.EventCount)
	}
	if m.IncludesOutputs {
		t.Error("includes_outputs should be false")
	}
}

func TestCheckRefID(t *testing.T) {
	for _, bad := range []string{"", "a/b", `a\b`, ".", ".."} {
		if err := CheckRefID(bad); err == nil {
			t.Errorf("CheckRefID(%q): expected error", bad)
		}
	}
	if err := CheckRefID("prices-2026-01.csv"); err != nil {
		t.Errorf("CheckRefID: %v", err)
	}
}
