package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rauterfrank-ui/Peak-Trade-sub008/internal/bundle"
	"github.com/rauterfrank-ui/Peak-Trade-sub008/internal/config"
)

var sourceEventLines = []string{
	`{"event_time_utc":"2026-01-01T00:00:00Z","seq":0,"event_type":"order_accepted","payload":{"order_id":"o-1","symbol":"BTC-USD"}}`,
	`{"event_time_utc":"2026-01-01T00:00:01Z","seq":1,"event_type":"order_fill","payload":{"order_id":"o-1","symbol":"BTC-USD","side":"BUY","qty":"1.5","price":"100.25"}}`,
	`{"event_time_utc":"2026-01-01T00:00:02Z","seq":2,"event_type":"order_fill","payload":{"order_id":"o-1","symbol":"BTC-USD","side":"SELL","qty":"0.5","price":"101"}}`,
}

func writeSourceRun(t *testing.T, datarefs string) string {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "run-cli")
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatal(err)
	}
	content := strings.Join(sourceEventLines, "\n") + "\n"
	if err := os.WriteFile(filepath.Join(dir, bundle.SourceEventsFile), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	if datarefs != "" {
		if err := os.WriteFile(filepath.Join(dir, bundle.SourceDataRefsFile), []byte(datarefs), 0644); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

func TestBuildValidateReplayRoundTrip(t *testing.T) {
	src := writeSourceRun(t, "")
	out := filepath.Join(t.TempDir(), "bundle")
	var stdout, stderr bytes.Buffer

	code := RunBuild([]string{"--run-id-or-dir", src, "--out", out, "--include-outputs"}, &stdout, &stderr)
	if code != 0 {
		t.Fatalf("build exit %d: %s", code, stderr.String())
	}
	if !strings.Contains(stdout.String(), "built bundle") {
		t.Fatalf("build output: %q", stdout.String())
	}

	stdout.Reset()
	stderr.Reset()
	if code := RunValidate([]string{"--bundle", out}, &stdout, &stderr); code != 0 {
		t.Fatalf("validate exit %d: %s", code, stderr.String())
	}
	if !strings.Contains(stdout.String(), "bundle OK") {
		t.Fatalf("validate output: %q", stdout.String())
	}

	stdout.Reset()
	stderr.Reset()
	cfg := config.DefaultConfig()
	if code := RunReplay(cfg, []string{"--bundle", out, "--check-outputs"}, &stdout, &stderr); code != 0 {
		t.Fatalf("replay exit %d: %s", code, stderr.String())
	}
	if !strings.Contains(stdout.String(), "replayed 2 fills, 1 positions") {
		t.Fatalf("replay output: %q", stdout.String())
	}
}

func TestValidateReportsHashMismatch(t *testing.T) {
	src := writeSourceRun(t, "")
	out := filepath.Join(t.TempDir(), "bundle")
	var stdout, stderr bytes.Buffer
	if code := RunBuild([]string{"--run-id-or-dir", src, "--out", out}, &stdout, &stderr); code != 0 {
		t.Fatalf("build exit %d: %s", code, stderr.String())
	}

	path := filepath.Join(out, filepath.FromSlash(bundle.EventsFile))
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	data[len(data)/2]++
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatal(err)
	}

	stderr.Reset()
	if code := RunValidate([]string{"--bundle", out}, &stdout, &stderr); code != 3 {
		t.Fatalf("validate exit %d, want 3: %s", code, stderr.String())
	}
}

func TestResolveStrictExitCode(t *testing.T) {
	src := writeSourceRun(t, `[{"ref_id":"prices.csv","required":true}]`)
	out := filepath.Join(t.TempDir(), "bundle")
	var stdout, stderr bytes.Buffer
	if code := RunBuild([]string{"--run-id-or-dir", src, "--out", out}, &stdout, &stderr); code != 0 {
		t.Fatalf("build exit %d: %s", code, stderr.String())
	}

	cfg := config.DefaultConfig()
	stdout.Reset()
	stderr.Reset()
	code := RunResolve(cfg, []string{"--bundle", out, "--cache-root", t.TempDir(), "--mode", "strict"}, &stdout, &stderr)
	if code != 6 {
		t.Fatalf("resolve exit %d, want 6: %s", code, stderr.String())
	}
	if !strings.Contains(stdout.String(), "dataref prices.csv MISSING") {
		t.Fatalf("resolve output: %q", stdout.String())
	}
}

func TestCompareThenSummarize(t *testing.T) {
	src := writeSourceRun(t, "")
	out := filepath.Join(t.TempDir(), "bundle")
	var stdout, stderr bytes.Buffer
	if code := RunBuild([]string{"--run-id-or-dir", src, "--out", out, "--include-outputs"}, &stdout, &stderr); code != 0 {
		t.Fatalf("build exit %d: %s", code, stderr.String())
	}

	cfg := config.DefaultConfig()
	stdout.Reset()
	stderr.Reset()
	code := RunCompare(cfg, []string{
		"--bundle", out, "--check-outputs",
		"--generated-at-utc", "2026-02-01T12:00:00Z",
	}, &stdout, &stderr)
	if code != 0 {
		t.Fatalf("compare exit %d: %s", code, stderr.String())
	}
	if !strings.Contains(stdout.String(), "compare PASS exit=0") {
		t.Fatalf("compare output: %q", stdout.String())
	}

	report := filepath.Join(out, filepath.FromSlash(bundle.CompareReportFile))
	stdout.Reset()
	stderr.Reset()
	if code := RunSummarize([]string{"--report", report, "--mode", "ops", "--strict"}, &stdout, &stderr); code != 0 {
		t.Fatalf("summarize exit %d: %s", code, stderr.String())
	}
	lines := strings.Split(strings.TrimRight(stdout.String(), "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("ops summarize lines: %q", lines)
	}
	if !strings.Contains(lines[0], "replay PASS exit=0") {
		t.Fatalf("summary line: %q", lines[0])
	}
}

func TestUsageErrors(t *testing.T) {
	cfg := config.DefaultConfig()
	var stdout, stderr bytes.Buffer

	cases := []struct {
		name string
		code int
	}{
		{"build", RunBuild(nil, &stdout, &stderr)},
		{"validate", RunValidate(nil, &stdout, &stderr)},
		{"replay", RunReplay(cfg, nil, &stdout, &stderr)},
		{"compare", RunCompare(cfg, nil, &stdout, &stderr)},
		{"resolve", RunResolve(cfg, nil, &stdout, &stderr)},
		{"summarize", RunSummarize(nil, &stdout, &stderr)},
	}
	for _, tc := range cases {
		if tc.code != 1 {
			t.Errorf("%s with no flags: exit %d, want 1", tc.name, tc.code)
		}
	}
}

func TestBuildMissingSourceExit(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := RunBuild([]string{
		"--run-id-or-dir", filepath.Join(t.TempDir(), "nope"),
		"--out", filepath.Join(t.TempDir(), "bundle"),
	}, &stdout, &stderr)
	if code != 1 {
		t.Fatalf("build on missing source: exit %d, want 1", code)
	}
}

func TestHelpListsExitCodes(t *testing.T) {
	var out bytes.Buffer
	if code := RunHelp(&out); code != 0 {
		t.Fatalf("help exit %d", code)
	}
	for _, want := range []string{"build", "validate", "replay", "compare", "resolve-datarefs", "summarize", "6  missing required dataref"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("help missing %q", want)
		}
	}
}
