package cli

import (
	"fmt"
	"io"

	"github.com/rauterfrank-ui/Peak-Trade-sub008/internal/exitcode"
	"github.com/rauterfrank-ui/Peak-Trade-sub008/internal/summary"
)

// RunSummarize handles: replaypack summarize --report <file>
// [--mode ci|ops] [--strict]
// With --strict the process exit code mirrors the report's recorded
// exit_code, enabling direct CI gating.
func RunSummarize(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("summarize", stderr)
	reportPath := fs.String("report", "", "compare report path")
	modeArg := fs.String("mode", "ci", "output mode: ci or ops")
	strict := fs.Bool("strict", false, "mirror the report exit code")
	if err := fs.Parse(args); err != nil {
		return int(exitcode.Usage)
	}
	if *reportPath == "" {
		return usage(stderr, "summarize", "--report is required")
	}
	mode, err := summary.ParseMode(*modeArg)
	if err != nil {
		return fail(stderr, "summarize", err)
	}

	s, err := summary.Summarize(*reportPath, mode, *strict)
	if err != nil {
		return fail(stderr, "summarize", err)
	}
	for _, line := range s.Lines {
		fmt.Fprintln(stdout, line)
	}
	return s.ExitCode
}
