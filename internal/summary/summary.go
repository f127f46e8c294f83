// Package summary reduces a compare report to a compact CI or ops status
// signal without re-deriving anything.
package summary

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/rauterfrank-ui/Peak-Trade-sub008/internal/exitcode"
)

// Mode selects the output shape.
type Mode int

const (
	// ModeCI renders a single machine-greppable status line.
	ModeCI Mode = iota
	// ModeOps adds a second line with per-stage detail.
	ModeOps
)

// ParseMode parses the CLI spelling of a mode.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "ci":
		return ModeCI, nil
	case "ops":
		return ModeOps, nil
	default:
		return 0, exitcode.Errorf(exitcode.Usage, "unknown summarize mode %q (want ci or ops)", s)
	}
}

// Summary is the rendered signal. ExitCode is non-zero only in strict
// mode, where it mirrors the report's recorded exit code so CI can gate
// directly on the process status.
type Summary struct {
	Lines    []string
	ExitCode int
}

type reportDoc struct {
	Summary struct {
		Status         string   `json:"status"`
		ExitCode       int      `json:"exit_code"`
		Reasons        []string `json:"reasons"`
		GeneratedAtUTC string   `json:"generated_at_utc"`
	} `json:"summary"`
	Replay struct {
		ValidateBundle  string `json:"validate_bundle"`
		ResolveDataRefs string `json:"resolve_datarefs"`
		ReplayExitCode  int    `json:"replay_exit_code"`
		CheckOutputs    string `json:"check_outputs"`
	} `json:"replay"`
}

// Summarize reads a compare report and renders the status signal.
func Summarize(reportPath string, mode Mode, strict bool) (*Summary, error) {
	data, err := os.ReadFile(reportPath)
	if err != nil {
		return nil, exitcode.Errorf(exitcode.Usage, "read report: %v", err)
	}
	var doc reportDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, exitcode.Errorf(exitcode.ContractViolation, "parse report %s: %v", reportPath, err)
	}
	if doc.Summary.Status == "" {
		return nil, exitcode.Errorf(exitcode.ContractViolation, "report %s has no summary.status", reportPath)
	}

	reasons := "-"
	if len(doc.Summary.Reasons) > 0 {
		reasons = strings.Join(doc.Summary.Reasons, "; ")
	}
	s := &Summary{
		Lines: []string{fmt.Sprintf("replay %s exit=%d generated_at=%s reasons=%s",
			doc.Summary.Status, doc.Summary.ExitCode, doc.Summary.GeneratedAtUTC, reasons)},
	}
	if mode == ModeOps {
		s.Lines = append(s.Lines, fmt.Sprintf("stages validate=%s resolve=%s replay_exit=%d check_outputs=%s",
			doc.Replay.ValidateBundle, doc.Replay.ResolveDataRefs, doc.Replay.ReplayExitCode, doc.Replay.CheckOutputs))
	}
	if strict {
		s.ExitCode = doc.Summary.ExitCode
	}
	return s, nil
}
