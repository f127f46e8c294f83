package cli

import (
	"fmt"
	"io"
)

const helpText = `replaypack — deterministic replay pack tooling

Usage:
  replaypack build --run-id-or-dir <path> --out <dir> [--include-outputs]
  replaypack validate --bundle <dir>
  replaypack replay --bundle <dir> [--check-outputs]
            [--resolve-datarefs best_effort|strict --cache-root <dir>]
            [--invariants <file.star>]
  replaypack compare --bundle <dir> [--check-outputs] [--resolve-datarefs ...]
            --generated-at-utc <ISO8601>
  replaypack resolve-datarefs --bundle <dir> --cache-root <dir>
            --mode best_effort|strict
  replaypack summarize --report <file> [--mode ci|ops] [--strict]
  replaypack mcp
  replaypack version

Exit codes:
  0  ok
  1  usage error
  2  contract/schema violation
  3  hash mismatch
  4  output mismatch on replay
  5  unexpected internal error
  6  missing required dataref (strict resolution only)
`

// RunHelp prints usage.
func RunHelp(w io.Writer) int {
	fmt.Fprint(w, helpText)
	return 0
}
