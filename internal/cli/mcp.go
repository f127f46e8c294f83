package cli

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/rauterfrank-ui/Peak-Trade-sub008/internal/config"
	"github.com/rauterfrank-ui/Peak-Trade-sub008/internal/exitcode"
	"github.com/rauterfrank-ui/Peak-Trade-sub008/internal/mcpserver"
)

// RunMCP serves the replay-pack operations as MCP tools on stdio.
func RunMCP(cfg *config.Config, stderr io.Writer) int {
	slog.Info("serving MCP on stdio")
	if err := mcpserver.Serve(mcpserver.New(cfg)); err != nil {
		fmt.Fprintf(stderr, "replaypack mcp: %v\n", err)
		return int(exitcode.Internal)
	}
	return 0
}
