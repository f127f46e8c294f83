// Package mcpserver exposes the replay-pack operations as MCP tools over
// stdio so agent-driven CI can gate on bundles without shelling out. Every
// tool invokes the same local, read-only operations as the CLI; the only
// writes are the meta/ reports those operations already produce.
package mcpserver

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/rauterfrank-ui/Peak-Trade-sub008/internal/bundle"
	"github.com/rauterfrank-ui/Peak-Trade-sub008/internal/compare"
	"github.com/rauterfrank-ui/Peak-Trade-sub008/internal/config"
	"github.com/rauterfrank-ui/Peak-Trade-sub008/internal/dataref"
	"github.com/rauterfrank-ui/Peak-Trade-sub008/internal/exitcode"
	"github.com/rauterfrank-ui/Peak-Trade-sub008/internal/replay"
)

const (
	serverName    = "Replay Pack MCP"
	serverVersion = "1.0.0"
)

// OpResult is the structured output shared by all tools: the same typed
// failure taxonomy the CLI exposes through exit codes.
type OpResult struct {
	Status   string   `json:"status"`
	ExitCode int      `json:"exit_code"`
	Reasons  []string `json:"reasons,omitempty"`
}

// ValidateInput identifies a bundle to validate.
type ValidateInput struct {
	Bundle string `json:"bundle"`
}

// ReplayInput identifies a bundle to replay.
type ReplayInput struct {
	Bundle       string `json:"bundle"`
	CheckOutputs bool   `json:"check_outputs"`
	ResolveMode  string `json:"resolve_mode,omitempty"`
	CacheRoot    string `json:"cache_root,omitempty"`
}

// CompareInput identifies a bundle to compare.
type CompareInput struct {
	Bundle         string `json:"bundle"`
	CheckOutputs   bool   `json:"check_outputs"`
	ResolveMode    string `json:"resolve_mode,omitempty"`
	CacheRoot      string `json:"cache_root,omitempty"`
	GeneratedAtUTC string `json:"generated_at_utc"`
}

// ResolveInput identifies a bundle whose datarefs should be resolved.
type ResolveInput struct {
	Bundle    string `json:"bundle"`
	CacheRoot string `json:"cache_root,omitempty"`
	Mode      string `json:"mode"`
}

// New creates the configured MCP server.
func New(cfg *config.Config) *server.MCPServer {
	s := server.NewMCPServer(
		serverName,
		serverVersion,
		server.WithToolCapabilities(false),
	)
	s.AddTool(validateTool(), validateHandler())
	s.AddTool(replayTool(), replayHandler(cfg))
	s.AddTool(compareTool(), compareHandler(cfg))
	s.AddTool(resolveTool(), resolveHandler(cfg))
	return s
}

// Serve runs the server on stdio until the client disconnects.
func Serve(s *server.MCPServer) error {
	return server.ServeStdio(s)
}

func opResult(err error) OpResult {
	r := OpResult{Status: "PASS", ExitCode: exitcode.FromError(err)}
	if err != nil {
		r.Status = "FAIL"
		r.Reasons = []string{err.Error()}
	}
	return r
}

func validateTool() mcp.Tool {
	return mcp.NewTool(
		"validate_bundle",
		mcp.WithDescription("Re-verify a replay bundle's structural, ordering, and hash contract"),
		mcp.WithString("bundle", mcp.Required(), mcp.Description("Bundle directory path")),
		mcp.WithInputSchema[ValidateInput](),
		mcp.WithOutputSchema[OpResult](),
	)
}

func validateHandler() func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var input ValidateInput
		if err := request.BindArguments(&input); err != nil {
			return mcp.NewToolResultErrorFromErr("invalid validate arguments", err), nil
		}
		err := bundle.Validate(input.Bundle)
		return mcp.NewToolResultStructuredOnly(opResult(err)), nil
	}
}

func replayTool() mcp.Tool {
	return mcp.NewTool(
		"replay_bundle",
		mcp.WithDescription("Deterministically re-derive fills and positions from a bundle's event log"),
		mcp.WithString("bundle", mcp.Required(), mcp.Description("Bundle directory path")),
		mcp.WithBoolean("check_outputs", mcp.Description("Compare derived outputs against embedded snapshots")),
		mcp.WithString("resolve_mode", mcp.Description("Resolve datarefs first: best_effort or strict")),
		mcp.WithString("cache_root", mcp.Description("Local dataref cache root")),
		mcp.WithInputSchema[ReplayInput](),
		mcp.WithOutputSchema[OpResult](),
	)
}

func replayHandler(cfg *config.Config) func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var input ReplayInput
		if err := request.BindArguments(&input); err != nil {
			return mcp.NewToolResultErrorFromErr("invalid replay arguments", err), nil
		}
		opts := replay.Options{
			CheckOutputs:     input.CheckOutputs,
			CacheRoot:        orDefault(input.CacheRoot, cfg.CacheRoot),
			InvariantsScript: cfg.Invariants,
		}
		if input.ResolveMode != "" {
			mode, err := dataref.ParseMode(input.ResolveMode)
			if err != nil {
				return mcp.NewToolResultErrorFromErr("invalid resolve mode", err), nil
			}
			opts.Resolve = &mode
		}
		_, err := replay.Replay(input.Bundle, opts)
		return mcp.NewToolResultStructuredOnly(opResult(err)), nil
	}
}

func compareTool() mcp.Tool {
	return mcp.NewTool(
		"compare_bundle",
		mcp.WithDescription("Run the validate→resolve→replay pipeline and write meta/compare_report.json"),
		mcp.WithString("bundle", mcp.Required(), mcp.Description("Bundle directory path")),
		mcp.WithBoolean("check_outputs", mcp.Description("Compare derived outputs against embedded snapshots")),
		mcp.WithString("resolve_mode", mcp.Description("Resolve datarefs first: best_effort or strict")),
		mcp.WithString("cache_root", mcp.Description("Local dataref cache root")),
		mcp.WithString("generated_at_utc", mcp.Required(), mcp.Description("Caller-supplied report timestamp (RFC3339 UTC)")),
		mcp.WithInputSchema[CompareInput](),
		mcp.WithOutputSchema[OpResult](),
	)
}

func compareHandler(cfg *config.Config) func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var input CompareInput
		if err := request.BindArguments(&input); err != nil {
			return mcp.NewToolResultErrorFromErr("invalid compare arguments", err), nil
		}
		opts := compare.Options{
			CheckOutputs:     input.CheckOutputs,
			CacheRoot:        orDefault(input.CacheRoot, cfg.CacheRoot),
			InvariantsScript: cfg.Invariants,
			GeneratedAtUTC:   input.GeneratedAtUTC,
		}
		if input.ResolveMode != "" {
			mode, err := dataref.ParseMode(input.ResolveMode)
			if err != nil {
				return mcp.NewToolResultErrorFromErr("invalid resolve mode", err), nil
			}
			opts.Resolve = &mode
		}
		_, err := compare.Compare(input.Bundle, opts)
		return mcp.NewToolResultStructuredOnly(opResult(err)), nil
	}
}

func resolveTool() mcp.Tool {
	return mcp.NewTool(
		"resolve_datarefs",
		mcp.WithDescription("Resolve a bundle's declared datarefs against a local cache"),
		mcp.WithString("bundle", mcp.Required(), mcp.Description("Bundle directory path")),
		mcp.WithString("cache_root", mcp.Description("Local dataref cache root")),
		mcp.WithString("mode", mcp.Required(), mcp.Description("best_effort or strict")),
		mcp.WithInputSchema[ResolveInput](),
		mcp.WithOutputSchema[OpResult](),
	)
}

func resolveHandler(cfg *config.Config) func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var input ResolveInput
		if err := request.BindArguments(&input); err != nil {
			return mcp.NewToolResultErrorFromErr("invalid resolve arguments", err), nil
		}
		mode, err := dataref.ParseMode(input.Mode)
		if err != nil {
			return mcp.NewToolResultErrorFromErr("invalid resolve mode", err), nil
		}
		_, err = dataref.Resolve(input.Bundle, orDefault(input.CacheRoot, cfg.CacheRoot), mode)
		return mcp.NewToolResultStructuredOnly(opResult(err)), nil
	}
}

func orDefault(value, fallback string) string {
	if value != "" {
		return value
	}
	return fallback
}
