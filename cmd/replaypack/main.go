package main

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"

	"github.com/rauterfrank-ui/Peak-Trade-sub008/internal/cli"
	"github.com/rauterfrank-ui/Peak-Trade-sub008/internal/config"
)

var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	args := os.Args[1:]
	verbose := false
	if len(args) > 0 && (args[0] == "-v" || args[0] == "--verbose") {
		verbose = true
		args = args[1:]
	}
	if len(args) == 0 {
		cli.RunHelp(os.Stderr)
		return 1
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "replaypack: config: %v\n", err)
		return 1
	}

	level := cfg.SlogLevel()
	if verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		NoColor:    !isatty.IsTerminal(os.Stderr.Fd()),
		TimeFormat: time.Kitchen,
		Level:      level,
	})))

	switch args[0] {
	case "build":
		return cli.RunBuild(args[1:], os.Stdout, os.Stderr)
	case "validate":
		return cli.RunValidate(args[1:], os.Stdout, os.Stderr)
	case "replay":
		return cli.RunReplay(cfg, args[1:], os.Stdout, os.Stderr)
	case "compare":
		return cli.RunCompare(cfg, args[1:], os.Stdout, os.Stderr)
	case "resolve-datarefs":
		return cli.RunResolve(cfg, args[1:], os.Stdout, os.Stderr)
	case "summarize":
		return cli.RunSummarize(args[1:], os.Stdout, os.Stderr)
	case "mcp":
		return cli.RunMCP(cfg, os.Stderr)
	case "version", "--version":
		fmt.Printf("replaypack %s\n", version)
		return 0
	case "help", "--help":
		return cli.RunHelp(os.Stdout)
	default:
		fmt.Fprintf(os.Stderr, "replaypack: unknown command %q\n", args[0])
		cli.RunHelp(os.Stderr)
		return 1
	}
}
