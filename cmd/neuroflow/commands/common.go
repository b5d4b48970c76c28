package commands

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/alecthomas/kong"

	"git.home.luguber.info/inful/neuroflow/internal/command"
	ferrors "git.home.luguber.info/inful/neuroflow/internal/foundation/errors"
)

// LogLevelEnv overrides the level selected by --verbose.
const LogLevelEnv = "NEUROFLOW_LOG_LEVEL"

// Global is shared by all subcommands.
type Global struct {
	Logger *slog.Logger
	Stdout io.Writer
	// Runner replaces the process runner when set. Tests inject a command.FakeRunner.
	Runner command.Runner
}

func (g *Global) logger() *slog.Logger {
	if g == nil || g.Logger == nil {
		return slog.Default()
	}
	return g.Logger
}

func (g *Global) out() io.Writer {
	if g == nil || g.Stdout == nil {
		return os.Stdout
	}
	return g.Stdout
}

// CLI definition & global flags.
type CLI struct {
	Config  string           `short:"c" help:"Configuration file path" default:"neuroflow.yaml" env:"NEUROFLOW_CONFIG"`
	Verbose bool             `short:"v" help:"Enable verbose logging"`
	Version kong.VersionFlag `name:"version" help:"Show version and exit"`

	Run     RunCmd     `cmd:"" help:"Run the pipeline for one or more subjects"`
	Plan    PlanCmd    `cmd:"" help:"Show what a run would do without executing anything"`
	Init    InitCmd    `cmd:"" help:"Write a starter configuration file"`
	Watch   WatchCmd   `cmd:"" help:"Re-run subjects when their inputs change or on an interval"`
	History HistoryCmd `cmd:"" help:"List recorded runs and their task outcomes"`
}

// AfterApply runs after flag parsing; setup logging once.
// nolint:unparam // AfterApply currently never returns an error.
func (c *CLI) AfterApply() error {
	level := slog.LevelInfo
	if c.Verbose {
		level = slog.LevelDebug
	}
	if l, ok := parseLogLevel(os.Getenv(LogLevelEnv)); ok {
		level = l
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return nil
}

func parseLogLevel(raw string) (slog.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug, true
	case "info":
		return slog.LevelInfo, true
	case "warn", "warning":
		return slog.LevelWarn, true
	case "error":
		return slog.LevelError, true
	default:
		return slog.LevelInfo, false
	}
}

// resolveSubjects returns the requested subjects, or every visible directory
// below subjectsDir when none were named.
func resolveSubjects(subjectsDir string, requested []string) ([]string, error) {
	if len(requested) > 0 {
		return requested, nil
	}
	entries, err := os.ReadDir(subjectsDir)
	if err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryFileSystem, "failed to list subjects").
			WithContext("dir", subjectsDir).Build()
	}
	var subjects []string
	for _, e := range entries {
		if e.IsDir() && !strings.HasPrefix(e.Name(), ".") {
			subjects = append(subjects, e.Name())
		}
	}
	if len(subjects) == 0 {
		return nil, ferrors.ValidationError("no subjects found").
			WithContext("dir", filepath.Clean(subjectsDir)).
			WithContext("hint", "name subjects explicitly or check pipeline.subjects_dir").Build()
	}
	slices.Sort(subjects)
	return subjects, nil
}
