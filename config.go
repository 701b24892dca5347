package testfold

import (
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/urfave/cli/v2"

	"github.com/testfold/testfold/flags"
)

// Config holds the application configuration
type Config struct {
	Manifest    string        // Path to the test manifest
	Journal     string        // Path to the journal file; empty disables persistence
	KeepGoing   bool          // Continue past failures instead of skipping the remainder
	SkipPassed  bool          // Resume mode: skip tests journalled as passed
	Seed        int64         // Test-order randomisation seed
	Numbers     []int         // Restrict the run to these test numbers
	MaxExecTime float64       // Exclude tests averaging longer than this many seconds
	Timeout     time.Duration // Watchdog budget per phase invocation
	RunBroken   bool          // Execute broken-flagged tests
	RunInterval time.Duration // Interval between test runs
	RunOnce     bool          // Indicates if the service should exit after one test run
	LogFile     string        // Mirror run output into this file
	List        bool          // List selected tests instead of running them
	Colour      bool          // Colour terminal output
	Log         log.Logger
}

// NewConfig creates a new Config from cli context
func NewConfig(ctx *cli.Context, logger log.Logger) (*Config, error) {
	if err := flags.CheckRequired(ctx); err != nil {
		return nil, fmt.Errorf("missing required flags: %w", err)
	}

	manifest := ctx.String(flags.Manifest.Name)
	if manifest == "" {
		return nil, errors.New("manifest file is required")
	}
	absManifest, err := filepath.Abs(manifest)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve absolute path for manifest '%s': %w", manifest, err)
	}

	journalPath := ctx.String(flags.JournalFile.Name)
	if journalPath != "" {
		journalPath, err = filepath.Abs(journalPath)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve absolute path for journal '%s': %w", journalPath, err)
		}
	}

	runInterval := ctx.Duration(flags.RunInterval.Name)

	return &Config{
		Manifest:    absManifest,
		Journal:     journalPath,
		KeepGoing:   ctx.Bool(flags.KeepGoing.Name),
		SkipPassed:  ctx.Bool(flags.SkipPassed.Name),
		Seed:        ctx.Int64(flags.Seed.Name),
		Numbers:     ctx.IntSlice(flags.Numbers.Name),
		MaxExecTime: ctx.Float64(flags.MaxExecTime.Name),
		Timeout:     ctx.Duration(flags.Timeout.Name),
		RunBroken:   ctx.Bool(flags.RunBroken.Name),
		RunInterval: runInterval,
		RunOnce:     runInterval == 0,
		LogFile:     ctx.String(flags.LogFile.Name),
		List:        ctx.Bool(flags.List.Name),
		Colour:      !ctx.Bool(flags.NoColour.Name),
		Log:         logger,
	}, nil
}
