package testfold

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"sync/atomic"

	"github.com/testfold/testfold/exitcodes"
	"github.com/testfold/testfold/journal"
	"github.com/testfold/testfold/registry"
	"github.com/testfold/testfold/reporting"
	"github.com/testfold/testfold/runner"
	"github.com/testfold/testfold/types"
	"github.com/testfold/testfold/worker"
)

// Lifecycle is the contract the CLI drives the application through.
type Lifecycle interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Stopped() bool
}

var _ Lifecycle = &app{}

// app wires the registry, journal, reporters and scheduler into a service.
type app struct {
	ctx      context.Context
	config   *Config
	version  string
	registry *registry.Registry
	journal  *journal.FileJournal
	reporter *reporting.Multi
	runner   runner.Runner
	trigger  *RunTrigger

	lastStatus atomic.Int64

	shutdownCallback func(error) // Callback to signal application shutdown
}

// New builds the application from its configuration.
func New(ctx context.Context, config *Config, version string, shutdownCallback func(error)) (*app, error) {
	if config == nil {
		return nil, errors.New("config is required")
	}

	config.Log.Debug("Creating testfold with config",
		"manifest", config.Manifest,
		"journal", config.Journal,
		"runInterval", config.RunInterval,
		"runOnce", config.RunOnce,
		"keepGoing", config.KeepGoing)

	reg, err := registry.NewRegistry(registry.Config{
		Log:          config.Log,
		ManifestFile: config.Manifest,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create registry: %w", err)
	}

	var jrnl *journal.FileJournal
	if config.Journal != "" {
		jrnl, err = journal.Open(config.Journal, config.Log)
		if err != nil {
			return nil, fmt.Errorf("failed to open journal: %w", err)
		}
	}

	reporter := reporting.NewMulti()
	if config.List {
		reporter.Add(reporting.NewListingReporter(os.Stdout))
	} else {
		reporter.Add(reporting.NewTerminalReporter(os.Stdout, config.Colour))
	}
	if config.LogFile != "" {
		fileLog, err := reporting.NewFileLogReporter(config.LogFile)
		if err != nil {
			return nil, fmt.Errorf("failed to create run log: %w", err)
		}
		reporter.Add(fileLog)
	}

	collection := reg.Collection()
	controller := worker.NewController(
		collection,
		reporter,
		worker.NewExecLauncher(workerArgs(config)),
		nil,
		config.Log,
	)

	runCfg := runner.Config{
		Collection:  collection,
		Reporter:    reporter,
		Isolator:    controller,
		Log:         config.Log,
		KeepGoing:   config.KeepGoing,
		SkipPassed:  config.SkipPassed,
		Seed:        config.Seed,
		Numbers:     config.Numbers,
		MaxExecTime: config.MaxExecTime,
		Timeout:     config.Timeout,
		RunBroken:   config.RunBroken,
	}
	if jrnl != nil {
		runCfg.Journal = jrnl
	}
	testRunner, err := runner.NewRunner(runCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create test runner: %w", err)
	}

	a := &app{
		ctx:              ctx,
		config:           config,
		version:          version,
		registry:         reg,
		journal:          jrnl,
		reporter:         reporter,
		runner:           testRunner,
		shutdownCallback: shutdownCallback,
	}
	a.trigger = NewRunTrigger(config.RunInterval, config.RunOnce, config.Log)
	a.trigger.RegisterCallback(a.runTests)
	return a, nil
}

// workerArgs is the argv prefix isolated workers are launched with, enough
// for the child to rebuild the same collection.
func workerArgs(config *Config) []string {
	args := []string{"--manifest", config.Manifest}
	if config.Timeout > 0 {
		args = append(args, "--timeout", config.Timeout.String())
	}
	return args
}

// Start runs the tests, once or periodically at the configured interval.
// Start implements the Lifecycle interface.
func (a *app) Start(ctx context.Context) error {
	a.ctx = ctx

	if a.config.List {
		a.config.Log.Info("Listing selected tests")
		a.runner.List()
		if err := a.reporter.Finish(); err != nil {
			return NewRuntimeError(err)
		}
		go func() {
			a.shutdownCallback(nil)
		}()
		return nil
	}

	if a.config.RunOnce {
		a.config.Log.Info("Starting testfold in run-once mode")
	} else {
		a.config.Log.Info("Starting testfold in continuous mode", "interval", a.config.RunInterval)
	}

	if err := a.trigger.Start(ctx); err != nil {
		a.config.Log.Error("Runtime error running tests", "error", err)
		return err
	}

	if a.config.RunOnce {
		if err := a.reporter.Finish(); err != nil {
			a.config.Log.Warn("Failed to flush reporters", "error", err)
		}
		status := int(a.lastStatus.Load())
		if status != exitcodes.Success {
			a.config.Log.Warn("Run-once test run completed with problems", "status", status)
			return NewResultError(status, statusDescription(status))
		}
		a.config.Log.Info("Tests completed, exiting (run-once mode)")
		go func() {
			a.shutdownCallback(nil)
		}()
		return nil
	}

	a.config.Log.Debug("testfold started successfully")
	return nil
}

// runTests runs one full pass and records the resulting exit status.
func (a *app) runTests() error {
	a.config.Log.Info("Running all tests...")
	result, err := a.runner.RunTests(a.ctx)
	if err != nil {
		a.config.Log.Error("Runtime error running tests", "error", err)
		return NewRuntimeError(err)
	}

	a.runner.Summarise(reporting.ModeRunSummary)
	collection := a.registry.Collection()
	if hasProblems(collection) {
		a.runner.Summarise(reporting.ModeFailSummary)
	}

	status := exitcodes.Status(collection)
	a.lastStatus.Store(int64(status))

	a.config.Log.Info("Test run completed",
		"run_id", result.RunID,
		"ran", result.Ran,
		"duration", result.Duration,
		"status", status)
	return nil
}

// Stop stops the testfold service.
// Stop implements the Lifecycle interface.
func (a *app) Stop(ctx context.Context) error {
	a.config.Log.Info("Stopping testfold")

	if a.trigger.Stopped() {
		a.config.Log.Debug("Service already stopped, nothing to do")
		return nil
	}
	if err := a.trigger.Stop(); err != nil {
		return err
	}

	a.config.Log.Info("testfold stopped successfully")
	return nil
}

// Stopped returns true if the testfold service is stopped.
// Stopped implements the Lifecycle interface.
func (a *app) Stopped() bool {
	return a.trigger.Stopped()
}

// WaitForShutdown blocks until all goroutines have terminated.
func (a *app) WaitForShutdown(ctx context.Context) error {
	return a.trigger.WaitForShutdown(ctx)
}

// ExitStatus returns the bitmask of the most recent run.
func (a *app) ExitStatus() int {
	return int(a.lastStatus.Load())
}

func hasProblems(c *types.Collection) bool {
	for _, t := range c.Tests() {
		if t.HasRunProblem() {
			return true
		}
	}
	return false
}

func statusDescription(status int) string {
	var parts []string
	if status&exitcodes.TestFailure != 0 {
		parts = append(parts, "test failures")
	}
	if status&exitcodes.SetupFailure != 0 {
		parts = append(parts, "setup failures")
	}
	if status&exitcodes.TeardownFailure != 0 {
		parts = append(parts, "teardown failures")
	}
	if len(parts) == 0 {
		return "status " + strconv.Itoa(status)
	}
	msg := parts[0]
	for _, p := range parts[1:] {
		msg += ", " + p
	}
	return msg
}
