package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/honeycombio/otel-config-go/otelconfig"
	"github.com/urfave/cli/v2"

	testfold "github.com/testfold/testfold"
	"github.com/testfold/testfold/exitcodes"
	"github.com/testfold/testfold/flags"
	"github.com/testfold/testfold/registry"
	"github.com/testfold/testfold/service"
	"github.com/testfold/testfold/worker"
)

var (
	Version   = "v0.1.0"
	GitCommit = ""
	GitDate   = ""
)

func main() {
	app := cli.NewApp()
	app.Version = fmt.Sprintf("%s-%s-%s", Version, GitCommit, GitDate)
	app.Name = "testfold"
	app.Usage = "Test collection scheduler and runner"
	app.Description = "testfold walks a manifest of suites and tests through setUp/run/tearDown sequencing"
	app.Flags = flags.Flags
	app.Action = run
	app.ExitErrHandler = func(c *cli.Context, err error) {
		var exitErr cli.ExitCoder
		if errors.As(err, &exitErr) {
			cli.HandleExitCoder(exitErr)
		} else if err != nil {
			if resultErr, ok := testfold.AsResultError(err); ok {
				// Test problems exit with the result bitmask.
				cli.HandleExitCoder(cli.Exit(err.Error(), resultErr.Status))
			} else {
				cli.HandleExitCoder(cli.Exit(err.Error(), exitcodes.RuntimeErr))
			}
		}
	}

	// Start telemetry
	otelShutdown, err := otelconfig.ConfigureOpenTelemetry(
		otelconfig.WithServiceName(app.Name),
		otelconfig.WithServiceVersion(app.Version),
	)
	if err != nil {
		log.Crit("Failed to setup open telemetry", "message", err)
	}
	defer otelShutdown()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Start servers, except in worker re-exec mode where the parent already
	// holds the ports.
	if !isWorkerInvocation(os.Args) {
		svc := service.New()
		svc.Start(ctx)
		defer svc.Shutdown()
	}

	err = app.RunContext(ctx, os.Args)
	if err != nil {
		log.Crit("Application failed", "message", err)
	}
}

func run(cliCtx *cli.Context) error {
	logger, err := setupLogger(cliCtx)
	if err != nil {
		return cli.Exit(err.Error(), exitcodes.RuntimeErr)
	}

	if uid := cliCtx.String(flags.WorkerTest.Name); uid != "" {
		return runWorker(cliCtx, logger, uid)
	}

	cfg, err := testfold.NewConfig(cliCtx, logger)
	if err != nil {
		return cli.Exit(fmt.Sprintf("invalid configuration: %v", err), exitcodes.RuntimeErr)
	}

	appCtx, cancel := context.WithCancelCause(cliCtx.Context)
	defer cancel(nil)

	svc, err := testfold.New(appCtx, cfg, Version, func(err error) {
		cancel(err)
	})
	if err != nil {
		return cli.Exit(fmt.Sprintf("failed to start: %v", err), exitcodes.RuntimeErr)
	}

	if err := svc.Start(appCtx); err != nil {
		if resultErr, ok := testfold.AsResultError(err); ok {
			return cli.Exit(err.Error(), resultErr.Status)
		}
		return cli.Exit(err.Error(), exitcodes.RuntimeErr)
	}

	// Block until run-once completion, an interrupt, or a fatal error.
	<-appCtx.Done()

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer stopCancel()
	if err := svc.Stop(stopCtx); err != nil {
		logger.Error("Failed to stop cleanly", "err", err)
	}

	if cause := context.Cause(appCtx); cause != nil && !errors.Is(cause, context.Canceled) {
		return cause
	}
	return nil
}

// isWorkerInvocation detects the hidden worker flag before flag parsing has
// happened, in both its split and joined argument forms.
func isWorkerInvocation(args []string) bool {
	for _, arg := range args {
		if arg == worker.WorkerFlag || strings.HasPrefix(arg, worker.WorkerFlag+"=") {
			return true
		}
	}
	return false
}

// runWorker serves one test's phases over stdio; this is the child side of
// process isolation and is reached through the hidden worker flag.
func runWorker(cliCtx *cli.Context, logger log.Logger, uid string) error {
	reg, err := registry.NewRegistry(registry.Config{
		Log:          logger,
		ManifestFile: cliCtx.String(flags.Manifest.Name),
	})
	if err != nil {
		return cli.Exit(fmt.Sprintf("worker failed to load manifest: %v", err), exitcodes.RuntimeErr)
	}

	transport := struct {
		io.Reader
		io.Writer
	}{os.Stdin, os.Stdout}

	timeout := cliCtx.Duration(flags.Timeout.Name)
	if err := worker.Serve(cliCtx.Context, transport, reg.Collection(), uid, timeout); err != nil {
		return cli.Exit(fmt.Sprintf("worker failed: %v", err), exitcodes.RuntimeErr)
	}
	return nil
}

func setupLogger(cliCtx *cli.Context) (log.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(cliCtx.String(flags.LogLevel.Name))); err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}
	colour := !cliCtx.Bool(flags.NoColour.Name)
	logger := log.NewLogger(log.NewTerminalHandlerWithLevel(os.Stderr, lvl, colour))
	log.SetDefault(logger)
	return logger, nil
}
