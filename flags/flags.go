package flags

import (
	"fmt"

	"github.com/urfave/cli/v2"
)

const EnvVarPrefix = "TESTFOLD"

// prefixEnvVars derives the environment variable names for a flag.
func prefixEnvVars(name string) []string {
	return []string{EnvVarPrefix + "_" + name}
}

var (
	Manifest = &cli.StringFlag{
		Name:     "manifest",
		Value:    "",
		Required: true,
		EnvVars:  prefixEnvVars("MANIFEST"),
		Usage:    "Path to the test manifest file (eg. 'tests.yaml')",
	}
	JournalFile = &cli.StringFlag{
		Name:    "journal",
		Value:   "",
		EnvVars: prefixEnvVars("JOURNAL"),
		Usage:   "Path to the journal file used to persist results between runs",
	}
	KeepGoing = &cli.BoolFlag{
		Name:    "keep-going",
		Value:   false,
		EnvVars: prefixEnvVars("KEEP_GOING"),
		Usage:   "Continue past failing tests instead of skipping the remainder",
	}
	SkipPassed = &cli.BoolFlag{
		Name:    "skip-passed",
		Value:   false,
		EnvVars: prefixEnvVars("SKIP_PASSED"),
		Usage:   "Skip tests recorded as passed in the journal (resume mode)",
	}
	Seed = &cli.Int64Flag{
		Name:    "seed",
		Value:   0,
		EnvVars: prefixEnvVars("SEED"),
		Usage:   "Randomise test order: 0 off, negative time-seeded, positive fixed seed",
	}
	Numbers = &cli.IntSliceFlag{
		Name:    "numbers",
		EnvVars: prefixEnvVars("NUMBERS"),
		Usage:   "Run only the tests with these numbers, in the given order",
	}
	MaxExecTime = &cli.Float64Flag{
		Name:    "max-exec-time",
		Value:   0,
		EnvVars: prefixEnvVars("MAX_EXEC_TIME"),
		Usage:   "Skip tests whose journalled average execution time exceeds this many seconds",
	}
	Timeout = &cli.DurationFlag{
		Name:    "timeout",
		Value:   0,
		EnvVars: prefixEnvVars("TIMEOUT"),
		Usage:   "Watchdog budget per phase invocation (e.g. '30s'). 0 disables the watchdog.",
	}
	RunBroken = &cli.BoolFlag{
		Name:    "run-broken",
		Value:   false,
		EnvVars: prefixEnvVars("RUN_BROKEN"),
		Usage:   "Execute tests flagged broken instead of skipping them",
	}
	RunInterval = &cli.DurationFlag{
		Name:    "run-interval",
		Value:   0,
		EnvVars: prefixEnvVars("RUN_INTERVAL"),
		Usage:   "Interval between test runs (e.g. '1h', '30m'). Set to 0 or omit for run-once mode.",
	}
	LogFile = &cli.StringFlag{
		Name:    "log-file",
		Value:   "",
		EnvVars: prefixEnvVars("LOG_FILE"),
		Usage:   "Mirror the run output into this file, colour codes stripped",
	}
	List = &cli.BoolFlag{
		Name:    "list",
		Value:   false,
		EnvVars: prefixEnvVars("LIST"),
		Usage:   "List the selected tests as JSON instead of running them",
	}
	NoColour = &cli.BoolFlag{
		Name:    "no-colour",
		Value:   false,
		EnvVars: prefixEnvVars("NO_COLOUR"),
		Usage:   "Disable colour in terminal output",
	}
	LogLevel = &cli.StringFlag{
		Name:    "log-level",
		Value:   "info",
		EnvVars: prefixEnvVars("LOG_LEVEL"),
		Usage:   "Logging level: debug, info, warn, error",
	}
	WorkerTest = &cli.StringFlag{
		Name:   "worker-test",
		Value:  "",
		Hidden: true,
		Usage:  "Internal: serve a single test over stdio as an isolated worker",
	}
)

var requiredFlags = []cli.Flag{
	Manifest,
}

var optionalFlags = []cli.Flag{
	JournalFile,
	KeepGoing,
	SkipPassed,
	Seed,
	Numbers,
	MaxExecTime,
	Timeout,
	RunBroken,
	RunInterval,
	LogFile,
	List,
	NoColour,
	LogLevel,
	WorkerTest,
}

var Flags []cli.Flag

func init() {
	Flags = append(requiredFlags, optionalFlags...)
}

func CheckRequired(ctx *cli.Context) error {
	for _, f := range requiredFlags {
		if !ctx.IsSet(f.Names()[0]) {
			return fmt.Errorf("flag %s is required", f.Names()[0])
		}
	}
	return nil
}
