package runner

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"code.cloudfoundry.org/clock"
	"github.com/ethereum/go-ethereum/log"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/testfold/testfold/metrics"
	"github.com/testfold/testfold/reporting"
	"github.com/testfold/testfold/types"
)

// Journal persists test outcomes and execution times between runs, enabling
// resume mode and time-based selection.
type Journal interface {
	// Load seeds the collection's tests with their previously recorded states.
	Load(c *types.Collection) error

	// Record persists the latest outcome and execution time of t.
	Record(t *types.Test) error

	// AverageTime returns the recorded average execution time in seconds.
	AverageTime(uid string) (avg float64, ok bool)
}

// Isolator executes the scalar phases of a test in a separate process. The
// implementation must replay the worker's reporter events in order and install
// the phase outcomes into the test's current run record before returning.
type Isolator interface {
	RunIsolated(ctx context.Context, t *types.Test) error
}

// Config is the scheduler's configuration surface.
type Config struct {
	Collection *types.Collection
	Reporter   reporting.Reporter
	Journal    Journal  // optional; nil disables persistence
	Isolator   Isolator // optional; nil runs everything in-process
	Log        log.Logger
	Clock      clock.Clock

	// KeepGoing continues past failures instead of skipping the remainder.
	KeepGoing bool
	// SkipPassed omits tests that passed on the previous run.
	SkipPassed bool
	// Seed randomises test order: 0 off, negative time-seeded, positive fixed.
	Seed int64
	// Numbers restricts the run to explicitly numbered tests.
	Numbers []int
	// MaxExecTime excludes tests averaging longer than this many seconds.
	MaxExecTime float64
	// Timeout bounds each phase invocation; 0 is unbounded.
	Timeout time.Duration
	// RunBroken executes tests flagged broken instead of skipping them.
	RunBroken bool

	// Selectors further restrict which tests run.
	Selectors []Selector
}

// RunResult summarises a completed run.
type RunResult struct {
	RunID    string
	Duration time.Duration
	Ran      int
	Counts   map[types.State]int
	Stopped  bool
}

// Runner walks the selected tests through the suite enter/exit and
// setUp/run/tearDown sequencing.
type Runner interface {
	// RunTests executes one full pass over the selection.
	RunTests(ctx context.Context) (*RunResult, error)

	// Summarise walks the selection again, emitting summary events; in
	// fail-summary mode only problem tests and their suites are visited.
	Summarise(mode reporting.Mode)

	// List emits the selection as listing events without executing anything.
	List()
}

type runner struct {
	cfg        Config
	collection *types.Collection
	reporter   reporting.Reporter
	selection  *Selection
	watchdog   *Watchdog
	clock      clock.Clock
	log        log.Logger
	tracer     trace.Tracer
}

// NewRunner validates cfg and builds the scheduler.
func NewRunner(cfg Config) (Runner, error) {
	if cfg.Collection == nil {
		return nil, fmt.Errorf("collection is required")
	}
	if cfg.Reporter == nil {
		cfg.Reporter = reporting.NewMulti()
	}
	if cfg.Log == nil {
		cfg.Log = log.New()
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.NewClock()
	}

	selCfg := SelectionConfig{
		Seed:        cfg.Seed,
		Numbers:     cfg.Numbers,
		SkipPassed:  cfg.SkipPassed,
		MaxExecTime: cfg.MaxExecTime,
	}
	if cfg.Journal != nil {
		selCfg.AverageTime = cfg.Journal.AverageTime
	}

	return &runner{
		cfg:        cfg,
		collection: cfg.Collection,
		reporter:   cfg.Reporter,
		selection:  NewSelection(cfg.Collection, selCfg, cfg.Log, cfg.Selectors...),
		watchdog:   NewWatchdog(cfg.Timeout, cfg.Clock),
		clock:      cfg.Clock,
		log:        cfg.Log,
		tracer:     otel.Tracer("testfold/runner"),
	}, nil
}

func (r *runner) RunTests(ctx context.Context) (*RunResult, error) {
	runID := uuid.New().String()
	start := r.clock.Now()
	r.log.Info("Starting test run", "run_id", runID)

	ctx, span := r.tracer.Start(ctx, "run tests", trace.WithAttributes(
		attribute.String("run_id", runID),
	))
	defer span.End()

	// In-process phases reach the reporter stack the same way isolated
	// worker phases reach their proxy.
	ctx = reporting.WithReporter(ctx, r.reporter)

	if r.cfg.Journal != nil {
		if err := r.cfg.Journal.Load(r.collection); err != nil {
			return nil, fmt.Errorf("failed to load journal: %w", err)
		}
	}

	r.collection.ResetSuites()
	r.reporter.SetMode(reporting.ModeRun)
	r.reporter.SetField("Run ID", runID)

	triples := r.selection.Triples()
	result := &RunResult{RunID: runID, Counts: make(map[types.State]int)}

	mustStop := false
	for _, triple := range triples {
		if mustStop || triple.Test.StopAll {
			// Remaining tests stay NOT_RUN; all cleanup already happened.
			result.Stopped = true
			break
		}
		r.processTest(ctx, triple, &mustStop)
		result.Ran++
		result.Counts[triple.Test.Result().ReportCode()]++
	}

	result.Duration = r.clock.Since(start)
	metrics.RecordRun(runID, result.Duration, result.Counts)
	if r.collection.HasFailures() {
		span.SetStatus(codes.Error, "run had failures")
	} else {
		span.SetStatus(codes.Ok, "")
	}
	r.log.Info("Test run complete",
		"run_id", runID,
		"ran", result.Ran,
		"duration", result.Duration,
		"stopped", result.Stopped)
	return result, nil
}

// processTest runs one complete cycle for a triple: enter suites, execute the
// scalar phases, exit suites, report and journal the outcome, then apply the
// stop policy.
func (r *runner) processTest(ctx context.Context, triple Triple, mustStop *bool) {
	t := triple.Test
	rec := t.StartNewRun()

	ctx, span := r.tracer.Start(ctx, t.UID, trace.WithAttributes(
		attribute.Int("test.number", t.Number),
		attribute.String("test.summary", t.Summary),
	))
	defer span.End()

	r.prepare(ctx, triple)
	r.executeTest(ctx, t)

	runState := t.State()

	// A deliberate suite exit latches the immediately enclosing suite so its
	// remaining tests short-circuit to SKIPPED.
	if runState == types.StateExitSuite && t.Parent() != types.NoSuite {
		r.collection.Suite(t.Parent()).SkipTests = true
	}

	// EXIT_ALL and an operator interrupt both halt after the current
	// cleanup, so the exit chain must unwind every remaining suite.
	if runState == types.StateExitAll || t.StopAll {
		*mustStop = true
	}
	next := triple.Next
	if *mustStop {
		next = nil
	}
	r.cleanup(ctx, t, next)

	r.reporter.PutResult(t)
	result := t.Result()
	metrics.RecordTestResult(t.UID, result.ReportCode(), rec.Duration)
	if result.ReportCode().IsProblem() {
		span.SetStatus(codes.Error, result.String())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	if r.cfg.Journal != nil {
		if err := r.cfg.Journal.Record(t); err != nil {
			r.log.Warn("Failed to journal test result", "test", t.UID, "err", err)
		}
	}

	// Stop policy: a genuine failure skips the remainder unless keep-going
	// is on; a deliberate suite exit only latches its own suites.
	if t.HasFailed() && (t.StopAll || (!r.cfg.KeepGoing && runState != types.StateExitSuite)) {
		r.latchAllSuites()
	}
}

// prepare enters the suites that current does not share with previous,
// running each suite-setUp and recording its outcome on the current test.
func (r *runner) prepare(ctx context.Context, triple Triple) {
	t := triple.Test
	enter := r.collection.DiffAncestors(t, triple.Prev)
	baseLevel := r.collection.Level(t) - len(enter)

	latched := false
	for i, s := range enter {
		if latched {
			s.SkipTests = true
			continue
		}
		r.reporter.EnterSuite(s, baseLevel+i)
		if s.SkipTests {
			continue
		}
		s.Entered = true
		step := NewExecutor(s.SuiteSetUp, t, types.PhaseSuiteSetUp, r.watchdog).Invoke(ctx)
		if step.Result != types.StatePass {
			s.SkipTests = true
			latched = true
		}
	}
}

// executeTest runs the scalar phase sequence, or records the appropriate
// short-circuit state for skipped, broken, todo and wrong-platform tests.
func (r *runner) executeTest(ctx context.Context, t *types.Test) {
	r.reporter.AnnounceTestStart(t, r.collection.Level(t))

	switch {
	case r.chainSkips(t) || (t.Traits.Broken && !r.cfg.RunBroken):
		// When this test's own suite entry just failed, the run phase stays
		// absent so the derived result explains the bad suite setup; a
		// pre-latched chain short-circuits to SKIPPED instead.
		if !suiteSetupFailed(t) {
			t.AddStep(types.PhaseRun).Result = types.StateSkipped
		}

	case t.Traits.Todo:
		t.AddStep(types.PhaseRun).Result = types.StateTodo

	case t.Traits.Platform != "" && t.Traits.Platform != runtime.GOOS:
		t.AddStep(types.PhaseRun).Result = types.StateDisabled

	case r.collection.ShouldFork(t) && r.cfg.Isolator != nil:
		if err := r.cfg.Isolator.RunIsolated(ctx, t); err != nil {
			// The worker died before delivering results; the test counts
			// as failed with whatever killed the worker attached.
			step := t.RunRecord().Step(types.PhaseRun)
			if step == nil {
				step = t.AddStep(types.PhaseRun)
			}
			Classify(step, err, t, types.PhaseRun)
		}

	default:
		ExecutePhases(ctx, r.collection, t, r.watchdog)
	}
}

// ExecutePhases runs a test's scalar phases in the calling process: setUp
// (with post-setup hook), the body, the post-check, then tearDown. tearDown
// runs regardless of the earlier outcomes; the body only runs after a clean
// setUp, and the post-check only after a clean body. The body's execution
// time is stamped on the current run record for later averaging.
//
// Isolated workers call this in the child process, so it must not touch any
// controller-side state beyond the test itself.
func ExecutePhases(ctx context.Context, c *types.Collection, t *types.Test, wd *Watchdog) {
	suite := c.Suite(t.Parent())

	setUp := NewExecutor(suite.SetUp, t, types.PhaseSetUp, wd).
		WithPost(suite.PostSetUp).
		Invoke(ctx)

	if setUp.Result == types.StatePass {
		started := time.Now()
		run := NewExecutor(t.Run, t, types.PhaseRun, wd).Invoke(ctx)
		if rec := t.RunRecord(); rec != nil {
			rec.Duration = time.Since(started)
		}
		if (run.Result == types.StatePass || run.Result == types.StateBugPass) && suite.PostCheck != nil {
			NewExecutor(suite.PostCheck, t, types.PhasePostCheck, wd).Invoke(ctx)
		}
	}

	NewExecutor(suite.TearDown, t, types.PhaseTearDown, wd).Invoke(ctx)
}

// cleanup exits the suites that current does not share with next, innermost
// first, tearing down only those actually entered. Teardown outcomes are
// recorded on the current test but never change its own result.
func (r *runner) cleanup(ctx context.Context, t *types.Test, next *types.Test) {
	exit := r.collection.DiffAncestors(t, next)
	baseLevel := r.collection.Level(t) - len(exit)

	for i := len(exit) - 1; i >= 0; i-- {
		s := exit[i]
		// Never-entered suites have nothing to tear down or announce.
		if !s.Entered {
			continue
		}
		NewExecutor(s.SuiteTearDown, t, types.PhaseSuiteTearDown, r.watchdog).Invoke(ctx)
		s.Entered = false
		r.reporter.LeaveSuite(s, baseLevel+i)
	}
}

// suiteSetupFailed reports whether the current attempt recorded a failed
// suite-setUp step.
func suiteSetupFailed(t *types.Test) bool {
	rec := t.RunRecord()
	if rec == nil {
		return false
	}
	for _, step := range rec.Steps(types.PhaseSuiteSetUp) {
		if step.Result != types.StatePass {
			return true
		}
	}
	return false
}

// chainSkips reports whether any enclosing suite has latched its skip flag.
func (r *runner) chainSkips(t *types.Test) bool {
	for _, s := range r.collection.Ancestors(t) {
		if s.SkipTests {
			return true
		}
	}
	return false
}

// latchAllSuites marks every suite to skip its remaining tests.
func (r *runner) latchAllSuites() {
	for _, s := range r.collection.Suites() {
		s.SkipTests = true
	}
}

func (r *runner) Summarise(mode reporting.Mode) {
	r.reporter.SetMode(mode)

	tests := r.selection.Tests()
	if mode == reporting.ModeFailSummary {
		var failing []*types.Test
		for _, t := range tests {
			if t.HasRunProblem() {
				failing = append(failing, t)
			}
		}
		tests = failing
	}

	var prev *types.Test
	for _, t := range tests {
		enter := r.collection.DiffAncestors(t, prev)
		baseLevel := r.collection.Level(t) - len(enter)
		for i, s := range enter {
			r.reporter.SummariseSuiteResult(s, r.collection.SuiteResult(s), baseLevel+i)
		}
		r.reporter.SummariseResult(t, r.collection.Level(t))
		prev = t
	}
}

func (r *runner) List() {
	r.reporter.SetMode(reporting.ModeListing)

	var prev *types.Test
	for _, t := range r.selection.Tests() {
		enter := r.collection.DiffAncestors(t, prev)
		baseLevel := r.collection.Level(t) - len(enter)
		for i, s := range enter {
			r.reporter.SummariseSuiteResult(s, r.collection.SuiteResult(s), baseLevel+i)
		}
		r.reporter.SummariseResult(t, r.collection.Level(t))
		prev = t
	}
}
