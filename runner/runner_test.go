package runner

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/testfold/testfold/exitcodes"
	"github.com/testfold/testfold/reporting"
	"github.com/testfold/testfold/types"
)

// phaseTrace records phase invocations so tests can assert on sequencing.
type phaseTrace struct {
	calls []string
}

// fixture is a two-suite collection: suite a with tests a1, a2 and suite b
// with test b1. Each phase appends to the trace.
type fixture struct {
	collection *types.Collection
	trace      *phaseTrace
	reporter   *reporting.RecordingReporter
	errs       map[string]error
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		collection: types.NewCollection(),
		trace:      &phaseTrace{},
		reporter:   reporting.NewRecordingReporter(),
		errs:       make(map[string]error),
	}

	failing := func(name string) types.PhaseFunc {
		return func(ctx context.Context) error {
			f.trace.calls = append(f.trace.calls, name)
			return f.errs[name]
		}
	}

	addSuite := func(name string) types.SuiteID {
		return f.collection.AddSuite(types.NoSuite, &types.Suite{
			Name:          name,
			UID:           name,
			Summary:       "Suite " + name,
			SetUp:         failing(name + ".setUp"),
			TearDown:      failing(name + ".tearDown"),
			SuiteSetUp:    failing(name + ".suiteSetUp"),
			SuiteTearDown: failing(name + ".suiteTearDown"),
		})
	}

	a := addSuite("a")
	b := addSuite("b")
	for _, tc := range []struct {
		suite types.SuiteID
		name  string
	}{{a, "a1"}, {a, "a2"}, {b, "b1"}} {
		name := tc.name
		f.collection.AddTest(tc.suite, &types.Test{
			UID:     name,
			Summary: "Test " + name,
			Run:     failing(name + ".run"),
		})
	}
	return f
}

func (f *fixture) run(t *testing.T, cfg Config) *RunResult {
	t.Helper()
	cfg.Collection = f.collection
	cfg.Reporter = f.reporter
	r, err := NewRunner(cfg)
	require.NoError(t, err)
	result, err := r.RunTests(context.Background())
	require.NoError(t, err)
	return result
}

func (f *fixture) test(uid string) *types.Test {
	return f.collection.TestByUID(uid)
}

func TestRunnerHappyPath(t *testing.T) {
	f := newFixture(t)
	result := f.run(t, Config{KeepGoing: true})

	assert.Equal(t, 3, result.Ran)
	assert.False(t, result.Stopped)
	for _, uid := range []string{"a1", "a2", "b1"} {
		assert.Equal(t, types.StatePass, f.test(uid).State(), uid)
	}
	assert.Equal(t, 3, result.Counts[types.StatePass])

	// Fixture sequencing: suite setup once per entry, setUp/tearDown per
	// test, suite teardown on exit.
	assert.Equal(t, []string{
		"a.suiteSetUp",
		"a.setUp", "a1.run", "a.tearDown",
		"a.setUp", "a2.run", "a.tearDown",
		"a.suiteTearDown",
		"b.suiteSetUp",
		"b.setUp", "b1.run", "b.tearDown",
		"b.suiteTearDown",
	}, f.trace.calls)

	assert.Equal(t, exitcodes.Success, exitcodes.Status(f.collection))
}

func TestRunnerReporterEventOrder(t *testing.T) {
	f := newFixture(t)
	f.run(t, Config{KeepGoing: true})

	var events []string
	for _, e := range f.reporter.Events() {
		switch e.Method {
		case "EnterSuite", "LeaveSuite", "AnnounceTestStart", "PutResult":
			events = append(events, e.Method+":"+e.UID)
		}
	}
	assert.Equal(t, []string{
		"EnterSuite:a",
		"AnnounceTestStart:a1", "PutResult:a1",
		"AnnounceTestStart:a2",
		"LeaveSuite:a", "PutResult:a2",
		"EnterSuite:b",
		"AnnounceTestStart:b1",
		"LeaveSuite:b", "PutResult:b1",
	}, events)
}

func TestRunnerSetUpFailure(t *testing.T) {
	f := newFixture(t)
	f.errs["a.setUp"] = errors.New("fixture broke")
	f.run(t, Config{KeepGoing: true})

	a1 := f.test("a1").Result()
	assert.Equal(t, types.StateBadSetup, a1.State)
	assert.Equal(t, types.StateBadSetup, a1.Reason)

	// The body never ran but the test's own tearDown did, exactly once per
	// attempt.
	assert.NotContains(t, f.trace.calls, "a1.run")
	count := 0
	for _, call := range f.trace.calls {
		if call == "a.tearDown" {
			count++
		}
	}
	assert.Equal(t, 2, count, "one tearDown per test attempt in suite a")

	assert.Equal(t, exitcodes.SetupFailure, exitcodes.Status(f.collection))
}

func TestRunnerStopsAfterFailureWithoutKeepGoing(t *testing.T) {
	f := newFixture(t)
	f.errs["a1.run"] = errors.New("boom")
	f.run(t, Config{KeepGoing: false})

	assert.Equal(t, types.StateFail, f.test("a1").State())
	assert.Equal(t, types.StateSkipped, f.test("a2").State())
	assert.Equal(t, types.StateSkipped, f.test("b1").State())

	// Skipped tests never reach their fixtures.
	assert.NotContains(t, f.trace.calls, "a2.run")
	assert.NotContains(t, f.trace.calls, "b.setUp")

	assert.Equal(t, exitcodes.TestFailure, exitcodes.Status(f.collection))
}

func TestRunnerKeepGoingRunsEverything(t *testing.T) {
	f := newFixture(t)
	f.errs["a1.run"] = errors.New("boom")
	result := f.run(t, Config{KeepGoing: true})

	assert.Equal(t, 3, result.Ran)
	assert.Equal(t, types.StateFail, f.test("a1").State())
	assert.Equal(t, types.StatePass, f.test("a2").State())
	assert.Equal(t, types.StatePass, f.test("b1").State())
}

func TestRunnerSuiteSetUpFailure(t *testing.T) {
	f := newFixture(t)
	f.errs["a.suiteSetUp"] = errors.New("suite fixture broke")
	f.run(t, Config{KeepGoing: true})

	// The test that triggered the failed entry explains why it never ran.
	a1 := f.test("a1").Result()
	assert.Equal(t, types.StateNotRun, a1.State)
	assert.Equal(t, types.StateBadSuiteSetup, a1.Reason)

	// Later tests in the latched suite short-circuit to SKIPPED.
	assert.Equal(t, types.StateSkipped, f.test("a2").State())

	// Suite b is unaffected with keep-going on.
	assert.Equal(t, types.StatePass, f.test("b1").State())

	// The entered suite is still torn down despite its failed setup.
	assert.Contains(t, f.trace.calls, "a.suiteTearDown")
	assert.NotContains(t, f.trace.calls, "a.setUp")

	assert.Equal(t, exitcodes.SetupFailure, exitcodes.Status(f.collection)&exitcodes.SetupFailure)
}

func TestRunnerExitSuite(t *testing.T) {
	f := newFixture(t)
	f.errs["a1.run"] = &types.ExitSuiteSignal{Reason: "nothing more to check"}
	f.run(t, Config{KeepGoing: false})

	assert.Equal(t, types.StateExitSuite, f.test("a1").State())
	assert.Equal(t, types.StateSkipped, f.test("a2").State())
	// A deliberate suite exit does not stop the run, even without
	// keep-going.
	assert.Equal(t, types.StatePass, f.test("b1").State())

	// Control signals never contribute to the exit status.
	assert.Equal(t, exitcodes.Success, exitcodes.Status(f.collection))
}

func TestRunnerExitAll(t *testing.T) {
	f := newFixture(t)
	f.errs["a1.run"] = &types.ExitAllSignal{}
	result := f.run(t, Config{KeepGoing: true})

	assert.True(t, result.Stopped)
	assert.Equal(t, types.StateExitAll, f.test("a1").State())
	// Remaining tests are left NOT_RUN, not skipped.
	assert.Equal(t, types.StateNotRun, f.test("a2").State())
	assert.Equal(t, types.StateNotRun, f.test("b1").State())

	// The whole suite chain was unwound before stopping.
	assert.Contains(t, f.trace.calls, "a.suiteTearDown")

	assert.Equal(t, exitcodes.Success, exitcodes.Status(f.collection))
}

func TestRunnerTraitShortCircuits(t *testing.T) {
	t.Run("broken skipped by default", func(t *testing.T) {
		f := newFixture(t)
		f.test("a1").Traits.Broken = true
		f.run(t, Config{KeepGoing: true})
		assert.Equal(t, types.StateSkipped, f.test("a1").State())
		assert.NotContains(t, f.trace.calls, "a1.run")
	})

	t.Run("broken runs when enabled", func(t *testing.T) {
		f := newFixture(t)
		f.test("a1").Traits.Broken = true
		f.run(t, Config{KeepGoing: true, RunBroken: true})
		assert.Equal(t, types.StatePass, f.test("a1").State())
	})

	t.Run("wrong platform is a selection outcome, not a failure", func(t *testing.T) {
		f := newFixture(t)
		f.test("a1").Traits.Platform = "nonesuch-os"
		result := f.run(t, Config{KeepGoing: false})

		assert.Equal(t, types.StateDisabled, f.test("a1").State())
		assert.False(t, f.test("a1").HasFailed())
		assert.NotContains(t, f.trace.calls, "a1.run")

		// The rest of the run proceeds even without keep-going, and the
		// exit status stays clean.
		assert.False(t, result.Stopped)
		assert.Equal(t, types.StatePass, f.test("a2").State())
		assert.Equal(t, types.StatePass, f.test("b1").State())
		assert.Equal(t, exitcodes.Success, exitcodes.Status(f.collection))
	})

	t.Run("todo recorded without execution", func(t *testing.T) {
		f := newFixture(t)
		f.test("a1").Traits.Todo = true
		f.run(t, Config{KeepGoing: true})
		assert.Equal(t, types.StateTodo, f.test("a1").State())
		assert.NotContains(t, f.trace.calls, "a1.run")
		assert.NotContains(t, f.trace.calls, "a.setUp")
	})
}

func TestRunnerNeverEnteredSuiteIsNotLeft(t *testing.T) {
	f := newFixture(t)
	f.errs["a1.run"] = errors.New("boom")
	f.run(t, Config{KeepGoing: false})

	// Suite b latched before entry: its setup never ran, so there is no
	// teardown and no LeaveSuite event for it.
	assert.NotContains(t, f.trace.calls, "b.suiteSetUp")
	assert.NotContains(t, f.trace.calls, "b.suiteTearDown")
	for _, e := range f.reporter.Events() {
		if e.Method == "LeaveSuite" {
			assert.NotEqual(t, "b", e.UID)
		}
	}
	assert.Contains(t, f.reporter.Methods(), "LeaveSuite", "the entered suite is still left")
}

func TestRunnerTeardownFailureDoesNotFailTest(t *testing.T) {
	f := newFixture(t)
	f.errs["a.tearDown"] = errors.New("cleanup hiccup")
	f.run(t, Config{KeepGoing: true})

	// The tests still pass; the problem surfaces in the exit status.
	assert.Equal(t, types.StatePass, f.test("a1").State())
	assert.False(t, f.test("a1").HasFailed())
	assert.True(t, f.test("a1").HasRunProblem())
	assert.Equal(t, exitcodes.TeardownFailure, exitcodes.Status(f.collection))
}

func TestRunnerUserInterruptStopsRun(t *testing.T) {
	f := newFixture(t)
	f.errs["a1.run"] = context.Canceled
	result := f.run(t, Config{KeepGoing: true})

	assert.True(t, result.Stopped)
	res := f.test("a1").Result()
	assert.Equal(t, types.StateUserStopped, res.ReportCode())
	assert.Equal(t, types.StateNotRun, f.test("a2").State())
}

func TestRunnerBugResultCounts(t *testing.T) {
	f := newFixture(t)
	f.test("a1").Traits.Bug = true
	f.errs["a1.run"] = errors.New("known breakage")
	f.test("a2").Traits.Bug = true
	f.run(t, Config{KeepGoing: true})

	assert.Equal(t, types.StateBug, f.test("a1").State())
	assert.Equal(t, types.StateBugPass, f.test("a2").State())
	// Expected failures never stop the run or taint the exit status.
	assert.Equal(t, exitcodes.Success, exitcodes.Status(f.collection))
}

func TestRunnerSummariseFailOnlyVisitsProblems(t *testing.T) {
	f := newFixture(t)
	f.errs["a2.run"] = errors.New("boom")
	cfg := Config{KeepGoing: true, Collection: f.collection, Reporter: f.reporter}
	r, err := NewRunner(cfg)
	require.NoError(t, err)
	_, err = r.RunTests(context.Background())
	require.NoError(t, err)

	before := len(f.reporter.Events())
	r.Summarise(reporting.ModeFailSummary)

	var summarised []string
	for _, e := range f.reporter.Events()[before:] {
		if e.Method == "SummariseResult" {
			summarised = append(summarised, e.UID)
		}
	}
	assert.Equal(t, []string{"a2"}, summarised)
}

func TestRunnerJournalRecordsEveryProcessedTest(t *testing.T) {
	f := newFixture(t)
	j := &fakeJournal{states: make(map[string]types.State)}
	f.run(t, Config{KeepGoing: true, Journal: j})

	assert.True(t, j.loaded)
	assert.Len(t, j.states, 3)
	assert.Equal(t, types.StatePass, j.states["b1"])
}

type fakeJournal struct {
	loaded bool
	states map[string]types.State
}

func (j *fakeJournal) Load(c *types.Collection) error {
	j.loaded = true
	return nil
}

func (j *fakeJournal) Record(t *types.Test) error {
	j.states[t.UID] = t.State()
	return nil
}

func (j *fakeJournal) AverageTime(uid string) (float64, bool) {
	return 0, false
}
