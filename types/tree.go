package types

import (
	"context"
	"fmt"
)

// historyLimit bounds how many completed run attempts a test retains.
const historyLimit = 5

// PhaseFunc is a single phase of a test: a setUp, the test body, a tearDown
// or a suite-level hook. A nil PhaseFunc is a no-op that trivially passes.
// Returning an error fails the phase; returning an ExitSuiteSignal or
// ExitAllSignal alters scheduling without counting as a failure.
type PhaseFunc func(ctx context.Context) error

// SuiteID is a handle into a Collection's suite arena.
type SuiteID int

// NoSuite marks the absence of a parent suite.
const NoSuite SuiteID = -1

// Test is a leaf of the test tree. Its fixture phases (setUp, tearDown,
// postCheck) come from the owning suite; the test itself only carries the
// body.
type Test struct {
	UID     string
	Number  int
	Summary string
	Traits  Traits

	// Run is the test body.
	Run PhaseFunc

	// Dir is the directory failures are reported relative to. Empty means
	// the owning suite's directory.
	Dir string

	// StopAll is latched when a phase is interrupted by the operator; the
	// scheduler consults it before starting the next test.
	StopAll bool

	parent  SuiteID
	history []*RunRecord
}

// Parent returns the handle of the owning suite.
func (t *Test) Parent() SuiteID {
	return t.parent
}

// StartNewRun opens a fresh RunRecord for a new execution attempt, discarding
// the oldest attempt beyond the history bound.
func (t *Test) StartNewRun() *RunRecord {
	rec := NewRunRecord()
	t.history = append(t.history, rec)
	if len(t.history) > historyLimit {
		t.history = t.history[len(t.history)-historyLimit:]
	}
	return rec
}

// AbortRun discards the current attempt, so history only ever holds
// completed attempts.
func (t *Test) AbortRun() {
	if len(t.history) > 0 {
		t.history = t.history[:len(t.history)-1]
	}
}

// AddStep adds a phase record to the current attempt.
func (t *Test) AddStep(phase Phase) *StepRecord {
	if len(t.history) == 0 {
		t.StartNewRun()
	}
	return t.history[len(t.history)-1].AddStep(phase)
}

// RunRecord returns the most recent attempt, or nil if the test never ran.
func (t *Test) RunRecord() *RunRecord {
	if len(t.history) == 0 {
		return nil
	}
	return t.history[len(t.history)-1]
}

// History returns all retained attempts, oldest first.
func (t *Test) History() []*RunRecord {
	return t.history
}

// State returns the derived state of the latest attempt.
func (t *Test) State() State {
	if rec := t.RunRecord(); rec != nil {
		return rec.State()
	}
	return StateNotRun
}

// Result returns the derived result of the latest attempt.
func (t *Test) Result() Result {
	if rec := t.RunRecord(); rec != nil {
		return rec.Result()
	}
	return Result{State: StateNotRun, Reason: StateNone}
}

// HasFailed reports whether the latest attempt failed properly.
func (t *Test) HasFailed() bool {
	if rec := t.RunRecord(); rec != nil {
		return rec.HasFailed()
	}
	return false
}

// HasRunProblem reports whether any phase of the latest attempt had a
// problem, teardown included.
func (t *Test) HasRunProblem() bool {
	if rec := t.RunRecord(); rec != nil {
		return rec.HasRunProblem()
	}
	return false
}

// SeedHistory installs a synthetic completed attempt whose run phase carries
// the given state. The journal uses this to restore prior outcomes so resume
// mode can skip previously passed tests.
func (t *Test) SeedHistory(state State) {
	rec := NewRunRecord()
	step := rec.AddStep(PhaseRun)
	step.Result = state
	t.history = append(t.history, rec)
}

// Suite is an internal node of the test tree. Its setUp/tearDown pair runs
// once per contained test; suiteSetUp/suiteTearDown run once per entry and
// exit of the suite itself.
type Suite struct {
	Name    string
	UID     string
	Summary string
	Dir     string

	SetUp     PhaseFunc
	PostSetUp PhaseFunc
	TearDown  PhaseFunc
	PostCheck PhaseFunc

	SuiteSetUp    PhaseFunc
	SuiteTearDown PhaseFunc

	// ForkAll requests process isolation for every test in the suite.
	ForkAll bool

	// SkipTests latches once the suite's setup fails or an exit-suite
	// signal fires; contained tests short-circuit to SKIPPED.
	SkipTests bool

	// Entered is true while the suite's setup has run and its teardown has
	// not; only entered suites are torn down.
	Entered bool

	id     SuiteID
	parent SuiteID
}

// ID returns the suite's handle within its Collection.
func (s *Suite) ID() SuiteID {
	return s.id
}

// Parent returns the parent suite handle, or NoSuite for a root.
func (s *Suite) Parent() SuiteID {
	return s.parent
}

// Reset clears the per-run latches.
func (s *Suite) Reset() {
	s.Entered = false
	s.SkipTests = false
}

// Collection owns every Test and Suite of a run and is the sole authority
// for parent and ancestor lookup. Tests and suites refer to each other only
// through SuiteID handles into the collection's arena.
type Collection struct {
	suites []*Suite
	tests  []*Test
}

// NewCollection returns an empty collection.
func NewCollection() *Collection {
	return &Collection{}
}

// AddSuite registers a suite under the given parent, returning its handle.
func (c *Collection) AddSuite(parent SuiteID, s *Suite) SuiteID {
	if parent != NoSuite {
		c.mustHaveSuite(parent)
	}
	s.id = SuiteID(len(c.suites))
	s.parent = parent
	c.suites = append(c.suites, s)
	return s.id
}

// AddTest registers a test under the given suite, in collection order.
func (c *Collection) AddTest(parent SuiteID, t *Test) *Test {
	c.mustHaveSuite(parent)
	t.parent = parent
	t.Number = len(c.tests) + 1
	if t.Dir == "" {
		t.Dir = c.suites[parent].Dir
	}
	c.tests = append(c.tests, t)
	return t
}

func (c *Collection) mustHaveSuite(id SuiteID) {
	if id < 0 || int(id) >= len(c.suites) {
		panic(fmt.Sprintf("unknown suite handle %d", id))
	}
}

// Suite resolves a suite handle.
func (c *Collection) Suite(id SuiteID) *Suite {
	c.mustHaveSuite(id)
	return c.suites[id]
}

// Tests returns all tests in collection order.
func (c *Collection) Tests() []*Test {
	return c.tests
}

// Suites returns all suites in registration order.
func (c *Collection) Suites() []*Suite {
	return c.suites
}

// TestByUID finds a test by its unique identifier.
func (c *Collection) TestByUID(uid string) *Test {
	for _, t := range c.tests {
		if t.UID == uid {
			return t
		}
	}
	return nil
}

// Ancestors returns the chain of suites enclosing t, oldest first.
func (c *Collection) Ancestors(t *Test) []*Suite {
	if t == nil {
		return nil
	}
	return c.suiteChain(t.parent)
}

func (c *Collection) suiteChain(id SuiteID) []*Suite {
	var chain []*Suite
	for id != NoSuite {
		s := c.Suite(id)
		chain = append(chain, s)
		id = s.parent
	}
	// Reverse in place: built leaf-first, returned oldest-first.
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain
}

// DiffAncestors returns the ancestors of t that are not shared with other,
// oldest first. A nil other shares nothing, so the full chain is returned.
func (c *Collection) DiffAncestors(t, other *Test) []*Suite {
	mine := c.Ancestors(t)
	theirs := c.Ancestors(other)
	shared := make(map[SuiteID]bool, len(theirs))
	for _, s := range theirs {
		shared[s.id] = true
	}
	var diff []*Suite
	for _, s := range mine {
		if !shared[s.id] {
			diff = append(diff, s)
		}
	}
	return diff
}

// Level returns the nesting depth of t: the number of enclosing suites.
func (c *Collection) Level(t *Test) int {
	return len(c.Ancestors(t))
}

// ShouldFork reports whether t's phases must run in an isolated worker.
func (c *Collection) ShouldFork(t *Test) bool {
	if t.Traits.Fork {
		return true
	}
	for _, s := range c.Ancestors(t) {
		if s.ForkAll {
			return true
		}
	}
	return false
}

// ChildStates gathers the states of a suite's direct children, both tests
// and sub-suites.
func (c *Collection) ChildStates(s *Suite) []State {
	var states []State
	for _, sub := range c.suites {
		if sub.parent == s.id {
			states = append(states, c.SuiteResult(sub).ReportCode())
		}
	}
	for _, t := range c.tests {
		if t.parent == s.id {
			states = append(states, t.State())
		}
	}
	return states
}

// SuiteResult derives a suite's aggregate result bottom-up from its direct
// children's states.
func (c *Collection) SuiteResult(s *Suite) Result {
	states := c.ChildStates(s)
	result := Result{State: StatePass, Reason: StateNone}
	if len(states) == 0 {
		result.State = StateNotRun
		return result
	}

	runCount := 0
	seen := make(map[State]bool, len(states))
	for _, st := range states {
		if st != StateNotRun {
			runCount++
		}
		seen[st] = true
	}

	switch {
	case seen[StateFail] || seen[StateChildFail] || seen[StateBadSetup]:
		result.State = StateChildFail
	case seen[StatePartRun]:
		result.State = StatePartRun
	case seen[StateNotRun]:
		if runCount > 0 {
			result.State = StatePartRun
		} else {
			result.State = StateNotRun
		}
	}
	return result
}

// HasFailures reports whether any test in the collection has failed.
func (c *Collection) HasFailures() bool {
	for _, t := range c.tests {
		if t.HasFailed() {
			return true
		}
	}
	return false
}

// ResetSuites clears every suite's per-run latches; called at the start of
// each full run.
func (c *Collection) ResetSuites() {
	for _, s := range c.suites {
		s.Reset()
	}
}
