// Package exitcodes defines the process exit status testfold reports.
package exitcodes

import (
	"github.com/testfold/testfold/types"
)

// The exit status is a bitmask, so a single run can report several distinct
// problem classes at once:
//
// * Success (0): every processed test ran cleanly
// * TestFailure (bit 0): a test body or post-check failed
// * SetupFailure (bit 1): a setUp or suite-setUp failed
// * TeardownFailure (bit 2): a tearDown or suite-tearDown failed
const (
	Success         = 0
	TestFailure     = 1
	SetupFailure    = 2
	TeardownFailure = 4

	// RuntimeErr sits outside the result bitmask and marks operational
	// failures: bad manifest, unreadable journal, worker launch errors.
	RuntimeErr = 16
)

// runProblem reports a genuine body/post-check problem. Deliberate control
// signals and the skip markers never contribute to the exit status.
func runProblem(s types.State) bool {
	switch s {
	case types.StateExitSuite, types.StateExitAll:
		return false
	}
	return s.IsProblem()
}

// Status folds every test's latest run record into the exit bitmask.
func Status(c *types.Collection) int {
	status := Success
	for _, t := range c.Tests() {
		rec := t.RunRecord()
		if rec == nil {
			continue
		}

		for _, phase := range []types.Phase{types.PhaseRun, types.PhasePostCheck} {
			if step := rec.Step(phase); step != nil && runProblem(step.Result) {
				status |= TestFailure
			}
		}

		if step := rec.Step(types.PhaseSetUp); step != nil && step.Result.IsProblem() {
			status |= SetupFailure
		}
		for _, step := range rec.Steps(types.PhaseSuiteSetUp) {
			if step.Result.IsProblem() {
				status |= SetupFailure
			}
		}

		if step := rec.Step(types.PhaseTearDown); step != nil && step.Result.IsProblem() {
			status |= TeardownFailure
		}
		for _, step := range rec.Steps(types.PhaseSuiteTearDown) {
			if step.Result.IsProblem() {
				status |= TeardownFailure
			}
		}
	}
	return status
}
