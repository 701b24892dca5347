package types

import (
	"fmt"
	"time"
)

// Phase names a step within one execution attempt of a test. The scalar
// phases appear at most once per RunRecord; the suite phases accumulate one
// entry per ancestor suite entered or exited for the test.
type Phase string

const (
	PhaseSetUp        Phase = "setUp"
	PhaseTearDown     Phase = "tearDown"
	PhasePrevTearDown Phase = "prevTearDown"
	PhaseRun          Phase = "run"
	PhasePostCheck    Phase = "postCheck"

	PhaseSuiteSetUp        Phase = "suiteSetUp"
	PhaseSuiteTearDown     Phase = "suiteTearDown"
	PhasePrevSuiteTearDown Phase = "prevSuiteTearDown"
)

// IsList reports whether the phase accumulates multiple records per run.
func (p Phase) IsList() bool {
	switch p {
	case PhaseSuiteSetUp, PhaseSuiteTearDown, PhasePrevSuiteTearDown:
		return true
	}
	return false
}

// StepRecord stores the outcome of a single phase of a single test attempt.
type StepRecord struct {
	Result   State
	Reason   State
	Exc      *Failure
	Reported bool
}

// NewStepRecord returns a record in its initial, not-run state.
func NewStepRecord() *StepRecord {
	return &StepRecord{Result: StateNotRun, Reason: StateNone}
}

// State returns the record's primary outcome.
func (r *StepRecord) State() State {
	return r.Result
}

// HasFailed reports whether the phase ended in a genuine failure.
func (r *StepRecord) HasFailed() bool {
	return r.Result == StateFail || r.Result == StateBadSetup
}

func (r *StepRecord) String() string {
	return fmt.Sprintf("StepRecord: %s/%s", r.Result, r.Reason)
}

// RunRecord collects the StepRecords of one complete attempt to run a single
// test. Its state and result are never stored; they are derived on demand
// from the phase records.
type RunRecord struct {
	StartedAt time.Time
	Duration  time.Duration

	setUp        *StepRecord
	tearDown     *StepRecord
	prevTearDown *StepRecord
	run          *StepRecord
	postCheck    *StepRecord

	suiteSetUp        []*StepRecord
	suiteTearDown     []*StepRecord
	prevSuiteTearDown []*StepRecord
}

// NewRunRecord creates an empty run record stamped with the current time.
func NewRunRecord() *RunRecord {
	return &RunRecord{StartedAt: time.Now()}
}

// AddStep creates and registers the record for the named phase. A scalar
// phase may be added at most once per run; list phases append in call order.
func (rr *RunRecord) AddStep(phase Phase) *StepRecord {
	rec := NewStepRecord()
	switch phase {
	case PhaseSetUp:
		rr.mustBeUnset(rr.setUp, phase)
		rr.setUp = rec
	case PhaseTearDown:
		rr.mustBeUnset(rr.tearDown, phase)
		rr.tearDown = rec
	case PhasePrevTearDown:
		rr.mustBeUnset(rr.prevTearDown, phase)
		rr.prevTearDown = rec
	case PhaseRun:
		rr.mustBeUnset(rr.run, phase)
		rr.run = rec
	case PhasePostCheck:
		rr.mustBeUnset(rr.postCheck, phase)
		rr.postCheck = rec
	case PhaseSuiteSetUp:
		rr.suiteSetUp = append(rr.suiteSetUp, rec)
	case PhaseSuiteTearDown:
		rr.suiteTearDown = append(rr.suiteTearDown, rec)
	case PhasePrevSuiteTearDown:
		rr.prevSuiteTearDown = append(rr.prevSuiteTearDown, rec)
	default:
		panic(fmt.Sprintf("unknown phase %q", phase))
	}
	return rec
}

func (rr *RunRecord) mustBeUnset(rec *StepRecord, phase Phase) {
	if rec != nil {
		panic(fmt.Sprintf("phase %q recorded twice in one run", phase))
	}
}

// Step returns the scalar record for phase, or nil if the phase was never
// reached. For list phases it returns the first failed entry, falling back
// to the first entry.
func (rr *RunRecord) Step(phase Phase) *StepRecord {
	switch phase {
	case PhaseSetUp:
		return rr.setUp
	case PhaseTearDown:
		return rr.tearDown
	case PhasePrevTearDown:
		return rr.prevTearDown
	case PhaseRun:
		return rr.run
	case PhasePostCheck:
		return rr.postCheck
	case PhaseSuiteSetUp:
		return firstProblemOrFirst(rr.suiteSetUp)
	case PhaseSuiteTearDown:
		return firstProblemOrFirst(rr.suiteTearDown)
	case PhasePrevSuiteTearDown:
		return firstProblemOrFirst(rr.prevSuiteTearDown)
	}
	return nil
}

// Steps returns all records of a list phase in execution order.
func (rr *RunRecord) Steps(phase Phase) []*StepRecord {
	switch phase {
	case PhaseSuiteSetUp:
		return rr.suiteSetUp
	case PhaseSuiteTearDown:
		return rr.suiteTearDown
	case PhasePrevSuiteTearDown:
		return rr.prevSuiteTearDown
	}
	return nil
}

func firstProblemOrFirst(recs []*StepRecord) *StepRecord {
	for _, rec := range recs {
		if rec.HasFailed() {
			return rec
		}
	}
	if len(recs) > 0 {
		return recs[0]
	}
	return nil
}

// State derives the run's primary state. A failed setUp dominates, then the
// run phase if one exists, otherwise the test never ran.
func (rr *RunRecord) State() State {
	if rr.setUp != nil {
		if rr.setUp.Result == StateNotRun {
			return StateNotRun
		}
		switch rr.setUp.Result {
		case StatePass, StateBug, StateBugPass:
		default:
			return StateBadSetup
		}
	}
	if rr.run != nil {
		return rr.run.Result
	}
	return StateNotRun
}

// Result derives the full (state, reason) pair for the run, distinguishing
// why a test never ran: its own setUp failed, or an ancestor suite's did.
func (rr *RunRecord) Result() Result {
	if rr.setUp != nil && rr.setUp.Result != StatePass {
		return Result{State: StateBadSetup, Reason: StateBadSetup}
	}
	if rr.run != nil {
		return Result{State: rr.run.Result, Reason: rr.run.Reason}
	}
	for _, rec := range rr.suiteSetUp {
		if rec.Result != StatePass {
			return Result{State: StateNotRun, Reason: StateBadSuiteSetup}
		}
	}
	if rr.setUp != nil && rr.setUp.Result != StatePass {
		return Result{State: StateNotRun, Reason: StateBadSetup}
	}
	return Result{State: StateNotRun, Reason: StateNone}
}

// HasRunProblem reports whether any phase of the attempt, mandatory cleanup
// included, ended in a problem state.
func (rr *RunRecord) HasRunProblem() bool {
	for _, rec := range []*StepRecord{rr.tearDown, rr.setUp, rr.run, rr.postCheck} {
		if rec != nil && rec.Result.IsProblem() {
			return true
		}
	}
	for _, list := range [][]*StepRecord{rr.suiteTearDown, rr.suiteSetUp} {
		for _, rec := range list {
			if rec.Result.IsProblem() {
				return true
			}
		}
	}
	return false
}

// HasFailed reports whether the attempt counts as a proper test failure,
// which excludes teardown-only problems.
func (rr *RunRecord) HasFailed() bool {
	for _, rec := range []*StepRecord{rr.setUp, rr.run} {
		if rec != nil && rec.Result.IsProblem() {
			return true
		}
	}
	for _, rec := range rr.suiteSetUp {
		if rec.Result.IsProblem() {
			return true
		}
	}
	return false
}

// IsRunnable reports whether a fixture phase is in a non-terminal problem
// state, meaning another attempt could still be worthwhile.
func (rr *RunRecord) IsRunnable() bool {
	records := []*StepRecord{
		firstProblemOrFirst(rr.suiteTearDown),
		rr.tearDown,
		firstProblemOrFirst(rr.suiteSetUp),
		rr.setUp,
	}
	for _, rec := range records {
		if rec == nil {
			continue
		}
		switch rec.Result {
		case StatePass, StateSkipped, StateNotRun:
		default:
			return true
		}
	}
	return false
}

// PhaseRecord returns the most pertinent (phase, record) pair for reporting:
// the latest of tearDown, run or setUp that exists, else a suite setup entry.
func (rr *RunRecord) PhaseRecord() (Phase, *StepRecord) {
	if rr.tearDown != nil {
		return PhaseTearDown, rr.tearDown
	}
	if rr.run != nil {
		return PhaseRun, rr.run
	}
	if rr.setUp != nil {
		return PhaseSetUp, rr.setUp
	}
	if rec := firstProblemOrFirst(rr.suiteSetUp); rec != nil {
		return PhaseSuiteSetUp, rec
	}
	return "", nil
}
