package runner

import (
	"context"
	"errors"
	"fmt"

	"github.com/testfold/testfold/types"
)

// Executor performs one failure-capturing invocation of a phase function
// plus an optional post-function, and classifies the outcome into the
// phase's StepRecord. Nothing raised by the phase escapes an Executor.
type Executor struct {
	fn       types.PhaseFunc
	postFn   types.PhaseFunc
	test     *types.Test
	phase    types.Phase
	watchdog *Watchdog
}

// NewExecutor wraps fn for the named phase of test. postFn, when non-nil,
// runs after fn within the same invocation (used for post-setup hooks).
func NewExecutor(fn types.PhaseFunc, test *types.Test, phase types.Phase, watchdog *Watchdog) *Executor {
	return &Executor{fn: fn, test: test, phase: phase, watchdog: watchdog}
}

// WithPost attaches a post-function to the executor.
func (e *Executor) WithPost(postFn types.PhaseFunc) *Executor {
	e.postFn = postFn
	return e
}

// Phase returns the phase this executor records against.
func (e *Executor) Phase() types.Phase {
	return e.phase
}

// Invoke runs the wrapped function once and fills in a new StepRecord on the
// test's current run attempt.
func (e *Executor) Invoke(ctx context.Context) *types.StepRecord {
	rec := e.test.AddStep(e.phase)
	err := e.call(ctx)
	Classify(rec, err, e.test, e.phase)
	return rec
}

// InvokeInto runs the wrapped function and fills in rec instead of adding a
// new record; used when an outcome computed elsewhere (an isolated worker)
// must land in an already-created record.
func (e *Executor) InvokeInto(ctx context.Context, rec *types.StepRecord) {
	err := e.call(ctx)
	Classify(rec, err, e.test, e.phase)
}

func (e *Executor) call(ctx context.Context) (err error) {
	defer func() {
		if val := recover(); val != nil {
			err = types.CapturePanic(val)
		}
	}()
	if err := e.watchdog.Bound(ctx, e.fn); err != nil {
		return err
	}
	if e.postFn != nil {
		return e.watchdog.Bound(ctx, e.postFn)
	}
	return nil
}

// Classify maps the error returned by a phase invocation onto the record's
// (result, reason) pair, per the fixed outcome taxonomy. Control signals are
// not failures: an exit-suite signal latches the test's suites via the
// caller, an exit-all signal halts the run after cleanup.
func Classify(rec *types.StepRecord, err error, test *types.Test, phase types.Phase) {
	if err == nil {
		rec.Result = types.StatePass
		if test.Traits.Bug && phase == types.PhaseRun {
			rec.Result = types.StateBugPass
		}
		return
	}

	var exitSuite *types.ExitSuiteSignal
	var exitAll *types.ExitAllSignal
	var timeout *TimeoutError
	var failure *types.Failure

	switch {
	case errors.As(err, &exitSuite):
		rec.Result = types.StateExitSuite
		rec.Exc = types.CaptureFailure(err)

	case errors.As(err, &exitAll):
		rec.Result = types.StateExitAll
		rec.Exc = types.CaptureFailure(err)

	case errors.Is(err, context.Canceled):
		fail(rec, test, phase, &types.Failure{
			Kind:    "interrupt",
			Message: fmt.Sprintf("interrupted by user: %v", err),
		})
		if rec.Result == types.StateFail {
			rec.Reason = types.StateUserStopped
		}
		test.StopAll = true

	case errors.As(err, &timeout):
		fail(rec, test, phase, &types.Failure{
			Kind:    "timeout",
			Message: fmt.Sprintf("test timed out: %v", err),
		})

	case errors.As(err, &failure):
		fail(rec, test, phase, failure)

	default:
		fail(rec, test, phase, types.CaptureFailure(err))
	}

	if rec.Exc != nil {
		rec.Exc.Relocate(test.Dir)
	}
}

// fail marks the record failed, unless the test is a known bug and this is
// the run phase, in which case the failure was expected.
func fail(rec *types.StepRecord, test *types.Test, phase types.Phase, exc *types.Failure) {
	if test.Traits.Bug && phase == types.PhaseRun {
		rec.Result = types.StateBug
		rec.Exc = exc
		return
	}
	rec.Result = types.StateFail
	rec.Reason = types.StateFail
	rec.Exc = exc
}
