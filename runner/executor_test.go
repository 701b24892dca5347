package runner

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/testfold/testfold/types"
)

func newTestWithRun(traits types.Traits) *types.Test {
	t := &types.Test{UID: "t", Traits: traits}
	t.StartNewRun()
	return t
}

func TestExecutorSuccess(t *testing.T) {
	tst := newTestWithRun(types.Traits{})
	fn := func(ctx context.Context) error { return nil }

	rec := NewExecutor(fn, tst, types.PhaseRun, nil).Invoke(context.Background())
	assert.Equal(t, types.StatePass, rec.Result)
	assert.Equal(t, types.StateNone, rec.Reason)
	assert.Nil(t, rec.Exc)
}

func TestExecutorNilPhaseIsTrivialPass(t *testing.T) {
	tst := newTestWithRun(types.Traits{})
	rec := NewExecutor(nil, tst, types.PhaseSetUp, nil).Invoke(context.Background())
	assert.Equal(t, types.StatePass, rec.Result)
}

func TestExecutorBugClassification(t *testing.T) {
	t.Run("expected failure is BUG", func(t *testing.T) {
		tst := newTestWithRun(types.Traits{Bug: true})
		fn := func(ctx context.Context) error { return errors.New("still broken") }
		rec := NewExecutor(fn, tst, types.PhaseRun, nil).Invoke(context.Background())
		assert.Equal(t, types.StateBug, rec.Result)
	})

	t.Run("unexpected pass is BUG_PASS", func(t *testing.T) {
		tst := newTestWithRun(types.Traits{Bug: true})
		fn := func(ctx context.Context) error { return nil }
		rec := NewExecutor(fn, tst, types.PhaseRun, nil).Invoke(context.Background())
		assert.Equal(t, types.StateBugPass, rec.Result)
	})

	t.Run("bug flag does not soften setUp failures", func(t *testing.T) {
		tst := newTestWithRun(types.Traits{Bug: true})
		fn := func(ctx context.Context) error { return errors.New("boom") }
		rec := NewExecutor(fn, tst, types.PhaseSetUp, nil).Invoke(context.Background())
		assert.Equal(t, types.StateFail, rec.Result)
	})
}

func TestExecutorControlSignals(t *testing.T) {
	t.Run("exit suite", func(t *testing.T) {
		tst := newTestWithRun(types.Traits{})
		fn := func(ctx context.Context) error { return &types.ExitSuiteSignal{Reason: "done here"} }
		rec := NewExecutor(fn, tst, types.PhaseRun, nil).Invoke(context.Background())
		assert.Equal(t, types.StateExitSuite, rec.Result)
	})

	t.Run("exit all", func(t *testing.T) {
		tst := newTestWithRun(types.Traits{})
		fn := func(ctx context.Context) error { return &types.ExitAllSignal{} }
		rec := NewExecutor(fn, tst, types.PhaseRun, nil).Invoke(context.Background())
		assert.Equal(t, types.StateExitAll, rec.Result)
	})
}

func TestExecutorUserInterrupt(t *testing.T) {
	tst := newTestWithRun(types.Traits{})
	fn := func(ctx context.Context) error { return context.Canceled }

	rec := NewExecutor(fn, tst, types.PhaseRun, nil).Invoke(context.Background())
	assert.Equal(t, types.StateFail, rec.Result)
	assert.Equal(t, types.StateUserStopped, rec.Reason)
	assert.True(t, tst.StopAll, "interrupt must latch the stop-everything flag")
}

func TestExecutorTimeout(t *testing.T) {
	tst := newTestWithRun(types.Traits{})
	fn := func(ctx context.Context) error { return &TimeoutError{} }

	rec := NewExecutor(fn, tst, types.PhaseRun, nil).Invoke(context.Background())
	assert.Equal(t, types.StateFail, rec.Result)
	require.NotNil(t, rec.Exc)
	assert.Equal(t, "timeout", rec.Exc.Kind)
}

func TestExecutorFailureObjectPassesThrough(t *testing.T) {
	tst := newTestWithRun(types.Traits{})
	failure := types.NewAssertionFailure("expected 1, got 2")
	fn := func(ctx context.Context) error { return failure }

	rec := NewExecutor(fn, tst, types.PhaseRun, nil).Invoke(context.Background())
	assert.Equal(t, types.StateFail, rec.Result)
	assert.Same(t, failure, rec.Exc)
}

func TestExecutorGenericErrorIsCaptured(t *testing.T) {
	tst := newTestWithRun(types.Traits{})
	fn := func(ctx context.Context) error { return errors.New("database gone") }

	rec := NewExecutor(fn, tst, types.PhaseRun, nil).Invoke(context.Background())
	assert.Equal(t, types.StateFail, rec.Result)
	require.NotNil(t, rec.Exc)
	assert.Contains(t, rec.Exc.Message, "database gone")
	assert.NotEmpty(t, rec.Exc.Frames, "failures carry a stack snapshot")
}

func TestExecutorRecoversPanics(t *testing.T) {
	tst := newTestWithRun(types.Traits{})
	fn := func(ctx context.Context) error { panic("unexpected nil") }

	rec := NewExecutor(fn, tst, types.PhaseRun, nil).Invoke(context.Background())
	assert.Equal(t, types.StateFail, rec.Result)
	require.NotNil(t, rec.Exc)
	assert.Contains(t, rec.Exc.Message, "unexpected nil")
}

func TestExecutorPostFunctionRuns(t *testing.T) {
	tst := newTestWithRun(types.Traits{})
	var order []string
	fn := func(ctx context.Context) error { order = append(order, "main"); return nil }
	post := func(ctx context.Context) error { order = append(order, "post"); return nil }

	rec := NewExecutor(fn, tst, types.PhaseSetUp, nil).WithPost(post).Invoke(context.Background())
	assert.Equal(t, types.StatePass, rec.Result)
	assert.Equal(t, []string{"main", "post"}, order)
}

func TestExecutorPostFunctionFailureFailsPhase(t *testing.T) {
	tst := newTestWithRun(types.Traits{})
	fn := func(ctx context.Context) error { return nil }
	post := func(ctx context.Context) error { return errors.New("post-setup check failed") }

	rec := NewExecutor(fn, tst, types.PhaseSetUp, nil).WithPost(post).Invoke(context.Background())
	assert.Equal(t, types.StateFail, rec.Result)
}
