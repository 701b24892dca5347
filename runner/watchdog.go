package runner

import (
	"context"
	"fmt"
	"time"

	"code.cloudfoundry.org/clock"

	"github.com/testfold/testfold/types"
)

// TimeoutError reports that a watchdog-bounded call exceeded its budget.
type TimeoutError struct {
	After time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("timed out after %v", e.After)
}

// Watchdog bounds a phase invocation by wall-clock time. A zero timeout
// means unbounded. The clock is injectable so tests can drive expiry with a
// fake clock.
type Watchdog struct {
	timeout time.Duration
	clk     clock.Clock
}

// NewWatchdog creates a watchdog with the given budget. A nil clk uses the
// real clock.
func NewWatchdog(timeout time.Duration, clk clock.Clock) *Watchdog {
	if clk == nil {
		clk = clock.NewClock()
	}
	return &Watchdog{timeout: timeout, clk: clk}
}

// Timeout returns the configured budget.
func (w *Watchdog) Timeout() time.Duration {
	if w == nil {
		return 0
	}
	return w.timeout
}

// Bound invokes fn, interrupting it when the budget expires. On expiry the
// bounded call's context is cancelled, fn's goroutine is abandoned and a
// TimeoutError is returned. The timer never outlives the call.
func (w *Watchdog) Bound(ctx context.Context, fn types.PhaseFunc) error {
	if fn == nil {
		return nil
	}
	if w == nil || w.timeout <= 0 {
		return fn(ctx)
	}

	callCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if val := recover(); val != nil {
				done <- types.CapturePanic(val)
			}
		}()
		done <- fn(callCtx)
	}()

	timer := w.clk.NewTimer(w.timeout)
	defer timer.Stop()

	select {
	case err := <-done:
		return err
	case <-timer.C():
		cancel()
		return &TimeoutError{After: w.timeout}
	case <-ctx.Done():
		return ctx.Err()
	}
}
