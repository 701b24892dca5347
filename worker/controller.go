package worker

import (
	"context"
	"fmt"
	"io"
	"time"

	"code.cloudfoundry.org/clock"
	"github.com/ethereum/go-ethereum/log"

	"github.com/testfold/testfold/reporting"
	"github.com/testfold/testfold/types"
)

// waitBudget is how long the controller waits for a worker process to exit
// after its final message before giving up on it.
const waitBudget = 5 * time.Second

// Transport is the controller's handle on a launched worker: a bidirectional
// message stream plus the means to reap or kill the process behind it.
type Transport interface {
	io.ReadWriter

	// Wait blocks until the worker exits and returns its exit error.
	Wait() error

	// Terminate forcibly stops the worker.
	Terminate() error
}

// LaunchFunc starts a worker for the given test uid.
type LaunchFunc func(ctx context.Context, uid string) (Transport, error)

// Controller implements process isolation for the scheduler. It launches one
// worker per isolated test and replays the worker's messages in arrival
// order, so reporter events and phase outcomes land exactly as an in-process
// run would have produced them.
type Controller struct {
	collection *types.Collection
	reporter   reporting.Reporter
	launch     LaunchFunc
	clk        clock.Clock
	log        log.Logger
}

// NewController wires the controller to the shared collection and reporter.
// A nil clk uses the real clock.
func NewController(c *types.Collection, rep reporting.Reporter, launch LaunchFunc, clk clock.Clock, logger log.Logger) *Controller {
	if clk == nil {
		clk = clock.NewClock()
	}
	if logger == nil {
		logger = log.New()
	}
	return &Controller{
		collection: c,
		reporter:   rep,
		launch:     launch,
		clk:        clk,
		log:        logger,
	}
}

// RunIsolated executes t's scalar phases in a worker process. On success the
// test's current run record holds the worker's phase outcomes; on error the
// caller classifies the error as the test's failure.
func (c *Controller) RunIsolated(ctx context.Context, t *types.Test) error {
	c.log.Debug("Launching worker", "test", t.UID)
	transport, err := c.launch(ctx, t.UID)
	if err != nil {
		return fmt.Errorf("failed to launch worker: %w", err)
	}

	gotResult := false
	readErr := c.replay(transport, t, &gotResult)

	if waitErr := c.reap(transport); waitErr != nil {
		c.log.Warn("Worker did not exit cleanly", "test", t.UID, "err", waitErr)
		if readErr == nil && !gotResult {
			readErr = waitErr
		}
	}

	if readErr != nil {
		return readErr
	}
	if !gotResult {
		return fmt.Errorf("worker exited without delivering results")
	}
	return nil
}

// replay consumes worker messages until the exit frame or stream end,
// dispatching each in order.
func (c *Controller) replay(transport Transport, t *types.Test, gotResult *bool) error {
	mr := NewMessageReader(transport)
	for {
		msg, err := mr.Read()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}

		switch msg.Kind {
		case KindReport:
			c.dispatch(msg)

		case KindResult:
			InstallSteps(t, msg.Steps)
			if rec := t.RunRecord(); rec != nil {
				rec.Duration = time.Duration(msg.DurationMS) * time.Millisecond
			}
			if msg.StopAll {
				t.StopAll = true
			}
			*gotResult = true

		case KindExit:
			if msg.Err != "" {
				return fmt.Errorf("worker failed: %s", msg.Err)
			}
			return nil

		default:
			return fmt.Errorf("unknown worker message kind %q", msg.Kind)
		}
	}
}

// dispatch forwards one proxied reporter call to the local reporter.
func (c *Controller) dispatch(msg *Message) {
	switch msg.Method {
	case MethodSetMode:
		c.reporter.SetMode(reporting.Mode(msg.Value))
	case MethodSetField:
		c.reporter.SetField(msg.Name, msg.Value)
	case MethodEnterSuite:
		if s := c.suiteByUID(msg.UID); s != nil {
			c.reporter.EnterSuite(s, msg.Level)
		}
	case MethodLeaveSuite:
		if s := c.suiteByUID(msg.UID); s != nil {
			c.reporter.LeaveSuite(s, msg.Level)
		}
	case MethodAnnounceTestStart:
		if t := c.collection.TestByUID(msg.UID); t != nil {
			c.reporter.AnnounceTestStart(t, msg.Level)
		}
	case MethodPutResult:
		if t := c.collection.TestByUID(msg.UID); t != nil {
			c.reporter.PutResult(t)
		}
	default:
		c.log.Warn("Dropping unknown reporter method from worker", "method", msg.Method)
	}
}

// reap waits for the worker within the wait budget, terminating it on
// overrun.
func (c *Controller) reap(transport Transport) error {
	done := make(chan error, 1)
	go func() {
		done <- transport.Wait()
	}()

	timer := c.clk.NewTimer(waitBudget)
	defer timer.Stop()

	select {
	case err := <-done:
		return err
	case <-timer.C():
		transport.Terminate()
		return fmt.Errorf("worker still running %v after final message", waitBudget)
	}
}

func (c *Controller) suiteByUID(uid string) *types.Suite {
	for _, s := range c.collection.Suites() {
		if s.UID == uid {
			return s
		}
	}
	return nil
}
