package reporting

import (
	"github.com/testfold/testfold/types"
)

// Mode tells reporters which part of a run they are rendering, so the same
// reporter can format live progress and the post-run summaries differently.
type Mode string

const (
	ModeRun         Mode = "RUN"
	ModeRunSummary  Mode = "RUN-SUMMARY"
	ModeFailSummary Mode = "FAIL-SUMMARY"
	ModeListing     Mode = "LISTING"
)

// Reporter receives the scheduling events of a run in execution order. When a
// test runs in an isolated worker the controller replays the worker's reporter
// calls through the same interface, so reporters never observe out-of-order
// events.
type Reporter interface {
	// SetMode switches the rendering mode for subsequent events.
	SetMode(mode Mode)

	// SetField publishes a run-level annotation (run id, seed, journal path).
	SetField(name, value string)

	// EnterSuite fires when the walk first reaches a test under the suite.
	EnterSuite(s *types.Suite, level int)

	// LeaveSuite fires when the walk moves past the suite's last test.
	LeaveSuite(s *types.Suite, level int)

	// AnnounceTestStart fires before the test's setUp phase.
	AnnounceTestStart(t *types.Test, level int)

	// PutResult fires once the test's scalar phases have completed.
	PutResult(t *types.Test)

	// SummariseResult renders one test line in a summary walk.
	SummariseResult(t *types.Test, level int)

	// SummariseSuiteResult renders one suite line, with its aggregate result,
	// in a summary walk.
	SummariseSuiteResult(s *types.Suite, result types.Result, level int)

	// Finish flushes any buffered output at the end of the run.
	Finish() error
}

// Multi fans every event out to a set of reporters, in registration order.
type Multi struct {
	reporters []Reporter
}

// NewMulti wraps the given reporters. A Multi with no reporters is a no-op.
func NewMulti(reporters ...Reporter) *Multi {
	return &Multi{reporters: reporters}
}

// Add appends another reporter to the fan-out.
func (m *Multi) Add(r Reporter) {
	m.reporters = append(m.reporters, r)
}

func (m *Multi) SetMode(mode Mode) {
	for _, r := range m.reporters {
		r.SetMode(mode)
	}
}

func (m *Multi) SetField(name, value string) {
	for _, r := range m.reporters {
		r.SetField(name, value)
	}
}

func (m *Multi) EnterSuite(s *types.Suite, level int) {
	for _, r := range m.reporters {
		r.EnterSuite(s, level)
	}
}

func (m *Multi) LeaveSuite(s *types.Suite, level int) {
	for _, r := range m.reporters {
		r.LeaveSuite(s, level)
	}
}

func (m *Multi) AnnounceTestStart(t *types.Test, level int) {
	for _, r := range m.reporters {
		r.AnnounceTestStart(t, level)
	}
}

func (m *Multi) PutResult(t *types.Test) {
	for _, r := range m.reporters {
		r.PutResult(t)
	}
}

func (m *Multi) SummariseResult(t *types.Test, level int) {
	for _, r := range m.reporters {
		r.SummariseResult(t, level)
	}
}

func (m *Multi) SummariseSuiteResult(s *types.Suite, result types.Result, level int) {
	for _, r := range m.reporters {
		r.SummariseSuiteResult(s, result, level)
	}
}

func (m *Multi) Finish() error {
	var firstErr error
	for _, r := range m.reporters {
		if err := r.Finish(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

var _ Reporter = (*Multi)(nil)
