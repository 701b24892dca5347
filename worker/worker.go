package worker

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/testfold/testfold/reporting"
	"github.com/testfold/testfold/runner"
	"github.com/testfold/testfold/types"
)

// Serve runs one test's scalar phases inside the current (child) process,
// streaming reporter events and the final phase outcomes back over transport.
// The collection must have been rebuilt identically to the controller's so
// uid lookup resolves the same test.
func Serve(ctx context.Context, transport io.ReadWriter, c *types.Collection, uid string, timeout time.Duration) error {
	mw := NewMessageWriter(transport)

	t := c.TestByUID(uid)
	if t == nil {
		msg := &Message{Kind: KindExit, Err: fmt.Sprintf("unknown test uid %q", uid)}
		mw.Write(msg)
		return fmt.Errorf("unknown test uid %q", uid)
	}

	t.StartNewRun()
	// Phase code reports through the proxy; the controller replays the
	// resulting frames into the real reporters in arrival order.
	ctx = reporting.WithReporter(ctx, NewProxyReporter(mw))
	wd := runner.NewWatchdog(timeout, nil)
	runner.ExecutePhases(ctx, c, t, wd)

	rec := t.RunRecord()
	result := &Message{
		Kind:       KindResult,
		UID:        uid,
		Steps:      EncodeSteps(rec),
		DurationMS: rec.Duration.Milliseconds(),
		StopAll:    t.StopAll,
	}
	if err := mw.Write(result); err != nil {
		return err
	}
	return mw.Write(&Message{Kind: KindExit})
}

// proxyReporter forwards reporter calls over the worker transport, so test
// code that reports from inside the child still reaches the controller's
// reporters in call order.
type proxyReporter struct {
	mw *MessageWriter
}

// NewProxyReporter wraps transport writes in the Reporter interface.
func NewProxyReporter(mw *MessageWriter) reporting.Reporter {
	return &proxyReporter{mw: mw}
}

func (p *proxyReporter) SetMode(mode reporting.Mode) {
	p.mw.Write(&Message{Kind: KindReport, Method: MethodSetMode, Value: string(mode)})
}

func (p *proxyReporter) SetField(name, value string) {
	p.mw.Write(&Message{Kind: KindReport, Method: MethodSetField, Name: name, Value: value})
}

func (p *proxyReporter) EnterSuite(s *types.Suite, level int) {
	p.mw.Write(&Message{Kind: KindReport, Method: MethodEnterSuite, UID: s.UID, Level: level})
}

func (p *proxyReporter) LeaveSuite(s *types.Suite, level int) {
	p.mw.Write(&Message{Kind: KindReport, Method: MethodLeaveSuite, UID: s.UID, Level: level})
}

func (p *proxyReporter) AnnounceTestStart(t *types.Test, level int) {
	p.mw.Write(&Message{Kind: KindReport, Method: MethodAnnounceTestStart, UID: t.UID, Level: level})
}

func (p *proxyReporter) PutResult(t *types.Test) {
	p.mw.Write(&Message{Kind: KindReport, Method: MethodPutResult, UID: t.UID})
}

func (p *proxyReporter) SummariseResult(t *types.Test, level int)     {}
func (p *proxyReporter) SummariseSuiteResult(s *types.Suite, result types.Result, level int) {
}
func (p *proxyReporter) Finish() error { return nil }

var _ reporting.Reporter = (*proxyReporter)(nil)
