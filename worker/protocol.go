// Package worker runs a test's scalar phases in an isolated child process.
// The controller side launches the worker, replays its reporter events in
// arrival order and installs the phase outcomes into the test's run record,
// so from the scheduler's point of view an isolated test is indistinguishable
// from an in-process one.
package worker

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/testfold/testfold/types"
)

// MessageKind discriminates the wire messages exchanged with a worker.
type MessageKind string

const (
	// KindReport carries a reporter call made inside the worker.
	KindReport MessageKind = "report"
	// KindResult carries the phase outcomes of the completed test.
	KindResult MessageKind = "result"
	// KindExit is the worker's final message.
	KindExit MessageKind = "exit"
)

// Method enumerates the reporter calls a worker may proxy. The controller
// rejects anything outside this set.
type Method string

const (
	MethodSetMode           Method = "SetMode"
	MethodSetField          Method = "SetField"
	MethodEnterSuite        Method = "EnterSuite"
	MethodLeaveSuite        Method = "LeaveSuite"
	MethodAnnounceTestStart Method = "AnnounceTestStart"
	MethodPutResult         Method = "PutResult"
)

// StepResult is one phase outcome on the wire.
type StepResult struct {
	Phase  string         `json:"phase"`
	Result string         `json:"result"`
	Reason string         `json:"reason,omitempty"`
	Exc    *types.Failure `json:"exc,omitempty"`
}

// Message is a single line-delimited JSON frame.
type Message struct {
	Kind MessageKind `json:"kind"`

	// KindReport fields.
	Method Method `json:"method,omitempty"`
	UID    string `json:"uid,omitempty"`
	Level  int    `json:"level,omitempty"`
	Name   string `json:"name,omitempty"`
	Value  string `json:"value,omitempty"`

	// KindResult fields.
	Steps      []StepResult `json:"steps,omitempty"`
	DurationMS int64        `json:"duration_ms,omitempty"`
	StopAll    bool         `json:"stop_all,omitempty"`

	// KindExit fields.
	Err string `json:"err,omitempty"`
}

// MessageWriter frames messages as JSON lines.
type MessageWriter struct {
	enc *json.Encoder
}

// NewMessageWriter writes frames to w.
func NewMessageWriter(w io.Writer) *MessageWriter {
	return &MessageWriter{enc: json.NewEncoder(w)}
}

// Write emits one frame. Encoder appends the newline delimiter itself.
func (mw *MessageWriter) Write(msg *Message) error {
	if err := mw.enc.Encode(msg); err != nil {
		return fmt.Errorf("failed to write worker message: %w", err)
	}
	return nil
}

// MessageReader parses JSON-line frames.
type MessageReader struct {
	dec *json.Decoder
}

// NewMessageReader reads frames from r.
func NewMessageReader(r io.Reader) *MessageReader {
	return &MessageReader{dec: json.NewDecoder(r)}
}

// Read returns the next frame, or io.EOF when the stream ends.
func (mr *MessageReader) Read() (*Message, error) {
	var msg Message
	if err := mr.dec.Decode(&msg); err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("failed to read worker message: %w", err)
	}
	return &msg, nil
}

// scalarPhases is the order phase outcomes are serialised in. List phases
// never cross the worker boundary; suite bookkeeping stays controller-side.
var scalarPhases = []types.Phase{
	types.PhaseSetUp,
	types.PhaseRun,
	types.PhasePostCheck,
	types.PhaseTearDown,
}

// EncodeSteps extracts the scalar phase outcomes from a run record.
func EncodeSteps(rec *types.RunRecord) []StepResult {
	var steps []StepResult
	for _, phase := range scalarPhases {
		step := rec.Step(phase)
		if step == nil {
			continue
		}
		steps = append(steps, StepResult{
			Phase:  string(phase),
			Result: step.Result.String(),
			Reason: step.Reason.String(),
			Exc:    step.Exc,
		})
	}
	return steps
}

// InstallSteps writes wire phase outcomes into the test's current run record.
func InstallSteps(t *types.Test, steps []StepResult) {
	for _, s := range steps {
		step := t.AddStep(types.Phase(s.Phase))
		step.Result = types.ParseState(s.Result)
		step.Reason = types.ParseState(s.Reason)
		step.Exc = s.Exc
	}
}
