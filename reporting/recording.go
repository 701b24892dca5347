package reporting

import (
	"fmt"
	"sync"

	"github.com/testfold/testfold/types"
)

// Event is one recorded reporter call, kept in arrival order.
type Event struct {
	Method string
	UID    string
	Detail string
}

// RecordingReporter captures every event for later inspection. Tests use it
// to assert on the exact event order a run produced, including the replayed
// events of isolated workers.
type RecordingReporter struct {
	mu     sync.Mutex
	events []Event
}

// NewRecordingReporter returns an empty recorder.
func NewRecordingReporter() *RecordingReporter {
	return &RecordingReporter{}
}

func (r *RecordingReporter) add(method, uid, detail string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, Event{Method: method, UID: uid, Detail: detail})
}

func (r *RecordingReporter) SetMode(mode Mode) {
	r.add("SetMode", "", string(mode))
}

func (r *RecordingReporter) SetField(name, value string) {
	r.add("SetField", "", name+"="+value)
}

func (r *RecordingReporter) EnterSuite(s *types.Suite, level int) {
	r.add("EnterSuite", s.UID, fmt.Sprintf("level=%d", level))
}

func (r *RecordingReporter) LeaveSuite(s *types.Suite, level int) {
	r.add("LeaveSuite", s.UID, fmt.Sprintf("level=%d", level))
}

func (r *RecordingReporter) AnnounceTestStart(t *types.Test, level int) {
	r.add("AnnounceTestStart", t.UID, fmt.Sprintf("level=%d", level))
}

func (r *RecordingReporter) PutResult(t *types.Test) {
	r.add("PutResult", t.UID, t.Result().ReportCode().String())
}

func (r *RecordingReporter) SummariseResult(t *types.Test, level int) {
	r.add("SummariseResult", t.UID, t.Result().ReportCode().String())
}

func (r *RecordingReporter) SummariseSuiteResult(s *types.Suite, result types.Result, level int) {
	r.add("SummariseSuiteResult", s.UID, result.ReportCode().String())
}

func (r *RecordingReporter) Finish() error {
	r.add("Finish", "", "")
	return nil
}

// Events returns a copy of the recorded events.
func (r *RecordingReporter) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Methods returns just the method names, in order.
func (r *RecordingReporter) Methods() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, e := range r.events {
		out[i] = e.Method
	}
	return out
}

var _ Reporter = (*RecordingReporter)(nil)
