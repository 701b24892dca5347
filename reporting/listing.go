package reporting

import (
	"encoding/json"
	"io"
	"sync"

	"github.com/testfold/testfold/types"
)

// ListingEntry is one node of the machine-readable listing: a suite or a
// test, with its position in the tree and its last known result.
type ListingEntry struct {
	Kind    string `json:"kind"`
	UID     string `json:"uid"`
	Number  int    `json:"number,omitempty"`
	Summary string `json:"summary"`
	Level   int    `json:"level"`
	State   string `json:"state,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

// ListingReporter emits the walked tree as a JSON document. It only reacts to
// the summary events, so it can be driven by a listing-only walk that never
// executes anything.
type ListingReporter struct {
	mu      sync.Mutex
	out     io.Writer
	entries []ListingEntry
	fields  map[string]string
}

// NewListingReporter writes the listing document to out on Finish.
func NewListingReporter(out io.Writer) *ListingReporter {
	return &ListingReporter{out: out, fields: make(map[string]string)}
}

func (r *ListingReporter) SetMode(mode Mode) {}

func (r *ListingReporter) SetField(name, value string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fields[name] = value
}

func (r *ListingReporter) EnterSuite(s *types.Suite, level int)          {}
func (r *ListingReporter) LeaveSuite(s *types.Suite, level int)          {}
func (r *ListingReporter) AnnounceTestStart(t *types.Test, level int)    {}
func (r *ListingReporter) PutResult(t *types.Test)                       {}

func (r *ListingReporter) SummariseResult(t *types.Test, level int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	result := t.Result()
	entry := ListingEntry{
		Kind:    "test",
		UID:     t.UID,
		Number:  t.Number,
		Summary: t.Summary,
		Level:   level,
		State:   result.State.String(),
	}
	if result.Reason != types.StateNone {
		entry.Reason = result.Reason.String()
	}
	r.entries = append(r.entries, entry)
}

func (r *ListingReporter) SummariseSuiteResult(s *types.Suite, result types.Result, level int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry := ListingEntry{
		Kind:    "suite",
		UID:     s.UID,
		Summary: s.Summary,
		Level:   level,
		State:   result.State.String(),
	}
	if result.Reason != types.StateNone {
		entry.Reason = result.Reason.String()
	}
	r.entries = append(r.entries, entry)
}

// Finish writes the accumulated document.
func (r *ListingReporter) Finish() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	doc := struct {
		Fields  map[string]string `json:"fields,omitempty"`
		Entries []ListingEntry    `json:"entries"`
	}{Fields: r.fields, Entries: r.entries}
	enc := json.NewEncoder(r.out)
	enc.SetIndent("", "  ")
	return enc.Encode(doc)
}

var _ Reporter = (*ListingReporter)(nil)
