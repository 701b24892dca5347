package reporting

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/testfold/testfold/types"
)

func sampleTest(uid string, state types.State) *types.Test {
	t := &types.Test{UID: uid, Number: 7, Summary: "sample test"}
	t.StartNewRun()
	t.AddStep(types.PhaseRun).Result = state
	return t
}

func TestMultiFansOutInOrder(t *testing.T) {
	first := NewRecordingReporter()
	second := NewRecordingReporter()
	m := NewMulti(first)
	m.Add(second)

	s := &types.Suite{Name: "s", UID: "s", Summary: "Suite"}
	tst := sampleTest("s/t", types.StatePass)

	m.SetMode(ModeRun)
	m.EnterSuite(s, 0)
	m.AnnounceTestStart(tst, 1)
	m.PutResult(tst)
	require.NoError(t, m.Finish())

	want := []string{"SetMode", "EnterSuite", "AnnounceTestStart", "PutResult", "Finish"}
	assert.Equal(t, want, first.Methods())
	assert.Equal(t, want, second.Methods())
}

func TestMultiWithoutReportersIsNoop(t *testing.T) {
	m := NewMulti()
	m.SetMode(ModeRun)
	m.PutResult(sampleTest("s/t", types.StatePass))
	assert.NoError(t, m.Finish())
}

func TestTerminalReporterRendersRun(t *testing.T) {
	var buf bytes.Buffer
	r := NewTerminalReporter(&buf, false)

	r.SetField("Run ID", "abc-123")
	r.EnterSuite(&types.Suite{Name: "s", UID: "s", Summary: "Smoke tests"}, 0)

	tst := sampleTest("s/t", types.StatePass)
	r.AnnounceTestStart(tst, 1)
	r.PutResult(tst)
	require.NoError(t, r.Finish())

	out := buf.String()
	assert.Contains(t, out, "Run ID: abc-123")
	assert.Contains(t, out, "Smoke tests")
	assert.Contains(t, out, "  7: sample test ... PASS")
	assert.Contains(t, out, "Total")
	assert.NotContains(t, out, "\x1b[", "colour disabled must leave no escape codes")
}

func TestTerminalReporterPrintsFailureDetail(t *testing.T) {
	var buf bytes.Buffer
	r := NewTerminalReporter(&buf, false)

	tst := &types.Test{UID: "s/t", Number: 1, Summary: "broken"}
	tst.StartNewRun()
	step := tst.AddStep(types.PhaseRun)
	step.Result = types.StateFail
	step.Exc = &types.Failure{Kind: "assert", Message: "expected 1, got 2"}

	r.AnnounceTestStart(tst, 0)
	r.PutResult(tst)

	out := buf.String()
	assert.Contains(t, out, "FAIL")
	assert.Contains(t, out, "expected 1, got 2")
}

func TestTerminalReporterColouredOutput(t *testing.T) {
	text.EnableColors()
	defer text.DisableColors()

	var buf bytes.Buffer
	r := NewTerminalReporter(&buf, true)

	tst := sampleTest("s/t", types.StateFail)
	r.AnnounceTestStart(tst, 0)
	r.PutResult(tst)

	assert.Contains(t, buf.String(), "\x1b[", "colour enabled must emit escape codes")
}

func TestFileLogReporterStripsColourCodes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.log")
	r, err := NewFileLogReporter(path)
	require.NoError(t, err)

	r.SetField("Run ID", "abc-123")
	tst := sampleTest("s/t", types.StatePass)
	r.AnnounceTestStart(tst, 0)
	r.PutResult(tst)
	require.NoError(t, r.Finish())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	out := string(data)
	assert.Contains(t, out, "Run ID: abc-123")
	assert.Contains(t, out, "sample test ... PASS")
	assert.NotContains(t, out, "\x1b[")
}

func TestReporterFromContext(t *testing.T) {
	recorder := NewRecordingReporter()
	ctx := WithReporter(context.Background(), recorder)

	FromContext(ctx).SetField("Seed", "42")
	require.Len(t, recorder.Events(), 1)
	assert.Equal(t, "Seed=42", recorder.Events()[0].Detail)

	// Without a carried reporter the accessor hands back a safe no-op.
	assert.NotNil(t, FromContext(context.Background()))
	FromContext(context.Background()).SetField("Seed", "ignored")
}

func TestListingReporterDocument(t *testing.T) {
	var buf bytes.Buffer
	r := NewListingReporter(&buf)

	r.SetField("Manifest", "testfold.yaml")
	r.SummariseSuiteResult(&types.Suite{Name: "s", UID: "s", Summary: "Suite"},
		types.Result{State: types.StateNotRun}, 0)
	r.SummariseResult(sampleTest("s/t", types.StatePass), 1)

	// Listing ignores the live-run events entirely.
	r.AnnounceTestStart(sampleTest("s/other", types.StatePass), 1)
	require.NoError(t, r.Finish())

	var doc struct {
		Fields  map[string]string `json:"fields"`
		Entries []ListingEntry    `json:"entries"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &doc))

	assert.Equal(t, "testfold.yaml", doc.Fields["Manifest"])
	require.Len(t, doc.Entries, 2)
	assert.Equal(t, "suite", doc.Entries[0].Kind)
	assert.Equal(t, "NOT_RUN", doc.Entries[0].State)
	assert.Equal(t, "test", doc.Entries[1].Kind)
	assert.Equal(t, "s/t", doc.Entries[1].UID)
	assert.Equal(t, 7, doc.Entries[1].Number)
	assert.Equal(t, "PASS", doc.Entries[1].State)
	assert.Empty(t, doc.Entries[1].Reason)
}

func TestListingReporterRecordsReason(t *testing.T) {
	var buf bytes.Buffer
	r := NewListingReporter(&buf)

	tst := &types.Test{UID: "s/t", Number: 1, Summary: "never ran"}
	tst.StartNewRun()
	tst.AddStep(types.PhaseSuiteSetUp).Result = types.StateFail
	r.SummariseResult(tst, 0)
	require.NoError(t, r.Finish())

	out := buf.String()
	assert.True(t, strings.Contains(out, `"state": "NOT_RUN"`))
	assert.True(t, strings.Contains(out, `"reason": "BAD_SUITE_SETUP"`))
}
