package reporting

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/testfold/testfold/types"
)

// indentStep is the per-level indent used for the hierarchical displays.
const indentStep = "  "

// stateColour maps a result state to its display colour. States not listed
// render uncoloured.
func stateColour(s types.State) text.Color {
	switch s {
	case types.StatePass, types.StateBugPass:
		return text.FgGreen
	case types.StateFail, types.StateBadSetup, types.StateBadSuiteSetup, types.StateChildFail:
		return text.FgRed
	case types.StateSkipped, types.StateDisabled, types.StateBroken:
		return text.FgYellow
	case types.StateTodo, types.StateBug:
		return text.FgCyan
	case types.StatePartRun, types.StateUserStopped:
		return text.FgMagenta
	}
	return 0
}

// TerminalReporter renders run progress and summaries as an indented tree on
// a terminal, colouring result states when colour is enabled.
type TerminalReporter struct {
	mu     sync.Mutex
	out    io.Writer
	colour bool
	mode   Mode
	fields []string

	counts map[types.State]int
}

// NewTerminalReporter writes to out. Colour should be disabled when out is
// not a terminal.
func NewTerminalReporter(out io.Writer, colour bool) *TerminalReporter {
	return &TerminalReporter{
		out:    out,
		colour: colour,
		mode:   ModeRun,
		counts: make(map[types.State]int),
	}
}

func (r *TerminalReporter) SetMode(mode Mode) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mode = mode
	switch mode {
	case ModeRunSummary:
		fmt.Fprintf(r.out, "\n%s\n", r.paint("Run summary", text.Bold))
	case ModeFailSummary:
		fmt.Fprintf(r.out, "\n%s\n", r.paint("Failure summary", text.Bold))
	}
}

func (r *TerminalReporter) SetField(name, value string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fields = append(r.fields, fmt.Sprintf("%s: %s", name, value))
	fmt.Fprintf(r.out, "%s: %s\n", name, value)
}

func (r *TerminalReporter) EnterSuite(s *types.Suite, level int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintf(r.out, "%s%s\n", indent(level), r.paint(s.Summary, text.Bold))
}

func (r *TerminalReporter) LeaveSuite(s *types.Suite, level int) {}

func (r *TerminalReporter) AnnounceTestStart(t *types.Test, level int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintf(r.out, "%s%3d: %s ... ", indent(level), t.Number, t.Summary)
}

func (r *TerminalReporter) PutResult(t *types.Test) {
	r.mu.Lock()
	defer r.mu.Unlock()

	result := t.Result()
	code := result.ReportCode()
	r.counts[code]++
	fmt.Fprintf(r.out, "%s\n", r.paintState(code))

	if rec := t.RunRecord(); rec != nil {
		if _, step := rec.PhaseRecord(); step != nil && step.Exc != nil && code.IsProblem() {
			r.printFailure(step.Exc)
		}
	}
}

func (r *TerminalReporter) SummariseResult(t *types.Test, level int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	code := t.Result().ReportCode()
	fmt.Fprintf(r.out, "%s%3d: %s %s\n", indent(level), t.Number, t.Summary, r.paintState(code))

	if r.mode == ModeFailSummary {
		if rec := t.RunRecord(); rec != nil {
			if _, step := rec.PhaseRecord(); step != nil && step.Exc != nil {
				r.printFailure(step.Exc)
			}
		}
	}
}

func (r *TerminalReporter) SummariseSuiteResult(s *types.Suite, result types.Result, level int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintf(r.out, "%s%s %s\n", indent(level), r.paint(s.Summary, text.Bold), r.paintState(result.ReportCode()))
}

// Finish renders the final per-state tally table.
func (r *TerminalReporter) Finish() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.counts) == 0 {
		return nil
	}

	tw := table.NewWriter()
	tw.SetOutputMirror(r.out)
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(table.Row{"Result", "Count"})
	total := 0
	for _, state := range orderedStates(r.counts) {
		tw.AppendRow(table.Row{r.paintState(state), r.counts[state]})
		total += r.counts[state]
	}
	tw.AppendFooter(table.Row{"Total", total})
	fmt.Fprintln(r.out)
	tw.Render()
	return nil
}

func (r *TerminalReporter) printFailure(f *types.Failure) {
	for _, line := range strings.Split(f.Format(), "\n") {
		fmt.Fprintf(r.out, "     %s\n", line)
	}
}

func (r *TerminalReporter) paint(s string, c text.Color) string {
	if !r.colour {
		return s
	}
	return c.Sprint(s)
}

func (r *TerminalReporter) paintState(s types.State) string {
	c := stateColour(s)
	if !r.colour || c == 0 {
		return s.String()
	}
	return c.Sprint(s.String())
}

func indent(level int) string {
	return strings.Repeat(indentStep, level)
}

// orderedStates returns the tallied states in their enum order, so the final
// table is stable across runs.
func orderedStates(counts map[types.State]int) []types.State {
	var states []types.State
	for _, s := range types.AllStates() {
		if counts[s] > 0 {
			states = append(states, s)
		}
	}
	return states
}

var _ Reporter = (*TerminalReporter)(nil)
