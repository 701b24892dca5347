package types

// State is the outcome classification for a test, suite or single phase.
// A subset of states double as reason qualifiers on a Result (for example
// NOT_RUN with reason BAD_SUITE_SETUP).
type State int

const (
	// StateNone is the zero reason; a Result with reason StateNone reports
	// its primary state.
	StateNone State = iota

	StateNotRun
	StatePass
	StateFail
	StateSkipped
	StateBroken
	StateDisabled
	StateBug
	StateBugPass
	StateTodo

	// Suite-level aggregate states.
	StateChildFail
	StatePartRun

	// Reason codes.
	StateBadSetup
	StateBadSuiteSetup
	StateExitSuite
	StateExitAll
	StateUserStopped
)

var stateNames = map[State]string{
	StateNone:          "NONE",
	StateNotRun:        "NOT_RUN",
	StatePass:          "PASS",
	StateFail:          "FAIL",
	StateSkipped:       "SKIPPED",
	StateBroken:        "BROKEN",
	StateDisabled:      "DISABLED",
	StateBug:           "BUG",
	StateBugPass:       "BUG_PASS",
	StateTodo:          "TODO",
	StateChildFail:     "CHILD_FAIL",
	StatePartRun:       "PART_RUN",
	StateBadSetup:      "BAD_SETUP",
	StateBadSuiteSetup: "BAD_SUITE_SETUP",
	StateExitSuite:     "EXIT_SUITE",
	StateExitAll:       "EXIT_ALL",
	StateUserStopped:   "USER_STOPPED",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "UNKNOWN"
}

// AllStates returns every defined state in enum order.
func AllStates() []State {
	states := make([]State, 0, len(stateNames))
	for s := StateNone; s <= StateUserStopped; s++ {
		states = append(states, s)
	}
	return states
}

// ParseState converts a state name, as produced by String, back to a State.
// Unknown names map to StateNone.
func ParseState(name string) State {
	for s, n := range stateNames {
		if n == name {
			return s
		}
	}
	return StateNone
}

// IsProblem reports whether s indicates that something went wrong during a
// phase. The non-problem set includes the deliberate skip markers and the
// expected-failure states; DISABLED is a selection outcome, not a failure.
func (s State) IsProblem() bool {
	switch s {
	case StatePass, StateSkipped, StateNotRun, StateTodo, StateBug, StateBugPass, StateDisabled:
		return false
	}
	return true
}

// Result pairs a primary state with a secondary reason qualifier.
type Result struct {
	State  State
	Reason State
}

// ReportCode returns the code a reporter should display: the reason when one
// is set, otherwise the primary state.
func (r Result) ReportCode() State {
	if r.Reason != StateNone {
		return r.Reason
	}
	return r.State
}

func (r Result) String() string {
	if r.Reason == StateNone {
		return r.State.String()
	}
	return r.State.String() + "/" + r.Reason.String()
}
