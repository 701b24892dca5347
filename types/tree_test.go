package types

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildTree creates root/inner suites with two tests in each.
func buildTree(t *testing.T) (*Collection, SuiteID, SuiteID) {
	t.Helper()
	c := NewCollection()
	root := c.AddSuite(NoSuite, &Suite{Name: "root", UID: "root", Summary: "Root suite"})
	inner := c.AddSuite(root, &Suite{Name: "inner", UID: "root/inner", Summary: "Inner suite"})
	for i := 0; i < 2; i++ {
		c.AddTest(root, &Test{UID: fmt.Sprintf("root/t%d", i)})
		c.AddTest(inner, &Test{UID: fmt.Sprintf("root/inner/t%d", i)})
	}
	return c, root, inner
}

func TestHistoryBound(t *testing.T) {
	tst := &Test{UID: "t"}
	var records []*RunRecord
	for i := 0; i < historyLimit+3; i++ {
		records = append(records, tst.StartNewRun())
	}
	require.Len(t, tst.History(), historyLimit)
	// Oldest attempts were discarded, the most recent survive.
	assert.Same(t, records[len(records)-1], tst.RunRecord())
	assert.Same(t, records[3], tst.History()[0])
}

func TestAbortRunDiscardsCurrentAttempt(t *testing.T) {
	tst := &Test{UID: "t"}
	first := tst.StartNewRun()
	tst.StartNewRun()
	tst.AbortRun()
	assert.Same(t, first, tst.RunRecord())
}

func TestSeedHistoryRestoresState(t *testing.T) {
	tst := &Test{UID: "t"}
	tst.SeedHistory(StatePass)
	assert.Equal(t, StatePass, tst.State())
	assert.False(t, tst.HasFailed())
}

func TestCollectionNumbersTestsInOrder(t *testing.T) {
	c, _, _ := buildTree(t)
	for i, tst := range c.Tests() {
		assert.Equal(t, i+1, tst.Number)
	}
}

func TestAncestorsOldestFirst(t *testing.T) {
	c, root, inner := buildTree(t)
	tst := c.Tests()[1] // first inner test
	require.Equal(t, inner, tst.Parent())

	chain := c.Ancestors(tst)
	require.Len(t, chain, 2)
	assert.Equal(t, root, chain[0].ID())
	assert.Equal(t, inner, chain[1].ID())
	assert.Equal(t, 2, c.Level(tst))
}

func TestDiffAncestors(t *testing.T) {
	c, _, inner := buildTree(t)
	rootTest := c.Tests()[0]
	innerTest := c.Tests()[1]

	// Moving from a root-level test into the inner suite only enters inner.
	diff := c.DiffAncestors(innerTest, rootTest)
	require.Len(t, diff, 1)
	assert.Equal(t, inner, diff[0].ID())

	// With no previous test the whole chain is new.
	diff = c.DiffAncestors(innerTest, nil)
	assert.Len(t, diff, 2)

	// Two tests in the same suite share everything.
	assert.Empty(t, c.DiffAncestors(innerTest, c.Tests()[3]))
}

func TestShouldFork(t *testing.T) {
	c := NewCollection()
	forked := c.AddSuite(NoSuite, &Suite{Name: "forked", UID: "forked", ForkAll: true})
	plain := c.AddSuite(NoSuite, &Suite{Name: "plain", UID: "plain"})

	inherited := c.AddTest(forked, &Test{UID: "forked/t"})
	direct := c.AddTest(plain, &Test{UID: "plain/t", Traits: Traits{Fork: true}})
	neither := c.AddTest(plain, &Test{UID: "plain/u"})

	assert.True(t, c.ShouldFork(inherited))
	assert.True(t, c.ShouldFork(direct))
	assert.False(t, c.ShouldFork(neither))
}

func TestSuiteResultAggregation(t *testing.T) {
	seed := func(states ...State) (*Collection, *Suite) {
		c := NewCollection()
		id := c.AddSuite(NoSuite, &Suite{Name: "s", UID: "s"})
		for i, st := range states {
			tst := c.AddTest(id, &Test{UID: fmt.Sprintf("s/t%d", i)})
			tst.SeedHistory(st)
		}
		return c, c.Suite(id)
	}

	t.Run("all passed", func(t *testing.T) {
		c, s := seed(StatePass, StatePass)
		assert.Equal(t, StatePass, c.SuiteResult(s).State)
	})

	t.Run("skipped children still count as a pass", func(t *testing.T) {
		c, s := seed(StateSkipped, StateSkipped)
		assert.Equal(t, StatePass, c.SuiteResult(s).State)
	})

	t.Run("any failure is a child failure", func(t *testing.T) {
		c, s := seed(StatePass, StateFail)
		assert.Equal(t, StateChildFail, c.SuiteResult(s).State)
	})

	t.Run("bad setup is a child failure", func(t *testing.T) {
		c, s := seed(StateBadSetup, StatePass)
		assert.Equal(t, StateChildFail, c.SuiteResult(s).State)
	})

	t.Run("partially run", func(t *testing.T) {
		c, s := seed(StatePass, StateNotRun)
		assert.Equal(t, StatePartRun, c.SuiteResult(s).State)
	})

	t.Run("nothing ran", func(t *testing.T) {
		c, s := seed(StateNotRun, StateNotRun)
		assert.Equal(t, StateNotRun, c.SuiteResult(s).State)
	})
}

func TestResetSuitesClearsLatches(t *testing.T) {
	c, root, inner := buildTree(t)
	c.Suite(root).SkipTests = true
	c.Suite(inner).Entered = true
	c.ResetSuites()
	assert.False(t, c.Suite(root).SkipTests)
	assert.False(t, c.Suite(inner).Entered)
}
