package runner

import (
	"math/rand"
	"time"

	"github.com/ethereum/go-ethereum/log"

	"github.com/testfold/testfold/types"
)

// Selector is a predicate over tests; every registered selector must accept
// a test for it to be scheduled.
type Selector interface {
	Matches(t *types.Test) bool
}

// SelectorFunc adapts a plain function to the Selector interface.
type SelectorFunc func(t *types.Test) bool

func (f SelectorFunc) Matches(t *types.Test) bool {
	return f(t)
}

// Triple is one step of the scheduling walk: the test to process together
// with its neighbours, from which the suite enter/exit deltas are computed.
// Prev and Next are nil at the run boundaries so suite bookkeeping stays
// uniform.
type Triple struct {
	Prev *types.Test
	Test *types.Test
	Next *types.Test
}

// SelectionConfig controls which tests are picked and in what order.
type SelectionConfig struct {
	// Seed controls ordering: 0 keeps collection order, a positive value
	// seeds a reproducible random permutation, a negative value derives a
	// seed from the wall clock (the derived seed is logged so the order
	// can be reproduced).
	Seed int64

	// Numbers, when non-empty, restricts the walk to explicitly numbered
	// tests, in the given order. Only honoured when Seed is 0.
	Numbers []int

	// SkipPassed omits tests whose most recent recorded state is PASS.
	SkipPassed bool

	// MaxExecTime excludes tests whose journalled average execution time
	// exceeds this many seconds. 0 means unlimited.
	MaxExecTime float64

	// AverageTime looks up the journalled average execution time for a
	// test uid; ok is false when no timing data exists.
	AverageTime func(uid string) (avg float64, ok bool)
}

// Selection produces the ordered walk over the tests that every selector
// accepts.
type Selection struct {
	collection *types.Collection
	selectors  []Selector
	cfg        SelectionConfig
	log        log.Logger
}

// NewSelection creates a selection over the collection. With no selectors
// every test is accepted.
func NewSelection(collection *types.Collection, cfg SelectionConfig, logger log.Logger, selectors ...Selector) *Selection {
	if logger == nil {
		logger = log.New()
	}
	return &Selection{collection: collection, selectors: selectors, cfg: cfg, log: logger}
}

// Tests returns the selected tests in scheduling order.
func (s *Selection) Tests() []*types.Test {
	var picked []*types.Test
	for _, t := range s.ordered() {
		if s.cfg.SkipPassed && t.State() == types.StatePass {
			continue
		}
		if s.cfg.MaxExecTime > 0 && s.cfg.AverageTime != nil {
			if avg, ok := s.cfg.AverageTime(t.UID); ok && avg > s.cfg.MaxExecTime {
				continue
			}
		}
		if !s.accepted(t) {
			continue
		}
		picked = append(picked, t)
	}
	return picked
}

// Triples returns the walk as (previous, current, next) triples, padded with
// nil sentinels at both ends.
func (s *Selection) Triples() []Triple {
	tests := s.Tests()
	triples := make([]Triple, 0, len(tests))
	for i, t := range tests {
		var prev, next *types.Test
		if i > 0 {
			prev = tests[i-1]
		}
		if i < len(tests)-1 {
			next = tests[i+1]
		}
		triples = append(triples, Triple{Prev: prev, Test: t, Next: next})
	}
	return triples
}

func (s *Selection) accepted(t *types.Test) bool {
	for _, sel := range s.selectors {
		if !sel.Matches(t) {
			return false
		}
	}
	return true
}

func (s *Selection) ordered() []*types.Test {
	all := s.collection.Tests()

	if s.cfg.Seed != 0 {
		seed := s.cfg.Seed
		if seed < 0 {
			seed = time.Now().Unix()
			s.log.Info("Test order randomised using time-derived seed", "seed", seed)
		} else {
			s.log.Info("Test order randomised", "seed", seed)
		}
		src := rand.New(rand.NewSource(seed))
		shuffled := make([]*types.Test, len(all))
		for i, j := range src.Perm(len(all)) {
			shuffled[i] = all[j]
		}
		return shuffled
	}

	if len(s.cfg.Numbers) > 0 {
		var picked []*types.Test
		for _, n := range s.cfg.Numbers {
			for _, t := range all {
				if t.Number == n {
					picked = append(picked, t)
				}
			}
		}
		return picked
	}

	return all
}
