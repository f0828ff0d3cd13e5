package egraph

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// StopReason classifies why a single Step returned.
type StopReason int

const (
	StopIterationLimit StopReason = iota
	StopNodeLimit
	StopTimeLimit
	StopSaturated
)

func (r StopReason) String() string {
	switch r {
	case StopNodeLimit:
		return "node_limit"
	case StopTimeLimit:
		return "time_limit"
	case StopSaturated:
		return "saturated"
	default:
		return "iteration_limit"
	}
}

// Snapshot is an opaque, cloneable record of Env's state sufficient to
// resume: the current term, the step counter, the consecutive-saturation
// counter, and the last-extracted cost.
type Snapshot struct {
	Term       *Term
	Step       uint32
	SatCounter int
	LastCost   int
	BaseCost   int
}

// Clone deep-copies the snapshot, including its term.
func (s Snapshot) Clone() Snapshot {
	return Snapshot{
		Term:       s.Term.Clone(),
		Step:       s.Step,
		SatCounter: s.SatCounter,
		LastCost:   s.LastCost,
		BaseCost:   s.BaseCost,
	}
}

// Env wraps the rewriting engine: applies one rule at a time, reports
// reward/done, and produces/restores snapshots. Each planner worker owns a
// private Env instance; Env is not safe for concurrent use.
type Env struct {
	startExpr *Term
	rules     []Rule
	nodeLimit int
	timeLimit time.Duration
	log       zerolog.Logger

	term       *Term
	step       uint32
	satCounter int
	baseCost   int
	lastCost   int
}

// New constructs an Env over expr with the given rule set and per-step
// resource caps. Call Reset before the first Step.
func New(expr string, rules []Rule, nodeLimit int, timeLimit time.Duration, log zerolog.Logger) (*Env, error) {
	t, err := Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("egraph: parse start expression: %w", err)
	}
	return &Env{
		startExpr: t,
		rules:     rules,
		nodeLimit: nodeLimit,
		timeLimit: timeLimit,
		log:       log,
		baseCost:  t.Size(),
	}, nil
}

// Reset initializes the term to the starting expression and zeroes counters.
func (e *Env) Reset() {
	e.term = e.startExpr.Clone()
	e.step = 0
	e.satCounter = 0
	e.lastCost = e.baseCost
}

// ActionSpace is the rule-set size, constant for Env's lifetime.
func (e *Env) ActionSpace() int {
	return len(e.rules)
}

// Step applies rule action for exactly one iteration, bounded by NodeLimit
// and TimeLimit, extracts the best-cost term, and reports a clamped
// non-negative reward plus the termination signal.
func (e *Env) Step(action int) (reward float64, done bool, reason StopReason, err error) {
	if action < 0 || action >= len(e.rules) {
		return 0, false, 0, fmt.Errorf("egraph: action %d out of range [0,%d)", action, len(e.rules))
	}

	start := time.Now()
	rewritten, matched := rewriteAll(e.term, e.rules[action])
	elapsed := time.Since(start)
	e.step++

	newCost := e.lastCost
	switch {
	case rewritten.Size() > e.nodeLimit:
		reason = StopNodeLimit
		done = true
		e.satCounter = 0
		// The oversized rewrite is discarded; the term does not advance.
	case elapsed > e.timeLimit:
		e.term = rewritten
		newCost = e.term.Size()
		reason = StopTimeLimit
		done = true
		e.satCounter = 0
		e.log.Warn().Uint32("step", e.step).Dur("elapsed", elapsed).Msg("engine step exceeded time limit")
	case !matched:
		e.term = rewritten
		newCost = e.term.Size()
		reason = StopSaturated
		e.satCounter++
		if e.satCounter == len(e.rules) {
			done = true
		}
	default:
		e.term = rewritten
		newCost = e.term.Size()
		reason = StopIterationLimit
		e.satCounter = 0
	}

	rewardDelta := e.lastCost - newCost
	if rewardDelta < 0 {
		rewardDelta = 0
	}
	reward = float64(rewardDelta)
	e.lastCost = newCost

	return reward, done, reason, nil
}

// Checkpoint deep-clones the internal state.
func (e *Env) Checkpoint() Snapshot {
	return Snapshot{
		Term:       e.term.Clone(),
		Step:       e.step,
		SatCounter: e.satCounter,
		LastCost:   e.lastCost,
		BaseCost:   e.baseCost,
	}
}

// Restore replaces the internal state with snap, by value.
func (e *Env) Restore(snap Snapshot) {
	e.term = snap.Term.Clone()
	e.step = snap.Step
	e.satCounter = snap.SatCounter
	e.lastCost = snap.LastCost
	e.baseCost = snap.BaseCost
}

// Cost is the AST size of the current term.
func (e *Env) Cost() int {
	return e.term.Size()
}

// Expr renders the current term back to s-expression form.
func (e *Env) Expr() string {
	return e.term.String()
}

// RuleNames returns the configured rule names in action order.
func (e *Env) RuleNames() []string {
	names := make([]string, len(e.rules))
	for i, r := range e.rules {
		names[i] = r.Name
	}
	return names
}
