// Package node implements the search-tree node that the WU-UCT planner
// walks: per-action visit/complete accounting, Q-value sums, child links,
// and the traverse-history bookkeeping that ties a simulation id to the
// action it took through this node.
package node

import (
	"fmt"
	"math"
	"math/rand"
)

// historyEntry is what a node remembers about a simulation id's passage
// through it: the action taken and the immediate reward observed.
type historyEntry struct {
	action int
	reward float64
}

// Node is one state in the search tree. Children are owned (normal Go
// pointers, collected by the GC once the tree is dropped at round reset);
// Parent is a non-owning back-reference.
type Node struct {
	ActionN       int
	CheckpointIdx uint32
	Parent        *Node
	Gamma         float64
	IsHead        bool

	Child         []*Node
	Reward        []float64
	Done          []bool
	VisitCount    []uint32
	CompleteCount []uint32
	QSum          []float64
	Saturated     []bool

	VisitTotal     uint32
	VisitedActions int
	UpdatedActions int
	SaturatedCount int

	traverseHistory map[uint32]historyEntry
}

// NewRoot creates the root node of a planning round.
func NewRoot(actionN int, checkpointIdx uint32, gamma float64) *Node {
	return newNode(actionN, checkpointIdx, gamma, true, nil)
}

func newNode(actionN int, checkpointIdx uint32, gamma float64, isHead bool, parent *Node) *Node {
	return &Node{
		ActionN:         actionN,
		CheckpointIdx:   checkpointIdx,
		Parent:          parent,
		Gamma:           gamma,
		IsHead:          isHead,
		Child:           make([]*Node, actionN),
		Reward:          make([]float64, actionN),
		Done:            make([]bool, actionN),
		VisitCount:      make([]uint32, actionN),
		CompleteCount:   make([]uint32, actionN),
		QSum:            make([]float64, actionN),
		Saturated:       make([]bool, actionN),
		traverseHistory: make(map[uint32]historyEntry),
	}
}

// AllChildrenVisited reports whether every action has been traversed at
// least once (incomplete accounting).
func (n *Node) AllChildrenVisited() bool {
	return n.VisitedActions == n.ActionN
}

// NoChildAvailable reports whether no action has a completed sample yet, or
// every action with a completed sample is also saturated (nothing useful to
// exploit).
func (n *Node) NoChildAvailable() bool {
	return n.UpdatedActions == 0 || n.UpdatedActions == n.SaturatedCount
}

// ShallowClone produces a value-typed Stub: the minimum a worker needs to
// pick an expansion action without holding a live reference into the tree.
func (n *Node) ShallowClone() Stub {
	children := make([]bool, n.ActionN)
	visits := make([]uint32, n.ActionN)
	for a := 0; a < n.ActionN; a++ {
		children[a] = n.Child[a] != nil
		visits[a] = n.VisitCount[a]
	}
	return Stub{
		ActionN:         n.ActionN,
		IsHead:          n.IsHead,
		ChildPresent:    children,
		ChildVisitCount: visits,
	}
}

// SelectUCT picks the best action by UCT score among actions with an
// expanded, unsaturated child. When maxOnly is true the exploration term is
// dropped (greedy final choice); otherwise both exploit and explore terms
// are scored.
func (n *Node) SelectUCT(maxOnly bool) (int, error) {
	bestScore := math.Inf(-1)
	bestAction := -1
	found := false

	for a := 0; a < n.ActionN; a++ {
		if n.Child[a] == nil || n.Saturated[a] {
			continue
		}

		exploit := n.QSum[a] / float64(n.CompleteCount[a])
		explore := 0.0
		if !maxOnly {
			explore = math.Sqrt(2.0 * math.Log(float64(n.VisitTotal)) / float64(n.VisitCount[a]))
		}
		score := exploit + 2.0*explore

		if !found || score > bestScore {
			bestScore = score
			bestAction = a
			found = true
		}
	}

	if !found {
		return 0, ErrNoSelectableChild
	}
	return bestAction, nil
}

// RecordStep inserts (action, reward) into the traverse history for
// simulation id idx, populated on the way down and consumed on the way up.
func (n *Node) RecordStep(simIdx uint32, action int, reward float64) {
	n.traverseHistory[simIdx] = historyEntry{action: action, reward: reward}
}

// UpdateIncomplete increments the incomplete (issued) visit accounting for
// the action that simIdx took through this node.
func (n *Node) UpdateIncomplete(simIdx uint32) error {
	entry, ok := n.traverseHistory[simIdx]
	if !ok {
		return fmt.Errorf("node: update_incomplete: no history entry for simulation %d", simIdx)
	}
	if n.VisitCount[entry.action] == 0 {
		n.VisitedActions++
	}
	n.VisitCount[entry.action]++
	n.VisitTotal++
	return nil
}

// UpdateComplete folds a returned simulation's discounted reward into this
// node's Q-value sum and returns the discounted value to propagate to the
// parent. It consumes the traverse-history entry for simIdx.
func (n *Node) UpdateComplete(simIdx uint32, accuReward float64) (float64, error) {
	entry, ok := n.traverseHistory[simIdx]
	if !ok {
		return 0, fmt.Errorf("node: update_complete: no history entry for simulation %d", simIdx)
	}
	delete(n.traverseHistory, simIdx)

	thisAccu := entry.reward + n.Gamma*accuReward
	if n.CompleteCount[entry.action] == 0 {
		n.UpdatedActions++
	}
	n.CompleteCount[entry.action]++
	n.QSum[entry.action] += thisAccu
	return thisAccu, nil
}

// AddChild creates a new owning child for action, referencing savingIdx as
// its checkpoint. It is an error to call this twice for the same action.
func (n *Node) AddChild(action int, savingIdx uint32, saturated bool) error {
	if n.Child[action] != nil {
		return fmt.Errorf("%w: action %d", ErrChildAlreadyExists, action)
	}
	n.Child[action] = newNode(n.ActionN, savingIdx, n.Gamma, false, n)
	if saturated {
		n.Saturated[action] = true
		n.SaturatedCount++
	}
	return nil
}

// Stub is a value-typed shallow copy of a Node, sent to workers so they
// never reference the tree directly.
type Stub struct {
	ActionN         int
	IsHead          bool
	ChildPresent    []bool
	ChildVisitCount []uint32
}

// SelectExpansionAction samples uniformly at random from rng, preferring
// actions that have never been visited. It is a best-effort unvisited-first
// heuristic, not a strict unvisited-only rule: after 10 samples it accepts
// any never-expanded action, it stops drawing after 20 samples, and after
// about 100 attempts it gives up and returns whatever was last drawn. rng is
// supplied by the caller
// (the worker's own seeded source) so a fixed planner seed makes expansion
// choices reproducible.
func (s Stub) SelectExpansionAction(rng *rand.Rand) int {
	action := 0
	for cnt := 0; ; cnt++ {
		if cnt < 20 {
			action = rng.Intn(s.ActionN)
		}
		if cnt > 100 {
			return action
		}
		if s.ChildVisitCount[action] > 0 && cnt < 10 {
			continue
		}
		if !s.ChildPresent[action] {
			return action
		}
	}
}
