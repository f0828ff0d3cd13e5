// Package egmcts implements the Watch-and-Update UCT planner: a
// single-coordinator, multi-worker tree search scheduler that separates
// incomplete (issued) visit accounting from complete (returned) accounting
// while dispatching expansion and rollout work to two independent worker
// pools against a checkpoint store of rewriting-engine snapshots.
package egmcts

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"egraphmcts/internal/checkpoint"
	"egraphmcts/internal/egraph"
	"egraphmcts/internal/node"
	"egraphmcts/internal/pool"

	"github.com/rs/zerolog"
)

const (
	occupancyThreshold = 0.99
	nonRootExpandProb  = 0.5
)

type pendingExpansionItem struct {
	taskID uint32
	task   pool.ExpansionTask
}

type pendingSimulationItem struct {
	taskID         uint32
	action         int
	savingIdx      uint32
	childSaturated bool
}

// Tree is the WU-UCT coordinator. All tree mutation happens on whatever
// goroutine calls Plan; it is not safe to call Plan concurrently with
// itself.
type Tree struct {
	root   *node.Node
	budget uint32
	gamma  float64

	expPool *pool.Pool
	simPool *pool.Pool
	store   *checkpoint.Store

	registry          map[uint32]*node.Node
	simMeta           map[uint32]pendingSimulationItem
	pendingExpansion  []pendingExpansionItem
	pendingSimulation []pendingSimulationItem

	globalSavingIdx uint32
	simulationCount uint32

	rng *rand.Rand
	log zerolog.Logger
}

// New builds a Tree and starts its expansion and simulation worker pools.
// startExpr/rules/nodeLimit/timeLimit seed each worker's private Env; seed
// fixes the planner's own randomness (selection coin flips) plus every
// worker's expansion-action sampling and rollout steps, so repeated plans
// with one worker per pool are reproducible. With more than one worker in a
// pool, the order in which replies are collected depends on timing.
func New(
	budget, maxSimStep uint32,
	gamma float64,
	expansionWorkerNum, simulationWorkerNum int,
	nodeLimit int,
	timeLimit time.Duration,
	startExpr string,
	rules []egraph.Rule,
	seed int64,
	log zerolog.Logger,
) (*Tree, error) {
	// Distinct, seed-derived offsets keep the two pools' rng streams from
	// lining up worker-for-worker while remaining a deterministic function
	// of the single seed the caller supplied.
	expPool, err := pool.New("expansion", expansionWorkerNum, startExpr, rules, nodeLimit, timeLimit, gamma, maxSimStep, seed, log)
	if err != nil {
		return nil, fmt.Errorf("egmcts: expansion pool: %w", err)
	}
	simPool, err := pool.New("simulation", simulationWorkerNum, startExpr, rules, nodeLimit, timeLimit, gamma, maxSimStep, seed+1<<32, log)
	if err != nil {
		return nil, fmt.Errorf("egmcts: simulation pool: %w", err)
	}

	return &Tree{
		budget:  budget,
		gamma:   gamma,
		expPool: expPool,
		simPool: simPool,
		store:   checkpoint.New(),
		rng:     rand.New(rand.NewSource(seed)),
		log:     log,
	}, nil
}

// Shutdown drains and joins both worker pools.
func (t *Tree) Shutdown() error {
	expErr := t.expPool.Shutdown()
	simErr := t.simPool.Shutdown()
	if expErr != nil {
		return expErr
	}
	return simErr
}

func (t *Tree) reset() error {
	t.registry = make(map[uint32]*node.Node)
	t.simMeta = make(map[uint32]pendingSimulationItem)
	t.pendingExpansion = nil
	t.pendingSimulation = nil
	t.store.Clear()
	t.simulationCount = 0
	t.globalSavingIdx = 0

	if err := t.expPool.DrainToIdle(); err != nil {
		return fmt.Errorf("egmcts: reset: expansion pool: %w", err)
	}
	if err := t.simPool.DrainToIdle(); err != nil {
		return fmt.Errorf("egmcts: reset: simulation pool: %w", err)
	}
	return nil
}

// Plan runs one planning round against env (already positioned at the state
// to search from) and returns the greedily-chosen action.
func (t *Tree) Plan(ctx context.Context, env *egraph.Env) (int, error) {
	if env.ActionSpace() == 1 {
		return 0, nil
	}

	if err := t.reset(); err != nil {
		return 0, fmt.Errorf("egmcts: plan: %w", err)
	}

	if err := t.store.Put(0, env.Checkpoint()); err != nil {
		return 0, fmt.Errorf("egmcts: plan: seed checkpoint: %w", err)
	}
	t.root = node.NewRoot(env.ActionSpace(), 0, t.gamma)
	t.globalSavingIdx = 1

	for simIdx := uint32(0); simIdx < t.budget; simIdx++ {
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		default:
		}
		if err := t.simulateSingleStep(simIdx); err != nil {
			return 0, fmt.Errorf("egmcts: plan: simulation %d: %w", simIdx, err)
		}
	}

	if err := t.drainOutstanding(); err != nil {
		return 0, fmt.Errorf("egmcts: plan: drain: %w", err)
	}

	t.log.Debug().
		Uint32("simulation_count", t.simulationCount).
		Uint32("budget", t.budget).
		Msg("planning round complete")

	action, err := t.root.SelectUCT(true)
	if err != nil {
		if errors.Is(err, node.ErrNoSelectableChild) && rootHasAnyChild(t.root) {
			// Every action was expanded at some point but has since
			// saturated -- the round genuinely exhausted the tree rather
			// than failing to search it at all, so default to action 0
			// instead of surfacing an error.
			return 0, nil
		}
		return 0, fmt.Errorf("egmcts: plan: final selection: %w", err)
	}
	return action, nil
}

// rootHasAnyChild distinguishes "nothing was ever expanded" (too small a
// budget, a real failure) from "everything was expanded and has since
// saturated" (a fully-searched round, a graceful outcome).
func rootHasAnyChild(n *node.Node) bool {
	for a := 0; a < n.ActionN; a++ {
		if n.Child[a] != nil {
			return true
		}
	}
	return false
}

// simulateSingleStep is one WU-UCT loop body: select (enqueueing an
// expansion or finishing a terminal in place), dispatch whatever the pools
// have room for, and opportunistically collect one reply per pool when it
// looks saturated.
func (t *Tree) simulateSingleStep(simIdx uint32) error {
	if err := t.selectAndEnqueue(simIdx); err != nil {
		return err
	}

	t.dispatchExpansions()
	if t.expPool.Occupancy() > occupancyThreshold {
		if err := t.collectExpansion(); err != nil {
			return err
		}
	}

	if err := t.dispatchSimulations(); err != nil {
		return err
	}
	if t.simPool.Occupancy() > occupancyThreshold {
		if err := t.collectSimulation(); err != nil {
			return err
		}
	}
	return nil
}

// fullyExpanded reports whether every action at n already has a child,
// i.e. there is nothing left that beginExpansion could legally add.
func fullyExpanded(n *node.Node) bool {
	for a := 0; a < n.ActionN; a++ {
		if n.Child[a] == nil {
			return false
		}
	}
	return true
}

func (t *Tree) selectAndEnqueue(simIdx uint32) error {
	cur := t.root
	for {
		mustExpand := cur.NoChildAvailable() ||
			(cur.IsHead && !cur.AllChildrenVisited()) ||
			(!cur.IsHead && !cur.AllChildrenVisited() && t.rng.Float64() < nonRootExpandProb)

		if mustExpand {
			if fullyExpanded(cur) {
				// Every action here already has a child (they're all
				// saturated, which is why no_child_available still fired) --
				// there is nothing left to learn from this subtree, so
				// retire the simulation id without any visit-count or
				// Q-value update.
				t.simulationCount++
				return nil
			}
			return t.beginExpansion(cur, simIdx)
		}

		action, err := cur.SelectUCT(false)
		if err != nil {
			return fmt.Errorf("egmcts: selection: %w", err)
		}
		cur.RecordStep(simIdx, action, cur.Reward[action])

		if cur.Done[action] {
			return t.finishTerminal(cur, simIdx)
		}
		cur = cur.Child[action]
	}
}

func (t *Tree) beginExpansion(n *node.Node, taskID uint32) error {
	snap, err := t.store.Get(n.CheckpointIdx)
	if err != nil {
		return fmt.Errorf("egmcts: begin expansion: %w", err)
	}
	t.registry[taskID] = n
	t.pendingExpansion = append(t.pendingExpansion, pendingExpansionItem{
		taskID: taskID,
		task:   pool.ExpansionTask{Snapshot: snap, Stub: n.ShallowClone()},
	})
	return nil
}

func (t *Tree) finishTerminal(n *node.Node, simIdx uint32) error {
	if err := t.incompleteUpdate(n, simIdx); err != nil {
		return err
	}
	if _, err := t.completeUpdate(n, simIdx, 0.0); err != nil {
		return err
	}
	t.simulationCount++
	return nil
}

func (t *Tree) nextSavingIdx() uint32 {
	idx := t.globalSavingIdx
	t.globalSavingIdx++
	return idx
}

func (t *Tree) dispatchExpansions() {
	for len(t.pendingExpansion) > 0 && t.expPool.HasIdleWorker() {
		item := t.pendingExpansion[0]
		savingIdx := t.nextSavingIdx()
		if err := t.expPool.AssignExpansion(item.task, savingIdx, item.taskID); err != nil {
			t.globalSavingIdx--
			break
		}
		t.pendingExpansion = t.pendingExpansion[1:]
	}
}

func (t *Tree) dispatchSimulations() error {
	for len(t.pendingSimulation) > 0 && t.simPool.HasIdleWorker() {
		item := t.pendingSimulation[0]
		snap, err := t.store.Get(item.savingIdx)
		if err != nil {
			return fmt.Errorf("egmcts: dispatch simulation: %w", err)
		}
		task := pool.SimulationTask{Action: item.action, Snapshot: snap, ChildSaturated: item.childSaturated}
		if err := t.simPool.AssignSimulation(task, item.taskID); err != nil {
			break
		}
		t.pendingSimulation = t.pendingSimulation[1:]
		t.simMeta[item.taskID] = item

		nodeRef, ok := t.registry[item.taskID]
		if !ok {
			return fmt.Errorf("%w: simulation dispatch task %d", ErrUnknownTaskID, item.taskID)
		}
		if err := t.incompleteUpdate(nodeRef, item.taskID); err != nil {
			return err
		}
	}
	return nil
}

func (t *Tree) collectExpansion() error {
	reply := t.expPool.CollectOne()
	if reply.Kind == pool.ReplyPanic {
		return fmt.Errorf("egmcts: expansion worker panic: %w", reply.Err)
	}

	nodeRef, ok := t.registry[reply.TaskID]
	if !ok {
		return fmt.Errorf("%w: expansion task %d", ErrUnknownTaskID, reply.TaskID)
	}

	nodeRef.Reward[reply.Action] = reply.Reward
	nodeRef.Done[reply.Action] = reply.Done
	nodeRef.RecordStep(reply.TaskID, reply.Action, reply.Reward)

	if reply.Done {
		// With more than one expansion worker, two in-flight tasks can
		// independently target the same not-yet-covered action before
		// either completes; whichever reply lands second finds the child
		// already there and just folds its stats into it instead of
		// erroring.
		if err := nodeRef.AddChild(reply.Action, reply.SavingIdx, reply.ChildSaturated); err != nil && !errors.Is(err, node.ErrChildAlreadyExists) {
			return fmt.Errorf("egmcts: expansion add child: %w", err)
		}
		if err := t.incompleteUpdate(nodeRef, reply.TaskID); err != nil {
			return err
		}
		if _, err := t.completeUpdate(nodeRef, reply.TaskID, 0.0); err != nil {
			return err
		}
		delete(t.registry, reply.TaskID)
		t.simulationCount++
		return nil
	}

	if err := t.store.Put(reply.SavingIdx, *reply.NewSnapshot); err != nil {
		return fmt.Errorf("egmcts: expansion store snapshot: %w", err)
	}
	t.pendingSimulation = append(t.pendingSimulation, pendingSimulationItem{
		taskID:         reply.TaskID,
		action:         reply.Action,
		savingIdx:      reply.SavingIdx,
		childSaturated: reply.ChildSaturated,
	})
	return nil
}

func (t *Tree) collectSimulation() error {
	reply := t.simPool.CollectOne()
	if reply.Kind == pool.ReplyPanic {
		return fmt.Errorf("egmcts: simulation worker panic: %w", reply.Err)
	}

	meta, ok := t.simMeta[reply.TaskID]
	if !ok {
		return fmt.Errorf("%w: simulation task %d", ErrUnknownTaskID, reply.TaskID)
	}
	delete(t.simMeta, reply.TaskID)

	nodeRef, ok := t.registry[reply.TaskID]
	if !ok {
		return fmt.Errorf("%w: simulation task %d", ErrUnknownTaskID, reply.TaskID)
	}

	// Same race as collectExpansion's done branch, reached here instead
	// when the duplicate targets a non-terminal expansion: the simulation
	// that returns second still backs up its reward, it just doesn't
	// re-create the child.
	if err := nodeRef.AddChild(meta.action, meta.savingIdx, meta.childSaturated); err != nil && !errors.Is(err, node.ErrChildAlreadyExists) {
		return fmt.Errorf("egmcts: simulation add child: %w", err)
	}
	if _, err := t.completeUpdate(nodeRef, reply.TaskID, reply.AccuReward); err != nil {
		return err
	}
	delete(t.registry, reply.TaskID)
	t.simulationCount++
	return nil
}

// drainOutstanding keeps servicing in-flight replies past the budget loop
// until simulation_count reaches budget, so a planning round always
// finishes every simulation it started rather than abandoning stragglers.
func (t *Tree) drainOutstanding() error {
	for t.simulationCount < t.budget {
		t.dispatchExpansions()
		if t.expPool.HasBusyWorker() {
			if err := t.collectExpansion(); err != nil {
				return err
			}
			continue
		}

		if err := t.dispatchSimulations(); err != nil {
			return err
		}
		if t.simPool.HasBusyWorker() {
			if err := t.collectSimulation(); err != nil {
				return err
			}
			continue
		}

		if len(t.pendingExpansion) == 0 && len(t.pendingSimulation) == 0 {
			return fmt.Errorf("egmcts: simulation_count %d below budget %d with no outstanding work", t.simulationCount, t.budget)
		}
	}
	return nil
}

func (t *Tree) incompleteUpdate(n *node.Node, simIdx uint32) error {
	for cur := n; cur != nil; cur = cur.Parent {
		if err := cur.UpdateIncomplete(simIdx); err != nil {
			return fmt.Errorf("egmcts: incomplete update: %w", err)
		}
	}
	return nil
}

func (t *Tree) completeUpdate(n *node.Node, simIdx uint32, accu float64) (float64, error) {
	for cur := n; cur != nil; cur = cur.Parent {
		next, err := cur.UpdateComplete(simIdx, accu)
		if err != nil {
			return 0, fmt.Errorf("egmcts: complete update: %w", err)
		}
		accu = next
	}
	return accu, nil
}

// SimulationCount reports how many simulations completed in the most recent
// round; exported for tests and progress reporting.
func (t *Tree) SimulationCount() uint32 {
	return t.simulationCount
}
