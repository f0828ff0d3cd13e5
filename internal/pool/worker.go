package pool

import (
	"fmt"
	"math/rand"
	"time"

	"egraphmcts/internal/egraph"

	"github.com/rs/zerolog"
)

// worker owns one private Env and runs it to completion of every message it
// is handed before looking at the next, including Exit.
type worker struct {
	id         int
	inbox      chan Message
	outbox     chan Reply
	env        *egraph.Env
	gamma      float64
	maxSimStep uint32
	rng        *rand.Rand
}

func newWorker(id int, expr string, rules []egraph.Rule, nodeLimit int, timeLimit time.Duration, gamma float64, maxSimStep uint32, seed int64, log zerolog.Logger) (*worker, error) {
	env, err := egraph.New(expr, rules, nodeLimit, timeLimit, log.With().Int("worker", id).Logger())
	if err != nil {
		return nil, fmt.Errorf("pool: worker %d: %w", id, err)
	}
	env.Reset()
	return &worker{
		id:         id,
		inbox:      make(chan Message),
		outbox:     make(chan Reply),
		env:        env,
		gamma:      gamma,
		maxSimStep: maxSimStep,
		rng:        rand.New(rand.NewSource(seed + int64(id))),
	}, nil
}

// run is the worker's goroutine body, launched under an errgroup.Group so a
// recovered panic propagates as the group's error. A panic anywhere below is
// recovered, converted into both a ReplyPanic (so the coordinator's
// in-flight drain sees it immediately) and a returned error (so Shutdown's
// errgroup.Wait surfaces it too); its outbox is always closed on the way out
// so the pool's fan-in can observe the worker is gone.
func (w *worker) run() (err error) {
	defer close(w.outbox)
	defer func() {
		if r := recover(); r != nil {
			rerr := fmt.Errorf("pool: worker %d panicked: %v", w.id, r)
			w.outbox <- Reply{Kind: ReplyPanic, WorkerID: w.id, Err: rerr}
			err = rerr
		}
	}()

	for msg := range w.inbox {
		switch msg.Kind {
		case MsgExit:
			return nil
		case MsgNothing:
			w.outbox <- Reply{Kind: ReplyAck, WorkerID: w.id, TaskID: msg.TaskID}
		case MsgExpansion:
			w.outbox <- w.handleExpansion(msg)
		case MsgSimulation:
			w.outbox <- w.handleSimulation(msg)
		}
	}
	return nil
}

func (w *worker) handleExpansion(msg Message) Reply {
	w.env.Restore(msg.Expansion.Snapshot)

	action := msg.Expansion.Stub.SelectExpansionAction(w.rng)
	reward, done, reason, err := w.env.Step(action)
	if err != nil {
		panic(err)
	}

	var newSnap *egraph.Snapshot
	if !done {
		s := w.env.Checkpoint()
		newSnap = &s
	}

	return Reply{
		Kind:           ReplyDoneExpansion,
		WorkerID:       w.id,
		TaskID:         msg.TaskID,
		Action:         action,
		Reward:         reward,
		Done:           done,
		ChildSaturated: msg.Expansion.Stub.IsHead && reason == egraph.StopSaturated,
		NewSnapshot:    newSnap,
		SavingIdx:      msg.SavingIdx,
	}
}

// handleSimulation performs a random rollout from the already-expanded
// state up to maxSimStep actions, returning the discounted accumulated
// reward for the coordinator's backup pass.
func (w *worker) handleSimulation(msg Message) Reply {
	w.env.Restore(msg.Simulation.Snapshot)

	accu := 0.0
	discount := 1.0
	for k := uint32(0); k < w.maxSimStep; k++ {
		action := w.rng.Intn(w.env.ActionSpace())
		reward, done, _, err := w.env.Step(action)
		if err != nil {
			panic(err)
		}
		accu += reward * discount
		discount *= w.gamma
		if done {
			break
		}
	}

	// Value-bootstrapping hooks: with factor 1 and startValue 0 the reply is
	// the plain discounted rollout sum.
	const factor, startValue = 1.0, 0.0
	return Reply{
		Kind:       ReplyDoneSimulation,
		WorkerID:   w.id,
		TaskID:     msg.TaskID,
		AccuReward: accu*factor + startValue*(1-factor),
	}
}
