// Package pool implements the coordinator-facing worker pool: a fixed set
// of goroutines, each owning a private egraph.Env, driven by per-worker
// inbox/outbox channels and fanned in with channerics.Merge so the
// coordinator can collect whichever reply arrives first without polling
// every worker individually.
package pool

import (
	"time"

	"egraphmcts/internal/egraph"

	channerics "github.com/niceyeti/channerics/channels"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

type status int

const (
	statusIdle status = iota
	statusBusy
)

// Pool owns a fixed number of workers of one kind (expansion or
// simulation). It is not safe for concurrent use by more than one
// coordinator goroutine.
type Pool struct {
	name    string
	workers []*worker
	status  []status
	merged  <-chan Reply
	done    chan struct{}
	eg      *errgroup.Group
}

// New starts n workers, each with its own Env built from expr/rules/limits,
// and returns the Pool once every worker goroutine has been launched. seed
// derives each worker's private rng (seed+workerID) so that, for a fixed
// seed, each worker's sequence of expansion-action and rollout draws is
// reproducible.
func New(name string, n int, expr string, rules []egraph.Rule, nodeLimit int, timeLimit time.Duration, gamma float64, maxSimStep uint32, seed int64, log zerolog.Logger) (*Pool, error) {
	workers := make([]*worker, n)
	outboxes := make([]<-chan Reply, n)
	eg := &errgroup.Group{}

	for i := 0; i < n; i++ {
		w, err := newWorker(i, expr, rules, nodeLimit, timeLimit, gamma, maxSimStep, seed, log)
		if err != nil {
			return nil, err
		}
		workers[i] = w
		outboxes[i] = w.outbox
		eg.Go(w.run)
	}

	done := make(chan struct{})
	return &Pool{
		name:    name,
		workers: workers,
		status:  make([]status, n),
		merged:  channerics.Merge(done, outboxes...),
		done:    done,
		eg:      eg,
	}, nil
}

// Size is the number of workers in the pool.
func (p *Pool) Size() int {
	return len(p.workers)
}

// HasIdleWorker reports whether at least one worker is free to accept work.
func (p *Pool) HasIdleWorker() bool {
	for _, s := range p.status {
		if s == statusIdle {
			return true
		}
	}
	return false
}

// Occupancy is the fraction of workers currently busy, in [0,1].
func (p *Pool) Occupancy() float64 {
	busy := 0
	for _, s := range p.status {
		if s == statusBusy {
			busy++
		}
	}
	return float64(busy) / float64(len(p.status))
}

func (p *Pool) findIdle() (int, error) {
	for i, s := range p.status {
		if s == statusIdle {
			return i, nil
		}
	}
	return -1, ErrNoIdleWorker
}

// AssignExpansion hands task to an idle worker, identified by taskID for the
// coordinator's own bookkeeping and savingIdx for the checkpoint slot the
// resulting (non-terminal) state should be stored under.
func (p *Pool) AssignExpansion(task ExpansionTask, savingIdx, taskID uint32) error {
	i, err := p.findIdle()
	if err != nil {
		return err
	}
	p.status[i] = statusBusy
	p.workers[i].inbox <- Message{
		Kind:      MsgExpansion,
		TaskID:    taskID,
		SavingIdx: savingIdx,
		Expansion: task,
	}
	return nil
}

// AssignSimulation hands task to an idle worker.
func (p *Pool) AssignSimulation(task SimulationTask, taskID uint32) error {
	i, err := p.findIdle()
	if err != nil {
		return err
	}
	p.status[i] = statusBusy
	p.workers[i].inbox <- Message{
		Kind:       MsgSimulation,
		TaskID:     taskID,
		Simulation: task,
	}
	return nil
}

func (p *Pool) markIdle(r Reply) {
	if r.WorkerID >= 0 && r.WorkerID < len(p.status) {
		p.status[r.WorkerID] = statusIdle
	}
}

// TryCollectOne returns the next completed reply without blocking, or
// (Reply{}, false) if none is ready yet.
func (p *Pool) TryCollectOne() (Reply, bool) {
	select {
	case r := <-p.merged:
		p.markIdle(r)
		return r, true
	default:
		return Reply{}, false
	}
}

// CollectOne blocks until a reply is available.
func (p *Pool) CollectOne() Reply {
	r := <-p.merged
	p.markIdle(r)
	return r
}

// DrainToIdle blocks until every worker has reported back, i.e. the pool is
// fully idle. It returns the first panic reply it observes, if any, but
// keeps draining so the pool doesn't deadlock on the still-busy workers.
func (p *Pool) DrainToIdle() error {
	var firstErr error
	for p.HasBusyWorker() {
		r := p.CollectOne()
		if r.Kind == ReplyPanic && firstErr == nil {
			firstErr = r.Err
		}
	}
	return firstErr
}

// HasBusyWorker reports whether any worker has outstanding work.
func (p *Pool) HasBusyWorker() bool {
	for _, s := range p.status {
		if s == statusBusy {
			return true
		}
	}
	return false
}

// Shutdown drains outstanding work, tells every worker to exit, and waits
// on the errgroup so a panic recovered by any worker surfaces here.
func (p *Pool) Shutdown() error {
	drainErr := p.DrainToIdle()
	for _, w := range p.workers {
		w.inbox <- Message{Kind: MsgExit}
	}
	waitErr := p.eg.Wait()
	close(p.done)
	if drainErr != nil {
		return drainErr
	}
	return waitErr
}
