package pool

import (
	"egraphmcts/internal/egraph"
	"egraphmcts/internal/node"
)

// ExpansionTask is the payload dispatched to an expansion worker: the
// snapshot to restore from and a value-typed stub of the node requesting
// expansion.
type ExpansionTask struct {
	Snapshot egraph.Snapshot
	Stub     node.Stub
}

// SimulationTask is the payload dispatched to a rollout worker: the action
// already applied (reflected in Snapshot) plus whether that action
// saturated the engine at the root.
type SimulationTask struct {
	Action         int
	Snapshot       egraph.Snapshot
	ChildSaturated bool
}

// MessageKind selects the worker-loop branch a Message drives.
type MessageKind int

const (
	MsgNothing MessageKind = iota
	MsgExpansion
	MsgSimulation
	MsgExit
)

// Message is sent to a single worker's inbox.
type Message struct {
	Kind       MessageKind
	TaskID     uint32
	SavingIdx  uint32
	Expansion  ExpansionTask
	Simulation SimulationTask
}

// ReplyKind selects the meaning of a Reply's payload.
type ReplyKind int

const (
	ReplyAck ReplyKind = iota
	ReplyDoneExpansion
	ReplyDoneSimulation
	ReplyPanic
)

// Reply is sent from a worker's outbox back to the coordinator.
type Reply struct {
	Kind     ReplyKind
	WorkerID int
	TaskID   uint32

	// ReplyDoneExpansion
	Action         int
	Reward         float64
	Done           bool
	ChildSaturated bool
	NewSnapshot    *egraph.Snapshot
	SavingIdx      uint32

	// ReplyDoneSimulation
	AccuReward float64

	// ReplyPanic
	Err error
}
