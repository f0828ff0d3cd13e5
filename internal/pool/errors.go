package pool

import "errors"

// ErrNoIdleWorker is returned by AssignExpansion/AssignSimulation when every
// worker in the pool is busy. Callers are expected to treat this as a
// throttling signal, not a fatal error.
var ErrNoIdleWorker = errors.New("pool: no idle worker")
