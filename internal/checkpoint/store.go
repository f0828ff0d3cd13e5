// Package checkpoint is the coordinator's single-writer, single-reader-per-
// entry map from a monotonically increasing saving index to an egraph
// snapshot, cleared between planning rounds.
package checkpoint

import (
	"errors"
	"fmt"

	"egraphmcts/internal/egraph"
)

// ErrMissingCheckpoint is returned by Get when idx was never written.
var ErrMissingCheckpoint = errors.New("checkpoint: missing index")

// ErrDuplicateCheckpoint is returned by Put when idx was already written
// this round.
var ErrDuplicateCheckpoint = errors.New("checkpoint: duplicate index")

// Store maps saving index to Snapshot. Reading an unwritten index, or
// writing an already-written one, is a programmer error.
type Store struct {
	buf map[uint32]egraph.Snapshot
}

// New returns an empty Store.
func New() *Store {
	return &Store{buf: make(map[uint32]egraph.Snapshot)}
}

// Clear drops all entries, as done between planning rounds.
func (s *Store) Clear() {
	s.buf = make(map[uint32]egraph.Snapshot)
}

// Put inserts snap at idx. idx must not already be present.
func (s *Store) Put(idx uint32, snap egraph.Snapshot) error {
	if _, ok := s.buf[idx]; ok {
		return fmt.Errorf("%w: %d", ErrDuplicateCheckpoint, idx)
	}
	s.buf[idx] = snap
	return nil
}

// Get returns a clone of the snapshot stored at idx.
func (s *Store) Get(idx uint32) (egraph.Snapshot, error) {
	snap, ok := s.buf[idx]
	if !ok {
		return egraph.Snapshot{}, fmt.Errorf("%w: %d", ErrMissingCheckpoint, idx)
	}
	return snap.Clone(), nil
}
