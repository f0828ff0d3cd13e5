package node

import "errors"

// ErrNoSelectableChild is returned by SelectUCT when no action has an
// expanded, unsaturated child to choose among.
var ErrNoSelectableChild = errors.New("node: no selectable child")

// ErrChildAlreadyExists is returned by AddChild when the action slot is
// already populated; the spec treats this as a programmer error, not a
// silent no-op.
var ErrChildAlreadyExists = errors.New("node: child already exists for action")
