package egmcts

import "errors"

// ErrUnknownTaskID is returned when a reply's task id has no corresponding
// registry entry — a coordinator bookkeeping bug, never a worker outcome.
var ErrUnknownTaskID = errors.New("egmcts: unknown task id")
