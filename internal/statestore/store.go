// Package statestore implements the key/value live-state and log queue
// backing store: a pluggable shared network store (Redis) or an
// in-process map, addressed by a run's runtime id.
package statestore

import "context"

// WriteMode selects how WriteState combines a new value with whatever is
// already stored at path.
type WriteMode string

const (
	// ModeSet overwrites the value at path.
	ModeSet WriteMode = "set"
	// ModeIncrement atomically adds value (an int) to the existing integer
	// at path, treating a missing key as 0.
	ModeIncrement WriteMode = "increment"
	// ModeAppend appends value to the list at path.
	ModeAppend WriteMode = "append"
)

// LogOp selects a LogQueue operation.
type LogOp string

const (
	// LogAdd appends a line to the queue.
	LogAdd LogOp = "add"
	// LogGet returns items from startLine in insertion order.
	LogGet LogOp = "get"
)

// Store is the live-state and log-queue contract every backend satisfies.
// Implementations MUST NOT return an error for a transient unreachable
// backend; instead they log internally and carry on as a no-op write or an
// empty read. Errors are returned only for programmer mistakes (an unknown
// write mode or log op, a non-integer increment value), never for
// network/connection failure, so that the Workflow Engine never has to
// special-case "state store down" in its walk.
type Store interface {
	// WriteState writes value at path within runtime's state using mode
	// (the shared backend stores it under the key "<runtime>/state/<path>").
	WriteState(ctx context.Context, runtime, path string, value any, mode WriteMode) error

	// GetState assembles the full nested tree for one runtime from its flat
	// "a/b/c" paths.
	GetState(ctx context.Context, runtime string) (map[string]any, error)

	// LogQueue appends to or reads from the per-(runtime, serviceID) log
	// queue. For LogAdd, line is appended and the return value is nil. For
	// LogGet, line is ignored and the entries after the first startLine are
	// returned in insertion order.
	LogQueue(ctx context.Context, runtime, serviceID string, op LogOp, line string, startLine int) ([]string, error)
}
