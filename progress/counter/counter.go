// Package counter provides the shared completion counter used by the progress
// aggregator.
//
// Two implementations are available:
//
//   - Memory: an atomic in-process counter, used when every worker shares the
//     coordinator's address space.
//   - File: a durable plain-text integer guarded by an exclusive OS file lock,
//     used when workers run in separate processes.
//
// Both guarantee that concurrent callers of IncrementAndRead observe a linear
// history: no lost updates and no value returned twice.
package counter

import (
	"errors"
)

// ErrStorageUnavailable is returned when the durable medium backing a counter
// cannot be created, opened, locked, read or written.
var ErrStorageUnavailable = errors.New("progress counter storage unavailable")

// Counter is a shared monotonically increasing completion counter.
type Counter interface {
	// IncrementAndRead atomically adds one and returns the new value.
	IncrementAndRead() (int, error)

	// Read returns the current value without modifying it.
	Read() (int, error)

	// RemoveIfEqual releases the backing storage when the current value equals
	// expected. It reports whether the storage was removed. Removing storage
	// that is already gone is a no-op.
	RemoveIfEqual(expected int) (bool, error)

	// Close releases any handles held by the counter. It does not remove the
	// backing storage.
	Close() error
}
