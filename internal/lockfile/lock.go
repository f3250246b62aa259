// Package lockfile provides advisory, OS-level file locking. weft's
// pristine store (internal/pristine) opens a single exclusive lock file
// beside the bbolt database and holds it for the lifetime of the store,
// independent of bbolt's own single-writer-transaction guarantee: bbolt
// serialises writer transactions within one process, but two separate
// weft processes opening the same store file would otherwise both
// believe they held the writer role. ErrLocked is what a second Open
// gets back instead.
package lockfile

import (
	"errors"
)

// errProcessLocked is the sentinel beneath ErrLocked and IsLocked;
// build-tag-specific flock wrappers (lock_unix.go, lock_wasm.go) return
// it when another process already holds the exclusive lock.
var errProcessLocked = errors.New("process lock already held by another process")

// ErrLocked is returned by pristine.Open when another process already
// holds the store's writer lock.
var ErrLocked = errProcessLocked

// ErrLockBusy is returned when a non-blocking lock cannot be acquired
// because another process holds a conflicting lock.
var ErrLockBusy = errors.New("lock busy: held by another process")

// IsLocked returns true if the error indicates a lock is held by another process.
func IsLocked(err error) bool {
	return err == errProcessLocked
}
