package state

import (
	"errors"
	"fmt"
)

// ErrLockHeld is returned when another holder owns the scope lock and the
// caller asked not to wait.
var ErrLockHeld = errors.New("state lock is held by another process")

// ErrLockTimeout is returned when the scope lock could not be acquired
// within the caller's timeout.
var ErrLockTimeout = errors.New("timed out waiting for state lock")

// errNotFound is returned by backends when no state exists for a scope.
// The store maps it to an empty first-run snapshot.
var errNotFound = errors.New("state not found")

// StaleWriteError means the caller's expected serial no longer matches the
// stored serial. The caller must re-read state and re-plan; retrying the
// same write verbatim is always wrong.
type StaleWriteError struct {
	Scope    string
	Expected uint64
	Actual   uint64
}

func (e *StaleWriteError) Error() string {
	return fmt.Sprintf("stale write to scope %q: expected serial %d, store has %d",
		e.Scope, e.Expected, e.Actual)
}

// CorruptError means stored state violates its own invariants. The store
// refuses to plan or write against a corrupt scope; recovery is manual.
type CorruptError struct {
	Scope  string
	Reason string
}

func (e *CorruptError) Error() string {
	return fmt.Sprintf("state for scope %q is corrupt: %s", e.Scope, e.Reason)
}
