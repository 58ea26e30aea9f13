package plan

import (
	"fmt"
	"strings"
)

// ConflictError means two plan entries would contend for the same
// real-world identity. Planning aborts; no partial plan is returned.
type ConflictError struct {
	Identity  string
	Addresses []string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("plan conflict: %s contend for identity %q",
		strings.Join(e.Addresses, " and "), e.Identity)
}

// PreventDestroyError means a plan requires destroying a resource whose
// lifecycle forbids it.
type PreventDestroyError struct {
	Address string
}

func (e *PreventDestroyError) Error() string {
	return fmt.Sprintf("resource %s has preventDestroy set but the plan requires destruction", e.Address)
}

// CycleError means the resource dependency graph is not acyclic.
type CycleError struct {
	Addresses []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("dependency cycle detected through %s", strings.Join(e.Addresses, ", "))
}
