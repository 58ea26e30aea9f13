package config

import (
	"errors"
	"fmt"
)

// ErrorKind classifies configuration errors so callers can branch on kind.
type ErrorKind string

const (
	// UnresolvedVariable means a required variable has neither a default
	// nor an overlay value.
	UnresolvedVariable ErrorKind = "unresolved variable"

	// CyclicLocal means the locals reference graph contains a cycle.
	CyclicLocal ErrorKind = "cyclic local"

	// DuplicateResource means count expansion produced two instances with
	// the same address.
	DuplicateResource ErrorKind = "duplicate resource"

	// InvalidType means a supplied value does not match the declared type,
	// or a count is negative.
	InvalidType ErrorKind = "invalid type"

	// UnknownReference means an interpolation names a variable or local
	// that does not exist.
	UnknownReference ErrorKind = "unknown reference"
)

// Error is a configuration error. Always fatal to the current operation.
type Error struct {
	Kind    ErrorKind
	Subject string // the offending identifier
	Detail  string
}

func (e *Error) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s: %s", e.Kind, e.Subject, e.Detail)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Subject)
}

// IsKind reports whether err is a configuration error of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var ce *Error
	return errors.As(err, &ce) && ce.Kind == kind
}
