package state

import (
	"context"
	"fmt"
	"time"
)

// LockInfo describes the holder of a scope lock.
type LockInfo struct {
	ID      string    `json:"id"`
	Scope   string    `json:"scope"`
	Holder  string    `json:"holder"` // hostname/pid, informational
	Created time.Time `json:"created"`
}

// Backend is the storage layer beneath the Store. Backends persist
// snapshots and arbitrate the per-scope exclusive lock; the optimistic
// serial check lives in the Store, above this interface.
type Backend interface {
	// Read returns the snapshot for a scope, or errNotFound when the scope
	// has never been written.
	Read(ctx context.Context, scope string) (*Snapshot, error)

	// Write atomically replaces the snapshot for a scope.
	Write(ctx context.Context, scope string, snap *Snapshot) error

	// TryLock acquires the scope lock or fails immediately with ErrLockHeld.
	TryLock(ctx context.Context, info *LockInfo) error

	// Unlock releases the scope lock identified by lockID.
	Unlock(ctx context.Context, scope, lockID string) error

	// Delete removes the snapshot for a scope. Deleting a scope that was
	// never written is a no-op.
	Delete(ctx context.Context, scope string) error

	// Scopes lists every scope the backend has state for.
	Scopes(ctx context.Context) ([]string, error)
}

// BackendConfig selects and configures a backend.
type BackendConfig struct {
	Type   string            `json:"type"` // "local", "s3", "mem"
	Config map[string]string `json:"config"`
}

// NewBackend creates a backend from configuration.
func NewBackend(cfg *BackendConfig) (Backend, error) {
	if cfg == nil {
		return nil, fmt.Errorf("backend configuration is nil")
	}

	switch cfg.Type {
	case "local", "":
		dir := cfg.Config["dir"]
		if dir == "" {
			dir = ".quarry"
		}
		return NewLocalBackend(dir), nil
	case "s3":
		return newS3Backend(cfg.Config)
	case "mem":
		return NewMemBackend(), nil
	default:
		return nil, fmt.Errorf("unknown backend type: %s", cfg.Type)
	}
}
