package state

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/quarry-io/quarry/internal/logging"
)

// lockPollInterval is how often AcquireLock re-attempts a held lock.
const lockPollInterval = 250 * time.Millisecond

// Store is the sole source of truth for what currently exists. Mutation of
// a scope is guarded twice: the pessimistic per-scope lock serializes
// operators, and the optimistic serial check in Write catches anything
// that slips past the lock.
type Store struct {
	backend Backend
}

// NewStore wraps a backend in a Store.
func NewStore(backend Backend) *Store {
	return &Store{backend: backend}
}

// Lock is a held scope lock. Unlock is safe to call more than once.
type Lock struct {
	store    *Store
	scope    string
	id       string
	mu       sync.Mutex
	released bool
}

// Scope returns the scope this lock guards.
func (l *Lock) Scope() string { return l.scope }

// Unlock releases the lock. Idempotent.
func (l *Lock) Unlock() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.released {
		return nil
	}
	l.released = true
	return l.store.backend.Unlock(context.Background(), l.scope, l.id)
}

// AcquireLock takes the exclusive lock for a scope. With a zero timeout a
// held lock fails immediately with ErrLockHeld; otherwise the store polls
// until the timeout elapses and then fails with ErrLockTimeout.
func (s *Store) AcquireLock(ctx context.Context, scope string, timeout time.Duration) (*Lock, error) {
	hostname, _ := os.Hostname()
	info := &LockInfo{
		ID:      uuid.NewString(),
		Scope:   scope,
		Holder:  fmt.Sprintf("%s/pid-%d", hostname, os.Getpid()),
		Created: time.Now().UTC(),
	}

	deadline := time.Now().Add(timeout)
	for {
		err := s.backend.TryLock(ctx, info)
		if err == nil {
			logging.Debug("acquired state lock", "scope", scope, "lock_id", info.ID)
			return &Lock{store: s, scope: scope, id: info.ID}, nil
		}
		if !errors.Is(err, ErrLockHeld) {
			return nil, err
		}
		if timeout <= 0 {
			return nil, fmt.Errorf("scope %q: %w", scope, ErrLockHeld)
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("scope %q after %s: %w", scope, timeout, ErrLockTimeout)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(lockPollInterval):
		}
	}
}

// Read returns the current snapshot for a scope, or an empty first-run
// snapshot when none exists. Corrupt state is reported, never repaired.
func (s *Store) Read(ctx context.Context, scope string) (*Snapshot, error) {
	snap, err := s.backend.Read(ctx, scope)
	if errors.Is(err, errNotFound) {
		return NewSnapshot(), nil
	}
	if err != nil {
		return nil, err
	}
	if snap.Records == nil {
		snap.Records = make(map[string]*Record)
	}
	if err := snap.validate(scope); err != nil {
		return nil, err
	}
	return snap.DeepCopy(), nil
}

// Write replaces the stored snapshot for a scope, but only if
// expectedSerial matches the serial currently stored. On success the new
// snapshot's serial is exactly expectedSerial+1. A mismatch fails with
// StaleWriteError and leaves the stored records untouched.
func (s *Store) Write(ctx context.Context, scope string, snap *Snapshot, expectedSerial uint64) error {
	current, err := s.backend.Read(ctx, scope)
	switch {
	case errors.Is(err, errNotFound):
		current = NewSnapshot()
	case err != nil:
		return err
	default:
		if verr := current.validate(scope); verr != nil {
			// Never write over corrupt state.
			return verr
		}
	}

	if current.Serial != expectedSerial {
		return &StaleWriteError{Scope: scope, Expected: expectedSerial, Actual: current.Serial}
	}

	next := snap.DeepCopy()
	next.Version = CurrentVersion
	next.Serial = expectedSerial + 1
	switch {
	case current.Lineage != "":
		next.Lineage = current.Lineage
	case next.Lineage == "":
		next.Lineage = uuid.NewString()
	}
	if err := next.validate(scope); err != nil {
		return err
	}

	if err := s.backend.Write(ctx, scope, next); err != nil {
		return err
	}
	logging.Debug("wrote state", "scope", scope, "serial", next.Serial, "records", len(next.Records))
	return nil
}

// Scopes lists every scope the store has state for.
func (s *Store) Scopes(ctx context.Context) ([]string, error) {
	return s.backend.Scopes(ctx)
}

// DeleteScope removes a scope's state. Refuses when the scope still tracks
// records unless force is set; callers hold the scope lock while deleting.
func (s *Store) DeleteScope(ctx context.Context, scope string, force bool) error {
	snap, err := s.backend.Read(ctx, scope)
	if errors.Is(err, errNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if len(snap.Records) > 0 && !force {
		return fmt.Errorf("scope %q still tracks %d resource(s); destroy them first or force deletion", scope, len(snap.Records))
	}
	if err := s.backend.Delete(ctx, scope); err != nil {
		return err
	}
	logging.Info("deleted state scope", "scope", scope, "records", len(snap.Records))
	return nil
}
