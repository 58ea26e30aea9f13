package state

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// MemBackend is an in-process backend. Used by tests and by callers that
// want plan/apply semantics without persistence.
type MemBackend struct {
	mu    sync.Mutex
	snaps map[string]*Snapshot
	locks map[string]*LockInfo
}

// NewMemBackend returns an empty in-memory backend.
func NewMemBackend() *MemBackend {
	return &MemBackend{
		snaps: make(map[string]*Snapshot),
		locks: make(map[string]*LockInfo),
	}
}

func (b *MemBackend) Read(ctx context.Context, scope string) (*Snapshot, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	snap, ok := b.snaps[scope]
	if !ok {
		return nil, errNotFound
	}
	return snap.DeepCopy(), nil
}

func (b *MemBackend) Write(ctx context.Context, scope string, snap *Snapshot) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.snaps[scope] = snap.DeepCopy()
	return nil
}

func (b *MemBackend) TryLock(ctx context.Context, info *LockInfo) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if held, ok := b.locks[info.Scope]; ok {
		return fmt.Errorf("held by %s since %s: %w", held.Holder, held.Created, ErrLockHeld)
	}
	b.locks[info.Scope] = info
	return nil
}

func (b *MemBackend) Unlock(ctx context.Context, scope, lockID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	held, ok := b.locks[scope]
	if !ok {
		return nil
	}
	if held.ID != lockID {
		return fmt.Errorf("lock for scope %q is held by a different owner", scope)
	}
	delete(b.locks, scope)
	return nil
}

func (b *MemBackend) Delete(ctx context.Context, scope string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.snaps, scope)
	return nil
}

func (b *MemBackend) Scopes(ctx context.Context) ([]string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	scopes := make([]string, 0, len(b.snaps))
	for s := range b.snaps {
		scopes = append(scopes, s)
	}
	sort.Strings(scopes)
	return scopes, nil
}
