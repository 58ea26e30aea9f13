package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// LocalBackend persists one JSON state file per scope under a directory,
// with a sidecar lock file holding the owner's LockInfo. Writes go through
// a temp file and rename so a crashed write never truncates state.
type LocalBackend struct {
	dir string
}

// NewLocalBackend returns a backend rooted at dir. The directory is
// created lazily on first write.
func NewLocalBackend(dir string) *LocalBackend {
	return &LocalBackend{dir: dir}
}

func (b *LocalBackend) statePath(scope string) string {
	if scope == "" || scope == "default" {
		return filepath.Join(b.dir, "state.json")
	}
	return filepath.Join(b.dir, fmt.Sprintf("state.%s.json", scope))
}

func (b *LocalBackend) lockPath(scope string) string {
	return b.statePath(scope) + ".lock"
}

func (b *LocalBackend) Read(ctx context.Context, scope string) (*Snapshot, error) {
	raw, err := os.ReadFile(b.statePath(scope))
	if os.IsNotExist(err) {
		return nil, errNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read state file: %w", err)
	}

	if IsEncrypted(raw) {
		raw, err = DecryptState(raw)
		if err != nil {
			return nil, fmt.Errorf("failed to decrypt state for scope %q: %w", scope, err)
		}
	}

	var snap Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, &CorruptError{Scope: scope, Reason: fmt.Sprintf("unparseable state file: %v", err)}
	}
	return &snap, nil
}

func (b *LocalBackend) Write(ctx context.Context, scope string, snap *Snapshot) error {
	if err := os.MkdirAll(b.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}

	raw, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode state: %w", err)
	}
	raw = append(raw, '\n')

	raw, err = EncryptState(raw)
	if err != nil {
		return fmt.Errorf("failed to encrypt state: %w", err)
	}

	path := b.statePath(scope)
	tmp, err := os.CreateTemp(b.dir, ".state-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp state file: %w", err)
	}
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write temp state file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to close temp state file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to replace state file: %w", err)
	}
	return nil
}

func (b *LocalBackend) TryLock(ctx context.Context, info *LockInfo) error {
	if err := os.MkdirAll(b.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}

	path := b.lockPath(info.Scope)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if errors.Is(err, os.ErrExist) {
		holder := "unknown holder"
		if raw, rerr := os.ReadFile(path); rerr == nil {
			var held LockInfo
			if json.Unmarshal(raw, &held) == nil && held.Holder != "" {
				holder = fmt.Sprintf("%s since %s", held.Holder, held.Created.Format("2006-01-02T15:04:05Z"))
			}
		}
		return fmt.Errorf("%s (lock file %s): %w", holder, path, ErrLockHeld)
	}
	if err != nil {
		return fmt.Errorf("failed to create lock file: %w", err)
	}

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(info); err != nil {
		f.Close()
		os.Remove(path)
		return fmt.Errorf("failed to write lock file: %w", err)
	}
	return f.Close()
}

func (b *LocalBackend) Unlock(ctx context.Context, scope, lockID string) error {
	path := b.lockPath(scope)
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read lock file: %w", err)
	}

	var held LockInfo
	if err := json.Unmarshal(raw, &held); err == nil && held.ID != "" && held.ID != lockID {
		return fmt.Errorf("lock for scope %q is held by a different owner (%s)", scope, held.Holder)
	}

	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove lock file: %w", err)
	}
	return nil
}

func (b *LocalBackend) Delete(ctx context.Context, scope string) error {
	if err := os.Remove(b.statePath(scope)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete state file: %w", err)
	}
	return nil
}

func (b *LocalBackend) Scopes(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(b.dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read state directory: %w", err)
	}

	var scopes []string
	for _, entry := range entries {
		name := entry.Name()
		switch {
		case name == "state.json":
			scopes = append(scopes, "default")
		case strings.HasPrefix(name, "state.") && strings.HasSuffix(name, ".json"):
			scope := strings.TrimSuffix(strings.TrimPrefix(name, "state."), ".json")
			if scope != "" {
				scopes = append(scopes, scope)
			}
		}
	}
	sort.Strings(scopes)
	return scopes, nil
}
