package state

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalBackend_ReadWrite(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(NewLocalBackend(dir))
	ctx := context.Background()

	snap := NewSnapshot()
	snap.Records["compute.Server.web"] = webRecord()
	require.NoError(t, s.Write(ctx, "default", snap, 0))

	// Default scope lands in state.json.
	raw, err := os.ReadFile(filepath.Join(dir, "state.json"))
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"compute.Server.web"`)
	assert.Contains(t, string(raw), `"serial": 1`)

	got, err := s.Read(ctx, "default")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), got.Serial)
	assert.Equal(t, "small", got.Records["compute.Server.web"].Attrs["size"])
}

func TestLocalBackend_NamedScopeFileLayout(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(NewLocalBackend(dir))
	ctx := context.Background()

	require.NoError(t, s.Write(ctx, "staging", NewSnapshot(), 0))
	_, err := os.Stat(filepath.Join(dir, "state.staging.json"))
	require.NoError(t, err)

	scopes, err := s.Scopes(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"staging"}, scopes)
}

func TestLocalBackend_CorruptFileReported(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "state.json"), []byte("{not json"), 0o644))

	s := NewStore(NewLocalBackend(dir))
	_, err := s.Read(context.Background(), "default")
	var corrupt *CorruptError
	require.ErrorAs(t, err, &corrupt)
}

func TestLocalBackend_LockFileHoldsOwnerInfo(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(NewLocalBackend(dir))
	ctx := context.Background()

	lock, err := s.AcquireLock(ctx, "default", 0)
	require.NoError(t, err)

	raw, err := os.ReadFile(filepath.Join(dir, "state.json.lock"))
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"holder"`)

	_, err = s.AcquireLock(ctx, "default", 0)
	assert.ErrorIs(t, err, ErrLockHeld)

	require.NoError(t, lock.Unlock())
	_, err = os.Stat(filepath.Join(dir, "state.json.lock"))
	assert.True(t, os.IsNotExist(err))
}

func TestLocalBackend_UnlockRejectsForeignLock(t *testing.T) {
	dir := t.TempDir()
	backend := NewLocalBackend(dir)
	ctx := context.Background()

	require.NoError(t, backend.TryLock(ctx, &LockInfo{ID: "owner-a", Scope: "default", Holder: "host/pid-1"}))
	err := backend.Unlock(ctx, "default", "owner-b")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "different owner")

	require.NoError(t, backend.Unlock(ctx, "default", "owner-a"))
}

func TestLocalBackend_EncryptedRoundTrip(t *testing.T) {
	t.Setenv(EncryptionKeyEnvVar, "0123456789abcdef0123456789abcdef")

	dir := t.TempDir()
	s := NewStore(NewLocalBackend(dir))
	ctx := context.Background()

	snap := NewSnapshot()
	snap.Records["compute.Server.web"] = webRecord()
	require.NoError(t, s.Write(ctx, "default", snap, 0))

	raw, err := os.ReadFile(filepath.Join(dir, "state.json"))
	require.NoError(t, err)
	assert.True(t, IsEncrypted(raw))
	assert.NotContains(t, string(raw), "compute.Server.web")

	got, err := s.Read(ctx, "default")
	require.NoError(t, err)
	assert.Equal(t, "small", got.Records["compute.Server.web"].Attrs["size"])
}
