package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quarry-io/quarry/internal/plan"
)

func TestColorize(t *testing.T) {
	noColor = false
	assert.Equal(t, "\033[31m", colorize("\033[31m"))

	noColor = true
	assert.Equal(t, "", colorize("\033[31m"))

	noColor = false
}

func TestActionSymbol(t *testing.T) {
	assert.Equal(t, "+", actionSymbol(plan.ActionCreate))
	assert.Equal(t, "-", actionSymbol(plan.ActionDelete))
	assert.Equal(t, "-/+", actionSymbol(plan.ActionReplace))
	assert.Equal(t, "~", actionSymbol(plan.ActionUpdate))
	assert.Equal(t, " ", actionSymbol(plan.ActionNoop))
}

func TestFormatValue(t *testing.T) {
	assert.Equal(t, "null", formatValue(nil))
	assert.Equal(t, `"small"`, formatValue("small"))
	assert.Equal(t, "8080", formatValue(8080))
	assert.Equal(t, "true", formatValue(true))
}

func TestCurrentWorkspace_DefaultsWhenUnset(t *testing.T) {
	chdirTemp(t)
	assert.Equal(t, "default", currentWorkspace())
}

func TestSwitchWorkspace(t *testing.T) {
	chdirTemp(t)

	require.NoError(t, switchWorkspace("staging"))
	assert.Equal(t, "staging", currentWorkspace())

	require.NoError(t, switchWorkspace("default"))
	assert.Equal(t, "default", currentWorkspace())
}

func TestLoadBackendConfig_DefaultsToLocal(t *testing.T) {
	dir := t.TempDir()
	cfg := loadBackendConfig(dir)
	assert.Equal(t, "local", cfg.Type)
	assert.Equal(t, filepath.Join(dir, ".quarry"), cfg.Config["dir"])
}

func TestLoadBackendConfig_ReadsBackendFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, ".quarry"), 0o755))

	raw, err := json.Marshal(map[string]any{
		"type":   "s3",
		"config": map[string]string{"bucket": "my-state", "region": "eu-west-1"},
	})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".quarry", "backend.json"), raw, 0o644))

	cfg := loadBackendConfig(dir)
	assert.Equal(t, "s3", cfg.Type)
	assert.Equal(t, "my-state", cfg.Config["bucket"])
}

func TestVersionString(t *testing.T) {
	oldVersion, oldCommit := Version, Commit
	t.Cleanup(func() { Version, Commit = oldVersion, oldCommit })

	Version, Commit = "1.2.3", ""
	assert.Contains(t, versionString(), "quarry version 1.2.3")
	assert.NotContains(t, versionString(), "commit")

	Commit = "abc1234"
	assert.Contains(t, versionString(), "commit abc1234")
}

func TestSortedKeys(t *testing.T) {
	m := map[string]int{"c": 1, "a": 2, "b": 3}
	assert.Equal(t, []string{"a", "b", "c"}, sortedKeys(m))
}

func chdirTemp(t *testing.T) {
	t.Helper()
	dir := t.TempDir()
	old, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(old) })
}
