package eval

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOverlayName(t *testing.T) {
	assert.Equal(t, "prod", OverlayName("overlays/prod.pkl"))
	assert.Equal(t, "staging", OverlayName("/abs/path/staging.pkl"))
	assert.Equal(t, "dev", OverlayName("dev"))
}

func TestEvaluator_LoadOverlay(t *testing.T) {
	if _, err := exec.LookPath("pkl"); err != nil {
		t.Skipf("pkl binary not available: %v", err)
	}

	dir := t.TempDir()
	overlayFile := filepath.Join(dir, "prod.pkl")
	writeFile(t, overlayFile, `
instanceCount = 3
region = "eu-west-1"
`)

	e := NewEvaluator(dir)
	overlay, err := e.LoadOverlay(context.Background(), overlayFile)
	require.NoError(t, err)

	assert.Equal(t, "prod", overlay.Name)
	assert.Equal(t, "eu-west-1", overlay.Values["region"])
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}
