// Package file implements a provider managing plain files on the local
// filesystem. The path names the real-world object: two resources writing
// the same path conflict, and moving a file means replacing it.
package file

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/quarry-io/quarry/internal/provider"
)

const defaultMode = 0o644

func init() {
	provider.RegisterFactory("file", func() provider.Provider { return &Provider{} })
}

type Provider struct{}

func (p *Provider) Schema(resourceType string) provider.Schema {
	return provider.Schema{
		Immutable: []string{"path"},
		Identity:  []string{"path"},
	}
}

func (p *Provider) Create(ctx context.Context, req *provider.Request) (map[string]any, error) {
	path, content, mode, err := parseAttrs(req.Attrs)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", req.Address, err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating parent directory for %s: %w", path, err)
	}
	if err := os.WriteFile(path, []byte(content), mode); err != nil {
		return nil, fmt.Errorf("writing %s: %w", path, err)
	}
	return outputs(path, content), nil
}

func (p *Provider) Update(ctx context.Context, req *provider.Request) (map[string]any, error) {
	path, content, mode, err := parseAttrs(req.Attrs)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", req.Address, err)
	}

	if err := os.WriteFile(path, []byte(content), mode); err != nil {
		return nil, fmt.Errorf("writing %s: %w", path, err)
	}
	if err := os.Chmod(path, mode); err != nil {
		return nil, fmt.Errorf("setting mode on %s: %w", path, err)
	}
	return outputs(path, content), nil
}

func (p *Provider) Delete(ctx context.Context, req *provider.Request) error {
	path, ok := req.Attrs["path"].(string)
	if !ok || path == "" {
		return fmt.Errorf("%s: missing path attribute", req.Address)
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing %s: %w", path, err)
	}
	return nil
}

func parseAttrs(attrs map[string]any) (path, content string, mode os.FileMode, err error) {
	path, ok := attrs["path"].(string)
	if !ok || path == "" {
		return "", "", 0, fmt.Errorf("missing required attribute: path")
	}
	content, _ = attrs["content"].(string)

	mode = defaultMode
	if raw, ok := attrs["mode"]; ok {
		switch m := raw.(type) {
		case string:
			parsed, parseErr := strconv.ParseUint(m, 8, 32)
			if parseErr != nil {
				return "", "", 0, fmt.Errorf("invalid mode %q: %w", m, parseErr)
			}
			mode = os.FileMode(parsed)
		case int:
			mode = os.FileMode(m)
		case float64:
			mode = os.FileMode(int(m))
		default:
			return "", "", 0, fmt.Errorf("invalid mode type %T", raw)
		}
	}
	return path, content, mode, nil
}

func outputs(path, content string) map[string]any {
	sum := sha256.Sum256([]byte(content))
	return map[string]any{
		"id":       path,
		"path":     path,
		"checksum": hex.EncodeToString(sum[:]),
		"size":     len(content),
	}
}
