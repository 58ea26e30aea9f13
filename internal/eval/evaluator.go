// Package eval turns PKL sources into configuration documents. It is the
// only package that talks to the PKL runtime; everything downstream works
// on plain Go values.
package eval

import (
	"context"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/apple/pkl-go/pkl"

	"github.com/quarry-io/quarry/internal/config"
)

// Evaluator evaluates PKL modules within one project directory.
type Evaluator struct {
	projectDir string
}

func NewEvaluator(projectDir string) *Evaluator {
	return &Evaluator{
		projectDir: projectDir,
	}
}

// LoadDocument evaluates the main configuration module. External
// properties become readable inside PKL through the prop: scheme.
func (e *Evaluator) LoadDocument(ctx context.Context, entryPoint string, properties map[string]string) (*config.Document, error) {
	u, err := url.Parse("file://" + e.projectDir + "/")
	if err != nil {
		return nil, fmt.Errorf("failed to parse project directory URL: %w", err)
	}

	opts := []func(*pkl.EvaluatorOptions){pkl.PreconfiguredOptions}
	if len(properties) > 0 {
		opts = append(opts, func(o *pkl.EvaluatorOptions) {
			if o.Properties == nil {
				o.Properties = make(map[string]string)
			}
			for k, v := range properties {
				o.Properties[k] = v
			}
		})
	}

	evaluator, err := pkl.NewProjectEvaluator(ctx, u, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create PKL evaluator: %w", err)
	}
	defer evaluator.Close()

	var doc config.Document
	if err := evaluator.EvaluateModule(ctx, pkl.FileSource(entryPoint), &doc); err != nil {
		return nil, fmt.Errorf("failed to evaluate configuration: %w", err)
	}

	return &doc, nil
}

// LoadOverlay evaluates one overlay module into a named set of variable
// values. The overlay name comes from the file name, so "prod.pkl" becomes
// the "prod" overlay.
func (e *Evaluator) LoadOverlay(ctx context.Context, overlayFile string) (*config.Overlay, error) {
	evaluator, err := pkl.NewEvaluator(ctx, pkl.PreconfiguredOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to create PKL evaluator: %w", err)
	}
	defer evaluator.Close()

	var values map[string]any
	if err := evaluator.EvaluateModule(ctx, pkl.FileSource(overlayFile), &values); err != nil {
		return nil, fmt.Errorf("failed to evaluate overlay %s: %w", overlayFile, err)
	}

	return &config.Overlay{
		Name:   OverlayName(overlayFile),
		Values: values,
	}, nil
}

// LoadOverlays evaluates overlay files in the order given; the order is
// significant, later overlays shadow earlier ones.
func (e *Evaluator) LoadOverlays(ctx context.Context, overlayFiles []string) ([]*config.Overlay, error) {
	overlays := make([]*config.Overlay, 0, len(overlayFiles))
	for _, f := range overlayFiles {
		overlay, err := e.LoadOverlay(ctx, f)
		if err != nil {
			return nil, err
		}
		overlays = append(overlays, overlay)
	}
	return overlays, nil
}

// OverlayName derives the overlay name from its file name.
func OverlayName(overlayFile string) string {
	base := filepath.Base(overlayFile)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
