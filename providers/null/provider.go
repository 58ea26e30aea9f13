// Package null implements an inert provider useful for testing plans and
// dependency ordering without touching anything real.
package null

import (
	"context"

	"github.com/google/uuid"

	"github.com/quarry-io/quarry/internal/provider"
)

func init() {
	provider.RegisterFactory("null", func() provider.Provider { return &Provider{} })
}

// Provider creates nothing. Resources exist only as state records.
type Provider struct{}

// Schema marks "triggers" immutable for every type, so changing it forces
// replacement. That mirrors how null resources are used to re-run
// downstream work.
func (p *Provider) Schema(resourceType string) provider.Schema {
	return provider.Schema{Immutable: []string{"triggers"}}
}

func (p *Provider) Create(ctx context.Context, req *provider.Request) (map[string]any, error) {
	outputs := map[string]any{"id": uuid.New().String()}
	for k, v := range req.Attrs {
		outputs[k] = v
	}
	return outputs, nil
}

func (p *Provider) Update(ctx context.Context, req *provider.Request) (map[string]any, error) {
	outputs := map[string]any{}
	if id, ok := req.Prior["id"]; ok {
		outputs["id"] = id
	} else {
		outputs["id"] = uuid.New().String()
	}
	for k, v := range req.Attrs {
		outputs[k] = v
	}
	return outputs, nil
}

func (p *Provider) Delete(ctx context.Context, req *provider.Request) error {
	return nil
}
