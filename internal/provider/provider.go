// Package provider defines the in-process provider interface the apply
// step drives. Providers own the real-world side effects; planning never
// calls them beyond asking for a schema.
package provider

import "context"

// Schema describes planning-relevant traits of one resource type.
type Schema struct {
	// Immutable lists attributes that cannot change in place; a differing
	// value forces replacement instead of an update.
	Immutable []string

	// Identity lists attributes that name the real-world object. Two
	// planned instances with equal identity values contend for the same
	// object and cannot coexist in one plan.
	Identity []string
}

// Request carries one resource operation to a provider.
type Request struct {
	Type    string
	Name    string
	Address string
	Attrs   map[string]any // desired attributes, references resolved
	Prior   map[string]any // last-known outputs, nil on create
}

// Provider provisions, mutates, and destroys real resources.
type Provider interface {
	// Schema returns planning traits for a resource type. Unknown types
	// get the zero schema.
	Schema(resourceType string) Schema

	// Create provisions a new resource and returns its outputs.
	Create(ctx context.Context, req *Request) (map[string]any, error)

	// Update mutates an existing resource in place and returns its outputs.
	Update(ctx context.Context, req *Request) (map[string]any, error)

	// Delete destroys an existing resource.
	Delete(ctx context.Context, req *Request) error
}
