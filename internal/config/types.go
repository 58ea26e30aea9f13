package config

import "fmt"

// ValueType is the declared type of a variable.
type ValueType string

const (
	TypeString ValueType = "string"
	TypeNumber ValueType = "number"
	TypeBool   ValueType = "bool"
	TypeList   ValueType = "list"
	TypeMap    ValueType = "map"
)

// Variable is a user-settable input. A variable without a default is
// required and must be supplied by an overlay before loading succeeds.
type Variable struct {
	Name        string    `pkl:"name"`
	Type        ValueType `pkl:"type"`
	Default     any       `pkl:"default"`
	Description string    `pkl:"description"`
}

// Local is a named value computed from variables and other locals.
// Its value may contain ${var.*} and ${local.*} references at any depth.
type Local struct {
	Name  string `pkl:"name"`
	Value any    `pkl:"value"`
}

// Lifecycle customizes how changes to a resource are planned and applied.
type Lifecycle struct {
	CreateBeforeDestroy bool     `pkl:"createBeforeDestroy"`
	PreventDestroy      bool     `pkl:"preventDestroy"`
	IgnoreChanges       []string `pkl:"ignoreChanges"`
}

// Declaration describes one desired resource, independent of whether it
// currently exists. Count, when set, expands the declaration into one
// instance per index; Count of zero declares no instances.
type Declaration struct {
	Type       string         `pkl:"type"` // e.g. "compute.Server"
	Name       string         `pkl:"name"`
	Provider   string         `pkl:"provider"`
	Count      *int           `pkl:"count"`
	DependsOn  []string       `pkl:"dependsOn"`
	Lifecycle  *Lifecycle     `pkl:"lifecycle"`
	Immutable  []string       `pkl:"immutable"` // attribute names that force replacement on change
	Attributes map[string]any `pkl:"attributes"`
}

// Document is the raw, unresolved configuration produced by the evaluator.
type Document struct {
	Defaults  map[string]any `pkl:"defaults"` // merged under every declaration's attributes
	Variables []*Variable    `pkl:"variables"`
	Locals    []*Local       `pkl:"locals"`
	Resources []*Declaration `pkl:"resources"`
}

// Overlay is one set of variable values layered over declared defaults.
// When several overlays are loaded, the last one wins on conflict.
type Overlay struct {
	Name   string         `pkl:"name"`
	Values map[string]any `pkl:"values"`
}

// NoIndex marks an instance that came from an uncounted declaration.
const NoIndex = -1

// Address identifies one concrete resource instance. Index is NoIndex for
// uncounted declarations.
type Address struct {
	Type  string
	Name  string
	Index int
}

func (a Address) String() string {
	if a.Index == NoIndex {
		return fmt.Sprintf("%s.%s", a.Type, a.Name)
	}
	return fmt.Sprintf("%s.%s[%d]", a.Type, a.Name, a.Index)
}

// Instance is one concrete, fully resolved resource: variables and locals
// interpolated, defaults merged, count expanded.
type Instance struct {
	Address    Address
	Provider   string
	DependsOn  []string
	Lifecycle  *Lifecycle
	Immutable  []string
	Attributes map[string]any
}

// Model is the resolved configuration consumed by the plan engine.
type Model struct {
	Variables map[string]any
	Locals    map[string]any
	Instances []*Instance

	byAddr map[string]*Instance
}

// Instance returns the instance with the given address, or nil.
func (m *Model) Instance(addr string) *Instance {
	return m.byAddr[addr]
}
