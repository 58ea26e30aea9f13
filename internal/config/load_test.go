package config

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intPtr(n int) *int { return &n }

func TestLoad_DefaultsOnly(t *testing.T) {
	doc := &Document{
		Variables: []*Variable{
			{Name: "region", Type: TypeString, Default: "us-east-1"},
			{Name: "size", Type: TypeNumber, Default: 2},
		},
		Resources: []*Declaration{
			{
				Type:     "compute.Server",
				Name:     "web",
				Provider: "null",
				Attributes: map[string]any{
					"region": "${var.region}",
					"size":   "${var.size}",
				},
			},
		},
	}

	m, err := Load(doc)
	require.NoError(t, err)
	require.Len(t, m.Instances, 1)

	inst := m.Instance("compute.Server.web")
	require.NotNil(t, inst)
	assert.Equal(t, "us-east-1", inst.Attributes["region"])
	assert.Equal(t, 2, inst.Attributes["size"])
}

func TestLoad_OverlayPrecedence(t *testing.T) {
	doc := &Document{
		Variables: []*Variable{
			{Name: "env", Type: TypeString, Default: "dev"},
		},
	}

	m, err := Load(doc,
		&Overlay{Name: "staging", Values: map[string]any{"env": "staging"}},
		&Overlay{Name: "prod", Values: map[string]any{"env": "prod"}},
	)
	require.NoError(t, err)

	// Last overlay loaded wins on conflict.
	assert.Equal(t, "prod", m.Variables["env"])
}

func TestLoad_UnresolvedVariable(t *testing.T) {
	doc := &Document{
		Variables: []*Variable{
			{Name: "ami", Type: TypeString}, // required: no default
		},
	}

	_, err := Load(doc)
	require.Error(t, err)
	assert.True(t, IsKind(err, UnresolvedVariable))

	var ce *Error
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "ami", ce.Subject)

	// Supplying the value via overlay resolves it.
	_, err = Load(doc, &Overlay{Values: map[string]any{"ami": "ami-123"}})
	require.NoError(t, err)
}

func TestLoad_VariableTypeMismatch(t *testing.T) {
	doc := &Document{
		Variables: []*Variable{
			{Name: "size", Type: TypeNumber, Default: 1},
		},
	}

	_, err := Load(doc, &Overlay{Values: map[string]any{"size": "big"}})
	require.Error(t, err)
	assert.True(t, IsKind(err, InvalidType))
}

func TestLoad_LocalsResolveInDependencyOrder(t *testing.T) {
	// Declaration order deliberately reversed relative to dependencies.
	doc := &Document{
		Variables: []*Variable{
			{Name: "project", Type: TypeString, Default: "quarry"},
		},
		Locals: []*Local{
			{Name: "full", Value: "${local.prefix}-server"},
			{Name: "prefix", Value: "${var.project}-${local.env}"},
			{Name: "env", Value: "prod"},
		},
	}

	m, err := Load(doc)
	require.NoError(t, err)
	assert.Equal(t, "prod", m.Locals["env"])
	assert.Equal(t, "quarry-prod", m.Locals["prefix"])
	assert.Equal(t, "quarry-prod-server", m.Locals["full"])
}

func TestLoad_LocalsDeterministicAcrossOrder(t *testing.T) {
	locals := []*Local{
		{Name: "a", Value: "${local.b}-a"},
		{Name: "b", Value: "base"},
		{Name: "c", Value: "${local.a}-c"},
	}
	want := map[string]any{"a": "base-a", "b": "base", "c": "base-a-c"}

	perms := [][]int{{0, 1, 2}, {2, 1, 0}, {1, 2, 0}, {2, 0, 1}}
	for _, perm := range perms {
		shuffled := make([]*Local, len(locals))
		for i, j := range perm {
			shuffled[i] = locals[j]
		}
		m, err := Load(&Document{Locals: shuffled})
		require.NoError(t, err)
		assert.Equal(t, want, m.Locals)
	}
}

func TestLoad_CyclicLocals(t *testing.T) {
	doc := &Document{
		Locals: []*Local{
			{Name: "a", Value: "${local.b}"},
			{Name: "b", Value: "${local.a}"},
		},
	}

	_, err := Load(doc)
	require.Error(t, err)
	assert.True(t, IsKind(err, CyclicLocal))
}

func TestLoad_SelfReferentialLocal(t *testing.T) {
	doc := &Document{
		Locals: []*Local{{Name: "a", Value: "${local.a}"}},
	}

	_, err := Load(doc)
	require.Error(t, err)
	assert.True(t, IsKind(err, CyclicLocal))
}

func TestLoad_UnknownLocalReference(t *testing.T) {
	doc := &Document{
		Locals: []*Local{{Name: "a", Value: "${local.missing}"}},
	}

	_, err := Load(doc)
	require.Error(t, err)
	assert.True(t, IsKind(err, UnknownReference))
}

func TestLoad_CountExpansion(t *testing.T) {
	doc := &Document{
		Resources: []*Declaration{
			{
				Type:     "compute.Server",
				Name:     "worker",
				Provider: "null",
				Count:    intPtr(5),
				Attributes: map[string]any{
					"hostname": "worker-${count.index}",
				},
			},
		},
	}

	m, err := Load(doc)
	require.NoError(t, err)
	require.Len(t, m.Instances, 5)

	for i, inst := range m.Instances {
		assert.Equal(t, fmt.Sprintf("compute.Server.worker[%d]", i), inst.Address.String())
		assert.Equal(t, fmt.Sprintf("worker-%d", i), inst.Attributes["hostname"])
	}
}

func TestLoad_CountZeroProducesNoInstances(t *testing.T) {
	doc := &Document{
		Resources: []*Declaration{
			{Type: "compute.Server", Name: "worker", Provider: "null", Count: intPtr(0)},
		},
	}

	m, err := Load(doc)
	require.NoError(t, err)
	assert.Empty(t, m.Instances)
}

func TestLoad_NegativeCount(t *testing.T) {
	doc := &Document{
		Resources: []*Declaration{
			{Type: "compute.Server", Name: "worker", Count: intPtr(-1)},
		},
	}

	_, err := Load(doc)
	require.Error(t, err)
	assert.True(t, IsKind(err, InvalidType))
}

func TestLoad_DuplicateResource(t *testing.T) {
	doc := &Document{
		Resources: []*Declaration{
			{Type: "compute.Server", Name: "web"},
			{Type: "compute.Server", Name: "web"},
		},
	}

	_, err := Load(doc)
	require.Error(t, err)
	assert.True(t, IsKind(err, DuplicateResource))

	var ce *Error
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "compute.Server.web", ce.Subject)
}

func TestLoad_MapLocalSplicedWithTypePreserved(t *testing.T) {
	doc := &Document{
		Locals: []*Local{
			{Name: "common_tags", Value: map[string]any{"team": "platform", "env": "prod"}},
		},
		Resources: []*Declaration{
			{
				Type: "compute.Server",
				Name: "web",
				Attributes: map[string]any{
					"tags": "${local.common_tags}",
				},
			},
		},
	}

	m, err := Load(doc)
	require.NoError(t, err)

	tags, ok := m.Instance("compute.Server.web").Attributes["tags"].(map[string]any)
	require.True(t, ok, "whole-string reference should splice the map, not stringify it")
	assert.Equal(t, "platform", tags["team"])
}

func TestLoad_DefaultsMergedUnderAttributes(t *testing.T) {
	doc := &Document{
		Defaults: map[string]any{
			"tags":   map[string]any{"managed_by": "quarry"},
			"region": "us-east-1",
		},
		Resources: []*Declaration{
			{
				Type: "compute.Server",
				Name: "web",
				Attributes: map[string]any{
					"region": "eu-west-1", // overrides the default
				},
			},
		},
	}

	m, err := Load(doc)
	require.NoError(t, err)

	inst := m.Instance("compute.Server.web")
	assert.Equal(t, "eu-west-1", inst.Attributes["region"])
	assert.Equal(t, map[string]any{"managed_by": "quarry"}, inst.Attributes["tags"])
}

func TestLoad_CountIndexWithoutCount(t *testing.T) {
	doc := &Document{
		Resources: []*Declaration{
			{
				Type:       "compute.Server",
				Name:       "web",
				Attributes: map[string]any{"hostname": "web-${count.index}"},
			},
		},
	}

	_, err := Load(doc)
	require.Error(t, err)
	assert.True(t, IsKind(err, UnknownReference))
}

func TestLoad_DoesNotMutateInputs(t *testing.T) {
	attrs := map[string]any{"name": "${var.name}"}
	doc := &Document{
		Variables: []*Variable{{Name: "name", Type: TypeString, Default: "web"}},
		Resources: []*Declaration{
			{Type: "compute.Server", Name: "web", Attributes: attrs},
		},
	}

	_, err := Load(doc)
	require.NoError(t, err)
	assert.Equal(t, "${var.name}", attrs["name"], "declaration attributes must not be mutated")
}
