package plan

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quarry-io/quarry/internal/config"
	"github.com/quarry-io/quarry/internal/provider"
	"github.com/quarry-io/quarry/internal/state"
)

func loadModel(t *testing.T, doc *config.Document) *config.Model {
	t.Helper()
	m, err := config.Load(doc)
	require.NoError(t, err)
	return m
}

func serverDecl(name string, attrs map[string]any) *config.Declaration {
	return &config.Declaration{
		Type:       "compute.Server",
		Name:       name,
		Provider:   "null",
		Attributes: attrs,
	}
}

func serverRecord(name string, attrs map[string]any) *state.Record {
	return &state.Record{
		Type:     "compute.Server",
		Name:     name,
		Index:    -1,
		Provider: "null",
		Attrs:    attrs,
	}
}

func TestCompute_CreateForNewResource(t *testing.T) {
	model := loadModel(t, &config.Document{
		Resources: []*config.Declaration{
			serverDecl("web", map[string]any{"size": "small"}),
		},
	})

	p, err := Compute(model, state.NewSnapshot(), nil)
	require.NoError(t, err)

	changes := p.Changes()
	require.Len(t, changes, 1)
	assert.Equal(t, ActionCreate, changes[0].Action)
	assert.Equal(t, "compute.Server.web", changes[0].Address)
	assert.Nil(t, changes[0].Before)
	require.Contains(t, changes[0].Diff, "size")
	assert.Equal(t, ActionCreate, changes[0].Diff["size"].Action)
	assert.Equal(t, 1, p.Summary.Create)
}

func TestCompute_FiveCountedInstancesFromEmptyState(t *testing.T) {
	count := 5
	model := loadModel(t, &config.Document{
		Resources: []*config.Declaration{
			{
				Type: "compute.Server", Name: "worker", Provider: "null", Count: &count,
				Attributes: map[string]any{"hostname": "worker-${count.index}"},
			},
		},
	})

	p, err := Compute(model, state.NewSnapshot(), nil)
	require.NoError(t, err)

	changes := p.Changes()
	require.Len(t, changes, 5)
	for i, e := range changes {
		assert.Equal(t, ActionCreate, e.Action)
		assert.Equal(t, fmt.Sprintf("compute.Server.worker[%d]", i), e.Address)
	}
	assert.Equal(t, 5, p.Summary.Create)
}

func TestCompute_IdempotentOnConvergedState(t *testing.T) {
	model := loadModel(t, &config.Document{
		Resources: []*config.Declaration{
			serverDecl("web", map[string]any{"size": "small", "tags": map[string]any{"env": "prod"}}),
		},
	})

	snap := state.NewSnapshot()
	snap.Records["compute.Server.web"] = serverRecord("web",
		map[string]any{"size": "small", "tags": map[string]any{"env": "prod"}})

	for i := 0; i < 3; i++ {
		p, err := Compute(model, snap, nil)
		require.NoError(t, err)
		assert.Empty(t, p.Changes(), "converged state must plan no changes")
		require.Len(t, p.Entries, 1)
		assert.Equal(t, ActionNoop, p.Entries[0].Action)
		assert.Equal(t, 1, p.Summary.NoOp)
	}
}

func TestCompute_UpdateOnMutableChange(t *testing.T) {
	model := loadModel(t, &config.Document{
		Resources: []*config.Declaration{
			serverDecl("web", map[string]any{"size": "large"}),
		},
	})

	snap := state.NewSnapshot()
	snap.Records["compute.Server.web"] = serverRecord("web", map[string]any{"size": "small"})

	p, err := Compute(model, snap, nil)
	require.NoError(t, err)

	changes := p.Changes()
	require.Len(t, changes, 1)
	assert.Equal(t, ActionUpdate, changes[0].Action)
	require.Contains(t, changes[0].Diff, "size")
	assert.Equal(t, "small", changes[0].Diff["size"].Before)
	assert.Equal(t, "large", changes[0].Diff["size"].After)
}

func TestCompute_ReplaceOnImmutableChange(t *testing.T) {
	model := loadModel(t, &config.Document{
		Resources: []*config.Declaration{
			{
				Type: "compute.Server", Name: "web", Provider: "null",
				Immutable:  []string{"zone"},
				Attributes: map[string]any{"zone": "b", "size": "small"},
			},
		},
	})

	snap := state.NewSnapshot()
	snap.Records["compute.Server.web"] = serverRecord("web", map[string]any{"zone": "a", "size": "small"})

	p, err := Compute(model, snap, nil)
	require.NoError(t, err)

	changes := p.Changes()
	require.Len(t, changes, 1)
	assert.Equal(t, ActionReplace, changes[0].Action)
	assert.Equal(t, 1, p.Summary.Replace)
}

func TestCompute_SchemaImmutableForcesReplace(t *testing.T) {
	model := loadModel(t, &config.Document{
		Resources: []*config.Declaration{
			serverDecl("web", map[string]any{"zone": "b"}),
		},
	})

	snap := state.NewSnapshot()
	snap.Records["compute.Server.web"] = serverRecord("web", map[string]any{"zone": "a"})

	schemas := map[string]provider.Schema{
		"compute.Server": {Immutable: []string{"zone"}},
	}

	p, err := Compute(model, snap, schemas)
	require.NoError(t, err)
	require.Len(t, p.Changes(), 1)
	assert.Equal(t, ActionReplace, p.Changes()[0].Action)
}

func TestCompute_DeleteForRemovedResource(t *testing.T) {
	model := loadModel(t, &config.Document{
		Resources: []*config.Declaration{
			serverDecl("web", map[string]any{"size": "small"}),
		},
	})

	snap := state.NewSnapshot()
	snap.Records["compute.Server.web"] = serverRecord("web", map[string]any{"size": "small"})
	snap.Records["compute.Server.old"] = serverRecord("old", map[string]any{"size": "tiny"})

	p, err := Compute(model, snap, nil)
	require.NoError(t, err)

	changes := p.Changes()
	require.Len(t, changes, 1, "exactly one delete and no other changes")
	assert.Equal(t, ActionDelete, changes[0].Action)
	assert.Equal(t, "compute.Server.old", changes[0].Address)
	assert.Nil(t, changes[0].After)
	assert.Equal(t, 1, p.Summary.Delete)
}

func TestCompute_DeletesOrderedAfterCreates(t *testing.T) {
	model := loadModel(t, &config.Document{
		Resources: []*config.Declaration{
			serverDecl("new", map[string]any{"size": "small"}),
		},
	})

	snap := state.NewSnapshot()
	snap.Records["compute.Server.old"] = serverRecord("old", map[string]any{"size": "small"})

	p, err := Compute(model, snap, nil)
	require.NoError(t, err)

	changes := p.Changes()
	require.Len(t, changes, 2)
	assert.Equal(t, ActionCreate, changes[0].Action)
	assert.Equal(t, ActionDelete, changes[1].Action)
}

func TestCompute_DeleteBeforeCreateOnIdentityReuse(t *testing.T) {
	// The new declaration reuses the hostname of a record being removed:
	// its delete must run before the create.
	model := loadModel(t, &config.Document{
		Resources: []*config.Declaration{
			serverDecl("blue", map[string]any{"hostname": "app-1"}),
		},
	})

	snap := state.NewSnapshot()
	snap.Records["compute.Server.green"] = serverRecord("green", map[string]any{"hostname": "app-1"})

	schemas := map[string]provider.Schema{
		"compute.Server": {Identity: []string{"hostname"}},
	}

	p, err := Compute(model, snap, schemas)
	require.NoError(t, err)

	changes := p.Changes()
	require.Len(t, changes, 2)
	assert.Equal(t, ActionDelete, changes[0].Action)
	assert.Equal(t, "compute.Server.green", changes[0].Address)
	assert.Equal(t, ActionCreate, changes[1].Action)
}

func TestCompute_ConflictOnSharedIdentity(t *testing.T) {
	model := loadModel(t, &config.Document{
		Resources: []*config.Declaration{
			serverDecl("a", map[string]any{"hostname": "app-1"}),
			serverDecl("b", map[string]any{"hostname": "app-1"}),
		},
	})

	schemas := map[string]provider.Schema{
		"compute.Server": {Identity: []string{"hostname"}},
	}

	_, err := Compute(model, state.NewSnapshot(), schemas)
	require.Error(t, err)

	var conflict *ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Contains(t, conflict.Addresses, "compute.Server.a")
	assert.Contains(t, conflict.Addresses, "compute.Server.b")
}

func TestCompute_DependencyOrder(t *testing.T) {
	model := loadModel(t, &config.Document{
		Resources: []*config.Declaration{
			{
				Type: "compute.Server", Name: "app", Provider: "null",
				Attributes: map[string]any{"vpcId": "ptr://network.Vpc/main/id"},
			},
			{Type: "network.Vpc", Name: "main", Provider: "null"},
		},
	})

	p, err := Compute(model, state.NewSnapshot(), nil)
	require.NoError(t, err)

	changes := p.Changes()
	require.Len(t, changes, 2)
	assert.Equal(t, "network.Vpc.main", changes[0].Address,
		"a resource referencing another is never planned before its dependency")
	assert.Equal(t, "compute.Server.app", changes[1].Address)
}

func TestCompute_PreventDestroyAbortsPlanning(t *testing.T) {
	model := loadModel(t, &config.Document{
		Resources: []*config.Declaration{
			{
				Type: "compute.Server", Name: "db", Provider: "null",
				Immutable:  []string{"zone"},
				Lifecycle:  &config.Lifecycle{PreventDestroy: true},
				Attributes: map[string]any{"zone": "b"},
			},
		},
	})

	snap := state.NewSnapshot()
	snap.Records["compute.Server.db"] = serverRecord("db", map[string]any{"zone": "a"})

	_, err := Compute(model, snap, nil)
	require.Error(t, err)

	var pd *PreventDestroyError
	require.ErrorAs(t, err, &pd)
	assert.Equal(t, "compute.Server.db", pd.Address)
}

func TestCompute_IgnoreChangesDowngradesToNoop(t *testing.T) {
	model := loadModel(t, &config.Document{
		Resources: []*config.Declaration{
			{
				Type: "compute.Server", Name: "web", Provider: "null",
				Lifecycle:  &config.Lifecycle{IgnoreChanges: []string{"tags"}},
				Attributes: map[string]any{"size": "small", "tags": map[string]any{"env": "new"}},
			},
		},
	})

	snap := state.NewSnapshot()
	snap.Records["compute.Server.web"] = serverRecord("web",
		map[string]any{"size": "small", "tags": map[string]any{"env": "old"}})

	p, err := Compute(model, snap, nil)
	require.NoError(t, err)
	assert.Empty(t, p.Changes())
	assert.Equal(t, 1, p.Summary.NoOp)
}

func TestCompute_NumericValuesSurviveJSONRoundTrip(t *testing.T) {
	model := loadModel(t, &config.Document{
		Resources: []*config.Declaration{
			serverDecl("web", map[string]any{"port": 8080}),
		},
	})

	// State read back from JSON carries float64.
	snap := state.NewSnapshot()
	snap.Records["compute.Server.web"] = serverRecord("web", map[string]any{"port": float64(8080)})

	p, err := Compute(model, snap, nil)
	require.NoError(t, err)
	assert.Empty(t, p.Changes(), "8080 and 8080.0 are the same value")
}

func TestCompute_MetadataPopulated(t *testing.T) {
	model := loadModel(t, &config.Document{
		Resources: []*config.Declaration{serverDecl("web", nil)},
	})

	snap := state.NewSnapshot()
	snap.Serial = 7

	p, err := Compute(model, snap, nil)
	require.NoError(t, err)
	assert.Equal(t, uint64(7), p.PriorSerial)
	assert.NotEmpty(t, p.ConfigDigest)
	assert.False(t, p.CreatedAt.IsZero())
}
