package plan

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/quarry-io/quarry/internal/config"
	"github.com/quarry-io/quarry/internal/logging"
	"github.com/quarry-io/quarry/internal/provider"
	"github.com/quarry-io/quarry/internal/state"
)

// Action is what an entry does to its resource instance.
type Action string

const (
	ActionNoop    Action = "noop"
	ActionCreate  Action = "create"
	ActionUpdate  Action = "update"
	ActionReplace Action = "replace"
	ActionDelete  Action = "delete"
)

// Entry is one planned action. Before is the last-known state (nil on
// create), After the desired state (nil on delete). Entries are consumed
// by apply and never persisted.
type Entry struct {
	Address string
	Action  Action
	Before  map[string]any
	After   map[string]any
	Diff    map[string]*PropertyDiff

	Desired *config.Instance // nil for deletes
	Prior   *state.Record    // nil for creates
}

// Summary counts entries per action.
type Summary struct {
	Create  int
	Update  int
	Replace int
	Delete  int
	NoOp    int
}

// Plan is the ordered set of actions reconciling desired configuration
// with last-known state.
type Plan struct {
	CreatedAt    time.Time
	PriorSerial  uint64
	ConfigDigest string
	Entries      []*Entry
	Summary      Summary
}

// Changes returns the entries that actually do something.
func (p *Plan) Changes() []*Entry {
	var out []*Entry
	for _, e := range p.Entries {
		if e.Action != ActionNoop {
			out = append(out, e)
		}
	}
	return out
}

// Compute diffs a resolved model against a state snapshot and produces the
// minimal ordered action list reconciling the two. Compute is pure: it
// reads the model and snapshot and mutates neither.
func Compute(model *config.Model, snap *state.Snapshot, schemas map[string]provider.Schema) (*Plan, error) {
	logging.Debug("computing plan",
		"instances", len(model.Instances), "records", len(snap.Records), "serial", snap.Serial)

	graph, err := BuildGraph(model.Instances)
	if err != nil {
		return nil, err
	}

	p := &Plan{
		CreatedAt:    time.Now().UTC(),
		PriorSerial:  snap.Serial,
		ConfigDigest: digest(model),
	}

	// Desired instances in dependency-respecting creation order.
	for _, addr := range graph.CreationOrder() {
		inst := model.Instance(addr)
		entry, err := planInstance(inst, snap.Records[addr], schemas[inst.Address.Type])
		if err != nil {
			return nil, err
		}
		p.Entries = append(p.Entries, entry)
	}

	// Records no longer declared become deletes, in reverse dependency
	// order of what state recorded when they were applied.
	orphans := make(map[string]*state.Record)
	for addr, rec := range snap.Records {
		if model.Instance(addr) == nil {
			orphans[addr] = rec
		}
	}
	deleteGraph, err := BuildGraphFromRecords(orphans)
	if err != nil {
		return nil, err
	}
	var deletes []*Entry
	for _, addr := range deleteGraph.DestructionOrder() {
		rec := orphans[addr]
		deletes = append(deletes, &Entry{
			Address: addr,
			Action:  ActionDelete,
			Before:  rec.Attrs,
			Diff:    deleteDiff(rec.Attrs),
			Prior:   rec,
		})
	}

	if err := placeDeletes(p, deletes, schemas); err != nil {
		return nil, err
	}

	for _, e := range p.Entries {
		switch e.Action {
		case ActionCreate:
			p.Summary.Create++
		case ActionUpdate:
			p.Summary.Update++
		case ActionReplace:
			p.Summary.Replace++
		case ActionDelete:
			p.Summary.Delete++
		case ActionNoop:
			p.Summary.NoOp++
		}
	}

	if err := checkConflicts(p, schemas); err != nil {
		return nil, err
	}
	return p, nil
}

// planInstance decides the action for one desired instance.
func planInstance(inst *config.Instance, rec *state.Record, schema provider.Schema) (*Entry, error) {
	addr := inst.Address.String()
	entry := &Entry{
		Address: addr,
		After:   inst.Attributes,
		Desired: inst,
	}

	if rec == nil {
		entry.Action = ActionCreate
		entry.Diff = createDiff(inst.Attributes)
		return entry, nil
	}

	entry.Before = rec.Attrs
	entry.Prior = rec

	diff := diffAttrs(rec.Attrs, inst.Attributes)
	if inst.Lifecycle != nil {
		for _, ignored := range inst.Lifecycle.IgnoreChanges {
			delete(diff, ignored)
		}
	}
	entry.Diff = diff

	if len(diff) == 0 {
		entry.Action = ActionNoop
		return entry, nil
	}

	entry.Action = ActionUpdate
	immutable := make(map[string]bool, len(schema.Immutable)+len(inst.Immutable))
	for _, attr := range schema.Immutable {
		immutable[attr] = true
	}
	for _, attr := range inst.Immutable {
		immutable[attr] = true
	}
	for changed := range diff {
		if immutable[changed] {
			entry.Action = ActionReplace
			break
		}
	}

	if entry.Action == ActionReplace && inst.Lifecycle != nil && inst.Lifecycle.PreventDestroy {
		return nil, &PreventDestroyError{Address: addr}
	}
	return entry, nil
}

// placeDeletes appends deletes after the create/update block, except that a
// delete whose identity a create reuses must run before that create.
func placeDeletes(p *Plan, deletes []*Entry, schemas map[string]provider.Schema) error {
	if len(deletes) == 0 {
		return nil
	}

	createIdentities := make(map[string]bool)
	for _, e := range p.Entries {
		if e.Action == ActionCreate {
			if id := identityKey(e.Address, e.Desired.Address.Type, e.After, schemas); id != "" {
				createIdentities[id] = true
			}
		}
	}

	var before, after []*Entry
	for _, d := range deletes {
		id := identityKey(d.Address, d.Prior.Type, d.Before, schemas)
		if id != "" && createIdentities[id] {
			before = append(before, d)
		} else {
			after = append(after, d)
		}
	}

	p.Entries = append(before, append(p.Entries, after...)...)
	return nil
}

// checkConflicts fails planning when two live entries claim the same
// real-world identity.
func checkConflicts(p *Plan, schemas map[string]provider.Schema) error {
	claimed := make(map[string]string) // identity -> address
	for _, e := range p.Entries {
		if e.Action == ActionDelete || e.Action == ActionNoop {
			continue
		}
		var typ string
		if e.Desired != nil {
			typ = e.Desired.Address.Type
		}
		id := identityKey(e.Address, typ, e.After, schemas)
		if id == "" {
			continue
		}
		if other, ok := claimed[id]; ok {
			return &ConflictError{Identity: id, Addresses: []string{other, e.Address}}
		}
		claimed[id] = e.Address
	}
	return nil
}

// identityKey renders the identity attributes of an entry, or "" when the
// type declares none.
func identityKey(addr, resourceType string, attrs map[string]any, schemas map[string]provider.Schema) string {
	schema, ok := schemas[resourceType]
	if !ok || len(schema.Identity) == 0 {
		return ""
	}
	key := resourceType
	for _, attr := range schema.Identity {
		val, ok := attrs[attr]
		if !ok {
			// An unset identity attribute cannot contend with anything.
			return ""
		}
		raw, _ := json.Marshal(normalizeValue(val))
		key += "|" + attr + "=" + string(raw)
	}
	return key
}

// digest fingerprints the resolved model so apply can tell which
// configuration a plan came from.
func digest(model *config.Model) string {
	raw, err := json.Marshal(struct {
		Instances []*config.Instance
		Variables map[string]any
	}{model.Instances, model.Variables})
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}
