// Package apply executes a computed plan against the real world through
// providers and produces the snapshot recording what now exists. The
// serial bump and persistence stay with the state store.
package apply

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/quarry-io/quarry/internal/config"
	"github.com/quarry-io/quarry/internal/logging"
	"github.com/quarry-io/quarry/internal/plan"
	"github.com/quarry-io/quarry/internal/provider"
	"github.com/quarry-io/quarry/internal/state"
)

const defaultParallelism = 10

// Event represents a progress event during apply.
type Event struct {
	Address  string
	Action   plan.Action
	Status   string // "started", "completed", "failed"
	Duration time.Duration
	Err      error
}

// Callback is invoked for each apply event if set.
type Callback func(event Event)

// Applier executes plans through loaded providers.
type Applier struct {
	Registry        *provider.Registry
	Parallelism     int
	ContinueOnError bool
	Retry           *RetryPolicy
	Timeout         time.Duration
}

func NewApplier(registry *provider.Registry) *Applier {
	return &Applier{
		Registry:    registry,
		Parallelism: defaultParallelism,
		Retry:       DefaultRetryPolicy(),
		Timeout:     DefaultTimeout,
	}
}

// Apply executes every change in the plan and returns the resulting
// snapshot. The input snapshot is never mutated. Entries run in plan
// order: deletes placed before the create block run first, then
// creates/updates/replaces in parallel gated on their dependencies, then
// the remaining deletes in parallel gated on reverse dependencies.
func (a *Applier) Apply(ctx context.Context, p *plan.Plan, snap *state.Snapshot, callback Callback) (*state.Snapshot, error) {
	result := snap.DeepCopy()

	emit := func(event Event) {
		if callback != nil {
			callback(event)
		}
	}

	changes := p.Changes()
	logging.Info("applying plan", "changes", len(changes),
		"create", p.Summary.Create, "update", p.Summary.Update,
		"replace", p.Summary.Replace, "delete", p.Summary.Delete)

	leading, middle, trailing := splitBlocks(changes)

	var mu sync.Mutex
	var errs []error

	for _, block := range []struct {
		entries []*plan.Entry
		deletes bool
	}{
		{leading, true},
		{middle, false},
		{trailing, true},
	} {
		if len(block.entries) == 0 {
			continue
		}
		err := a.applyBlock(ctx, block.entries, block.deletes, result, &mu, emit)
		if err != nil {
			if !a.ContinueOnError {
				return result, err
			}
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return result, fmt.Errorf("apply finished with failures: %w", errors.Join(errs...))
	}
	return result, nil
}

// splitBlocks partitions changes into the deletes placed ahead of the
// create block, the create/update/replace block, and the trailing deletes.
func splitBlocks(changes []*plan.Entry) (leading, middle, trailing []*plan.Entry) {
	seenLive := false
	for _, e := range changes {
		if e.Action == plan.ActionDelete {
			if seenLive {
				trailing = append(trailing, e)
			} else {
				leading = append(leading, e)
			}
			continue
		}
		seenLive = true
		middle = append(middle, e)
	}
	return leading, middle, trailing
}

// blockDeps computes, per entry, the set of entries in the same block that
// must finish first. For live entries that is their declared and referenced
// dependencies; for deletes the edges reverse, a record is deleted only
// after everything recorded as depending on it is gone.
func blockDeps(entries []*plan.Entry, deletes bool) map[string]map[string]bool {
	inBlock := make(map[string]bool, len(entries))
	for _, e := range entries {
		inBlock[e.Address] = true
	}

	deps := make(map[string]map[string]bool, len(entries))
	for _, e := range entries {
		deps[e.Address] = make(map[string]bool)
	}

	for _, e := range entries {
		if deletes {
			if e.Prior == nil {
				continue
			}
			for _, dep := range e.Prior.Dependencies {
				if inBlock[dep] {
					deps[dep][e.Address] = true
				}
			}
			continue
		}
		if e.Desired == nil {
			continue
		}
		for _, dep := range e.Desired.DependsOn {
			if inBlock[dep] {
				deps[e.Address][dep] = true
			}
		}
		for _, ref := range plan.ExtractRefs(e.Desired.Attributes) {
			if addr := plan.RefAddr(ref); inBlock[addr] {
				deps[e.Address][addr] = true
			}
		}
	}
	return deps
}

// applyBlock runs one block of entries concurrently, gating each entry on
// its in-block dependencies. An entry whose dependency failed is skipped
// and counted as failed itself.
func (a *Applier) applyBlock(ctx context.Context, entries []*plan.Entry, deletes bool, result *state.Snapshot, mu *sync.Mutex, emit func(Event)) error {
	deps := blockDeps(entries, deletes)

	parallelism := a.Parallelism
	if parallelism <= 0 {
		parallelism = defaultParallelism
	}

	completed := make(map[string]bool)
	failed := make(map[string]bool)
	gateMu := sync.Mutex{}
	gate := sync.NewCond(&gateMu)
	var firstErr error
	var allErrs []error
	sem := make(chan struct{}, parallelism)

	var wg sync.WaitGroup
	for _, entry := range entries {
		wg.Add(1)
		go func(e *plan.Entry) {
			defer wg.Done()

			gateMu.Lock()
			for {
				if firstErr != nil && !a.ContinueOnError {
					gateMu.Unlock()
					return
				}
				ready := true
				depFailed := false
				for dep := range deps[e.Address] {
					if failed[dep] {
						depFailed = true
						break
					}
					if !completed[dep] {
						ready = false
						break
					}
				}
				if depFailed {
					failed[e.Address] = true
					err := fmt.Errorf("skipped %s: dependency failed", e.Address)
					allErrs = append(allErrs, err)
					gateMu.Unlock()
					gate.Broadcast()
					return
				}
				if ready {
					break
				}
				gate.Wait()
			}
			gateMu.Unlock()

			if err := ctx.Err(); err != nil {
				gateMu.Lock()
				if firstErr == nil {
					firstErr = fmt.Errorf("apply cancelled: %w", err)
				}
				gateMu.Unlock()
				gate.Broadcast()
				return
			}

			sem <- struct{}{}
			defer func() { <-sem }()

			start := time.Now()
			emit(Event{Address: e.Address, Action: e.Action, Status: "started"})

			if err := a.applyEntry(ctx, e, result, mu); err != nil {
				emit(Event{Address: e.Address, Action: e.Action, Status: "failed", Duration: time.Since(start), Err: err})
				gateMu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				allErrs = append(allErrs, err)
				failed[e.Address] = true
				gateMu.Unlock()
				gate.Broadcast()
				return
			}

			emit(Event{Address: e.Address, Action: e.Action, Status: "completed", Duration: time.Since(start)})

			gateMu.Lock()
			completed[e.Address] = true
			gateMu.Unlock()
			gate.Broadcast()
		}(entry)
	}

	wg.Wait()

	if a.ContinueOnError && len(allErrs) > 0 {
		return fmt.Errorf("%d resource(s) failed: %w", len(allErrs), errors.Join(allErrs...))
	}
	return firstErr
}

// applyEntry performs one change against its provider and records the
// outcome in the result snapshot.
func (a *Applier) applyEntry(ctx context.Context, e *plan.Entry, result *state.Snapshot, mu *sync.Mutex) error {
	logging.Debug("applying change", "address", e.Address, "action", e.Action)

	timeout := a.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	providerName := ""
	if e.Desired != nil {
		providerName = e.Desired.Provider
	} else if e.Prior != nil {
		providerName = e.Prior.Provider
	}
	prov, err := a.Registry.Get(providerName)
	if err != nil {
		return fmt.Errorf("%s: %w", e.Address, err)
	}

	switch e.Action {
	case plan.ActionCreate:
		return a.create(ctx, prov, e, result, mu)
	case plan.ActionUpdate:
		return a.update(ctx, prov, e, result, mu)
	case plan.ActionReplace:
		return a.replace(ctx, prov, e, result, mu)
	case plan.ActionDelete:
		return a.delete(ctx, prov, e, result, mu)
	default:
		return nil
	}
}

func (a *Applier) create(ctx context.Context, prov provider.Provider, e *plan.Entry, result *state.Snapshot, mu *sync.Mutex) error {
	req := a.buildRequest(e, result, mu, nil)

	var outputs map[string]any
	err := RetryWithBackoff(ctx, a.Retry, func() error {
		var createErr error
		outputs, createErr = prov.Create(ctx, req)
		return createErr
	}, IsTransientError)
	if err != nil {
		return fmt.Errorf("create failed for %s: %w", e.Address, err)
	}

	a.storeRecord(e, outputs, result, mu)
	return nil
}

func (a *Applier) update(ctx context.Context, prov provider.Provider, e *plan.Entry, result *state.Snapshot, mu *sync.Mutex) error {
	req := a.buildRequest(e, result, mu, priorOutputs(e.Prior))

	var outputs map[string]any
	err := RetryWithBackoff(ctx, a.Retry, func() error {
		var updateErr error
		outputs, updateErr = prov.Update(ctx, req)
		return updateErr
	}, IsTransientError)
	if err != nil {
		return fmt.Errorf("update failed for %s: %w", e.Address, err)
	}

	a.storeRecord(e, outputs, result, mu)
	return nil
}

// replace destroys the prior object and creates its successor. With
// create_before_destroy the order flips, the successor comes up first.
func (a *Applier) replace(ctx context.Context, prov provider.Provider, e *plan.Entry, result *state.Snapshot, mu *sync.Mutex) error {
	createBeforeDestroy := e.Desired != nil &&
		e.Desired.Lifecycle != nil && e.Desired.Lifecycle.CreateBeforeDestroy

	// The prior object is destroyed as it was recorded, not as the
	// successor is declared.
	doDelete := func() error {
		req := &provider.Request{
			Type:    e.Prior.Type,
			Name:    e.Prior.Name,
			Address: e.Address,
			Attrs:   e.Prior.Attrs,
			Prior:   priorOutputs(e.Prior),
		}
		return RetryWithBackoff(ctx, a.Retry, func() error {
			return prov.Delete(ctx, req)
		}, IsTransientError)
	}

	doCreate := func() error {
		req := a.buildRequest(e, result, mu, nil)
		var outputs map[string]any
		err := RetryWithBackoff(ctx, a.Retry, func() error {
			var createErr error
			outputs, createErr = prov.Create(ctx, req)
			return createErr
		}, IsTransientError)
		if err != nil {
			return err
		}
		a.storeRecord(e, outputs, result, mu)
		return nil
	}

	if createBeforeDestroy {
		if err := doCreate(); err != nil {
			return fmt.Errorf("replace failed for %s: %w", e.Address, err)
		}
		if err := doDelete(); err != nil {
			return fmt.Errorf("replace failed for %s: destroying prior object: %w", e.Address, err)
		}
		return nil
	}

	if err := doDelete(); err != nil {
		return fmt.Errorf("replace failed for %s: %w", e.Address, err)
	}
	mu.Lock()
	delete(result.Records, e.Address)
	mu.Unlock()
	if err := doCreate(); err != nil {
		return fmt.Errorf("replace failed for %s: %w", e.Address, err)
	}
	return nil
}

func (a *Applier) delete(ctx context.Context, prov provider.Provider, e *plan.Entry, result *state.Snapshot, mu *sync.Mutex) error {
	req := &provider.Request{
		Type:    e.Prior.Type,
		Name:    e.Prior.Name,
		Address: e.Address,
		Attrs:   e.Prior.Attrs,
		Prior:   priorOutputs(e.Prior),
	}

	err := RetryWithBackoff(ctx, a.Retry, func() error {
		return prov.Delete(ctx, req)
	}, IsTransientError)
	if err != nil {
		return fmt.Errorf("delete failed for %s: %w", e.Address, err)
	}

	mu.Lock()
	delete(result.Records, e.Address)
	mu.Unlock()
	return nil
}

// buildRequest assembles the provider request for a live entry, resolving
// references against what the result snapshot holds so far.
func (a *Applier) buildRequest(e *plan.Entry, result *state.Snapshot, mu *sync.Mutex, prior map[string]any) *provider.Request {
	mu.Lock()
	attrs := resolveRefs(e.Desired.Attributes, result).(map[string]any)
	mu.Unlock()

	return &provider.Request{
		Type:    e.Desired.Address.Type,
		Name:    e.Desired.Address.Name,
		Address: e.Address,
		Attrs:   attrs,
		Prior:   prior,
	}
}

// storeRecord writes the post-apply record for a live entry into the
// result snapshot, replacing any prior record at the same address. The
/// record keeps the declared attributes with ptr:// references intact;
// storing resolved values would make the next plan diff them against the
// raw declaration and never converge. Resolved values live only in the
// provider request and the outputs.
func (a *Applier) storeRecord(e *plan.Entry, outputs map[string]any, result *state.Snapshot, mu *sync.Mutex) {
	var deps []string
	seen := make(map[string]bool)
	for _, dep := range e.Desired.DependsOn {
		if !seen[dep] {
			seen[dep] = true
			deps = append(deps, dep)
		}
	}
	var refDeps []string
	for _, ref := range plan.ExtractRefs(e.Desired.Attributes) {
		if addr := plan.RefAddr(ref); addr != "" && !seen[addr] {
			seen[addr] = true
			refDeps = append(refDeps, addr)
		}
	}
	// Map iteration order leaks into ExtractRefs; keep state files stable.
	sort.Strings(refDeps)
	deps = append(deps, refDeps...)

	rec := &state.Record{
		Type:         e.Desired.Address.Type,
		Name:         e.Desired.Address.Name,
		Index:        e.Desired.Address.Index,
		Provider:     e.Desired.Provider,
		Attrs:        config.MergeMaps(e.Desired.Attributes),
		Outputs:      outputs,
		Dependencies: deps,
	}

	mu.Lock()
	result.Records[e.Address] = rec
	mu.Unlock()
}

// priorOutputs returns what the provider last reported for a record,
// falling back to its recorded attributes.
func priorOutputs(rec *state.Record) map[string]any {
	if rec == nil {
		return nil
	}
	if rec.Outputs != nil {
		return rec.Outputs
	}
	return rec.Attrs
}

// resolveRefs replaces ptr:// references with the referenced record's
// output (or recorded attribute) value. Unresolvable references pass
// through unchanged.
func resolveRefs(val any, snap *state.Snapshot) any {
	switch v := val.(type) {
	case string:
		addr := plan.RefAddr(v)
		if addr == "" {
			return v
		}
		rec, ok := snap.Records[addr]
		if !ok {
			return v
		}
		attr := plan.RefAttr(v)
		if out, ok := rec.Outputs[attr]; ok {
			return out
		}
		if out, ok := rec.Attrs[attr]; ok {
			return out
		}
		return v
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, item := range v {
			out[k] = resolveRefs(item, snap)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = resolveRefs(item, snap)
		}
		return out
	default:
		return v
	}
}
