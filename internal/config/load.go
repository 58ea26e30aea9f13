package config

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

var refPattern = regexp.MustCompile(`\$\{([a-zA-Z][a-zA-Z0-9_.\-]*)\}`)

// Load resolves a raw document into a Model. Overlay values override
// variable defaults, with the last overlay winning on conflict. Locals are
// resolved in dependency order; counted declarations are expanded into
// concrete instances. Load is a pure transformation: the document and
// overlays are never mutated.
func Load(doc *Document, overlays ...*Overlay) (*Model, error) {
	vars, err := resolveVariables(doc.Variables, overlays)
	if err != nil {
		return nil, err
	}

	locals, err := resolveLocals(doc.Locals, vars)
	if err != nil {
		return nil, err
	}

	scope := make(map[string]any, len(vars)+len(locals))
	for name, v := range vars {
		scope["var."+name] = v
	}
	for name, v := range locals {
		scope["local."+name] = v
	}

	instances, err := expand(doc, scope)
	if err != nil {
		return nil, err
	}

	m := &Model{
		Variables: vars,
		Locals:    locals,
		Instances: instances,
		byAddr:    make(map[string]*Instance, len(instances)),
	}
	for _, inst := range instances {
		m.byAddr[inst.Address.String()] = inst
	}
	return m, nil
}

// resolveVariables layers overlay values over declared defaults.
func resolveVariables(decls []*Variable, overlays []*Overlay) (map[string]any, error) {
	byName := make(map[string]*Variable, len(decls))
	for _, v := range decls {
		byName[v.Name] = v
	}

	// Overlay stacking is an ordinary last-writer-wins merge.
	layers := make([]map[string]any, 0, len(overlays))
	for _, o := range overlays {
		layers = append(layers, o.Values)
	}
	supplied := MergeMaps(layers...)

	resolved := make(map[string]any, len(decls))
	for _, v := range decls {
		val, ok := supplied[v.Name]
		if !ok {
			if v.Default == nil {
				return nil, &Error{Kind: UnresolvedVariable, Subject: v.Name,
					Detail: "no default and no overlay value"}
			}
			val = deepCopyValue(v.Default)
		}
		if err := checkType(v, val); err != nil {
			return nil, err
		}
		resolved[v.Name] = val
	}
	return resolved, nil
}

func checkType(v *Variable, val any) error {
	ok := true
	switch v.Type {
	case TypeString:
		_, ok = val.(string)
	case TypeNumber:
		switch val.(type) {
		case int, int64, float64:
		default:
			ok = false
		}
	case TypeBool:
		_, ok = val.(bool)
	case TypeList:
		_, ok = val.([]any)
	case TypeMap:
		_, ok = val.(map[string]any)
	case "":
		// untyped variable accepts anything
	default:
		return &Error{Kind: InvalidType, Subject: v.Name,
			Detail: fmt.Sprintf("unknown variable type %q", v.Type)}
	}
	if !ok {
		return &Error{Kind: InvalidType, Subject: v.Name,
			Detail: fmt.Sprintf("value %v does not match declared type %s", val, v.Type)}
	}
	return nil
}

// resolveLocals resolves locals in dependency order and memoizes each
// resolved value. A cycle in the reference graph is fatal.
func resolveLocals(locals []*Local, vars map[string]any) (map[string]any, error) {
	byName := make(map[string]*Local, len(locals))
	deps := make(map[string][]string, len(locals))
	for _, l := range locals {
		byName[l.Name] = l
		for _, ref := range collectRefs(l.Value) {
			if name, ok := strings.CutPrefix(ref, "local."); ok {
				deps[l.Name] = append(deps[l.Name], name)
			}
		}
	}

	scope := make(map[string]any, len(vars)+len(locals))
	for name, v := range vars {
		scope["var."+name] = v
	}

	resolved := make(map[string]any, len(locals))
	remaining := make([]string, 0, len(locals))
	for name := range byName {
		remaining = append(remaining, name)
	}
	sort.Strings(remaining)

	// Repeatedly resolve every local whose dependencies are satisfied.
	// Scanning a sorted worklist keeps resolution order independent of
	// declaration order.
	for len(remaining) > 0 {
		progressed := false
		next := remaining[:0]
		for _, name := range remaining {
			ready := true
			for _, dep := range deps[name] {
				if _, ok := resolved[dep]; !ok {
					if _, declared := byName[dep]; !declared {
						return nil, &Error{Kind: UnknownReference, Subject: "local." + dep,
							Detail: fmt.Sprintf("referenced by local %q", name)}
					}
					ready = false
					break
				}
			}
			if !ready {
				next = append(next, name)
				continue
			}
			val, err := interpolate(byName[name].Value, scope, false)
			if err != nil {
				return nil, err
			}
			resolved[name] = val
			scope["local."+name] = val
			progressed = true
		}
		if !progressed {
			return nil, &Error{Kind: CyclicLocal, Subject: next[0],
				Detail: fmt.Sprintf("reference cycle through %s", strings.Join(next, ", "))}
		}
		remaining = next
	}
	return resolved, nil
}

// expand merges defaults, interpolates attributes, and expands counted
// declarations into concrete instances.
func expand(doc *Document, scope map[string]any) ([]*Instance, error) {
	var instances []*Instance
	seen := make(map[string]bool)

	for _, decl := range doc.Resources {
		base := decl.Type + "." + decl.Name
		attrs := MergeMaps(doc.Defaults, decl.Attributes)

		// Variables and locals are interpolated once per declaration;
		// count.index survives until per-index expansion below.
		resolvedAttrs, err := interpolate(attrs, scope, true)
		if err != nil {
			return nil, err
		}

		count := 1
		counted := decl.Count != nil
		if counted {
			count = *decl.Count
			if count < 0 {
				return nil, &Error{Kind: InvalidType, Subject: base,
					Detail: fmt.Sprintf("count must be non-negative, got %d", count)}
			}
		}

		for i := 0; i < count; i++ {
			inst := &Instance{
				Provider:  decl.Provider,
				DependsOn: append([]string(nil), decl.DependsOn...),
				Immutable: append([]string(nil), decl.Immutable...),
			}
			if decl.Lifecycle != nil {
				lc := *decl.Lifecycle
				lc.IgnoreChanges = append([]string(nil), decl.Lifecycle.IgnoreChanges...)
				inst.Lifecycle = &lc
			}
			if counted {
				inst.Address = Address{Type: decl.Type, Name: decl.Name, Index: i}
				indexed, err := interpolate(resolvedAttrs,
					map[string]any{"count.index": i}, false)
				if err != nil {
					return nil, err
				}
				inst.Attributes = indexed.(map[string]any)
			} else {
				inst.Address = Address{Type: decl.Type, Name: decl.Name, Index: NoIndex}
				final, err := interpolate(resolvedAttrs, nil, false)
				if err != nil {
					return nil, err
				}
				inst.Attributes = final.(map[string]any)
			}

			addr := inst.Address.String()
			if seen[addr] {
				return nil, &Error{Kind: DuplicateResource, Subject: addr}
			}
			seen[addr] = true
			instances = append(instances, inst)
		}
	}
	return instances, nil
}

// interpolate substitutes ${...} references throughout v. A string that is
// exactly one reference is replaced by the referenced value with its type
// preserved; embedded references are stringified. When deferCount is set,
// count.index references pass through untouched for a later pass.
func interpolate(v any, scope map[string]any, deferCount bool) (any, error) {
	switch val := v.(type) {
	case string:
		return interpolateString(val, scope, deferCount)
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			resolved, err := interpolate(item, scope, deferCount)
			if err != nil {
				return nil, err
			}
			out[k] = resolved
		}
		return out, nil
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			resolved, err := interpolate(item, scope, deferCount)
			if err != nil {
				return nil, err
			}
			out[i] = resolved
		}
		return out, nil
	default:
		return v, nil
	}
}

func interpolateString(s string, scope map[string]any, deferCount bool) (any, error) {
	// Whole-string reference: splice in the typed value.
	if m := refPattern.FindStringSubmatch(s); m != nil && m[0] == s {
		ref := m[1]
		if deferCount && strings.HasPrefix(ref, "count.") {
			return s, nil
		}
		val, ok := scope[ref]
		if !ok {
			return nil, &Error{Kind: UnknownReference, Subject: ref}
		}
		return deepCopyValue(val), nil
	}

	var refErr error
	out := refPattern.ReplaceAllStringFunc(s, func(match string) string {
		ref := refPattern.FindStringSubmatch(match)[1]
		if deferCount && strings.HasPrefix(ref, "count.") {
			return match
		}
		val, ok := scope[ref]
		if !ok {
			if refErr == nil {
				refErr = &Error{Kind: UnknownReference, Subject: ref}
			}
			return match
		}
		return fmt.Sprintf("%v", val)
	})
	if refErr != nil {
		return nil, refErr
	}
	return out, nil
}

// collectRefs returns every ${...} reference name found anywhere in v.
func collectRefs(v any) []string {
	var refs []string
	switch val := v.(type) {
	case string:
		for _, m := range refPattern.FindAllStringSubmatch(val, -1) {
			refs = append(refs, m[1])
		}
	case map[string]any:
		for _, item := range val {
			refs = append(refs, collectRefs(item)...)
		}
	case []any:
		for _, item := range val {
			refs = append(refs, collectRefs(item)...)
		}
	}
	return refs
}
