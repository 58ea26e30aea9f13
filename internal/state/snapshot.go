package state

import "fmt"

// CurrentVersion is the state format version written by this release.
const CurrentVersion = 1

// Record is the last-known shape of one applied resource instance.
type Record struct {
	Type         string         `json:"type"`
	Name         string         `json:"name"`
	Index        int            `json:"index"` // -1 for uncounted resources
	Provider     string         `json:"provider,omitempty"`
	Attrs        map[string]any `json:"attrs"` // declared inputs as applied
	Outputs      map[string]any `json:"outputs,omitempty"`
	Dependencies []string       `json:"dependencies,omitempty"`
}

// Snapshot is the full persisted state of one scope: a format version, a
// monotonically increasing serial, a lineage identity, and one record per
// managed resource instance keyed by address.
type Snapshot struct {
	Version int                `json:"version"`
	Serial  uint64             `json:"serial"`
	Lineage string             `json:"lineage"`
	Records map[string]*Record `json:"records"`
}

// NewSnapshot returns an empty first-run snapshot. Lineage is assigned by
// the store on first write.
func NewSnapshot() *Snapshot {
	return &Snapshot{
		Version: CurrentVersion,
		Records: make(map[string]*Record),
	}
}

// DeepCopy returns a snapshot sharing no structure with the receiver.
func (s *Snapshot) DeepCopy() *Snapshot {
	out := &Snapshot{
		Version: s.Version,
		Serial:  s.Serial,
		Lineage: s.Lineage,
		Records: make(map[string]*Record, len(s.Records)),
	}
	for addr, r := range s.Records {
		out.Records[addr] = r.DeepCopy()
	}
	return out
}

// DeepCopy returns a record sharing no structure with the receiver.
func (r *Record) DeepCopy() *Record {
	return &Record{
		Type:         r.Type,
		Name:         r.Name,
		Index:        r.Index,
		Provider:     r.Provider,
		Attrs:        copyAttrMap(r.Attrs),
		Outputs:      copyAttrMap(r.Outputs),
		Dependencies: append([]string(nil), r.Dependencies...),
	}
}

func copyAttrMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = copyAttrValue(v)
	}
	return out
}

func copyAttrValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return copyAttrMap(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = copyAttrValue(item)
		}
		return out
	default:
		return v
	}
}

// validate checks the snapshot's structural invariants. A violation means
// the stored state is corrupt.
func (s *Snapshot) validate(scope string) error {
	if s.Version != CurrentVersion {
		return &CorruptError{Scope: scope,
			Reason: fmt.Sprintf("unsupported state version %d", s.Version)}
	}
	for addr, r := range s.Records {
		if r == nil {
			return &CorruptError{Scope: scope,
				Reason: fmt.Sprintf("record %q is null", addr)}
		}
		if r.Type == "" || r.Name == "" {
			return &CorruptError{Scope: scope,
				Reason: fmt.Sprintf("record %q has a blank type or name", addr)}
		}
		if want := recordAddr(r); want != addr {
			return &CorruptError{Scope: scope,
				Reason: fmt.Sprintf("record keyed %q describes %q", addr, want)}
		}
	}
	return nil
}

func recordAddr(r *Record) string {
	if r.Index < 0 {
		return fmt.Sprintf("%s.%s", r.Type, r.Name)
	}
	return fmt.Sprintf("%s.%s[%d]", r.Type, r.Name, r.Index)
}
