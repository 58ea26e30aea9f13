package plan

import "reflect"

// PropertyDiff describes how one attribute changes.
type PropertyDiff struct {
	Before any    `json:"before,omitempty"`
	After  any    `json:"after,omitempty"`
	Action Action `json:"action"`
}

// diffAttrs compares prior and desired attribute maps field by field.
// Identical attributes produce no entry.
func diffAttrs(prior, desired map[string]any) map[string]*PropertyDiff {
	diff := make(map[string]*PropertyDiff)

	allKeys := make(map[string]bool)
	for k := range prior {
		allKeys[k] = true
	}
	for k := range desired {
		allKeys[k] = true
	}

	for k := range allKeys {
		priorVal, inPrior := prior[k]
		desiredVal, inDesired := desired[k]

		switch {
		case !inPrior:
			diff[k] = &PropertyDiff{After: desiredVal, Action: ActionCreate}
		case !inDesired:
			diff[k] = &PropertyDiff{Before: priorVal, Action: ActionDelete}
		case !attrEqual(priorVal, desiredVal):
			diff[k] = &PropertyDiff{Before: priorVal, After: desiredVal, Action: ActionUpdate}
		}
	}
	return diff
}

func createDiff(attrs map[string]any) map[string]*PropertyDiff {
	diff := make(map[string]*PropertyDiff, len(attrs))
	for k, v := range attrs {
		diff[k] = &PropertyDiff{After: v, Action: ActionCreate}
	}
	return diff
}

func deleteDiff(attrs map[string]any) map[string]*PropertyDiff {
	diff := make(map[string]*PropertyDiff, len(attrs))
	for k, v := range attrs {
		diff[k] = &PropertyDiff{Before: v, Action: ActionDelete}
	}
	return diff
}

// attrEqual compares attribute values after numeric normalization, so a
// JSON round-trip (int vs float64) does not register as a change. The
// comparison is structural; values of different kinds stay unequal.
func attrEqual(a, b any) bool {
	return reflect.DeepEqual(normalizeValue(a), normalizeValue(b))
}

func normalizeValue(v any) any {
	switch val := v.(type) {
	case float64:
		if val == float64(int64(val)) {
			return int64(val)
		}
		return val
	case int:
		return int64(val)
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = normalizeValue(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = normalizeValue(item)
		}
		return out
	default:
		return val
	}
}
