package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMergeMaps_LastWriterWins(t *testing.T) {
	got := MergeMaps(
		map[string]any{"env": "dev", "team": "platform"},
		map[string]any{"env": "prod"},
	)
	assert.Equal(t, map[string]any{"env": "prod", "team": "platform"}, got)
}

func TestMergeMaps_OrderSensitive(t *testing.T) {
	a := map[string]any{"k": "a"}
	b := map[string]any{"k": "b"}

	assert.Equal(t, "b", MergeMaps(a, b)["k"])
	assert.Equal(t, "a", MergeMaps(b, a)["k"])
}

func TestMergeMaps_Total(t *testing.T) {
	// Total over any inputs: nil maps and no maps are fine.
	assert.Equal(t, map[string]any{}, MergeMaps())
	assert.Equal(t, map[string]any{}, MergeMaps(nil, nil))
	assert.Equal(t, map[string]any{"a": 1}, MergeMaps(nil, map[string]any{"a": 1}))
}

func TestMergeMaps_ShallowReplacement(t *testing.T) {
	got := MergeMaps(
		map[string]any{"tags": map[string]any{"a": "1", "b": "2"}},
		map[string]any{"tags": map[string]any{"c": "3"}},
	)
	// Later value replaces wholesale; keys are not merged recursively.
	assert.Equal(t, map[string]any{"c": "3"}, got["tags"])
}

func TestMergeMaps_DoesNotShareStructure(t *testing.T) {
	src := map[string]any{"tags": map[string]any{"env": "dev"}}
	got := MergeMaps(src)

	got["tags"].(map[string]any)["env"] = "prod"
	assert.Equal(t, "dev", src["tags"].(map[string]any)["env"])
}
