package reactor

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNodeDefinition_CloneIsIndependentOfSource(t *testing.T) {
	original := NodeDefinition{
		ID:     "a",
		Type:   "constant",
		Inputs: []string{"x", "y"},
		Config: map[string]any{"value": 1.0},
	}

	cp := original.clone()
	cp.Inputs[0] = "mutated"
	cp.Config["value"] = 2.0

	require.Equal(t, "x", original.Inputs[0])
	require.Equal(t, 1.0, original.Config["value"])
}

func TestNodeDefinition_CloneCopiesCacheOptions(t *testing.T) {
	original := NodeDefinition{
		ID:           "a",
		Type:         "constant",
		CacheOptions: &CacheOptions{Enabled: true, MaxEntries: 5},
	}

	cp := original.clone()
	cp.CacheOptions.MaxEntries = 99

	require.Equal(t, 5, original.CacheOptions.MaxEntries)
}

func TestNodeDefinition_WithoutInputRemovesOnlyMatchingID(t *testing.T) {
	original := NodeDefinition{ID: "op", Type: "sum", Inputs: []string{"a", "b", "c"}}

	trimmed := original.withoutInput("b")
	require.Equal(t, []string{"a", "c"}, trimmed.Inputs)
	require.Equal(t, []string{"a", "b", "c"}, original.Inputs, "original must stay untouched")
}
