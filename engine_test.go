package reactor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func sumEngine(t *testing.T, opts ...EngineOption) *Engine {
	t.Helper()
	registry := NewRegistry()
	require.NoError(t, registry.Register(&PluginFunc{
		TypeName: "constant",
		Kind:     CategoryData,
		Fn: func(ctx context.Context, config map[string]any, inputs []any) (any, error) {
			return config["value"], nil
		},
	}))
	require.NoError(t, registry.Register(&PluginFunc{
		TypeName: "sum",
		Kind:     CategoryOperational,
		Fn: func(ctx context.Context, config map[string]any, inputs []any) (any, error) {
			total := 0.0
			for _, in := range inputs {
				n, _ := in.(float64)
				total += n
			}
			return total, nil
		},
	}))

	allOpts := append([]EngineOption{WithAutoStart(true)}, opts...)
	engine, err := NewEngine(registry, allOpts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = engine.Destroy() })
	return engine
}

func awaitValue(t *testing.T, engine *Engine, nodeID string, want any) {
	t.Helper()
	cleanup, err := engine.Subscribe(nodeID, func(Signal) {})
	require.NoError(t, err)
	defer cleanup()

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if v, err := engine.CurrentValue(nodeID); err == nil && v == want {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("node %q never reached value %v", nodeID, want)
}

func TestEngine_SumOfTwoSources(t *testing.T) {
	engine := sumEngine(t)

	require.NoError(t, engine.AddNode(NodeDefinition{ID: "a", Type: "constant", Config: map[string]any{"value": 2.0}}))
	require.NoError(t, engine.AddNode(NodeDefinition{ID: "b", Type: "constant", Config: map[string]any{"value": 3.0}}))
	require.NoError(t, engine.AddNode(NodeDefinition{ID: "total", Type: "sum", Inputs: []string{"a", "b"}}))

	awaitValue(t, engine, "total", 5.0)
}

func TestEngine_UpdateNodePropagates(t *testing.T) {
	engine := sumEngine(t)

	require.NoError(t, engine.AddNode(NodeDefinition{ID: "a", Type: "constant", Config: map[string]any{"value": 2.0}}))
	require.NoError(t, engine.AddNode(NodeDefinition{ID: "b", Type: "constant", Config: map[string]any{"value": 3.0}}))
	require.NoError(t, engine.AddNode(NodeDefinition{ID: "total", Type: "sum", Inputs: []string{"a", "b"}}))
	awaitValue(t, engine, "total", 5.0)

	require.NoError(t, engine.UpdateNode("a", NodeDefinition{ID: "a", Type: "constant", Config: map[string]any{"value": 10.0}}))
	awaitValue(t, engine, "total", 13.0)
}

func TestEngine_UpdateNodeRejectsCycle(t *testing.T) {
	engine := sumEngine(t)

	require.NoError(t, engine.AddNode(NodeDefinition{ID: "a", Type: "constant", Config: map[string]any{"value": 1.0}}))
	require.NoError(t, engine.AddNode(NodeDefinition{ID: "b", Type: "sum", Inputs: []string{"a"}}))

	err := engine.UpdateNode("a", NodeDefinition{ID: "a", Type: "sum", Inputs: []string{"b"}})
	require.ErrorIs(t, err, ErrCycleDetected)
}

func TestEngine_AddNodeRejectsMissingInput(t *testing.T) {
	engine := sumEngine(t)

	err := engine.AddNode(NodeDefinition{ID: "b", Type: "sum", Inputs: []string{"missing"}})
	require.ErrorIs(t, err, ErrMissingInput)
}

func TestEngine_AddNodeRejectsDuplicateID(t *testing.T) {
	engine := sumEngine(t)

	require.NoError(t, engine.AddNode(NodeDefinition{ID: "a", Type: "constant", Config: map[string]any{"value": 1.0}}))
	err := engine.AddNode(NodeDefinition{ID: "a", Type: "constant", Config: map[string]any{"value": 2.0}})
	require.ErrorIs(t, err, ErrDuplicateID)
}

func TestEngine_RemoveNodeCascadesToDependents(t *testing.T) {
	engine := sumEngine(t)

	require.NoError(t, engine.AddNode(NodeDefinition{ID: "a", Type: "constant", Config: map[string]any{"value": 1.0}}))
	require.NoError(t, engine.AddNode(NodeDefinition{ID: "b", Type: "constant", Config: map[string]any{"value": 2.0}}))
	require.NoError(t, engine.AddNode(NodeDefinition{ID: "total", Type: "sum", Inputs: []string{"a", "b"}}))
	awaitValue(t, engine, "total", 3.0)

	require.NoError(t, engine.RemoveNode("b"))
	awaitValue(t, engine, "total", 1.0)
}

func TestEngine_PrecomputeNodeWarmsCacheWithoutWiring(t *testing.T) {
	engine := sumEngine(t)
	require.NoError(t, engine.AddNode(NodeDefinition{ID: "total", Type: "sum"}))

	result, err := engine.PrecomputeNode(context.Background(), "total", []any{4.0, 5.0})
	require.NoError(t, err)
	require.Equal(t, 9.0, result)

	result, err = engine.PrecomputeNode(context.Background(), "total", []any{4.0, 5.0})
	require.NoError(t, err)
	require.Equal(t, 9.0, result)
	require.Equal(t, uint64(1), engine.cache.NodeStats("total").Hits)
}

func TestEngine_PauseBuffersUpdatesUntilResume(t *testing.T) {
	engine := sumEngine(t)
	require.NoError(t, engine.AddNode(NodeDefinition{ID: "a", Type: "constant", Config: map[string]any{"value": 1.0}}))
	require.NoError(t, engine.AddNode(NodeDefinition{ID: "b", Type: "constant", Config: map[string]any{"value": 2.0}}))
	require.NoError(t, engine.AddNode(NodeDefinition{ID: "total", Type: "sum", Inputs: []string{"a", "b"}}))
	awaitValue(t, engine, "total", 3.0)

	require.NoError(t, engine.Pause())
	require.NoError(t, engine.UpdateNode("a", NodeDefinition{ID: "a", Type: "constant", Config: map[string]any{"value": 100.0}}))

	// Buffered: no recompute happens while paused.
	time.Sleep(20 * time.Millisecond)
	v, err := engine.CurrentValue("total")
	require.NoError(t, err)
	require.Equal(t, 3.0, v)

	require.NoError(t, engine.Resume())
	awaitValue(t, engine, "total", 102.0)
}

func TestEngine_AddNodeAfterDestroyFails(t *testing.T) {
	engine := sumEngine(t)
	require.NoError(t, engine.AddNode(NodeDefinition{ID: "a", Type: "constant", Config: map[string]any{"value": 1.0}}))
	awaitValue(t, engine, "a", 1.0)

	require.NoError(t, engine.Destroy())

	err := engine.AddNode(NodeDefinition{ID: "b", Type: "constant", Config: map[string]any{"value": 2.0}})
	require.ErrorIs(t, err, ErrEngineDestroyed)
}

func TestEngine_SubscribeReceivesCurrentAndSubsequentValues(t *testing.T) {
	engine := sumEngine(t)
	require.NoError(t, engine.AddNode(NodeDefinition{ID: "a", Type: "constant", Config: map[string]any{"value": 1.0}}))
	awaitValue(t, engine, "a", 1.0)

	values := make(chan any, 4)
	cleanup, err := engine.Subscribe("a", func(sig Signal) {
		if sig.IsValue() {
			values <- sig.Value()
		}
	})
	require.NoError(t, err)
	defer cleanup()

	select {
	case v := <-values:
		require.Equal(t, 1.0, v)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for current value")
	}

	require.NoError(t, engine.UpdateNode("a", NodeDefinition{ID: "a", Type: "constant", Config: map[string]any{"value": 7.0}}))

	select {
	case v := <-values:
		require.Equal(t, 7.0, v)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for updated value")
	}
}

func TestEngine_StatsReflectComputeCount(t *testing.T) {
	engine := sumEngine(t)
	require.NoError(t, engine.AddNode(NodeDefinition{ID: "a", Type: "constant", Config: map[string]any{"value": 1.0}}))
	awaitValue(t, engine, "a", 1.0)

	stats := engine.Stats()
	require.GreaterOrEqual(t, stats.ComputeCount, uint64(1))
	require.Equal(t, StateRunning.String(), stats.Lifecycle)
}
