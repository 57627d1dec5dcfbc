package reactor

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPipeline_SkipPropagatesToOperationalDependent(t *testing.T) {
	registry := NewRegistry()
	require.NoError(t, registry.Register(&PluginFunc{
		TypeName: "maybe-skip",
		Kind:     CategoryData,
		Fn: func(ctx context.Context, config map[string]any, inputs []any) (any, error) {
			if skip, _ := config["skip"].(bool); skip {
				return Skip(), nil
			}
			return config["value"], nil
		},
	}))
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

	var skipped atomic.Bool
	engine, err := NewEngine(registry,
		WithAutoStart(true),
		WithDataNodesExecutionMode(AsyncExecMode),
	)
	require.NoError(t, err)
	defer engine.Destroy()

	engine.OnHook(NodeSkipComputation, func(args ...any) { skipped.Store(true) })

	require.NoError(t, engine.AddNode(NodeDefinition{ID: "d1", Type: "maybe-skip", Config: map[string]any{"skip": true}}))
	require.NoError(t, engine.AddNode(NodeDefinition{ID: "d2", Type: "constant", Config: map[string]any{"value": 5.0}}))
	require.NoError(t, engine.AddNode(NodeDefinition{ID: "op", Type: "sum", Inputs: []string{"d1", "d2"}}))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, engine.Stabilize(ctx))

	deadline := time.Now().Add(time.Second)
	for !skipped.Load() && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	require.True(t, skipped.Load(), "expected NODE_SKIP_COMPUTATION to fire")

	deadline = time.Now().Add(time.Second)
	for engine.Stats().Lifecycle != StatePaused.String() && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	require.Equal(t, StatePaused.String(), engine.Stats().Lifecycle)
}

func TestPipeline_DebounceCollapsesRapidUpdates(t *testing.T) {
	registry := NewRegistry()
	require.NoError(t, registry.Register(&PluginFunc{
		TypeName: "constant",
		Kind:     CategoryData,
		Fn: func(ctx context.Context, config map[string]any, inputs []any) (any, error) {
			return config["value"], nil
		},
	}))
	var computeCount atomic.Int64
	require.NoError(t, registry.Register(&PluginFunc{
		TypeName: "echo",
		Kind:     CategoryOperational,
		Fn: func(ctx context.Context, config map[string]any, inputs []any) (any, error) {
			computeCount.Add(1)
			return inputs[0], nil
		},
	}))

	engine, err := NewEngine(registry, WithAutoStart(true), WithDebounce(40*time.Millisecond))
	require.NoError(t, err)
	defer engine.Destroy()

	require.NoError(t, engine.AddNode(NodeDefinition{ID: "src", Type: "constant", Config: map[string]any{"value": 0.0}}))
	require.NoError(t, engine.AddNode(NodeDefinition{ID: "echo", Type: "echo", Inputs: []string{"src"}}))
	awaitValue(t, engine, "echo", 0.0)
	computeCount.Store(0)

	for i := 1; i <= 5; i++ {
		require.NoError(t, engine.UpdateNode("src", NodeDefinition{ID: "src", Type: "constant", Config: map[string]any{"value": float64(i)}}))
		time.Sleep(5 * time.Millisecond)
	}

	awaitValue(t, engine, "echo", 5.0)
	time.Sleep(60 * time.Millisecond)

	require.LessOrEqual(t, computeCount.Load(), int64(2), "debounce should collapse rapid updates into at most a couple of computes")
}

func TestPipeline_DistinctValuesSuppressesDuplicateEmissions(t *testing.T) {
	registry := NewRegistry()
	require.NoError(t, registry.Register(&PluginFunc{
		TypeName: "constant",
		Kind:     CategoryData,
		Fn: func(ctx context.Context, config map[string]any, inputs []any) (any, error) {
			return config["value"], nil
		},
	}))
	var computeCount atomic.Int64
	require.NoError(t, registry.Register(&PluginFunc{
		TypeName: "echo",
		Kind:     CategoryOperational,
		Fn: func(ctx context.Context, config map[string]any, inputs []any) (any, error) {
			computeCount.Add(1)
			return inputs[0], nil
		},
	}))

	engine, err := NewEngine(registry, WithAutoStart(true), WithDistinctValues(true))
	require.NoError(t, err)
	defer engine.Destroy()

	require.NoError(t, engine.AddNode(NodeDefinition{ID: "src", Type: "constant", Config: map[string]any{"value": 1.0}}))
	require.NoError(t, engine.AddNode(NodeDefinition{ID: "echo", Type: "echo", Inputs: []string{"src"}}))
	awaitValue(t, engine, "echo", 1.0)
	before := computeCount.Load()

	require.NoError(t, engine.UpdateNode("src", NodeDefinition{ID: "src", Type: "constant", Config: map[string]any{"value": 1.0}}))
	time.Sleep(30 * time.Millisecond)

	require.Equal(t, before, computeCount.Load(), "an identical value should be suppressed by distinct-value shaping")
}
