package reactor

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/trace/noop"

	"github.com/stretchr/testify/require"
)

func TestInlineContext_ExecuteLiftsPlainValueIntoSequence(t *testing.T) {
	registry := NewRegistry()
	require.NoError(t, registry.Register(&PluginFunc{
		TypeName: "double",
		Kind:     CategoryOperational,
		Fn: func(ctx context.Context, config map[string]any, inputs []any) (any, error) {
			return inputs[0].(float64) * 2, nil
		},
	}))

	ic := NewInlineContext(registry)
	seq, err := ic.Execute(context.Background(), "double", nil, []any{3.0})
	require.NoError(t, err)

	em := <-seq.C
	require.NoError(t, em.Err)
	require.Equal(t, 6.0, em.Value)
}

func TestInlineContext_ExecuteHonorsSpanNameOverride(t *testing.T) {
	registry := NewRegistry()
	require.NoError(t, registry.Register(&PluginFunc{
		TypeName: "traced",
		Kind:     CategoryOperational,
		Fn: func(ctx context.Context, config map[string]any, inputs []any) (any, error) {
			return "ok", nil
		},
	}))

	ic := NewInlineContext(registry).WithTracer(noop.NewTracerProvider().Tracer("test"))
	seq, err := ic.Execute(context.Background(), "traced", map[string]any{spanNameKey: "custom-span"}, nil)
	require.NoError(t, err)

	em := <-seq.C
	require.NoError(t, em.Err)
	require.Equal(t, "ok", em.Value)
}

func TestInlineContext_ExecuteUnknownTypeErrors(t *testing.T) {
	ic := NewInlineContext(NewRegistry())
	_, err := ic.Execute(context.Background(), "missing", nil, nil)
	require.ErrorIs(t, err, ErrUnknownType)
}

func TestShouldParallelize_HeavyTypeAlwaysDispatches(t *testing.T) {
	heavy := map[string]bool{"big-compute": true}
	require.True(t, shouldParallelize("big-compute", nil, nil, heavy))
	require.False(t, shouldParallelize("small-compute", nil, nil, heavy))
}

func TestShouldParallelize_ForceParallelConfigFlag(t *testing.T) {
	require.True(t, shouldParallelize("any", map[string]any{"forceParallel": true}, nil, nil))
}

func TestShouldParallelize_LargeIterationsConfigTriggersDispatch(t *testing.T) {
	require.True(t, shouldParallelize("any", map[string]any{"iterations": 20_000}, nil, nil))
	require.False(t, shouldParallelize("any", map[string]any{"iterations": 5}, nil, nil))
}

func TestShouldParallelize_LargeAggregateInputTriggersDispatch(t *testing.T) {
	big := make([]any, 2000)
	require.True(t, shouldParallelize("any", nil, []any{big}, nil))
	require.False(t, shouldParallelize("any", nil, []any{1.0, 2.0}, nil))
}

func TestAggregateSize_CountsNestedElements(t *testing.T) {
	inputs := []any{
		[]any{1.0, 2.0, map[string]any{"a": 1.0, "b": 2.0}},
		"scalar",
	}
	require.Equal(t, 6, aggregateSize(inputs))
}
