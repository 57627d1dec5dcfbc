package reactor

import (
	"context"

	"go.opentelemetry.io/otel/trace"

	"github.com/legann/dexrx-sub000/pkg/meta"
)

// spanNameKey is a reserved, double-underscore-prefixed config key
// letting a node definition override the span name a traced compute is
// recorded under, instead of the default "reactor.compute.<type>".
const spanNameKey = "__spanName"

// ExecutionContext runs a plugin's compute given its type, config and
// already-resolved inputs, either inline or by dispatching to a worker
// pool.
type ExecutionContext interface {
	Execute(ctx context.Context, pluginType string, config map[string]any, inputs []any) (*Sequence, error)
	Terminate()
}

// InlineContext looks up the plugin in the registry and invokes compute
// directly on the caller's goroutine. A plain value is lifted to a
// single-emission Sequence; a Sequence result passes through unchanged.
// Failures are rethrown into the caller's stream.
type InlineContext struct {
	registry *Registry
	tracer   trace.Tracer // optional; nil disables span creation
}

// NewInlineContext builds the default, in-process execution context.
func NewInlineContext(registry *Registry) *InlineContext {
	return &InlineContext{registry: registry}
}

// WithTracer attaches an OpenTelemetry tracer so each compute invocation
// is wrapped in a span — an optional enrichment (SPEC_FULL "execution
// tracing"), never required for correctness.
func (c *InlineContext) WithTracer(tracer trace.Tracer) *InlineContext {
	c.tracer = tracer
	return c
}

func (c *InlineContext) Execute(ctx context.Context, pluginType string, config map[string]any, inputs []any) (*Sequence, error) {
	plugin, err := c.registry.Get(pluginType)
	if err != nil {
		return nil, err
	}

	if c.tracer != nil {
		spanName := "reactor.compute." + pluginType
		if override, err := meta.Get[string](config, spanNameKey); err == nil && override != "" {
			spanName = override
		}
		var span trace.Span
		ctx, span = c.tracer.Start(ctx, spanName)
		defer span.End()
	}

	result, err := plugin.Compute(ctx, config, inputs)
	if err != nil {
		return nil, err
	}

	if seq, ok := result.(*Sequence); ok {
		return seq, nil
	}
	return once(result, nil), nil
}

func (c *InlineContext) Terminate() {}

// shouldParallelize decides whether a compute is worth dispatching to a
// worker pool rather than running inline: small inputs stay inline even
// under a worker-pool-backed execution context, while types in heavy are
// always dispatched to the pool.
func shouldParallelize(pluginType string, config map[string]any, inputs []any, heavy map[string]bool) bool {
	if heavy[pluginType] {
		return true
	}
	if v, ok := config["forceParallel"]; ok {
		if b, ok := v.(bool); ok && b {
			return true
		}
	}
	if v, ok := config["iterations"]; ok {
		if n, ok := asInt(v); ok && n > 10_000 {
			return true
		}
	}
	if data, ok := config["data"]; ok {
		if arr, ok := data.([]any); ok && len(arr) > 5000 {
			return true
		}
	}
	if aggregateSize(inputs) > 1000 {
		return true
	}
	return false
}

func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	}
	return 0, false
}

// aggregateSize counts elements plus nested keys across inputs, a rough
// proxy for "how much data is this compute touching". A top-level scalar
// input counts as one.
func aggregateSize(inputs []any) int {
	total := 0
	var walk func(v any)
	walk = func(v any) {
		switch val := v.(type) {
		case []any:
			total += len(val)
			for _, item := range val {
				walk(item)
			}
		case map[string]any:
			total += len(val)
			for _, item := range val {
				walk(item)
			}
		}
	}
	for _, in := range inputs {
		switch in.(type) {
		case []any, map[string]any:
			walk(in)
		default:
			total++
		}
	}
	return total
}
