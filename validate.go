package reactor

import (
	"fmt"

	"github.com/legann/dexrx-sub000/pkg/schema"
)

// SanitizeOptions configures the engine's optional sanitisation pass. A
// failed sanitisation logs and retains the original definition rather
// than rejecting it — only structural validation (missing id, wrong
// type) raises ErrInvalidDef.
type SanitizeOptions struct {
	Enabled  bool
	MaxDepth int // authoritative maxDepth, per design note (a) — overrides any other same-named option
}

// DefaultSanitizeOptions enables sanitisation with a maxDepth of 10.
func DefaultSanitizeOptions() SanitizeOptions {
	return SanitizeOptions{Enabled: true, MaxDepth: 10}
}

var dangerousStringSchema = &schema.StringSchema{MaxLength: 16 * 1024, Pattern: `^[^\x00]*$`}

var dangerousKeyPattern = `^[A-Za-z0-9_.\-\[\]]+$`
var keySchema = &schema.StringSchema{MaxLength: 256, Pattern: dangerousKeyPattern}

// sanitizeString runs the bounded-length, no-dangerous-character check.
// Key names are checked with the stricter keySchema.
func sanitizeString(s string) error {
	_, err := dangerousStringSchema.Validate(s)
	return err
}

func sanitizeKey(k string) error {
	_, err := keySchema.Validate(k)
	return err
}

// scrubConfig recursively walks a node's config map up to maxDepth,
// checking every string key and string value for safety. It never
// mutates in place — a "clean" copy is returned on success.
func scrubConfig(config map[string]any, maxDepth int) (map[string]any, error) {
	return scrubMap(config, maxDepth, 0)
}

func scrubMap(m map[string]any, maxDepth, depth int) (map[string]any, error) {
	if depth > maxDepth {
		return nil, fmt.Errorf("reactor: config exceeds max depth %d", maxDepth)
	}

	out := make(map[string]any, len(m))
	for k, v := range m {
		if err := sanitizeKey(k); err != nil {
			return nil, fmt.Errorf("config key %q: %w", k, err)
		}
		scrubbed, err := scrubValue(v, maxDepth, depth+1)
		if err != nil {
			return nil, fmt.Errorf("config key %q: %w", k, err)
		}
		out[k] = scrubbed
	}
	return out, nil
}

func scrubValue(v any, maxDepth, depth int) (any, error) {
	switch val := v.(type) {
	case string:
		if err := sanitizeString(val); err != nil {
			return nil, err
		}
		return val, nil
	case map[string]any:
		return scrubMap(val, maxDepth, depth)
	case []any:
		if depth > maxDepth {
			return nil, fmt.Errorf("reactor: config exceeds max depth %d", maxDepth)
		}
		out := make([]any, len(val))
		for i, item := range val {
			scrubbed, err := scrubValue(item, maxDepth, depth+1)
			if err != nil {
				return nil, err
			}
			out[i] = scrubbed
		}
		return out, nil
	default:
		return v, nil
	}
}

// validateStructure enforces the non-negotiable shape checks that do
// raise ErrInvalidDef: a present, non-empty id and type. Whether the
// type is actually registered is checked by the caller (engine), since
// that requires the registry.
func validateStructure(def *NodeDefinition) error {
	if def == nil {
		return fmt.Errorf("%w: nil definition", ErrInvalidDef)
	}
	if def.ID == "" {
		return fmt.Errorf("%w: missing id", ErrInvalidDef)
	}
	if def.Type == "" {
		return fmt.Errorf("%w: missing type", ErrInvalidDef)
	}
	return nil
}
