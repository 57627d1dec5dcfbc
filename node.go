package reactor

import (
	"context"
	"sync"
)

// NodeDefinition is the user-supplied, immutable-per-version description
// of a node. Two NodeDefinition values with the same ID/Type but
// different Inputs/Config represent successive versions applied via
// UpdateNode.
type NodeDefinition struct {
	ID           string
	Type         string
	Inputs       []string
	Config       map[string]any
	CacheOptions *CacheOptions // nil = engine default
}

func (d NodeDefinition) clone() NodeDefinition {
	cp := d
	cp.Inputs = append([]string(nil), d.Inputs...)
	cp.Config = cloneConfig(d.Config)
	if d.CacheOptions != nil {
		opts := *d.CacheOptions
		cp.CacheOptions = &opts
	}
	return cp
}

func cloneConfig(c map[string]any) map[string]any {
	if c == nil {
		return nil
	}
	out := make(map[string]any, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}

// withoutInput returns a copy of the definition with the given input id
// removed — used by removeNode's cascade.
func (d NodeDefinition) withoutInput(id string) NodeDefinition {
	cp := d.clone()
	filtered := cp.Inputs[:0]
	for _, in := range d.Inputs {
		if in != id {
			filtered = append(filtered, in)
		}
	}
	cp.Inputs = filtered
	return cp
}

// nodeRuntime is the engine-owned, per-node live state. Its output
// identity survives in-place updates; the wrapper is replaced and the
// pipeline goroutine backing it is torn down and rebuilt.
type nodeRuntime struct {
	def     NodeDefinition
	wrapper *wrapper
	output  *outputChannel

	cancel context.CancelFunc // tears down this node's pipeline goroutine
	done   chan struct{}      // closed once the pipeline goroutine exits

	computeMu    sync.Mutex
	activeCancel context.CancelFunc // cancels the in-flight compute, if cancelable
	errorCount   int                // compute failures observed on this node so far
	hasPipeline  bool
}
