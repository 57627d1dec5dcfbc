package reactor

import "context"

// wrapper binds a Plugin to its frozen config. invoke honours the
// skip-propagation rule for operational nodes: if any input is SKIP,
// the operational plugin is never called.
type wrapper struct {
	nodeID string
	plugin Plugin
	config map[string]any
	exec   ExecutionContext
}

func newWrapper(nodeID string, plugin Plugin, config map[string]any, exec ExecutionContext) *wrapper {
	return &wrapper{nodeID: nodeID, plugin: plugin, config: config, exec: exec}
}

// invoke runs the wrapped plugin's compute against concrete (already
// INIT-gated) input values and returns its lazy result. Operational
// nodes observing SKIP return a *SkipInputError instead of calling
// compute at all.
func (w *wrapper) invoke(ctx context.Context, inputs []Signal) (*Sequence, error) {
	if w.plugin.Category() == CategoryOperational {
		for _, in := range inputs {
			if in.IsSkip() {
				return nil, &SkipInputError{NodeID: w.nodeID}
			}
		}
	}

	values := make([]any, len(inputs))
	for i, in := range inputs {
		values[i] = in.Value()
	}

	return w.exec.Execute(ctx, w.plugin.Type(), w.config, values)
}
