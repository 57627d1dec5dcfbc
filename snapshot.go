package reactor

import (
	"encoding/json"
	"fmt"
	"time"
)

// NodeSnapshot is one node's exported state: its definition, the
// wire-encoded signal currently retained on its output, the number of
// compute failures observed on it so far, and — unless the caller opts
// out — its cache entries.
type NodeSnapshot struct {
	Definition NodeDefinition `json:"definition"`
	Output     any            `json:"output"`
	ErrorCount int            `json:"errorCount"`
	CacheData  map[string]any `json:"cacheData,omitempty"`
}

// SnapshotOptions is a serializable, informational copy of the engine
// configuration in effect when a snapshot was taken. ImportState never
// reconfigures the target engine from it — the target keeps whatever
// options it was constructed with.
type SnapshotOptions struct {
	DataNodesExecutionMode DataExecMode  `json:"dataNodesExecutionMode"`
	CacheEnabled           bool          `json:"cacheEnabled"`
	DebounceTime           time.Duration `json:"debounceTime"`
	ThrottleTime           time.Duration `json:"throttleTime"`
	DistinctValues         bool          `json:"distinctValues"`
}

// SnapshotStats is a point-in-time copy of the source engine's counters.
type SnapshotStats struct {
	ComputeCount uint64 `json:"computeCount"`
	ErrorCount   uint64 `json:"errorCount"`
}

// Snapshot is the wire format produced by ExportState and consumed by
// ImportState. State is always "INITIALIZED" on export: a snapshot
// captures data, not a running process, so a restored engine always
// starts from the same lifecycle point regardless of what state the
// source engine was actually in when exported.
type Snapshot struct {
	EngineID   string                  `json:"engineId"`
	CreatedAt  time.Time               `json:"createdAt"`
	ExportedAt time.Time               `json:"exportedAt"`
	State      string                  `json:"state"`
	Options    SnapshotOptions         `json:"options"`
	Stats      SnapshotStats           `json:"stats"`
	Nodes      map[string]NodeSnapshot `json:"nodes"`
}

// ImportOptions tunes ImportState's restoration.
type ImportOptions struct {
	SkipCache   bool
	SkipOutputs bool
}

// ExportState walks every node and builds a Snapshot. Metadata — the
// reserved __runtime/__subject config sub-keys the engine itself never
// writes but a plugin may stash there — is stripped unless
// includeMetadata is set, since those keys are engine-internal.
func (e *Engine) ExportState(includeMetadata bool) (*Snapshot, error) {
	e.mu.RLock()
	ids := make([]string, 0, len(e.nodes))
	for id := range e.nodes {
		ids = append(ids, id)
	}
	e.mu.RUnlock()

	stats := e.Stats()

	snap := &Snapshot{
		EngineID:   e.id,
		CreatedAt:  e.createdAt,
		ExportedAt: time.Now(),
		State:      StateInitialized.String(),
		Options: SnapshotOptions{
			DataNodesExecutionMode: e.opts.DataNodesExecutionMode,
			CacheEnabled:           e.opts.CacheEnabled,
			DebounceTime:           e.opts.DebounceTime,
			ThrottleTime:           e.opts.ThrottleTime,
			DistinctValues:         e.opts.DistinctValues,
		},
		Stats: SnapshotStats{
			ComputeCount: stats.ComputeCount,
			ErrorCount:   stats.ErrorCount,
		},
		Nodes: make(map[string]NodeSnapshot, len(ids)),
	}

	for _, id := range ids {
		rt := e.lookupNode(id)
		if rt == nil {
			continue
		}

		def := rt.def.clone()
		if !includeMetadata {
			stripReservedKeys(def.Config)
		}

		rt.computeMu.Lock()
		errCount := rt.errorCount
		rt.computeMu.Unlock()

		ns := NodeSnapshot{
			Definition: def,
			Output:     wireEncode(rt.output.get()),
			ErrorCount: errCount,
		}
		if e.cache != nil {
			if nc, ok := e.cache.(*NodeCache); ok {
				ns.CacheData = nc.exportNode(id)
			}
		}
		snap.Nodes[id] = ns
	}

	return snap, nil
}

func stripReservedKeys(config map[string]any) {
	delete(config, "__runtime")
	delete(config, "__subject")
	delete(config, "triggeredNodeId")
}

// EncodeSnapshot renders a Snapshot as JSON. If a node's retained value
// can't be encoded (e.g. a plugin published something JSON can't
// represent), it falls back to a degraded snapshot that still carries
// every node's definition but replaces the unencodable output with INIT,
// so the rest of the graph's structure is never lost to one bad value.
// The fallback carries no cache data.
func EncodeSnapshot(snap *Snapshot) ([]byte, error) {
	data, err := json.Marshal(snap)
	if err == nil {
		return data, nil
	}

	fallback := &Snapshot{
		EngineID:   snap.EngineID,
		CreatedAt:  snap.CreatedAt,
		ExportedAt: snap.ExportedAt,
		State:      snap.State,
		Options:    snap.Options,
		Stats:      snap.Stats,
		Nodes:      make(map[string]NodeSnapshot, len(snap.Nodes)),
	}
	for id, ns := range snap.Nodes {
		output := any(wireInit)
		if _, err := json.Marshal(ns.Output); err == nil {
			output = ns.Output
		}
		fallback.Nodes[id] = NodeSnapshot{Definition: ns.Definition, Output: output, ErrorCount: ns.ErrorCount}
	}

	data, err = json.Marshal(fallback)
	if err != nil {
		return nil, fmt.Errorf("reactor: snapshot unencodable even in fallback form: %w", err)
	}
	return data, nil
}

// DecodeSnapshot parses JSON produced by EncodeSnapshot.
func DecodeSnapshot(data []byte) (*Snapshot, error) {
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("reactor: decode snapshot: %w", err)
	}
	return &snap, nil
}

// ImportState restores a Snapshot into an engine, replacing whatever
// nodes it currently has. It is rejected only once the engine is
// DESTROYED; against a RUNNING engine it pauses first and resumes once
// the import completes, and against any other state it clears every
// existing node before restoring the snapshot's.
//
// Restoration runs a two-pass topological add — every node is first
// registered with no inputs so every id exists, then a second pass
// attaches each node's real inputs — so cycle/missing-input validation
// never rejects a forward reference that the snapshot itself satisfies.
// The second pass mutates nodes directly rather than going through
// UpdateNode, since UpdateNode defers its work into pendingUpdates while
// the engine is PAUSED — exactly the state import holds it in.
//
// A source (zero-input) node still re-runs its compute once the engine
// is next started or resumed: ImportState only seeds the retained output
// value visible to readers in the meantime, it does not suppress the
// node's next activation.
func (e *Engine) ImportState(snapshot *Snapshot, opts ImportOptions) error {
	if snapshot == nil {
		return fmt.Errorf("reactor: nil snapshot")
	}

	e.mu.RLock()
	state := e.lifecycle
	e.mu.RUnlock()
	if state == StateDestroyed {
		return fmt.Errorf("%w: cannot import into a destroyed engine", ErrInvalidState)
	}

	wasRunning := state == StateRunning
	if wasRunning {
		if err := e.Pause(); err != nil {
			return err
		}
	}

	e.mu.Lock()
	oldNodes := e.snapshotNodesLocked()
	e.nodes = make(map[string]*nodeRuntime)
	e.graph = newNodeGraph()
	e.activeNodes = make(map[string]bool)
	e.pendingSkipHooksQueue = nil
	e.pendingUpdates = make(map[string]NodeDefinition)
	e.mu.Unlock()

	for _, rt := range oldNodes {
		e.stopPipeline(rt)
		rt.output.close()
		if e.cache != nil {
			e.cache.ClearNode(rt.def.ID)
		}
	}

	order := make([]string, 0, len(snapshot.Nodes))
	for id, ns := range snapshot.Nodes {
		def := ns.Definition.clone()
		def.ID = id
		stub := def
		stub.Inputs = nil
		if err := e.AddNode(stub); err != nil {
			return fmt.Errorf("reactor: import node %q: %w", id, err)
		}
		order = append(order, id)
	}

	for _, id := range order {
		def := snapshot.Nodes[id].Definition.clone()
		def.ID = id
		if len(def.Inputs) == 0 {
			continue
		}
		e.mu.Lock()
		rt, ok := e.nodes[id]
		if !ok {
			e.mu.Unlock()
			continue
		}
		e.graph.set(id, def.Inputs)
		plugin, _ := e.registry.Get(def.Type)
		rt.wrapper = newWrapper(id, plugin, def.Config, e.execCtx)
		rt.def = def.clone()
		e.mu.Unlock()
	}

	for _, id := range order {
		ns := snapshot.Nodes[id]
		rt := e.lookupNode(id)
		if rt == nil {
			continue
		}
		if !opts.SkipOutputs {
			rt.output.publish(wireDecode(ns.Output))
		}
		rt.computeMu.Lock()
		rt.errorCount = ns.ErrorCount
		rt.computeMu.Unlock()
		if !opts.SkipCache && len(ns.CacheData) > 0 && e.cache != nil {
			if nc, ok := e.cache.(*NodeCache); ok {
				nc.importNode(id, ns.CacheData)
			}
		}
	}

	if wasRunning {
		if err := e.Resume(); err != nil {
			return err
		}
	}

	e.hooks.Emit(EngineRestored, e.id, len(order))
	return nil
}
