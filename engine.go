package reactor

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// lifecycleState is the engine-level state machine:
// INITIALIZED -> RUNNING <-> PAUSED -> STOPPING -> DESTROYED.
type lifecycleState int

const (
	StateInitialized lifecycleState = iota
	StateRunning
	StatePaused
	StateStopping
	StateDestroyed
)

func (s lifecycleState) String() string {
	switch s {
	case StateInitialized:
		return "INITIALIZED"
	case StateRunning:
		return "RUNNING"
	case StatePaused:
		return "PAUSED"
	case StateStopping:
		return "STOPPING"
	case StateDestroyed:
		return "DESTROYED"
	default:
		return "UNKNOWN"
	}
}

type errorLogEntry struct {
	NodeID string
	Err    error
	At     time.Time
}

// EngineStats is the read-only snapshot returned by Engine.Stats.
type EngineStats struct {
	EngineID         string
	StartedAt        time.Time
	Lifecycle        string
	ComputeCount     uint64
	ErrorCount       uint64
	ActiveNodes      int
	PendingSkipHooks int
	RecentErrors     []errorLogEntry
}

// Engine is the runtime home for a dynamic node graph, its plugin
// registry, cache, hook bus and execution context.
type Engine struct {
	id   string
	opts EngineOptions

	registry *Registry
	cache    CacheProvider
	hooks    *HookManager
	graph    *nodeGraph
	execCtx  ExecutionContext
	metrics  *metricsSet

	mu                sync.RWMutex
	lifecycle         lifecycleState
	nodes             map[string]*nodeRuntime
	subscribedOutputs map[string]int
	activeNodes       map[string]bool
	pendingSkipHooksQueue []string
	pendingUpdates    map[string]NodeDefinition
	firstSkipObserved bool

	createdAt    time.Time
	computeCount atomic.Uint64
	errorCount   atomic.Uint64

	errorLog        []errorLogEntry
	errorTimestamps []time.Time

	stabilityMu  sync.Mutex
	stabilitySig chan struct{}

	backgroundStop chan struct{}
	backgroundWG   sync.WaitGroup
}

// NewEngine constructs an Engine bound to registry, applying opts over
// engineDefaults. Unless WithAutoStart(false) is passed, it starts running
// immediately — every node added afterwards gets a live pipeline right away.
func NewEngine(registry *Registry, opts ...EngineOption) (*Engine, error) {
	if registry == nil {
		return nil, fmt.Errorf("reactor: registry is required")
	}

	options := engineDefaults()
	for _, opt := range opts {
		opt(&options)
	}
	if options.EngineID == "" {
		options.EngineID = uuid.NewString()
	}

	metrics := newMetricsSet(options.EngineID)
	metrics.register(options.MetricsRegisterer)

	var cache CacheProvider
	if options.CacheProvider != nil {
		cache = options.CacheProvider
	} else if options.CacheEnabled {
		cache = NewNodeCache(options.GlobalCacheCap, options.CollectCacheMetrics, metrics, options.EngineID)
	}

	execCtx := options.ExecutionContext
	if execCtx == nil {
		inline := NewInlineContext(registry)
		if options.Tracer != nil {
			inline = inline.WithTracer(options.Tracer)
		}
		if options.workerPoolOpts != nil {
			pool := NewWorkerPoolContext(registry, *options.workerPoolOpts, options.Logger)
			execCtx = NewHybridExecutionContext(inline, pool)
		} else {
			execCtx = inline
		}
	}

	e := &Engine{
		id:                options.EngineID,
		opts:              options,
		registry:          registry,
		cache:             cache,
		graph:             newNodeGraph(),
		execCtx:           execCtx,
		metrics:           metrics,
		nodes:             make(map[string]*nodeRuntime),
		subscribedOutputs: make(map[string]int),
		activeNodes:       make(map[string]bool),
		pendingUpdates:    make(map[string]NodeDefinition),
		createdAt:         time.Now(),
		lifecycle:         StateInitialized,
		stabilitySig:      make(chan struct{}),
	}
	e.hooks = NewHookManager(func(event EventName, recovered any) {
		options.Logger.Error().Str("event", string(event)).Interface("panic", recovered).Msg("hook subscriber panicked")
	})

	e.hooks.Emit(EngineInitialized, e.id)

	if options.AutoStart {
		if err := e.Start(); err != nil {
			return nil, err
		}
	}
	return e, nil
}

// Start transitions INITIALIZED -> RUNNING, building a pipeline for every
// node already registered.
func (e *Engine) Start() error {
	e.mu.Lock()
	if e.lifecycle != StateInitialized {
		e.mu.Unlock()
		return fmt.Errorf("%w: cannot start from %s", ErrInvalidState, e.lifecycle)
	}
	e.lifecycle = StateRunning
	rts := e.snapshotNodesLocked()
	e.mu.Unlock()

	for _, rt := range rts {
		if !rt.hasPipeline {
			e.startPipeline(rt)
		}
	}
	e.startBackgroundLoops()

	e.hooks.Emit(EngineStarted, e.id)
	e.hooks.Emit(EngineStateChanged, e.id, StateRunning.String())
	return nil
}

// Pause transitions RUNNING -> PAUSED: every pipeline is cancelled, node
// definitions and output channels survive, and UpdateNode calls made while
// paused are buffered into pendingUpdates instead of applied.
func (e *Engine) Pause() error {
	e.mu.Lock()
	if e.lifecycle != StateRunning {
		e.mu.Unlock()
		return fmt.Errorf("%w: cannot pause from %s", ErrInvalidState, e.lifecycle)
	}
	e.lifecycle = StatePaused
	rts := e.snapshotNodesLocked()
	e.mu.Unlock()

	for _, rt := range rts {
		e.stopPipeline(rt)
	}
	e.stopBackgroundLoops()

	e.hooks.Emit(EnginePaused, e.id)
	e.hooks.Emit(EngineStateChanged, e.id, StatePaused.String())
	return nil
}

// Resume transitions PAUSED -> RUNNING, rebuilding every pipeline and then
// replaying buffered updates one at a time with a short stagger so a burst
// of deferred UpdateNode calls doesn't land in the same instant.
func (e *Engine) Resume() error {
	e.mu.Lock()
	if e.lifecycle != StatePaused {
		e.mu.Unlock()
		return fmt.Errorf("%w: cannot resume from %s", ErrInvalidState, e.lifecycle)
	}
	e.lifecycle = StateRunning
	pending := e.pendingUpdates
	e.pendingUpdates = make(map[string]NodeDefinition)
	rts := e.snapshotNodesLocked()
	e.mu.Unlock()

	for _, rt := range rts {
		if !rt.hasPipeline {
			e.startPipeline(rt)
		}
	}
	e.startBackgroundLoops()

	e.hooks.Emit(EngineResumed, e.id)
	e.hooks.Emit(EngineStateChanged, e.id, StateRunning.String())

	if len(pending) > 0 {
		go func() {
			for id, def := range pending {
				time.Sleep(10 * time.Millisecond)
				_ = e.UpdateNode(id, def)
			}
		}()
	}
	return nil
}

// Destroy is the terminal transition: every pipeline and the execution
// context are torn down, then the state machine parks in DESTROYED.
// Stop is its alias, matching the source description of "stop" as a
// shortcut that ends in DESTROYED rather than a reversible pause.
func (e *Engine) Destroy() error {
	e.mu.Lock()
	if e.lifecycle == StateDestroyed {
		e.mu.Unlock()
		return nil
	}
	e.lifecycle = StateStopping
	rts := e.snapshotNodesLocked()
	e.mu.Unlock()

	e.hooks.Emit(BeforeDestroy, e.id)

	for _, rt := range rts {
		e.stopPipeline(rt)
		rt.output.close()
	}
	e.stopBackgroundLoops()
	e.execCtx.Terminate()
	switch ec := e.execCtx.(type) {
	case *WorkerPoolContext:
		ec.WaitForTermination(1000)
	case *HybridExecutionContext:
		ec.pool.WaitForTermination(1000)
	}

	e.mu.Lock()
	e.lifecycle = StateDestroyed
	e.mu.Unlock()

	e.broadcastStability()
	e.hooks.Emit(AfterDestroy, e.id)
	return nil
}

func (e *Engine) Stop() error { return e.Destroy() }

func (e *Engine) snapshotNodesLocked() []*nodeRuntime {
	rts := make([]*nodeRuntime, 0, len(e.nodes))
	for _, rt := range e.nodes {
		rts = append(rts, rt)
	}
	return rts
}

// AddNode registers a new node: structural validation, optional config
// sanitisation, missing-input and cycle checks, then — if the engine is
// RUNNING — an immediate pipeline.
func (e *Engine) AddNode(def NodeDefinition) error {
	if err := validateStructure(&def); err != nil {
		return err
	}
	if !e.registry.Has(def.Type) {
		return fmt.Errorf("%w: %q", ErrUnknownType, def.Type)
	}
	if e.opts.Sanitize.Enabled {
		if scrubbed, err := scrubConfig(def.Config, e.opts.Sanitize.MaxDepth); err != nil {
			e.opts.Logger.Warn().Err(err).Str("node", def.ID).Msg("config failed sanitisation; keeping original")
		} else {
			def.Config = scrubbed
		}
	}

	e.mu.Lock()
	if e.lifecycle == StateDestroyed {
		e.mu.Unlock()
		return ErrEngineDestroyed
	}
	if _, exists := e.nodes[def.ID]; exists {
		e.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrDuplicateID, def.ID)
	}
	for _, in := range def.Inputs {
		if _, ok := e.nodes[in]; !ok {
			e.mu.Unlock()
			return fmt.Errorf("%w: %q", ErrMissingInput, in)
		}
	}
	if e.graph.wouldCycle(def.ID, def.Inputs) {
		e.mu.Unlock()
		return ErrCycleDetected
	}

	plugin, _ := e.registry.Get(def.Type)
	rt := &nodeRuntime{
		def:     def.clone(),
		wrapper: newWrapper(def.ID, plugin, def.Config, e.execCtx),
		output:  newOutputChannel(),
	}
	e.nodes[def.ID] = rt
	e.graph.set(def.ID, def.Inputs)
	running := e.lifecycle == StateRunning
	e.mu.Unlock()

	if running {
		e.startPipeline(rt)
	}
	e.hooks.Emit(NodeAdded, def.ID, def)
	return nil
}

// UpdateNode replaces a node's definition in place, preserving its output
// channel identity and clearing the node's cache entries. While PAUSED the
// call is buffered and applied on Resume instead.
func (e *Engine) UpdateNode(id string, def NodeDefinition) error {
	def.ID = id
	if err := validateStructure(&def); err != nil {
		return err
	}
	if !e.registry.Has(def.Type) {
		return fmt.Errorf("%w: %q", ErrUnknownType, def.Type)
	}

	e.mu.Lock()
	if e.lifecycle == StatePaused {
		e.pendingUpdates[id] = def.clone()
		e.mu.Unlock()
		return nil
	}
	if e.lifecycle == StateDestroyed {
		e.mu.Unlock()
		return ErrEngineDestroyed
	}
	rt, exists := e.nodes[id]
	if !exists {
		e.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrMissingNode, id)
	}
	for _, in := range def.Inputs {
		if in == id {
			e.mu.Unlock()
			return ErrCycleDetected
		}
		if _, ok := e.nodes[in]; !ok {
			e.mu.Unlock()
			return fmt.Errorf("%w: %q", ErrMissingInput, in)
		}
	}

	oldInputs := e.graph.inputsOf(id)
	e.graph.set(id, nil)
	if e.graph.wouldCycle(id, def.Inputs) {
		e.graph.set(id, oldInputs)
		e.mu.Unlock()
		return ErrCycleDetected
	}
	e.graph.set(id, def.Inputs)
	oldDef := rt.def
	running := e.lifecycle == StateRunning
	e.mu.Unlock()

	if running {
		e.stopPipeline(rt)
	}

	plugin, _ := e.registry.Get(def.Type)
	e.mu.Lock()
	rt.wrapper = newWrapper(id, plugin, def.Config, e.execCtx)
	rt.def = def.clone()
	e.mu.Unlock()

	if e.cache != nil {
		e.cache.ClearNode(id)
	}

	if running {
		e.startPipeline(rt)
	}
	e.hooks.Emit(NodeUpdated, id, oldDef, def)
	return nil
}

// RemoveNode tears a node down and cascades: every direct dependent is
// updated to drop the removed id from its own inputs.
func (e *Engine) RemoveNode(id string) error {
	e.mu.Lock()
	if e.lifecycle == StateDestroyed {
		e.mu.Unlock()
		return ErrEngineDestroyed
	}
	rt, exists := e.nodes[id]
	if !exists {
		e.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrMissingNode, id)
	}
	dependents := e.graph.directDependents(id)
	delete(e.nodes, id)
	delete(e.activeNodes, id)
	e.graph.remove(id)
	e.mu.Unlock()

	e.stopPipeline(rt)
	rt.output.close()
	if e.cache != nil {
		e.cache.ClearNode(id)
	}

	e.hooks.Emit(NodeRemoved, id)

	for _, depID := range dependents {
		e.mu.RLock()
		depRT, ok := e.nodes[depID]
		e.mu.RUnlock()
		if !ok {
			continue
		}
		if err := e.UpdateNode(depID, depRT.def.withoutInput(id)); err != nil {
			e.opts.Logger.Warn().Err(err).Str("node", depID).Msg("failed to cascade input removal")
		}
	}
	return nil
}

// PrecomputeNode runs a node's compute once, outside its pipeline, against
// caller-supplied inputs — useful for warming the cache ahead of a node's
// first live trigger.
func (e *Engine) PrecomputeNode(ctx context.Context, id string, inputs []any) (any, error) {
	e.mu.RLock()
	rt, exists := e.nodes[id]
	e.mu.RUnlock()
	if !exists {
		return nil, fmt.Errorf("%w: %q", ErrMissingNode, id)
	}

	signals := make([]Signal, len(inputs))
	for i, v := range inputs {
		signals[i] = Of(v)
	}

	cacheOpts := e.resolveCacheOptions(rt.def)
	var cacheKey string
	if cacheOpts.Enabled && e.cache != nil {
		cacheKey = deriveCacheKey(inputs, rt.def.Config, cacheOpts.Invalidation)
		if v, ok := e.cache.Get(id, cacheKey); ok {
			return v, nil
		}
	}

	seq, err := rt.wrapper.invoke(ctx, signals)
	if err != nil {
		return nil, err
	}
	defer seq.Stop()

	select {
	case em, ok := <-seq.C:
		if !ok {
			return nil, nil
		}
		if em.Err != nil {
			return nil, em.Err
		}
		if cacheOpts.Enabled && e.cache != nil {
			e.cache.Set(id, cacheKey, em.Value, cacheOpts.TTL)
			if nc, ok := e.cache.(*NodeCache); ok {
				nc.EnforceCaps(id, cacheOpts.MaxEntries)
			}
		}
		return em.Value, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Subscribe registers an external listener on a node's output; it also
// marks the node as "subscribed" for SYNC_EXEC_MODE's stabilisation check.
func (e *Engine) Subscribe(id string, fn func(Signal)) (Cleanup, error) {
	e.mu.Lock()
	rt, ok := e.nodes[id]
	if !ok {
		e.mu.Unlock()
		return nil, fmt.Errorf("%w: %q", ErrMissingNode, id)
	}
	e.subscribedOutputs[id]++
	e.mu.Unlock()

	ch, cancel := rt.output.subscribe()
	stop := make(chan struct{})
	go func() {
		for {
			select {
			case sig, ok := <-ch:
				if !ok {
					return
				}
				fn(sig)
			case <-stop:
				return
			}
		}
	}()

	return func() {
		close(stop)
		cancel()
		e.mu.Lock()
		e.subscribedOutputs[id]--
		if e.subscribedOutputs[id] <= 0 {
			delete(e.subscribedOutputs, id)
		}
		e.mu.Unlock()
	}, nil
}

// CurrentValue returns a node's retained output value, or (nil, nil) if it
// is still INIT or currently SKIP.
func (e *Engine) CurrentValue(id string) (any, error) {
	e.mu.RLock()
	rt, ok := e.nodes[id]
	e.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrMissingNode, id)
	}
	sig := rt.output.get()
	if sig.IsValue() {
		return sig.Value(), nil
	}
	return nil, nil
}

// OnHook subscribes to a lifecycle/node event.
func (e *Engine) OnHook(event EventName, handler HookHandler) Cleanup {
	return e.hooks.On(event, handler)
}

// ExportDependencyGraph returns each node id mapped to the ids that
// directly consume it, the same adjacency extensions/graph_debug.go walks
// to render a dependency tree around a failing node.
func (e *Engine) ExportDependencyGraph() map[string][]string {
	return e.graph.exportDependents()
}

func (e *Engine) lookupNode(id string) *nodeRuntime {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.nodes[id]
}

func (e *Engine) resolveCacheOptions(def NodeDefinition) CacheOptions {
	if def.CacheOptions != nil {
		return *def.CacheOptions
	}
	if !e.opts.CacheEnabled {
		return CacheOptions{Enabled: false}
	}
	return e.opts.DefaultCache
}

// setActive tracks the stabilisation set: a node is "active" from the
// moment its compute starts until its terminal event (or error/skip).
func (e *Engine) setActive(id string, active bool) {
	e.mu.Lock()
	if active {
		e.activeNodes[id] = true
	} else {
		delete(e.activeNodes, id)
	}
	remaining := len(e.activeNodes)
	e.mu.Unlock()

	e.metrics.activeNodes.Set(float64(remaining))
	if !active && remaining == 0 {
		e.flushPendingSkipHooks()
	}
	e.broadcastStability()
}

// handleSkip implements the deferred-hook-flush rule for
// NODE_SKIP_COMPUTATION: emitted immediately if no node is currently
// active, otherwise queued in FIFO order until the active set empties.
// Under ASYNC_EXEC_MODE the first skip observed engine-wide also
// auto-pauses the engine.
func (e *Engine) handleSkip(nodeID string) {
	e.mu.Lock()
	empty := len(e.activeNodes) == 0
	firstEver := !e.firstSkipObserved
	e.firstSkipObserved = true
	if !empty {
		e.pendingSkipHooksQueue = append(e.pendingSkipHooksQueue, nodeID)
	}
	queueLen := len(e.pendingSkipHooksQueue)
	e.mu.Unlock()

	e.metrics.pendingSkipHooks.Set(float64(queueLen))

	if empty {
		e.hooks.Emit(NodeSkipComputation, nodeID)
	}

	if e.opts.DataNodesExecutionMode == AsyncExecMode {
		e.broadcastStability()
		if firstEver {
			go func() { _ = e.Pause() }()
		}
	}
}

func (e *Engine) flushPendingSkipHooks() {
	e.mu.Lock()
	queue := e.pendingSkipHooksQueue
	e.pendingSkipHooksQueue = nil
	e.mu.Unlock()

	e.metrics.pendingSkipHooks.Set(0)
	for _, id := range queue {
		e.hooks.Emit(NodeSkipComputation, id)
	}
}

// handleComputeError records a compute failure into the bounded error log,
// updates counters/metrics, logs (unless silenced) and emits
// NODE_COMPUTE_ERROR, then ERROR_THRESHOLD_EXCEEDED whenever the rolling
// window holds at least the configured count.
func (e *Engine) handleComputeError(nodeID string, cause error) {
	var ce *ComputeError
	if !errors.As(cause, &ce) {
		ce = newComputeError(nodeID, cause, false)
	}

	e.errorCount.Add(1)
	e.metrics.errorTotal.WithLabelValues(e.id, nodeID).Inc()

	if rt := e.lookupNode(nodeID); rt != nil {
		rt.computeMu.Lock()
		rt.errorCount++
		rt.computeMu.Unlock()
	}

	e.mu.Lock()
	e.errorLog = append(e.errorLog, errorLogEntry{NodeID: nodeID, Err: ce, At: time.Now()})
	if len(e.errorLog) > 1000 {
		e.errorLog = e.errorLog[len(e.errorLog)-1000:]
	}
	e.errorTimestamps = append(e.errorTimestamps, time.Now())
	e.pruneErrorTimestampsLocked()
	thresholdExceeded := e.opts.ErrorThreshold > 0 && len(e.errorTimestamps) >= e.opts.ErrorThreshold
	errCount := len(e.errorTimestamps)
	e.mu.Unlock()

	if !e.opts.SilentErrors {
		e.opts.Logger.Error().Str("node", nodeID).Err(ce).Msg("node compute failed")
	}
	e.hooks.Emit(NodeComputeError, nodeID, ce)

	if thresholdExceeded {
		e.hooks.Emit(ErrorThresholdExceeded, e.id, errCount)
	}
}

func (e *Engine) pruneErrorTimestampsLocked() {
	window := e.opts.ErrorTimeWindow
	if window <= 0 {
		return
	}
	cutoff := time.Now().Add(-window)
	i := 0
	for ; i < len(e.errorTimestamps); i++ {
		if e.errorTimestamps[i].After(cutoff) {
			break
		}
	}
	e.errorTimestamps = e.errorTimestamps[i:]
}

// broadcastStability wakes every Stabilize waiter to re-check its
// condition, replacing the channel so late subscribers see the next wake.
func (e *Engine) broadcastStability() {
	e.stabilityMu.Lock()
	close(e.stabilitySig)
	e.stabilitySig = make(chan struct{})
	e.stabilityMu.Unlock()
}

func (e *Engine) isStable() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if len(e.activeNodes) > 0 {
		return false
	}
	if e.opts.DataNodesExecutionMode == SyncExecMode {
		for id := range e.subscribedOutputs {
			rt, ok := e.nodes[id]
			if !ok {
				continue
			}
			if rt.output.get().IsInit() {
				return false
			}
		}
	}
	return true
}

// Stabilize blocks until the graph has settled: every active compute has
// produced a terminal event and, under SYNC_EXEC_MODE, every subscribed
// node holds a concrete value. Under ASYNC_EXEC_MODE, the first
// NODE_SKIP_COMPUTATION observed engine-wide resolves it immediately too.
func (e *Engine) Stabilize(ctx context.Context) error {
	for {
		e.mu.RLock()
		asyncResolved := e.opts.DataNodesExecutionMode == AsyncExecMode && e.firstSkipObserved
		e.mu.RUnlock()

		if asyncResolved || e.isStable() {
			return nil
		}

		e.stabilityMu.Lock()
		sig := e.stabilitySig
		e.stabilityMu.Unlock()

		select {
		case <-sig:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Stats returns a point-in-time snapshot of engine health.
func (e *Engine) Stats() EngineStats {
	e.mu.RLock()
	defer e.mu.RUnlock()

	errs := make([]errorLogEntry, len(e.errorLog))
	copy(errs, e.errorLog)

	return EngineStats{
		EngineID:         e.id,
		StartedAt:        e.createdAt,
		Lifecycle:        e.lifecycle.String(),
		ComputeCount:     e.computeCount.Load(),
		ErrorCount:       e.errorCount.Load(),
		ActiveNodes:      len(e.activeNodes),
		PendingSkipHooks: len(e.pendingSkipHooksQueue),
		RecentErrors:     errs,
	}
}

func (e *Engine) startBackgroundLoops() {
	e.mu.Lock()
	stop := make(chan struct{})
	e.backgroundStop = stop
	e.mu.Unlock()

	e.backgroundWG.Add(1)
	go e.runCacheCleanupLoop(stop)

	if e.opts.StatLoggingInterval > 0 {
		e.backgroundWG.Add(1)
		go e.runStatLoop(stop)
	}
	if e.opts.MemoryThresholdBytes > 0 {
		e.backgroundWG.Add(1)
		go e.runMemoryLoop(stop)
	}
}

func (e *Engine) stopBackgroundLoops() {
	e.mu.Lock()
	stop := e.backgroundStop
	e.backgroundStop = nil
	e.mu.Unlock()

	if stop != nil {
		close(stop)
	}
	e.backgroundWG.Wait()
}

func (e *Engine) runCacheCleanupLoop(stop chan struct{}) {
	defer e.backgroundWG.Done()
	interval := e.opts.DefaultCache.TTL / 10
	if interval < 10*time.Second {
		interval = 10 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if e.cache != nil {
				e.cache.Cleanup()
			}
		case <-stop:
			return
		}
	}
}

func (e *Engine) runStatLoop(stop chan struct{}) {
	defer e.backgroundWG.Done()
	ticker := time.NewTicker(e.opts.StatLoggingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			stats := e.Stats()
			e.opts.Logger.Info().
				Uint64("compute_count", stats.ComputeCount).
				Uint64("error_count", stats.ErrorCount).
				Int("active_nodes", stats.ActiveNodes).
				Msg("engine health check")
			if e.hooks.HasSubscribers(HealthCheck) {
				e.hooks.Emit(HealthCheck, stats)
			}
		case <-stop:
			return
		}
	}
}

func (e *Engine) runMemoryLoop(stop chan struct{}) {
	defer e.backgroundWG.Done()
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	var m runtime.MemStats
	for {
		select {
		case <-ticker.C:
			runtime.ReadMemStats(&m)
			if m.Alloc > e.opts.MemoryThresholdBytes {
				e.hooks.Emit(MemoryThresholdExceeded, e.id, m.Alloc)
			}
		case <-stop:
			return
		}
	}
}
