package reactor

import (
	"sync"
	"sync/atomic"
)

// EventName identifies a lifecycle or per-node hook event.
type EventName string

const (
	NodeAdded             EventName = "NODE_ADDED"
	NodeRemoved           EventName = "NODE_REMOVED"
	NodeUpdated           EventName = "NODE_UPDATED"
	NodeComputeError      EventName = "NODE_COMPUTE_ERROR"
	NodeSkipComputation   EventName = "NODE_SKIP_COMPUTATION"
	EngineInitialized     EventName = "ENGINE_INITIALIZED"
	EngineStarted         EventName = "ENGINE_STARTED"
	EnginePaused          EventName = "ENGINE_PAUSED"
	EngineResumed         EventName = "ENGINE_RESUMED"
	EngineStateChanged    EventName = "ENGINE_STATE_CHANGED"
	BeforeDestroy         EventName = "BEFORE_DESTROY"
	AfterDestroy          EventName = "AFTER_DESTROY"
	EngineRestored        EventName = "ENGINE_RESTORED"
	HealthCheck           EventName = "HEALTH_CHECK"
	ErrorThresholdExceeded  EventName = "ERROR_THRESHOLD_EXCEEDED"
	MemoryThresholdExceeded EventName = "MEMORY_THRESHOLD_EXCEEDED"
)

// HookHandler receives the positional arguments documented per event
// (e.g. NodeUpdated gets (nodeID string, oldDef, newDef NodeDefinition)).
type HookHandler func(args ...any)

// Cleanup unsubscribes a previously registered handler.
type Cleanup func()

type subscription struct {
	id      uint64
	handler HookHandler
}

// HookManager is a typed event bus: an ordered multiset of subscribers
// per event, with isolating error handling so one bad subscriber never
// takes down the emitter or its siblings.
type HookManager struct {
	mu     sync.RWMutex
	subs   map[EventName][]subscription
	nextID atomic.Uint64
	logger func(event EventName, recovered any)
}

// NewHookManager creates an empty hook manager. logFn (may be nil) is
// called whenever a subscriber panics, so the isolation is observable
// without letting the panic propagate.
func NewHookManager(logFn func(event EventName, recovered any)) *HookManager {
	return &HookManager{subs: make(map[EventName][]subscription), logger: logFn}
}

// On registers a handler for an event, returning an unsubscribe handle.
func (h *HookManager) On(event EventName, handler HookHandler) Cleanup {
	id := h.nextID.Add(1)

	h.mu.Lock()
	h.subs[event] = append(h.subs[event], subscription{id: id, handler: handler})
	h.mu.Unlock()

	return func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		list := h.subs[event]
		for i, s := range list {
			if s.id == id {
				h.subs[event] = append(list[:i], list[i+1:]...)
				break
			}
		}
	}
}

// HasSubscribers reports whether an event currently has at least one
// subscriber — used to skip work that would otherwise have no observer
// (e.g. HEALTH_CHECK collection).
func (h *HookManager) HasSubscribers(event EventName) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[event]) > 0
}

// Emit invokes every subscriber for an event in subscription order. A
// subscriber's panic is isolated: it is recovered, optionally logged,
// and never reaches the emitter or the next subscriber in line.
func (h *HookManager) Emit(event EventName, args ...any) {
	h.mu.RLock()
	list := make([]subscription, len(h.subs[event]))
	copy(list, h.subs[event])
	h.mu.RUnlock()

	for _, s := range list {
		h.invoke(event, s.handler, args)
	}
}

func (h *HookManager) invoke(event EventName, handler HookHandler, args []any) {
	defer func() {
		if r := recover(); r != nil && h.logger != nil {
			h.logger(event, r)
		}
	}()
	handler(args...)
}
