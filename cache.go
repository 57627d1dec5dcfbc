package reactor

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"sort"
	"sync"
	"time"
)

// InvalidationStrategy is a bitmask so a node can combine strategies.
type InvalidationStrategy int

const (
	InvalidateTime InvalidationStrategy = 1 << iota
	InvalidateConfigChange
	InvalidateInputChange
	InvalidateManual
)

func (s InvalidationStrategy) has(flag InvalidationStrategy) bool { return s&flag != 0 }

// CacheOptions configures memoisation for a single node, overridable per
// node via NodeDefinition.CacheOptions and defaulted from the engine's
// own cache options.
type CacheOptions struct {
	Enabled      bool
	TTL          time.Duration // 0 = infinite
	MaxEntries   int           // per-node cap
	Invalidation InvalidationStrategy
}

// DefaultCacheOptions mirrors the engine-wide default: enabled, no TTL,
// no per-node cap (only the global cap applies), invalidate on input
// change only.
func DefaultCacheOptions() CacheOptions {
	return CacheOptions{Enabled: true, Invalidation: InvalidateInputChange}
}

type cacheEntry struct {
	value        any
	expiresAt    time.Time // zero = never
	lastAccessed time.Time
	hits         uint64
}

// CacheStats reports hit/miss counters, engine-wide or per node.
type CacheStats struct {
	Hits   uint64
	Misses uint64
}

func (s CacheStats) HitRatio() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

// CacheProvider is the pluggable storage behind per-node memoisation.
// The engine ships NodeCache as the default, in-memory implementation;
// providers/sqlitecache offers a persistent alternative for callers that
// opt in.
type CacheProvider interface {
	Get(nodeID, key string) (any, bool)
	Set(nodeID, key string, value any, ttl time.Duration)
	Delete(nodeID, key string)
	ClearNode(nodeID string)
	Cleanup()
	Stats() CacheStats
	NodeStats(nodeID string) CacheStats
}

// NodeCache is the default in-memory CacheProvider: per-node keyed
// memoisation with TTL plus a per-node and a global LRU cap.
type NodeCache struct {
	mu             sync.Mutex
	entries        map[string]map[string]*cacheEntry
	globalCap      int
	metrics        *metricsSet
	engineID       string
	collectMetrics bool

	nodeHits    map[string]uint64
	nodeMisses  map[string]uint64
	totalHits   uint64
	totalMisses uint64
}

// NewNodeCache creates an in-memory cache provider with the given global
// entry cap (default 1000) and optional metrics wiring.
func NewNodeCache(globalCap int, collectMetrics bool, metrics *metricsSet, engineID string) *NodeCache {
	if globalCap <= 0 {
		globalCap = 1000
	}
	return &NodeCache{
		entries:        make(map[string]map[string]*cacheEntry),
		globalCap:      globalCap,
		metrics:        metrics,
		engineID:       engineID,
		collectMetrics: collectMetrics,
		nodeHits:       make(map[string]uint64),
		nodeMisses:     make(map[string]uint64),
	}
}

// Get reads a cache entry, evicting it lazily if expired.
func (c *NodeCache) Get(nodeID, key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	node := c.entries[nodeID]
	entry, ok := node[key]
	if !ok {
		c.recordMiss(nodeID)
		return nil, false
	}
	if !entry.expiresAt.IsZero() && time.Now().After(entry.expiresAt) {
		delete(node, key)
		c.recordMiss(nodeID)
		return nil, false
	}

	entry.lastAccessed = time.Now()
	entry.hits++
	c.recordHit(nodeID)
	return entry.value, true
}

// Set writes a cache entry; it does not evict. The per-node and global
// caps are applied by EnforceCaps, whose eviction picks the entry with
// smallest lastAccessed, ties broken by smaller hits.
func (c *NodeCache) Set(nodeID, key string, value any, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	node, ok := c.entries[nodeID]
	if !ok {
		node = make(map[string]*cacheEntry)
		c.entries[nodeID] = node
	}

	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = time.Now().Add(ttl)
	}

	node[key] = &cacheEntry{value: value, expiresAt: expiresAt, lastAccessed: time.Now()}

	if c.metrics != nil && c.collectMetrics {
		c.metrics.cacheEntries.WithLabelValues(c.engineID, nodeID).Set(float64(len(node)))
	}
}

// EnforceCaps applies the per-node cap (evicting inside nodeID only) and
// the engine-global cap (evicting across every node). Called by Set's
// caller (the engine) after it knows the node's configured MaxEntries,
// since the cache itself has no per-node policy awareness.
func (c *NodeCache) EnforceCaps(nodeID string, perNodeMax int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if perNodeMax > 0 {
		node := c.entries[nodeID]
		for len(node) > perNodeMax {
			c.evictOneLocked(node)
		}
	}

	total := 0
	for _, n := range c.entries {
		total += len(n)
	}
	for total > c.globalCap {
		victimNode, victimKey := c.findGlobalVictimLocked()
		if victimNode == "" {
			break
		}
		delete(c.entries[victimNode], victimKey)
		total--
	}
}

func (c *NodeCache) evictOneLocked(node map[string]*cacheEntry) {
	var victimKey string
	var victim *cacheEntry
	for k, e := range node {
		if victim == nil || e.lastAccessed.Before(victim.lastAccessed) ||
			(e.lastAccessed.Equal(victim.lastAccessed) && e.hits < victim.hits) {
			victimKey, victim = k, e
		}
	}
	if victim != nil {
		delete(node, victimKey)
	}
}

func (c *NodeCache) findGlobalVictimLocked() (string, string) {
	var victimNode, victimKey string
	var victim *cacheEntry
	for nodeID, node := range c.entries {
		for k, e := range node {
			if victim == nil || e.lastAccessed.Before(victim.lastAccessed) ||
				(e.lastAccessed.Equal(victim.lastAccessed) && e.hits < victim.hits) {
				victimNode, victimKey, victim = nodeID, k, e
			}
		}
	}
	return victimNode, victimKey
}

// Delete removes a single entry (used by manual invalidation).
func (c *NodeCache) Delete(nodeID, key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if node, ok := c.entries[nodeID]; ok {
		delete(node, key)
	}
}

// ClearNode wipes every entry belonging to a node.
func (c *NodeCache) ClearNode(nodeID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, nodeID)
}

// Cleanup scans every node and removes expired entries. The engine
// schedules this every max(ttl/10, 10s) while running.
func (c *NodeCache) Cleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	for _, node := range c.entries {
		for k, e := range node {
			if !e.expiresAt.IsZero() && now.After(e.expiresAt) {
				delete(node, k)
			}
		}
	}
}

func (c *NodeCache) recordHit(nodeID string) {
	c.totalHits++
	c.nodeHits[nodeID]++
	if c.metrics != nil && c.collectMetrics {
		c.metrics.cacheHits.WithLabelValues(c.engineID, nodeID).Inc()
	}
}

func (c *NodeCache) recordMiss(nodeID string) {
	c.totalMisses++
	c.nodeMisses[nodeID]++
	if c.metrics != nil && c.collectMetrics {
		c.metrics.cacheMisses.WithLabelValues(c.engineID, nodeID).Inc()
	}
}

// Stats reports engine-wide hit/miss counters.
func (c *NodeCache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return CacheStats{Hits: c.totalHits, Misses: c.totalMisses}
}

// NodeStats reports per-node hit/miss counters.
func (c *NodeCache) NodeStats(nodeID string) CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return CacheStats{Hits: c.nodeHits[nodeID], Misses: c.nodeMisses[nodeID]}
}

// exportNode returns a deep, JSON-safe copy of a node's cache entries for
// snapshotting, sorted by key for deterministic output.
func (c *NodeCache) exportNode(nodeID string) map[string]any {
	c.mu.Lock()
	defer c.mu.Unlock()

	node, ok := c.entries[nodeID]
	if !ok || len(node) == 0 {
		return nil
	}

	keys := make([]string, 0, len(node))
	for k := range node {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make(map[string]any, len(keys))
	for _, k := range keys {
		out[k] = node[k].value
	}
	return out
}

// importNode restores a node's cache entries from a snapshot, with no
// expiry (exported entries are treated as fresh).
func (c *NodeCache) importNode(nodeID string, data map[string]any) {
	if len(data) == 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	node := make(map[string]*cacheEntry, len(data))
	now := time.Now()
	for k, v := range data {
		node[k] = &cacheEntry{value: v, lastAccessed: now}
	}
	c.entries[nodeID] = node
}

// deriveCacheKey concatenates the JSON encoding of inputs and, only for
// InvalidateConfigChange, the config. If encoding fails (cyclic values),
// a unique-per-call key is synthesised so different calls never collide.
func deriveCacheKey(inputs []any, config map[string]any, strategy InvalidationStrategy) string {
	payload := struct {
		Inputs []any          `json:"inputs"`
		Config map[string]any `json:"config,omitempty"`
	}{Inputs: inputs}

	if strategy.has(InvalidateConfigChange) {
		payload.Config = config
	}

	encoded, err := json.Marshal(payload)
	if err != nil {
		return randomKey()
	}
	return string(encoded)
}

func randomKey() string {
	buf := make([]byte, 16)
	_, _ = rand.Read(buf)
	return "uncacheable:" + hex.EncodeToString(buf)
}
