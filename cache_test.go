package reactor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNodeCache_SetGetRoundTrip(t *testing.T) {
	c := NewNodeCache(100, false, nil, "engine-1")

	_, ok := c.Get("node-a", "key-1")
	require.False(t, ok)

	c.Set("node-a", "key-1", 42, 0)
	v, ok := c.Get("node-a", "key-1")
	require.True(t, ok)
	require.Equal(t, 42, v)
}

func TestNodeCache_TTLExpiryIsLazy(t *testing.T) {
	c := NewNodeCache(100, false, nil, "engine-1")
	c.Set("node-a", "key-1", "stale", time.Millisecond)
	time.Sleep(5 * time.Millisecond)

	_, ok := c.Get("node-a", "key-1")
	require.False(t, ok)
}

func TestNodeCache_PerNodeCapEvictsLeastRecentlyUsed(t *testing.T) {
	c := NewNodeCache(100, false, nil, "engine-1")

	c.Set("node-a", "key-1", "v1", 0)
	time.Sleep(time.Millisecond)
	c.Set("node-a", "key-2", "v2", 0)
	time.Sleep(time.Millisecond)
	c.Set("node-a", "key-3", "v3", 0)

	c.EnforceCaps("node-a", 2)

	_, ok := c.Get("node-a", "key-1")
	require.False(t, ok, "oldest entry should have been evicted")
	_, ok = c.Get("node-a", "key-3")
	require.True(t, ok)
}

func TestNodeCache_GlobalCapEvictsAcrossNodes(t *testing.T) {
	c := NewNodeCache(2, false, nil, "engine-1")

	c.Set("node-a", "key-1", "v1", 0)
	time.Sleep(time.Millisecond)
	c.Set("node-b", "key-1", "v2", 0)
	time.Sleep(time.Millisecond)
	c.Set("node-c", "key-1", "v3", 0)

	c.EnforceCaps("node-c", 0)

	total := 0
	for _, nodeID := range []string{"node-a", "node-b", "node-c"} {
		if _, ok := c.Get(nodeID, "key-1"); ok {
			total++
		}
	}
	require.Equal(t, 2, total)
}

func TestNodeCache_TieBreakByFewerHits(t *testing.T) {
	c := NewNodeCache(100, false, nil, "engine-1")

	now := time.Now()
	c.entries["node-a"] = map[string]*cacheEntry{
		"k1": {value: "v1", lastAccessed: now, hits: 5},
		"k2": {value: "v2", lastAccessed: now, hits: 0},
	}

	c.EnforceCaps("node-a", 1)

	_, ok := c.Get("node-a", "k2")
	require.False(t, ok, "entry with fewer hits should be evicted on a lastAccessed tie")
	_, ok = c.Get("node-a", "k1")
	require.True(t, ok)
}

func TestNodeCache_DeleteAndClearNode(t *testing.T) {
	c := NewNodeCache(100, false, nil, "engine-1")
	c.Set("node-a", "key-1", "v1", 0)
	c.Set("node-a", "key-2", "v2", 0)

	c.Delete("node-a", "key-1")
	_, ok := c.Get("node-a", "key-1")
	require.False(t, ok)

	c.ClearNode("node-a")
	_, ok = c.Get("node-a", "key-2")
	require.False(t, ok)
}

func TestNodeCache_CleanupRemovesExpiredOnly(t *testing.T) {
	c := NewNodeCache(100, false, nil, "engine-1")
	c.Set("node-a", "stale", "v1", time.Millisecond)
	c.Set("node-a", "fresh", "v2", time.Hour)
	time.Sleep(5 * time.Millisecond)

	c.Cleanup()

	require.Len(t, c.entries["node-a"], 1)
	_, ok := c.entries["node-a"]["fresh"]
	require.True(t, ok)
}

func TestNodeCache_StatsTracksHitsAndMisses(t *testing.T) {
	c := NewNodeCache(100, false, nil, "engine-1")
	c.Set("node-a", "key-1", "v1", 0)

	_, _ = c.Get("node-a", "key-1")
	_, _ = c.Get("node-a", "missing")

	stats := c.Stats()
	require.Equal(t, uint64(1), stats.Hits)
	require.Equal(t, uint64(1), stats.Misses)
	require.InDelta(t, 0.5, stats.HitRatio(), 0.0001)
}

func TestDeriveCacheKey_StableForSameInputs(t *testing.T) {
	inputs := []any{1.0, 2.0}
	config := map[string]any{"factor": 2}

	key1 := deriveCacheKey(inputs, config, InvalidateInputChange)
	key2 := deriveCacheKey(inputs, config, InvalidateInputChange)
	require.Equal(t, key1, key2)
}

func TestDeriveCacheKey_ChangesWithConfigOnlyWhenStrategyRequests(t *testing.T) {
	inputs := []any{1.0}
	keyWithoutConfig1 := deriveCacheKey(inputs, map[string]any{"a": 1}, InvalidateInputChange)
	keyWithoutConfig2 := deriveCacheKey(inputs, map[string]any{"a": 2}, InvalidateInputChange)
	require.Equal(t, keyWithoutConfig1, keyWithoutConfig2)

	keyWithConfig1 := deriveCacheKey(inputs, map[string]any{"a": 1}, InvalidateConfigChange)
	keyWithConfig2 := deriveCacheKey(inputs, map[string]any{"a": 2}, InvalidateConfigChange)
	require.NotEqual(t, keyWithConfig1, keyWithConfig2)
}
