// Package sqlitecache is an optional persistent reactor.CacheProvider
// backed by database/sql and the mattn/go-sqlite3 driver, for callers
// who want node computation results to survive a process restart.
package sqlitecache

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/legann/dexrx-sub000"
)

// Provider persists cache entries to a SQLite database instead of
// holding them in memory, trading NodeCache's speed for durability
// across restarts.
type Provider struct {
	db *sql.DB
}

// Open creates (or reuses) a SQLite database at path and ensures the
// cache table exists.
func Open(path string) (*Provider, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("sqlitecache: open %q: %w", path, err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("sqlitecache: ping: %w", err)
	}
	if err := initSchema(db); err != nil {
		return nil, fmt.Errorf("sqlitecache: init schema: %w", err)
	}
	return &Provider{db: db}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS cache_entries (
		node_id TEXT NOT NULL,
		key TEXT NOT NULL,
		value TEXT NOT NULL,
		expires_at INTEGER NOT NULL DEFAULT 0,
		last_accessed INTEGER NOT NULL,
		hits INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (node_id, key)
	);

	CREATE INDEX IF NOT EXISTS idx_cache_entries_node ON cache_entries(node_id);
	`
	_, err := db.Exec(schema)
	return err
}

// Close releases the underlying database handle.
func (p *Provider) Close() error {
	return p.db.Close()
}

// Get reads an entry, evicting it lazily if its TTL has expired.
func (p *Provider) Get(nodeID, key string) (any, bool) {
	var encoded string
	var expiresAt int64
	err := p.db.QueryRow(
		`SELECT value, expires_at FROM cache_entries WHERE node_id = ? AND key = ?`,
		nodeID, key,
	).Scan(&encoded, &expiresAt)
	if err != nil {
		return nil, false
	}

	if expiresAt != 0 && time.Now().UnixMilli() > expiresAt {
		_, _ = p.db.Exec(`DELETE FROM cache_entries WHERE node_id = ? AND key = ?`, nodeID, key)
		return nil, false
	}

	value, err := decodeValue(encoded)
	if err != nil {
		return nil, false
	}

	_, _ = p.db.Exec(
		`UPDATE cache_entries SET last_accessed = ?, hits = hits + 1 WHERE node_id = ? AND key = ?`,
		time.Now().Unix(), nodeID, key,
	)
	return value, true
}

// Set writes an entry, replacing any prior value for the same key.
func (p *Provider) Set(nodeID, key string, value any, ttl time.Duration) {
	encoded, err := encodeValue(value)
	if err != nil {
		return
	}

	var expiresAt int64
	if ttl > 0 {
		expiresAt = time.Now().Add(ttl).UnixMilli()
	}

	_, _ = p.db.Exec(
		`INSERT INTO cache_entries (node_id, key, value, expires_at, last_accessed, hits)
		 VALUES (?, ?, ?, ?, ?, 0)
		 ON CONFLICT(node_id, key) DO UPDATE SET
		   value = excluded.value, expires_at = excluded.expires_at,
		   last_accessed = excluded.last_accessed, hits = 0`,
		nodeID, key, encoded, expiresAt, time.Now().Unix(),
	)
}

// Delete removes a single entry.
func (p *Provider) Delete(nodeID, key string) {
	_, _ = p.db.Exec(`DELETE FROM cache_entries WHERE node_id = ? AND key = ?`, nodeID, key)
}

// ClearNode wipes every entry belonging to a node.
func (p *Provider) ClearNode(nodeID string) {
	_, _ = p.db.Exec(`DELETE FROM cache_entries WHERE node_id = ?`, nodeID)
}

// Cleanup removes every expired entry across every node.
func (p *Provider) Cleanup() {
	_, _ = p.db.Exec(`DELETE FROM cache_entries WHERE expires_at != 0 AND expires_at < ?`, time.Now().UnixMilli())
}

// Stats reports database-wide hit/miss counters. Misses are not tracked
// at the row level (SQLite has no concept of "a Get that found
// nothing"), so Misses always reports 0; callers wanting an accurate
// hit ratio should prefer NodeCache and treat this provider as
// durability-over-observability.
func (p *Provider) Stats() reactor.CacheStats {
	var hits uint64
	_ = p.db.QueryRow(`SELECT COALESCE(SUM(hits), 0) FROM cache_entries`).Scan(&hits)
	return reactor.CacheStats{Hits: hits}
}

// NodeStats reports hit counters scoped to a single node.
func (p *Provider) NodeStats(nodeID string) reactor.CacheStats {
	var hits uint64
	_ = p.db.QueryRow(`SELECT COALESCE(SUM(hits), 0) FROM cache_entries WHERE node_id = ?`, nodeID).Scan(&hits)
	return reactor.CacheStats{Hits: hits}
}

var _ reactor.CacheProvider = (*Provider)(nil)
