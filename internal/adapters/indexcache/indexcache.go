// Package indexcache persists a session file's line-offset index across
// engine restarts, keyed by (path, mtime, size), so reopening a session
// that was already fully indexed before the engine stopped doesn't require
// rescanning the whole file byte-by-byte before the first query can answer.
//
// Grounded on the teacher's internal/adapters/sessioncache.Cache
// (database/sql over modernc.org/sqlite, WAL mode, a metadata table
// tracking schemaVersion to force a rebuild on schema change) narrowed
// from a full per-session summary cache (message counts, branch, summary
// text) to a single line-offset blob per file, since this engine already
// derives everything else (events, file edits) from sessionindex.Index at
// query time rather than caching it.
package indexcache

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/sessionlens/sessionlens/internal/jsonl"
)

// schemaVersion is bumped whenever the cached row shape changes, forcing a
// rebuild of the cache table rather than trying to migrate old rows.
const schemaVersion = 1

// Cache is a SQLite-backed store of (path, mtime, size) -> line offsets.
type Cache struct {
	db *sql.DB
}

// Open opens (creating if needed) the cache database at dbPath.
func Open(dbPath string) (*Cache, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("indexcache: open %s: %w", dbPath, err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("indexcache: enable WAL: %w", err)
	}

	if err := createSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Cache{db: db}, nil
}

// Close closes the underlying database handle.
func (c *Cache) Close() error {
	return c.db.Close()
}

func createSchema(db *sql.DB) error {
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS metadata (key TEXT PRIMARY KEY, value TEXT)`); err != nil {
		return fmt.Errorf("indexcache: create metadata table: %w", err)
	}

	var currentVersion int
	row := db.QueryRow(`SELECT value FROM metadata WHERE key = 'schema_version'`)
	if err := row.Scan(&currentVersion); err != nil {
		currentVersion = 0
	}

	if currentVersion < schemaVersion {
		if _, err := db.Exec(`DROP TABLE IF EXISTS line_offsets`); err != nil {
			return fmt.Errorf("indexcache: drop stale line_offsets table: %w", err)
		}
		if _, err := db.Exec(`
			CREATE TABLE line_offsets (
				path       TEXT PRIMARY KEY,
				mtime_unix INTEGER NOT NULL,
				size       INTEGER NOT NULL,
				offsets    BLOB NOT NULL,
				updated_at INTEGER NOT NULL
			)`); err != nil {
			return fmt.Errorf("indexcache: create line_offsets table: %w", err)
		}
		if _, err := db.Exec(`INSERT OR REPLACE INTO metadata (key, value) VALUES ('schema_version', ?)`, schemaVersion); err != nil {
			return fmt.Errorf("indexcache: record schema version: %w", err)
		}
	}

	return nil
}

// Get returns the cached line offsets for path if a row exists whose
// recorded mtime and size exactly match the caller's current stat — any
// mismatch (the file changed since the row was written) is treated as a
// miss, never partially reused.
func (c *Cache) Get(path string, mtime time.Time, size int64) ([]jsonl.LineOffset, bool, error) {
	var (
		mtimeUnix int64
		gotSize   int64
		blob      []byte
	)
	row := c.db.QueryRow(`SELECT mtime_unix, size, offsets FROM line_offsets WHERE path = ?`, path)
	if err := row.Scan(&mtimeUnix, &gotSize, &blob); err != nil {
		if err == sql.ErrNoRows {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("indexcache: query %s: %w", path, err)
	}

	if mtimeUnix != mtime.UnixNano() || gotSize != size {
		return nil, false, nil
	}

	var offsets []jsonl.LineOffset
	if err := json.Unmarshal(blob, &offsets); err != nil {
		return nil, false, fmt.Errorf("indexcache: decode cached offsets for %s: %w", path, err)
	}
	return offsets, true, nil
}

// Put upserts the line offsets for path, tagged with the mtime/size they
// were computed against.
func (c *Cache) Put(path string, mtime time.Time, size int64, offsets []jsonl.LineOffset) error {
	blob, err := json.Marshal(offsets)
	if err != nil {
		return fmt.Errorf("indexcache: encode offsets for %s: %w", path, err)
	}

	_, err = c.db.Exec(`
		INSERT INTO line_offsets (path, mtime_unix, size, offsets, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			mtime_unix = excluded.mtime_unix,
			size       = excluded.size,
			offsets    = excluded.offsets,
			updated_at = excluded.updated_at
	`, path, mtime.UnixNano(), size, blob, time.Now().UnixNano())
	if err != nil {
		return fmt.Errorf("indexcache: upsert %s: %w", path, err)
	}
	return nil
}

// Evict removes any cached row for path, e.g. after a rebuild whose result
// should not be trusted for reuse (truncation, rewrite).
func (c *Cache) Evict(path string) error {
	if _, err := c.db.Exec(`DELETE FROM line_offsets WHERE path = ?`, path); err != nil {
		return fmt.Errorf("indexcache: evict %s: %w", path, err)
	}
	return nil
}
