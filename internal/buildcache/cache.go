// Package buildcache persists page source hashes between builds so that
// incremental builds can skip re-rendering unchanged pages, and keeps a small
// history of build outcomes.
package buildcache

import (
	"database/sql"
	"fmt"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"git.home.luguber.info/inful/blogbuilder/internal/workspace"
)

// Cache is the SQLite-backed build cache.
type Cache struct {
	db *sql.DB
}

// BuildRecord is one row of build history.
type BuildRecord struct {
	ID          string
	StartedAt   time.Time
	FinishedAt  time.Time
	Posts       int
	Pages       int
	Assets      int
	Outcome     string // success | failure
	Incremental bool
}

// Open opens (or creates) the cache database.
// Use ":memory:" for an in-memory database, or a file path for persistent storage.
func Open(dbPath string) (*Cache, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	cache := &Cache{db: db}
	if err := cache.initialize(); err != nil {
		_ = db.Close() // Best effort cleanup on initialization error
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return cache, nil
}

// OpenDir opens the cache database inside a persistent workspace under
// baseDir, so the cache survives between runs.
func OpenDir(baseDir string) (*Cache, error) {
	ws := workspace.NewPersistentManager(baseDir, "cache")
	if err := ws.Create(); err != nil {
		return nil, err
	}
	return Open(filepath.Join(ws.GetPath(), "cache.db"))
}

func (c *Cache) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS page_hashes (
		path TEXT PRIMARY KEY,
		hash TEXT NOT NULL,
		updated INTEGER NOT NULL
	);
	CREATE TABLE IF NOT EXISTS builds (
		id TEXT PRIMARY KEY,
		started INTEGER NOT NULL,
		finished INTEGER NOT NULL,
		posts INTEGER NOT NULL,
		pages INTEGER NOT NULL,
		assets INTEGER NOT NULL,
		outcome TEXT NOT NULL,
		incremental INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_builds_started ON builds(started);
	CREATE TABLE IF NOT EXISTS page_renders (
		hash TEXT PRIMARY KEY,
		html BLOB NOT NULL,
		summary TEXT NOT NULL,
		updated INTEGER NOT NULL
	);
	`
	_, err := c.db.Exec(schema)
	return err
}

// Close closes the underlying database.
func (c *Cache) Close() error { return c.db.Close() }

// PageHash returns the stored hash for a source path.
func (c *Cache) PageHash(path string) (hash string, found bool, err error) {
	row := c.db.QueryRow(`SELECT hash FROM page_hashes WHERE path = ?`, path)
	switch err := row.Scan(&hash); err {
	case nil:
		return hash, true, nil
	case sql.ErrNoRows:
		return "", false, nil
	default:
		return "", false, fmt.Errorf("query page hash: %w", err)
	}
}

// PutPageHash stores (or replaces) the hash for a source path.
func (c *Cache) PutPageHash(path, hash string) error {
	_, err := c.db.Exec(
		`INSERT INTO page_hashes (path, hash, updated) VALUES (?, ?, ?)
		 ON CONFLICT(path) DO UPDATE SET hash = excluded.hash, updated = excluded.updated`,
		path, hash, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("store page hash: %w", err)
	}
	return nil
}

// PruneExcept removes hash entries whose path is not in keep. Called after a
// build so entries for deleted source files do not accumulate.
func (c *Cache) PruneExcept(keep []string) error {
	tx, err := c.db.Begin()
	if err != nil {
		return fmt.Errorf("begin prune: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`CREATE TEMP TABLE keep_paths (path TEXT PRIMARY KEY)`); err != nil {
		return fmt.Errorf("prune temp table: %w", err)
	}
	for _, path := range keep {
		if _, err := tx.Exec(`INSERT OR IGNORE INTO keep_paths (path) VALUES (?)`, path); err != nil {
			return fmt.Errorf("prune insert: %w", err)
		}
	}
	if _, err := tx.Exec(`DELETE FROM page_hashes WHERE path NOT IN (SELECT path FROM keep_paths)`); err != nil {
		return fmt.Errorf("prune delete: %w", err)
	}
	if _, err := tx.Exec(`DROP TABLE keep_paths`); err != nil {
		return fmt.Errorf("prune drop: %w", err)
	}
	return tx.Commit()
}

// RenderedBody returns the cached rendered HTML and summary for a source hash.
func (c *Cache) RenderedBody(hash string) (html []byte, summary string, found bool, err error) {
	row := c.db.QueryRow(`SELECT html, summary FROM page_renders WHERE hash = ?`, hash)
	switch err := row.Scan(&html, &summary); err {
	case nil:
		return html, summary, true, nil
	case sql.ErrNoRows:
		return nil, "", false, nil
	default:
		return nil, "", false, fmt.Errorf("query rendered body: %w", err)
	}
}

// PutRenderedBody stores the rendered HTML and summary for a source hash.
func (c *Cache) PutRenderedBody(hash string, html []byte, summary string) error {
	_, err := c.db.Exec(
		`INSERT INTO page_renders (hash, html, summary, updated) VALUES (?, ?, ?, ?)
		 ON CONFLICT(hash) DO UPDATE SET html = excluded.html, summary = excluded.summary, updated = excluded.updated`,
		hash, html, summary, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("store rendered body: %w", err)
	}
	return nil
}

// PruneRendersExcept removes cached renders whose hash is not in keep.
func (c *Cache) PruneRendersExcept(keep []string) error {
	tx, err := c.db.Begin()
	if err != nil {
		return fmt.Errorf("begin prune: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`CREATE TEMP TABLE keep_hashes (hash TEXT PRIMARY KEY)`); err != nil {
		return fmt.Errorf("prune temp table: %w", err)
	}
	for _, hash := range keep {
		if _, err := tx.Exec(`INSERT OR IGNORE INTO keep_hashes (hash) VALUES (?)`, hash); err != nil {
			return fmt.Errorf("prune insert: %w", err)
		}
	}
	if _, err := tx.Exec(`DELETE FROM page_renders WHERE hash NOT IN (SELECT hash FROM keep_hashes)`); err != nil {
		return fmt.Errorf("prune delete: %w", err)
	}
	if _, err := tx.Exec(`DROP TABLE keep_hashes`); err != nil {
		return fmt.Errorf("prune drop: %w", err)
	}
	return tx.Commit()
}

// RecordBuild appends one build to the history.
func (c *Cache) RecordBuild(rec BuildRecord) error {
	incremental := 0
	if rec.Incremental {
		incremental = 1
	}
	_, err := c.db.Exec(
		`INSERT INTO builds (id, started, finished, posts, pages, assets, outcome, incremental)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.StartedAt.UnixMilli(), rec.FinishedAt.UnixMilli(),
		rec.Posts, rec.Pages, rec.Assets, rec.Outcome, incremental)
	if err != nil {
		return fmt.Errorf("record build: %w", err)
	}
	return nil
}

// RecentBuilds returns the most recent builds, newest first.
func (c *Cache) RecentBuilds(limit int) ([]BuildRecord, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := c.db.Query(
		`SELECT id, started, finished, posts, pages, assets, outcome, incremental
		 FROM builds ORDER BY started DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query builds: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var records []BuildRecord
	for rows.Next() {
		var rec BuildRecord
		var started, finished int64
		var incremental int
		if err := rows.Scan(&rec.ID, &started, &finished, &rec.Posts, &rec.Pages, &rec.Assets, &rec.Outcome, &incremental); err != nil {
			return nil, fmt.Errorf("scan build row: %w", err)
		}
		rec.StartedAt = time.UnixMilli(started)
		rec.FinishedAt = time.UnixMilli(finished)
		rec.Incremental = incremental != 0
		records = append(records, rec)
	}
	return records, rows.Err()
}
