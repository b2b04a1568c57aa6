package cache

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Disk is a persistent key/value row store backing one provider's cache.
// A NULL expires_at marks a permanent entry removable only by explicit
// invalidation.
type Disk struct {
	db  *sql.DB
	now func() time.Time
}

// DiskStats summarizes the store for observability.
type DiskStats struct {
	Entries   int64 `json:"entries"`
	TotalHits int64 `json:"total_hits"`
}

// OpenDisk opens (creating if needed) the sqlite cache at path.
func OpenDisk(path string) (*Disk, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("cache: creating cache dir: %w", err)
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("cache: opening %s: %w", path, err)
	}

	d := NewDisk(db)
	if err := d.Init(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return d, nil
}

func NewDisk(db *sql.DB) *Disk {
	return &Disk{db: db, now: time.Now}
}

func (d *Disk) Init(ctx context.Context) error {
	stmts := []string{
		`PRAGMA journal_mode = WAL;`,
		`PRAGMA synchronous = NORMAL;`,
		`PRAGMA busy_timeout = 5000;`,
		`CREATE TABLE IF NOT EXISTS cache (
			key TEXT PRIMARY KEY,
			value BLOB NOT NULL,
			created_at INTEGER NOT NULL,
			expires_at INTEGER,
			hit_count INTEGER NOT NULL DEFAULT 0
		);`,
		`CREATE INDEX IF NOT EXISTS idx_cache_expires_at ON cache(expires_at);`,
	}
	for _, stmt := range stmts {
		if _, err := d.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("cache: init schema: %w", err)
		}
	}
	return nil
}

func (d *Disk) Close() error {
	if d == nil || d.db == nil {
		return nil
	}
	return d.db.Close()
}

// Get returns the value for key if present and unexpired, incrementing the
// row's hit counter.
func (d *Disk) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var value []byte
	var expiresAt sql.NullInt64
	err := d.db.QueryRowContext(ctx,
		`SELECT value, expires_at FROM cache WHERE key = ?`, key).Scan(&value, &expiresAt)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("cache: get %s: %w", key, err)
	}
	if expiresAt.Valid && d.now().UnixMilli() >= expiresAt.Int64 {
		return nil, false, nil
	}
	if _, err := d.db.ExecContext(ctx,
		`UPDATE cache SET hit_count = hit_count + 1 WHERE key = ?`, key); err != nil {
		return nil, false, fmt.Errorf("cache: bump hit count: %w", err)
	}
	return value, true, nil
}

// Set upserts a row; ttl <= 0 stores a permanent entry (NULL expiry).
// Last writer wins on concurrent writes of the same key.
func (d *Disk) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	now := d.now()
	var expiresAt interface{}
	if ttl > 0 {
		expiresAt = now.Add(ttl).UnixMilli()
	}
	_, err := d.db.ExecContext(ctx, `
		INSERT INTO cache (key, value, created_at, expires_at, hit_count)
		VALUES (?, ?, ?, ?, 0)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			created_at = excluded.created_at,
			expires_at = excluded.expires_at
	`, key, value, now.UnixMilli(), expiresAt)
	if err != nil {
		return fmt.Errorf("cache: set %s: %w", key, err)
	}
	return nil
}

func (d *Disk) Has(ctx context.Context, key string) (bool, error) {
	var expiresAt sql.NullInt64
	err := d.db.QueryRowContext(ctx,
		`SELECT expires_at FROM cache WHERE key = ?`, key).Scan(&expiresAt)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("cache: has %s: %w", key, err)
	}
	if expiresAt.Valid && d.now().UnixMilli() >= expiresAt.Int64 {
		return false, nil
	}
	return true, nil
}

func (d *Disk) Delete(ctx context.Context, key string) error {
	if _, err := d.db.ExecContext(ctx, `DELETE FROM cache WHERE key = ?`, key); err != nil {
		return fmt.Errorf("cache: delete %s: %w", key, err)
	}
	return nil
}

// InvalidateByPrefix removes every entry whose key starts with prefix and
// returns the number removed.
func (d *Disk) InvalidateByPrefix(ctx context.Context, prefix string) (int64, error) {
	escaped := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(prefix)
	res, err := d.db.ExecContext(ctx,
		`DELETE FROM cache WHERE key LIKE ? ESCAPE '\'`, escaped+"%")
	if err != nil {
		return 0, fmt.Errorf("cache: invalidate prefix %s: %w", prefix, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("cache: invalidate prefix %s: %w", prefix, err)
	}
	return n, nil
}

// Prune removes entries whose expiry has passed; permanent entries stay.
func (d *Disk) Prune(ctx context.Context) (int64, error) {
	res, err := d.db.ExecContext(ctx,
		`DELETE FROM cache WHERE expires_at IS NOT NULL AND expires_at <= ?`, d.now().UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("cache: prune: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("cache: prune: %w", err)
	}
	return n, nil
}

func (d *Disk) Stats(ctx context.Context) (DiskStats, error) {
	var st DiskStats
	err := d.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(hit_count), 0) FROM cache`).Scan(&st.Entries, &st.TotalHits)
	if err != nil {
		return DiskStats{}, fmt.Errorf("cache: stats: %w", err)
	}
	return st, nil
}
