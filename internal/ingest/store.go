// Package ingest populates a local demo database by crawling the
// providers company-by-company, with checkpointed resumable progress.
package ingest

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/kofinhq/kofin/internal/resolver"
)

// Store is the seeded output database. Its responses table intentionally
// uses a simpler schema than the client disk caches: seeded payloads have
// no TTL and never expire.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

func OpenStore(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("ingest: creating DB dir: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("ingest: opening DB: %w", err)
	}

	store := NewStore(db)
	if err := store.Init(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db, now: time.Now}
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) Init(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS responses (
			key TEXT PRIMARY KEY,
			data BLOB NOT NULL,
			source TEXT NOT NULL,
			created_at INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_responses_source ON responses(source);`,
		`CREATE TABLE IF NOT EXISTS corp_mappings (
			corp_code TEXT PRIMARY KEY,
			corp_name TEXT NOT NULL,
			stock_code TEXT,
			modify_date TEXT
		);`,
		`CREATE TABLE IF NOT EXISTS seed_progress (
			corp_code TEXT NOT NULL,
			report_code TEXT NOT NULL,
			year INTEGER NOT NULL,
			completed_at INTEGER NOT NULL,
			PRIMARY KEY (corp_code, report_code, year)
		);`,
		`CREATE TABLE IF NOT EXISTS seed_meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			updated_at INTEGER NOT NULL
		);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ingest: initializing schema: %w", err)
		}
	}
	return nil
}

// SaveResponse upserts one crawled payload; re-seeding a key is safe.
func (s *Store) SaveResponse(ctx context.Context, key string, data []byte, source string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO responses (key, data, source, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			data = excluded.data,
			source = excluded.source,
			created_at = excluded.created_at
	`, key, data, source, s.now().UnixMilli())
	if err != nil {
		return fmt.Errorf("ingest: saving response: %w", err)
	}
	return nil
}

func (s *Store) HasResponse(ctx context.Context, key string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM responses WHERE key = ?`, key).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("ingest: checking response: %w", err)
	}
	return true, nil
}

func (s *Store) ResponseCount(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM responses`).Scan(&n); err != nil {
		return 0, fmt.Errorf("ingest: counting responses: %w", err)
	}
	return n, nil
}

// SaveMappings replaces the persisted corp-mapping snapshot.
func (s *Store) SaveMappings(ctx context.Context, mappings []resolver.Mapping) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("ingest: starting mapping tx: %w", err)
	}
	defer tx.Rollback()

	for _, m := range mappings {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO corp_mappings (corp_code, corp_name, stock_code, modify_date)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(corp_code) DO UPDATE SET
				corp_name = excluded.corp_name,
				stock_code = excluded.stock_code,
				modify_date = excluded.modify_date
		`, m.CorpCode, m.Name, m.Ticker, m.ModifyDate); err != nil {
			return fmt.Errorf("ingest: saving mapping %s: %w", m.CorpCode, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("ingest: committing mappings: %w", err)
	}
	return nil
}

func (s *Store) MappingCount(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM corp_mappings`).Scan(&n); err != nil {
		return 0, fmt.Errorf("ingest: counting mappings: %w", err)
	}
	return n, nil
}

// MarkDone checkpoints one (company, report, year) unit of work.
func (s *Store) MarkDone(ctx context.Context, corpCode, reportCode string, year int) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO seed_progress (corp_code, report_code, year, completed_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(corp_code, report_code, year) DO UPDATE SET
			completed_at = excluded.completed_at
	`, corpCode, reportCode, year, s.now().UnixMilli())
	if err != nil {
		return fmt.Errorf("ingest: marking progress: %w", err)
	}
	return nil
}

func (s *Store) IsDone(ctx context.Context, corpCode, reportCode string, year int) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `
		SELECT 1 FROM seed_progress WHERE corp_code = ? AND report_code = ? AND year = ?
	`, corpCode, reportCode, year).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("ingest: checking progress: %w", err)
	}
	return true, nil
}

func (s *Store) ProgressCount(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM seed_progress`).Scan(&n); err != nil {
		return 0, fmt.Errorf("ingest: counting progress: %w", err)
	}
	return n, nil
}

// ResetProgress drops all checkpoints and seeded responses.
func (s *Store) ResetProgress(ctx context.Context) error {
	for _, stmt := range []string{
		`DELETE FROM seed_progress`,
		`DELETE FROM responses`,
		`DELETE FROM seed_meta`,
	} {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ingest: resetting progress: %w", err)
		}
	}
	return nil
}

func (s *Store) SetMeta(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO seed_meta (key, value, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			updated_at = excluded.updated_at
	`, key, value, s.now().UnixMilli())
	if err != nil {
		return fmt.Errorf("ingest: setting meta %s: %w", key, err)
	}
	return nil
}

func (s *Store) GetMeta(ctx context.Context, key string) (string, error) {
	var v string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM seed_meta WHERE key = ?`, key).Scan(&v)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("ingest: reading meta %s: %w", key, err)
	}
	return v, nil
}
