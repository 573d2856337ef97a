package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/vsinha/lineplan/pkg/domain/repositories"
)

const schema = `
CREATE TABLE IF NOT EXISTS lines (
	id             TEXT PRIMARY KEY,
	name           TEXT NOT NULL,
	daily_capacity INTEGER NOT NULL,
	operator_count INTEGER NOT NULL DEFAULT 0,
	active         INTEGER NOT NULL DEFAULT 1,
	revision       INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS holidays (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	date        TEXT NOT NULL,
	global      INTEGER NOT NULL,
	line_ids    TEXT NOT NULL DEFAULT '',
	description TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_holidays_date ON holidays(date);

CREATE TABLE IF NOT EXISTS ramp_up_plans (
	id               TEXT PRIMARY KEY,
	name             TEXT NOT NULL,
	final_efficiency TEXT NOT NULL,
	steps            TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS orders (
	id              TEXT PRIMARY KEY,
	po_number       TEXT NOT NULL,
	style_id        TEXT NOT NULL,
	order_quantity  INTEGER NOT NULL,
	cut_quantity    INTEGER NOT NULL DEFAULT 0,
	issue_quantity  INTEGER NOT NULL DEFAULT 0,
	smv             TEXT NOT NULL,
	status          TEXT NOT NULL,
	line_id         TEXT NOT NULL DEFAULT '',
	plan_start_date TEXT NOT NULL DEFAULT '',
	plan_end_date   TEXT NOT NULL DEFAULT '',
	schedule        TEXT NOT NULL DEFAULT '',
	parent_id       TEXT NOT NULL DEFAULT '',
	retired_at      TEXT,
	version         INTEGER NOT NULL,
	created_at      TEXT NOT NULL,
	updated_at      TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_orders_line_status ON orders(line_id, status);
`

// Store implements every planning repository on an embedded SQLite file
type Store struct {
	db *sql.DB
}

var _ repositories.Store = (*Store)(nil)

// New opens or creates the database at path
func New(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	// immediate transactions take the write lock up front so two commits
	// never both pass the revision check
	dsn := "file:" + path + "?_pragma=busy_timeout(10000)&_pragma=journal_mode(wal)&_pragma=foreign_keys(1)&_txlock=immediate"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// withTx runs fn in a transaction, rolling back on error
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339Nano, s)
}
