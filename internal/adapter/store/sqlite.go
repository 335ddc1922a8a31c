// Package store persists storefront data in SQLite.
package store

import (
	"context"
	"crypto/rand"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	_ "modernc.org/sqlite"

	"storefront-agent/internal/domain"
)

var (
	_ domain.CatalogStore = (*SQLiteStore)(nil)
	_ domain.PaymentStore = (*SQLiteStore)(nil)
	_ domain.ContentStore = (*SQLiteStore)(nil)
	_ domain.ReportStore  = (*SQLiteStore)(nil)
)

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

const defaultListLimit = 50

// SQLiteStore implements the storefront stores on one SQLite database.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time // for testing
}

// Open opens (or creates) the database at path and runs the schema migration.
func Open(path string) (*SQLiteStore, error) {
	if path != MemoryPath {
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, fmt.Errorf("create store dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open store db: %w", err)
	}
	if path == MemoryPath {
		// Every pooled connection would otherwise see its own empty database.
		db.SetMaxOpenConns(1)
	} else if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate store db: %w", err)
	}
	return &SQLiteStore{db: db, now: func() time.Time { return time.Now().UTC() }}, nil
}

func migrate(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS products (
			id          TEXT PRIMARY KEY,
			sku         TEXT NOT NULL UNIQUE,
			name        TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			category    TEXT NOT NULL DEFAULT '',
			price_cents INTEGER NOT NULL,
			currency    TEXT NOT NULL DEFAULT 'USD',
			stock       INTEGER NOT NULL DEFAULT 0,
			created_at  TEXT NOT NULL,
			updated_at  TEXT NOT NULL
		);
		CREATE TABLE IF NOT EXISTS payments (
			id           TEXT PRIMARY KEY,
			order_ref    TEXT NOT NULL,
			product_id   TEXT NOT NULL DEFAULT '',
			quantity     INTEGER NOT NULL DEFAULT 1,
			amount_cents INTEGER NOT NULL,
			currency     TEXT NOT NULL DEFAULT 'USD',
			method       TEXT NOT NULL DEFAULT 'card',
			status       TEXT NOT NULL,
			created_at   TEXT NOT NULL,
			refunded_at  TEXT
		);
		CREATE INDEX IF NOT EXISTS idx_payments_status ON payments(status);
		CREATE TABLE IF NOT EXISTS pages (
			id           TEXT PRIMARY KEY,
			slug         TEXT NOT NULL UNIQUE,
			title        TEXT NOT NULL,
			body         TEXT NOT NULL DEFAULT '',
			status       TEXT NOT NULL DEFAULT 'draft',
			published_at TEXT,
			created_at   TEXT NOT NULL,
			updated_at   TEXT NOT NULL
		);
	`)
	return err
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Ping implements domain.ReportStore.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return storeErr(subStore, "SQLiteStore.Ping", err)
	}
	return nil
}

func newID() string {
	return ulid.MustNew(ulid.Timestamp(time.Now()), rand.Reader).String()
}

// timeLayout is fixed width so stored timestamps compare correctly as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}

func parseNullTime(ns sql.NullString) *time.Time {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	t := parseTime(ns.String)
	return &t
}

func limitOrDefault(n int) int {
	if n <= 0 {
		return defaultListLimit
	}
	return n
}

type scanner interface {
	Scan(dest ...any) error
}

// Subsystems tag store errors so ErrorCodeOf can name the missing entity.
const (
	subCatalog  = "catalog"
	subPayments = "payments"
	subContent  = "content"
	subStore    = "store"
)

// storeErr wraps a driver error. sql.ErrNoRows becomes ErrNotFound and
// unique-constraint violations become ErrDuplicate.
func storeErr(subsystem, op string, err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return domain.NewSubSystemError(subsystem, op, domain.ErrNotFound, "")
	}
	if strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return domain.NewSubSystemError(subsystem, op, domain.ErrDuplicate, err.Error())
	}
	return domain.NewSubSystemError(subsystem, op, domain.ErrStore, err.Error())
}

func checkAffected(subsystem, op, id string, res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return storeErr(subsystem, op, err)
	}
	if n == 0 {
		return domain.NewSubSystemError(subsystem, op, domain.ErrNotFound, id)
	}
	return nil
}
