package memory

import (
	"database/sql"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

//go:embed migrations/002_coherence_warnings.sql
var migration002 string

// SQLiteMemoryDB is the concrete implementation of MemoryDB using SQLite.
type SQLiteMemoryDB struct {
	db   *sql.DB
	path string
}

// NewMemoryDB opens (creating if necessary) the memory database at path and
// brings it up to the current schema version.
func NewMemoryDB(path string) (*SQLiteMemoryDB, error) {
	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create memory db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open memory db: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)

	memDB := &SQLiteMemoryDB{
		db:   db,
		path: path,
	}

	if err := memDB.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate memory db: %w", err)
	}

	return memDB, nil
}

// migrate runs database migrations idempotently.
func (m *SQLiteMemoryDB) migrate() error {
	if _, err := m.db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}

	var version int
	err := m.db.QueryRow("SELECT version FROM schema_version ORDER BY version DESC LIMIT 1").Scan(&version)
	if err != nil && err != sql.ErrNoRows {
		return fmt.Errorf("failed to check schema version: %w", err)
	}

	if version < 2 {
		fmt.Println("[MIGRATION] Running migration to v2: add coherence_warnings table")
		if _, err := m.db.Exec(migration002); err != nil {
			return fmt.Errorf("failed to run migration 002: %w", err)
		}
		if _, err := m.db.Exec("INSERT INTO schema_version (version, applied_at) VALUES (2, datetime('now'))"); err != nil {
			return fmt.Errorf("failed to record schema version 2: %w", err)
		}
		fmt.Println("[MIGRATION] Successfully migrated to schema v2")
	}

	return nil
}

// RawDB exposes the underlying connection pool for components (the event
// store, admin CLI) that need to share the same SQLite file without
// duplicating the connection.
func (m *SQLiteMemoryDB) RawDB() *sql.DB {
	return m.db
}

// Close closes the database connection.
func (m *SQLiteMemoryDB) Close() error {
	if m.db != nil {
		return m.db.Close()
	}
	return nil
}

// withTx executes fn within a transaction, rolling back on error.
func (m *SQLiteMemoryDB) withTx(fn func(*sql.Tx) error) error {
	tx, err := m.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// Null-handling helpers, kept in the teacher's shape.

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func stringOrEmpty(ns sql.NullString) string {
	if ns.Valid {
		return ns.String
	}
	return ""
}

func nullStringPtr(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{Valid: false}
	}
	return sql.NullString{String: *s, Valid: true}
}

func stringPtrOrNil(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	v := ns.String
	return &v
}

func nullInt64(i *int64) sql.NullInt64 {
	if i == nil {
		return sql.NullInt64{Valid: false}
	}
	return sql.NullInt64{Int64: *i, Valid: true}
}

func int64PtrOrNil(ni sql.NullInt64) *int64 {
	if !ni.Valid {
		return nil
	}
	v := ni.Int64
	return &v
}

func nullUint64Ptr(i *uint64) sql.NullInt64 {
	if i == nil {
		return sql.NullInt64{Valid: false}
	}
	return sql.NullInt64{Int64: int64(*i), Valid: true}
}

func uint64PtrOrNil(ni sql.NullInt64) *uint64 {
	if !ni.Valid {
		return nil
	}
	v := uint64(ni.Int64)
	return &v
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func intToBool(i int) bool {
	return i != 0
}
