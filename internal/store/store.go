// Package store is the database access port for the archive engine: a
// SQLite index derived from the text archives and rebuildable from them at
// any time. The Import Reconciler exclusively owns row creation and update
// for archived entities; no other component mutates these tables.
package store

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/gulkily/thywill-sub001/internal/record"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 1 - Initial schema
const currentSchemaVersion = 1

// Store provides durable storage for the derived index.
// Uses SQLite with WAL mode for concurrent read access.
type Store struct {
	db *sql.DB
}

// Open creates or opens a SQLite database at the given path.
// Applies required pragmas and migrations automatically.
//
// The database is configured with:
//   - WAL mode for concurrent reads during writes
//   - NORMAL synchronous mode (balance durability/performance)
//   - 5-second busy timeout for lock contention
//   - Foreign key enforcement
//
// This function is idempotent - safe to call multiple times.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite only supports one writer at a time, so limit connections.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}

	if err := applySchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// DB returns the underlying sql.DB for direct queries.
// Use with caution - prefer using Store methods when available.
func (s *Store) DB() *sql.DB {
	return s.db
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	return nil
}

// applySchema creates tables if they don't exist and runs migrations.
// This function is idempotent.
func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}

	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}
	// No incremental migrations yet; future schema changes bump the
	// version and apply here.
	if version < currentSchemaVersion {
		if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
			return fmt.Errorf("set user_version: %w", err)
		}
	}

	return nil
}

// tableFor maps a domain to its table. Exhaustive over the closed domain
// set.
func tableFor(domain record.Domain) string {
	switch domain {
	case record.DomainUser:
		return "users"
	case record.DomainRole:
		return "roles"
	case record.DomainPrayer:
		return "prayers"
	case record.DomainPrayerMark:
		return "prayer_marks"
	case record.DomainPrayerAttribute:
		return "prayer_attributes"
	case record.DomainActivity:
		return "activity_log"
	case record.DomainAuthEvent:
		return "auth_events"
	default:
		return ""
	}
}

// Wipe deletes every row from every domain table in reverse dependency
// order, leaving an empty but initialized database. Used by full recovery.
func (s *Store) Wipe(ctx context.Context) error {
	reverse := []record.Domain{
		record.DomainAuthEvent,
		record.DomainActivity,
		record.DomainPrayerMark,
		record.DomainPrayerAttribute,
		record.DomainPrayer,
		record.DomainRole,
		record.DomainUser,
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("wipe: begin tx: %w", err)
	}
	defer tx.Rollback()

	for _, d := range reverse {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+tableFor(d)); err != nil {
			return fmt.Errorf("wipe %s: %w", tableFor(d), err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("wipe: commit: %w", err)
	}
	return nil
}

// NaturalKeySet returns the set of natural keys already present for a
// domain. Computed once at the start of an import pass, it forms the
// import ledger consulted before every insert.
func (s *Store) NaturalKeySet(ctx context.Context, domain record.Domain) (map[string]bool, error) {
	table := tableFor(domain)
	rows, err := s.db.QueryContext(ctx, "SELECT natural_key FROM "+table)
	if err != nil {
		return nil, fmt.Errorf("natural keys of %s: %w", table, err)
	}
	defer rows.Close()

	keys := make(map[string]bool)
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("scan natural key: %w", err)
		}
		keys[k] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate natural keys: %w", err)
	}
	return keys, nil
}

// Count returns the number of rows in a domain's table.
func (s *Store) Count(ctx context.Context, domain record.Domain) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+tableFor(domain)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", tableFor(domain), err)
	}
	return n, nil
}

// LookupID resolves a natural key to its surrogate row id.
func (s *Store) LookupID(ctx context.Context, domain record.Domain, naturalKey string) (int64, bool, error) {
	var id int64
	err := s.db.QueryRowContext(ctx,
		"SELECT id FROM "+tableFor(domain)+" WHERE natural_key = ?", naturalKey).Scan(&id)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("lookup %s %q: %w", tableFor(domain), naturalKey, err)
	}
	return id, true, nil
}

// encodeTime stores timestamps exactly as the archive text format does:
// RFC 3339 UTC at second precision. Field-level equality between archive
// and database values is then plain string comparison.
func encodeTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Truncate(time.Second).Format(time.RFC3339)
}

func decodeTimeCol(v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("bad stored timestamp %q", v)
	}
	return t.UTC(), nil
}
