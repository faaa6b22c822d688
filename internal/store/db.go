package store

import (
	"database/sql"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// DB wraps a sql.DB connection to the selfwatch SQLite database.
type DB struct {
	conn *sql.DB
}

// Open opens or creates the SQLite database at the given path.
// It creates the parent directory if it does not exist.
func Open(dbPath string) (*DB, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	// The pragmas ride in the DSN so the driver applies them to every
	// connection the pool opens, not just whichever one an Exec happens
	// to land on. WAL improves concurrent read performance; the busy
	// timeout makes writers wait on SQLite's write lock instead of
	// surfacing busy errors to callers.
	dsn := "file:" + dbPath +
		"?_pragma=journal_mode(WAL)" +
		"&_pragma=foreign_keys(1)" +
		"&_pragma=busy_timeout(5000)"
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}

	db := &DB{conn: conn}

	// Run migrations on open.
	if err := db.Migrate(); err != nil {
		_ = conn.Close()
		return nil, err
	}

	return db, nil
}

// OpenInMemory opens an in-memory SQLite database, useful for testing.
// The pool is pinned to a single connection because each in-memory
// connection would otherwise see its own empty database.
func OpenInMemory() (*DB, error) {
	conn, err := sql.Open("sqlite", "file::memory:?_pragma=foreign_keys(1)")
	if err != nil {
		return nil, err
	}
	conn.SetMaxOpenConns(1)

	db := &DB{conn: conn}
	if err := db.Migrate(); err != nil {
		_ = conn.Close()
		return nil, err
	}

	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Conn returns the underlying sql.DB for advanced queries.
func (db *DB) Conn() *sql.DB {
	return db.conn
}

// beginWrite opens a transaction that takes SQLite's write lock up front,
// so a read-check-write sequence cannot interleave with another writer.
// The no-op UPDATE forces the transaction to acquire a reserved lock
// immediately, the equivalent of BEGIN IMMEDIATE.
func (db *DB) beginWrite() (*sql.Tx, error) {
	tx, err := db.conn.Begin()
	if err != nil {
		return nil, err
	}
	if _, err := tx.Exec("UPDATE schema_version SET version = version"); err != nil {
		_ = tx.Rollback()
		return nil, err
	}
	return tx, nil
}

// timeLayout is the canonical column representation. The fractional part
// is fixed-width so lexicographic ordering of the TEXT column matches
// chronological ordering; RFC3339Nano trims trailing zeros and would
// misorder same-second timestamps with different fraction lengths.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// formatTime encodes a timestamp as the canonical column representation.
func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

// parseTime decodes a stored timestamp, tolerating second precision.
func parseTime(s string) time.Time {
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t
	}
	t, _ := time.Parse(time.RFC3339, s)
	return t
}

// encodeList serializes a string list column. nil encodes as an empty array
// so scans round-trip without null checks.
func encodeList(values []string) string {
	if values == nil {
		values = []string{}
	}
	b, _ := json.Marshal(values)
	return string(b)
}

// decodeList deserializes a string list column.
func decodeList(raw string) []string {
	if raw == "" {
		return nil
	}
	var values []string
	if err := json.Unmarshal([]byte(raw), &values); err != nil {
		return nil
	}
	if len(values) == 0 {
		return nil
	}
	return values
}

// encodeVector serializes a named float vector column.
func encodeVector(v map[string]float64) string {
	if v == nil {
		v = map[string]float64{}
	}
	b, _ := json.Marshal(v)
	return string(b)
}

// decodeVector deserializes a named float vector column.
func decodeVector(raw string) map[string]float64 {
	v := map[string]float64{}
	if raw == "" {
		return v
	}
	_ = json.Unmarshal([]byte(raw), &v)
	return v
}
