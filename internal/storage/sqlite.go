package storage

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"modernc.org/sqlite"
)

// LowerFunc is a SQL function folding its text argument with Unicode case
// mapping. The built-in LOWER only folds ASCII.
const LowerFunc = "msg_lower"

func init() {
	if err := sqlite.RegisterDeterministicScalarFunction(LowerFunc, 1, lower); err != nil {
		panic(fmt.Sprintf("register %s: %v", LowerFunc, err))
	}
}

func lower(_ *sqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
	switch v := args[0].(type) {
	case nil:
		return nil, nil
	case string:
		return strings.ToLower(v), nil
	case []byte:
		return strings.ToLower(string(v)), nil
	default:
		return v, nil
	}
}

// pragmas are applied by the driver to every pooled connection, so concurrent
// writers all wait on the lock instead of failing with SQLITE_BUSY.
var pragmas = []string{
	"busy_timeout(5000)",
	"journal_mode(WAL)",
	"synchronous(NORMAL)",
	"foreign_keys(1)",
}

// ErrInvalidPath is returned for database paths the driver DSN cannot carry.
var ErrInvalidPath = errors.New("invalid sqlite path")

// IsMemoryPath reports whether path names an in-memory database.
func IsMemoryPath(path string) bool {
	return path == ":memory:" || strings.HasPrefix(path, "file::memory:")
}

// ValidatePath rejects empty paths and paths containing the DSN query or
// fragment separators.
func ValidatePath(path string) error {
	if path == "" {
		return fmt.Errorf("%w: path is empty", ErrInvalidPath)
	}
	if strings.ContainsAny(path, "?#") {
		return fmt.Errorf("%w: %q contains '?' or '#'", ErrInvalidPath, path)
	}
	return nil
}

// OpenSQLite opens (and creates if needed) the SQLite database at path and
// ensures required tables exist.
//
// An in-memory database lives only as long as its connection, so the pool
// is pinned to a single connection that is never recycled.
func OpenSQLite(ctx context.Context, path string) (*sql.DB, error) {
	if err := ValidatePath(path); err != nil {
		return nil, err
	}
	memory := IsMemoryPath(path)
	if !memory {
		if err := ValidateFilesystem(path); err != nil {
			return nil, err
		}
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create sqlite directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if memory {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
		db.SetConnMaxLifetime(0)
		db.SetConnMaxIdleTime(0)
	}

	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	if err := BootstrapSQLite(pctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func dsn(path string) string {
	q := url.Values{}
	for _, p := range pragmas {
		q.Add("_pragma", p)
	}
	return path + "?" + q.Encode()
}

// BootstrapSQLite creates the messages table and its indexes if missing.
func BootstrapSQLite(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS messages (
  message_id   TEXT PRIMARY KEY,
  from_address TEXT NOT NULL,
  to_address   TEXT NOT NULL,
  ts           TEXT NOT NULL,
  text         TEXT,
  received_at  TEXT NOT NULL
);`,
		`CREATE INDEX IF NOT EXISTS messages_ts_id_idx ON messages(ts, message_id);`,
		`CREATE INDEX IF NOT EXISTS messages_from_idx ON messages(from_address);`,
	}

	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("bootstrap sqlite: %w", err)
		}
	}
	return nil
}
