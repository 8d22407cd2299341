package storage

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
)

func TestOpenSQLiteBootstrapsTables(t *testing.T) {
	t.Parallel()

	dbPath := filepath.Join(t.TempDir(), "nested", "messages.db")
	db, err := OpenSQLite(context.Background(), dbPath)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	var name string
	if err := db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?;", "messages").Scan(&name); err != nil {
		t.Fatalf("table messages missing: %v", err)
	}

	for _, idx := range []string{"messages_ts_id_idx", "messages_from_idx"} {
		if err := db.QueryRow("SELECT name FROM sqlite_master WHERE type='index' AND name=?;", idx).Scan(&name); err != nil {
			t.Fatalf("index %q missing: %v", idx, err)
		}
	}
}

func TestOpenSQLiteIsIdempotent(t *testing.T) {
	t.Parallel()

	dbPath := filepath.Join(t.TempDir(), "messages.db")
	for i := 0; i < 2; i++ {
		db, err := OpenSQLite(context.Background(), dbPath)
		if err != nil {
			t.Fatalf("OpenSQLite (%d): %v", i, err)
		}
		if _, err := db.Exec(`INSERT OR IGNORE INTO messages VALUES ('m1','+1','+2','t',NULL,'r')`); err != nil {
			t.Fatalf("insert (%d): %v", i, err)
		}
		_ = db.Close()
	}
}

func TestOpenSQLiteAppliesPragmas(t *testing.T) {
	t.Parallel()

	db, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "messages.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	var mode string
	if err := db.QueryRow("PRAGMA journal_mode;").Scan(&mode); err != nil {
		t.Fatalf("journal_mode: %v", err)
	}
	if mode != "wal" {
		t.Fatalf("journal_mode = %q, want wal", mode)
	}

	var timeout int
	if err := db.QueryRow("PRAGMA busy_timeout;").Scan(&timeout); err != nil {
		t.Fatalf("busy_timeout: %v", err)
	}
	if timeout != 5000 {
		t.Fatalf("busy_timeout = %d, want 5000", timeout)
	}
}

func TestOpenSQLiteEmptyPath(t *testing.T) {
	t.Parallel()

	if _, err := OpenSQLite(context.Background(), ""); err == nil {
		t.Fatal("expected error for empty path")
	}
}

func TestOpenSQLiteRejectsDSNSeparators(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	for _, name := range []string{"what?.db", "frag#1.db"} {
		_, err := OpenSQLite(context.Background(), filepath.Join(dir, name))
		if !errors.Is(err, ErrInvalidPath) {
			t.Fatalf("OpenSQLite(%q) err = %v, want ErrInvalidPath", name, err)
		}
	}
}

func TestOpenSQLiteInMemorySharesOneDatabase(t *testing.T) {
	t.Parallel()

	db, err := OpenSQLite(context.Background(), ":memory:")
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if got := db.Stats().MaxOpenConnections; got != 1 {
		t.Fatalf("MaxOpenConnections = %d, want 1", got)
	}

	const writers = 16
	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := db.ExecContext(context.Background(),
				`INSERT INTO messages(message_id, from_address, to_address, ts, received_at) VALUES (?, '+1', '+2', 't', 'r')`,
				fmt.Sprintf("m%d", i))
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("concurrent insert: %v", err)
		}
	}

	var n int
	if err := db.QueryRow("SELECT COUNT(*) FROM messages;").Scan(&n); err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != writers {
		t.Fatalf("count = %d, want %d", n, writers)
	}
}

func TestIsMemoryPath(t *testing.T) {
	t.Parallel()

	for path, want := range map[string]bool{
		":memory:":        true,
		"file::memory:":   true,
		"messages.db":     false,
		"/var/lib/x.db":   false,
		"./:memory:/x.db": false,
	} {
		if got := IsMemoryPath(path); got != want {
			t.Errorf("IsMemoryPath(%q) = %v, want %v", path, got, want)
		}
	}
}

func TestLowerFuncFoldsUnicode(t *testing.T) {
	t.Parallel()

	db, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "messages.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	var got string
	if err := db.QueryRow("SELECT "+LowerFunc+"(?);", "ÉCOLE Ñ").Scan(&got); err != nil {
		t.Fatalf("%s: %v", LowerFunc, err)
	}
	if got != "école ñ" {
		t.Fatalf("%s = %q, want %q", LowerFunc, got, "école ñ")
	}

	var null *string
	if err := db.QueryRow("SELECT " + LowerFunc + "(NULL);").Scan(&null); err != nil {
		t.Fatalf("%s(NULL): %v", LowerFunc, err)
	}
	if null != nil {
		t.Fatalf("%s(NULL) = %q, want NULL", LowerFunc, *null)
	}
}
