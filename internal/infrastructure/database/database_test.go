package database

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestOpen(t *testing.T) {
	t.Run("creates database file and directory", func(t *testing.T) {
		dbPath := filepath.Join(t.TempDir(), "nested", "irrigation.db")

		db, err := Open(Config{Path: dbPath, WALMode: true, BusyTimeout: 5})
		if err != nil {
			t.Fatalf("Open() error = %v", err)
		}
		defer db.Close() //nolint:errcheck // test cleanup

		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			t.Error("database file was not created")
		}
		if db.Path() != dbPath {
			t.Errorf("Path() = %q, want %q", db.Path(), dbPath)
		}
	})

	t.Run("in-memory database", func(t *testing.T) {
		db, err := Open(Config{Path: MemoryPath, BusyTimeout: 1})
		if err != nil {
			t.Fatalf("Open() error = %v", err)
		}
		defer db.Close() //nolint:errcheck // test cleanup

		if _, err := db.Exec("CREATE TABLE t (id INTEGER PRIMARY KEY)"); err != nil {
			t.Fatalf("creating table: %v", err)
		}
		// The single pooled connection keeps the schema alive between calls.
		if _, err := db.Exec("INSERT INTO t (id) VALUES (1)"); err != nil {
			t.Fatalf("inserting row: %v", err)
		}
	})

	t.Run("foreign keys enforced", func(t *testing.T) {
		db := openTestDB(t)
		var enabled int
		if err := db.QueryRow("PRAGMA foreign_keys").Scan(&enabled); err != nil {
			t.Fatalf("PRAGMA foreign_keys: %v", err)
		}
		if enabled != 1 {
			t.Errorf("foreign_keys = %d, want 1", enabled)
		}
	})
}

func TestHealthCheck(t *testing.T) {
	db := openTestDB(t)
	if err := db.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}
}

func TestClose(t *testing.T) {
	db, err := Open(Config{Path: filepath.Join(t.TempDir(), "close.db"), BusyTimeout: 1})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if err := db.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := db.HealthCheck(context.Background()); err == nil {
		t.Error("HealthCheck() after Close() expected error")
	}
}

func TestWithTx(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	if _, err := db.ExecContext(ctx, "CREATE TABLE counters (name TEXT PRIMARY KEY, n INTEGER)"); err != nil {
		t.Fatalf("creating table: %v", err)
	}

	t.Run("commits on success", func(t *testing.T) {
		err := db.WithTx(ctx, func(tx *sql.Tx) error {
			_, err := tx.ExecContext(ctx, "INSERT INTO counters (name, n) VALUES ('a', 1)")
			return err
		})
		if err != nil {
			t.Fatalf("WithTx() error = %v", err)
		}
		if got := countRows(t, db, "counters"); got != 1 {
			t.Errorf("rows = %d, want 1", got)
		}
	})

	t.Run("rolls back on error", func(t *testing.T) {
		boom := errors.New("boom")
		err := db.WithTx(ctx, func(tx *sql.Tx) error {
			if _, err := tx.ExecContext(ctx, "INSERT INTO counters (name, n) VALUES ('b', 1)"); err != nil {
				return err
			}
			return boom
		})
		if !errors.Is(err, boom) {
			t.Fatalf("WithTx() error = %v, want %v", err, boom)
		}
		if got := countRows(t, db, "counters"); got != 1 {
			t.Errorf("rows = %d, want 1 after rollback", got)
		}
	})

	t.Run("cancelled context fails to begin", func(t *testing.T) {
		cancelled, cancel := context.WithCancel(ctx)
		cancel()
		err := db.WithTx(cancelled, func(*sql.Tx) error { return nil })
		if err == nil {
			t.Error("WithTx() with cancelled context expected error")
		}
	})
}

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(Config{Path: filepath.Join(t.TempDir(), "test.db"), WALMode: true, BusyTimeout: 5})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // test cleanup
	return db
}

func countRows(t *testing.T, db *DB, table string) int {
	t.Helper()
	var n int
	if err := db.QueryRow("SELECT COUNT(*) FROM " + table).Scan(&n); err != nil {
		t.Fatalf("counting %s: %v", table, err)
	}
	return n
}
