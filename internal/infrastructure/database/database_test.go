package database

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestOpen_Pragmas(t *testing.T) {
	tests := []struct {
		name        string
		walMode     bool
		wantJournal string
	}{
		{"wal", true, "wal"},
		{"rollback journal", false, "delete"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "data", "journal.db")
			db, err := Open(Config{Path: path, WALMode: tt.walMode, BusyTimeout: 1})
			if err != nil {
				t.Fatalf("Open() error = %v", err)
			}
			defer db.Close() //nolint:errcheck // Test cleanup

			ctx := context.Background()
			var mode string
			if err := db.QueryRowContext(ctx, "PRAGMA journal_mode").Scan(&mode); err != nil {
				t.Fatalf("PRAGMA journal_mode error = %v", err)
			}
			if mode != tt.wantJournal {
				t.Errorf("journal_mode = %q, want %q", mode, tt.wantJournal)
			}
			var fk int
			if err := db.QueryRowContext(ctx, "PRAGMA foreign_keys").Scan(&fk); err != nil {
				t.Fatalf("PRAGMA foreign_keys error = %v", err)
			}
			if fk != 1 {
				t.Errorf("foreign_keys = %d, want 1", fk)
			}
			if got := db.DB.Stats().MaxOpenConnections; got != 1 {
				t.Errorf("MaxOpenConnections = %d, want 1", got)
			}
		})
	}
}

func TestOpen_CreatesParentDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "var", "lib", "signalchain")
	db, err := Open(Config{Path: filepath.Join(dir, "journal.db"), BusyTimeout: 1})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer db.Close() //nolint:errcheck // Test cleanup

	info, err := os.Stat(dir)
	if err != nil {
		t.Fatalf("Stat() error = %v", err)
	}
	if !info.IsDir() {
		t.Errorf("%s is not a directory", dir)
	}
}

func TestOpen_UnwritableParent(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(blocker, nil, 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	if _, err := Open(Config{Path: filepath.Join(blocker, "journal.db")}); err == nil {
		t.Fatal("Open() under a regular file should fail")
	}
}

func TestHealthCheck_AfterClose(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	if err := db.HealthCheck(ctx); err != nil {
		t.Fatalf("HealthCheck() error = %v", err)
	}
	if err := db.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := db.HealthCheck(ctx); err == nil {
		t.Error("HealthCheck() on a closed database should fail")
	}
}

func TestClose_ZeroValue(t *testing.T) {
	var db DB
	if err := db.Close(); err != nil {
		t.Errorf("Close() on zero DB error = %v", err)
	}
}

func TestExecContext_WrapsError(t *testing.T) {
	db := openTestDB(t)
	defer db.Close() //nolint:errcheck // Test cleanup

	_, err := db.ExecContext(context.Background(), "INSERT INTO missing_table VALUES (1)")
	if err == nil {
		t.Fatal("ExecContext() on a missing table should fail")
	}
	if errors.Unwrap(err) == nil {
		t.Errorf("ExecContext() error %q does not wrap the driver error", err)
	}
}

// TestBeginTx covers both ends of a journal write: a committed entry is
// visible, a rolled back one is not.
func TestBeginTx(t *testing.T) {
	db := openTestDB(t)
	defer db.Close() //nolint:errcheck // Test cleanup

	ctx := context.Background()
	if _, err := db.ExecContext(ctx,
		"CREATE TABLE entries (chain_id TEXT NOT NULL, kind TEXT NOT NULL)",
	); err != nil {
		t.Fatalf("ExecContext() CREATE error = %v", err)
	}

	tests := []struct {
		kind      string
		commit    bool
		wantCount int
	}{
		{"set_current", true, 1},
		{"set_frequency", false, 0},
	}
	for _, tt := range tests {
		t.Run(tt.kind, func(t *testing.T) {
			tx, err := db.BeginTx(ctx, nil)
			if err != nil {
				t.Fatalf("BeginTx() error = %v", err)
			}
			if _, err := tx.ExecContext(ctx,
				"INSERT INTO entries (chain_id, kind) VALUES (?, ?)", "bench-1", tt.kind,
			); err != nil {
				t.Fatalf("INSERT error = %v", err)
			}
			if tt.commit {
				err = tx.Commit()
			} else {
				err = tx.Rollback()
			}
			if err != nil {
				t.Fatalf("finishing transaction: %v", err)
			}

			var n int
			if err := db.QueryRowContext(ctx,
				"SELECT COUNT(*) FROM entries WHERE kind = ?", tt.kind,
			).Scan(&n); err != nil {
				t.Fatalf("SELECT error = %v", err)
			}
			if n != tt.wantCount {
				t.Errorf("rows for %s = %d, want %d", tt.kind, n, tt.wantCount)
			}
		})
	}
}

// openTestDB opens a WAL database in a temp dir.
func openTestDB(t *testing.T) *DB {
	t.Helper()

	db, err := Open(Config{
		Path:        filepath.Join(t.TempDir(), "journal.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	return db
}
