package db_test

import (
	"path/filepath"
	"testing"
	"time"

	"ocular/pkg/db"
)

func TestDB(t *testing.T) {
	tempDir := t.TempDir()
	path := filepath.Join(tempDir, "db_test.db")

	d, err := db.Init(path)
	if err != nil {
		t.Fatalf("Init() failed: %v", err)
	}
	if d == nil {
		t.Fatal("Init() returned nil DB")
	}
	defer d.Close()

	for _, table := range []string{"persistent_state", "cache", "remote_fields", "incidents", "trips"} {
		var name string
		err := d.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		if err != nil {
			t.Errorf("table %s missing: %v", table, err)
		}
	}

	var helper int
	if err := d.QueryRow("SELECT count(*) FROM pragma_table_info('incidents') WHERE name='helper'").Scan(&helper); err != nil || helper != 1 {
		t.Errorf("incidents.helper missing: %d, %v", helper, err)
	}
}

func TestDB_ReopenIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reopen.db")
	for i := 0; i < 2; i++ {
		d, err := db.Init(path)
		if err != nil {
			t.Fatalf("Init() #%d failed: %v", i, err)
		}
		v, err := d.Version()
		if err != nil || v != 4 {
			t.Errorf("Version() = %d, %v; want 4", v, err)
		}
		d.Close()
	}
}

func TestPruneCache(t *testing.T) {
	d, err := db.Init(filepath.Join(t.TempDir(), "prune.db"))
	if err != nil {
		t.Fatalf("Init() failed: %v", err)
	}
	defer d.Close()

	if _, err := d.Exec("INSERT INTO cache (key, value, created_at) VALUES ('old', x'00', '2000-01-01 00:00:00')"); err != nil {
		t.Fatal(err)
	}
	if _, err := d.Exec("INSERT INTO cache (key, value) VALUES ('new', x'00')"); err != nil {
		t.Fatal(err)
	}
	if err := d.PruneCache(24 * time.Hour); err != nil {
		t.Fatalf("PruneCache() failed: %v", err)
	}

	var n int
	if err := d.QueryRow("SELECT count(*) FROM cache").Scan(&n); err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("expected 1 remaining cache row, got %d", n)
	}
}
