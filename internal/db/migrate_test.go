package db

import (
	"path/filepath"
	"testing"
)

func TestMigrateVersionTracksSchema(t *testing.T) {
	db, err := NewDB(filepath.Join(t.TempDir(), "fresh.db"))
	if err != nil {
		t.Fatalf("create database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	version, dirty, err := db.MigrateVersion()
	if err != nil {
		t.Fatalf("MigrateVersion before migrations: %v", err)
	}
	if version != 0 || dirty {
		t.Errorf("fresh db version = %d dirty=%v, want 0 clean", version, dirty)
	}

	if err := db.MigrateUp(); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	version, dirty, err = db.MigrateVersion()
	if err != nil {
		t.Fatalf("MigrateVersion after migrations: %v", err)
	}
	if version != 1 || dirty {
		t.Errorf("migrated db version = %d dirty=%v, want 1 clean", version, dirty)
	}
}

func TestMigrateUpIsIdempotent(t *testing.T) {
	db := newTestDB(t)

	if err := db.MigrateUp(); err != nil {
		t.Fatalf("second MigrateUp: %v", err)
	}
}
