package storage

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
)

// newTestDB opens a migrated database in a temp dir.
func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() {
		_ = db.Close()
	})
	if err := Migrate(db); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	return db
}

func TestNew(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	tests := []struct {
		name    string
		path    string
		wantErr bool
	}{
		{
			name:    "valid path",
			path:    dbPath,
			wantErr: false,
		},
		{
			name:    "invalid path",
			path:    "/invalid/path/to/db.db",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, err := New(tt.path)

			if tt.wantErr {
				if err == nil {
					t.Errorf("New() expected error, got nil")
				}
				if db != nil {
					_ = db.Close()
				}
				return
			}

			if err != nil {
				t.Errorf("New() unexpected error: %v", err)
				return
			}

			if db.Stats().MaxOpenConnections != 25 {
				t.Errorf("New() MaxOpenConnections = %v, want 25", db.Stats().MaxOpenConnections)
			}

			_ = db.Close()
		})
	}
}

func TestNew_Pragmas(t *testing.T) {
	db, err := New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer func() {
		_ = db.Close()
	}()

	var fkEnabled int
	if err := db.QueryRow("PRAGMA foreign_keys").Scan(&fkEnabled); err != nil {
		t.Fatalf("Failed to check foreign keys: %v", err)
	}
	if fkEnabled != 1 {
		t.Error("New() should enable foreign keys")
	}

	var mode string
	if err := db.QueryRow("PRAGMA journal_mode").Scan(&mode); err != nil {
		t.Fatalf("Failed to check journal mode: %v", err)
	}
	if mode != "wal" {
		t.Errorf("journal_mode = %q, want wal", mode)
	}
}

func TestMigrate_Idempotent(t *testing.T) {
	db := newTestDB(t)

	if err := Migrate(db); err != nil {
		t.Fatalf("Migrate() second run error = %v", err)
	}

	tables := []string{
		"meta", "entries", "cities", "locations", "persons", "events", "tags", "arcs", "themes", "motifs",
		"reference_sources", "entry_people", "entry_cities", "entry_locations", "entry_events", "entry_tags",
		"entry_arcs", "scenes", "scene_dates", "scene_people", "scene_locations", "event_scenes", "threads",
		"thread_people", "thread_locations", "moments", "moment_people", "moment_locations", "moment_events",
		"entry_references", "poems", "poem_versions", "entry_poem_versions", "theme_instances",
		"motif_instances", "manuscript_entries", "manuscript_entry_themes", "association_tombstones",
	}
	for _, table := range tables {
		var count int
		err := db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&count)
		if err != nil {
			t.Fatalf("Failed to check table %s: %v", table, err)
		}
		if count != 1 {
			t.Errorf("Migrate() table %s not created", table)
		}
	}
}

func TestWithTx_RollsBackOnError(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	err := WithTx(ctx, db, func(tx *sql.Tx) error {
		if _, err := NewPlaceRepo(tx).CreateCity(ctx, "Lisbon"); err != nil {
			return err
		}
		return sql.ErrTxDone
	})
	if err != sql.ErrTxDone {
		t.Fatalf("WithTx() error = %v, want fn error", err)
	}

	if _, err := NewPlaceRepo(db).FindCity(ctx, "Lisbon"); err == nil {
		t.Error("city created in a failed transaction should not survive")
	}
}

func TestSavepoint_RollsBackOnlyInnerWrite(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	err := WithTx(ctx, db, func(tx *sql.Tx) error {
		places := NewPlaceRepo(tx)
		if _, err := places.CreateCity(ctx, "Porto"); err != nil {
			return err
		}
		spErr := Savepoint(ctx, tx, func() error {
			if _, err := places.CreateCity(ctx, "Braga"); err != nil {
				return err
			}
			_, err := places.CreateCity(ctx, "Porto")
			return err
		})
		if !IsUniqueViolation(spErr) {
			t.Errorf("Savepoint() error = %v, want unique violation", spErr)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("WithTx() error = %v", err)
	}

	places := NewPlaceRepo(db)
	if _, err := places.FindCity(ctx, "Porto"); err != nil {
		t.Errorf("outer write lost: %v", err)
	}
	if _, err := places.FindCity(ctx, "Braga"); err == nil {
		t.Error("write inside the rolled back savepoint should be gone")
	}
}
