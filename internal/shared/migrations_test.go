package shared

import (
	"testing"
)

func TestMigrations(t *testing.T) {
	t.Run("run creates the history schema", func(t *testing.T) {
		db, err := NewDatabase(":memory:")
		if err != nil {
			t.Fatalf("failed to open database: %v", err)
		}
		defer db.Close()

		if err := RunMigrations(db); err != nil {
			t.Fatalf("migrations failed: %v", err)
		}

		var name string
		err = db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name='download_history'").Scan(&name)
		if err != nil {
			t.Fatalf("expected download_history table: %v", err)
		}
	})

	t.Run("run is idempotent", func(t *testing.T) {
		db, err := NewDatabase(":memory:")
		if err != nil {
			t.Fatalf("failed to open database: %v", err)
		}
		defer db.Close()

		if err := RunMigrations(db); err != nil {
			t.Fatalf("first run failed: %v", err)
		}
		if err := RunMigrations(db); err != nil {
			t.Fatalf("second run failed: %v", err)
		}

		var count int
		if err := db.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&count); err != nil {
			t.Fatalf("failed to count migrations: %v", err)
		}
		if count != 1 {
			t.Errorf("expected one applied migration, got %d", count)
		}
	})

	t.Run("rollback removes the schema", func(t *testing.T) {
		db, err := NewDatabase(":memory:")
		if err != nil {
			t.Fatalf("failed to open database: %v", err)
		}
		defer db.Close()

		if err := RunMigrations(db); err != nil {
			t.Fatalf("migrations failed: %v", err)
		}
		if err := RollbackMigration(db); err != nil {
			t.Fatalf("rollback failed: %v", err)
		}

		var name string
		err = db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name='download_history'").Scan(&name)
		if err == nil {
			t.Error("expected download_history table to be dropped")
		}
	})

	t.Run("rollback with nothing applied fails", func(t *testing.T) {
		db, err := NewDatabase(":memory:")
		if err != nil {
			t.Fatalf("failed to open database: %v", err)
		}
		defer db.Close()

		if err := createMigrationsTable(db); err != nil {
			t.Fatalf("failed to create bookkeeping table: %v", err)
		}
		if err := RollbackMigration(db); err == nil {
			t.Error("expected error with no applied migrations")
		}
	})
}
