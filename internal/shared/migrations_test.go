package shared

import (
	"strings"
	"testing"
)

func TestMigrationRunner(t *testing.T) {
	t.Run("loadMigrations", func(t *testing.T) {
		migrations, err := loadMigrations()
		if err != nil {
			t.Fatalf("failed to load migrations: %v", err)
		}

		if len(migrations) == 0 {
			t.Fatal("expected at least one migration")
		}

		for i := 1; i < len(migrations); i++ {
			if migrations[i].Version <= migrations[i-1].Version {
				t.Errorf("migrations not sorted: version %d comes after %d", migrations[i].Version, migrations[i-1].Version)
			}
		}

		for _, m := range migrations {
			if m.Up == "" {
				t.Errorf("migration version %d missing up SQL", m.Version)
			}
			if m.Down == "" {
				t.Errorf("migration version %d missing down SQL", m.Version)
			}
		}
	})

	t.Run("RunMigrations And Rollback", func(t *testing.T) {
		db, err := NewDatabase(":memory:")
		if err != nil {
			t.Fatalf("failed to create database: %v", err)
		}
		defer db.Close()

		if err := RunMigrations(db); err != nil {
			t.Fatalf("failed to run migrations: %v", err)
		}

		var count int
		err = db.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&count)
		if err != nil {
			t.Fatalf("failed to query schema_migrations: %v", err)
		}
		if count == 0 {
			t.Error("expected at least one migration to be applied")
		}

		for _, table := range []string{"transients", "jobs", "applications", "sync_runs"} {
			if _, err := db.Exec("SELECT 1 FROM " + table + " LIMIT 1"); err != nil {
				t.Errorf("%s table should exist after migrations: %v", table, err)
			}
		}

		version, err := CurrentVersion(db)
		if err != nil {
			t.Fatalf("failed to read current version: %v", err)
		}
		migrations, _ := loadMigrations()
		if version != migrations[len(migrations)-1].Version {
			t.Errorf("expected current version %d, got %d", migrations[len(migrations)-1].Version, version)
		}

		if err := RollbackMigration(db); err != nil {
			t.Fatalf("failed to rollback migration: %v", err)
		}

		var newCount int
		err = db.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&newCount)
		if err != nil {
			t.Fatalf("failed to query schema_migrations after rollback: %v", err)
		}
		if newCount >= count {
			t.Errorf("expected migration count to decrease after rollback, got %d (was %d)", newCount, count)
		}
	})

	t.Run("Idempotent Migrations", func(t *testing.T) {
		db, err := NewDatabase(":memory:")
		if err != nil {
			t.Fatalf("failed to create database: %v", err)
		}
		defer db.Close()

		if err := RunMigrations(db); err != nil {
			t.Fatalf("failed to run migrations first time: %v", err)
		}

		if err := RunMigrations(db); err != nil {
			t.Fatalf("failed to run migrations second time: %v", err)
		}

		var count int
		err = db.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&count)
		if err != nil {
			t.Fatalf("failed to query schema_migrations: %v", err)
		}

		migrations, _ := loadMigrations()
		if count != len(migrations) {
			t.Errorf("expected %d migrations to be applied, got %d", len(migrations), count)
		}
	})

	t.Run("statements", func(t *testing.T) {
		body := `
-- leading comment
CREATE TABLE a (id INTEGER); -- trailing
CREATE TABLE b (id INTEGER);
`
		got := statements(body)
		if len(got) != 2 {
			t.Fatalf("expected 2 statements, got %d: %v", len(got), got)
		}
		if got[0] != "CREATE TABLE a (id INTEGER)" {
			t.Errorf("unexpected first statement %q", got[0])
		}
	})

	t.Run("statements with semicolons in comments", func(t *testing.T) {
		body := `
-- expires_at is unix milliseconds; NULL never expires.
CREATE TABLE a (
    id INTEGER, -- first; second
    expires_at INTEGER
);
CREATE INDEX idx_a ON a(expires_at);
`
		got := statements(body)
		if len(got) != 2 {
			t.Fatalf("expected 2 statements, got %d: %v", len(got), got)
		}
		if !strings.HasPrefix(got[0], "CREATE TABLE a (") || !strings.HasSuffix(got[0], "expires_at INTEGER\n)") {
			t.Errorf("unexpected first statement %q", got[0])
		}
		if got[1] != "CREATE INDEX idx_a ON a(expires_at)" {
			t.Errorf("unexpected second statement %q", got[1])
		}
	})

	t.Run("embedded migrations apply to a fresh database", func(t *testing.T) {
		db, err := NewDatabase(":memory:")
		if err != nil {
			t.Fatalf("failed to open database: %v", err)
		}
		defer db.Close()

		if err := RunMigrations(db); err != nil {
			t.Fatalf("RunMigrations failed: %v", err)
		}
		if _, err := db.Exec("INSERT INTO transients (key, value, expires_at) VALUES ('k', 'v', NULL)"); err != nil {
			t.Errorf("transients table unusable: %v", err)
		}
	})
}
