package db

import (
	"context"
	"database/sql"
	"io/fs"
	"os"
	"strings"
	"testing"
)

func TestMigrationsArePaired(t *testing.T) {
	entries, err := fs.ReadDir(migrationsFS, "migrations")
	if err != nil {
		t.Fatalf("read migrations: %v", err)
	}
	if len(entries) == 0 {
		t.Fatal("no embedded migrations")
	}

	ups := map[string]bool{}
	downs := map[string]bool{}
	for _, e := range entries {
		name := e.Name()
		switch {
		case strings.HasSuffix(name, ".up.sql"):
			ups[strings.TrimSuffix(name, ".up.sql")] = true
		case strings.HasSuffix(name, ".down.sql"):
			downs[strings.TrimSuffix(name, ".down.sql")] = true
		default:
			t.Errorf("unexpected file %q", name)
		}
	}
	for v := range ups {
		if !downs[v] {
			t.Errorf("migration %s has no down file", v)
		}
	}
	for v := range downs {
		if !ups[v] {
			t.Errorf("migration %s has no up file", v)
		}
	}
}

// testDSN returns TEST_DATABASE_URL, skipping the test when it is unset.
func testDSN(t *testing.T) string {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	return dsn
}

func TestMigrate(t *testing.T) {
	dsn := testDSN(t)

	d, err := NewDatabase(dsn)
	if err != nil {
		t.Skipf("database not available: %v", err)
	}
	defer d.Close()

	if _, err := d.Conn.Exec(`
		DROP TABLE IF EXISTS private_messages CASCADE;
		DROP TABLE IF EXISTS group_messages CASCADE;
		DROP TABLE IF EXISTS users CASCADE;
		DROP TABLE IF EXISTS schema_migrations CASCADE;
	`); err != nil {
		t.Fatalf("cleanup: %v", err)
	}

	if err := Migrate(dsn); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	// A second run is a no-op.
	if err := Migrate(dsn); err != nil {
		t.Fatalf("Migrate again: %v", err)
	}

	for _, table := range []string{"users", "group_messages", "private_messages"} {
		if !tableExists(t, d.Conn, table) {
			t.Errorf("table %s missing after migration", table)
		}
	}

	// The pool used by the app is still usable.
	if err := d.Conn.PingContext(context.Background()); err != nil {
		t.Errorf("ping after migrate: %v", err)
	}
}

func tableExists(t *testing.T, conn *sql.DB, name string) bool {
	t.Helper()
	var exists bool
	err := conn.QueryRow(
		`SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_name = $1)`, name,
	).Scan(&exists)
	if err != nil {
		t.Fatalf("check table %s: %v", name, err)
	}
	return exists
}
