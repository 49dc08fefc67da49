package db_test

import (
	"context"
	"database/sql"
	"os"
	"testing"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/onnwee/livewatch/db"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	dsn := os.Getenv("TEST_PG_DSN")
	if dsn == "" {
		t.Skip("TEST_PG_DSN not set; skipping migration test")
	}
	database, err := sql.Open("pgx", dsn)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = database.Close() })
	return database
}

func cleanDatabase(t *testing.T, database *sql.DB) {
	t.Helper()
	for _, stmt := range []string{`DROP TABLE IF EXISTS guild_configs CASCADE`, `DROP TABLE IF EXISTS schema_migrations CASCADE`} {
		if _, err := database.Exec(stmt); err != nil {
			t.Fatalf("clean: %v", err)
		}
	}
}

func TestRunMigrations(t *testing.T) {
	database := openTestDB(t)
	cleanDatabase(t, database)

	if err := db.RunMigrations(database); err != nil {
		t.Fatalf("RunMigrations() error = %v", err)
	}
	// Second run is a no-op.
	if err := db.RunMigrations(database); err != nil {
		t.Fatalf("RunMigrations() second run error = %v", err)
	}

	var exists bool
	if err := database.QueryRow(`SELECT EXISTS (SELECT FROM information_schema.tables WHERE table_name = 'guild_configs')`).Scan(&exists); err != nil {
		t.Fatalf("check table: %v", err)
	}
	if !exists {
		t.Error("guild_configs does not exist after migration")
	}

	version, dirty, err := db.GetMigrationVersion(database)
	if err != nil {
		t.Fatalf("GetMigrationVersion() error = %v", err)
	}
	if dirty || version != 2 {
		t.Errorf("version = %d dirty = %v, want 2 clean", version, dirty)
	}

	if err := db.MigrateDown(database); err != nil {
		t.Fatalf("MigrateDown() error = %v", err)
	}
	if version, _, _ := db.GetMigrationVersion(database); version != 1 {
		t.Errorf("version after down = %d, want 1", version)
	}
}

func TestMigrateEmbeddedIsIdempotent(t *testing.T) {
	database := openTestDB(t)
	cleanDatabase(t, database)
	ctx := context.Background()
	for i := 0; i < 2; i++ {
		if err := db.Migrate(ctx, database); err != nil {
			t.Fatalf("Migrate() run %d error = %v", i, err)
		}
	}
}
