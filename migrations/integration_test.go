package migrations

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	postgrescontainer "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupPostgresContainer starts a throwaway catalog database and returns its
// connection string.
func setupPostgresContainer(ctx context.Context, t *testing.T) string {
	t.Helper()

	container, err := postgrescontainer.Run(ctx, "postgres:15-alpine",
		postgrescontainer.WithDatabase("catalog"),
		postgrescontainer.WithUsername("catalog"),
		postgrescontainer.WithPassword("catalog"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(120*time.Second)),
	)
	if err != nil {
		t.Fatalf("failed to start postgres container: %v", err)
	}

	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("failed to terminate postgres container: %v", err)
		}
	})

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("failed to get connection string: %v", err)
	}

	return connStr
}

func TestMigrationLifecycle(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	connStr := setupPostgresContainer(ctx, t)

	cfg := &Config{DatabaseURL: connStr, MigrationTable: "schema_migrations"}

	runner, err := NewRunner(cfg, nil)
	if err != nil {
		t.Fatalf("NewRunner() failed: %v", err)
	}

	t.Cleanup(func() { _ = runner.Close() })

	version, dirty, err := runner.Version()
	if err != nil {
		t.Fatalf("Version() on fresh database failed: %v", err)
	}

	if version != 0 || dirty {
		t.Errorf("fresh database version = %d dirty = %v, want 0 clean", version, dirty)
	}

	if err := runner.Up(); err != nil {
		t.Fatalf("Up() failed: %v", err)
	}

	version, dirty, err = runner.Version()
	if err != nil {
		t.Fatalf("Version() after up failed: %v", err)
	}

	if version != uint(MaxVersion()) || dirty {
		t.Errorf("version after up = %d dirty = %v, want %d clean", version, dirty, MaxVersion())
	}

	// Up is idempotent when nothing is pending.
	if err := runner.Up(); err != nil {
		t.Errorf("second Up() failed: %v", err)
	}

	// The documents table exists and accepts the catalog schema.
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		t.Fatalf("failed to open verification connection: %v", err)
	}

	t.Cleanup(func() { _ = db.Close() })

	var count int
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM documents").Scan(&count); err != nil {
		t.Fatalf("documents table missing after up: %v", err)
	}

	if err := runner.Down(); err != nil {
		t.Fatalf("Down() failed: %v", err)
	}

	version, _, err = runner.Version()
	if err != nil {
		t.Fatalf("Version() after down failed: %v", err)
	}

	if version != uint(MaxVersion()-1) {
		t.Errorf("version after down = %d, want %d", version, MaxVersion()-1)
	}

	if err := runner.Drop(); err != nil {
		t.Fatalf("Drop() failed: %v", err)
	}

	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM documents").Scan(&count); err == nil {
		t.Error("documents table survived Drop()")
	}
}
