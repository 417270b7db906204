package integration

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/patientcare/patient-service/internal/platform/db"
)

// testDB holds the shared database infrastructure for integration tests.
type testDB struct {
	Pool          *pgxpool.Pool
	ConnStr       string
	MigrationsDir string
}

// globalDB is the package-level test database, initialized once in TestMain.
var globalDB *testDB

// TestMain runs against the Postgres named by PATIENT_TEST_DATABASE_URL and
// skips the whole package when it is unset.
func TestMain(m *testing.M) {
	connStr := os.Getenv("PATIENT_TEST_DATABASE_URL")
	if connStr == "" {
		fmt.Fprintln(os.Stderr, "PATIENT_TEST_DATABASE_URL not set; skipping integration tests")
		os.Exit(0)
	}

	ctx := context.Background()
	tdb, err := setupDatabase(ctx, connStr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to setup database: %v\n", err)
		os.Exit(1)
	}

	globalDB = tdb
	code := m.Run()
	tdb.Pool.Close()
	os.Exit(code)
}

func setupDatabase(ctx context.Context, connStr string) (*testDB, error) {
	pool, err := db.NewPool(ctx, connStr, 10, 1)
	if err != nil {
		return nil, err
	}

	migrationsDir := findMigrationsDir()
	if _, err := db.NewMigrator(pool, migrationsDir).Up(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return &testDB{
		Pool:          pool,
		ConnStr:       connStr,
		MigrationsDir: migrationsDir,
	}, nil
}

// findMigrationsDir locates the migrations directory relative to this test file.
func findMigrationsDir() string {
	_, filename, _, _ := runtime.Caller(0)
	dir := filepath.Dir(filename)
	// test/integration -> module root
	return filepath.Join(dir, "..", "..", "migrations")
}

// resetTables empties the tables a test writes to.
func resetTables(t *testing.T, ctx context.Context) {
	t.Helper()
	if _, err := globalDB.Pool.Exec(ctx, `TRUNCATE patient, auth_user`); err != nil {
		t.Fatalf("truncate: %v", err)
	}
}
