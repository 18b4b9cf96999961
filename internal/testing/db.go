// Package testing provides testing utilities and helpers for the greenfin project.
package testing

import (
	"fmt"
	"os"
	"testing"

	"github.com/aristath/greenfin/internal/database"
	_ "modernc.org/sqlite"
)

// NewTestDB creates a temporary SQLite database with its embedded schema applied.
// Returns the database instance and a cleanup function that closes and removes it.
//
// Supported schema names:
//   - "staging" - raw ingestion tables and portfolio_clean
//   - "analytics" - optimization_runs and scored_assets
//   - Unknown names - creates empty database (no schema applied)
func NewTestDB(t *testing.T, name string) (*database.DB, func()) {
	t.Helper()

	db, tmpPath := openTempDB(t, name)

	if err := db.Migrate(); err != nil {
		_ = db.Close()
		_ = os.Remove(tmpPath)
		t.Fatalf("Failed to migrate test database %s: %v", name, err)
	}

	return db, cleanupFunc(t, db, name, tmpPath)
}

// NewTestDBWithSchema creates a temporary SQLite database and executes schema on it.
func NewTestDBWithSchema(t *testing.T, name string, schema string) (*database.DB, func()) {
	t.Helper()

	db, tmpPath := openTempDB(t, name)

	if schema != "" {
		if _, err := db.Conn().Exec(schema); err != nil {
			_ = db.Close()
			_ = os.Remove(tmpPath)
			t.Fatalf("Failed to execute custom schema for test database %s: %v", name, err)
		}
	}

	return db, cleanupFunc(t, db, name, tmpPath)
}

// openTempDB backs each test database with its own file for isolation
func openTempDB(t *testing.T, name string) (*database.DB, string) {
	t.Helper()

	tmpFile, err := os.CreateTemp("", fmt.Sprintf("test_%s_*.db", name))
	if err != nil {
		t.Fatalf("Failed to create temporary database file: %v", err)
	}
	tmpPath := tmpFile.Name()
	_ = tmpFile.Close()

	db, err := database.New(database.Config{
		Path:    tmpPath,
		Profile: database.ProfileStandard,
		Name:    name,
	})
	if err != nil {
		_ = os.Remove(tmpPath)
		t.Fatalf("Failed to create test database %s: %v", name, err)
	}
	return db, tmpPath
}

func cleanupFunc(t *testing.T, db *database.DB, name, tmpPath string) func() {
	return func() {
		if err := db.Close(); err != nil {
			t.Logf("Warning: Failed to close test database %s: %v", name, err)
		}
		for _, path := range []string{tmpPath, tmpPath + "-wal", tmpPath + "-shm"} {
			if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
				t.Logf("Warning: Failed to remove temporary database file %s: %v", path, err)
			}
		}
	}
}
