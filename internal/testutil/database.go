package testutil

import (
	"testing"

	"hb-go/internal/database"
	"hb-go/internal/database/migrations"
)

// NewTestCatalog creates a new in-memory SQLite catalog with schema applied.
// The catalog is automatically closed when the test completes.
func NewTestCatalog(t *testing.T) *database.SQLiteCatalog {
	t.Helper()

	db, err := database.OpenConnection(":memory:")
	if err != nil {
		t.Fatalf("failed to open catalog: %v", err)
	}
	if err := migrations.MigrateUp(db); err != nil {
		db.Close()
		t.Fatalf("failed to migrate catalog: %v", err)
	}

	c := database.NewSQLiteCatalogFromDB(db)
	t.Cleanup(func() {
		c.Close()
	})

	return c
}
