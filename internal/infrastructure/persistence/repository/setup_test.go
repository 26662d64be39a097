package repository

import (
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/garyjia/gst-compliance/migrations"
	"github.com/garyjia/gst-compliance/pkg/database"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// setupTestDB opens a migrated SQLite database in a temp dir
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := database.New(database.Config{
		Path:         filepath.Join(t.TempDir(), "compliance.db"),
		MaxOpenConns: 1,
	}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	_, err = database.NewMigrator(db, zap.NewNop()).Run(migrations.FS)
	require.NoError(t, err)

	return db.DB
}
