// Package pgtest opens a migrated database for integration tests. Tests are
// skipped unless TEST_DATABASE_URL points at a disposable Postgres.
package pgtest

import (
	"io/fs"
	"os"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/dwikikusuma/shoping-fulfillment/pkg/postgres"
)

const EnvDatabaseURL = "TEST_DATABASE_URL"

func Open(t testing.TB, migrations fs.FS, dir, table string) *gorm.DB {
	t.Helper()

	dsn := os.Getenv(EnvDatabaseURL)
	if dsn == "" {
		t.Skipf("%s not set, skipping postgres integration test", EnvDatabaseURL)
	}

	require.NoError(t, postgres.MigrateDatabaseURL(dsn, migrations, dir, table))

	db, err := postgres.OpenDSN(dsn)
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}
