// Package testutil opens throwaway SQLite databases carrying the full schema.
package testutil

import (
	"fmt"
	"io"
	"log"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/oportunidade/payhook/pkg/db"
	"github.com/oportunidade/payhook/pkg/db/models"
)

// OpenDB returns a file-backed SQLite database in the test's temp dir. Concurrent
// writers queue on the busy timeout; transactions take the write lock up front.
func OpenDB(t testing.TB) *gorm.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "payhook.db")
	dsn := fmt.Sprintf("file:%s?_busy_timeout=10000&_journal_mode=WAL&_txlock=immediate", path)

	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.New(
			log.New(io.Discard, "", log.LstdFlags),
			gormlogger.Config{LogLevel: gormlogger.Silent},
		),
		SkipDefaultTransaction: true,
		NowFunc:                func() time.Time { return time.Now().UTC() },
	})
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(models.All()...))

	sqlDB, err := conn.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return conn
}

// OpenClient wraps OpenDB in the shared db.Client so WithTx paths can be exercised.
func OpenClient(t testing.TB) *db.Client {
	t.Helper()
	return db.Wrap(OpenDB(t))
}
