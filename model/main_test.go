package model

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/leafdriven/mediadex/common"
)

var testDBSeq int

// setupTestDB points the package-level DB at a fresh in-memory SQLite
// database and migrates the full schema.
func setupTestDB(t *testing.T) {
	t.Helper()

	testDBSeq++
	dsn := fmt.Sprintf("file:mediadex_test_%d?mode=memory&cache=shared", testDBSeq)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	common.UsingSQLite.Store(true)
	prev := DB
	DB = db
	require.NoError(t, migrateDB())

	t.Cleanup(func() {
		sqlDB, _ := db.DB()
		if sqlDB != nil {
			_ = sqlDB.Close()
		}
		DB = prev
	})
}
