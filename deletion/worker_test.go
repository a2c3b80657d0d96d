package deletion

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/leafdriven/mediadex/common"
	"github.com/leafdriven/mediadex/model"
	"github.com/leafdriven/mediadex/platform"
)

var deletionTestSeq int

func setupDeletionDB(t *testing.T) {
	t.Helper()

	deletionTestSeq++
	dsn := fmt.Sprintf("file:deletion_test_%d?mode=memory&cache=shared", deletionTestSeq)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&model.MediaFile{}))

	common.UsingSQLite.Store(true)
	prevDB := model.DB
	model.DB = db
	t.Cleanup(func() {
		sqlDB, _ := db.DB()
		if sqlDB != nil {
			_ = sqlDB.Close()
		}
		model.DB = prevDB
	})
}

func seedFile(t *testing.T, uid, name string) {
	t.Helper()
	_, _, err := model.SaveMedia(&model.MediaFile{
		FileUniqueID: uid,
		FileID:       "fid-" + uid,
		FileName:     name,
		FileType:     model.FileTypeDocument,
		FileSize:     1024,
	})
	require.NoError(t, err)
}

func TestDrainWindowOutcomes(t *testing.T) {
	setupDeletionDB(t)
	ctx := context.Background()

	seedFile(t, "uid-a", "alpha.mkv")
	seedFile(t, "uid-b", "beta.mkv")

	w := NewWorker(16, nil, nil)
	require.True(t, w.Enqueue("uid-a"))
	require.True(t, w.Enqueue("no-such-file"))
	require.True(t, w.Enqueue("uid-b"))

	sum := w.drainWindow(ctx)
	assert.Equal(t, 2, sum.Deleted)
	assert.Equal(t, 1, sum.Missing)
	assert.Equal(t, 0, sum.Errors)
	assert.Equal(t, 0, w.Depth())

	var count int64
	require.NoError(t, model.DB.Model(&model.MediaFile{}).Count(&count).Error)
	assert.EqualValues(t, 0, count)

	// An already-drained queue yields an empty window.
	sum = w.drainWindow(ctx)
	assert.Equal(t, Summary{}, sum)
}

func TestEnqueueRejectsWhenFull(t *testing.T) {
	w := NewWorker(2, nil, nil)
	assert.True(t, w.Enqueue("a"))
	assert.True(t, w.Enqueue("b"))
	assert.False(t, w.Enqueue("c"))
	assert.False(t, w.Enqueue(""))
	assert.Equal(t, 2, w.Depth())
}

func TestEnqueueMessageExtractsMedia(t *testing.T) {
	w := NewWorker(4, nil, nil)

	ok := w.EnqueueMessage(platform.Message{
		ID:     10,
		ChatID: -100,
		Media: &platform.MediaInfo{
			Kind:         platform.MediaDocument,
			FileID:       "fid-x",
			FileUniqueID: "uid-x",
			FileName:     "report.pdf",
		},
	})
	assert.True(t, ok)
	assert.Equal(t, 1, w.Depth())

	// Text-only messages carry nothing to delete.
	assert.False(t, w.EnqueueMessage(platform.Message{ID: 11, ChatID: -100}))
}

func TestDeleteByKeyword(t *testing.T) {
	setupDeletionDB(t)
	ctx := context.Background()

	seedFile(t, "uid-1", "ocean.documentary.720p.mkv")
	seedFile(t, "uid-2", "Ocean Deep S01E01.mkv")
	seedFile(t, "uid-3", "forest.walk.mkv")

	w := NewWorker(4, nil, nil)
	n, err := w.DeleteByKeyword(ctx, "ocean")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	var remaining []model.MediaFile
	require.NoError(t, model.DB.Find(&remaining).Error)
	require.Len(t, remaining, 1)
	assert.Equal(t, "uid-3", remaining[0].FileUniqueID)
}
