package search

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/leafdriven/mediadex/access"
	"github.com/leafdriven/mediadex/common"
	"github.com/leafdriven/mediadex/common/apperr"
	"github.com/leafdriven/mediadex/common/config"
	"github.com/leafdriven/mediadex/limiter"
	"github.com/leafdriven/mediadex/model"
)

var searchTestSeq int

func setupPipeline(t *testing.T) *Pipeline {
	t.Helper()

	searchTestSeq++
	dsn := fmt.Sprintf("file:search_test_%d?mode=memory&cache=shared", searchTestSeq)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&model.Principal{}, &model.MediaFile{}))

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

	actions := limiter.NewActionLimiter(nil, limiter.DefaultActionLimits())
	return NewPipeline(nil, actions, access.NewController(nil))
}

func seedFiles(t *testing.T, names ...string) {
	t.Helper()
	for i, name := range names {
		f := &model.MediaFile{
			FileUniqueID: fmt.Sprintf("q%d", i),
			FileID:       fmt.Sprintf("fid-q%d", i),
			FileName:     name,
			FileSize:     100,
			FileType:     model.FileTypeVideo,
		}
		f.IndexedAt = int64(1000 + i)
		status, _, err := model.SaveMedia(f)
		require.NoError(t, err)
		require.Equal(t, model.SaveStatusSaved, status)
	}
}

func TestSearchRegistersPrincipalWithoutCharging(t *testing.T) {
	p := setupPipeline(t)
	seedFiles(t, "avatar 2009 remux", "avatar extended", "unrelated clip")

	page, err := p.Search(context.Background(), Request{
		PrincipalID: 100, PrincipalName: "newcomer", Query: "avatar",
	})
	require.NoError(t, err)
	assert.True(t, page.Allowed)
	assert.Equal(t, 2, page.Total)
	assert.Len(t, page.Items, 2)
	assert.NotEmpty(t, page.SessionID)

	// First contact registers the principal; searching never consumes quota.
	principal, err := model.GetPrincipalByID(100)
	require.NoError(t, err)
	assert.Equal(t, model.PrincipalStatusActive, principal.Status)
	assert.Zero(t, principal.DailyRetrievalCount)
}

func TestSearchEmptyQueryMatchesAll(t *testing.T) {
	p := setupPipeline(t)
	seedFiles(t, "one.mkv", "two.mkv", "three.mkv")

	page, err := p.Search(context.Background(), Request{PrincipalID: 101, Query: ""})
	require.NoError(t, err)
	assert.Equal(t, 3, page.Total)
}

func TestSearchBannedPrincipal(t *testing.T) {
	p := setupPipeline(t)
	seedFiles(t, "something.mkv")

	_, err := model.EnsurePrincipal(102, "troll")
	require.NoError(t, err)
	require.NoError(t, model.BanPrincipal(102, "abuse"))

	_, err = p.Search(context.Background(), Request{PrincipalID: 102, Query: "something"})
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.CodeBannedUser))
}

func TestSearchPaginatesByConfiguredPageSize(t *testing.T) {
	p := setupPipeline(t)
	names := make([]string, config.SearchPageSize+3)
	for i := range names {
		names[i] = fmt.Sprintf("serial episode %02d", i)
	}
	seedFiles(t, names...)

	page, err := p.Search(context.Background(), Request{PrincipalID: 103, Query: "serial"})
	require.NoError(t, err)
	assert.Equal(t, config.SearchPageSize+3, page.Total)
	assert.Len(t, page.Items, config.SearchPageSize)
	assert.Equal(t, config.SearchPageSize, page.NextOffset)

	page, err = p.Search(context.Background(), Request{
		PrincipalID: 103, Query: "serial", Offset: page.NextOffset,
	})
	require.NoError(t, err)
	assert.Len(t, page.Items, 3)
	assert.Zero(t, page.NextOffset)
}

func TestSessionStoreWithoutCacheMisses(t *testing.T) {
	store := NewSessionStore(nil)
	sid := store.Save(context.Background(), &ResultSession{PrincipalID: 1})
	assert.Len(t, sid, 8)

	_, err := store.Load(context.Background(), 1, sid)
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.CodeNotFound))
}
