package broadcast

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/Laisky/errors/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/leafdriven/mediadex/common"
	"github.com/leafdriven/mediadex/common/config"
	"github.com/leafdriven/mediadex/limiter"
	"github.com/leafdriven/mediadex/model"
	"github.com/leafdriven/mediadex/platform"
)

var broadcastTestSeq int

type fakeCopyClient struct {
	platform.Client

	errByPrincipal map[int64]error
	copied         []int64
}

func (f *fakeCopyClient) Copy(_ context.Context, toChatID int64, _ int64, _ int, _ platform.SendOptions) (platform.Message, error) {
	if err, ok := f.errByPrincipal[toChatID]; ok {
		return platform.Message{}, err
	}
	f.copied = append(f.copied, toChatID)
	return platform.Message{ID: 1, ChatID: toChatID}, nil
}

func setupEngine(t *testing.T, client *fakeCopyClient) *Engine {
	t.Helper()

	broadcastTestSeq++
	dsn := fmt.Sprintf("file:broadcast_test_%d?mode=memory&cache=shared", broadcastTestSeq)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&model.Principal{}))

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

	caller := platform.NewCaller(limiter.NewSemaphoreSet(), limiter.NewBreakerSet())
	caller.SetSleep(func(context.Context, time.Duration) error { return nil })
	engine := NewEngine(client, caller, limiter.NewActionLimiter(nil, limiter.DefaultActionLimits()),
		limiter.NewTokenBucket(nil, "broadcast_test", 1000, 1000))
	engine.SetSleep(func(context.Context, time.Duration) error { return nil })
	return engine
}

func TestBroadcastClassifiesOutcomes(t *testing.T) {
	client := &fakeCopyClient{errByPrincipal: map[int64]error{
		2: errors.New("Forbidden: bot was blocked by the user"),
		3: errors.New("Forbidden: user is deactivated"),
		4: errors.New("Internal Server Error"),
	}}
	engine := setupEngine(t, client)

	for id := int64(1); id <= 5; id++ {
		_, err := model.EnsurePrincipal(id, "p")
		require.NoError(t, err)
	}
	// Banned principals are never drained.
	require.NoError(t, model.BanPrincipal(5, "spam"))

	var pages int
	out, err := engine.Run(context.Background(), 9, -100, 77, func(Outcome) { pages++ })
	require.NoError(t, err)

	assert.Equal(t, 4, out.Total)
	assert.Equal(t, 1, out.Sent)
	assert.Equal(t, 1, out.Blocked)
	assert.Equal(t, 1, out.Deleted)
	assert.Equal(t, 1, out.Failed)
	assert.Positive(t, pages)
	assert.Equal(t, []int64{1}, client.copied)

	// The deactivated account was removed from the store.
	_, err = model.GetPrincipalByID(3)
	assert.Error(t, err)
	_, err = model.GetPrincipalByID(2)
	assert.NoError(t, err)
}

func TestBroadcastAdaptivePacing(t *testing.T) {
	// Every copy fails, so the success rate is 0 and the delay doubles after
	// each page.
	client := &fakeCopyClient{errByPrincipal: map[int64]error{}}
	for id := int64(1); id <= 6; id++ {
		client.errByPrincipal[id] = errors.New("Internal Server Error")
	}
	engine := setupEngine(t, client)

	prevPage, prevDelay := config.BroadcastPageSize, config.BroadcastDelay
	config.BroadcastPageSize = 2
	config.BroadcastDelay = time.Millisecond
	t.Cleanup(func() {
		config.BroadcastPageSize, config.BroadcastDelay = prevPage, prevDelay
	})

	var delays []time.Duration
	engine.SetSleep(func(_ context.Context, d time.Duration) error {
		delays = append(delays, d)
		return nil
	})

	for id := int64(1); id <= 6; id++ {
		_, err := model.EnsurePrincipal(id, "p")
		require.NoError(t, err)
	}

	out, err := engine.Run(context.Background(), 9, -100, 77, nil)
	require.NoError(t, err)
	assert.Equal(t, 6, out.Failed)

	require.Len(t, delays, 3)
	assert.Greater(t, delays[1], delays[0])
	assert.Greater(t, delays[2], delays[1])
}

func TestBroadcastEmptyStore(t *testing.T) {
	engine := setupEngine(t, &fakeCopyClient{})
	out, err := engine.Run(context.Background(), 9, -100, 77, nil)
	require.NoError(t, err)
	assert.Zero(t, out.Total)
}

func TestBroadcastPacedBySendBudget(t *testing.T) {
	client := &fakeCopyClient{}
	engine := setupEngine(t, client)
	// One-token burst refilling at 100/s: every copy after the first has to
	// wait the budget out.
	engine.bucket = limiter.NewTokenBucket(nil, "paced_test", 100, 1)

	var waits int
	engine.SetSleep(func(context.Context, time.Duration) error {
		waits++
		return nil
	})

	for id := int64(1); id <= 3; id++ {
		_, err := model.EnsurePrincipal(id, "p")
		require.NoError(t, err)
	}

	out, err := engine.Run(context.Background(), 9, -100, 77, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, out.Sent)
	// At least the budget retries on top of the single inter-page delay.
	assert.Greater(t, waits, 1)
}
