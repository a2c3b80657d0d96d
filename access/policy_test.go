package access

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
	"github.com/leafdriven/mediadex/common/apperr"
	"github.com/leafdriven/mediadex/common/config"
	"github.com/leafdriven/mediadex/model"
)

var accessTestSeq int

func setupTest(t *testing.T) *Controller {
	t.Helper()

	accessTestSeq++
	dsn := fmt.Sprintf("file:access_test_%d?mode=memory&cache=shared", accessTestSeq)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&model.Principal{}))

	common.UsingSQLite.Store(true)
	prevDB := model.DB
	model.DB = db
	prevEnforce := config.PremiumActive()
	config.SetPremiumActive(true)

	t.Cleanup(func() {
		sqlDB, _ := db.DB()
		if sqlDB != nil {
			_ = sqlDB.Close()
		}
		model.DB = prevDB
		config.SetPremiumActive(prevEnforce)
	})

	return NewController(nil)
}

func TestCanRetrieveEnforcementOff(t *testing.T) {
	ctrl := setupTest(t)
	config.SetPremiumActive(false)

	d, err := ctrl.CanRetrieve(context.Background(), 42, "x")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.True(t, d.Unlimited)
}

func TestCanRetrieveBanned(t *testing.T) {
	ctrl := setupTest(t)
	ctx := context.Background()

	_, err := model.EnsurePrincipal(42, "x")
	require.NoError(t, err)
	require.NoError(t, ctrl.Ban(ctx, 42, "abuse"))

	d, err := ctrl.CanRetrieve(ctx, 42, "x")
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, apperr.CodeBannedUser, d.Reason)

	require.NoError(t, ctrl.Unban(ctx, 42))
	d, err = ctrl.CanRetrieve(ctx, 42, "x")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
}

func TestCanRetrievePremiumUnlimited(t *testing.T) {
	ctrl := setupTest(t)
	ctx := context.Background()

	require.NoError(t, ctrl.GrantPremium(ctx, 43))
	d, err := ctrl.CanRetrieve(ctx, 43, "x")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.True(t, d.Unlimited)

	// Reservation never charges a premium principal.
	k, err := ctrl.Reserve(ctx, 43, 100)
	require.NoError(t, err)
	assert.Equal(t, 100, k)
	p, err := model.GetPrincipalByID(43)
	require.NoError(t, err)
	assert.Zero(t, p.DailyRetrievalCount)
}

func TestCanRetrieveExpiredPremiumClearsFlag(t *testing.T) {
	ctrl := setupTest(t)
	ctx := context.Background()

	require.NoError(t, ctrl.GrantPremium(ctx, 44))
	require.NoError(t, model.DB.Model(&model.Principal{}).Where("id = ?", 44).
		Update("premium_activated_at", 1).Error)

	d, err := ctrl.CanRetrieve(ctx, 44, "x")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.False(t, d.Unlimited)
	assert.Equal(t, config.DailyRetrievalLimit, d.Remaining)

	p, err := model.GetPrincipalByID(44)
	require.NoError(t, err)
	assert.False(t, p.IsPremium)
}

func TestReserveRespectsLimit(t *testing.T) {
	ctrl := setupTest(t)
	ctx := context.Background()

	_, err := model.EnsurePrincipal(45, "x")
	require.NoError(t, err)

	k, err := ctrl.Reserve(ctx, 45, config.DailyRetrievalLimit+10)
	require.NoError(t, err)
	assert.Equal(t, config.DailyRetrievalLimit, k)

	d, err := ctrl.CanRetrieve(ctx, 45, "x")
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, apperr.CodePremiumRequired, d.Reason)

	// Releasing restores allowance.
	require.NoError(t, ctrl.Release(ctx, 45, 5))
	d, err = ctrl.CanRetrieve(ctx, 45, "x")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, 5, d.Remaining)
}

func TestPremiumStatusOf(t *testing.T) {
	ctrl := setupTest(t)
	ctx := context.Background()

	require.NoError(t, ctrl.GrantPremium(ctx, 46))
	s, err := ctrl.PremiumStatusOf(ctx, 46, "x")
	require.NoError(t, err)
	assert.True(t, s.Premium)
	assert.Positive(t, s.DaysLeft)
	assert.True(t, s.EnforcementOn)

	require.NoError(t, ctrl.RevokePremium(ctx, 46))
	s, err = ctrl.PremiumStatusOf(ctx, 46, "x")
	require.NoError(t, err)
	assert.False(t, s.Premium)
}
