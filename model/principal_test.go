package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leafdriven/mediadex/common/helper"
)

func TestEnsurePrincipalIdempotent(t *testing.T) {
	setupTestDB(t)

	p, err := EnsurePrincipal(1001, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(1001), p.Id)
	assert.Equal(t, PrincipalStatusActive, p.Status)

	// A second registration must not reset existing state.
	require.NoError(t, BanPrincipal(1001, "spam"))
	p, err = EnsurePrincipal(1001, "alice")
	require.NoError(t, err)
	assert.True(t, p.IsBanned())
	assert.Equal(t, "spam", p.BanReason)
}

func TestBanUnban(t *testing.T) {
	setupTestDB(t)

	_, err := EnsurePrincipal(1002, "bob")
	require.NoError(t, err)

	require.NoError(t, BanPrincipal(1002, "flooding"))
	p, err := GetPrincipalByID(1002)
	require.NoError(t, err)
	assert.True(t, p.IsBanned())

	ids, err := GetBannedPrincipalIDs()
	require.NoError(t, err)
	assert.Contains(t, ids, int64(1002))

	require.NoError(t, UnbanPrincipal(1002))
	p, err = GetPrincipalByID(1002)
	require.NoError(t, err)
	assert.False(t, p.IsBanned())
	assert.Empty(t, p.BanReason)
}

func TestPremiumWindow(t *testing.T) {
	setupTestDB(t)

	_, err := EnsurePrincipal(1003, "carol")
	require.NoError(t, err)
	require.NoError(t, AddPremium(1003))

	p, err := GetPrincipalByID(1003)
	require.NoError(t, err)
	assert.True(t, p.PremiumActive(30))
	assert.Greater(t, p.PremiumDaysLeft(30), 27)

	// Backdate activation beyond the window.
	stale := time.Now().AddDate(0, 0, -31).Unix()
	require.NoError(t, DB.Model(&Principal{}).Where("id = ?", 1003).
		Update("premium_activated_at", stale).Error)
	p, err = GetPrincipalByID(1003)
	require.NoError(t, err)
	assert.False(t, p.PremiumActive(30))
	assert.Zero(t, p.PremiumDaysLeft(30))
}

func TestReserveQuotaPartialGrant(t *testing.T) {
	setupTestDB(t)

	_, err := EnsurePrincipal(1004, "dave")
	require.NoError(t, err)

	// Full grant inside the limit.
	k, err := ReserveQuota(1004, 7, 10)
	require.NoError(t, err)
	assert.Equal(t, 7, k)

	// Partial grant up to the boundary.
	k, err = ReserveQuota(1004, 7, 10)
	require.NoError(t, err)
	assert.Equal(t, 3, k)

	// Nothing left.
	k, err = ReserveQuota(1004, 1, 10)
	require.NoError(t, err)
	assert.Zero(t, k)

	p, err := GetPrincipalByID(1004)
	require.NoError(t, err)
	assert.Equal(t, 10, p.DailyRetrievalCount)
	assert.Equal(t, helper.Today(), p.LastRetrievalDate)
}

func TestReserveQuotaDateRollover(t *testing.T) {
	setupTestDB(t)

	_, err := EnsurePrincipal(1005, "erin")
	require.NoError(t, err)
	require.NoError(t, DB.Model(&Principal{}).Where("id = ?", 1005).
		Updates(map[string]any{
			"daily_retrieval_count": 9,
			"last_retrieval_date":   "2000-01-01",
		}).Error)

	p, err := GetPrincipalByID(1005)
	require.NoError(t, err)
	assert.Zero(t, p.EffectiveDailyCount())

	// The stale count must not eat into the fresh day's allowance.
	k, err := ReserveQuota(1005, 5, 10)
	require.NoError(t, err)
	assert.Equal(t, 5, k)

	p, err = GetPrincipalByID(1005)
	require.NoError(t, err)
	assert.Equal(t, 5, p.DailyRetrievalCount)
	assert.Equal(t, helper.Today(), p.LastRetrievalDate)
}

func TestReleaseQuotaClampsAtZero(t *testing.T) {
	setupTestDB(t)

	_, err := EnsurePrincipal(1006, "frank")
	require.NoError(t, err)
	k, err := ReserveQuota(1006, 3, 10)
	require.NoError(t, err)
	require.Equal(t, 3, k)

	require.NoError(t, ReleaseQuota(1006, 2))
	p, err := GetPrincipalByID(1006)
	require.NoError(t, err)
	assert.Equal(t, 1, p.DailyRetrievalCount)

	// Releasing more than held floors at zero instead of going negative.
	require.NoError(t, ReleaseQuota(1006, 5))
	p, err = GetPrincipalByID(1006)
	require.NoError(t, err)
	assert.Zero(t, p.DailyRetrievalCount)
}

func TestExpirePremiumBefore(t *testing.T) {
	setupTestDB(t)

	for id := int64(1); id <= 3; id++ {
		_, err := EnsurePrincipal(id, "p")
		require.NoError(t, err)
		require.NoError(t, AddPremium(id))
	}
	stale := time.Now().AddDate(0, 0, -40).Unix()
	require.NoError(t, DB.Model(&Principal{}).Where("id IN ?", []int64{1, 2}).
		Update("premium_activated_at", stale).Error)

	cutoff := time.Now().AddDate(0, 0, -30).Unix()
	n, err := ExpirePremiumBefore(cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	p, err := GetPrincipalByID(3)
	require.NoError(t, err)
	assert.True(t, p.IsPremium)
}

func TestResetAllDailyCounters(t *testing.T) {
	setupTestDB(t)

	for id := int64(1); id <= 3; id++ {
		_, err := EnsurePrincipal(id, "p")
		require.NoError(t, err)
	}
	_, err := ReserveQuota(1, 4, 10)
	require.NoError(t, err)
	_, err = ReserveQuota(2, 2, 10)
	require.NoError(t, err)

	n, err := ResetAllDailyCounters()
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	p, err := GetPrincipalByID(1)
	require.NoError(t, err)
	assert.Zero(t, p.DailyRetrievalCount)
}

func TestPrincipalsPage(t *testing.T) {
	setupTestDB(t)

	for id := int64(1); id <= 5; id++ {
		_, err := EnsurePrincipal(id, "p")
		require.NoError(t, err)
	}
	total, err := CountPrincipals()
	require.NoError(t, err)
	assert.Equal(t, int64(5), total)

	page, err := PrincipalsPage(2, 2)
	require.NoError(t, err)
	assert.Len(t, page, 2)
}
