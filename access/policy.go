// Package access decides whether a principal may retrieve media and keeps
// the quota ledger and cached views consistent while doing so.
package access

import (
	"context"

	"github.com/Laisky/zap"

	"github.com/leafdriven/mediadex/cache"
	"github.com/leafdriven/mediadex/common/apperr"
	"github.com/leafdriven/mediadex/common/config"
	"github.com/leafdriven/mediadex/common/logger"
	"github.com/leafdriven/mediadex/model"
)

// Decision is the outcome of a retrieval policy check.
type Decision struct {
	Allowed bool
	// Unlimited means no quota applies (enforcement off, owner, premium).
	Unlimited bool
	// Remaining is today's remaining allowance; meaningful only when
	// Allowed and not Unlimited.
	Remaining int
	// Reason carries the denial code when Allowed is false.
	Reason apperr.Code
}

// Controller evaluates retrieval policy with a cache in front of the
// principal table. A nil cache degrades to DB-only reads.
type Controller struct {
	cache *cache.Cache
	inv   *cache.Invalidator
}

func NewController(c *cache.Cache) *Controller {
	return &Controller{cache: c, inv: cache.NewInvalidator(c)}
}

// loadPrincipal reads through the cache, registering the principal on first
// contact.
func (a *Controller) loadPrincipal(ctx context.Context, id int64, name string) (*model.Principal, error) {
	key := cache.PrincipalKey(id)
	if a.cache.Enabled() {
		var p model.Principal
		if a.cache.GetInto(ctx, key, &p) {
			return &p, nil
		}
	}
	p, err := model.EnsurePrincipal(id, name)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.CodeDatabaseError, "load principal %d", id)
	}
	if a.cache.Enabled() {
		a.cache.Set(ctx, key, p, config.MediaCacheTTL)
	}
	return p, nil
}

// CanRetrieve runs the retrieval policy for one principal:
// enforcement off or owner grants unlimited access; a ban always denies;
// active premium grants unlimited access while an expired activation is
// lazily cleared; otherwise the daily counter (with stale-date rollover)
// decides against the configured limit.
func (a *Controller) CanRetrieve(ctx context.Context, id int64, name string) (Decision, error) {
	if !config.PremiumActive() {
		return Decision{Allowed: true, Unlimited: true}, nil
	}
	if config.IsOwner(id) {
		return Decision{Allowed: true, Unlimited: true}, nil
	}

	p, err := a.loadPrincipal(ctx, id, name)
	if err != nil {
		return Decision{}, err
	}

	if p.IsBanned() {
		return Decision{Reason: apperr.CodeBannedUser}, nil
	}

	if p.IsPremium {
		if p.PremiumActive(config.PremiumDurationDays) {
			return Decision{Allowed: true, Unlimited: true}, nil
		}
		// Lapsed activation; clear the flag so the next check is cheap.
		if cerr := model.ClearExpiredPremiumFlag(id); cerr != nil {
			logger.Logger.Warn("failed to clear expired premium flag",
				zap.Int64("principal", id), zap.Error(cerr))
		}
		a.inv.Principal(ctx, id)
	}

	remaining := config.DailyRetrievalLimit - p.EffectiveDailyCount()
	if remaining <= 0 {
		return Decision{Reason: apperr.CodePremiumRequired}, nil
	}
	return Decision{Allowed: true, Remaining: remaining}, nil
}

// Reserve atomically claims up to n units of today's quota and returns how
// many were granted. Unlimited principals are never charged.
func (a *Controller) Reserve(ctx context.Context, id int64, n int) (int, error) {
	if !config.PremiumActive() || config.IsOwner(id) {
		return n, nil
	}
	p, err := model.GetPrincipalByID(id)
	if err != nil {
		return 0, apperr.Wrap(err, apperr.CodeDatabaseError, "reserve quota for %d", id)
	}
	if p.IsPremium && p.PremiumActive(config.PremiumDurationDays) {
		return n, nil
	}

	k, err := model.ReserveQuota(id, n, config.DailyRetrievalLimit)
	if err != nil {
		return 0, apperr.Wrap(err, apperr.CodeDatabaseError, "reserve quota for %d", id)
	}
	a.inv.Principal(ctx, id)
	return k, nil
}

// Release returns unused reserved units, clamped at zero server-side.
func (a *Controller) Release(ctx context.Context, id int64, n int) error {
	if n <= 0 || !config.PremiumActive() || config.IsOwner(id) {
		return nil
	}
	if err := model.ReleaseQuota(id, n); err != nil {
		return apperr.Wrap(err, apperr.CodeDatabaseError, "release quota for %d", id)
	}
	a.inv.Principal(ctx, id)
	return nil
}

// PremiumStatus is the view rendered by the plan command.
type PremiumStatus struct {
	Premium       bool
	DaysLeft      int
	UsedToday     int
	Limit         int
	EnforcementOn bool
}

func (a *Controller) PremiumStatusOf(ctx context.Context, id int64, name string) (PremiumStatus, error) {
	s := PremiumStatus{Limit: config.DailyRetrievalLimit, EnforcementOn: config.PremiumActive()}
	p, err := a.loadPrincipal(ctx, id, name)
	if err != nil {
		return s, err
	}
	s.UsedToday = p.EffectiveDailyCount()
	if p.IsPremium && p.PremiumActive(config.PremiumDurationDays) {
		s.Premium = true
		s.DaysLeft = p.PremiumDaysLeft(config.PremiumDurationDays)
	}
	return s, nil
}

// BannedIDs returns the banned set through a short-lived cached view.
func (a *Controller) BannedIDs(ctx context.Context) ([]int64, error) {
	if a.cache.Enabled() {
		var ids []int64
		if a.cache.GetInto(ctx, cache.KeyBannedPrincipals, &ids) {
			return ids, nil
		}
	}
	ids, err := model.GetBannedPrincipalIDs()
	if err != nil {
		return nil, apperr.Wrap(err, apperr.CodeDatabaseError, "list banned principals")
	}
	if a.cache.Enabled() {
		a.cache.Set(ctx, cache.KeyBannedPrincipals, ids, config.BannedListTTL)
	}
	return ids, nil
}
