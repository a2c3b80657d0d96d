package access

import (
	"context"

	"github.com/leafdriven/mediadex/cache"
	"github.com/leafdriven/mediadex/common/apperr"
	"github.com/leafdriven/mediadex/model"
)

// Admin operations mutate principal state and keep the cached principal
// record and the banned-list view coherent.

func (a *Controller) Ban(ctx context.Context, id int64, reason string) error {
	if err := model.BanPrincipal(id, reason); err != nil {
		return apperr.Wrap(err, apperr.CodeDatabaseError, "ban principal %d", id)
	}
	a.invalidateBanViews(ctx, id)
	return nil
}

func (a *Controller) Unban(ctx context.Context, id int64) error {
	if err := model.UnbanPrincipal(id); err != nil {
		return apperr.Wrap(err, apperr.CodeDatabaseError, "unban principal %d", id)
	}
	a.invalidateBanViews(ctx, id)
	return nil
}

func (a *Controller) GrantPremium(ctx context.Context, id int64) error {
	if _, err := model.EnsurePrincipal(id, ""); err != nil {
		return apperr.Wrap(err, apperr.CodeDatabaseError, "register principal %d", id)
	}
	if err := model.AddPremium(id); err != nil {
		return apperr.Wrap(err, apperr.CodeDatabaseError, "grant premium to %d", id)
	}
	a.inv.Principal(ctx, id)
	return nil
}

func (a *Controller) RevokePremium(ctx context.Context, id int64) error {
	if err := model.RemovePremium(id); err != nil {
		return apperr.Wrap(err, apperr.CodeDatabaseError, "revoke premium from %d", id)
	}
	a.inv.Principal(ctx, id)
	return nil
}

func (a *Controller) invalidateBanViews(ctx context.Context, id int64) {
	a.inv.Principal(ctx, id)
	if a.cache.Enabled() {
		a.cache.Delete(ctx, cache.KeyBannedPrincipals)
	}
}
