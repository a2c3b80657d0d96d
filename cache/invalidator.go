package cache

import (
	"context"
	"fmt"
	"strconv"
	"time"
)

// Cache key layout. Derived views only; the document store stays
// authoritative.
const (
	KeyBannedPrincipals = "banned_principals"
	KeyMediaStats       = "media_stats"

	keySearchVersion         = "search:version"
	keySearchVersionThrottle = "search:version:bumped"
)

func PrincipalKey(id int64) string     { return fmt.Sprintf("principal:%d", id) }
func MediaUniqueKey(uid string) string { return "media:uid:" + uid }
func MediaFileIDKey(fid string) string { return "media:fid:" + fid }
func MediaRefKey(ref string) string    { return "media:ref:" + ref }
func SettingKey(key string) string     { return "setting:" + key }
func SessionKey(pid int64, sid string) string {
	return fmt.Sprintf("session:%d:%s", pid, sid)
}

// searchVersionThrottle limits bulk search invalidation to one version bump
// per window; every search key embeds the version, so a single INCR
// invalidates all cached pages in O(1).
const searchVersionThrottle = 5 * time.Second

// Invalidator exposes targeted invalidation for the derived views each write
// path touches.
type Invalidator struct {
	c *Cache
}

func NewInvalidator(c *Cache) *Invalidator {
	return &Invalidator{c: c}
}

// Principal drops the per-principal view and the banned list.
func (inv *Invalidator) Principal(ctx context.Context, id int64) {
	inv.c.Delete(ctx, PrincipalKey(id))
	inv.c.Delete(ctx, KeyBannedPrincipals)
}

// File drops every per-file entry a media row may be cached under.
func (inv *Invalidator) File(ctx context.Context, uniqueID, fileID, fileRef string) {
	inv.c.Delete(ctx, MediaUniqueKey(uniqueID))
	if fileID != "" {
		inv.c.Delete(ctx, MediaFileIDKey(fileID))
	}
	if fileRef != "" {
		inv.c.Delete(ctx, MediaRefKey(fileRef))
	}
}

// FileStats drops the aggregated stats view.
func (inv *Invalidator) FileStats(ctx context.Context) {
	inv.c.Delete(ctx, KeyMediaStats)
}

// Setting drops a single cached setting.
func (inv *Invalidator) Setting(ctx context.Context, key string) {
	inv.c.Delete(ctx, SettingKey(key))
}

// SearchResults bumps the search version, invalidating every cached page at
// once. Bumps are throttled so a burst of mutations costs one INCR.
func (inv *Invalidator) SearchResults(ctx context.Context) {
	if !inv.c.Enabled() {
		return
	}
	if !inv.c.SetNX(ctx, keySearchVersionThrottle, 1, searchVersionThrottle) {
		return
	}
	inv.c.Incr(ctx, keySearchVersion, 1)
}

// SearchVersion reads the current search cache version.
func (inv *Invalidator) SearchVersion(ctx context.Context) int64 {
	v, ok := inv.c.Get(ctx, keySearchVersion)
	if !ok {
		return 0
	}
	switch n := v.(type) {
	case float64:
		return int64(n)
	case string:
		if parsed, err := strconv.ParseInt(n, 10, 64); err == nil {
			return parsed
		}
	}
	return 0
}
