package search

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/leafdriven/mediadex/access"
	"github.com/leafdriven/mediadex/cache"
	"github.com/leafdriven/mediadex/common/apperr"
	"github.com/leafdriven/mediadex/common/config"
	"github.com/leafdriven/mediadex/limiter"
	"github.com/leafdriven/mediadex/model"
	"github.com/leafdriven/mediadex/monitor"
)

// Request is one query-pipeline invocation.
type Request struct {
	PrincipalID   int64
	PrincipalName string
	Query         string
	FileType      string
	Offset        int
	Limit         int
}

// Page is the resolved result page plus the session handle for follow-up
// actions.
type Page struct {
	Items      []SessionItem `json:"items"`
	Total      int           `json:"total"`
	NextOffset int           `json:"next_offset"`
	SessionID  string        `json:"session_id"`
	// Allowed mirrors the access decision so the UI can render the page
	// while withholding delivery.
	Allowed    bool        `json:"allowed"`
	DenyReason apperr.Code `json:"deny_reason,omitempty"`
}

// cachedPage is the principal-independent part stored under the versioned
// search key.
type cachedPage struct {
	Items      []SessionItem `json:"items"`
	Total      int           `json:"total"`
	NextOffset int           `json:"next_offset"`
}

// Pipeline wires rate control, access policy, the index and the versioned
// result cache into the single query entry point.
type Pipeline struct {
	cache    *cache.Cache
	inv      *cache.Invalidator
	sessions *SessionStore
	actions  *limiter.ActionLimiter
	access   *access.Controller
}

func NewPipeline(c *cache.Cache, actions *limiter.ActionLimiter, ctrl *access.Controller) *Pipeline {
	return &Pipeline{
		cache:    c,
		inv:      cache.NewInvalidator(c),
		sessions: NewSessionStore(c),
		actions:  actions,
		access:   ctrl,
	}
}

func (p *Pipeline) Sessions() *SessionStore { return p.sessions }

// pageKey embeds the current search version so a single version bump
// invalidates every cached page at once.
func (p *Pipeline) pageKey(ctx context.Context, req Request) string {
	version := p.inv.SearchVersion(ctx)
	q := strings.ToLower(strings.TrimSpace(req.Query))
	return fmt.Sprintf("search:v%d:%s:%s:%d:%d:%t",
		version, q, req.FileType, req.Offset, req.Limit, config.UseCaptionSearch)
}

// Search resolves one page. The access decision is evaluated without
// consuming quota; delivery charges it later.
func (p *Pipeline) Search(ctx context.Context, req Request) (*Page, error) {
	start := time.Now()
	if req.Limit <= 0 {
		req.Limit = config.SearchPageSize
	}

	if ok, retryAfter := p.actions.Allow(ctx, req.PrincipalID, limiter.ActionSearch); !ok {
		monitor.SearchTotal.WithLabelValues("rate_limited").Inc()
		return nil, apperr.New(apperr.CodeRateLimitExceeded,
			"search throttled, retry in %s", retryAfter)
	}

	if model.GetSettingBoolCached(model.SettingMaintenanceMode, false) && !config.IsAdmin(req.PrincipalID) {
		return nil, apperr.New(apperr.CodeMaintenanceMode, "service is under maintenance")
	}

	decision, err := p.access.CanRetrieve(ctx, req.PrincipalID, req.PrincipalName)
	if err != nil {
		return nil, err
	}
	if !decision.Allowed && decision.Reason == apperr.CodeBannedUser {
		monitor.SearchTotal.WithLabelValues("denied").Inc()
		return nil, apperr.New(apperr.CodeBannedUser, "principal %d is banned", req.PrincipalID)
	}

	recordKeyword(ctx, p.cache, req.Query)

	page, source, err := p.resolvePage(ctx, req)
	if err != nil {
		monitor.SearchTotal.WithLabelValues("error").Inc()
		return nil, err
	}
	monitor.ObserveSearch(start, source, "ok")

	sid := p.sessions.Save(ctx, &ResultSession{
		PrincipalID: req.PrincipalID,
		Query:       req.Query,
		FileType:    req.FileType,
		Items:       page.Items,
		Total:       page.Total,
		Offset:      req.Offset,
	})

	return &Page{
		Items:      page.Items,
		Total:      page.Total,
		NextOffset: page.NextOffset,
		SessionID:  sid,
		Allowed:    decision.Allowed,
		DenyReason: decision.Reason,
	}, nil
}

func (p *Pipeline) resolvePage(ctx context.Context, req Request) (*cachedPage, string, error) {
	key := p.pageKey(ctx, req)
	if p.cache.Enabled() {
		var hit cachedPage
		if p.cache.GetInto(ctx, key, &hit) {
			return &hit, "cache", nil
		}
	}

	files, next, total, err := model.SearchFiles(req.Query, req.FileType,
		req.Offset, req.Limit, config.UseCaptionSearch, config.SearchScanCap)
	if err != nil {
		return nil, "", apperr.Wrap(err, apperr.CodeDatabaseError, "search %q", req.Query)
	}

	page := &cachedPage{Items: sessionItems(files), Total: total, NextOffset: next}
	if p.cache.Enabled() {
		p.cache.Set(ctx, key, page, config.SearchCacheTTL)
	}
	return page, "store", nil
}
