package search

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/leafdriven/mediadex/cache"
)

const (
	keywordPrefix = "kw:"
	keywordTTL    = 7 * 24 * time.Hour

	// keywordScanMax bounds how many counters one top-N query inspects.
	keywordScanMax = 1000
)

// KeywordCount is one entry of the popular-keywords view.
type KeywordCount struct {
	Keyword string `json:"keyword"`
	Count   int64  `json:"count"`
}

// recordKeyword bumps the per-query counter backing the popular-keywords
// view. First sight of a keyword starts its retention window.
func recordKeyword(ctx context.Context, c *cache.Cache, query string) {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" || !c.Enabled() {
		return
	}
	if c.Incr(ctx, keywordPrefix+q, 1) == 1 {
		c.Expire(ctx, keywordPrefix+q, keywordTTL)
	}
}

// TopKeywords returns the n most-searched keywords of the retention window,
// most popular first. Without a cache store the view is empty.
func (p *Pipeline) TopKeywords(ctx context.Context, n int) []KeywordCount {
	if n <= 0 || !p.cache.Enabled() {
		return nil
	}
	keys := p.cache.ScanKeys(ctx, keywordPrefix+"*", keywordScanMax)
	if len(keys) == 0 {
		return nil
	}

	values := p.cache.MGet(ctx, keys...)
	counts := make([]KeywordCount, 0, len(keys))
	for i, v := range values {
		f, ok := v.(float64)
		if !ok || f <= 0 {
			continue
		}
		counts = append(counts, KeywordCount{
			Keyword: strings.TrimPrefix(keys[i], keywordPrefix),
			Count:   int64(f),
		})
	}
	sort.Slice(counts, func(i, j int) bool {
		if counts[i].Count != counts[j].Count {
			return counts[i].Count > counts[j].Count
		}
		return counts[i].Keyword < counts[j].Keyword
	})
	if len(counts) > n {
		counts = counts[:n]
	}
	return counts
}
