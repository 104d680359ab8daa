package crawler

import (
	"context"
	"io"

	"sjsage522/hotpostcollector/config"
	"sjsage522/hotpostcollector/services/cache"
)

// HotCrawler crawls a single ranked "hot" listing table
type HotCrawler struct {
	BaseCrawler
	Selectors Selectors
	rules     ExtractRules
}

// NewHotCrawler creates a crawler from an explicit configuration
func NewHotCrawler(cfg CrawlerConfig, fetcher PageFetcher, cacheSvc cache.CacheService) *HotCrawler {
	idExtractor := cfg.IDExtractor
	if idExtractor == nil {
		idExtractor = PathIDExtractor(cfg.LinkFilter)
	}

	return &HotCrawler{
		BaseCrawler: BaseCrawler{
			Name:      cfg.Name,
			URL:       cfg.URL,
			BaseURL:   cfg.BaseURL,
			Provider:  cfg.Provider,
			CacheKey:  cfg.CacheKey,
			CacheSvc:  cacheSvc,
			BlockTime: cfg.BlockTime,
			Fetcher:   fetcher,
		},
		Selectors: cfg.Selectors,
		rules: ExtractRules{
			BaseURL:     cfg.BaseURL,
			ClassFilter: cfg.Selectors.ClassFilter,
			LinkFilter:  cfg.LinkFilter,
			IDExtractor: idExtractor,
		},
	}
}

// TheqooSelectors returns the selectors of theqoo's hot board table
func TheqooSelectors() Selectors {
	return Selectors{
		PostList:     "table tbody tr",
		ClassFilter:  "notice",
		Title:        "td.title",
		Category:     "td.cate",
		ViewCount:    "td.m_no",
		CommentCount: "a.replyNum",
		PostedAt:     "td.time",
	}
}

// NewTheqooHotCrawler creates the crawler for theqoo's hot board
func NewTheqooHotCrawler(cfg *config.Config, fetcher PageFetcher, cacheSvc cache.CacheService) *HotCrawler {
	return NewHotCrawler(CrawlerConfig{
		Name:       "theqoo_hot",
		URL:        cfg.ListingURL,
		CacheKey:   "theqoo_rate_limited",
		BlockTime:  cfg.RateLimitBlock,
		BaseURL:    cfg.BaseURL,
		Provider:   cfg.Provider,
		Selectors:  TheqooSelectors(),
		LinkFilter: "/hot/",
	}, fetcher, cacheSvc)
}

// Fetch retrieves the listing page
func (c *HotCrawler) Fetch(ctx context.Context) (io.Reader, error) {
	return c.fetchWithCache(ctx)
}

// Extract parses the listing page and runs the row algorithm over it
func (c *HotCrawler) Extract(r io.Reader) (*Extraction, error) {
	doc, err := c.createDocument(r, c.Selectors)
	if err != nil {
		return nil, err
	}
	return ExtractPosts(doc, c.rules), nil
}
