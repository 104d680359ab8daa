package crawler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"reflect"
	"time"

	"sjsage522/hotpostcollector/helpers"
	"sjsage522/hotpostcollector/logger"
	apperrors "sjsage522/hotpostcollector/pkg/errors"
	"sjsage522/hotpostcollector/services/cache"
)

// BaseCrawler provides common functionality for all crawlers
type BaseCrawler struct {
	Name      string
	URL       string
	BaseURL   string
	Provider  string
	CacheKey  string
	CacheSvc  cache.CacheService
	BlockTime time.Duration
	Fetcher   PageFetcher
}

// fetchWithCache fetches the listing unless a previous rate-limit response is
// still blocking the crawler, and starts a block when the site throttles us.
func (c *BaseCrawler) fetchWithCache(ctx context.Context) (io.Reader, error) {
	if c.CacheSvc != nil && c.CacheKey != "" {
		if _, err := c.CacheSvc.Get(c.CacheKey); err == nil {
			return nil, apperrors.NewRateLimit(c.Provider, c.BlockTime)
		}
	}

	utf8Body, err := c.Fetcher.Fetch(ctx, c.URL)
	if err != nil {
		if errors.Is(err, helpers.ErrRateLimited) {
			c.block()
			return nil, apperrors.New(apperrors.ErrorTypeRateLimit, c.Provider, "listing request throttled", err)
		}
		return nil, apperrors.NewNetwork(c.Provider, "failed to fetch listing", err)
	}

	return utf8Body, nil
}

func (c *BaseCrawler) block() {
	if c.CacheSvc == nil || c.CacheKey == "" || c.BlockTime <= 0 {
		return
	}
	value := []byte(fmt.Sprintf("%d", int(c.BlockTime/time.Second)))
	if err := c.CacheSvc.Set(c.CacheKey, value, c.BlockTime); err != nil {
		logger.ForCrawler(c.GetName()).Warn().
			Err(apperrors.NewCache(c.Provider, "failed to store rate-limit block", err)).
			Msg("Rate-limit block not recorded")
	}
}

// createDocument parses the listing into a Document
func (c *BaseCrawler) createDocument(reader io.Reader, selectors Selectors) (Document, error) {
	doc, err := NewDocument(reader, selectors)
	if err != nil {
		return nil, apperrors.NewParsing(c.Provider, "HTML parsing failed", err)
	}
	return doc, nil
}

// GetName returns the configured crawler name, falling back to the type name
func (c *BaseCrawler) GetName() string {
	if c.Name != "" {
		return c.Name
	}
	return reflect.TypeOf(c).Elem().Name()
}

// GetProvider returns the provider name
func (c *BaseCrawler) GetProvider() string {
	return c.Provider
}
