package crawler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"sjsage522/hotpostcollector/config"
	"sjsage522/hotpostcollector/helpers"
	apperrors "sjsage522/hotpostcollector/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCrawler(fetcher PageFetcher, cacheSvc *MockCacheService) *HotCrawler {
	crawler := NewHotCrawler(CrawlerConfig{
		URL:        "https://example.test/hot",
		CacheKey:   "test_rate_limited",
		BlockTime:  time.Minute,
		BaseURL:    "https://example.test",
		Provider:   "Test",
		Selectors:  TheqooSelectors(),
		LinkFilter: "/hot/",
	}, fetcher, nil)
	if cacheSvc != nil {
		crawler.CacheSvc = cacheSvc
	}
	return crawler
}

// TestBaseCrawlerFetch tests the base crawler fetch path
func TestBaseCrawlerFetch(t *testing.T) {
	fetcher := &mockFetcher{body: listingHTML}
	crawler := newTestCrawler(fetcher, NewMockCacheService())

	body, err := crawler.Fetch(context.Background())
	require.NoError(t, err)

	data, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Contains(t, string(data), "첫 번째 인기글")
	assert.Equal(t, 1, fetcher.calls)
}

func TestBaseCrawlerNetworkError(t *testing.T) {
	fetcher := &mockFetcher{err: fmt.Errorf("failed to fetch URL: %w", context.DeadlineExceeded)}
	crawler := newTestCrawler(fetcher, NewMockCacheService())

	_, err := crawler.Fetch(context.Background())
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeNetwork))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestBaseCrawlerRateLimitBlock(t *testing.T) {
	mockCache := NewMockCacheService()
	fetcher := &mockFetcher{err: &helpers.StatusError{URL: "https://example.test/hot", StatusCode: http.StatusTooManyRequests}}
	crawler := newTestCrawler(fetcher, mockCache)

	// The throttled response starts a block
	_, err := crawler.Fetch(context.Background())
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeRateLimit))
	value, cacheErr := mockCache.Get("test_rate_limited")
	require.NoError(t, cacheErr)
	assert.Equal(t, "60", string(value))

	// While blocked the site is not contacted at all
	fetcher.err = nil
	fetcher.body = listingHTML
	_, err = crawler.Fetch(context.Background())
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeRateLimit))
	assert.Equal(t, 1, fetcher.calls)

	// Once the block expires fetching resumes
	mockCache.expire("test_rate_limited")
	_, err = crawler.Fetch(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, 2, fetcher.calls)
}

func TestBaseCrawlerWithoutCache(t *testing.T) {
	fetcher := &mockFetcher{err: &helpers.StatusError{StatusCode: http.StatusTooManyRequests}}
	crawler := newTestCrawler(fetcher, nil)

	_, err := crawler.Fetch(context.Background())
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeRateLimit))
	_, err = crawler.Fetch(context.Background())
	assert.Error(t, err)
	assert.Equal(t, 2, fetcher.calls)
}

// TestGetName tests the GetName function
func TestGetName(t *testing.T) {
	crawler := BaseCrawler{}
	assert.Equal(t, "BaseCrawler", crawler.GetName())

	crawler.Name = "theqoo_hot"
	assert.Equal(t, "theqoo_hot", crawler.GetName())
}

func TestTheqooHotCrawlerAgainstServer(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/hot", r.URL.Path)
		assert.NotEmpty(t, r.Header.Get("User-Agent"))
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(listingHTML))
	}))
	defer server.Close()

	cfg := config.LoadConfig()
	cfg.ListingURL = server.URL + "/hot"
	cfg.BaseURL = server.URL
	fetcher := helpers.NewFetcher(time.Second, helpers.BrowserHeaders(cfg.UserAgent, cfg.AcceptLanguage))
	crawler := NewTheqooHotCrawler(cfg, fetcher, nil)

	body, err := crawler.Fetch(context.Background())
	require.NoError(t, err)
	result, err := crawler.Extract(body)
	require.NoError(t, err)

	require.Len(t, result.Posts, 3)
	assert.Equal(t, server.URL+"/hot/101", result.Posts[0].URL)
	assert.Equal(t, "theqoo_hot", crawler.GetName())
	assert.Equal(t, "Theqoo", crawler.GetProvider())
}

func TestExtractParsingErrorType(t *testing.T) {
	crawler := newTestCrawler(&mockFetcher{}, nil)

	_, err := crawler.Extract(failingReader{})
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeParsing))
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) {
	return 0, errors.New("connection reset")
}
