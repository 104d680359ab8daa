package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sjsage522/hotpostcollector/internal/crawler"
	"sjsage522/hotpostcollector/internal/store"
	apperrors "sjsage522/hotpostcollector/pkg/errors"
	"sjsage522/hotpostcollector/services/worker"
)

type fakeRunner struct {
	res   worker.Result
	err   error
	calls int
}

func (f *fakeRunner) RunOnce(ctx context.Context) (worker.Result, error) {
	f.calls++
	return f.res, f.err
}

var fixedNow = time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)

func newTestServer(t *testing.T, runner CycleRunner) *Server {
	t.Helper()
	ctx := context.Background()
	s, err := store.New(ctx, filepath.Join(t.TempDir(), "api.db"), store.WithClock(func() time.Time { return fixedNow }))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	summary := s.InsertIfAbsent(ctx, []crawler.Post{
		{PostID: "101", Category: "스퀘어", Title: "컴백 티저 공개", URL: "https://theqoo.net/hot/101", ViewCount: 1500, CommentCount: 12, PublishedAt: "09:10"},
		{PostID: "102", Category: "스퀘어", Title: "컴백 일정 정리", URL: "https://theqoo.net/hot/102", ViewCount: 300, CommentCount: 40, PublishedAt: "09:12"},
		{PostID: "103", Category: "드영배", Title: "드라마 100% 시청률", URL: "https://theqoo.net/hot/103", ViewCount: 900, CommentCount: 3, PublishedAt: "09:15"},
	})
	require.Equal(t, 3, summary.Inserted)

	if runner == nil {
		runner = &fakeRunner{}
	}
	return NewServer(s, runner)
}

func do(t *testing.T, srv *Server, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t, nil)
	rec := do(t, srv, http.MethodGet, "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", decode[map[string]string](t, rec)["status"])
}

func TestListPosts(t *testing.T) {
	srv := newTestServer(t, nil)

	rec := do(t, srv, http.MethodGet, "/api/posts?sort_by=view_count&order=desc&limit=2")
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[postListResponse](t, rec)
	assert.Equal(t, 3, resp.Total)
	require.Len(t, resp.Posts, 2)
	assert.Equal(t, "101", resp.Posts[0].PostID)
	assert.Equal(t, "103", resp.Posts[1].PostID)
	assert.Equal(t, "2026-03-01 09:30:00", resp.Posts[0].CollectedAt)

	rec = do(t, srv, http.MethodGet, "/api/posts?category=%EB%93%9C%EC%98%81%EB%B0%B0")
	resp = decode[postListResponse](t, rec)
	assert.Equal(t, 1, resp.Total)

	rec = do(t, srv, http.MethodGet, "/api/posts?search=100%25")
	resp = decode[postListResponse](t, rec)
	require.Equal(t, 1, resp.Total)
	assert.Equal(t, "103", resp.Posts[0].PostID)

	rec = do(t, srv, http.MethodGet, "/api/posts?sort_by=comment_count&order=asc&offset=2")
	resp = decode[postListResponse](t, rec)
	assert.Equal(t, 3, resp.Total)
	require.Len(t, resp.Posts, 1)
	assert.Equal(t, "102", resp.Posts[0].PostID)
}

func TestListPostsRejectsOutOfRangePaging(t *testing.T) {
	srv := newTestServer(t, nil)

	for _, target := range []string{
		"/api/posts?limit=0",
		"/api/posts?limit=101",
		"/api/posts?limit=abc",
		"/api/posts?offset=-1",
	} {
		rec := do(t, srv, http.MethodGet, target)
		assert.Equal(t, http.StatusBadRequest, rec.Code, target)
		assert.NotEmpty(t, decode[map[string]string](t, rec)["error"], target)
	}
}

func TestParseListQuery(t *testing.T) {
	q, verr := parseListQuery(httptest.NewRequest(http.MethodGet, "/api/posts?limit=20&offset=40&order=ASC&sort_by=bogus", nil))
	require.Nil(t, verr)
	assert.Equal(t, 20, q.Limit)
	assert.Equal(t, 40, q.Offset)
	assert.False(t, q.Desc)
	assert.Equal(t, store.SortCollectedAt, q.SortBy)

	_, verr = parseListQuery(httptest.NewRequest(http.MethodGet, "/api/posts?offset=-5", nil))
	require.NotNil(t, verr)
	assert.Equal(t, apperrors.ErrorTypeValidation, verr.Type)
	assert.Equal(t, "offset must be a non-negative integer", verr.Message)
}

func TestCategoriesAndStats(t *testing.T) {
	srv := newTestServer(t, nil)

	rec := do(t, srv, http.MethodGet, "/api/posts/categories")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []store.CategoryCount{
		{Category: "스퀘어", Count: 2},
		{Category: "드영배", Count: 1},
	}, decode[[]store.CategoryCount](t, rec))

	rec = do(t, srv, http.MethodGet, "/api/posts/stats")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, store.Stats{TotalPosts: 3, TodayCollected: 3}, decode[store.Stats](t, rec))
}

func TestGetPost(t *testing.T) {
	srv := newTestServer(t, nil)

	rec := do(t, srv, http.MethodGet, "/api/posts/102")
	require.Equal(t, http.StatusOK, rec.Code)
	post := decode[store.PostView](t, rec)
	assert.Equal(t, "컴백 일정 정리", post.Title)
	assert.Equal(t, 40, post.CommentCount)

	rec = do(t, srv, http.MethodGet, "/api/posts/999")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTrendingKeywords(t *testing.T) {
	srv := newTestServer(t, nil)

	rec := do(t, srv, http.MethodGet, "/api/keywords/trending?limit=1")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[map[string][]map[string]any](t, rec)
	require.Len(t, body["keywords"], 1)
	assert.Equal(t, "컴백", body["keywords"][0]["keyword"])
	assert.EqualValues(t, 2, body["keywords"][0]["count"])
	assert.EqualValues(t, 1, body["keywords"][0]["rank"])

	rec = do(t, srv, http.MethodGet, "/api/keywords/trending?limit=x")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRunCrawler(t *testing.T) {
	runner := &fakeRunner{res: worker.Result{Fetched: 20, Saved: 5}}
	srv := newTestServer(t, runner)

	rec := do(t, srv, http.MethodPost, "/api/crawler/run")
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[crawlResponse](t, rec)
	assert.True(t, resp.Success)
	assert.Equal(t, 20, resp.Fetched)
	assert.Equal(t, 5, resp.Saved)
	assert.NotEmpty(t, resp.Message)
	assert.Equal(t, 1, runner.calls)
}

func TestRunCrawlerAlwaysReportsCounts(t *testing.T) {
	srv := newTestServer(t, &fakeRunner{res: worker.Result{Fetched: 3, Saved: 0}})

	rec := do(t, srv, http.MethodPost, "/api/crawler/run")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `"fetched":3`)
	assert.Contains(t, body, `"saved":0`)
	assert.NotContains(t, body, `"error"`)

	srv = newTestServer(t, &fakeRunner{})
	body = do(t, srv, http.MethodPost, "/api/crawler/run").Body.String()
	assert.Contains(t, body, `"fetched":0`)
	assert.Contains(t, body, `"saved":0`)
}

func TestRunCrawlerFailure(t *testing.T) {
	runner := &fakeRunner{err: apperrors.NewNetwork("Theqoo", "failed to fetch listing", context.DeadlineExceeded)}
	srv := newTestServer(t, runner)

	rec := do(t, srv, http.MethodPost, "/api/crawler/run")
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[crawlFailure](t, rec)
	assert.False(t, resp.Success)
	assert.Contains(t, resp.Error, "failed to fetch listing")
	assert.NotContains(t, rec.Body.String(), `"saved"`)

	runner.err = worker.ErrCycleInProgress
	rec = do(t, srv, http.MethodPost, "/api/crawler/run")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.False(t, decode[crawlFailure](t, rec).Success)
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(t, nil)
	do(t, srv, http.MethodGet, "/health")

	rec := do(t, srv, http.MethodGet, "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "http_requests_total"))
}

func TestCORSPreflight(t *testing.T) {
	srv := newTestServer(t, nil)
	rec := do(t, srv, http.MethodOptions, "/api/posts")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestStoreErrorsBecome500(t *testing.T) {
	srv := NewServer(brokenReader{}, &fakeRunner{})
	rec := do(t, srv, http.MethodGet, "/api/posts/stats")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

type brokenReader struct{}

func (brokenReader) List(context.Context, store.ListQuery) (int, []crawler.Post, error) {
	return 0, nil, errors.New("disk I/O error")
}

func (brokenReader) Get(context.Context, string) (*crawler.Post, error) {
	return nil, errors.New("disk I/O error")
}

func (brokenReader) Categories(context.Context) ([]store.CategoryCount, error) {
	return nil, errors.New("disk I/O error")
}

func (brokenReader) Stats(context.Context) (store.Stats, error) {
	return store.Stats{}, errors.New("disk I/O error")
}

func (brokenReader) RecentTitles(context.Context, int) ([]string, error) {
	return nil, errors.New("disk I/O error")
}
