// Package api exposes the read API over collected posts and the manual crawl trigger.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"sjsage522/hotpostcollector/internal/crawler"
	"sjsage522/hotpostcollector/internal/keywords"
	"sjsage522/hotpostcollector/internal/metrics"
	"sjsage522/hotpostcollector/internal/store"
	"sjsage522/hotpostcollector/logger"
	apperrors "sjsage522/hotpostcollector/pkg/errors"
	"sjsage522/hotpostcollector/services/worker"
)

const (
	defaultTrendingLimit = 10
	trendingSourceTitles = 100
	requestTimeout       = 60 * time.Second
)

// PostReader is the read side of the post store
type PostReader interface {
	List(ctx context.Context, q store.ListQuery) (int, []crawler.Post, error)
	Get(ctx context.Context, postID string) (*crawler.Post, error)
	Categories(ctx context.Context) ([]store.CategoryCount, error)
	Stats(ctx context.Context) (store.Stats, error)
	RecentTitles(ctx context.Context, n int) ([]string, error)
}

// CycleRunner runs one crawl cycle on demand
type CycleRunner interface {
	RunOnce(ctx context.Context) (worker.Result, error)
}

// Server wires HTTP handlers to the store and the worker.
type Server struct {
	router chi.Router
	posts  PostReader
	runner CycleRunner
	logger *logger.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(posts PostReader, runner CycleRunner) *Server {
	s := &Server{
		posts:  posts,
		runner: runner,
		logger: logger.ForAPI(),
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(s.loggingMiddleware)
	r.Use(metrics.Middleware)
	r.Use(s.recoverMiddleware)
	r.Use(corsMiddleware)

	r.Get("/", s.root)
	r.Get("/health", s.health)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(requestTimeout))

		r.Route("/api/posts", func(r chi.Router) {
			r.Get("/", s.listPosts)
			r.Get("/categories", s.categories)
			r.Get("/stats", s.stats)
			r.Get("/{post_id}", s.getPost)
		})
		r.Get("/api/keywords/trending", s.trendingKeywords)
	})

	// a cycle is bounded by the fetch timeout, not the request timeout
	r.Post("/api/crawler/run", s.runCrawler)

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

type postListResponse struct {
	Total int            `json:"total"`
	Posts []store.PostView `json:"posts"`
}

type crawlResponse struct {
	Success bool   `json:"success"`
	Fetched int    `json:"fetched"`
	Saved   int    `json:"saved"`
	Message string `json:"message"`
}

type crawlFailure struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

func (s *Server) root(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "theqoo hot post collector API",
		"endpoints": map[string]string{
			"posts":      "/api/posts",
			"categories": "/api/posts/categories",
			"stats":      "/api/posts/stats",
			"keywords":   "/api/keywords/trending",
			"crawl":      "/api/crawler/run",
		},
	})
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (s *Server) listPosts(w http.ResponseWriter, r *http.Request) {
	q, verr := parseListQuery(r)
	if verr != nil {
		writeError(w, http.StatusBadRequest, verr.Message)
		return
	}

	total, posts, err := s.posts.List(r.Context(), q)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to list posts")
		writeError(w, http.StatusInternalServerError, "failed to list posts")
		return
	}

	resp := postListResponse{Total: total, Posts: make([]store.PostView, 0, len(posts))}
	for _, p := range posts {
		resp.Posts = append(resp.Posts, store.NewPostView(p))
	}
	writeJSON(w, http.StatusOK, resp)
}

func parseListQuery(r *http.Request) (store.ListQuery, *apperrors.CrawlerError) {
	query := r.URL.Query()
	q := store.ListQuery{
		Limit:    store.DefaultLimit,
		Category: query.Get("category"),
		Search:   query.Get("search"),
		SortBy:   store.ParseSortField(query.Get("sort_by")),
		Desc:     true,
	}

	if v := query.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 1 || limit > store.MaxLimit {
			return q, apperrors.NewValidation("", fmt.Sprintf("limit must be an integer between 1 and %d", store.MaxLimit))
		}
		q.Limit = limit
	}
	if v := query.Get("offset"); v != "" {
		offset, err := strconv.Atoi(v)
		if err != nil || offset < 0 {
			return q, apperrors.NewValidation("", "offset must be a non-negative integer")
		}
		q.Offset = offset
	}
	if v := query.Get("order"); v != "" {
		q.Desc = strings.EqualFold(v, "desc")
	}
	return q, nil
}

func (s *Server) categories(w http.ResponseWriter, r *http.Request) {
	cats, err := s.posts.Categories(r.Context())
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to aggregate categories")
		writeError(w, http.StatusInternalServerError, "failed to load categories")
		return
	}
	if cats == nil {
		cats = []store.CategoryCount{}
	}
	writeJSON(w, http.StatusOK, cats)
}

func (s *Server) stats(w http.ResponseWriter, r *http.Request) {
	st, err := s.posts.Stats(r.Context())
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to compute stats")
		writeError(w, http.StatusInternalServerError, "failed to load stats")
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) getPost(w http.ResponseWriter, r *http.Request) {
	postID := chi.URLParam(r, "post_id")
	p, err := s.posts.Get(r.Context(), postID)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "post not found")
		return
	}
	if err != nil {
		s.logger.Error().Err(err).Str("post_id", postID).Msg("Failed to load post")
		writeError(w, http.StatusInternalServerError, "failed to load post")
		return
	}
	writeJSON(w, http.StatusOK, store.NewPostView(*p))
}

func (s *Server) trendingKeywords(w http.ResponseWriter, r *http.Request) {
	limit := defaultTrendingLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	titles, err := s.posts.RecentTitles(r.Context(), trendingSourceTitles)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to load recent titles")
		writeError(w, http.StatusInternalServerError, "failed to load keywords")
		return
	}
	writeJSON(w, http.StatusOK, map[string][]keywords.Keyword{
		"keywords": keywords.Top(titles, limit),
	})
}

func (s *Server) runCrawler(w http.ResponseWriter, r *http.Request) {
	res, err := s.runner.RunOnce(r.Context())
	if errors.Is(err, worker.ErrCycleInProgress) {
		writeJSON(w, http.StatusConflict, crawlFailure{Success: false, Error: err.Error()})
		return
	}
	if err != nil {
		writeJSON(w, http.StatusOK, crawlFailure{Success: false, Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, crawlResponse{
		Success: true,
		Fetched: res.Fetched,
		Saved:   res.Saved,
		Message: fmt.Sprintf("수집 완료: %d개 중 %d개 신규 저장", res.Fetched, res.Saved),
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debug().
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int64("duration_ms", time.Since(start).Milliseconds()).
			Msg("Request completed")
	})
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				s.logger.Error().Interface("panic", rec).Str("path", r.URL.Path).Msg("Panic recovered")
				writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// corsMiddleware allows any origin, the dashboard is served separately
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.ForAPI().Error().Err(err).Msg("write JSON failed")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
