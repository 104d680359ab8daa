package worker

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"time"

	"sjsage522/hotpostcollector/internal/crawler"
	"sjsage522/hotpostcollector/internal/metrics"
	"sjsage522/hotpostcollector/internal/store"
	"sjsage522/hotpostcollector/logger"
	apperrors "sjsage522/hotpostcollector/pkg/errors"
	"sjsage522/hotpostcollector/services/publisher"
)

// ErrCycleInProgress is returned by RunOnce while another cycle is running
var ErrCycleInProgress = errors.New("crawl cycle already in progress")

// PostStore is the part of the store a cycle writes to
type PostStore interface {
	InsertIfAbsent(ctx context.Context, posts []crawler.Post) store.InsertSummary
}

// Result summarizes one crawl cycle
type Result struct {
	// Fetched is the number of candidate posts extracted from the listing
	Fetched int `json:"fetched"`
	// Saved is the number of candidates newly stored
	Saved int `json:"saved"`
	// Failed is the number of candidates whose insert errored
	Failed int `json:"failed"`
	// Skipped is the number of listing rows that produced no candidate
	Skipped  int           `json:"skipped"`
	Duration time.Duration `json:"duration"`
}

// Worker runs fetch, extract, store and publish as one cycle
type Worker struct {
	crawler   crawler.Crawler
	store     PostStore
	publisher publisher.Publisher
	logger    *logger.Logger
	running   atomic.Bool
}

// NewWorker creates a worker. pub may be nil to disable notifications.
func NewWorker(c crawler.Crawler, s PostStore, pub publisher.Publisher) *Worker {
	log := logger.ForWorker().WithFields(logger.Fields{
		"crawler":  c.GetName(),
		"provider": c.GetProvider(),
	})
	return &Worker{
		crawler:   c,
		store:     s,
		publisher: pub,
		logger:    log,
	}
}

// RunOnce performs a single crawl cycle. A fetch or parse failure returns a
// zero Result and the typed error; nothing is written in that case.
func (w *Worker) RunOnce(ctx context.Context) (Result, error) {
	if !w.running.CompareAndSwap(false, true) {
		return Result{}, ErrCycleInProgress
	}
	defer w.running.Store(false)

	start := time.Now()
	var res Result

	body, err := w.crawler.Fetch(ctx)
	if err != nil {
		return w.fail(res, start, err)
	}

	extraction, err := w.crawler.Extract(body)
	if err != nil {
		return w.fail(res, start, err)
	}

	res.Fetched = len(extraction.Posts)
	res.Skipped = extraction.SkippedTotal()

	summary := w.store.InsertIfAbsent(ctx, extraction.Posts)
	res.Saved = summary.Inserted
	res.Failed = summary.Failed

	w.publish(summary.New)

	res.Duration = time.Since(start)
	metrics.ObserveCycle(metrics.CycleOutcome{
		Status:         "success",
		Fetched:        res.Fetched,
		Saved:          res.Saved,
		StoreFailures:  res.Failed,
		Skipped:        skipLabels(extraction.Skipped),
		CountFallbacks: extraction.CountFallbacks,
		Duration:       res.Duration,
	})

	w.logger.Info().
		Int("fetched", res.Fetched).
		Int("saved", res.Saved).
		Int("failed", res.Failed).
		Int("skipped", res.Skipped).
		Dur("elapsed", res.Duration).
		Msg("Crawl cycle finished")

	return res, nil
}

func (w *Worker) fail(res Result, start time.Time, err error) (Result, error) {
	res.Duration = time.Since(start)
	metrics.ObserveCycle(metrics.CycleOutcome{
		Status:   failureStatus(err),
		Duration: res.Duration,
	})

	event := w.logger.Error()
	if apperrors.IsType(err, apperrors.ErrorTypeRateLimit) {
		event = w.logger.Warn()
	}
	event.Err(err).
		Str("error_type", string(apperrors.TypeOf(err))).
		Bool("retryable", apperrors.IsRetryable(err)).
		Dur("elapsed", res.Duration).
		Msg("Crawl cycle failed")

	return res, err
}

// publish announces new posts, best-effort
func (w *Worker) publish(posts []crawler.Post) {
	if w.publisher == nil || len(posts) == 0 {
		return
	}

	provider := w.crawler.GetProvider()
	for _, post := range posts {
		data, err := json.Marshal(store.NewPostView(post))
		if err != nil {
			w.logger.Warn().Err(err).Str("post_id", post.PostID).Msg("Failed to encode post")
			continue
		}
		if err := w.publisher.Publish(provider, data); err != nil {
			w.logger.Warn().Err(err).Str("post_id", post.PostID).Msg("Failed to publish post")
		}
	}

	if logger.IsDebugEnabled() {
		w.logger.Debug().
			Str("post_id", posts[0].PostID).
			Str("title", posts[0].Title).
			Msg("Published new posts")
	}

	if err := w.publisher.TrimStreams(); err != nil {
		w.logger.Warn().Err(err).Msg("Failed to trim streams")
	}
}

func failureStatus(err error) string {
	switch apperrors.TypeOf(err) {
	case apperrors.ErrorTypeRateLimit:
		return "rate_limited"
	case apperrors.ErrorTypeParsing:
		return "parse_failed"
	default:
		return "fetch_failed"
	}
}

func skipLabels(skipped map[crawler.SkipReason]int) map[string]int {
	out := make(map[string]int, len(skipped))
	for reason, n := range skipped {
		out[string(reason)] = n
	}
	return out
}
