package crawler

import (
	"context"
	"io"
	"time"
)

// Post represents a hot post captured from the listing page
type Post struct {
	ID           int64     `json:"id,omitempty"`
	PostID       string    `json:"post_id"`
	Category     string    `json:"category"`
	Title        string    `json:"title"`
	URL          string    `json:"url"`
	ViewCount    int       `json:"view_count"`
	CommentCount int       `json:"comment_count"`
	PublishedAt  string    `json:"published_at"`
	CollectedAt  time.Time `json:"collected_at"`
}

// Crawler interface defines the contract for a listing crawler. Fetch and
// Extract are separate so transport failures never look like parse failures.
type Crawler interface {
	// Fetch retrieves the raw listing page as UTF-8 HTML
	Fetch(ctx context.Context) (io.Reader, error)

	// Extract turns a listing page into candidate posts in document order
	Extract(r io.Reader) (*Extraction, error)

	// GetName returns the crawler's name for logging and identification
	GetName() string

	// GetProvider returns the provider name for the crawler
	GetProvider() string
}

// PageFetcher retrieves a page body. helpers.Fetcher is the production implementation.
type PageFetcher interface {
	Fetch(ctx context.Context, url string) (io.Reader, error)
}

// IDExtractorFunc defines the function signature for extracting an ID from a link
type IDExtractorFunc func(string) (string, error)

// Selectors contains CSS selectors for the listing table
type Selectors struct {
	PostList     string
	ClassFilter  string
	Title        string
	Category     string
	ViewCount    string
	CommentCount string
	PostedAt     string
}

// CrawlerConfig contains configuration for a crawler
type CrawlerConfig struct {
	Name      string
	URL       string
	CacheKey  string
	BlockTime time.Duration
	BaseURL   string
	Provider  string
	Selectors Selectors
	// LinkFilter is the path fragment a title anchor's href must contain
	LinkFilter  string
	IDExtractor IDExtractorFunc
}

// SkipReason explains why a listing row produced no candidate
type SkipReason string

const (
	SkipNotice      SkipReason = "notice"
	SkipNoTitleCell SkipReason = "no_title_cell"
	SkipNoTitleLink SkipReason = "no_title_link"
	SkipNoPostID    SkipReason = "no_post_id"
	SkipEmptyTitle  SkipReason = "empty_title"
	SkipMalformed   SkipReason = "malformed"
)

// RowResult is the outcome of processing one listing row: either a Post or a Skip reason
type RowResult struct {
	Post *Post
	Skip SkipReason
	// Fallbacks names the count fields that were present but unparsable and defaulted to 0
	Fallbacks []string
}

// Extraction aggregates the row results of one listing page
type Extraction struct {
	Posts          []Post
	Rows           int
	Skipped        map[SkipReason]int
	CountFallbacks map[string]int
}

// SkippedTotal returns the number of rows that yielded no candidate
func (e *Extraction) SkippedTotal() int {
	total := 0
	for _, n := range e.Skipped {
		total += n
	}
	return total
}
