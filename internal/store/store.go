// Package store persists hot posts in SQLite. The UNIQUE constraint on post_id
// is what keeps re-crawls from duplicating rows.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"sjsage522/hotpostcollector/internal/crawler"
	"sjsage522/hotpostcollector/logger"
	apperrors "sjsage522/hotpostcollector/pkg/errors"

	_ "github.com/mattn/go-sqlite3"
)

// TimeLayout is how collected_at is stored and rendered outside the store
const TimeLayout = "2006-01-02 15:04:05"

// ErrNotFound is returned by Get when no row has the requested post_id
var ErrNotFound = errors.New("post not found")

const schema = `
CREATE TABLE IF NOT EXISTS posts (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	post_id TEXT NOT NULL UNIQUE,
	category TEXT NOT NULL DEFAULT '',
	title TEXT NOT NULL CHECK (length(trim(title)) > 0),
	url TEXT NOT NULL,
	view_count INTEGER NOT NULL DEFAULT 0 CHECK (view_count >= 0),
	comment_count INTEGER NOT NULL DEFAULT 0 CHECK (comment_count >= 0),
	published_at TEXT NOT NULL DEFAULT '',
	collected_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_collected_at ON posts(collected_at);
CREATE INDEX IF NOT EXISTS idx_view_count ON posts(view_count);
`

const insertQuery = `
INSERT INTO posts
	(post_id, category, title, url, view_count, comment_count, published_at, collected_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(post_id) DO NOTHING`

const postColumns = `id, post_id, category, title, url, view_count, comment_count, published_at, collected_at`

// Store owns the posts table
type Store struct {
	db  *sql.DB
	now func() time.Time
	log *logger.Logger
}

// Option customizes a Store
type Option func(*Store)

// WithClock replaces the clock used for collected_at and "today"
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithLogger replaces the store logger
func WithLogger(l *logger.Logger) Option {
	return func(s *Store) { s.log = l }
}

// New opens (creating if needed) the SQLite database at path and ensures the schema
func New(ctx context.Context, path string, opts ...Option) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One writer at a time; SQLite serializes writes anyway
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	s := &Store{db: db, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	if s.log == nil {
		s.log = logger.ForStore()
	}

	if err := s.EnsureSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the database
func (s *Store) Close() error {
	return s.db.Close()
}

// EnsureSchema creates the posts table and its indexes if absent. Safe to call repeatedly.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// InsertSummary reports the outcome of InsertIfAbsent
type InsertSummary struct {
	// Inserted is the number of rows newly created
	Inserted int
	// Failed is the number of candidates whose insert errored and was skipped
	Failed int
	// New holds the inserted posts with their store-assigned id and collected_at
	New []crawler.Post
}

// InsertIfAbsent inserts every candidate whose post_id is not stored yet. Each
// insert commits on its own; conflicts are no-ops and failures are logged and skipped.
func (s *Store) InsertIfAbsent(ctx context.Context, posts []crawler.Post) InsertSummary {
	var summary InsertSummary
	if len(posts) == 0 {
		return summary
	}

	stmt, err := s.db.PrepareContext(ctx, insertQuery)
	if err != nil {
		s.log.Error().Err(apperrors.NewStorage("", "failed to prepare insert", err)).Msg("Batch skipped")
		summary.Failed = len(posts)
		return summary
	}
	defer stmt.Close()

	for _, p := range posts {
		collectedAt := s.now().UTC().Truncate(time.Second)
		res, err := stmt.ExecContext(ctx,
			p.PostID, p.Category, p.Title, p.URL,
			p.ViewCount, p.CommentCount, p.PublishedAt,
			collectedAt.Format(TimeLayout),
		)
		if err != nil {
			summary.Failed++
			s.log.Warn().
				Err(apperrors.NewStorage("", "failed to insert post", err)).
				Str("post_id", p.PostID).
				Msg("Skipping post")
			continue
		}

		s.recordInsert(&summary, p, collectedAt, res)
	}

	return summary
}

// recordInsert folds one insert result into summary. A conflict affects no
// rows; an unreadable row count is counted as a failure.
func (s *Store) recordInsert(summary *InsertSummary, p crawler.Post, collectedAt time.Time, res sql.Result) {
	affected, err := res.RowsAffected()
	if err != nil {
		summary.Failed++
		s.log.Warn().
			Err(apperrors.NewStorage("", "failed to read insert result", err)).
			Str("post_id", p.PostID).
			Msg("Skipping post")
		return
	}
	if affected == 0 {
		return
	}

	id, err := res.LastInsertId()
	if err != nil {
		s.log.Warn().Err(err).Str("post_id", p.PostID).Msg("Inserted post has no row id")
	}
	p.ID = id
	p.CollectedAt = collectedAt
	summary.Inserted++
	summary.New = append(summary.New, p)
}

// PostView is the JSON rendering of a stored post, shared by the read API and
// the new-post stream
type PostView struct {
	ID           int64  `json:"id"`
	PostID       string `json:"post_id"`
	Category     string `json:"category"`
	Title        string `json:"title"`
	URL          string `json:"url"`
	ViewCount    int    `json:"view_count"`
	CommentCount int    `json:"comment_count"`
	PublishedAt  string `json:"published_at"`
	CollectedAt  string `json:"collected_at"`
}

// NewPostView renders p with collected_at in TimeLayout, UTC
func NewPostView(p crawler.Post) PostView {
	return PostView{
		ID:           p.ID,
		PostID:       p.PostID,
		Category:     p.Category,
		Title:        p.Title,
		URL:          p.URL,
		ViewCount:    p.ViewCount,
		CommentCount: p.CommentCount,
		PublishedAt:  p.PublishedAt,
		CollectedAt:  p.CollectedAt.UTC().Format(TimeLayout),
	}
}

// SortField is a column List may order by
type SortField string

const (
	SortCollectedAt  SortField = "collected_at"
	SortViewCount    SortField = "view_count"
	SortCommentCount SortField = "comment_count"
	SortPublishedAt  SortField = "published_at"
)

// ParseSortField maps user input onto a sortable column, defaulting to collected_at
func ParseSortField(s string) SortField {
	switch f := SortField(s); f {
	case SortCollectedAt, SortViewCount, SortCommentCount, SortPublishedAt:
		return f
	default:
		return SortCollectedAt
	}
}

const (
	DefaultLimit = 50
	MaxLimit     = 100
)

// ListQuery filters and pages List
type ListQuery struct {
	Limit    int
	Offset   int
	Category string
	Search   string
	SortBy   SortField
	Desc     bool
}

// List returns the total number of matching posts and one page of them
func (s *Store) List(ctx context.Context, q ListQuery) (int, []crawler.Post, error) {
	if q.Limit <= 0 || q.Limit > MaxLimit {
		q.Limit = DefaultLimit
	}
	if q.Offset < 0 {
		q.Offset = 0
	}

	var conditions []string
	var args []interface{}
	if q.Category != "" {
		conditions = append(conditions, "category = ?")
		args = append(args, q.Category)
	}
	if q.Search != "" {
		conditions = append(conditions, "title LIKE ? ESCAPE '\\'")
		args = append(args, "%"+escapeLike(q.Search)+"%")
	}
	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM posts "+where, args...).Scan(&total); err != nil {
		return 0, nil, fmt.Errorf("failed to count posts: %w", err)
	}

	order := "ASC"
	if q.Desc {
		order = "DESC"
	}
	// sort column comes from the ParseSortField whitelist; id breaks ties
	query := fmt.Sprintf("SELECT %s FROM posts %s ORDER BY %s %s, id %s LIMIT ? OFFSET ?",
		postColumns, where, ParseSortField(string(q.SortBy)), order, order)

	rows, err := s.db.QueryContext(ctx, query, append(args, q.Limit, q.Offset)...)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to list posts: %w", err)
	}
	defer rows.Close()

	posts, err := scanPosts(rows)
	if err != nil {
		return 0, nil, err
	}
	return total, posts, nil
}

// Get returns the post with the given post_id or ErrNotFound
func (s *Store) Get(ctx context.Context, postID string) (*crawler.Post, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+postColumns+" FROM posts WHERE post_id = ?", postID)
	p, err := scanPost(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get post %s: %w", postID, err)
	}
	return p, nil
}

// CategoryCount is one row of the category aggregation
type CategoryCount struct {
	Category string `json:"category"`
	Count    int    `json:"count"`
}

// Categories returns non-empty categories ordered by post count, most frequent first
func (s *Store) Categories(ctx context.Context) ([]CategoryCount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT category, COUNT(*) AS count
		FROM posts
		WHERE category != ''
		GROUP BY category
		ORDER BY count DESC, category ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate categories: %w", err)
	}
	defer rows.Close()

	var out []CategoryCount
	for rows.Next() {
		var c CategoryCount
		if err := rows.Scan(&c.Category, &c.Count); err != nil {
			return nil, fmt.Errorf("failed to scan category: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Stats holds the total and today's collection counts
type Stats struct {
	TotalPosts     int `json:"total_posts"`
	TodayCollected int `json:"today_collected"`
}

// Stats counts all posts and those collected on the current UTC day
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM posts").Scan(&st.TotalPosts); err != nil {
		return st, fmt.Errorf("failed to count posts: %w", err)
	}
	today := s.now().UTC().Format("2006-01-02")
	if err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM posts WHERE DATE(collected_at) = ?", today,
	).Scan(&st.TodayCollected); err != nil {
		return st, fmt.Errorf("failed to count today's posts: %w", err)
	}
	return st, nil
}

// RecentTitles returns the titles of the n most recently collected posts
func (s *Store) RecentTitles(ctx context.Context, n int) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT title FROM posts ORDER BY collected_at DESC, id DESC LIMIT ?", n)
	if err != nil {
		return nil, fmt.Errorf("failed to read recent titles: %w", err)
	}
	defer rows.Close()

	var titles []string
	for rows.Next() {
		var title string
		if err := rows.Scan(&title); err != nil {
			return nil, fmt.Errorf("failed to scan title: %w", err)
		}
		titles = append(titles, title)
	}
	return titles, rows.Err()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanPost(sc scanner) (*crawler.Post, error) {
	var p crawler.Post
	var collectedAt string
	if err := sc.Scan(&p.ID, &p.PostID, &p.Category, &p.Title, &p.URL,
		&p.ViewCount, &p.CommentCount, &p.PublishedAt, &collectedAt); err != nil {
		return nil, err
	}
	t, err := parseCollectedAt(collectedAt)
	if err != nil {
		return nil, fmt.Errorf("invalid collected_at for %s: %w", p.PostID, err)
	}
	p.CollectedAt = t
	return &p, nil
}

func scanPosts(rows *sql.Rows) ([]crawler.Post, error) {
	posts := []crawler.Post{}
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan post: %w", err)
		}
		posts = append(posts, *p)
	}
	return posts, rows.Err()
}

// parseCollectedAt accepts the stored layout and the RFC3339 form the sqlite3
// driver produces when it hands back a DATETIME column as time.Time text.
func parseCollectedAt(s string) (time.Time, error) {
	for _, layout := range []string{TimeLayout, time.RFC3339Nano, "2006-01-02T15:04:05Z"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized time %q", s)
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
