package helpers

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"slices"
	"time"

	"golang.org/x/net/html/charset"
)

// DefaultTimeout bounds a single listing request
const DefaultTimeout = 10 * time.Second

// ErrRateLimited marks a response whose status asks the client to back off
var ErrRateLimited = errors.New("rate limited")

// StatusError reports a non-2xx response
type StatusError struct {
	URL        string
	StatusCode int
	RetryAfter string
}

func (e *StatusError) Error() string {
	if e.RetryAfter != "" {
		return fmt.Sprintf("fetch %s unexpected status code: %d (retry after %s)", e.URL, e.StatusCode, e.RetryAfter)
	}
	return fmt.Sprintf("fetch %s unexpected status code: %d", e.URL, e.StatusCode)
}

// Unwrap lets errors.Is(err, ErrRateLimited) match throttling statuses
func (e *StatusError) Unwrap() error {
	if slices.Contains([]int{http.StatusTooManyRequests, 430}, e.StatusCode) {
		return ErrRateLimited
	}
	return nil
}

// BrowserHeaders returns the fixed header set sent with every listing request
func BrowserHeaders(userAgent, acceptLanguage string) http.Header {
	h := http.Header{}
	h.Set("User-Agent", userAgent)
	h.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8")
	h.Set("Accept-Language", acceptLanguage)
	return h
}

// Fetcher retrieves pages with a fixed header set and timeout
type Fetcher struct {
	client  *http.Client
	headers http.Header
	timeout time.Duration
}

// NewFetcher creates a fetcher. A non-positive timeout falls back to DefaultTimeout.
func NewFetcher(timeout time.Duration, headers http.Header) *Fetcher {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Fetcher{
		client:  &http.Client{Timeout: timeout},
		headers: headers.Clone(),
		timeout: timeout,
	}
}

// Fetch sends a GET request and returns the body decoded as UTF-8, whatever
// charset the server declares.
func (f *Fetcher) Fetch(ctx context.Context, url string) (io.Reader, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	for key, values := range f.headers {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch URL: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{
			URL:        url,
			StatusCode: resp.StatusCode,
			RetryAfter: resp.Header.Get("Retry-After"),
		}
	}

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	utf8Reader, err := charset.NewReaderLabel("utf-8", bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to decode body as UTF-8: %w", err)
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, utf8Reader); err != nil {
		return nil, fmt.Errorf("failed to read decoded UTF-8 body: %w", err)
	}

	return &buf, nil
}
