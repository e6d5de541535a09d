package feed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

const (
	defaultFetchAttempts = 3
	defaultFetchBackoff  = 500 * time.Millisecond
	maxFeedSize          = 10 << 20
)

type HTTPStatusError struct {
	StatusCode int
	Status     string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("HTTP error: %s", e.Status)
}

// IsClientError reports whether the request failed with a 4xx status.
func (e *HTTPStatusError) IsClientError() bool {
	return e.StatusCode >= 400 && e.StatusCode < 500
}

type Fetcher struct {
	httpClient *http.Client
	userAgent  string
	timeout    time.Duration
	attempts   int
	backoff    time.Duration
}

func NewFetcher(httpClient *http.Client, userAgent string, timeout time.Duration) *Fetcher {
	return &Fetcher{
		httpClient: httpClient,
		userAgent:  userAgent,
		timeout:    timeout,
		attempts:   defaultFetchAttempts,
		backoff:    defaultFetchBackoff,
	}
}

// WithBackoff overrides the base retry delay; attempt n waits n*backoff.
func (f *Fetcher) WithBackoff(backoff time.Duration) *Fetcher {
	f.backoff = backoff
	return f
}

// Fetch downloads a feed document, retrying non-2xx responses and network
// errors. timeout applies per attempt; zero means the fetcher default.
func (f *Fetcher) Fetch(ctx context.Context, url string, timeout time.Duration) ([]byte, error) {
	if timeout <= 0 {
		timeout = f.timeout
	}

	var lastErr error
	for attempt := 1; attempt <= f.attempts; attempt++ {
		data, err := f.fetchOnce(ctx, url, timeout)
		if err == nil {
			return data, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return nil, fmt.Errorf("fetch aborted: %w", ctx.Err())
		}
		if attempt == f.attempts {
			break
		}

		delay := time.Duration(attempt) * f.backoff
		slog.Debug("Feed fetch failed, retrying", "url", url, "attempt", attempt, "delay", delay.String(), "error", err)

		if err := sleepContext(ctx, delay); err != nil {
			return nil, fmt.Errorf("fetch aborted: %w", err)
		}
	}

	return nil, fmt.Errorf("failed to fetch feed after %d attempts: %w", f.attempts, lastErr)
}

func (f *Fetcher) fetchOnce(ctx context.Context, url string, timeout time.Duration) ([]byte, error) {
	timeoutCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(timeoutCtx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "application/rss+xml, application/atom+xml, application/xml;q=0.9, text/xml;q=0.8, */*;q=0.5")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("timed out after %s: %w", timeout, err)
		}
		return nil, fmt.Errorf("failed to fetch feed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &HTTPStatusError{StatusCode: resp.StatusCode, Status: resp.Status}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxFeedSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	return data, nil
}

func sleepContext(ctx context.Context, delay time.Duration) error {
	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
