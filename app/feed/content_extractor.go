package feed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"codeberg.org/readeck/go-readability/v2"
	"github.com/PuerkitoBio/goquery"
)

const (
	MethodPresseportal = "presseportal"
	MethodBNN          = "bnn"
	MethodGoogle       = "google"
	MethodGeneric      = "generic"
	MethodReadability  = "readability"
	MethodRSSFallback  = "rss-fallback"
)

const (
	defaultExtractTimeout  = 15 * time.Second
	defaultExtractAttempts = 3
	defaultExtractBackoff  = time.Second
	maxPageSize            = 5 << 20

	minFragmentLength = 50
	minContentLength  = 100
	minFallbackLength = 50
	minHTMLLength     = 100
)

const strippedElements = "script, style, nav, header, footer, .advertisement, .ads, .cookie-banner, .gdpr-notice"

var siteSelectors = map[string][]string{
	MethodPresseportal: {".story-text", ".news-text", ".article-content", ".story-content p", `[data-testid="story-text"]`},
	MethodBNN:          {".article-content", ".article-text", ".content-text", ".article-body", "article .text", ".article p"},
	MethodGoogle:       {"article p", ".article-content p", ".content p", ".post-content p", "main p"},
	MethodGeneric: {
		"article", ".article-content", ".post-content", ".content", ".story-content", ".news-content",
		"main", `[role="main"]`, ".entry-content", ".text-content", ".article-body", ".article-text",
	},
}

var titleSelectors = []string{"h1", ".article-title", ".post-title", ".entry-title", ".headline"}

var (
	bracketNoise = regexp.MustCompile(`\[.*?\]`)
	readMoreTail = regexp.MustCompile(`(?i)(Weiterlesen|Mehr dazu).*$`)
	consentLine  = regexp.MustCompile(`(?i)cookie.*akzeptieren|datenschutz.*zustimmen`)
)

type ExtractionResult struct {
	Success bool
	Content string
	Title   string
	Method  string
	Error   string
}

type ContentExtractor struct {
	httpClient *http.Client
	userAgent  string
	timeout    time.Duration
	attempts   int
	backoff    time.Duration
}

func NewContentExtractor(httpClient *http.Client, userAgent string) *ContentExtractor {
	return &ContentExtractor{
		httpClient: httpClient,
		userAgent:  userAgent,
		timeout:    defaultExtractTimeout,
		attempts:   defaultExtractAttempts,
		backoff:    defaultExtractBackoff,
	}
}

// WithBackoff overrides the base retry delay; attempt n waits n*backoff.
func (e *ContentExtractor) WithBackoff(backoff time.Duration) *ContentExtractor {
	e.backoff = backoff
	return e
}

// Extract fetches the article page and returns its main text. When every
// attempt fails, fallback (the feed text) is used if it is long enough.
// The returned result never carries a Go error; failures are described in Error.
func (e *ContentExtractor) Extract(ctx context.Context, articleURL, fallback string) ExtractionResult {
	if strings.TrimSpace(articleURL) == "" {
		return e.fallbackResult(fallback, "invalid URL")
	}

	target := ResolveRedirect(articleURL)

	var lastErr error
	for attempt := 1; attempt <= e.attempts; attempt++ {
		result, err := e.extractOnce(ctx, target)
		if err == nil {
			slog.Debug("Content extracted", "url", target, "method", result.Method, "content_length", len(result.Content))
			return result
		}
		lastErr = err

		if !retryable(ctx, err) || attempt == e.attempts {
			break
		}

		delay := time.Duration(attempt) * e.backoff
		slog.Debug("Content extraction failed, retrying", "url", target, "attempt", attempt, "delay", delay.String(), "error", err)

		if err := sleepContext(ctx, delay); err != nil {
			lastErr = err
			break
		}
	}

	slog.Debug("Content extraction failed", "url", target, "error", lastErr)
	return e.fallbackResult(fallback, lastErr.Error())
}

func (e *ContentExtractor) fallbackResult(fallback, reason string) ExtractionResult {
	if utf8.RuneCountInString(fallback) > minFallbackLength {
		return ExtractionResult{
			Success: true,
			Content: CleanText(fallback),
			Method:  MethodRSSFallback,
			Error:   fmt.Sprintf("web extraction failed: %s", reason),
		}
	}

	return ExtractionResult{
		Success: false,
		Method:  MethodRSSFallback,
		Error:   fmt.Sprintf("content extraction failed: %s", reason),
	}
}

func (e *ContentExtractor) extractOnce(ctx context.Context, target string) (ExtractionResult, error) {
	page, err := e.fetchPage(ctx, target)
	if err != nil {
		return ExtractionResult{}, err
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page))
	if err != nil {
		return ExtractionResult{}, fmt.Errorf("failed to parse HTML: %w", err)
	}
	doc.Find(strippedElements).Remove()

	site := DetectSite(target)
	title := firstText(doc, titleSelectors)

	if content := extractWithSelectors(doc, siteSelectors[site]); content != "" {
		return ExtractionResult{Success: true, Content: content, Title: title, Method: site}, nil
	}
	if site != MethodGeneric {
		if content := extractWithSelectors(doc, siteSelectors[MethodGeneric]); content != "" {
			return ExtractionResult{Success: true, Content: content, Title: title, Method: MethodGeneric}, nil
		}
	}

	cleanedHTML, err := doc.Html()
	if err != nil {
		cleanedHTML = page
	}
	if content := extractReadable(cleanedHTML, target); content != "" {
		return ExtractionResult{Success: true, Content: content, Title: title, Method: MethodReadability}, nil
	}

	return ExtractionResult{}, fmt.Errorf("extracted content too short")
}

func (e *ContentExtractor) fetchPage(ctx context.Context, target string) (string, error) {
	timeoutCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(timeoutCtx, http.MethodGet, target, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("User-Agent", e.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "de-DE,de;q=0.9,en;q=0.8")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &HTTPStatusError{StatusCode: resp.StatusCode, Status: resp.Status}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxPageSize))
	if err != nil {
		return "", fmt.Errorf("failed to read page: %w", err)
	}
	if len(data) < minHTMLLength {
		return "", fmt.Errorf("empty or too short HTML response (%d bytes)", len(data))
	}

	return string(data), nil
}

// retryable reports whether another attempt makes sense after err.
func retryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return false
	}
	var statusErr *HTTPStatusError
	if errors.As(err, &statusErr) && statusErr.IsClientError() {
		return false
	}
	return true
}

// ResolveRedirect unwraps google.com/url?url=... redirect links.
func ResolveRedirect(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}

	if strings.Contains(strings.ToLower(parsed.Hostname()), "google.com") && strings.HasPrefix(parsed.Path, "/url") {
		query := parsed.Query()
		if target := query.Get("url"); target != "" {
			return target
		}
		if target := query.Get("q"); target != "" {
			return target
		}
	}

	return rawURL
}

// DetectSite maps a page URL to the selector set used for it.
func DetectSite(pageURL string) string {
	parsed, err := url.Parse(pageURL)
	if err != nil {
		return MethodGeneric
	}

	host := strings.ToLower(parsed.Hostname())
	switch {
	case strings.Contains(host, "presseportal.de"):
		return MethodPresseportal
	case strings.Contains(host, "bnn.de"):
		return MethodBNN
	case strings.Contains(host, "google.com"), strings.Contains(host, "google.de"):
		return MethodGoogle
	default:
		return MethodGeneric
	}
}

func extractWithSelectors(doc *goquery.Document, selectors []string) string {
	for _, selector := range selectors {
		var fragments []string
		doc.Find(selector).Each(func(_ int, s *goquery.Selection) {
			text := strings.TrimSpace(s.Text())
			if utf8.RuneCountInString(text) > minFragmentLength {
				fragments = append(fragments, text)
			}
		})

		joined := strings.Join(fragments, "\n\n")
		if utf8.RuneCountInString(joined) <= minContentLength {
			continue
		}
		if cleaned := CleanText(joined); utf8.RuneCountInString(cleaned) >= minContentLength {
			return cleaned
		}
	}
	return ""
}

func extractReadable(page, pageURL string) string {
	parsedURL, _ := url.Parse(pageURL)

	article, err := readability.FromReader(strings.NewReader(page), parsedURL)
	if err != nil {
		return ""
	}

	var buf strings.Builder
	if err := article.RenderText(&buf); err != nil {
		return ""
	}

	text := CleanText(buf.String())
	if utf8.RuneCountInString(text) <= minContentLength {
		return ""
	}
	return text
}

func firstText(doc *goquery.Document, selectors []string) string {
	for _, selector := range selectors {
		if text := strings.TrimSpace(doc.Find(selector).First().Text()); text != "" {
			return whitespaceRuns.ReplaceAllString(text, " ")
		}
	}
	return ""
}

// CleanText drops consent banner lines, bracketed notes and read-more
// trailers, and collapses whitespace.
func CleanText(text string) string {
	lines := strings.Split(text, "\n")
	kept := lines[:0]
	for _, line := range lines {
		if !consentLine.MatchString(line) {
			kept = append(kept, line)
		}
	}

	cleaned := whitespaceRuns.ReplaceAllString(strings.Join(kept, " "), " ")
	cleaned = bracketNoise.ReplaceAllString(cleaned, "")
	cleaned = readMoreTail.ReplaceAllString(cleaned, "")
	return strings.TrimSpace(whitespaceRuns.ReplaceAllString(cleaned, " "))
}
