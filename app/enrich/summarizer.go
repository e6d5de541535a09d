package enrich

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/lysyi3m/claimdesk/app/database"
	"github.com/lysyi3m/claimdesk/app/feed"
)

type Extractor interface {
	Extract(ctx context.Context, articleURL, fallback string) feed.ExtractionResult
}

// Summarizer classifies one news record. The article page is scraped first
// when the record links to one.
type Summarizer struct {
	classifier Classifier
	extractor  Extractor
	now        func() time.Time
}

func NewSummarizer(classifier Classifier, extractor Extractor) *Summarizer {
	return &Summarizer{
		classifier: classifier,
		extractor:  extractor,
		now:        time.Now,
	}
}

func (s *Summarizer) Enabled() bool {
	return s != nil && s.classifier != nil
}

func (s *Summarizer) Summarize(ctx context.Context, record database.NewsRecord) (database.Enrichment, error) {
	if !s.Enabled() {
		return database.Enrichment{}, ErrNotConfigured
	}

	content := cmp.Or(record.Content, record.Summary)
	if record.Title == "" && content == "" {
		return database.Enrichment{}, fmt.Errorf("%w: no content to summarize", ErrInvalidResult)
	}

	if s.extractor != nil && isHTTPLink(record.OriginalLink) {
		result := s.extractor.Extract(ctx, record.OriginalLink, content)
		if result.Success && result.Content != "" {
			slog.Debug("Using extracted content", "id", record.ID, "method", result.Method, "length", len(result.Content))
			content = result.Content
		} else {
			slog.Debug("Content extraction failed", "id", record.ID, "error", result.Error)
		}
	}

	var parts []string
	for _, part := range []string{record.Title, content} {
		if part != "" {
			parts = append(parts, part)
		}
	}

	answer, err := s.classifier.Classify(ctx, Request{
		Title:    record.Title,
		Content:  strings.Join(parts, "\n\n"),
		Location: record.Location,
		URL:      record.OriginalLink,
	})
	if err != nil {
		return database.Enrichment{}, fmt.Errorf("classification failed: %w", err)
	}

	parsed, err := ParseLenient(answer)
	if err != nil {
		return database.Enrichment{}, err
	}

	return Normalize(parsed, s.now().UTC())
}

func isHTTPLink(link string) bool {
	return strings.HasPrefix(link, "http://") || strings.HasPrefix(link, "https://")
}
