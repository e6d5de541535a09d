package enrich

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/lysyi3m/claimdesk/app/database"
	"github.com/lysyi3m/claimdesk/app/feed"
)

type mockNewsRepository struct {
	mu          sync.Mutex
	records     map[string]database.NewsRecord
	updates     map[string]database.Enrichment
	loadErr     error
	updateCalls int
}

var _ database.NewsRepository = (*mockNewsRepository)(nil)

func newMockNewsRepository(records ...database.NewsRecord) *mockNewsRepository {
	repo := &mockNewsRepository{
		records: make(map[string]database.NewsRecord),
		updates: make(map[string]database.Enrichment),
	}
	for _, record := range records {
		repo.records[record.ID] = record
	}
	return repo
}

func (m *mockNewsRepository) GetExistingByLinks(ctx context.Context, links []string) (map[string]database.ExistingRecord, error) {
	return map[string]database.ExistingRecord{}, nil
}

func (m *mockNewsRepository) GetNews(ctx context.Context, id string) (*database.NewsRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.loadErr != nil {
		return nil, m.loadErr
	}
	record, ok := m.records[id]
	if !ok {
		return nil, nil
	}
	return &record, nil
}

func (m *mockNewsRepository) GetNewsByIDs(ctx context.Context, ids []string) ([]database.NewsRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.loadErr != nil {
		return nil, m.loadErr
	}
	var result []database.NewsRecord
	for _, id := range ids {
		if record, ok := m.records[id]; ok {
			result = append(result, record)
		}
	}
	return result, nil
}

func (m *mockNewsRepository) GetNewsWithoutEnrichment(ctx context.Context, limit int) ([]database.NewsRecord, error) {
	return nil, nil
}

func (m *mockNewsRepository) ListNews(ctx context.Context, limit int) ([]database.NewsRecord, error) {
	return nil, nil
}

func (m *mockNewsRepository) GetLatestCreatedAt(ctx context.Context) (*time.Time, error) {
	return nil, nil
}

func (m *mockNewsRepository) GetExistingByIDs(ctx context.Context, ids []string) (map[string]database.ExistingRecord, error) {
	return nil, errors.New("not implemented")
}

func (m *mockNewsRepository) InsertNews(ctx context.Context, records []database.NewsRecord) ([]string, error) {
	return nil, errors.New("not implemented")
}

func (m *mockNewsRepository) UpsertNews(ctx context.Context, records []database.NewsRecord) (int, error) {
	return 0, errors.New("not implemented")
}

func (m *mockNewsRepository) UpdateEnrichment(ctx context.Context, id string, enrichment database.Enrichment) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.updateCalls++
	if _, ok := m.records[id]; !ok {
		return fmt.Errorf("%w: %s", database.ErrNotFound, id)
	}
	m.updates[id] = enrichment
	return nil
}

// mockClassifier answers with a fixed text, or fails for titles in failFor.
type mockClassifier struct {
	mu       sync.Mutex
	answer   string
	failFor  map[string]bool
	requests []Request
	active   int
	peak     int
}

func (m *mockClassifier) Classify(ctx context.Context, req Request) (string, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	m.active++
	if m.active > m.peak {
		m.peak = m.active
	}
	m.mu.Unlock()

	time.Sleep(5 * time.Millisecond)

	m.mu.Lock()
	m.active--
	m.mu.Unlock()

	if m.failFor[req.Title] {
		return "", errors.New("upstream unavailable")
	}
	return m.answer, nil
}

type mockExtractor struct {
	result feed.ExtractionResult
	calls  []string
}

func (m *mockExtractor) Extract(ctx context.Context, articleURL, fallback string) feed.ExtractionResult {
	m.calls = append(m.calls, articleURL)
	return m.result
}

const validAnswer = `{
  "title": "Brandschaden Lagerhalle Hamburg",
  "summary": "In einer Lagerhalle in Hamburg brach ein Feuer aus.",
  "keyPoints": ["Lagerhalle", "Feuerwehr im Großeinsatz"],
  "severity": "urgent",
  "damageCategory": "commercial",
  "businessInterruption": true,
  "estimatedComplexity": "high",
  "location": "Hamburg-Altona",
  "locationConfidence": "high",
  "keywords": ["Brandschaden", "Lagerhalle"],
  "keywordCategories": {"eventType": "Brand", "sector": ["Handel"]},
  "keywordConfidence": {"Brandschaden": 0.95, "Lagerhalle": 0.7}
}`
