package tasks

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/lysyi3m/claimdesk/app/database"
	"github.com/lysyi3m/claimdesk/app/enrich"
	"github.com/lysyi3m/claimdesk/app/feed"
)

const brandInHamburgFeed = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
  <channel>
    <title>Polizeimeldungen</title>
    <link>https://example.com</link>
    <item>
      <title>Brand in Hamburg</title>
      <link>https://example.com/news/1</link>
      <guid>news-1</guid>
      <description>Feuer in einer Lagerhalle</description>
      <pubDate>Mon, 03 Jul 2023 10:00:00 +0000</pubDate>
    </item>
  </channel>
</rss>`

type testStores struct {
	db        *database.DB
	news      *database.NewsStore
	exclusion *database.ExclusionStore
	settings  *database.SettingsStore
	fetchLog  *database.FetchLogStore
}

func newTestStores(t *testing.T) *testStores {
	t.Helper()

	db, err := database.NewConnection(filepath.Join(t.TempDir(), "tasks.db"))
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if _, _, err := database.RunMigrations(db); err != nil {
		t.Fatalf("Failed to run migrations: %v", err)
	}

	return &testStores{
		db:        db,
		news:      database.NewNewsStore(db),
		exclusion: database.NewExclusionStore(db),
		settings:  database.NewSettingsStore(db),
		fetchLog:  database.NewFetchLogStore(db),
	}
}

// feedServer serves body with the given status and counts requests.
type feedServer struct {
	*httptest.Server
	mu     sync.Mutex
	body   string
	status int
	hits   int32
}

func newFeedServer(t *testing.T, body string, status int) *feedServer {
	t.Helper()

	fs := &feedServer{body: body, status: status}
	fs.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&fs.hits, 1)
		fs.mu.Lock()
		body, status := fs.body, fs.status
		fs.mu.Unlock()

		w.WriteHeader(status)
		w.Write([]byte(body))
	}))
	t.Cleanup(fs.Close)
	return fs
}

func (fs *feedServer) setBody(body string) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.body = body
}

func (fs *feedServer) requests() int {
	return int(atomic.LoadInt32(&fs.hits))
}

type fakeSourceProvider struct {
	sources []*feed.Source
}

func (f *fakeSourceProvider) GetEnabledSources() []*feed.Source {
	return f.sources
}

func testSource(name, url string) *feed.Source {
	return &feed.Source{
		Name:       name,
		URL:        url,
		Type:       name,
		SourceName: name + " Blaulicht",
		Settings:   feed.SourceSettings{Enabled: true, MaxItems: 100, Timeout: 5},
	}
}

type mockEnricher struct {
	mu         sync.Mutex
	enabled    bool
	dispatched [][]string
}

func (m *mockEnricher) Enabled() bool {
	return m.enabled
}

func (m *mockEnricher) Dispatch(ctx context.Context, ids []string) enrich.Report {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.dispatched = append(m.dispatched, append([]string(nil), ids...))
	return enrich.Report{Requested: len(ids), Succeeded: len(ids)}
}

func (m *mockEnricher) calls() [][]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dispatched
}

// staleLookupRepository misses every stored record, as a concurrent writer would.
type staleLookupRepository struct {
	*database.NewsStore
}

func (r *staleLookupRepository) GetExistingByLinks(ctx context.Context, links []string) (map[string]database.ExistingRecord, error) {
	return map[string]database.ExistingRecord{}, nil
}

func (r *staleLookupRepository) GetExistingByIDs(ctx context.Context, ids []string) (map[string]database.ExistingRecord, error) {
	return map[string]database.ExistingRecord{}, nil
}

type failingFetchLogRepository struct {
	attempts int32
}

func (f *failingFetchLogRepository) InsertFetchLog(ctx context.Context, entry database.FetchLogEntry) (int64, error) {
	atomic.AddInt32(&f.attempts, 1)
	return 0, errors.New("disk I/O error")
}

func (f *failingFetchLogRepository) GetLatestFetchLog(ctx context.Context) (*database.FetchLogEntry, error) {
	return nil, nil
}

func newTestPipeline(stores *testStores, enricher Enricher) *Pipeline {
	return &Pipeline{
		Fetcher:       feed.NewFetcher(http.DefaultClient, "ClaimDesk/test", 5*time.Second).WithBackoff(time.Millisecond),
		Parser:        feed.NewParser(),
		Filterer:      feed.NewFilterer(),
		Differ:        feed.NewDiffer(),
		NewsRepo:      stores.news,
		ExclusionRepo: stores.exclusion,
		Enricher:      enricher,
	}
}

func newTestIngestor(stores *testStores, enricher Enricher, sources ...*feed.Source) *Ingestor {
	return NewIngestor(
		&fakeSourceProvider{sources: sources},
		newTestPipeline(stores, enricher),
		stores.settings,
		NewFetchLogger(stores.fetchLog),
	)
}
