package tasks

import (
	"context"
	"net/http"
	"strings"
	"testing"

	"github.com/lysyi3m/claimdesk/app/database"
	"github.com/lysyi3m/claimdesk/app/feed"
)

func TestIngestorBrandInHamburg(t *testing.T) {
	ctx := context.Background()
	stores := newTestStores(t)
	server := newFeedServer(t, brandInHamburgFeed, http.StatusOK)
	enricher := &mockEnricher{enabled: true}
	ingestor := newTestIngestor(stores, enricher, testSource("presseportal", server.URL))

	report := ingestor.Run(ctx, RunOptions{})

	if report.Status() != http.StatusOK {
		t.Errorf("Expected status 200, got %d", report.Status())
	}
	if report.Message != "All feeds processed successfully" {
		t.Errorf("Expected success message, got '%s'", report.Message)
	}
	if report.TriggeredBy != database.TriggeredByManual {
		t.Errorf("Expected triggeredBy 'manual', got '%s'", report.TriggeredBy)
	}
	if report.NewItems != 1 {
		t.Errorf("Expected 1 new item, got %d", report.NewItems)
	}
	if report.AIProcessed != 1 {
		t.Errorf("Expected 1 AI processed item, got %d", report.AIProcessed)
	}

	record, err := stores.news.GetNews(ctx, "news-1")
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if record == nil {
		t.Fatal("Expected record to be stored")
	}
	if record.Location != "Hamburg" {
		t.Errorf("Expected location 'Hamburg', got '%s'", record.Location)
	}
	if strings.Join(record.Keywords, ",") != "Brand,Feuer" {
		t.Errorf("Expected keywords [Brand Feuer], got %v", record.Keywords)
	}
	if record.Source != "presseportal Blaulicht" {
		t.Errorf("Expected source 'presseportal Blaulicht', got '%s'", record.Source)
	}
	if record.OriginalLink != "https://example.com/news/1" {
		t.Errorf("Expected original link, got '%s'", record.OriginalLink)
	}

	calls := enricher.calls()
	if len(calls) != 1 || len(calls[0]) != 1 || calls[0][0] != "news-1" {
		t.Errorf("Expected enrichment of [news-1], got %v", calls)
	}

	entry, err := stores.fetchLog.GetLatestFetchLog(ctx)
	if err != nil || entry == nil {
		t.Fatalf("Expected fetch log entry, got %v (err %v)", entry, err)
	}
	if entry.TriggeredBy != database.TriggeredByManual || entry.NewItemsCount != 1 || entry.SuccessfulFeeds != 1 {
		t.Errorf("Unexpected fetch log entry: %+v", entry)
	}
}

func TestIngestorIsIdempotent(t *testing.T) {
	ctx := context.Background()
	stores := newTestStores(t)
	server := newFeedServer(t, brandInHamburgFeed, http.StatusOK)
	enricher := &mockEnricher{enabled: true}
	ingestor := newTestIngestor(stores, enricher, testSource("presseportal", server.URL))

	ingestor.Run(ctx, RunOptions{})
	report := ingestor.Run(ctx, RunOptions{})

	if report.NewItems != 0 || report.UpdatedItems != 0 {
		t.Errorf("Expected no writes on second run, got %d new / %d updated", report.NewItems, report.UpdatedItems)
	}
	if report.Results[0].Unchanged != 1 {
		t.Errorf("Expected 1 unchanged item, got %d", report.Results[0].Unchanged)
	}
	if len(enricher.calls()) != 1 {
		t.Errorf("Expected a single enrichment dispatch, got %d", len(enricher.calls()))
	}

	records, err := stores.news.ListNews(ctx, 10)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if len(records) != 1 {
		t.Errorf("Expected 1 stored record, got %d", len(records))
	}
}

func TestIngestorUpdatesChangedContent(t *testing.T) {
	ctx := context.Background()
	stores := newTestStores(t)
	server := newFeedServer(t, brandInHamburgFeed, http.StatusOK)
	enricher := &mockEnricher{enabled: true}
	ingestor := newTestIngestor(stores, enricher, testSource("presseportal", server.URL))

	ingestor.Run(ctx, RunOptions{})

	server.setBody(strings.ReplaceAll(strings.ReplaceAll(brandInHamburgFeed,
		"Feuer in einer Lagerhalle", "Feuer in einer Lagerhalle, zwei Verletzte"),
		"<guid>news-1</guid>", "<guid>news-1-v2</guid>"))

	report := ingestor.Run(ctx, RunOptions{})

	if report.UpdatedItems != 1 {
		t.Errorf("Expected 1 updated item, got %d", report.UpdatedItems)
	}
	if report.NewItems != 0 {
		t.Errorf("Expected 0 new items, got %d", report.NewItems)
	}

	record, err := stores.news.GetNews(ctx, "news-1")
	if err != nil || record == nil {
		t.Fatalf("Expected original id to be kept, got %v (err %v)", record, err)
	}
	if record.Summary != "Feuer in einer Lagerhalle, zwei Verletzte" {
		t.Errorf("Expected updated summary, got '%s'", record.Summary)
	}
	if again, _ := stores.news.GetNews(ctx, "news-1-v2"); again != nil {
		t.Error("Expected no record under the new guid")
	}
	if len(enricher.calls()) != 1 {
		t.Errorf("Expected no re-enrichment for a record without enrichment, got %d dispatches", len(enricher.calls()))
	}
}

func TestIngestorFollowsMovedLink(t *testing.T) {
	ctx := context.Background()
	stores := newTestStores(t)
	server := newFeedServer(t, brandInHamburgFeed, http.StatusOK)
	enricher := &mockEnricher{enabled: true}
	ingestor := newTestIngestor(stores, enricher, testSource("presseportal", server.URL))

	ingestor.Run(ctx, RunOptions{})

	server.setBody(strings.ReplaceAll(strings.ReplaceAll(brandInHamburgFeed,
		"https://example.com/news/1", "https://example.com/news/1?ref=rss"),
		"Feuer in einer Lagerhalle", "Feuer in einer Lagerhalle, Dach eingestürzt"))

	for run := 2; run <= 4; run++ {
		report := ingestor.Run(ctx, RunOptions{})
		if report.Status() != http.StatusOK {
			t.Errorf("Run %d: expected status 200, got %d", run, report.Status())
		}
		if report.NewItems != 0 {
			t.Errorf("Run %d: expected 0 new items, got %d", run, report.NewItems)
		}
		if report.AIProcessed != 0 {
			t.Errorf("Run %d: expected no enrichment, got %d", run, report.AIProcessed)
		}
		expectedUpdates := 0
		if run == 2 {
			expectedUpdates = 1
		}
		if report.UpdatedItems != expectedUpdates {
			t.Errorf("Run %d: expected %d updated items, got %d", run, expectedUpdates, report.UpdatedItems)
		}
	}

	record, err := stores.news.GetNews(ctx, "news-1")
	if err != nil || record == nil {
		t.Fatalf("Expected record under the stable guid, got %v (err %v)", record, err)
	}
	if record.Summary != "Feuer in einer Lagerhalle, Dach eingestürzt" {
		t.Errorf("Expected updated summary, got '%s'", record.Summary)
	}
	if record.OriginalLink != "https://example.com/news/1?ref=rss" {
		t.Errorf("Expected new link to be stored, got '%s'", record.OriginalLink)
	}
	if len(enricher.calls()) != 1 {
		t.Errorf("Expected only the first run to dispatch enrichment, got %v", enricher.calls())
	}
}

func TestProcessFeedEnrichesOnlyWrittenRecords(t *testing.T) {
	ctx := context.Background()
	stores := newTestStores(t)
	server := newFeedServer(t, brandInHamburgFeed, http.StatusOK)
	enricher := &mockEnricher{enabled: true}
	pipeline := newTestPipeline(stores, enricher)
	pipeline.NewsRepo = &staleLookupRepository{NewsStore: stores.news}

	if _, err := stores.news.InsertNews(ctx, []database.NewsRecord{{
		ID:           "news-1",
		Title:        "Brand in Hamburg",
		OriginalLink: "https://example.com/elsewhere",
		ContentHash:  "1",
	}}); err != nil {
		t.Fatalf("Failed to seed record: %v", err)
	}

	result := NewProcessFeedTask(testSource("presseportal", server.URL), pipeline, false).Run(ctx)

	if !result.Success {
		t.Fatalf("Expected success, got error '%s'", result.Error)
	}
	if result.NewItems != 0 || result.Skipped != 1 {
		t.Errorf("Expected 0 new and 1 skipped, got %d/%d", result.NewItems, result.Skipped)
	}
	if len(enricher.calls()) != 0 {
		t.Errorf("Expected no enrichment for a skipped insert, got %v", enricher.calls())
	}
}

func TestIngestorRespectsExclusions(t *testing.T) {
	ctx := context.Background()
	stores := newTestStores(t)
	server := newFeedServer(t, brandInHamburgFeed, http.StatusOK)
	ingestor := newTestIngestor(stores, &mockEnricher{enabled: true}, testSource("presseportal", server.URL))

	if err := stores.exclusion.ExcludeNews(ctx, "news-1"); err != nil {
		t.Fatalf("Failed to exclude: %v", err)
	}

	report := ingestor.Run(ctx, RunOptions{})

	if report.NewItems != 0 {
		t.Errorf("Expected hidden item not to be inserted, got %d", report.NewItems)
	}
	if report.Results[0].Excluded != 1 {
		t.Errorf("Expected 1 excluded item, got %d", report.Results[0].Excluded)
	}
}

func TestIngestorPartialFailure(t *testing.T) {
	ctx := context.Background()
	stores := newTestStores(t)
	good := newFeedServer(t, brandInHamburgFeed, http.StatusOK)
	bad := newFeedServer(t, "unavailable", http.StatusServiceUnavailable)
	ingestor := newTestIngestor(stores, &mockEnricher{enabled: true},
		testSource("presseportal", good.URL),
		testSource("google", bad.URL))

	report := ingestor.Run(ctx, RunOptions{})

	if report.Status() != http.StatusMultiStatus {
		t.Errorf("Expected status 207, got %d", report.Status())
	}
	if report.Message != "Feeds processed with some errors" {
		t.Errorf("Expected partial message, got '%s'", report.Message)
	}
	if len(report.SuccessfulFeeds) != 1 || report.SuccessfulFeeds[0] != "presseportal Blaulicht" {
		t.Errorf("Expected presseportal to succeed, got %v", report.SuccessfulFeeds)
	}
	if len(report.FailedFeeds) != 1 || report.FailedFeeds[0] != "google Blaulicht" {
		t.Errorf("Expected google to fail, got %v", report.FailedFeeds)
	}
	if len(report.Errors) != 1 || !strings.HasPrefix(report.Errors[0], "google Blaulicht: ") {
		t.Errorf("Expected error prefixed with feed name, got %v", report.Errors)
	}
	if report.NewItems != 1 {
		t.Errorf("Expected the healthy feed to be stored, got %d new", report.NewItems)
	}
	if bad.requests() != 3 {
		t.Errorf("Expected 3 fetch attempts, got %d", bad.requests())
	}

	entry, _ := stores.fetchLog.GetLatestFetchLog(ctx)
	if entry == nil || entry.FailedFeeds != 1 || len(entry.ErrorDetails) != 1 {
		t.Errorf("Expected failure in fetch log, got %+v", entry)
	}
}

func TestIngestorAllFeedsFailed(t *testing.T) {
	stores := newTestStores(t)
	bad := newFeedServer(t, "<html>kein Feed</html>", http.StatusOK)
	ingestor := newTestIngestor(stores, nil, testSource("broken", bad.URL))

	report := ingestor.Run(context.Background(), RunOptions{})

	if report.Status() != http.StatusInternalServerError {
		t.Errorf("Expected status 500, got %d", report.Status())
	}
	if report.Message != "All feeds failed to process" {
		t.Errorf("Expected failure message, got '%s'", report.Message)
	}
}

func TestIngestorScheduledRunSkippedWhenDisabled(t *testing.T) {
	ctx := context.Background()
	stores := newTestStores(t)
	server := newFeedServer(t, brandInHamburgFeed, http.StatusOK)
	ingestor := newTestIngestor(stores, nil, testSource("presseportal", server.URL))

	if _, err := stores.db.Exec(`UPDATE app_settings SET setting_value = 'false' WHERE setting_key = 'auto_refresh_enabled'`); err != nil {
		t.Fatalf("Failed to disable auto refresh: %v", err)
	}

	report := ingestor.Run(ctx, RunOptions{Scheduled: true})

	if !report.Skipped {
		t.Error("Expected scheduled run to be skipped")
	}
	if report.Status() != http.StatusOK {
		t.Errorf("Expected status 200, got %d", report.Status())
	}
	if server.requests() != 0 {
		t.Errorf("Expected no fetches, got %d", server.requests())
	}

	entry, _ := stores.fetchLog.GetLatestFetchLog(ctx)
	if entry == nil || entry.TriggeredBy != database.TriggeredByCronSkipped {
		t.Errorf("Expected cron_skipped log entry, got %+v", entry)
	}
	if entry != nil && entry.SuccessfulFeeds != 1 {
		t.Errorf("Expected skipped sources to be logged as successful, got %d", entry.SuccessfulFeeds)
	}

	manual := ingestor.Run(ctx, RunOptions{})
	if manual.Skipped || manual.NewItems != 1 {
		t.Errorf("Expected manual run to ignore the setting, got skipped=%v new=%d", manual.Skipped, manual.NewItems)
	}
}

func TestIngestorScheduledRunWithMissingSettingsTable(t *testing.T) {
	ctx := context.Background()
	stores := newTestStores(t)
	server := newFeedServer(t, brandInHamburgFeed, http.StatusOK)
	ingestor := newTestIngestor(stores, nil, testSource("presseportal", server.URL))

	if _, err := stores.db.Exec(`DROP TABLE app_settings`); err != nil {
		t.Fatalf("Failed to drop settings table: %v", err)
	}

	report := ingestor.Run(ctx, RunOptions{Scheduled: true})

	if report.Skipped {
		t.Error("Expected run to proceed when the setting is unavailable")
	}
	if report.TriggeredBy != database.TriggeredByCron {
		t.Errorf("Expected triggeredBy 'cron', got '%s'", report.TriggeredBy)
	}
	if report.NewItems != 1 {
		t.Errorf("Expected 1 new item, got %d", report.NewItems)
	}
}

func TestIngestorSkipAI(t *testing.T) {
	stores := newTestStores(t)
	server := newFeedServer(t, brandInHamburgFeed, http.StatusOK)
	enricher := &mockEnricher{enabled: true}
	ingestor := newTestIngestor(stores, enricher, testSource("presseportal", server.URL))

	report := ingestor.Run(context.Background(), RunOptions{SkipAI: true})

	if report.NewItems != 1 {
		t.Errorf("Expected 1 new item, got %d", report.NewItems)
	}
	if len(enricher.calls()) != 0 {
		t.Errorf("Expected no enrichment, got %v", enricher.calls())
	}
}

func TestIngestorLogFailureDoesNotFailRun(t *testing.T) {
	stores := newTestStores(t)
	server := newFeedServer(t, brandInHamburgFeed, http.StatusOK)
	logRepo := &failingFetchLogRepository{}
	ingestor := NewIngestor(
		&fakeSourceProvider{sources: []*feed.Source{testSource("presseportal", server.URL)}},
		newTestPipeline(stores, nil),
		stores.settings,
		NewFetchLogger(logRepo),
	)

	report := ingestor.Run(context.Background(), RunOptions{})

	if report.Status() != http.StatusOK {
		t.Errorf("Expected status 200, got %d", report.Status())
	}
	if logRepo.attempts != 1 {
		t.Errorf("Expected 1 log attempt, got %d", logRepo.attempts)
	}
}

func TestIngestorRecoversPanics(t *testing.T) {
	stores := newTestStores(t)
	server := newFeedServer(t, brandInHamburgFeed, http.StatusOK)
	pipeline := newTestPipeline(stores, nil)
	pipeline.Fetcher = nil

	ingestor := NewIngestor(
		&fakeSourceProvider{sources: []*feed.Source{testSource("presseportal", server.URL)}},
		pipeline,
		stores.settings,
		NewFetchLogger(stores.fetchLog),
	)

	report := ingestor.Run(context.Background(), RunOptions{})

	if report.Status() != http.StatusInternalServerError {
		t.Errorf("Expected status 500, got %d", report.Status())
	}
	if len(report.Errors) != 1 || !strings.Contains(report.Errors[0], "unexpected failure") {
		t.Errorf("Expected recovered panic in errors, got %v", report.Errors)
	}
}

func TestIngestorWithoutSources(t *testing.T) {
	stores := newTestStores(t)
	ingestor := newTestIngestor(stores, nil)

	report := ingestor.Run(context.Background(), RunOptions{})

	if report.Status() != http.StatusOK {
		t.Errorf("Expected status 200, got %d", report.Status())
	}
	if report.Message != "No enabled feed sources" {
		t.Errorf("Expected empty message, got '%s'", report.Message)
	}

	entry, _ := stores.fetchLog.GetLatestFetchLog(context.Background())
	if entry == nil || entry.TotalFeeds != 0 {
		t.Errorf("Expected zero-feed run to be logged, got %+v", entry)
	}
}

func TestRunReportStatus(t *testing.T) {
	tests := []struct {
		name     string
		report   RunReport
		expected int
	}{
		{"no feeds", RunReport{}, http.StatusOK},
		{"all ok", RunReport{SuccessfulFeeds: []string{"a", "b"}}, http.StatusOK},
		{"partial", RunReport{SuccessfulFeeds: []string{"a"}, FailedFeeds: []string{"b"}}, http.StatusMultiStatus},
		{"all failed", RunReport{FailedFeeds: []string{"a", "b"}}, http.StatusInternalServerError},
		{"skipped", RunReport{Skipped: true}, http.StatusOK},
	}

	for _, tt := range tests {
		if got := tt.report.Status(); got != tt.expected {
			t.Errorf("%s: expected %d, got %d", tt.name, tt.expected, got)
		}
	}
}
