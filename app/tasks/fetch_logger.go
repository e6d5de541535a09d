package tasks

import (
	"context"
	"log/slog"
	"time"

	"github.com/lysyi3m/claimdesk/app/database"
)

// FetchLogger appends one fetch-log entry per ingestion run. Store failures
// are logged and swallowed.
type FetchLogger struct {
	repo database.FetchLogRepository
	now  func() time.Time
}

func NewFetchLogger(repo database.FetchLogRepository) *FetchLogger {
	return &FetchLogger{
		repo: repo,
		now:  time.Now,
	}
}

func (l *FetchLogger) LogRun(ctx context.Context, startedAt time.Time, results []FeedResult, triggeredBy string) database.FetchLogEntry {
	completedAt := l.now()

	entry := database.FetchLogEntry{
		StartedAt:        startedAt.UTC(),
		CompletedAt:      completedAt.UTC(),
		TotalFeeds:       len(results),
		TriggeredBy:      triggeredBy,
		ProcessingTimeMs: completedAt.Sub(startedAt).Milliseconds(),
	}

	for _, result := range results {
		if !result.Success {
			entry.FailedFeeds++
			entry.ErrorDetails = append(entry.ErrorDetails, database.FeedError{Feed: result.Feed, Error: result.Error})
			continue
		}
		entry.SuccessfulFeeds++
		entry.NewItemsCount += result.NewItems
		entry.UpdatedItemsCount += result.UpdatedItems
		entry.AIProcessedCount += result.AIProcessed
	}

	id, err := l.repo.InsertFetchLog(ctx, entry)
	if err != nil {
		slog.Warn("Failed to store fetch log, logging inline",
			"triggered_by", triggeredBy,
			"total_feeds", entry.TotalFeeds,
			"successful_feeds", entry.SuccessfulFeeds,
			"failed_feeds", entry.FailedFeeds,
			"new", entry.NewItemsCount,
			"updated", entry.UpdatedItemsCount,
			"ai_processed", entry.AIProcessedCount,
			"processing_time_ms", entry.ProcessingTimeMs,
			"error", err)
		return entry
	}

	entry.ID = id
	slog.Debug("Fetch attempt logged", "id", id, "triggered_by", triggeredBy, "successful_feeds", entry.SuccessfulFeeds, "total_feeds", entry.TotalFeeds)
	return entry
}
