package tasks

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/lysyi3m/claimdesk/app/database"
)

// EnrichPendingTask picks up visible records that still have no enrichment,
// e.g. after a run with skipAI or a failed classification.
type EnrichPendingTask struct {
	Task
	newsRepo database.NewsRepository
	enricher Enricher
	limit    int
}

func NewEnrichPendingTask(newsRepo database.NewsRepository, enricher Enricher, limit int) *EnrichPendingTask {
	return &EnrichPendingTask{
		Task:     NewTask(TaskTypeEnrichPending, "all"),
		newsRepo: newsRepo,
		enricher: enricher,
		limit:    limit,
	}
}

func (t *EnrichPendingTask) Execute(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	if t.enricher == nil || !t.enricher.Enabled() || t.limit <= 0 {
		return nil
	}

	records, err := t.newsRepo.GetNewsWithoutEnrichment(ctx, t.limit)
	if err != nil {
		return fmt.Errorf("failed to load pending news: %w", err)
	}
	if len(records) == 0 {
		slog.Debug("No pending news for enrichment")
		return nil
	}

	ids := make([]string, 0, len(records))
	for _, record := range records {
		ids = append(ids, record.ID)
	}

	report := t.enricher.Dispatch(ctx, ids)

	slog.Info("Task completed",
		"type", "EnrichPending",
		"duration", t.GetDuration(),
		"pending", len(ids),
		"succeeded", report.Succeeded,
		"failed", report.Failed)

	return nil
}
