package tasks

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/lysyi3m/claimdesk/app/feed"
)

// ReloadSourcesTask re-reads the feed source files so edits in FEEDS_DIR
// apply without a restart.
type ReloadSourcesTask struct {
	Task
	sourceCache *feed.SourceCache
}

func NewReloadSourcesTask(sourceCache *feed.SourceCache) *ReloadSourcesTask {
	return &ReloadSourcesTask{
		Task:        NewTask(TaskTypeReloadSources, "all"),
		sourceCache: sourceCache,
	}
}

func (t *ReloadSourcesTask) Execute(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	if err := t.sourceCache.Run(); err != nil {
		slog.Error("Task failed", "type", "ReloadSources", "error", err)
		return fmt.Errorf("failed to reload feed sources: %w", err)
	}

	slog.Debug("Task completed",
		"type", "ReloadSources",
		"duration", t.GetDuration(),
		"sources", t.sourceCache.GetSourceCount())

	return nil
}
