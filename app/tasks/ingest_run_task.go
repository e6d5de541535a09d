package tasks

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
)

// IngestRunTask is the scheduled counterpart of GET /api/news?forceRefresh=true.
type IngestRunTask struct {
	Task
	runner Runner
}

func NewIngestRunTask(runner Runner) *IngestRunTask {
	return &IngestRunTask{
		Task:   NewTask(TaskTypeIngestRun, "all"),
		runner: runner,
	}
}

func (t *IngestRunTask) Execute(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	report := t.runner.Run(ctx, RunOptions{Scheduled: true})
	if report.Status() == http.StatusInternalServerError {
		return fmt.Errorf("all feeds failed: %s", strings.Join(report.Errors, "; "))
	}

	slog.Info("Task completed",
		"type", "IngestRun",
		"duration", t.GetDuration(),
		"skipped", report.Skipped,
		"new", report.NewItems,
		"updated", report.UpdatedItems,
		"failed_feeds", len(report.FailedFeeds))

	return nil
}
