package tasks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/lysyi3m/claimdesk/app/database"
	"github.com/lysyi3m/claimdesk/app/feed"
)

// Pipeline bundles the collaborators every per-feed task needs.
type Pipeline struct {
	Fetcher       *feed.Fetcher
	Parser        *feed.Parser
	Filterer      *feed.Filterer
	Differ        *feed.Differ
	NewsRepo      database.NewsRepository
	ExclusionRepo database.ExclusionRepository
	Enricher      Enricher
}

// FeedResult is the outcome of processing one source.
type FeedResult struct {
	Feed         string
	Success      bool
	Parsed       int
	NewItems     int
	UpdatedItems int
	Unchanged    int
	Excluded     int
	Filtered     int
	Skipped      int
	AIProcessed  int
	Error        string
}

type ProcessFeedTask struct {
	Task
	Source   *feed.Source
	SkipAI   bool
	pipeline *Pipeline
}

func NewProcessFeedTask(source *feed.Source, pipeline *Pipeline, skipAI bool) *ProcessFeedTask {
	return &ProcessFeedTask{
		Task:     NewTask(TaskTypeProcessFeed, source.Name),
		Source:   source,
		SkipAI:   skipAI,
		pipeline: pipeline,
	}
}

func (t *ProcessFeedTask) Execute(ctx context.Context) error {
	result := t.Run(ctx)
	if !result.Success {
		return errors.New(result.Error)
	}
	return nil
}

// Run fetches, parses and stores one source. Failures are reported in the
// result; they never affect other sources.
func (t *ProcessFeedTask) Run(ctx context.Context) FeedResult {
	result := FeedResult{Feed: t.Source.SourceName}

	fail := func(err error) FeedResult {
		slog.Warn("Task failed", "type", "ProcessFeed", "feed", t.Source.Name, "duration", t.GetDuration(), "error", err)
		return FeedResult{Feed: t.Source.SourceName, Error: err.Error()}
	}

	select {
	case <-ctx.Done():
		return fail(ctx.Err())
	default:
	}

	data, err := t.pipeline.Fetcher.Fetch(ctx, t.Source.URL, time.Duration(t.Source.Settings.Timeout)*time.Second)
	if err != nil {
		return fail(fmt.Errorf("failed to fetch feed: %w", err))
	}

	raw, err := t.pipeline.Parser.Run(data)
	if err != nil {
		return fail(fmt.Errorf("failed to parse feed: %w", err))
	}

	items := t.pipeline.Filterer.Run(t.pipeline.Parser.Normalize(raw, t.Source), t.Source)
	result.Parsed = len(items)

	if len(items) == 0 {
		slog.Debug("No items found", "feed", t.Source.Name)
		result.Success = true
		return result
	}

	links := make([]string, 0, len(items))
	ids := make([]string, 0, len(items))
	for _, item := range items {
		if item.OriginalLink != "" {
			links = append(links, item.OriginalLink)
		}
		if item.ID != "" {
			ids = append(ids, item.ID)
		}
	}

	byLink, err := t.pipeline.NewsRepo.GetExistingByLinks(ctx, links)
	if err != nil {
		return fail(fmt.Errorf("failed to load existing news: %w", err))
	}

	byID, err := t.pipeline.NewsRepo.GetExistingByIDs(ctx, ids)
	if err != nil {
		return fail(fmt.Errorf("failed to load existing news: %w", err))
	}

	// Stored ids of link matches can differ from the feed ids.
	for _, rec := range byLink {
		ids = append(ids, rec.ID)
	}

	excluded, err := t.pipeline.ExclusionRepo.GetExcludedIDs(ctx, ids)
	if err != nil {
		return fail(fmt.Errorf("failed to load hidden news: %w", err))
	}

	plan := t.pipeline.Differ.Run(items, feed.Stored{ByLink: byLink, ByID: byID}, excluded)
	result.Unchanged = plan.Unchanged
	result.Excluded = plan.Excluded
	result.Filtered = plan.Filtered

	written := make(map[string]bool, len(plan.ToInsert)+len(plan.ToUpdate))
	var writeErrs []error
	if len(plan.ToInsert) > 0 {
		inserted, err := t.pipeline.NewsRepo.InsertNews(ctx, plan.ToInsert)
		if err != nil {
			writeErrs = append(writeErrs, fmt.Errorf("insert error: %w", err))
		}
		for _, id := range inserted {
			written[id] = true
		}
		result.NewItems = len(inserted)
		if err == nil && len(inserted) < len(plan.ToInsert) {
			result.Skipped = len(plan.ToInsert) - len(inserted)
			slog.Warn("Insert skipped records with existing ids", "feed", t.Source.Name, "skipped", result.Skipped)
		}
	}
	if len(plan.ToUpdate) > 0 {
		updated, err := t.pipeline.NewsRepo.UpsertNews(ctx, plan.ToUpdate)
		if err != nil {
			writeErrs = append(writeErrs, fmt.Errorf("update error: %w", err))
		} else {
			for _, record := range plan.ToUpdate {
				written[record.ID] = true
			}
		}
		result.UpdatedItems = updated
	}
	if len(writeErrs) > 0 {
		return fail(errors.Join(writeErrs...))
	}

	var toEnrich []string
	for _, id := range plan.ToEnrich {
		if written[id] {
			toEnrich = append(toEnrich, id)
		}
	}

	if len(toEnrich) > 0 && !t.SkipAI && t.pipeline.Enricher != nil && t.pipeline.Enricher.Enabled() {
		report := t.pipeline.Enricher.Dispatch(ctx, toEnrich)
		result.AIProcessed = report.Succeeded
	}

	result.Success = true

	slog.Info("Task completed",
		"type", "ProcessFeed",
		"feed", t.Source.Name,
		"duration", t.GetDuration(),
		"total", len(items),
		"filtered", plan.Filtered,
		"excluded", plan.Excluded,
		"unchanged", plan.Unchanged,
		"skipped", result.Skipped,
		"new", result.NewItems,
		"updated", result.UpdatedItems,
		"ai_processed", result.AIProcessed)

	return result
}
