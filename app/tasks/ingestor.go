package tasks

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/lysyi3m/claimdesk/app/database"
)

type RunOptions struct {
	// Scheduled runs honour the auto-refresh setting and are logged as cron.
	Scheduled bool
	SkipAI    bool
}

type RunReport struct {
	Message         string
	TriggeredBy     string
	Skipped         bool
	NewItems        int
	UpdatedItems    int
	AIProcessed     int
	SuccessfulFeeds []string
	FailedFeeds     []string
	Errors          []string
	ProcessingTime  time.Duration
	Results         []FeedResult
}

// Status maps the run outcome to an HTTP status code.
func (r RunReport) Status() int {
	switch {
	case len(r.FailedFeeds) > 0 && len(r.SuccessfulFeeds) == 0:
		return http.StatusInternalServerError
	case len(r.FailedFeeds) > 0:
		return http.StatusMultiStatus
	default:
		return http.StatusOK
	}
}

type Ingestor struct {
	sources      SourceProvider
	pipeline     *Pipeline
	settingsRepo database.SettingsRepository
	logger       *FetchLogger
	now          func() time.Time
	mu           sync.Mutex
}

var _ Runner = (*Ingestor)(nil)

func NewIngestor(sources SourceProvider, pipeline *Pipeline, settingsRepo database.SettingsRepository, logger *FetchLogger) *Ingestor {
	return &Ingestor{
		sources:      sources,
		pipeline:     pipeline,
		settingsRepo: settingsRepo,
		logger:       logger,
		now:          time.Now,
	}
}

// Run processes all enabled sources in parallel and logs the attempt. Runs
// are serialized so concurrent triggers do not race on the same links.
func (i *Ingestor) Run(ctx context.Context, opts RunOptions) RunReport {
	i.mu.Lock()
	defer i.mu.Unlock()

	startedAt := i.now()
	sources := i.sources.GetEnabledSources()

	triggeredBy := database.TriggeredByManual
	if opts.Scheduled {
		triggeredBy = database.TriggeredByCron
	}

	if opts.Scheduled && !i.autoRefreshEnabled(ctx) {
		slog.Info("Auto-refresh is disabled, skipping feed processing")

		results := make([]FeedResult, 0, len(sources))
		for _, source := range sources {
			results = append(results, FeedResult{Feed: source.SourceName, Success: true})
		}
		i.logger.LogRun(ctx, startedAt, results, database.TriggeredByCronSkipped)

		return RunReport{
			Message:        "Auto-refresh is currently disabled",
			TriggeredBy:    database.TriggeredByCronSkipped,
			Skipped:        true,
			ProcessingTime: i.now().Sub(startedAt),
		}
	}

	slog.Debug("Starting feed processing", "feeds", len(sources), "triggered_by", triggeredBy, "skip_ai", opts.SkipAI)

	results := make([]FeedResult, len(sources))
	var wg sync.WaitGroup
	for idx, source := range sources {
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					slog.Error("Feed processing panicked", "feed", source.Name, "panic", r)
					results[idx] = FeedResult{Feed: source.SourceName, Error: fmt.Sprintf("unexpected failure: %v", r)}
				}
			}()

			task := NewProcessFeedTask(source, i.pipeline, opts.SkipAI)
			task.Start()
			results[idx] = task.Run(ctx)
		}()
	}
	wg.Wait()

	i.logger.LogRun(ctx, startedAt, results, triggeredBy)

	report := RunReport{TriggeredBy: triggeredBy, Results: results}
	for _, result := range results {
		if !result.Success {
			report.FailedFeeds = append(report.FailedFeeds, result.Feed)
			report.Errors = append(report.Errors, fmt.Sprintf("%s: %s", result.Feed, result.Error))
			continue
		}
		report.SuccessfulFeeds = append(report.SuccessfulFeeds, result.Feed)
		report.NewItems += result.NewItems
		report.UpdatedItems += result.UpdatedItems
		report.AIProcessed += result.AIProcessed
	}

	switch {
	case len(sources) == 0:
		report.Message = "No enabled feed sources"
	case len(report.FailedFeeds) == 0:
		report.Message = "All feeds processed successfully"
	case len(report.SuccessfulFeeds) == 0:
		report.Message = "All feeds failed to process"
	default:
		report.Message = "Feeds processed with some errors"
	}
	report.ProcessingTime = i.now().Sub(startedAt)

	slog.Info("Feed processing completed",
		"triggered_by", triggeredBy,
		"duration", report.ProcessingTime,
		"successful_feeds", len(report.SuccessfulFeeds),
		"failed_feeds", len(report.FailedFeeds),
		"new", report.NewItems,
		"updated", report.UpdatedItems,
		"ai_processed", report.AIProcessed)

	return report
}

func (i *Ingestor) autoRefreshEnabled(ctx context.Context) bool {
	enabled, err := i.settingsRepo.GetAutoRefreshEnabled(ctx)
	if err != nil {
		slog.Warn("Could not check auto-refresh setting, using default", "enabled", true, "error", err)
		return true
	}
	return enabled
}
