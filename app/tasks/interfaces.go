package tasks

import (
	"context"

	"github.com/lysyi3m/claimdesk/app/enrich"
	"github.com/lysyi3m/claimdesk/app/feed"
)

// TaskSchedulerInterface defines the interface for task scheduling operations.
// Used by the main application to run periodic ingestion and enrichment.
// Example usage:
//
//	scheduler := NewScheduler(ingestor, dispatcher, newsRepo, sourceCache, interval, workerCount, pendingLimit)
//	scheduler.Start()
//	defer scheduler.Stop()
//	scheduler.EnqueueTask(NewIngestRunTask(ingestor))
type TaskSchedulerInterface interface {
	Start()
	Stop()
	EnqueueTask(task TaskInterface) error
}

// Runner executes one ingestion run over all enabled sources.
type Runner interface {
	Run(ctx context.Context, opts RunOptions) RunReport
}

// Enricher classifies freshly stored records. Implemented by enrich.Dispatcher.
type Enricher interface {
	Enabled() bool
	Dispatch(ctx context.Context, ids []string) enrich.Report
}

type SourceProvider interface {
	GetEnabledSources() []*feed.Source
}

var (
	_ Enricher       = (*enrich.Dispatcher)(nil)
	_ SourceProvider = (*feed.SourceCache)(nil)
)
