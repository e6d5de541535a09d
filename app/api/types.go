package api

import (
	"context"
	"time"

	"github.com/lysyi3m/claimdesk/app/database"
	"github.com/lysyi3m/claimdesk/app/enrich"
	"github.com/lysyi3m/claimdesk/app/feed"
	"github.com/lysyi3m/claimdesk/app/tasks"
)

type GeneratorInterface interface {
	Run(records []database.NewsRecord) (string, error)
}

// EnrichmentService is the on-demand side of the enrichment dispatcher.
type EnrichmentService interface {
	Enabled() bool
	EnrichOne(ctx context.Context, id string) (database.Enrichment, error)
	EnrichMany(ctx context.Context, ids []string) enrich.Report
}

type SourceCounter interface {
	GetSourceCount() int
}

var (
	_ GeneratorInterface = (*feed.Generator)(nil)
	_ EnrichmentService  = (*enrich.Dispatcher)(nil)
	_ SourceCounter      = (*feed.SourceCache)(nil)
)

type Handler struct {
	runner        tasks.Runner
	enricher      EnrichmentService
	newsRepo      database.NewsRepository
	exclusionRepo database.ExclusionRepository
	fetchLogRepo  database.FetchLogRepository
	generator     GeneratorInterface
	sources       SourceCounter
	feedLimit     int
	now           func() time.Time
}

type newsResponse struct {
	Success           bool     `json:"success"`
	Message           string   `json:"message"`
	NewItemsCount     int      `json:"newItemsCount"`
	UpdatedItemsCount int      `json:"updatedItemsCount"`
	AIProcessedCount  int      `json:"aiProcessedCount"`
	ProcessingTimeMs  int64    `json:"processingTimeMs"`
	SuccessfulFeeds   []string `json:"successfulFeeds"`
	FailedFeeds       []string `json:"failedFeeds"`
	TriggeredBy       string   `json:"triggeredBy"`
	Errors            []string `json:"errors,omitempty"`
	Skipped           bool     `json:"skipped,omitempty"`
}

type summaryRequest struct {
	NewsID string `json:"newsId"`
}

type batchSummaryRequest struct {
	NewsIDs []string `json:"newsIds"`
}

type summaryResponse struct {
	Success bool `json:"success"`
	database.Enrichment
}

type batchItemResponse struct {
	ID             string   `json:"id"`
	Success        bool     `json:"success"`
	Summary        string   `json:"summary,omitempty"`
	KeyPoints      []string `json:"keyPoints,omitempty"`
	Severity       string   `json:"severity,omitempty"`
	DamageCategory string   `json:"damageCategory,omitempty"`
	Error          string   `json:"error,omitempty"`
}

type batchSummaryResponse struct {
	Success      bool                `json:"success"`
	Processed    int                 `json:"processed"`
	SuccessCount int                 `json:"successCount"`
	ErrorCount   int                 `json:"errorCount"`
	Results      []batchItemResponse `json:"results"`
}

type newsItemResponse struct {
	ID           string               `json:"id"`
	Title        string               `json:"title"`
	Summary      string               `json:"summary"`
	PublishedAt  time.Time            `json:"publishedAt"`
	Source       string               `json:"source"`
	Location     string               `json:"location"`
	Keywords     []string             `json:"keywords"`
	OriginalLink string               `json:"originalLink"`
	FeedType     string               `json:"feedType"`
	CreatedAt    time.Time            `json:"createdAt"`
	UpdatedAt    time.Time            `json:"updatedAt"`
	Enrichment   *database.Enrichment `json:"enrichment,omitempty"`
}
