package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lysyi3m/claimdesk/app/database"
	"github.com/lysyi3m/claimdesk/app/enrich"
	"github.com/lysyi3m/claimdesk/app/tasks"
)

const (
	defaultFeedLimit = 50
	maxListLimit     = 200
)

func NewHandler(runner tasks.Runner, enricher EnrichmentService, newsRepo database.NewsRepository,
	exclusionRepo database.ExclusionRepository, fetchLogRepo database.FetchLogRepository,
	generator GeneratorInterface, sources SourceCounter) *Handler {
	return &Handler{
		runner:        runner,
		enricher:      enricher,
		newsRepo:      newsRepo,
		exclusionRepo: exclusionRepo,
		fetchLogRepo:  fetchLogRepo,
		generator:     generator,
		sources:       sources,
		feedLimit:     defaultFeedLimit,
		now:           time.Now,
	}
}

// GetNews runs one ingestion pass. forceRefresh=true is how the cron job
// calls in, so it is treated as a scheduled run.
func (h *Handler) GetNews(c *gin.Context) {
	startedAt := h.now()
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Ingestion run panicked", "panic", r)
			c.JSON(http.StatusInternalServerError, gin.H{
				"success":          false,
				"error":            "Failed to fetch news",
				"processingTimeMs": h.now().Sub(startedAt).Milliseconds(),
			})
		}
	}()

	opts := tasks.RunOptions{
		Scheduled: queryBool(c, "forceRefresh"),
		SkipAI:    queryBool(c, "skipAI"),
	}

	report := h.runner.Run(c.Request.Context(), opts)
	status := report.Status()

	c.JSON(status, newsResponse{
		Success:           status != http.StatusInternalServerError,
		Message:           report.Message,
		NewItemsCount:     report.NewItems,
		UpdatedItemsCount: report.UpdatedItems,
		AIProcessedCount:  report.AIProcessed,
		ProcessingTimeMs:  report.ProcessingTime.Milliseconds(),
		SuccessfulFeeds:   nonNil(report.SuccessfulFeeds),
		FailedFeeds:       nonNil(report.FailedFeeds),
		TriggeredBy:       report.TriggeredBy,
		Errors:            report.Errors,
		Skipped:           report.Skipped,
	})
}

func (h *Handler) PostSummary(c *gin.Context) {
	var req summaryRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.NewsID) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "News ID ist erforderlich"})
		return
	}

	if !h.enricher.Enabled() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"success": false, "error": "AI enrichment is not configured"})
		return
	}

	enrichment, err := h.enricher.EnrichOne(c.Request.Context(), req.NewsID)
	switch {
	case errors.Is(err, enrich.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "News-Artikel nicht gefunden"})
		return
	case errors.Is(err, enrich.ErrNotConfigured):
		c.JSON(http.StatusServiceUnavailable, gin.H{"success": false, "error": "AI enrichment is not configured"})
		return
	case err != nil:
		slog.Error("Enrichment failed", "id", req.NewsID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, summaryResponse{Success: true, Enrichment: enrichment})
}

func (h *Handler) PostBatchSummary(c *gin.Context) {
	var req batchSummaryRequest
	if err := c.ShouldBindJSON(&req); err != nil || len(req.NewsIDs) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "News IDs sind erforderlich"})
		return
	}

	if !h.enricher.Enabled() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"success": false, "error": "AI enrichment is not configured"})
		return
	}

	report := h.enricher.EnrichMany(c.Request.Context(), req.NewsIDs)

	results := make([]batchItemResponse, 0, len(report.Results))
	for _, result := range report.Results {
		item := batchItemResponse{ID: result.ID, Success: result.Success, Error: result.Error}
		if result.Enrichment != nil {
			item.Summary = result.Enrichment.Summary
			item.KeyPoints = result.Enrichment.KeyPoints
			item.Severity = result.Enrichment.Severity
			item.DamageCategory = result.Enrichment.DamageCategory
		}
		results = append(results, item)
	}

	c.JSON(http.StatusOK, batchSummaryResponse{
		Success:      true,
		Processed:    len(results),
		SuccessCount: report.Succeeded,
		ErrorCount:   report.Failed,
		Results:      results,
	})
}

// GetLastFetch reports the newest fetch log entry and falls back to the
// newest stored record when the log is empty.
func (h *Handler) GetLastFetch(c *gin.Context) {
	ctx := c.Request.Context()

	entry, err := h.fetchLogRepo.GetLatestFetchLog(ctx)
	if err != nil {
		slog.Warn("Failed to read fetch log", "error", err)
	}
	if entry != nil {
		c.JSON(http.StatusOK, gin.H{
			"success":         true,
			"lastFetch":       entry.CompletedAt,
			"triggeredBy":     entry.TriggeredBy,
			"successfulFeeds": entry.SuccessfulFeeds,
			"newItemsCount":   entry.NewItemsCount,
			"source":          "fetch_log",
		})
		return
	}

	createdAt, err := h.newsRepo.GetLatestCreatedAt(ctx)
	if err != nil {
		slog.Error("Database error", "operation", "get_latest_created_at", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error":   "Failed to fetch last refresh time",
		})
		return
	}
	if createdAt == nil {
		c.JSON(http.StatusOK, gin.H{
			"success":   false,
			"lastFetch": nil,
			"source":    "none",
			"error":     "No data available",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"lastFetch": *createdAt,
		"source":    "news_cache_fallback",
	})
}

func (h *Handler) ListNewsItems(c *gin.Context) {
	limit := defaultFeedLimit
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid limit parameter"})
			return
		}
		limit = min(parsed, maxListLimit)
	}

	records, err := h.newsRepo.ListNews(c.Request.Context(), limit)
	if err != nil {
		slog.Error("Database error", "operation", "list_news", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	items := make([]newsItemResponse, 0, len(records))
	for _, record := range records {
		items = append(items, newsItemResponse{
			ID:           record.ID,
			Title:        record.Title,
			Summary:      record.Summary,
			PublishedAt:  record.PublishedAt,
			Source:       record.Source,
			Location:     record.Location,
			Keywords:     nonNil(record.Keywords),
			OriginalLink: record.OriginalLink,
			FeedType:     record.FeedType,
			CreatedAt:    record.CreatedAt,
			UpdatedAt:    record.UpdatedAt,
			Enrichment:   record.Enrichment,
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"items": items,
		"total": len(items),
	})
}

// HideNews adds the id to the excluded set. The id does not have to be stored
// yet; a hidden id is never inserted by later runs.
func (h *Handler) HideNews(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing news id parameter"})
		return
	}

	if err := h.exclusionRepo.ExcludeNews(c.Request.Context(), id); err != nil {
		slog.Error("Database error", "operation", "exclude_news", "id", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	slog.Info("News item hidden", "id", id)
	c.JSON(http.StatusOK, gin.H{"success": true, "id": id})
}

func (h *Handler) GetFeed(c *gin.Context) {
	records, err := h.newsRepo.ListNews(c.Request.Context(), h.feedLimit)
	if err != nil {
		slog.Error("Database error", "operation", "list_news", "error", err)
		c.Status(http.StatusInternalServerError)
		return
	}

	rss, err := h.generator.Run(records)
	if err != nil {
		slog.Error("RSS generation error", "error", err)
		c.Status(http.StatusInternalServerError)
		return
	}

	c.Header("Content-Type", "application/xml; charset=utf-8")
	c.Header("X-Feed-Items", strconv.Itoa(len(records)))
	c.String(http.StatusOK, rss)
}

func (h *Handler) GetHealth(c *gin.Context) {
	health := map[string]interface{}{
		"timestamp":      h.now().In(time.Local).Format(time.RFC3339),
		"loaded_sources": h.sources.GetSourceCount(),
		"ai_enabled":     h.enricher.Enabled(),
	}

	if entry, err := h.fetchLogRepo.GetLatestFetchLog(c.Request.Context()); err == nil && entry != nil {
		health["last_fetch"] = entry.CompletedAt
	}

	c.JSON(http.StatusOK, health)
}

func queryBool(c *gin.Context, key string) bool {
	value, err := strconv.ParseBool(c.Query(key))
	return err == nil && value
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
