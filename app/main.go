package main

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lysyi3m/claimdesk/app/api"
	"github.com/lysyi3m/claimdesk/app/cfg"
	"github.com/lysyi3m/claimdesk/app/database"
	"github.com/lysyi3m/claimdesk/app/enrich"
	"github.com/lysyi3m/claimdesk/app/feed"
	"github.com/lysyi3m/claimdesk/app/tasks"
)

func main() {
	appCfg, err := cfg.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if appCfg == nil {
		// Help was shown
		return
	}

	logLevel := slog.LevelInfo
	if appCfg.Debug {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})))

	slog.Info("Starting ClaimDesk", "version", appCfg.Version)

	db, err := database.NewConnection(appCfg.DBPath)
	if err != nil {
		slog.Error("Failed to connect to database", "path", appCfg.DBPath, "error", err)
		os.Exit(1)
	}
	defer db.Close()

	version, dirty, err := database.RunMigrations(db)
	if err != nil {
		slog.Error("Failed to run migrations", "error", err)
		os.Exit(1)
	}
	slog.Info("Database ready", "path", appCfg.DBPath, "schema_version", version, "dirty", dirty)

	newsRepo := database.NewNewsStore(db)
	exclusionRepo := database.NewExclusionStore(db)
	settingsRepo := database.NewSettingsStore(db)
	fetchLogRepo := database.NewFetchLogStore(db)

	sourceCache := feed.NewSourceCache(appCfg.FeedsDir)
	if err := sourceCache.Run(); err != nil {
		slog.Error("Failed to load feed sources", "dir", appCfg.FeedsDir, "error", err)
		os.Exit(1)
	}
	slog.Info("Feed sources loaded", "dir", appCfg.FeedsDir, "count", sourceCache.GetSourceCount())

	httpClient := &http.Client{}
	fetchTimeout := time.Duration(appCfg.FetchTimeout) * time.Second

	var classifier enrich.Classifier
	if appCfg.EnrichmentEnabled() {
		classifier = enrich.NewOpenAIClassifier(appCfg.OpenAIBaseURL, appCfg.OpenAIAPIKey, appCfg.OpenAIModel,
			time.Duration(appCfg.ClassifyTimeout)*time.Second)
		slog.Info("AI enrichment enabled", "model", appCfg.OpenAIModel)
	} else {
		slog.Warn("AI enrichment disabled (OPENAI_API_KEY not set)")
	}

	extractor := feed.NewContentExtractor(httpClient, appCfg.ScraperUserAgent)
	dispatcher := enrich.NewDispatcher(newsRepo, enrich.NewSummarizer(classifier, extractor))

	pipeline := &tasks.Pipeline{
		Fetcher:       feed.NewFetcher(httpClient, appCfg.UserAgent, fetchTimeout),
		Parser:        feed.NewParser(),
		Filterer:      feed.NewFilterer(),
		Differ:        feed.NewDiffer(),
		NewsRepo:      newsRepo,
		ExclusionRepo: exclusionRepo,
		Enricher:      dispatcher,
	}
	ingestor := tasks.NewIngestor(sourceCache, pipeline, settingsRepo, tasks.NewFetchLogger(fetchLogRepo))

	scheduler := tasks.NewScheduler(ingestor, dispatcher, newsRepo, sourceCache,
		time.Duration(appCfg.SchedulerInterval)*time.Second, appCfg.WorkerCount, appCfg.EnrichPendingLimit)
	scheduler.Start()
	defer scheduler.Stop()

	baseURL := cmp.Or(appCfg.BaseUrl, "http://localhost:"+appCfg.Port)
	generator := feed.NewGenerator(baseURL, appCfg.Version)

	handler := api.NewHandler(ingestor, dispatcher, newsRepo, exclusionRepo, fetchLogRepo, generator, sourceCache)
	router := api.NewServer(handler, appCfg.APIAccessKey, appCfg.Version)

	// Ingestion runs and batch enrichment can take minutes.
	httpServer := &http.Server{
		Addr:         ":" + appCfg.Port,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 10 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	serverErrChan := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "port", appCfg.Port, "base_url", baseURL)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		slog.Info("Received signal", "signal", sig.String())
	case err := <-serverErrChan:
		slog.Error("Server error", "error", err)
	}

	slog.Info("Shutting down server gracefully")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	} else {
		slog.Info("HTTP server stopped")
	}

	slog.Info("ClaimDesk shutdown complete")
}
