package enrich

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/lysyi3m/claimdesk/app/database"
)

const (
	defaultBatchSize  = 3
	defaultBatchPause = time.Second
	defaultItemDelay  = 100 * time.Millisecond
)

type ItemResult struct {
	ID         string
	Success    bool
	Enrichment *database.Enrichment
	Error      string
}

type Report struct {
	Requested int
	Succeeded int
	Failed    int
	Skipped   bool
	Results   []ItemResult
}

func (r *Report) add(result ItemResult) {
	r.Results = append(r.Results, result)
	if result.Success {
		r.Succeeded++
	} else {
		r.Failed++
	}
}

// Dispatcher runs the summarizer over stored records and persists the
// results. Failed items are counted and never retried here.
type Dispatcher struct {
	newsRepo   database.NewsRepository
	summarizer *Summarizer
	batchSize  int
	batchPause time.Duration
	itemDelay  time.Duration
}

func NewDispatcher(newsRepo database.NewsRepository, summarizer *Summarizer) *Dispatcher {
	return &Dispatcher{
		newsRepo:   newsRepo,
		summarizer: summarizer,
		batchSize:  defaultBatchSize,
		batchPause: defaultBatchPause,
		itemDelay:  defaultItemDelay,
	}
}

func (d *Dispatcher) Enabled() bool {
	return d.summarizer.Enabled()
}

// Dispatch enriches ids in batches. Items of one batch run in parallel,
// batches run one after another with a pause in between.
func (d *Dispatcher) Dispatch(ctx context.Context, ids []string) Report {
	report := Report{Requested: len(ids)}
	if len(ids) == 0 {
		return report
	}

	if !d.Enabled() {
		slog.Debug("Enrichment disabled, skipping", "items", len(ids))
		report.Skipped = true
		return report
	}

	records, err := d.newsRepo.GetNewsByIDs(ctx, ids)
	if err != nil {
		slog.Error("Failed to load records for enrichment", "items", len(ids), "error", err)
		for _, id := range ids {
			report.add(ItemResult{ID: id, Error: err.Error()})
		}
		return report
	}

	found := make(map[string]struct{}, len(records))
	for _, record := range records {
		found[record.ID] = struct{}{}
	}
	for _, id := range ids {
		if _, ok := found[id]; !ok {
			report.add(ItemResult{ID: id, Error: ErrNotFound.Error()})
		}
	}

	for start := 0; start < len(records); start += d.batchSize {
		if start > 0 {
			if err := sleepContext(ctx, d.batchPause); err != nil {
				for _, record := range records[start:] {
					report.add(ItemResult{ID: record.ID, Error: err.Error()})
				}
				break
			}
		}

		batch := records[start:min(start+d.batchSize, len(records))]
		results := make([]ItemResult, len(batch))

		var g errgroup.Group
		for i, record := range batch {
			g.Go(func() error {
				results[i] = d.enrichRecord(ctx, record)
				return nil
			})
		}
		g.Wait()

		for _, result := range results {
			report.add(result)
		}
	}

	slog.Info("Enrichment dispatched", "requested", report.Requested, "succeeded", report.Succeeded, "failed", report.Failed)
	return report
}

// EnrichOne classifies and stores a single record.
func (d *Dispatcher) EnrichOne(ctx context.Context, id string) (database.Enrichment, error) {
	if !d.Enabled() {
		return database.Enrichment{}, ErrNotConfigured
	}

	record, err := d.newsRepo.GetNews(ctx, id)
	if err != nil {
		return database.Enrichment{}, fmt.Errorf("failed to load news item: %w", err)
	}
	if record == nil {
		return database.Enrichment{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	return d.enrich(ctx, *record)
}

// EnrichMany processes ids one by one with a short delay between calls.
func (d *Dispatcher) EnrichMany(ctx context.Context, ids []string) Report {
	report := Report{Requested: len(ids)}

	for i, id := range ids {
		if i > 0 {
			if err := sleepContext(ctx, d.itemDelay); err != nil {
				for _, rest := range ids[i:] {
					report.add(ItemResult{ID: rest, Error: err.Error()})
				}
				break
			}
		}

		enrichment, err := d.EnrichOne(ctx, id)
		if err != nil {
			report.add(ItemResult{ID: id, Error: err.Error()})
			continue
		}
		report.add(ItemResult{ID: id, Success: true, Enrichment: &enrichment})
	}

	return report
}

func (d *Dispatcher) enrichRecord(ctx context.Context, record database.NewsRecord) ItemResult {
	enrichment, err := d.enrich(ctx, record)
	if err != nil {
		return ItemResult{ID: record.ID, Error: err.Error()}
	}
	return ItemResult{ID: record.ID, Success: true, Enrichment: &enrichment}
}

func (d *Dispatcher) enrich(ctx context.Context, record database.NewsRecord) (database.Enrichment, error) {
	enrichment, err := d.summarizer.Summarize(ctx, record)
	if err != nil {
		slog.Warn("Enrichment failed", "id", record.ID, "error", err)
		return database.Enrichment{}, err
	}

	if err := d.newsRepo.UpdateEnrichment(ctx, record.ID, enrichment); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return database.Enrichment{}, fmt.Errorf("%w: %s", ErrNotFound, record.ID)
		}
		return database.Enrichment{}, fmt.Errorf("failed to store enrichment: %w", err)
	}

	slog.Debug("Record enriched", "id", record.ID, "severity", enrichment.Severity)
	return enrichment, nil
}

func sleepContext(ctx context.Context, delay time.Duration) error {
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
