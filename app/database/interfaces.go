package database

import (
	"context"
	"time"
)

type NewsRepository interface {
	GetExistingByLinks(ctx context.Context, links []string) (map[string]ExistingRecord, error)
	GetExistingByIDs(ctx context.Context, ids []string) (map[string]ExistingRecord, error)
	GetNews(ctx context.Context, id string) (*NewsRecord, error)
	GetNewsByIDs(ctx context.Context, ids []string) ([]NewsRecord, error)
	GetNewsWithoutEnrichment(ctx context.Context, limit int) ([]NewsRecord, error)
	ListNews(ctx context.Context, limit int) ([]NewsRecord, error)
	GetLatestCreatedAt(ctx context.Context) (*time.Time, error)

	InsertNews(ctx context.Context, records []NewsRecord) ([]string, error)
	UpsertNews(ctx context.Context, records []NewsRecord) (int, error)
	UpdateEnrichment(ctx context.Context, id string, enrichment Enrichment) error
}

type ExclusionRepository interface {
	GetExcludedIDs(ctx context.Context, ids []string) (map[string]struct{}, error)
	ExcludeNews(ctx context.Context, id string) error
}

type SettingsRepository interface {
	// GetAutoRefreshEnabled treats a missing table or row as enabled.
	GetAutoRefreshEnabled(ctx context.Context) (bool, error)
}

type FetchLogRepository interface {
	InsertFetchLog(ctx context.Context, entry FetchLogEntry) (int64, error)
	GetLatestFetchLog(ctx context.Context) (*FetchLogEntry, error)
}
