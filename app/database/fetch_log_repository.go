package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

var _ FetchLogRepository = (*FetchLogStore)(nil)

type FetchLogStore struct {
	db *DB
}

func NewFetchLogStore(db *DB) *FetchLogStore {
	return &FetchLogStore{db: db}
}

func (s *FetchLogStore) InsertFetchLog(ctx context.Context, entry FetchLogEntry) (int64, error) {
	var errorDetails sql.NullString
	if len(entry.ErrorDetails) > 0 {
		encoded, err := marshalJSON(entry.ErrorDetails)
		if err != nil {
			return 0, err
		}
		errorDetails = sql.NullString{String: encoded, Valid: true}
	}

	createdAt := entry.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO feed_fetch_log (
			fetch_started_at, fetch_completed_at, total_feeds, successful_feeds,
			failed_feeds, new_items_count, updated_items_count, ai_processed_count,
			error_details, triggered_by, processing_time_ms, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, formatTime(entry.StartedAt), formatTime(entry.CompletedAt), entry.TotalFeeds,
		entry.SuccessfulFeeds, entry.FailedFeeds, entry.NewItemsCount,
		entry.UpdatedItemsCount, entry.AIProcessedCount, errorDetails,
		entry.TriggeredBy, entry.ProcessingTimeMs, formatTime(createdAt))
	if err != nil {
		return 0, fmt.Errorf("failed to insert fetch log: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read fetch log id: %w", err)
	}
	return id, nil
}

func (s *FetchLogStore) GetLatestFetchLog(ctx context.Context) (*FetchLogEntry, error) {
	var (
		entry                             FetchLogEntry
		startedAt, completedAt, createdAt string
		errorDetails                      sql.NullString
	)

	err := s.db.QueryRowContext(ctx, `
		SELECT id, fetch_started_at, fetch_completed_at, total_feeds, successful_feeds,
		       failed_feeds, new_items_count, updated_items_count, ai_processed_count,
		       error_details, triggered_by, processing_time_ms, created_at
		FROM feed_fetch_log
		ORDER BY fetch_completed_at DESC, id DESC
		LIMIT 1
	`).Scan(&entry.ID, &startedAt, &completedAt, &entry.TotalFeeds, &entry.SuccessfulFeeds,
		&entry.FailedFeeds, &entry.NewItemsCount, &entry.UpdatedItemsCount,
		&entry.AIProcessedCount, &errorDetails, &entry.TriggeredBy,
		&entry.ProcessingTimeMs, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest fetch log: %w", err)
	}

	if entry.StartedAt, err = parseTime(startedAt); err != nil {
		return nil, err
	}
	if entry.CompletedAt, err = parseTime(completedAt); err != nil {
		return nil, err
	}
	if entry.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if err := unmarshalJSON(errorDetails.String, &entry.ErrorDetails); err != nil {
		return nil, err
	}

	return &entry, nil
}
