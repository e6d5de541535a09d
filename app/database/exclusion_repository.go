package database

import (
	"context"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
)

var _ ExclusionRepository = (*ExclusionStore)(nil)

// ExclusionStore keeps the ids users have hidden from the dashboard.
type ExclusionStore struct {
	db *DB
}

func NewExclusionStore(db *DB) *ExclusionStore {
	return &ExclusionStore{db: db}
}

// GetExcludedIDs returns the subset of ids that are hidden.
func (s *ExclusionStore) GetExcludedIDs(ctx context.Context, ids []string) (map[string]struct{}, error) {
	excluded := make(map[string]struct{})

	for _, chunk := range chunkStrings(ids, lookupChunkSize) {
		query, args, err := sq.Select("id").From("deleted_news").Where(sq.Eq{"id": chunk}).ToSql()
		if err != nil {
			return nil, fmt.Errorf("failed to build excluded ids query: %w", err)
		}

		rows, err := s.db.QueryContext(ctx, query, args...)
		if err != nil {
			return nil, fmt.Errorf("failed to query excluded ids: %w", err)
		}

		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return nil, fmt.Errorf("failed to scan excluded id: %w", err)
			}
			excluded[id] = struct{}{}
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return nil, fmt.Errorf("error iterating excluded ids: %w", err)
		}
	}

	return excluded, nil
}

func (s *ExclusionStore) ExcludeNews(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO deleted_news (id, deleted_at) VALUES (?, ?)
		ON CONFLICT(id) DO NOTHING
	`, id, formatTime(time.Now()))
	if err != nil {
		return fmt.Errorf("failed to exclude news %s: %w", id, err)
	}
	return nil
}
