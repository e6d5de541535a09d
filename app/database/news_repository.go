package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
)

var _ NewsRepository = (*NewsStore)(nil)

var newsColumns = []string{
	"id", "title", "summary", "content", "published_at", "source", "location",
	"keywords", "original_link", "feed_type", "content_hash", "created_at", "updated_at",
}

var enrichmentColumns = []string{
	"ai_title", "ai_summary", "ai_key_points", "ai_severity", "ai_damage_category",
	"ai_business_interruption", "ai_estimated_complexity", "ai_location",
	"ai_location_confidence", "ai_keywords", "ai_keyword_categories",
	"ai_keyword_confidence", "ai_processed_at",
}

// Columns refreshed when a changed item is written over an existing row.
// created_at and the ai_* columns are left alone.
const upsertNewsSuffix = `ON CONFLICT(id) DO UPDATE SET
	title = excluded.title,
	summary = excluded.summary,
	content = excluded.content,
	published_at = excluded.published_at,
	source = excluded.source,
	location = excluded.location,
	keywords = excluded.keywords,
	original_link = excluded.original_link,
	feed_type = excluded.feed_type,
	content_hash = excluded.content_hash,
	updated_at = excluded.updated_at`

type NewsStore struct {
	db *DB
}

func NewNewsStore(db *DB) *NewsStore {
	return &NewsStore{db: db}
}

func (s *NewsStore) selectNews() sq.SelectBuilder {
	columns := make([]string, 0, len(newsColumns)+len(enrichmentColumns))
	columns = append(columns, newsColumns...)
	columns = append(columns, enrichmentColumns...)
	return sq.Select(columns...).From("news_cache")
}

func (s *NewsStore) GetExistingByLinks(ctx context.Context, links []string) (map[string]ExistingRecord, error) {
	return s.queryExisting(ctx, "original_link", links, func(rec ExistingRecord) string { return rec.OriginalLink })
}

// GetExistingByIDs finds stored records by id, whatever link they carry.
func (s *NewsStore) GetExistingByIDs(ctx context.Context, ids []string) (map[string]ExistingRecord, error) {
	return s.queryExisting(ctx, "id", ids, func(rec ExistingRecord) string { return rec.ID })
}

// queryExisting keeps the oldest record per key.
func (s *NewsStore) queryExisting(ctx context.Context, column string, values []string, key func(ExistingRecord) string) (map[string]ExistingRecord, error) {
	existing := make(map[string]ExistingRecord, len(values))

	for _, chunk := range chunkStrings(values, lookupChunkSize) {
		query, args, err := sq.Select("id", "original_link", "content_hash", "ai_processed_at IS NOT NULL").
			From("news_cache").
			Where(sq.Eq{column: chunk}).
			OrderBy("created_at ASC").
			ToSql()
		if err != nil {
			return nil, fmt.Errorf("failed to build existing records query: %w", err)
		}

		rows, err := s.db.QueryContext(ctx, query, args...)
		if err != nil {
			return nil, fmt.Errorf("failed to query existing records: %w", err)
		}

		for rows.Next() {
			var rec ExistingRecord
			if err := rows.Scan(&rec.ID, &rec.OriginalLink, &rec.ContentHash, &rec.HasEnrichment); err != nil {
				rows.Close()
				return nil, fmt.Errorf("failed to scan existing record: %w", err)
			}
			if _, seen := existing[key(rec)]; !seen {
				existing[key(rec)] = rec
			}
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return nil, fmt.Errorf("error iterating existing records: %w", err)
		}
	}

	return existing, nil
}

func (s *NewsStore) GetNews(ctx context.Context, id string) (*NewsRecord, error) {
	query, args, err := s.selectNews().Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build news query: %w", err)
	}

	record, err := scanNewsRecord(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get news %s: %w", id, err)
	}

	return &record, nil
}

// GetNewsByIDs returns the records found, in the order of ids.
func (s *NewsStore) GetNewsByIDs(ctx context.Context, ids []string) ([]NewsRecord, error) {
	found := make(map[string]NewsRecord, len(ids))

	for _, chunk := range chunkStrings(ids, lookupChunkSize) {
		query, args, err := s.selectNews().Where(sq.Eq{"id": chunk}).ToSql()
		if err != nil {
			return nil, fmt.Errorf("failed to build news query: %w", err)
		}

		records, err := s.queryNews(ctx, query, args)
		if err != nil {
			return nil, err
		}
		for _, record := range records {
			found[record.ID] = record
		}
	}

	result := make([]NewsRecord, 0, len(found))
	for _, id := range ids {
		if record, ok := found[id]; ok {
			result = append(result, record)
			delete(found, id)
		}
	}

	return result, nil
}

func (s *NewsStore) GetNewsWithoutEnrichment(ctx context.Context, limit int) ([]NewsRecord, error) {
	query, args, err := s.selectNews().
		Where("ai_processed_at IS NULL").
		Where("id NOT IN (SELECT id FROM deleted_news)").
		OrderBy("published_at DESC").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build pending enrichment query: %w", err)
	}

	return s.queryNews(ctx, query, args)
}

func (s *NewsStore) ListNews(ctx context.Context, limit int) ([]NewsRecord, error) {
	query, args, err := s.selectNews().
		Where("id NOT IN (SELECT id FROM deleted_news)").
		OrderBy("published_at DESC", "created_at DESC").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build news list query: %w", err)
	}

	return s.queryNews(ctx, query, args)
}

func (s *NewsStore) GetLatestCreatedAt(ctx context.Context) (*time.Time, error) {
	var createdAt string
	err := s.db.QueryRowContext(ctx, `SELECT created_at FROM news_cache ORDER BY created_at DESC LIMIT 1`).Scan(&createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest news timestamp: %w", err)
	}

	t, err := parseTime(createdAt)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// InsertNews writes new records in chunks; rows whose id already exists are ignored.
// Returns the ids of the rows actually inserted.
func (s *NewsStore) InsertNews(ctx context.Context, records []NewsRecord) ([]string, error) {
	return s.writeNews(ctx, records, "ON CONFLICT(id) DO NOTHING")
}

// UpsertNews overwrites the content columns of existing rows, keeping created_at and enrichment.
func (s *NewsStore) UpsertNews(ctx context.Context, records []NewsRecord) (int, error) {
	written, err := s.writeNews(ctx, records, upsertNewsSuffix)
	return len(written), err
}

func (s *NewsStore) writeNews(ctx context.Context, records []NewsRecord, suffix string) ([]string, error) {
	var written []string
	now := time.Now()

	for start := 0; start < len(records); start += writeChunkSize {
		end := min(start+writeChunkSize, len(records))

		insert := sq.Insert("news_cache").Columns(newsColumns...).Suffix(suffix + " RETURNING id")
		for _, record := range records[start:end] {
			values, err := newsValues(record, now)
			if err != nil {
				return written, fmt.Errorf("failed to encode news %s: %w", record.ID, err)
			}
			insert = insert.Values(values...)
		}

		query, args, err := insert.ToSql()
		if err != nil {
			return written, fmt.Errorf("failed to build news insert: %w", err)
		}

		rows, err := s.db.QueryContext(ctx, query, args...)
		if err != nil {
			return written, fmt.Errorf("failed to write news chunk: %w", err)
		}

		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return written, fmt.Errorf("failed to read written id: %w", err)
			}
			written = append(written, id)
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return written, fmt.Errorf("failed to write news chunk: %w", err)
		}
	}

	return written, nil
}

func (s *NewsStore) UpdateEnrichment(ctx context.Context, id string, enrichment Enrichment) error {
	keyPoints, err := marshalJSON(enrichment.KeyPoints)
	if err != nil {
		return err
	}
	keywords, err := marshalJSON(enrichment.Keywords)
	if err != nil {
		return err
	}
	categories, err := marshalJSON(enrichment.KeywordCategories)
	if err != nil {
		return err
	}
	confidence, err := marshalJSON(enrichment.KeywordConfidence)
	if err != nil {
		return err
	}

	processedAt := enrichment.ProcessedAt
	if processedAt.IsZero() {
		processedAt = time.Now()
	}

	query, args, err := sq.Update("news_cache").
		SetMap(map[string]any{
			"ai_title":                 enrichment.Title,
			"ai_summary":               enrichment.Summary,
			"ai_key_points":            keyPoints,
			"ai_severity":              enrichment.Severity,
			"ai_damage_category":       enrichment.DamageCategory,
			"ai_business_interruption": enrichment.BusinessInterruption,
			"ai_estimated_complexity":  enrichment.Complexity,
			"ai_location":              enrichment.Location,
			"ai_location_confidence":   enrichment.LocationConfidence,
			"ai_keywords":              keywords,
			"ai_keyword_categories":    categories,
			"ai_keyword_confidence":    confidence,
			"ai_processed_at":          formatTime(processedAt),
			"updated_at":               formatTime(time.Now()),
		}).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build enrichment update: %w", err)
	}

	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update enrichment for %s: %w", id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("update enrichment for %s: %w", id, ErrNotFound)
	}

	return nil
}

func (s *NewsStore) queryNews(ctx context.Context, query string, args []any) ([]NewsRecord, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query news: %w", err)
	}
	defer rows.Close()

	var records []NewsRecord
	for rows.Next() {
		record, err := scanNewsRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan news row: %w", err)
		}
		records = append(records, record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating news rows: %w", err)
	}

	return records, nil
}

func newsValues(record NewsRecord, now time.Time) ([]any, error) {
	keywords := record.Keywords
	if keywords == nil {
		keywords = []string{}
	}
	encodedKeywords, err := marshalJSON(keywords)
	if err != nil {
		return nil, err
	}

	createdAt := record.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}

	return []any{
		record.ID,
		record.Title,
		record.Summary,
		record.Content,
		formatTime(record.PublishedAt),
		record.Source,
		record.Location,
		encodedKeywords,
		record.OriginalLink,
		record.FeedType,
		record.ContentHash,
		formatTime(createdAt),
		formatTime(now),
	}, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanNewsRecord(row rowScanner) (NewsRecord, error) {
	var (
		record                          NewsRecord
		publishedAt, createdAt          string
		updatedAt, keywords             string
		aiTitle, aiSummary, aiKeyPoints sql.NullString
		aiSeverity, aiDamageCategory    sql.NullString
		aiBusinessInterruption          sql.NullBool
		aiComplexity, aiLocation        sql.NullString
		aiLocationConfidence            sql.NullString
		aiKeywords, aiKeywordCategories sql.NullString
		aiKeywordConfidence             sql.NullString
		aiProcessedAt                   sql.NullString
	)

	err := row.Scan(
		&record.ID, &record.Title, &record.Summary, &record.Content, &publishedAt,
		&record.Source, &record.Location, &keywords, &record.OriginalLink,
		&record.FeedType, &record.ContentHash, &createdAt, &updatedAt,
		&aiTitle, &aiSummary, &aiKeyPoints, &aiSeverity, &aiDamageCategory,
		&aiBusinessInterruption, &aiComplexity, &aiLocation, &aiLocationConfidence,
		&aiKeywords, &aiKeywordCategories, &aiKeywordConfidence, &aiProcessedAt,
	)
	if err != nil {
		return NewsRecord{}, err
	}

	if record.PublishedAt, err = parseTime(publishedAt); err != nil {
		return NewsRecord{}, err
	}
	if record.CreatedAt, err = parseTime(createdAt); err != nil {
		return NewsRecord{}, err
	}
	if record.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return NewsRecord{}, err
	}
	if err := unmarshalJSON(keywords, &record.Keywords); err != nil {
		return NewsRecord{}, err
	}

	if !aiProcessedAt.Valid {
		return record, nil
	}

	enrichment := &Enrichment{
		Title:                aiTitle.String,
		Summary:              aiSummary.String,
		Severity:             aiSeverity.String,
		DamageCategory:       aiDamageCategory.String,
		BusinessInterruption: aiBusinessInterruption.Bool,
		Complexity:           aiComplexity.String,
		Location:             aiLocation.String,
		LocationConfidence:   aiLocationConfidence.String,
	}
	if enrichment.ProcessedAt, err = parseTime(aiProcessedAt.String); err != nil {
		return NewsRecord{}, err
	}
	if err := unmarshalJSON(aiKeyPoints.String, &enrichment.KeyPoints); err != nil {
		return NewsRecord{}, err
	}
	if err := unmarshalJSON(aiKeywords.String, &enrichment.Keywords); err != nil {
		return NewsRecord{}, err
	}
	if err := unmarshalJSON(aiKeywordCategories.String, &enrichment.KeywordCategories); err != nil {
		return NewsRecord{}, err
	}
	if err := unmarshalJSON(aiKeywordConfidence.String, &enrichment.KeywordConfidence); err != nil {
		return NewsRecord{}, err
	}
	record.Enrichment = enrichment

	return record, nil
}
