package database

import (
	"time"
)

type NewsRecord struct {
	ID           string
	Title        string
	Summary      string
	Content      string
	PublishedAt  time.Time
	Source       string
	Location     string
	Keywords     []string
	OriginalLink string
	FeedType     string
	ContentHash  string
	CreatedAt    time.Time
	UpdatedAt    time.Time

	Enrichment *Enrichment // nil until classified
}

type KeywordCategories struct {
	EventType  []string `json:"eventType"`
	Severity   []string `json:"severity"`
	Sector     []string `json:"sector"`
	DamageType []string `json:"damageType"`
	Urgency    []string `json:"urgency"`
}

type Enrichment struct {
	Title                string             `json:"title"`
	Summary              string             `json:"summary"`
	KeyPoints            []string           `json:"keyPoints"`
	Severity             string             `json:"severity"`
	DamageCategory       string             `json:"damageCategory"`
	BusinessInterruption bool               `json:"businessInterruption"`
	Complexity           string             `json:"estimatedComplexity"`
	Location             string             `json:"location"`
	LocationConfidence   string             `json:"locationConfidence"`
	Keywords             []string           `json:"keywords"`
	KeywordCategories    KeywordCategories  `json:"keywordCategories"`
	KeywordConfidence    map[string]float64 `json:"keywordConfidence"`
	ProcessedAt          time.Time          `json:"processedAt"`
}

// ExistingRecord is the slice of a stored record the differ needs.
type ExistingRecord struct {
	ID            string
	OriginalLink  string
	ContentHash   string
	HasEnrichment bool
}

type FeedError struct {
	Feed  string `json:"feed"`
	Error string `json:"error"`
}

const (
	TriggeredByManual      = "manual"
	TriggeredByCron        = "cron"
	TriggeredByCronSkipped = "cron_skipped"
)

type FetchLogEntry struct {
	ID                int64
	StartedAt         time.Time
	CompletedAt       time.Time
	TotalFeeds        int
	SuccessfulFeeds   int
	FailedFeeds       int
	NewItemsCount     int
	UpdatedItemsCount int
	AIProcessedCount  int
	ErrorDetails      []FeedError
	TriggeredBy       string
	ProcessingTimeMs  int64
	CreatedAt         time.Time
}
