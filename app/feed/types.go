package feed

import (
	"time"
)

// Feed processing types

// RawItem is a feed entry as parsed, before normalization.
type RawItem struct {
	GUID        string
	Link        string
	Title       string
	Description string
	Content     string
	PublishedAt *time.Time
}

type Item struct {
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

	IsFiltered   bool
	FilterReason string
}

// Source configuration types

type Source struct {
	Name       string         // Derived from filename (without .yml extension)
	URL        string         `yaml:"url"`
	Type       string         `yaml:"type"`
	SourceName string         `yaml:"source_name"`
	Settings   SourceSettings `yaml:"settings"`
	Filters    []SourceFilter `yaml:"filters"`
}

type SourceSettings struct {
	Enabled  bool `yaml:"enabled"`
	MaxItems int  `yaml:"max_items"`
	Timeout  int  `yaml:"timeout"` // seconds, per fetch attempt
}

type SourceFilter struct {
	Field    string   `yaml:"field"`
	Includes []string `yaml:"includes"`
	Excludes []string `yaml:"excludes"`
}
