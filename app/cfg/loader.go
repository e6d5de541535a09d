package cfg

import (
	"cmp"
	"errors"
	"fmt"
	"time"

	"github.com/jessevdk/go-flags"
)

// Version is set at build time via -ldflags
var Version = "dev"

func GetVersion() string {
	return cmp.Or(Version, "unknown")
}

type rawCfg struct {
	// Storage
	DBPath string `long:"db-path" env:"DB_PATH" default:"./data/claimdesk.db" description:"Path to the SQLite database file"`

	// Application configuration
	FeedsDir           string `long:"feeds-dir" env:"FEEDS_DIR" default:"./feeds" description:"Directory containing feed source files"`
	Port               string `long:"port" env:"PORT" default:"8080" description:"HTTP server port"`
	BaseUrl            string `long:"base-url" env:"BASE_URL" description:"Public base URL for the service (e.g., https://claims.example.com)"`
	WorkerCount        int    `long:"worker-count" env:"WORKER_COUNT" default:"2" description:"Number of background workers"`
	SchedulerInterval  int    `long:"scheduler-interval" env:"SCHEDULER_INTERVAL" default:"900" description:"Scheduled ingestion interval in seconds (0 disables)"`
	EnrichPendingLimit int    `long:"enrich-pending-limit" env:"ENRICH_PENDING_LIMIT" default:"12" description:"Records without enrichment picked up per scheduled sweep"`
	APIAccessKey       string `long:"api-key" env:"API_ACCESS_KEY" description:"API access key for authentication (optional)"`

	// Outbound HTTP
	UserAgent        string `long:"user-agent" env:"USER_AGENT" default:"ClaimDesk/1.0 (+feed ingestion)" description:"User agent string for feed requests"`
	ScraperUserAgent string `long:"scraper-user-agent" env:"SCRAPER_USER_AGENT" default:"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36" description:"User agent string for article page requests"`
	FetchTimeout     int    `long:"fetch-timeout" env:"FETCH_TIMEOUT" default:"30" description:"Per-attempt feed fetch timeout in seconds"`

	// Classification
	OpenAIAPIKey    string `long:"openai-api-key" env:"OPENAI_API_KEY" description:"API key for the classification endpoint (enrichment disabled when empty)"`
	OpenAIBaseURL   string `long:"openai-base-url" env:"OPENAI_BASE_URL" default:"https://api.openai.com/v1" description:"Base URL of an OpenAI-compatible API"`
	OpenAIModel     string `long:"openai-model" env:"OPENAI_MODEL" default:"gpt-4o-mini" description:"Model used for classification"`
	ClassifyTimeout int    `long:"classify-timeout" env:"CLASSIFY_TIMEOUT" default:"60" description:"Classification request timeout in seconds"`

	// Application metadata
	Timezone string `long:"timezone" env:"TZ" default:"UTC" description:"Timezone for timestamps (e.g., UTC, Europe/Berlin)"`
	Debug    bool   `long:"debug" env:"DEBUG" description:"Enable debug logging"`
}

// Load parses flags and environment. A nil config with a nil error means help was shown.
func Load() (*Cfg, error) {
	return LoadArgs(nil)
}

// LoadArgs parses the given arguments instead of os.Args when args is non-nil.
func LoadArgs(args []string) (*Cfg, error) {
	var raw rawCfg

	parser := flags.NewParser(&raw, flags.Default)

	var err error
	if args == nil {
		_, err = parser.Parse()
	} else {
		_, err = parser.ParseArgs(args)
	}
	if err != nil {
		var flagsErr *flags.Error
		if errors.As(err, &flagsErr) && flagsErr.Type == flags.ErrHelp {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	cfg := &Cfg{
		DBPath:             raw.DBPath,
		FeedsDir:           raw.FeedsDir,
		Port:               raw.Port,
		BaseUrl:            raw.BaseUrl,
		WorkerCount:        raw.WorkerCount,
		SchedulerInterval:  raw.SchedulerInterval,
		EnrichPendingLimit: raw.EnrichPendingLimit,
		APIAccessKey:       raw.APIAccessKey,
		UserAgent:          raw.UserAgent,
		ScraperUserAgent:   raw.ScraperUserAgent,
		FetchTimeout:       raw.FetchTimeout,
		OpenAIAPIKey:       raw.OpenAIAPIKey,
		OpenAIBaseURL:      raw.OpenAIBaseURL,
		OpenAIModel:        raw.OpenAIModel,
		ClassifyTimeout:    raw.ClassifyTimeout,
		Timezone:           raw.Timezone,
		Debug:              raw.Debug,
		Version:            GetVersion(),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	if err := applyTimezone(cfg.Timezone); err != nil {
		fmt.Printf("Warning: Invalid timezone '%s', using system default: %v\n", cfg.Timezone, err)
	}

	return cfg, nil
}

func (c *Cfg) validate() error {
	nonNegativeFields := map[string]int{
		"scheduler interval":   c.SchedulerInterval,
		"enrich pending limit": c.EnrichPendingLimit,
	}
	for fieldName, fieldValue := range nonNegativeFields {
		if fieldValue < 0 {
			return fmt.Errorf("%s must be non-negative", fieldName)
		}
	}

	positiveFields := map[string]int{
		"worker count":     c.WorkerCount,
		"fetch timeout":    c.FetchTimeout,
		"classify timeout": c.ClassifyTimeout,
	}
	for fieldName, fieldValue := range positiveFields {
		if fieldValue <= 0 {
			return fmt.Errorf("%s must be positive", fieldName)
		}
	}

	return nil
}

func applyTimezone(timezone string) error {
	if timezone != "" {
		if loc, err := time.LoadLocation(timezone); err != nil {
			return err
		} else {
			time.Local = loc
		}
	}
	return nil
}
