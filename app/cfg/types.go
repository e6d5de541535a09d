package cfg

type Cfg struct {
	// Storage
	DBPath string

	// Application configuration
	FeedsDir           string
	Port               string
	BaseUrl            string
	WorkerCount        int
	SchedulerInterval  int
	EnrichPendingLimit int
	APIAccessKey       string

	// Outbound HTTP
	UserAgent        string
	ScraperUserAgent string
	FetchTimeout     int

	// Classification
	OpenAIAPIKey    string
	OpenAIBaseURL   string
	OpenAIModel     string
	ClassifyTimeout int

	// Application metadata
	Timezone string
	Debug    bool
	Version  string
}

// EnrichmentEnabled reports whether a classifier key is configured.
func (c *Cfg) EnrichmentEnabled() bool {
	return c.OpenAIAPIKey != ""
}
