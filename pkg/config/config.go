package config

import "time"

// SiteConfig holds the target registry site's URLs, form markers, and the
// HTML landmarks the parsers look for. Everything here is configurable
// because the upstream markup changes without notice.
type SiteConfig struct {
	QueryInitURL string `yaml:"query_init_url"` // First handshake GET (form init page)
	QueryListURL string `yaml:"query_list_url"` // Second handshake GET and search POST target
	BaseURL      string `yaml:"base_url"`       // Base for resolving relative detail links

	RateLimitMarker string `yaml:"rate_limit_marker,omitempty"` // Interstitial substring: query volume exceeded
	NoResultMarker  string `yaml:"no_result_marker,omitempty"`  // Interstitial substring: no matching records

	ResultTableID       string `yaml:"result_table_id,omitempty"`       // Element id of the search-results table
	CompanyContainerID  string `yaml:"company_container_id,omitempty"`  // Element id of the company detail container
	BusinessContainerID string `yaml:"business_container_id,omitempty"` // Element id of the business detail container
	CompanyDetailPath   string `yaml:"company_detail_path,omitempty"`   // Href substring marking a company detail link
	BusinessDetailPath  string `yaml:"business_detail_path,omitempty"`  // Href substring marking a business detail link
	ChangeDateLabel     string `yaml:"change_date_label,omitempty"`     // Column label of the approval-change date
}

// PDFListConfig configures the monthly change-list PDF crawler.
type PDFListConfig struct {
	URLTemplate   string `yaml:"url_template"` // fmt template with %d (year) and %02d (month)
	PdftotextPath string `yaml:"pdftotext_path,omitempty"`
}

// SchoolsConfig configures the paginated school-directory scraper.
type SchoolsConfig struct {
	URLTemplate string `yaml:"url_template"` // fmt template with %d (page number, 1-based)
	TableID     string `yaml:"table_id,omitempty"`
	MaxPages    int    `yaml:"max_pages,omitempty"`
}

// AppConfig holds the global application configuration
type AppConfig struct {
	OutputBaseDir string `yaml:"output_base_dir"`
	StateDir      string `yaml:"state_dir"`
	UserAgent     string `yaml:"user_agent,omitempty"`
	ProxyURL      string `yaml:"proxy_url,omitempty"`

	// FastMode disables the rate-limit floor and the deliberate sleeps.
	// Intended for trusted/internal replays only; semantics are otherwise
	// identical. The CLI logs a warning when it is on.
	FastMode bool `yaml:"fast_mode,omitempty"`

	MinRequestInterval time.Duration `yaml:"min_request_interval,omitempty"` // Global inter-request floor
	SearchDelay        time.Duration `yaml:"search_delay,omitempty"`         // Mandatory post-search delay
	SessionInitDelay   time.Duration `yaml:"session_init_delay,omitempty"`   // Stabilization delay between handshake GETs
	RateLimitCooldown  time.Duration `yaml:"rate_limit_cooldown,omitempty"`  // Sleep after a rate-limit interstitial
	MaxRetries         int           `yaml:"max_retries,omitempty"`          // Bound on structural retries per ID
	RetryBackoffBase   time.Duration `yaml:"retry_backoff_base,omitempty"`   // Fixed part of the retry backoff
	FreshnessWindow    time.Duration `yaml:"freshness_window,omitempty"`     // Cache-hit window for persisted records
	MinDetailBytes     int           `yaml:"min_detail_bytes,omitempty"`     // Reject detail bodies shorter than this
	MinDetailFields    int           `yaml:"min_detail_fields,omitempty"`    // Reject parses with fewer fields

	HTTPClientSettings HTTPClientConfig `yaml:"http_client_settings,omitempty"`
	Site               SiteConfig       `yaml:"site"`
	PDFList            PDFListConfig    `yaml:"pdf_list,omitempty"`
	Schools            SchoolsConfig    `yaml:"schools,omitempty"`
}

// HTTPClientConfig holds settings for the shared HTTP client
type HTTPClientConfig struct {
	Timeout               time.Duration `yaml:"timeout,omitempty"`                 // Overall request timeout
	MaxIdleConns          int           `yaml:"max_idle_conns,omitempty"`          // Max total idle connections
	MaxIdleConnsPerHost   int           `yaml:"max_idle_conns_per_host,omitempty"` // Max idle connections per host
	IdleConnTimeout       time.Duration `yaml:"idle_conn_timeout,omitempty"`       // Timeout for idle connections
	TLSHandshakeTimeout   time.Duration `yaml:"tls_handshake_timeout,omitempty"`   // Timeout for TLS handshake
	ExpectContinueTimeout time.Duration `yaml:"expect_continue_timeout,omitempty"` // Timeout for 100-continue
	DialerTimeout         time.Duration `yaml:"dialer_timeout,omitempty"`          // Connection dial timeout
	DialerKeepAlive       time.Duration `yaml:"dialer_keep_alive,omitempty"`       // TCP keep-alive interval
}
