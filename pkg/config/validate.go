package config

import (
	"fmt"
	"time"

	"github.com/kiang/biz-crawlers/pkg/utils"
)

// Default landmarks for the registry site. Kept in one place so a markup
// change upstream is a config edit, not a code change.
const (
	defaultQueryInitURL = "https://findbiz.nat.gov.tw/fts/query/QueryBar/queryInit.do"
	defaultQueryListURL = "https://findbiz.nat.gov.tw/fts/query/QueryList/queryList.do"
	defaultBaseURL      = "https://findbiz.nat.gov.tw"

	defaultRateLimitMarker = "查詢過量"
	defaultNoResultMarker  = "查無符合"

	defaultResultTableID       = "eslist_table"
	defaultCompanyContainerID  = "tabCmpyContent"
	defaultBusinessContainerID = "tabBusmContent"
	defaultCompanyDetailPath   = "queryCmpyDetail.do"
	defaultBusinessDetailPath  = "queryBusmDetail.do"
	defaultChangeDateLabel     = "核准變更日期"
)

// Validate checks AppConfig fields and applies sensible defaults.
// Returns collected warnings and any fatal error.
// Modifies receiver in place to apply defaults.
func (c *AppConfig) Validate() (warnings []string, err error) {
	if c.OutputBaseDir == "" {
		warnings = append(warnings, "output_base_dir is empty, defaulting to './data'")
		c.OutputBaseDir = "./data"
	}
	if c.StateDir == "" {
		warnings = append(warnings, "state_dir is empty, defaulting to './crawler_state'")
		c.StateDir = "./crawler_state"
	}
	if c.UserAgent == "" {
		c.UserAgent = "Mozilla/5.0 (compatible; biz-crawlers/1.0)"
	}

	if c.MinRequestInterval <= 0 {
		c.MinRequestInterval = 1500 * time.Millisecond
	}
	if c.SearchDelay <= 0 {
		c.SearchDelay = 3 * time.Second
	}
	if c.SessionInitDelay <= 0 {
		c.SessionInitDelay = 2 * time.Second
	}
	if c.RateLimitCooldown <= 0 {
		c.RateLimitCooldown = 30 * time.Second
	}
	if c.MaxRetries < 0 {
		warnings = append(warnings, "max_retries cannot be negative, setting to 0")
		c.MaxRetries = 0
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 2
	}
	if c.RetryBackoffBase <= 0 {
		c.RetryBackoffBase = 5 * time.Second
	}
	if c.FreshnessWindow <= 0 {
		c.FreshnessWindow = 24 * time.Hour
	}
	if c.MinDetailBytes <= 0 {
		c.MinDetailBytes = 1000
	}
	if c.MinDetailFields <= 0 {
		c.MinDetailFields = 3
	}

	if err := c.Site.validate(); err != nil {
		return warnings, err
	}

	if c.FastMode {
		warnings = append(warnings, fmt.Sprintf(
			"fast_mode is ON: bypassing min_request_interval (%v), search_delay (%v) and session_init_delay (%v); do not use against the live site",
			c.MinRequestInterval, c.SearchDelay, c.SessionInitDelay))
	}

	// HTTP client defaults
	h := &c.HTTPClientSettings
	if h.Timeout <= 0 {
		h.Timeout = 60 * time.Second
	}
	if h.MaxIdleConns <= 0 {
		h.MaxIdleConns = 10
	}
	if h.MaxIdleConnsPerHost <= 0 {
		h.MaxIdleConnsPerHost = 2
	}
	if h.IdleConnTimeout <= 0 {
		h.IdleConnTimeout = 90 * time.Second
	}
	if h.TLSHandshakeTimeout <= 0 {
		h.TLSHandshakeTimeout = 10 * time.Second
	}
	if h.ExpectContinueTimeout <= 0 {
		h.ExpectContinueTimeout = 1 * time.Second
	}
	if h.DialerTimeout <= 0 {
		h.DialerTimeout = 30 * time.Second
	}
	if h.DialerKeepAlive <= 0 {
		h.DialerKeepAlive = 30 * time.Second
	}

	return warnings, nil
}

func (s *SiteConfig) validate() error {
	if s.QueryInitURL == "" {
		s.QueryInitURL = defaultQueryInitURL
	}
	if s.QueryListURL == "" {
		s.QueryListURL = defaultQueryListURL
	}
	if s.BaseURL == "" {
		s.BaseURL = defaultBaseURL
	}
	if s.RateLimitMarker == "" {
		s.RateLimitMarker = defaultRateLimitMarker
	}
	if s.NoResultMarker == "" {
		s.NoResultMarker = defaultNoResultMarker
	}
	if s.ResultTableID == "" {
		s.ResultTableID = defaultResultTableID
	}
	if s.CompanyContainerID == "" {
		s.CompanyContainerID = defaultCompanyContainerID
	}
	if s.BusinessContainerID == "" {
		s.BusinessContainerID = defaultBusinessContainerID
	}
	if s.CompanyDetailPath == "" {
		s.CompanyDetailPath = defaultCompanyDetailPath
	}
	if s.BusinessDetailPath == "" {
		s.BusinessDetailPath = defaultBusinessDetailPath
	}
	if s.ChangeDateLabel == "" {
		s.ChangeDateLabel = defaultChangeDateLabel
	}
	if s.RateLimitMarker == s.NoResultMarker {
		return utils.WrapErrorf(utils.ErrConfigValidation,
			"rate_limit_marker and no_result_marker must differ (both %q)", s.RateLimitMarker)
	}
	return nil
}
