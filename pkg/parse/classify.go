package parse

import (
	"strings"

	"github.com/kiang/biz-crawlers/pkg/config"
	"github.com/kiang/biz-crawlers/pkg/models"
)

// Classify inspects a search response for the site's interstitial markers.
// The registry reports rate limiting and empty result sets as fixed message
// strings inside an otherwise normal page, so these must be told apart from
// structural absence of the results table before any parsing happens.
//
// Returns OutcomeRateLimited or OutcomeNotFound when a marker is present,
// OutcomeSuccess otherwise (meaning: proceed to parse).
func Classify(body []byte, site config.SiteConfig) models.Outcome {
	html := string(body)
	if site.RateLimitMarker != "" && strings.Contains(html, site.RateLimitMarker) {
		return models.OutcomeRateLimited
	}
	if site.NoResultMarker != "" && strings.Contains(html, site.NoResultMarker) {
		return models.OutcomeNotFound
	}
	return models.OutcomeSuccess
}
