package crawler

import (
	"context"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/kiang/biz-crawlers/pkg/config"
	"github.com/kiang/biz-crawlers/pkg/fetch"
	"github.com/kiang/biz-crawlers/pkg/models"
	"github.com/kiang/biz-crawlers/pkg/parse"
	"github.com/kiang/biz-crawlers/pkg/registry"
	"github.com/kiang/biz-crawlers/pkg/store"
	"github.com/kiang/biz-crawlers/pkg/utils"
)

// Session is the slice of fetch.Session the orchestrator drives. Behind an
// interface so tests can script responses without a network.
type Session interface {
	Open(ctx context.Context) error
	IsOpen() bool
	Request(ctx context.Context, method, rawURL string, form url.Values, referer string) (int, []byte, error)
	Close()
}

// Crawler drives the per-ID detail fetch state machine: salvage check,
// freshness check, session handshake, bounded retry loop, persistence.
type Crawler struct {
	cfg     *config.AppConfig
	session Session
	limiter *fetch.RateLimiter
	store   *store.Store
	reg     *registry.Registry // optional; nil disables outcome recording
	log     *logrus.Entry
}

// New wires a Crawler from its collaborators.
func New(cfg *config.AppConfig, session Session, limiter *fetch.RateLimiter, st *store.Store, reg *registry.Registry, log *logrus.Entry) *Crawler {
	return &Crawler{cfg: cfg, session: session, limiter: limiter, store: st, reg: reg, log: log}
}

// FetchDetail fetches and parses the detail record for one entity.
//
// Terminal outcomes: OutcomeSuccess carries a record; OutcomeSkipped means a
// fresh cached record exists (soft no-op); OutcomeNotFound is the site's
// negative answer. After retries are exhausted the last transient outcome is
// returned with a nil record, never an error, so a batch caller just moves
// on. The only error returns are context cancellation and salvage-path I/O.
func (c *Crawler) FetchDetail(ctx context.Context, id models.EntityID, kind models.EntityKind) (*models.DetailRecord, models.Outcome, error) {
	idLog := c.log.WithFields(logrus.Fields{"id": id, "kind": kind})

	// Salvage: a raw detail page from a prior run can be re-parsed without
	// touching the network. This is how a fixed parser gets re-run against
	// already-captured pages.
	if raw, err := c.store.LoadRaw(id, kind, store.DetailPageSuffix); err == nil {
		rec := parse.ParseDetail(raw, kind, c.cfg.Site)
		if rec.Len() >= c.cfg.MinDetailFields {
			idLog.Info("Salvaged record from cached detail page")
			rec.ID = id
			rec.CrawledAt = time.Now()
			c.recordOutcome(kind, id, models.OutcomeSuccess, 0)
			return rec, models.OutcomeSuccess, nil
		}
		idLog.Debug("Cached detail page present but parses under threshold, refetching")
	} else if !os.IsNotExist(err) {
		return nil, models.OutcomeNetwork, utils.WrapErrorf(utils.ErrFilesystem, "salvage check for %s: %v", id, err)
	}

	if c.store.IsFresh(id, kind, c.cfg.FreshnessWindow) {
		idLog.Debug("Persisted record still fresh, skipping")
		return nil, models.OutcomeSkipped, nil
	}

	if !c.session.IsOpen() {
		if err := c.session.Open(ctx); err != nil {
			idLog.Warnf("Session handshake failed: %v", err)
			// Fall through into the retry loop, which rebuilds the session.
		}
	}

	lastOutcome := models.OutcomeNetwork
	attempt := 0
	for attempt <= c.cfg.MaxRetries {
		if ctx.Err() != nil {
			return nil, lastOutcome, ctx.Err()
		}

		rec, outcome, err := c.attempt(ctx, id, kind, idLog.WithField("attempt", attempt))
		switch outcome {
		case models.OutcomeSuccess:
			rec.ID = id
			rec.CrawledAt = time.Now()
			c.recordOutcome(kind, id, outcome, attempt+1)
			return rec, outcome, nil

		case models.OutcomeNotFound:
			idLog.Info("Registry reports no matching records")
			c.recordOutcome(kind, id, outcome, attempt+1)
			return nil, outcome, nil

		case models.OutcomeRateLimited:
			// Expected and recoverable without cost: wait out the cooldown
			// and retry without consuming the bound.
			idLog.Warnf("Rate-limit interstitial, cooling down %v", c.cfg.RateLimitCooldown)
			if err := c.sleep(ctx, c.cfg.RateLimitCooldown); err != nil {
				return nil, outcome, err
			}
			continue

		default:
			lastOutcome = outcome
			idLog.WithField("category", utils.CategorizeError(err)).
				Warnf("Attempt failed (%s): %v", outcome, err)

			backoff := c.cfg.RetryBackoffBase + time.Duration(attempt)*time.Second
			if err := c.sleep(ctx, backoff); err != nil {
				return nil, outcome, err
			}
			// Every other retry, rebuild the session in case the far end
			// invalidated it.
			if attempt%2 == 1 {
				idLog.Debug("Rebuilding session")
				c.session.Close()
				if err := c.session.Open(ctx); err != nil {
					idLog.Warnf("Session rebuild failed: %v", err)
				}
			}
			attempt++
		}
	}

	idLog.Errorf("Giving up after %d structural retries (last outcome: %s)", c.cfg.MaxRetries, lastOutcome)
	c.recordOutcome(kind, id, lastOutcome, attempt)
	return nil, lastOutcome, nil
}

// attempt runs one full search -> detail pass. It returns a non-terminal
// outcome (rate_limited, parse_failed, network_error) with a describing
// error when the pass should be redriven by the caller's policy.
func (c *Crawler) attempt(ctx context.Context, id models.EntityID, kind models.EntityKind, attemptLog *logrus.Entry) (*models.DetailRecord, models.Outcome, error) {
	if err := c.limiter.Throttle(ctx); err != nil {
		return nil, models.OutcomeNetwork, err
	}

	status, body, err := c.session.Request(ctx, http.MethodPost, c.cfg.Site.QueryListURL, searchForm(id, kind), c.cfg.Site.QueryInitURL)
	if err != nil {
		return nil, models.OutcomeNetwork, err
	}
	if status != http.StatusOK {
		return nil, models.OutcomeNetwork, utils.WrapErrorf(utils.ErrHTTPStatus, "search returned %d", status)
	}

	// The site refuses rapid follow-up navigation after a search.
	if err := c.sleep(ctx, c.cfg.SearchDelay); err != nil {
		return nil, models.OutcomeNetwork, err
	}

	switch parse.Classify(body, c.cfg.Site) {
	case models.OutcomeRateLimited:
		c.saveRaw(id, kind, store.RateLimitedSuffix, body, attemptLog)
		return nil, models.OutcomeRateLimited, nil
	case models.OutcomeNotFound:
		c.saveRaw(id, kind, store.NotFoundSuffix, body, attemptLog)
		return nil, models.OutcomeNotFound, nil
	}
	c.saveRaw(id, kind, store.SearchSuffix, body, attemptLog)

	link, ok := parse.FindDetailLink(body, kind, c.cfg.Site)
	if !ok {
		return nil, models.OutcomeParseFailed, utils.WrapErrorf(utils.ErrDetailLink, "id %s", id)
	}

	if err := c.limiter.Throttle(ctx); err != nil {
		return nil, models.OutcomeNetwork, err
	}
	status, body, err = c.session.Request(ctx, http.MethodGet, c.resolveLink(link), nil, c.cfg.Site.QueryListURL)
	if err != nil {
		return nil, models.OutcomeNetwork, err
	}
	if status != http.StatusOK {
		return nil, models.OutcomeNetwork, utils.WrapErrorf(utils.ErrHTTPStatus, "detail returned %d", status)
	}
	// Soft-error pages come back tiny; anything under the floor is junk.
	if len(body) < c.cfg.MinDetailBytes {
		return nil, models.OutcomeNetwork, utils.WrapErrorf(utils.ErrDetailTooShort, "%d bytes", len(body))
	}

	// This snapshot is what the salvage path reads on future runs.
	c.saveRaw(id, kind, store.DetailPageSuffix, body, attemptLog)

	rec := parse.ParseDetail(body, kind, c.cfg.Site)
	if rec.Len() < c.cfg.MinDetailFields {
		return nil, models.OutcomeParseFailed, utils.WrapErrorf(utils.ErrParseIncomplete, "%d fields", rec.Len())
	}
	return rec, models.OutcomeSuccess, nil
}

// Summary is the batch result the CLI reports.
type Summary struct {
	Processed    int
	Succeeded    int
	Skipped      int
	NotFound     int
	Failed       int
	SucceededIDs []models.EntityID
	Duration     time.Duration
}

// Crawl runs FetchDetail for every ID in order, persisting each success.
// Per-ID failures are logged and counted, never raised: one bad ID must not
// abort a multi-ID run. It stops early only on context cancellation.
func (c *Crawler) Crawl(ctx context.Context, ids []models.EntityID, kind models.EntityKind) (Summary, error) {
	start := time.Now()
	summary := Summary{}

	for _, id := range ids {
		if ctx.Err() != nil {
			break
		}
		summary.Processed++

		rec, outcome, err := c.FetchDetail(ctx, id, kind)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			c.log.WithField("id", id).Errorf("Fetch error: %v", err)
			summary.Failed++
			continue
		}

		switch outcome {
		case models.OutcomeSuccess:
			if _, err := c.store.Save(id, kind, rec); err != nil {
				c.log.WithField("id", id).Errorf("Save failed: %v", err)
				summary.Failed++
				continue
			}
			summary.Succeeded++
			summary.SucceededIDs = append(summary.SucceededIDs, id)
		case models.OutcomeSkipped:
			summary.Skipped++
		case models.OutcomeNotFound:
			summary.NotFound++
		default:
			summary.Failed++
		}
	}

	summary.Duration = time.Since(start)
	c.log.WithFields(logrus.Fields{
		"processed": summary.Processed, "succeeded": summary.Succeeded,
		"skipped": summary.Skipped, "not_found": summary.NotFound,
		"failed": summary.Failed, "duration": summary.Duration,
	}).Info("Batch complete")
	return summary, ctx.Err()
}

// searchForm builds the kind-specific query parameters for the search POST.
func searchForm(id models.EntityID, kind models.EntityKind) url.Values {
	form := url.Values{
		"qryCond":       {string(id)},
		"validatorOpen": {"N"},
		"rlPermit":      {"0"},
		"userResp":      {""},
		"curPage":       {"0"},
		"fhl":           {"zh_TW"},
		"infoType":      {"D"},
	}
	if kind == models.KindBusiness {
		form.Set("qryType", "busmType")
		form.Set("busmType", "true")
	} else {
		form.Set("qryType", "cmpyType")
		form.Set("cmpyType", "true")
	}
	return form
}

// resolveLink turns a relative detail href into an absolute URL. Hrefs are
// resolved against the query-list page they appeared on, so both
// root-relative and directory-relative forms land on the right path.
func (c *Crawler) resolveLink(link string) string {
	if strings.HasPrefix(link, "http://") || strings.HasPrefix(link, "https://") {
		return link
	}
	base, err := url.Parse(c.cfg.Site.QueryListURL)
	if err != nil || base.Host == "" {
		if base, err = url.Parse(c.cfg.Site.BaseURL); err != nil {
			return link
		}
	}
	ref, err := url.Parse(link)
	if err != nil {
		return link
	}
	return base.ResolveReference(ref).String()
}

// sleep waits for d unless fast mode is on or the context ends first.
func (c *Crawler) sleep(ctx context.Context, d time.Duration) error {
	if c.cfg.FastMode || d <= 0 {
		return nil
	}
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// saveRaw persists a diagnostic snapshot; snapshot failures are logged, not
// propagated, because diagnostics must never fail a fetch.
func (c *Crawler) saveRaw(id models.EntityID, kind models.EntityKind, suffix string, body []byte, log *logrus.Entry) {
	if err := c.store.SaveRaw(id, kind, suffix, body); err != nil {
		log.Warnf("Failed to save %s snapshot: %v", suffix, err)
	}
}

// recordOutcome writes the terminal outcome to the registry when one is
// configured.
func (c *Crawler) recordOutcome(kind models.EntityKind, id models.EntityID, outcome models.Outcome, attempts int) {
	if c.reg == nil {
		return
	}
	entry := registry.FetchEntry{Outcome: outcome, Attempts: attempts, LastAttempt: time.Now()}
	if err := c.reg.RecordFetch(kind, id, entry); err != nil {
		c.log.WithField("id", id).Warnf("Failed to record outcome: %v", err)
	}
}
