package schools

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/sirupsen/logrus"

	"github.com/kiang/biz-crawlers/pkg/config"
	"github.com/kiang/biz-crawlers/pkg/fetch"
	"github.com/kiang/biz-crawlers/pkg/models"
	"github.com/kiang/biz-crawlers/pkg/utils"
)

// Row is one school-directory entry.
type Row struct {
	ID   models.EntityID
	Name string
}

// Scraper walks the paginated school directory, collecting (ID, name) rows
// until the first empty page.
type Scraper struct {
	client  *http.Client
	cfg     *config.AppConfig
	limiter *fetch.RateLimiter
	log     *logrus.Entry
}

// New wires a Scraper.
func New(client *http.Client, cfg *config.AppConfig, limiter *fetch.RateLimiter, log *logrus.Entry) *Scraper {
	return &Scraper{client: client, cfg: cfg, limiter: limiter, log: log}
}

// Run fetches pages in order, sharing the global request floor with every
// other crawler in the process.
func (s *Scraper) Run(ctx context.Context) ([]Row, error) {
	if s.cfg.Schools.URLTemplate == "" {
		return nil, utils.WrapErrorf(utils.ErrConfigValidation, "schools.url_template is not configured")
	}
	maxPages := s.cfg.Schools.MaxPages
	if maxPages <= 0 {
		maxPages = 500
	}

	var all []Row
	for page := 1; page <= maxPages; page++ {
		if err := s.limiter.Throttle(ctx); err != nil {
			return all, err
		}

		body, err := s.fetchPage(ctx, page)
		if err != nil {
			return all, err
		}
		rows := s.parsePage(body)
		if len(rows) == 0 {
			s.log.Debugf("Page %d is empty, stopping", page)
			break
		}
		all = append(all, rows...)
		s.log.WithFields(logrus.Fields{"page": page, "rows": len(rows)}).Debug("Page scraped")
	}

	s.log.Infof("School directory scrape complete: %d rows", len(all))
	return all, nil
}

func (s *Scraper) fetchPage(ctx context.Context, page int) ([]byte, error) {
	pageURL := fmt.Sprintf(s.cfg.Schools.URLTemplate, page)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, utils.WrapErrorf(utils.ErrRequestCreation, "%s: %v", pageURL, err)
	}
	req.Header.Set("User-Agent", s.cfg.UserAgent)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, utils.WrapErrorf(utils.ErrHTTPStatus, "page %d returned %d", page, resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, utils.WrapErrorf(utils.ErrResponseBodyRead, "%s: %v", pageURL, err)
	}
	return body, nil
}

// parsePage extracts directory rows: first cell the registration number,
// second the school name.
func (s *Scraper) parsePage(body []byte) []Row {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil
	}

	table := doc.Find("table")
	if s.cfg.Schools.TableID != "" {
		table = doc.Find("table#" + s.cfg.Schools.TableID)
	}

	var rows []Row
	table.First().Find("tr").Each(func(i int, row *goquery.Selection) {
		cells := row.Find("td")
		if cells.Length() < 2 {
			return // header or filler row
		}
		id, err := models.NormalizeID(strings.TrimSpace(cells.Eq(0).Text()))
		if err != nil {
			return
		}
		name := strings.TrimSpace(cells.Eq(1).Text())
		if name == "" {
			return
		}
		rows = append(rows, Row{ID: id, Name: name})
	})
	return rows
}
