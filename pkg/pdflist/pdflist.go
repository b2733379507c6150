package pdflist

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"

	"github.com/sirupsen/logrus"

	"github.com/kiang/biz-crawlers/pkg/config"
	"github.com/kiang/biz-crawlers/pkg/fetch"
	"github.com/kiang/biz-crawlers/pkg/models"
	"github.com/kiang/biz-crawlers/pkg/registry"
	"github.com/kiang/biz-crawlers/pkg/utils"
)

// Runs of exactly 8 digits; the change lists print one registration number
// per affected entity.
var idRunRe = regexp.MustCompile(`\b\d{8}\b`)

// Crawler downloads the monthly change-list PDF, extracts its text with the
// external pdftotext utility, and yields the unique entity IDs it mentions.
// Processed artifacts are recorded in the registry so re-runs skip them.
type Crawler struct {
	client  *http.Client
	cfg     *config.AppConfig
	limiter *fetch.RateLimiter
	reg     *registry.Registry
	log     *logrus.Entry
}

// New wires a Crawler.
func New(client *http.Client, cfg *config.AppConfig, limiter *fetch.RateLimiter, reg *registry.Registry, log *logrus.Entry) *Crawler {
	return &Crawler{client: client, cfg: cfg, limiter: limiter, reg: reg, log: log}
}

// Run fetches and parses the change list for one year-month. Year and month
// are caller obligations; missing values abort the invocation.
func (c *Crawler) Run(ctx context.Context, year, month int) ([]models.EntityID, error) {
	if year == 0 || month == 0 {
		return nil, utils.WrapErrorf(utils.ErrConfigValidation, "pdf list requires year and month (got %d/%d)", year, month)
	}
	if c.cfg.PDFList.URLTemplate == "" {
		return nil, utils.WrapErrorf(utils.ErrConfigValidation, "pdf_list.url_template is not configured")
	}

	pdfURL := fmt.Sprintf(c.cfg.PDFList.URLTemplate, year, month)
	runLog := c.log.WithField("url", pdfURL)

	if c.reg != nil {
		processed, err := c.reg.IsPDFProcessed(pdfURL)
		if err != nil {
			return nil, err
		}
		if processed {
			runLog.Info("Change list already processed, skipping download")
			return nil, nil
		}
	}

	pdfPath, err := c.download(ctx, pdfURL)
	if err != nil {
		return nil, err
	}
	defer os.Remove(pdfPath)

	text, err := c.extractText(ctx, pdfPath)
	if err != nil {
		return nil, err
	}

	ids := ExtractIDs(text)
	runLog.Infof("Extracted %d unique entity IDs", len(ids))

	if c.reg != nil {
		if err := c.reg.MarkPDFProcessed(pdfURL, len(ids)); err != nil {
			runLog.Warnf("Failed to mark PDF processed: %v", err)
		}
	}
	return ids, nil
}

func (c *Crawler) download(ctx context.Context, pdfURL string) (string, error) {
	if err := c.limiter.Throttle(ctx); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pdfURL, nil)
	if err != nil {
		return "", utils.WrapErrorf(utils.ErrRequestCreation, "%s: %v", pdfURL, err)
	}
	req.Header.Set("User-Agent", c.cfg.UserAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", utils.WrapErrorf(utils.ErrHTTPStatus, "change list returned %d", resp.StatusCode)
	}

	tmp, err := os.CreateTemp("", "bizlist-*.pdf")
	if err != nil {
		return "", utils.WrapErrorf(utils.ErrFilesystem, "temp file: %v", err)
	}
	defer tmp.Close()
	if _, err := io.Copy(tmp, resp.Body); err != nil {
		os.Remove(tmp.Name())
		return "", utils.WrapErrorf(utils.ErrResponseBodyRead, "%s: %v", pdfURL, err)
	}
	return tmp.Name(), nil
}

func (c *Crawler) extractText(ctx context.Context, pdfPath string) (string, error) {
	binary := c.cfg.PDFList.PdftotextPath
	if binary == "" {
		binary = "pdftotext"
	}
	txtPath := filepath.Join(filepath.Dir(pdfPath), filepath.Base(pdfPath)+".txt")
	defer os.Remove(txtPath)

	cmd := exec.CommandContext(ctx, binary, "-layout", pdfPath, txtPath)
	if out, err := cmd.CombinedOutput(); err != nil {
		return "", fmt.Errorf("%s failed: %v (%s)", binary, err, string(out))
	}

	text, err := os.ReadFile(txtPath)
	if err != nil {
		return "", utils.WrapErrorf(utils.ErrFilesystem, "read extracted text: %v", err)
	}
	return string(text), nil
}

// ExtractIDs returns the unique 8-digit runs in extraction order.
func ExtractIDs(text string) []models.EntityID {
	seen := make(map[string]struct{})
	var ids []models.EntityID
	for _, run := range idRunRe.FindAllString(text, -1) {
		if _, dup := seen[run]; dup {
			continue
		}
		seen[run] = struct{}{}
		ids = append(ids, models.EntityID(run))
	}
	return ids
}
