package crawler

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kiang/biz-crawlers/pkg/config"
	"github.com/kiang/biz-crawlers/pkg/fetch"
	"github.com/kiang/biz-crawlers/pkg/models"
	"github.com/kiang/biz-crawlers/pkg/store"
)

func testLogEntry() *logrus.Entry {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return logrus.NewEntry(log)
}

func testConfig(t *testing.T) *config.AppConfig {
	t.Helper()
	cfg := &config.AppConfig{
		OutputBaseDir: t.TempDir(),
		StateDir:      t.TempDir(),
		FastMode:      true, // no deliberate sleeps in tests
	}
	_, err := cfg.Validate()
	require.NoError(t, err)
	cfg.MinDetailBytes = 10
	return cfg
}

// scripted is one canned Request response.
type scripted struct {
	status int
	body   []byte
	err    error
}

// fakeSession replays scripted responses. When the script runs out, the
// last response repeats.
type fakeSession struct {
	t            *testing.T
	script       []scripted
	requestCount int
	openCount    int
	closeCount   int
	open         bool
	failRequests bool // fail the test on any Request
}

func (f *fakeSession) Open(ctx context.Context) error {
	f.openCount++
	f.open = true
	return nil
}

func (f *fakeSession) IsOpen() bool { return f.open }

func (f *fakeSession) Request(ctx context.Context, method, rawURL string, form url.Values, referer string) (int, []byte, error) {
	if f.failRequests {
		f.t.Fatalf("unexpected network request: %s %s", method, rawURL)
	}
	f.requestCount++
	i := f.requestCount - 1
	if i >= len(f.script) {
		i = len(f.script) - 1
	}
	s := f.script[i]
	return s.status, s.body, s.err
}

func (f *fakeSession) Close() {
	f.closeCount++
	f.open = false
}

func newTestCrawler(t *testing.T, cfg *config.AppConfig, session Session) (*Crawler, *store.Store) {
	t.Helper()
	limiter := fetch.NewRateLimiter(time.Millisecond, true, testLogEntry())
	st := store.New(cfg.OutputBaseDir, testLogEntry())
	return New(cfg, session, limiter, st, nil, testLogEntry()), st
}

// detailFixture is a minimal company detail page that parses to well over
// the minimum field count.
func detailFixture(site config.SiteConfig) []byte {
	return []byte(`<html><body><div id="` + site.CompanyContainerID + `">
<table>
<tr><td>統一編號</td><td>70790226</td></tr>
<tr><td>公司名稱</td><td>測試股份有限公司</td></tr>
<tr><td>公司狀況</td><td>核准設立</td></tr>
<tr><td>核准設立日期</td><td>110年3月1日</td></tr>
</table>
</div></body></html>`)
}

// resultsFixture is a search-results page whose best row links to the
// company detail path.
func resultsFixture(site config.SiteConfig) []byte {
	return []byte(`<html><body><table id="` + site.ResultTableID + `">
<tr><th>序號</th><th>統編</th><th>名稱</th><th>負責人</th><th>所在地</th><th>狀況</th><th>` + site.ChangeDateLabel + `</th></tr>
<tr><td><a href="/fts/query/QueryCmpyDetail/queryCmpyDetail.do?banNo=70790226">70790226</a></td>
<td>70790226</td><td>測試</td><td>王</td><td>北市</td><td>核准</td><td>113/06/15</td></tr>
</table></body></html>`)
}

func TestFetchDetailSuccess(t *testing.T) {
	cfg := testConfig(t)
	session := &fakeSession{t: t, script: []scripted{
		{status: http.StatusOK, body: resultsFixture(cfg.Site)},
		{status: http.StatusOK, body: detailFixture(cfg.Site)},
	}}
	c, st := newTestCrawler(t, cfg, session)

	rec, outcome, err := c.FetchDetail(context.Background(), "70790226", models.KindCompany)
	require.NoError(t, err)
	require.Equal(t, models.OutcomeSuccess, outcome)
	require.NotNil(t, rec)

	assert.Equal(t, models.EntityID("70790226"), rec.ID)
	assert.False(t, rec.CrawledAt.IsZero())
	assert.GreaterOrEqual(t, rec.Len(), 3)
	assert.Equal(t, 2, session.requestCount, "one search POST, one detail GET")

	// The raw detail snapshot must exist for future salvage runs.
	_, err = st.LoadRaw("70790226", models.KindCompany, store.DetailPageSuffix)
	assert.NoError(t, err)
}

func TestFetchDetailSalvagesCachedPage(t *testing.T) {
	cfg := testConfig(t)
	session := &fakeSession{t: t, failRequests: true}
	c, st := newTestCrawler(t, cfg, session)

	require.NoError(t, st.SaveRaw("70790226", models.KindCompany, store.DetailPageSuffix, detailFixture(cfg.Site)))

	rec, outcome, err := c.FetchDetail(context.Background(), "70790226", models.KindCompany)
	require.NoError(t, err)
	require.Equal(t, models.OutcomeSuccess, outcome)
	require.NotNil(t, rec)
	assert.GreaterOrEqual(t, rec.Len(), 3)
	assert.Equal(t, 0, session.openCount, "salvage must not touch the network")
}

func TestFetchDetailSkipsFreshRecord(t *testing.T) {
	cfg := testConfig(t)
	session := &fakeSession{t: t, failRequests: true}
	c, st := newTestCrawler(t, cfg, session)

	rec := models.NewDetailRecord()
	rec.Set("公司名稱", models.StringValue("測試股份有限公司"))
	rec.ID = "70790226"
	rec.CrawledAt = time.Now()
	_, err := st.Save("70790226", models.KindCompany, rec)
	require.NoError(t, err)

	got, outcome, err := c.FetchDetail(context.Background(), "70790226", models.KindCompany)
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeSkipped, outcome)
	assert.Nil(t, got)
}

func TestFetchDetailNotFoundIsTerminal(t *testing.T) {
	cfg := testConfig(t)
	session := &fakeSession{t: t, script: []scripted{
		{status: http.StatusOK, body: []byte("<html>" + cfg.Site.NoResultMarker + "</html>")},
	}}
	c, st := newTestCrawler(t, cfg, session)

	rec, outcome, err := c.FetchDetail(context.Background(), "70790226", models.KindCompany)
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeNotFound, outcome)
	assert.Nil(t, rec)
	assert.Equal(t, 1, session.requestCount, "a negative answer must not be retried")

	_, err = st.LoadRaw("70790226", models.KindCompany, store.NotFoundSuffix)
	assert.NoError(t, err, "diagnostic snapshot for the not-found page")
}

func TestFetchDetailRetryBound(t *testing.T) {
	cfg := testConfig(t)
	cfg.MaxRetries = 1
	session := &fakeSession{t: t, script: []scripted{
		{status: http.StatusInternalServerError},
	}}
	c, _ := newTestCrawler(t, cfg, session)

	rec, outcome, err := c.FetchDetail(context.Background(), "70790226", models.KindCompany)
	require.NoError(t, err, "exhausted retries are reported, not raised")
	assert.Nil(t, rec)
	assert.Equal(t, models.OutcomeNetwork, outcome)
	assert.Equal(t, cfg.MaxRetries+1, session.requestCount, "exactly initial attempt + retries")
}

func TestFetchDetailRebuildsSessionEveryOtherRetry(t *testing.T) {
	cfg := testConfig(t)
	cfg.MaxRetries = 3
	session := &fakeSession{t: t, script: []scripted{
		{status: http.StatusInternalServerError},
	}}
	c, _ := newTestCrawler(t, cfg, session)

	_, _, err := c.FetchDetail(context.Background(), "70790226", models.KindCompany)
	require.NoError(t, err)
	assert.Greater(t, session.closeCount, 0, "session must be torn down on repeated failure")
	assert.Equal(t, session.closeCount+1, session.openCount, "every teardown is followed by a rebuild")
}

func TestFetchDetailRateLimitDoesNotConsumeRetries(t *testing.T) {
	cfg := testConfig(t)
	cfg.MaxRetries = 0 // any counted retry would fail the lookup
	rateLimited := scripted{status: http.StatusOK, body: []byte("<html>" + cfg.Site.RateLimitMarker + "</html>")}
	session := &fakeSession{t: t, script: []scripted{
		rateLimited,
		rateLimited,
		{status: http.StatusOK, body: []byte("<html>" + cfg.Site.NoResultMarker + "</html>")},
	}}
	c, _ := newTestCrawler(t, cfg, session)

	_, outcome, err := c.FetchDetail(context.Background(), "70790226", models.KindCompany)
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeNotFound, outcome)
	assert.Equal(t, 3, session.requestCount, "rate-limited attempts retry for free")
}

func TestFetchDetailShortDetailBodyIsRetryable(t *testing.T) {
	cfg := testConfig(t)
	cfg.MaxRetries = 0
	session := &fakeSession{t: t, script: []scripted{
		{status: http.StatusOK, body: resultsFixture(cfg.Site)},
		{status: http.StatusOK, body: []byte("tiny")},
	}}
	c, _ := newTestCrawler(t, cfg, session)

	rec, outcome, err := c.FetchDetail(context.Background(), "70790226", models.KindCompany)
	require.NoError(t, err)
	assert.Nil(t, rec)
	assert.Equal(t, models.OutcomeNetwork, outcome)
}

func TestCrawlBatchContinuesPastFailures(t *testing.T) {
	cfg := testConfig(t)
	cfg.MaxRetries = 0
	session := &fakeSession{t: t, script: []scripted{
		// First ID: search + detail succeed.
		{status: http.StatusOK, body: resultsFixture(cfg.Site)},
		{status: http.StatusOK, body: detailFixture(cfg.Site)},
		// Second ID: not found.
		{status: http.StatusOK, body: []byte("<html>" + cfg.Site.NoResultMarker + "</html>")},
		// Third ID: hard failure.
		{status: http.StatusInternalServerError},
	}}
	c, st := newTestCrawler(t, cfg, session)

	ids := []models.EntityID{"70790226", "11112222", "33334444"}
	summary, err := c.Crawl(context.Background(), ids, models.KindCompany)
	require.NoError(t, err)

	assert.Equal(t, 3, summary.Processed)
	assert.Equal(t, 1, summary.Succeeded)
	assert.Equal(t, 1, summary.NotFound)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, []models.EntityID{"70790226"}, summary.SucceededIDs)

	// The success must be persisted where the path function says.
	loaded, err := st.Load("70790226", models.KindCompany)
	require.NoError(t, err)
	assert.Equal(t, models.EntityID("70790226"), loaded.ID)
}

func TestResolveLink(t *testing.T) {
	cfg := testConfig(t)
	cfg.Site.QueryListURL = "https://findbiz.nat.gov.tw/fts/query/QueryList/queryList.do"
	c, _ := newTestCrawler(t, cfg, &fakeSession{t: t})

	t.Run("directory-relative resolves against the list page", func(t *testing.T) {
		assert.Equal(t,
			"https://findbiz.nat.gov.tw/fts/query/QueryList/queryCmpyDetail.do?banNo=70790226",
			c.resolveLink("queryCmpyDetail.do?banNo=70790226"))
	})

	t.Run("root-relative keeps its own path", func(t *testing.T) {
		assert.Equal(t,
			"https://findbiz.nat.gov.tw/fts/query/QueryCmpyDetail/queryCmpyDetail.do?banNo=70790226",
			c.resolveLink("/fts/query/QueryCmpyDetail/queryCmpyDetail.do?banNo=70790226"))
	})

	t.Run("absolute passes through", func(t *testing.T) {
		link := "https://other.example/detail.do"
		assert.Equal(t, link, c.resolveLink(link))
	})
}

func TestCrawlStopsOnContextCancellation(t *testing.T) {
	cfg := testConfig(t)
	session := &fakeSession{t: t, script: []scripted{
		{status: http.StatusOK, body: resultsFixture(cfg.Site)},
		{status: http.StatusOK, body: detailFixture(cfg.Site)},
	}}
	c, _ := newTestCrawler(t, cfg, session)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	summary, err := c.Crawl(ctx, []models.EntityID{"70790226"}, models.KindCompany)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, summary.Processed)
}
