package fetch

import (
	"context"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/kiang/biz-crawlers/pkg/config"
	"github.com/kiang/biz-crawlers/pkg/utils"
)

// Session owns the single cookie-bearing connection to the registry site.
// It is used serially by one orchestrator; it is not safe for concurrent
// use and is not meant to be shared.
type Session struct {
	client *http.Client
	cfg    *config.AppConfig
	log    *logrus.Entry
	open   bool
}

// NewSession creates a Session around the shared HTTP client.
func NewSession(client *http.Client, cfg *config.AppConfig, log *logrus.Entry) *Session {
	return &Session{client: client, cfg: cfg, log: log}
}

// IsOpen reports whether the handshake has been performed.
func (s *Session) IsOpen() bool { return s.open }

// Open performs the two-step handshake: GET the form-init page, wait a short
// stabilization delay, then GET the query-list page following redirects. The
// cookies captured here authorize all later search requests.
func (s *Session) Open(ctx context.Context) error {
	sessionID := uuid.NewString()[:8]
	s.log = s.log.WithField("session", sessionID)
	s.log.Info("Opening registry session")

	status, _, err := s.Request(ctx, http.MethodGet, s.cfg.Site.QueryInitURL, nil, "")
	if err != nil {
		return utils.WrapErrorf(utils.ErrSessionInit, "init page: %v", err)
	}
	if status != http.StatusOK {
		return utils.WrapErrorf(utils.ErrSessionInit, "init page status %d", status)
	}

	if !s.cfg.FastMode {
		select {
		case <-time.After(s.cfg.SessionInitDelay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	status, _, err = s.Request(ctx, http.MethodGet, s.cfg.Site.QueryListURL, nil, s.cfg.Site.QueryInitURL)
	if err != nil {
		return utils.WrapErrorf(utils.ErrSessionInit, "list page: %v", err)
	}
	if status != http.StatusOK {
		return utils.WrapErrorf(utils.ErrSessionInit, "list page status %d", status)
	}

	s.open = true
	s.log.Debug("Session handshake complete")
	return nil
}

// Request issues one HTTP request on the session. A non-nil form makes it a
// form POST regardless of method. The body is always fully read and closed;
// non-2xx statuses are returned as-is for the caller to classify, not as
// errors.
func (s *Session) Request(ctx context.Context, method, rawURL string, form url.Values, referer string) (int, []byte, error) {
	var bodyReader io.Reader
	if form != nil {
		method = http.MethodPost
		bodyReader = strings.NewReader(form.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, bodyReader)
	if err != nil {
		return 0, nil, utils.WrapErrorf(utils.ErrRequestCreation, "%s %s: %v", method, rawURL, err)
	}
	req.Header.Set("User-Agent", s.cfg.UserAgent)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	if referer != "" {
		req.Header.Set("Referer", referer)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, utils.WrapErrorf(utils.ErrResponseBodyRead, "%s: %v", rawURL, err)
	}
	s.log.WithFields(logrus.Fields{
		"method": method, "url": rawURL, "status": resp.StatusCode, "bytes": len(body),
	}).Debug("Request complete")
	return resp.StatusCode, body, nil
}

// Close tears the session down: idle connections are dropped and the cookie
// jar is replaced, so the next Open starts a clean handshake. Used by the
// orchestrator's session-refresh-on-failure policy.
func (s *Session) Close() {
	s.client.CloseIdleConnections()
	if jar, err := cookiejar.New(nil); err == nil {
		s.client.Jar = jar
	}
	s.open = false
	s.log.Debug("Session closed")
}
