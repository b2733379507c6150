package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/kiang/biz-crawlers/pkg/models"
	"github.com/kiang/biz-crawlers/pkg/utils"
)

// Raw snapshot suffixes written by the orchestrator. DetailPageSuffix is the
// one the salvage path reads back.
const (
	SearchSuffix      = "search"
	NotFoundSuffix    = "notfound"
	RateLimitedSuffix = "ratelimited"
	DetailPageSuffix  = "detail_page"
)

// Store maps entity IDs to their sharded on-disk JSON records and raw HTML
// snapshots under one base directory.
type Store struct {
	base string
	log  *logrus.Entry
}

// New creates a Store rooted at base.
func New(base string, log *logrus.Entry) *Store {
	return &Store{base: base, log: log}
}

// Path returns the record location for an entity:
// {base}/{kind-plural}/details/{first-digit}/{id}.json
func (s *Store) Path(id models.EntityID, kind models.EntityKind) string {
	return filepath.Join(s.base, kind.Plural(), "details", id.Shard(), string(id)+".json")
}

// RawPath returns the diagnostic HTML location for an entity:
// {base}/raw/{kind-plural}/{id}_{suffix}.html
func (s *Store) RawPath(id models.EntityID, kind models.EntityKind, suffix string) string {
	name := fmt.Sprintf("%s_%s.html", id, utils.SanitizeFilename(suffix))
	return filepath.Join(s.base, "raw", kind.Plural(), name)
}

// Save writes the record as pretty JSON with literal (non-escaped) unicode.
// Encoding falls back through progressively less strict strategies so a save
// attempt for a valid record never silently produces a zero-byte file.
func (s *Store) Save(id models.EntityID, kind models.EntityKind, rec *models.DetailRecord) (string, error) {
	path := s.Path(id, kind)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", utils.WrapErrorf(utils.ErrFilesystem, "mkdir for %s: %v", path, err)
	}

	data := encodeRecord(rec, s.log.WithField("id", id))
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", utils.WrapErrorf(utils.ErrFilesystem, "write %s: %v", path, err)
	}
	return path, nil
}

// encodeRecord runs the fallback ladder: unescaped-unicode pretty JSON, then
// escaped pretty, then escaped compact, then an explicit error-marker
// document.
func encodeRecord(rec *models.DetailRecord, log *logrus.Entry) []byte {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(rec); err == nil {
		return buf.Bytes()
	} else {
		log.Warnf("Literal-unicode encoding failed, falling back: %v", err)
	}

	if data, err := json.MarshalIndent(rec, "", "  "); err == nil {
		return data
	} else {
		log.Warnf("Pretty encoding failed, falling back: %v", err)
	}

	if data, err := json.Marshal(rec); err == nil {
		return data
	} else {
		log.Errorf("Compact encoding failed, writing error marker: %v", err)
	}

	marker := map[string]string{
		"id":    string(rec.ID),
		"error": "record serialization failed",
	}
	data, _ := json.Marshal(marker)
	return data
}

// Load reads and decodes a persisted record.
func (s *Store) Load(id models.EntityID, kind models.EntityKind) (*models.DetailRecord, error) {
	data, err := os.ReadFile(s.Path(id, kind))
	if err != nil {
		return nil, err
	}
	rec := models.NewDetailRecord()
	if err := json.Unmarshal(data, rec); err != nil {
		return nil, utils.WrapErrorf(utils.ErrParsing, "JSON record %s: %v", s.Path(id, kind), err)
	}
	return rec, nil
}

// IsFresh reports whether the persisted record is younger than window.
func (s *Store) IsFresh(id models.EntityID, kind models.EntityKind, window time.Duration) bool {
	return s.IsFreshAt(id, kind, window, time.Now())
}

// IsFreshAt is IsFresh against an explicit clock. The record's crawled_at
// decides; the file modification time is the fallback when the timestamp is
// absent. Corrupt JSON is deleted and treated as stale, forcing a re-crawl
// instead of wedging forever.
func (s *Store) IsFreshAt(id models.EntityID, kind models.EntityKind, window time.Duration, now time.Time) bool {
	path := s.Path(id, kind)
	data, err := os.ReadFile(path)
	if err != nil {
		return false
	}

	var stamped struct {
		CrawledAt time.Time `json:"crawled_at"`
	}
	if err := json.Unmarshal(data, &stamped); err != nil {
		s.log.WithField("path", path).Warnf("Deleting corrupt record: %v", err)
		if rmErr := os.Remove(path); rmErr != nil {
			s.log.Errorf("Failed to delete corrupt record %s: %v", path, rmErr)
		}
		return false
	}

	crawledAt := stamped.CrawledAt
	if crawledAt.IsZero() {
		info, err := os.Stat(path)
		if err != nil {
			return false
		}
		crawledAt = info.ModTime()
	}
	return now.Sub(crawledAt) < window
}

// SaveRaw writes a diagnostic HTML snapshot.
func (s *Store) SaveRaw(id models.EntityID, kind models.EntityKind, suffix string, body []byte) error {
	path := s.RawPath(id, kind, suffix)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return utils.WrapErrorf(utils.ErrFilesystem, "mkdir for %s: %v", path, err)
	}
	if err := os.WriteFile(path, body, 0644); err != nil {
		return utils.WrapErrorf(utils.ErrFilesystem, "write %s: %v", path, err)
	}
	return nil
}

// LoadRaw reads a previously saved snapshot. os.IsNotExist on the returned
// error distinguishes "never fetched" from real I/O failures.
func (s *Store) LoadRaw(id models.EntityID, kind models.EntityKind, suffix string) ([]byte, error) {
	return os.ReadFile(s.RawPath(id, kind, suffix))
}
