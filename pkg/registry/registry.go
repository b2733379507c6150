package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/sirupsen/logrus"

	"github.com/kiang/biz-crawlers/pkg/log"
	"github.com/kiang/biz-crawlers/pkg/models"
	"github.com/kiang/biz-crawlers/pkg/utils"
)

const (
	fetchKeyPrefix = "fetch:"         // fetch:{kind}:{id} -> FetchEntry
	pdfKeyPrefix   = "pdf:"           // pdf:{url} -> PDFEntry
	registryDBDir  = "crawl_registry" // Subdirectory within stateDir for Badger files
)

// FetchEntry records the terminal outcome of the last fetch attempt for an
// entity.
type FetchEntry struct {
	Outcome     models.Outcome `json:"outcome"`
	Attempts    int            `json:"attempts"`
	LastAttempt time.Time      `json:"last_attempt"`
}

// PDFEntry records a change-list PDF artifact that has already been fetched
// and parsed, so a re-run skips the download.
type PDFEntry struct {
	FetchedAt time.Time `json:"fetched_at"`
	IDCount   int       `json:"id_count"`
}

// Registry is the durable record of crawl progress, backed by BadgerDB.
type Registry struct {
	db  *badger.DB
	log *logrus.Entry
}

// Open initializes the registry database under stateDir.
func Open(stateDir string, logger *logrus.Entry) (*Registry, error) {
	dbPath := filepath.Join(stateDir, registryDBDir)
	if err := os.MkdirAll(dbPath, 0755); err != nil {
		return nil, utils.WrapErrorf(utils.ErrFilesystem, "cannot create state directory %s: %v", dbPath, err)
	}

	opts := badger.DefaultOptions(dbPath).
		WithLogger(log.NewBadgerAdapter(logger.WithField("component", "badgerdb"))).
		WithNumVersionsToKeep(1)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, utils.WrapErrorf(utils.ErrDatabase, "open badger database at %s: %v", dbPath, err)
	}
	logger.Infof("Crawl registry opened at %s", dbPath)
	return &Registry{db: db, log: logger}, nil
}

const maxConflictRetries = 10

// dbUpdate wraps db.Update with a retry loop for BadgerDB transaction
// conflicts; they resolve in microseconds, so a tight loop is sufficient.
func (r *Registry) dbUpdate(fn func(txn *badger.Txn) error) error {
	for i := 0; i < maxConflictRetries; i++ {
		err := r.db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
		r.log.Debugf("BadgerDB transaction conflict (attempt %d/%d), retrying", i+1, maxConflictRetries)
	}
	return utils.WrapErrorf(utils.ErrDatabase, "transaction conflict not resolved after %d retries", maxConflictRetries)
}

func fetchKey(kind models.EntityKind, id models.EntityID) []byte {
	return []byte(fmt.Sprintf("%s%s:%s", fetchKeyPrefix, kind, id))
}

// RecordFetch stores the outcome of a fetch attempt.
func (r *Registry) RecordFetch(kind models.EntityKind, id models.EntityID, entry FetchEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return utils.WrapErrorf(utils.ErrDatabase, "marshal fetch entry for %s: %v", id, err)
	}
	err = r.dbUpdate(func(txn *badger.Txn) error {
		return txn.Set(fetchKey(kind, id), data)
	})
	if err != nil {
		return utils.WrapErrorf(utils.ErrDatabase, "record fetch for %s: %v", id, err)
	}
	return nil
}

// LookupFetch returns the recorded outcome for an entity, if any.
func (r *Registry) LookupFetch(kind models.EntityKind, id models.EntityID) (*FetchEntry, bool, error) {
	var entry FetchEntry
	err := r.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(fetchKey(kind, id))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &entry)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, utils.WrapErrorf(utils.ErrDatabase, "lookup fetch for %s: %v", id, err)
	}
	return &entry, true, nil
}

// MarkPDFProcessed records that a change-list PDF was fetched and parsed.
func (r *Registry) MarkPDFProcessed(url string, idCount int) error {
	data, err := json.Marshal(PDFEntry{FetchedAt: time.Now(), IDCount: idCount})
	if err != nil {
		return utils.WrapErrorf(utils.ErrDatabase, "marshal pdf entry: %v", err)
	}
	err = r.dbUpdate(func(txn *badger.Txn) error {
		return txn.Set([]byte(pdfKeyPrefix+url), data)
	})
	if err != nil {
		return utils.WrapErrorf(utils.ErrDatabase, "mark pdf processed: %v", err)
	}
	return nil
}

// IsPDFProcessed reports whether a change-list PDF was already handled.
func (r *Registry) IsPDFProcessed(url string) (bool, error) {
	err := r.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get([]byte(pdfKeyPrefix + url))
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, utils.WrapErrorf(utils.ErrDatabase, "pdf lookup: %v", err)
	}
	return true, nil
}

// RunGC runs periodic value-log garbage collection until the context ends.
// Run it in a goroutine.
func (r *Registry) RunGC(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for {
				if err := r.db.RunValueLogGC(0.5); err != nil {
					break // ErrNoRewrite means nothing left to collect
				}
			}
		}
	}
}

// Close cleanly closes the database.
func (r *Registry) Close() error {
	return r.db.Close()
}
