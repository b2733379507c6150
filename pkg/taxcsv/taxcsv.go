package taxcsv

import (
	"context"
	"encoding/csv"
	"errors"
	"io"

	"github.com/sirupsen/logrus"
	"golang.org/x/text/encoding/traditionalchinese"
	"golang.org/x/text/transform"

	"github.com/kiang/biz-crawlers/pkg/models"
)

// Row is one tax-registry entry: the entity ID plus the columns downstream
// importers care about.
type Row struct {
	ID      models.EntityID
	Name    string
	Address string
	Capital string
}

// Reader streams the Ministry of Finance tax-registry dump. The file is
// Big5 encoded with columns: address, ID, head-office ID, name, capital, ...
type Reader struct {
	log *logrus.Entry
}

// New creates a Reader.
func New(log *logrus.Entry) *Reader {
	return &Reader{log: log}
}

// Column positions in the dump.
const (
	colAddress = 0
	colID      = 1
	colName    = 3
	colCapital = 4
	minColumns = 5
)

// Stream decodes src row by row and yields batches of batchSize rows to fn.
// Malformed rows are logged and skipped; fn returning an error stops the
// stream. The final partial batch is flushed before returning.
func (r *Reader) Stream(ctx context.Context, src io.Reader, batchSize int, fn func([]Row) error) error {
	if batchSize <= 0 {
		batchSize = 1000
	}

	decoded := transform.NewReader(src, traditionalchinese.Big5.NewDecoder())
	reader := csv.NewReader(decoded)
	reader.FieldsPerRecord = -1 // The dump has trailing-column drift between months

	batch := make([]Row, 0, batchSize)
	skipped := 0
	lineNo := 0

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			lineNo++
			skipped++
			r.log.Debugf("Skipping malformed CSV line %d: %v", lineNo, err)
			continue
		}
		lineNo++

		if len(record) < minColumns {
			skipped++
			continue
		}
		id, err := models.NormalizeID(record[colID])
		if err != nil {
			// Header row or junk line
			skipped++
			continue
		}

		batch = append(batch, Row{
			ID:      id,
			Name:    record[colName],
			Address: record[colAddress],
			Capital: record[colCapital],
		})
		if len(batch) == batchSize {
			if err := fn(batch); err != nil {
				return err
			}
			batch = batch[:0]
		}
	}

	if len(batch) > 0 {
		if err := fn(batch); err != nil {
			return err
		}
	}
	if skipped > 0 {
		r.log.Infof("Tax CSV stream done: %d lines read, %d skipped", lineNo, skipped)
	}
	return nil
}
