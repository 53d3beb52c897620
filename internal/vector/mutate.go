package vector

import (
	"context"
	"math"
	"time"

	"github.com/USDAForestService/gdalraster-sub000/internal/domain"
	"github.com/USDAForestService/gdalraster-sub000/internal/table"
)

// CreateFeature encodes row and writes it as a new feature. On success the
// store-assigned FID is available from LastWriteFID.
func (l *Layer) CreateFeature(ctx context.Context, row Row) (bool, error) {
	f, err := l.encodeRow(row, 0)
	if err != nil {
		return false, err
	}
	if err := l.store.CreateFeature(ctx, f); err != nil {
		return false, wrapStore("create feature", err)
	}
	l.lastWriteFID = f.FID
	return true, nil
}

// SetFeature replaces the feature identified by the row's FID.
func (l *Layer) SetFeature(ctx context.Context, row Row) (bool, error) {
	f, err := l.encodeRow(row, 0)
	if err != nil {
		return false, err
	}
	if f.FID == domain.NullFID {
		return false, domain.ErrFieldValidation(FIDKey, 0, "FID is required to replace a feature")
	}
	if err := l.store.SetFeature(ctx, f); err != nil {
		return false, wrapStore("set feature", err)
	}
	l.lastWriteFID = f.FID
	return true, nil
}

// UpsertFeature replaces the feature with the row's FID, or creates it.
func (l *Layer) UpsertFeature(ctx context.Context, row Row) (bool, error) {
	f, err := l.encodeRow(row, 0)
	if err != nil {
		return false, err
	}
	if err := l.store.UpsertFeature(ctx, f); err != nil {
		return false, wrapStore("upsert feature", err)
	}
	l.lastWriteFID = f.FID
	return true, nil
}

// DeleteFeature removes the feature with the given FID.
func (l *Layer) DeleteFeature(ctx context.Context, fid int64) (bool, error) {
	if err := l.store.DeleteFeature(ctx, fid); err != nil {
		return false, wrapStore("delete feature", err)
	}
	return true, nil
}

// BatchCreate writes every row as a new feature. A row that fails to encode
// or write is logged and marked false; the remaining rows are still
// written. The returned slice is aligned to rows. A context error stops the
// batch and is returned with the statuses so far.
func (l *Layer) BatchCreate(ctx context.Context, rows []Row, opts WriteOptions) ([]bool, error) {
	results := make([]bool, len(rows))
	report := len(rows) > 1
	start := time.Now()

	for i, row := range rows {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		f, err := l.encodeRow(row, i)
		if err == nil {
			err = wrapStore("create feature", l.store.CreateFeature(ctx, f))
		}
		if err != nil {
			l.logger.Warn("batch row failed", "row", i, "error", err)
		} else {
			results[i] = true
		}

		if report {
			if opts.Progress != nil {
				opts.Progress(i+1, len(rows))
			}
			l.progress.Do(func() {
				l.logger.Info("batch write progress", "done", i+1, "total", len(rows))
			})
		}
	}

	if report {
		failed := 0
		for _, ok := range results {
			if !ok {
				failed++
			}
		}
		l.logger.Info("batch write complete",
			"rows", len(rows), "failed", failed, "duration", time.Since(start))
	}
	return results, nil
}

// BatchCreateTable writes the rows of a fetched table as new features. FID
// and geometry columns that cannot be parsed back (summary, type name,
// bbox) are skipped.
func (l *Layer) BatchCreateTable(ctx context.Context, tbl *table.Table, opts WriteOptions) ([]bool, error) {
	rows := make([]Row, tbl.Len())
	for i := range rows {
		row := make(Row, len(tbl.Columns))
		for _, c := range tbl.Columns {
			if !writableKind(c.Kind()) {
				continue
			}
			row[c.Name()] = inputValue(c, i)
		}
		rows[i] = row
	}
	return l.BatchCreate(ctx, rows, opts)
}

func writableKind(k table.Kind) bool {
	switch k {
	case table.KindGeomSummary, table.KindGeomTypeName, table.KindGeomBBox:
		return false
	}
	return true
}

// inputValue turns a table cell back into a value the encoder accepts.
func inputValue(c table.Column, i int) any {
	v := c.Value(i)
	if v == nil {
		return nil
	}
	switch c.Kind() {
	case table.KindDate:
		return domain.Date(v.(int32))
	case table.KindDateTime:
		return epochToTime(v.(float64))
	}
	return v
}

func epochToTime(sec float64) time.Time {
	whole := math.Floor(sec)
	nanos := math.Round((sec - whole) * 1e9)
	return time.Unix(int64(whole), int64(nanos)).UTC()
}

// StartTransaction begins a store transaction.
func (l *Layer) StartTransaction(ctx context.Context) error {
	return wrapStore("start transaction", l.store.StartTransaction(ctx))
}

// CommitTransaction commits the active store transaction.
func (l *Layer) CommitTransaction(ctx context.Context) error {
	return wrapStore("commit transaction", l.store.CommitTransaction(ctx))
}

// RollbackTransaction abandons the active store transaction.
func (l *Layer) RollbackTransaction(ctx context.Context) error {
	return wrapStore("rollback transaction", l.store.RollbackTransaction(ctx))
}
