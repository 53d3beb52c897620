// Package sqlstore implements the feature-store port on SQLite and DuckDB
// tables described by a small layer catalog.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/USDAForestService/gdalraster-sub000/internal/db"
	"github.com/USDAForestService/gdalraster-sub000/internal/ddl"
	"github.com/USDAForestService/gdalraster-sub000/internal/domain"
)

// DefaultPageSize is the number of rows a cursor reads per query.
const DefaultPageSize = 500

// DefaultBatchSize is the number of rows per Arrow record batch.
const DefaultBatchSize = 65536

// Options tunes a Dataset.
type Options struct {
	PageSize int
	Logger   *slog.Logger
}

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Dataset is an open feature store holding any number of layers.
type Dataset struct {
	dialect  ddl.Dialect
	db       *sql.DB // writes, cursors and catalog
	readDB   *sql.DB // Arrow exports; same as db for DuckDB
	pageSize int
	logger   *slog.Logger

	mu sync.Mutex
	tx *sql.Tx
}

// OpenSQLite opens (creating if needed) a SQLite feature store and brings
// its layer catalog up to date.
func OpenSQLite(path string, opts Options) (*Dataset, error) {
	writeDB, readDB, err := db.OpenSQLitePair(path, 4)
	if err != nil {
		return nil, err
	}
	if err := db.RunMigrations(writeDB); err != nil {
		_ = readDB.Close()
		_ = writeDB.Close()
		return nil, err
	}
	return newDataset(ddl.SQLite, writeDB, readDB, opts), nil
}

// OpenDuckDB opens (creating if needed) a DuckDB feature store. An empty
// path opens an in-memory database.
func OpenDuckDB(ctx context.Context, path string, opts Options) (*Dataset, error) {
	conn, err := db.OpenDuckDB(ctx, path)
	if err != nil {
		return nil, err
	}
	return newDataset(ddl.DuckDB, conn, conn, opts), nil
}

func newDataset(d ddl.Dialect, writeDB, readDB *sql.DB, opts Options) *Dataset {
	if opts.PageSize <= 0 {
		opts.PageSize = DefaultPageSize
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Dataset{
		dialect:  d,
		db:       writeDB,
		readDB:   readDB,
		pageSize: opts.PageSize,
		logger:   opts.Logger.With("store", d.String()),
	}
}

// Dialect reports the SQL dialect of the store.
func (d *Dataset) Dialect() ddl.Dialect { return d.dialect }

// Close rolls back any open transaction and closes the database.
func (d *Dataset) Close() error {
	d.mu.Lock()
	if d.tx != nil {
		_ = d.tx.Rollback()
		d.tx = nil
	}
	d.mu.Unlock()

	var errs []error
	if d.readDB != d.db {
		errs = append(errs, d.readDB.Close())
	}
	errs = append(errs, d.db.Close())
	return errors.Join(errs...)
}

// q returns the active transaction, or the pool when none is open.
func (d *Dataset) q() querier {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.tx != nil {
		return d.tx
	}
	return d.db
}

// Begin starts a dataset-wide transaction.
func (d *Dataset) Begin(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.tx != nil {
		return domain.ErrConflict("a transaction is already active")
	}
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	d.tx = tx
	return nil
}

// Commit commits the active transaction.
func (d *Dataset) Commit() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.tx == nil {
		return domain.ErrValidation("no active transaction")
	}
	err := d.tx.Commit()
	d.tx = nil
	if err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// Rollback abandons the active transaction.
func (d *Dataset) Rollback() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.tx == nil {
		return domain.ErrValidation("no active transaction")
	}
	err := d.tx.Rollback()
	d.tx = nil
	if err != nil {
		return fmt.Errorf("rollback transaction: %w", err)
	}
	return nil
}

// inTx runs fn in the active transaction, or in a transaction of its own
// when none is open.
func (d *Dataset) inTx(ctx context.Context, fn func(q querier) error) error {
	d.mu.Lock()
	tx := d.tx
	d.mu.Unlock()
	if tx != nil {
		return fn(tx)
	}

	own, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(own); err != nil {
		_ = own.Rollback()
		return err
	}
	return own.Commit()
}

// CreateLayer creates the layer table and records its definition. The
// layer name doubles as the table name and must be a plain identifier.
func (d *Dataset) CreateLayer(ctx context.Context, schema *domain.LayerSchema) (*Layer, error) {
	if err := ddl.ValidateLayerName(schema.Name); err != nil {
		return nil, domain.ErrValidation("invalid layer name %q: %v", schema.Name, err)
	}
	s := schema.Clone()
	if s.FIDColumn == "" {
		s.FIDColumn = "fid"
	}
	if err := checkNames(s); err != nil {
		return nil, err
	}

	exists, err := d.layerExists(ctx, s.Name)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, domain.ErrConflict("layer %q already exists", s.Name)
	}

	geomCols := geomColumnNames(s)
	stmts, err := ddl.CreateLayerTable(d.dialect, ddl.LayerTable{
		Table:       s.Name,
		FIDColumn:   s.FIDColumn,
		Fields:      s.Fields,
		GeomColumns: geomCols,
	})
	if err != nil {
		return nil, domain.ErrValidation("layer %q: %v", s.Name, err)
	}

	err = d.inTx(ctx, func(q querier) error {
		for _, stmt := range stmts {
			if _, err := q.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("create layer table: %w", err)
			}
		}
		return insertLayer(ctx, q, s, geomCols)
	})
	if err != nil {
		return nil, err
	}

	d.logger.Info("layer created", "layer", s.Name, "fields", len(s.Fields), "geometry_fields", len(s.GeomFields))
	return d.OpenLayer(ctx, s.Name)
}

// OpenLayer opens an existing layer with a fresh cursor.
func (d *Dataset) OpenLayer(ctx context.Context, name string) (*Layer, error) {
	entry, err := loadLayer(ctx, d.q(), name)
	if err != nil {
		return nil, err
	}
	return newLayer(d, entry), nil
}

// LayerNames lists the layers in the store, sorted.
func (d *Dataset) LayerNames(ctx context.Context) ([]string, error) {
	rows, err := d.q().QueryContext(ctx, `SELECT name FROM vt_layers`)
	if err != nil {
		return nil, fmt.Errorf("list layers: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, fmt.Errorf("scan layer name: %w", err)
		}
		names = append(names, n)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	sort.Strings(names)
	return names, nil
}

// DeleteLayer drops a layer table and its catalog entries.
func (d *Dataset) DeleteLayer(ctx context.Context, name string) error {
	entry, err := loadLayer(ctx, d.q(), name)
	if err != nil {
		return err
	}
	stmt, err := ddl.DropLayerTable(entry.table)
	if err != nil {
		return err
	}
	err = d.inTx(ctx, func(q querier) error {
		if err := deleteLayer(ctx, q, name); err != nil {
			return err
		}
		if _, err := q.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("drop layer table: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	d.logger.Info("layer deleted", "layer", name)
	return nil
}

func (d *Dataset) layerExists(ctx context.Context, name string) (bool, error) {
	var n int
	err := d.q().QueryRowContext(ctx, `SELECT count(*) FROM vt_layers WHERE lower(name) = lower(?)`, name).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("look up layer: %w", err)
	}
	return n > 0, nil
}

// checkNames rejects duplicate field names and names that collide with the
// FID or bbox columns.
func checkNames(s *domain.LayerSchema) error {
	seen := map[string]bool{strings.ToLower(s.FIDColumn): true}
	for _, b := range ddl.BBoxColumns {
		seen[b] = true
	}
	for _, f := range s.Fields {
		k := strings.ToLower(f.Name)
		if seen[k] {
			return domain.ErrConflict("layer %q: duplicate or reserved field name %q", s.Name, f.Name)
		}
		seen[k] = true
	}
	for i := range s.GeomFields {
		k := strings.ToLower(geomColumnName(s, i))
		if seen[k] {
			return domain.ErrConflict("layer %q: duplicate or reserved geometry field name %q", s.Name, s.GeomFields[i].Name)
		}
		seen[k] = true
	}
	return nil
}

// geomColumnName is the physical column of geometry field i. Unnamed
// geometry fields are stored as geom, geom_1, ...
func geomColumnName(s *domain.LayerSchema, i int) string {
	if n := s.GeomFields[i].Name; n != "" {
		return n
	}
	if i == 0 {
		return "geom"
	}
	return fmt.Sprintf("geom_%d", i)
}

func geomColumnNames(s *domain.LayerSchema) []string {
	out := make([]string, len(s.GeomFields))
	for i := range s.GeomFields {
		out[i] = geomColumnName(s, i)
	}
	return out
}
