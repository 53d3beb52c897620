package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"

	"github.com/paulmach/orb"

	"github.com/USDAForestService/gdalraster-sub000/internal/ddl"
	"github.com/USDAForestService/gdalraster-sub000/internal/domain"
	"github.com/USDAForestService/gdalraster-sub000/internal/geometry"
)

var _ domain.LayerStore = (*Layer)(nil)

// Layer is one layer table with its own cursor, filters and projection.
// A Layer is not safe for concurrent use.
type Layer struct {
	ds     *Dataset
	entry  *layerEntry
	logger *slog.Logger

	attrFilter string
	bbox       *orb.Bound
	ignored    []string

	afterFID  int64 // FID of the last feature returned
	buf       []*domain.Feature
	exhausted bool
}

func newLayer(ds *Dataset, e *layerEntry) *Layer {
	l := &Layer{ds: ds, entry: e, logger: ds.logger.With("layer", e.schema.Name)}
	l.ResetReading()
	return l
}

func (l *Layer) Name() string      { return l.entry.schema.Name }
func (l *Layer) FIDColumn() string { return l.entry.schema.FIDColumn }

func (l *Layer) table() string { return ddl.QuoteIdentifier(l.entry.table) }
func (l *Layer) fid() string   { return ddl.QuoteIdentifier(l.entry.schema.FIDColumn) }

// TestCapability reports what this store supports. Geometries are 2D
// without curves, and the SQLite Arrow stream is materialized row by row.
func (l *Layer) TestCapability(capability string) bool {
	switch capability {
	case domain.CapRandomRead, domain.CapSequentialWrite, domain.CapRandomWrite,
		domain.CapUpsertFeature, domain.CapDeleteFeature, domain.CapCreateField,
		domain.CapTransactions, domain.CapFastFeatureCount, domain.CapFastGetExtent,
		domain.CapFastSetNextByIndex, domain.CapIgnoreFields, domain.CapStringsAsUTF8:
		return true
	case domain.CapFastGetArrowStream:
		return l.ds.dialect == ddl.DuckDB
	}
	return false
}

// Definition returns the layer schema with the current ignored flags.
func (l *Layer) Definition(_ context.Context) (*domain.LayerSchema, error) {
	s := l.entry.schema.Clone()
	for i := range s.Fields {
		s.Fields[i].Ignored = l.fieldIgnored(i)
	}
	for i := range s.GeomFields {
		s.GeomFields[i].Ignored = l.geomIgnored(i)
	}
	return s, nil
}

func (l *Layer) FieldDomain(ctx context.Context, name string) (*domain.FieldDomain, bool, error) {
	return l.ds.FieldDomain(ctx, name)
}

// Extent returns the envelope of the first geometry field over the whole
// layer. Filters are not applied.
func (l *Layer) Extent(ctx context.Context) (orb.Bound, bool, error) {
	if len(l.entry.geomCols) == 0 {
		return orb.Bound{}, false, nil
	}
	var minX, minY, maxX, maxY sql.NullFloat64
	err := l.ds.q().QueryRowContext(ctx, fmt.Sprintf(`SELECT min(%s), min(%s), max(%s), max(%s) FROM %s`,
		ddl.QuoteIdentifier(ddl.MinXColumn), ddl.QuoteIdentifier(ddl.MinYColumn),
		ddl.QuoteIdentifier(ddl.MaxXColumn), ddl.QuoteIdentifier(ddl.MaxYColumn), l.table())).
		Scan(&minX, &minY, &maxX, &maxY)
	if err != nil {
		return orb.Bound{}, false, fmt.Errorf("compute extent: %w", err)
	}
	if !minX.Valid {
		return orb.Bound{}, false, nil
	}
	return orb.Bound{Min: orb.Point{minX.Float64, minY.Float64}, Max: orb.Point{maxX.Float64, maxY.Float64}}, true, nil
}

// --- cursor ---

func (l *Layer) ResetReading() {
	l.afterFID = math.MinInt64
	l.buf = nil
	l.exhausted = false
}

// NextFeature returns the next feature matching the filters, or nil, nil
// at the end of the layer. Rows are read in FID order, one page per query.
func (l *Layer) NextFeature(ctx context.Context) (*domain.Feature, error) {
	if len(l.buf) == 0 {
		if l.exhausted {
			return nil, nil
		}
		if err := l.readPage(ctx); err != nil {
			return nil, err
		}
		if len(l.buf) == 0 {
			return nil, nil
		}
	}
	f := l.buf[0]
	l.buf = l.buf[1:]
	l.afterFID = f.FID
	return f, nil
}

type selection struct {
	fields []int
	geoms  []int
}

func (l *Layer) selection() selection {
	var sel selection
	for i := range l.entry.schema.Fields {
		if !l.fieldIgnored(i) {
			sel.fields = append(sel.fields, i)
		}
	}
	for i := range l.entry.schema.GeomFields {
		if !l.geomIgnored(i) {
			sel.geoms = append(sel.geoms, i)
		}
	}
	return sel
}

func (l *Layer) columnList(sel selection, withFID bool) string {
	var cols []string
	if withFID {
		cols = append(cols, l.fid())
	}
	for _, i := range sel.fields {
		cols = append(cols, ddl.QuoteIdentifier(l.entry.schema.Fields[i].Name))
	}
	for _, g := range sel.geoms {
		cols = append(cols, ddl.QuoteIdentifier(l.entry.geomCols[g]))
	}
	return strings.Join(cols, ", ")
}

// where renders the active filters, plus any extra conditions, as a WHERE
// clause.
func (l *Layer) where(extra ...string) (string, []any) {
	conds := append([]string{}, extra...)
	var args []any
	if l.attrFilter != "" {
		conds = append(conds, "("+l.attrFilter+")")
	}
	if l.bbox != nil && len(l.entry.geomCols) > 0 {
		conds = append(conds, fmt.Sprintf("%s <= ? AND %s >= ? AND %s <= ? AND %s >= ?",
			ddl.QuoteIdentifier(ddl.MinXColumn), ddl.QuoteIdentifier(ddl.MaxXColumn),
			ddl.QuoteIdentifier(ddl.MinYColumn), ddl.QuoteIdentifier(ddl.MaxYColumn)))
		args = append(args, l.bbox.Max[0], l.bbox.Min[0], l.bbox.Max[1], l.bbox.Min[1])
	}
	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func (l *Layer) readPage(ctx context.Context) error {
	sel := l.selection()
	where, args := l.where(l.fid() + " > ?")
	args = append([]any{l.afterFID}, args...)
	query := fmt.Sprintf("SELECT %s FROM %s%s ORDER BY %s LIMIT %d",
		l.columnList(sel, true), l.table(), where, l.fid(), l.ds.pageSize)

	rows, err := l.ds.q().QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("read features: %w", err)
	}
	defer rows.Close()

	n := 1 + len(sel.fields) + len(sel.geoms)
	for rows.Next() {
		vals := make([]any, n)
		ptrs := make([]any, n)
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return fmt.Errorf("scan feature: %w", err)
		}
		f, err := l.decodeRow(sel, vals)
		if err != nil {
			return err
		}
		l.buf = append(l.buf, f)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("read features: %w", err)
	}
	if len(l.buf) < l.ds.pageSize {
		l.exhausted = true
	}
	return nil
}

func (l *Layer) decodeRow(sel selection, vals []any) (*domain.Feature, error) {
	s := l.entry.schema
	f := domain.NewFeature(s)
	fid, err := asInt64(vals[0])
	if err != nil {
		return nil, fmt.Errorf("decode FID: %w", err)
	}
	f.FID = fid

	for k, i := range sel.fields {
		v, err := decodeCell(s.Fields[i], vals[1+k])
		if err != nil {
			return nil, fmt.Errorf("feature %d field %q: %w", fid, s.Fields[i].Name, err)
		}
		f.Fields[i] = v
	}
	off := 1 + len(sel.fields)
	for k, g := range sel.geoms {
		raw := vals[off+k]
		if raw == nil {
			continue
		}
		b, ok := raw.([]byte)
		if !ok {
			return nil, fmt.Errorf("feature %d geometry %q: unexpected %T", fid, l.entry.geomCols[g], raw)
		}
		geom, err := geometry.ParseWKB(b)
		if err != nil {
			return nil, fmt.Errorf("feature %d geometry %q: %w", fid, l.entry.geomCols[g], err)
		}
		f.Geoms[g] = geom
	}
	return f, nil
}

// SetNextByIndex positions the cursor so the next read returns the
// feature at index (0-based, in FID order, under the active filters). An
// index at or past the end leaves the cursor exhausted.
func (l *Layer) SetNextByIndex(ctx context.Context, index int64) error {
	if index < 0 {
		return domain.ErrValidation("feature index %d is negative", index)
	}
	l.ResetReading()
	if index == 0 {
		return nil
	}

	where, args := l.where()
	query := fmt.Sprintf("SELECT %s FROM %s%s ORDER BY %s LIMIT 1 OFFSET %d", l.fid(), l.table(), where, l.fid(), index-1)
	var fid int64
	err := l.ds.q().QueryRowContext(ctx, query, args...).Scan(&fid)
	if errors.Is(err, sql.ErrNoRows) {
		l.exhausted = true
		l.logger.Debug("feature index past end of layer", "index", index)
		return nil
	}
	if err != nil {
		return fmt.Errorf("seek to index %d: %w", index, err)
	}
	l.afterFID = fid
	return nil
}

// FeatureCount counts the features matching the active filters.
func (l *Layer) FeatureCount(ctx context.Context) (int64, error) {
	where, args := l.where()
	var n int64
	if err := l.ds.q().QueryRowContext(ctx, "SELECT count(*) FROM "+l.table()+where, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count features: %w", err)
	}
	return n, nil
}

func (l *Layer) AttributeFilter() string { return l.attrFilter }

// SetAttributeFilter installs a SQL WHERE expression over the layer
// columns. The expression is checked against the table before it is
// accepted; an empty expression clears the filter. The cursor is reset.
func (l *Layer) SetAttributeFilter(ctx context.Context, expr string) error {
	expr = strings.TrimSpace(expr)
	if expr != "" {
		rows, err := l.ds.q().QueryContext(ctx, fmt.Sprintf("SELECT 1 FROM %s WHERE (%s) LIMIT 0", l.table(), expr))
		if err != nil {
			return domain.ErrValidation("invalid attribute filter %q: %v", expr, err)
		}
		if err := closeRows(rows); err != nil {
			return domain.ErrValidation("invalid attribute filter %q: %v", expr, err)
		}
	}
	l.attrFilter = expr
	l.ResetReading()
	return nil
}

func (l *Layer) SpatialFilter() (orb.Bound, bool) {
	if l.bbox == nil {
		return orb.Bound{}, false
	}
	return *l.bbox, true
}

// SetSpatialFilter installs an envelope-intersection filter on the first
// geometry field, or clears it when b is nil. The cursor is reset.
func (l *Layer) SetSpatialFilter(b *orb.Bound) {
	if b == nil {
		l.bbox = nil
	} else {
		c := *b
		l.bbox = &c
	}
	l.ResetReading()
}

func (l *Layer) IgnoredFields() []string { return append([]string(nil), l.ignored...) }

// SetIgnoredFields replaces the ignored set. Names are attribute field
// names, geometry field names, or domain.IgnoreGeometryToken for an
// unnamed geometry field.
func (l *Layer) SetIgnoredFields(names []string) error {
	s := l.entry.schema
	for _, n := range names {
		if n == domain.IgnoreGeometryToken || s.FieldIndex(n) >= 0 || l.geomIndex(n) >= 0 {
			continue
		}
		return domain.ErrValidation("field %q not found in layer %q", n, l.Name())
	}
	l.ignored = append([]string(nil), names...)
	l.ResetReading()
	return nil
}

func (l *Layer) geomIndex(name string) int {
	if i := l.entry.schema.GeomFieldIndex(name); i >= 0 {
		return i
	}
	for i, c := range l.entry.geomCols {
		if strings.EqualFold(c, name) {
			return i
		}
	}
	return -1
}

func (l *Layer) fieldIgnored(i int) bool {
	name := l.entry.schema.Fields[i].Name
	for _, n := range l.ignored {
		if strings.EqualFold(n, name) {
			return true
		}
	}
	return false
}

func (l *Layer) geomIgnored(i int) bool {
	g := l.entry.schema.GeomFields[i]
	for _, n := range l.ignored {
		if n == domain.IgnoreGeometryToken && g.Name == "" {
			return true
		}
		if l.geomIndex(n) == i {
			return true
		}
	}
	return false
}

// --- writes ---

// assignments lists the columns and values written for f. With all set,
// unset attributes are skipped; geometries and the bbox are always
// written.
func (l *Layer) assignments(f *domain.Feature) ([]string, []any, error) {
	s := l.entry.schema
	var cols []string
	var vals []any
	for i, fs := range s.Fields {
		if i >= len(f.Fields) || f.Fields[i].State == domain.ValueUnset {
			continue
		}
		v, err := encodeCell(fs, f.Fields[i])
		if err != nil {
			return nil, nil, err
		}
		cols = append(cols, ddl.QuoteIdentifier(fs.Name))
		vals = append(vals, v)
	}
	for g, col := range l.entry.geomCols {
		var geom orb.Geometry
		if g < len(f.Geoms) {
			geom = f.Geoms[g]
		}
		var v any
		if geom != nil {
			b, err := geometry.WKB(geom, geometry.LittleEndian)
			if err != nil {
				return nil, nil, fmt.Errorf("encode geometry %q: %w", col, err)
			}
			v = b
		}
		cols = append(cols, ddl.QuoteIdentifier(col))
		vals = append(vals, v)

		if g == 0 {
			box := []any{nil, nil, nil, nil}
			if geom != nil {
				b := geom.Bound()
				box = []any{b.Min[0], b.Min[1], b.Max[0], b.Max[1]}
			}
			for k, bc := range ddl.BBoxColumns {
				cols = append(cols, ddl.QuoteIdentifier(bc))
				vals = append(vals, box[k])
			}
		}
	}
	return cols, vals, nil
}

func placeholders(n int) string {
	if n == 0 {
		return ""
	}
	return strings.Repeat("?, ", n-1) + "?"
}

// CreateFeature inserts f and stores the assigned FID on it. A FID already
// set on f is used as given.
func (l *Layer) CreateFeature(ctx context.Context, f *domain.Feature) error {
	cols, vals, err := l.assignments(f)
	if err != nil {
		return err
	}

	fidExpr := ""
	switch {
	case f.FID != domain.NullFID:
		fidExpr = "?"
		vals = append([]any{f.FID}, vals...)
	case l.ds.dialect == ddl.DuckDB:
		fidExpr = fmt.Sprintf("(SELECT coalesce(max(%s), 0) + 1 FROM %s)", l.fid(), l.table())
	}

	var query string
	switch {
	case fidExpr != "":
		query = fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) RETURNING %s",
			l.table(), strings.Join(append([]string{l.fid()}, cols...), ", "),
			strings.TrimSuffix(fidExpr+", "+placeholders(len(cols)), ", "), l.fid())
	case len(cols) == 0:
		query = fmt.Sprintf("INSERT INTO %s DEFAULT VALUES RETURNING %s", l.table(), l.fid())
	default:
		query = fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) RETURNING %s",
			l.table(), strings.Join(cols, ", "), placeholders(len(cols)), l.fid())
	}

	var fid int64
	if err := l.ds.q().QueryRowContext(ctx, query, vals...).Scan(&fid); err != nil {
		return fmt.Errorf("insert feature: %w", err)
	}
	f.FID = fid
	return nil
}

// SetFeature rewrites the feature with f.FID. Unset attributes keep their
// stored values.
func (l *Layer) SetFeature(ctx context.Context, f *domain.Feature) error {
	if f.FID == domain.NullFID {
		return domain.ErrValidation("feature has no FID")
	}
	cols, vals, err := l.assignments(f)
	if err != nil {
		return err
	}
	if len(cols) == 0 {
		return l.requireFeature(ctx, f.FID)
	}

	sets := make([]string, len(cols))
	for i, c := range cols {
		sets[i] = c + " = ?"
	}
	query := fmt.Sprintf("UPDATE %s SET %s WHERE %s = ?", l.table(), strings.Join(sets, ", "), l.fid())
	res, err := l.ds.q().ExecContext(ctx, query, append(vals, f.FID)...)
	if err != nil {
		return fmt.Errorf("update feature %d: %w", f.FID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return domain.ErrNotFound("feature %d not found in layer %q", f.FID, l.Name())
	}
	return nil
}

func (l *Layer) requireFeature(ctx context.Context, fid int64) error {
	var one int
	err := l.ds.q().QueryRowContext(ctx,
		fmt.Sprintf("SELECT 1 FROM %s WHERE %s = ?", l.table(), l.fid()), fid).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ErrNotFound("feature %d not found in layer %q", fid, l.Name())
	}
	return err
}

// UpsertFeature replaces the feature with f.FID or inserts it. A feature
// without a FID is always inserted.
func (l *Layer) UpsertFeature(ctx context.Context, f *domain.Feature) error {
	if f.FID == domain.NullFID {
		return l.CreateFeature(ctx, f)
	}
	cols, vals, err := l.assignments(f)
	if err != nil {
		return err
	}

	conflict := "DO NOTHING"
	if len(cols) > 0 {
		sets := make([]string, len(cols))
		for i, c := range cols {
			sets[i] = c + " = excluded." + c
		}
		conflict = "DO UPDATE SET " + strings.Join(sets, ", ")
	}
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (%s) %s",
		l.table(), strings.Join(append([]string{l.fid()}, cols...), ", "),
		placeholders(len(cols)+1), l.fid(), conflict)
	if _, err := l.ds.q().ExecContext(ctx, query, append([]any{f.FID}, vals...)...); err != nil {
		return fmt.Errorf("upsert feature %d: %w", f.FID, err)
	}
	return nil
}

func (l *Layer) DeleteFeature(ctx context.Context, fid int64) error {
	res, err := l.ds.q().ExecContext(ctx,
		fmt.Sprintf("DELETE FROM %s WHERE %s = ?", l.table(), l.fid()), fid)
	if err != nil {
		return fmt.Errorf("delete feature %d: %w", fid, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return domain.ErrNotFound("feature %d not found in layer %q", fid, l.Name())
	}
	return nil
}

// CreateField adds a column to the layer table and records the field.
func (l *Layer) CreateField(ctx context.Context, field domain.FieldSchema) error {
	s := l.entry.schema
	next := s.Clone()
	next.Fields = append(next.Fields, field)
	if err := checkNames(next); err != nil {
		return err
	}
	stmt, err := ddl.AddColumn(l.ds.dialect, l.entry.table, field)
	if err != nil {
		return domain.ErrValidation("field %q: %v", field.Name, err)
	}

	err = l.ds.inTx(ctx, func(q querier) error {
		if _, err := q.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("add column %q: %w", field.Name, err)
		}
		return insertField(ctx, q, s.Name, len(s.Fields), field)
	})
	if err != nil {
		return err
	}
	s.Fields = append(s.Fields, field)
	l.buf, l.exhausted = nil, false
	l.logger.Info("field created", "field", field.Name)
	return nil
}

// --- transactions ---

func (l *Layer) StartTransaction(ctx context.Context) error { return l.ds.Begin(ctx) }
func (l *Layer) CommitTransaction(_ context.Context) error   { return l.ds.Commit() }
func (l *Layer) RollbackTransaction(_ context.Context) error { return l.ds.Rollback() }
