package vector

import (
	"context"
	"encoding/json"
	"math"

	"github.com/paulmach/orb"

	"github.com/USDAForestService/gdalraster-sub000/internal/domain"
	"github.com/USDAForestService/gdalraster-sub000/internal/geometry"
	"github.com/USDAForestService/gdalraster-sub000/internal/table"
)

// fetchChunk bounds the rows allocated before any feature is read. The table
// doubles as features arrive.
const fetchChunk = 4096

// decodeFunc copies one value of f into row of its column.
type decodeFunc func(row int, f *domain.Feature)

// Fetch reads features from the cursor into a new table.
//
// n is FetchAll, FetchUnspecified or a row limit. For FetchAll and
// FetchUnspecified one extra read checks the store-reported count; when it
// yields a feature the table carries a *domain.StaleCountWarning. A limit
// larger than the layer is allowed; the table only grows to the rows read and
// is rebuilt at the actual row count when the cursor is exhausted early.
func (l *Layer) Fetch(ctx context.Context, n int64, opts ReadOptions) (*table.Table, error) {
	if n < FetchUnspecified {
		return nil, domain.ErrValidation("invalid fetch count %d", n)
	}
	if _, ok := table.GeomKindFor(opts.Format); !ok && opts.Format != domain.FormatNone {
		return nil, domain.ErrValidation("unsupported geometry format %d", opts.Format)
	}

	if opts.Format == domain.FormatNone && len(l.schema.GeomFields) > 0 {
		restore, err := l.skipGeometry(ctx)
		if err != nil {
			return nil, err
		}
		defer restore()
	}

	want := n
	if n == FetchAll || n == FetchUnspecified {
		if n == FetchAll {
			l.store.ResetReading()
		}
		count, err := l.store.FeatureCount(ctx)
		if err != nil {
			return nil, wrapStore("feature count", err)
		}
		want = count
	}

	tbl, bindings, err := table.Build(l.schema, table.Options{
		DefaultGeomName: l.cfg.DefaultGeomName,
		Format:          opts.Format,
		ByteOrder:       opts.ByteOrder,
	}, int(min(want, fetchChunk)))
	if err != nil {
		return nil, err
	}
	decoders := l.decoders(tbl, bindings, opts)

	var rows int64
	for rows < want {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		f, err := l.store.NextFeature(ctx)
		if err != nil {
			return nil, wrapStore("read feature", err)
		}
		if f == nil {
			break
		}
		if rows == int64(tbl.Len()) {
			tbl = tbl.Grow(int(min(want, 2*rows)))
			decoders = l.decoders(tbl, bindings, opts)
		}
		tbl.FID.Set(int(rows), f.FID)
		for _, decode := range decoders {
			decode(int(rows), f)
		}
		rows++
	}
	l.featuresRead += rows

	if (n == FetchAll || n == FetchUnspecified) && rows == want {
		extra, err := l.store.NextFeature(ctx)
		if err != nil {
			return nil, wrapStore("read feature", err)
		}
		if extra != nil {
			w := &domain.StaleCountWarning{Layer: l.Name(), Reported: want}
			tbl.Warnings = append(tbl.Warnings, w)
			l.logger.Warn("more features available than the reported count", "reported", want)
		}
	}

	if rows < int64(tbl.Len()) {
		tbl = tbl.Truncate(int(rows))
	}
	return tbl, nil
}

// skipGeometry adds every geometry field to the store's ignored set and
// returns a func restoring the previous set.
func (l *Layer) skipGeometry(ctx context.Context) (func(), error) {
	prev := l.store.IgnoredFields()
	ignored := append([]string(nil), prev...)
	for i := range l.schema.GeomFields {
		ignored = append(ignored, l.nativeGeomName(i))
	}
	if err := l.store.SetIgnoredFields(ignored); err != nil {
		return nil, wrapStore("set ignored fields", err)
	}
	return func() {
		if err := l.store.SetIgnoredFields(prev); err != nil {
			l.logger.Warn("restore ignored fields", "error", err)
		}
	}, nil
}

func (l *Layer) decoders(tbl *table.Table, bindings []table.Binding, opts ReadOptions) []decodeFunc {
	out := make([]decodeFunc, 0, len(bindings))
	for _, b := range bindings {
		col := tbl.Columns[b.Column]
		if b.Field >= 0 {
			out = append(out, l.fieldDecoder(col, b.Field))
		} else {
			out = append(out, l.geomDecoder(col, b.Geom, opts))
		}
	}
	return out
}

func (l *Layer) fieldDecoder(col table.Column, idx int) decodeFunc {
	switch c := col.(type) {
	case *table.Scalar[int32]:
		if c.Kind() == table.KindDate {
			return func(row int, f *domain.Feature) {
				if dt, ok := setValue(f, idx).(domain.DateTime); ok {
					c.Set(row, dt.DaysSinceEpoch())
				}
			}
		}
		return func(row int, f *domain.Feature) {
			v, ok := toInt64(setValue(f, idx))
			if !ok {
				return
			}
			if v < math.MinInt32 || v > math.MaxInt32 {
				l.logger.Warn("integer value out of 32-bit range, left unset",
					"fid", f.FID, "column", c.Name(), "value", v)
				return
			}
			c.Set(row, int32(v))
		}
	case *table.Scalar[bool]:
		return func(row int, f *domain.Feature) {
			if v, ok := toInt64(setValue(f, idx)); ok {
				c.Set(row, v != 0)
			}
		}
	case *table.Scalar[int64]:
		return func(row int, f *domain.Feature) {
			if v, ok := toInt64(setValue(f, idx)); ok {
				c.Set(row, v)
			}
		}
	case *table.Scalar[float64]:
		if c.Kind() == table.KindDateTime {
			return func(row int, f *domain.Feature) {
				if dt, ok := setValue(f, idx).(domain.DateTime); ok {
					c.Set(row, dt.EpochSeconds())
				}
			}
		}
		return func(row int, f *domain.Feature) {
			if v, ok := toFloat64(setValue(f, idx)); ok {
				c.Set(row, v)
			}
		}
	case *table.Scalar[string]:
		return func(row int, f *domain.Feature) {
			if f.Fields[idx].State == domain.ValueSet {
				c.Set(row, f.FieldAsString(idx))
			}
		}
	case *table.List[byte]:
		return func(row int, f *domain.Feature) {
			if v, ok := setValue(f, idx).([]byte); ok {
				c.Set(row, append([]byte{}, v...))
			}
		}
	case *table.List[int32]:
		return func(row int, f *domain.Feature) {
			if v, ok := setValue(f, idx).([]int32); ok {
				c.Set(row, append([]int32{}, v...))
			}
		}
	case *table.List[bool]:
		return func(row int, f *domain.Feature) {
			if v, ok := setValue(f, idx).([]int32); ok {
				out := make([]bool, len(v))
				for i, x := range v {
					out[i] = x != 0
				}
				c.Set(row, out)
			}
		}
	case *table.List[int64]:
		return func(row int, f *domain.Feature) {
			if v, ok := setValue(f, idx).([]int64); ok {
				c.Set(row, append([]int64{}, v...))
			}
		}
	case *table.List[float64]:
		return func(row int, f *domain.Feature) {
			if v, ok := setValue(f, idx).([]float64); ok {
				c.Set(row, append([]float64{}, v...))
			}
		}
	case *table.List[string]:
		return func(row int, f *domain.Feature) {
			if v, ok := setValue(f, idx).([]string); ok {
				c.Set(row, append([]string{}, v...))
			}
		}
	}
	panic("vector: no decoder for column kind " + col.Kind().String())
}

func (l *Layer) geomDecoder(col table.Column, idx int, opts ReadOptions) decodeFunc {
	geom := func(f *domain.Feature) orb.Geometry {
		if idx >= len(f.Geoms) {
			return nil
		}
		return geometry.Normalize(f.Geoms[idx], opts.PromoteToMulti, opts.Linearize)
	}
	switch col.Kind() {
	case table.KindGeomWKB:
		c := col.(*table.List[byte])
		return func(row int, f *domain.Feature) {
			g := geom(f)
			if g == nil {
				return
			}
			b, err := geometry.WKB(g, opts.ByteOrder)
			if err != nil {
				l.logger.Warn("encode geometry", "fid", f.FID, "column", c.Name(), "error", err)
				return
			}
			c.Set(row, b)
		}
	case table.KindGeomWKT:
		return stringGeomDecoder(col, geom, geometry.WKT)
	case table.KindGeomSummary:
		return stringGeomDecoder(col, geom, geometry.Summary)
	case table.KindGeomTypeName:
		return stringGeomDecoder(col, geom, geometry.TypeName)
	case table.KindGeomBBox:
		c := col.(*table.BBox)
		return func(row int, f *domain.Feature) {
			c.Set(row, geometry.BBox(geom(f)))
		}
	}
	panic("vector: no decoder for geometry kind " + col.Kind().String())
}

func stringGeomDecoder(col table.Column, geom func(*domain.Feature) orb.Geometry, render func(orb.Geometry) string) decodeFunc {
	c := col.(*table.Scalar[string])
	return func(row int, f *domain.Feature) {
		if g := geom(f); g != nil {
			c.Set(row, render(g))
		}
	}
}

func setValue(f *domain.Feature, idx int) any {
	if idx >= len(f.Fields) || f.Fields[idx].State != domain.ValueSet {
		return nil
	}
	return f.Fields[idx].V
}

// toInt64 converts integral Go values, integral floats and bools.
func toInt64(v any) (int64, bool) {
	switch x := v.(type) {
	case int:
		return int64(x), true
	case int8:
		return int64(x), true
	case int16:
		return int64(x), true
	case int32:
		return int64(x), true
	case int64:
		return x, true
	case uint8:
		return int64(x), true
	case uint16:
		return int64(x), true
	case uint32:
		return int64(x), true
	case uint:
		if uint64(x) > math.MaxInt64 {
			return 0, false
		}
		return int64(x), true
	case uint64:
		if x > math.MaxInt64 {
			return 0, false
		}
		return int64(x), true
	case float32:
		return floatToInt64(float64(x))
	case float64:
		return floatToInt64(x)
	case bool:
		if x {
			return 1, true
		}
		return 0, true
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return i, true
		}
		if fv, err := x.Float64(); err == nil {
			return floatToInt64(fv)
		}
	}
	return 0, false
}

func floatToInt64(f float64) (int64, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return 0, false
	}
	if f < math.MinInt64 || f >= math.MaxInt64 {
		return 0, false
	}
	return int64(f), true
}

// toFloat64 converts any numeric Go value. Bools are rejected.
func toFloat64(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case json.Number:
		f, err := x.Float64()
		return f, err == nil
	case bool:
		return 0, false
	}
	if i, ok := toInt64(v); ok {
		return float64(i), true
	}
	return 0, false
}
