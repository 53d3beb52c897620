package vector

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/USDAForestService/gdalraster-sub000/internal/domain"
	"github.com/USDAForestService/gdalraster-sub000/internal/geometry"
)

// Row is one input row for the encoder. The key "FID" carries the feature
// identifier; every other key names an attribute or geometry field.
type Row map[string]any

// FIDKey is the pseudo-field naming the feature identifier in a Row.
const FIDKey = "FID"

// fieldMap records where each input key of a row goes.
type fieldMap struct {
	fidKey string         // empty when the row has no FID key
	attrs  map[int]string // field index -> input key
	geoms  map[int]string // geometry field index -> input key
}

// validate maps every key of a row to the FID, an attribute field or a
// geometry field.
func (l *Layer) validate(keys []string) (*fieldMap, error) {
	m := &fieldMap{attrs: map[int]string{}, geoms: map[int]string{}}
	for _, k := range keys {
		if k == FIDKey {
			m.fidKey = k
			continue
		}
		attr := l.schema.FieldIndex(k)
		geom := l.geomFieldForName(k)
		switch {
		case attr >= 0 && geom >= 0:
			return nil, domain.ErrSchema("input name %q matches both field %q and a geometry field in layer %q",
				k, l.schema.Fields[attr].Name, l.Name())
		case attr >= 0:
			if prev, dup := m.attrs[attr]; dup {
				return nil, domain.ErrValidation("input names %q and %q both map to field %q", prev, k, l.schema.Fields[attr].Name)
			}
			m.attrs[attr] = k
		case geom >= 0:
			if prev, dup := m.geoms[geom]; dup {
				return nil, domain.ErrValidation("input names %q and %q both map to geometry field %q", prev, k, l.exposedGeomName(geom))
			}
			m.geoms[geom] = k
		default:
			return nil, domain.ErrValidation("field %q not found in layer %q", k, l.Name())
		}
	}
	return m, nil
}

// precheck verifies value types before any feature is built.
func (l *Layer) precheck(row Row, m *fieldMap, rowIndex int) error {
	for i, key := range m.attrs {
		v := row[key]
		if v == nil {
			continue
		}
		fs := l.schema.Fields[i]
		if _, err := encodeValue(fs, v); err != nil {
			return domain.ErrFieldValidation(fs.Name, rowIndex, "field %q: %v", fs.Name, err)
		}
	}
	for g, key := range m.geoms {
		switch row[key].(type) {
		case nil, []byte, string:
		default:
			if _, err := geometry.Parse(row[key]); err != nil {
				return geomError(err, l.exposedGeomName(g), rowIndex)
			}
		}
	}
	return nil
}

// encodeRow validates a row and builds the store-native feature.
func (l *Layer) encodeRow(row Row, rowIndex int) (*domain.Feature, error) {
	m, err := l.validate(sortedKeys(row))
	if err != nil {
		return nil, err
	}
	if err := l.precheck(row, m, rowIndex); err != nil {
		return nil, err
	}
	return l.build(row, m, rowIndex)
}

func (l *Layer) build(row Row, m *fieldMap, rowIndex int) (*domain.Feature, error) {
	f := domain.NewFeature(l.schema)

	if m.fidKey != "" && row[m.fidKey] != nil {
		fid, ok := toInt64(row[m.fidKey])
		if !ok {
			return nil, domain.ErrFieldValidation(FIDKey, rowIndex, "FID must be an integer, got %T", row[m.fidKey])
		}
		f.FID = fid
	}

	for i, fs := range l.schema.Fields {
		key, present := m.attrs[i]
		var v any
		if present {
			v = row[key]
		}
		if v == nil {
			if !fs.Nullable && (present || fs.Default == "") {
				return nil, domain.ErrFieldValidation(fs.Name, rowIndex, "field %q is not nullable", fs.Name)
			}
			if present {
				f.Fields[i] = domain.Null()
			}
			continue
		}
		ev, err := encodeValue(fs, v)
		if err != nil {
			return nil, domain.ErrFieldValidation(fs.Name, rowIndex, "field %q: %v", fs.Name, err)
		}
		f.Fields[i] = domain.Set(ev)
	}

	for g := range l.schema.GeomFields {
		key, present := m.geoms[g]
		if !present || row[key] == nil {
			continue
		}
		geom, err := geometry.Parse(row[key])
		if err != nil {
			return nil, geomError(err, l.exposedGeomName(g), rowIndex)
		}
		f.Geoms[g] = geom
	}
	return f, nil
}

func geomError(err error, field string, rowIndex int) error {
	var gerr *domain.GeometryParseError
	if errors.As(err, &gerr) {
		out := *gerr
		out.Field = field
		out.Row = rowIndex
		return &out
	}
	return &domain.GeometryParseError{Kind: domain.GeomErrCorruptData, Field: field, Row: rowIndex, Err: err}
}

func sortedKeys(row Row) []string {
	keys := make([]string, 0, len(row))
	for k := range row {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// encodeValue converts a non-nil input value to the store value for fs.
// It is the inverse of the fetch decoders.
func encodeValue(fs domain.FieldSchema, v any) (any, error) {
	switch fs.Type {
	case domain.FieldTypeInteger:
		i, ok := toInt64(v)
		if !ok {
			return nil, fmt.Errorf("expected an integer or logical value, got %T", v)
		}
		if i < math.MinInt32 || i > math.MaxInt32 {
			return nil, fmt.Errorf("value %d out of 32-bit range", i)
		}
		return int32(i), nil
	case domain.FieldTypeInteger64:
		i, ok := toInt64(v)
		if !ok {
			return nil, fmt.Errorf("expected an integer or logical value, got %T", v)
		}
		return i, nil
	case domain.FieldTypeReal:
		x, ok := toFloat64(v)
		if !ok {
			return nil, fmt.Errorf("expected a numeric value, got %T", v)
		}
		return x, nil
	case domain.FieldTypeDate:
		switch x := v.(type) {
		case domain.Date:
			return domain.DateFromDays(int32(x)), nil
		case time.Time:
			return domain.DateFromDays(int32(domain.DateOf(x))), nil
		}
		return nil, fmt.Errorf("expected a date value, got %T", v)
	case domain.FieldTypeDateTime:
		if t, ok := v.(time.Time); ok {
			return domain.DateTimeFromTime(t), nil
		}
		return nil, fmt.Errorf("expected a time.Time value, got %T", v)
	case domain.FieldTypeTime:
		return encodeTimeOfDay(v)
	case domain.FieldTypeBinary:
		if b, ok := v.([]byte); ok {
			return append([]byte{}, b...), nil
		}
		return nil, fmt.Errorf("expected []byte, got %T", v)
	case domain.FieldTypeIntegerList:
		return encodeList(v, func(e any) (int32, error) {
			i, ok := toInt64(e)
			if !ok || i < math.MinInt32 || i > math.MaxInt32 {
				return 0, fmt.Errorf("list element %v is not a 32-bit integer", e)
			}
			return int32(i), nil
		})
	case domain.FieldTypeInteger64List:
		return encodeList(v, func(e any) (int64, error) {
			i, ok := toInt64(e)
			if !ok {
				return 0, fmt.Errorf("list element %v is not an integer", e)
			}
			return i, nil
		})
	case domain.FieldTypeRealList:
		return encodeList(v, func(e any) (float64, error) {
			x, ok := toFloat64(e)
			if !ok {
				return 0, fmt.Errorf("list element %v is not numeric", e)
			}
			return x, nil
		})
	case domain.FieldTypeStringList:
		return encodeList(v, func(e any) (string, error) {
			s, ok := toString(e)
			if !ok {
				return "", fmt.Errorf("list element %v is not a string", e)
			}
			return s, nil
		})
	}
	s, ok := toString(v)
	if !ok {
		return nil, fmt.Errorf("expected a string, got %T", v)
	}
	return s, nil
}

func toString(v any) (string, bool) {
	switch x := v.(type) {
	case string:
		return x, true
	case fmt.Stringer:
		return x.String(), true
	}
	return "", false
}

// encodeList converts a typed slice or a []any of convertible elements.
func encodeList[T any](v any, conv func(any) (T, error)) ([]T, error) {
	if typed, ok := v.([]T); ok {
		return append([]T{}, typed...), nil
	}
	var elems []any
	switch x := v.(type) {
	case []any:
		elems = x
	case []int:
		for _, e := range x {
			elems = append(elems, e)
		}
	case []int32:
		for _, e := range x {
			elems = append(elems, e)
		}
	case []int64:
		for _, e := range x {
			elems = append(elems, e)
		}
	case []float64:
		for _, e := range x {
			elems = append(elems, e)
		}
	case []bool:
		for _, e := range x {
			elems = append(elems, e)
		}
	case []string:
		for _, e := range x {
			elems = append(elems, e)
		}
	default:
		return nil, fmt.Errorf("expected a list, got %T", v)
	}
	out := make([]T, len(elems))
	for i, e := range elems {
		c, err := conv(e)
		if err != nil {
			return nil, err
		}
		out[i] = c
	}
	return out, nil
}

// encodeTimeOfDay accepts time.Time or "HH:MM[:SS[.fff]]".
func encodeTimeOfDay(v any) (domain.DateTime, error) {
	switch x := v.(type) {
	case time.Time:
		return domain.DateTime{
			Hour: x.Hour(), Minute: x.Minute(),
			Second: float64(x.Second()) + float64(x.Nanosecond())/1e9,
		}, nil
	case string:
		parts := strings.Split(strings.TrimSpace(x), ":")
		if len(parts) < 2 || len(parts) > 3 {
			return domain.DateTime{}, fmt.Errorf("invalid time of day %q", x)
		}
		h, err1 := strconv.Atoi(parts[0])
		m, err2 := strconv.Atoi(parts[1])
		s := 0.0
		var err3 error
		if len(parts) == 3 {
			s, err3 = strconv.ParseFloat(parts[2], 64)
		}
		if err1 != nil || err2 != nil || err3 != nil || h < 0 || h > 23 || m < 0 || m > 59 || s < 0 || s >= 61 {
			return domain.DateTime{}, fmt.Errorf("invalid time of day %q", x)
		}
		return domain.DateTime{Hour: h, Minute: m, Second: s}, nil
	}
	return domain.DateTime{}, fmt.Errorf("expected a time.Time or HH:MM:SS string, got %T", v)
}
