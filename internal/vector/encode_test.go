package vector

import (
	"context"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/USDAForestService/gdalraster-sub000/internal/domain"
	"github.com/USDAForestService/gdalraster-sub000/internal/testutil"
)

func encodeSchema(geomName string) *domain.LayerSchema {
	return &domain.LayerSchema{
		Name:      "stands",
		FIDColumn: "fid",
		Fields: []domain.FieldSchema{
			{Name: "name", Type: domain.FieldTypeString, Nullable: true},
			{Name: "age", Type: domain.FieldTypeInteger, Nullable: true},
			{Name: "stand_id", Type: domain.FieldTypeInteger64, Nullable: false},
			{Name: "status", Type: domain.FieldTypeString, Nullable: false, Default: "'active'"},
		},
		GeomFields: []domain.GeomFieldSchema{{Name: geomName, Type: domain.GeomPolygon, Nullable: true}},
	}
}

func encodeLayer(t *testing.T, geomName string, cfg Config) (*Layer, *testutil.MockLayerStore) {
	t.Helper()
	m := &testutil.MockLayerStore{LayerName: "stands", FID: "fid", Schema: encodeSchema(geomName)}
	l, err := Open(context.Background(), m, cfg)
	require.NoError(t, err)
	return l, m
}

func TestEncodeRow_UnsetVersusNull(t *testing.T) {
	l, _ := encodeLayer(t, "", DefaultConfig())

	f, err := l.encodeRow(Row{"stand_id": 7, "name": nil}, 0)
	require.NoError(t, err)
	assert.Equal(t, domain.NullFID, f.FID)
	assert.Equal(t, domain.ValueNull, f.Fields[0].State)
	assert.Equal(t, domain.ValueUnset, f.Fields[1].State)
	assert.Equal(t, domain.Set(int64(7)), f.Fields[2])
	assert.Equal(t, domain.ValueUnset, f.Fields[3].State)
	assert.Nil(t, f.Geoms[0])
}

func TestEncodeRow_Nullability(t *testing.T) {
	l, _ := encodeLayer(t, "", DefaultConfig())

	tests := []struct {
		name      string
		row       Row
		wantField string
	}{
		{name: "required_absent", row: Row{"name": "x"}, wantField: "stand_id"},
		{name: "required_null", row: Row{"stand_id": nil}, wantField: "stand_id"},
		{name: "defaulted_null", row: Row{"stand_id": 1, "status": nil}, wantField: "status"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := l.encodeRow(tt.row, 4)
			var verr *domain.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.wantField, verr.Field)
			assert.Equal(t, 4, verr.Row)
			assert.Contains(t, verr.Error(), "not nullable")
		})
	}
}

func TestEncodeRow_KeyMapping(t *testing.T) {
	l, _ := encodeLayer(t, "", DefaultConfig())

	_, err := l.encodeRow(Row{"stand_id": 1, "height": 3}, 0)
	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, err.Error(), `"height"`)

	_, err = l.encodeRow(Row{"stand_id": 1, "name": "a", "NAME": "b"}, 0)
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, err.Error(), "both map to field")

	_, err = l.encodeRow(Row{"stand_id": 1, "geometry": "POINT (0 0)", "geom": "POINT (1 1)"}, 0)
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, err.Error(), "both map to geometry field")

	_, err = l.encodeRow(Row{"stand_id": 1, FIDKey: "one"}, 0)
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, FIDKey, verr.Field)

	f, err := l.encodeRow(Row{"stand_id": 1, FIDKey: 12.0}, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(12), f.FID)
}

func TestEncodeRow_AmbiguousGeometryName(t *testing.T) {
	schema := encodeSchema("")
	schema.Fields = append(schema.Fields, domain.FieldSchema{Name: "geom", Type: domain.FieldTypeString, Nullable: true})
	m := &testutil.MockLayerStore{LayerName: "stands", Schema: schema}
	l, err := Open(context.Background(), m, DefaultConfig())
	require.NoError(t, err)

	_, err = l.encodeRow(Row{"stand_id": 1, "geom": "POINT (0 0)"}, 0)
	var serr *domain.SchemaError
	require.ErrorAs(t, err, &serr)
}

func TestEncodeRow_GeometryAliases(t *testing.T) {
	square := orb.Polygon{{{0, 0}, {1, 0}, {1, 1}, {0, 1}, {0, 0}}}

	tests := []struct {
		name     string
		geomName string
		cfg      Config
		key      string
		wantErr  bool
	}{
		{name: "default_name", cfg: DefaultConfig(), key: "geometry"},
		{name: "builtin_alias", cfg: DefaultConfig(), key: "WKB_GEOMETRY"},
		{name: "custom_default_name", cfg: Config{DefaultGeomName: "shape"}, key: "shape"},
		{name: "custom_alias", cfg: Config{GeomAliases: []string{"the_geom"}}, key: "the_geom"},
		{name: "alias_not_configured", cfg: Config{GeomAliases: []string{"the_geom"}}, key: "wkb_geometry", wantErr: true},
		{name: "native_name", geomName: "boundary", cfg: DefaultConfig(), key: "boundary"},
		{name: "aliases_ignored_for_named_field", geomName: "boundary", cfg: DefaultConfig(), key: "geom", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, _ := encodeLayer(t, tt.geomName, tt.cfg)
			f, err := l.encodeRow(Row{"stand_id": 1, tt.key: square}, 0)
			if tt.wantErr {
				var verr *domain.ValidationError
				require.ErrorAs(t, err, &verr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, square, f.Geoms[0])
		})
	}
}

func TestEncodeRow_GeometryErrors(t *testing.T) {
	l, _ := encodeLayer(t, "", DefaultConfig())

	tests := []struct {
		name     string
		value    any
		wantKind domain.GeometryErrorKind
	}{
		{name: "short_wkb", value: []byte{1, 1}, wantKind: domain.GeomErrInsufficientData},
		{name: "curve_wkt", value: "CIRCULARSTRING (0 0, 1 1, 2 0)", wantKind: domain.GeomErrUnsupportedType},
		{name: "empty_wkt", value: "   ", wantKind: domain.GeomErrInsufficientData},
		{name: "wrong_go_type", value: 42, wantKind: domain.GeomErrUnsupportedType},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := l.encodeRow(Row{"stand_id": 1, "geom": tt.value}, 3)
			var gerr *domain.GeometryParseError
			require.ErrorAs(t, err, &gerr)
			assert.Equal(t, tt.wantKind, gerr.Kind)
			assert.Equal(t, "geometry", gerr.Field)
			assert.Equal(t, 3, gerr.Row)
		})
	}
}

func TestEncodeRow_TypeMismatch(t *testing.T) {
	l, m := encodeLayer(t, "", DefaultConfig())

	_, err := l.encodeRow(Row{"stand_id": 1, "age": "old"}, 2)
	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "age", verr.Field)
	assert.Equal(t, 2, verr.Row)

	_, err = l.encodeRow(Row{"stand_id": 1, "age": int64(1) << 40}, 0)
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, err.Error(), "out of 32-bit range")

	ok, err := l.CreateFeature(context.Background(), Row{"stand_id": 1, "age": 2.5})
	require.Error(t, err)
	assert.False(t, ok)
	assert.Empty(t, m.Created)
}

type stringerID int

func (s stringerID) String() string { return "id-" + string(rune('0'+int(s))) }

func TestEncodeValue(t *testing.T) {
	surveyed := time.Date(2022, 3, 4, 5, 6, 7, 500_000_000, time.FixedZone("PDT", -7*3600))

	tests := []struct {
		name    string
		field   domain.FieldType
		sub     domain.FieldSubType
		in      any
		want    any
		wantErr bool
	}{
		{name: "integer_from_bool", field: domain.FieldTypeInteger, sub: domain.SubTypeBoolean, in: true, want: int32(1)},
		{name: "integer_from_float", field: domain.FieldTypeInteger, in: 3.0, want: int32(3)},
		{name: "integer_fraction", field: domain.FieldTypeInteger, in: 3.5, wantErr: true},
		{name: "integer64_from_int", field: domain.FieldTypeInteger64, in: 9, want: int64(9)},
		{name: "real_from_int", field: domain.FieldTypeReal, in: int32(4), want: 4.0},
		{name: "real_from_bool", field: domain.FieldTypeReal, in: false, wantErr: true},
		{name: "string", field: domain.FieldTypeString, in: "x", want: "x"},
		{name: "string_from_stringer", field: domain.FieldTypeString, in: stringerID(3), want: "id-3"},
		{name: "string_from_int", field: domain.FieldTypeString, in: 3, wantErr: true},
		{name: "date_from_days", field: domain.FieldTypeDate, in: domain.Date(0), want: domain.DateTime{Year: 1970, Month: 1, Day: 1}},
		{name: "date_from_time", field: domain.FieldTypeDate, in: surveyed, want: domain.DateTime{Year: 2022, Month: 3, Day: 4}},
		{name: "date_from_string", field: domain.FieldTypeDate, in: "2022-03-04", wantErr: true},
		{
			name:  "datetime_normalized_to_utc",
			field: domain.FieldTypeDateTime,
			in:    surveyed,
			want:  domain.DateTime{Year: 2022, Month: 3, Day: 4, Hour: 12, Minute: 6, Second: 7.5, TZFlag: domain.TZUTC},
		},
		{name: "time_from_string", field: domain.FieldTypeTime, in: "10:30", want: domain.DateTime{Hour: 10, Minute: 30}},
		{name: "time_bad_hour", field: domain.FieldTypeTime, in: "25:00", wantErr: true},
		{name: "binary", field: domain.FieldTypeBinary, in: []byte{1, 2}, want: []byte{1, 2}},
		{name: "binary_from_string", field: domain.FieldTypeBinary, in: "ab", wantErr: true},
		{name: "integer_list_mixed", field: domain.FieldTypeIntegerList, in: []any{1, 2.0, true}, want: []int32{1, 2, 1}},
		{name: "integer_list_overflow", field: domain.FieldTypeIntegerList, in: []int64{1 << 40}, wantErr: true},
		{name: "integer64_list", field: domain.FieldTypeInteger64List, in: []int{5, 6}, want: []int64{5, 6}},
		{name: "real_list", field: domain.FieldTypeRealList, in: []int32{1}, want: []float64{1}},
		{name: "string_list", field: domain.FieldTypeStringList, in: []string{"a"}, want: []string{"a"}},
		{name: "string_list_bad_element", field: domain.FieldTypeStringList, in: []any{"a", 1}, wantErr: true},
		{name: "list_from_scalar", field: domain.FieldTypeRealList, in: 1.0, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := encodeValue(domain.FieldSchema{Name: "f", Type: tt.field, SubType: tt.sub}, tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEncodeList_CopiesInput(t *testing.T) {
	in := []float64{1, 2}
	out, err := encodeValue(domain.FieldSchema{Type: domain.FieldTypeRealList}, in)
	require.NoError(t, err)
	in[0] = 99
	assert.Equal(t, []float64{1, 2}, out)
}
