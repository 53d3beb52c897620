package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDateTime_Offset(t *testing.T) {
	tests := []struct {
		name string
		flag int
		want time.Duration
	}{
		{name: "unknown", flag: TZUnknown, want: 0},
		{name: "local", flag: TZLocal, want: 0},
		{name: "utc", flag: TZUTC, want: 0},
		{name: "plus_5_45", flag: TZUTC + 23, want: 5*time.Hour + 45*time.Minute},
		{name: "minus_8", flag: TZUTC - 32, want: -8 * time.Hour},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DateTime{TZFlag: tt.flag}.Offset())
		})
	}
}

func TestDateTime_UTCAndEpoch(t *testing.T) {
	dt := DateTime{Year: 2020, Month: 1, Day: 1, Hour: 1, Minute: 0, Second: 0.5, TZFlag: TZUTC + 4}
	assert.Equal(t, time.Date(2020, 1, 1, 0, 0, 0, 500_000_000, time.UTC), dt.UTC())
	assert.Equal(t, float64(time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC).Unix())+0.5, dt.EpochSeconds())
}

func TestDateTime_DaysSinceEpoch(t *testing.T) {
	assert.Equal(t, int32(0), DateTime{Year: 1970, Month: 1, Day: 1}.DaysSinceEpoch())
	assert.Equal(t, int32(-1), DateTime{Year: 1969, Month: 12, Day: 31}.DaysSinceEpoch())
	assert.Equal(t, DateTime{Year: 2024, Month: 2, Day: 29}, DateFromDays(DateTime{Year: 2024, Month: 2, Day: 29}.DaysSinceEpoch()))
}

func TestDateTime_String(t *testing.T) {
	assert.Equal(t, "2021/07/04 09:05:03", DateTime{Year: 2021, Month: 7, Day: 4, Hour: 9, Minute: 5, Second: 3}.String())
	assert.Equal(t, "09:05:03.250", DateTime{Hour: 9, Minute: 5, Second: 3.25}.String())
}

func TestDate(t *testing.T) {
	ts := time.Date(2000, 3, 1, 23, 0, 0, 0, time.FixedZone("X", -2*3600))
	d := DateOf(ts)
	assert.Equal(t, "2000-03-02", d.String())
	assert.Equal(t, time.Date(2000, 3, 2, 0, 0, 0, 0, time.UTC), d.Time())
}

func TestFeature_FieldAsString(t *testing.T) {
	s := &LayerSchema{Fields: make([]FieldSchema, 6)}
	f := NewFeature(s)
	f.Fields[0] = Set(int32(-4))
	f.Fields[1] = Set(2.5)
	f.Fields[2] = Set([]byte{0xAB, 0x01})
	f.Fields[3] = Set([]string{"a", "b"})
	f.Fields[4] = Null()

	assert.Equal(t, NullFID, f.FID)
	assert.Equal(t, "-4", f.FieldAsString(0))
	assert.Equal(t, "2.5", f.FieldAsString(1))
	assert.Equal(t, "AB01", f.FieldAsString(2))
	assert.Equal(t, "(2:a,b)", f.FieldAsString(3))
	assert.Equal(t, "", f.FieldAsString(4))
	assert.Equal(t, "", f.FieldAsString(5))
	assert.True(t, f.Fields[5].IsNull())
}

func TestLayerSchema_Lookup(t *testing.T) {
	s := &LayerSchema{
		Fields:     []FieldSchema{{Name: "Height"}},
		GeomFields: []GeomFieldSchema{{Name: ""}, {Name: "centroid"}},
	}
	assert.Equal(t, 0, s.FieldIndex("height"))
	assert.Equal(t, -1, s.FieldIndex("width"))
	assert.Equal(t, 1, s.GeomFieldIndex("CENTROID"))
	assert.Equal(t, -1, s.GeomFieldIndex(""))

	c := s.Clone()
	c.Fields[0].Ignored = true
	assert.False(t, s.Fields[0].Ignored)
}

func TestGeomType_Dims(t *testing.T) {
	pz := GeomPoint.WithDims(true, false)
	assert.True(t, pz.HasZ())
	assert.False(t, pz.HasM())
	assert.Equal(t, GeomPoint, pz.Flat())
	assert.True(t, GeomPolygon.WithDims(true, true).HasM())
	assert.True(t, GeomCompoundCurve.IsCurve())
	assert.False(t, GeomMultiPolygon.IsCurve())
	assert.Equal(t, GeomNone, GeomNone.WithDims(true, true))
}
