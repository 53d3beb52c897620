package domain

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/paulmach/orb"
)

// NullFID marks a feature whose identifier has not been assigned.
const NullFID int64 = -1

// ValueState distinguishes never-set values from explicit nulls.
type ValueState uint8

const (
	ValueUnset ValueState = iota
	ValueNull
	ValueSet
)

// FieldValue is one attribute value of a store-native feature. When State
// is ValueSet, V holds the Go value for the field type:
//
//	Integer        int32
//	Integer64      int64
//	Real           float64
//	String         string
//	Date, DateTime DateTime
//	Time           DateTime (date parts zero)
//	Binary         []byte
//	IntegerList    []int32
//	Integer64List  []int64
//	RealList       []float64
//	StringList     []string
type FieldValue struct {
	State ValueState
	V     any
}

// Set wraps v as a set value.
func Set(v any) FieldValue { return FieldValue{State: ValueSet, V: v} }

// Null returns an explicit null value.
func Null() FieldValue { return FieldValue{State: ValueNull} }

// IsNull reports whether the value is unset or null.
func (v FieldValue) IsNull() bool { return v.State != ValueSet }

// Feature is one store-native feature: FID, attribute values aligned to the
// schema fields, and geometries aligned to the geometry fields (nil = null).
type Feature struct {
	FID    int64
	Fields []FieldValue
	Geoms  []orb.Geometry
}

// NewFeature allocates an empty feature sized for the schema.
func NewFeature(s *LayerSchema) *Feature {
	return &Feature{
		FID:    NullFID,
		Fields: make([]FieldValue, len(s.Fields)),
		Geoms:  make([]orb.Geometry, len(s.GeomFields)),
	}
}

// FieldAsString renders field i as text, the fallback decode for types that
// have no dedicated column kind.
func (f *Feature) FieldAsString(i int) string {
	v := f.Fields[i]
	if v.State != ValueSet {
		return ""
	}
	switch x := v.V.(type) {
	case string:
		return x
	case int32:
		return strconv.FormatInt(int64(x), 10)
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	case DateTime:
		return x.String()
	case []byte:
		return fmt.Sprintf("%X", x)
	case []string:
		return fmt.Sprintf("(%d:%s)", len(x), strings.Join(x, ","))
	default:
		return fmt.Sprint(x)
	}
}

// Time zone flag values carried by DateTime.
const (
	TZUnknown = 0
	TZLocal   = 1
	TZUTC     = 100
)

// DateTime is a broken-down date/time as stores report it. TZFlag follows
// the OGR convention: 0 unknown, 1 local time, 100 UTC, and every other
// value an offset from UTC in 15 minute units relative to 100.
type DateTime struct {
	Year, Month, Day int
	Hour, Minute     int
	Second           float64
	TZFlag           int
}

// Offset returns the UTC offset encoded by the TZ flag. Unknown, local and
// UTC flags all yield zero.
func (d DateTime) Offset() time.Duration {
	if d.TZFlag <= TZLocal || d.TZFlag == TZUTC {
		return 0
	}
	return time.Duration(d.TZFlag-TZUTC) * 15 * time.Minute
}

// UTC converts the parts to an instant, normalizing any offset.
func (d DateTime) UTC() time.Time {
	whole := math.Floor(d.Second)
	nanos := int(math.Round((d.Second - whole) * 1e9))
	t := time.Date(d.Year, time.Month(d.Month), d.Day, d.Hour, d.Minute, int(whole), nanos, time.UTC)
	return t.Add(-d.Offset())
}

// EpochSeconds returns seconds since the Unix epoch with a fractional part.
func (d DateTime) EpochSeconds() float64 {
	t := d.UTC()
	return float64(t.Unix()) + float64(t.Nanosecond())/1e9
}

// DaysSinceEpoch returns the whole-day count of the date parts.
func (d DateTime) DaysSinceEpoch() int32 {
	t := time.Date(d.Year, time.Month(d.Month), d.Day, 0, 0, 0, 0, time.UTC)
	return int32(math.Floor(float64(t.Unix()) / 86400))
}

// String renders "YYYY/MM/DD HH:MM:SS", or only the time of day when the
// date parts are zero.
func (d DateTime) String() string {
	clock := fmt.Sprintf("%02d:%02d:%s", d.Hour, d.Minute, formatSeconds(d.Second))
	if d.Year == 0 && d.Month == 0 && d.Day == 0 {
		return clock
	}
	return fmt.Sprintf("%04d/%02d/%02d %s", d.Year, d.Month, d.Day, clock)
}

func formatSeconds(s float64) string {
	if s == math.Trunc(s) {
		return fmt.Sprintf("%02d", int(s))
	}
	return fmt.Sprintf("%06.3f", s)
}

// DateTimeFromTime breaks t into UTC parts flagged as UTC.
func DateTimeFromTime(t time.Time) DateTime {
	u := t.UTC()
	return DateTime{
		Year: u.Year(), Month: int(u.Month()), Day: u.Day(),
		Hour: u.Hour(), Minute: u.Minute(),
		Second: float64(u.Second()) + float64(u.Nanosecond())/1e9,
		TZFlag: TZUTC,
	}
}

// DateFromDays builds date parts from a day count since the epoch.
func DateFromDays(days int32) DateTime {
	t := time.Unix(int64(days)*86400, 0).UTC()
	return DateTime{Year: t.Year(), Month: int(t.Month()), Day: t.Day()}
}

// Date is a calendar date expressed as whole days since 1970-01-01. It is
// the date-tagged input type the encoder accepts for Date fields.
type Date int32

// DateOf truncates t to its UTC calendar date.
func DateOf(t time.Time) Date {
	u := t.UTC()
	return Date(DateTime{Year: u.Year(), Month: int(u.Month()), Day: u.Day()}.DaysSinceEpoch())
}

// Time returns midnight UTC of the date.
func (d Date) Time() time.Time { return time.Unix(int64(d)*86400, 0).UTC() }

func (d Date) String() string { return d.Time().Format("2006-01-02") }
