package sqlstore

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/USDAForestService/gdalraster-sub000/internal/domain"
)

var (
	dateTimeRe = regexp.MustCompile(`^(\d{4})-(\d{2})-(\d{2})(?:[T ](\d{2}):(\d{2})(?::(\d{2}(?:\.\d+)?))?)?\s*(Z|[+-]\d{2}(?::?\d{2})?)?$`)
	timeRe     = regexp.MustCompile(`^(\d{2}):(\d{2})(?::(\d{2}(?:\.\d+)?))?$`)
)

// encodeCell converts a set or null feature value to its column value.
func encodeCell(fs domain.FieldSchema, v domain.FieldValue) (any, error) {
	if v.State != domain.ValueSet {
		return nil, nil
	}
	switch fs.Type {
	case domain.FieldTypeDate:
		dt, ok := v.V.(domain.DateTime)
		if !ok {
			return nil, fmt.Errorf("field %q: expected date parts, got %T", fs.Name, v.V)
		}
		return fmt.Sprintf("%04d-%02d-%02d", dt.Year, dt.Month, dt.Day), nil
	case domain.FieldTypeTime:
		dt, ok := v.V.(domain.DateTime)
		if !ok {
			return nil, fmt.Errorf("field %q: expected time parts, got %T", fs.Name, v.V)
		}
		return formatClock(dt), nil
	case domain.FieldTypeDateTime:
		dt, ok := v.V.(domain.DateTime)
		if !ok {
			return nil, fmt.Errorf("field %q: expected date/time parts, got %T", fs.Name, v.V)
		}
		return formatDateTime(dt), nil
	case domain.FieldTypeIntegerList, domain.FieldTypeInteger64List,
		domain.FieldTypeRealList, domain.FieldTypeStringList:
		b, err := json.Marshal(v.V)
		if err != nil {
			return nil, fmt.Errorf("field %q: encode list: %w", fs.Name, err)
		}
		return string(b), nil
	}
	return v.V, nil
}

// decodeCell converts a scanned column value to the feature value for fs.
func decodeCell(fs domain.FieldSchema, src any) (domain.FieldValue, error) {
	if src == nil {
		return domain.Null(), nil
	}
	switch fs.Type {
	case domain.FieldTypeInteger:
		i, err := asInt64(src)
		if err != nil {
			return domain.FieldValue{}, err
		}
		if i < math.MinInt32 || i > math.MaxInt32 {
			return domain.FieldValue{}, fmt.Errorf("field %q: value %d overflows a 32-bit integer", fs.Name, i)
		}
		return domain.Set(int32(i)), nil
	case domain.FieldTypeInteger64:
		i, err := asInt64(src)
		if err != nil {
			return domain.FieldValue{}, err
		}
		return domain.Set(i), nil
	case domain.FieldTypeReal:
		x, err := asFloat64(src)
		if err != nil {
			return domain.FieldValue{}, err
		}
		return domain.Set(x), nil
	case domain.FieldTypeBinary:
		switch b := src.(type) {
		case []byte:
			return domain.Set(append([]byte{}, b...)), nil
		case string:
			return domain.Set([]byte(b)), nil
		}
		return domain.FieldValue{}, fmt.Errorf("unexpected %T for binary column", src)
	case domain.FieldTypeDate, domain.FieldTypeDateTime:
		dt, err := parseDateTime(asString(src))
		if err != nil {
			return domain.FieldValue{}, err
		}
		return domain.Set(dt), nil
	case domain.FieldTypeTime:
		dt, err := parseClock(asString(src))
		if err != nil {
			return domain.FieldValue{}, err
		}
		return domain.Set(dt), nil
	case domain.FieldTypeIntegerList:
		return decodeList[int32](src)
	case domain.FieldTypeInteger64List:
		return decodeList[int64](src)
	case domain.FieldTypeRealList:
		return decodeList[float64](src)
	case domain.FieldTypeStringList:
		return decodeList[string](src)
	}
	return domain.Set(asString(src)), nil
}

func decodeList[T any](src any) (domain.FieldValue, error) {
	var out []T
	if err := json.Unmarshal([]byte(asString(src)), &out); err != nil {
		return domain.FieldValue{}, fmt.Errorf("decode list: %w", err)
	}
	if out == nil {
		out = []T{}
	}
	return domain.Set(out), nil
}

func asString(src any) string {
	switch x := src.(type) {
	case string:
		return x
	case []byte:
		return string(x)
	}
	return fmt.Sprint(src)
}

func asInt64(src any) (int64, error) {
	switch x := src.(type) {
	case int64:
		return x, nil
	case int32:
		return int64(x), nil
	case int16:
		return int64(x), nil
	case int8:
		return int64(x), nil
	case int:
		return int64(x), nil
	case uint32:
		return int64(x), nil
	case float64:
		if x == math.Trunc(x) {
			return int64(x), nil
		}
	case bool:
		if x {
			return 1, nil
		}
		return 0, nil
	case string, []byte:
		return strconv.ParseInt(asString(x), 10, 64)
	}
	return 0, fmt.Errorf("unexpected %T for integer column", src)
}

func asFloat64(src any) (float64, error) {
	switch x := src.(type) {
	case float64:
		return x, nil
	case float32:
		return float64(x), nil
	case int64:
		return float64(x), nil
	case int32:
		return float64(x), nil
	case string, []byte:
		return strconv.ParseFloat(asString(x), 64)
	}
	return 0, fmt.Errorf("unexpected %T for real column", src)
}

const millisPerDay = 24 * 60 * 60 * 1000

// clockMillis returns the time of day rounded to whole milliseconds, the
// resolution of the stored text. It may reach millisPerDay.
func clockMillis(dt domain.DateTime) int64 {
	return int64(dt.Hour)*3_600_000 + int64(dt.Minute)*60_000 + int64(math.Round(dt.Second*1000))
}

func formatMillis(ms int64) string {
	s := fmt.Sprintf("%02d:%02d:%02d", ms/3_600_000, ms/60_000%60, ms/1000%60)
	if frac := ms % 1000; frac > 0 {
		s += fmt.Sprintf(".%03d", frac)
	}
	return s
}

// formatClock renders a time of day. A value that rounds up to midnight is
// held at the last representable millisecond.
func formatClock(dt domain.DateTime) string {
	return formatMillis(min(clockMillis(dt), millisPerDay-1))
}

// formatDateTime renders the parts as ISO text. Rounding carries into the
// date, so 23:59:59.9997 becomes midnight of the following day.
func formatDateTime(dt domain.DateTime) string {
	year, month, day := dt.Year, dt.Month, dt.Day
	ms := clockMillis(dt)
	if ms >= millisPerDay {
		ms -= millisPerDay
		next := time.Date(year, time.Month(month), day+1, 0, 0, 0, 0, time.UTC)
		year, month, day = next.Year(), int(next.Month()), next.Day()
	}
	s := fmt.Sprintf("%04d-%02d-%02dT%s", year, month, day, formatMillis(ms))
	switch {
	case dt.TZFlag == domain.TZUTC:
		s += "Z"
	case dt.TZFlag > domain.TZLocal:
		off := (dt.TZFlag - domain.TZUTC) * 15
		sign := "+"
		if off < 0 {
			sign, off = "-", -off
		}
		s += fmt.Sprintf("%s%02d:%02d", sign, off/60, off%60)
	}
	return s
}

// parseDateTime reads "YYYY-MM-DD[( |T)HH:MM[:SS[.fff]]][Z|±HH[:MM]]".
func parseDateTime(s string) (domain.DateTime, error) {
	m := dateTimeRe.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return domain.DateTime{}, fmt.Errorf("invalid date/time %q", s)
	}
	dt := domain.DateTime{Year: atoi(m[1]), Month: atoi(m[2]), Day: atoi(m[3])}
	if m[4] != "" {
		dt.Hour, dt.Minute = atoi(m[4]), atoi(m[5])
		if m[6] != "" {
			dt.Second, _ = strconv.ParseFloat(m[6], 64)
		}
	}
	switch tz := m[7]; {
	case tz == "":
		dt.TZFlag = domain.TZUnknown
	case tz == "Z":
		dt.TZFlag = domain.TZUTC
	default:
		digits := strings.ReplaceAll(tz[1:], ":", "")
		minutes := atoi(digits[:2]) * 60
		if len(digits) == 4 {
			minutes += atoi(digits[2:])
		}
		if tz[0] == '-' {
			minutes = -minutes
		}
		dt.TZFlag = domain.TZUTC + minutes/15
	}
	return dt, nil
}

func parseClock(s string) (domain.DateTime, error) {
	m := timeRe.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return domain.DateTime{}, fmt.Errorf("invalid time %q", s)
	}
	dt := domain.DateTime{Hour: atoi(m[1]), Minute: atoi(m[2])}
	if m[3] != "" {
		dt.Second, _ = strconv.ParseFloat(m[3], 64)
	}
	return dt, nil
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}
