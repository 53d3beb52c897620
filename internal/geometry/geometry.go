// Package geometry adapts github.com/paulmach/orb to the feature model: WKB
// and WKT parsing with classified failures, serialization in the requested
// byte order, and the derived summary, type-name and bounding-box forms.
//
// orb models 2D geometries without curves, so ISO encodings coincide with
// the plain ones and Linearize returns its input unchanged.
package geometry

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkb"
	"github.com/paulmach/orb/encoding/wkt"

	"github.com/USDAForestService/gdalraster-sub000/internal/domain"
	"github.com/USDAForestService/gdalraster-sub000/internal/typecatalog"
)

// ByteOrder selects the WKB byte order.
type ByteOrder int

const (
	LittleEndian ByteOrder = iota
	BigEndian
)

func (o ByteOrder) String() string {
	if o == BigEndian {
		return "MSB"
	}
	return "LSB"
}

func (o ByteOrder) binary() binary.ByteOrder {
	if o == BigEndian {
		return binary.BigEndian
	}
	return binary.LittleEndian
}

// ParseByteOrder accepts "LSB"/"MSB" and "little"/"big"; anything else is
// little endian.
func ParseByteOrder(s string) ByteOrder {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "MSB", "BIG", "BIG_ENDIAN", "XDR":
		return BigEndian
	}
	return LittleEndian
}

// minWKB is the byte-order flag plus the type code.
const minWKB = 5

// ParseWKB decodes WKB bytes.
func ParseWKB(data []byte) (orb.Geometry, error) {
	if len(data) < minWKB {
		return nil, &domain.GeometryParseError{Kind: domain.GeomErrInsufficientData, Row: -1,
			Err: fmt.Errorf("%d bytes", len(data))}
	}
	g, err := wkb.Unmarshal(data)
	if err != nil {
		return nil, &domain.GeometryParseError{Kind: classifyWKB(err), Row: -1, Err: err}
	}
	return g, nil
}

func classifyWKB(err error) domain.GeometryErrorKind {
	switch {
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		return domain.GeomErrInsufficientData
	case errors.Is(err, wkb.ErrUnsupportedGeometry):
		return domain.GeomErrUnsupportedType
	}
	return domain.GeomErrCorruptData
}

// ParseWKT decodes WKT text.
func ParseWKT(text string) (orb.Geometry, error) {
	s := strings.TrimSpace(text)
	if s == "" {
		return nil, &domain.GeometryParseError{Kind: domain.GeomErrInsufficientData, Row: -1,
			Err: errors.New("empty WKT")}
	}
	g, err := wkt.Unmarshal(s)
	if err != nil {
		kind := domain.GeomErrCorruptData
		if errors.Is(err, wkt.ErrUnsupportedGeometry) || !knownWKTTag(s) {
			kind = domain.GeomErrUnsupportedType
		}
		return nil, &domain.GeometryParseError{Kind: kind, Row: -1, Err: err}
	}
	return g, nil
}

// knownWKTTag reports whether the leading keyword names a type orb decodes.
func knownWKTTag(s string) bool {
	tag := strings.ToUpper(s)
	if i := strings.IndexAny(tag, " ("); i >= 0 {
		tag = tag[:i]
	}
	switch tag {
	case "POINT", "LINESTRING", "POLYGON", "MULTIPOINT", "MULTILINESTRING",
		"MULTIPOLYGON", "GEOMETRYCOLLECTION":
		return true
	}
	return false
}

// Parse decodes v as WKB ([]byte), WKT (string) or an orb.Geometry value.
// Nil input yields a nil geometry.
func Parse(v any) (orb.Geometry, error) {
	switch x := v.(type) {
	case nil:
		return nil, nil
	case []byte:
		return ParseWKB(x)
	case string:
		return ParseWKT(x)
	case orb.Geometry:
		return x, nil
	}
	return nil, &domain.GeometryParseError{Kind: domain.GeomErrUnsupportedType, Row: -1,
		Err: fmt.Errorf("cannot read geometry from %T", v)}
}

// WKB encodes g in the given byte order.
func WKB(g orb.Geometry, order ByteOrder) ([]byte, error) {
	b, err := wkb.Marshal(g, order.binary())
	if err != nil {
		return nil, fmt.Errorf("encode wkb: %w", err)
	}
	return b, nil
}

// WKT renders g as text.
func WKT(g orb.Geometry) string {
	return wkt.MarshalString(g)
}

// TypeOf returns the runtime type of g.
func TypeOf(g orb.Geometry) domain.GeomType {
	switch g.(type) {
	case orb.Point:
		return domain.GeomPoint
	case orb.MultiPoint:
		return domain.GeomMultiPoint
	case orb.LineString:
		return domain.GeomLineString
	case orb.MultiLineString:
		return domain.GeomMultiLineString
	case orb.Ring, orb.Polygon, orb.Bound:
		return domain.GeomPolygon
	case orb.MultiPolygon:
		return domain.GeomMultiPolygon
	case orb.Collection:
		return domain.GeomGeometryCollection
	}
	return domain.GeomUnknown
}

// TypeName returns the catalog name of the runtime type of g.
func TypeName(g orb.Geometry) string {
	return typecatalog.GeomTypeName(TypeOf(g))
}

// BBox returns minX, minY, maxX, maxY. A nil geometry yields four NaNs.
func BBox(g orb.Geometry) [4]float64 {
	if g == nil {
		nan := math.NaN()
		return [4]float64{nan, nan, nan, nan}
	}
	b := g.Bound()
	return [4]float64{b.Min.X(), b.Min.Y(), b.Max.X(), b.Max.Y()}
}

// Summary returns a one-line description of g such as "POINT" or
// "POLYGON : 5 points, 1 inner rings (4 points)".
func Summary(g orb.Geometry) string {
	switch x := g.(type) {
	case orb.Point:
		return "POINT"
	case orb.LineString:
		return fmt.Sprintf("LINESTRING : %d points", len(x))
	case orb.Ring:
		return summarizePolygon(orb.Polygon{x})
	case orb.Bound:
		return summarizePolygon(x.ToPolygon())
	case orb.Polygon:
		return summarizePolygon(x)
	case orb.MultiPoint:
		return fmt.Sprintf("MULTIPOINT : %d geometries", len(x))
	case orb.MultiLineString:
		parts := make([]string, len(x))
		for i, ls := range x {
			parts[i] = Summary(ls)
		}
		return summarizeCollection("MULTILINESTRING", parts)
	case orb.MultiPolygon:
		parts := make([]string, len(x))
		for i, p := range x {
			parts[i] = Summary(p)
		}
		return summarizeCollection("MULTIPOLYGON", parts)
	case orb.Collection:
		parts := make([]string, len(x))
		for i, c := range x {
			parts[i] = Summary(c)
		}
		return summarizeCollection("GEOMETRYCOLLECTION", parts)
	}
	return "UNKNOWN"
}

func summarizePolygon(p orb.Polygon) string {
	if len(p) == 0 {
		return "POLYGON EMPTY"
	}
	s := fmt.Sprintf("POLYGON : %d points", len(p[0]))
	if len(p) > 1 {
		inner := make([]string, len(p)-1)
		for i, r := range p[1:] {
			inner[i] = fmt.Sprintf("%d", len(r))
		}
		s += fmt.Sprintf(", %d inner rings (%s points)", len(inner), strings.Join(inner, ", "))
	}
	return s
}

func summarizeCollection(tag string, parts []string) string {
	s := fmt.Sprintf("%s : %d geometries", tag, len(parts))
	if len(parts) > 0 {
		s += ": " + strings.Join(parts, ", ")
	}
	return s
}

// PromoteToMulti wraps single geometries in their multi counterpart.
// Multi geometries and collections are returned unchanged.
func PromoteToMulti(g orb.Geometry) orb.Geometry {
	switch x := g.(type) {
	case orb.Point:
		return orb.MultiPoint{x}
	case orb.LineString:
		return orb.MultiLineString{x}
	case orb.Ring:
		return orb.MultiPolygon{orb.Polygon{x}}
	case orb.Bound:
		return orb.MultiPolygon{x.ToPolygon()}
	case orb.Polygon:
		return orb.MultiPolygon{x}
	}
	return g
}

// Linearize approximates curve geometries with linear ones. orb cannot hold
// curves, so every value it produces is already linear.
func Linearize(g orb.Geometry) orb.Geometry {
	return g
}

// Normalize applies the read-time options in the order stores do: curves
// are linearized before multi promotion.
func Normalize(g orb.Geometry, promoteToMulti, linearize bool) orb.Geometry {
	if g == nil {
		return nil
	}
	if linearize {
		g = Linearize(g)
	}
	if promoteToMulti {
		g = PromoteToMulti(g)
	}
	return g
}
