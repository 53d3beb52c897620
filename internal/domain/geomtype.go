package domain

// GeomType is a geometry type code using the ISO WKB numbering: a flat
// type plus 1000 for Z, 2000 for M, 3000 for ZM.
type GeomType uint32

const (
	GeomUnknown            GeomType = 0
	GeomPoint              GeomType = 1
	GeomLineString         GeomType = 2
	GeomPolygon            GeomType = 3
	GeomMultiPoint         GeomType = 4
	GeomMultiLineString    GeomType = 5
	GeomMultiPolygon       GeomType = 6
	GeomGeometryCollection GeomType = 7
	GeomCircularString     GeomType = 8
	GeomCompoundCurve      GeomType = 9
	GeomCurvePolygon       GeomType = 10
	GeomMultiCurve         GeomType = 11
	GeomMultiSurface       GeomType = 12
	GeomNone               GeomType = 100
)

const (
	geomZOffset  GeomType = 1000
	geomMOffset  GeomType = 2000
	geomZMOffset GeomType = 3000
)

// Flat strips the Z/M dimension markers.
func (g GeomType) Flat() GeomType {
	if g == GeomNone {
		return g
	}
	return g % 1000
}

// HasZ reports whether the type carries a Z dimension.
func (g GeomType) HasZ() bool {
	d := g / 1000
	return g != GeomNone && (d == 1 || d == 3)
}

// HasM reports whether the type carries an M dimension.
func (g GeomType) HasM() bool {
	d := g / 1000
	return g != GeomNone && (d == 2 || d == 3)
}

// WithDims returns the flat type g with the requested dimensions applied.
func (g GeomType) WithDims(z, m bool) GeomType {
	f := g.Flat()
	if f == GeomNone {
		return f
	}
	switch {
	case z && m:
		return f + geomZMOffset
	case z:
		return f + geomZOffset
	case m:
		return f + geomMOffset
	}
	return f
}

// IsCurve reports whether the flat type is one of the curve or surface
// types that only ISO encodings can carry.
func (g GeomType) IsCurve() bool {
	f := g.Flat()
	return f >= GeomCircularString && f <= GeomMultiSurface
}

// GeomFormat selects how fetched geometries are encoded into table cells.
type GeomFormat int

const (
	FormatNone GeomFormat = iota
	FormatWKB
	FormatWKBISO
	FormatWKT
	FormatWKTISO
	FormatSummary
	FormatTypeName
	FormatBBox

	FormatUnknown GeomFormat = -1
)

// GeomFormats lists every output format in catalog order.
var GeomFormats = []GeomFormat{
	FormatNone, FormatWKB, FormatWKBISO, FormatWKT, FormatWKTISO,
	FormatSummary, FormatTypeName, FormatBBox,
}
