// Package typecatalog maps type names to the domain enums and back.
//
// Every name→type function is total: an unrecognized name yields the
// documented unknown sentinel instead of an error so that schemas written by
// newer stores still load. Every type→name function is total over its enum.
package typecatalog

import (
	"strings"

	"github.com/USDAForestService/gdalraster-sub000/internal/domain"
)

var fieldTypeNames = map[domain.FieldType]string{
	domain.FieldTypeInteger:       "Integer",
	domain.FieldTypeIntegerList:   "IntegerList",
	domain.FieldTypeReal:          "Real",
	domain.FieldTypeRealList:      "RealList",
	domain.FieldTypeString:        "String",
	domain.FieldTypeStringList:    "StringList",
	domain.FieldTypeBinary:        "Binary",
	domain.FieldTypeDate:          "Date",
	domain.FieldTypeTime:          "Time",
	domain.FieldTypeDateTime:      "DateTime",
	domain.FieldTypeInteger64:     "Integer64",
	domain.FieldTypeInteger64List: "Integer64List",
}

var subTypeNames = map[domain.FieldSubType]string{
	domain.SubTypeNone:    "None",
	domain.SubTypeBoolean: "Boolean",
	domain.SubTypeInt16:   "Int16",
	domain.SubTypeFloat32: "Float32",
	domain.SubTypeJSON:    "JSON",
	domain.SubTypeUUID:    "UUID",
}

var geomFlatNames = map[domain.GeomType]string{
	domain.GeomUnknown:            "UNKNOWN",
	domain.GeomPoint:              "POINT",
	domain.GeomLineString:         "LINESTRING",
	domain.GeomPolygon:            "POLYGON",
	domain.GeomMultiPoint:         "MULTIPOINT",
	domain.GeomMultiLineString:    "MULTILINESTRING",
	domain.GeomMultiPolygon:       "MULTIPOLYGON",
	domain.GeomGeometryCollection: "GEOMETRYCOLLECTION",
	domain.GeomCircularString:     "CIRCULARSTRING",
	domain.GeomCompoundCurve:      "COMPOUNDCURVE",
	domain.GeomCurvePolygon:       "CURVEPOLYGON",
	domain.GeomMultiCurve:         "MULTICURVE",
	domain.GeomMultiSurface:       "MULTISURFACE",
	domain.GeomNone:               "NONE",
}

var formatNames = map[domain.GeomFormat]string{
	domain.FormatNone:     "NONE",
	domain.FormatWKB:      "WKB",
	domain.FormatWKBISO:   "WKB_ISO",
	domain.FormatWKT:      "WKT",
	domain.FormatWKTISO:   "WKT_ISO",
	domain.FormatSummary:  "SUMMARY",
	domain.FormatTypeName: "TYPE_NAME",
	domain.FormatBBox:     "BBOX",
}

var domainKindNames = map[domain.DomainKind]string{
	domain.DomainCoded: "Coded",
	domain.DomainRange: "Range",
	domain.DomainGlob:  "Glob",
}

// FieldTypeName returns the canonical name of t, "Unknown" for anything
// outside the catalog.
func FieldTypeName(t domain.FieldType) string {
	if n, ok := fieldTypeNames[t]; ok {
		return n
	}
	return "Unknown"
}

// FieldTypeFromName parses a field type name. Matching ignores case and an
// optional "OFT" prefix, so "OFTInteger64" and "integer64" both resolve.
func FieldTypeFromName(name string) domain.FieldType {
	key := trimPrefixFold(strings.TrimSpace(name), "OFT")
	for t, n := range fieldTypeNames {
		if strings.EqualFold(n, key) {
			return t
		}
	}
	// Wide string types were folded into String long ago.
	switch strings.ToLower(key) {
	case "widestring":
		return domain.FieldTypeString
	case "widestringlist":
		return domain.FieldTypeStringList
	}
	return domain.FieldTypeUnknown
}

// SubTypeName returns the canonical name of st, "Unknown" outside the catalog.
func SubTypeName(st domain.FieldSubType) string {
	if n, ok := subTypeNames[st]; ok {
		return n
	}
	return "Unknown"
}

// SubTypeFromName parses a subtype name, accepting an optional "OFST" prefix.
// The empty string is SubTypeNone.
func SubTypeFromName(name string) domain.FieldSubType {
	key := trimPrefixFold(strings.TrimSpace(name), "OFST")
	if key == "" {
		return domain.SubTypeNone
	}
	for st, n := range subTypeNames {
		if strings.EqualFold(n, key) {
			return st
		}
	}
	return domain.SubTypeUnknown
}

// GeomTypeName returns names such as "POINT", "MULTIPOLYGON Z" or
// "LINESTRING ZM". Codes outside the catalog render as "UNKNOWN".
func GeomTypeName(g domain.GeomType) string {
	n, ok := geomFlatNames[g.Flat()]
	if !ok {
		return "UNKNOWN"
	}
	switch {
	case g.HasZ() && g.HasM():
		return n + " ZM"
	case g.HasZ():
		return n + " Z"
	case g.HasM():
		return n + " M"
	}
	return n
}

// GeomTypeFromName parses names produced by GeomTypeName, plus the "wkb"
// prefixed and "25D" suffixed spellings. "GEOMETRY" and anything
// unrecognized map to GeomUnknown.
func GeomTypeFromName(name string) domain.GeomType {
	s := strings.ToUpper(strings.TrimSpace(name))
	s = strings.TrimPrefix(s, "WKB")
	z, m := false, false
	switch {
	case strings.HasSuffix(s, "ZM"):
		z, m = true, true
		s = strings.TrimSuffix(s, "ZM")
	case strings.HasSuffix(s, "25D"):
		z = true
		s = strings.TrimSuffix(s, "25D")
	case strings.HasSuffix(s, "Z"):
		z = true
		s = strings.TrimSuffix(s, "Z")
	case strings.HasSuffix(s, "M"):
		m = true
		s = strings.TrimSuffix(s, "M")
	}
	s = strings.TrimSpace(s)
	for g, n := range geomFlatNames {
		if n == s {
			return g.WithDims(z, m)
		}
	}
	return domain.GeomUnknown
}

// GeomFormatName returns the canonical format name, "UNKNOWN" outside the
// catalog.
func GeomFormatName(f domain.GeomFormat) string {
	if n, ok := formatNames[f]; ok {
		return n
	}
	return "UNKNOWN"
}

// GeomFormatFromName parses a geometry output format name. Hyphens and
// spaces are accepted in place of underscores.
func GeomFormatFromName(name string) domain.GeomFormat {
	key := strings.ToUpper(strings.TrimSpace(name))
	key = strings.NewReplacer("-", "_", " ", "_").Replace(key)
	for f, n := range formatNames {
		if n == key {
			return f
		}
	}
	return domain.FormatUnknown
}

// DomainKindName returns "Coded", "Range" or "Glob", "Unknown" otherwise.
func DomainKindName(k domain.DomainKind) string {
	if n, ok := domainKindNames[k]; ok {
		return n
	}
	return "Unknown"
}

// DomainKindFromName parses a domain kind name, ignoring case.
func DomainKindFromName(name string) domain.DomainKind {
	key := strings.TrimSpace(name)
	for k, n := range domainKindNames {
		if strings.EqualFold(n, key) {
			return k
		}
	}
	return domain.DomainUnknown
}

func trimPrefixFold(s, prefix string) string {
	if len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix) {
		return s[len(prefix):]
	}
	return s
}
