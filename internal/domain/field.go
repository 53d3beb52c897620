package domain

import "strings"

// FieldType is the semantic type of an attribute field. Values follow the
// OGR field type codes so store metadata stays interchangeable.
type FieldType int

const (
	FieldTypeInteger       FieldType = 0
	FieldTypeIntegerList   FieldType = 1
	FieldTypeReal          FieldType = 2
	FieldTypeRealList      FieldType = 3
	FieldTypeString        FieldType = 4
	FieldTypeStringList    FieldType = 5
	FieldTypeBinary        FieldType = 8
	FieldTypeDate          FieldType = 9
	FieldTypeTime          FieldType = 10
	FieldTypeDateTime      FieldType = 11
	FieldTypeInteger64     FieldType = 12
	FieldTypeInteger64List FieldType = 13

	// FieldTypeUnknown is returned for type names this module does not
	// recognize. Values of unknown fields decode through the String path.
	FieldTypeUnknown FieldType = -1
)

// FieldTypes lists every known field type in catalog order.
var FieldTypes = []FieldType{
	FieldTypeInteger, FieldTypeIntegerList, FieldTypeReal, FieldTypeRealList,
	FieldTypeString, FieldTypeStringList, FieldTypeBinary, FieldTypeDate,
	FieldTypeTime, FieldTypeDateTime, FieldTypeInteger64, FieldTypeInteger64List,
}

// IsList reports whether values of the type are ragged lists.
func (t FieldType) IsList() bool {
	switch t {
	case FieldTypeIntegerList, FieldTypeInteger64List, FieldTypeRealList, FieldTypeStringList:
		return true
	}
	return false
}

// FieldSubType refines a FieldType (Boolean on Integer, Float32 on Real, ...).
type FieldSubType int

const (
	SubTypeNone    FieldSubType = 0
	SubTypeBoolean FieldSubType = 1
	SubTypeInt16   FieldSubType = 2
	SubTypeFloat32 FieldSubType = 3
	SubTypeJSON    FieldSubType = 4
	SubTypeUUID    FieldSubType = 5

	SubTypeUnknown FieldSubType = -1
)

// FieldSubTypes lists every known subtype in catalog order.
var FieldSubTypes = []FieldSubType{
	SubTypeNone, SubTypeBoolean, SubTypeInt16, SubTypeFloat32, SubTypeJSON, SubTypeUUID,
}

// FieldSchema describes one attribute field of a layer.
type FieldSchema struct {
	Name            string
	Type            FieldType
	SubType         FieldSubType
	Width           int
	Precision       int
	Nullable        bool
	Unique          bool
	Default         string // store default expression, empty when none
	DomainName      string
	AlternativeName string
	Ignored         bool
}

// IsBoolean reports whether the field carries logical values.
func (f FieldSchema) IsBoolean() bool {
	return f.SubType == SubTypeBoolean &&
		(f.Type == FieldTypeInteger || f.Type == FieldTypeIntegerList || f.Type == FieldTypeInteger64)
}

// GeomFieldSchema describes one geometry field of a layer.
type GeomFieldSchema struct {
	Name     string // native name, possibly empty
	Type     GeomType
	SRS      string // WKT, empty when unknown
	Nullable bool
	Ignored  bool
}

// LayerSchema is the ordered field and geometry-field definition of a layer.
type LayerSchema struct {
	Name       string
	FIDColumn  string
	Fields     []FieldSchema
	GeomFields []GeomFieldSchema
}

// FieldIndex returns the index of the named attribute field, or -1.
// Matching is case-insensitive, as field names are in most stores.
func (s *LayerSchema) FieldIndex(name string) int {
	for i := range s.Fields {
		if strings.EqualFold(s.Fields[i].Name, name) {
			return i
		}
	}
	return -1
}

// GeomFieldIndex returns the index of the geometry field with the given
// native name, or -1.
func (s *LayerSchema) GeomFieldIndex(name string) int {
	for i := range s.GeomFields {
		if s.GeomFields[i].Name != "" && strings.EqualFold(s.GeomFields[i].Name, name) {
			return i
		}
	}
	return -1
}

// Clone returns a deep copy so callers can flip Ignored flags freely.
func (s *LayerSchema) Clone() *LayerSchema {
	out := *s
	out.Fields = append([]FieldSchema(nil), s.Fields...)
	out.GeomFields = append([]GeomFieldSchema(nil), s.GeomFields...)
	return &out
}

// DomainKind is the kind of a field domain.
type DomainKind int

const (
	DomainCoded DomainKind = iota
	DomainRange
	DomainGlob

	DomainUnknown DomainKind = -1
)

// CodedValue is one entry of a coded-value domain. Value is nil when the
// code has no description.
type CodedValue struct {
	Code  string
	Value *string
}

// DomainBound is one end of a range domain.
type DomainBound struct {
	Value     float64
	Inclusive bool
}

// FieldDomain is a named constraint attachable to attribute fields.
type FieldDomain struct {
	Name        string
	Description string
	Kind        DomainKind
	FieldType   FieldType
	SubType     FieldSubType
	Codes       []CodedValue // DomainCoded
	Min, Max    *DomainBound // DomainRange, nil = unbounded
	Glob        string       // DomainGlob
}
