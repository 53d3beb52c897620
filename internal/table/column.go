// Package table holds the typed columnar representation of fetched
// features: a FID column followed by fixed-length named columns, one kind
// per column, with the geometry metadata used to produce it.
package table

import (
	"math"
)

// Kind identifies the cell type of a column.
type Kind int

const (
	KindInteger Kind = iota
	KindLogical
	KindInteger64
	KindReal
	KindString
	KindDate
	KindDateTime
	KindBinary
	KindIntegerList
	KindLogicalList
	KindInteger64List
	KindRealList
	KindStringList
	KindGeomWKB
	KindGeomWKT
	KindGeomSummary
	KindGeomTypeName
	KindGeomBBox
)

var kindNames = [...]string{
	KindInteger:       "integer",
	KindLogical:       "logical",
	KindInteger64:     "integer64",
	KindReal:          "real",
	KindString:        "string",
	KindDate:          "date",
	KindDateTime:      "datetime",
	KindBinary:        "binary",
	KindIntegerList:   "integer_list",
	KindLogicalList:   "logical_list",
	KindInteger64List: "integer64_list",
	KindRealList:      "real_list",
	KindStringList:    "string_list",
	KindGeomWKB:       "geom_wkb",
	KindGeomWKT:       "geom_wkt",
	KindGeomSummary:   "geom_summary",
	KindGeomTypeName:  "geom_type_name",
	KindGeomBBox:      "geom_bbox",
}

func (k Kind) String() string {
	if k >= 0 && int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "unknown"
}

// IsGeometry reports whether the kind holds an encoded geometry.
func (k Kind) IsGeometry() bool { return k >= KindGeomWKB }

// Column is a fixed-length named column. The concrete types are Scalar,
// List and BBox; no other implementations exist.
type Column interface {
	Name() string
	Kind() Kind
	Len() int
	// IsSet reports whether cell i holds a value.
	IsSet(i int) bool
	// Value returns cell i as a bare Go value, nil when unset.
	Value(i int) any

	// resized returns a new column of length n holding the first
	// min(n, Len()) cells.
	resized(n int) Column
}

// Scalar is a column of single values with a validity mask.
type Scalar[T any] struct {
	name  string
	kind  Kind
	Data  []T
	Valid []bool
}

func newScalar[T any](name string, kind Kind, n int) *Scalar[T] {
	return &Scalar[T]{name: name, kind: kind, Data: make([]T, n), Valid: make([]bool, n)}
}

func (c *Scalar[T]) Name() string { return c.name }
func (c *Scalar[T]) Kind() Kind   { return c.kind }
func (c *Scalar[T]) Len() int     { return len(c.Data) }

func (c *Scalar[T]) IsSet(i int) bool { return c.Valid[i] }

func (c *Scalar[T]) Value(i int) any {
	if !c.Valid[i] {
		return nil
	}
	return c.Data[i]
}

// Set stores v in cell i.
func (c *Scalar[T]) Set(i int, v T) {
	c.Data[i] = v
	c.Valid[i] = true
}

// Unset clears cell i.
func (c *Scalar[T]) Unset(i int) {
	var zero T
	c.Data[i] = zero
	c.Valid[i] = false
}

func (c *Scalar[T]) resized(n int) Column {
	out := newScalar[T](c.name, c.kind, n)
	copy(out.Data, c.Data)
	copy(out.Valid, c.Valid)
	return out
}

// List is a column of ragged slices. A nil cell is unset; a zero-length
// non-nil cell is an empty value. Binary and WKB columns are lists of bytes.
type List[T any] struct {
	name string
	kind Kind
	Data [][]T
}

func newList[T any](name string, kind Kind, n int) *List[T] {
	return &List[T]{name: name, kind: kind, Data: make([][]T, n)}
}

func (c *List[T]) Name() string { return c.name }
func (c *List[T]) Kind() Kind   { return c.kind }
func (c *List[T]) Len() int     { return len(c.Data) }

func (c *List[T]) IsSet(i int) bool { return c.Data[i] != nil }

func (c *List[T]) Value(i int) any {
	if c.Data[i] == nil {
		return nil
	}
	return c.Data[i]
}

// Set stores v in cell i. A nil v is stored as an empty value.
func (c *List[T]) Set(i int, v []T) {
	if v == nil {
		v = []T{}
	}
	c.Data[i] = v
}

func (c *List[T]) resized(n int) Column {
	out := newList[T](c.name, c.kind, n)
	copy(out.Data, c.Data)
	return out
}

// BBox is a column of (minX, minY, maxX, maxY) tuples. Null geometries are
// stored as four NaNs so the column has no null cells.
type BBox struct {
	name string
	Data [][4]float64
}

func newBBox(name string, n int) *BBox {
	c := &BBox{name: name, Data: make([][4]float64, n)}
	for i := range c.Data {
		c.Data[i] = nanBox()
	}
	return c
}

func nanBox() [4]float64 {
	nan := math.NaN()
	return [4]float64{nan, nan, nan, nan}
}

func (c *BBox) Name() string { return c.name }
func (c *BBox) Kind() Kind   { return KindGeomBBox }
func (c *BBox) Len() int     { return len(c.Data) }

// IsSet is false for the all-NaN tuple.
func (c *BBox) IsSet(i int) bool {
	for _, v := range c.Data[i] {
		if !math.IsNaN(v) {
			return true
		}
	}
	return false
}

func (c *BBox) Value(i int) any {
	b := c.Data[i]
	return []float64{b[0], b[1], b[2], b[3]}
}

// Set stores the tuple in cell i.
func (c *BBox) Set(i int, b [4]float64) { c.Data[i] = b }

func (c *BBox) resized(n int) Column {
	out := newBBox(c.name, n)
	copy(out.Data, c.Data)
	return out
}

// NewColumn allocates an unset column of the given kind.
func NewColumn(name string, kind Kind, n int) Column {
	switch kind {
	case KindInteger, KindDate:
		return newScalar[int32](name, kind, n)
	case KindLogical:
		return newScalar[bool](name, kind, n)
	case KindInteger64:
		return newScalar[int64](name, kind, n)
	case KindReal, KindDateTime:
		return newScalar[float64](name, kind, n)
	case KindString, KindGeomWKT, KindGeomSummary, KindGeomTypeName:
		return newScalar[string](name, kind, n)
	case KindBinary, KindGeomWKB:
		return newList[byte](name, kind, n)
	case KindIntegerList:
		return newList[int32](name, kind, n)
	case KindLogicalList:
		return newList[bool](name, kind, n)
	case KindInteger64List:
		return newList[int64](name, kind, n)
	case KindRealList:
		return newList[float64](name, kind, n)
	case KindStringList:
		return newList[string](name, kind, n)
	case KindGeomBBox:
		return newBBox(name, n)
	}
	panic("table: unknown column kind " + kind.String())
}
