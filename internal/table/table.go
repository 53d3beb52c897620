package table

import (
	"fmt"
	"strings"

	"github.com/USDAForestService/gdalraster-sub000/internal/domain"
	"github.com/USDAForestService/gdalraster-sub000/internal/geometry"
	"github.com/USDAForestService/gdalraster-sub000/internal/typecatalog"
)

// FIDName is the name of the always-present first column.
const FIDName = "FID"

// Meta records how the geometry columns of a table were produced.
type Meta struct {
	GeomColumns []string
	GeomTypes   []string // declared type names, aligned to GeomColumns
	GeomSRS     []string // WKT, aligned to GeomColumns
	GeomFormat  domain.GeomFormat
	ByteOrder   geometry.ByteOrder
}

// Table is the columnar result of a fetch. FID is always present; Columns
// all have the same length as FID.
type Table struct {
	FID     *Scalar[int64]
	Columns []Column
	Meta    Meta
	// Warnings holds non-fatal diagnostics raised while filling the table,
	// such as *domain.StaleCountWarning.
	Warnings []error
}

// Binding ties a table column to the schema slot it is decoded from.
// Exactly one of Field and Geom is >= 0.
type Binding struct {
	Column int
	Field  int
	Geom   int
}

// Options controls table layout.
type Options struct {
	DefaultGeomName string
	Format          domain.GeomFormat
	ByteOrder       geometry.ByteOrder
}

// ExposedGeomName returns the column name used for a geometry field.
func ExposedGeomName(g domain.GeomFieldSchema, defaultName string) string {
	if g.Name == "" {
		return defaultName
	}
	return g.Name
}

// KindFor returns the column kind that carries values of a field.
func KindFor(f domain.FieldSchema) Kind {
	switch f.Type {
	case domain.FieldTypeInteger, domain.FieldTypeInteger64:
		if f.SubType == domain.SubTypeBoolean {
			return KindLogical
		}
		if f.Type == domain.FieldTypeInteger64 {
			return KindInteger64
		}
		return KindInteger
	case domain.FieldTypeReal:
		return KindReal
	case domain.FieldTypeDate:
		return KindDate
	case domain.FieldTypeDateTime:
		return KindDateTime
	case domain.FieldTypeBinary:
		return KindBinary
	case domain.FieldTypeIntegerList:
		if f.SubType == domain.SubTypeBoolean {
			return KindLogicalList
		}
		return KindIntegerList
	case domain.FieldTypeInteger64List:
		return KindInteger64List
	case domain.FieldTypeRealList:
		return KindRealList
	case domain.FieldTypeStringList:
		return KindStringList
	}
	// String, Time and anything unknown travel as text.
	return KindString
}

// GeomKindFor returns the column kind for a geometry output format. ok is
// false for FormatNone and unknown formats.
func GeomKindFor(f domain.GeomFormat) (Kind, bool) {
	switch f {
	case domain.FormatWKB, domain.FormatWKBISO:
		return KindGeomWKB, true
	case domain.FormatWKT, domain.FormatWKTISO:
		return KindGeomWKT, true
	case domain.FormatSummary:
		return KindGeomSummary, true
	case domain.FormatTypeName:
		return KindGeomTypeName, true
	case domain.FormatBBox:
		return KindGeomBBox, true
	}
	return 0, false
}

// Build allocates an unset table of n rows for the non-ignored fields and
// geometry fields of s. The returned bindings map each column back to its
// schema slot in column order.
func Build(s *domain.LayerSchema, opts Options, n int) (*Table, []Binding, error) {
	if n < 0 {
		return nil, nil, fmt.Errorf("table: negative row count %d", n)
	}
	t := &Table{
		FID:  newScalar[int64](FIDName, KindInteger64, n),
		Meta: Meta{GeomFormat: opts.Format, ByteOrder: opts.ByteOrder},
	}
	var bindings []Binding
	seen := map[string]bool{strings.ToLower(FIDName): true}
	add := func(name string, kind Kind, field, geom int) error {
		key := strings.ToLower(name)
		if seen[key] {
			return domain.ErrSchema("duplicate column name %q in layer %q", name, s.Name)
		}
		seen[key] = true
		bindings = append(bindings, Binding{Column: len(t.Columns), Field: field, Geom: geom})
		t.Columns = append(t.Columns, NewColumn(name, kind, n))
		return nil
	}

	for i, f := range s.Fields {
		if f.Ignored {
			continue
		}
		if err := add(f.Name, KindFor(f), i, -1); err != nil {
			return nil, nil, err
		}
	}

	kind, withGeom := GeomKindFor(opts.Format)
	if withGeom {
		for i, g := range s.GeomFields {
			if g.Ignored {
				continue
			}
			name := ExposedGeomName(g, opts.DefaultGeomName)
			if err := add(name, kind, -1, i); err != nil {
				return nil, nil, err
			}
			t.Meta.GeomColumns = append(t.Meta.GeomColumns, name)
			t.Meta.GeomTypes = append(t.Meta.GeomTypes, typecatalog.GeomTypeName(g.Type))
			t.Meta.GeomSRS = append(t.Meta.GeomSRS, g.SRS)
		}
	}
	return t, bindings, nil
}

// Len returns the row count.
func (t *Table) Len() int { return t.FID.Len() }

// Names returns the column names including FID.
func (t *Table) Names() []string {
	names := make([]string, 0, len(t.Columns)+1)
	names = append(names, FIDName)
	for _, c := range t.Columns {
		names = append(names, c.Name())
	}
	return names
}

// Column returns the named column. The FID column is returned for "FID".
func (t *Table) Column(name string) (Column, bool) {
	if strings.EqualFold(name, FIDName) {
		return t.FID, true
	}
	for _, c := range t.Columns {
		if c.Name() == name {
			return c, true
		}
	}
	return nil, false
}

// Truncate returns a new table of n rows holding the first n rows of t.
// Columns are reallocated, never resized in place.
func (t *Table) Truncate(n int) *Table {
	return t.resized(min(n, t.Len()))
}

// Grow returns a new table of n rows holding the rows of t followed by unset
// rows. An n at or below t.Len() yields a copy of t.
func (t *Table) Grow(n int) *Table {
	return t.resized(max(n, t.Len()))
}

func (t *Table) resized(n int) *Table {
	out := &Table{
		FID:      t.FID.resized(n).(*Scalar[int64]),
		Columns:  make([]Column, len(t.Columns)),
		Meta:     t.Meta,
		Warnings: append([]error(nil), t.Warnings...),
	}
	for i, c := range t.Columns {
		out.Columns[i] = c.resized(n)
	}
	return out
}

// Record is one table row detached from its table. Values are bare cell
// values: list cells are slices, unset cells are nil.
type Record struct {
	Names  []string
	Kinds  []Kind // aligned to Names; the FID is KindInteger64
	Values []any
	Meta   Meta
}

// Record returns row i as a free-standing record.
func (t *Table) Record(i int) *Record {
	r := &Record{
		Names:  t.Names(),
		Kinds:  make([]Kind, 0, len(t.Columns)+1),
		Values: make([]any, 0, len(t.Columns)+1),
		Meta:   t.Meta,
	}
	r.Kinds = append(r.Kinds, KindInteger64)
	r.Values = append(r.Values, t.FID.Value(i))
	for _, c := range t.Columns {
		r.Kinds = append(r.Kinds, c.Kind())
		r.Values = append(r.Values, c.Value(i))
	}
	return r
}

// Get returns the value for name and whether the record has that column.
func (r *Record) Get(name string) (any, bool) {
	for i, n := range r.Names {
		if n == name {
			return r.Values[i], true
		}
	}
	return nil, false
}

// FID returns the feature identifier, domain.NullFID when unset.
func (r *Record) FID() int64 {
	if v, ok := r.Values[0].(int64); ok {
		return v
	}
	return domain.NullFID
}

// Map returns the record as a name to value map.
func (r *Record) Map() map[string]any {
	m := make(map[string]any, len(r.Names))
	for i, n := range r.Names {
		m[n] = r.Values[i]
	}
	return m
}
