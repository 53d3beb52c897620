package table

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/USDAForestService/gdalraster-sub000/internal/typecatalog"
)

// Schema metadata keys carried by ArrowRecord.
const (
	MetaGeomColumns = "geom_columns"
	MetaGeomTypes   = "geom_types"
	MetaGeomSRS     = "geom_srs"
	MetaGeomFormat  = "geom_format"
	MetaByteOrder   = "wkb_byte_order"
)

var timestampUTC = &arrow.TimestampType{Unit: arrow.Microsecond, TimeZone: "UTC"}

func arrowType(k Kind) arrow.DataType {
	switch k {
	case KindInteger:
		return arrow.PrimitiveTypes.Int32
	case KindLogical:
		return arrow.FixedWidthTypes.Boolean
	case KindInteger64:
		return arrow.PrimitiveTypes.Int64
	case KindReal:
		return arrow.PrimitiveTypes.Float64
	case KindDate:
		return arrow.FixedWidthTypes.Date32
	case KindDateTime:
		return timestampUTC
	case KindBinary, KindGeomWKB:
		return arrow.BinaryTypes.Binary
	case KindIntegerList:
		return arrow.ListOf(arrow.PrimitiveTypes.Int32)
	case KindLogicalList:
		return arrow.ListOf(arrow.FixedWidthTypes.Boolean)
	case KindInteger64List:
		return arrow.ListOf(arrow.PrimitiveTypes.Int64)
	case KindRealList:
		return arrow.ListOf(arrow.PrimitiveTypes.Float64)
	case KindStringList:
		return arrow.ListOf(arrow.BinaryTypes.String)
	case KindGeomBBox:
		return arrow.FixedSizeListOf(4, arrow.PrimitiveTypes.Float64)
	}
	return arrow.BinaryTypes.String
}

func arrowField(c Column) arrow.Field {
	f := arrow.Field{Name: c.Name(), Type: arrowType(c.Kind()), Nullable: c.Kind() != KindGeomBBox}
	switch c.Kind() {
	case KindGeomWKB:
		f.Metadata = arrow.NewMetadata([]string{"ARROW:extension:name"}, []string{"geoarrow.wkb"})
	case KindGeomWKT:
		f.Metadata = arrow.NewMetadata([]string{"ARROW:extension:name"}, []string{"geoarrow.wkt"})
	}
	return f
}

// ArrowSchema returns the Arrow schema of the table including the geometry
// metadata.
func (t *Table) ArrowSchema() *arrow.Schema {
	fields := make([]arrow.Field, 0, len(t.Columns)+1)
	fields = append(fields, arrow.Field{Name: FIDName, Type: arrow.PrimitiveTypes.Int64})
	for _, c := range t.Columns {
		fields = append(fields, arrowField(c))
	}
	md := arrow.NewMetadata(
		[]string{MetaGeomColumns, MetaGeomTypes, MetaGeomSRS, MetaGeomFormat, MetaByteOrder},
		[]string{
			jsonList(t.Meta.GeomColumns),
			jsonList(t.Meta.GeomTypes),
			jsonList(t.Meta.GeomSRS),
			typecatalog.GeomFormatName(t.Meta.GeomFormat),
			t.Meta.ByteOrder.String(),
		},
	)
	return arrow.NewSchema(fields, &md)
}

func jsonList(v []string) string {
	if v == nil {
		v = []string{}
	}
	b, _ := json.Marshal(v)
	return string(b)
}

// ArrowRecord converts the table to one Arrow record batch. The caller owns
// the returned record and must Release it.
func (t *Table) ArrowRecord(mem memory.Allocator) (arrow.Record, error) {
	if mem == nil {
		mem = memory.DefaultAllocator
	}
	schema := t.ArrowSchema()
	cols := make([]arrow.Array, 0, len(t.Columns)+1)
	defer func() {
		for _, c := range cols {
			c.Release()
		}
	}()

	fid := array.NewInt64Builder(mem)
	defer fid.Release()
	fid.AppendValues(t.FID.Data, nil)
	cols = append(cols, fid.NewArray())

	for _, c := range t.Columns {
		arr, err := buildArray(mem, c)
		if err != nil {
			return nil, fmt.Errorf("column %q: %w", c.Name(), err)
		}
		cols = append(cols, arr)
	}
	return array.NewRecord(schema, cols, int64(t.Len())), nil
}

func buildArray(mem memory.Allocator, c Column) (arrow.Array, error) {
	b := array.NewBuilder(mem, arrowType(c.Kind()))
	defer b.Release()

	switch col := c.(type) {
	case *Scalar[int32]:
		if c.Kind() == KindDate {
			db := b.(*array.Date32Builder)
			for i, v := range col.Data {
				if !col.Valid[i] {
					db.AppendNull()
					continue
				}
				db.Append(arrow.Date32(v))
			}
			break
		}
		b.(*array.Int32Builder).AppendValues(col.Data, col.Valid)
	case *Scalar[bool]:
		bb := b.(*array.BooleanBuilder)
		bb.AppendValues(col.Data, col.Valid)
	case *Scalar[int64]:
		bb := b.(*array.Int64Builder)
		bb.AppendValues(col.Data, col.Valid)
	case *Scalar[float64]:
		if c.Kind() == KindDateTime {
			tb := b.(*array.TimestampBuilder)
			for i, v := range col.Data {
				if !col.Valid[i] {
					tb.AppendNull()
					continue
				}
				tb.Append(arrow.Timestamp(int64(math.Round(v * 1e6))))
			}
			break
		}
		bb := b.(*array.Float64Builder)
		bb.AppendValues(col.Data, col.Valid)
	case *Scalar[string]:
		bb := b.(*array.StringBuilder)
		bb.AppendValues(col.Data, col.Valid)
	case *List[byte]:
		bb := b.(*array.BinaryBuilder)
		for _, v := range col.Data {
			if v == nil {
				bb.AppendNull()
				continue
			}
			bb.Append(v)
		}
	case *List[int32]:
		appendList(b.(*array.ListBuilder), col.Data, func(vb array.Builder, v []int32) {
			vb.(*array.Int32Builder).AppendValues(v, nil)
		})
	case *List[bool]:
		appendList(b.(*array.ListBuilder), col.Data, func(vb array.Builder, v []bool) {
			vb.(*array.BooleanBuilder).AppendValues(v, nil)
		})
	case *List[int64]:
		appendList(b.(*array.ListBuilder), col.Data, func(vb array.Builder, v []int64) {
			vb.(*array.Int64Builder).AppendValues(v, nil)
		})
	case *List[float64]:
		appendList(b.(*array.ListBuilder), col.Data, func(vb array.Builder, v []float64) {
			vb.(*array.Float64Builder).AppendValues(v, nil)
		})
	case *List[string]:
		appendList(b.(*array.ListBuilder), col.Data, func(vb array.Builder, v []string) {
			vb.(*array.StringBuilder).AppendValues(v, nil)
		})
	case *BBox:
		fb := b.(*array.FixedSizeListBuilder)
		vb := fb.ValueBuilder().(*array.Float64Builder)
		for _, box := range col.Data {
			fb.Append(true)
			vb.AppendValues(box[:], nil)
		}
	default:
		return nil, fmt.Errorf("unsupported column type %T", c)
	}
	return b.NewArray(), nil
}

func appendList[T any](lb *array.ListBuilder, data [][]T, fill func(array.Builder, []T)) {
	vb := lb.ValueBuilder()
	for _, v := range data {
		if v == nil {
			lb.AppendNull()
			continue
		}
		lb.Append(true)
		fill(vb, v)
	}
}
