package sqlstore

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"sync/atomic"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	duckdb "github.com/duckdb/duckdb-go/v2"

	"github.com/USDAForestService/gdalraster-sub000/internal/ddl"
	"github.com/USDAForestService/gdalraster-sub000/internal/domain"
)

// ArrowStream returns the layer's rows, under the active filters and
// projection, as Arrow record batches of at most opts.BatchSize rows. Both
// dialects pull rows from an open query as batches are requested and hold a
// read connection until the reader is released. DuckDB produces batches
// through its own Arrow interface; SQLite rows are converted with array
// builders from the read pool, so they reflect committed data only.
func (l *Layer) ArrowStream(ctx context.Context, opts domain.ArrowStreamOptions) (array.RecordReader, error) {
	if l.ds.dialect == ddl.DuckDB {
		return l.duckdbArrow(ctx, opts)
	}
	return l.sqliteArrow(ctx, opts)
}

func (l *Layer) streamQuery(sel selection, includeFID bool) (string, []any) {
	list := l.columnList(sel, includeFID)
	if list == "" {
		list = l.fid()
	}
	where, args := l.where()
	return fmt.Sprintf("SELECT %s FROM %s%s ORDER BY %s", list, l.table(), where, l.fid()), args
}

func (l *Layer) duckdbArrow(ctx context.Context, opts domain.ArrowStreamOptions) (array.RecordReader, error) {
	query, args := l.streamQuery(l.selection(), opts.IncludeFID)

	conn, err := l.ds.readDB.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("open duckdb conn: %w", err)
	}

	var ar *duckdb.Arrow
	err = conn.Raw(func(raw any) error {
		driverConn, ok := raw.(driver.Conn)
		if !ok {
			return fmt.Errorf("unexpected raw conn type %T", raw)
		}
		a, aerr := duckdb.NewArrowFromConn(driverConn)
		if aerr != nil {
			return fmt.Errorf("create arrow interface: %w", aerr)
		}
		ar = a
		return nil
	})
	if err != nil {
		_ = conn.Close()
		return nil, err
	}

	rr, err := ar.QueryContext(ctx, query, args...)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("arrow query: %w", err)
	}
	return newChunkReader(rr, opts.BatchSize, conn.Close), nil
}

func (l *Layer) sqliteArrow(ctx context.Context, opts domain.ArrowStreamOptions) (array.RecordReader, error) {
	sel := l.selection()
	query, args := l.streamQuery(sel, true)
	schema := l.arrowSchema(sel, opts.IncludeFID)

	batch := opts.BatchSize
	if batch <= 0 {
		batch = DefaultBatchSize
	}

	rows, err := l.ds.readDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("arrow query: %w", err)
	}
	return newRowsReader(rows, schema, 1+len(sel.fields)+len(sel.geoms), !opts.IncludeFID, batch), nil
}

// arrowSchema mirrors the storage types of the selected columns. Geometry
// columns are WKB tagged with the geoarrow extension name.
func (l *Layer) arrowSchema(sel selection, includeFID bool) *arrow.Schema {
	var fields []arrow.Field
	if includeFID {
		fields = append(fields, arrow.Field{Name: l.FIDColumn(), Type: arrow.PrimitiveTypes.Int64})
	}
	for _, i := range sel.fields {
		fs := l.entry.schema.Fields[i]
		fields = append(fields, arrow.Field{Name: fs.Name, Type: storageArrowType(fs.Type), Nullable: true})
	}
	for _, g := range sel.geoms {
		fields = append(fields, arrow.Field{
			Name:     l.entry.geomCols[g],
			Type:     arrow.BinaryTypes.Binary,
			Nullable: true,
			Metadata: arrow.NewMetadata([]string{"ARROW:extension:name"}, []string{"geoarrow.wkb"}),
		})
	}
	md := arrow.NewMetadata([]string{"layer"}, []string{l.Name()})
	return arrow.NewSchema(fields, &md)
}

func storageArrowType(t domain.FieldType) arrow.DataType {
	switch t {
	case domain.FieldTypeInteger:
		return arrow.PrimitiveTypes.Int32
	case domain.FieldTypeInteger64:
		return arrow.PrimitiveTypes.Int64
	case domain.FieldTypeReal:
		return arrow.PrimitiveTypes.Float64
	case domain.FieldTypeBinary:
		return arrow.BinaryTypes.Binary
	}
	return arrow.BinaryTypes.String
}

// batchBuilder accumulates scanned rows into one record batch at a time.
type batchBuilder struct {
	mem      memory.Allocator
	schema   *arrow.Schema
	builders []array.Builder
	rows     int
}

func newBatchBuilder(mem memory.Allocator, schema *arrow.Schema) *batchBuilder {
	b := &batchBuilder{mem: mem, schema: schema}
	b.reset()
	return b
}

func (b *batchBuilder) reset() {
	b.builders = make([]array.Builder, len(b.schema.Fields()))
	for i, f := range b.schema.Fields() {
		b.builders[i] = array.NewBuilder(b.mem, f.Type)
	}
	b.rows = 0
}

func (b *batchBuilder) append(row []any) error {
	for i, v := range row {
		if v == nil {
			b.builders[i].AppendNull()
			continue
		}
		switch ab := b.builders[i].(type) {
		case *array.Int32Builder:
			x, err := asInt64(v)
			if err != nil {
				return err
			}
			ab.Append(int32(x))
		case *array.Int64Builder:
			x, err := asInt64(v)
			if err != nil {
				return err
			}
			ab.Append(x)
		case *array.Float64Builder:
			x, err := asFloat64(v)
			if err != nil {
				return err
			}
			ab.Append(x)
		case *array.BinaryBuilder:
			switch x := v.(type) {
			case []byte:
				ab.Append(x)
			default:
				ab.Append([]byte(asString(x)))
			}
		case *array.StringBuilder:
			ab.Append(asString(v))
		default:
			return fmt.Errorf("unsupported arrow builder %T", ab)
		}
	}
	b.rows++
	return nil
}

func (b *batchBuilder) flush() arrow.RecordBatch {
	cols := make([]arrow.Array, len(b.builders))
	for i, bl := range b.builders {
		cols[i] = bl.NewArray()
	}
	rec := array.NewRecord(b.schema, cols, int64(b.rows))
	for _, c := range cols {
		c.Release()
	}
	b.release()
	b.reset()
	return rec
}

func (b *batchBuilder) release() {
	for _, bl := range b.builders {
		bl.Release()
	}
	b.builders = nil
}

// rowsReader converts open query rows into record batches on demand. The
// rows are closed when the stream is exhausted, fails or is released.
type rowsReader struct {
	refs atomic.Int64

	schema  *arrow.Schema
	rows    *sql.Rows
	bb      *batchBuilder
	batch   int
	skipFID bool
	vals    []any
	ptrs    []any

	cur  arrow.RecordBatch
	err  error
	done bool
}

var _ array.RecordReader = (*rowsReader)(nil)

func newRowsReader(rows *sql.Rows, schema *arrow.Schema, ncols int, skipFID bool, batch int) *rowsReader {
	r := &rowsReader{
		schema:  schema,
		rows:    rows,
		bb:      newBatchBuilder(memory.DefaultAllocator, schema),
		batch:   batch,
		skipFID: skipFID,
		vals:    make([]any, ncols),
		ptrs:    make([]any, ncols),
	}
	for i := range r.vals {
		r.ptrs[i] = &r.vals[i]
	}
	r.refs.Store(1)
	return r
}

func (r *rowsReader) Retain() { r.refs.Add(1) }

func (r *rowsReader) Release() {
	if r.refs.Add(-1) != 0 {
		return
	}
	if r.cur != nil {
		r.cur.Release()
		r.cur = nil
	}
	r.finish()
	r.bb.release()
}

func (r *rowsReader) Schema() *arrow.Schema { return r.schema }

func (r *rowsReader) Next() bool {
	if r.cur != nil {
		r.cur.Release()
		r.cur = nil
	}
	if r.done {
		return false
	}
	for r.bb.rows < r.batch {
		if !r.rows.Next() {
			if err := r.rows.Err(); err != nil {
				r.err = fmt.Errorf("arrow query: %w", err)
			}
			r.finish()
			break
		}
		if err := r.rows.Scan(r.ptrs...); err != nil {
			r.err = fmt.Errorf("scan row: %w", err)
			r.finish()
			return false
		}
		row := r.vals
		if r.skipFID {
			row = r.vals[1:]
		}
		if err := r.bb.append(row); err != nil {
			r.err = err
			r.finish()
			return false
		}
	}
	if r.err != nil || r.bb.rows == 0 {
		return false
	}
	r.cur = r.bb.flush()
	return true
}

func (r *rowsReader) finish() {
	if r.done {
		return
	}
	r.done = true
	if err := r.rows.Close(); err != nil && r.err == nil {
		r.err = fmt.Errorf("close rows: %w", err)
	}
}

func (r *rowsReader) RecordBatch() arrow.RecordBatch { return r.cur }

func (r *rowsReader) Record() arrow.RecordBatch { return r.cur }

func (r *rowsReader) Err() error { return r.err }

// chunkReader wraps the engine's reader, slicing its chunks to at most max
// rows, and runs closeFn once the last reference is released.
type chunkReader struct {
	refs atomic.Int64

	src     array.RecordReader
	max     int64
	closeFn func() error

	chunk arrow.RecordBatch
	off   int64
	cur   arrow.RecordBatch
	err   error
}

var _ array.RecordReader = (*chunkReader)(nil)

func newChunkReader(src array.RecordReader, maxRows int, closeFn func() error) *chunkReader {
	r := &chunkReader{src: src, max: int64(maxRows), closeFn: closeFn}
	r.refs.Store(1)
	return r
}

func (r *chunkReader) Retain() { r.refs.Add(1) }

func (r *chunkReader) Release() {
	if r.refs.Add(-1) != 0 {
		return
	}
	r.drop()
	if r.chunk != nil {
		r.chunk.Release()
		r.chunk = nil
	}
	r.src.Release()
	if err := r.closeFn(); err != nil && r.err == nil {
		r.err = fmt.Errorf("close conn: %w", err)
	}
}

func (r *chunkReader) Schema() *arrow.Schema { return r.src.Schema() }

func (r *chunkReader) Next() bool {
	r.drop()
	for r.chunk == nil || r.off >= r.chunk.NumRows() {
		if r.chunk != nil {
			r.chunk.Release()
			r.chunk = nil
		}
		if !r.src.Next() {
			r.err = r.src.Err()
			return false
		}
		r.chunk = r.src.RecordBatch()
		r.chunk.Retain()
		r.off = 0
	}
	n := r.chunk.NumRows() - r.off
	if r.max > 0 && n > r.max {
		n = r.max
	}
	if r.off == 0 && n == r.chunk.NumRows() {
		r.chunk.Retain()
		r.cur = r.chunk
	} else {
		r.cur = r.chunk.NewSlice(r.off, r.off+n)
	}
	r.off += n
	return true
}

func (r *chunkReader) drop() {
	if r.cur != nil {
		r.cur.Release()
		r.cur = nil
	}
}

func (r *chunkReader) RecordBatch() arrow.RecordBatch { return r.cur }

func (r *chunkReader) Record() arrow.RecordBatch { return r.cur }

func (r *chunkReader) Err() error { return r.err }
