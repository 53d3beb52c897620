package sink

import (
	"context"
	"fmt"
	"io"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/USDAForestService/gdalraster-sub000/internal/table"
)

// ContentType is the media type of the Arrow IPC stream format.
const ContentType = "application/vnd.apache.arrow.stream"

// RecordSource is a pull-based record stream such as *vector.Stream.
type RecordSource interface {
	Schema() *arrow.Schema
	Next() (arrow.RecordBatch, bool)
	Err() error
}

// WriteStream copies every batch of src to w in the Arrow IPC stream
// format and returns the number of rows written. The source is not
// released.
func WriteStream(ctx context.Context, w io.Writer, src RecordSource) (int64, error) {
	iw := ipc.NewWriter(w, ipc.WithSchema(src.Schema()), ipc.WithAllocator(memory.DefaultAllocator))
	var rows int64
	for {
		if err := ctx.Err(); err != nil {
			_ = iw.Close()
			return rows, err
		}
		rec, ok := src.Next()
		if !ok {
			break
		}
		if err := iw.Write(rec); err != nil {
			_ = iw.Close()
			return rows, fmt.Errorf("write record batch: %w", err)
		}
		rows += rec.NumRows()
	}
	if err := src.Err(); err != nil {
		_ = iw.Close()
		return rows, fmt.Errorf("read record batch: %w", err)
	}
	if err := iw.Close(); err != nil {
		return rows, fmt.Errorf("close ipc writer: %w", err)
	}
	return rows, nil
}

// WriteTable writes a fetched table as a single-batch IPC stream.
func WriteTable(w io.Writer, tbl *table.Table) error {
	rec, err := tbl.ArrowRecord(memory.DefaultAllocator)
	if err != nil {
		return err
	}
	defer rec.Release()

	iw := ipc.NewWriter(w, ipc.WithSchema(rec.Schema()))
	if err := iw.Write(rec); err != nil {
		_ = iw.Close()
		return fmt.Errorf("write record batch: %w", err)
	}
	if err := iw.Close(); err != nil {
		return fmt.Errorf("close ipc writer: %w", err)
	}
	return nil
}
