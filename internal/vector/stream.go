package vector

import (
	"context"
	"sync"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/google/uuid"

	"github.com/USDAForestService/gdalraster-sub000/internal/domain"
)

// Stream owns the store's native Arrow record stream. Schema, Next and Err
// forward straight to the reader; callers must not use a released stream.
type Stream struct {
	ID string

	layer  *Layer
	reader array.RecordReader
	once   sync.Once
}

// OpenStream opens the layer's native Arrow stream. Only one stream per
// layer may be live; release it before opening another.
func (l *Layer) OpenStream(ctx context.Context, opts StreamOptions) (*Stream, error) {
	if l.stream != nil {
		return nil, domain.ErrValidation("layer %q already has an open stream (%s); release it first", l.Name(), l.stream.ID)
	}
	rr, err := l.store.ArrowStream(ctx, domain.ArrowStreamOptions{
		BatchSize:  opts.BatchSize,
		IncludeFID: opts.IncludeFID,
	})
	if err != nil {
		return nil, wrapStore("open arrow stream", err)
	}
	s := &Stream{ID: uuid.NewString(), layer: l, reader: rr}
	l.stream = s
	l.logger.Debug("arrow stream opened", "stream", s.ID)
	return s, nil
}

// Schema returns the stream schema.
func (s *Stream) Schema() *arrow.Schema { return s.reader.Schema() }

// Next returns the next record batch. The record is owned by the stream and
// valid until the following call to Next; Retain it to keep it longer.
func (s *Stream) Next() (arrow.RecordBatch, bool) {
	if !s.reader.Next() {
		return nil, false
	}
	return s.reader.Record(), true
}

// Err returns the error that ended the stream, if any.
func (s *Stream) Err() error { return s.reader.Err() }

// Release frees the stream. Only the first call has any effect.
func (s *Stream) Release() {
	s.once.Do(func() {
		s.reader.Release()
		if s.layer.stream == s {
			s.layer.stream = nil
		}
		s.layer.logger.Debug("arrow stream released", "stream", s.ID)
	})
}
