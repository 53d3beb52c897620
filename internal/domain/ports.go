package domain

import (
	"context"

	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/paulmach/orb"
)

// Layer capability names reported by LayerStore.TestCapability.
const (
	CapRandomRead         = "RandomRead"
	CapSequentialWrite    = "SequentialWrite"
	CapRandomWrite        = "RandomWrite"
	CapUpsertFeature      = "UpsertFeature"
	CapDeleteFeature      = "DeleteFeature"
	CapCreateField        = "CreateField"
	CapTransactions       = "Transactions"
	CapFastFeatureCount   = "FastFeatureCount"
	CapFastGetExtent      = "FastGetExtent"
	CapFastSetNextByIndex = "FastSetNextByIndex"
	CapIgnoreFields       = "IgnoreFields"
	CapFastGetArrowStream = "FastGetArrowStream"
	CapStringsAsUTF8      = "StringsAsUTF8"
	CapMeasuredGeometries = "MeasuredGeometries"
	CapCurveGeometries    = "CurveGeometries"
)

// IgnoreGeometryToken names a geometry field without a native name in
// Cursor.SetIgnoredFields.
const IgnoreGeometryToken = "OGR_GEOMETRY"

// SchemaSource exposes a layer's definition and its dataset's field domains.
type SchemaSource interface {
	Definition(ctx context.Context) (*LayerSchema, error)
	// FieldDomain returns found=false when no domain has that name.
	FieldDomain(ctx context.Context, name string) (*FieldDomain, bool, error)
}

// Cursor is the store-owned read position with its filters and projection.
// NextFeature returns nil, nil once the cursor is exhausted.
type Cursor interface {
	ResetReading()
	NextFeature(ctx context.Context) (*Feature, error)
	SetNextByIndex(ctx context.Context, index int64) error
	// FeatureCount honours the active filters.
	FeatureCount(ctx context.Context) (int64, error)

	AttributeFilter() string
	SetAttributeFilter(ctx context.Context, expr string) error
	// SpatialFilter returns ok=false when no spatial filter is installed.
	SpatialFilter() (orb.Bound, bool)
	SetSpatialFilter(b *orb.Bound)

	IgnoredFields() []string
	SetIgnoredFields(names []string) error
}

// FeatureWriter mutates features. CreateFeature assigns the FID on f.
type FeatureWriter interface {
	CreateFeature(ctx context.Context, f *Feature) error
	SetFeature(ctx context.Context, f *Feature) error
	UpsertFeature(ctx context.Context, f *Feature) error
	DeleteFeature(ctx context.Context, fid int64) error
	CreateField(ctx context.Context, field FieldSchema) error
}

// Transactor scopes writes in a store transaction.
type Transactor interface {
	StartTransaction(ctx context.Context) error
	CommitTransaction(ctx context.Context) error
	RollbackTransaction(ctx context.Context) error
}

// ArrowStreamOptions tunes the native columnar stream.
type ArrowStreamOptions struct {
	BatchSize  int  // rows per record batch, 0 = store default
	IncludeFID bool // emit the FID as the first column
}

// ArrowStreamer produces the store's native pull-based columnar stream.
type ArrowStreamer interface {
	ArrowStream(ctx context.Context, opts ArrowStreamOptions) (array.RecordReader, error)
}

// LayerStore is the full feature-store port the marshaling layer consumes.
type LayerStore interface {
	Name() string
	// FIDColumn returns the native FID column name, empty when the store
	// has none.
	FIDColumn() string
	TestCapability(capability string) bool
	// Extent returns ok=false for an empty layer.
	Extent(ctx context.Context) (orb.Bound, bool, error)

	SchemaSource
	Cursor
	FeatureWriter
	Transactor
	ArrowStreamer
}
