// Package vector converts between a cursor-based feature store and typed
// columnar tables. A Layer wraps one domain.LayerStore and provides bulk
// reads (Fetch), single-row access, row encoding with validation, batch
// writes with per-row status, and the native Arrow stream.
//
// A Layer is not safe for concurrent use; it mirrors the single cursor of
// the store it wraps.
package vector

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/paulmach/orb"
	"golang.org/x/time/rate"

	"github.com/USDAForestService/gdalraster-sub000/internal/domain"
)

// Layer is the marshaling layer over one feature store cursor.
type Layer struct {
	store  domain.LayerStore
	cfg    Config
	logger *slog.Logger

	schema       *domain.LayerSchema
	lastWriteFID int64
	featuresRead int64
	stream       *Stream
	progress     *rate.Sometimes
}

// Open reads the layer definition and returns a Layer bound to store.
func Open(ctx context.Context, store domain.LayerStore, cfg Config) (*Layer, error) {
	cfg = cfg.withDefaults()
	l := &Layer{
		store:        store,
		cfg:          cfg,
		logger:       cfg.Logger.With("layer", store.Name()),
		lastWriteFID: domain.NullFID,
		progress:     &rate.Sometimes{First: 1, Interval: 2 * time.Second},
	}
	if err := l.refreshSchema(ctx); err != nil {
		return nil, err
	}
	return l, nil
}

// Name returns the layer name.
func (l *Layer) Name() string { return l.store.Name() }

// Schema returns a copy of the current layer definition.
func (l *Layer) Schema() *domain.LayerSchema { return l.schema.Clone() }

// Config returns the configuration the layer was opened with.
func (l *Layer) Config() Config { return l.cfg }

// FIDColumn returns the store's FID column name, empty when it has none.
func (l *Layer) FIDColumn() string { return l.store.FIDColumn() }

// GeometryColumn returns the exposed name of the first geometry field,
// empty when the layer has no geometry.
func (l *Layer) GeometryColumn() string {
	if len(l.schema.GeomFields) == 0 {
		return ""
	}
	return l.exposedGeomName(0)
}

// SpatialRef returns the WKT spatial reference of the first geometry field.
func (l *Layer) SpatialRef() string {
	if len(l.schema.GeomFields) == 0 {
		return ""
	}
	return l.schema.GeomFields[0].SRS
}

// TestCapability forwards to the store.
func (l *Layer) TestCapability(capability string) bool {
	return l.store.TestCapability(capability)
}

// FeaturesRead returns the number of features decoded by this Layer.
func (l *Layer) FeaturesRead() int64 { return l.featuresRead }

// LastWriteFID returns the FID assigned by the most recent successful
// single-row write, domain.NullFID before any.
func (l *Layer) LastWriteFID() int64 { return l.lastWriteFID }

// ResetReading rewinds the cursor.
func (l *Layer) ResetReading() { l.store.ResetReading() }

// SetNextByIndex positions the cursor so the next read returns the
// feature at the zero-based index. Past the end the cursor is exhausted and
// the next read returns nothing.
func (l *Layer) SetNextByIndex(ctx context.Context, index int64) error {
	if index < 0 {
		return domain.ErrValidation("feature index must be >= 0, got %d", index)
	}
	if err := l.store.SetNextByIndex(ctx, index); err != nil {
		return wrapStore("set next by index", err)
	}
	return nil
}

// FeatureCount returns the number of features passing the active filters.
func (l *Layer) FeatureCount(ctx context.Context) (int64, error) {
	n, err := l.store.FeatureCount(ctx)
	if err != nil {
		return 0, wrapStore("feature count", err)
	}
	return n, nil
}

// Extent returns the layer bounds; ok is false for an empty layer.
func (l *Layer) Extent(ctx context.Context) (orb.Bound, bool, error) {
	b, ok, err := l.store.Extent(ctx)
	if err != nil {
		return orb.Bound{}, false, wrapStore("extent", err)
	}
	return b, ok, nil
}

// AttributeFilter returns the active attribute filter, empty when none.
func (l *Layer) AttributeFilter() string { return l.store.AttributeFilter() }

// SetAttributeFilter installs a store query expression; the empty string
// clears it.
func (l *Layer) SetAttributeFilter(ctx context.Context, expr string) error {
	if err := l.store.SetAttributeFilter(ctx, expr); err != nil {
		return wrapStore("set attribute filter", err)
	}
	return nil
}

// SetSpatialFilterRect restricts reads to features whose envelope
// intersects the rectangle.
func (l *Layer) SetSpatialFilterRect(minX, minY, maxX, maxY float64) error {
	if minX > maxX || minY > maxY {
		return domain.ErrValidation("invalid spatial filter rectangle (%g %g, %g %g)", minX, minY, maxX, maxY)
	}
	b := orb.Bound{Min: orb.Point{minX, minY}, Max: orb.Point{maxX, maxY}}
	l.store.SetSpatialFilter(&b)
	return nil
}

// ClearSpatialFilter removes the spatial filter.
func (l *Layer) ClearSpatialFilter() { l.store.SetSpatialFilter(nil) }

// SpatialFilter returns the active spatial filter.
func (l *Layer) SpatialFilter() (orb.Bound, bool) { return l.store.SpatialFilter() }

// SetIgnoredFields projects the named fields out of subsequent reads.
// Geometry fields are named by their exposed name.
func (l *Layer) SetIgnoredFields(ctx context.Context, names []string) error {
	native, err := l.nativeFieldNames(names)
	if err != nil {
		return err
	}
	if err := l.store.SetIgnoredFields(native); err != nil {
		return wrapStore("set ignored fields", err)
	}
	return l.refreshSchema(ctx)
}

// SetSelectedFields ignores every attribute field not named. Geometry fields
// stay selected unless SetIgnoredFields excludes them.
func (l *Layer) SetSelectedFields(ctx context.Context, names []string) error {
	keep := make(map[int]bool, len(names))
	for _, n := range names {
		i := l.schema.FieldIndex(n)
		if i < 0 {
			return domain.ErrSchema("field %q not found in layer %q", n, l.Name())
		}
		keep[i] = true
	}
	var ignored []string
	for i, f := range l.schema.Fields {
		if !keep[i] {
			ignored = append(ignored, f.Name)
		}
	}
	if err := l.store.SetIgnoredFields(ignored); err != nil {
		return wrapStore("set ignored fields", err)
	}
	return l.refreshSchema(ctx)
}

// CreateField adds an attribute field and re-reads the definition.
func (l *Layer) CreateField(ctx context.Context, field domain.FieldSchema) error {
	if field.Name == "" {
		return domain.ErrValidation("field name is required")
	}
	if l.schema.FieldIndex(field.Name) >= 0 {
		return domain.ErrSchema("field %q already exists in layer %q", field.Name, l.Name())
	}
	if err := l.store.CreateField(ctx, field); err != nil {
		return wrapStore("create field", err)
	}
	return l.refreshSchema(ctx)
}

func (l *Layer) fidFilterColumn() string {
	if c := l.store.FIDColumn(); c != "" {
		return c
	}
	return l.cfg.SQLRowIDColumn
}

func wrapStore(op string, err error) error {
	if err == nil {
		return nil
	}
	switch err.(type) {
	case *domain.StoreError, *domain.ValidationError, *domain.SchemaError,
		*domain.NotFoundError, *domain.ConflictError:
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return domain.ErrStore(op, err)
}
