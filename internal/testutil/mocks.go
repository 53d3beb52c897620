// Package testutil provides shared mock implementations of domain interfaces
// for use in tests across the codebase.
package testutil

import (
	"context"

	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/paulmach/orb"

	"github.com/USDAForestService/gdalraster-sub000/internal/domain"
)

// === Layer Store Mock ===

// MockLayerStore implements domain.LayerStore for testing. Filter and
// projection state is kept on the struct so the save/restore paths can be
// asserted; every other method panics unless its Fn field is set.
type MockLayerStore struct {
	LayerName string
	FID       string
	Schema    *domain.LayerSchema
	Caps      map[string]bool

	Attr    string
	BBox    *orb.Bound
	Ignored []string

	DefinitionFn     func(ctx context.Context) (*domain.LayerSchema, error)
	FieldDomainFn    func(ctx context.Context, name string) (*domain.FieldDomain, bool, error)
	ExtentFn         func(ctx context.Context) (orb.Bound, bool, error)
	ResetReadingFn   func()
	NextFeatureFn    func(ctx context.Context) (*domain.Feature, error)
	SetNextByIndexFn func(ctx context.Context, index int64) error
	FeatureCountFn   func(ctx context.Context) (int64, error)
	SetAttrFilterFn  func(ctx context.Context, expr string) error
	SetIgnoredFn     func(names []string) error
	CreateFeatureFn  func(ctx context.Context, f *domain.Feature) error
	SetFeatureFn     func(ctx context.Context, f *domain.Feature) error
	UpsertFeatureFn  func(ctx context.Context, f *domain.Feature) error
	DeleteFeatureFn  func(ctx context.Context, fid int64) error
	CreateFieldFn    func(ctx context.Context, field domain.FieldSchema) error
	StartTxFn        func(ctx context.Context) error
	CommitTxFn       func(ctx context.Context) error
	RollbackTxFn     func(ctx context.Context) error
	ArrowStreamFn    func(ctx context.Context, opts domain.ArrowStreamOptions) (array.RecordReader, error)

	Created []*domain.Feature // features passed to CreateFeature
}

var _ domain.LayerStore = (*MockLayerStore)(nil)

// Name implements the interface method for testing.
func (m *MockLayerStore) Name() string { return m.LayerName }

// FIDColumn implements the interface method for testing.
func (m *MockLayerStore) FIDColumn() string { return m.FID }

// TestCapability implements the interface method for testing.
func (m *MockLayerStore) TestCapability(capability string) bool { return m.Caps[capability] }

// Extent implements the interface method for testing.
func (m *MockLayerStore) Extent(ctx context.Context) (orb.Bound, bool, error) {
	if m.ExtentFn != nil {
		return m.ExtentFn(ctx)
	}
	panic("unexpected call to MockLayerStore.Extent")
}

// Definition returns Schema unless DefinitionFn is set.
func (m *MockLayerStore) Definition(ctx context.Context) (*domain.LayerSchema, error) {
	if m.DefinitionFn != nil {
		return m.DefinitionFn(ctx)
	}
	if m.Schema != nil {
		return m.Schema.Clone(), nil
	}
	panic("unexpected call to MockLayerStore.Definition")
}

// FieldDomain implements the interface method for testing.
func (m *MockLayerStore) FieldDomain(ctx context.Context, name string) (*domain.FieldDomain, bool, error) {
	if m.FieldDomainFn != nil {
		return m.FieldDomainFn(ctx, name)
	}
	panic("unexpected call to MockLayerStore.FieldDomain")
}

// ResetReading implements the interface method for testing.
func (m *MockLayerStore) ResetReading() {
	if m.ResetReadingFn != nil {
		m.ResetReadingFn()
	}
}

// NextFeature implements the interface method for testing.
func (m *MockLayerStore) NextFeature(ctx context.Context) (*domain.Feature, error) {
	if m.NextFeatureFn != nil {
		return m.NextFeatureFn(ctx)
	}
	panic("unexpected call to MockLayerStore.NextFeature")
}

// SetNextByIndex implements the interface method for testing.
func (m *MockLayerStore) SetNextByIndex(ctx context.Context, index int64) error {
	if m.SetNextByIndexFn != nil {
		return m.SetNextByIndexFn(ctx, index)
	}
	panic("unexpected call to MockLayerStore.SetNextByIndex")
}

// FeatureCount implements the interface method for testing.
func (m *MockLayerStore) FeatureCount(ctx context.Context) (int64, error) {
	if m.FeatureCountFn != nil {
		return m.FeatureCountFn(ctx)
	}
	panic("unexpected call to MockLayerStore.FeatureCount")
}

// AttributeFilter implements the interface method for testing.
func (m *MockLayerStore) AttributeFilter() string { return m.Attr }

// SetAttributeFilter records expr after SetAttrFilterFn accepts it.
func (m *MockLayerStore) SetAttributeFilter(ctx context.Context, expr string) error {
	if m.SetAttrFilterFn != nil {
		if err := m.SetAttrFilterFn(ctx, expr); err != nil {
			return err
		}
	}
	m.Attr = expr
	return nil
}

// SpatialFilter implements the interface method for testing.
func (m *MockLayerStore) SpatialFilter() (orb.Bound, bool) {
	if m.BBox == nil {
		return orb.Bound{}, false
	}
	return *m.BBox, true
}

// SetSpatialFilter implements the interface method for testing.
func (m *MockLayerStore) SetSpatialFilter(b *orb.Bound) {
	if b == nil {
		m.BBox = nil
		return
	}
	c := *b
	m.BBox = &c
}

// IgnoredFields implements the interface method for testing.
func (m *MockLayerStore) IgnoredFields() []string { return m.Ignored }

// SetIgnoredFields records names after SetIgnoredFn accepts them.
func (m *MockLayerStore) SetIgnoredFields(names []string) error {
	if m.SetIgnoredFn != nil {
		if err := m.SetIgnoredFn(names); err != nil {
			return err
		}
	}
	m.Ignored = append([]string(nil), names...)
	return nil
}

// CreateFeature collects f, then defers to CreateFeatureFn when set.
func (m *MockLayerStore) CreateFeature(ctx context.Context, f *domain.Feature) error {
	if m.CreateFeatureFn != nil {
		if err := m.CreateFeatureFn(ctx, f); err != nil {
			return err
		}
	}
	m.Created = append(m.Created, f)
	return nil
}

// SetFeature implements the interface method for testing.
func (m *MockLayerStore) SetFeature(ctx context.Context, f *domain.Feature) error {
	if m.SetFeatureFn != nil {
		return m.SetFeatureFn(ctx, f)
	}
	panic("unexpected call to MockLayerStore.SetFeature")
}

// UpsertFeature implements the interface method for testing.
func (m *MockLayerStore) UpsertFeature(ctx context.Context, f *domain.Feature) error {
	if m.UpsertFeatureFn != nil {
		return m.UpsertFeatureFn(ctx, f)
	}
	panic("unexpected call to MockLayerStore.UpsertFeature")
}

// DeleteFeature implements the interface method for testing.
func (m *MockLayerStore) DeleteFeature(ctx context.Context, fid int64) error {
	if m.DeleteFeatureFn != nil {
		return m.DeleteFeatureFn(ctx, fid)
	}
	panic("unexpected call to MockLayerStore.DeleteFeature")
}

// CreateField implements the interface method for testing.
func (m *MockLayerStore) CreateField(ctx context.Context, field domain.FieldSchema) error {
	if m.CreateFieldFn != nil {
		return m.CreateFieldFn(ctx, field)
	}
	panic("unexpected call to MockLayerStore.CreateField")
}

// StartTransaction implements the interface method for testing.
func (m *MockLayerStore) StartTransaction(ctx context.Context) error {
	if m.StartTxFn != nil {
		return m.StartTxFn(ctx)
	}
	panic("unexpected call to MockLayerStore.StartTransaction")
}

// CommitTransaction implements the interface method for testing.
func (m *MockLayerStore) CommitTransaction(ctx context.Context) error {
	if m.CommitTxFn != nil {
		return m.CommitTxFn(ctx)
	}
	panic("unexpected call to MockLayerStore.CommitTransaction")
}

// RollbackTransaction implements the interface method for testing.
func (m *MockLayerStore) RollbackTransaction(ctx context.Context) error {
	if m.RollbackTxFn != nil {
		return m.RollbackTxFn(ctx)
	}
	panic("unexpected call to MockLayerStore.RollbackTransaction")
}

// ArrowStream implements the interface method for testing.
func (m *MockLayerStore) ArrowStream(ctx context.Context, opts domain.ArrowStreamOptions) (array.RecordReader, error) {
	if m.ArrowStreamFn != nil {
		return m.ArrowStreamFn(ctx, opts)
	}
	panic("unexpected call to MockLayerStore.ArrowStream")
}

// FeatureSource returns a NextFeatureFn that yields feats in order, then nil.
func FeatureSource(feats ...*domain.Feature) func(context.Context) (*domain.Feature, error) {
	i := 0
	return func(context.Context) (*domain.Feature, error) {
		if i >= len(feats) {
			return nil, nil
		}
		f := feats[i]
		i++
		return f, nil
	}
}
