package vector

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/USDAForestService/gdalraster-sub000/internal/domain"
	"github.com/USDAForestService/gdalraster-sub000/internal/testutil"
)

func TestBatchCreate_PerRowStatus(t *testing.T) {
	ctx := context.Background()
	l := openLayer(t, newDataset(t), "plots")

	var progress [][2]int
	results, err := l.BatchCreate(ctx, []Row{
		{"name": "a", "trees": 1, "geometry": "POINT (0 0)"},
		{"name": "b", "trees": 2, "geom": orb.Point{1, 1}},
		{"name": "c", "trees": "lots"},
	}, WriteOptions{Progress: func(done, total int) { progress = append(progress, [2]int{done, total}) }})
	require.NoError(t, err)
	assert.Equal(t, []bool{true, true, false}, results)
	assert.Equal(t, [][2]int{{1, 3}, {2, 3}, {3, 3}}, progress)

	tbl, err := l.Fetch(ctx, FetchAll, DefaultReadOptions())
	require.NoError(t, err)
	assert.Equal(t, 2, tbl.Len())
}

func TestBatchCreate_RejectsNullInRequiredField(t *testing.T) {
	ctx := context.Background()
	store, err := newDataset(t).CreateLayer(ctx, &domain.LayerSchema{
		Name: "stems",
		Fields: []domain.FieldSchema{
			{Name: "id", Type: domain.FieldTypeInteger, Nullable: false},
			{Name: "name", Type: domain.FieldTypeString, Nullable: true},
		},
		GeomFields: []domain.GeomFieldSchema{{Name: "geom", Type: domain.GeomPoint, Nullable: true}},
	})
	require.NoError(t, err)
	l, err := Open(ctx, store, DefaultConfig())
	require.NoError(t, err)

	results, err := l.BatchCreate(ctx, []Row{
		{"id": 1, "name": "a", "geom": orb.Point{0, 0}},
		{"id": 2, "name": "b", "geom": orb.Point{1, 1}},
		{"id": nil, "name": "c", "geom": orb.Point{2, 2}},
	}, WriteOptions{})
	require.NoError(t, err)
	assert.Equal(t, []bool{true, true, false}, results)

	tbl, err := l.Fetch(ctx, FetchAll, DefaultReadOptions())
	require.NoError(t, err)
	require.Equal(t, 2, tbl.Len())
	id, ok := tbl.Column("id")
	require.True(t, ok)
	assert.Equal(t, int32(1), id.Value(0))
	assert.Equal(t, int32(2), id.Value(1))
}

func TestBatchCreate_StoreFailureDoesNotStopBatch(t *testing.T) {
	ctx := context.Background()
	l := openLayer(t, newDataset(t), "plots")

	results, err := l.BatchCreate(ctx, []Row{
		{FIDKey: 7, "name": "a"},
		{FIDKey: 7, "name": "dup"},
		{"name": "c"},
	}, WriteOptions{})
	require.NoError(t, err)
	assert.Equal(t, []bool{true, false, true}, results)
	assert.Equal(t, []int64{7, 8}, fidsOf(t, l, FetchAll))
}

func TestBatchCreate_SingleRowNoProgress(t *testing.T) {
	m := &testutil.MockLayerStore{Schema: encodeSchema("")}
	l := mockLayer(t, m)

	called := false
	results, err := l.BatchCreate(context.Background(), []Row{{"stand_id": 1}},
		WriteOptions{Progress: func(int, int) { called = true }})
	require.NoError(t, err)
	assert.Equal(t, []bool{true}, results)
	assert.False(t, called)
	require.Len(t, m.Created, 1)
}

func TestBatchCreate_ContextCanceled(t *testing.T) {
	m := &testutil.MockLayerStore{Schema: encodeSchema("")}
	l := mockLayer(t, m)

	ctx, cancel := context.WithCancel(context.Background())
	m.CreateFeatureFn = func(context.Context, *domain.Feature) error {
		cancel()
		return nil
	}
	results, err := l.BatchCreate(ctx, []Row{{"stand_id": 1}, {"stand_id": 2}, {"stand_id": 3}}, WriteOptions{})
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, []bool{true, false, false}, results)
}

func TestCreateFeature_LastWriteFID(t *testing.T) {
	ctx := context.Background()
	l := openLayer(t, newDataset(t), "plots")
	assert.Equal(t, domain.NullFID, l.LastWriteFID())

	ok, err := l.CreateFeature(ctx, Row{"name": "a"})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(1), l.LastWriteFID())

	ok, err = l.CreateFeature(ctx, Row{"name": 5})
	require.Error(t, err)
	assert.False(t, ok)
	assert.Equal(t, int64(1), l.LastWriteFID())

	ok, err = l.CreateFeature(ctx, Row{FIDKey: 40, "name": "b"})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(40), l.LastWriteFID())
}

func TestSetFeature(t *testing.T) {
	ctx := context.Background()
	l := seededLayer(t)

	ok, err := l.SetFeature(ctx, Row{"trees": 1})
	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.False(t, ok)

	ok, err = l.SetFeature(ctx, Row{FIDKey: 3, "trees": 77, "geometry": "POINT (9 9)"})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(3), l.LastWriteFID())

	rec, err := l.GetFeature(ctx, 3, ReadOptions{Format: domain.FormatWKT})
	require.NoError(t, err)
	require.NotNil(t, rec)
	got := rec.Map()
	assert.Equal(t, "c", got["name"])
	assert.Equal(t, int32(77), got["trees"])
	assert.Equal(t, "POINT(9 9)", got["geometry"])

	ok, err = l.SetFeature(ctx, Row{FIDKey: 99, "trees": 1})
	var nf *domain.NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.False(t, ok)
}

func TestUpsertAndDeleteFeature(t *testing.T) {
	ctx := context.Background()
	l := seededLayer(t)

	ok, err := l.UpsertFeature(ctx, Row{FIDKey: 10, "name": "new"})
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = l.UpsertFeature(ctx, Row{FIDKey: 1, "name": "renamed"})
	require.NoError(t, err)
	require.True(t, ok)

	rec, err := l.GetFeature(ctx, 1, DefaultReadOptions())
	require.NoError(t, err)
	name, _ := rec.Get("name")
	assert.Equal(t, "renamed", name)
	assert.Equal(t, []int64{1, 2, 3, 4, 5, 10}, fidsOf(t, l, FetchAll))

	ok, err = l.DeleteFeature(ctx, 10)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = l.DeleteFeature(ctx, 10)
	var nf *domain.NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.False(t, ok)

	rec, err = l.GetFeature(ctx, 10, DefaultReadOptions())
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestTransactions(t *testing.T) {
	ctx := context.Background()
	l := openLayer(t, newDataset(t), "plots")

	require.NoError(t, l.StartTransaction(ctx))
	_, err := l.CreateFeature(ctx, Row{"name": "discarded"})
	require.NoError(t, err)
	require.NoError(t, l.RollbackTransaction(ctx))

	n, err := l.FeatureCount(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	require.NoError(t, l.StartTransaction(ctx))
	err = l.StartTransaction(ctx)
	var cerr *domain.ConflictError
	require.ErrorAs(t, err, &cerr)

	_, err = l.CreateFeature(ctx, Row{"name": "kept"})
	require.NoError(t, err)
	require.NoError(t, l.CommitTransaction(ctx))

	n, err = l.FeatureCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	err = l.CommitTransaction(ctx)
	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
}

func TestTransactions_StoreErrorWrapped(t *testing.T) {
	m := &testutil.MockLayerStore{
		Schema:    &domain.LayerSchema{Name: "t"},
		StartTxFn: func(context.Context) error { return errors.New("locked") },
	}
	l := mockLayer(t, m)

	err := l.StartTransaction(context.Background())
	var serr *domain.StoreError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, "start transaction", serr.Op)
	assert.EqualError(t, err, "start transaction: locked")
}

func TestBatchCreateTable_RoundTrip(t *testing.T) {
	ctx := context.Background()
	ds := newDataset(t)
	src := openLayer(t, ds, "plots")
	dst := openLayer(t, ds, "plots_copy")

	rows := []Row{
		{
			"name": "north", "trees": 3, "alive": true, "basal_area": 12.5,
			"visited": domain.Date(19500), "surveyed": time.Date(2023, 6, 1, 8, 30, 0, 0, time.UTC),
			"species": []string{"PIPO"}, "status": "done", "geometry": "POINT (1 2)",
		},
		{"name": nil, "trees": 0, "alive": false, "species": []string{}},
		{"basal_area": 0.25, "geometry": "POINT (-3 4.5)"},
	}
	results, err := src.BatchCreate(ctx, rows, WriteOptions{})
	require.NoError(t, err)
	require.Equal(t, []bool{true, true, true}, results)

	want, err := src.Fetch(ctx, FetchAll, DefaultReadOptions())
	require.NoError(t, err)

	results, err = dst.BatchCreateTable(ctx, want, WriteOptions{})
	require.NoError(t, err)
	assert.Equal(t, []bool{true, true, true}, results)

	got, err := dst.Fetch(ctx, FetchAll, DefaultReadOptions())
	require.NoError(t, err)
	require.Equal(t, want.Len(), got.Len())
	for i := 0; i < want.Len(); i++ {
		assert.Equal(t, want.Record(i).Map(), got.Record(i).Map(), "row %d", i)
	}
}

func TestBatchCreateTable_SkipsDerivedGeometry(t *testing.T) {
	ctx := context.Background()
	ds := newDataset(t)
	src := seededLayer(t)
	dst := openLayer(t, ds, "summaries")

	tbl, err := src.Fetch(ctx, FetchAll, ReadOptions{Format: domain.FormatSummary})
	require.NoError(t, err)

	results, err := dst.BatchCreateTable(ctx, tbl, WriteOptions{})
	require.NoError(t, err)
	assert.Equal(t, []bool{true, true, true, true, true}, results)

	_, ok, err := dst.Extent(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestEpochToTime(t *testing.T) {
	ts := time.Date(2001, 2, 3, 4, 5, 6, 250_000_000, time.UTC)
	sec := float64(ts.Unix()) + 0.25
	assert.True(t, ts.Equal(epochToTime(sec)))
	assert.True(t, time.Unix(-1, 0).Equal(epochToTime(-1)))
}
