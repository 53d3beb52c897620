package sink

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/USDAForestService/gdalraster-sub000/internal/domain"
	"github.com/USDAForestService/gdalraster-sub000/internal/store/sqlstore"
	"github.com/USDAForestService/gdalraster-sub000/internal/vector"
)

func TestParseURI(t *testing.T) {
	tests := []struct {
		name    string
		uri     string
		want    Target
		wantErr string
	}{
		{name: "bare_path", uri: "out/plots.arrow", want: Target{Scheme: SchemeFile, Key: "out/plots.arrow"}},
		{name: "file_uri", uri: "file:///tmp/plots.arrow", want: Target{Scheme: SchemeFile, Key: "/tmp/plots.arrow"}},
		{name: "s3", uri: "s3://lake/exports/plots.arrow", want: Target{Scheme: SchemeS3, Bucket: "lake", Key: "exports/plots.arrow"}},
		{name: "gcs", uri: "gs://lake/plots.arrow", want: Target{Scheme: SchemeGCS, Bucket: "lake", Key: "plots.arrow"}},
		{name: "azure", uri: "az://exports/a/b.arrow", want: Target{Scheme: SchemeAzure, Bucket: "exports", Key: "a/b.arrow"}},
		{
			name: "abfss",
			uri:  "abfss://exports@acct.dfs.core.windows.net/plots.arrow",
			want: Target{Scheme: SchemeAzure, Bucket: "exports", Key: "plots.arrow"},
		},
		{
			name: "azure_https",
			uri:  "https://acct.blob.core.windows.net/exports/x/plots.arrow",
			want: Target{Scheme: SchemeAzure, Bucket: "exports", Key: "x/plots.arrow"},
		},
		{name: "empty", uri: " ", wantErr: "destination is required"},
		{name: "unknown_scheme", uri: "ftp://host/file", wantErr: "unsupported destination scheme"},
		{name: "no_key", uri: "s3://lake/", wantErr: "empty object key"},
		{name: "prefix_only", uri: "gs://lake/exports/", wantErr: "empty object key"},
		{name: "no_bucket", uri: "s3:///key", wantErr: "empty bucket"},
		{name: "abfss_no_container", uri: "abfss://acct.dfs.core.windows.net/x", wantErr: "missing container@account"},
		{name: "https_not_azure", uri: "https://example.com/a/b", wantErr: "unrecognized HTTPS host"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseURI(tt.uri)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTargetString(t *testing.T) {
	assert.Equal(t, "s3://lake/a.arrow", Target{Scheme: SchemeS3, Bucket: "lake", Key: "a.arrow"}.String())
	assert.Equal(t, "out.arrow", Target{Scheme: SchemeFile, Key: "out.arrow"}.String())
}

func TestOpen_LocalCreatesDirectories(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "deeper", "out.bin")
	w, err := Open(context.Background(), path, Credentials{})
	require.NoError(t, err)
	_, err = w.Write([]byte("hello"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(b))
}

func TestOpen_MissingCredentials(t *testing.T) {
	ctx := context.Background()

	_, err := Open(ctx, "s3://lake/a.arrow", Credentials{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "S3 key id and secret are required")

	_, err = Open(ctx, "az://c/a.arrow", Credentials{AzureAccountName: "acct"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Azure account name and key are required")
}

func TestNewS3Client_Endpoint(t *testing.T) {
	c, err := newS3Client(Credentials{S3KeyID: "k", S3Secret: "s", S3Endpoint: "minio.local:9000"})
	require.NoError(t, err)
	opts := c.Options()
	assert.Equal(t, "https://minio.local:9000", *opts.BaseEndpoint)
	assert.True(t, opts.UsePathStyle)
	assert.Equal(t, "us-east-1", opts.Region)

	c, err = newS3Client(Credentials{S3KeyID: "k", S3Secret: "s", S3Endpoint: "s3.example", S3URLStyle: "vhost", S3Region: "eu-central"})
	require.NoError(t, err)
	assert.False(t, c.Options().UsePathStyle)
	assert.Equal(t, "eu-central", c.Options().Region)
}

func TestSpool_UploadsAndRemoves(t *testing.T) {
	var got []byte
	var gotSize int64
	var name string
	s, err := newSpool(func(f *os.File, size int64) error {
		name = f.Name()
		gotSize = size
		b, err := io.ReadAll(f)
		got = b
		return err
	})
	require.NoError(t, err)

	_, err = s.Write([]byte("abc"))
	require.NoError(t, err)
	_, err = s.Write([]byte("def"))
	require.NoError(t, err)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	assert.Equal(t, "abcdef", string(got))
	assert.Equal(t, int64(6), gotSize)
	_, err = os.Stat(name)
	assert.True(t, os.IsNotExist(err))
}

func TestSpool_UploadError(t *testing.T) {
	s, err := newSpool(func(*os.File, int64) error { return errors.New("denied") })
	require.NoError(t, err)
	assert.EqualError(t, s.Close(), "denied")
}

func seededLayer(t *testing.T) *vector.Layer {
	t.Helper()
	ctx := context.Background()
	ds, err := sqlstore.OpenSQLite(filepath.Join(t.TempDir(), "plots.sqlite"), sqlstore.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = ds.Close() })

	store, err := ds.CreateLayer(ctx, &domain.LayerSchema{
		Name: "plots",
		Fields: []domain.FieldSchema{
			{Name: "name", Type: domain.FieldTypeString, Nullable: true},
			{Name: "trees", Type: domain.FieldTypeInteger, Nullable: true},
		},
		GeomFields: []domain.GeomFieldSchema{{Type: domain.GeomPoint, Nullable: true}},
	})
	require.NoError(t, err)
	l, err := vector.Open(ctx, store, vector.DefaultConfig())
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		_, err := l.CreateFeature(ctx, vector.Row{"name": "p", "trees": i, "geometry": orb.Point{float64(i), 0}})
		require.NoError(t, err)
	}
	return l
}

func readIPC(t *testing.T, b []byte) (*arrow.Schema, int64) {
	t.Helper()
	r, err := ipc.NewReader(bytes.NewReader(b), ipc.WithAllocator(memory.DefaultAllocator))
	require.NoError(t, err)
	defer r.Release()
	var rows int64
	for r.Next() {
		rows += r.Record().NumRows()
	}
	require.NoError(t, r.Err())
	return r.Schema(), rows
}

func TestWriteStream(t *testing.T) {
	ctx := context.Background()
	l := seededLayer(t)

	s, err := l.OpenStream(ctx, vector.StreamOptions{BatchSize: 2, IncludeFID: true})
	require.NoError(t, err)
	defer s.Release()

	var buf bytes.Buffer
	rows, err := WriteStream(ctx, &buf, s)
	require.NoError(t, err)
	assert.Equal(t, int64(5), rows)

	schema, n := readIPC(t, buf.Bytes())
	assert.Equal(t, int64(5), n)
	assert.Equal(t, []string{"fid", "name", "trees", "geom"}, fieldNames(schema))
}

func TestWriteStream_Canceled(t *testing.T) {
	l := seededLayer(t)
	s, err := l.OpenStream(context.Background(), vector.StreamOptions{})
	require.NoError(t, err)
	defer s.Release()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = WriteStream(ctx, io.Discard, s)
	require.ErrorIs(t, err, context.Canceled)
}

type failingSource struct{ schema *arrow.Schema }

func (f failingSource) Schema() *arrow.Schema           { return f.schema }
func (f failingSource) Next() (arrow.RecordBatch, bool) { return nil, false }
func (f failingSource) Err() error                      { return errors.New("cursor broke") }

func TestWriteStream_SourceError(t *testing.T) {
	src := failingSource{schema: arrow.NewSchema([]arrow.Field{{Name: "x", Type: arrow.PrimitiveTypes.Int64}}, nil)}
	_, err := WriteStream(context.Background(), io.Discard, src)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cursor broke")
}

func TestWriteTable(t *testing.T) {
	ctx := context.Background()
	l := seededLayer(t)
	tbl, err := l.Fetch(ctx, vector.FetchAll, vector.ReadOptions{Format: domain.FormatWKT})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, WriteTable(&buf, tbl))

	schema, n := readIPC(t, buf.Bytes())
	assert.Equal(t, int64(5), n)
	assert.Equal(t, []string{"FID", "name", "trees", "geometry"}, fieldNames(schema))
	assert.Equal(t, arrow.BinaryTypes.String, schema.Field(3).Type)
}

func fieldNames(s *arrow.Schema) []string {
	out := make([]string, s.NumFields())
	for i, f := range s.Fields() {
		out[i] = f.Name
	}
	return out
}

var _ RecordSource = (*vector.Stream)(nil)
