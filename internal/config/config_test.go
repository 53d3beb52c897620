package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/USDAForestService/gdalraster-sub000/internal/domain"
	"github.com/USDAForestService/gdalraster-sub000/internal/vector"
)

var envKeys = []string{
	"VECTAB_STORE", "VECTAB_DRIVER", "VECTAB_PAGE_SIZE", "VECTAB_GEOM_FORMAT",
	"VECTAB_DEFAULT_GEOM_NAME", "VECTAB_GEOM_ALIASES", "LOG_LEVEL", "LOG_FORMAT",
	"S3_KEY_ID", "S3_SECRET", "S3_ENDPOINT", "S3_REGION", "S3_URL_STYLE",
	"GCS_KEY_FILE", "AZURE_STORAGE_ACCOUNT", "AZURE_STORAGE_KEY",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range envKeys {
		t.Setenv(k, "")
	}
}

func TestLoadFromEnv_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadFromEnv()
	require.NoError(t, err)

	assert.Equal(t, DriverSQLite, cfg.Driver)
	assert.Equal(t, "vectab.sqlite", cfg.StorePath)
	assert.Equal(t, domain.FormatWKB, cfg.GeomFormat)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Nil(t, cfg.GeomAliases)
	assert.Zero(t, cfg.PageSize)
	assert.Empty(t, cfg.Warnings)
	assert.False(t, cfg.HasS3Config())
}

func TestLoadFromEnv_AllVarsSet(t *testing.T) {
	clearEnv(t)
	t.Setenv("VECTAB_STORE", "/data/plots.duckdb")
	t.Setenv("VECTAB_DRIVER", "DuckDB")
	t.Setenv("VECTAB_PAGE_SIZE", "500")
	t.Setenv("VECTAB_GEOM_FORMAT", "wkt-iso")
	t.Setenv("VECTAB_DEFAULT_GEOM_NAME", "shape")
	t.Setenv("VECTAB_GEOM_ALIASES", "geom, the_geom,,")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_FORMAT", "JSON")
	t.Setenv("S3_KEY_ID", "testkey")
	t.Setenv("S3_SECRET", "testsecret")
	t.Setenv("S3_ENDPOINT", "s3.example.com")

	cfg, err := LoadFromEnv()
	require.NoError(t, err)

	assert.Equal(t, "/data/plots.duckdb", cfg.StorePath)
	assert.Equal(t, DriverDuckDB, cfg.Driver)
	assert.Equal(t, 500, cfg.PageSize)
	assert.Equal(t, domain.FormatWKTISO, cfg.GeomFormat)
	assert.Equal(t, "shape", cfg.DefaultGeomName)
	assert.Equal(t, []string{"geom", "the_geom"}, cfg.GeomAliases)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, slog.LevelDebug, cfg.SlogLevel())
	assert.True(t, cfg.HasS3Config())
	assert.Empty(t, cfg.Warnings)
}

func TestLoadFromEnv_DuckDBDefaultPath(t *testing.T) {
	clearEnv(t)
	t.Setenv("VECTAB_DRIVER", "duckdb")

	cfg, err := LoadFromEnv()
	require.NoError(t, err)
	assert.Equal(t, "vectab.duckdb", cfg.StorePath)
}

func TestLoadFromEnv_Errors(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		value   string
		wantErr string
	}{
		{"bad_driver", "VECTAB_DRIVER", "postgres", "unsupported VECTAB_DRIVER"},
		{"bad_format", "VECTAB_GEOM_FORMAT", "geojson", "unknown VECTAB_GEOM_FORMAT"},
		{"zero_page_size", "VECTAB_PAGE_SIZE", "0", "VECTAB_PAGE_SIZE must be a positive integer"},
		{"text_page_size", "VECTAB_PAGE_SIZE", "12abc", "VECTAB_PAGE_SIZE must be a positive integer"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(tt.key, tt.value)

			_, err := LoadFromEnv()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadFromEnv_Warnings(t *testing.T) {
	clearEnv(t)
	t.Setenv("LOG_FORMAT", "xml")
	t.Setenv("VECTAB_GEOM_ALIASES", " , ")
	t.Setenv("S3_KEY_ID", "only-key")
	t.Setenv("AZURE_STORAGE_KEY", "only-key")

	cfg, err := LoadFromEnv()
	require.NoError(t, err)

	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, []string{}, cfg.GeomAliases)
	require.Len(t, cfg.Warnings, 4)
	assert.Contains(t, cfg.Warnings[0], "LOG_FORMAT")
	assert.Contains(t, cfg.Warnings[1], "VECTAB_GEOM_ALIASES")
	assert.Contains(t, cfg.Warnings[2], "S3_KEY_ID")
	assert.Contains(t, cfg.Warnings[3], "AZURE_STORAGE_ACCOUNT")
}

func TestSlogLevel(t *testing.T) {
	tests := []struct {
		level string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"WARN", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"info", slog.LevelInfo},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}
	for _, tt := range tests {
		cfg := &Config{LogLevel: tt.level}
		assert.Equal(t, tt.want, cfg.SlogLevel(), tt.level)
	}
}

func TestVectorConfig(t *testing.T) {
	cfg := &Config{}
	vc := cfg.VectorConfig(nil)
	assert.Equal(t, vector.DefaultConfig(), vc)

	aliases := []string{"shape"}
	cfg = &Config{DefaultGeomName: "geom", GeomAliases: aliases}
	vc = cfg.VectorConfig(slog.Default())
	assert.Equal(t, "geom", vc.DefaultGeomName)
	assert.Equal(t, []string{"shape"}, vc.GeomAliases)
	assert.NotNil(t, vc.Logger)

	aliases[0] = "changed"
	assert.Equal(t, []string{"shape"}, vc.GeomAliases)
}

func TestReadOptions(t *testing.T) {
	cfg := &Config{GeomFormat: domain.FormatBBox}
	opts := cfg.ReadOptions()
	assert.Equal(t, domain.FormatBBox, opts.Format)
	assert.Equal(t, vector.DefaultReadOptions().ByteOrder, opts.ByteOrder)
}

func TestCredentials(t *testing.T) {
	cfg := &Config{
		S3KeyID: "k", S3Secret: "s", S3Endpoint: "minio:9000", S3Region: "eu", S3URLStyle: "path",
		GCSKeyFile: "/keys/sa.json", AzureAccountName: "acct", AzureAccountKey: "key",
	}
	c := cfg.Credentials()
	assert.Equal(t, "k", c.S3KeyID)
	assert.Equal(t, "s", c.S3Secret)
	assert.Equal(t, "minio:9000", c.S3Endpoint)
	assert.Equal(t, "eu", c.S3Region)
	assert.Equal(t, "path", c.S3URLStyle)
	assert.Equal(t, "/keys/sa.json", c.GCSKeyFile)
	assert.Equal(t, "acct", c.AzureAccountName)
	assert.Equal(t, "key", c.AzureAccountKey)
}

func TestLoadDotEnv_FileNotFound(t *testing.T) {
	require.NoError(t, LoadDotEnv("/nonexistent/.env"))
}

func TestLoadDotEnv_ParsesKeyValue(t *testing.T) {
	envFile := filepath.Join(t.TempDir(), ".env")
	content := "# comment\n\nVECTAB_TEST_PLAIN=value\nexport VECTAB_TEST_EXPORTED='quoted value'\nnot a pair\n"
	require.NoError(t, os.WriteFile(envFile, []byte(content), 0o644))
	t.Cleanup(func() {
		_ = os.Unsetenv("VECTAB_TEST_PLAIN")
		_ = os.Unsetenv("VECTAB_TEST_EXPORTED")
	})

	require.NoError(t, LoadDotEnv(envFile))
	assert.Equal(t, "value", os.Getenv("VECTAB_TEST_PLAIN"))
	assert.Equal(t, "quoted value", os.Getenv("VECTAB_TEST_EXPORTED"))
}

func TestLoadDotEnv_EnvVarPrecedence(t *testing.T) {
	t.Setenv("VECTAB_TEST_PRECEDENCE", "from_env")

	envFile := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("VECTAB_TEST_PRECEDENCE=from_file\n"), 0o644))

	require.NoError(t, LoadDotEnv(envFile))
	assert.Equal(t, "from_env", os.Getenv("VECTAB_TEST_PRECEDENCE"))
}

func TestStripQuotes(t *testing.T) {
	assert.Equal(t, "a b", stripQuotes(`"a b"`))
	assert.Equal(t, "a b", stripQuotes(`'a b'`))
	assert.Equal(t, `"a b'`, stripQuotes(`"a b'`))
	assert.Equal(t, `"`, stripQuotes(`"`))
}
