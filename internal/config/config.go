package config

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/USDAForestService/gdalraster-sub000/internal/domain"
	"github.com/USDAForestService/gdalraster-sub000/internal/sink"
	"github.com/USDAForestService/gdalraster-sub000/internal/typecatalog"
	"github.com/USDAForestService/gdalraster-sub000/internal/vector"
)

// Supported store drivers.
const (
	DriverSQLite = "sqlite"
	DriverDuckDB = "duckdb"
)

// Config holds all process configuration loaded from the environment.
type Config struct {
	// Store
	StorePath string
	Driver    string
	PageSize  int

	// Geometry handling
	GeomFormat      domain.GeomFormat
	DefaultGeomName string
	GeomAliases     []string // nil means vector.DefaultGeomAliases

	// Logging
	LogLevel  string
	LogFormat string // "text" or "json"

	// Export destinations
	S3KeyID          string
	S3Secret         string
	S3Endpoint       string
	S3Region         string
	S3URLStyle       string
	GCSKeyFile       string
	AzureAccountName string
	AzureAccountKey  string

	// Warnings collects non-fatal configuration issues detected during
	// loading. Callers should log these after the logger is initialized.
	Warnings []string
}

// SlogLevel converts the LogLevel string to a slog.Level.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// HasS3Config returns true if static S3 credentials are present.
func (c *Config) HasS3Config() bool {
	return c.S3KeyID != "" && c.S3Secret != ""
}

// Credentials returns the export destination credentials.
func (c *Config) Credentials() sink.Credentials {
	return sink.Credentials{
		S3Endpoint:       c.S3Endpoint,
		S3Region:         c.S3Region,
		S3KeyID:          c.S3KeyID,
		S3Secret:         c.S3Secret,
		S3URLStyle:       c.S3URLStyle,
		GCSKeyFile:       c.GCSKeyFile,
		AzureAccountName: c.AzureAccountName,
		AzureAccountKey:  c.AzureAccountKey,
	}
}

// VectorConfig returns the layer configuration. The logger may be nil.
func (c *Config) VectorConfig(logger *slog.Logger) vector.Config {
	cfg := vector.DefaultConfig()
	if c.DefaultGeomName != "" {
		cfg.DefaultGeomName = c.DefaultGeomName
	}
	if c.GeomAliases != nil {
		cfg.GeomAliases = append([]string(nil), c.GeomAliases...)
	}
	cfg.Logger = logger
	return cfg
}

// ReadOptions returns the default read options with the configured
// geometry format.
func (c *Config) ReadOptions() vector.ReadOptions {
	opts := vector.DefaultReadOptions()
	opts.Format = c.GeomFormat
	return opts
}

// LoadFromEnv loads configuration from environment variables.
func LoadFromEnv() (*Config, error) {
	cfg := &Config{
		StorePath:        strings.TrimSpace(os.Getenv("VECTAB_STORE")),
		Driver:           strings.ToLower(strings.TrimSpace(os.Getenv("VECTAB_DRIVER"))),
		DefaultGeomName:  strings.TrimSpace(os.Getenv("VECTAB_DEFAULT_GEOM_NAME")),
		LogLevel:         os.Getenv("LOG_LEVEL"),
		LogFormat:        strings.ToLower(os.Getenv("LOG_FORMAT")),
		S3KeyID:          os.Getenv("S3_KEY_ID"),
		S3Secret:         os.Getenv("S3_SECRET"),
		S3Endpoint:       os.Getenv("S3_ENDPOINT"),
		S3Region:         os.Getenv("S3_REGION"),
		S3URLStyle:       os.Getenv("S3_URL_STYLE"),
		GCSKeyFile:       os.Getenv("GCS_KEY_FILE"),
		AzureAccountName: os.Getenv("AZURE_STORAGE_ACCOUNT"),
		AzureAccountKey:  os.Getenv("AZURE_STORAGE_KEY"),
	}

	if v := os.Getenv("VECTAB_GEOM_ALIASES"); v != "" {
		cfg.GeomAliases = compactNonEmpty(strings.Split(v, ","))
	}

	if v := strings.TrimSpace(os.Getenv("VECTAB_PAGE_SIZE")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("VECTAB_PAGE_SIZE must be a positive integer, got %q", v)
		}
		cfg.PageSize = n
	}

	cfg.GeomFormat = domain.FormatWKB
	if v := strings.TrimSpace(os.Getenv("VECTAB_GEOM_FORMAT")); v != "" {
		f := typecatalog.GeomFormatFromName(v)
		if f == domain.FormatUnknown {
			return nil, fmt.Errorf("unknown VECTAB_GEOM_FORMAT %q", v)
		}
		cfg.GeomFormat = f
	}

	// Defaults
	switch cfg.Driver {
	case "":
		cfg.Driver = DriverSQLite
	case DriverSQLite, DriverDuckDB:
	default:
		return nil, fmt.Errorf("unsupported VECTAB_DRIVER %q (want sqlite or duckdb)", cfg.Driver)
	}
	if cfg.StorePath == "" {
		cfg.StorePath = "vectab.sqlite"
		if cfg.Driver == DriverDuckDB {
			cfg.StorePath = "vectab.duckdb"
		}
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	switch cfg.LogFormat {
	case "":
		cfg.LogFormat = "text"
	case "text", "json":
	default:
		cfg.Warnings = append(cfg.Warnings, fmt.Sprintf("unknown LOG_FORMAT %q, using text", cfg.LogFormat))
		cfg.LogFormat = "text"
	}
	if cfg.GeomAliases != nil && len(cfg.GeomAliases) == 0 {
		cfg.Warnings = append(cfg.Warnings, "VECTAB_GEOM_ALIASES lists no names; only native geometry names are accepted on input")
	}
	if (cfg.S3KeyID == "") != (cfg.S3Secret == "") {
		cfg.Warnings = append(cfg.Warnings, "only one of S3_KEY_ID and S3_SECRET is set; s3:// exports will fail")
	}
	if (cfg.AzureAccountName == "") != (cfg.AzureAccountKey == "") {
		cfg.Warnings = append(cfg.Warnings, "only one of AZURE_STORAGE_ACCOUNT and AZURE_STORAGE_KEY is set; az:// exports will fail")
	}

	return cfg, nil
}

func compactNonEmpty(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// LoadDotEnv reads a .env file and sets any variables not already in the environment.
// Lines must be in KEY=VALUE format. Comments (#) and blank lines are skipped.
func LoadDotEnv(path string) error {
	f, err := os.Open(path) //nolint:gosec // path is caller-controlled
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close() //nolint:errcheck

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(strings.TrimPrefix(key, "export "))
		value = stripQuotes(strings.TrimSpace(value))
		if _, set := os.LookupEnv(key); !set {
			if err := os.Setenv(key, value); err != nil {
				return fmt.Errorf("setenv %s: %w", key, err)
			}
		}
	}
	return scanner.Err()
}

// stripQuotes removes matching surrounding double or single quotes.
func stripQuotes(s string) string {
	if len(s) >= 2 {
		if (s[0] == '"' && s[len(s)-1] == '"') || (s[0] == '\'' && s[len(s)-1] == '\'') {
			return s[1 : len(s)-1]
		}
	}
	return s
}
