package vector

import (
	"log/slog"

	"github.com/USDAForestService/gdalraster-sub000/internal/domain"
	"github.com/USDAForestService/gdalraster-sub000/internal/geometry"
)

// Row counts accepted by Fetch besides a non-negative limit.
const (
	// FetchAll resets the cursor and reads the store-reported count.
	FetchAll int64 = -1
	// FetchUnspecified reads the store-reported count from the current
	// cursor position without resetting.
	FetchUnspecified int64 = -2
)

// DefaultGeomAliases are the extra input names accepted for a layer's only
// geometry field when that field has no native name.
var DefaultGeomAliases = []string{"_ogr_geometry_", "geometry", "geom", "wkb_geometry", "wkt_geometry"}

// Config is fixed for the lifetime of a Layer.
type Config struct {
	// DefaultGeomName names geometry fields that have no native name.
	DefaultGeomName string
	// GeomAliases are accepted on input for a single unnamed geometry field.
	GeomAliases []string
	// SQLRowIDColumn is used in FID lookups when the store reports no FID
	// column.
	SQLRowIDColumn string
	Logger         *slog.Logger
}

// DefaultConfig returns the configuration used when fields are left zero.
func DefaultConfig() Config {
	return Config{
		DefaultGeomName: "geometry",
		GeomAliases:     append([]string(nil), DefaultGeomAliases...),
		SQLRowIDColumn:  "FID",
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.DefaultGeomName == "" {
		c.DefaultGeomName = d.DefaultGeomName
	}
	if c.GeomAliases == nil {
		c.GeomAliases = d.GeomAliases
	}
	if c.SQLRowIDColumn == "" {
		c.SQLRowIDColumn = d.SQLRowIDColumn
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}

// ReadOptions controls geometry encoding for one read call.
type ReadOptions struct {
	Format         domain.GeomFormat
	ByteOrder      geometry.ByteOrder
	PromoteToMulti bool
	Linearize      bool
}

// DefaultReadOptions reads geometries as little-endian WKB.
func DefaultReadOptions() ReadOptions {
	return ReadOptions{Format: domain.FormatWKB, ByteOrder: geometry.LittleEndian}
}

// WriteOptions controls batch writes.
type WriteOptions struct {
	// Progress, when set, is called after each row of a batch of more than
	// one row with the number of rows processed so far.
	Progress func(done, total int)
}

// StreamOptions controls OpenStream.
type StreamOptions struct {
	BatchSize  int
	IncludeFID bool
}
