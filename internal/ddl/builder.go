// Package ddl builds SQLite and DuckDB DDL statements for layer tables.
package ddl

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/USDAForestService/gdalraster-sub000/internal/domain"
)

// Dialect selects the SQL flavour of generated statements.
type Dialect int

const (
	SQLite Dialect = iota
	DuckDB
)

func (d Dialect) String() string {
	if d == DuckDB {
		return "duckdb"
	}
	return "sqlite"
}

// BBox column names maintained for the first geometry field of a layer.
const (
	MinXColumn = "_minx"
	MinYColumn = "_miny"
	MaxXColumn = "_maxx"
	MaxYColumn = "_maxy"
)

// BBoxColumns lists the bbox columns in storage order.
var BBoxColumns = []string{MinXColumn, MinYColumn, MaxXColumn, MaxYColumn}

// LayerTable describes the physical table behind a layer.
type LayerTable struct {
	Table       string
	FIDColumn   string
	Fields      []domain.FieldSchema
	GeomColumns []string
}

var (
	numericLiteralRe = regexp.MustCompile(`^[-+]?(\d+\.?\d*|\.\d+)([eE][-+]?\d+)?$`)
	stringLiteralRe  = regexp.MustCompile(`^'([^']|'')*'$`)
)

// ColumnType returns the storage type for a field. Dates, times and lists
// are stored as text in both dialects.
func ColumnType(d Dialect, t domain.FieldType) string {
	switch t {
	case domain.FieldTypeInteger:
		return "INTEGER"
	case domain.FieldTypeInteger64:
		if d == DuckDB {
			return "BIGINT"
		}
		return "INTEGER"
	case domain.FieldTypeReal:
		if d == DuckDB {
			return "DOUBLE"
		}
		return "REAL"
	case domain.FieldTypeBinary:
		return "BLOB"
	}
	if d == DuckDB {
		return "VARCHAR"
	}
	return "TEXT"
}

// ValidateColumnName checks a field name. Field names are always quoted, so
// anything printable up to 128 bytes is accepted.
func ValidateColumnName(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("column name is required")
	}
	if len(name) > maxIdentifierLen {
		return fmt.Errorf("column name must be at most %d characters", maxIdentifierLen)
	}
	for _, r := range name {
		if r < 0x20 || r == 0x7f {
			return fmt.Errorf("column name %q contains control characters", name)
		}
	}
	return nil
}

// ValidateDefault accepts NULL, numeric and quoted string literals, and the
// CURRENT_DATE / CURRENT_TIME / CURRENT_TIMESTAMP keywords.
func ValidateDefault(expr string) error {
	e := strings.TrimSpace(expr)
	switch strings.ToUpper(e) {
	case "NULL", "CURRENT_DATE", "CURRENT_TIME", "CURRENT_TIMESTAMP":
		return nil
	}
	if numericLiteralRe.MatchString(e) || stringLiteralRe.MatchString(e) {
		return nil
	}
	return fmt.Errorf("unsupported default expression %q", expr)
}

// CreateLayerTable returns the statements that create a layer table: the
// FID primary key, one column per field, one BLOB per geometry field and,
// when the layer has geometry, the bbox columns. DuckDB tables carry no
// FID default; inserts compute the next FID themselves.
func CreateLayerTable(d Dialect, lt LayerTable) ([]string, error) {
	if err := ValidateIdentifier(lt.Table); err != nil {
		return nil, fmt.Errorf("invalid table name: %w", err)
	}
	if err := ValidateIdentifier(lt.FIDColumn); err != nil {
		return nil, fmt.Errorf("invalid FID column: %w", err)
	}

	var stmts []string
	var cols []string
	if d == DuckDB {
		cols = append(cols, QuoteIdentifier(lt.FIDColumn)+" BIGINT PRIMARY KEY")
	} else {
		cols = append(cols, QuoteIdentifier(lt.FIDColumn)+" INTEGER PRIMARY KEY AUTOINCREMENT")
	}

	for _, f := range lt.Fields {
		def, err := columnDef(d, f, true)
		if err != nil {
			return nil, err
		}
		cols = append(cols, def)
	}
	for _, g := range lt.GeomColumns {
		if err := ValidateColumnName(g); err != nil {
			return nil, fmt.Errorf("invalid geometry column: %w", err)
		}
		cols = append(cols, QuoteIdentifier(g)+" BLOB")
	}
	if len(lt.GeomColumns) > 0 {
		for _, b := range BBoxColumns {
			cols = append(cols, QuoteIdentifier(b)+" "+ColumnType(d, domain.FieldTypeReal))
		}
	}

	stmts = append(stmts, fmt.Sprintf("CREATE TABLE %s (%s)",
		QuoteIdentifier(lt.Table), strings.Join(cols, ", ")))

	if d == SQLite && len(lt.GeomColumns) > 0 {
		stmts = append(stmts, fmt.Sprintf("CREATE INDEX %s ON %s (%s, %s, %s, %s)",
			QuoteIdentifier(lt.Table+"_bbox_idx"), QuoteIdentifier(lt.Table),
			QuoteIdentifier(MinXColumn), QuoteIdentifier(MaxXColumn),
			QuoteIdentifier(MinYColumn), QuoteIdentifier(MaxYColumn)))
	}
	return stmts, nil
}

// AddColumn returns ALTER TABLE ... ADD COLUMN for a new field. Neither
// dialect accepts UNIQUE on an added column, and DuckDB rejects NOT NULL, so
// those constraints are left to the caller.
func AddColumn(d Dialect, table string, f domain.FieldSchema) (string, error) {
	if err := ValidateIdentifier(table); err != nil {
		return "", fmt.Errorf("invalid table name: %w", err)
	}
	def, err := columnDef(d, f, false)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s", QuoteIdentifier(table), def), nil
}

// DropLayerTable returns the statement that removes a layer table.
func DropLayerTable(table string) (string, error) {
	if err := ValidateIdentifier(table); err != nil {
		return "", fmt.Errorf("invalid table name: %w", err)
	}
	return "DROP TABLE IF EXISTS " + QuoteIdentifier(table), nil
}

func columnDef(d Dialect, f domain.FieldSchema, constraints bool) (string, error) {
	if err := ValidateColumnName(f.Name); err != nil {
		return "", fmt.Errorf("invalid field %q: %w", f.Name, err)
	}
	def := QuoteIdentifier(f.Name) + " " + ColumnType(d, f.Type)
	if constraints && !f.Nullable {
		def += " NOT NULL"
	}
	if constraints && f.Unique {
		def += " UNIQUE"
	}
	if f.Default != "" {
		if err := ValidateDefault(f.Default); err != nil {
			return "", fmt.Errorf("invalid field %q: %w", f.Name, err)
		}
		def += " DEFAULT " + strings.TrimSpace(f.Default)
	}
	return def, nil
}
