package ddl

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/USDAForestService/gdalraster-sub000/internal/domain"
)

func TestColumnType(t *testing.T) {
	tests := []struct {
		name    string
		dialect Dialect
		typ     domain.FieldType
		want    string
	}{
		{name: "sqlite_integer", dialect: SQLite, typ: domain.FieldTypeInteger, want: "INTEGER"},
		{name: "sqlite_integer64", dialect: SQLite, typ: domain.FieldTypeInteger64, want: "INTEGER"},
		{name: "sqlite_real", dialect: SQLite, typ: domain.FieldTypeReal, want: "REAL"},
		{name: "sqlite_binary", dialect: SQLite, typ: domain.FieldTypeBinary, want: "BLOB"},
		{name: "sqlite_date", dialect: SQLite, typ: domain.FieldTypeDate, want: "TEXT"},
		{name: "sqlite_list", dialect: SQLite, typ: domain.FieldTypeRealList, want: "TEXT"},
		{name: "duckdb_integer64", dialect: DuckDB, typ: domain.FieldTypeInteger64, want: "BIGINT"},
		{name: "duckdb_real", dialect: DuckDB, typ: domain.FieldTypeReal, want: "DOUBLE"},
		{name: "duckdb_string", dialect: DuckDB, typ: domain.FieldTypeString, want: "VARCHAR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ColumnType(tt.dialect, tt.typ))
		})
	}
}

func TestValidateDefault(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{name: "integer", input: "42"},
		{name: "negative_real", input: "-1.5e3"},
		{name: "string", input: "'it''s'"},
		{name: "null", input: "NULL"},
		{name: "current_timestamp", input: "current_timestamp"},
		{name: "function_call", input: "random()", wantErr: true},
		{name: "unterminated", input: "'abc", wantErr: true},
		{name: "injection", input: "1; DROP TABLE x", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateDefault(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestValidateColumnName(t *testing.T) {
	require.NoError(t, ValidateColumnName("tree height"))
	require.NoError(t, ValidateColumnName(`odd"name`))
	require.Error(t, ValidateColumnName(""))
	require.Error(t, ValidateColumnName("   "))
	require.Error(t, ValidateColumnName("tab\tname"))
}

func TestCreateLayerTable(t *testing.T) {
	lt := LayerTable{
		Table:     "plots",
		FIDColumn: "fid",
		Fields: []domain.FieldSchema{
			{Name: "name", Type: domain.FieldTypeString, Nullable: false, Default: "'unnamed'"},
			{Name: "basal area", Type: domain.FieldTypeReal, Nullable: true},
			{Name: "code", Type: domain.FieldTypeInteger, Nullable: true, Unique: true},
		},
		GeomColumns: []string{"geom"},
	}

	tests := []struct {
		name    string
		dialect Dialect
		want    []string
	}{
		{
			name:    "sqlite",
			dialect: SQLite,
			want: []string{
				`CREATE TABLE "plots" ("fid" INTEGER PRIMARY KEY AUTOINCREMENT, "name" TEXT NOT NULL DEFAULT 'unnamed', ` +
					`"basal area" REAL, "code" INTEGER UNIQUE, "geom" BLOB, "_minx" REAL, "_miny" REAL, "_maxx" REAL, "_maxy" REAL)`,
				`CREATE INDEX "plots_bbox_idx" ON "plots" ("_minx", "_maxx", "_miny", "_maxy")`,
			},
		},
		{
			name:    "duckdb",
			dialect: DuckDB,
			want: []string{
				`CREATE TABLE "plots" ("fid" BIGINT PRIMARY KEY, "name" VARCHAR NOT NULL DEFAULT 'unnamed', ` +
					`"basal area" DOUBLE, "code" INTEGER UNIQUE, "geom" BLOB, "_minx" DOUBLE, "_miny" DOUBLE, "_maxx" DOUBLE, "_maxy" DOUBLE)`,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := CreateLayerTable(tt.dialect, lt)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCreateLayerTable_NoGeometry(t *testing.T) {
	got, err := CreateLayerTable(SQLite, LayerTable{
		Table:     "attrs",
		FIDColumn: "fid",
		Fields:    []domain.FieldSchema{{Name: "v", Type: domain.FieldTypeInteger64, Nullable: true}},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{`CREATE TABLE "attrs" ("fid" INTEGER PRIMARY KEY AUTOINCREMENT, "v" INTEGER)`}, got)
}

func TestCreateLayerTable_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		lt      LayerTable
		wantErr string
	}{
		{
			name:    "bad_table",
			lt:      LayerTable{Table: "my-layer", FIDColumn: "fid"},
			wantErr: "invalid table name",
		},
		{
			name:    "bad_fid",
			lt:      LayerTable{Table: "plots", FIDColumn: ""},
			wantErr: "invalid FID column",
		},
		{
			name: "bad_default",
			lt: LayerTable{Table: "plots", FIDColumn: "fid", Fields: []domain.FieldSchema{
				{Name: "x", Type: domain.FieldTypeInteger, Nullable: true, Default: "abs(-1)"},
			}},
			wantErr: "unsupported default expression",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := CreateLayerTable(SQLite, tt.lt)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestAddColumn(t *testing.T) {
	got, err := AddColumn(DuckDB, "plots", domain.FieldSchema{
		Name: "status", Type: domain.FieldTypeString, Nullable: false, Unique: true, Default: "'new'",
	})
	require.NoError(t, err)
	assert.Equal(t, `ALTER TABLE "plots" ADD COLUMN "status" VARCHAR DEFAULT 'new'`, got)

	_, err = AddColumn(SQLite, "bad table", domain.FieldSchema{Name: "x", Type: domain.FieldTypeInteger})
	require.Error(t, err)
}

func TestDropLayerTable(t *testing.T) {
	got, err := DropLayerTable("plots")
	require.NoError(t, err)
	assert.Equal(t, `DROP TABLE IF EXISTS "plots"`, got)

	_, err = DropLayerTable("plots; --")
	require.Error(t, err)
}
