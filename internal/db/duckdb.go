package db

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/duckdb/duckdb-go/v2" // registers the duckdb driver
)

// duckdbCatalog mirrors migrations/00001_layer_catalog.sql. DuckDB has no
// ON DELETE CASCADE, so the layer store removes child rows itself.
var duckdbCatalog = []string{
	`CREATE TABLE IF NOT EXISTS vt_layers (
		name        VARCHAR PRIMARY KEY,
		table_name  VARCHAR NOT NULL UNIQUE,
		fid_column  VARCHAR NOT NULL DEFAULT 'fid',
		description VARCHAR NOT NULL DEFAULT '',
		created_at  TIMESTAMP DEFAULT current_timestamp
	)`,
	`CREATE TABLE IF NOT EXISTS vt_field_domains (
		name          VARCHAR PRIMARY KEY,
		description   VARCHAR NOT NULL DEFAULT '',
		kind          VARCHAR NOT NULL,
		field_type    VARCHAR NOT NULL,
		sub_type      VARCHAR NOT NULL DEFAULT 'None',
		min_value     VARCHAR,
		min_inclusive INTEGER NOT NULL DEFAULT 1,
		max_value     VARCHAR,
		max_inclusive INTEGER NOT NULL DEFAULT 1,
		glob          VARCHAR NOT NULL DEFAULT ''
	)`,
	`CREATE TABLE IF NOT EXISTS vt_field_domain_codes (
		domain_name VARCHAR NOT NULL,
		ordinal     INTEGER NOT NULL,
		code        VARCHAR NOT NULL,
		value       VARCHAR,
		PRIMARY KEY (domain_name, ordinal)
	)`,
	`CREATE TABLE IF NOT EXISTS vt_fields (
		layer_name       VARCHAR NOT NULL,
		ordinal          INTEGER NOT NULL,
		name             VARCHAR NOT NULL,
		field_type       VARCHAR NOT NULL,
		sub_type         VARCHAR NOT NULL DEFAULT 'None',
		field_width      INTEGER NOT NULL DEFAULT 0,
		field_precision  INTEGER NOT NULL DEFAULT 0,
		nullable         INTEGER NOT NULL DEFAULT 1,
		is_unique        INTEGER NOT NULL DEFAULT 0,
		default_expr     VARCHAR NOT NULL DEFAULT '',
		domain_name      VARCHAR NOT NULL DEFAULT '',
		alternative_name VARCHAR NOT NULL DEFAULT '',
		PRIMARY KEY (layer_name, ordinal)
	)`,
	`CREATE TABLE IF NOT EXISTS vt_geometry_fields (
		layer_name    VARCHAR NOT NULL,
		ordinal       INTEGER NOT NULL,
		name          VARCHAR NOT NULL DEFAULT '',
		column_name   VARCHAR NOT NULL,
		geometry_type VARCHAR NOT NULL,
		srs           VARCHAR NOT NULL DEFAULT '',
		nullable      INTEGER NOT NULL DEFAULT 1,
		PRIMARY KEY (layer_name, ordinal)
	)`,
}

// OpenDuckDB opens a DuckDB database file ("" for in-memory) and installs
// the layer catalog tables.
func OpenDuckDB(ctx context.Context, path string) (*sql.DB, error) {
	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping duckdb: %w", err)
	}
	if err := BootstrapDuckDB(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// BootstrapDuckDB creates the layer catalog tables if they do not exist.
func BootstrapDuckDB(ctx context.Context, db *sql.DB) error {
	for _, stmt := range duckdbCatalog {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("bootstrap duckdb catalog: %w", err)
		}
	}
	return nil
}
