package db

import "embed"

// EmbedMigrations holds the SQLite layer catalog migrations.
//
//go:embed migrations/*.sql
var EmbedMigrations embed.FS
