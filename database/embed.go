package database

import "embed"

// EmbeddedMigrations holds the migration SQL files so the deployed
// binary needs nothing on disk beside it. Access the subtree with
// fs.Sub(EmbeddedMigrations, "migrations").
//
//go:embed migrations/*.sql
var EmbeddedMigrations embed.FS
