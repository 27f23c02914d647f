// Package db embeds the schema and the default seed catalog.
package db

import _ "embed"

// Schema contains the DDL statements for all application tables.
//
//go:embed migrations/001_schema.sql
var Schema string

// SeedCatalog is the default brand and product catalog in JSON.
//
//go:embed seed/catalog.json
var SeedCatalog []byte
