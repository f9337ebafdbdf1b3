// Package postgres provides a PostgreSQL-backed key-value engine.
package postgres

// migrations contains the database schema migrations.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS kv (
		k BYTEA PRIMARY KEY,
		v BYTEA NOT NULL
	)`,
}
