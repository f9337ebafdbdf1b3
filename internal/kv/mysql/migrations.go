// Package mysql provides a MySQL-backed key-value engine.
package mysql

// migrations contains the database schema migrations.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS kv (
		k VARBINARY(512) NOT NULL,
		v LONGBLOB NOT NULL,
		PRIMARY KEY (k)
	) ENGINE=InnoDB`,
}
