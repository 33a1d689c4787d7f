package storage

import "strings"

// IsPostgresDSN reports whether dsn names a Postgres connection.
// cmd/relay uses this to pick between internal/storage/postgres and
// internal/storage/sqlite3 without either package importing the other.
func IsPostgresDSN(dsn string) bool {
	return strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://")
}
